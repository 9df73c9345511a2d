package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

type importRequest struct {
	Products []models.CatalogProduct `json:"products" binding:"required"`
}

type sheetImportRequest struct {
	Range string `json:"range"`
}

// Products lists the cached catalog.
func (h *Handler) Products(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	products, err := e.Products()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// Product resolves one barcode.
func (h *Handler) Product(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	p, err := e.Lookup(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PutProduct creates or replaces a product. The barcode comes from the path.
func (h *Handler) PutProduct(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var p models.CatalogProduct
	if err := c.ShouldBindJSON(&p); err != nil {
		h.badRequest(c, err)
		return
	}
	p.Barcode = c.Param("barcode")
	saved, err := e.UpsertProduct(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// DeleteProduct removes a product.
func (h *Handler) DeleteProduct(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	if err := e.DeleteProduct(c.Request.Context(), c.Param("barcode")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearCatalog removes every product.
func (h *Handler) ClearCatalog(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	if err := e.ClearCatalog(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SyncCatalog pulls the catalog from the remote master.
func (h *Handler) SyncCatalog(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	products, status, err := e.SyncCatalog(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "products": len(products)})
}

// ImportProducts writes a batch of products.
func (h *Handler) ImportProducts(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	n, err := e.ImportProducts(c.Request.Context(), req.Products)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

// ImportSheet imports a spreadsheet range; an empty body reuses the last range.
func (h *Handler) ImportSheet(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var req sheetImportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	n, sheetRange, err := e.ImportFromSheet(c.Request.Context(), req.Range)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n, "range": sheetRange})
}

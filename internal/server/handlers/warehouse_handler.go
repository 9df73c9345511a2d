package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

type warehouseRequest struct {
	Name string `json:"name" binding:"required"`
}

type selectWarehouseRequest struct {
	ID string `json:"id" binding:"required"`
}

// Warehouses lists the warehouses of the user.
func (h *Handler) Warehouses(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	list, err := e.Warehouses(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateWarehouse adds a warehouse.
func (h *Handler) CreateWarehouse(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var req warehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	w, err := e.CreateWarehouse(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// RenameWarehouse changes the name of a warehouse.
func (h *Handler) RenameWarehouse(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var req warehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	w, err := e.RenameWarehouse(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// DeleteWarehouse removes a warehouse and its list.
func (h *Handler) DeleteWarehouse(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	if err := e.DeleteWarehouse(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SelectWarehouse switches the current warehouse. Selecting while the remote store is
// unreachable still switches, on the local mirror, and answers 202.
func (h *Handler) SelectWarehouse(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var req selectWarehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	w, err := e.SelectWarehouse(c.Request.Context(), req.ID)
	switch {
	case errors.Is(err, models.ErrUnavailable) && w.ID != "":
		c.JSON(http.StatusAccepted, gin.H{"warehouse": w, "reason": err.Error()})
	case err != nil:
		h.fail(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{"warehouse": w})
	}
}

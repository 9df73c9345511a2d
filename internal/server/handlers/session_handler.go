package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

type scanRequest struct {
	Barcode string `json:"barcode" binding:"required"`
}

type deltaRequest struct {
	Field string `json:"field"`
	Delta int    `json:"delta" binding:"required"`
}

type setRequest struct {
	Field string `json:"field"`
	Value string `json:"value" binding:"required"`
}

type providersRequest struct {
	Providers []string `json:"providers" binding:"required"`
}

// OpenSession starts the engine of the user, or returns the running one.
func (h *Handler) OpenSession(c *gin.Context) {
	e, err := h.sessions.Open(c.Request.Context(), c.Param("user"))
	if err != nil {
		h.fail(c, err)
		return
	}
	status, err := e.Status()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// CloseSession tears the engine of the user down.
func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Request.Context(), c.Param("user")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Status reports sync, connectivity and confirmation state.
func (h *Handler) Status(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	status, err := e.Status()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Events streams engine events as server-sent events until the client leaves or the
// session ends. The stream opens with the current status and list.
func (h *Handler) Events(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	sub, unsubscribe := e.Subscribe()
	defer unsubscribe()

	status, err := e.Status()
	if err != nil {
		h.fail(c, err)
		return
	}
	items, _ := e.Items()
	c.SSEvent("status", status)
	c.SSEvent("countingListChanged", gin.H{"warehouseId": status.WarehouseID, "items": items})
	c.Writer.Flush()

	h.logger.Debug("event stream opened", zap.String("user", e.UserID()), zap.String("subscriber", sub.ID))
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
	h.logger.Debug("event stream closed", zap.String("subscriber", sub.ID), zap.Int("dropped", sub.Dropped()))
}

// Scan counts one barcode.
func (h *Handler) Scan(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := e.Scan(c.Request.Context(), req.Barcode)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !res.Accepted {
		c.JSON(http.StatusOK, res)
		return
	}
	respond(c, res.Result)
}

// Items lists the current warehouse.
func (h *Handler) Items(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	items, err := e.Items()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// Summary reconciles the current list against stock.
func (h *Handler) Summary(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	summary, err := e.Summary()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ApplyDelta increments or decrements the count or stock of an item.
func (h *Handler) ApplyDelta(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var req deltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	field, err := models.ParseField(req.Field)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := e.ApplyDelta(c.Request.Context(), c.Param("barcode"), field, req.Delta)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, res)
}

// ApplySet sets the count or stock of an item from typed input.
func (h *Handler) ApplySet(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var req setRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	field, err := models.ParseField(req.Field)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := e.ApplySet(c.Request.Context(), c.Param("barcode"), field, req.Value)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, res)
}

// DeleteItem removes an item from the current list.
func (h *Handler) DeleteItem(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	res, err := e.DeleteItem(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, res)
}

// ClearList empties the current list.
func (h *Handler) ClearList(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	res, err := e.ClearList(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, res)
}

// StartByProvider restarts the current list from the products of some providers.
func (h *Handler) StartByProvider(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	var req providersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := e.StartByProvider(c.Request.Context(), req.Providers)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, res)
}

// Refresh re-snapshots catalog data into the current list.
func (h *Handler) Refresh(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	res, err := e.RefreshFromCatalog(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, res)
}

// Pending returns the outstanding confirmation.
func (h *Handler) Pending(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	p, err := e.Pending()
	if err != nil {
		h.fail(c, err)
		return
	}
	if p == nil {
		h.fail(c, models.NotFound("no confirmation is pending"))
		return
	}
	c.JSON(http.StatusOK, p)
}

// Confirm applies the outstanding confirmation.
func (h *Handler) Confirm(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	res, err := e.Confirm(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, res)
}

// Cancel drops the outstanding confirmation.
func (h *Handler) Cancel(c *gin.Context) {
	e, ok := h.engine(c)
	if !ok {
		return
	}
	p, err := e.Cancel()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": p})
}

package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/server/handlers"
)

// New wires the Gin engine with required routes and middlewares. A nil gatherer leaves
// /metrics out.
func New(handler *handlers.Handler, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	u := r.Group("/api/users/:user")
	u.POST("/session", handler.OpenSession)
	u.DELETE("/session", handler.CloseSession)
	u.GET("/status", handler.Status)
	u.GET("/events", handler.Events)
	u.POST("/scan", handler.Scan)

	items := u.Group("/items")
	items.GET("", handler.Items)
	items.GET("/summary", handler.Summary)
	items.POST("/clear", handler.ClearList)
	items.POST("/start-by-provider", handler.StartByProvider)
	items.POST("/refresh", handler.Refresh)
	items.POST("/:barcode/delta", handler.ApplyDelta)
	items.POST("/:barcode/set", handler.ApplySet)
	items.DELETE("/:barcode", handler.DeleteItem)

	confirmation := u.Group("/confirmation")
	confirmation.GET("", handler.Pending)
	confirmation.POST("/confirm", handler.Confirm)
	confirmation.POST("/cancel", handler.Cancel)

	catalog := u.Group("/catalog")
	catalog.GET("", handler.Products)
	catalog.DELETE("", handler.ClearCatalog)
	catalog.POST("/sync", handler.SyncCatalog)
	catalog.POST("/import", handler.ImportProducts)
	catalog.POST("/import/sheet", handler.ImportSheet)
	catalog.GET("/:barcode", handler.Product)
	catalog.PUT("/:barcode", handler.PutProduct)
	catalog.DELETE("/:barcode", handler.DeleteProduct)

	warehouses := u.Group("/warehouses")
	warehouses.GET("", handler.Warehouses)
	warehouses.POST("", handler.CreateWarehouse)
	warehouses.PUT("/current", handler.SelectWarehouse)
	warehouses.PATCH("/:id", handler.RenameWarehouse)
	warehouses.DELETE("/:id", handler.DeleteWarehouse)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

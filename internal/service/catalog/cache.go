// Package catalog keeps the product catalog close to the scanner: an in-memory map
// over a durable local copy, rebuilt from the remote master on every sync.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/pkg/metrics"
)

// Remote is the catalog part of the authoritative store.
type Remote interface {
	ListProducts(ctx context.Context, userID string) ([]models.CatalogProduct, error)
	PutProduct(ctx context.Context, userID string, product models.CatalogProduct) error
	PutProducts(ctx context.Context, userID string, products []models.CatalogProduct) error
	DeleteProduct(ctx context.Context, userID, barcode string) error
	ClearProducts(ctx context.Context, userID string) error
}

// LocalCache is the durable copy of the catalog.
type LocalCache interface {
	GetAll(ctx context.Context) ([]models.CatalogProduct, error)
	Get(ctx context.Context, barcode string) (models.CatalogProduct, bool, error)
	Put(ctx context.Context, product models.CatalogProduct) error
	PutMany(ctx context.Context, products []models.CatalogProduct) error
	DeleteAll(ctx context.Context) error
	ReplaceAll(ctx context.Context, products []models.CatalogProduct) error
}

// Tracker marks remote operations as in flight.
type Tracker interface {
	Begin(op string) func()
}

// Options configures a Cache.
type Options struct {
	UserID        string
	RemoteTimeout time.Duration
	// OnChange receives the full catalog after every successful rebuild.
	OnChange func([]models.CatalogProduct)
	Metrics  *metrics.Collectors
	Logger   *zap.Logger
}

// Cache is read-mostly: lookups never touch the remote, mutations always start there.
type Cache struct {
	remote  Remote
	local   LocalCache
	tracker Tracker
	opts    Options
	logger  *zap.Logger
	group   singleflight.Group

	mu       sync.RWMutex
	products map[string]models.CatalogProduct
}

type syncResult struct {
	products []models.CatalogProduct
	status   models.CatalogSyncStatus
}

// NewCache wires a catalog cache. tracker may be nil.
func NewCache(remote Remote, local LocalCache, tracker Tracker, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 10 * time.Second
	}
	return &Cache{
		remote:   remote,
		local:    local,
		tracker:  tracker,
		opts:     opts,
		logger:   logger,
		products: make(map[string]models.CatalogProduct),
	}
}

// Load warms the in-memory map from the durable cache without touching the remote.
func (c *Cache) Load(ctx context.Context) error {
	products, err := c.local.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load local catalog: %w", err)
	}
	c.replace(products)
	c.logger.Debug("catalog loaded from local cache", zap.Int("products", len(products)))
	return nil
}

// Lookup resolves a barcode from memory, then from the durable cache. A miss is ErrNotFound.
func (c *Cache) Lookup(ctx context.Context, barcode string) (models.CatalogProduct, error) {
	c.mu.RLock()
	p, ok := c.products[barcode]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, ok, err := c.local.Get(ctx, barcode)
	if err != nil {
		c.logger.Warn("local catalog lookup failed", zap.String("barcode", barcode), zap.Error(err))
		return models.CatalogProduct{}, models.NotFound("barcode %s is not in the catalog", barcode)
	}
	if !ok {
		return models.CatalogProduct{}, models.NotFound("barcode %s is not in the catalog", barcode)
	}
	c.mu.Lock()
	c.products[barcode] = p
	c.mu.Unlock()
	return p, nil
}

// Products returns the in-memory catalog ordered by barcode.
func (c *Cache) Products() []models.CatalogProduct {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.CatalogProduct, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Barcode < out[j].Barcode })
	return out
}

// Synchronize pulls the full catalog from the remote master and rebuilds the local copies.
// When the remote cannot be reached it returns the durable cache unchanged with
// CatalogDegraded. Concurrent calls share one remote round trip; a caller whose ctx ends
// returns early while the shared sync carries on for the others.
func (c *Cache) Synchronize(ctx context.Context) ([]models.CatalogProduct, models.CatalogSyncStatus, error) {
	// Detached from the first caller. The remote call is still bounded by RemoteTimeout.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan("sync", func() (interface{}, error) {
		return c.synchronize(shared)
	})
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, "", r.Err
		}
		res := r.Val.(syncResult)
		return res.products, res.status, nil
	}
}

func (c *Cache) synchronize(ctx context.Context) (syncResult, error) {
	products, err := c.fetchRemote(ctx)
	if err != nil {
		c.opts.Metrics.CatalogSync(string(models.CatalogDegraded))
		c.logger.Warn("catalog sync degraded to local cache", zap.Error(err))
		cached, lerr := c.local.GetAll(ctx)
		if lerr != nil {
			return syncResult{}, fmt.Errorf("catalog sync: remote failed (%v) and local cache unreadable: %w", err, lerr)
		}
		return syncResult{products: cached, status: models.CatalogDegraded}, nil
	}

	if err := c.local.ReplaceAll(ctx, products); err != nil {
		return syncResult{}, fmt.Errorf("rebuild local catalog: %w", err)
	}
	c.replace(products)
	c.opts.Metrics.CatalogSync(string(models.CatalogSynced))
	c.logger.Info("catalog synchronized", zap.Int("products", len(products)))
	if c.opts.OnChange != nil {
		c.opts.OnChange(products)
	}
	return syncResult{products: products, status: models.CatalogSynced}, nil
}

func (c *Cache) fetchRemote(ctx context.Context) ([]models.CatalogProduct, error) {
	var products []models.CatalogProduct
	err := c.remoteCall(ctx, "catalog.list", func(ctx context.Context) error {
		var err error
		products, err = c.remote.ListProducts(ctx, c.opts.UserID)
		return err
	})
	return products, err
}

func (c *Cache) remoteCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.tracker != nil {
		done := c.tracker.Begin(op)
		defer done()
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.RemoteTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.opts.Metrics.RemoteFailure(op)
		return models.Unavailable(op, err)
	}
	return nil
}

func (c *Cache) replace(products []models.CatalogProduct) {
	next := make(map[string]models.CatalogProduct, len(products))
	for _, p := range products {
		next[p.Barcode] = p
	}
	c.mu.Lock()
	c.products = next
	c.mu.Unlock()
}

// mutate writes through the remote master, then rebuilds the local copies.
func (c *Cache) mutate(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.remoteCall(ctx, op, fn); err != nil {
		c.logger.Warn("catalog mutation rejected", zap.String("op", op), zap.Error(err))
		return err
	}
	if _, status, err := c.Synchronize(ctx); err != nil {
		return err
	} else if status == models.CatalogDegraded {
		return fmt.Errorf("%w: %s was saved remotely but the catalog could not be reloaded", models.ErrUnavailable, op)
	}
	return nil
}

// Upsert validates and writes a product through the remote master.
func (c *Cache) Upsert(ctx context.Context, product models.CatalogProduct) (models.CatalogProduct, error) {
	if err := product.Validate(); err != nil {
		return models.CatalogProduct{}, err
	}
	err := c.mutate(ctx, "catalog.put", func(ctx context.Context) error {
		return c.remote.PutProduct(ctx, c.opts.UserID, product)
	})
	if err != nil {
		return models.CatalogProduct{}, err
	}
	return product, nil
}

// SetStock changes the canonical stock of an existing product.
func (c *Cache) SetStock(ctx context.Context, barcode string, stock int) (models.CatalogProduct, error) {
	if stock < 0 {
		return models.CatalogProduct{}, models.InvalidInput("stock must not be negative, got %d", stock)
	}
	p, err := c.Lookup(ctx, barcode)
	if err != nil {
		return models.CatalogProduct{}, err
	}
	p.Stock = stock
	return c.Upsert(ctx, p)
}

// Delete removes a product through the remote master.
func (c *Cache) Delete(ctx context.Context, barcode string) error {
	if barcode == "" {
		return models.InvalidInput("barcode must not be empty")
	}
	return c.mutate(ctx, "catalog.delete", func(ctx context.Context) error {
		return c.remote.DeleteProduct(ctx, c.opts.UserID, barcode)
	})
}

// Clear removes the whole catalog through the remote master.
func (c *Cache) Clear(ctx context.Context) error {
	return c.mutate(ctx, "catalog.clear", func(ctx context.Context) error {
		return c.remote.ClearProducts(ctx, c.opts.UserID)
	})
}

// Import writes a batch of products through the remote master. Later duplicates of a
// barcode win over earlier ones.
func (c *Cache) Import(ctx context.Context, products []models.CatalogProduct) (int, error) {
	if len(products) == 0 {
		return 0, models.InvalidInput("nothing to import")
	}
	byBarcode := make(map[string]int, len(products))
	batch := make([]models.CatalogProduct, 0, len(products))
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return 0, err
		}
		if i, ok := byBarcode[p.Barcode]; ok {
			batch[i] = p
			continue
		}
		byBarcode[p.Barcode] = len(batch)
		batch = append(batch, p)
	}
	err := c.mutate(ctx, "catalog.import", func(ctx context.Context) error {
		return c.remote.PutProducts(ctx, c.opts.UserID, batch)
	})
	if err != nil {
		return 0, err
	}
	return len(batch), nil
}

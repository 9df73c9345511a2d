package counting

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository/memory"
)

const testUser = "u1"

type fakeCatalog struct {
	mu          sync.Mutex
	products    map[string]models.CatalogProduct
	setStockErr error
}

func newFakeCatalog(products ...models.CatalogProduct) *fakeCatalog {
	c := &fakeCatalog{products: make(map[string]models.CatalogProduct)}
	for _, p := range products {
		c.products[p.Barcode] = p
	}
	return c
}

func (c *fakeCatalog) Lookup(_ context.Context, barcode string) (models.CatalogProduct, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[barcode]
	if !ok {
		return models.CatalogProduct{}, models.NotFound("barcode %s is not in the catalog", barcode)
	}
	return p, nil
}

func (c *fakeCatalog) Products() []models.CatalogProduct {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.CatalogProduct, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Barcode < out[j].Barcode })
	return out
}

func (c *fakeCatalog) SetStock(_ context.Context, barcode string, stock int) (models.CatalogProduct, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setStockErr != nil {
		return models.CatalogProduct{}, c.setStockErr
	}
	p, ok := c.products[barcode]
	if !ok {
		return models.CatalogProduct{}, models.NotFound("barcode %s is not in the catalog", barcode)
	}
	p.Stock = stock
	c.products[barcode] = p
	return p, nil
}

func (c *fakeCatalog) put(p models.CatalogProduct) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.Barcode] = p
}

type recorder struct {
	mu           sync.Mutex
	lists        [][]models.CountingListItem
	conflicts    []*models.PendingConfirmation
	connectivity []bool
}

func (r *recorder) CountingListChanged(_ string, items []models.CountingListItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = append(r.lists, items)
}

func (r *recorder) ConflictChanged(p *models.PendingConfirmation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = append(r.conflicts, p)
}

func (r *recorder) ConnectivityChanged(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectivity = append(r.connectivity, online)
}

func (r *recorder) listCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lists)
}

func (r *recorder) listsSince(i int) [][]models.CountingListItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]models.CountingListItem(nil), r.lists[i:]...)
}

// mapMirrors is an in-memory stand-in for the durable mirror and its debouncer.
type mapMirrors struct {
	mu     sync.Mutex
	states map[string]models.MirrorState
}

func newMapMirrors() *mapMirrors {
	return &mapMirrors{states: make(map[string]models.MirrorState)}
}

func (m *mapMirrors) LoadMirror(_ context.Context, key string) (models.MirrorState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[key]
	return st, ok, nil
}

func (m *mapMirrors) Schedule(key string, state models.MirrorState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = state
}

type fixture struct {
	remote  *memory.Store
	catalog *fakeCatalog
	rec     *recorder
	mirrors *mapMirrors
	store   *Store
}

func newFixture(t *testing.T, products ...models.CatalogProduct) *fixture {
	t.Helper()
	f := &fixture{
		remote:  memory.NewStore(),
		catalog: newFakeCatalog(products...),
		mirrors: newMapMirrors(),
	}
	f.store = f.newStore(t, ConfirmOnCrossing)
	return f
}

func (f *fixture) newStore(t *testing.T, policy OverflowPolicy) *Store {
	t.Helper()
	f.rec = &recorder{}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return NewStore(f.remote, f.catalog, nil, Options{
		UserID:        testUser,
		RemoteTimeout: time.Second,
		Policy:        policy,
		Listener:      f.rec,
		Mirrors:       f.mirrors,
		Persister:     f.mirrors,
		Logger:        zaptest.NewLogger(t),
		Now:           func() time.Time { return now },
	})
}

func (f *fixture) attach(t *testing.T, warehouseID string) {
	t.Helper()
	require.NoError(t, f.store.Attach(context.Background(), warehouseID))
}

func (f *fixture) remoteItems(t *testing.T, warehouseID string) map[string]models.CountingListItem {
	t.Helper()
	items, err := f.remote.ListItems(context.Background(), testUser, warehouseID)
	require.NoError(t, err)
	out := make(map[string]models.CountingListItem, len(items))
	for _, item := range items {
		out[item.Barcode] = item
	}
	return out
}

func product(barcode string, stock int) models.CatalogProduct {
	return models.CatalogProduct{Barcode: barcode, Description: "Product " + barcode, Provider: "acme", Stock: stock}
}

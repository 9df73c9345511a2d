// Package memory implements the remote store in process memory. It backs the
// LOCAL store driver and the test suites, and can simulate outages.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// ErrOffline is returned by every call while the store is marked unavailable.
var ErrOffline = errors.New("memory store offline")

type itemScope struct {
	userID      string
	warehouseID string
}

type subscriber struct {
	id       int
	scope    itemScope
	onChange func(models.ChangeSet)
	onError  func(error)
}

// Store keeps all records in maps. Change notifications are delivered
// synchronously, in commit order, while the store lock is held, so callbacks
// must not call back into the store.
type Store struct {
	mu          sync.Mutex
	offline     bool
	products    map[string]map[string]models.CatalogProduct
	warehouses  map[string]map[string]models.Warehouse
	items       map[itemScope]map[string]models.CountingListItem
	subscribers map[int]*subscriber
	nextID      int
}

// NewStore builds an empty, reachable store.
func NewStore() *Store {
	return &Store{
		products:    make(map[string]map[string]models.CatalogProduct),
		warehouses:  make(map[string]map[string]models.Warehouse),
		items:       make(map[itemScope]map[string]models.CountingListItem),
		subscribers: make(map[int]*subscriber),
	}
}

// SetOffline toggles outage simulation. Going offline fails every live subscription.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
	if !offline {
		return
	}
	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		if sub.onError != nil {
			sub.onError(ErrOffline)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.offline {
		return ErrOffline
	}
	return nil
}

// Ping reports whether the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check(ctx)
}

// ListProducts returns the catalog of a user ordered by barcode.
func (s *Store) ListProducts(ctx context.Context, userID string) ([]models.CatalogProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make([]models.CatalogProduct, 0, len(s.products[userID]))
	for _, p := range s.products[userID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Barcode < out[j].Barcode })
	return out, nil
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(ctx context.Context, userID string, product models.CatalogProduct) error {
	return s.PutProducts(ctx, userID, []models.CatalogProduct{product})
}

// PutProducts inserts or replaces several products at once.
func (s *Store) PutProducts(ctx context.Context, userID string, products []models.CatalogProduct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	bucket := s.products[userID]
	if bucket == nil {
		bucket = make(map[string]models.CatalogProduct)
		s.products[userID] = bucket
	}
	for _, p := range products {
		bucket[p.Barcode] = p
	}
	return nil
}

// DeleteProduct removes a product. Removing a missing product is not an error.
func (s *Store) DeleteProduct(ctx context.Context, userID, barcode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	delete(s.products[userID], barcode)
	return nil
}

// ClearProducts removes the whole catalog of a user.
func (s *Store) ClearProducts(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	delete(s.products, userID)
	return nil
}

// ListWarehouses returns the warehouses of a user ordered by id.
func (s *Store) ListWarehouses(ctx context.Context, userID string) ([]models.Warehouse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	out := make([]models.Warehouse, 0, len(s.warehouses[userID]))
	for _, w := range s.warehouses[userID] {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutWarehouse inserts or renames a warehouse.
func (s *Store) PutWarehouse(ctx context.Context, userID string, warehouse models.Warehouse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	bucket := s.warehouses[userID]
	if bucket == nil {
		bucket = make(map[string]models.Warehouse)
		s.warehouses[userID] = bucket
	}
	bucket[warehouse.ID] = warehouse
	return nil
}

// DeleteWarehouse removes a warehouse record.
func (s *Store) DeleteWarehouse(ctx context.Context, userID, warehouseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	delete(s.warehouses[userID], warehouseID)
	return nil
}

// ListItems returns the counting list of one warehouse ordered by barcode.
func (s *Store) ListItems(ctx context.Context, userID, warehouseID string) ([]models.CountingListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.listLocked(itemScope{userID: userID, warehouseID: warehouseID}), nil
}

func (s *Store) listLocked(scope itemScope) []models.CountingListItem {
	out := make([]models.CountingListItem, 0, len(s.items[scope]))
	for _, item := range s.items[scope] {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Barcode < out[j].Barcode })
	return out
}

// PutItem inserts or replaces one counting list item.
func (s *Store) PutItem(ctx context.Context, userID string, item models.CountingListItem) error {
	return s.BatchItems(ctx, userID, item.WarehouseID, []models.ItemOp{models.PutOp(item)})
}

// DeleteItem removes one counting list item.
func (s *Store) DeleteItem(ctx context.Context, userID, warehouseID, barcode string) error {
	return s.BatchItems(ctx, userID, warehouseID, []models.ItemOp{models.DeleteOp(barcode)})
}

// BatchItems applies every operation under one lock and notifies subscribers once.
func (s *Store) BatchItems(ctx context.Context, userID, warehouseID string, ops []models.ItemOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	scope := itemScope{userID: userID, warehouseID: warehouseID}
	bucket := s.items[scope]
	if bucket == nil {
		bucket = make(map[string]models.CountingListItem)
		s.items[scope] = bucket
	}

	changes := make([]models.ItemChange, 0, len(ops))
	for _, op := range ops {
		switch op.Op {
		case models.ChangeUpsert:
			item := op.Item
			item.WarehouseID = warehouseID
			item.Dirty = false
			bucket[item.Barcode] = item
			changes = append(changes, models.ItemChange{Op: models.ChangeUpsert, Barcode: item.Barcode, Item: item})
		case models.ChangeDelete:
			if _, ok := bucket[op.Barcode]; !ok {
				continue
			}
			delete(bucket, op.Barcode)
			changes = append(changes, models.ItemChange{Op: models.ChangeDelete, Barcode: op.Barcode})
		}
	}
	if len(changes) == 0 {
		return nil
	}
	s.notifyLocked(scope, models.ChangeSet{WarehouseID: warehouseID, Changes: changes})
	return nil
}

func (s *Store) notifyLocked(scope itemScope, cs models.ChangeSet) {
	ids := make([]int, 0, len(s.subscribers))
	for id, sub := range s.subscribers {
		if sub.scope == scope {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	for _, id := range ids {
		s.subscribers[id].onChange(cs)
	}
}

// SubscribeItems registers a listener for one warehouse list.
func (s *Store) SubscribeItems(ctx context.Context, userID, warehouseID string, onChange func(models.ChangeSet), onError func(error)) (func(), error) {
	if onChange == nil {
		return nil, errors.New("onChange must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	scope := itemScope{userID: userID, warehouseID: warehouseID}
	s.nextID++
	id := s.nextID
	s.subscribers[id] = &subscriber{id: id, scope: scope, onChange: onChange, onError: onError}

	snapshot := models.ChangeSet{WarehouseID: warehouseID, Snapshot: true}
	for _, item := range s.listLocked(scope) {
		snapshot.Changes = append(snapshot.Changes, models.ItemChange{Op: models.ChangeUpsert, Barcode: item.Barcode, Item: item})
	}
	onChange(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
		})
	}, nil
}

// Seed writes an item directly, bypassing outage simulation and notifications.
// It stands in for a write made by another client while this one was disconnected.
func (s *Store) Seed(userID string, item models.CountingListItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := itemScope{userID: userID, warehouseID: item.WarehouseID}
	bucket := s.items[scope]
	if bucket == nil {
		bucket = make(map[string]models.CountingListItem)
		s.items[scope] = bucket
	}
	item.Dirty = false
	bucket[item.Barcode] = item
}

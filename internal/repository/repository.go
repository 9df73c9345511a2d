// Package repository declares the storage contracts shared by the remote and local adapters.
package repository

import (
	"context"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// RemoteStore is the authoritative store. Every record is scoped by user id and,
// for counting list items, by warehouse id.
type RemoteStore interface {
	Ping(ctx context.Context) error

	ListProducts(ctx context.Context, userID string) ([]models.CatalogProduct, error)
	PutProduct(ctx context.Context, userID string, product models.CatalogProduct) error
	PutProducts(ctx context.Context, userID string, products []models.CatalogProduct) error
	DeleteProduct(ctx context.Context, userID, barcode string) error
	ClearProducts(ctx context.Context, userID string) error

	ListWarehouses(ctx context.Context, userID string) ([]models.Warehouse, error)
	PutWarehouse(ctx context.Context, userID string, warehouse models.Warehouse) error
	DeleteWarehouse(ctx context.Context, userID, warehouseID string) error

	ListItems(ctx context.Context, userID, warehouseID string) ([]models.CountingListItem, error)
	PutItem(ctx context.Context, userID string, item models.CountingListItem) error
	DeleteItem(ctx context.Context, userID, warehouseID, barcode string) error
	// BatchItems commits all operations or none of them; subscribers receive them as one ChangeSet.
	BatchItems(ctx context.Context, userID, warehouseID string, ops []models.ItemOp) error
	// SubscribeItems delivers the current list as a snapshot ChangeSet before it returns,
	// then every committed change in commit order. The returned func detaches the subscription.
	SubscribeItems(ctx context.Context, userID, warehouseID string, onChange func(models.ChangeSet), onError func(error)) (func(), error)
}

// Prefs is the ephemeral key-value store for small per-user settings.
type Prefs interface {
	Get(ctx context.Context, key, fallback string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Pref keys.
const (
	PrefLastWarehouse  = "lastWarehouse"
	PrefLastSheetRange = "lastSheetRange"
)

// PrefKey scopes a preference key to a user.
func PrefKey(userID, key string) string {
	return "stockcount:" + userID + ":" + key
}

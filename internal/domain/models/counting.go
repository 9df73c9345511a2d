package models

import "time"

// UnknownProductDescription marks list items whose barcode was not found in the catalog.
const UnknownProductDescription = "Unknown product"

// CountingListItem is the counted quantity of one barcode inside one warehouse.
type CountingListItem struct {
	Barcode     string    `bson:"barcode" json:"barcode"`
	WarehouseID string    `bson:"warehouse_id" json:"warehouseId"`
	Description string    `bson:"description" json:"description"`
	Provider    string    `bson:"provider" json:"provider"`
	Stock       int       `bson:"stock" json:"stock"`
	Count       int       `bson:"count" json:"count"`
	LastUpdated time.Time `bson:"last_updated" json:"lastUpdated"`
	// Revision increases by one on every write of the item and lets the mirror
	// tell stale notifications and remote edits apart.
	Revision int64 `bson:"revision" json:"revision"`
	// Version is unique per write. Revision restarts at 1 when an item is deleted and
	// counted again, Version never repeats.
	Version string `bson:"version" json:"version,omitempty"`
	// Dirty is local-only: the item was changed while the remote store was unreachable.
	Dirty bool `bson:"-" json:"dirty,omitempty"`
}

// Key returns the composite key of the item.
func (i CountingListItem) Key() ItemKey {
	return ItemKey{WarehouseID: i.WarehouseID, Barcode: i.Barcode}
}

// OverStock reports whether the counted quantity exceeds the stock snapshot.
func (i CountingListItem) OverStock() bool {
	return i.Count > i.Stock
}

// ItemKey identifies a counting list item.
type ItemKey struct {
	WarehouseID string `json:"warehouseId"`
	Barcode     string `json:"barcode"`
}

// NewItemFromProduct snapshots catalog data into a fresh list item.
func NewItemFromProduct(warehouseID string, p CatalogProduct, count int, now time.Time) CountingListItem {
	return CountingListItem{
		Barcode:     p.Barcode,
		WarehouseID: warehouseID,
		Description: p.Description,
		Provider:    p.Provider,
		Stock:       p.Stock,
		Count:       count,
		LastUpdated: now,
	}
}

// NewUnknownItem builds the placeholder used when a scanned barcode is missing from the catalog.
func NewUnknownItem(warehouseID, barcode string, count int, now time.Time) CountingListItem {
	return CountingListItem{
		Barcode:     barcode,
		WarehouseID: warehouseID,
		Description: UnknownProductDescription,
		Count:       count,
		LastUpdated: now,
	}
}

// Field selects which quantity of an item a mutation targets.
type Field string

const (
	FieldCount Field = "count"
	FieldStock Field = "stock"
)

// ParseField validates a field name coming from the outside.
func ParseField(raw string) (Field, error) {
	switch Field(raw) {
	case FieldCount, FieldStock:
		return Field(raw), nil
	case "":
		return FieldCount, nil
	default:
		return "", InvalidInput("unknown field %q, expected count or stock", raw)
	}
}

// Action names the kind of mutation awaiting confirmation.
type Action string

const (
	ActionIncrement Action = "increment"
	ActionDecrement Action = "decrement"
	ActionSet       Action = "set"
)

// PendingConfirmation is a count mutation held back because it would push the count above stock.
type PendingConfirmation struct {
	WarehouseID   string    `json:"warehouseId"`
	Barcode       string    `json:"barcode"`
	Description   string    `json:"description"`
	Action        Action    `json:"action"`
	PreviousValue int       `json:"previousValue"`
	ProposedValue int       `json:"proposedValue"`
	Stock         int       `json:"stock"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Key returns the item the confirmation is about.
func (p PendingConfirmation) Key() ItemKey {
	return ItemKey{WarehouseID: p.WarehouseID, Barcode: p.Barcode}
}

// ListSummary reconciles counted quantities against stock for one warehouse.
type ListSummary struct {
	WarehouseID  string `json:"warehouseId"`
	Items        int    `json:"items"`
	CountedUnits int    `json:"countedUnits"`
	StockUnits   int    `json:"stockUnits"`
	OverStock    int    `json:"overStock"`
	UnderStock   int    `json:"underStock"`
	Matching     int    `json:"matching"`
	Dirty        int    `json:"dirty"`
}

// Summarize builds the reconciliation summary of a list.
func Summarize(warehouseID string, items []CountingListItem) ListSummary {
	s := ListSummary{WarehouseID: warehouseID, Items: len(items)}
	for _, item := range items {
		s.CountedUnits += item.Count
		s.StockUnits += item.Stock
		switch {
		case item.Count > item.Stock:
			s.OverStock++
		case item.Count < item.Stock:
			s.UnderStock++
		default:
			s.Matching++
		}
		if item.Dirty {
			s.Dirty++
		}
	}
	return s
}

// Baseline records what the remote store held for a barcode before the first
// offline mutation of it.
type Baseline struct {
	Present  bool   `json:"present"`
	Revision int64  `json:"revision"`
	Version  string `json:"version,omitempty"`
}

// MirrorState is the durable copy of one warehouse list, restored on restart.
type MirrorState struct {
	WarehouseID string              `json:"warehouseId"`
	Items       []CountingListItem  `json:"items"`
	Baselines   map[string]Baseline `json:"baselines,omitempty"`
	SavedAt     time.Time           `json:"savedAt"`
}

package models

import "time"

// CatalogProduct is the reference data for one barcode.
type CatalogProduct struct {
	Barcode        string     `bson:"barcode" json:"barcode"`
	Description    string     `bson:"description" json:"description"`
	Provider       string     `bson:"provider" json:"provider"`
	Stock          int        `bson:"stock" json:"stock"`
	ExpirationDate *time.Time `bson:"expiration_date,omitempty" json:"expirationDate,omitempty"`
}

// Validate checks the invariants a product must satisfy before it is written anywhere.
func (p CatalogProduct) Validate() error {
	if p.Barcode == "" {
		return InvalidInput("barcode must not be empty")
	}
	if p.Stock < 0 {
		return InvalidInput("stock of %s must not be negative", p.Barcode)
	}
	return nil
}

// CatalogSyncStatus describes the outcome of a catalog synchronization.
type CatalogSyncStatus string

const (
	// CatalogSynced means the remote master answered and the local cache was rebuilt.
	CatalogSynced CatalogSyncStatus = "synced"
	// CatalogDegraded means the remote master was unreachable and the local cache was served as is.
	CatalogDegraded CatalogSyncStatus = "degraded"
)

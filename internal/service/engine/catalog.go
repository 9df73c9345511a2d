package engine

import (
	"context"
	"strings"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository"
	"github.com/mamadbah2/stockcount/internal/service/catalog"
)

// Products returns the cached catalog.
func (e *Engine) Products() ([]models.CatalogProduct, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.catalog.Products(), nil
}

// Lookup resolves a barcode against the cached catalog.
func (e *Engine) Lookup(ctx context.Context, barcode string) (models.CatalogProduct, error) {
	if err := e.ready(); err != nil {
		return models.CatalogProduct{}, err
	}
	return e.catalog.Lookup(ctx, barcode)
}

// SyncCatalog pulls the catalog from the remote master.
func (e *Engine) SyncCatalog(ctx context.Context) ([]models.CatalogProduct, models.CatalogSyncStatus, error) {
	if err := e.ready(); err != nil {
		return nil, "", err
	}
	return e.catalog.Synchronize(ctx)
}

// UpsertProduct writes a product through the remote master.
func (e *Engine) UpsertProduct(ctx context.Context, product models.CatalogProduct) (models.CatalogProduct, error) {
	if err := e.ready(); err != nil {
		return models.CatalogProduct{}, err
	}
	return e.catalog.Upsert(ctx, product)
}

// DeleteProduct removes a product through the remote master.
func (e *Engine) DeleteProduct(ctx context.Context, barcode string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.catalog.Delete(ctx, barcode)
}

// ClearCatalog removes every product through the remote master.
func (e *Engine) ClearCatalog(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.catalog.Clear(ctx)
}

// ImportProducts writes a batch of products through the remote master.
func (e *Engine) ImportProducts(ctx context.Context, products []models.CatalogProduct) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.catalog.Import(ctx, products)
}

// ImportFromSheet imports a spreadsheet range. An empty range reuses the last one.
func (e *Engine) ImportFromSheet(ctx context.Context, sheetRange string) (int, string, error) {
	if err := e.ready(); err != nil {
		return 0, "", err
	}
	sheetRange = strings.TrimSpace(sheetRange)
	if sheetRange == "" {
		sheetRange = e.pref(ctx, repository.PrefLastSheetRange, catalog.DefaultSheetRange)
	}
	n, err := e.catalog.ImportFromRange(ctx, e.deps.Sheets, sheetRange)
	if err != nil {
		return 0, sheetRange, err
	}
	e.setPref(ctx, repository.PrefLastSheetRange, sheetRange)
	return n, sheetRange, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// CatalogCache is the durable catalog copy of one user.
type CatalogCache struct {
	db     *sql.DB
	userID string
}

// CatalogCache scopes the catalog table to a user.
func (s *Store) CatalogCache(userID string) *CatalogCache {
	return &CatalogCache{db: s.db, userID: userID}
}

// GetAll returns every cached product ordered by barcode.
func (c *CatalogCache) GetAll(ctx context.Context) ([]models.CatalogProduct, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT payload FROM catalog_products WHERE user_id = ? ORDER BY barcode`, c.userID)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.CatalogProduct
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var p models.CatalogProduct
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Get returns one cached product.
func (c *CatalogCache) Get(ctx context.Context, barcode string) (models.CatalogProduct, bool, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM catalog_products WHERE user_id = ? AND barcode = ?`, c.userID, barcode).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CatalogProduct{}, false, nil
	}
	if err != nil {
		return models.CatalogProduct{}, false, fmt.Errorf("select product %s: %w", barcode, err)
	}
	var p models.CatalogProduct
	if err := json.Unmarshal(payload, &p); err != nil {
		return models.CatalogProduct{}, false, fmt.Errorf("decode product %s: %w", barcode, err)
	}
	return p, true, nil
}

// Put upserts one product.
func (c *CatalogCache) Put(ctx context.Context, product models.CatalogProduct) error {
	return c.PutMany(ctx, []models.CatalogProduct{product})
}

// PutMany upserts several products in one transaction.
func (c *CatalogCache) PutMany(ctx context.Context, products []models.CatalogProduct) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		return putProducts(ctx, tx, c.userID, products)
	})
}

// DeleteAll empties the cache of the user.
func (c *CatalogCache) DeleteAll(ctx context.Context) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		return deleteProducts(ctx, tx, c.userID)
	})
}

// ReplaceAll clears and repopulates the cache in one transaction, so readers see
// either the old catalog or the new one.
func (c *CatalogCache) ReplaceAll(ctx context.Context, products []models.CatalogProduct) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteProducts(ctx, tx, c.userID); err != nil {
			return err
		}
		return putProducts(ctx, tx, c.userID, products)
	})
}

func (c *CatalogCache) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (retErr error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func deleteProducts(ctx context.Context, tx *sql.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_products WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete products: %w", err)
	}
	return nil
}

func putProducts(ctx context.Context, tx *sql.Tx, userID string, products []models.CatalogProduct) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO catalog_products(user_id, barcode, payload) VALUES(?, ?, ?)
		ON CONFLICT(user_id, barcode) DO UPDATE SET payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, p := range products {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode product %s: %w", p.Barcode, err)
		}
		if _, err := stmt.ExecContext(ctx, userID, p.Barcode, payload); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Barcode, err)
		}
	}
	return nil
}

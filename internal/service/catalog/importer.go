package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

const dateLayout = "2006-01-02"

// DefaultSheetRange is read when the caller gives no range and none was used before.
const DefaultSheetRange = "Catalog!A:E"

// RangeReader reads a rectangular range of cells, e.g. a spreadsheet tab.
type RangeReader interface {
	ReadRange(ctx context.Context, sheetRange string) ([][]interface{}, error)
}

// ParseRows turns spreadsheet rows into products. Columns are barcode, description,
// provider, stock and expiration date (YYYY-MM-DD, optional). Rows without a barcode
// or with a non-numeric stock are skipped, which also drops a header row.
func ParseRows(rows [][]interface{}, logger *zap.Logger) []models.CatalogProduct {
	if logger == nil {
		logger = zap.NewNop()
	}

	products := make([]models.CatalogProduct, 0, len(rows))
	for i, row := range rows {
		if len(row) < 1 {
			continue
		}
		barcode := cell(row, 0)
		if barcode == "" {
			continue
		}

		stock := 0
		if raw := cell(row, 3); raw != "" {
			qty, err := parseInt(raw)
			if err != nil || qty < 0 {
				logger.Debug("skip catalog row with invalid stock", zap.Int("row", i+1), zap.String("value", raw))
				continue
			}
			stock = qty
		}

		p := models.CatalogProduct{
			Barcode:     barcode,
			Description: cell(row, 1),
			Provider:    cell(row, 2),
			Stock:       stock,
		}
		if raw := cell(row, 4); raw != "" {
			date, err := parseDate(raw)
			if err != nil {
				logger.Debug("ignore invalid expiration date", zap.Int("row", i+1), zap.String("value", raw), zap.Error(err))
			} else {
				p.ExpirationDate = &date
			}
		}
		products = append(products, p)
	}
	return products
}

// ImportFromRange reads sheetRange and imports the parsed products.
func (c *Cache) ImportFromRange(ctx context.Context, reader RangeReader, sheetRange string) (int, error) {
	if reader == nil {
		return 0, fmt.Errorf("%w: spreadsheet import is not configured", models.ErrUnavailable)
	}
	if sheetRange == "" {
		sheetRange = DefaultSheetRange
	}
	var rows [][]interface{}
	err := c.remoteCall(ctx, "catalog.read_sheet", func(ctx context.Context) error {
		var err error
		rows, err = reader.ReadRange(ctx, sheetRange)
		return err
	})
	if err != nil {
		return 0, err
	}
	products := ParseRows(rows, c.logger)
	if len(products) == 0 {
		return 0, models.InvalidInput("range %s holds no importable rows", sheetRange)
	}
	return c.Import(ctx, products)
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

func parseDate(str string) (time.Time, error) {
	if str == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if len(str) > 10 {
		str = str[:10]
	}
	return time.Parse(dateLayout, str)
}

func parseInt(str string) (int, error) {
	if str == "" {
		return 0, fmt.Errorf("empty numeric value")
	}
	return strconv.Atoi(str)
}

package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseField(t *testing.T) {
	f, err := ParseField("")
	require.NoError(t, err)
	assert.Equal(t, FieldCount, f)

	f, err = ParseField("stock")
	require.NoError(t, err)
	assert.Equal(t, FieldStock, f)

	_, err = ParseField("price")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSummarize(t *testing.T) {
	s := Summarize("A", []CountingListItem{
		{Barcode: "1", Count: 3, Stock: 5},
		{Barcode: "2", Count: 7, Stock: 5, Dirty: true},
		{Barcode: "3", Count: 4, Stock: 4},
	})
	assert.Equal(t, ListSummary{
		WarehouseID:  "A",
		Items:        3,
		CountedUnits: 14,
		StockUnits:   14,
		OverStock:    1,
		UnderStock:   1,
		Matching:     1,
		Dirty:        1,
	}, s)
}

func TestUnavailable(t *testing.T) {
	assert.NoError(t, Unavailable("op", nil))

	err := Unavailable("items.put", errors.New("dial tcp: refused"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "items.put")

	assert.Same(t, err, Unavailable("items.list", err))
}

func TestProductValidate(t *testing.T) {
	assert.NoError(t, CatalogProduct{Barcode: "1", Stock: 0}.Validate())
	assert.ErrorIs(t, CatalogProduct{Stock: 1}.Validate(), ErrInvalidInput)
	assert.ErrorIs(t, CatalogProduct{Barcode: "1", Stock: -1}.Validate(), ErrInvalidInput)
}

func TestItemHelpers(t *testing.T) {
	item := NewItemFromProduct("A", CatalogProduct{Barcode: "1", Description: "Tea", Provider: "acme", Stock: 2}, 3, time.Time{})
	assert.Equal(t, ItemKey{WarehouseID: "A", Barcode: "1"}, item.Key())
	assert.True(t, item.OverStock())

	unknown := NewUnknownItem("A", "9", 1, time.Time{})
	assert.Equal(t, UnknownProductDescription, unknown.Description)
	assert.True(t, Warehouse{ID: DefaultWarehouseID}.IsDefault())
}

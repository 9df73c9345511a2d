package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "cache", "stockcount.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMirrorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadMirror(ctx, "u1/A")
	require.NoError(t, err)
	assert.False(t, ok)

	saved := models.MirrorState{
		WarehouseID: "A",
		Items: []models.CountingListItem{
			{Barcode: "1", WarehouseID: "A", Count: 3, Revision: 4, Version: "w4", Dirty: true},
		},
		Baselines: map[string]models.Baseline{"1": {Present: true, Revision: 2, Version: "w2"}},
		SavedAt:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveMirror(ctx, "u1/A", saved))

	saved.Items[0].Count = 4
	require.NoError(t, s.SaveMirror(ctx, "u1/A", saved))

	got, ok, err := s.LoadMirror(ctx, "u1/A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", got.WarehouseID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 4, got.Items[0].Count)
	assert.True(t, got.Items[0].Dirty)
	assert.Equal(t, "w4", got.Items[0].Version)
	assert.Equal(t, models.Baseline{Present: true, Revision: 2, Version: "w2"}, got.Baselines["1"])

	require.NoError(t, s.DeleteMirror(ctx, "u1/A"))
	_, ok, err = s.LoadMirror(ctx, "u1/A")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalogCacheIsScopedPerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice, bob := s.CatalogCache("alice"), s.CatalogCache("bob")

	require.NoError(t, alice.PutMany(ctx, []models.CatalogProduct{
		{Barcode: "2", Description: "Coffee", Stock: 1},
		{Barcode: "1", Description: "Tea", Stock: 2},
	}))
	require.NoError(t, bob.Put(ctx, models.CatalogProduct{Barcode: "1", Description: "Milk"}))

	all, err := alice.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].Barcode)
	assert.Equal(t, "Tea", all[0].Description)

	p, ok, err := bob.Get(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Milk", p.Description)

	_, ok, err = bob.Get(ctx, "2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, alice.ReplaceAll(ctx, []models.CatalogProduct{{Barcode: "3", Stock: 9}}))
	all, err = alice.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "3", all[0].Barcode)

	require.NoError(t, alice.DeleteAll(ctx))
	all, err = alice.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	all, err = bob.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPrefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	prefs := s.Prefs()

	v, err := prefs.Get(ctx, "stockcount:u1:lastWarehouse", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", v)

	require.NoError(t, prefs.Set(ctx, "stockcount:u1:lastWarehouse", "A"))
	require.NoError(t, prefs.Set(ctx, "stockcount:u1:lastWarehouse", "B"))
	v, err = prefs.Get(ctx, "stockcount:u1:lastWarehouse", "default")
	require.NoError(t, err)
	assert.Equal(t, "B", v)
}

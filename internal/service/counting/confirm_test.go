package counting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

func TestRequiresConfirmation(t *testing.T) {
	tests := []struct {
		name   string
		policy OverflowPolicy
		prev   int
		next   int
		stock  int
		want   bool
	}{
		{"below stock", ConfirmOnCrossing, 3, 4, 5, false},
		{"reaches stock", ConfirmOnCrossing, 4, 5, 5, false},
		{"crosses stock", ConfirmOnCrossing, 5, 6, 5, true},
		{"set jumps over stock", ConfirmOnCrossing, 0, 9, 5, true},
		{"already over stock", ConfirmOnCrossing, 6, 7, 5, false},
		{"zero stock never asks", ConfirmOnCrossing, 0, 1, 0, false},
		{"decrease while over", ConfirmOnCrossing, 8, 7, 5, false},
		{"every overflow asks again", ConfirmEveryOverflow, 6, 7, 5, true},
		{"every overflow decrease", ConfirmEveryOverflow, 8, 7, 5, false},
		{"every overflow zero stock", ConfirmEveryOverflow, 1, 2, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.RequiresConfirmation(tt.prev, tt.next, tt.stock))
		})
	}
}

func TestGateHoldsOneConfirmation(t *testing.T) {
	g := NewGate()
	assert.Equal(t, StateIdle, g.State())
	assert.Nil(t, g.Pending())

	first := models.PendingConfirmation{WarehouseID: "A", Barcode: "1", ProposedValue: 6}
	require.NoError(t, g.Propose(first))
	assert.Equal(t, StateAwaitingConfirmation, g.State())

	err := g.Propose(models.PendingConfirmation{WarehouseID: "A", Barcode: "2"})
	assert.ErrorIs(t, err, models.ErrConflictPending)
	assert.Equal(t, "1", g.Pending().Barcode)

	_, blocked := g.Blocks(models.ItemKey{WarehouseID: "A", Barcode: "1"})
	assert.True(t, blocked)
	_, blocked = g.Blocks(models.ItemKey{WarehouseID: "A", Barcode: "2"})
	assert.False(t, blocked)
	_, blocked = g.Blocks(models.ItemKey{WarehouseID: "B", Barcode: "1"})
	assert.False(t, blocked)

	released, ok := g.Release()
	require.True(t, ok)
	assert.Equal(t, first, released)
	assert.Equal(t, StateIdle, g.State())

	_, ok = g.Release()
	assert.False(t, ok)
}

func TestOverflowConfirmed(t *testing.T) {
	f := newFixture(t, product("111", 5))
	f.attach(t, "A")
	ctx := context.Background()

	_, err := f.store.ApplySet(ctx, "", "111", models.FieldCount, 5, false)
	require.NoError(t, err)

	res, err := f.store.ApplyDelta(ctx, "", "111", models.FieldCount, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaitingConfirmation, res.Outcome)
	require.NotNil(t, res.Pending)
	assert.Equal(t, 5, res.Pending.PreviousValue)
	assert.Equal(t, 6, res.Pending.ProposedValue)
	assert.Equal(t, 5, res.Pending.Stock)
	assert.Equal(t, models.ActionIncrement, res.Pending.Action)
	assert.Equal(t, StateAwaitingConfirmation, f.store.GateState())

	item, _ := f.store.Item("111")
	assert.Equal(t, 5, item.Count)
	assert.Equal(t, 5, f.remoteItems(t, "A")["111"].Count)

	res, err = f.store.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 6, res.Item.Count)
	assert.Equal(t, StateIdle, f.store.GateState())
	item, _ = f.store.Item("111")
	assert.Equal(t, 6, item.Count)

	// The overflow was acknowledged once; counting on needs no new confirmation.
	res, err = f.store.ApplyDelta(ctx, "", "111", models.FieldCount, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 7, res.Item.Count)

	f.rec.mu.Lock()
	conflicts := append([]*models.PendingConfirmation(nil), f.rec.conflicts...)
	f.rec.mu.Unlock()
	require.Len(t, conflicts, 2)
	assert.Equal(t, "111", conflicts[0].Barcode)
	assert.Nil(t, conflicts[1])
}

func TestOverflowCancelled(t *testing.T) {
	f := newFixture(t, product("111", 5))
	f.attach(t, "A")
	ctx := context.Background()

	_, err := f.store.ApplySet(ctx, "", "111", models.FieldCount, 5, false)
	require.NoError(t, err)
	_, err = f.store.ApplyDelta(ctx, "", "111", models.FieldCount, 1)
	require.NoError(t, err)

	p, err := f.store.Cancel()
	require.NoError(t, err)
	assert.Equal(t, 6, p.ProposedValue)
	assert.Nil(t, f.store.Pending())

	item, _ := f.store.Item("111")
	assert.Equal(t, 5, item.Count)

	_, err = f.store.Cancel()
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.store.Confirm(ctx)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSetAboveStockOnNewItemAsks(t *testing.T) {
	f := newFixture(t, product("111", 5))
	f.attach(t, "A")
	ctx := context.Background()

	res, err := f.store.ApplySet(ctx, "", "111", models.FieldCount, 9, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAwaitingConfirmation, res.Outcome)
	assert.Nil(t, res.Item)
	assert.Equal(t, models.ActionSet, res.Pending.Action)
	assert.Empty(t, f.store.Items())

	res, err = f.store.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Item.Count)
	assert.Equal(t, 5, res.Item.Stock)
	assert.Equal(t, "Product 111", res.Item.Description)
}

func TestPendingConfirmationBlocks(t *testing.T) {
	f := newFixture(t, product("a", 1), product("b", 100), product("c", 1))
	f.attach(t, "A")
	ctx := context.Background()

	for _, code := range []string{"a", "c"} {
		_, err := f.store.ApplyDelta(ctx, "", code, models.FieldCount, 1)
		require.NoError(t, err)
	}
	res, err := f.store.ApplyDelta(ctx, "", "a", models.FieldCount, 1)
	require.NoError(t, err)
	require.Equal(t, OutcomeAwaitingConfirmation, res.Outcome)

	_, err = f.store.ApplyDelta(ctx, "", "a", models.FieldCount, 1)
	assert.ErrorIs(t, err, models.ErrConflictPending)
	_, err = f.store.ApplyDelta(ctx, "", "a", models.FieldCount, -1)
	assert.ErrorIs(t, err, models.ErrConflictPending)
	_, err = f.store.Delete(ctx, "", "a")
	assert.ErrorIs(t, err, models.ErrConflictPending)

	res, err = f.store.ApplyDelta(ctx, "", "b", models.FieldCount, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	_, err = f.store.ApplyDelta(ctx, "", "c", models.FieldCount, 1)
	assert.ErrorIs(t, err, models.ErrConflictPending)

	_, err = f.store.Clear(ctx, "")
	assert.ErrorIs(t, err, models.ErrConflictPending)
	_, err = f.store.StartByProvider(ctx, "", []string{"acme"})
	assert.ErrorIs(t, err, models.ErrConflictPending)
	_, err = f.store.RefreshFromCatalog(ctx, "")
	assert.ErrorIs(t, err, models.ErrConflictPending)

	assert.Equal(t, "a", f.store.Pending().Barcode)
	item, _ := f.store.Item("c")
	assert.Equal(t, 1, item.Count)
}

func TestAttachDiscardsPendingConfirmation(t *testing.T) {
	f := newFixture(t, product("111", 1))
	f.attach(t, "A")
	ctx := context.Background()

	_, err := f.store.ApplyDelta(ctx, "", "111", models.FieldCount, 1)
	require.NoError(t, err)
	_, err = f.store.ApplyDelta(ctx, "", "111", models.FieldCount, 1)
	require.NoError(t, err)
	require.NotNil(t, f.store.Pending())

	f.attach(t, "B")
	assert.Nil(t, f.store.Pending())
	assert.Equal(t, StateIdle, f.store.GateState())
}

func TestConfirmEveryOverflowPolicy(t *testing.T) {
	f := newFixture(t, product("111", 1))
	f.store = f.newStore(t, ConfirmEveryOverflow)
	f.attach(t, "A")
	ctx := context.Background()

	_, err := f.store.ApplyDelta(ctx, "", "111", models.FieldCount, 1)
	require.NoError(t, err)
	for want := 2; want <= 3; want++ {
		res, err := f.store.ApplyDelta(ctx, "", "111", models.FieldCount, 1)
		require.NoError(t, err)
		require.Equal(t, OutcomeAwaitingConfirmation, res.Outcome)
		res, err = f.store.Confirm(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, res.Item.Count)
	}

	res, err := f.store.ApplyDelta(ctx, "", "111", models.FieldCount, -1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 2, res.Item.Count)
}

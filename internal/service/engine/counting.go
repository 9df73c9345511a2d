package engine

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/counting"
)

// Scan counts one barcode from the scanner. Repeats inside the dedup window are
// reported as not accepted and change nothing.
func (e *Engine) Scan(ctx context.Context, barcode string) (ScanResult, error) {
	if err := e.ready(); err != nil {
		return ScanResult{}, err
	}
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return ScanResult{}, models.InvalidInput("barcode must not be empty")
	}
	if !e.dedup.ShouldAccept(barcode) {
		e.deps.Metrics.Scan(false)
		e.logger.Debug("duplicate scan ignored", zap.String("barcode", barcode))
		return ScanResult{Accepted: false, Result: counting.Result{Outcome: counting.OutcomeUnchanged, Reason: "duplicate scan"}}, nil
	}
	e.deps.Metrics.Scan(true)
	res, err := e.counting.ApplyDelta(ctx, "", barcode, models.FieldCount, 1)
	if err != nil {
		return ScanResult{Accepted: true}, err
	}
	return ScanResult{Accepted: true, Result: res}, nil
}

// Items returns the list of the current warehouse.
func (e *Engine) Items() ([]models.CountingListItem, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.counting.Items(), nil
}

// Item returns one item of the current list.
func (e *Engine) Item(barcode string) (models.CountingListItem, error) {
	if err := e.ready(); err != nil {
		return models.CountingListItem{}, err
	}
	return e.counting.Item(barcode)
}

// Summary reconciles the current list against stock.
func (e *Engine) Summary() (models.ListSummary, error) {
	if err := e.ready(); err != nil {
		return models.ListSummary{}, err
	}
	return e.counting.Summary(), nil
}

// ApplyDelta adds delta to the count or stock of barcode in the current warehouse.
func (e *Engine) ApplyDelta(ctx context.Context, barcode string, field models.Field, delta int) (counting.Result, error) {
	if err := e.ready(); err != nil {
		return counting.Result{}, err
	}
	return e.counting.ApplyDelta(ctx, "", barcode, field, delta)
}

// ApplySet parses typed input ("12", "+3", "-2") and sets the count or stock of barcode.
func (e *Engine) ApplySet(ctx context.Context, barcode string, field models.Field, raw string) (counting.Result, error) {
	if err := e.ready(); err != nil {
		return counting.Result{}, err
	}
	value, relative, err := counting.ParseSetInput(raw)
	if err != nil {
		return counting.Result{}, err
	}
	return e.counting.ApplySet(ctx, "", barcode, field, value, relative)
}

// DeleteItem removes barcode from the current list.
func (e *Engine) DeleteItem(ctx context.Context, barcode string) (counting.Result, error) {
	if err := e.ready(); err != nil {
		return counting.Result{}, err
	}
	return e.counting.Delete(ctx, "", barcode)
}

// ClearList empties the current list in one batch.
func (e *Engine) ClearList(ctx context.Context) (counting.Result, error) {
	if err := e.ready(); err != nil {
		return counting.Result{}, err
	}
	return e.counting.Clear(ctx, "")
}

// StartByProvider restarts the current list with every product of providers at count zero.
func (e *Engine) StartByProvider(ctx context.Context, providers []string) (counting.Result, error) {
	if err := e.ready(); err != nil {
		return counting.Result{}, err
	}
	return e.counting.StartByProvider(ctx, "", providers)
}

// RefreshFromCatalog re-snapshots catalog data into the current list.
func (e *Engine) RefreshFromCatalog(ctx context.Context) (counting.Result, error) {
	if err := e.ready(); err != nil {
		return counting.Result{}, err
	}
	return e.counting.RefreshFromCatalog(ctx, "")
}

// Pending returns the outstanding confirmation, or nil.
func (e *Engine) Pending() (*models.PendingConfirmation, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.counting.Pending(), nil
}

// Confirm applies the outstanding confirmation.
func (e *Engine) Confirm(ctx context.Context) (counting.Result, error) {
	if err := e.ready(); err != nil {
		return counting.Result{}, err
	}
	return e.counting.Confirm(ctx)
}

// Cancel drops the outstanding confirmation.
func (e *Engine) Cancel() (models.PendingConfirmation, error) {
	if err := e.ready(); err != nil {
		return models.PendingConfirmation{}, err
	}
	return e.counting.Cancel()
}

package counting

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// Outcome tells the caller what happened to a mutation.
type Outcome string

const (
	// OutcomeApplied means the remote store accepted the write.
	OutcomeApplied Outcome = "applied"
	// OutcomeProvisional means the write only reached the local mirror and waits for reconciliation.
	OutcomeProvisional Outcome = "provisional"
	// OutcomeAwaitingConfirmation means the write is held by the confirmation gate.
	OutcomeAwaitingConfirmation Outcome = "awaiting_confirmation"
	// OutcomeUnchanged means the mutation did not change anything.
	OutcomeUnchanged Outcome = "unchanged"
)

// Result is the typed answer of every mutation.
type Result struct {
	Outcome  Outcome                     `json:"outcome"`
	Item     *models.CountingListItem    `json:"item,omitempty"`
	Pending  *models.PendingConfirmation `json:"pending,omitempty"`
	Affected int                         `json:"affected,omitempty"`
	Reason   string                      `json:"reason,omitempty"`
}

// ApplyDelta adds delta to the count or stock of barcode. Values are clamped at zero.
// The first positive delta on a barcode missing from the list creates it from the catalog.
func (s *Store) ApplyDelta(ctx context.Context, warehouseID, barcode string, field models.Field, delta int) (Result, error) {
	if delta == 0 {
		return Result{}, models.InvalidInput("delta must not be zero")
	}
	action := models.ActionIncrement
	if delta < 0 {
		action = models.ActionDecrement
	}
	return s.mutate(ctx, warehouseID, barcode, field, action, func(prev int) int {
		return clampZero(prev + delta)
	})
}

// ApplySet sets the count or stock of barcode. With relative the value is added to the
// current one and the result clamped at zero; otherwise a negative value is rejected.
func (s *Store) ApplySet(ctx context.Context, warehouseID, barcode string, field models.Field, value int, relative bool) (Result, error) {
	if !relative && value < 0 {
		return Result{}, models.InvalidInput("value must not be negative, got %d", value)
	}
	return s.mutate(ctx, warehouseID, barcode, field, models.ActionSet, func(prev int) int {
		if relative {
			return clampZero(prev + value)
		}
		return value
	})
}

func (s *Store) mutate(ctx context.Context, warehouseID, barcode string, field models.Field, action models.Action, compute func(prev int) int) (Result, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return Result{}, models.InvalidInput("barcode must not be empty")
	}
	if field == "" {
		field = models.FieldCount
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	wh, err := s.activeWarehouse(warehouseID)
	if err != nil {
		return Result{}, err
	}
	if p, blocked := s.gate.Blocks(models.ItemKey{WarehouseID: wh, Barcode: barcode}); blocked {
		return Result{}, models.ConflictPending(p)
	}

	s.mu.Lock()
	cur, present, rev := s.baselineLocked(barcode)
	s.mu.Unlock()

	if field == models.FieldStock {
		return s.mutateStock(ctx, wh, barcode, cur, present, rev, compute)
	}

	item := cur
	if !present {
		if action == models.ActionDecrement {
			return Result{}, models.NotFound("barcode %s is not in the list of warehouse %s", barcode, wh)
		}
		item = s.newItem(ctx, wh, barcode)
	}

	prev := item.Count
	next := compute(prev)
	if present && next == prev {
		return Result{Outcome: OutcomeUnchanged, Item: &cur}, nil
	}

	if s.opts.Policy.RequiresConfirmation(prev, next, item.Stock) {
		p := models.PendingConfirmation{
			WarehouseID:   wh,
			Barcode:       barcode,
			Description:   item.Description,
			Action:        action,
			PreviousValue: prev,
			ProposedValue: next,
			Stock:         item.Stock,
			CreatedAt:     s.now(),
		}
		if err := s.gate.Propose(p); err != nil {
			return Result{}, err
		}
		s.opts.Metrics.Confirmation("requested")
		s.logger.Info("count above stock awaits confirmation",
			zap.String("barcode", barcode), zap.Int("previous", prev), zap.Int("proposed", next), zap.Int("stock", item.Stock))
		s.mu.Lock()
		s.notifyConflictLocked(&p)
		s.mu.Unlock()
		res := Result{Outcome: OutcomeAwaitingConfirmation, Pending: &p}
		if present {
			res.Item = &cur
		}
		return res, nil
	}

	item.Count = next
	return s.write(ctx, "items.put", wh, item, rev), nil
}

// mutateStock writes the new stock through the catalog first, then refreshes the snapshot
// held by the list item.
func (s *Store) mutateStock(ctx context.Context, wh, barcode string, cur models.CountingListItem, present bool, rev int64, compute func(prev int) int) (Result, error) {
	product, err := s.catalog.Lookup(ctx, barcode)
	if err != nil {
		return Result{}, err
	}
	next := compute(product.Stock)
	if next == product.Stock && (!present || cur.Stock == next) {
		res := Result{Outcome: OutcomeUnchanged}
		if present {
			res.Item = &cur
		}
		return res, nil
	}
	if next != product.Stock {
		if _, err := s.catalog.SetStock(ctx, barcode, next); err != nil {
			return Result{}, err
		}
	}
	if !present {
		return Result{Outcome: OutcomeApplied, Reason: "catalog stock updated, barcode is not in the current list"}, nil
	}
	item := cur
	item.Stock = next
	return s.write(ctx, "items.put_stock", wh, item, rev), nil
}

func (s *Store) newItem(ctx context.Context, wh, barcode string) models.CountingListItem {
	p, err := s.catalog.Lookup(ctx, barcode)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("catalog lookup failed, using placeholder", zap.String("barcode", barcode), zap.Error(err))
		}
		return models.NewUnknownItem(wh, barcode, 0, s.now())
	}
	return models.NewItemFromProduct(wh, p, 0, s.now())
}

// write stamps item on top of revision rev and sends it down the write path.
func (s *Store) write(ctx context.Context, op, wh string, item models.CountingListItem, rev int64) Result {
	item.WarehouseID = wh
	item.Revision = rev + 1
	item.LastUpdated = s.now()
	item.Dirty = false

	ops := []models.ItemOp{models.PutOp(item)}
	provisional, reason := s.commit(ctx, op, wh, ops)
	item = ops[0].Item
	if provisional {
		item.Dirty = true
		return Result{Outcome: OutcomeProvisional, Item: &item, Affected: 1, Reason: reason}
	}
	return Result{Outcome: OutcomeApplied, Item: &item, Affected: 1}
}

// Confirm applies the pending proposal through the normal write path.
func (s *Store) Confirm(ctx context.Context) (Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p, ok := s.gate.Release()
	if !ok {
		return Result{}, models.NotFound("no confirmation is pending")
	}
	s.mu.Lock()
	s.notifyConflictLocked(nil)
	cur, present, rev := s.baselineLocked(p.Barcode)
	s.mu.Unlock()
	s.opts.Metrics.Confirmation("confirmed")

	item := cur
	if !present {
		item = s.newItem(ctx, p.WarehouseID, p.Barcode)
	}
	item.Count = p.ProposedValue
	s.logger.Info("count above stock confirmed", zap.String("barcode", p.Barcode), zap.Int("count", p.ProposedValue))
	res := s.write(ctx, "items.confirm", p.WarehouseID, item, rev)
	res.Pending = &p
	return res, nil
}

// Cancel drops the pending proposal without touching the list.
func (s *Store) Cancel() (models.PendingConfirmation, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	p, ok := s.gate.Release()
	if !ok {
		return models.PendingConfirmation{}, models.NotFound("no confirmation is pending")
	}
	s.mu.Lock()
	s.notifyConflictLocked(nil)
	s.mu.Unlock()
	s.opts.Metrics.Confirmation("cancelled")
	s.logger.Info("count above stock cancelled", zap.String("barcode", p.Barcode))
	return p, nil
}

// Delete removes barcode from the list.
func (s *Store) Delete(ctx context.Context, warehouseID, barcode string) (Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	wh, err := s.activeWarehouse(warehouseID)
	if err != nil {
		return Result{}, err
	}
	if p, blocked := s.gate.Blocks(models.ItemKey{WarehouseID: wh, Barcode: barcode}); blocked {
		return Result{}, models.ConflictPending(p)
	}
	s.mu.Lock()
	_, present, _ := s.baselineLocked(barcode)
	s.mu.Unlock()
	if !present {
		return Result{}, models.NotFound("barcode %s is not in the list of warehouse %s", barcode, wh)
	}
	return s.commitResult(ctx, "items.delete", wh, []models.ItemOp{models.DeleteOp(barcode)}), nil
}

// Clear removes every item of the list in one batch, observed as a single change.
func (s *Store) Clear(ctx context.Context, warehouseID string) (Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	wh, err := s.guardBulk(warehouseID)
	if err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	view := s.viewLocked()
	s.mu.Unlock()
	if len(view) == 0 {
		return Result{Outcome: OutcomeUnchanged}, nil
	}
	ops := make([]models.ItemOp, 0, len(view))
	for _, barcode := range sortedKeys(view) {
		ops = append(ops, models.DeleteOp(barcode))
	}
	return s.commitResult(ctx, "items.clear", wh, ops), nil
}

// StartByProvider replaces the list with one zero-count item per catalog product of the
// given providers, in one batch.
func (s *Store) StartByProvider(ctx context.Context, warehouseID string, providers []string) (Result, error) {
	wanted := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		if p = strings.TrimSpace(p); p != "" {
			wanted[strings.ToLower(p)] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return Result{}, models.InvalidInput("at least one provider is required")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	wh, err := s.guardBulk(warehouseID)
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	next := make(map[string]models.CountingListItem)
	for _, p := range s.catalog.Products() {
		if _, ok := wanted[strings.ToLower(strings.TrimSpace(p.Provider))]; ok {
			next[p.Barcode] = models.NewItemFromProduct(wh, p, 0, now)
		}
	}
	if len(next) == 0 {
		return Result{}, models.NotFound("no catalog product belongs to providers %s", strings.Join(providers, ", "))
	}

	s.mu.Lock()
	view := s.viewLocked()
	var ops []models.ItemOp
	for _, barcode := range sortedKeys(view) {
		if _, keep := next[barcode]; !keep {
			ops = append(ops, models.DeleteOp(barcode))
		}
	}
	for _, barcode := range sortedKeys(next) {
		item := next[barcode]
		_, _, rev := s.baselineLocked(barcode)
		item.Revision = rev + 1
		ops = append(ops, models.PutOp(item))
	}
	s.mu.Unlock()

	res := s.commitResult(ctx, "items.start_by_provider", wh, ops)
	res.Affected = len(next)
	return res, nil
}

// RefreshFromCatalog re-snapshots description, provider and stock of every listed item.
func (s *Store) RefreshFromCatalog(ctx context.Context, warehouseID string) (Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	wh, err := s.guardBulk(warehouseID)
	if err != nil {
		return Result{}, err
	}

	products := make(map[string]models.CatalogProduct)
	for _, p := range s.catalog.Products() {
		products[p.Barcode] = p
	}

	now := s.now()
	s.mu.Lock()
	view := s.viewLocked()
	var ops []models.ItemOp
	for _, barcode := range sortedKeys(view) {
		item := view[barcode]
		p, ok := products[barcode]
		if !ok || (item.Description == p.Description && item.Provider == p.Provider && item.Stock == p.Stock) {
			continue
		}
		item.Description, item.Provider, item.Stock = p.Description, p.Provider, p.Stock
		item.Revision++
		item.LastUpdated = now
		item.Dirty = false
		ops = append(ops, models.PutOp(item))
	}
	s.mu.Unlock()

	if len(ops) == 0 {
		return Result{Outcome: OutcomeUnchanged}, nil
	}
	return s.commitResult(ctx, "items.refresh", wh, ops), nil
}

// guardBulk checks that a list-wide operation may run: the warehouse is active and no
// confirmation is outstanding there.
func (s *Store) guardBulk(warehouseID string) (string, error) {
	wh, err := s.activeWarehouse(warehouseID)
	if err != nil {
		return "", err
	}
	if p := s.gate.Pending(); p != nil && p.WarehouseID == wh {
		return "", models.ConflictPending(*p)
	}
	return wh, nil
}

func (s *Store) commitResult(ctx context.Context, op, wh string, ops []models.ItemOp) Result {
	provisional, reason := s.commit(ctx, op, wh, ops)
	if provisional {
		return Result{Outcome: OutcomeProvisional, Affected: len(ops), Reason: reason}
	}
	return Result{Outcome: OutcomeApplied, Affected: len(ops)}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

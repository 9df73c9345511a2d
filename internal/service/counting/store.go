// Package counting owns the counting list of the active warehouse: the mirror of the
// remote list, the write path that keeps it consistent and the overflow confirmation gate.
//
// The mirror is written only by the remote subscription and by the offline fallback.
// Mutations go to the remote store and come back as notifications.
package counting

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/pkg/metrics"
)

// Remote is the counting list part of the authoritative store.
type Remote interface {
	ListItems(ctx context.Context, userID, warehouseID string) ([]models.CountingListItem, error)
	PutItem(ctx context.Context, userID string, item models.CountingListItem) error
	DeleteItem(ctx context.Context, userID, warehouseID, barcode string) error
	BatchItems(ctx context.Context, userID, warehouseID string, ops []models.ItemOp) error
	SubscribeItems(ctx context.Context, userID, warehouseID string, onChange func(models.ChangeSet), onError func(error)) (func(), error)
}

// Catalog resolves product data for new list items and owns canonical stock.
type Catalog interface {
	Lookup(ctx context.Context, barcode string) (models.CatalogProduct, error)
	Products() []models.CatalogProduct
	SetStock(ctx context.Context, barcode string, stock int) (models.CatalogProduct, error)
}

// Tracker marks remote operations as in flight.
type Tracker interface {
	Begin(op string) func()
}

// Listener receives state changes. Calls happen while the store lock is held and must
// not call back into the store.
type Listener interface {
	CountingListChanged(warehouseID string, items []models.CountingListItem)
	ConflictChanged(pending *models.PendingConfirmation)
	ConnectivityChanged(online bool)
}

// MirrorLoader restores the durable mirror of a warehouse list.
type MirrorLoader interface {
	LoadMirror(ctx context.Context, key string) (models.MirrorState, bool, error)
}

// Persister stores the mirror after every change, coalescing as it sees fit.
type Persister interface {
	Schedule(key string, state models.MirrorState)
}

// Options configures a Store.
type Options struct {
	UserID        string
	RemoteTimeout time.Duration
	Policy        OverflowPolicy
	Listener      Listener
	Mirrors       MirrorLoader
	Persister     Persister
	Metrics       *metrics.Collectors
	Logger        *zap.Logger
	Now           func() time.Time
	// NewVersion stamps every item write. Defaults to random UUIDs.
	NewVersion func() string
}

// written is a write the remote acknowledged but whose notification has not arrived yet.
type written struct {
	item    models.CountingListItem
	deleted bool
}

// Store is the counting session of one user.
type Store struct {
	remote  Remote
	catalog Catalog
	tracker Tracker
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
	gate    *Gate

	// writeMu serializes mutations so each one computes from the previous one's result.
	writeMu sync.Mutex

	mu          sync.Mutex
	warehouseID string
	attached    bool
	gen         uint64
	unsubscribe func()
	online      bool
	mirror      map[string]models.CountingListItem
	baselines   map[string]models.Baseline
	written     map[string]written
}

// NewStore wires a counting session. tracker may be nil.
func NewStore(remote Remote, catalog Catalog, tracker Tracker, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 10 * time.Second
	}
	if opts.NewVersion == nil {
		opts.NewVersion = uuid.NewString
	}
	return &Store{
		remote:    remote,
		catalog:   catalog,
		tracker:   tracker,
		opts:      opts,
		logger:    logger,
		now:       now,
		gate:      NewGate(),
		mirror:    make(map[string]models.CountingListItem),
		baselines: make(map[string]models.Baseline),
		written:   make(map[string]written),
	}
}

// MirrorKey names the durable mirror of a warehouse list.
func MirrorKey(userID, warehouseID string) string {
	return userID + "/" + warehouseID
}

// Attach makes warehouseID the active list. The previous subscription is detached first so
// its late notifications are dropped. The durable mirror is restored immediately; a remote
// failure leaves the store offline on that mirror and is returned as ErrUnavailable.
func (s *Store) Attach(ctx context.Context, warehouseID string) error {
	if warehouseID == "" {
		return models.InvalidInput("warehouse id must not be empty")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.detach()

	state := models.MirrorState{WarehouseID: warehouseID}
	if s.opts.Mirrors != nil {
		restored, ok, err := s.opts.Mirrors.LoadMirror(ctx, MirrorKey(s.opts.UserID, warehouseID))
		if err != nil {
			s.logger.Warn("local mirror unreadable, starting empty", zap.String("warehouse", warehouseID), zap.Error(err))
		} else if ok {
			state = restored
		}
	}

	s.mu.Lock()
	s.warehouseID = warehouseID
	s.attached = true
	s.mirror = make(map[string]models.CountingListItem, len(state.Items))
	s.baselines = make(map[string]models.Baseline)
	s.written = make(map[string]written)
	for _, item := range state.Items {
		if item.WarehouseID != warehouseID {
			continue
		}
		s.mirror[item.Barcode] = item
	}
	for barcode, base := range state.Baselines {
		s.baselines[barcode] = base
	}
	s.emitLocked(false)
	s.mu.Unlock()

	s.logger.Info("warehouse attached", zap.String("warehouse", warehouseID), zap.Int("restored", len(state.Items)), zap.Int("dirty", len(state.Baselines)))
	return s.connect(ctx)
}

// Detach drops the subscription and forgets the active warehouse.
func (s *Store) Detach() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.detach()
}

func (s *Store) detach() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.gen++
	s.attached = false
	wasOnline := s.online
	s.online = false
	if p, ok := s.gate.Release(); ok {
		s.logger.Info("pending confirmation discarded on detach", zap.String("barcode", p.Barcode))
		s.opts.Metrics.Confirmation("discarded")
		s.notifyConflictLocked(nil)
	}
	if wasOnline {
		s.notifyConnectivityLocked(false)
	}
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// connect pushes dirty items the remote has not changed since, then subscribes. The
// subscription snapshot replaces the mirror, which settles every dirty item: remote wins.
// Callers hold writeMu.
func (s *Store) connect(ctx context.Context) error {
	s.mu.Lock()
	warehouseID := s.warehouseID
	dirty := len(s.baselines) > 0
	s.mu.Unlock()

	if dirty {
		var remoteItems []models.CountingListItem
		err := s.remoteCall(ctx, "items.list", func(ctx context.Context) error {
			var err error
			remoteItems, err = s.remote.ListItems(ctx, s.opts.UserID, warehouseID)
			return err
		})
		if err != nil {
			s.markOffline(err)
			return err
		}

		s.mu.Lock()
		ops := s.reconcileOpsLocked(remoteItems)
		s.mu.Unlock()

		if len(ops) > 0 {
			s.stampVersions(ops)
			err := s.remoteCall(ctx, "items.reconcile", func(ctx context.Context) error {
				return s.remote.BatchItems(ctx, s.opts.UserID, warehouseID, ops)
			})
			if err != nil {
				s.markOffline(err)
				return err
			}
			s.logger.Info("offline changes pushed", zap.String("warehouse", warehouseID), zap.Int("ops", len(ops)))
		}
	}

	s.mu.Lock()
	old := s.unsubscribe
	s.unsubscribe = nil
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	if old != nil {
		old()
	}

	var unsub func()
	err := s.remoteCall(ctx, "items.subscribe", func(ctx context.Context) error {
		var err error
		unsub, err = s.remote.SubscribeItems(ctx, s.opts.UserID, warehouseID,
			func(cs models.ChangeSet) { s.onChange(gen, cs) },
			func(err error) { s.onError(gen, err) })
		return err
	})
	if err != nil {
		s.markOffline(err)
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsubscribe = unsub
	if !s.online {
		s.online = true
		s.notifyConnectivityLocked(true)
	}
	s.mu.Unlock()
	return nil
}

// reconcileOpsLocked decides, per dirty barcode, whether the local value may be pushed.
// It may only when the remote still holds exactly what we saw before going offline.
func (s *Store) reconcileOpsLocked(remoteItems []models.CountingListItem) []models.ItemOp {
	remote := make(map[string]models.CountingListItem, len(remoteItems))
	for _, item := range remoteItems {
		remote[item.Barcode] = item
	}

	barcodes := make([]string, 0, len(s.baselines))
	for barcode := range s.baselines {
		barcodes = append(barcodes, barcode)
	}
	sort.Strings(barcodes)

	var ops []models.ItemOp
	for _, barcode := range barcodes {
		base := s.baselines[barcode]
		r, present := remote[barcode]
		unchanged := (!base.Present && !present) ||
			(base.Present && present && r.Revision == base.Revision && r.Version == base.Version)
		if !unchanged {
			s.logger.Info("remote changed while offline, local change dropped", zap.String("barcode", barcode))
			continue
		}
		local, ok := s.mirror[barcode]
		switch {
		case ok:
			local.Dirty = false
			ops = append(ops, models.PutOp(local))
		case present:
			ops = append(ops, models.DeleteOp(barcode))
		}
	}
	return ops
}

// Reconcile reconnects an offline session. It is a no-op when online and clean.
func (s *Store) Reconcile(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	attached, online, dirty := s.attached, s.online, len(s.baselines)
	s.mu.Unlock()
	if !attached || (online && dirty == 0) {
		return nil
	}
	return s.connect(ctx)
}

func (s *Store) onChange(gen uint64, cs models.ChangeSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || cs.WarehouseID != s.warehouseID {
		s.logger.Debug("stale notification dropped", zap.String("warehouse", cs.WarehouseID), zap.Int("changes", len(cs.Changes)))
		return
	}

	if cs.Snapshot {
		s.mirror = make(map[string]models.CountingListItem, len(cs.Changes))
		s.baselines = make(map[string]models.Baseline)
		s.written = make(map[string]written)
		for _, ch := range cs.Changes {
			s.applyChangeLocked(ch)
		}
		if !s.online {
			s.online = true
			s.notifyConnectivityLocked(true)
		}
	} else {
		for _, ch := range cs.Changes {
			s.applyChangeLocked(ch)
		}
	}
	s.emitLocked(true)
}

func (s *Store) applyChangeLocked(ch models.ItemChange) {
	switch ch.Op {
	case models.ChangeUpsert:
		item := ch.Item
		if item.WarehouseID != "" && item.WarehouseID != s.warehouseID {
			return
		}
		item.WarehouseID = s.warehouseID
		item.Dirty = false
		s.mirror[item.Barcode] = item
		if w, ok := s.written[item.Barcode]; ok && !w.deleted && item.Revision >= w.item.Revision {
			delete(s.written, item.Barcode)
		}
	case models.ChangeDelete:
		delete(s.mirror, ch.Barcode)
		if w, ok := s.written[ch.Barcode]; ok && w.deleted {
			delete(s.written, ch.Barcode)
		}
	}
	delete(s.baselines, ch.Barcode)
}

func (s *Store) onError(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.logger.Warn("counting list subscription lost", zap.String("warehouse", s.warehouseID), zap.Error(err))
	if s.online {
		s.online = false
		s.notifyConnectivityLocked(false)
	}
}

func (s *Store) markOffline(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online {
		s.logger.Warn("remote store unreachable, counting goes local", zap.Error(err))
		s.online = false
		s.notifyConnectivityLocked(false)
	}
}

func (s *Store) remoteCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.tracker != nil {
		done := s.tracker.Begin(op)
		defer done()
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.opts.Metrics.RemoteFailure(op)
		return models.Unavailable(op, err)
	}
	return nil
}

// commit sends ops to the remote store. When it cannot, the ops are applied to the mirror
// as dirty and the returned reason says so. Callers hold writeMu.
func (s *Store) commit(ctx context.Context, op string, warehouseID string, ops []models.ItemOp) (provisional bool, reason string) {
	s.stampVersions(ops)
	s.mu.Lock()
	online := s.online
	s.mu.Unlock()

	reason = "remote store unreachable"
	if online {
		err := s.remoteCall(ctx, op, func(ctx context.Context) error {
			if len(ops) == 1 {
				switch ops[0].Op {
				case models.ChangeUpsert:
					return s.remote.PutItem(ctx, s.opts.UserID, ops[0].Item)
				case models.ChangeDelete:
					return s.remote.DeleteItem(ctx, s.opts.UserID, warehouseID, ops[0].Barcode)
				}
			}
			return s.remote.BatchItems(ctx, s.opts.UserID, warehouseID, ops)
		})
		if err == nil {
			s.mu.Lock()
			s.recordWrittenLocked(ops)
			s.mu.Unlock()
			return false, ""
		}
		s.markOffline(err)
		reason = err.Error()
	}

	s.mu.Lock()
	s.applyOfflineLocked(ops)
	s.emitLocked(true)
	s.mu.Unlock()
	s.opts.Metrics.OfflineWrite()
	s.logger.Warn("write kept locally", zap.String("op", op), zap.Int("ops", len(ops)), zap.String("reason", reason))
	return true, "saved locally, pending reconciliation: " + reason
}

// stampVersions gives every upsert in ops a fresh write version, in place.
func (s *Store) stampVersions(ops []models.ItemOp) {
	for i := range ops {
		if ops[i].Op == models.ChangeUpsert {
			ops[i].Item.Version = s.opts.NewVersion()
		}
	}
}

// recordWrittenLocked remembers acknowledged writes until their notification catches up.
func (s *Store) recordWrittenLocked(ops []models.ItemOp) {
	for _, op := range ops {
		switch op.Op {
		case models.ChangeUpsert:
			if cur, ok := s.mirror[op.Barcode]; ok && cur.Revision >= op.Item.Revision {
				delete(s.written, op.Barcode)
				continue
			}
			s.written[op.Barcode] = written{item: op.Item}
		case models.ChangeDelete:
			cur, ok := s.mirror[op.Barcode]
			if !ok {
				delete(s.written, op.Barcode)
				continue
			}
			s.written[op.Barcode] = written{item: cur, deleted: true}
		}
	}
}

func (s *Store) applyOfflineLocked(ops []models.ItemOp) {
	for _, op := range ops {
		if _, dirty := s.baselines[op.Barcode]; !dirty {
			cur, present, rev := s.baselineLocked(op.Barcode)
			s.baselines[op.Barcode] = models.Baseline{Present: present, Revision: rev, Version: cur.Version}
		}
		delete(s.written, op.Barcode)
		switch op.Op {
		case models.ChangeUpsert:
			item := op.Item
			item.Dirty = true
			s.mirror[op.Barcode] = item
		case models.ChangeDelete:
			delete(s.mirror, op.Barcode)
		}
	}
}

// baselineLocked returns the freshest known state of a barcode: an acknowledged write
// not yet notified, else the mirror.
func (s *Store) baselineLocked(barcode string) (models.CountingListItem, bool, int64) {
	if w, ok := s.written[barcode]; ok {
		if w.deleted {
			return models.CountingListItem{}, false, w.item.Revision
		}
		return w.item, true, w.item.Revision
	}
	item, ok := s.mirror[barcode]
	return item, ok, item.Revision
}

// viewLocked is the list as the write path sees it.
func (s *Store) viewLocked() map[string]models.CountingListItem {
	view := make(map[string]models.CountingListItem, len(s.mirror))
	for barcode, item := range s.mirror {
		view[barcode] = item
	}
	for barcode, w := range s.written {
		if w.deleted {
			delete(view, barcode)
			continue
		}
		view[barcode] = w.item
	}
	return view
}

func (s *Store) itemsLocked() []models.CountingListItem {
	items := make([]models.CountingListItem, 0, len(s.mirror))
	for _, item := range s.mirror {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Barcode < items[j].Barcode })
	return items
}

func (s *Store) emitLocked(persist bool) {
	items := s.itemsLocked()
	if s.opts.Listener != nil {
		s.opts.Listener.CountingListChanged(s.warehouseID, items)
	}
	if !persist || s.opts.Persister == nil {
		return
	}
	baselines := make(map[string]models.Baseline, len(s.baselines))
	for barcode, base := range s.baselines {
		baselines[barcode] = base
	}
	s.opts.Persister.Schedule(MirrorKey(s.opts.UserID, s.warehouseID), models.MirrorState{
		WarehouseID: s.warehouseID,
		Items:       items,
		Baselines:   baselines,
		SavedAt:     s.now(),
	})
}

func (s *Store) notifyConflictLocked(p *models.PendingConfirmation) {
	if s.opts.Listener != nil {
		s.opts.Listener.ConflictChanged(p)
	}
}

func (s *Store) notifyConnectivityLocked(online bool) {
	if s.opts.Listener != nil {
		s.opts.Listener.ConnectivityChanged(online)
	}
}

// Items returns the mirrored list of the active warehouse ordered by barcode.
func (s *Store) Items() []models.CountingListItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked()
}

// Item returns one mirrored item.
func (s *Store) Item(barcode string) (models.CountingListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.mirror[barcode]
	if !ok {
		return models.CountingListItem{}, models.NotFound("barcode %s is not in the list of warehouse %s", barcode, s.warehouseID)
	}
	return item, nil
}

// WarehouseID returns the active warehouse, empty when detached.
func (s *Store) WarehouseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return ""
	}
	return s.warehouseID
}

// Online reports whether writes currently go to the remote store.
func (s *Store) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// DirtyCount returns how many barcodes wait for reconciliation.
func (s *Store) DirtyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.baselines)
}

// Pending returns the outstanding confirmation, or nil.
func (s *Store) Pending() *models.PendingConfirmation {
	return s.gate.Pending()
}

// GateState returns the state of the confirmation workflow.
func (s *Store) GateState() GateState {
	return s.gate.State()
}

// Summary reconciles the active list against stock.
func (s *Store) Summary() models.ListSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Summarize(s.warehouseID, s.itemsLocked())
}

// activeWarehouse validates the warehouse a mutation targets. Empty means the active one.
func (s *Store) activeWarehouse(warehouseID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return "", errors.Join(models.ErrNoSession, errors.New("no warehouse attached"))
	}
	if warehouseID != "" && warehouseID != s.warehouseID {
		return "", models.InvalidInput("warehouse %s is not the active warehouse %s", warehouseID, s.warehouseID)
	}
	return s.warehouseID, nil
}

// Package engine is the application context of one signed-in user. It wires the scan
// filter, catalog cache, counting store, persistence and sync status together, owns
// their lifecycle and turns their callbacks into events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/repository"
	"github.com/mamadbah2/stockcount/internal/repository/sqlite"
	"github.com/mamadbah2/stockcount/internal/service/catalog"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/events"
	"github.com/mamadbah2/stockcount/internal/service/persistence"
	"github.com/mamadbah2/stockcount/internal/service/scan"
	"github.com/mamadbah2/stockcount/internal/service/syncstatus"
	"github.com/mamadbah2/stockcount/pkg/metrics"
)

// Deps are the shared collaborators every engine is built from.
type Deps struct {
	Remote repository.RemoteStore
	Local  *sqlite.Store
	Prefs  repository.Prefs
	// Sheets is optional; without it sheet import reports ErrUnavailable.
	Sheets  catalog.RangeReader
	Metrics *metrics.Collectors
	Logger  *zap.Logger
}

// Options tune an engine.
type Options struct {
	DedupWindow          time.Duration
	PersistDebounce      time.Duration
	RemoteTimeout        time.Duration
	DefaultWarehouseName string
	Policy               counting.OverflowPolicy
	Now                  func() time.Time
}

// Status is a point-in-time view of the session.
type Status struct {
	UserID      string                      `json:"userId"`
	WarehouseID string                      `json:"warehouseId"`
	Syncing     bool                        `json:"syncing"`
	Online      bool                        `json:"online"`
	Dirty       int                         `json:"dirty"`
	Gate        counting.GateState          `json:"gate"`
	Pending     *models.PendingConfirmation `json:"pending,omitempty"`
	InFlight    map[string]int              `json:"inFlight,omitempty"`
}

// ScanResult is the answer to one scanned barcode.
type ScanResult struct {
	Accepted bool `json:"accepted"`
	counting.Result
}

// Engine is the session of one user. Build it with New, start it with Init and release it
// with Teardown; it cannot be restarted.
type Engine struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	hub    *events.Hub

	mu        sync.Mutex
	userID    string
	started   bool
	stopped   bool
	tracker   *syncstatus.Tracker
	dedup     *scan.Deduplicator
	catalog   *catalog.Cache
	counting  *counting.Store
	persister *persistence.Debouncer[models.MirrorState]
	// known is the warehouse list as last read from the remote store.
	known map[string]models.Warehouse
}

// New builds an idle engine.
func New(deps Deps, opts Options) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultWarehouseName == "" {
		opts.DefaultWarehouseName = "Main warehouse"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		deps:   deps,
		opts:   opts,
		logger: logger,
		hub:    events.NewHub(events.DefaultBuffer, deps.Metrics, logger.Named("events")),
	}
}

// Init starts the session of userID: the catalog is warmed from the local cache and
// synchronized, and the last selected warehouse is attached. An unreachable remote store
// leaves the session running offline.
func (e *Engine) Init(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.InvalidInput("user id must not be empty")
	}

	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already initialised for %s", e.userID)
	}
	e.started = true
	e.userID = userID
	logger := e.logger.With(zap.String("user", userID))
	e.logger = logger

	e.tracker = syncstatus.NewTracker(func(syncing bool) {
		e.hub.Publish(events.SyncStatusChanged, syncing)
	}, e.deps.Metrics, logger.Named("syncstatus"))
	e.dedup = scan.NewDeduplicator(e.opts.DedupWindow)
	e.persister = persistence.NewDebouncer(e.opts.PersistDebounce, func(key string, state models.MirrorState) error {
		return e.deps.Local.SaveMirror(context.Background(), key, state)
	}, logger.Named("persistence"))
	e.catalog = catalog.NewCache(e.deps.Remote, e.deps.Local.CatalogCache(userID), e.tracker, catalog.Options{
		UserID:        userID,
		RemoteTimeout: e.opts.RemoteTimeout,
		OnChange: func(products []models.CatalogProduct) {
			e.hub.Publish(events.CatalogChanged, products)
		},
		Metrics: e.deps.Metrics,
		Logger:  logger.Named("catalog"),
	})
	e.counting = counting.NewStore(e.deps.Remote, e.catalog, e.tracker, counting.Options{
		UserID:        userID,
		RemoteTimeout: e.opts.RemoteTimeout,
		Policy:        e.opts.Policy,
		Listener:      listener{hub: e.hub},
		Mirrors:       e.deps.Local,
		Persister:     e.persister,
		Metrics:       e.deps.Metrics,
		Logger:        logger.Named("counting"),
		Now:           e.opts.Now,
	})
	e.mu.Unlock()

	if err := e.catalog.Load(ctx); err != nil {
		logger.Warn("local catalog not loaded", zap.Error(err))
	}
	if _, status, err := e.catalog.Synchronize(ctx); err != nil {
		logger.Warn("initial catalog sync failed", zap.Error(err))
	} else if status == models.CatalogDegraded {
		logger.Warn("initial catalog sync degraded, using local cache")
	}

	warehouseID := e.pref(ctx, repository.PrefLastWarehouse, models.DefaultWarehouseID)
	if err := e.counting.Attach(ctx, warehouseID); err != nil && !errors.Is(err, models.ErrUnavailable) {
		return fmt.Errorf("attach warehouse %s: %w", warehouseID, err)
	}

	logger.Info("session started", zap.String("warehouse", warehouseID), zap.Bool("online", e.counting.Online()))
	return nil
}

// Teardown detaches the live subscription, flushes pending mirror writes and ends every
// event stream. It is safe to call more than once.
func (e *Engine) Teardown(ctx context.Context) error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	e.counting.Detach()
	err := e.persister.Close()
	if err != nil {
		e.logger.Error("flushing local mirror failed", zap.Error(err))
	}
	e.hub.Close()
	e.logger.Info("session ended")
	return err
}

// ready returns an error unless Init ran and Teardown did not.
func (e *Engine) ready() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.stopped {
		return fmt.Errorf("%w: engine is not running", models.ErrNoSession)
	}
	return nil
}

// UserID returns the user the engine was initialised for.
func (e *Engine) UserID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userID
}

// Subscribe attaches an event consumer. The channel closes on Teardown.
func (e *Engine) Subscribe() (*events.Subscription, func()) {
	return e.hub.Subscribe()
}

// Status reports the sync and confirmation state of the session.
func (e *Engine) Status() (Status, error) {
	if err := e.ready(); err != nil {
		return Status{}, err
	}
	return Status{
		UserID:      e.UserID(),
		WarehouseID: e.counting.WarehouseID(),
		Syncing:     e.tracker.Syncing(),
		Online:      e.counting.Online(),
		Dirty:       e.counting.DirtyCount(),
		Gate:        e.counting.GateState(),
		Pending:     e.counting.Pending(),
		InFlight:    e.tracker.InFlight(),
	}, nil
}

// Reconcile reconnects an offline session and pushes or drops its dirty items.
func (e *Engine) Reconcile(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.counting.Reconcile(ctx)
}

func (e *Engine) pref(ctx context.Context, key, fallback string) string {
	if e.deps.Prefs == nil {
		return fallback
	}
	value, err := e.deps.Prefs.Get(ctx, repository.PrefKey(e.UserID(), key), fallback)
	if err != nil {
		e.logger.Warn("preference not readable", zap.String("key", key), zap.Error(err))
		return fallback
	}
	return value
}

func (e *Engine) setPref(ctx context.Context, key, value string) {
	if e.deps.Prefs == nil {
		return
	}
	if err := e.deps.Prefs.Set(ctx, repository.PrefKey(e.UserID(), key), value); err != nil {
		e.logger.Warn("preference not saved", zap.String("key", key), zap.Error(err))
	}
}

// remoteCall runs a remote operation outside the catalog and counting stores.
func (e *Engine) remoteCall(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	done := e.tracker.Begin(op)
	defer done()
	timeout := e.opts.RemoteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		e.deps.Metrics.RemoteFailure(op)
		return models.Unavailable(op, err)
	}
	return nil
}

// listener turns counting store callbacks into events.
type listener struct {
	hub *events.Hub
}

func (l listener) CountingListChanged(warehouseID string, items []models.CountingListItem) {
	l.hub.Publish(events.CountingListChanged, struct {
		WarehouseID string                    `json:"warehouseId"`
		Items       []models.CountingListItem `json:"items"`
	}{warehouseID, items})
}

func (l listener) ConflictChanged(pending *models.PendingConfirmation) {
	l.hub.Publish(events.Conflict, pending)
}

func (l listener) ConnectivityChanged(online bool) {
	l.hub.Publish(events.Connectivity, online)
}

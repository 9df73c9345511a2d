package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// Registry holds the running engine of every signed-in user.
type Registry struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	group  singleflight.Group

	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewRegistry creates an empty registry. Engines it opens share deps and opts.
func NewRegistry(deps Deps, opts Options) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		deps:    deps,
		opts:    opts,
		logger:  logger,
		engines: make(map[string]*Engine),
	}
}

// Open returns the engine of userID, starting it on first use. Concurrent opens for one
// user share the same start.
func (r *Registry) Open(ctx context.Context, userID string) (*Engine, error) {
	if e, err := r.Get(userID); err == nil {
		return e, nil
	}
	v, err, _ := r.group.Do(userID, func() (interface{}, error) {
		if e, err := r.Get(userID); err == nil {
			return e, nil
		}
		e := New(r.deps, r.opts)
		if err := e.Init(ctx, userID); err != nil {
			_ = e.Teardown(ctx)
			return nil, err
		}
		r.mu.Lock()
		r.engines[userID] = e
		r.mu.Unlock()
		r.logger.Info("session opened", zap.String("user", userID))
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

// Get returns the running engine of userID.
func (r *Registry) Get(userID string) (*Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.engines[userID]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w for user %s", models.ErrNoSession, userID)
}

// Close tears down the engine of userID.
func (r *Registry) Close(ctx context.Context, userID string) error {
	r.mu.Lock()
	e, ok := r.engines[userID]
	delete(r.engines, userID)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w for user %s", models.ErrNoSession, userID)
	}
	r.logger.Info("session closed", zap.String("user", userID))
	return e.Teardown(ctx)
}

// CloseAll tears down every engine.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	engines := r.engines
	r.engines = make(map[string]*Engine)
	r.mu.Unlock()

	var errs []error
	for _, e := range engines {
		if err := e.Teardown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Engines returns the running engines ordered by user id.
func (r *Registry) Engines() []*Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID() < out[j].UserID() })
	return out
}

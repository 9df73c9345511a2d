package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/config"
	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/engine"
)

// Sessions is the set of running engines the jobs walk over.
type Sessions interface {
	Engines() []*engine.Engine
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron     *cron.Cron
	sessions Sessions
	cfg      config.SyncConfig
	logger   *zap.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg config.SyncConfig, sessions Sessions, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	// SkipIfStillRunning keeps a slow remote from piling up overlapping runs of a job.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	return &Scheduler{
		cron:     c,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start registers the jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("catalog_schedule", s.cfg.CatalogSchedule),
		zap.String("reconcile_schedule", s.cfg.ReconcileSchedule))

	if _, err := s.cron.AddFunc(s.cfg.CatalogSchedule, s.SyncCatalogs); err != nil {
		return fmt.Errorf("schedule catalog sync: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.ReconcileSchedule, s.ReconcileSessions); err != nil {
		return fmt.Errorf("schedule reconcile: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	timeout := 2 * s.cfg.RemoteTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return context.WithTimeout(context.Background(), timeout)
}

// SyncCatalogs pulls the catalog of every running session.
func (s *Scheduler) SyncCatalogs() {
	for _, e := range s.sessions.Engines() {
		ctx, cancel := s.jobContext()
		products, status, err := e.SyncCatalog(ctx)
		cancel()
		switch {
		case errors.Is(err, models.ErrNoSession):
		case err != nil:
			s.logger.Error("scheduled catalog sync failed", zap.String("user", e.UserID()), zap.Error(err))
		default:
			s.logger.Debug("scheduled catalog sync", zap.String("user", e.UserID()),
				zap.String("status", string(status)), zap.Int("products", len(products)))
		}
	}
}

// ReconcileSessions retries the connection of every offline session.
func (s *Scheduler) ReconcileSessions() {
	for _, e := range s.sessions.Engines() {
		ctx, cancel := s.jobContext()
		err := e.Reconcile(ctx)
		cancel()
		switch {
		case err == nil, errors.Is(err, models.ErrNoSession):
		case errors.Is(err, models.ErrUnavailable):
			s.logger.Debug("remote store still unreachable", zap.String("user", e.UserID()))
		default:
			s.logger.Error("scheduled reconcile failed", zap.String("user", e.UserID()), zap.Error(err))
		}
	}
}

// Package service holds the sync orchestrator: it serves dataset snapshots
// from the persistent cache, fetches them in parallel when any is stale, and
// revalidates cached snapshots in the background.
package service

import (
	"log/slog"
	"time"

	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/routine"
	"golang.org/x/sync/singleflight"
)

const (
	defaultBackgroundTimeout = 5 * time.Minute
	defaultFaultBuffer       = 64
)

// Cache is the subset of the persistent cache the orchestrator uses.
type Cache interface {
	Get(key string, maxAge time.Duration) ([]domain.Record, bool)
	Set(key string, payload []domain.Record) error
	Delete(key string) error
	Clear() error
	Stats() domain.CacheStats
}

// Option configures a SyncService.
type Option func(*SyncService)

// WithBackgroundTimeout bounds each detached background refresh.
func WithBackgroundTimeout(d time.Duration) Option {
	return func(s *SyncService) {
		if d > 0 {
			s.backgroundTimeout = d
		}
	}
}

// WithLoadTimeout bounds every Load call. Zero leaves only the caller's
// context deadline.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *SyncService) { s.loadTimeout = d }
}

// WithFaultBuffer sets the capacity of the fault channel.
func WithFaultBuffer(n int) Option {
	return func(s *SyncService) {
		if n > 0 {
			s.faultBuffer = n
		}
	}
}

// SyncService coordinates cached and remote loads of named datasets.
type SyncService struct {
	cache  Cache
	logger *slog.Logger

	loadTimeout       time.Duration
	backgroundTimeout time.Duration
	faultBuffer       int

	faults chan error
	runner *routine.Runner
	flight singleflight.Group
}

// NewSyncService creates a new sync service on top of cache
func NewSyncService(cache Cache, logger *slog.Logger, opts ...Option) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}

	s := &SyncService{
		cache:             cache,
		logger:            logger,
		backgroundTimeout: defaultBackgroundTimeout,
		faultBuffer:       defaultFaultBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.faults = make(chan error, s.faultBuffer)
	s.runner = routine.New(logger, func(name string, err error) {
		s.ReportFault(err)
	})
	return s
}

// Invalidate drops the cached snapshot of one dataset. Invalidating a
// dataset that is not cached is a no-op.
func (s *SyncService) Invalidate(name string) error {
	if err := s.cache.Delete(name); err != nil {
		return err
	}
	s.logger.Info("invalidated dataset", "dataset", name)
	return nil
}

// InvalidateAll drops every cached snapshot.
func (s *SyncService) InvalidateAll() error {
	if err := s.cache.Clear(); err != nil {
		return err
	}
	s.logger.Info("invalidated all datasets")
	return nil
}

// Stats returns diagnostic information about the cache.
func (s *SyncService) Stats() domain.CacheStats {
	return s.cache.Stats()
}

// Faults returns the channel carrying cache faults and background refresh
// failures. Faults are dropped while the channel is full.
func (s *SyncService) Faults() <-chan error {
	return s.faults
}

// ReportFault queues err on the fault channel without blocking. It matches
// domain.FaultFunc so it can be installed as the cache's fault sink.
func (s *SyncService) ReportFault(err error) {
	if err == nil {
		return
	}
	select {
	case s.faults <- err:
	default:
		s.logger.Debug("fault channel full, dropping fault", "error", err)
	}
}

// Wait blocks until background refreshes and abandoned fetches have returned.
func (s *SyncService) Wait() {
	s.runner.Wait()
}

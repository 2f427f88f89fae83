package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/tablesync/internal/codec"
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/metrics"
	"github.com/mmcdole/tablesync/internal/routine"
	"golang.org/x/sync/errgroup"
)

// LoadOptions tunes a single Load call.
type LoadOptions struct {
	// SkipCache fetches every dataset from the remote source.
	SkipCache bool

	// OnProgress receives progress events for this call. It also receives
	// the events of the background refresh when OnBackgroundUpdate is set.
	OnProgress domain.ProgressFunc

	// OnBackgroundUpdate receives the result of the background refresh that
	// follows a cache hit, if at least one dataset refreshed.
	OnBackgroundUpdate func(*Result)
}

// Load returns a snapshot of every dataset.
//
// When every dataset has a cached entry younger than its TTL the cached
// snapshot is returned at once and a detached refresh is started. Otherwise
// all datasets are fetched in parallel and the successful ones are cached.
// Per-dataset failures are reported through Result.Failures; the error
// return is reserved for invalid input, cancellation and timeouts.
func (s *SyncService) Load(ctx context.Context, datasets []domain.Dataset, opts LoadOptions) (*Result, error) {
	if err := validate(datasets); err != nil {
		return nil, err
	}
	if len(datasets) == 0 {
		res := newResult()
		res.CompletedAt = time.Now()
		return res, nil
	}

	rep := newProgressReporter(datasets, opts.OnProgress)
	rep.start()

	if !opts.SkipCache {
		if res, ok := s.loadCached(datasets, rep); ok {
			s.logger.Debug("serving cached snapshot", "datasets", len(datasets))
			metrics.Loads.WithLabelValues("cache").Inc()
			s.refreshInBackground(ctx, datasets, opts)
			return res, nil
		}
	}

	if s.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.loadTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	done := make(chan *Result, 1)
	s.runner.GoNamed("load", func() {
		done <- s.fetchAll(ctx, datasets, rep)
	})

	var res *Result
	select {
	case res = <-done:
	case <-ctx.Done():
	}

	// A deadline that interrupted a fetch voids the whole snapshot.
	if err := ctx.Err(); err != nil && (res == nil || len(res.Failures) > 0) {
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			te := &domain.TimeoutError{After: time.Since(start), Pending: rep.interrupted()}
			rep.close(te)
			metrics.Loads.WithLabelValues("timeout").Inc()
			s.logger.Warn("load timed out", "after", te.After, "pending", te.Pending)
			return nil, te
		}
		rep.close(err)
		return nil, fmt.Errorf("load cancelled: %w", err)
	}

	s.store(res)
	metrics.Loads.WithLabelValues(string(res.Status())).Inc()
	s.logger.Info("loaded datasets",
		"datasets", len(datasets),
		"failed", len(res.Failures),
		"duration", time.Since(start))
	return res, nil
}

// validate rejects unnamed and duplicate datasets
func validate(datasets []domain.Dataset) error {
	seen := make(map[string]bool, len(datasets))
	for i, ds := range datasets {
		if ds.Name == "" {
			return fmt.Errorf("dataset %d: name is required", i)
		}
		if seen[ds.Name] {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateDataset, ds.Name)
		}
		if ds.Fetch == nil {
			return fmt.Errorf("dataset %s: fetch function is required", ds.Name)
		}
		seen[ds.Name] = true
	}
	return nil
}

// loadCached returns the cached snapshot only if every dataset is fresh
func (s *SyncService) loadCached(datasets []domain.Dataset, rep *progressReporter) (*Result, bool) {
	res := newResult()
	for _, ds := range datasets {
		if ds.TTL <= 0 {
			return nil, false
		}
		records, ok := s.cache.Get(ds.Name, ds.TTL)
		if !ok {
			s.logger.Debug("cache miss", "dataset", ds.Name)
			return nil, false
		}
		res.Payloads[ds.Name] = records
	}

	for _, ds := range datasets {
		rep.complete(ds.Name, len(res.Payloads[ds.Name]), true)
	}
	res.FromCache = true
	res.CompletedAt = time.Now()
	return res, true
}

// fetchAll runs one task per dataset and waits for all of them. A failed
// dataset never cancels its siblings.
func (s *SyncService) fetchAll(ctx context.Context, datasets []domain.Dataset, rep *progressReporter) *Result {
	res := newResult()
	var mu sync.Mutex

	var g errgroup.Group
	for _, ds := range datasets {
		ds := ds
		g.Go(func() error {
			rep.loading(ds.Name)
			start := time.Now()
			records, err := s.fetchOne(ctx, ds)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error("failed to fetch dataset", "dataset", ds.Name, "error", err)
				res.Failures[ds.Name] = err
				rep.fail(ds.Name, err)
				return nil
			}
			s.logger.Debug("fetched dataset", "dataset", ds.Name, "rows", len(records), "duration", time.Since(start))
			res.Payloads[ds.Name] = records
			rep.complete(ds.Name, len(records), false)
			return nil
		})
	}
	g.Wait()

	res.CompletedAt = time.Now()
	return res
}

// fetchOne calls the dataset's fetch function and normalizes its records.
// A panic becomes an error.
func (s *SyncService) fetchOne(ctx context.Context, ds domain.Dataset) (records []domain.Record, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("dataset fetch panicked", "dataset", ds.Name, "panic", rec)
			records, err = nil, routine.ErrPanic(rec)
		}
	}()

	records, err = ds.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	// Fresh payloads take the cache's value types, so a snapshot reads the
	// same whether it was just fetched or loaded from disk.
	return codec.Normalize(records)
}

// store writes successful datasets to the cache. Write failures reach the
// fault sink through the cache and are otherwise only logged.
func (s *SyncService) store(res *Result) {
	for _, name := range res.Names() {
		if err := s.cache.Set(name, res.Payloads[name]); err != nil {
			s.logger.Warn("failed to cache dataset", "dataset", name, "error", err)
		}
	}
}

// refreshInBackground revalidates datasets on a detached context. Concurrent
// refreshes of the same dataset set share one run.
func (s *SyncService) refreshInBackground(ctx context.Context, datasets []domain.Dataset, opts LoadOptions) {
	ctx = context.WithoutCancel(ctx)
	key := flightKey(datasets)

	s.runner.GoNamed("background-refresh", func() {
		ran := false
		v, _, _ := s.flight.Do(key, func() (any, error) {
			ran = true
			return s.backgroundRun(ctx, datasets, opts), nil
		})
		res := v.(*Result)

		if !ran {
			metrics.BackgroundRefreshes.WithLabelValues("shared").Inc()
		}
		if opts.OnBackgroundUpdate != nil && len(res.Payloads) > 0 {
			opts.OnBackgroundUpdate(res)
		}
	})
}

func (s *SyncService) backgroundRun(ctx context.Context, datasets []domain.Dataset, opts LoadOptions) *Result {
	ctx, cancel := context.WithTimeout(ctx, s.backgroundTimeout)
	defer cancel()

	logger := s.logger.With("run", uuid.NewString())
	logger.Debug("background refresh started", "datasets", len(datasets))

	var emit domain.ProgressFunc
	if opts.OnBackgroundUpdate != nil {
		emit = opts.OnProgress
	}
	rep := newProgressReporter(datasets, emit)
	rep.start()

	start := time.Now()
	res := s.fetchAll(ctx, datasets, rep)
	s.store(res)

	metrics.BackgroundRefreshes.WithLabelValues(string(res.Status())).Inc()
	if err := res.Err(); err != nil {
		logger.Warn("background refresh failed", "failed", len(res.Failures), "error", err)
		s.ReportFault(fmt.Errorf("background refresh: %w", err))
	}
	logger.Info("background refresh finished",
		"refreshed", len(res.Payloads),
		"failed", len(res.Failures),
		"duration", time.Since(start))
	return res
}

// flightKey identifies a dataset set independent of order
func flightKey(datasets []domain.Dataset) string {
	names := make([]string, len(datasets))
	for i, ds := range datasets {
		names[i] = ds.Name
	}
	sort.Strings(names)
	return strings.Join(names, "\x00")
}

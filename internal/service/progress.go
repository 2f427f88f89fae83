package service

import (
	"context"
	"errors"
	"sync"

	"github.com/mmcdole/tablesync/internal/domain"
)

// progressReporter emits the progress events of one Load. Every emission
// and counter update happens under mu, so the sink is never called
// concurrently and Completed never double-counts.
type progressReporter struct {
	mu        sync.Mutex
	emit      domain.ProgressFunc
	names     []string
	state     map[string]domain.ProgressStatus
	errs      map[string]error
	completed int
	closed    bool
}

func newProgressReporter(datasets []domain.Dataset, emit domain.ProgressFunc) *progressReporter {
	r := &progressReporter{
		emit:  emit,
		names: make([]string, len(datasets)),
		state: make(map[string]domain.ProgressStatus, len(datasets)),
		errs:  make(map[string]error),
	}
	for i, ds := range datasets {
		r.names[i] = ds.Name
	}
	return r
}

// start emits pending for every dataset.
func (r *progressReporter) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.names {
		r.state[name] = domain.StatusPending
		r.send(domain.ProgressEvent{Dataset: name, Status: domain.StatusPending})
	}
}

func (r *progressReporter) loading(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state[name].Terminal() {
		return
	}
	r.state[name] = domain.StatusLoading
	r.send(domain.ProgressEvent{Dataset: name, Status: domain.StatusLoading})
}

func (r *progressReporter) complete(name string, rows int, fromCache bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state[name].Terminal() {
		return
	}
	r.state[name] = domain.StatusComplete
	r.completed++
	r.send(domain.ProgressEvent{
		Dataset:   name,
		Status:    domain.StatusComplete,
		RowCount:  &rows,
		FromCache: fromCache,
	})
}

func (r *progressReporter) fail(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state[name].Terminal() {
		return
	}
	r.state[name] = domain.StatusFailed
	r.errs[name] = err
	r.completed++
	r.send(domain.ProgressEvent{Dataset: name, Status: domain.StatusFailed, Err: err})
}

// interrupted returns, in Load order, the datasets that are still running or
// that failed because their context ended.
func (r *progressReporter) interrupted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	for _, name := range r.names {
		err := r.errs[name]
		if !r.state[name].Terminal() || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			names = append(names, name)
		}
	}
	return names
}

// close fails every unfinished dataset with err and silences the reporter.
func (r *progressReporter) close(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.names {
		if r.state[name].Terminal() {
			continue
		}
		r.state[name] = domain.StatusFailed
		r.completed++
		r.send(domain.ProgressEvent{Dataset: name, Status: domain.StatusFailed, Err: err})
	}
	r.closed = true
}

// send must be called with mu held
func (r *progressReporter) send(ev domain.ProgressEvent) {
	if r.emit == nil || r.closed {
		return
	}
	ev.Completed = r.completed
	ev.Total = len(r.names)
	r.emit(ev)
}

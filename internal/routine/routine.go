// Package routine runs goroutines that recover from panics instead of
// crashing the process.
package routine

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Runner starts supervised goroutines and can wait for them.
type Runner struct {
	logger  *slog.Logger
	onPanic func(name string, err error)
	wg      sync.WaitGroup
}

// New creates a Runner. onPanic, when non-nil, receives recovered panics as errors.
func New(logger *slog.Logger, onPanic func(name string, err error)) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, onPanic: onPanic}
}

// GoNamed executes fn in a new goroutine with panic recovery.
// The name is used for logging.
func (r *Runner) GoNamed(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.recover(name)
		fn()
	}()
}

// Wait blocks until every goroutine started by r has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) recover(name string) {
	if rec := recover(); rec != nil {
		r.logger.Error("goroutine panicked",
			"routine", name,
			"panic", rec,
			"stack", string(debug.Stack()),
		)
		if r.onPanic != nil {
			r.onPanic(name, ErrPanic(rec))
		}
	}
}

// ErrPanic returns an error wrapping the recovered panic value.
func ErrPanic(recovered any) error {
	return fmt.Errorf("routine: panic recovered: %v", recovered)
}

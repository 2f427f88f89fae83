package service

import (
	"sort"
	"time"

	"github.com/mmcdole/tablesync/internal/domain"
)

// LoadStatus summarizes how many datasets of a Load succeeded.
type LoadStatus string

const (
	LoadComplete LoadStatus = "complete"
	LoadPartial  LoadStatus = "partial"
	LoadFailed   LoadStatus = "failed"
)

// Result is the combined snapshot returned by Load. A dataset appears in
// exactly one of Payloads and Failures.
type Result struct {
	Payloads    map[string][]domain.Record
	Failures    map[string]error
	FromCache   bool
	CompletedAt time.Time
}

func newResult() *Result {
	return &Result{
		Payloads: make(map[string][]domain.Record),
		Failures: make(map[string]error),
	}
}

// Status reports complete when nothing failed, failed when nothing
// succeeded and partial otherwise.
func (r *Result) Status() LoadStatus {
	switch {
	case len(r.Failures) == 0:
		return LoadComplete
	case len(r.Payloads) == 0:
		return LoadFailed
	default:
		return LoadPartial
	}
}

// Err returns a *domain.PartialFailure describing the failed datasets, or
// nil when every dataset succeeded.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &domain.PartialFailure{Failures: r.Failures, Succeeded: len(r.Payloads)}
}

// Names returns the successfully loaded dataset names in sorted order.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.Payloads))
	for name := range r.Payloads {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

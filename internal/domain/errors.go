package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for domain operations
var (
	// ErrServerOffline indicates the remote table source is unreachable
	ErrServerOffline = errors.New("remote table source is unreachable")

	// ErrAuthFailed indicates the API key was rejected
	ErrAuthFailed = errors.New("api key is invalid")

	// ErrDatasetNotFound indicates the remote table does not exist
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrDuplicateDataset indicates two descriptors in one Load share a name
	ErrDuplicateDataset = errors.New("duplicate dataset name")

	// ErrCacheClosed indicates an operation on a cache that was never opened
	ErrCacheClosed = errors.New("cache is closed")
)

// RemoteError reports a failed page request. No rows are returned alongside it.
type RemoteError struct {
	Table  string
	Offset int
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("fetch %s at offset %d: %v", e.Table, e.Offset, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// FaultKind names the cache operation that failed.
type FaultKind string

const (
	FaultOpen   FaultKind = "open"
	FaultRead   FaultKind = "read"
	FaultDecode FaultKind = "decode"
	FaultWrite  FaultKind = "write"
	FaultDelete FaultKind = "delete"
)

// CacheFault is a storage failure. It is reported on a side channel and never
// aborts the caller: reads degrade to a miss, writes are skipped.
type CacheFault struct {
	Kind FaultKind
	Key  string
	Err  error
}

func (e *CacheFault) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("cache %s %q: %v", e.Kind, e.Key, e.Err)
}

func (e *CacheFault) Unwrap() error { return e.Err }

// TimeoutError is returned when a Load exceeds its deadline. In-flight
// fetches are cancelled and no partial result is returned.
type TimeoutError struct {
	After   time.Duration
	Pending []string
}

func (e *TimeoutError) Error() string {
	msg := "load timed out"
	if e.After > 0 {
		msg = fmt.Sprintf("load timed out after %s", e.After)
	}
	if len(e.Pending) > 0 {
		msg += " waiting for " + strings.Join(e.Pending, ", ")
	}
	return msg
}

// Timeout lets callers test for timeouts without importing this package.
func (e *TimeoutError) Timeout() bool { return true }

// PartialFailure lists the datasets that failed in a multi-dataset Load.
// Datasets absent from Failures succeeded.
type PartialFailure struct {
	Failures  map[string]error
	Succeeded int
}

func (e *PartialFailure) Error() string {
	names := e.Names()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failures[name]))
	}
	return fmt.Sprintf("%d of %d datasets failed (%s)",
		len(e.Failures), len(e.Failures)+e.Succeeded, strings.Join(parts, "; "))
}

// Names returns the failed dataset names in sorted order.
func (e *PartialFailure) Names() []string {
	names := make([]string, 0, len(e.Failures))
	for name := range e.Failures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Total reports whether every dataset failed.
func (e *PartialFailure) Total() bool { return e.Succeeded == 0 }

// Unwrap exposes the individual dataset errors to errors.Is/As.
func (e *PartialFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, name := range e.Names() {
		errs = append(errs, e.Failures[name])
	}
	return errs
}

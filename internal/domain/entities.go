package domain

import (
	"context"
	"time"
)

// Row is a raw row as returned by the remote table source.
type Row map[string]any

// Record is a normalized application record.
type Record map[string]any

// TransformFunc maps a remote row into an application record. Must be pure.
type TransformFunc func(Row) Record

// Dataset describes one independently cacheable collection. Descriptors are
// built fresh for every Load and never persisted.
type Dataset struct {
	Name  string
	TTL   time.Duration
	Fetch func(ctx context.Context) ([]Record, error)
}

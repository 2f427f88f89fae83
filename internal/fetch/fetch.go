// Package fetch reads complete tables from a paginated remote source.
package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/metrics"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 1000

// Fetcher pulls whole tables page by page.
type Fetcher struct {
	source   domain.PageReader
	pageSize int
	logger   *slog.Logger
}

// New creates a Fetcher. pageSize <= 0 selects DefaultPageSize.
func New(source domain.PageReader, pageSize int, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Fetcher{source: source, pageSize: pageSize, logger: logger}
}

// FetchAll returns every row of table. order, when set, is sent with every
// page so page boundaries stay stable. A failed page yields a
// *domain.RemoteError and no rows.
func (f *Fetcher) FetchAll(ctx context.Context, table string, order *domain.Order) ([]domain.Row, error) {
	start := time.Now()
	rows, pages, err := fetchAll(ctx,
		func(ctx context.Context, offset, limit int) ([]domain.Row, error) {
			return f.source.ReadPage(ctx, table, offset, limit, order)
		},
		f.pageSize,
		func(loaded int) {
			metrics.PagesFetched.WithLabelValues(table).Inc()
		},
	)
	if err != nil {
		if re, ok := err.(*pageError); ok {
			err = &domain.RemoteError{Table: table, Offset: re.offset, Err: re.err}
		}
		f.logger.Error("failed to fetch table", "table", table, "error", err)
		return nil, err
	}

	f.logger.Debug("fetched table", "table", table, "rows", len(rows), "pages", pages, "elapsed", time.Since(start))
	return rows, nil
}

// pageError carries the offset of the failed page out of fetchAll
type pageError struct {
	offset int
	err    error
}

func (e *pageError) Error() string { return e.err.Error() }

// fetchAll is a generic pagination helper. A page shorter than pageSize,
// including an empty one, ends the loop.
func fetchAll[T any](
	ctx context.Context,
	fetch func(ctx context.Context, offset, limit int) ([]T, error),
	pageSize int,
	onPage func(loaded int),
) ([]T, int, error) {
	var all []T
	offset := 0
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, pages, err
		}

		items, err := fetch(ctx, offset, pageSize)
		if err != nil {
			return nil, pages, &pageError{offset: offset, err: err}
		}
		pages++

		all = append(all, items...)

		if onPage != nil {
			onPage(len(all))
		}

		if len(items) < pageSize {
			break
		}
		offset += pageSize
	}

	if all == nil {
		all = []T{}
	}
	return all, pages, nil
}

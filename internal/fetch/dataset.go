package fetch

import (
	"context"
	"time"

	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/metrics"
)

// Definition binds a remote table to a named dataset.
type Definition struct {
	Name      string
	Table     string // defaults to Name
	TTL       time.Duration
	Order     *domain.Order
	Transform domain.TransformFunc // nil keeps rows as-is

	// TransformFrom, when set, picks the transform at fetch time and takes
	// precedence over Transform.
	TransformFrom func(ctx context.Context) domain.TransformFunc
}

// Dataset builds a descriptor whose Fetch reads the whole table and maps
// every row through the definition's transform.
func Dataset(f *Fetcher, def Definition) domain.Dataset {
	table := def.Table
	if table == "" {
		table = def.Name
	}
	return domain.Dataset{
		Name: def.Name,
		TTL:  def.TTL,
		Fetch: func(ctx context.Context) (records []domain.Record, err error) {
			start := time.Now()
			defer func() { metrics.RecordFetch(def.Name, start, err) }()

			transform := def.Transform
			if def.TransformFrom != nil {
				transform = def.TransformFrom(ctx)
			}

			rows, err := f.FetchAll(ctx, table, def.Order)
			if err != nil {
				return nil, err
			}

			records = make([]domain.Record, len(rows))
			for i, row := range rows {
				if transform != nil {
					records[i] = transform(row)
				} else {
					records[i] = domain.Record(row)
				}
			}
			return records, nil
		},
	}
}

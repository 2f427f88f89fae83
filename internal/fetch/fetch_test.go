package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/tablesync/internal/domain"
)

type pageCall struct {
	table  string
	offset int
	limit  int
	order  *domain.Order
	got    int
}

// fixtureSource serves a static in-memory table
type fixtureSource struct {
	mu     sync.Mutex
	rows   map[string][]domain.Row
	calls  []pageCall
	failAt int // offset that returns an error, -1 for none
}

func newFixture(table string, n int) *fixtureSource {
	rows := make([]domain.Row, n)
	for i := range rows {
		rows[i] = domain.Row{"id": i, "name": fmt.Sprintf("customer-%d", i)}
	}
	return &fixtureSource{rows: map[string][]domain.Row{table: rows}, failAt: -1}
}

func (s *fixtureSource) ReadPage(ctx context.Context, table string, offset, limit int, order *domain.Order) ([]domain.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAt >= 0 && offset == s.failAt {
		s.calls = append(s.calls, pageCall{table: table, offset: offset, limit: limit, order: order})
		return nil, domain.ErrServerOffline
	}

	all := s.rows[table]
	end := offset + limit
	if offset > len(all) {
		offset = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	page := append([]domain.Row(nil), all[offset:end]...)
	s.calls = append(s.calls, pageCall{table: table, offset: offset, limit: limit, order: order, got: len(page)})
	return page, nil
}

func TestFetchAllCompleteness(t *testing.T) {
	const pageSize = 10

	tests := []struct {
		name string
		rows int
	}{
		{"empty", 0},
		{"single", 1},
		{"one short of a page", pageSize - 1},
		{"exactly one page", pageSize},
		{"one past a page", pageSize + 1},
		{"three pages", 3 * pageSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFixture("customers", tt.rows)
			f := New(src, pageSize, nil)

			rows, err := f.FetchAll(context.Background(), "customers", nil)
			if err != nil {
				t.Fatalf("FetchAll: %v", err)
			}
			if len(rows) != tt.rows {
				t.Fatalf("got %d rows, want %d", len(rows), tt.rows)
			}

			seen := make(map[int]bool, len(rows))
			for i, row := range rows {
				id := row["id"].(int)
				if seen[id] {
					t.Fatalf("duplicate row id %d", id)
				}
				seen[id] = true
				if id != i {
					t.Fatalf("row %d has id %d, want gapless order", i, id)
				}
			}

			wantCalls := tt.rows/pageSize + 1
			if len(src.calls) != wantCalls {
				t.Errorf("page requests = %d, want %d", len(src.calls), wantCalls)
			}
		})
	}
}

func TestFetchAllCustomersScenario(t *testing.T) {
	src := newFixture("customers", 2500)
	f := New(src, 1000, nil)

	rows, err := f.FetchAll(context.Background(), "customers", nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 2500 {
		t.Fatalf("got %d rows, want 2500", len(rows))
	}

	want := []int{1000, 1000, 500}
	if len(src.calls) != len(want) {
		t.Fatalf("page requests = %d, want %d", len(src.calls), len(want))
	}
	for i, call := range src.calls {
		if call.got != want[i] {
			t.Errorf("page %d returned %d rows, want %d", i, call.got, want[i])
		}
		if call.offset != i*1000 || call.limit != 1000 {
			t.Errorf("page %d requested [%d,+%d)", i, call.offset, call.limit)
		}
	}
}

func TestFetchAllPassesOrderOnEveryPage(t *testing.T) {
	src := newFixture("transactions", 25)
	f := New(src, 10, nil)
	order := &domain.Order{Column: "id", Ascending: true}

	if _, err := f.FetchAll(context.Background(), "transactions", order); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	for i, call := range src.calls {
		if call.order != order {
			t.Errorf("page %d sent order %v, want %v", i, call.order, order)
		}
	}
}

func TestFetchAllFailureReturnsNoRows(t *testing.T) {
	src := newFixture("customers", 35)
	src.failAt = 20
	f := New(src, 10, nil)

	rows, err := f.FetchAll(context.Background(), "customers", nil)
	if rows != nil {
		t.Fatalf("expected no partial rows, got %d", len(rows))
	}

	var re *domain.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *RemoteError", err)
	}
	if re.Table != "customers" || re.Offset != 20 {
		t.Errorf("RemoteError = %+v", re)
	}
	if !errors.Is(err, domain.ErrServerOffline) {
		t.Error("RemoteError should unwrap to the page error")
	}
}

// cancelAfter cancels ctx once n pages have been served
type cancelAfter struct {
	*fixtureSource
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfter) ReadPage(ctx context.Context, table string, offset, limit int, order *domain.Order) ([]domain.Row, error) {
	rows, err := c.fixtureSource.ReadPage(ctx, table, offset, limit, order)
	c.n--
	if c.n == 0 {
		c.cancel()
	}
	return rows, err
}

func TestFetchAllHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancelAfter{fixtureSource: newFixture("customers", 100), n: 3, cancel: cancel}
	f := New(src, 10, nil)

	rows, err := f.FetchAll(ctx, "customers", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if rows != nil {
		t.Error("expected no rows after cancellation")
	}
	if len(src.calls) != 3 {
		t.Errorf("page requests = %d, want 3", len(src.calls))
	}
}

func TestDefaultPageSize(t *testing.T) {
	if got := New(newFixture("t", 0), 0, nil).pageSize; got != DefaultPageSize {
		t.Errorf("pageSize = %d, want %d", got, DefaultPageSize)
	}
}

func TestDatasetTransforms(t *testing.T) {
	src := newFixture("raw_customers", 3)
	f := New(src, 2, nil)

	ds := Dataset(f, Definition{
		Name:  "customers",
		Table: "raw_customers",
		TTL:   4 * time.Hour,
		Transform: func(row domain.Row) domain.Record {
			return domain.Record{"key": row["id"]}
		},
	})

	if ds.Name != "customers" || ds.TTL != 4*time.Hour {
		t.Fatalf("descriptor = %+v", ds)
	}

	records, err := ds.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 3 || records[1]["key"] != 1 {
		t.Errorf("records = %v", records)
	}
	if src.calls[0].table != "raw_customers" {
		t.Errorf("read table %q, want raw_customers", src.calls[0].table)
	}
}

func TestDatasetTransformFromIsResolvedPerFetch(t *testing.T) {
	src := newFixture("transactions", 2)
	resolved := 0
	ds := Dataset(New(src, 10, nil), Definition{
		Name:      "transactions",
		Transform: func(row domain.Row) domain.Record { return domain.Record{"via": "static"} },
		TransformFrom: func(ctx context.Context) domain.TransformFunc {
			resolved++
			return func(row domain.Row) domain.Record { return domain.Record{"via": "resolved"} }
		},
	})

	for i := 0; i < 2; i++ {
		records, err := ds.Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if records[0]["via"] != "resolved" {
			t.Errorf("records = %v", records)
		}
	}
	if resolved != 2 {
		t.Errorf("resolved %d times, want 2", resolved)
	}
}

func TestDatasetDefaultsTableAndPassthrough(t *testing.T) {
	src := newFixture("app_settings", 1)
	ds := Dataset(New(src, 10, nil), Definition{Name: "app_settings", TTL: time.Minute})

	records, err := ds.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(records) != 1 || records[0]["name"] != "customer-0" {
		t.Errorf("records = %v", records)
	}
}

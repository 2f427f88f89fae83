package domain

import (
	"context"
)

// Order describes the sort applied to every page of a table read.
type Order struct {
	Column     string
	Ascending  bool
	NullsFirst bool
}

// PageReader is the remote table source. It must return a page shorter than
// limit if and only if the page is the last one.
type PageReader interface {
	// ReadPage returns rows [offset, offset+limit) of table.
	ReadPage(ctx context.Context, table string, offset, limit int, order *Order) ([]Row, error)
}

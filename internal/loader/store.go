// Package loader drains chunk files into the relational store.
//
// A run clears the target tables in reverse dependency order up to an
// optional resume table, then copies every table's chunk files in forward
// dependency order. Chunks of one table are copied concurrently, each on its
// own connection and transaction; a table starts only after every chunk of
// the previous table has finished.
package loader

import (
	"context"
	"io"

	"github.com/JonMunkholm/imdbload/internal/core"
)

// Store is the relational store the loader writes to.
type Store interface {
	// Delete removes every row of table and returns the number removed.
	Delete(ctx context.Context, table core.Table) (int64, error)

	// CopyFrom bulk-copies CSV rows from r into table's columns and returns
	// the number of rows copied. Empty unquoted fields are NULL.
	CopyFrom(ctx context.Context, table core.Table, columns []string, r io.Reader) (int64, error)
}

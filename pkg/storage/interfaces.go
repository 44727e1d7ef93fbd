package storage

import "context"

// Row is one sheet row, a flat list of cell values. A cleared row stays in
// place as an empty Row so that row indices of the remaining rows are stable.
type Row []string

// Empty reports whether the row was cleared or never filled.
func (r Row) Empty() bool {
	if len(r) == 0 {
		return true
	}
	for _, cell := range r {
		if cell != "" {
			return false
		}
	}
	return true
}

// Interface is implemented by the backing sheet store. The store offers no
// transactions and no row locking; reads after writes may lag. Every call is
// subject to the store's per-minute quota and can fail with a QuotaError.
type Interface interface {
	GetRows(ctx context.Context, table string) ([]Row, error)
	AppendRow(ctx context.Context, table string, row Row) error
	UpdateRow(ctx context.Context, table string, rowIndex int, row Row) error
	ClearRow(ctx context.Context, table string, rowIndex int) error
	ClearTable(ctx context.Context, table string) error
}

// Invalidator is implemented by stores that cache reads. Callers that need a
// guaranteed-fresh read, such as the coordinator's create verification, drop
// the entry first.
type Invalidator interface {
	InvalidateTable(table string)
}

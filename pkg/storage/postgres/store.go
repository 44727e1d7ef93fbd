package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/countkeeper/countkeeper/pkg/storage"
)

// Store is a PostgreSQL-backed implementation of the sheet store contract.
// Every logical table lives in one generic relation keyed by table name and
// row index, so the row/cell shape matches the remote sheet service exactly
// and both adapters stay interchangeable.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new PostgreSQL-based sheet store
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type sqlDataRow struct {
	TableName string         `db:"table_name"`
	RowIndex  int            `db:"row_index"`
	Cells     pq.StringArray `db:"cells"`
}

func (s *Store) GetRows(ctx context.Context, table string) ([]storage.Row, error) {
	data := []sqlDataRow{}
	err := s.db.SelectContext(ctx, &data,
		`SELECT table_name, row_index, cells FROM sheet_rows
		 WHERE table_name = $1 ORDER BY row_index ASC`, table)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: fetch rows failed")
	}

	out := make([]storage.Row, len(data))
	for i, d := range data {
		out[i] = storage.Row(d.Cells)
	}

	return out, nil
}

func (s *Store) AppendRow(ctx context.Context, table string, row storage.Row) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sheet_rows (table_name, row_index, cells)
		 SELECT $1, COALESCE(MAX(row_index) + 1, 0), $2
		 FROM sheet_rows WHERE table_name = $1`,
		table, pq.Array([]string(row)))
	if err != nil {
		return errors.Wrap(err, "postgres: append row failed")
	}

	return nil
}

func (s *Store) UpdateRow(ctx context.Context, table string, rowIndex int, row storage.Row) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sheet_rows SET cells = $3
		 WHERE table_name = $1 AND row_index = $2`,
		table, rowIndex, pq.Array([]string(row)))
	if err != nil {
		return errors.Wrap(err, "postgres: update row failed")
	}

	return ensureRowAffected(res)
}

func (s *Store) ClearRow(ctx context.Context, table string, rowIndex int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sheet_rows SET cells = '{}'
		 WHERE table_name = $1 AND row_index = $2`,
		table, rowIndex)
	if err != nil {
		return errors.Wrap(err, "postgres: clear row failed")
	}

	return ensureRowAffected(res)
}

func (s *Store) ClearTable(ctx context.Context, table string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sheet_rows WHERE table_name = $1`, table)
	if err != nil {
		return errors.Wrap(err, "postgres: clear table failed")
	}

	return nil
}

func ensureRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "postgres: rows affected failed")
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

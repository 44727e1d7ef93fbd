package memory

import (
	"context"
	"sync"

	"github.com/countkeeper/countkeeper/pkg/storage"
)

// Store is a memory-based implementation of the sheet store contract. It is
// used by the development server and by tests. Tables are created on first
// append.
type Store struct {
	sync.RWMutex
	tables map[string][]storage.Row

	failRemaining int
	failErr       error
}

// NewStore creates a new memory-based sheet store
func NewStore() *Store {
	return &Store{
		tables: make(map[string][]storage.Row),
	}
}

// FailNext makes the next n calls fail with err. Tests use this to simulate
// quota rejections and other store faults.
func (s *Store) FailNext(n int, err error) {
	s.Lock()
	defer s.Unlock()
	s.failRemaining = n
	s.failErr = err
}

func (s *Store) nextFailure() error {
	if s.failRemaining <= 0 {
		return nil
	}
	s.failRemaining--
	return s.failErr
}

func (s *Store) GetRows(ctx context.Context, table string) ([]storage.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	if err := s.nextFailure(); err != nil {
		return nil, err
	}

	rows := s.tables[table]
	out := make([]storage.Row, len(rows))
	for i, row := range rows {
		out[i] = append(storage.Row(nil), row...)
	}

	return out, nil
}

func (s *Store) AppendRow(ctx context.Context, table string, row storage.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	if err := s.nextFailure(); err != nil {
		return err
	}

	s.tables[table] = append(s.tables[table], append(storage.Row(nil), row...))

	return nil
}

func (s *Store) UpdateRow(ctx context.Context, table string, rowIndex int, row storage.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	if err := s.nextFailure(); err != nil {
		return err
	}

	rows, ok := s.tables[table]
	if !ok || rowIndex < 0 || rowIndex >= len(rows) {
		return storage.ErrNotFound
	}
	rows[rowIndex] = append(storage.Row(nil), row...)

	return nil
}

func (s *Store) ClearRow(ctx context.Context, table string, rowIndex int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	if err := s.nextFailure(); err != nil {
		return err
	}

	rows, ok := s.tables[table]
	if !ok || rowIndex < 0 || rowIndex >= len(rows) {
		return storage.ErrNotFound
	}
	rows[rowIndex] = storage.Row{}

	return nil
}

func (s *Store) ClearTable(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()

	if err := s.nextFailure(); err != nil {
		return err
	}

	delete(s.tables, table)

	return nil
}

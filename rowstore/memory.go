package rowstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. Sections stage a copy of the table and
// swap it in on Commit, so uncommitted writes vanish on Release.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	closed      bool
	t           *table

	sem chan struct{}
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sem: make(chan struct{}, 1)}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.initialized = true
	return nil
}

func (s *MemoryStore) CreateTable(_ context.Context, columns []Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(); err != nil {
		return err
	}
	if s.t != nil {
		return ErrTableExists
	}
	s.t = newTable(columns)
	return nil
}

func (s *MemoryStore) Columns(_ context.Context) ([]Column, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(); err != nil {
		return nil, err
	}
	if s.t == nil {
		return nil, nil
	}
	return append([]Column(nil), s.t.columns...), nil
}

func (s *MemoryStore) Lock(ctx context.Context) (Section, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(); err != nil {
		<-s.sem
		return nil, err
	}
	if s.t == nil {
		<-s.sem
		return nil, ErrNoTable
	}
	return &memorySection{s: s, t: s.t.clone()}, nil
}

func (s *MemoryStore) InsertRows(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	var last int64
	err := s.autocommit(ctx, func(q Querier) error {
		var err error
		last, err = q.InsertRows(ctx, columns, rows)
		return err
	})
	return last, err
}

func (s *MemoryStore) UpdateCells(ctx context.Context, columns []string, values [][]any, rowIDs []int64) error {
	return s.autocommit(ctx, func(q Querier) error {
		return q.UpdateCells(ctx, columns, values, rowIDs)
	})
}

func (s *MemoryStore) SelectColumns(_ context.Context, columns []Column, rowIDs []int64) (*Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table()
	if err != nil {
		return nil, err
	}
	return t.selectColumns(columns, rowIDs)
}

func (s *MemoryStore) MaxInt(_ context.Context, column string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table()
	if err != nil {
		return 0, err
	}
	return t.maxInt(column)
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table()
	if err != nil {
		return 0, err
	}
	return int64(len(t.rows)), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func (s *MemoryStore) check() error {
	if s.closed {
		return ErrClosed
	}
	if !s.initialized {
		return fmt.Errorf("rowstore: store is not initialized")
	}
	return nil
}

func (s *MemoryStore) table() (*table, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.t == nil {
		return nil, ErrNoTable
	}
	return s.t, nil
}

func (s *MemoryStore) autocommit(ctx context.Context, fn func(q Querier) error) error {
	sec, err := s.Lock(ctx)
	if err != nil {
		return err
	}
	defer sec.Release()

	if err := fn(sec); err != nil {
		return err
	}
	return sec.Commit()
}

type memorySection struct {
	s         *MemoryStore
	t         *table
	committed bool
	done      bool
}

func (m *memorySection) InsertRows(_ context.Context, columns []string, rows [][]any) (int64, error) {
	if m.done || m.committed {
		return 0, ErrSectionDone
	}
	return m.t.insert(columns, rows)
}

func (m *memorySection) UpdateCells(_ context.Context, columns []string, values [][]any, rowIDs []int64) error {
	if m.done || m.committed {
		return ErrSectionDone
	}
	return m.t.update(columns, values, rowIDs)
}

func (m *memorySection) SelectColumns(_ context.Context, columns []Column, rowIDs []int64) (*Frame, error) {
	if m.done {
		return nil, ErrSectionDone
	}
	return m.t.selectColumns(columns, rowIDs)
}

func (m *memorySection) MaxInt(_ context.Context, column string) (int64, error) {
	if m.done {
		return 0, ErrSectionDone
	}
	return m.t.maxInt(column)
}

func (m *memorySection) Count(_ context.Context) (int64, error) {
	if m.done {
		return 0, ErrSectionDone
	}
	return int64(len(m.t.rows)), nil
}

func (m *memorySection) Commit() error {
	if m.done || m.committed {
		return ErrSectionDone
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if m.s.closed {
		return ErrClosed
	}
	m.s.t = m.t
	m.t = m.t.clone()
	m.committed = true
	return nil
}

func (m *memorySection) Release() error {
	if m.done {
		return nil
	}
	m.done = true
	m.t = nil
	<-m.s.sem
	return nil
}

type table struct {
	columns []Column
	index   map[string]int
	rows    [][]any
}

func newTable(columns []Column) *table {
	t := &table{
		columns: append([]Column(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		t.index[c.Name] = i
	}
	return t
}

func (t *table) clone() *table {
	c := &table{columns: t.columns, index: t.index, rows: make([][]any, len(t.rows))}
	for i, r := range t.rows {
		c.rows[i] = append([]any(nil), r...)
	}
	return c
}

func (t *table) positions(columns []string) ([]int, error) {
	pos := make([]int, len(columns))
	for i, name := range columns {
		p, ok := t.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
		pos[i] = p
	}
	return pos, nil
}

func (t *table) insert(columns []string, rows [][]any) (int64, error) {
	pos, err := t.positions(columns)
	if err != nil {
		return 0, err
	}

	staged := make([][]any, 0, len(rows))
	for _, r := range rows {
		if len(r) != len(columns) {
			return 0, fmt.Errorf("%w: %d values for %d columns", ErrValueCount, len(r), len(columns))
		}
		row := make([]any, len(t.columns))
		for i, p := range pos {
			v, err := normalize(t.columns[p].Type, r[i])
			if err != nil {
				return 0, fmt.Errorf("column %s: %w", columns[i], err)
			}
			row[p] = v
		}
		staged = append(staged, row)
	}

	t.rows = append(t.rows, staged...)
	return int64(len(t.rows)), nil
}

func (t *table) update(columns []string, values [][]any, rowIDs []int64) error {
	pos, err := t.positions(columns)
	if err != nil {
		return err
	}

	if rowIDs == nil {
		rowIDs = make([]int64, len(t.rows))
		for i := range rowIDs {
			rowIDs[i] = int64(i + 1)
		}
	}
	if err := checkValues(values, len(columns), len(rowIDs)); err != nil {
		return err
	}

	for k, id := range rowIDs {
		if id < 1 || id > int64(len(t.rows)) {
			return fmt.Errorf("rowstore: row %d does not exist", id)
		}
		src := values[0]
		if len(values) > 1 {
			src = values[k]
		}
		row := t.rows[id-1]
		for i, p := range pos {
			v, err := normalize(t.columns[p].Type, src[i])
			if err != nil {
				return fmt.Errorf("column %s: %w", columns[i], err)
			}
			row[p] = v
		}
	}
	return nil
}

func (t *table) selectColumns(columns []Column, rowIDs []int64) (*Frame, error) {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	pos, err := t.positions(names)
	if err != nil {
		return nil, err
	}

	emit := func(f *Frame, id int64) {
		f.RowIDs = append(f.RowIDs, id)
		row := t.rows[id-1]
		for i, p := range pos {
			f.Vectors[i].appendValue(row[p])
		}
	}

	if rowIDs == nil {
		f := newFrame(columns, len(t.rows))
		for i := range t.rows {
			emit(f, int64(i+1))
		}
		return f, nil
	}

	f := newFrame(columns, len(rowIDs))
	for _, id := range sortedUnique(rowIDs) {
		if id >= 1 && id <= int64(len(t.rows)) {
			emit(f, id)
		}
	}
	return f, nil
}

func (t *table) maxInt(column string) (int64, error) {
	pos, err := t.positions([]string{column})
	if err != nil {
		return 0, err
	}

	var max int64
	found := false
	for _, r := range t.rows {
		v, ok := r[pos[0]].(int64)
		if ok && (!found || v > max) {
			max, found = v, true
		}
	}
	return max, nil
}

package rowstore

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrTableExists is returned by CreateTable when the table already exists.
	ErrTableExists = errors.New("rowstore: table already exists")
	// ErrNoTable is returned when the table has not been created.
	ErrNoTable = errors.New("rowstore: table does not exist")
	// ErrUnknownColumn is returned for a column that is not part of the table.
	ErrUnknownColumn = errors.New("rowstore: unknown column")
	// ErrClosed is returned when using a closed store.
	ErrClosed = errors.New("rowstore: store is closed")
	// ErrSectionDone is returned when using a section after Commit or Release.
	ErrSectionDone = errors.New("rowstore: section already finished")
	// ErrUnsupported is returned by backends that do not implement an optional operation.
	ErrUnsupported = errors.New("rowstore: operation not supported")
	// ErrValueCount is returned when the number of values does not match the rows or columns.
	ErrValueCount = errors.New("rowstore: value count mismatch")
)

// Type is a scalar column type.
type Type int

const (
	// Real is a float64 column; NULL reads back as NaN.
	Real Type = iota + 1
	// Boolean is a bool column; NULL reads back as false.
	Boolean
	// Integer is an int64 column; NULL reads back as 0.
	Integer
)

func (t Type) String() string {
	switch t {
	case Real:
		return "real"
	case Boolean:
		return "boolean"
	case Integer:
		return "integer"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Column is a named, typed table column.
type Column struct {
	Name string
	Type Type
}

// Querier is the set of table operations available both on a Store and on a
// Section holding the exclusive lock.
type Querier interface {
	// InsertRows appends rows (values ordered like columns) and returns the
	// row id of the last inserted row. Row ids of one call are consecutive.
	InsertRows(ctx context.Context, columns []string, rows [][]any) (int64, error)

	// UpdateCells overwrites columns of the given rows. rowIDs == nil addresses
	// every row. A single value row is broadcast to all addressed rows;
	// otherwise len(values) must equal len(rowIDs).
	UpdateCells(ctx context.Context, columns []string, values [][]any, rowIDs []int64) error

	// SelectColumns reads columns for the given rows (nil: all rows), ordered by row id.
	SelectColumns(ctx context.Context, columns []Column, rowIDs []int64) (*Frame, error)

	// MaxInt returns the largest value of an integer column, 0 for an empty table.
	MaxInt(ctx context.Context, column string) (int64, error)

	// Count returns the number of rows.
	Count(ctx context.Context) (int64, error)
}

// Store is a single-table row store.
type Store interface {
	Querier

	// Init opens the backing resources. It is idempotent.
	Init(ctx context.Context) error

	// CreateTable creates the table. It fails with ErrTableExists if it already exists.
	CreateTable(ctx context.Context, columns []Column) error

	// Columns returns the table definition, or nil if no table exists.
	Columns(ctx context.Context) ([]Column, error)

	// Lock acquires the exclusive write lock, waiting until ctx is done.
	Lock(ctx context.Context) (Section, error)

	// Close releases the store.
	Close() error
}

// Section is an exclusive locked section of a Store.
type Section interface {
	Querier

	// Commit makes the section's writes durable and visible.
	Commit() error

	// Release rolls back uncommitted writes and releases the lock.
	// It is safe to call after Commit and more than once.
	Release() error
}

// Backuper is implemented by stores that can write a consistent copy of
// themselves to a file.
type Backuper interface {
	Backup(ctx context.Context, dst string) error
}

// Vector is one selected column.
type Vector struct {
	Column
	Reals []float64
	Bools []bool
	Ints  []int64
}

// Frame is the column-oriented result of SelectColumns.
type Frame struct {
	RowIDs  []int64
	Vectors []Vector
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.RowIDs)
}

// Vector returns the selected column with the given name.
func (f *Frame) Vector(name string) (*Vector, bool) {
	for i := range f.Vectors {
		if f.Vectors[i].Name == name {
			return &f.Vectors[i], true
		}
	}
	return nil, false
}

func newFrame(columns []Column, n int) *Frame {
	f := &Frame{
		RowIDs:  make([]int64, 0, n),
		Vectors: make([]Vector, len(columns)),
	}
	for i, c := range columns {
		f.Vectors[i].Column = c
	}
	return f
}

// appendValue appends v (as stored) to the vector, mapping NULL per type.
func (v *Vector) appendValue(x any) {
	switch v.Type {
	case Real:
		f, ok := toFloat(x)
		if !ok {
			f = math.NaN()
		}
		v.Reals = append(v.Reals, f)
	case Boolean:
		var b bool
		switch t := x.(type) {
		case bool:
			b = t
		case int64:
			b = t != 0
		case float64:
			b = t != 0
		}
		v.Bools = append(v.Bools, b)
	case Integer:
		var i int64
		switch t := x.(type) {
		case int64:
			i = t
		case float64:
			i = int64(t)
		case bool:
			if t {
				i = 1
			}
		}
		v.Ints = append(v.Ints, i)
	}
}

// normalize converts a caller supplied value to the stored representation:
// float64 (nil for NaN), bool, int64 or nil.
func normalize(t Type, x any) (any, error) {
	if x == nil {
		return nil, nil
	}
	switch t {
	case Real:
		f, ok := toFloat(x)
		if !ok {
			return nil, fmt.Errorf("rowstore: %T is not a real", x)
		}
		if math.IsNaN(f) {
			return nil, nil
		}
		return f, nil
	case Boolean:
		switch b := x.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
		return nil, fmt.Errorf("rowstore: %T is not a boolean", x)
	case Integer:
		switch i := x.(type) {
		case int64:
			return i, nil
		case int:
			return int64(i), nil
		case int32:
			return int64(i), nil
		}
		return nil, fmt.Errorf("rowstore: %T is not an integer", x)
	}
	return nil, fmt.Errorf("rowstore: unknown type %s", t)
}

func toFloat(x any) (float64, bool) {
	switch f := x.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int64:
		return float64(f), true
	case int:
		return float64(f), true
	}
	return 0, false
}

func checkValues(values [][]any, ncols, nrows int) error {
	if len(values) != 1 && len(values) != nrows {
		return fmt.Errorf("%w: %d value rows for %d rows", ErrValueCount, len(values), nrows)
	}
	for _, v := range values {
		if len(v) != ncols {
			return fmt.Errorf("%w: %d values for %d columns", ErrValueCount, len(v), ncols)
		}
	}
	return nil
}

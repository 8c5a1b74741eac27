package cell

import (
	"errors"
	"io"
)

// Names of the ledger cells, in file slot order.
const (
	OptDone      = "opt_done"
	EvalDone     = "eval_done"
	NInitSample  = "n_init_sample"
	NSample      = "n_sample"
	NValidSample = "n_valid_sample"
)

// ErrClosed is returned when a cell is used after its Set was closed.
var ErrClosed = errors.New("cell: closed")

// Cell is an independently locked int64 shared by all holders of the same Set.
//
// Every method is a single critical section under the cell's own lock.
type Cell interface {
	// Name returns the cell name.
	Name() string
	// Get returns the current value.
	Get() (int64, error)
	// Set stores v.
	Set(v int64) error
	// Add adds delta and returns the new value.
	Add(delta int64) (int64, error)
	// CheckAndClear returns whether the value was non-zero and stores 0.
	CheckAndClear() (bool, error)
}

// Set is the group of cells a ledger shares between processes.
type Set struct {
	OptDone      Cell
	EvalDone     Cell
	NInitSample  Cell
	NSample      Cell
	NValidSample Cell

	closer io.Closer
}

// Cells returns all cells in slot order.
func (s *Set) Cells() []Cell {
	return []Cell{s.OptDone, s.EvalDone, s.NInitSample, s.NSample, s.NValidSample}
}

// Reset zeroes every cell, one cell at a time.
func (s *Set) Reset() error {
	for _, c := range s.Cells() {
		if err := c.Set(0); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the backing resources. Safe to call twice.
func (s *Set) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	c := s.closer
	s.closer = nil
	return c.Close()
}

// SetBool stores a boolean flag.
func SetBool(c Cell, v bool) error {
	if v {
		return c.Set(1)
	}
	return c.Set(0)
}

// GetBool reads a boolean flag.
func GetBool(c Cell) (bool, error) {
	v, err := c.Get()
	return v != 0, err
}

func names() []string {
	return []string{OptDone, EvalDone, NInitSample, NSample, NValidSample}
}

func newSet(cells []Cell, closer io.Closer) *Set {
	return &Set{
		OptDone:      cells[0],
		EvalDone:     cells[1],
		NInitSample:  cells[2],
		NSample:      cells[3],
		NValidSample: cells[4],
		closer:       closer,
	}
}

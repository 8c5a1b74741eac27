package paretodb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/paretodb/cell"
	"github.com/hupe1980/paretodb/pareto"
	"github.com/hupe1980/paretodb/rowstore"
	"github.com/hupe1980/paretodb/schema"
)

// ErrDuplicateRow is returned when an update names the same row twice.
var ErrDuplicateRow = errors.New("duplicate row id")

// InitializeData seeds the ledger with its initial samples and returns their
// row ids. Y may be nil to seed unevaluated rows. Seeded rows belong to batch 0
// and configuration 0.
func (l *Ledger) InitializeData(ctx context.Context, X, Y [][]float64) ([]int64, error) {
	h, err := l.handles(SchemaReady, Active)
	if err != nil {
		return nil, err
	}

	if err := checkMatrix("X", X, h.schema.NVar()); err != nil {
		return nil, err
	}
	if Y != nil {
		if len(Y) != len(X) {
			return nil, &DimensionMismatchError{Field: "Y rows", Expected: len(X), Actual: len(Y)}
		}
		if err := checkMatrix("Y", Y, h.schema.NObj()); err != nil {
			return nil, err
		}
	}

	if len(X) == 0 {
		l.activate()
		return nil, nil
	}

	fields := []schema.Field{schema.X}
	if Y != nil {
		fields = append(fields, schema.Y)
	}
	fields = append(fields, schema.YExpected, schema.YUncertainty, schema.IsPareto, schema.ConfigID, schema.BatchID)
	cols, err := h.schema.MapFlat(fields)
	if err != nil {
		return nil, err
	}

	// Seeds carry no prediction; expectation and uncertainty are stored as 0.
	zeros := make([]float64, h.schema.NObj())
	rows := make([][]any, len(X))
	for i := range X {
		r := appendReals(make([]any, 0, len(cols)), X[i])
		if Y != nil {
			r = appendReals(r, Y[i])
		}
		r = appendReals(appendReals(r, zeros), zeros)
		rows[i] = append(r, false, int64(0), int64(0))
	}

	valid := 0
	for _, y := range Y {
		if pareto.Valid(y) {
			valid++
		}
	}

	var ids []int64
	start := time.Now()
	err = l.withSection(ctx, h, func(ctx context.Context, q rowstore.Querier) error {
		last, err := q.InsertRows(ctx, schema.Names(cols), rows)
		if err != nil {
			return err
		}
		ids = idRange(last, len(rows))

		if Y != nil {
			if _, err := recomputePareto(ctx, q, h); err != nil {
				return err
			}
		}
		return nil
	}, func() error {
		return errors.Join(
			add(h.cells.NSample, len(rows)),
			add(h.cells.NValidSample, valid),
			add(h.cells.NInitSample, valid),
			setIf(h.cells.EvalDone, Y != nil),
			cell.SetBool(h.cells.OptDone, true),
		)
	})

	l.opts.metricsCollector.RecordInsert(len(rows), time.Since(start), err)
	l.opts.logger.LogInsert(ctx, 0, len(rows), err)
	if err != nil {
		return nil, err
	}

	l.activate()
	return ids, nil
}

// Insert appends one batch of proposed designs and returns their row ids.
// The batch id is one more than the largest batch id in the table, read under
// the same lock as the insert. YExpected and YUncertainty may be nil.
func (l *Ledger) Insert(ctx context.Context, XNext, YExpected, YUncertainty [][]float64, configID int64) ([]int64, error) {
	h, err := l.handles(Active)
	if err != nil {
		return nil, err
	}

	n := len(XNext)
	if err := checkMatrix("X", XNext, h.schema.NVar()); err != nil {
		return nil, err
	}
	for _, m := range []struct {
		name string
		v    [][]float64
	}{{"Y_expected", YExpected}, {"Y_uncertainty", YUncertainty}} {
		if m.v == nil {
			continue
		}
		if len(m.v) != n {
			return nil, &DimensionMismatchError{Field: m.name + " rows", Expected: n, Actual: len(m.v)}
		}
		if err := checkMatrix(m.name, m.v, h.schema.NObj()); err != nil {
			return nil, err
		}
	}
	if n == 0 {
		return nil, nil
	}

	cols, err := h.schema.MapFlat([]schema.Field{
		schema.X, schema.YExpected, schema.YUncertainty, schema.IsPareto, schema.ConfigID, schema.BatchID,
	})
	if err != nil {
		return nil, err
	}

	var (
		ids     []int64
		batchID int64
	)
	start := time.Now()
	err = l.withSection(ctx, h, func(ctx context.Context, q rowstore.Querier) error {
		prev, err := q.MaxInt(ctx, string(schema.BatchID))
		if err != nil {
			return err
		}
		batchID = prev + 1

		rows := make([][]any, n)
		for i := range XNext {
			r := appendReals(make([]any, 0, len(cols)), XNext[i])
			r = appendReals(r, rowOrMissing(YExpected, i, h.schema.NObj()))
			r = appendReals(r, rowOrMissing(YUncertainty, i, h.schema.NObj()))
			rows[i] = append(r, false, configID, batchID)
		}

		last, err := q.InsertRows(ctx, schema.Names(cols), rows)
		if err != nil {
			return err
		}
		ids = idRange(last, n)
		return nil
	}, func() error {
		return errors.Join(
			add(h.cells.NSample, n),
			cell.SetBool(h.cells.OptDone, true),
		)
	})

	l.opts.metricsCollector.RecordInsert(n, time.Since(start), err)
	l.opts.logger.LogInsert(ctx, batchID, n, err)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Update overwrites the objective values of one row.
func (l *Ledger) Update(ctx context.Context, y []float64, rowID int64) error {
	return l.UpdateBatch(ctx, [][]float64{y}, []int64{rowID})
}

// UpdateBatch overwrites the objective values of several rows and recomputes
// the Pareto flags over every valid row under one lock acquisition.
//
// n_valid_sample grows by the number of rows that were not valid before;
// re-evaluating a valid row does not count again.
func (l *Ledger) UpdateBatch(ctx context.Context, Y [][]float64, rowIDs []int64) error {
	h, err := l.handles(Active)
	if err != nil {
		return err
	}

	if len(Y) != len(rowIDs) {
		return &DimensionMismatchError{Field: "Y rows", Expected: len(rowIDs), Actual: len(Y)}
	}
	if len(Y) == 0 {
		return nil
	}
	if err := checkMatrix("Y", Y, h.schema.NObj()); err != nil {
		return err
	}

	seen := make(map[int64]struct{}, len(rowIDs))
	for i, id := range rowIDs {
		if id < 1 {
			return fmt.Errorf("%w: %d", ErrRowNotFound, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %d", ErrDuplicateRow, id)
		}
		seen[id] = struct{}{}
		if !pareto.Valid(Y[i]) {
			return fmt.Errorf("%w: row %d", ErrMissingObjective, id)
		}
	}

	yCols, err := h.schema.Map(schema.Y)
	if err != nil {
		return err
	}
	batchCol, err := h.schema.Map(schema.BatchID)
	if err != nil {
		return err
	}

	values := make([][]any, len(Y))
	for i, y := range Y {
		values[i] = appendReals(make([]any, 0, len(y)), y)
	}

	var newlyValid, newlyInit, front int
	start := time.Now()
	err = l.withSection(ctx, h, func(ctx context.Context, q rowstore.Querier) error {
		n, err := q.Count(ctx)
		if err != nil {
			return err
		}
		for _, id := range rowIDs {
			if id > n {
				return fmt.Errorf("%w: %d", ErrRowNotFound, id)
			}
		}

		prev, err := q.SelectColumns(ctx, append(yCols, batchCol...), rowIDs)
		if err != nil {
			return err
		}
		before := matrix(prev, yCols)
		batch, _ := prev.Vector(string(schema.BatchID))
		for i := range prev.RowIDs {
			if !pareto.Valid(before[i]) {
				newlyValid++
				if batch.Ints[i] == 0 {
					newlyInit++
				}
			}
		}

		if err := q.UpdateCells(ctx, schema.Names(yCols), values, rowIDs); err != nil {
			return err
		}

		front, err = recomputePareto(ctx, q, h)
		return err
	}, func() error {
		return errors.Join(
			add(h.cells.NValidSample, newlyValid),
			add(h.cells.NInitSample, newlyInit),
			cell.SetBool(h.cells.EvalDone, true),
		)
	})

	l.opts.metricsCollector.RecordUpdate(len(rowIDs), newlyValid, time.Since(start), err)
	l.opts.logger.LogUpdate(ctx, len(rowIDs), newlyValid, front, err)
	return err
}

// withSection runs fn under the row store's exclusive lock and commits. after
// runs once the commit succeeded, still under the lock, so counter updates
// are ordered with the data they describe.
//
// Waiting for the lock honours ctx. Once the lock is held, fn and after run
// to completion on a context that is never cancelled.
func (l *Ledger) withSection(ctx context.Context, h handles, fn func(ctx context.Context, q rowstore.Querier) error, after func() error) error {
	lctx := ctx
	if l.opts.lockTimeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, l.opts.lockTimeout)
		defer cancel()
	}

	start := time.Now()
	sec, err := h.store.Lock(lctx)
	l.opts.metricsCollector.RecordLockWait(time.Since(start))
	if err != nil {
		return err
	}
	defer sec.Release()

	wctx := context.WithoutCancel(ctx)
	if err := fn(wctx, sec); err != nil {
		return err
	}
	if err := sec.Commit(); err != nil {
		return err
	}
	if after != nil {
		return after()
	}
	return nil
}

// recomputePareto rewrites is_pareto over the whole table and returns the
// size of the front. It must run inside the section of the triggering write.
func recomputePareto(ctx context.Context, q rowstore.Querier, h handles) (int, error) {
	yCols, err := h.schema.Map(schema.Y)
	if err != nil {
		return 0, err
	}

	f, err := q.SelectColumns(ctx, yCols, nil)
	if err != nil {
		return 0, err
	}

	ys := matrix(f, yCols)
	rows := make([]pareto.Row, len(ys))
	for i, y := range ys {
		rows[i] = pareto.Row{ID: uint64(f.RowIDs[i]), Y: y}
	}
	front := pareto.Recompute(rows, h.dirs)

	col := []string{string(schema.IsPareto)}
	if err := q.UpdateCells(ctx, col, [][]any{{false}}, nil); err != nil {
		return 0, err
	}
	if front.IsEmpty() {
		return 0, nil
	}

	ids := make([]int64, 0, front.GetCardinality())
	it := front.Iterator()
	for it.HasNext() {
		ids = append(ids, int64(it.Next()))
	}
	if err := q.UpdateCells(ctx, col, [][]any{{true}}, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func checkMatrix(field string, m [][]float64, width int) error {
	for _, row := range m {
		if len(row) != width {
			return &DimensionMismatchError{Field: field, Expected: width, Actual: len(row)}
		}
	}
	return nil
}

func appendReals(dst []any, v []float64) []any {
	for _, x := range v {
		dst = append(dst, x)
	}
	return dst
}

func rowOrMissing(m [][]float64, i, width int) []float64 {
	if m != nil {
		return m[i]
	}
	out := make([]float64, width)
	for j := range out {
		out[j] = math.NaN()
	}
	return out
}

func idRange(last int64, n int) []int64 {
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = last - int64(n-1-i)
	}
	return ids
}

func add(c cell.Cell, delta int) error {
	if delta == 0 {
		return nil
	}
	_, err := c.Add(int64(delta))
	return err
}

func setIf(c cell.Cell, v bool) error {
	if !v {
		return nil
	}
	return cell.SetBool(c, true)
}

package paretodb

import (
	"context"
	"slices"
	"time"

	"github.com/hupe1980/paretodb/pareto"
	"github.com/hupe1980/paretodb/rowstore"
	"github.com/hupe1980/paretodb/schema"
)

// Data is the result of Load: parallel arrays, one entry per row. Fields that
// were not requested are nil.
type Data struct {
	RowIDs       []int64
	X            [][]float64
	Y            [][]float64
	YExpected    [][]float64
	YUncertainty [][]float64
	IsPareto     []bool
	ConfigID     []int64
	BatchID      []int64
}

// Len returns the number of rows.
func (d *Data) Len() int {
	if d == nil {
		return 0
	}
	return len(d.RowIDs)
}

type loadOptions struct {
	validOnly bool
	rowIDs    []int64
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithValidOnly controls whether rows with missing objective values are
// dropped when Y is requested. The default is true.
func WithValidOnly(v bool) LoadOption {
	return func(o *loadOptions) {
		o.validOnly = v
	}
}

// WithRowIDs restricts Load to the given rows. Row ids that do not exist are
// skipped.
func WithRowIDs(ids ...int64) LoadOption {
	return func(o *loadOptions) {
		o.rowIDs = append([]int64{}, ids...)
	}
}

// Load reads the requested fields, ordered by row id. No fields means all of
// them. Load does not take the exclusive lock.
func (l *Ledger) Load(ctx context.Context, fields []schema.Field, opts ...LoadOption) (*Data, error) {
	h, err := l.handles(SchemaReady, Active)
	if err != nil {
		return nil, err
	}

	lo := loadOptions{validOnly: true}
	for _, fn := range opts {
		fn(&lo)
	}

	start := time.Now()
	d, err := load(ctx, h.store, h.schema, fields, lo)
	l.opts.metricsCollector.RecordLoad(d.Len(), time.Since(start), err)
	return d, err
}

// load reads through q, which is either the store or a held section.
func load(ctx context.Context, q rowstore.Querier, s *schema.Schema, fields []schema.Field, lo loadOptions) (*Data, error) {
	if len(fields) == 0 {
		fields = schema.Fields
	}

	cols, err := s.MapFlat(fields)
	if err != nil {
		return nil, err
	}

	f, err := q.SelectColumns(ctx, cols, lo.rowIDs)
	if err != nil {
		return nil, err
	}

	d := &Data{RowIDs: f.RowIDs}
	for _, field := range fields {
		fc, _ := s.Map(field)
		switch field {
		case schema.X:
			d.X = matrix(f, fc)
		case schema.Y:
			d.Y = matrix(f, fc)
		case schema.YExpected:
			d.YExpected = matrix(f, fc)
		case schema.YUncertainty:
			d.YUncertainty = matrix(f, fc)
		case schema.IsPareto:
			v, _ := f.Vector(fc[0].Name)
			d.IsPareto = v.Bools
		case schema.ConfigID:
			v, _ := f.Vector(fc[0].Name)
			d.ConfigID = v.Ints
		case schema.BatchID:
			v, _ := f.Vector(fc[0].Name)
			d.BatchID = v.Ints
		}
	}

	if lo.validOnly && slices.Contains(fields, schema.Y) {
		keep := make([]bool, d.Len())
		for i, y := range d.Y {
			keep[i] = pareto.Valid(y)
		}
		d.RowIDs = filterRows(d.RowIDs, keep)
		d.X = filterRows(d.X, keep)
		d.Y = filterRows(d.Y, keep)
		d.YExpected = filterRows(d.YExpected, keep)
		d.YUncertainty = filterRows(d.YUncertainty, keep)
		d.IsPareto = filterRows(d.IsPareto, keep)
		d.ConfigID = filterRows(d.ConfigID, keep)
		d.BatchID = filterRows(d.BatchID, keep)
	}
	return d, nil
}

// matrix gathers the real columns cols of f into one row-major matrix.
func matrix(f *rowstore.Frame, cols []rowstore.Column) [][]float64 {
	vecs := make([]*rowstore.Vector, len(cols))
	for j, c := range cols {
		vecs[j], _ = f.Vector(c.Name)
	}

	out := make([][]float64, f.Len())
	for i := range out {
		row := make([]float64, len(cols))
		for j, v := range vecs {
			row[j] = v.Reals[i]
		}
		out[i] = row
	}
	return out
}

func filterRows[T any](v []T, keep []bool) []T {
	if v == nil {
		return nil
	}
	out := make([]T, 0, len(v))
	for i, x := range v {
		if keep[i] {
			out = append(out, x)
		}
	}
	return out
}

package paretodb

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/paretodb/cell"
	"github.com/hupe1980/paretodb/pareto"
	"github.com/hupe1980/paretodb/rowstore"
	"github.com/hupe1980/paretodb/schema"
)

// Counters is a snapshot of the sample counters.
type Counters struct {
	NInitSample  int64
	NSample      int64
	NValidSample int64
}

// CheckOptDone reports whether an insert completed since the last call, and
// clears the flag.
func (l *Ledger) CheckOptDone() (bool, error) {
	h, err := l.handles(SchemaReady, Active)
	if err != nil {
		return false, err
	}
	return h.cells.OptDone.CheckAndClear()
}

// CheckEvalDone reports whether an update completed since the last call, and
// clears the flag.
func (l *Ledger) CheckEvalDone() (bool, error) {
	h, err := l.handles(SchemaReady, Active)
	if err != nil {
		return false, err
	}
	return h.cells.EvalDone.CheckAndClear()
}

// NInitSample returns the number of valid seeded rows.
func (l *Ledger) NInitSample() (int64, error) {
	return l.counter(func(s *cell.Set) cell.Cell { return s.NInitSample })
}

// NSample returns the number of rows.
func (l *Ledger) NSample() (int64, error) {
	return l.counter(func(s *cell.Set) cell.Cell { return s.NSample })
}

// NValidSample returns the number of rows with complete objective values.
func (l *Ledger) NValidSample() (int64, error) {
	return l.counter(func(s *cell.Set) cell.Cell { return s.NValidSample })
}

// Counters reads all three counters. Each is read under its own lock, so the
// snapshot is not atomic across counters.
func (l *Ledger) Counters() (Counters, error) {
	h, err := l.handles(SchemaReady, Active)
	if err != nil {
		return Counters{}, err
	}

	var c Counters
	var errs [3]error
	c.NInitSample, errs[0] = h.cells.NInitSample.Get()
	c.NSample, errs[1] = h.cells.NSample.Get()
	c.NValidSample, errs[2] = h.cells.NValidSample.Get()
	return c, errors.Join(errs[:]...)
}

func (l *Ledger) counter(pick func(*cell.Set) cell.Cell) (int64, error) {
	h, err := l.handles(SchemaReady, Active)
	if err != nil {
		return 0, err
	}
	return pick(h.cells).Get()
}

// CorrectStatus raises both done flags so pollers re-read the ledger. It is
// used after an interruption, when a write may or may not have landed.
func (l *Ledger) CorrectStatus() error {
	h, err := l.handles(SchemaReady, Active)
	if err != nil {
		return err
	}

	err = errors.Join(
		cell.SetBool(h.cells.OptDone, true),
		cell.SetBool(h.cells.EvalDone, true),
	)
	l.opts.metricsCollector.RecordCorrection("status", err)
	l.opts.logger.LogCorrection(context.Background(), "status", err)
	return err
}

// CorrectStats recounts n_sample, n_valid_sample and n_init_sample from the
// row store and overwrites the counters. It takes the exclusive lock so no
// writer can commit between the scan and the overwrite.
func (l *Ledger) CorrectStats(ctx context.Context) error {
	h, err := l.handles(SchemaReady, Active)
	if err != nil {
		return err
	}

	cols, err := h.schema.MapFlat([]schema.Field{schema.Y, schema.BatchID})
	if err != nil {
		return err
	}
	yCols := cols[:len(cols)-1]

	var c Counters
	start := time.Now()
	err = l.withSection(ctx, h, func(ctx context.Context, q rowstore.Querier) error {
		f, err := q.SelectColumns(ctx, cols, nil)
		if err != nil {
			return err
		}

		batch, _ := f.Vector(string(schema.BatchID))
		c.NSample = int64(f.Len())
		for i, y := range matrix(f, yCols) {
			if !pareto.Valid(y) {
				continue
			}
			c.NValidSample++
			if batch.Ints[i] == 0 {
				c.NInitSample++
			}
		}
		return nil
	}, func() error {
		return errors.Join(
			h.cells.NSample.Set(c.NSample),
			h.cells.NValidSample.Set(c.NValidSample),
			h.cells.NInitSample.Set(c.NInitSample),
		)
	})

	l.opts.metricsCollector.RecordCorrection("stats", err)
	l.opts.logger.LogCorrection(ctx, "stats", err,
		"n_sample", c.NSample,
		"n_valid_sample", c.NValidSample,
		"n_init_sample", c.NInitSample,
		"elapsed", time.Since(start),
	)
	return err
}

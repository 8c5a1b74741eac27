package paretodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/paretodb/problem"
	"github.com/hupe1980/paretodb/schema"
)

// Result is what Optimize and Predict report on their result channel.
type Result struct {
	RowIDs []int64
	Err    error
}

// Evaluate runs the evaluator on the design of rowID and stores the result.
//
// If ctx is cancelled, the status flags and counters are corrected and an
// *InterruptedError is returned. A lock-held section is never cut short.
func (l *Ledger) Evaluate(ctx context.Context, cfg *problem.Config, rowID int64) ([]float64, error) {
	if l.opts.evaluator == nil {
		return nil, fmt.Errorf("%w: evaluator", ErrNoCollaborator)
	}
	start := time.Now()

	// x is immutable after insert, so it is read without the lock.
	d, err := l.Load(ctx, []schema.Field{schema.X}, WithValidOnly(false), WithRowIDs(rowID))
	if err != nil {
		return nil, l.interruptible(ctx, "evaluate", start, err)
	}
	if d.Len() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrRowNotFound, rowID)
	}

	y, err := l.opts.evaluator.Evaluate(ctx, cfg, d.X[0])
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = l.Update(ctx, y, rowID)
	}
	if err != nil {
		return nil, l.interruptible(ctx, "evaluate", start, err)
	}
	return y, nil
}

// Optimize proposes a batch with the optimizer (and the predictor, when one is
// set) from the valid rows, and inserts it.
//
// With a nil results channel the row ids are returned. Otherwise the call is
// running as a worker: the outcome is sent on results and only the error is
// returned. The channel must be buffered or drained.
func (l *Ledger) Optimize(ctx context.Context, cfg *problem.Config, configID int64, results chan<- Result) ([]int64, error) {
	return l.propose(ctx, "optimize", configID, results, func(ctx context.Context, d *Data) ([][]float64, [][]float64, [][]float64, error) {
		if l.opts.optimizer == nil {
			return nil, nil, nil, fmt.Errorf("%w: optimizer", ErrNoCollaborator)
		}
		xNext, err := l.opts.optimizer.Optimize(ctx, cfg, d.X, d.Y)
		if err != nil {
			return nil, nil, nil, err
		}
		if l.opts.predictor == nil {
			return xNext, nil, nil, nil
		}
		yExp, yUnc, err := l.opts.predictor.Predict(ctx, cfg, d.X, d.Y, xNext)
		return xNext, yExp, yUnc, err
	})
}

// Predict inserts the given designs together with the predictor's estimates.
// The results channel behaves as in Optimize.
func (l *Ledger) Predict(ctx context.Context, cfg *problem.Config, configID int64, XNext [][]float64, results chan<- Result) ([]int64, error) {
	return l.propose(ctx, "predict", configID, results, func(ctx context.Context, d *Data) ([][]float64, [][]float64, [][]float64, error) {
		if l.opts.predictor == nil {
			return nil, nil, nil, fmt.Errorf("%w: predictor", ErrNoCollaborator)
		}
		yExp, yUnc, err := l.opts.predictor.Predict(ctx, cfg, d.X, d.Y, XNext)
		return XNext, yExp, yUnc, err
	})
}

type proposeFunc func(ctx context.Context, d *Data) (xNext, yExpected, yUncertainty [][]float64, err error)

func (l *Ledger) propose(ctx context.Context, op string, configID int64, results chan<- Result, next proposeFunc) ([]int64, error) {
	start := time.Now()

	ids, err := func() ([]int64, error) {
		d, err := l.Load(ctx, []schema.Field{schema.X, schema.Y})
		if err != nil {
			return nil, err
		}

		xNext, yExp, yUnc, err := next(ctx, d)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return l.Insert(ctx, xNext, yExp, yUnc, configID)
	}()
	if err != nil {
		err = l.interruptible(ctx, op, start, err)
	}

	if results != nil {
		results <- Result{RowIDs: ids, Err: err}
		return nil, err
	}
	return ids, err
}

// interruptible turns err into an *InterruptedError if ctx is done.
func (l *Ledger) interruptible(ctx context.Context, op string, start time.Time, err error) error {
	if ctx.Err() == nil {
		return err
	}

	bg := context.WithoutCancel(ctx)
	l.opts.logger.LogInterrupt(bg, op, time.Since(start))

	if d := l.opts.correctTimeout; d > 0 {
		var cancel context.CancelFunc
		bg, cancel = context.WithTimeout(bg, d)
		defer cancel()
	}

	if cerr := errors.Join(l.CorrectStatus(), l.CorrectStats(bg)); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return &InterruptedError{Op: op, Cause: ctx.Err(), Err: err}
}

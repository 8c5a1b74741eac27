package paretodb

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/paretodb/cell"
	"github.com/hupe1980/paretodb/problem"
	"github.com/hupe1980/paretodb/rowstore"
	"github.com/hupe1980/paretodb/schema"
)

func testProblem() *problem.Config {
	cfg := problem.DefaultConfig()
	cfg.Name = "test"
	cfg.NVar, cfg.NObj = 2, 2
	cfg.Bounds = problem.Bounds{Lower: []float64{0, 0}, Upper: []float64{1, 1}}
	cfg.Optimizer.BatchSize = 3
	cfg.Optimizer.Seed = 7
	return &cfg
}

// sumEvaluator maps x to (x1+x2, x1-x2).
var sumEvaluator = problem.EvaluatorFunc(func(ctx context.Context, _ *problem.Config, x []float64) ([]float64, error) {
	return []float64{x[0] + x[1], x[0] - x[1]}, ctx.Err()
})

func TestEvaluate(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind string) {
		ctx := context.Background()
		l := newTestLedger(t, kind, WithEvaluator(sumEvaluator))

		_, err := l.InitializeData(ctx, [][]float64{{1, 2}, {3, 1}}, nil)
		require.NoError(t, err)
		mustFlags(t, l)

		y, err := l.Evaluate(ctx, testProblem(), 2)
		require.NoError(t, err)
		assert.Equal(t, []float64{4, 2}, y)

		d, err := l.Load(ctx, []schema.Field{schema.Y, schema.IsPareto})
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, d.RowIDs)
		assert.Equal(t, [][]float64{{4, 2}}, d.Y)
		assert.Equal(t, []bool{true}, d.IsPareto)

		_, eval := mustFlags(t, l)
		assert.True(t, eval)
		assert.Equal(t, Counters{NInitSample: 1, NSample: 2, NValidSample: 1}, mustCounters(t, l))
	})
}

func TestEvaluate_Errors(t *testing.T) {
	ctx := context.Background()

	l := newTestLedger(t, "memory")
	seedScenario(t, l)
	_, err := l.Evaluate(ctx, testProblem(), 1)
	assert.ErrorIs(t, err, ErrNoCollaborator)

	boom := errors.New("solver diverged")
	l = newTestLedger(t, "memory", WithEvaluator(problem.EvaluatorFunc(
		func(context.Context, *problem.Config, []float64) ([]float64, error) { return nil, boom },
	)))
	seedScenario(t, l)

	_, err = l.Evaluate(ctx, testProblem(), 3)
	assert.ErrorIs(t, err, ErrRowNotFound)

	_, err = l.Evaluate(ctx, testProblem(), 1)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsInterrupted(err))

	l = newTestLedger(t, "memory", WithEvaluator(problem.EvaluatorFunc(
		func(context.Context, *problem.Config, []float64) ([]float64, error) { return []float64{1}, nil },
	)))
	seedScenario(t, l)
	_, err = l.Evaluate(ctx, testProblem(), 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestEvaluate_Interrupted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind string) {
		started := make(chan struct{})
		blocking := problem.EvaluatorFunc(func(ctx context.Context, _ *problem.Config, _ []float64) ([]float64, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})

		cells := cell.NewMemory()
		l := newTestLedger(t, kind, WithEvaluator(blocking), WithCells(cells))
		seedScenario(t, l)
		_, err := l.Insert(context.Background(), [][]float64{{3, 3}}, nil, nil, 1)
		require.NoError(t, err)
		mustFlags(t, l)

		// A worker killed earlier left the counters behind.
		require.NoError(t, cells.NValidSample.Set(9))
		require.NoError(t, cells.NSample.Set(2))

		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() {
			_, err := l.Evaluate(ctx, testProblem(), 3)
			errc <- err
		}()

		<-started
		cancel()

		select {
		case err = <-errc:
		case <-time.After(10 * time.Second):
			t.Fatal("evaluate did not return after cancellation")
		}

		require.ErrorIs(t, err, ErrInterrupted)
		assert.ErrorIs(t, err, context.Canceled)
		var ie *InterruptedError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, "evaluate", ie.Op)

		// Counters match what storage holds.
		valid, err := l.Load(context.Background(), []schema.Field{schema.Y})
		require.NoError(t, err)
		c := mustCounters(t, l)
		assert.Equal(t, int64(valid.Len()), c.NValidSample)
		assert.Equal(t, Counters{NInitSample: 2, NSample: 3, NValidSample: 2}, c)

		opt, eval := mustFlags(t, l)
		assert.True(t, opt)
		assert.True(t, eval)
	})
}

func TestEvaluate_InterruptedWhileLockHeld(t *testing.T) {
	store := rowstore.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Another writer holds the lock when the stop arrives.
	var held rowstore.Section
	evaluator := problem.EvaluatorFunc(func(ctx context.Context, _ *problem.Config, _ []float64) ([]float64, error) {
		sec, err := store.Lock(ctx)
		if err != nil {
			return nil, err
		}
		held = sec
		cancel()
		return nil, ctx.Err()
	})

	l := newTestLedger(t, "memory", WithStore(store), WithEvaluator(evaluator),
		WithCorrectionTimeout(50*time.Millisecond))
	seedScenario(t, l)

	start := time.Now()
	_, err := l.Evaluate(ctx, testProblem(), 1)
	elapsed := time.Since(start)
	require.NotNil(t, held)
	held.Release()

	require.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 5*time.Second)

	// Status flags need no lock and were still raised.
	opt, eval := mustFlags(t, l)
	assert.True(t, opt)
	assert.True(t, eval)
}

func TestEvaluate_InterruptedAfterEvaluation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The process is told to stop just as the evaluator returns: the result
	// is dropped and the row stays unevaluated.
	l := newTestLedger(t, "memory", WithEvaluator(problem.EvaluatorFunc(
		func(context.Context, *problem.Config, []float64) ([]float64, error) {
			cancel()
			return []float64{0, 0}, nil
		},
	)))
	_, err := l.InitializeData(context.Background(), [][]float64{{1, 1}}, nil)
	require.NoError(t, err)

	_, err = l.Evaluate(ctx, testProblem(), 1)
	require.True(t, IsInterrupted(err))

	n, err := l.NValidSample()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOptimize(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind string) {
		ctx := context.Background()
		l := newTestLedger(t, kind,
			WithOptimizer(problem.RandomSearch{}),
			WithPredictor(problem.NearestPredictor{}),
		)
		seedScenario(t, l)
		mustFlags(t, l)

		ids, err := l.Optimize(ctx, testProblem(), 4, nil)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 4, 5}, ids)

		d, err := l.Load(ctx, nil, WithValidOnly(false), WithRowIDs(ids...))
		require.NoError(t, err)
		require.Equal(t, 3, d.Len())
		assert.Equal(t, []int64{1, 1, 1}, d.BatchID)
		assert.Equal(t, []int64{4, 4, 4}, d.ConfigID)
		for i := range d.X {
			for _, v := range d.X[i] {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
			// Every proposal is nearest to one of the seeds.
			assert.Contains(t, [][]float64{{2, 2}, {1, 1}}, d.YExpected[i])
		}

		opt, _ := mustFlags(t, l)
		assert.True(t, opt)
		n, err := l.NSample()
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})
}

func TestOptimize_ResultChannel(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, "memory", WithOptimizer(problem.RandomSearch{}))
	seedScenario(t, l)

	results := make(chan Result, 1)
	ids, err := l.Optimize(ctx, testProblem(), 1, results)
	require.NoError(t, err)
	assert.Nil(t, ids)

	res := <-results
	require.NoError(t, res.Err)
	assert.Equal(t, []int64{3, 4, 5}, res.RowIDs)

	// Without a predictor the expectations are missing.
	d, err := l.Load(ctx, []schema.Field{schema.YExpected}, WithRowIDs(3))
	require.NoError(t, err)
	require.Equal(t, 1, d.Len())
	assert.True(t, math.IsNaN(d.YExpected[0][0]))
}

func TestOptimize_ResultChannelError(t *testing.T) {
	l := newTestLedger(t, "memory")
	seedScenario(t, l)

	results := make(chan Result, 1)
	_, err := l.Optimize(context.Background(), testProblem(), 1, results)
	require.ErrorIs(t, err, ErrNoCollaborator)

	res := <-results
	assert.ErrorIs(t, res.Err, ErrNoCollaborator)
	assert.Nil(t, res.RowIDs)
}

func TestOptimize_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := newTestLedger(t, "memory", WithOptimizer(problem.OptimizerFunc(
		func(ctx context.Context, _ *problem.Config, _, _ [][]float64) ([][]float64, error) {
			cancel()
			return nil, ctx.Err()
		},
	)))
	seedScenario(t, l)
	mustFlags(t, l)

	results := make(chan Result, 1)
	_, err := l.Optimize(ctx, testProblem(), 1, results)
	require.ErrorIs(t, err, ErrInterrupted)

	res := <-results
	var ie *InterruptedError
	require.ErrorAs(t, res.Err, &ie)
	assert.Equal(t, "optimize", ie.Op)

	opt, eval := mustFlags(t, l)
	assert.True(t, opt)
	assert.True(t, eval)

	n, err := l.NSample()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPredict(t *testing.T) {
	forEachBackend(t, func(t *testing.T, kind string) {
		ctx := context.Background()
		l := newTestLedger(t, kind, WithPredictor(problem.NearestPredictor{}))
		seedScenario(t, l)

		ids, err := l.Predict(ctx, testProblem(), 2, [][]float64{{0.9, 0.9}, {0.1, 0}}, nil)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 4}, ids)

		d, err := l.Load(ctx, []schema.Field{schema.YExpected, schema.BatchID}, WithRowIDs(ids...))
		require.NoError(t, err)
		assert.Equal(t, [][]float64{{1, 1}, {2, 2}}, d.YExpected)
		assert.Equal(t, []int64{1, 1}, d.BatchID)
	})
}

func TestPredict_NoPredictor(t *testing.T) {
	l := newTestLedger(t, "memory")
	seedScenario(t, l)

	_, err := l.Predict(context.Background(), testProblem(), 1, [][]float64{{0, 0}}, nil)
	assert.ErrorIs(t, err, ErrNoCollaborator)
}

package problem

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/paretodb/codec"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.NVar, cfg.NObj = 2, 2
	cfg.Bounds = Bounds{Lower: []float64{-1, 0}, Upper: []float64{1, 10}}
	cfg.Optimizer.BatchSize = 5
	cfg.Optimizer.Seed = 3
	return &cfg
}

func TestRandomSearch(t *testing.T) {
	cfg := testConfig()

	xs, err := RandomSearch{}.Optimize(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, xs, 5)
	for _, x := range xs {
		require.Len(t, x, 2)
		assert.GreaterOrEqual(t, x[0], -1.0)
		assert.Less(t, x[0], 1.0)
		assert.GreaterOrEqual(t, x[1], 0.0)
		assert.Less(t, x[1], 10.0)
	}

	again, err := RandomSearch{}.Optimize(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, xs, again)

	next, err := RandomSearch{}.Optimize(context.Background(), cfg, xs, nil)
	require.NoError(t, err)
	assert.NotEqual(t, xs, next)
}

func TestRandomSearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RandomSearch{}.Optimize(ctx, testConfig(), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNearestPredictor(t *testing.T) {
	cfg := testConfig()
	X := [][]float64{{0, 0}, {1, 1}}
	Y := [][]float64{{5, 6}, {7, 8}}

	e, u, err := NearestPredictor{}.Predict(context.Background(), cfg, X, Y, [][]float64{{0.9, 1}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{7, 8}}, e)
	assert.InDelta(t, 0.1, u[0][0], 1e-9)

	e, u, err = NearestPredictor{}.Predict(context.Background(), cfg, nil, nil, [][]float64{{0, 0}})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(e[0][0]))
	assert.True(t, math.IsNaN(u[0][1]))
}

func TestFuncAdapters(t *testing.T) {
	var ev Evaluator = EvaluatorFunc(func(_ context.Context, _ *Config, x []float64) ([]float64, error) {
		return []float64{x[0] * 2}, nil
	})
	y, err := ev.Evaluate(context.Background(), nil, []float64{2})
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, y)

	var op Optimizer = OptimizerFunc(func(context.Context, *Config, [][]float64, [][]float64) ([][]float64, error) {
		return [][]float64{{1}}, nil
	})
	xs, err := op.Optimize(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}}, xs)

	var pr Predictor = PredictorFunc(func(context.Context, *Config, [][]float64, [][]float64, [][]float64) ([][]float64, [][]float64, error) {
		return [][]float64{{1}}, [][]float64{{0}}, nil
	})
	e, u, err := pr.Predict(context.Background(), nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}}, e)
	assert.Equal(t, [][]float64{{0}}, u)
}

// TestHelperProcess is not a real test. It is the evaluation program started
// by the ExecEvaluator tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PARETODB_HELPER") != "1" {
		return
	}

	var req EvalRequest
	if err := json.NewDecoder(bufio.NewReader(os.Stdin)).Decode(&req); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	switch os.Getenv("HELPER_MODE") {
	case "sum":
		s := req.X[0] + req.X[1]
		neg := -s
		_ = json.NewEncoder(os.Stdout).Encode(EvalResponse{Y: []*float64{&s, &neg}})
	case "missing":
		one := 1.0
		_ = json.NewEncoder(os.Stdout).Encode(EvalResponse{Y: []*float64{&one, nil}})
	case "error":
		_ = json.NewEncoder(os.Stdout).Encode(EvalResponse{Error: "solver diverged"})
	case "short":
		_ = json.NewEncoder(os.Stdout).Encode(EvalResponse{Y: []*float64{nil}})
	case "crash":
		fmt.Fprintln(os.Stderr, "segfault")
		os.Exit(3)
	case "sleep":
		time.Sleep(time.Minute)
	}
	os.Exit(0)
}

func helperConfig(mode string) (*Config, *ExecEvaluator) {
	cfg := testConfig()
	cfg.Evaluator.Command = []string{os.Args[0], "-test.run=^TestHelperProcess$"}
	return cfg, &ExecEvaluator{Env: []string{"PARETODB_HELPER=1", "HELPER_MODE=" + mode}}
}

func TestExecEvaluator(t *testing.T) {
	cfg, ev := helperConfig("sum")

	y, err := ev.Evaluate(context.Background(), cfg, []float64{1.5, 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5, -3.5}, y)

	ev.Codec = codec.GoJSON{}
	y, err = ev.Evaluate(context.Background(), cfg, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, -2}, y)
}

func TestExecEvaluator_Missing(t *testing.T) {
	cfg, ev := helperConfig("missing")

	y, err := ev.Evaluate(context.Background(), cfg, []float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, y[0])
	assert.True(t, math.IsNaN(y[1]))
}

func TestExecEvaluator_Failures(t *testing.T) {
	for _, mode := range []string{"error", "short", "crash"} {
		t.Run(mode, func(t *testing.T) {
			cfg, ev := helperConfig(mode)
			_, err := ev.Evaluate(context.Background(), cfg, []float64{0, 0})
			assert.Error(t, err)
		})
	}
}

func TestExecEvaluator_Cancel(t *testing.T) {
	cfg, ev := helperConfig("sleep")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := ev.Evaluate(ctx, cfg, []float64{0, 0})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecEvaluator_NoCommand(t *testing.T) {
	_, err := (&ExecEvaluator{}).Evaluate(context.Background(), testConfig(), []float64{0, 0})
	assert.ErrorIs(t, err, ErrNoCommand)
}

package problem

import "context"

// Optimizer proposes the next designs from the evaluated data.
type Optimizer interface {
	Optimize(ctx context.Context, cfg *Config, X, Y [][]float64) ([][]float64, error)
}

// Predictor estimates objective values of proposed designs.
type Predictor interface {
	Predict(ctx context.Context, cfg *Config, X, Y, XNext [][]float64) (yExpected, yUncertainty [][]float64, err error)
}

// Evaluator computes the true objective values of one design.
type Evaluator interface {
	Evaluate(ctx context.Context, cfg *Config, x []float64) ([]float64, error)
}

// OptimizerFunc adapts a function to Optimizer.
type OptimizerFunc func(ctx context.Context, cfg *Config, X, Y [][]float64) ([][]float64, error)

func (f OptimizerFunc) Optimize(ctx context.Context, cfg *Config, X, Y [][]float64) ([][]float64, error) {
	return f(ctx, cfg, X, Y)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, cfg *Config, X, Y, XNext [][]float64) ([][]float64, [][]float64, error)

func (f PredictorFunc) Predict(ctx context.Context, cfg *Config, X, Y, XNext [][]float64) ([][]float64, [][]float64, error) {
	return f(ctx, cfg, X, Y, XNext)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, cfg *Config, x []float64) ([]float64, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, cfg *Config, x []float64) ([]float64, error) {
	return f(ctx, cfg, x)
}

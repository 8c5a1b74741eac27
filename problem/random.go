package problem

import (
	"context"
	"errors"
	"math"
	"math/rand"
)

// RandomSearch samples designs uniformly inside the bounds. The stream is
// seeded from the configured seed and the number of designs seen so far, so
// a rerun over the same data proposes the same batch.
type RandomSearch struct{}

func (RandomSearch) Optimize(ctx context.Context, cfg *Config, X, _ [][]float64) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(cfg.Bounds.Lower) != cfg.NVar || len(cfg.Bounds.Upper) != cfg.NVar {
		return nil, errors.New("random search needs bounds for every variable")
	}

	rng := rand.New(rand.NewSource(cfg.Optimizer.Seed + int64(len(X))))

	n := max(cfg.Optimizer.BatchSize, 1)
	out := make([][]float64, n)
	for i := range out {
		x := make([]float64, cfg.NVar)
		for j := range x {
			lo, hi := cfg.Bounds.Lower[j], cfg.Bounds.Upper[j]
			x[j] = lo + rng.Float64()*(hi-lo)
		}
		out[i] = x
	}
	return out, nil
}

// NearestPredictor predicts the objectives of the nearest evaluated design and
// reports the Euclidean distance to it as the uncertainty. With no data the
// prediction is missing.
type NearestPredictor struct{}

func (NearestPredictor) Predict(ctx context.Context, cfg *Config, X, Y, XNext [][]float64) ([][]float64, [][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(X) != len(Y) {
		return nil, nil, errors.New("predictor needs one objective vector per design")
	}

	expected := make([][]float64, len(XNext))
	uncertainty := make([][]float64, len(XNext))
	for i, x := range XNext {
		e := make([]float64, cfg.NObj)
		u := make([]float64, cfg.NObj)

		best, bestDist := -1, math.Inf(1)
		for j, xj := range X {
			if d := distance(x, xj); d < bestDist {
				best, bestDist = j, d
			}
		}
		for k := range e {
			if best < 0 {
				e[k], u[k] = math.NaN(), math.NaN()
				continue
			}
			e[k], u[k] = Y[best][k], bestDist
		}
		expected[i], uncertainty[i] = e, u
	}
	return expected, uncertainty, nil
}

func distance(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}

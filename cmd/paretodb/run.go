package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/paretodb"
	"github.com/hupe1980/paretodb/problem"
)

// problemConfig returns the --config file, or the latest configuration
// snapshot of the run directory together with its id.
func (a *app) problemConfig() (*problem.Config, int64, error) {
	if a.configPath != "" {
		cfg, err := problem.LoadConfig(a.configPath)
		return cfg, 0, err
	}

	id, err := problem.NextSnapshotID(a.dir)
	if err != nil {
		return nil, 0, err
	}
	if id == 1 {
		return nil, 0, fmt.Errorf("no configuration in %s: pass --config", a.dir)
	}
	cfg, err := problem.LoadSnapshot(a.dir, id-1)
	if err != nil {
		return nil, 0, err
	}
	if err := problem.ApplyEnv(cfg); err != nil {
		return nil, 0, err
	}
	return cfg, id - 1, cfg.Validate()
}

func (a *app) newLedger(cfg *problem.Config, extra ...paretodb.Option) (*paretodb.Ledger, error) {
	if cfg.Store.Kind == "memory" {
		return nil, errors.New("the memory store does not outlive a command; use sqlite")
	}

	opts := []paretodb.Option{
		paretodb.WithLogger(a.logger),
		paretodb.WithRowStore(cfg.Store.Kind),
		paretodb.WithLockTimeout(a.lockTimeout),
		paretodb.WithPredictor(problem.NearestPredictor{}),
		paretodb.WithEvaluator(&problem.ExecEvaluator{}),
	}
	switch cfg.Optimizer.Kind {
	case "", "random":
		opts = append(opts, paretodb.WithOptimizer(problem.RandomSearch{}))
	default:
		return nil, fmt.Errorf("unknown optimizer %q", cfg.Optimizer.Kind)
	}

	l := paretodb.New(append(opts, extra...)...)
	err := l.Configure(paretodb.Config{
		Dir:      a.dir,
		NVar:     cfg.NVar,
		NObj:     cfg.NObj,
		Minimize: cfg.Minimize,
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// attach opens the existing ledger in the run directory.
func (a *app) attach(ctx context.Context, extra ...paretodb.Option) (*paretodb.Ledger, *problem.Config, int64, error) {
	cfg, id, err := a.problemConfig()
	if err != nil {
		return nil, nil, 0, err
	}
	l, err := a.newLedger(cfg, extra...)
	if err != nil {
		return nil, nil, 0, err
	}
	if err := l.Attach(ctx); err != nil {
		_ = l.Quit()
		return nil, nil, 0, err
	}
	return l, cfg, id, nil
}

// readMatrix reads a CSV file of numbers. Empty cells and "nan" are missing
// values. Lines starting with # are comments.
func readMatrix(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMatrix(f)
}

func parseMatrix(r io.Reader) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var out [][]float64
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		row, err := parseFields(rec)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, row)
	}
}

func parseVector(s string) ([]float64, error) {
	return parseFields(strings.Split(s, ","))
}

func parseFields(fields []string) ([]float64, error) {
	row := make([]float64, len(fields))
	for i, s := range fields {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "nan") {
			row[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

func parseRowIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatFloats(v []float64) []string {
	out := make([]string, len(v))
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		out[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return out
}

func formatIDs(ids []int64) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(s, ",")
}

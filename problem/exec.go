package problem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hupe1980/paretodb/codec"
)

// ErrNoCommand is returned by ExecEvaluator when no program is configured.
var ErrNoCommand = errors.New("evaluator command is not configured")

// EvalRequest is written to the evaluation program's stdin.
type EvalRequest struct {
	Problem string    `json:"problem"`
	X       []float64 `json:"x"`
}

// EvalResponse is read from the evaluation program's stdout. Missing
// objective values are null.
type EvalResponse struct {
	Y     []*float64 `json:"y"`
	Error string     `json:"error,omitempty"`
}

// ExecEvaluator runs cfg.Evaluator.Command once per design.
type ExecEvaluator struct {
	// Codec overrides cfg.Evaluator.Codec.
	Codec codec.Codec
	// Env is appended to the program's environment.
	Env []string
}

func (e *ExecEvaluator) Evaluate(ctx context.Context, cfg *Config, x []float64) ([]float64, error) {
	if cfg == nil || len(cfg.Evaluator.Command) == 0 {
		return nil, ErrNoCommand
	}
	command := cfg.Evaluator.Command

	c, err := e.codec(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Evaluator.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Evaluator.Timeout)
		defer cancel()
	}

	in, err := c.Marshal(EvalRequest{Problem: cfg.Name, X: x})
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(append(os.Environ(), "PARETODB_CODEC="+c.Name()), e.Env...)
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("evaluator %s: %w", command[0], ctxErr)
		}
		return nil, fmt.Errorf("evaluator %s: %w: %s", command[0], err, strings.TrimSpace(stderr.String()))
	}

	var resp EvalResponse
	if err := c.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("evaluator %s: decode response: %w", command[0], err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("evaluator %s: %s", command[0], resp.Error)
	}
	if len(resp.Y) != cfg.NObj {
		return nil, fmt.Errorf("evaluator %s: got %d objectives, want %d", command[0], len(resp.Y), cfg.NObj)
	}

	y := make([]float64, len(resp.Y))
	for i, v := range resp.Y {
		if v == nil {
			y[i] = math.NaN()
			continue
		}
		y[i] = *v
	}
	return y, nil
}

func (e *ExecEvaluator) codec(cfg *Config) (codec.Codec, error) {
	if e.Codec != nil {
		return e.Codec, nil
	}
	return codec.Lookup(cfg.Evaluator.Codec)
}

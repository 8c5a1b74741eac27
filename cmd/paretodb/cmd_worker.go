package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/hupe1980/paretodb"
	"github.com/hupe1980/paretodb/problem"
	"github.com/hupe1980/paretodb/resource"
	"github.com/hupe1980/paretodb/schema"
)

func newOptimizeCmd(a *app) *cobra.Command {
	var (
		configID int64
		rounds   int
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Propose and insert new batches",
		Long: `Run the optimizer on the valid rows and insert the proposed batch.
With --rounds, batches are proposed one after another and each one sees the
rows inserted by every worker so far.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			l, cfg, latest, err := a.attach(ctx)
			if err != nil {
				return err
			}
			defer l.Quit()

			if !cmd.Flags().Changed("config-id") {
				configID = latest
			}

			results := make(chan paretodb.Result, 1)
			go func() {
				defer close(results)
				for i := 0; i < rounds; i++ {
					if _, err := l.Optimize(ctx, cfg, configID, results); err != nil {
						return
					}
				}
			}()

			for res := range results {
				if res.Err != nil {
					return res.Err
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatIDs(res.RowIDs))
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&configID, "config-id", 0, "configuration id recorded on the rows (default: latest snapshot)")
	cmd.Flags().IntVar(&rounds, "rounds", 1, "number of batches to propose")
	return cmd
}

func newPredictCmd(a *app) *cobra.Command {
	var (
		configID int64
		xPath    string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Insert given designs with predicted objectives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			XNext, err := readMatrix(xPath)
			if err != nil {
				return fmt.Errorf("--x: %w", err)
			}

			ctx := cmd.Context()
			l, cfg, latest, err := a.attach(ctx)
			if err != nil {
				return err
			}
			defer l.Quit()

			if !cmd.Flags().Changed("config-id") {
				configID = latest
			}

			ids, err := l.Predict(ctx, cfg, configID, XNext, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatIDs(ids))
			return nil
		},
	}

	cmd.Flags().Int64Var(&configID, "config-id", 0, "configuration id recorded on the rows (default: latest snapshot)")
	cmd.Flags().StringVar(&xPath, "x", "", "CSV file of design points")
	_ = cmd.MarkFlagRequired("x")
	return cmd
}

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		rows    string
		pending bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate rows with the configured program",
		Long: `Run the evaluator program on the given rows, or on every row that has
no objective values yet, and store the results. At most
evaluator.max_concurrent programs run at once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (rows == "") == !pending {
				return errors.New("pass exactly one of --rows and --pending")
			}

			ctx := cmd.Context()
			l, cfg, _, err := a.attach(ctx)
			if err != nil {
				return err
			}
			defer l.Quit()

			var ids []int64
			if pending {
				ids, err = pendingRows(ctx, l)
			} else {
				ids, err = parseRowIDs(rows)
			}
			if err != nil {
				return err
			}

			return evaluateRows(ctx, l, cfg, ids, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&rows, "rows", "", "comma separated row ids")
	cmd.Flags().BoolVar(&pending, "pending", false, "evaluate every row without objective values")
	return cmd
}

// evaluateRows evaluates ids in parallel. A failed row does not stop the
// others; every failure is reported in the returned error.
func evaluateRows(ctx context.Context, l *paretodb.Ledger, cfg *problem.Config, ids []int64, out io.Writer) error {
	rc := resource.NewController(resource.Config{
		MaxConcurrent:     int64(cfg.Evaluator.MaxConcurrent),
		LaunchesPerSecond: cfg.Evaluator.LaunchesPerSecond,
	})

	var (
		mu   sync.Mutex
		errs []error
	)
	err := rc.Run(ctx, len(ids), func(ctx context.Context, i int) error {
		y, err := l.Evaluate(ctx, cfg, ids[i])

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("row %d: %w", ids[i], err))
			return nil
		}
		fmt.Fprintf(out, "%d\t%s\n", ids[i], strings.Join(formatFloats(y), ","))
		return nil
	})
	return errors.Join(append(errs, err)...)
}

// pendingRows returns the rows with at least one missing objective.
func pendingRows(ctx context.Context, l *paretodb.Ledger) ([]int64, error) {
	d, err := l.Load(ctx, []schema.Field{schema.Y}, paretodb.WithValidOnly(false))
	if err != nil {
		return nil, err
	}
	var ids []int64
	for i, y := range d.Y {
		if slices.ContainsFunc(y, math.IsNaN) {
			ids = append(ids, d.RowIDs[i])
		}
	}
	return ids, nil
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		row  int64
		y    string
		file string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Store objective values computed elsewhere",
		Long: `Store objective values for existing rows, either one row with --row and
--y, or many rows from a CSV file whose first column is the row id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				Y   [][]float64
				ids []int64
			)
			switch {
			case file != "" && row == 0:
				m, err := readMatrix(file)
				if err != nil {
					return fmt.Errorf("--file: %w", err)
				}
				for _, r := range m {
					if len(r) < 2 || math.IsNaN(r[0]) || r[0] != math.Trunc(r[0]) {
						return fmt.Errorf("--file: each line needs an integer row id and objective values")
					}
					ids = append(ids, int64(r[0]))
					Y = append(Y, r[1:])
				}
			case file == "" && row != 0 && y != "":
				v, err := parseVector(y)
				if err != nil {
					return fmt.Errorf("--y: %w", err)
				}
				ids, Y = []int64{row}, [][]float64{v}
			default:
				return errors.New("pass either --row with --y, or --file")
			}

			l, _, _, err := a.attach(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Quit()

			if err := l.UpdateBatch(cmd.Context(), Y, ids); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d rows\n", len(ids))
			return nil
		},
	}

	cmd.Flags().Int64Var(&row, "row", 0, "row id")
	cmd.Flags().StringVar(&y, "y", "", "comma separated objective values")
	cmd.Flags().StringVar(&file, "file", "", "CSV file of row id followed by objective values")
	return cmd
}

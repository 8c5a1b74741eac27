package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/paretodb"
	"github.com/hupe1980/paretodb/codec"
	"github.com/hupe1980/paretodb/metrics/prom"
	"github.com/hupe1980/paretodb/schema"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the shared counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, _, _, err := a.attach(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Quit()

			c, err := l.Counters()
			if err != nil {
				return err
			}
			d, err := l.Load(cmd.Context(), []schema.Field{schema.IsPareto})
			if err != nil {
				return err
			}
			front := 0
			for _, p := range d.IsPareto {
				if p {
					front++
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "n_sample\t%d\n", c.NSample)
			fmt.Fprintf(w, "n_valid_sample\t%d\n", c.NValidSample)
			fmt.Fprintf(w, "n_init_sample\t%d\n", c.NInitSample)
			fmt.Fprintf(w, "pareto\t%d\n", front)
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		maxValid    int64
		interval    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the run until enough rows are valid",
		Long: `Report every new batch and every stored evaluation, and exit once
n_valid_sample reaches --max-valid. With --metrics-addr the counters are
served for Prometheus while watching.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var extra []paretodb.Option
			reg := prometheus.NewRegistry()
			if metricsAddr != "" {
				extra = append(extra, paretodb.WithMetricsCollector(prom.NewCollector(reg)))
			}

			l, _, _, err := a.attach(ctx, extra...)
			if err != nil {
				return err
			}
			defer l.Quit()

			if metricsAddr != "" {
				prom.RegisterCounters(reg, l)
				defer serveMetrics(ctx, metricsAddr, reg, a.logger)()
			}

			w := &watcher{ledger: l, out: cmd.OutOrStdout(), maxValid: maxValid}
			return w.run(ctx, a.dir, interval)
		},
	}

	cmd.Flags().Int64Var(&maxValid, "max-valid", 0, "exit when n_valid_sample reaches this value (0 runs until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval when no file events arrive")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

type watcher struct {
	ledger   *paretodb.Ledger
	out      io.Writer
	maxValid int64
}

// run polls the status flags on every change in dir and on every tick. The
// cells live in shared memory and produce no file events, so the ticker is
// what catches a flag raised without a data write.
func (w *watcher) run(ctx context.Context, dir string, interval time.Duration) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := w.poll()
		if err != nil || done {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		case _, ok := <-fw.Events:
			if !ok {
				return nil
			}
		case <-ticker.C:
		}
	}
}

func (w *watcher) poll() (bool, error) {
	optDone, err := w.ledger.CheckOptDone()
	if err != nil {
		return false, err
	}
	evalDone, err := w.ledger.CheckEvalDone()
	if err != nil {
		return false, err
	}
	c, err := w.ledger.Counters()
	if err != nil {
		return false, err
	}

	if optDone {
		fmt.Fprintf(w.out, "batch inserted\tn_sample=%d\n", c.NSample)
	}
	if evalDone {
		fmt.Fprintf(w.out, "evaluation stored\tn_valid_sample=%d\n", c.NValidSample)
	}
	return w.maxValid > 0 && c.NValidSample >= w.maxValid, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *paretodb.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "metrics server failed", "addr", addr, "error", err)
		}
	}()

	return func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
}

func newCorrectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "correct",
		Short: "Recount the counters and raise the status flags",
		Long: `Recount n_sample, n_valid_sample and n_init_sample from the table and
raise both status flags. Run this after a worker died mid-write or after a
restore.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, _, _, err := a.attach(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Quit()

			if err := correct(cmd.Context(), l); err != nil {
				return err
			}
			c, err := l.Counters()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "n_sample=%d n_valid_sample=%d n_init_sample=%d\n",
				c.NSample, c.NValidSample, c.NInitSample)
			return nil
		},
	}
}

func correct(ctx context.Context, l *paretodb.Ledger) error {
	if err := l.CorrectStats(ctx); err != nil {
		return err
	}
	return l.CorrectStatus()
}

func newLoadCmd(a *app) *cobra.Command {
	var (
		fields []string
		all    bool
		rows   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Print rows of the ledger",
		Long: `Print the requested fields for every valid row, or for every row with
--all. Missing objective values print as empty cells.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs, err := schema.ParseFields(fields)
			if err != nil {
				return err
			}
			if len(fs) == 0 {
				fs = schema.Fields
			}

			opts := []paretodb.LoadOption{paretodb.WithValidOnly(!all)}
			if rows != "" {
				ids, err := parseRowIDs(rows)
				if err != nil {
					return err
				}
				opts = append(opts, paretodb.WithRowIDs(ids...))
			}

			l, _, _, err := a.attach(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Quit()

			d, err := l.Load(cmd.Context(), fs, opts...)
			if err != nil {
				return err
			}

			switch format {
			case "csv":
				return writeCSV(cmd.OutOrStdout(), l.Schema(), d, fs)
			default:
				c, err := codec.Lookup(format)
				if err != nil {
					return fmt.Errorf("--format: %w", err)
				}
				return writeDocument(cmd.OutOrStdout(), c, d, fs)
			}
		},
	}

	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "fields to print (default: all)")
	cmd.Flags().BoolVar(&all, "all", false, "include rows with missing objective values")
	cmd.Flags().StringVar(&rows, "rows", "", "comma separated row ids")
	cmd.Flags().StringVar(&format, "format", "csv", "output format (csv, json, go-json)")
	return cmd
}

func writeCSV(w io.Writer, s *schema.Schema, d *paretodb.Data, fields []schema.Field) error {
	cw := csv.NewWriter(w)

	header := []string{"row_id"}
	for _, f := range fields {
		switch f {
		case schema.IsPareto, schema.ConfigID, schema.BatchID:
			header = append(header, string(f))
			continue
		}
		width, err := s.Width(f)
		if err != nil {
			return err
		}
		for j := 0; j < width; j++ {
			header = append(header, string(f)+"_"+strconv.Itoa(j))
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range d.RowIDs {
		rec := []string{strconv.FormatInt(d.RowIDs[i], 10)}
		for _, f := range fields {
			switch f {
			case schema.X:
				rec = append(rec, formatFloats(d.X[i])...)
			case schema.Y:
				rec = append(rec, formatFloats(d.Y[i])...)
			case schema.YExpected:
				rec = append(rec, formatFloats(d.YExpected[i])...)
			case schema.YUncertainty:
				rec = append(rec, formatFloats(d.YUncertainty[i])...)
			case schema.IsPareto:
				rec = append(rec, strconv.FormatBool(d.IsPareto[i]))
			case schema.ConfigID:
				rec = append(rec, strconv.FormatInt(d.ConfigID[i], 10))
			case schema.BatchID:
				rec = append(rec, strconv.FormatInt(d.BatchID[i], 10))
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// document is the json rendering of one row. Missing values are null.
type document struct {
	RowID        int64      `json:"row_id"`
	X            []*float64 `json:"X,omitempty"`
	Y            []*float64 `json:"Y,omitempty"`
	YExpected    []*float64 `json:"Y_expected,omitempty"`
	YUncertainty []*float64 `json:"Y_uncertainty,omitempty"`
	IsPareto     *bool      `json:"is_pareto,omitempty"`
	ConfigID     *int64     `json:"config_id,omitempty"`
	BatchID      *int64     `json:"batch_id,omitempty"`
}

func writeDocument(w io.Writer, c codec.Codec, d *paretodb.Data, fields []schema.Field) error {
	docs := make([]document, d.Len())
	for i := range docs {
		doc := &docs[i]
		doc.RowID = d.RowIDs[i]
		for _, f := range fields {
			switch f {
			case schema.X:
				doc.X = nullable(d.X[i])
			case schema.Y:
				doc.Y = nullable(d.Y[i])
			case schema.YExpected:
				doc.YExpected = nullable(d.YExpected[i])
			case schema.YUncertainty:
				doc.YUncertainty = nullable(d.YUncertainty[i])
			case schema.IsPareto:
				doc.IsPareto = &d.IsPareto[i]
			case schema.ConfigID:
				doc.ConfigID = &d.ConfigID[i]
			case schema.BatchID:
				doc.BatchID = &d.BatchID[i]
			}
		}
	}

	return codec.Encode(w, c, docs)
}

func nullable(v []float64) []*float64 {
	out := make([]*float64, len(v))
	for i := range v {
		if !math.IsNaN(v[i]) {
			out[i] = &v[i]
		}
	}
	return out
}

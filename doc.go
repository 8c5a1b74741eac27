// Package paretodb provides a shared, multi-process ledger for
// multi-objective optimization runs.
//
// A run directory holds one row-store file and a small shared-memory file
// of status flags and counters. Optimizer processes append batches of
// candidate designs, evaluation workers fill in objective values at their
// own pace, and a coordinator polls the flags to know when to re-read.
// Every row carries its design x, its objectives y (missing until
// evaluated), the predictor's estimate, an is_pareto flag, and the
// configuration and batch it came from.
//
// # Quick Start
//
//	ctx := context.Background()
//	l := paretodb.New(paretodb.WithLogLevel(slog.LevelInfo))
//	defer l.Quit()
//
//	_ = l.Configure(paretodb.Config{Dir: "./run", NVar: 2, NObj: 2, Minimize: []bool{true, true}})
//	_ = l.InitializeSchema(ctx)
//	ids, _ := l.InitializeData(ctx, [][]float64{{0, 0}, {1, 1}}, [][]float64{{2, 2}, {1, 1}})
//
// Other processes attach to the same directory:
//
//	w := paretodb.New(paretodb.WithEvaluator(eval))
//	_ = w.Configure(paretodb.Config{Dir: "./run", NVar: 2, NObj: 2})
//	_ = w.Attach(ctx)
//	y, err := w.Evaluate(ctx, cfg, ids[0])
//
// # Consistency
//
// Writes (InitializeData, Insert, Update, UpdateBatch) run inside one
// exclusive section of the row store: read, derive the batch id and the
// Pareto front, write, commit. Row ids and batch ids are therefore dense
// and strictly increasing across processes. Load runs without the lock.
//
// Flags and counters are independent cells, each guarded by its own lock.
// They are updated after the commit while the section is still held, but
// there is no ordering across cells: opt_done may be seen before n_sample
// reflects the same insert.
//
// # Interruption
//
// Cancelling the context of Evaluate, Optimize or Predict stops the call
// between sections, never inside one. The ledger then raises both flags
// (CorrectStatus), recounts the counters from storage (CorrectStats) and
// returns an *InterruptedError:
//
//	if errors.Is(err, paretodb.ErrInterrupted) {
//		// shared state has been corrected; exit the worker
//	}
//
// # Counting
//
// n_valid_sample counts rows that became valid. Re-evaluating a row that
// already had objective values does not increment it.
package paretodb

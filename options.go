package paretodb

import (
	"log/slog"
	"time"

	"github.com/hupe1980/paretodb/cell"
	"github.com/hupe1980/paretodb/problem"
	"github.com/hupe1980/paretodb/rowstore"
)

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	storeKind        string
	store            rowstore.Store
	cells            *cell.Set
	optimizer        problem.Optimizer
	predictor        problem.Predictor
	evaluator        problem.Evaluator
	lockTimeout      time.Duration
	correctTimeout   time.Duration
}

// Option configures a Ledger.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &paretodb.BasicMetricsCollector{}
//	l := paretodb.New(paretodb.WithMetricsCollector(metrics))
//	// ... use l ...
//	stats := metrics.GetStats()
//	fmt.Printf("Inserted rows: %d\n", stats.InsertRows)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := paretodb.NewJSONLogger(slog.LevelInfo)
//	l := paretodb.New(paretodb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithRowStore selects the row store backend by kind (rowstore.KindSQLite or
// rowstore.KindMemory). The default is sqlite in <dir>/data.db.
func WithRowStore(kind string) Option {
	return func(o *options) {
		o.storeKind = kind
	}
}

// WithStore uses an existing row store instead of opening one in the run
// directory. The ledger takes ownership and closes it on Quit.
func WithStore(s rowstore.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithCells uses an existing cell set instead of <dir>/status.shm. The ledger
// takes ownership and closes it on Quit.
func WithCells(c *cell.Set) Option {
	return func(o *options) {
		o.cells = c
	}
}

// WithOptimizer sets the optimizer called by Optimize.
func WithOptimizer(opt problem.Optimizer) Option {
	return func(o *options) {
		o.optimizer = opt
	}
}

// WithPredictor sets the predictor called by Optimize and Predict.
func WithPredictor(p problem.Predictor) Option {
	return func(o *options) {
		o.predictor = p
	}
}

// WithEvaluator sets the evaluator called by Evaluate.
func WithEvaluator(e problem.Evaluator) Option {
	return func(o *options) {
		o.evaluator = e
	}
}

// WithLockTimeout bounds the wait for the exclusive lock. Zero waits until the
// operation's context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// DefaultCorrectionTimeout bounds the lock wait of the correction that follows
// an interruption.
const DefaultCorrectionTimeout = 30 * time.Second

// WithCorrectionTimeout bounds how long an interrupted operation waits for the
// exclusive lock to recount the counters. Zero waits until the lock is free.
// When the bound is hit the counters stay stale until the next CorrectStats.
func WithCorrectionTimeout(d time.Duration) Option {
	return func(o *options) {
		o.correctTimeout = d
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		storeKind:        rowstore.KindSQLite,
		correctTimeout:   DefaultCorrectionTimeout,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

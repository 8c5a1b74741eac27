package paretodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/hupe1980/paretodb/cell"
	"github.com/hupe1980/paretodb/pareto"
	"github.com/hupe1980/paretodb/problem"
	"github.com/hupe1980/paretodb/rowstore"
	"github.com/hupe1980/paretodb/schema"
)

// File names inside a run directory.
const (
	DataFile  = "data.db"
	CellsFile = "status.shm"
)

// State is the position of a Ledger in its lifecycle.
type State int32

const (
	Unconfigured State = iota
	Configured
	SchemaReady
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case SchemaReady:
		return "schema-ready"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config is the fixed setup of a ledger.
type Config struct {
	// Dir is the run directory holding the row store and the cells file.
	// It may be empty only with a memory row store or an injected store.
	Dir string

	NVar int
	NObj int

	// Minimize holds one flag per objective. Empty minimizes every
	// objective; a single flag applies to all of them.
	Minimize []bool
}

// Ledger is the handle every worker process holds on the shared run state.
//
// All methods are safe for concurrent use. Writes from different processes
// are serialized by the row store's exclusive lock.
type Ledger struct {
	opts options

	mu     sync.RWMutex
	state  State
	cfg    Config
	schema *schema.Schema
	dirs   pareto.Directions
	store  rowstore.Store
	cells  *cell.Set
}

// handles is a consistent view of the ledger's collaborators for one operation.
type handles struct {
	store  rowstore.Store
	cells  *cell.Set
	schema *schema.Schema
	dirs   pareto.Directions
}

// New returns an unconfigured ledger.
func New(optFns ...Option) *Ledger {
	return &Ledger{opts: applyOptions(optFns)}
}

// State reports the lifecycle state.
func (l *Ledger) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Config returns the configuration set by Configure.
func (l *Ledger) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg := l.cfg
	cfg.Minimize = slices.Clone(cfg.Minimize)
	return cfg
}

// Schema returns the column layout, or nil before Configure.
func (l *Ledger) Schema() *schema.Schema {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.schema
}

// Configure sets the run directory and problem dimensions. It may be called
// again until the schema is initialized.
func (l *Ledger) Configure(cfg Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case Closed:
		return ErrClosed
	case SchemaReady, Active:
		return ErrConfigurationLocked
	}

	if cfg.Dir == "" && l.opts.store == nil && l.opts.storeKind != rowstore.KindMemory {
		return &ConfigurationError{Field: "dir", Reason: "is required"}
	}

	s, err := schema.New(cfg.NVar, cfg.NObj)
	if err != nil {
		return &ConfigurationError{Field: "dimensions", Reason: err.Error(), cause: err}
	}

	dirs, err := pareto.FromMinimize(cfg.Minimize, cfg.NObj)
	if err != nil {
		return &ConfigurationError{Field: "minimize", Reason: err.Error(), cause: err}
	}

	// A failed Attach or InitializeSchema may have opened the previous
	// directory's files.
	if err := l.dropOpened(); err != nil {
		return err
	}

	cfg.Minimize = slices.Clone(cfg.Minimize)
	l.cfg = cfg
	l.schema = s
	l.dirs = dirs
	l.state = Configured
	return nil
}

// InitializeSchema creates the run directory, the table and a zeroed cells
// file. It fails with ErrSchemaAlreadyExists if the table already exists.
func (l *Ledger) InitializeSchema(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case Unconfigured:
		return &ConfigurationError{Reason: "configure must precede schema initialization"}
	case SchemaReady, Active:
		return ErrSchemaAlreadyExists
	case Closed:
		return ErrClosed
	}

	store, err := l.openStore(ctx)
	if err != nil {
		return err
	}

	if err := store.CreateTable(ctx, l.schema.Columns()); err != nil {
		if errors.Is(err, rowstore.ErrTableExists) {
			return fmt.Errorf("%w: %s", ErrSchemaAlreadyExists, l.cfg.Dir)
		}
		return err
	}

	if err := l.openCells(true); err != nil {
		return err
	}

	l.state = SchemaReady
	l.opts.logger.InfoContext(ctx, "schema initialized",
		"dir", l.cfg.Dir,
		"n_var", l.cfg.NVar,
		"n_obj", l.cfg.NObj,
	)
	return nil
}

// Attach opens an existing ledger created by another process and makes this
// handle active. The table must match the configured dimensions.
func (l *Ledger) Attach(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case Unconfigured:
		return &ConfigurationError{Reason: "configure must precede attach"}
	case SchemaReady, Active:
		return fmt.Errorf("%w: already attached", ErrConfigurationLocked)
	case Closed:
		return ErrClosed
	}

	store, err := l.openStore(ctx)
	if err != nil {
		return err
	}

	cols, err := store.Columns(ctx)
	if err != nil {
		return err
	}
	if cols == nil {
		return &ConfigurationError{Field: "dir", Reason: "no ledger table found"}
	}
	if !l.schema.Matches(cols) {
		return &ConfigurationError{Field: "dimensions", Reason: "table does not match n_var/n_obj"}
	}

	if err := l.openCells(false); err != nil {
		return err
	}

	l.state = Active
	return nil
}

// Quit releases the row store and the cells. It is safe in any state and
// may be called more than once.
func (l *Ledger) Quit() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Closed {
		return nil
	}

	var errs []error
	if l.store != nil {
		errs = append(errs, l.store.Close())
		l.store = nil
	}
	if l.cells != nil {
		errs = append(errs, l.cells.Close())
		l.cells = nil
	}
	l.state = Closed
	return errors.Join(errs...)
}

// Backup writes a point-in-time copy of the row store to dst. Writers are
// excluded while the copy is taken.
func (l *Ledger) Backup(ctx context.Context, dst string) error {
	h, err := l.handles(SchemaReady, Active)
	if err != nil {
		return err
	}
	b, ok := h.store.(rowstore.Backuper)
	if !ok {
		return fmt.Errorf("backup: %w", rowstore.ErrUnsupported)
	}
	return b.Backup(ctx, dst)
}

// RegisterConfig stores cfg as a new configuration snapshot in the run
// directory and returns its id, to be passed as config_id to Insert,
// Optimize and Predict.
func (l *Ledger) RegisterConfig(cfg *problem.Config) (int64, error) {
	dir := l.Config().Dir
	if dir == "" {
		return 0, &ConfigurationError{Field: "dir", Reason: "config snapshots need a run directory"}
	}

	// Another process may claim the same id; retry with the next one.
	for attempt := 0; attempt < 16; attempt++ {
		id, err := problem.NextSnapshotID(dir)
		if err != nil {
			return 0, err
		}
		err = problem.SaveSnapshot(dir, id, cfg)
		if err == nil {
			return id, nil
		}
		if _, statErr := os.Stat(problem.SnapshotPath(dir, id)); statErr != nil {
			return 0, err
		}
	}
	return 0, errors.New("could not allocate a config id")
}

func (l *Ledger) handles(allowed ...State) (handles, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.state == Closed {
		return handles{}, ErrClosed
	}
	if !slices.Contains(allowed, l.state) {
		return handles{}, fmt.Errorf("%w (state %s)", ErrNotActive, l.state)
	}
	return handles{store: l.store, cells: l.cells, schema: l.schema, dirs: l.dirs}, nil
}

func (l *Ledger) activate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == SchemaReady {
		l.state = Active
	}
}

// dropOpened closes the store and cells opened by this ledger. Injected ones
// are kept. Caller holds mu.
func (l *Ledger) dropOpened() error {
	var errs []error
	if l.store != nil && l.store != l.opts.store {
		errs = append(errs, l.store.Close())
		l.store = nil
	}
	if l.cells != nil && l.cells != l.opts.cells {
		errs = append(errs, l.cells.Close())
		l.cells = nil
	}
	return errors.Join(errs...)
}

// openStore returns the opened row store, creating it on first use. Caller holds mu.
func (l *Ledger) openStore(ctx context.Context) (rowstore.Store, error) {
	if l.store == nil {
		if l.opts.store != nil {
			l.store = l.opts.store
		} else {
			if l.cfg.Dir != "" {
				if err := os.MkdirAll(l.cfg.Dir, 0o755); err != nil {
					return nil, err
				}
			}
			s, err := rowstore.NewStore(l.opts.storeKind, filepath.Join(l.cfg.Dir, DataFile))
			if err != nil {
				return nil, &ConfigurationError{Field: "store", Reason: err.Error(), cause: err}
			}
			l.store = s
		}
	}

	if err := l.store.Init(ctx); err != nil {
		return nil, err
	}
	return l.store, nil
}

// openCells opens the cells, zeroing them when create is set. Caller holds mu.
func (l *Ledger) openCells(create bool) error {
	if l.cells == nil {
		switch {
		case l.opts.cells != nil:
			l.cells = l.opts.cells
		case l.cfg.Dir == "":
			l.cells = cell.NewMemory()
		default:
			cs, err := cell.OpenFile(filepath.Join(l.cfg.Dir, CellsFile), create)
			if err != nil {
				return err
			}
			l.cells = cs
			return nil
		}
	}

	if create {
		return l.cells.Reset()
	}
	return nil
}

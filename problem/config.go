package problem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid problem config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config describes one optimization problem.
type Config struct {
	Name     string `yaml:"name" validate:"required"`
	NVar     int    `yaml:"n_var" validate:"gte=1"`
	NObj     int    `yaml:"n_obj" validate:"gte=1"`
	Minimize []bool `yaml:"minimize,omitempty"`

	Bounds    Bounds          `yaml:"bounds"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Evaluator EvaluatorConfig `yaml:"evaluator"`
	Store     StoreConfig     `yaml:"store"`
}

// Bounds are the per-variable box constraints of the design space.
type Bounds struct {
	Lower []float64 `yaml:"lower"`
	Upper []float64 `yaml:"upper"`
}

// OptimizerConfig selects and tunes the optimizer.
type OptimizerConfig struct {
	Kind      string `yaml:"kind" validate:"oneof=random"`
	BatchSize int    `yaml:"batch_size" validate:"gte=1,lte=10000"`
	Seed      int64  `yaml:"seed"`
}

// EvaluatorConfig describes the black-box evaluation program.
type EvaluatorConfig struct {
	Command           []string      `yaml:"command,omitempty"`
	Codec             string        `yaml:"codec" validate:"oneof=json go-json"`
	Timeout           time.Duration `yaml:"timeout" validate:"gte=0"`
	MaxConcurrent     int           `yaml:"max_concurrent" validate:"gte=1"`
	LaunchesPerSecond float64       `yaml:"launches_per_second" validate:"gte=0"`
}

// StoreConfig selects the row store backend.
type StoreConfig struct {
	Kind string `yaml:"kind" validate:"oneof=sqlite memory"`
}

// DefaultConfig returns a configuration with every optional setting filled in.
func DefaultConfig() Config {
	return Config{
		Optimizer: OptimizerConfig{
			Kind:      "random",
			BatchSize: 1,
		},
		Evaluator: EvaluatorConfig{
			Codec:         "json",
			Timeout:       10 * time.Minute,
			MaxConcurrent: 1,
		},
		Store: StoreConfig{
			Kind: "sqlite",
		},
	}
}

// LoadConfig loads configuration with priority: env > file > defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides settings from PARETODB_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("PARETODB_BATCH_SIZE"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PARETODB_BATCH_SIZE: %w", err)
		}
		cfg.Optimizer.BatchSize = i
	}
	if v := os.Getenv("PARETODB_SEED"); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PARETODB_SEED: %w", err)
		}
		cfg.Optimizer.Seed = i
	}
	if v := os.Getenv("PARETODB_EVAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PARETODB_EVAL_TIMEOUT: %w", err)
		}
		cfg.Evaluator.Timeout = d
	}
	if v := os.Getenv("PARETODB_EVAL_CONCURRENCY"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PARETODB_EVAL_CONCURRENCY: %w", err)
		}
		cfg.Evaluator.MaxConcurrent = i
	}
	if v := os.Getenv("PARETODB_CODEC"); v != "" {
		cfg.Evaluator.Codec = v
	}
	if v := os.Getenv("PARETODB_STORE"); v != "" {
		cfg.Store.Kind = v
	}
	return nil
}

// Validate checks struct constraints and the cross-field dimensions.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if n := len(c.Minimize); n > 1 && n != c.NObj {
		return fmt.Errorf("%w: %d minimize flags for %d objectives", ErrInvalidConfig, n, c.NObj)
	}
	if len(c.Bounds.Lower) != c.NVar || len(c.Bounds.Upper) != c.NVar {
		return fmt.Errorf("%w: bounds must have %d entries", ErrInvalidConfig, c.NVar)
	}
	for i := range c.Bounds.Lower {
		if !(c.Bounds.Lower[i] < c.Bounds.Upper[i]) {
			return fmt.Errorf("%w: bounds of x%d are empty", ErrInvalidConfig, i+1)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Minimize = slices.Clone(c.Minimize)
	out.Bounds.Lower = slices.Clone(c.Bounds.Lower)
	out.Bounds.Upper = slices.Clone(c.Bounds.Upper)
	out.Evaluator.Command = slices.Clone(c.Evaluator.Command)
	return &out
}

const snapshotPrefix = "config_"

// SnapshotPath returns the file name of configuration snapshot id in dir.
func SnapshotPath(dir string, id int64) string {
	return filepath.Join(dir, snapshotPrefix+strconv.FormatInt(id, 10)+".yaml")
}

// SaveSnapshot writes cfg as configuration id. Existing snapshots are never
// overwritten, since rows may already reference them.
func SaveSnapshot(dir string, id int64, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	path := SnapshotPath(dir, id)
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Link fails if the target exists, which makes the write first-wins.
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("config snapshot %d already exists", id)
		}
		return err
	}
	return nil
}

// LoadSnapshot reads configuration snapshot id.
func LoadSnapshot(dir string, id int64) (*Config, error) {
	data, err := os.ReadFile(SnapshotPath(dir, id))
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config snapshot %d: %w", id, err)
	}
	return &cfg, nil
}

// Snapshots lists the snapshot ids in dir in ascending order.
func Snapshots(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, ".yaml") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), ".yaml"), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// NextSnapshotID returns one more than the largest snapshot id in dir, or 1.
func NextSnapshotID(dir string) (int64, error) {
	ids, err := Snapshots(dir)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 1, nil
	}
	return ids[len(ids)-1] + 1, nil
}

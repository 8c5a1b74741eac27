package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/paretodb"
	"github.com/hupe1980/paretodb/cell"
	"github.com/hupe1980/paretodb/resource"
)

// Backuper writes a consistent copy of a row store to a file.
// *paretodb.Ledger implements it.
type Backuper interface {
	Backup(ctx context.Context, dst string) error
}

// Options configures an Archiver.
type Options struct {
	// Prefix is prepended to snapshot names. Default "snapshots/".
	Prefix string
	// Compression of new snapshots. Default zstd.
	Compression Compression
	// Level is the compressor level, 0 for the library default.
	Level int
	// Controller limits upload and download bandwidth. Optional.
	Controller *resource.Controller
	// Logger receives one line per snapshot. Optional.
	Logger *slog.Logger
}

// Option configures an Archiver.
type Option func(*Options)

// WithPrefix sets the name prefix of snapshots.
func WithPrefix(prefix string) Option {
	return func(o *Options) { o.Prefix = prefix }
}

// WithCompression sets the compression of new snapshots.
func WithCompression(c Compression, level int) Option {
	return func(o *Options) {
		o.Compression = c
		o.Level = level
	}
}

// WithController limits transfer bandwidth with the controller's IO limit.
func WithController(rc *resource.Controller) Option {
	return func(o *Options) { o.Controller = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Info describes an uploaded snapshot.
type Info struct {
	Name  string
	Files []string
	// Size is the number of bytes written to the store.
	Size int64
}

// Archiver uploads and restores run directory snapshots.
type Archiver struct {
	store Store
	opts  Options
}

// New returns an Archiver writing to store.
func New(store Store, optFns ...Option) *Archiver {
	o := Options{
		Prefix:      "snapshots/",
		Compression: CompressionZSTD,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return &Archiver{store: store, opts: o}
}

// Snapshot copies the row store of src under its exclusive lock, and uploads
// it together with the configuration snapshots found in runDir.
func (a *Archiver) Snapshot(ctx context.Context, src Backuper, runDir string) (Info, error) {
	start := time.Now()

	tmp, err := os.MkdirTemp("", "paretodb-snapshot-*")
	if err != nil {
		return Info{}, err
	}
	defer os.RemoveAll(tmp)

	dbCopy := filepath.Join(tmp, paretodb.DataFile)
	if err := src.Backup(ctx, dbCopy); err != nil {
		return Info{}, fmt.Errorf("backup row store: %w", err)
	}

	files := map[string]string{paretodb.DataFile: dbCopy}
	configs, err := filepath.Glob(filepath.Join(runDir, "config_*.yaml"))
	if err != nil {
		return Info{}, err
	}
	for _, p := range configs {
		files[filepath.Base(p)] = p
	}

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)

	info := Info{
		Name:  a.opts.Prefix + time.Now().UTC().Format("20060102T150405.000000000Z") + "-" + uuid.NewString()[:8] + a.opts.Compression.Ext(),
		Files: names,
	}

	w, err := a.store.Create(ctx, info.Name)
	if err != nil {
		return Info{}, err
	}

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := a.writeTar(pw, names, files)
		_ = pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		n, err := io.Copy(w, a.limit(gctx, pr))
		info.Size = n
		_ = pr.CloseWithError(err)
		return err
	})

	if err := g.Wait(); err != nil {
		_ = w.Abort()
		return Info{}, fmt.Errorf("upload %s: %w", info.Name, err)
	}
	if err := w.Close(); err != nil {
		return Info{}, fmt.Errorf("upload %s: %w", info.Name, err)
	}

	a.opts.Logger.InfoContext(ctx, "snapshot uploaded",
		"name", info.Name,
		"files", len(names),
		"bytes", info.Size,
		"elapsed", time.Since(start),
	)
	return info, nil
}

func (a *Archiver) writeTar(w io.Writer, names []string, files map[string]string) error {
	cw, err := a.opts.Compression.newWriter(w, a.opts.Level)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	for _, name := range names {
		if err := addFile(tw, name, files[name]); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return cw.Close()
}

func addFile(tw *tar.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(st, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// Restore extracts snapshot name into dstDir, which must not already hold a
// row store, and creates a zeroed cells file. Counters must be recounted
// (paretodb.Ledger.CorrectStats) after attaching.
func (a *Archiver) Restore(ctx context.Context, name, dstDir string) ([]string, error) {
	c, err := compressionOf(name)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(dstDir, paretodb.DataFile)); err == nil {
		return nil, fmt.Errorf("%s already holds a ledger", dstDir)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, err
	}

	rc, err := a.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dr, err := c.newReader(a.limit(ctx, rc))
	if err != nil {
		return nil, err
	}
	defer dr.Close()

	var restored []string
	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return restored, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Name != filepath.Base(hdr.Name) || strings.HasPrefix(hdr.Name, ".") {
			return restored, fmt.Errorf("unexpected entry %q in %s", hdr.Name, name)
		}
		if err := extract(tr, filepath.Join(dstDir, hdr.Name)); err != nil {
			return restored, err
		}
		restored = append(restored, hdr.Name)
	}

	if _, err := os.Stat(filepath.Join(dstDir, paretodb.DataFile)); err != nil {
		return restored, fmt.Errorf("%s has no %s", name, paretodb.DataFile)
	}

	cs, err := cell.OpenFile(filepath.Join(dstDir, paretodb.CellsFile), true)
	if err != nil {
		return restored, err
	}
	if err := cs.Close(); err != nil {
		return restored, err
	}

	a.opts.Logger.InfoContext(ctx, "snapshot restored", "name", name, "dir", dstDir, "files", len(restored))
	return restored, nil
}

func extract(r io.Reader, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// List returns the snapshot names, oldest first.
func (a *Archiver) List(ctx context.Context) ([]string, error) {
	names, err := a.store.List(ctx, a.opts.Prefix)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if _, err := compressionOf(n); err == nil {
			out = append(out, n)
		}
	}
	return out, nil
}

// Prune deletes all but the newest keep snapshots and returns the deleted
// names.
func (a *Archiver) Prune(ctx context.Context, keep int) ([]string, error) {
	names, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) <= keep {
		return nil, nil
	}

	doomed := names[:len(names)-max(keep, 0)]
	for _, n := range doomed {
		if err := a.store.Delete(ctx, n); err != nil {
			return nil, fmt.Errorf("delete %s: %w", n, err)
		}
	}
	return doomed, nil
}

func (a *Archiver) limit(ctx context.Context, r io.Reader) io.Reader {
	if a.opts.Controller == nil {
		return r
	}
	return resource.NewRateLimitedReader(ctx, r, a.opts.Controller)
}

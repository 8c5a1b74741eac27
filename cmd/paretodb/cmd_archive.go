package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"

	"github.com/hupe1980/paretodb/archive"
	miniostore "github.com/hupe1980/paretodb/archive/minio"
	s3store "github.com/hupe1980/paretodb/archive/s3"
	"github.com/hupe1980/paretodb/resource"
)

type archiveFlags struct {
	store       string
	compression string
	level       int
	bandwidth   int64
	insecure    bool
}

func newArchiveCmd(a *app) *cobra.Command {
	f := &archiveFlags{}

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Snapshot the run directory to blob storage and restore it",
		Long: `Snapshot the run directory to blob storage and restore it.

Stores are named by URL:

	local:/path/to/dir
	s3://bucket/prefix              (credentials from the AWS environment)
	minio://endpoint/bucket/prefix  (MINIO_ACCESS_KEY, MINIO_SECRET_KEY)`,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.store, "store", "", "snapshot store URL")
	pf.StringVar(&f.compression, "compression", "zstd", "snapshot compression (none, lz4, zstd)")
	pf.IntVar(&f.level, "level", 0, "compression level (0 for the default)")
	pf.Int64Var(&f.bandwidth, "bandwidth", 0, "transfer limit in bytes per second (0 for unlimited)")
	pf.BoolVar(&f.insecure, "insecure", false, "use plain http for minio stores")
	_ = cmd.MarkPersistentFlagRequired("store")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "snapshot",
			Short: "Upload a consistent snapshot",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ar, err := f.archiver(cmd.Context(), a)
				if err != nil {
					return err
				}
				l, _, _, err := a.attach(cmd.Context())
				if err != nil {
					return err
				}
				defer l.Quit()

				info, err := ar.Snapshot(cmd.Context(), l, a.dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\n", info.Name, info.Size)
				return nil
			},
		},
		&cobra.Command{
			Use:   "restore NAME",
			Short: "Restore a snapshot into the run directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ar, err := f.archiver(cmd.Context(), a)
				if err != nil {
					return err
				}
				files, err := ar.Restore(cmd.Context(), args[0], a.dir)
				if err != nil {
					return err
				}

				l, _, _, err := a.attach(cmd.Context())
				if err != nil {
					return err
				}
				defer l.Quit()
				if err := correct(cmd.Context(), l); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %d files into %s\n", len(files), a.dir)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List snapshots, oldest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ar, err := f.archiver(cmd.Context(), a)
				if err != nil {
					return err
				}
				names, err := ar.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			},
		},
		newPruneCmd(a, f),
	)
	return cmd
}

func newPruneCmd(a *app, f *archiveFlags) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ar, err := f.archiver(cmd.Context(), a)
			if err != nil {
				return err
			}
			deleted, err := ar.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			for _, n := range deleted {
				fmt.Fprintln(cmd.OutOrStdout(), "deleted", n)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 5, "number of snapshots to keep")
	return cmd
}

func (f *archiveFlags) archiver(ctx context.Context, a *app) (*archive.Archiver, error) {
	c, err := archive.ParseCompression(f.compression)
	if err != nil {
		return nil, err
	}
	store, err := f.openStore(ctx)
	if err != nil {
		return nil, err
	}

	opts := []archive.Option{
		archive.WithCompression(c, f.level),
		archive.WithLogger(a.logger.Logger),
	}
	if f.bandwidth > 0 {
		opts = append(opts, archive.WithController(resource.NewController(resource.Config{
			IOLimitBytesPerSec: f.bandwidth,
		})))
	}
	return archive.New(store, opts...), nil
}

func (f *archiveFlags) openStore(ctx context.Context) (archive.Store, error) {
	scheme, rest, ok := strings.Cut(f.store, ":")
	if !ok {
		return nil, fmt.Errorf("--store: %q has no scheme", f.store)
	}

	switch scheme {
	case "local":
		if rest == "" {
			return nil, fmt.Errorf("--store: local store needs a directory")
		}
		return archive.NewLocalStore(rest), nil
	case "s3":
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(rest, "//"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("--store: s3 store needs a bucket")
		}
		store, err := s3store.New(ctx, bucket, prefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "minio":
		parts := strings.SplitN(strings.TrimPrefix(rest, "//"), "/", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("--store: minio store needs an endpoint and a bucket")
		}
		client, err := minio.New(parts[0], &minio.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: !f.insecure,
		})
		if err != nil {
			return nil, err
		}
		prefix := ""
		if len(parts) == 3 {
			prefix = parts[2]
		}
		return miniostore.NewStore(client, parts[1], prefix), nil
	default:
		return nil, fmt.Errorf("--store: unknown scheme %q", scheme)
	}
}

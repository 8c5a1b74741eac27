package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/paretodb/problem"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the ledger in the run directory",
		Long: `Create the ledger table and the shared cells in the run directory and
register the problem config as configuration 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.configPath == "" {
				return errors.New("init needs --config")
			}
			cfg, err := problem.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			l, err := a.newLedger(cfg)
			if err != nil {
				return err
			}
			defer l.Quit()

			if err := l.InitializeSchema(cmd.Context()); err != nil {
				return err
			}
			id, err := l.RegisterConfig(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s (config %d)\n", a.dir, id)
			return nil
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var xPath, yPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the ledger with initial samples",
		Long: `Seed the ledger with initial samples read from CSV files, one row per
sample. Without --y the rows are stored unevaluated. Seeded rows belong to
batch 0.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			X, err := readMatrix(xPath)
			if err != nil {
				return fmt.Errorf("--x: %w", err)
			}
			var Y [][]float64
			if yPath != "" {
				if Y, err = readMatrix(yPath); err != nil {
					return fmt.Errorf("--y: %w", err)
				}
			}

			l, _, _, err := a.attach(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Quit()

			ids, err := l.InitializeData(cmd.Context(), X, Y)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d rows\n", len(ids))
			return nil
		},
	}

	cmd.Flags().StringVar(&xPath, "x", "", "CSV file of design points")
	cmd.Flags().StringVar(&yPath, "y", "", "CSV file of objective values")
	_ = cmd.MarkFlagRequired("x")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration snapshots",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "register FILE",
		Short: "Register a new configuration snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := problem.LoadConfig(args[0])
			if err != nil {
				return err
			}
			l, current, _, err := a.attach(cmd.Context())
			if err != nil {
				return err
			}
			defer l.Quit()

			if cfg.NVar != current.NVar || cfg.NObj != current.NObj {
				return fmt.Errorf("config has %d variables and %d objectives, ledger has %d and %d",
					cfg.NVar, cfg.NObj, current.NVar, current.NObj)
			}
			id, err := l.RegisterConfig(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configuration snapshot ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, err := problem.Snapshots(a.dir)
			if err != nil {
				return err
			}
			for _, id := range ids {
				cfg, err := problem.LoadSnapshot(a.dir, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", id, cfg.Name)
			}
			return nil
		},
	})
	return cmd
}

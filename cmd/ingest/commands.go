package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	appMiddleware "github.com/markdave123-py/docvault/internal/api/middlewares"
	"github.com/markdave123-py/docvault/internal/app"
	"github.com/markdave123-py/docvault/internal/config"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Ingest PDF documents into the docvault store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	// loadApp builds the app from the environment, letting --verbose override VERBOSE.
	loadApp := func(cmd *cobra.Command) (*app.App, error) {
		cfg := config.LoadConfig()
		if verbose {
			cfg.Verbose = true
		}
		return app.NewApp(cmd.Context(), cfg)
	}

	root.AddCommand(
		newRunCmd(loadApp),
		newStatsCmd(loadApp),
		newBackfillCmd(loadApp),
		newTokenCmd(),
	)
	return root
}

type appLoader func(cmd *cobra.Command) (*app.App, error)

func newRunCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "run <pdf>",
		Short: "Ingest one document; safe to re-run after a crash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Ingest.IngestNow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
}

func newStatsCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print row counts of the five tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.Ingest.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), counts)
		},
	}
}

func newBackfillCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Fill missing embedding and metadata rows left by interrupted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Ingest.Backfill(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backfilled %d chunks\n", n)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API using JWT_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			tok, err := appMiddleware.IssueToken(cfg.JWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "docvault-cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withContext executes root with args, cancelling commands when ctx ends.
func withContext(ctx context.Context, root *cobra.Command, args ...string) error {
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

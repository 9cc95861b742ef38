package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/tgcollect/internal/app"
	"github.com/dokzlo13/tgcollect/internal/updates"
)

type replayOptions struct {
	input    string
	interval time.Duration
	wait     bool
	output   string
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	opts := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run the configured collectors over recorded updates",
		Long: `Start the configured collectors, feed them the updates read from a
JSON-lines file and record every finished session in the ledger.

Collectors still running when the input is exhausted are stopped with
reason "user", unless --wait is set, in which case the command waits for
them to end on their own timers or limits (or for Ctrl-C).`,
		Example: `  # Replay a file as fast as possible
  tgcollect replay --input updates.jsonl

  # Replay from stdin, pacing events and letting timers run out
  cat updates.jsonl | tgcollect replay --input - --interval 50ms --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "JSON-lines update file, - for stdin")
	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Pause between replayed updates")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "Wait for collectors to end on their own after the input is exhausted")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Summary format: text|json")

	return cmd
}

func runReplay(cmd *cobra.Command, root *rootOptions, opts *replayOptions) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx := app.SignalContext()
	if err := application.Start(ctx); err != nil {
		application.Stop()
		return fmt.Errorf("failed to start application: %w", err)
	}

	stats, replayErr := updates.Replay(ctx, in, application.Bus(), updates.Options{Interval: opts.interval})
	log.Info().
		Int("lines", stats.Lines).
		Int("published", stats.Published).
		Int("skipped", stats.Skipped).
		Msg("Replay finished")

	if opts.wait && replayErr == nil {
		log.Info().Msg("Waiting for collectors to end")
		if err := application.Collectors().Wait(ctx); err != nil {
			log.Warn().Err(err).Msg("Wait interrupted")
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration())
	application.Drain(drainCtx)
	cancel()

	if err := application.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}
	status := application.Collectors().Status()

	if err := printReplaySummary(cmd.OutOrStdout(), opts.output, stats, status); err != nil {
		return err
	}
	if replayErr != nil && !errors.Is(replayErr, context.Canceled) {
		return replayErr
	}
	return nil
}

func printReplaySummary(w io.Writer, format string, stats updates.Stats, status []app.CollectorStatus) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"stats":      stats,
			"collectors": status,
		})
	}

	fmt.Fprintf(w, "lines=%d published=%d skipped=%d\n\n", stats.Lines, stats.Published, stats.Skipped)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tCOLLECTED\tRECEIVED\tSTATE")
	for _, s := range status {
		state := "running"
		if s.Ended {
			state = "ended: " + s.Reason
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s.Name, s.Kind, s.Collected, s.Received, state)
	}
	return tw.Flush()
}

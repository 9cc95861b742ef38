package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/tgcollect/internal/db"
	"github.com/dokzlo13/tgcollect/internal/ledger"
)

func newSessionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded collector sessions",
	}

	cmd.AddCommand(newSessionsListCmd(root))
	cmd.AddCommand(newSessionsShowCmd(root))
	cmd.AddCommand(newSessionsPruneCmd(root))

	return cmd
}

// withLedger opens the configured database for the duration of fn
func withLedger(root *rootOptions, fn func(l *ledger.Ledger) error) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(ledger.New(database.DB))
}

func newSessionsListCmd(root *rootOptions) *cobra.Command {
	var (
		limit  int
		reason string
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent sessions",
		Example: `  tgcollect sessions list --limit 20
  tgcollect sessions list --reason idle -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(root, func(l *ledger.Ledger) error {
				var sessions []*ledger.Session
				var err error
				if reason != "" {
					sessions, err = l.ListByReason(reason, limit)
				} else {
					sessions, err = l.List(limit)
				}
				if err != nil {
					return fmt.Errorf("failed to list sessions: %w", err)
				}
				return printSessions(cmd.OutOrStdout(), output, sessions)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of sessions")
	cmd.Flags().StringVar(&reason, "reason", "", "Only sessions that ended with this reason")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text|json")

	return cmd
}

func newSessionsShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session with its collected keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(root, func(l *ledger.Ledger) error {
				s, err := l.Get(args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sessionView(s))
			})
		},
	}
}

func newSessionsPruneCmd(root *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions that ended before now minus --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withLedger(root, func(l *ledger.Ledger) error {
				n, err := l.DeleteOlderThan(olderThan)
				if err != nil {
					return fmt.Errorf("failed to prune sessions: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d sessions\n", n)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Retention window")

	return cmd
}

type sessionJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Kind      string    `json:"kind"`
	ChatID    int64     `json:"chat_id,omitempty"`
	Reason    string    `json:"reason"`
	Collected int       `json:"collected"`
	Received  int       `json:"received"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Duration  string    `json:"duration"`
	Keys      []string  `json:"keys,omitempty"`
}

func sessionView(s *ledger.Session) sessionJSON {
	return sessionJSON{
		ID:        s.ID,
		Name:      s.Name,
		Kind:      s.Kind,
		ChatID:    s.ChatID,
		Reason:    s.Reason,
		Collected: s.Collected,
		Received:  s.Received,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Duration:  s.Duration().String(),
		Keys:      s.Keys,
	}
}

func printSessions(w io.Writer, format string, sessions []*ledger.Session) error {
	if format == "json" {
		views := make([]sessionJSON, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, sessionView(s))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tREASON\tCOLLECTED\tRECEIVED\tENDED\tDURATION\tKEYS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			s.ID, s.Name, s.Kind, s.Reason, s.Collected, s.Received,
			s.EndedAt.Local().Format(time.DateTime), s.Duration().Round(time.Millisecond),
			truncate(strings.Join(s.Keys, ","), 40))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

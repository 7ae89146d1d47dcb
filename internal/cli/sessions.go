package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nanoagent/nanoagent/pkg/session"
	"github.com/nanoagent/nanoagent/pkg/usage"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsClearCmd())
	cmd.AddCommand(newSessionsSweepCmd())

	return cmd
}

func openStore() (*session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}
	return session.NewStore(cfg.Sessions.Dir)
}

func newSessionsListCmd() *cobra.Command {
	var (
		limit    int
		clientID string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			summaries, err := store.List(clientID, limit)
			if err != nil {
				return err
			}

			if stdoutIsTerminal() {
				renderSessionsTable(cmd, summaries)
				return nil
			}

			// Plain tab-separated output for pipes.
			for _, s := range summaries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d\t%s\t%s\n",
					s.ID, s.Provider, s.Model, s.MessageCount,
					usage.FormatTokens(s.TotalTokens), s.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many sessions")
	cmd.Flags().StringVar(&clientID, "client", "", "only show sessions for this client id")

	return cmd
}

func renderSessionsTable(cmd *cobra.Command, summaries []session.Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetStyle(table.StyleRounded)

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 6, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 7, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
	})

	tw.AppendHeader(table.Row{"Session ID", "Provider", "Model", "Messages", "Tokens", "Cost", "Updated"})

	for _, s := range summaries {
		tw.AppendRow(table.Row{
			s.ID,
			s.Provider,
			s.Model,
			s.MessageCount,
			usage.FormatTokens(s.TotalTokens),
			usage.FormatCost(s.TotalCost),
			s.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	if len(summaries) == 0 {
		tw.AppendRow(table.Row{"(no sessions)", "-", "-", 0, "0", "$0.0000", "-"})
	}

	tw.Render()
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			sess, err := store.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:  %s\n", sess.ID)
			fmt.Fprintf(out, "Provider: %s / %s\n", sess.Provider, sess.Model)
			fmt.Fprintf(out, "Created:  %s\n", sess.CreatedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "Usage:    %s tokens (%d in / %d out), %s over %d requests\n\n",
				usage.FormatTokens(sess.TotalTokens),
				sess.TotalInputTokens, sess.TotalOutputTokens,
				usage.FormatCost(sess.TotalCost), sess.TotalRequests)

			for _, msg := range sess.Messages {
				header := strings.ToUpper(msg.Role)
				if len(msg.ToolCalls) > 0 {
					names := make([]string, 0, len(msg.ToolCalls))
					for _, call := range msg.ToolCalls {
						names = append(names, call.Name)
					}
					header += " (tools: " + strings.Join(names, ", ") + ")"
				}
				fmt.Fprintf(out, "--- %s  %s\n", header, msg.Timestamp.Local().Format("15:04:05"))
				if msg.Content != "" {
					fmt.Fprintln(out, msg.Content)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newSessionsClearCmd() *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored sessions",
		Long: `Clear deletes stored sessions. With --older-than N only sessions
last updated more than N days ago are removed; without it every
session is deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}

			if olderThanDays > 0 {
				cutoff := time.Now().AddDate(0, 0, -olderThanDays)
				deleted, err := store.PurgeOlderThan(cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d session(s)\n", deleted)
				return nil
			}

			summaries, err := store.List("", 0)
			if err != nil {
				return err
			}
			for _, s := range summaries {
				if err := store.Delete(s.ID); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d session(s)\n", len(summaries))
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "only delete sessions older than this many days")

	return cmd
}

func newSessionsSweepCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge sessions past the retention window",
		Long: `Sweep deletes sessions older than the configured retention window
(sessions.retention_days). With --watch it keeps running and sweeps on
the configured cron schedule (sessions.sweep_schedule).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return &ExitError{Code: ExitConfigError, Err: err}
			}

			store, err := session.NewStore(cfg.Sessions.Dir)
			if err != nil {
				return err
			}

			retention := time.Duration(cfg.Sessions.RetentionDays) * 24 * time.Hour
			sweeper := session.NewSweeper(store, retention, cfg.Sessions.SweepSchedule)

			if !watch {
				deleted, err := sweeper.SweepNow()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d expired session(s)\n", deleted)
				return nil
			}

			if err := sweeper.Start(); err != nil {
				return &ExitError{Code: ExitConfigError, Err: err}
			}
			defer sweeper.Stop()

			<-cmd.Context().Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and sweep on the configured schedule")

	return cmd
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func init() {
	rootCmd.AddCommand(newSessionsCmd())
}

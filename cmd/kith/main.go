// kith: relationship memory MCP server
//
// kith turns short voice notes about the people in your life into a
// searchable local memory: facts, hot topics, AI summaries, reminders.
// It speaks MCP over stdio so any MCP-capable assistant can drive it.
//
// Usage:
//
//	kith serve          # Start MCP server (stdio transport)
//	kith history list   # Show recently asked questions
//	kith update         # Update to the latest version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/HendryAvila/kith/internal/config"
	"github.com/HendryAvila/kith/internal/history"
	"github.com/HendryAvila/kith/internal/logging"
	kithserver "github.com/HendryAvila/kith/internal/server"
	"github.com/HendryAvila/kith/internal/updater"
)

var configPath string

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kith",
		Short: "kith - a memory for the people in your life",
		Long: `kith remembers what you learn about your contacts and serves it to your
AI assistant over MCP.

Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "kith": {
        "command": "kith",
        "args": ["serve"]
      }
    }
  }

Config: ~/.kith/config.yaml (KITH_* environment variables override it)`,
		Version:       kithserver.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.kith/config.yaml)")

	root.AddCommand(newServeCmd(), newHistoryCmd(), newUpdateCmd(), newVersionCmd())
	return root
}

// ─── serve ───────────────────────────────────────────────────────────────────

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol, so logs always go to stderr.
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	s, cleanup, err := kithserver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go checkForUpdates(ctx, logging.Component(logger, "updater"))

	stdio := server.NewStdioServer(s)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// checkForUpdates prints a notice to stderr when a newer release exists.
// It is best effort and never interferes with the stdio transport.
func checkForUpdates(ctx context.Context, log *logrus.Entry) {
	result := updater.New().Check(ctx, kithserver.Version)
	if !result.UpdateAvailable {
		log.Debugf("kith v%s is up to date", result.CurrentVersion)
		return
	}
	fmt.Fprintf(os.Stderr,
		"\n  Update available: v%s -> v%s\n"+
			"     Run: kith update\n"+
			"     Release: %s\n\n",
		result.CurrentVersion, result.LatestVersion, result.ReleaseURL,
	)
}

// ─── history ─────────────────────────────────────────────────────────────────

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear the question history",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Show recently asked questions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := openJournal()
			if err != nil {
				return err
			}
			if err := j.Load(); err != nil {
				return err
			}
			entries := j.Entries()
			if limit > 0 && limit < len(entries) {
				entries = entries[:limit]
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No questions asked yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s\n", e.Timestamp.Local().Format("2006-01-02 15:04"), e.Question)
				if e.AnswerSummary != "" {
					fmt.Fprintf(out, "                  %s\n", e.AnswerSummary)
				}
			}
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n entries")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every question in the history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := openJournal()
			if err != nil {
				return err
			}
			if err := j.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	}

	cmd.AddCommand(list, clearCmd)
	return cmd
}

func openJournal() (*history.Journal, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return history.New(cfg.HistoryPath(), cfg.History.MaxEntries), nil
}

// ─── update / version ────────────────────────────────────────────────────────

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update to the latest version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u := updater.New()
			fmt.Fprintln(os.Stderr, "Checking for updates...")

			result := u.Check(cmd.Context(), kithserver.Version)
			if !result.UpdateAvailable {
				fmt.Fprintf(os.Stderr, "Already at the latest version (v%s)\n", result.CurrentVersion)
				return nil
			}
			fmt.Fprintf(os.Stderr, "New version available: v%s -> v%s\nDownloading...\n",
				result.CurrentVersion, result.LatestVersion)

			installed, err := u.Apply(cmd.Context(), kithserver.Version)
			if errors.Is(err, updater.ErrUpToDate) {
				fmt.Fprintf(os.Stderr, "Already at the latest version (v%s)\n", result.CurrentVersion)
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w\n\nYou can download manually from:\n   %s", err, result.ReleaseURL)
			}
			fmt.Fprintf(os.Stderr, "Updated to v%s. Restart kith to use the new version.\n", installed)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kith v%s\n", kithserver.Version)
		},
	}
}

// Package main provides the parley binary entry point.
// Parley is a terminal client for live multi-agent discussions served
// by a model relay backend.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"parley/internal/api"
	"parley/internal/config"
	"parley/internal/db"
	"parley/internal/export"
	"parley/internal/ui"
)

const (
	Version = "0.1.0"
	appName = "parley"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		serverURL string
		group     string
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "parley [topic]",
		Short: "Terminal client for multi-agent discussions",
		Long: `Parley follows live multi-agent discussions streamed from a model
relay backend. Agent turns appear as attributed speaker blocks; when the
discussion waits on a human role, parley prompts for input and hands it
back to the backend.

Finished transcripts are stored locally and can be browsed or exported.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(serverURL, group, logLevel, strings.Join(args, " "))
		},
	}

	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend base URL (overrides config)")
	cmd.Flags().StringVarP(&group, "group", "g", "", "Discussion group id (overrides config)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	chat := &cobra.Command{
		Use:   "chat [topic]",
		Short: "Open the discussion TUI (same as running parley with no subcommand)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(serverURL, group, logLevel, strings.Join(args, " "))
		},
	}
	chat.Flags().StringVarP(&group, "group", "g", "", "Discussion group id (overrides config)")

	cmd.AddCommand(chat)
	cmd.AddCommand(groupsCmd(&serverURL))
	cmd.AddCommand(rolesCmd(&serverURL))
	cmd.AddCommand(modelsCmd(&serverURL))
	cmd.AddCommand(configsCmd(&serverURL))
	cmd.AddCommand(sessionsCmd())
	cmd.AddCommand(exportCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func runChat(serverURL, group, logLevel, topic string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if group != "" {
		cfg.Session.DefaultGroup = group
	}

	logger := newLogger(logLevel)
	client := api.New(cfg.Server.BaseURL, cfg.Server.APIKey,
		api.WithLogger(logger),
		api.WithRequestTimeout(cfg.RequestTimeout()))

	store, err := db.Open()
	if err != nil {
		// The TUI works without persistence; history and export of past
		// sessions are just unavailable.
		logger.Warn("transcript store unavailable", "error", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	model := ui.New(client, cfg, store, logger, topic)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

func groupsCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List discussion groups offered by the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(*serverURL)
			if err != nil {
				return err
			}
			groups, err := client.ListGroups(cmd.Context())
			if err != nil {
				return err
			}
			for _, g := range groups {
				line := fmt.Sprintf("%-20s %s", g.ID, g.Name)
				if g.Mode != "" {
					line += " (" + g.Mode + ")"
				}
				fmt.Println(line)
				if len(g.Roles) > 0 {
					fmt.Printf("%-20s   roles: %s\n", "", strings.Join(g.Roles, ", "))
				}
			}
			return nil
		},
	}
}

func rolesCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List configured agent roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(*serverURL)
			if err != nil {
				return err
			}
			roles, err := client.ListRoles(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range roles {
				kind := "ai"
				if r.IsHuman {
					kind = "human"
				}
				fmt.Printf("%-20s %-6s %s\n", r.Name, kind, r.ModelID)
			}
			return nil
		},
	}
}

func modelsCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List backend model registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(*serverURL)
			if err != nil {
				return err
			}
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Printf("%-24s %-12s %s\n", m.Name, m.Provider, m.Type)
			}
			return nil
		},
	}
}

func configsCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "configs",
		Short: "List relay chain configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(*serverURL)
			if err != nil {
				return err
			}
			configs, err := client.ListRelayConfigs(cmd.Context())
			if err != nil {
				return err
			}
			for _, c := range configs {
				fmt.Printf("%-20s %s\n", c.Name, strings.Join(c.Steps, " -> "))
			}
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List locally stored session transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.Open()
			if err != nil {
				return fmt.Errorf("open transcript store: %w", err)
			}
			defer store.Close()

			records, err := store.ListSessions()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No stored sessions.")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%-36s  %-18s  %s  %s\n",
					rec.ID, rec.Status, rec.EndedAt.Format("2006-01-02 15:04"), rec.Topic)
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a stored session transcript to markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.Open()
			if err != nil {
				return fmt.Errorf("open transcript store: %w", err)
			}
			defer store.Close()

			rec, err := store.GetSession(args[0])
			if err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}
			stored, err := store.GetBlocks(rec.ID)
			if err != nil {
				return err
			}

			blocks := make([]export.TranscriptBlock, 0, len(stored))
			for _, b := range stored {
				blocks = append(blocks, export.TranscriptBlock{
					Speaker: b.Speaker,
					Kind:    b.Kind,
					Content: b.Content,
				})
			}
			tr := &export.Transcript{
				ID:        rec.ID,
				Topic:     rec.Topic,
				GroupName: rec.GroupName,
				Status:    rec.Status,
				CreatedAt: rec.CreatedAt,
				EndedAt:   rec.EndedAt,
				Blocks:    blocks,
			}

			path, err := export.WriteTranscript(tr, outDir)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Directory to write the export under")
	return cmd
}

func newClient(serverURL string) (*api.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	return api.New(cfg.Server.BaseURL, cfg.Server.APIKey,
		api.WithRequestTimeout(cfg.RequestTimeout())), nil
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelWarn
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

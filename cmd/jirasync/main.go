// Command jirasync keeps a single tracking issue in Jira synchronized with
// a caller-supplied summary and description. It never creates a duplicate:
// an existing open issue with the same summary is updated in place, or
// forked when it already sits in an active sprint.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jirasync/jirasync/internal/sync"
)

var rootCmd = &cobra.Command{
	Use:   "jirasync",
	Short: "Synchronize a tracking issue in Jira",
	Long: `Synchronize one tracking issue in Jira with the given summary and
description, without ever creating duplicates.

The summary is the dedup key: if an open issue with that summary exists it
is updated in place, unless it sits in an active sprint, in which case a new
issue is forked carrying only the new lines. Every written description gets
a "last updated" trailer, and that trailer is ignored when deciding whether
anything actually changed.

Configuration (flag > environment > config file):
  JIRA_URL         - base URL, e.g. https://company.atlassian.net
  JIRA_EMAIL       - account email for basic auth
  JIRA_API_TOKEN   - API token
  JIRA_PROJECT     - project key, e.g. PROJ
  JIRA_BOARD       - board ID (optional; resolved from project otherwise)
  JIRA_SPRINT      - target sprint name (omit for kanban boards)
  JIRA_MAX_RETRIES - transport retry budget (default 3)

A .env file in the working directory is loaded first, if present.

Examples:
  jirasync --summary "Deploy X" --description-file notes.txt --sprint "Sprint 42"
  jirasync --summary "Deploy X" --description "one line" --dry-run
  jirasync check-auth`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSync,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("url", "", "Jira base URL")
	flags.String("email", "", "Account email for basic auth")
	flags.String("token", "", "Jira API token")
	flags.String("project", "", "Jira project key")
	flags.Int("board", 0, "Board ID (0 resolves the first board for the project)")
	flags.Int("retries", 3, "Transport retry budget per call")
	flags.Int("api-version", 3, "REST API version: 2 (plain text) or 3 (ADF)")
	flags.String("config", "", "Config file (default $HOME/.jirasync.yaml)")
	flags.Bool("verbose", false, "Enable debug logging")

	rootCmd.Flags().String("summary", "", "Issue summary (the dedup key)")
	rootCmd.Flags().String("description", "", "Issue description text")
	rootCmd.Flags().String("description-file", "", "Read the description from a file, or - for stdin")
	rootCmd.Flags().String("sprint", "", "Target sprint name (empty skips sprint assignment)")
	rootCmd.Flags().Bool("dry-run", false, "Report the decision without writing to Jira")
}

// loadConfig resolves all inputs into the engine config.
func loadConfig(cmd *cobra.Command) (sync.Config, error) {
	var cfg sync.Config

	// A .env in the working directory seeds the environment; missing is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JIRA")
	v.AutomaticEnv()

	bindings := map[string]string{
		"url":         "url",
		"email":       "email",
		"api_token":   "token",
		"project":     "project",
		"board":       "board",
		"sprint":      "sprint",
		"max_retries": "retries",
		"api_version": "api-version",
	}
	for key, flag := range bindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return cfg, err
			}
		}
	}

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName(".jirasync")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		// The default config file is optional.
		_ = v.ReadInConfig()
	}

	cfg.BaseURL = v.GetString("url")
	cfg.Email = v.GetString("email")
	cfg.APIToken = v.GetString("api_token")
	cfg.ProjectKey = v.GetString("project")
	cfg.BoardID = v.GetInt("board")
	cfg.SprintName = v.GetString("sprint")
	cfg.MaxRetries = v.GetInt("max_retries")
	cfg.APIVersion = v.GetInt("api_version")

	cfg.Summary, _ = cmd.Flags().GetString("summary")
	cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")

	desc, err := loadDescription(cmd)
	if err != nil {
		return cfg, err
	}
	cfg.Description = desc

	return cfg, nil
}

// loadDescription reads the description from --description, a file, or stdin.
func loadDescription(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("description-file"); path != "" {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return "", fmt.Errorf("read description: %w", err)
		}
		return string(data), nil
	}
	desc, _ := cmd.Flags().GetString("description")
	return desc, nil
}

// newLogger builds the stderr logger; stdout stays reserved for the issue key.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := sync.New(cfg, logger)
	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("sync complete", "action", result.Action.String())
	if result.IssueKey != "" {
		fmt.Println(result.IssueKey)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

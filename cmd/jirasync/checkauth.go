package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jirasync/jirasync/internal/sync"
)

var checkAuthCmd = &cobra.Command{
	Use:   "check-auth",
	Short: "Verify Jira credentials",
	Long: `Verify that the configured URL, email and API token can reach Jira.

Examples:
  jirasync check-auth
  JIRA_API_TOKEN=... jirasync check-auth --url https://company.atlassian.net --email me@company.com`,
	RunE: runCheckAuth,
}

func init() {
	rootCmd.AddCommand(checkAuthCmd)
}

func runCheckAuth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Only the connection settings matter here.
	if cfg.BaseURL == "" || cfg.Email == "" || cfg.APIToken == "" {
		return fmt.Errorf("url, email and API token are required")
	}
	if cfg.APIVersion == 0 {
		cfg.APIVersion = 3
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := sync.New(cfg, newLogger(cmd))
	if err := engine.Client().CheckAuth(ctx); err != nil {
		return err
	}

	fmt.Println("authentication OK")
	return nil
}

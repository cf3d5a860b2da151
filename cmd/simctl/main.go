package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"virtual-trading-sim/internal/client"
	"virtual-trading-sim/internal/config"
	"virtual-trading-sim/internal/logger"

	"github.com/spf13/cobra"
)

type rootConfig struct {
	configDir string
	baseURL   string
	userID    uint64
	logLevel  string

	rc *client.RestClient
}

func newRootCmd() *cobra.Command {
	root := &rootConfig{}

	cmd := &cobra.Command{
		Use:           "simctl",
		Short:         "Command line client for the virtual trading simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(root.configDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("url") {
				cfg.Client.BaseURL = root.baseURL
			}
			if cmd.Flags().Changed("user") {
				cfg.Client.UserID = root.userID
			}

			log, err := logger.NewLogger(root.logLevel, "console")
			if err != nil {
				return err
			}
			root.rc = client.NewRestClient(&cfg.Client, log)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&root.configDir, "config", "./configs", "directory holding config.yml")
	cmd.PersistentFlags().StringVar(&root.baseURL, "url", "", "simulator base URL (overrides client.base_url)")
	cmd.PersistentFlags().Uint64Var(&root.userID, "user", 0, "user id sent as X-User-ID (overrides client.user_id)")
	cmd.PersistentFlags().StringVar(&root.logLevel, "log-level", "warn", "client log level")

	cmd.AddCommand(
		newAccountCmd(root),
		newBuyCmd(root),
		newSellCmd(root),
		newPortfolioCmd(root),
		newHistoryCmd(root),
		newStatsCmd(root),
		newVerifyCmd(root),
		newPricesCmd(root),
		newInstrumentsCmd(root),
		newMoversCmd(root),
	)
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

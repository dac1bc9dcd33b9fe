// options-yield computes premium yields for cash-secured puts and covered
// calls and serves the calculator over HTTP.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"options-yield/config"
	"options-yield/database"
	"options-yield/services"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var (
	cfg    *config.Config
	logger *logrus.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "options-yield",
		Short:         "Premium yield calculator for cash-secured puts and covered calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := config.LoadEnvFile(envFile); err != nil {
				return err
			}

			configFile, _ := cmd.Flags().GetString("config")
			loaded, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				loaded.Logging.Level = level
			}

			l, err := config.NewLogger(loaded.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			cfg, logger = loaded, l
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "config file path (default: ./config.yaml)")
	root.PersistentFlags().String("env-file", ".env", ".env file to load before reading config")
	root.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCalcCmd())
	root.AddCommand(newChainCmd())
	root.AddCommand(newHistoryCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Runs without config
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "options-yield %s\n", version)
			fmt.Fprintf(out, "  commit:  %s\n", commit)
			fmt.Fprintf(out, "  built:   %s\n", date)
		},
	}
}

// app holds the wired services for one command run
type app struct {
	calculator *services.CalculatorService
	storage    *database.LocalStorage
}

func (a *app) Close() {
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}
}

// newApp wires providers, storage and the calculator from the loaded config
func newApp(withStorage bool) (*app, error) {
	policy, err := services.ParseSidePolicy(cfg.Chain.SidePolicy)
	if err != nil {
		return nil, err
	}

	if !cfg.Alpaca.HasCredentials() {
		logger.Warn("Alpaca credentials not configured; live quotes and chains are unavailable")
	}
	credentials := services.AlpacaCredentials{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
	}

	stocks := services.NewAlpacaStockDataService(services.AlpacaStockConfig{
		Credentials: credentials,
		DataURL:     cfg.Alpaca.DataURL,
		Feed:        strings.ToLower(cfg.Alpaca.Feed),
	}, logger)

	options := services.NewAlpacaOptionsDataService(services.AlpacaOptionsConfig{
		Credentials:     credentials,
		TradingURL:      cfg.Alpaca.TradingURL,
		DataURL:         cfg.Alpaca.DataURL,
		PageLimit:       cfg.Alpaca.PageLimit,
		Timeout:         cfg.Alpaca.Timeout,
		EnrichSnapshots: cfg.Alpaca.EnrichSnapshots,
	}, logger)

	a := &app{}
	var store *database.LocalStorage
	if withStorage && cfg.Database.Enabled {
		store, err = database.NewLocalStorage(cfg.Database.Path, logger)
		if err != nil {
			return nil, err
		}
		a.storage = store
	}

	selector := services.NewChainSelector(services.SelectorConfig{
		SidePolicy:     policy,
		MaxExpirations: cfg.Chain.MaxExpirations,
		WindowBelow:    cfg.Chain.WindowBelow,
		WindowAbove:    cfg.Chain.WindowAbove,
	})

	if store != nil {
		a.calculator = services.NewCalculatorService(stocks, options, store, nil, selector, logger)
	} else {
		// A nil *LocalStorage must not reach the interface field
		a.calculator = services.NewCalculatorService(stocks, options, nil, nil, selector, logger)
	}
	return a, nil
}

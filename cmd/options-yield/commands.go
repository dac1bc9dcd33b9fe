package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"options-yield/controllers"
	"options-yield/interfaces"
	"options-yield/services"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.Server.Port = port
			}

			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			router := controllers.NewRouter(
				controllers.NewCalculatorController(a.calculator, logger),
				controllers.NewPositionController(a.calculator),
				logger,
			)

			httpSrv := &http.Server{
				Addr:         cfg.Server.Addr(),
				Handler:      router,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.WithField("addr", httpSrv.Addr).Info("Starting HTTP server")
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("HTTP server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	return cmd
}

func newCalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate the yield of a position from flags",
		Example: `  options-yield calc --type PUT --stock-price 100 --strike 95 --premium 2.5 --expiration 2025-03-21
  options-yield calc --type CALL --stock-price 100 --strike 105 --premium 3 --expiration 2025-03-21 --owns-shares --purchase-price 90`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := positionInputFromFlags(cmd)
			if err != nil {
				return err
			}

			save, _ := cmd.Flags().GetBool("save")
			a, err := newApp(save)
			if err != nil {
				return err
			}
			defer a.Close()

			record, err := a.calculator.Calculate(cmd.Context(), in)
			if err != nil {
				return err
			}

			services.RenderResult(cmd.OutOrStdout(), record.Input, record.Result)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("type", "PUT", "position side: PUT or CALL")
	flags.String("symbol", "", "underlying symbol")
	flags.Float64("stock-price", 0, "current stock price")
	flags.Float64("strike", 0, "strike price")
	flags.Float64("premium", 0, "premium per share")
	flags.String("expiration", "", "expiration date (YYYY-MM-DD)")
	flags.Int("contracts", 1, "number of contracts")
	flags.Bool("owns-shares", false, "CALL only: shares already owned")
	flags.Float64("purchase-price", 0, "CALL only: share purchase price (defaults to stock price)")
	flags.Bool("save", false, "record the calculation in the history database")
	_ = cmd.MarkFlagRequired("stock-price")
	_ = cmd.MarkFlagRequired("strike")
	_ = cmd.MarkFlagRequired("premium")
	_ = cmd.MarkFlagRequired("expiration")
	return cmd
}

// positionInputFromFlags builds the engine input from the calc flags
func positionInputFromFlags(cmd *cobra.Command) (interfaces.PositionInput, error) {
	flags := cmd.Flags()
	optionType, _ := flags.GetString("type")
	symbol, _ := flags.GetString("symbol")
	stockPrice, _ := flags.GetFloat64("stock-price")
	strike, _ := flags.GetFloat64("strike")
	premium, _ := flags.GetFloat64("premium")
	rawExpiration, _ := flags.GetString("expiration")
	contracts, _ := flags.GetInt("contracts")
	ownsShares, _ := flags.GetBool("owns-shares")
	purchasePrice, _ := flags.GetFloat64("purchase-price")

	expiration, err := civil.ParseDate(rawExpiration)
	if err != nil {
		return interfaces.PositionInput{}, fmt.Errorf("invalid --expiration %q: %w", rawExpiration, err)
	}
	if purchasePrice <= 0 {
		purchasePrice = stockPrice
	}

	return interfaces.PositionInput{
		OptionType:        interfaces.OptionType(strings.ToUpper(optionType)),
		StockPrice:        stockPrice,
		StrikePrice:       strike,
		PremiumPerShare:   premium,
		ExpirationDate:    expiration,
		NumberOfContracts: contracts,
		OwnsShares:        ownsShares,
		PurchasePrice:     purchasePrice,
		Symbol:            strings.ToUpper(symbol),
	}, nil
}

func newChainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain [symbol]",
		Short: "Fetch an option chain and print the strike ladder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			optionType, _ := flags.GetString("type")
			rawExpiration, _ := flags.GetString("expiration")

			var price *float64
			if flags.Changed("price") {
				p, _ := flags.GetFloat64("price")
				price = &p
			}

			var expiration *civil.Date
			if rawExpiration != "" {
				d, err := civil.ParseDate(rawExpiration)
				if err != nil {
					return fmt.Errorf("invalid --expiration %q: %w", rawExpiration, err)
				}
				expiration = &d
			}

			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			quote, err := a.calculator.GetQuote(ctx, args[0], price)
			if err != nil {
				return err
			}

			view, err := a.calculator.GetChainView(ctx, quote.Symbol, quote.Price, expiration, interfaces.OptionType(strings.ToUpper(optionType)))
			if err != nil {
				return err
			}

			services.RenderLadder(cmd.OutOrStdout(), view)
			if len(view.Selection.ExpirationDates) > 1 {
				dates := make([]string, 0, len(view.Selection.ExpirationDates))
				for _, d := range view.Selection.ExpirationDates {
					dates = append(dates, d.String())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Expirations: %s\n", strings.Join(dates, ", "))
			}
			return nil
		},
	}

	cmd.Flags().String("type", "PUT", "position side: PUT or CALL")
	cmd.Flags().Float64("price", 0, "stock price to center the ladder on (default: latest trade)")
	cmd.Flags().String("expiration", "", "expiration date (YYYY-MM-DD, default: nearest)")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded calculations",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, _ := cmd.Flags().GetString("symbol")
			limit, _ := cmd.Flags().GetInt("limit")
			pruneDays, _ := cmd.Flags().GetInt("prune-days")

			if !cfg.Database.Enabled {
				return errors.New("history database is disabled (database.enabled=false)")
			}

			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			if pruneDays > 0 {
				deleted, err := a.storage.CleanupOldData(time.Now().UTC().AddDate(0, 0, -pruneDays))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d calculations older than %d days\n", deleted, pruneDays)
			}

			records, err := a.calculator.History(symbol, limit)
			if err != nil {
				return err
			}
			services.RenderHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().String("symbol", "", "only show this symbol")
	cmd.Flags().Int("limit", 20, "maximum number of rows")
	cmd.Flags().Int("prune-days", 0, "delete calculations older than this many days first")
	return cmd
}

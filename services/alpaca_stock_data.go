package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/sirupsen/logrus"

	"options-yield/interfaces"
)

// LatestTradeClient is the slice of the Alpaca market data client the stock service needs
type LatestTradeClient interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// AlpacaStockConfig configures the stock quote provider
type AlpacaStockConfig struct {
	Credentials AlpacaCredentials
	DataURL     string
	Feed        string
}

// AlpacaStockDataService quotes stocks from the latest Alpaca trade
type AlpacaStockDataService struct {
	client      LatestTradeClient
	feed        marketdata.Feed
	credentials AlpacaCredentials
	logger      *logrus.Logger
}

// NewAlpacaStockDataService creates a stock quote provider backed by the Alpaca market data API
func NewAlpacaStockDataService(cfg AlpacaStockConfig, logger *logrus.Logger) *AlpacaStockDataService {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.Credentials.APIKey,
		APISecret: cfg.Credentials.APISecret,
		BaseURL:   strings.TrimRight(cfg.DataURL, "/"),
		Feed:      marketdata.Feed(cfg.Feed),
	})
	return NewAlpacaStockDataServiceWithClient(client, cfg, logger)
}

// NewAlpacaStockDataServiceWithClient creates a stock quote provider over an existing client
func NewAlpacaStockDataServiceWithClient(client LatestTradeClient, cfg AlpacaStockConfig, logger *logrus.Logger) *AlpacaStockDataService {
	if logger == nil {
		logger = newServiceLogger()
	}
	return &AlpacaStockDataService{
		client:      client,
		feed:        marketdata.Feed(cfg.Feed),
		credentials: cfg.Credentials,
		logger:      logger,
	}
}

// GetStockPrice returns the last trade price for a symbol
func (s *AlpacaStockDataService) GetStockPrice(ctx context.Context, symbol string) (*interfaces.StockQuote, error) {
	if !s.credentials.Valid() {
		return nil, ErrMissingCredentials
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trade, err := s.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{Feed: s.feed})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest trade for %s: %w", symbol, err)
	}
	if trade == nil || trade.Price <= 0 {
		return nil, fmt.Errorf("failed to get latest trade for %s: no trade price", symbol)
	}

	s.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"price":  trade.Price,
	}).Debug("Fetched stock price")

	return &interfaces.StockQuote{
		Symbol: symbol,
		Price:  trade.Price,
		Name:   symbol,
	}, nil
}

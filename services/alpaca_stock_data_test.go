package services

import (
	"context"
	"errors"
	"testing"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTradeClient struct {
	trade   *marketdata.Trade
	err     error
	symbols []string
	feeds   []marketdata.Feed
}

func (f *fakeTradeClient) GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	f.symbols = append(f.symbols, symbol)
	f.feeds = append(f.feeds, req.Feed)
	return f.trade, f.err
}

func TestGetStockPrice(t *testing.T) {
	client := &fakeTradeClient{trade: &marketdata.Trade{Price: 187.44}}
	svc := NewAlpacaStockDataServiceWithClient(client, AlpacaStockConfig{Credentials: testCredentials, Feed: "iex"}, quietLogger())

	quote, err := svc.GetStockPrice(context.Background(), " aapl ")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 187.44, quote.Price)
	assert.Equal(t, []string{"AAPL"}, client.symbols)
	assert.Equal(t, []marketdata.Feed{"iex"}, client.feeds)
}

func TestGetStockPriceErrors(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		client := &fakeTradeClient{trade: &marketdata.Trade{Price: 1}}
		svc := NewAlpacaStockDataServiceWithClient(client, AlpacaStockConfig{}, quietLogger())

		_, err := svc.GetStockPrice(context.Background(), "AAPL")
		assert.ErrorIs(t, err, ErrMissingCredentials)
		assert.Empty(t, client.symbols)
	})

	t.Run("empty symbol", func(t *testing.T) {
		svc := NewAlpacaStockDataServiceWithClient(&fakeTradeClient{}, AlpacaStockConfig{Credentials: testCredentials}, quietLogger())
		_, err := svc.GetStockPrice(context.Background(), "  ")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("provider failure", func(t *testing.T) {
		client := &fakeTradeClient{err: errors.New("rate limited")}
		svc := NewAlpacaStockDataServiceWithClient(client, AlpacaStockConfig{Credentials: testCredentials}, quietLogger())

		_, err := svc.GetStockPrice(context.Background(), "MSFT")
		assert.ErrorContains(t, err, "rate limited")
	})

	t.Run("no trade", func(t *testing.T) {
		svc := NewAlpacaStockDataServiceWithClient(&fakeTradeClient{}, AlpacaStockConfig{Credentials: testCredentials}, quietLogger())
		_, err := svc.GetStockPrice(context.Background(), "MSFT")
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		client := &fakeTradeClient{trade: &marketdata.Trade{Price: 1}}
		svc := NewAlpacaStockDataServiceWithClient(client, AlpacaStockConfig{Credentials: testCredentials}, quietLogger())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.GetStockPrice(ctx, "MSFT")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

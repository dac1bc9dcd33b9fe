package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"options-yield/interfaces"
)

const (
	DefaultTradingURL = "https://paper-api.alpaca.markets"
	DefaultDataURL    = "https://data.alpaca.markets"

	defaultPageLimit     = 100
	maxContractPages     = 50
	snapshotSymbolsBatch = 100
)

// ErrMissingCredentials is returned when no API key pair was configured
var ErrMissingCredentials = errors.New("alpaca API credentials not configured")

// AlpacaCredentials is the key pair sent with every request
type AlpacaCredentials struct {
	APIKey    string
	APISecret string
}

// Valid reports whether both halves of the key pair are set
func (c AlpacaCredentials) Valid() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// AlpacaOptionsConfig configures the options REST client
type AlpacaOptionsConfig struct {
	Credentials     AlpacaCredentials
	TradingURL      string
	DataURL         string
	PageLimit       int
	Timeout         time.Duration
	EnrichSnapshots bool
}

// OptionSnapshotClient is the slice of the Alpaca market data client snapshot enrichment needs
type OptionSnapshotClient interface {
	GetOptionSnapshots(symbols []string, req marketdata.GetOptionSnapshotRequest) (map[string]marketdata.OptionSnapshot, error)
}

// AlpacaOptionsDataService fetches option contracts and snapshots from Alpaca
type AlpacaOptionsDataService struct {
	credentials     AlpacaCredentials
	tradingURL      string
	pageLimit       int
	enrichSnapshots bool
	snapshots       OptionSnapshotClient
	logger          *logrus.Logger
	client          *http.Client
}

// NewAlpacaOptionsDataService creates a new Alpaca options data service.
// Snapshots go through the market data client at cfg.DataURL.
func NewAlpacaOptionsDataService(cfg AlpacaOptionsConfig, logger *logrus.Logger) *AlpacaOptionsDataService {
	cfg = withOptionsDefaults(cfg)
	// No default feed: the stock feed names are not valid for options
	snapshots := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:     cfg.Credentials.APIKey,
		APISecret:  cfg.Credentials.APISecret,
		BaseURL:    strings.TrimRight(cfg.DataURL, "/"),
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})
	return NewAlpacaOptionsDataServiceWithClient(snapshots, cfg, logger)
}

// NewAlpacaOptionsDataServiceWithClient creates an options data service over an
// existing snapshot client
func NewAlpacaOptionsDataServiceWithClient(snapshots OptionSnapshotClient, cfg AlpacaOptionsConfig, logger *logrus.Logger) *AlpacaOptionsDataService {
	if logger == nil {
		logger = newServiceLogger()
	}
	cfg = withOptionsDefaults(cfg)

	return &AlpacaOptionsDataService{
		credentials:     cfg.Credentials,
		tradingURL:      strings.TrimRight(cfg.TradingURL, "/"),
		pageLimit:       cfg.PageLimit,
		enrichSnapshots: cfg.EnrichSnapshots,
		snapshots:       snapshots,
		logger:          logger,
		client:          &http.Client{Timeout: cfg.Timeout},
	}
}

func withOptionsDefaults(cfg AlpacaOptionsConfig) AlpacaOptionsConfig {
	if cfg.TradingURL == "" {
		cfg.TradingURL = DefaultTradingURL
	}
	if cfg.DataURL == "" {
		cfg.DataURL = DefaultDataURL
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaultPageLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg
}

// AlpacaOptionContractsResponse represents the contracts listing response
type AlpacaOptionContractsResponse struct {
	OptionContracts []AlpacaOptionContract `json:"option_contracts"`
	NextPageToken   *string                `json:"next_page_token"`
}

// AlpacaOptionContract represents contract metadata as listed by Alpaca.
// Numeric fields arrive as strings or numbers.
type AlpacaOptionContract struct {
	Symbol           string           `json:"symbol"`
	UnderlyingSymbol string           `json:"underlying_symbol"`
	ExpirationDate   civil.Date       `json:"expiration_date"`
	StrikePrice      decimal.Decimal  `json:"strike_price"`
	Type             string           `json:"type"` // "call" or "put"
	Style            string           `json:"style"`
	OpenInterest     *decimal.Decimal `json:"open_interest"`
	ClosePrice       *decimal.Decimal `json:"close_price"`
	Premium          *decimal.Decimal `json:"premium"`
	UnderlyingPrice  *decimal.Decimal `json:"underlying_price"`
	Delta            *float64         `json:"delta"`
	Gamma            *float64         `json:"gamma"`
	Theta            *float64         `json:"theta"`
	Vega             *float64         `json:"vega"`
}

// GetOptionContracts lists every contract matching the query, following pagination
func (s *AlpacaOptionsDataService) GetOptionContracts(ctx context.Context, query interfaces.ChainQuery) ([]*interfaces.OptionContract, error) {
	if !s.credentials.Valid() {
		return nil, ErrMissingCredentials
	}
	if query.Underlying == "" {
		return nil, fmt.Errorf("underlying symbol required")
	}

	params := url.Values{}
	params.Set("underlying_symbols", strings.ToUpper(query.Underlying))
	if query.ExpirationDate != nil {
		params.Set("expiration_date", query.ExpirationDate.String())
	}
	if query.Type != "" {
		params.Set("type", string(query.Type))
	}
	limit := s.pageLimit
	if query.Limit > 0 {
		limit = query.Limit
	}
	params.Set("limit", strconv.Itoa(limit))

	s.logger.WithFields(logrus.Fields{
		"underlying": query.Underlying,
		"expiration": params.Get("expiration_date"),
		"type":       query.Type,
	}).Debug("Fetching option contracts")

	contracts := make([]*interfaces.OptionContract, 0)
	for page := 1; ; page++ {
		var resp AlpacaOptionContractsResponse
		if err := s.getJSON(ctx, s.tradingURL+"/v2/options/contracts", params, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch option contracts: %w", err)
		}

		for i := range resp.OptionContracts {
			contracts = append(contracts, convertAlpacaContract(&resp.OptionContracts[i]))
		}

		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		if page >= maxContractPages {
			s.logger.WithFields(logrus.Fields{
				"underlying": query.Underlying,
				"pages":      page,
				"contracts":  len(contracts),
			}).Warn("Option contracts page limit reached; chain is truncated")
			break
		}
		params.Set("page_token", *resp.NextPageToken)
	}

	if s.enrichSnapshots && len(contracts) > 0 {
		if err := s.EnrichWithSnapshots(ctx, contracts); err != nil {
			s.logger.WithError(err).Warn("Failed to enrich contracts with snapshots")
		}
	}

	s.logger.WithField("count", len(contracts)).Debug("Fetched option contracts")
	return contracts, nil
}

// EnrichWithSnapshots fills Greeks, implied volatility and, where the listing
// carried no price, a mid-quote premium from the latest snapshots
func (s *AlpacaOptionsDataService) EnrichWithSnapshots(ctx context.Context, contracts []*interfaces.OptionContract) error {
	if !s.credentials.Valid() {
		return ErrMissingCredentials
	}
	if s.snapshots == nil {
		return errors.New("no option snapshot client configured")
	}

	bySymbol := make(map[string]*interfaces.OptionContract, len(contracts))
	symbols := make([]string, 0, len(contracts))
	for _, c := range contracts {
		if c.Symbol == "" {
			continue
		}
		bySymbol[c.Symbol] = c
		symbols = append(symbols, c.Symbol)
	}

	for start := 0; start < len(symbols); start += snapshotSymbolsBatch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + snapshotSymbolsBatch
		if end > len(symbols) {
			end = len(symbols)
		}

		snapshots, err := s.snapshots.GetOptionSnapshots(symbols[start:end], marketdata.GetOptionSnapshotRequest{})
		if err != nil {
			return fmt.Errorf("failed to fetch snapshots: %w", err)
		}

		for symbol, snapshot := range snapshots {
			if c, ok := bySymbol[symbol]; ok {
				applySnapshot(c, snapshot)
			}
		}
	}

	return nil
}

func (s *AlpacaOptionsDataService) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	req.Header.Set("APCA-API-KEY-ID", s.credentials.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", s.credentials.APISecret)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func convertAlpacaContract(ac *AlpacaOptionContract) *interfaces.OptionContract {
	strike, _ := ac.StrikePrice.Float64()

	contract := &interfaces.OptionContract{
		Symbol:           ac.Symbol,
		UnderlyingSymbol: ac.UnderlyingSymbol,
		Type:             interfaces.ContractType(strings.ToLower(ac.Type)),
		StrikePrice:      strike,
		ExpirationDate:   ac.ExpirationDate,
		Premium:          decimalOrZero(ac.Premium),
		UnderlyingPrice:  decimalOrZero(ac.UnderlyingPrice),
		Delta:            ac.Delta,
		Gamma:            ac.Gamma,
		Theta:            ac.Theta,
		Vega:             ac.Vega,
	}

	// Listings carry the last close rather than a premium
	if ac.Premium == nil && ac.ClosePrice != nil {
		contract.Premium = decimalOrZero(ac.ClosePrice)
	}

	if ac.OpenInterest != nil {
		oi := ac.OpenInterest.IntPart()
		contract.OpenInterest = &oi
	}

	return contract
}

func applySnapshot(c *interfaces.OptionContract, snapshot marketdata.OptionSnapshot) {
	if snapshot.Greeks != nil {
		g := *snapshot.Greeks
		c.Delta, c.Gamma, c.Theta, c.Vega = &g.Delta, &g.Gamma, &g.Theta, &g.Vega
	}
	if snapshot.ImpliedVolatility > 0 {
		iv := snapshot.ImpliedVolatility
		c.ImpliedVolatility = &iv
	}
	if c.Premium > 0 {
		return
	}

	if q := snapshot.LatestQuote; q != nil && q.BidPrice > 0 && q.AskPrice > 0 {
		c.Premium = (q.BidPrice + q.AskPrice) / 2
	} else if t := snapshot.LatestTrade; t != nil && t.Price > 0 {
		c.Premium = t.Price
	}
}

func decimalOrZero(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	f, _ := d.Float64()
	if f < 0 {
		return 0
	}
	return f
}

package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"options-yield/interfaces"
)

// CalculatorService ties the providers, the metrics engine, the chain
// selector and the calculation history together
type CalculatorService struct {
	stocks   interfaces.StockPriceService
	options  interfaces.OptionDataService
	store    interfaces.CalculationStore
	engine   *MetricsEngine
	selector *ChainSelector
	book     *PositionBook
	logger   *logrus.Logger
}

// NewCalculatorService creates a calculator service. store may be nil, in
// which case calculations are not persisted.
func NewCalculatorService(
	stocks interfaces.StockPriceService,
	options interfaces.OptionDataService,
	store interfaces.CalculationStore,
	engine *MetricsEngine,
	selector *ChainSelector,
	logger *logrus.Logger,
) *CalculatorService {
	if engine == nil {
		engine = NewMetricsEngine(nil)
	}
	if selector == nil {
		selector = NewChainSelector(DefaultSelectorConfig())
	}
	if logger == nil {
		logger = newServiceLogger()
	}

	return &CalculatorService{
		stocks:   stocks,
		options:  options,
		store:    store,
		engine:   engine,
		selector: selector,
		book:     NewPositionBook(),
		logger:   logger,
	}
}

// Engine returns the metrics engine in use
func (s *CalculatorService) Engine() *MetricsEngine {
	return s.engine
}

// GetQuote returns the price for a symbol. A positive price short-circuits
// the provider.
func (s *CalculatorService) GetQuote(ctx context.Context, symbol string, price *float64) (*interfaces.StockQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}

	if price != nil {
		if !isFinite(*price) || *price <= 0 {
			return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
		}
		return &interfaces.StockQuote{Symbol: symbol, Price: *price, Name: symbol}, nil
	}

	if s.stocks == nil {
		return nil, fmt.Errorf("failed to get quote for %s: no stock price provider", symbol)
	}
	return s.stocks.GetStockPrice(ctx, symbol)
}

// GetSelection fetches the chain for a symbol and narrows it around stockPrice.
// When expirationDate is set only that expiration is fetched.
func (s *CalculatorService) GetSelection(ctx context.Context, symbol string, stockPrice float64, expirationDate *civil.Date, side interfaces.OptionType) (*interfaces.ChainSelection, error) {
	contracts, err := s.fetchContracts(ctx, symbol, stockPrice, expirationDate, side)
	if err != nil {
		return nil, err
	}
	selection, err := s.selector.BuildSelection(contracts, stockPrice, expirationDate, side)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.ToUpper(symbol), err)
	}
	return selection, nil
}

// ChainView is a selection plus the ladder for one of its expirations
type ChainView struct {
	Symbol     string                         `json:"symbol"`
	StockPrice float64                        `json:"stock_price"`
	Side       interfaces.OptionType          `json:"side"`
	Expiration civil.Date                     `json:"expiration"`
	Selection  *interfaces.ChainSelection     `json:"selection"`
	Ladder     []interfaces.StrikeLadderEntry `json:"ladder"`
}

// GetChainView builds the strike ladder for an expiration, defaulting to the
// nearest one when expirationDate is nil
func (s *CalculatorService) GetChainView(ctx context.Context, symbol string, stockPrice float64, expirationDate *civil.Date, side interfaces.OptionType) (*ChainView, error) {
	contracts, err := s.fetchContracts(ctx, symbol, stockPrice, expirationDate, side)
	if err != nil {
		return nil, err
	}

	exp := expirationDate
	if exp == nil {
		dates := s.selector.SelectExpirationDates(contracts, side)
		if len(dates) == 0 {
			return nil, fmt.Errorf("%s: %w", strings.ToUpper(symbol), ErrEmptyChain)
		}
		exp = &dates[0]
	}

	selection, err := s.selector.BuildSelection(contracts, stockPrice, exp, side)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", strings.ToUpper(symbol), err)
	}

	return &ChainView{
		Symbol:     strings.ToUpper(symbol),
		StockPrice: stockPrice,
		Side:       side,
		Expiration: *exp,
		Selection:  selection,
		Ladder:     s.selector.Ladder(selection, *exp, stockPrice, side),
	}, nil
}

func (s *CalculatorService) fetchContracts(ctx context.Context, symbol string, stockPrice float64, expirationDate *civil.Date, side interfaces.OptionType) ([]*interfaces.OptionContract, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: option type must be PUT or CALL, got %q", ErrInvalidInput, side)
	}
	if s.options == nil {
		return nil, fmt.Errorf("failed to fetch chain for %s: no option chain provider", symbol)
	}

	query := interfaces.ChainQuery{
		Underlying:     symbol,
		ExpirationDate: expirationDate,
	}
	switch s.selector.Config().SidePolicy {
	case SidePolicyCalls:
		query.Type = interfaces.ContractTypeCall
	case SidePolicyPosition:
		query.Type = side.ContractType()
	}

	contracts, err := s.options.GetOptionContracts(ctx, query)
	if err != nil {
		return nil, err
	}

	for _, c := range contracts {
		if c != nil && c.UnderlyingPrice == 0 {
			c.UnderlyingPrice = stockPrice
		}
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":    symbol,
		"side":      side,
		"contracts": len(contracts),
	}).Debug("Chain fetched")
	return contracts, nil
}

// Calculate validates and computes a position, then records it in the history.
// A storage failure is logged and does not fail the calculation.
func (s *CalculatorService) Calculate(ctx context.Context, in interfaces.PositionInput) (*interfaces.CalculationRecord, error) {
	if err := ValidatePositionInput(in); err != nil {
		return nil, err
	}
	in.Symbol = strings.ToUpper(in.Symbol)

	record := &interfaces.CalculationRecord{
		ID:           uuid.NewString(),
		Input:        in,
		Result:       s.engine.CalculateOptionMetrics(in),
		CalculatedAt: time.Now().UTC(),
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":            in.Symbol,
		"type":              in.OptionType,
		"strike":            in.StrikePrice,
		"return_on_capital": record.Result.ReturnOnCapital,
		"annualized":        record.Result.AnnualizedReturn,
	}).Info("Calculated position")

	if s.store != nil {
		if err := s.store.SaveCalculation(record); err != nil {
			s.logger.WithError(err).Warn("Failed to save calculation to database")
		}
	}

	return record, nil
}

// History lists stored calculations, newest first
func (s *CalculatorService) History(symbol string, limit int) ([]*interfaces.CalculationRecord, error) {
	if s.store == nil {
		return []*interfaces.CalculationRecord{}, nil
	}
	return s.store.ListCalculations(symbol, limit)
}

// SessionView is both calculator forms and the active type
type SessionView struct {
	Active interfaces.OptionType                      `json:"active"`
	States map[interfaces.OptionType]*CalculatorState `json:"states"`
}

// Session returns the current calculator forms
func (s *CalculatorService) Session() SessionView {
	return SessionView{
		Active: s.book.Active(),
		States: s.book.Snapshot(),
	}
}

// SetActive switches the option type shown
func (s *CalculatorService) SetActive(optionType interfaces.OptionType) error {
	return s.book.SetActive(optionType)
}

// LoadStock quotes a symbol into a form, loads its chain and pre-selects the
// nearest expiration. Strike and premium are cleared, and so is the purchase
// price when the symbol changes. When the chain is empty
// the quote is kept, the selection is cleared and ErrEmptyChain is returned.
func (s *CalculatorService) LoadStock(ctx context.Context, optionType interfaces.OptionType, symbol string, price *float64) (*CalculatorState, error) {
	if !optionType.Valid() {
		return nil, fmt.Errorf("%w: option type must be PUT or CALL, got %q", ErrInvalidInput, optionType)
	}

	quote, err := s.GetQuote(ctx, symbol, price)
	if err != nil {
		return nil, err
	}

	var (
		selection *interfaces.ChainSelection
		selected  *civil.Date
	)
	contracts, err := s.fetchContracts(ctx, quote.Symbol, quote.Price, nil, optionType)
	if err == nil {
		if dates := s.selector.SelectExpirationDates(contracts, optionType); len(dates) > 0 {
			first := dates[0]
			selected = &first
			selection, err = s.selector.BuildSelection(contracts, quote.Price, selected, optionType)
		} else {
			err = ErrEmptyChain
		}
	}

	state, updateErr := s.book.Update(optionType, func(st *CalculatorState) {
		// A purchase price belongs to the shares of one symbol
		if st.Stock != nil && st.Stock.Symbol != quote.Symbol {
			st.PurchasePrice = 0
		}
		st.Stock = quote
		st.Selection = selection
		st.SelectedExpiration = selected
		st.SelectedStrike = nil
		st.Premium = 0
	})
	if updateErr != nil {
		return nil, updateErr
	}

	if err != nil {
		if errors.Is(err, ErrEmptyChain) {
			s.logger.WithField("symbol", quote.Symbol).Info("No option contracts for symbol")
			return state, fmt.Errorf("%s: %w", quote.Symbol, err)
		}
		return state, err
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":     quote.Symbol,
		"type":       optionType,
		"price":      quote.Price,
		"expiration": selected.String(),
	}).Info("Stock loaded into calculator")
	return state, nil
}

// SelectExpiration re-fetches the chain for one expiration. Strike and premium
// are cleared. An empty chain clears the selection and returns ErrEmptyChain.
func (s *CalculatorService) SelectExpiration(ctx context.Context, optionType interfaces.OptionType, expirationDate civil.Date) (*CalculatorState, error) {
	current, err := s.book.State(optionType)
	if err != nil {
		return nil, err
	}
	if current.Stock == nil {
		return nil, fmt.Errorf("%w: load a stock before choosing an expiration", ErrInvalidInput)
	}
	if !expirationDate.IsValid() {
		return nil, fmt.Errorf("%w: invalid expiration date", ErrInvalidInput)
	}

	selection, fetchErr := s.GetSelection(ctx, current.Stock.Symbol, current.Stock.Price, &expirationDate, optionType)
	if fetchErr != nil && !errors.Is(fetchErr, ErrEmptyChain) {
		return nil, fetchErr
	}

	state, err := s.book.Update(optionType, func(st *CalculatorState) {
		exp := expirationDate
		st.SelectedExpiration = &exp
		st.Selection = selection
		st.SelectedStrike = nil
		st.Premium = 0
	})
	if err != nil {
		return nil, err
	}
	return state, fetchErr
}

// SessionUpdate carries the form fields a user may edit. Nil fields are left alone.
type SessionUpdate struct {
	Strike            *float64 `json:"strike,omitempty"`
	Premium           *float64 `json:"premium,omitempty"`
	NumberOfContracts *int     `json:"number_of_contracts,omitempty"`
	OwnsShares        *bool    `json:"owns_shares,omitempty"`
	PurchasePrice     *float64 `json:"purchase_price,omitempty"`
}

func (u SessionUpdate) validate() error {
	for name, v := range map[string]*float64{"strike": u.Strike, "premium": u.Premium, "purchase price": u.PurchasePrice} {
		if v != nil && (!isFinite(*v) || *v < 0) {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidInput, name)
		}
	}
	if u.NumberOfContracts != nil && *u.NumberOfContracts <= 0 {
		return fmt.Errorf("%w: number of contracts must be positive", ErrInvalidInput)
	}
	return nil
}

// UpdateSession applies edits to a form. Picking a strike without a premium
// takes the premium of the matching contract in the selection.
func (s *CalculatorService) UpdateSession(optionType interfaces.OptionType, update SessionUpdate) (*CalculatorState, error) {
	if err := update.validate(); err != nil {
		return nil, err
	}

	return s.book.Update(optionType, func(st *CalculatorState) {
		if update.Strike != nil {
			strike := *update.Strike
			st.SelectedStrike = &strike
			if update.Premium == nil {
				st.Premium = premiumAtStrike(st, strike)
			}
		}
		if update.Premium != nil {
			st.Premium = *update.Premium
		}
		if update.NumberOfContracts != nil {
			st.NumberOfContracts = *update.NumberOfContracts
		}
		if update.OwnsShares != nil {
			st.OwnsShares = *update.OwnsShares
		}
		if update.PurchasePrice != nil {
			st.PurchasePrice = *update.PurchasePrice
		}
	})
}

func premiumAtStrike(st *CalculatorState, strike float64) float64 {
	if st.Selection == nil || st.SelectedExpiration == nil {
		return 0
	}
	for _, c := range st.Selection.Options[*st.SelectedExpiration] {
		if math.Abs(c.StrikePrice-strike) < 1e-9 {
			return c.Premium
		}
	}
	return 0
}

// SessionResult computes the metrics for a form. It returns false while the
// form is incomplete.
func (s *CalculatorService) SessionResult(optionType interfaces.OptionType) (*interfaces.CalculationResult, bool, error) {
	state, err := s.book.State(optionType)
	if err != nil {
		return nil, false, err
	}

	in, ok := ToPositionInput(state, optionType)
	if !ok {
		return nil, false, nil
	}
	if err := ValidatePositionInput(in); err != nil {
		return nil, false, err
	}

	result := s.engine.CalculateOptionMetrics(in)
	return &result, true, nil
}

// ResetSession clears a form
func (s *CalculatorService) ResetSession(optionType interfaces.OptionType) error {
	if err := s.book.Reset(optionType); err != nil {
		return err
	}
	s.logger.WithField("type", optionType).Info("Calculator reset")
	return nil
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-yield/interfaces"
)

type fakeStockService struct {
	price  float64
	prices map[string]float64
	err    error
	calls  int
}

func (f *fakeStockService) GetStockPrice(ctx context.Context, symbol string) (*interfaces.StockQuote, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	price := f.price
	if p, ok := f.prices[symbol]; ok {
		price = p
	}
	return &interfaces.StockQuote{Symbol: symbol, Price: price, Name: symbol}, nil
}

type fakeOptionService struct {
	contracts []*interfaces.OptionContract
	err       error
	queries   []interfaces.ChainQuery
}

func (f *fakeOptionService) GetOptionContracts(ctx context.Context, query interfaces.ChainQuery) ([]*interfaces.OptionContract, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}

	var out []*interfaces.OptionContract
	for _, c := range f.contracts {
		if query.ExpirationDate != nil && c.ExpirationDate != *query.ExpirationDate {
			continue
		}
		if query.Type != "" && c.Type != query.Type {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

type memoryStore struct {
	mu      sync.Mutex
	records []*interfaces.CalculationRecord
	err     error
}

func (m *memoryStore) SaveCalculation(record *interfaces.CalculationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memoryStore) ListCalculations(symbol string, limit int) ([]*interfaces.CalculationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*interfaces.CalculationRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if symbol == "" || m.records[i].Input.Symbol == symbol {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

func sampleChain() []*interfaces.OptionContract {
	contracts := append(ladderChain("2023-01-20", 80, 120, 5), ladderChain("2023-02-17", 70, 130, 5)...)
	for _, strike := range []float64{90, 95, 100} {
		contracts = append(contracts, contract(interfaces.ContractTypePut, "2023-01-13", strike, 2))
	}
	return contracts
}

func newTestCalculator(stocks *fakeStockService, options *fakeOptionService, store interfaces.CalculationStore) *CalculatorService {
	return NewCalculatorService(stocks, options, store, NewMetricsEngine(fixedClock(newYear)), nil, quietLogger())
}

func TestGetQuote(t *testing.T) {
	stocks := &fakeStockService{price: 101.5}
	svc := newTestCalculator(stocks, &fakeOptionService{}, nil)

	quote, err := svc.GetQuote(context.Background(), "aapl", nil)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 101.5, quote.Price)
	assert.Equal(t, 1, stocks.calls)

	price := 99.0
	quote, err = svc.GetQuote(context.Background(), "msft", &price)
	require.NoError(t, err)
	assert.Equal(t, "MSFT", quote.Symbol)
	assert.Equal(t, 99.0, quote.Price)
	assert.Equal(t, 1, stocks.calls, "a provided price skips the provider")

	bad := -1.0
	_, err = svc.GetQuote(context.Background(), "msft", &bad)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.GetQuote(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetSelectionQueriesCalls(t *testing.T) {
	options := &fakeOptionService{contracts: sampleChain()}
	svc := newTestCalculator(&fakeStockService{}, options, nil)

	selection, err := svc.GetSelection(context.Background(), "aapl", 100, nil, interfaces.OptionTypePut)
	require.NoError(t, err)

	require.Len(t, options.queries, 1)
	assert.Equal(t, "AAPL", options.queries[0].Underlying)
	assert.Equal(t, interfaces.ContractTypeCall, options.queries[0].Type)
	assert.Equal(t, []civil.Date{date("2023-01-20"), date("2023-02-17")}, selection.ExpirationDates)

	for _, contracts := range selection.Options {
		for _, c := range contracts {
			assert.Equal(t, 100.0, c.UnderlyingPrice, "underlying price filled from the quote")
		}
	}
}

func TestGetSelectionPositionPolicy(t *testing.T) {
	options := &fakeOptionService{contracts: sampleChain()}
	selector := NewChainSelector(SelectorConfig{SidePolicy: SidePolicyPosition})
	svc := NewCalculatorService(&fakeStockService{}, options, nil, NewMetricsEngine(fixedClock(newYear)), selector, quietLogger())

	selection, err := svc.GetSelection(context.Background(), "AAPL", 100, nil, interfaces.OptionTypePut)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ContractTypePut, options.queries[0].Type)
	assert.Equal(t, []civil.Date{date("2023-01-13")}, selection.ExpirationDates)
}

func TestGetSelectionErrors(t *testing.T) {
	svc := newTestCalculator(&fakeStockService{}, &fakeOptionService{}, nil)
	_, err := svc.GetSelection(context.Background(), "AAPL", 100, nil, interfaces.OptionTypePut)
	assert.ErrorIs(t, err, ErrEmptyChain)

	providerErr := errors.New("upstream down")
	svc = newTestCalculator(&fakeStockService{}, &fakeOptionService{err: providerErr}, nil)
	_, err = svc.GetSelection(context.Background(), "AAPL", 100, nil, interfaces.OptionTypePut)
	assert.ErrorIs(t, err, providerErr)

	_, err = svc.GetSelection(context.Background(), "AAPL", 100, nil, "SPREAD")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetChainViewDefaultsToNearestExpiration(t *testing.T) {
	svc := newTestCalculator(&fakeStockService{}, &fakeOptionService{contracts: sampleChain()}, nil)

	view, err := svc.GetChainView(context.Background(), "AAPL", 101, nil, interfaces.OptionTypeCall)
	require.NoError(t, err)

	assert.Equal(t, date("2023-01-20"), view.Expiration)
	require.Len(t, view.Ladder, 9)
	assert.Equal(t, 80.0, view.Ladder[0].Strike)
	assert.Equal(t, interfaces.MoneynessITM, view.Ladder[0].Moneyness)
	assert.Equal(t, 100.0, *view.Selection.ClosestStrike)
}

func TestCalculatePersists(t *testing.T) {
	store := &memoryStore{}
	svc := newTestCalculator(&fakeStockService{}, &fakeOptionService{}, store)

	in := validPut()
	in.Symbol = "aapl"
	record, err := svc.Calculate(context.Background(), in)
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "AAPL", record.Input.Symbol)
	assert.Equal(t, 250.0, record.Result.Premium)
	assert.Equal(t, 31, record.Result.DaysToExpiration)

	history, err := svc.History("AAPL", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, record.ID, history[0].ID)
}

func TestCalculateSurvivesStorageFailure(t *testing.T) {
	svc := newTestCalculator(&fakeStockService{}, &fakeOptionService{}, &memoryStore{err: errors.New("disk full")})

	record, err := svc.Calculate(context.Background(), validPut())
	require.NoError(t, err)
	assert.Equal(t, 9500.0, record.Result.CapitalRequired)
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	store := &memoryStore{}
	svc := newTestCalculator(&fakeStockService{}, &fakeOptionService{}, store)

	in := validPut()
	in.StrikePrice = 0
	_, err := svc.Calculate(context.Background(), in)
	assert.ErrorIs(t, err, ErrDegenerateCapital)
	assert.Empty(t, store.records)
}

func TestHistoryWithoutStore(t *testing.T) {
	svc := newTestCalculator(&fakeStockService{}, &fakeOptionService{}, nil)
	history, err := svc.History("", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSessionFlow(t *testing.T) {
	options := &fakeOptionService{contracts: sampleChain()}
	svc := newTestCalculator(&fakeStockService{price: 100}, options, nil)
	ctx := context.Background()

	state, err := svc.LoadStock(ctx, interfaces.OptionTypeCall, "aapl", nil)
	require.NoError(t, err)
	require.NotNil(t, state.Stock)
	assert.Equal(t, "AAPL", state.Stock.Symbol)
	require.NotNil(t, state.SelectedExpiration)
	assert.Equal(t, date("2023-01-20"), *state.SelectedExpiration)
	assert.Nil(t, state.SelectedStrike)
	assert.Equal(t, 0.0, state.PurchasePrice, "purchase price falls back to the quote at calculation time")

	_, complete, err := svc.SessionResult(interfaces.OptionTypeCall)
	require.NoError(t, err)
	assert.False(t, complete)

	strike := 105.0
	state, err = svc.UpdateSession(interfaces.OptionTypeCall, SessionUpdate{Strike: &strike})
	require.NoError(t, err)
	assert.Equal(t, 1.05, state.Premium, "premium taken from the chosen contract")

	result, complete, err := svc.SessionResult(interfaces.OptionTypeCall)
	require.NoError(t, err)
	require.True(t, complete)
	assert.Equal(t, 105.0, result.Premium)
	assert.Equal(t, 10000.0, result.CapitalRequired)
	assert.Equal(t, 19, result.DaysToExpiration)

	// The PUT form is untouched
	put, _, err := svc.SessionResult(interfaces.OptionTypePut)
	require.NoError(t, err)
	assert.Nil(t, put)

	state, err = svc.SelectExpiration(ctx, interfaces.OptionTypeCall, date("2023-02-17"))
	require.NoError(t, err)
	assert.Equal(t, date("2023-02-17"), *state.SelectedExpiration)
	assert.Nil(t, state.SelectedStrike)
	assert.Equal(t, 0.0, state.Premium)
	require.NotNil(t, state.Selection)
	assert.Len(t, state.Selection.Options[date("2023-02-17")], 13)

	require.NoError(t, svc.SetActive(interfaces.OptionTypeCall))
	assert.Equal(t, interfaces.OptionTypeCall, svc.Session().Active)

	require.NoError(t, svc.ResetSession(interfaces.OptionTypeCall))
	state = svc.Session().States[interfaces.OptionTypeCall]
	assert.Nil(t, state.Stock)
	assert.Equal(t, 1, state.NumberOfContracts)
}

func TestLoadStockSwitchingSymbolsUsesNewPrice(t *testing.T) {
	stocks := &fakeStockService{prices: map[string]float64{"AAA": 100, "BBB": 20}}
	svc := newTestCalculator(stocks, &fakeOptionService{contracts: sampleChain()}, nil)
	ctx := context.Background()

	strike, premium, owns := 100.0, 1.0, true
	pick := SessionUpdate{Strike: &strike, Premium: &premium}

	t.Run("defaulted purchase price", func(t *testing.T) {
		require.NoError(t, svc.ResetSession(interfaces.OptionTypeCall))

		_, err := svc.LoadStock(ctx, interfaces.OptionTypeCall, "AAA", nil)
		require.NoError(t, err)
		_, err = svc.UpdateSession(interfaces.OptionTypeCall, SessionUpdate{OwnsShares: &owns})
		require.NoError(t, err)

		_, err = svc.LoadStock(ctx, interfaces.OptionTypeCall, "BBB", nil)
		require.NoError(t, err)
		_, err = svc.UpdateSession(interfaces.OptionTypeCall, pick)
		require.NoError(t, err)

		result, complete, err := svc.SessionResult(interfaces.OptionTypeCall)
		require.NoError(t, err)
		require.True(t, complete)
		assert.Equal(t, 2000.0, result.CapitalRequired)
	})

	t.Run("entered purchase price", func(t *testing.T) {
		require.NoError(t, svc.ResetSession(interfaces.OptionTypeCall))

		purchase := 90.0
		_, err := svc.LoadStock(ctx, interfaces.OptionTypeCall, "AAA", nil)
		require.NoError(t, err)
		_, err = svc.UpdateSession(interfaces.OptionTypeCall, SessionUpdate{OwnsShares: &owns, PurchasePrice: &purchase})
		require.NoError(t, err)

		// Reloading the same symbol keeps it
		state, err := svc.LoadStock(ctx, interfaces.OptionTypeCall, "aaa", nil)
		require.NoError(t, err)
		assert.Equal(t, 90.0, state.PurchasePrice)

		state, err = svc.LoadStock(ctx, interfaces.OptionTypeCall, "BBB", nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0, state.PurchasePrice)
		assert.True(t, state.OwnsShares)

		_, err = svc.UpdateSession(interfaces.OptionTypeCall, pick)
		require.NoError(t, err)
		result, _, err := svc.SessionResult(interfaces.OptionTypeCall)
		require.NoError(t, err)
		assert.Equal(t, 2000.0, result.CapitalRequired)
	})
}

func TestSelectExpirationWithEmptyChain(t *testing.T) {
	svc := newTestCalculator(&fakeStockService{price: 100}, &fakeOptionService{contracts: sampleChain()}, nil)
	ctx := context.Background()

	_, err := svc.LoadStock(ctx, interfaces.OptionTypePut, "AAPL", nil)
	require.NoError(t, err)

	state, err := svc.SelectExpiration(ctx, interfaces.OptionTypePut, date("2023-04-21"))
	assert.ErrorIs(t, err, ErrEmptyChain)
	require.NotNil(t, state)
	assert.Nil(t, state.Selection)
	assert.Equal(t, date("2023-04-21"), *state.SelectedExpiration)
}

func TestSelectExpirationRequiresStock(t *testing.T) {
	svc := newTestCalculator(&fakeStockService{price: 100}, &fakeOptionService{contracts: sampleChain()}, nil)

	_, err := svc.SelectExpiration(context.Background(), interfaces.OptionTypePut, date("2023-01-20"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoadStockWithEmptyChainKeepsQuote(t *testing.T) {
	svc := newTestCalculator(&fakeStockService{price: 42}, &fakeOptionService{}, nil)

	state, err := svc.LoadStock(context.Background(), interfaces.OptionTypePut, "XYZ", nil)
	assert.ErrorIs(t, err, ErrEmptyChain)
	require.NotNil(t, state)
	assert.Equal(t, 42.0, state.Stock.Price)
	assert.Nil(t, state.Selection)
	assert.Nil(t, state.SelectedExpiration)
}

func TestUpdateSessionValidates(t *testing.T) {
	svc := newTestCalculator(&fakeStockService{}, &fakeOptionService{}, nil)

	negative := -1.0
	_, err := svc.UpdateSession(interfaces.OptionTypePut, SessionUpdate{Premium: &negative})
	assert.ErrorIs(t, err, ErrInvalidInput)

	zero := 0
	_, err = svc.UpdateSession(interfaces.OptionTypePut, SessionUpdate{NumberOfContracts: &zero})
	assert.ErrorIs(t, err, ErrInvalidInput)

	contracts, owns, purchase, premium := 3, true, 80.0, 1.1
	state, err := svc.UpdateSession(interfaces.OptionTypeCall, SessionUpdate{
		NumberOfContracts: &contracts,
		OwnsShares:        &owns,
		PurchasePrice:     &purchase,
		Premium:           &premium,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, state.NumberOfContracts)
	assert.True(t, state.OwnsShares)
	assert.Equal(t, 80.0, state.PurchasePrice)
	assert.Equal(t, 1.1, state.Premium)
}

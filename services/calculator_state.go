package services

import (
	"fmt"
	"sync"

	"cloud.google.com/go/civil"

	"options-yield/interfaces"
)

// CalculatorState is the calculator form for one option type
type CalculatorState struct {
	Stock              *interfaces.StockQuote     `json:"stock,omitempty"`
	Selection          *interfaces.ChainSelection `json:"selection,omitempty"`
	SelectedExpiration *civil.Date                `json:"selected_expiration,omitempty"`
	SelectedStrike     *float64                   `json:"selected_strike,omitempty"`
	Premium            float64                    `json:"premium"`
	NumberOfContracts  int                        `json:"number_of_contracts"`
	OwnsShares         bool                       `json:"owns_shares"`
	PurchasePrice      float64                    `json:"purchase_price"`
}

// NewCalculatorState returns a blank form with one contract
func NewCalculatorState() *CalculatorState {
	return &CalculatorState{NumberOfContracts: 1}
}

// Clone returns a copy that can be handed out without the book's lock
func (s *CalculatorState) Clone() *CalculatorState {
	c := *s
	if s.SelectedExpiration != nil {
		exp := *s.SelectedExpiration
		c.SelectedExpiration = &exp
	}
	if s.SelectedStrike != nil {
		strike := *s.SelectedStrike
		c.SelectedStrike = &strike
	}
	if s.Stock != nil {
		stock := *s.Stock
		c.Stock = &stock
	}
	return &c
}

// ToPositionInput maps a form to an engine input. It returns false while the
// form is incomplete: no stock, expiration or strike, or a non-positive
// premium or contract count. A purchase price that is not positive falls back
// to the current stock price.
func ToPositionInput(state *CalculatorState, optionType interfaces.OptionType) (interfaces.PositionInput, bool) {
	if state == nil ||
		state.Stock == nil ||
		state.SelectedExpiration == nil ||
		state.SelectedStrike == nil || *state.SelectedStrike == 0 ||
		state.Premium <= 0 ||
		state.NumberOfContracts <= 0 {
		return interfaces.PositionInput{}, false
	}

	purchasePrice := state.PurchasePrice
	if purchasePrice <= 0 {
		purchasePrice = state.Stock.Price
	}

	return interfaces.PositionInput{
		OptionType:        optionType,
		StockPrice:        state.Stock.Price,
		StrikePrice:       *state.SelectedStrike,
		PremiumPerShare:   state.Premium,
		ExpirationDate:    *state.SelectedExpiration,
		NumberOfContracts: state.NumberOfContracts,
		OwnsShares:        state.OwnsShares,
		PurchasePrice:     purchasePrice,
		Symbol:            state.Stock.Symbol,
	}, true
}

// PositionBook keeps one calculator form per option type and remembers which
// one the user is looking at
type PositionBook struct {
	states map[interfaces.OptionType]*CalculatorState
	active interfaces.OptionType
	mu     sync.RWMutex
}

// NewPositionBook creates a book with blank PUT and CALL forms, PUT active
func NewPositionBook() *PositionBook {
	return &PositionBook{
		states: map[interfaces.OptionType]*CalculatorState{
			interfaces.OptionTypePut:  NewCalculatorState(),
			interfaces.OptionTypeCall: NewCalculatorState(),
		},
		active: interfaces.OptionTypePut,
	}
}

// Active returns the option type currently shown
func (b *PositionBook) Active() interfaces.OptionType {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// SetActive switches the option type shown
func (b *PositionBook) SetActive(optionType interfaces.OptionType) error {
	if !optionType.Valid() {
		return fmt.Errorf("%w: option type must be PUT or CALL, got %q", ErrInvalidInput, optionType)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = optionType
	return nil
}

// State returns a copy of the form for an option type
func (b *PositionBook) State(optionType interfaces.OptionType) (*CalculatorState, error) {
	if !optionType.Valid() {
		return nil, fmt.Errorf("%w: option type must be PUT or CALL, got %q", ErrInvalidInput, optionType)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.states[optionType].Clone(), nil
}

// Update applies fn to the form for an option type and returns the new copy
func (b *PositionBook) Update(optionType interfaces.OptionType, fn func(*CalculatorState)) (*CalculatorState, error) {
	if !optionType.Valid() {
		return nil, fmt.Errorf("%w: option type must be PUT or CALL, got %q", ErrInvalidInput, optionType)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.states[optionType])
	return b.states[optionType].Clone(), nil
}

// Reset clears the form for an option type
func (b *PositionBook) Reset(optionType interfaces.OptionType) error {
	if !optionType.Valid() {
		return fmt.Errorf("%w: option type must be PUT or CALL, got %q", ErrInvalidInput, optionType)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[optionType] = NewCalculatorState()
	return nil
}

// Snapshot returns copies of both forms
func (b *PositionBook) Snapshot() map[interfaces.OptionType]*CalculatorState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[interfaces.OptionType]*CalculatorState, len(b.states))
	for t, s := range b.states {
		out[t] = s.Clone()
	}
	return out
}

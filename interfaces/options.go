package interfaces

import (
	"context"

	"cloud.google.com/go/civil"
)

// OptionType is the side of the position the user is writing
type OptionType string

const (
	OptionTypePut  OptionType = "PUT"  // cash-secured put
	OptionTypeCall OptionType = "CALL" // covered call
)

// Valid reports whether t is PUT or CALL
func (t OptionType) Valid() bool {
	return t == OptionTypePut || t == OptionTypeCall
}

// ContractType returns the contract type that matches the position side
func (t OptionType) ContractType() ContractType {
	if t == OptionTypeCall {
		return ContractTypeCall
	}
	return ContractTypePut
}

// ContractType is the "type" field of a listed contract
type ContractType string

const (
	ContractTypeCall ContractType = "call"
	ContractTypePut  ContractType = "put"
)

// OptionContract represents a listed option contract as received from the chain provider
type OptionContract struct {
	Symbol            string       `json:"symbol"`            // OCC symbol (e.g., "AAPL240119C00150000")
	UnderlyingSymbol  string       `json:"underlying_symbol"` // Underlying stock symbol
	Type              ContractType `json:"type"`              // "call" or "put"
	StrikePrice       float64      `json:"strike_price"`
	ExpirationDate    civil.Date   `json:"expiration_date"`
	Premium           float64      `json:"premium"` // Per share, 0 when unknown
	UnderlyingPrice   float64      `json:"underlying_price"`
	OpenInterest      *int64       `json:"open_interest,omitempty"`
	ImpliedVolatility *float64     `json:"implied_volatility,omitempty"`

	// Greeks are informational only
	Delta *float64 `json:"delta,omitempty"`
	Gamma *float64 `json:"gamma,omitempty"`
	Theta *float64 `json:"theta,omitempty"`
	Vega  *float64 `json:"vega,omitempty"`
}

// StockQuote is the price of an underlying at quote time
type StockQuote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Name   string  `json:"name,omitempty"`
}

// ChainQuery scopes a contracts request
type ChainQuery struct {
	Underlying     string
	ExpirationDate *civil.Date  // nil means every listed expiration
	Type           ContractType // empty means both sides
	Limit          int          // page size, provider default when 0
}

// OptionDataService defines interface for option chain data
type OptionDataService interface {
	GetOptionContracts(ctx context.Context, query ChainQuery) ([]*OptionContract, error)
}

// StockPriceService defines interface for the latest price of an underlying
type StockPriceService interface {
	GetStockPrice(ctx context.Context, symbol string) (*StockQuote, error)
}

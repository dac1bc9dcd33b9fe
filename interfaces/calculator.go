package interfaces

import (
	"time"

	"cloud.google.com/go/civil"
)

// SharesPerContract is the size of a standard equity option contract
const SharesPerContract = 100

// PositionInput is everything a single calculation needs
type PositionInput struct {
	OptionType        OptionType `json:"option_type" binding:"required,oneof=PUT CALL"`
	StockPrice        float64    `json:"stock_price" binding:"required,gt=0"`
	StrikePrice       float64    `json:"strike_price" binding:"required,gt=0"`
	PremiumPerShare   float64    `json:"premium_per_share" binding:"gte=0"`
	ExpirationDate    civil.Date `json:"expiration_date"`
	NumberOfContracts int        `json:"number_of_contracts" binding:"required,gt=0"`
	OwnsShares        bool       `json:"owns_shares"`    // CALL only
	PurchasePrice     float64    `json:"purchase_price"` // used only when OwnsShares
	Symbol            string     `json:"symbol,omitempty"`
}

// CalculationResult holds the yield metrics for a position.
// ReturnOnCapital and AnnualizedReturn are percent numbers: 2.63 means 2.63%.
type CalculationResult struct {
	Premium          float64 `json:"premium"`
	PremiumPerShare  float64 `json:"premium_per_share"`
	ReturnOnCapital  float64 `json:"return_on_capital"`
	DaysToExpiration int     `json:"days_to_expiration"`
	AnnualizedReturn float64 `json:"annualized_return"`
	CapitalRequired  float64 `json:"capital_required"`
}

// StrikeWindow is the ladder of strikes centred on the at-the-money strike
type StrikeWindow struct {
	ClosestStrike float64   `json:"closest_strike"`
	Strikes       []float64 `json:"strikes"`
}

// ChainSelection is the option chain narrowed to nearby strikes and dates
type ChainSelection struct {
	Options         map[civil.Date][]*OptionContract `json:"options"`
	ExpirationDates []civil.Date                     `json:"expiration_dates"`
	ClosestStrike   *float64                         `json:"closest_strike"`
	SelectedStrikes []float64                        `json:"selected_strikes"`
}

// Moneyness of a strike relative to the stock price for a given side
type Moneyness string

const (
	MoneynessITM Moneyness = "ITM"
	MoneynessATM Moneyness = "ATM"
	MoneynessOTM Moneyness = "OTM"
)

// StrikeLadderEntry is one rung of the strike grid shown to the user
type StrikeLadderEntry struct {
	Strike    float64   `json:"strike"`
	Premium   float64   `json:"premium"`
	Symbol    string    `json:"symbol,omitempty"`
	Moneyness Moneyness `json:"moneyness"`
}

// CalculationRecord is a stored calculation
type CalculationRecord struct {
	ID           string            `json:"id"`
	Input        PositionInput     `json:"input"`
	Result       CalculationResult `json:"result"`
	CalculatedAt time.Time         `json:"calculated_at"`
}

// CalculationStore keeps the calculation history
type CalculationStore interface {
	SaveCalculation(record *CalculationRecord) error
	ListCalculations(symbol string, limit int) ([]*CalculationRecord, error)
}

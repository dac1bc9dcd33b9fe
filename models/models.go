package models

import (
	"time"

	"gorm.io/gorm"
)

// DBCalculation represents a stored yield calculation
type DBCalculation struct {
	gorm.Model
	CalculationID     string `gorm:"uniqueIndex"`
	Symbol            string `gorm:"index:idx_symbol_calculated_at"`
	OptionType        string // PUT or CALL
	StockPrice        float64
	StrikePrice       float64
	PremiumPerShare   float64
	ExpirationDate    string // YYYY-MM-DD
	NumberOfContracts int
	OwnsShares        bool
	PurchasePrice     float64
	// Results
	Premium          float64
	ReturnOnCapital  float64
	DaysToExpiration int
	AnnualizedReturn float64
	CapitalRequired  float64
	CalculatedAt     time.Time `gorm:"index:idx_symbol_calculated_at"`
}

// TableName specifies the table name for DBCalculation
func (DBCalculation) TableName() string {
	return "calculations"
}

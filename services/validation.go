package services

import (
	"errors"
	"fmt"
	"math"

	"cloud.google.com/go/civil"

	"options-yield/interfaces"
)

var (
	// ErrInvalidInput marks a position the engine must not be called with
	ErrInvalidInput = errors.New("invalid position input")

	// ErrDegenerateCapital marks a capital basis that is zero, negative or not finite
	ErrDegenerateCapital = errors.New("capital required must be positive")
)

// ValidatePositionInput rejects inputs that would make the metrics meaningless.
// It runs at the boundary, before CalculateOptionMetrics.
func ValidatePositionInput(in interfaces.PositionInput) error {
	if !in.OptionType.Valid() {
		return fmt.Errorf("%w: option type must be PUT or CALL, got %q", ErrInvalidInput, in.OptionType)
	}
	if in.NumberOfContracts <= 0 {
		return fmt.Errorf("%w: number of contracts must be positive", ErrInvalidInput)
	}
	if !isFinite(in.PremiumPerShare) || in.PremiumPerShare < 0 {
		return fmt.Errorf("%w: premium per share must not be negative", ErrInvalidInput)
	}
	if !isFinite(in.StockPrice) || in.StockPrice <= 0 {
		return fmt.Errorf("%w: stock price must be positive", ErrInvalidInput)
	}
	if in.ExpirationDate == (civil.Date{}) || !in.ExpirationDate.IsValid() {
		return fmt.Errorf("%w: expiration date is required", ErrInvalidInput)
	}

	basis, name := capitalBasis(in)
	if !isFinite(basis) || basis <= 0 {
		return fmt.Errorf("%w: %s is %v", ErrDegenerateCapital, name, basis)
	}
	return nil
}

// capitalBasis is the per-share amount the capital requirement is built from
func capitalBasis(in interfaces.PositionInput) (float64, string) {
	switch {
	case in.OptionType == interfaces.OptionTypePut:
		return in.StrikePrice, "strike price"
	case in.OwnsShares:
		return in.PurchasePrice, "purchase price"
	default:
		return in.StockPrice, "stock price"
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

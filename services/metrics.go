package services

import (
	"math"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"options-yield/interfaces"
)

const daysPerYear = 365

// MetricsEngine computes yield metrics for cash-secured puts and covered calls.
// It has no state besides the clock used to decide what "today" is.
type MetricsEngine struct {
	clock func() time.Time
}

// NewMetricsEngine creates a metrics engine. A nil clock means time.Now.
func NewMetricsEngine(clock func() time.Time) *MetricsEngine {
	if clock == nil {
		clock = time.Now
	}
	return &MetricsEngine{clock: clock}
}

// Today returns the UTC calendar date of the engine clock
func (e *MetricsEngine) Today() civil.Date {
	return civil.DateOf(e.clock().UTC())
}

// CalculateDaysToExpiration returns the whole calendar days from today until
// the expiration date. Expired and same-day dates return 0.
func (e *MetricsEngine) CalculateDaysToExpiration(expirationDate civil.Date) int {
	days := expirationDate.DaysSince(e.Today())
	if days < 0 {
		return 0
	}
	return days
}

// CalculateAnnualizedReturn extrapolates a percent return over daysToExpiration
// to a 365-day basis without compounding, rounded to one decimal place.
func CalculateAnnualizedReturn(returnOnCapital float64, daysToExpiration int) float64 {
	if daysToExpiration <= 0 || returnOnCapital <= -100 {
		return 0
	}

	annualized := (returnOnCapital / float64(daysToExpiration)) * daysPerYear
	if math.IsNaN(annualized) || math.IsInf(annualized, 0) {
		return annualized
	}
	return roundBinary(annualized, 1)
}

// roundBinary rounds the exact binary value of x half away from zero.
// decimal.NewFromFloat starts from the shortest decimal form instead, which
// rounds 0.14999999999999999 as if it were 0.15.
func roundBinary(x float64, places int32) float64 {
	exact, err := decimal.NewFromString(strconv.FormatFloat(x, 'f', 40, 64))
	if err != nil {
		return x
	}
	rounded, _ := exact.Round(places).Float64()
	return rounded
}

// CalculateOptionMetrics computes premium, capital basis and returns for a position.
// Inputs are not validated here; a zero capital basis yields NaN or Inf returns.
// See ValidatePositionInput.
func (e *MetricsEngine) CalculateOptionMetrics(in interfaces.PositionInput) interfaces.CalculationResult {
	contracts := float64(in.NumberOfContracts)
	totalPremium := in.PremiumPerShare * contracts * interfaces.SharesPerContract

	var capitalRequired float64
	if in.OptionType == interfaces.OptionTypePut {
		// Cash reserved for assignment at the strike
		capitalRequired = in.StrikePrice * contracts * interfaces.SharesPerContract
	} else {
		basis := in.StockPrice
		if in.OwnsShares {
			basis = in.PurchasePrice
		}
		capitalRequired = basis * contracts * interfaces.SharesPerContract
	}

	returnOnCapital := (totalPremium / capitalRequired) * 100
	daysToExpiration := e.CalculateDaysToExpiration(in.ExpirationDate)

	return interfaces.CalculationResult{
		Premium:          totalPremium,
		PremiumPerShare:  in.PremiumPerShare,
		ReturnOnCapital:  returnOnCapital,
		DaysToExpiration: daysToExpiration,
		AnnualizedReturn: CalculateAnnualizedReturn(returnOnCapital, daysToExpiration),
		CapitalRequired:  capitalRequired,
	}
}

var printer = message.NewPrinter(language.English)

// FormatCurrency formats a dollar amount as "$1,234.56" or "-$100.00"
func FormatCurrency(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "n/a"
	}

	cents := decimal.NewFromFloat(value).Round(2)
	amount, _ := cents.Abs().Float64()

	formatted := printer.Sprintf("$%.2f", amount)
	if cents.IsNegative() {
		return "-" + formatted
	}
	return formatted
}

// FormatPercentage formats a percent number: 2.63 becomes "2.63%".
// The value is not rescaled; engine results are already percent numbers.
func FormatPercentage(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return "n/a"
	}

	rounded := decimal.NewFromFloat(value).Round(2)
	amount, _ := rounded.Float64()
	if rounded.IsZero() {
		amount = 0
	}
	return printer.Sprintf("%.2f%%", amount)
}

// FormattedResult is a CalculationResult rendered for display
type FormattedResult struct {
	Premium          string `json:"premium"`
	PremiumPerShare  string `json:"premium_per_share"`
	ReturnOnCapital  string `json:"return_on_capital"`
	DaysToExpiration int    `json:"days_to_expiration"`
	AnnualizedReturn string `json:"annualized_return"`
	CapitalRequired  string `json:"capital_required"`
}

// FormatResult renders every monetary and percent field of a result
func FormatResult(result interfaces.CalculationResult) FormattedResult {
	return FormattedResult{
		Premium:          FormatCurrency(result.Premium),
		PremiumPerShare:  FormatCurrency(result.PremiumPerShare),
		ReturnOnCapital:  FormatPercentage(result.ReturnOnCapital),
		DaysToExpiration: result.DaysToExpiration,
		AnnualizedReturn: FormatPercentage(result.AnnualizedReturn),
		CapitalRequired:  FormatCurrency(result.CapitalRequired),
	}
}

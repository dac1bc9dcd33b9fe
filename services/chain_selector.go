package services

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"cloud.google.com/go/civil"

	"options-yield/interfaces"
)

// ErrEmptyChain is returned when no contracts survive filtering
var ErrEmptyChain = errors.New("no option contracts available")

// SidePolicy decides which contract types the selector keeps
type SidePolicy string

const (
	SidePolicyCalls    SidePolicy = "calls"    // always keep calls, whatever the position side
	SidePolicyPosition SidePolicy = "position" // keep the type matching the position side
	SidePolicyBoth     SidePolicy = "both"     // keep calls and puts
)

// ParseSidePolicy validates a configured policy name
func ParseSidePolicy(s string) (SidePolicy, error) {
	switch p := SidePolicy(s); p {
	case SidePolicyCalls, SidePolicyPosition, SidePolicyBoth:
		return p, nil
	case "":
		return SidePolicyCalls, nil
	default:
		return "", fmt.Errorf("unknown side policy %q (want calls, position or both)", s)
	}
}

// SelectorConfig bounds the selection
type SelectorConfig struct {
	SidePolicy     SidePolicy
	MaxExpirations int
	WindowBelow    int
	WindowAbove    int
}

// DefaultSelectorConfig keeps 5 expirations and 7 strikes either side of the money
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		SidePolicy:     SidePolicyCalls,
		MaxExpirations: 5,
		WindowBelow:    7,
		WindowAbove:    7,
	}
}

// ChainSelector narrows a raw option chain to the dates and strikes worth showing
type ChainSelector struct {
	config SelectorConfig
}

// NewChainSelector creates a chain selector
func NewChainSelector(config SelectorConfig) *ChainSelector {
	defaults := DefaultSelectorConfig()
	if config.SidePolicy == "" {
		config.SidePolicy = defaults.SidePolicy
	}
	if config.MaxExpirations <= 0 {
		config.MaxExpirations = defaults.MaxExpirations
	}
	if config.WindowBelow < 0 {
		config.WindowBelow = defaults.WindowBelow
	}
	if config.WindowAbove < 0 {
		config.WindowAbove = defaults.WindowAbove
	}
	return &ChainSelector{config: config}
}

// Config returns the effective selector configuration
func (cs *ChainSelector) Config() SelectorConfig {
	return cs.config
}

// FilterSide keeps the contracts allowed by the side policy for a position side
func (cs *ChainSelector) FilterSide(contracts []*interfaces.OptionContract, side interfaces.OptionType) []*interfaces.OptionContract {
	var keep func(interfaces.ContractType) bool
	switch cs.config.SidePolicy {
	case SidePolicyBoth:
		keep = func(interfaces.ContractType) bool { return true }
	case SidePolicyPosition:
		want := side.ContractType()
		keep = func(t interfaces.ContractType) bool { return t == want }
	default:
		keep = func(t interfaces.ContractType) bool { return t == interfaces.ContractTypeCall }
	}

	filtered := make([]*interfaces.OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if c != nil && keep(c.Type) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// SelectExpirationDates returns the distinct expiration dates of the side-filtered
// contracts in chronological order, at most MaxExpirations of them
func (cs *ChainSelector) SelectExpirationDates(contracts []*interfaces.OptionContract, side interfaces.OptionType) []civil.Date {
	return distinctDates(cs.FilterSide(contracts, side), cs.config.MaxExpirations)
}

// SelectStrikeWindow finds the strike closest to stockPrice among contracts
// expiring on expirationDate and returns the window of strikes around it
func (cs *ChainSelector) SelectStrikeWindow(contracts []*interfaces.OptionContract, expirationDate civil.Date, stockPrice float64) (*interfaces.StrikeWindow, error) {
	strikes := sortedStrikes(contractsExpiringOn(contracts, expirationDate))
	if len(strikes) == 0 {
		return nil, fmt.Errorf("%w for expiration %s", ErrEmptyChain, expirationDate)
	}

	closest, window := StrikeWindowAround(strikes, stockPrice, cs.config.WindowBelow, cs.config.WindowAbove)
	return &interfaces.StrikeWindow{
		ClosestStrike: closest,
		Strikes:       window,
	}, nil
}

// StrikeWindowAround returns the strike nearest to price and the contiguous
// window [i-below, i+above] around it, clamped to the list. strikes must be
// sorted ascending and non-empty. Ties go to the lower strike.
func StrikeWindowAround(strikes []float64, price float64, below, above int) (float64, []float64) {
	closestIndex := 0
	minDistance := math.Abs(strikes[0] - price)
	for i := 1; i < len(strikes); i++ {
		if d := math.Abs(strikes[i] - price); d < minDistance {
			minDistance = d
			closestIndex = i
		}
	}

	start := closestIndex - below
	if start < 0 {
		start = 0
	}
	end := closestIndex + above + 1
	if end > len(strikes) {
		end = len(strikes)
	}

	window := make([]float64, end-start)
	copy(window, strikes[start:end])
	return strikes[closestIndex], window
}

// BuildSelection turns a raw chain into a ChainSelection.
// When expirationDate is nil the window is computed over every expiration.
func (cs *ChainSelector) BuildSelection(contracts []*interfaces.OptionContract, stockPrice float64, expirationDate *civil.Date, side interfaces.OptionType) (*interfaces.ChainSelection, error) {
	sided := cs.FilterSide(contracts, side)
	if len(sided) == 0 {
		return nil, fmt.Errorf("%w for %s side (policy %s)", ErrEmptyChain, side, cs.config.SidePolicy)
	}

	dates := distinctDates(sided, cs.config.MaxExpirations)

	scoped := sided
	if expirationDate != nil {
		scoped = contractsExpiringOn(sided, *expirationDate)
	}

	strikes := sortedStrikes(scoped)
	if len(strikes) == 0 {
		return nil, fmt.Errorf("%w for expiration %s", ErrEmptyChain, *expirationDate)
	}

	closest, window := StrikeWindowAround(strikes, stockPrice, cs.config.WindowBelow, cs.config.WindowAbove)

	inWindow := make(map[float64]bool, len(window))
	for _, s := range window {
		inWindow[s] = true
	}

	options := make(map[civil.Date][]*interfaces.OptionContract)
	for _, c := range scoped {
		if inWindow[c.StrikePrice] {
			options[c.ExpirationDate] = append(options[c.ExpirationDate], c)
		}
	}

	return &interfaces.ChainSelection{
		Options:         options,
		ExpirationDates: dates,
		ClosestStrike:   &closest,
		SelectedStrikes: window,
	}, nil
}

// Ladder lists the retained contracts for one expiration sorted by strike,
// each tagged with its moneyness for the position side
func (cs *ChainSelector) Ladder(selection *interfaces.ChainSelection, expirationDate civil.Date, stockPrice float64, side interfaces.OptionType) []interfaces.StrikeLadderEntry {
	if selection == nil {
		return nil
	}

	contracts := append([]*interfaces.OptionContract(nil), selection.Options[expirationDate]...)
	sort.SliceStable(contracts, func(i, j int) bool {
		return contracts[i].StrikePrice < contracts[j].StrikePrice
	})

	ladder := make([]interfaces.StrikeLadderEntry, 0, len(contracts))
	for _, c := range contracts {
		ladder = append(ladder, interfaces.StrikeLadderEntry{
			Strike:    c.StrikePrice,
			Premium:   c.Premium,
			Symbol:    c.Symbol,
			Moneyness: ClassifyStrike(side, c.StrikePrice, stockPrice),
		})
	}
	return ladder
}

// ClassifyStrike tells whether a strike is in, at or out of the money for a
// PUT or CALL seller
func ClassifyStrike(side interfaces.OptionType, strike, stockPrice float64) interfaces.Moneyness {
	if math.Abs(strike-stockPrice) < 0.01 {
		return interfaces.MoneynessATM
	}
	if side == interfaces.OptionTypePut {
		if strike > stockPrice {
			return interfaces.MoneynessITM
		}
		return interfaces.MoneynessOTM
	}
	if strike < stockPrice {
		return interfaces.MoneynessITM
	}
	return interfaces.MoneynessOTM
}

func contractsExpiringOn(contracts []*interfaces.OptionContract, date civil.Date) []*interfaces.OptionContract {
	matched := make([]*interfaces.OptionContract, 0)
	for _, c := range contracts {
		if c != nil && c.ExpirationDate == date {
			matched = append(matched, c)
		}
	}
	return matched
}

// sortedStrikes returns the distinct strikes in ascending order
func sortedStrikes(contracts []*interfaces.OptionContract) []float64 {
	seen := make(map[float64]bool, len(contracts))
	strikes := make([]float64, 0, len(contracts))
	for _, c := range contracts {
		if !seen[c.StrikePrice] {
			seen[c.StrikePrice] = true
			strikes = append(strikes, c.StrikePrice)
		}
	}
	sort.Float64s(strikes)
	return strikes
}

func distinctDates(contracts []*interfaces.OptionContract, limit int) []civil.Date {
	seen := make(map[civil.Date]bool)
	dates := make([]civil.Date, 0)
	for _, c := range contracts {
		if !seen[c.ExpirationDate] {
			seen[c.ExpirationDate] = true
			dates = append(dates, c.ExpirationDate)
		}
	}

	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})

	if limit > 0 && len(dates) > limit {
		dates = dates[:limit]
	}
	return dates
}

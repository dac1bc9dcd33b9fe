package services

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"options-yield/interfaces"
)

// RenderResult writes a position and its metrics as a two-column table
func RenderResult(w io.Writer, in interfaces.PositionInput, result interfaces.CalculationResult) {
	formatted := FormatResult(result)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	if in.Symbol != "" {
		table.Append([]string{"Symbol", in.Symbol})
	}
	table.Append([]string{"Option type", string(in.OptionType)})
	table.Append([]string{"Strike", FormatCurrency(in.StrikePrice)})
	table.Append([]string{"Expiration", in.ExpirationDate.String()})
	table.Append([]string{"Contracts", strconv.Itoa(in.NumberOfContracts)})
	table.Append([]string{"Premium / share", formatted.PremiumPerShare})
	table.Append([]string{"Total premium", formatted.Premium})
	table.Append([]string{"Capital required", formatted.CapitalRequired})
	table.Append([]string{"Return on capital", formatted.ReturnOnCapital})
	table.Append([]string{"Days to expiration", strconv.Itoa(formatted.DaysToExpiration)})
	table.Append([]string{"Annualized return", formatted.AnnualizedReturn})

	table.Render()
}

// RenderLadder writes the strike ladder of a chain view
func RenderLadder(w io.Writer, view *ChainView) {
	fmt.Fprintf(w, "%s @ %s, %s side, expiring %s\n",
		view.Symbol, FormatCurrency(view.StockPrice), view.Side, view.Expiration)

	closest := 0.0
	if view.Selection != nil && view.Selection.ClosestStrike != nil {
		closest = *view.Selection.ClosestStrike
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Strike", "Premium", "Moneyness", "Contract"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, entry := range view.Ladder {
		strike := FormatCurrency(entry.Strike)
		if entry.Strike == closest {
			strike = "* " + strike
		}
		table.Append([]string{strike, FormatCurrency(entry.Premium), string(entry.Moneyness), entry.Symbol})
	}

	table.Render()
}

// RenderHistory writes stored calculations, one per row
func RenderHistory(w io.Writer, records []*interfaces.CalculationRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Calculated", "Symbol", "Type", "Strike", "Expiration", "Premium", "Return", "Annualized"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range records {
		table.Append([]string{
			r.CalculatedAt.Format("2006-01-02 15:04"),
			r.Input.Symbol,
			string(r.Input.OptionType),
			FormatCurrency(r.Input.StrikePrice),
			r.Input.ExpirationDate.String(),
			FormatCurrency(r.Result.Premium),
			FormatPercentage(r.Result.ReturnOnCapital),
			FormatPercentage(r.Result.AnnualizedReturn),
		})
	}

	table.Render()
}

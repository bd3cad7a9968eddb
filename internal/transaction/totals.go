package transaction

import "github.com/shopspring/decimal"

// Prices are VAT-inclusive at 12%: the VAT component of a gross amount is
// (gross / 1.12) * 0.12.
var (
	vatDivisor = decimal.NewFromFloat(1.12)
	vatRate    = decimal.NewFromFloat(0.12)
)

type Totals struct {
	Gross  decimal.Decimal
	VAT    decimal.Decimal
	Total  decimal.Decimal
	Change decimal.Decimal
}

func ComputeTotals(gross, discount, amountPaid decimal.Decimal) Totals {
	vat := gross.Div(vatDivisor).Mul(vatRate).Round(2)
	total := gross.Sub(discount)
	return Totals{
		Gross:  gross,
		VAT:    vat,
		Total:  total,
		Change: amountPaid.Sub(total),
	}
}

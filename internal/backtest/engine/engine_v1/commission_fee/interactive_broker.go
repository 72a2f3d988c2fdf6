package commission_fee

import "github.com/shopspring/decimal"

var (
	ibPerUnit    = decimal.RequireFromString("0.005")
	ibMinimum    = decimal.NewFromInt(1)
	ibMaxPercent = decimal.RequireFromString("0.01")
)

// InteractiveBrokerCommissionFee follows the fixed pricing tier: 0.005 per unit, at least 1 per
// fill and at most 1% of the fill notional.
type InteractiveBrokerCommissionFee struct{}

func NewInteractiveBrokerCommissionFee() CommissionFee {
	return &InteractiveBrokerCommissionFee{}
}

func (c *InteractiveBrokerCommissionFee) Calculate(price float64, quantity float64) float64 {
	if quantity <= 0 || price <= 0 {
		return 0
	}

	units := decimal.NewFromFloat(quantity)
	fee := decimal.Max(ibPerUnit.Mul(units), ibMinimum)
	ceiling := ibMaxPercent.Mul(decimal.NewFromFloat(price)).Mul(units)

	return decimal.Min(fee, ceiling).InexactFloat64()
}

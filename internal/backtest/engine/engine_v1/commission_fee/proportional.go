package commission_fee

import "github.com/shopspring/decimal"

// ProportionalCommissionFee charges a fixed proportion of the fill notional per side.
type ProportionalCommissionFee struct {
	rate decimal.Decimal
}

// NewProportionalCommissionFee creates a commission model charging rate * price * quantity.
func NewProportionalCommissionFee(rate float64) CommissionFee {
	return &ProportionalCommissionFee{
		rate: decimal.NewFromFloat(rate),
	}
}

func (c *ProportionalCommissionFee) Calculate(price float64, quantity float64) float64 {
	if quantity <= 0 || price <= 0 {
		return 0
	}

	return c.rate.Mul(decimal.NewFromFloat(price)).Mul(decimal.NewFromFloat(quantity)).InexactFloat64()
}

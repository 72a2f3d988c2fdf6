package utils

import (
	"math"

	"github.com/rxtech-lab/argo-backtest/internal/backtest/engine/engine_v1/commission_fee"
)

// RoundHalfEven rounds a unit count to the nearest integer, ties to even.
func RoundHalfEven(quantity float64) int {
	return int(math.RoundToEven(quantity))
}

// CalculateOrderUnits converts an order size into whole units at the given fill price.
// A size >= 1 is a unit count, a size in (0, 1) is a fraction of equity.
// The result may be zero or negative, which callers treat as a rejection.
func CalculateOrderUnits(size float64, equity float64, price float64) int {
	if size >= 1 {
		return RoundHalfEven(size)
	}

	if size <= 0 || price <= 0 || equity <= 0 {
		return 0
	}

	return int(math.Floor(size * equity / price))
}

// CalculateMaxQuantity calculates the maximum whole quantity that can be opened with the given
// available cash, margin ratio and commission.
func CalculateMaxQuantity(available float64, price float64, margin float64, commissionFee commission_fee.CommissionFee) int {
	// Handle edge cases
	if price <= 0 || available <= 0 || margin <= 0 {
		return 0
	}

	quantity := int(math.Floor(available / (price * margin)))

	// Step down until the fee fits, usually one or two iterations
	for quantity > 0 {
		required := float64(quantity)*price*margin + commissionFee.Calculate(price, float64(quantity))
		if required <= available {
			break
		}

		quantity--
	}

	return quantity
}

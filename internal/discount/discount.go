package discount

import (
	"math"

	"tokokasir/terminal/internal/domain"
)

// Compute derives the discount and total for one cart subtotal. The value
// is interpreted per mode: a flat amount off, a percentage off, or the
// final price the customer should pay. The result always satisfies
// 0 <= discount <= subtotal and total = subtotal - discount.
func Compute(subtotalCents int64, mode string, value float64) (int64, int64) {
	if subtotalCents < 0 {
		subtotalCents = 0
	}

	var discount int64
	switch mode {
	case domain.DiscountModeAmount:
		discount = int64(math.Round(value))
	case domain.DiscountModePercent:
		discount = int64(math.Round(float64(subtotalCents) * value / 100))
	case domain.DiscountModeFinalPrice:
		discount = subtotalCents - clampCents(int64(math.Round(value)), subtotalCents)
	}
	discount = clampCents(discount, subtotalCents)

	return discount, subtotalCents - discount
}

// DefaultValue is a mode's "no discount" value: zero for amount and
// percent, the current subtotal for final price.
func DefaultValue(mode string, subtotalCents int64) float64 {
	if mode == domain.DiscountModeFinalPrice {
		return float64(subtotalCents)
	}
	return 0
}

// EstimateProfit converts each line's unit cost with the purchase-currency
// rate and subtracts the summed cost from the collected total. Never
// negative.
func EstimateProfit(totalCents int64, lines []domain.SaleLine, rate float64) (profitCents int64, costCents int64) {
	for _, line := range lines {
		costCents += int64(math.Round(float64(line.UnitCostCents)*rate)) * line.Quantity
	}
	profitCents = totalCents - costCents
	if profitCents < 0 {
		profitCents = 0
	}
	return profitCents, costCents
}

func clampCents(v int64, limit int64) int64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

package discount

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"tokokasir/terminal/internal/domain"
)

// TestComputeInvariants verifies the arithmetic promise every caller relies
// on: the discount never leaves [0, subtotal] and the total is exactly the
// remainder, whatever mode and value the panel sends.
func TestComputeInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("discount bounded and total exact", prop.ForAll(
		func(subtotal int64, mode string, value float64) bool {
			discount, total := Compute(subtotal, mode, value)
			if discount < 0 || discount > subtotal {
				return false
			}
			return total == subtotal-discount
		},
		gen.Int64Range(0, 1_000_000_000),
		gen.OneConstOf(domain.DiscountModeAmount, domain.DiscountModePercent, domain.DiscountModeFinalPrice),
		gen.Float64Range(-1e6, 1e12),
	))

	properties.TestingRun(t)
}

// TestComputeFinalPriceCharge verifies that final-price mode charges the
// requested price clamped into [0, subtotal].
func TestComputeFinalPriceCharge(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("total equals the clamped asking price", prop.ForAll(
		func(subtotal int64, value float64) bool {
			_, total := Compute(subtotal, domain.DiscountModeFinalPrice, value)

			want := int64(math.Round(value))
			if want < 0 {
				want = 0
			}
			if want > subtotal {
				want = subtotal
			}
			return total == want
		},
		gen.Int64Range(0, 1_000_000_000),
		gen.Float64Range(-1e6, 2e9),
	))

	properties.TestingRun(t)
}

// TestEstimateProfitNeverNegative verifies the estimate floors at zero no
// matter how the exchange rate moves the costs.
func TestEstimateProfitNeverNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("profit floors at zero", prop.ForAll(
		func(total int64, qty int64, unitCost int64, rate float64) bool {
			lines := []domain.SaleLine{{Quantity: qty, UnitCostCents: unitCost}}
			profit, cost := EstimateProfit(total, lines, rate)
			if profit < 0 {
				return false
			}
			if cost == 0 {
				return profit == total
			}
			return true
		},
		gen.Int64Range(0, 1_000_000_000),
		gen.Int64Range(1, 50),
		gen.Int64Range(0, 1_000_000),
		gen.Float64Range(0, 10),
	))

	properties.TestingRun(t)
}

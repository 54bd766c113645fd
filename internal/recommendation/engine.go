package recommendation

import (
	"math"
	"sort"
	"strings"

	"tokokasir/terminal/internal/domain"
)

// Engine scores the catalog for one add-on item worth offering while a cart
// is rung up. Candidates come from product families not already in the cart;
// the score mixes price fit against the basket, margin, and stock health, so
// the counter pushes cheap, profitable items it actually has.
type Engine struct {
	minConfidence float64
}

func NewEngine() *Engine {
	return &Engine{minConfidence: 0.35}
}

// Suggest picks the best-scoring candidate for the given cart, or none when
// nothing clears the confidence floor. promptCount is how many suggestions
// this transaction has already been shown; repeated prompts score lower and
// back off with a longer cooldown.
func (e *Engine) Suggest(cart []domain.CartLine, variants []domain.Variant, promptCount int) domain.SuggestionResponse {
	if len(cart) == 0 {
		return domain.SuggestionResponse{Show: false, CooldownSeconds: 30}
	}

	var cartTotal int64
	inCart := make(map[string]struct{}, len(cart))
	families := make(map[string]struct{}, len(cart))
	for _, line := range cart {
		inCart[line.VariantID] = struct{}{}
		if line.Variant == nil {
			continue
		}
		cartTotal += line.Variant.SalePriceCents * line.Quantity
		families[skuFamily(line.Variant.SKU)] = struct{}{}
	}
	if cartTotal <= 0 {
		return domain.SuggestionResponse{Show: false, CooldownSeconds: 30}
	}

	fatigue := clamp(float64(promptCount)/4.0, 0, 1)

	var best *domain.Suggestion
	bestScore := 0.0
	for _, v := range variants {
		if !v.Active || v.StockOnHand <= 0 || v.SalePriceCents <= 0 {
			continue
		}
		if _, dup := inCart[v.ID]; dup {
			continue
		}
		// A second size or color of something already in the basket is not
		// an add-on; only other families qualify.
		if _, same := families[skuFamily(v.SKU)]; same {
			continue
		}

		priceFit := clamp(1-float64(v.SalePriceCents)/float64(cartTotal), 0, 1)
		marginRate := float64(v.SalePriceCents-v.PurchaseCostCents) / float64(v.SalePriceCents)
		marginScore := clamp(marginRate/0.40, 0, 1)
		stockScore := clamp(float64(v.StockOnHand)/60.0, 0, 1)

		score := 0.45*priceFit + 0.35*marginScore + 0.20*stockScore - 0.05*fatigue
		confidence := clamp(score, 0, 1)
		if confidence < e.minConfidence || confidence <= bestScore {
			continue
		}

		bestScore = confidence
		best = &domain.Suggestion{
			VariantID:           v.ID,
			SKU:                 v.SKU,
			Name:                v.Name,
			SalePriceCents:      v.SalePriceCents,
			ExpectedMarginCents: v.SalePriceCents - v.PurchaseCostCents,
			ReasonCode:          deriveReason(priceFit, marginScore, stockScore),
			Confidence:          round2(confidence),
		}
	}

	if best == nil {
		return domain.SuggestionResponse{Show: false, CooldownSeconds: 45}
	}

	cooldown := 45
	if promptCount >= 3 {
		cooldown = 90
	}
	return domain.SuggestionResponse{Suggestion: best, Show: true, CooldownSeconds: cooldown}
}

func deriveReason(priceFit, marginScore, stockScore float64) string {
	type reasonWeight struct {
		code  string
		value float64
	}
	reasons := []reasonWeight{
		{code: "impulse_price_fit", value: priceFit},
		{code: "high_margin_boost", value: marginScore},
		{code: "healthy_stock", value: stockScore},
	}
	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].value > reasons[j].value
	})
	return reasons[0].code
}

// skuFamily is the part of a SKU before the first dash: KAOS-PUT-M and
// KAOS-HIT-L are the same family.
func skuFamily(sku string) string {
	if i := strings.IndexByte(sku, '-'); i > 0 {
		return sku[:i]
	}
	return sku
}

func clamp(val, minVal, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}

package recommendation

import (
	"testing"

	"tokokasir/terminal/internal/domain"
)

var (
	kaos  = domain.Variant{ID: "var-kaos", SKU: "KAOS-PUT-M", Name: "Kaos Polos Katun", SalePriceCents: 55000, PurchaseCostCents: 31000, StockOnHand: 24, Active: true}
	kaosL = domain.Variant{ID: "var-kaos-l", SKU: "KAOS-HIT-L", Name: "Kaos Polos Katun", SalePriceCents: 55000, PurchaseCostCents: 31000, StockOnHand: 18, Active: true}
	socks = domain.Variant{ID: "var-kaoskaki", SKU: "KSK-PUT", Name: "Kaos Kaki Sport", SalePriceCents: 18000, PurchaseCostCents: 8500, StockOnHand: 60, Active: true}
	topi  = domain.Variant{ID: "var-topi", SKU: "TOPI-HIT", Name: "Topi Baseball", SalePriceCents: 45000, PurchaseCostCents: 22000, StockOnHand: 30, Active: true}
	tas   = domain.Variant{ID: "var-tas", SKU: "TAS-HIT", Name: "Tas Selempang", SalePriceCents: 135000, PurchaseCostCents: 76000, StockOnHand: 0, Active: true}
	arsip = domain.Variant{ID: "var-arsip", SKU: "ARS-1", Name: "Arsip Lama", SalePriceCents: 10000, PurchaseCostCents: 2000, StockOnHand: 10, Active: false}
)

func cartWith(v domain.Variant, qty int64) []domain.CartLine {
	dup := v
	return []domain.CartLine{{VariantID: v.ID, Quantity: qty, Variant: &dup}}
}

func TestSuggestEmptyCart(t *testing.T) {
	resp := NewEngine().Suggest(nil, []domain.Variant{kaos, socks}, 0)
	if resp.Show || resp.Suggestion != nil {
		t.Fatalf("empty cart must not produce a suggestion: %+v", resp)
	}
	if resp.CooldownSeconds != 30 {
		t.Fatalf("expected cooldown 30, got %d", resp.CooldownSeconds)
	}
}

func TestSuggestPrefersCheapHighMarginAddOn(t *testing.T) {
	resp := NewEngine().Suggest(cartWith(kaos, 1), []domain.Variant{kaos, socks, topi}, 0)
	if !resp.Show || resp.Suggestion == nil {
		t.Fatalf("expected a suggestion, got %+v", resp)
	}
	s := resp.Suggestion
	if s.VariantID != "var-kaoskaki" {
		t.Fatalf("expected socks as the add-on, got %s", s.VariantID)
	}
	if s.ExpectedMarginCents != 9500 {
		t.Fatalf("expected margin 9500, got %d", s.ExpectedMarginCents)
	}
	if s.Confidence != 0.85 {
		t.Fatalf("expected confidence 0.85, got %v", s.Confidence)
	}
	if s.ReasonCode != "high_margin_boost" {
		t.Fatalf("unexpected reason %q", s.ReasonCode)
	}
	if resp.CooldownSeconds != 45 {
		t.Fatalf("expected cooldown 45, got %d", resp.CooldownSeconds)
	}
}

func TestSuggestSkipsFamiliesAlreadyInCart(t *testing.T) {
	// Another size of the same shirt is a swap, not an add-on.
	resp := NewEngine().Suggest(cartWith(kaos, 1), []domain.Variant{kaos, kaosL}, 0)
	if resp.Show || resp.Suggestion != nil {
		t.Fatalf("same-family variant must not be suggested: %+v", resp)
	}
}

func TestSuggestSkipsDeadStock(t *testing.T) {
	resp := NewEngine().Suggest(cartWith(kaos, 1), []domain.Variant{kaos, tas, arsip}, 0)
	if resp.Show || resp.Suggestion != nil {
		t.Fatalf("out-of-stock and inactive variants must not be suggested: %+v", resp)
	}
}

func TestSuggestFatigueSuppressesBorderline(t *testing.T) {
	jaket := domain.Variant{ID: "var-jaket", SKU: "JKT-NAV-L", Name: "Jaket Parasut", SalePriceCents: 100000, PurchaseCostCents: 60000, StockOnHand: 12, Active: true}
	syal := domain.Variant{ID: "var-syal", SKU: "SYL-ABU", Name: "Syal Rajut", SalePriceCents: 80000, PurchaseCostCents: 64000, StockOnHand: 30, Active: true}
	catalog := []domain.Variant{jaket, syal}

	fresh := NewEngine().Suggest(cartWith(jaket, 1), catalog, 0)
	if !fresh.Show || fresh.Suggestion == nil || fresh.Suggestion.VariantID != "var-syal" {
		t.Fatalf("expected borderline candidate on the first prompt, got %+v", fresh)
	}

	tired := NewEngine().Suggest(cartWith(jaket, 1), catalog, 4)
	if tired.Show || tired.Suggestion != nil {
		t.Fatalf("fatigue must push a borderline candidate under the floor: %+v", tired)
	}
}

func TestSuggestBacksOffCooldownAfterRepeatedPrompts(t *testing.T) {
	resp := NewEngine().Suggest(cartWith(kaos, 1), []domain.Variant{kaos, socks}, 3)
	if !resp.Show {
		t.Fatalf("a strong candidate should survive fatigue: %+v", resp)
	}
	if resp.CooldownSeconds != 90 {
		t.Fatalf("expected cooldown 90 after repeated prompts, got %d", resp.CooldownSeconds)
	}
}

func TestSuggestIgnoresUnresolvedCartLines(t *testing.T) {
	cart := []domain.CartLine{{VariantID: "var-ghost", Quantity: 2}}
	resp := NewEngine().Suggest(cart, []domain.Variant{socks}, 0)
	if resp.Show || resp.Suggestion != nil {
		t.Fatalf("a cart with no resolved lines has no basket to fit against: %+v", resp)
	}
}

func TestSKUFamily(t *testing.T) {
	cases := []struct {
		sku  string
		want string
	}{
		{"KAOS-PUT-M", "KAOS"},
		{"KSK-PUT", "KSK"},
		{"TOPI", "TOPI"},
	}
	for _, tc := range cases {
		if got := skuFamily(tc.sku); got != tc.want {
			t.Fatalf("skuFamily(%q) = %q, want %q", tc.sku, got, tc.want)
		}
	}
}

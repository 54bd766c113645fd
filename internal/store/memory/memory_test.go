package memory

import (
	"context"
	"errors"
	"testing"

	"tokokasir/terminal/internal/domain"
	"tokokasir/terminal/internal/store"
)

func kaosDraft(qty int64, ref string) domain.SaleDraft {
	subtotal := 55000 * qty
	return domain.SaleDraft{
		Branch:  "main",
		Cashier: "kasir-1",
		Lines: []domain.SaleLine{{
			VariantID:      "var-kaos-put-m",
			SKU:            "KAOS-PUT-M",
			Name:           "Kaos Polos Katun",
			Quantity:       qty,
			UnitPriceCents: 55000,
			UnitCostCents:  31000,
		}},
		SubtotalCents: subtotal,
		TotalCents:    subtotal,
		DiscountMode:  domain.DiscountModeAmount,
		PaymentMethod: domain.PaymentMethodCash,
		ClientRef:     ref,
	}
}

func stockOf(t *testing.T, s *Store, variantID string) int64 {
	t.Helper()

	variants, err := s.Variants(context.Background())
	if err != nil {
		t.Fatalf("variants: %v", err)
	}
	for _, v := range variants {
		if v.ID == variantID {
			return v.StockOnHand
		}
	}
	t.Fatalf("variant %s not in catalog", variantID)
	return 0
}

func TestVariantsSortedAndActiveOnly(t *testing.T) {
	s := NewSeeded()
	s.UpsertVariant(domain.Variant{ID: "var-arsip", SKU: "ARS-1", Name: "Arsip Lama", Active: false})

	variants, err := s.Variants(context.Background())
	if err != nil {
		t.Fatalf("variants: %v", err)
	}
	for _, v := range variants {
		if v.ID == "var-arsip" {
			t.Fatalf("inactive variant leaked into the catalog")
		}
	}
	for i := 1; i < len(variants); i++ {
		prev, cur := variants[i-1], variants[i]
		if prev.Name > cur.Name || (prev.Name == cur.Name && prev.SKU > cur.SKU) {
			t.Fatalf("catalog not sorted at %d: %s/%s before %s/%s", i, prev.Name, prev.SKU, cur.Name, cur.SKU)
		}
	}
}

func TestSearchCustomers(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	byName, err := s.SearchCustomers(ctx, "budi", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(byName) != 1 || byName[0].ID != "cust-budi" {
		t.Fatalf("expected cust-budi, got %+v", byName)
	}

	byPhone, err := s.SearchCustomers(ctx, "67802", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(byPhone) != 1 || byPhone[0].ID != "cust-siti" {
		t.Fatalf("expected cust-siti by phone fragment, got %+v", byPhone)
	}

	all, err := s.SearchCustomers(ctx, "", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(all) != 4 || all[0].Name != "Agus Wijaya" {
		t.Fatalf("expected all customers sorted by name, got %+v", all)
	}

	capped, err := s.SearchCustomers(ctx, "", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(capped) != 2 {
		t.Fatalf("expected limit 2, got %d", len(capped))
	}
}

func TestFindCustomer(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	c, err := s.FindCustomer(ctx, "cust-dewi")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if c.Name != "Dewi Lestari" {
		t.Fatalf("expected Dewi Lestari, got %s", c.Name)
	}

	if _, err := s.FindCustomer(ctx, "cust-nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateSaleDecrementsStock(t *testing.T) {
	s := NewSeeded()

	sale, err := s.CreateSale(context.Background(), kaosDraft(2, ""))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.ID == "" || sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("unexpected sale identity: %+v", sale)
	}
	if sale.Duplicate {
		t.Fatalf("fresh sale must not be marked duplicate")
	}
	if got := stockOf(t, s, "var-kaos-put-m"); got != 22 {
		t.Fatalf("expected stock 22 after sale, got %d", got)
	}
}

func TestCreateSaleRejectsOversell(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.CreateSale(ctx, kaosDraft(30, "")); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := stockOf(t, s, "var-kaos-put-m"); got != 24 {
		t.Fatalf("rejected sale must not touch stock, got %d", got)
	}

	tas := domain.SaleDraft{
		Branch:        "main",
		Cashier:       "kasir-1",
		Lines:         []domain.SaleLine{{VariantID: "var-tas-hit", Quantity: 1, UnitPriceCents: 135000}},
		SubtotalCents: 135000,
		TotalCents:    135000,
		DiscountMode:  domain.DiscountModeAmount,
		PaymentMethod: domain.PaymentMethodCash,
	}
	if _, err := s.CreateSale(ctx, tas); !errors.Is(err, store.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock for empty shelf, got %v", err)
	}
}

func TestCreateSaleValidatesArithmetic(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	empty := kaosDraft(1, "")
	empty.Lines = nil
	if _, err := s.CreateSale(ctx, empty); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for empty lines, got %v", err)
	}

	wrongSubtotal := kaosDraft(2, "")
	wrongSubtotal.SubtotalCents = 99999
	wrongSubtotal.TotalCents = 99999
	if _, err := s.CreateSale(ctx, wrongSubtotal); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for subtotal mismatch, got %v", err)
	}

	bigDiscount := kaosDraft(1, "")
	bigDiscount.DiscountCents = 60000
	bigDiscount.TotalCents = -5000
	if _, err := s.CreateSale(ctx, bigDiscount); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for oversized discount, got %v", err)
	}

	wrongTotal := kaosDraft(1, "")
	wrongTotal.DiscountCents = 5000
	if _, err := s.CreateSale(ctx, wrongTotal); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for total mismatch, got %v", err)
	}

	zeroQty := kaosDraft(1, "")
	zeroQty.Lines[0].Quantity = 0
	zeroQty.SubtotalCents = 0
	zeroQty.TotalCents = 0
	if _, err := s.CreateSale(ctx, zeroQty); !errors.Is(err, store.ErrInvalidSale) {
		t.Fatalf("expected ErrInvalidSale for zero quantity, got %v", err)
	}
}

func TestCreateSaleClientRefIdempotent(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	first, err := s.CreateSale(ctx, kaosDraft(1, "ref-777"))
	if err != nil {
		t.Fatalf("first sale: %v", err)
	}

	second, err := s.CreateSale(ctx, kaosDraft(1, "ref-777"))
	if err != nil {
		t.Fatalf("replay sale: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected replay to be marked duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("expected replay to return sale %s, got %s", first.ID, second.ID)
	}
	if got := stockOf(t, s, "var-kaos-put-m"); got != 23 {
		t.Fatalf("replay must not decrement stock twice, got %d", got)
	}
}

func TestCreateSaleReturnsDetachedCopy(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, kaosDraft(1, "ref-copy"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	sale.Lines[0].Quantity = 99
	sale.TotalCents = 1

	stored, err := s.FindSaleByClientRef(ctx, "ref-copy")
	if err != nil {
		t.Fatalf("find by ref: %v", err)
	}
	if stored.Lines[0].Quantity != 1 || stored.TotalCents != 55000 {
		t.Fatalf("store aliased the returned sale: %+v", stored)
	}
}

func TestFindSaleByClientRefMiss(t *testing.T) {
	s := NewSeeded()

	if _, err := s.FindSaleByClientRef(context.Background(), "ref-ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExchangeRate(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	rate, err := s.ExchangeRate(ctx)
	if err != nil {
		t.Fatalf("exchange rate: %v", err)
	}
	if rate != 1.0 {
		t.Fatalf("expected parity default, got %v", rate)
	}

	s.SetExchangeRate(2.5)
	rate, err = s.ExchangeRate(ctx)
	if err != nil {
		t.Fatalf("exchange rate: %v", err)
	}
	if rate != 2.5 {
		t.Fatalf("expected 2.5, got %v", rate)
	}
}

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"tokokasir/terminal/internal/domain"
)

func TestCreateSaleDecrementsStockAndReplaysRef(t *testing.T) {
	databaseURL := os.Getenv("TERMINAL_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TERMINAL_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	variantID := fmt.Sprintf("var-sale-it-%d", stamp)
	clientRef := fmt.Sprintf("ref-sale-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE variant_id = $1`, variantID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE client_ref = $1`, clientRef)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM variants WHERE id = $1`, variantID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO variants (id, sku, barcode, name, sale_price_cents, purchase_cost_cents, stock_on_hand, active)
		VALUES ($1, $2, $3, 'Kaos Integrasi', 55000, 30000, 10, true)
	`, variantID, fmt.Sprintf("SKU-IT-%d", stamp), fmt.Sprintf("899%d", stamp%10000000000)); err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	draft := domain.SaleDraft{
		Branch:  "main",
		Cashier: "kasir-it",
		Lines: []domain.SaleLine{{
			VariantID:      variantID,
			SKU:            fmt.Sprintf("SKU-IT-%d", stamp),
			Name:           "Kaos Integrasi",
			Quantity:       2,
			UnitPriceCents: 55000,
			UnitCostCents:  30000,
		}},
		SubtotalCents: 110000,
		DiscountCents: 10000,
		TotalCents:    100000,
		DiscountMode:  domain.DiscountModeAmount,
		PaymentMethod: domain.PaymentMethodCash,
		ClientRef:     clientRef,
	}

	sale, err := s.CreateSale(ctx, draft)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.Duplicate {
		t.Fatalf("first commit must not be marked duplicate")
	}

	var stock int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock_on_hand
		FROM variants
		WHERE id = $1
	`, variantID).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", stock)
	}

	replay, err := s.CreateSale(ctx, draft)
	if err != nil {
		t.Fatalf("replay sale: %v", err)
	}
	if !replay.Duplicate {
		t.Fatalf("expected replayed client ref to be marked duplicate")
	}
	if replay.ID != sale.ID {
		t.Fatalf("expected replay to return sale %s, got %s", sale.ID, replay.ID)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT stock_on_hand
		FROM variants
		WHERE id = $1
	`, variantID).Scan(&stock); err != nil {
		t.Fatalf("query stock after replay: %v", err)
	}
	if stock != 8 {
		t.Fatalf("expected replay to leave stock at 8, got %d", stock)
	}
}

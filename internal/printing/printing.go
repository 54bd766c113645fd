// Package printing hands completed sales to a receipt device. The terminal
// treats printing as fire-and-forget: a failed print never rolls back a sale.
package printing

import (
	"context"
	"log"

	"tokokasir/terminal/internal/domain"
)

// Noop drops every print request. Used when no printer is attached.
type Noop struct{}

func (Noop) PrintSale(context.Context, *domain.Sale) error { return nil }

// LogPrinter writes a one-line receipt summary to the process log. It stands
// in for a real ESC/POS driver during development.
type LogPrinter struct{}

func (LogPrinter) PrintSale(_ context.Context, sale *domain.Sale) error {
	if sale == nil {
		return nil
	}
	var items int64
	for _, line := range sale.Lines {
		items += line.Quantity
	}
	log.Printf("[printing] sale=%s branch=%s cashier=%s items=%d total_cents=%d payment=%s",
		sale.ID, sale.Branch, sale.Cashier, items, sale.TotalCents, sale.PaymentMethod)
	return nil
}

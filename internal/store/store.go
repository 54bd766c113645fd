package store

import (
	"context"
	"errors"

	"tokokasir/terminal/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrOutOfStock        = errors.New("out of stock")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
)

type Repository interface {
	Variants(ctx context.Context) ([]domain.Variant, error)
	SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)
	FindCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	ExchangeRate(ctx context.Context) (float64, error)
	FindSaleByClientRef(ctx context.Context, clientRef string) (*domain.Sale, error)
	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
}

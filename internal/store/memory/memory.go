package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tokokasir/terminal/internal/domain"
	"tokokasir/terminal/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	variantsByID  map[string]domain.Variant
	customersByID map[string]domain.Customer
	salesByID     map[string]*domain.Sale
	salesByRef    map[string]*domain.Sale
	exchangeRate  float64
}

func New() *Store {
	return &Store{
		variantsByID:  make(map[string]domain.Variant),
		customersByID: make(map[string]domain.Customer),
		salesByID:     make(map[string]*domain.Sale),
		salesByRef:    make(map[string]*domain.Sale),
		exchangeRate:  1.0,
	}
}

func NewSeeded() *Store {
	variants := []domain.Variant{
		{ID: "var-kaos-put-m", SKU: "KAOS-PUT-M", Barcode: "8991234500017", Name: "Kaos Polos Katun", Color: "Putih", Size: "M", SalePriceCents: 55000, PurchaseCostCents: 31000, StockOnHand: 24, Active: true},
		{ID: "var-kaos-hit-l", SKU: "KAOS-HIT-L", Barcode: "8991234500024", Name: "Kaos Polos Katun", Color: "Hitam", Size: "L", SalePriceCents: 55000, PurchaseCostCents: 31000, StockOnHand: 18, Active: true},
		{ID: "var-kemeja-bir-m", SKU: "KMJ-BIR-M", Barcode: "8991234500031", Name: "Kemeja Flanel", Color: "Biru", Size: "M", SalePriceCents: 129000, PurchaseCostCents: 78000, StockOnHand: 9, Active: true},
		{ID: "var-kemeja-mer-l", SKU: "KMJ-MER-L", Barcode: "8991234500048", Name: "Kemeja Flanel", Color: "Merah", Size: "L", SalePriceCents: 129000, PurchaseCostCents: 78000, StockOnHand: 7, Active: true},
		{ID: "var-chino-kha-32", SKU: "CHN-KHA-32", Barcode: "8991234500055", Name: "Celana Chino", Color: "Khaki", Size: "32", SalePriceCents: 159000, PurchaseCostCents: 94000, StockOnHand: 11, Active: true},
		{ID: "var-hoodie-abu-xl", SKU: "HOD-ABU-XL", Barcode: "8991234500062", Name: "Jaket Hoodie", Color: "Abu", Size: "XL", SalePriceCents: 189000, PurchaseCostCents: 112000, StockOnHand: 6, Active: true},
		{ID: "var-dress-nav-s", SKU: "DRS-NAV-S", Barcode: "8991234500079", Name: "Dress Midi", Color: "Navy", Size: "S", SalePriceCents: 175000, PurchaseCostCents: 101000, StockOnHand: 5, Active: true},
		{ID: "var-rok-hit-m", SKU: "ROK-HIT-M", Barcode: "8991234500086", Name: "Rok Plisket", Color: "Hitam", Size: "M", SalePriceCents: 98000, PurchaseCostCents: 54000, StockOnHand: 13, Active: true},
		{ID: "var-topi-hit", SKU: "TOPI-HIT", Barcode: "012345678905", Name: "Topi Baseball", Color: "Hitam", SalePriceCents: 45000, PurchaseCostCents: 22000, StockOnHand: 30, Active: true},
		{ID: "var-kaoskaki-put", SKU: "KSK-PUT", Barcode: "8991234500109", Name: "Kaos Kaki Sport", Color: "Putih", SalePriceCents: 18000, PurchaseCostCents: 8500, StockOnHand: 60, Active: true},
		{ID: "var-sabuk-cok", SKU: "SBK-COK", Barcode: "8991234500116", Name: "Ikat Pinggang Kulit", Color: "Coklat", SalePriceCents: 85000, PurchaseCostCents: 47000, StockOnHand: 8, Active: true},
		{ID: "var-tas-hit", SKU: "TAS-HIT", Barcode: "8991234500123", Name: "Tas Selempang", Color: "Hitam", SalePriceCents: 135000, PurchaseCostCents: 76000, StockOnHand: 0, Active: true},
	}

	customers := []domain.Customer{
		{ID: "cust-budi", Name: "Budi Santoso", Phone: "081234567801"},
		{ID: "cust-siti", Name: "Siti Rahayu", Phone: "081234567802"},
		{ID: "cust-agus", Name: "Agus Wijaya", Phone: "081234567803"},
		{ID: "cust-dewi", Name: "Dewi Lestari", Phone: "081234567804"},
	}

	s := New()
	for _, v := range variants {
		s.variantsByID[v.ID] = v
	}
	for _, c := range customers {
		s.customersByID[c.ID] = c
	}
	return s
}

func (s *Store) Variants(_ context.Context) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := make([]domain.Variant, 0, len(s.variantsByID))
	for _, v := range s.variantsByID {
		if !v.Active {
			continue
		}
		variants = append(variants, v)
	}

	slices.SortFunc(variants, func(a, b domain.Variant) int {
		if a.Name == b.Name {
			return cmpString(a.SKU, b.SKU)
		}
		return cmpString(a.Name, b.Name)
	})

	return variants, nil
}

func (s *Store) SearchCustomers(_ context.Context, query string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) && !strings.Contains(c.Phone, q) {
			continue
		}
		customers = append(customers, c)
	}

	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	if limit > 0 && len(customers) > limit {
		customers = customers[:limit]
	}

	return customers, nil
}

func (s *Store) FindCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customersByID[customerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := c
	return &dup, nil
}

func (s *Store) ExchangeRate(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exchangeRate, nil
}

func (s *Store) FindSaleByClientRef(_ context.Context, clientRef string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByRef[clientRef]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) CreateSale(_ context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(draft.Lines) == 0 {
		return nil, store.ErrInvalidSale
	}
	if draft.ClientRef != "" {
		if existing, ok := s.salesByRef[draft.ClientRef]; ok {
			dup := cloneSale(existing)
			dup.Duplicate = true
			return dup, nil
		}
	}
	var subtotal int64
	for _, line := range draft.Lines {
		subtotal += line.UnitPriceCents * line.Quantity
	}
	if draft.SubtotalCents != subtotal {
		return nil, store.ErrInvalidSale
	}
	if draft.DiscountCents < 0 || draft.DiscountCents > draft.SubtotalCents {
		return nil, store.ErrInvalidSale
	}
	if draft.TotalCents != draft.SubtotalCents-draft.DiscountCents {
		return nil, store.ErrInvalidSale
	}

	// Re-check live stock before any decrement; another terminal may have
	// sold the same variant since the caller last refreshed.
	for _, line := range draft.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidSale
		}
		v, ok := s.variantsByID[line.VariantID]
		if !ok || !v.Active || v.StockOnHand <= 0 {
			return nil, store.ErrOutOfStock
		}
		if v.StockOnHand < line.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}
	for _, line := range draft.Lines {
		v := s.variantsByID[line.VariantID]
		v.StockOnHand -= line.Quantity
		s.variantsByID[line.VariantID] = v
	}

	lines := make([]domain.SaleLine, len(draft.Lines))
	copy(lines, draft.Lines)

	sale := &domain.Sale{
		ID:            uuid.NewString(),
		Branch:        draft.Branch,
		Cashier:       draft.Cashier,
		CustomerID:    draft.CustomerID,
		Lines:         lines,
		SubtotalCents: draft.SubtotalCents,
		DiscountCents: draft.DiscountCents,
		TotalCents:    draft.TotalCents,
		DiscountMode:  draft.DiscountMode,
		PaymentMethod: draft.PaymentMethod,
		ClientRef:     draft.ClientRef,
		Status:        domain.SaleStatusCompleted,
		CreatedAt:     draft.CreatedAt,
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	s.salesByID[sale.ID] = sale
	if sale.ClientRef != "" {
		s.salesByRef[sale.ClientRef] = sale
	}
	return cloneSale(sale), nil
}

// SetStock overrides a variant's on-hand quantity. Seed/test helper.
func (s *Store) SetStock(variantID string, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variantsByID[variantID]
	if !ok {
		return
	}
	v.StockOnHand = qty
	s.variantsByID[variantID] = v
}

// SetExchangeRate overrides the seeded conversion rate. Seed/test helper.
func (s *Store) SetExchangeRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchangeRate = rate
}

// UpsertVariant inserts or replaces a catalog variant. Seed/test helper.
func (s *Store) UpsertVariant(v domain.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variantsByID[v.ID] = v
}

// RemoveVariant deletes a variant from the catalog. Seed/test helper.
func (s *Store) RemoveVariant(variantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.variantsByID, variantID)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dupLines := make([]domain.SaleLine, len(src.Lines))
	copy(dupLines, src.Lines)
	dup.Lines = dupLines
	return &dup
}

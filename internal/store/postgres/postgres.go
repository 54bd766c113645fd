package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokokasir/terminal/internal/domain"
	"tokokasir/terminal/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Variants(ctx context.Context) ([]domain.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, barcode, name, COALESCE(color,''), COALESCE(size,''),
			sale_price_cents, purchase_cost_cents, stock_on_hand, active
		FROM variants
		WHERE active = true
		ORDER BY name, sku
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0, 128)
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.SKU, &v.Barcode, &v.Name, &v.Color, &v.Size,
			&v.SalePriceCents, &v.PurchaseCostCents, &v.StockOnHand, &v.Active); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return variants, nil
}

func (s *Store) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 10
	}
	pattern := "%" + strings.TrimSpace(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,'')
		FROM customers
		WHERE name ILIKE $1 OR phone LIKE $1
		ORDER BY name
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return customers, nil
}

func (s *Store) FindCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,'')
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&c.ID, &c.Name, &c.Phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ExchangeRate returns the most recent purchase-currency rate. A store with
// no rate rows trades at par.
func (s *Store) ExchangeRate(ctx context.Context) (float64, error) {
	var rate float64
	err := s.db.QueryRowContext(ctx, `
		SELECT rate
		FROM exchange_rates
		ORDER BY effective_at DESC
		LIMIT 1
	`).Scan(&rate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 1.0, nil
		}
		return 0, err
	}
	if rate <= 0 {
		return 1.0, nil
	}
	return rate, nil
}

func (s *Store) FindSaleByClientRef(ctx context.Context, clientRef string) (*domain.Sale, error) {
	if clientRef == "" {
		return nil, store.ErrNotFound
	}

	var sale domain.Sale
	var customerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, branch, cashier, customer_id, subtotal_cents, discount_cents,
			total_cents, discount_mode, payment_method, client_ref, status, created_at
		FROM sales
		WHERE client_ref = $1
	`, clientRef).Scan(
		&sale.ID,
		&sale.Branch,
		&sale.Cashier,
		&customerID,
		&sale.SubtotalCents,
		&sale.DiscountCents,
		&sale.TotalCents,
		&sale.DiscountMode,
		&sale.PaymentMethod,
		&sale.ClientRef,
		&sale.Status,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerID.Valid {
		sale.CustomerID = customerID.String
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT variant_id, sku, name, qty, unit_price_cents, unit_cost_cents
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY id ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.VariantID, &line.SKU, &line.Name, &line.Quantity,
			&line.UnitPriceCents, &line.UnitCostCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.Lines = lines

	return &sale, nil
}

// CreateSale commits a terminal draft in one serializable transaction. Stock
// rows are locked and re-checked so two terminals can never oversell the
// same variant; a replayed client_ref returns the original sale unchanged.
func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Lines) == 0 {
		return nil, store.ErrInvalidSale
	}
	var subtotal int64
	for _, line := range draft.Lines {
		if line.Quantity < 1 || line.VariantID == "" {
			return nil, store.ErrInvalidSale
		}
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	ids := uniqueVariantIDs(draft.Lines)
	stockRows, err := pgTx.QueryContext(ctx, `
		SELECT id, stock_on_hand, active
		FROM variants
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	type variantState struct {
		stock  int64
		active bool
	}
	stockMap := make(map[string]variantState, len(ids))
	for stockRows.Next() {
		var id string
		var state variantState
		if err := stockRows.Scan(&id, &state.stock, &state.active); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		stockMap[id] = state
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	for _, line := range draft.Lines {
		state, exists := stockMap[line.VariantID]
		if !exists || !state.active || state.stock <= 0 {
			return nil, store.ErrOutOfStock
		}
		if state.stock < line.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}

	for _, line := range draft.Lines {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE variants
			SET stock_on_hand = stock_on_hand - $1, updated_at = now()
			WHERE id = $2
		`, line.Quantity, line.VariantID)
		if err != nil {
			return nil, err
		}
	}

	sale := domain.Sale{
		ID:            uuid.NewString(),
		Branch:        draft.Branch,
		Cashier:       draft.Cashier,
		CustomerID:    draft.CustomerID,
		Lines:         draft.Lines,
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, branch, cashier, customer_id, subtotal_cents, discount_cents,
			total_cents, discount_mode, payment_method, client_ref, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.Branch, sale.Cashier, nullIfEmpty(sale.CustomerID),
		sale.SubtotalCents, sale.DiscountCents, sale.TotalCents, sale.DiscountMode,
		sale.PaymentMethod, nullIfEmpty(sale.ClientRef), sale.Status, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) && sale.ClientRef != "" {
			existing, lookupErr := s.FindSaleByClientRef(ctx, sale.ClientRef)
			if lookupErr == nil {
				existing.Duplicate = true
				return existing, nil
			}
		}
		return nil, err
	}

	for _, line := range sale.Lines {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, variant_id, sku, name, qty, unit_price_cents, unit_cost_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, line.VariantID, line.SKU, line.Name, line.Quantity, line.UnitPriceCents, line.UnitCostCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func uniqueVariantIDs(lines []domain.SaleLine) []string {
	set := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.VariantID == "" {
			continue
		}
		set[line.VariantID] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

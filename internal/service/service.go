package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"tokokasir/terminal/internal/catalog"
	"tokokasir/terminal/internal/discount"
	"tokokasir/terminal/internal/domain"
	"tokokasir/terminal/internal/identity"
	"tokokasir/terminal/internal/kv"
	"tokokasir/terminal/internal/recommendation"
	"tokokasir/terminal/internal/scan"
	"tokokasir/terminal/internal/store"
	"tokokasir/terminal/internal/xid"
)

type operatorContextKey struct{}

func WithOperator(ctx context.Context, op domain.Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, op)
}

func OperatorFromContext(ctx context.Context) (domain.Operator, bool) {
	op, ok := ctx.Value(operatorContextKey{}).(domain.Operator)
	return op, ok
}

var (
	ErrInvalidProfile = errors.New("profile index out of range")
	ErrCommitInFlight = errors.New("checkout already in flight")
	ErrEmptyCart      = errors.New("cart is empty")
)

// StockIssue describes one cart line the stock guard rejected.
type StockIssue struct {
	VariantID    string `json:"variant_id"`
	SKU          string `json:"sku,omitempty"`
	Name         string `json:"name,omitempty"`
	RequestedQty int64  `json:"requested_qty"`
	AvailableQty int64  `json:"available_qty"`
}

// CheckoutBlockedError reports every failing line at once so the cashier
// fixes the cart in one pass. Removed covers variants gone from the catalog
// or fully out of stock; Insufficient covers lines asking for more than
// remains. Either set being non-empty blocks the whole commit.
type CheckoutBlockedError struct {
	Removed      []StockIssue `json:"removed,omitempty"`
	Insufficient []StockIssue `json:"insufficient,omitempty"`
}

func (e *CheckoutBlockedError) Error() string {
	return fmt.Sprintf("checkout blocked: %d removed, %d insufficient", len(e.Removed), len(e.Insufficient))
}

// Printer receives a completed sale for receipt output. Print failures are
// logged and never undo the sale.
type Printer interface {
	PrintSale(ctx context.Context, sale *domain.Sale) error
}

const (
	profilesKey    = "terminal:profiles"
	activeIndexKey = "terminal:active"
)

// storedProfile is the persisted shape of a cart profile. Transient fields
// (success, error, isSubmitting) never reach the store.
type storedProfile struct {
	Cart               []domain.CartLine `json:"cart"`
	SelectedCustomerID string            `json:"selected_customer_id,omitempty"`
	DiscountMode       string            `json:"discount_mode"`
	DiscountValue      float64           `json:"discount_value"`
	IsManualDiscount   bool              `json:"is_manual_discount"`
	PaymentMethod      string            `json:"payment_method"`
}

type Config struct {
	ProfileCount  int
	Operator      domain.Operator
	Scan          scan.Config
	CustomerLimit int
	Now           func() time.Time
}

type Service struct {
	mu          sync.Mutex
	repo        store.Repository
	kvstore     kv.Store
	printer     Printer
	capture     *scan.Capture
	upsell      *recommendation.Engine
	profiles    []domain.CartProfile
	prompts     []int
	active      int
	snapshot    []domain.Variant
	refreshedAt time.Time
	version     uint64
	backendDown bool
	decayTimer  *time.Timer

	defaultOperator domain.Operator
	customerLimit   int
	now             func() time.Time
}

func New(repo store.Repository, kvstore kv.Store, printer Printer, cfg Config) *Service {
	if cfg.ProfileCount <= 0 {
		cfg.ProfileCount = 4
	}
	if cfg.CustomerLimit <= 0 {
		cfg.CustomerLimit = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Scan.Now == nil {
		cfg.Scan.Now = cfg.Now
	}
	if cfg.Operator.Branch == "" {
		cfg.Operator.Branch = "main"
	}
	if cfg.Operator.Cashier == "" {
		cfg.Operator.Cashier = "kasir-1"
	}
	if cfg.Operator.Role == "" {
		cfg.Operator.Role = domain.RoleCashier
	}

	s := &Service{
		repo:            repo,
		kvstore:         kvstore,
		printer:         printer,
		capture:         scan.New(cfg.Scan),
		upsell:          recommendation.NewEngine(),
		profiles:        defaultProfiles(cfg.ProfileCount),
		prompts:         make([]int, cfg.ProfileCount),
		defaultOperator: cfg.Operator,
		customerLimit:   cfg.CustomerLimit,
		now:             cfg.Now,
	}

	// Rehydration runs before the server accepts requests; no request
	// context exists yet.
	s.rehydrate(context.Background())
	return s
}

// Close stops the decay timer. Safe to call once during shutdown.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.decayTimer != nil {
		s.decayTimer.Stop()
		s.decayTimer = nil
	}
}

// Keystroke feeds one raw keyboard event into the capture machine. A token
// that resolves lands in the cart; resolve and stock failures surface as
// transient profile errors, so the caller only sees the capture outcome.
func (s *Service) Keystroke(ctx context.Context, key, target string) domain.KeyEventResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.capture.Press(scan.KeyEvent{Key: key, Target: target})
	s.armDecayLocked()
	if res.Emitted {
		if _, err := s.scanLocked(ctx, res.Token); err != nil {
			log.Printf("[service] scan token %q rejected: %v", res.Token, err)
		}
	}
	return domain.KeyEventResponse{Emitted: res.Emitted, SuppressKey: res.SuppressKey, Token: res.Token}
}

// FlushScan drains a decayed capture buffer. The decay timer calls it; tests
// with a fake clock drive it directly.
func (s *Service) FlushScan(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.capture.FlushDue()
	s.armDecayLocked()
	if !res.Emitted {
		return
	}
	if _, err := s.scanLocked(ctx, res.Token); err != nil {
		log.Printf("[service] scan token %q rejected: %v", res.Token, err)
	}
}

func (s *Service) Scan(ctx context.Context, token string) (domain.ProfileView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanLocked(ctx, token)
}

func (s *Service) AddItem(ctx context.Context, variantID string) (domain.ProfileView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.profiles[s.active]
	s.clearTransientLocked(p)

	v := s.variantByIDLocked(variantID)
	if v == nil {
		p.Error = "item is no longer in the catalog"
		s.bumpLocked()
		return s.viewLocked(s.active), store.ErrNotFound
	}
	if err := s.addVariantLocked(p, v); err != nil {
		s.bumpLocked()
		return s.viewLocked(s.active), err
	}

	s.recomputeLocked(p)
	s.bumpLocked()
	s.persistProfilesLocked(ctx)
	return s.viewLocked(s.active), nil
}

func (s *Service) UpdateQuantity(ctx context.Context, variantID string, delta int64) (domain.ProfileView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.profiles[s.active]
	s.clearTransientLocked(p)

	for i := range p.Cart {
		line := &p.Cart[i]
		if line.VariantID != variantID {
			continue
		}
		next := line.Quantity + delta
		if next < 1 {
			// Decrementing through zero removes the line.
			p.Cart = append(p.Cart[:i], p.Cart[i+1:]...)
			s.recomputeLocked(p)
			s.bumpLocked()
			s.persistProfilesLocked(ctx)
			return s.viewLocked(s.active), nil
		}
		if delta > 0 && line.Variant != nil && next > line.Variant.StockOnHand {
			p.Error = fmt.Sprintf("only %d left of %s", line.Variant.StockOnHand, line.Variant.Name)
			s.bumpLocked()
			return s.viewLocked(s.active), store.ErrInsufficientStock
		}
		line.Quantity = next
		s.recomputeLocked(p)
		s.bumpLocked()
		s.persistProfilesLocked(ctx)
		return s.viewLocked(s.active), nil
	}

	p.Error = "item is not in the cart"
	s.bumpLocked()
	return s.viewLocked(s.active), store.ErrNotFound
}

// RemoveItem drops a line from the active cart. Removing an absent line is
// a no-op.
func (s *Service) RemoveItem(ctx context.Context, variantID string) domain.ProfileView {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.profiles[s.active]
	s.clearTransientLocked(p)

	kept := p.Cart[:0]
	for _, line := range p.Cart {
		if line.VariantID != variantID {
			kept = append(kept, line)
		}
	}
	p.Cart = kept

	s.recomputeLocked(p)
	s.bumpLocked()
	s.persistProfilesLocked(ctx)
	return s.viewLocked(s.active)
}

func (s *Service) ClearCart(ctx context.Context) domain.ProfileView {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.profiles[s.active]
	s.clearTransientLocked(p)
	p.Cart = p.Cart[:0]
	s.prompts[s.active] = 0

	s.recomputeLocked(p)
	s.bumpLocked()
	s.persistProfilesLocked(ctx)
	return s.viewLocked(s.active)
}

// SwitchProfile changes the active cart. The profile being left keeps its
// full state, transients included.
func (s *Service) SwitchProfile(ctx context.Context, index int) (domain.TerminalState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.profiles) {
		return domain.TerminalState{}, ErrInvalidProfile
	}
	s.active = index
	s.bumpLocked()
	s.persistActiveLocked(ctx)
	return s.stateLocked(), nil
}

// SetDiscountMode switches the discount mode and resets the value to the
// mode's neutral default, re-attaching final-price auto-tracking.
func (s *Service) SetDiscountMode(ctx context.Context, mode string) (domain.ProfileView, error) {
	if !isDiscountMode(mode) {
		return domain.ProfileView{}, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.profiles[s.active]
	s.clearTransientLocked(p)
	p.DiscountMode = mode
	p.DiscountValue = discount.DefaultValue(mode, subtotalCents(p.Cart))
	p.IsManualDiscount = false

	s.bumpLocked()
	s.persistProfilesLocked(ctx)
	return s.viewLocked(s.active), nil
}

func (s *Service) SetDiscountValue(ctx context.Context, value float64) (domain.ProfileView, error) {
	if value < 0 {
		return domain.ProfileView{}, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.profiles[s.active]
	s.clearTransientLocked(p)
	p.DiscountValue = value
	p.IsManualDiscount = true

	s.bumpLocked()
	s.persistProfilesLocked(ctx)
	return s.viewLocked(s.active), nil
}

// SetCustomer attaches a directory customer to the active profile. An empty
// id detaches.
func (s *Service) SetCustomer(ctx context.Context, customerID string) (domain.ProfileView, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID != "" {
		if _, err := s.repo.FindCustomer(ctx, customerID); err != nil {
			return domain.ProfileView{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.profiles[s.active]
	s.clearTransientLocked(p)
	p.SelectedCustomerID = customerID

	s.bumpLocked()
	s.persistProfilesLocked(ctx)
	return s.viewLocked(s.active), nil
}

func (s *Service) SetPaymentMethod(ctx context.Context, method string) (domain.ProfileView, error) {
	if !isPaymentMethod(method) {
		return domain.ProfileView{}, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &s.profiles[s.active]
	s.clearTransientLocked(p)
	p.PaymentMethod = method

	s.bumpLocked()
	s.persistProfilesLocked(ctx)
	return s.viewLocked(s.active), nil
}

// Checkout assembles and commits the active cart as a sale. The cart is
// re-validated against the latest catalog snapshot first; any rejected line
// blocks the whole commit. On success the profile resets to defaults, on
// failure the cart stays exactly as it was.
func (s *Service) Checkout(ctx context.Context, clientRef string) (domain.CheckoutResponse, error) {
	op, ok := OperatorFromContext(ctx)
	if !ok {
		op = s.defaultOperator
	}
	clientRef = strings.TrimSpace(clientRef)
	if clientRef == "" {
		// Mint a ref so a retried commit is still deduplicated even when
		// the panel never supplied one.
		clientRef = xid.New("tx")
	}

	s.mu.Lock()
	index := s.active
	p := &s.profiles[index]
	if p.IsSubmitting {
		s.mu.Unlock()
		return domain.CheckoutResponse{}, ErrCommitInFlight
	}
	s.clearTransientLocked(p)
	if len(p.Cart) == 0 {
		s.mu.Unlock()
		return domain.CheckoutResponse{}, ErrEmptyCart
	}

	lines, blocked := s.resolveForCommitLocked(p.Cart)
	if blocked != nil {
		p.Error = blockedMessage(blocked)
		s.bumpLocked()
		s.mu.Unlock()
		return domain.CheckoutResponse{}, blocked
	}

	var subtotal int64
	for _, line := range lines {
		subtotal += line.UnitPriceCents * line.Quantity
	}
	value := p.DiscountValue
	if p.DiscountMode == domain.DiscountModeFinalPrice && !p.IsManualDiscount {
		// Auto-tracked final price follows the commit-time subtotal, so a
		// price change since the last render cannot smuggle in a discount.
		value = float64(subtotal)
	}
	discountCents, totalCents := discount.Compute(subtotal, p.DiscountMode, value)

	draft := domain.SaleDraft{
		Branch:        op.Branch,
		Cashier:       op.Cashier,
		CustomerID:    p.SelectedCustomerID,
		Lines:         lines,
		SubtotalCents: subtotal,
		DiscountCents: discountCents,
		TotalCents:    totalCents,
		DiscountMode:  p.DiscountMode,
		PaymentMethod: p.PaymentMethod,
		ClientRef:     clientRef,
		CreatedAt:     s.now().UTC(),
	}
	p.IsSubmitting = true
	s.bumpLocked()
	s.mu.Unlock()

	sale, err := s.repo.CreateSale(ctx, draft)

	s.mu.Lock()
	p = &s.profiles[index]
	p.IsSubmitting = false
	if err != nil {
		if isStockRejection(err) {
			p.Error = "stock changed while saving; review the cart"
		} else {
			p.Error = "sale could not be saved; cart kept for retry"
			s.backendDown = true
		}
		log.Printf("[service] WARN: create sale failed ref=%s: %v", clientRef, err)
		s.bumpLocked()
		s.mu.Unlock()
		return domain.CheckoutResponse{}, err
	}

	s.profiles[index] = defaultProfile()
	s.prompts[index] = 0
	p = &s.profiles[index]
	p.Success = fmt.Sprintf("sale %s saved", sale.ID)
	s.backendDown = false
	s.bumpLocked()
	s.persistProfilesLocked(ctx)
	resp := domain.CheckoutResponse{Sale: *sale, Profile: s.viewLocked(index)}
	s.mu.Unlock()

	if s.printer != nil {
		if err := s.printer.PrintSale(ctx, sale); err != nil {
			log.Printf("[service] WARN: print sale %s: %v", sale.ID, err)
		}
	}
	return resp, nil
}

// RefreshCatalog pulls the latest variants and re-binds every cart line
// that matches by id. Lines whose variant left the catalog keep their old
// snapshot; the checkout guard owns that case.
func (s *Service) RefreshCatalog(ctx context.Context) error {
	variants, err := s.repo.Variants(ctx)
	if err != nil {
		s.mu.Lock()
		s.backendDown = true
		s.bumpLocked()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = variants
	s.refreshedAt = s.now().UTC()
	s.backendDown = false
	s.rebindLocked()
	for i := range s.profiles {
		s.recomputeLocked(&s.profiles[i])
	}
	s.bumpLocked()
	s.persistProfilesLocked(ctx)
	return nil
}

// RunCatalogRefresh refreshes on a fixed interval until ctx is done.
func (s *Service) RunCatalogRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RefreshCatalog(ctx); err != nil {
				log.Printf("[service] WARN: catalog refresh failed: %v", err)
			}
		}
	}
}

func (s *Service) State() domain.TerminalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Service) Catalog() domain.CatalogResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	variants := make([]domain.Variant, len(s.snapshot))
	copy(variants, s.snapshot)
	resp := domain.CatalogResponse{Variants: variants}
	if !s.refreshedAt.IsZero() {
		t := s.refreshedAt
		resp.RefreshedAt = &t
	}
	return resp
}

func (s *Service) SearchCustomers(ctx context.Context, query string) ([]domain.Customer, error) {
	return s.repo.SearchCustomers(ctx, strings.TrimSpace(query), s.customerLimit)
}

// Suggestion scores the catalog for one add-on item to offer with the active
// cart. Every shown suggestion raises that profile's prompt count, so a panel
// polling after each scan backs off instead of nagging; the count resets when
// the cart empties.
func (s *Service) Suggestion() domain.SuggestionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := s.upsell.Suggest(s.profiles[s.active].Cart, s.snapshot, s.prompts[s.active])
	if resp.Show {
		s.prompts[s.active]++
	}
	return resp
}

// ProfitEstimate prices the active cart at purchase cost. Only owner and
// manager operators may call it; the exchange rate converts costs recorded
// in the purchase currency.
func (s *Service) ProfitEstimate(ctx context.Context) (domain.ProfitEstimateResponse, error) {
	op, ok := OperatorFromContext(ctx)
	if !ok {
		op = s.defaultOperator
	}
	if !identity.CanViewProfit(op) {
		return domain.ProfitEstimateResponse{}, identity.ErrForbidden
	}

	rate, err := s.repo.ExchangeRate(ctx)
	if err != nil {
		return domain.ProfitEstimateResponse{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.active
	p := s.profiles[index]
	lines := make([]domain.SaleLine, 0, len(p.Cart))
	for _, line := range p.Cart {
		if line.Variant == nil {
			continue
		}
		lines = append(lines, domain.SaleLine{
			VariantID:      line.VariantID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.Variant.SalePriceCents,
			UnitCostCents:  line.Variant.PurchaseCostCents,
		})
	}
	subtotal := subtotalCents(p.Cart)
	_, total := discount.Compute(subtotal, p.DiscountMode, p.DiscountValue)
	profit, cost := discount.EstimateProfit(total, lines, rate)

	return domain.ProfitEstimateResponse{
		ProfileIndex: index,
		TotalCents:   total,
		CostCents:    cost,
		ProfitCents:  profit,
		ExchangeRate: rate,
	}, nil
}

func (s *Service) scanLocked(ctx context.Context, token string) (domain.ProfileView, error) {
	p := &s.profiles[s.active]
	s.clearTransientLocked(p)

	v, err := catalog.Resolve(token, s.snapshot)
	if err != nil {
		p.Error = fmt.Sprintf("no item found for code %q", strings.TrimSpace(token))
		s.bumpLocked()
		return s.viewLocked(s.active), err
	}
	if err := s.addVariantLocked(p, v); err != nil {
		s.bumpLocked()
		return s.viewLocked(s.active), err
	}

	s.recomputeLocked(p)
	s.bumpLocked()
	s.persistProfilesLocked(ctx)
	return s.viewLocked(s.active), nil
}

// addVariantLocked is the add-time stock guard: a sold-out variant never
// enters the cart and a merge never pushes a line past on-hand stock.
func (s *Service) addVariantLocked(p *domain.CartProfile, v *domain.Variant) error {
	if v.StockOnHand <= 0 {
		p.Error = fmt.Sprintf("%s is out of stock", v.Name)
		return store.ErrOutOfStock
	}
	for i := range p.Cart {
		if p.Cart[i].VariantID != v.ID {
			continue
		}
		if p.Cart[i].Quantity+1 > v.StockOnHand {
			p.Error = fmt.Sprintf("only %d left of %s", v.StockOnHand, v.Name)
			return store.ErrInsufficientStock
		}
		p.Cart[i].Quantity++
		p.Cart[i].Variant = v
		return nil
	}
	p.Cart = append(p.Cart, domain.CartLine{VariantID: v.ID, Quantity: 1, Variant: v})
	return nil
}

// resolveForCommitLocked re-resolves every cart line against the latest
// snapshot and builds the commit lines with fresh price and cost values.
func (s *Service) resolveForCommitLocked(cart []domain.CartLine) ([]domain.SaleLine, *CheckoutBlockedError) {
	byID := make(map[string]domain.Variant, len(s.snapshot))
	for _, v := range s.snapshot {
		byID[v.ID] = v
	}

	lines := make([]domain.SaleLine, 0, len(cart))
	blocked := &CheckoutBlockedError{}
	for _, line := range cart {
		issue := StockIssue{VariantID: line.VariantID, RequestedQty: line.Quantity}
		if line.Variant != nil {
			issue.SKU = line.Variant.SKU
			issue.Name = line.Variant.Name
		}

		v, ok := byID[line.VariantID]
		if !ok || !v.Active || v.StockOnHand <= 0 {
			blocked.Removed = append(blocked.Removed, issue)
			continue
		}
		if line.Quantity > v.StockOnHand {
			issue.SKU = v.SKU
			issue.Name = v.Name
			issue.AvailableQty = v.StockOnHand
			blocked.Insufficient = append(blocked.Insufficient, issue)
			continue
		}
		lines = append(lines, domain.SaleLine{
			VariantID:      v.ID,
			SKU:            v.SKU,
			Name:           v.Name,
			Quantity:       line.Quantity,
			UnitPriceCents: v.SalePriceCents,
			UnitCostCents:  v.PurchaseCostCents,
		})
	}

	if len(blocked.Removed) > 0 || len(blocked.Insufficient) > 0 {
		return nil, blocked
	}
	return lines, nil
}

// rebindLocked refreshes each resolvable line's variant snapshot after a
// catalog pull. Every line gets its own copy so profiles never alias the
// shared snapshot slice.
func (s *Service) rebindLocked() {
	byID := make(map[string]domain.Variant, len(s.snapshot))
	for _, v := range s.snapshot {
		byID[v.ID] = v
	}
	for pi := range s.profiles {
		cart := s.profiles[pi].Cart
		for li := range cart {
			if v, ok := byID[cart[li].VariantID]; ok {
				dup := v
				cart[li].Variant = &dup
			}
		}
	}
}

// recomputeLocked re-runs final-price auto-tracking after any change that
// can move the subtotal.
func (s *Service) recomputeLocked(p *domain.CartProfile) {
	if p.DiscountMode == domain.DiscountModeFinalPrice && !p.IsManualDiscount {
		p.DiscountValue = float64(subtotalCents(p.Cart))
	}
}

func (s *Service) clearTransientLocked(p *domain.CartProfile) {
	p.Success = ""
	p.Error = ""
}

func (s *Service) bumpLocked() {
	s.version++
}

func (s *Service) variantByIDLocked(variantID string) *domain.Variant {
	for i := range s.snapshot {
		if s.snapshot[i].ID == variantID {
			dup := s.snapshot[i]
			return &dup
		}
	}
	return nil
}

func (s *Service) armDecayLocked() {
	if s.decayTimer != nil {
		s.decayTimer.Stop()
		s.decayTimer = nil
	}
	deadline, ok := s.capture.Deadline()
	if !ok {
		return
	}
	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	s.decayTimer = time.AfterFunc(wait, func() {
		s.FlushScan(context.Background())
	})
}

func (s *Service) viewLocked(index int) domain.ProfileView {
	p := s.profiles[index]
	subtotal := subtotalCents(p.Cart)
	discountCents, totalCents := discount.Compute(subtotal, p.DiscountMode, p.DiscountValue)

	var items int64
	cart := make([]domain.CartLine, len(p.Cart))
	copy(cart, p.Cart)
	for _, line := range cart {
		items += line.Quantity
	}

	return domain.ProfileView{
		Index:              index,
		Cart:               cart,
		SelectedCustomerID: p.SelectedCustomerID,
		DiscountMode:       p.DiscountMode,
		DiscountValue:      p.DiscountValue,
		IsManualDiscount:   p.IsManualDiscount,
		PaymentMethod:      p.PaymentMethod,
		SubtotalCents:      subtotal,
		DiscountCents:      discountCents,
		TotalCents:         totalCents,
		ItemCount:          items,
		Success:            p.Success,
		Error:              p.Error,
		IsSubmitting:       p.IsSubmitting,
	}
}

func (s *Service) stateLocked() domain.TerminalState {
	profiles := make([]domain.ProfileView, len(s.profiles))
	for i := range s.profiles {
		profiles[i] = s.viewLocked(i)
	}
	state := domain.TerminalState{
		Profiles:    profiles,
		ActiveIndex: s.active,
		CatalogSize: len(s.snapshot),
		BackendDown: s.backendDown,
		Version:     s.version,
	}
	if !s.refreshedAt.IsZero() {
		t := s.refreshedAt
		state.CatalogRefreshedAt = &t
	}
	return state
}

// persistProfilesLocked writes all profiles to the key-value store. A write
// failure is logged and flagged, never returned; in-memory state stays
// authoritative for the session.
func (s *Service) persistProfilesLocked(ctx context.Context) {
	stored := make([]storedProfile, len(s.profiles))
	for i, p := range s.profiles {
		cart := make([]domain.CartLine, len(p.Cart))
		copy(cart, p.Cart)
		stored[i] = storedProfile{
			Cart:               cart,
			SelectedCustomerID: p.SelectedCustomerID,
			DiscountMode:       p.DiscountMode,
			DiscountValue:      p.DiscountValue,
			IsManualDiscount:   p.IsManualDiscount,
			PaymentMethod:      p.PaymentMethod,
		}
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		log.Printf("[service] WARN: encode profiles: %v", err)
		return
	}
	if err := s.kvstore.Set(ctx, profilesKey, payload); err != nil {
		log.Printf("[service] WARN: persist profiles: %v", err)
		s.backendDown = true
		return
	}
	s.backendDown = false
}

func (s *Service) persistActiveLocked(ctx context.Context) {
	if err := s.kvstore.Set(ctx, activeIndexKey, []byte(strconv.Itoa(s.active))); err != nil {
		log.Printf("[service] WARN: persist active index: %v", err)
		s.backendDown = true
	}
}

// rehydrate restores persisted profiles and the active index. Anything
// malformed is discarded quietly; a corrupt payload must never keep the
// terminal from starting.
func (s *Service) rehydrate(ctx context.Context) {
	payload, ok, err := s.kvstore.Get(ctx, profilesKey)
	if err != nil {
		log.Printf("[service] WARN: load profiles: %v", err)
	} else if ok {
		var stored []storedProfile
		if err := json.Unmarshal(payload, &stored); err != nil || len(stored) == 0 {
			log.Printf("[service] WARN: discarding malformed profile payload")
		} else {
			s.applyStored(stored)
		}
	}

	raw, ok, err := s.kvstore.Get(ctx, activeIndexKey)
	if err != nil || !ok {
		return
	}
	if idx, convErr := strconv.Atoi(strings.TrimSpace(string(raw))); convErr == nil && idx >= 0 && idx < len(s.profiles) {
		s.active = idx
	}
}

func (s *Service) applyStored(stored []storedProfile) {
	for i := 0; i < len(s.profiles) && i < len(stored); i++ {
		p := defaultProfile()
		p.Cart = sanitizeCart(stored[i].Cart)
		p.SelectedCustomerID = stored[i].SelectedCustomerID
		if isDiscountMode(stored[i].DiscountMode) {
			p.DiscountMode = stored[i].DiscountMode
			p.DiscountValue = stored[i].DiscountValue
			p.IsManualDiscount = stored[i].IsManualDiscount
		}
		if isPaymentMethod(stored[i].PaymentMethod) {
			p.PaymentMethod = stored[i].PaymentMethod
		}
		s.profiles[i] = p
	}
}

func sanitizeCart(cart []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(cart))
	for _, line := range cart {
		if line.VariantID == "" || line.Quantity < 1 {
			continue
		}
		out = append(out, line)
	}
	return out
}

func defaultProfiles(n int) []domain.CartProfile {
	profiles := make([]domain.CartProfile, n)
	for i := range profiles {
		profiles[i] = defaultProfile()
	}
	return profiles
}

func defaultProfile() domain.CartProfile {
	return domain.CartProfile{
		Cart:          []domain.CartLine{},
		DiscountMode:  domain.DiscountModeAmount,
		PaymentMethod: domain.PaymentMethodCash,
	}
}

func subtotalCents(cart []domain.CartLine) int64 {
	var subtotal int64
	for _, line := range cart {
		if line.Variant == nil {
			continue
		}
		subtotal += line.Variant.SalePriceCents * line.Quantity
	}
	return subtotal
}

func blockedMessage(blocked *CheckoutBlockedError) string {
	parts := make([]string, 0, 2)
	if n := len(blocked.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d no longer available", n))
	}
	if n := len(blocked.Insufficient); n > 0 {
		parts = append(parts, fmt.Sprintf("%d short on stock", n))
	}
	return "cannot checkout: " + strings.Join(parts, ", ")
}

func isStockRejection(err error) bool {
	return errors.Is(err, store.ErrOutOfStock) ||
		errors.Is(err, store.ErrInsufficientStock) ||
		errors.Is(err, store.ErrInvalidSale)
}

func isDiscountMode(mode string) bool {
	switch mode {
	case domain.DiscountModeAmount, domain.DiscountModePercent, domain.DiscountModeFinalPrice:
		return true
	}
	return false
}

func isPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodQRIS, domain.PaymentMethodTransfer:
		return true
	}
	return false
}

package domain

import "time"

type Variant struct {
	ID                string `json:"id"`
	SKU               string `json:"sku"`
	Barcode           string `json:"barcode"`
	Name              string `json:"name"`
	Color             string `json:"color,omitempty"`
	Size              string `json:"size,omitempty"`
	SalePriceCents    int64  `json:"sale_price_cents"`
	PurchaseCostCents int64  `json:"purchase_cost_cents"`
	StockOnHand       int64  `json:"stock_on_hand"`
	Active            bool   `json:"active"`
}

// CartLine with a nil Variant is the unresolved shape: the line still knows
// its variant id and quantity but carries no snapshot, either because the
// persisted payload predates snapshots or because the variant left the
// catalog. A catalog refresh re-binds it by id.
type CartLine struct {
	VariantID string   `json:"variant_id"`
	Quantity  int64    `json:"quantity"`
	Variant   *Variant `json:"variant,omitempty"`
}

type CartProfile struct {
	Cart               []CartLine `json:"cart"`
	SelectedCustomerID string     `json:"selected_customer_id,omitempty"`
	DiscountMode       string     `json:"discount_mode"`
	DiscountValue      float64    `json:"discount_value"`
	IsManualDiscount   bool       `json:"is_manual_discount"`
	PaymentMethod      string     `json:"payment_method"`
	Success            string     `json:"success,omitempty"`
	Error              string     `json:"error,omitempty"`
	IsSubmitting       bool       `json:"is_submitting"`
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Operator is the externally supplied terminal identity.
type Operator struct {
	Branch  string
	Cashier string
	Role    string
}

type SaleLine struct {
	VariantID      string `json:"variant_id"`
	SKU            string `json:"sku"`
	Name           string `json:"name"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	UnitCostCents  int64  `json:"unit_cost_cents"`
}

type SaleDraft struct {
	Branch        string     `json:"branch"`
	Cashier       string     `json:"cashier"`
	CustomerID    string     `json:"customer_id,omitempty"`
	Lines         []SaleLine `json:"lines"`
	SubtotalCents int64      `json:"subtotal_cents"`
	DiscountCents int64      `json:"discount_cents"`
	TotalCents    int64      `json:"total_cents"`
	DiscountMode  string     `json:"discount_mode"`
	PaymentMethod string     `json:"payment_method"`
	ClientRef     string     `json:"client_ref,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type Sale struct {
	ID            string     `json:"id"`
	Branch        string     `json:"branch"`
	Cashier       string     `json:"cashier"`
	CustomerID    string     `json:"customer_id,omitempty"`
	Lines         []SaleLine `json:"lines"`
	SubtotalCents int64      `json:"subtotal_cents"`
	DiscountCents int64      `json:"discount_cents"`
	TotalCents    int64      `json:"total_cents"`
	DiscountMode  string     `json:"discount_mode"`
	PaymentMethod string     `json:"payment_method"`
	ClientRef     string     `json:"client_ref,omitempty"`
	Status        string     `json:"status"`
	Duplicate     bool       `json:"duplicate"`
	CreatedAt     time.Time  `json:"created_at"`
}

type KeyEventRequest struct {
	Key    string `json:"key"`
	Target string `json:"target,omitempty"`
}

type KeyEventResponse struct {
	Emitted     bool   `json:"emitted"`
	SuppressKey bool   `json:"suppress_key"`
	Token       string `json:"token,omitempty"`
}

type ScanRequest struct {
	Token string `json:"token"`
}

type ActiveProfileRequest struct {
	Index int `json:"index"`
}

type CartItemRequest struct {
	VariantID string `json:"variant_id"`
}

type QuantityRequest struct {
	VariantID string `json:"variant_id"`
	Delta     int64  `json:"delta"`
}

type DiscountModeRequest struct {
	Mode string `json:"mode"`
}

type DiscountValueRequest struct {
	Value float64 `json:"value"`
}

type CustomerSelectRequest struct {
	CustomerID string `json:"customer_id"`
}

type PaymentMethodRequest struct {
	Method string `json:"method"`
}

type CheckoutRequest struct {
	ClientRef string `json:"client_ref,omitempty"`
}

type CheckoutResponse struct {
	Sale    Sale        `json:"sale"`
	Profile ProfileView `json:"profile"`
}

type ProfileView struct {
	Index              int        `json:"index"`
	Cart               []CartLine `json:"cart"`
	SelectedCustomerID string     `json:"selected_customer_id,omitempty"`
	DiscountMode       string     `json:"discount_mode"`
	DiscountValue      float64    `json:"discount_value"`
	IsManualDiscount   bool       `json:"is_manual_discount"`
	PaymentMethod      string     `json:"payment_method"`
	SubtotalCents      int64      `json:"subtotal_cents"`
	DiscountCents      int64      `json:"discount_cents"`
	TotalCents         int64      `json:"total_cents"`
	ItemCount          int64      `json:"item_count"`
	Success            string     `json:"success,omitempty"`
	Error              string     `json:"error,omitempty"`
	IsSubmitting       bool       `json:"is_submitting"`
}

type TerminalState struct {
	Profiles           []ProfileView `json:"profiles"`
	ActiveIndex        int           `json:"active_index"`
	CatalogSize        int           `json:"catalog_size"`
	CatalogRefreshedAt *time.Time    `json:"catalog_refreshed_at,omitempty"`
	BackendDown        bool          `json:"backend_down"`
	Version            uint64        `json:"version"`
}

type CatalogResponse struct {
	Variants    []Variant  `json:"variants"`
	RefreshedAt *time.Time `json:"refreshed_at,omitempty"`
}

type CustomerListResponse struct {
	Customers []Customer `json:"customers"`
}

type ProfitEstimateResponse struct {
	ProfileIndex int     `json:"profile_index"`
	TotalCents   int64   `json:"total_cents"`
	CostCents    int64   `json:"cost_cents"`
	ProfitCents  int64   `json:"profit_cents"`
	ExchangeRate float64 `json:"exchange_rate"`
}

// Suggestion is one add-on item the panel may offer while ringing up the
// active cart.
type Suggestion struct {
	VariantID           string  `json:"variant_id"`
	SKU                 string  `json:"sku"`
	Name                string  `json:"name"`
	SalePriceCents      int64   `json:"sale_price_cents"`
	ExpectedMarginCents int64   `json:"expected_margin_cents"`
	ReasonCode          string  `json:"reason_code"`
	Confidence          float64 `json:"confidence"`
}

type SuggestionResponse struct {
	Suggestion      *Suggestion `json:"suggestion,omitempty"`
	Show            bool        `json:"show"`
	CooldownSeconds int         `json:"cooldown_seconds"`
}

const (
	DiscountModeAmount     = "amount"
	DiscountModePercent    = "percent"
	DiscountModeFinalPrice = "finalPrice"
)

const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodQRIS     = "qris"
	PaymentMethodTransfer = "transfer"
)

const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

const SaleStatusCompleted = "completed"

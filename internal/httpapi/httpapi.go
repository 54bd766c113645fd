package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"tokokasir/terminal/internal/catalog"
	"tokokasir/terminal/internal/domain"
	"tokokasir/terminal/internal/identity"
	"tokokasir/terminal/internal/service"
	"tokokasir/terminal/internal/store"
)

// API serves the register front panel. Every route speaks JSON. An operator
// badge in the Authorization header overrides the terminal's configured
// identity; only the profit estimate requires one.
type API struct {
	service         *service.Service
	secret          []byte
	defaultOperator domain.Operator
	allowedOrigin   string
}

func New(svc *service.Service, secret []byte, defaultOperator domain.Operator, allowedOrigin string) *API {
	if strings.TrimSpace(allowedOrigin) == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:         svc,
		secret:          secret,
		defaultOperator: defaultOperator,
		allowedOrigin:   allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/api/v1/state", a.withOperator(a.handleState))
	mux.HandleFunc("/api/v1/keys", a.withOperator(a.handleKeys))
	mux.HandleFunc("/api/v1/scan", a.withOperator(a.handleScan))
	mux.HandleFunc("/api/v1/profiles/active", a.withOperator(a.handleActiveProfile))
	mux.HandleFunc("/api/v1/cart/items", a.withOperator(a.handleCartItems))
	mux.HandleFunc("/api/v1/cart/quantity", a.withOperator(a.handleCartQuantity))
	mux.HandleFunc("/api/v1/cart/remove", a.withOperator(a.handleCartRemove))
	mux.HandleFunc("/api/v1/cart/clear", a.withOperator(a.handleCartClear))
	mux.HandleFunc("/api/v1/discount/mode", a.withOperator(a.handleDiscountMode))
	mux.HandleFunc("/api/v1/discount/value", a.withOperator(a.handleDiscountValue))
	mux.HandleFunc("/api/v1/customer", a.withOperator(a.handleCustomer))
	mux.HandleFunc("/api/v1/customers", a.withOperator(a.handleCustomerSearch))
	mux.HandleFunc("/api/v1/payment-method", a.withOperator(a.handlePaymentMethod))
	mux.HandleFunc("/api/v1/checkout", a.withOperator(a.handleCheckout))
	mux.HandleFunc("/api/v1/catalog", a.withOperator(a.handleCatalog))
	mux.HandleFunc("/api/v1/catalog/refresh", a.withOperator(a.handleCatalogRefresh))
	mux.HandleFunc("/api/v1/suggestion", a.withOperator(a.handleSuggestion))
	mux.HandleFunc("/api/v1/profit", a.requireOperator(a.handleProfit))

	return a.withMiddleware(mux)
}

// withOperator resolves the acting operator. A missing header falls back to
// the terminal's configured identity; a present-but-bad badge is rejected so
// a revoked token cannot silently downgrade to the default.
func (a *API) withOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, ok, err := a.operatorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if !ok {
			op = a.defaultOperator
		}
		next(w, r.WithContext(service.WithOperator(r.Context(), op)))
	}
}

// requireOperator is withOperator without the fallback.
func (a *API) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, ok, err := a.operatorFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		next(w, r.WithContext(service.WithOperator(r.Context(), op)))
	}
}

func (a *API) operatorFromRequest(r *http.Request) (domain.Operator, bool, error) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if authorization == "" {
		return domain.Operator{}, false, nil
	}
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return domain.Operator{}, false, identity.ErrInvalidToken
	}

	token := strings.TrimSpace(authorization[len("Bearer "):])
	op, err := identity.ParseToken(a.secret, token)
	if err != nil {
		return domain.Operator{}, false, err
	}
	return op, true, nil
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"backend_down": a.service.State().BackendDown,
		"at":           time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, a.service.State())
}

func (a *API) handleKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.KeyEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, errors.New("key required"))
		return
	}

	writeJSON(w, http.StatusOK, a.service.Keystroke(r.Context(), req.Key, req.Target))
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ScanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, errors.New("scan token required"))
		return
	}

	profile, err := a.service.Scan(r.Context(), req.Token)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, catalog.ErrNoMatch):
			status = http.StatusNotFound
		case errors.Is(err, store.ErrOutOfStock), errors.Is(err, store.ErrInsufficientStock):
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleActiveProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ActiveProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	state, err := a.service.SwitchProfile(r.Context(), req.Index)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.VariantID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("variant id required"))
		return
	}

	profile, err := a.service.AddItem(r.Context(), req.VariantID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, store.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, store.ErrOutOfStock), errors.Is(err, store.ErrInsufficientStock):
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleCartQuantity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.QuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.VariantID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("variant id required"))
		return
	}

	profile, err := a.service.UpdateQuantity(r.Context(), req.VariantID, req.Delta)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, store.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, store.ErrInsufficientStock):
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.VariantID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("variant id required"))
		return
	}

	writeJSON(w, http.StatusOK, a.service.RemoveItem(r.Context(), req.VariantID))
}

func (a *API) handleCartClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, a.service.ClearCart(r.Context()))
}

func (a *API) handleDiscountMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.DiscountModeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := a.service.SetDiscountMode(r.Context(), req.Mode)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrInvalidSale) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleDiscountValue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.DiscountValueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := a.service.SetDiscountValue(r.Context(), req.Value)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrInvalidSale) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleCustomer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CustomerSelectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := a.service.SetCustomer(r.Context(), req.CustomerID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleCustomerSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	customers, err := a.service.SearchCustomers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.CustomerListResponse{Customers: customers})
}

func (a *API) handlePaymentMethod(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.PaymentMethodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	profile, err := a.service.SetPaymentMethod(r.Context(), req.Method)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrInvalidSale) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.Checkout(r.Context(), req.ClientRef)
	if err != nil {
		var blocked *service.CheckoutBlockedError
		switch {
		case errors.As(err, &blocked):
			// The panel needs the per-line verdicts to redraw the cart.
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":        blocked.Error(),
				"removed":      blocked.Removed,
				"insufficient": blocked.Insufficient,
			})
		case errors.Is(err, service.ErrCommitInFlight):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, store.ErrOutOfStock), errors.Is(err, store.ErrInsufficientStock):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, service.ErrEmptyCart), errors.Is(err, store.ErrInvalidSale):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, a.service.Catalog())
}

func (a *API) handleCatalogRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	if err := a.service.RefreshCatalog(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, a.service.Catalog())
}

func (a *API) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, a.service.Suggestion())
}

func (a *API) handleProfit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	estimate, err := a.service.ProfitEstimate(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, identity.ErrForbidden) {
			status = http.StatusForbidden
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the server log; the panel only gets a generic
	// message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

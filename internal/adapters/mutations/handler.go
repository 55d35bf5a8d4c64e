// Package mutations exposes the mutation engine over HTTP: a single
// operation-dispatching endpoint plus read-only listings and a health check.
package mutations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"crmcore/internal/core"
	"crmcore/internal/validation"
	"crmcore/pkg/domain"
)

// Operation names accepted by POST /api/v1/mutations.
const (
	OpCreateCustomer         = "createCustomer"
	OpBulkCreateCustomers    = "bulkCreateCustomers"
	OpCreateProduct          = "createProduct"
	OpCreateOrder            = "createOrder"
	OpUpdateLowStockProducts = "updateLowStockProducts"
)

const maxBodyBytes = 1 << 20

// Service is the subset of core.Service served over HTTP.
type Service interface {
	CreateCustomer(ctx context.Context, in core.CustomerInput) (core.CreateCustomerResult, error)
	BulkCreateCustomers(ctx context.Context, in []core.CustomerInput) (core.BulkCreateCustomersResult, error)
	CreateProduct(ctx context.Context, in core.ProductInput) (domain.Product, error)
	CreateOrder(ctx context.Context, in core.OrderInput) (domain.Order, error)
	UpdateLowStockProducts(ctx context.Context) (core.UpdateLowStockResult, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	Ping(ctx context.Context) error
}

// Handler provides HTTP access to the mutation engine.
type Handler struct {
	Service Service
	Logger  core.Logger
}

// NewHandler constructs a mutation HTTP handler.
func NewHandler(svc Service, logger core.Logger) *Handler {
	return &Handler{Service: svc, Logger: logger}
}

type request struct {
	Operation string          `json:"operation"`
	Input     json.RawMessage `json:"input"`
}

// productInput accepts the price as a JSON string or number.
type productInput struct {
	Name  string          `json:"name"`
	Price json.RawMessage `json:"price"`
	Stock *int            `json:"stock"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeErrors(w, http.StatusInternalServerError, "service not configured")
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch path {
	case "/api/v1/mutations":
		if r.Method != http.MethodPost {
			writeErrors(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleMutation(w, r)
	case "/api/v1/customers", "/api/v1/products", "/api/v1/orders":
		if r.Method != http.MethodGet {
			writeErrors(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleList(w, r, strings.TrimPrefix(path, "/api/v1/"))
	case "/healthz":
		if err := h.Service.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		if id, ok := strings.CutPrefix(path, "/api/v1/orders/"); ok && id != "" && r.Method == http.MethodGet {
			h.handleGetOrder(w, r, id)
			return
		}
		http.NotFound(w, r)
	}
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request, id string) {
	order, err := h.Service.GetOrder(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeErrors(w, http.StatusNotFound, "order not found")
		return
	}
	h.respond(w, "get_order", map[string]any{"order": order}, err)
}

func (h *Handler) handleMutation(w http.ResponseWriter, r *http.Request) {
	var req request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	switch req.Operation {
	case OpCreateCustomer:
		var in core.CustomerInput
		if !decodeInput(w, req.Input, &in) {
			return
		}
		res, err := h.Service.CreateCustomer(ctx, in)
		h.respond(w, req.Operation, res, err)
	case OpBulkCreateCustomers:
		var in []core.CustomerInput
		if !decodeInput(w, req.Input, &in) {
			return
		}
		res, err := h.Service.BulkCreateCustomers(ctx, in)
		h.respond(w, req.Operation, res, err)
	case OpCreateProduct:
		var raw productInput
		if !decodeInput(w, req.Input, &raw) {
			return
		}
		price, err := priceText(raw.Price)
		if err != nil {
			writeErrors(w, http.StatusBadRequest, validation.MsgPriceInvalid)
			return
		}
		product, err := h.Service.CreateProduct(ctx, core.ProductInput{Name: raw.Name, Price: price, Stock: raw.Stock})
		h.respond(w, req.Operation, map[string]any{"product": product}, err)
	case OpCreateOrder:
		var in core.OrderInput
		if !decodeInput(w, req.Input, &in) {
			return
		}
		order, err := h.Service.CreateOrder(ctx, in)
		h.respond(w, req.Operation, map[string]any{"order": order}, err)
	case OpUpdateLowStockProducts:
		res, err := h.Service.UpdateLowStockProducts(ctx)
		h.respond(w, req.Operation, res, err)
	default:
		writeErrors(w, http.StatusBadRequest, fmt.Sprintf("unknown operation %q", req.Operation))
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, kind string) {
	var (
		items any
		err   error
	)
	switch kind {
	case "customers":
		items, err = h.Service.ListCustomers(r.Context())
	case "products":
		items, err = h.Service.ListProducts(r.Context())
	case "orders":
		items, err = h.Service.ListOrders(r.Context())
	}
	if err != nil {
		h.respond(w, "list_"+kind, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{kind: items})
}

func (h *Handler) respond(w http.ResponseWriter, op string, payload any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, payload)
		return
	}
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if h.Logger != nil {
			h.Logger.Error("request failed", "operation", op, "error", msg)
		}
		msg = "internal error"
	}
	writeErrors(w, status, msg)
}

func statusFor(err error) int {
	kind, ok := validation.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case validation.KindConflict:
		return http.StatusConflict
	case validation.KindReference:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func decodeInput(w http.ResponseWriter, raw json.RawMessage, dst any) bool {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		writeErrors(w, http.StatusBadRequest, "input is required")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid input")
		return false
	}
	return true
}

// priceText returns the textual decimal of a JSON string or number. A missing
// or null price yields "" so the validator reports it as required.
func priceText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.New("price must be a number or string")
	}
	return n.String(), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	writeJSON(w, status, map[string]any{"errors": messages})
}

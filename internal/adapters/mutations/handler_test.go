package mutations_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"crmcore/internal/adapters/mutations"
	"crmcore/internal/core"
	"crmcore/internal/validation"
	"crmcore/pkg/domain"
)

type errorBody struct {
	Errors []string `json:"errors"`
}

func newHandler(t *testing.T) (*mutations.Handler, *core.Service) {
	t.Helper()
	svc := core.NewInMemoryService()
	return mutations.NewHandler(svc, nil), svc
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mutations", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestCreateCustomerEndpoint(t *testing.T) {
	h, _ := newHandler(t)
	rec := post(t, h, `{"operation":"createCustomer","input":{"name":"Alice","email":"alice@example.com","phone":"+1234567890"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res core.CreateCustomerResult
	decode(t, rec, &res)
	if res.Customer.ID == "" || res.Customer.Email != "alice@example.com" || res.Message != core.MsgCustomerCreated {
		t.Fatalf("unexpected result %+v", res)
	}

	rec = post(t, h, `{"operation":"createCustomer","input":{"name":"Alice 2","email":"alice@example.com"}}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", rec.Code)
	}
	var eb errorBody
	decode(t, rec, &eb)
	if len(eb.Errors) != 1 || eb.Errors[0] != validation.MsgEmailExists {
		t.Fatalf("unexpected errors %v", eb.Errors)
	}

	rec = post(t, h, `{"operation":"createCustomer","input":{"name":"Carol","email":"carol@example.com","phone":"555"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad phone, got %d", rec.Code)
	}
}

func TestBulkCreateCustomersEndpoint(t *testing.T) {
	h, _ := newHandler(t)
	rec := post(t, h, `{"operation":"bulkCreateCustomers","input":[
		{"name":"Alice","email":"alice@example.com"},
		{"name":"Bad","email":"bad@example.com","phone":"nope"},
		{"name":"Bob","email":"bob@example.com","phone":"123-456-7890"}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res core.BulkCreateCustomersResult
	decode(t, rec, &res)
	if len(res.Customers) != 2 || len(res.Errors) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasPrefix(res.Errors[0], "Record ") || !strings.HasSuffix(res.Errors[0], validation.MsgInvalidPhone) {
		t.Fatalf("unexpected record error %q", res.Errors[0])
	}

	rec = post(t, h, `{"operation":"bulkCreateCustomers","input":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", rec.Code)
	}
}

func TestCreateProductAcceptsNumericAndStringPrice(t *testing.T) {
	h, _ := newHandler(t)
	for _, body := range []string{
		`{"operation":"createProduct","input":{"name":"Laptop","price":999.99,"stock":10}}`,
		`{"operation":"createProduct","input":{"name":"Mouse","price":"25.00"}}`,
	} {
		rec := post(t, h, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var raw struct {
			Product map[string]any `json:"product"`
		}
		decode(t, rec, &raw)
		if _, ok := raw.Product["price"].(string); !ok {
			t.Fatalf("expected price serialized as string, got %T", raw.Product["price"])
		}
	}

	cases := map[string]string{
		`{"operation":"createProduct","input":{"name":"Free","price":0}}`:           validation.MsgPriceNotPositive,
		`{"operation":"createProduct","input":{"name":"None"}}`:                     validation.MsgPriceRequired,
		`{"operation":"createProduct","input":{"name":"Odd","price":true}}`:         validation.MsgPriceInvalid,
		`{"operation":"createProduct","input":{"name":"Neg","price":1,"stock":-1}}`: validation.MsgStockNegative,
		`{"operation":"createProduct","input":{"name":"Huge","price":1e300000000}}`: validation.MsgPriceInvalid,
		`{"operation":"createProduct","input":{"name":"Fine","price":"1.239"}}`:     validation.MsgPriceInvalid,
	}
	for body, want := range cases {
		rec := post(t, h, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
		var eb errorBody
		decode(t, rec, &eb)
		if len(eb.Errors) != 1 || eb.Errors[0] != want {
			t.Fatalf("%s: unexpected errors %v", body, eb.Errors)
		}
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	h, svc := newHandler(t)
	ctx := context.Background()
	customer, err := svc.CreateCustomer(ctx, core.CustomerInput{Name: "Alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("customer: %v", err)
	}
	product, err := svc.CreateProduct(ctx, core.ProductInput{Name: "Laptop", Price: "999.99"})
	if err != nil {
		t.Fatalf("product: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"operation": "createOrder",
		"input":     map[string]any{"customerId": customer.Customer.ID, "productIds": []string{product.ID}},
	})
	rec := post(t, h, string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Order domain.Order `json:"order"`
	}
	decode(t, rec, &res)
	if res.Order.TotalAmount.String() != "999.99" || res.Order.CustomerID != customer.Customer.ID {
		t.Fatalf("unexpected order %+v", res.Order)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+res.Order.ID, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var got struct {
		Order domain.Order `json:"order"`
	}
	decode(t, rec, &got)
	if rec.Code != http.StatusOK || got.Order.ID != res.Order.ID || len(got.Order.ProductIDs) != 1 {
		t.Fatalf("unexpected order lookup %d %+v", rec.Code, got.Order)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/orders/missing", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d", rec.Code)
	}

	body, _ = json.Marshal(map[string]any{
		"operation": "createOrder",
		"input":     map[string]any{"customerId": "missing", "productIds": []string{product.ID}},
	})
	if rec := post(t, h, string(body)); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown customer, got %d", rec.Code)
	}

	body, _ = json.Marshal(map[string]any{
		"operation": "createOrder",
		"input":     map[string]any{"customerId": customer.Customer.ID, "productIds": []string{}},
	})
	if rec := post(t, h, string(body)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty product list, got %d", rec.Code)
	}
}

func TestUpdateLowStockEndpointAndListings(t *testing.T) {
	h, svc := newHandler(t)
	stock := 2
	if _, err := svc.CreateProduct(context.Background(), core.ProductInput{Name: "Cable", Price: "5", Stock: &stock}); err != nil {
		t.Fatalf("product: %v", err)
	}
	rec := post(t, h, `{"operation":"updateLowStockProducts"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res core.UpdateLowStockResult
	decode(t, rec, &res)
	if len(res.Products) != 1 || res.Products[0].Stock != 12 {
		t.Fatalf("unexpected restock %+v", res)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var list struct {
		Products []domain.Product `json:"products"`
	}
	decode(t, rec, &list)
	if rec.Code != http.StatusOK || len(list.Products) != 1 || list.Products[0].Stock != 12 {
		t.Fatalf("unexpected listing %d %+v", rec.Code, list)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestMalformedRequests(t *testing.T) {
	h, _ := newHandler(t)
	for _, body := range []string{
		`{`,
		`{"operation":"dropTables"}`,
		`{"operation":"createCustomer"}`,
		`{"operation":"createOrder","input":{"productIds":"x"}}`,
	} {
		if rec := post(t, h, body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mutations", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

type brokenService struct {
	mutations.Service
}

func (brokenService) Ping(context.Context) error { return errors.New("db down") }

func (brokenService) ListCustomers(context.Context) ([]domain.Customer, error) {
	return nil, errors.New("connection reset")
}

type captureLogger struct {
	errors []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Warn(string, ...any)  {}
func (l *captureLogger) Error(msg string, _ ...any) {
	l.errors = append(l.errors, msg)
}

func TestInternalErrorsAreMasked(t *testing.T) {
	logger := &captureLogger{}
	h := mutations.NewHandler(brokenService{}, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var eb errorBody
	decode(t, rec, &eb)
	if len(eb.Errors) != 1 || eb.Errors[0] != "internal error" {
		t.Fatalf("expected masked error, got %v", eb.Errors)
	}
	if len(logger.errors) != 1 {
		t.Fatalf("expected failure logged, got %v", logger.errors)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h, _ := newHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

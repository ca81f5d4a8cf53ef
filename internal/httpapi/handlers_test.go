package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/service"
	"orderdesk/backend/internal/store/memory"
)

const testManagerPIN = "123456"

// newTestAPI builds the full API over a seeded in-memory store so handler
// tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded(zap.NewNop())
	svc := service.New(repo, nil, service.Options{DefaultStoreID: "main-store", Logger: zap.NewNop()})
	auth := NewAuthManager(context.Background(), "test-secret-key", time.Hour, testManagerPIN, repo, zap.NewNop())

	return New(svc, auth, "*", zap.NewNop())
}

func doRequest(t *testing.T, handler http.Handler, method string, path string, token string, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doRequest(t, api.Handler(), http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleHealth_MethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)

	rec := doRequest(t, api.Handler(), http.MethodDelete, "/healthz", "", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := doRequest(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", "",
		domain.LoginRequest{Username: "operator", Password: "operator123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.AccessToken == "" || body.Role != domain.RoleOperator {
		t.Fatalf("unexpected login response %+v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doRequest(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", "",
		domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleOrders_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doRequest(t, api.Handler(), http.MethodGet, "/api/v1/orders", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleListOrders(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "operator", "operator123")

	rec := doRequest(t, api.Handler(), http.MethodGet, "/api/v1/orders?status=paid", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.OrderListResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Orders) != 1 || body.Orders[0].ID != "ord-1004" {
		t.Fatalf("expected only ord-1004, got %+v", body.Orders)
	}

	rec = doRequest(t, api.Handler(), http.MethodGet, "/api/v1/orders?status=unknown", token, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestHandleOrderValuation(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "operator", "operator123")

	rec := doRequest(t, api.Handler(), http.MethodGet, "/api/v1/orders/ord-1002/valuation", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.OrderValuationResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Valuation.EffectiveShipping != 0 || body.Valuation.Total != 2070 {
		t.Fatalf("unexpected valuation %+v", body.Valuation)
	}
	if body.Display.Total != "20.70" {
		t.Fatalf("expected display total 20.70, got %q", body.Display.Total)
	}

	rec = doRequest(t, api.Handler(), http.MethodGet, "/api/v1/orders/ord-none/valuation", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d", rec.Code)
	}
}

func TestHandleQuoteReturn(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "operator", "operator123")
	csrf := fetchCSRFToken(t, api)

	rec := doRequest(t, api.Handler(), http.MethodPost, "/api/v1/orders/ord-1001/returns/quote", token, csrf,
		domain.ReturnQuoteRequest{Items: []domain.ReturnLineRequest{{LineItemID: "ord-1001-1", Qty: 1}}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.ReturnQuoteResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Refund.Total != 1000 || body.Display.Total != "10.00" {
		t.Fatalf("unexpected quote %+v", body)
	}

	rec = doRequest(t, api.Handler(), http.MethodPost, "/api/v1/orders/ord-1001/returns/quote", token, csrf,
		domain.ReturnQuoteRequest{Items: []domain.ReturnLineRequest{{LineItemID: "ord-1001-1", Qty: 3}}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for excess quantity, got %d", rec.Code)
	}
}

func TestHandleCreateReturnFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api, "operator", "operator123")
	csrf := fetchCSRFToken(t, api)

	req := domain.ReturnCreateRequest{
		IdempotencyKey: "http-ret-1",
		Reason:         "wrong size",
		ManagerPIN:     testManagerPIN,
		Items:          []domain.ReturnLineRequest{{LineItemID: "ord-1001-1", Qty: 2}},
	}

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/orders/ord-1001/returns", token, csrf, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.ReturnResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if created.Return.TotalRefundCents != 2000 {
		t.Fatalf("expected full return refund 2000, got %d", created.Return.TotalRefundCents)
	}

	rec = doRequest(t, handler, http.MethodPost, "/api/v1/orders/ord-1001/returns", token, csrf, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
	var replay domain.ReturnResponse
	if err := json.NewDecoder(rec.Body).Decode(&replay); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !replay.Duplicate || replay.Return.ID != created.Return.ID {
		t.Fatalf("expected replay of %s, got %+v", created.Return.ID, replay)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/returns/"+created.Return.ID, token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for stored return, got %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/orders/ord-1001/returns", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for order returns, got %d", rec.Code)
	}
	var list domain.ReturnListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(list.Returns) != 1 {
		t.Fatalf("expected 1 return, got %d", len(list.Returns))
	}

	req.IdempotencyKey = "http-ret-2"
	req.Items[0].Qty = 1
	rec = doRequest(t, handler, http.MethodPost, "/api/v1/orders/ord-1001/returns", token, csrf, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 once every unit is returned, got %d", rec.Code)
	}
}

func TestHandleCreateReturnRequiresManagerPIN(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "operator", "operator123")
	csrf := fetchCSRFToken(t, api)

	rec := doRequest(t, api.Handler(), http.MethodPost, "/api/v1/orders/ord-1001/returns", token, csrf, domain.ReturnCreateRequest{
		IdempotencyKey: "http-ret-pin",
		ManagerPIN:     "000000",
		Items:          []domain.ReturnLineRequest{{LineItemID: "ord-1001-1", Qty: 1}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong pin, got %d", rec.Code)
	}
}

func TestHandleReceipt(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "operator", "operator123")

	rec := doRequest(t, api.Handler(), http.MethodGet, "/api/v1/orders/ord-1003/receipt", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body domain.ReceiptResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.FileName != "receipt-ord-1003.bin" || body.EscposBase64 == "" {
		t.Fatalf("unexpected receipt %+v", body)
	}
}

func TestAdminOnlyRoutes(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	operatorToken := login(t, api, "operator", "operator123")
	adminToken := login(t, api, "admin", "admin123")
	csrf := fetchCSRFToken(t, api)

	if rec := doRequest(t, handler, http.MethodGet, "/api/v1/audit-logs", operatorToken, "", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for operator on audit logs, got %d", rec.Code)
	}
	if rec := doRequest(t, handler, http.MethodGet, "/api/v1/audit-logs", adminToken, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin on audit logs, got %d", rec.Code)
	}

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/users/operators", adminToken, csrf,
		domain.OperatorCreateRequest{Username: "packer01", Password: "pass1234"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/users/operators", adminToken, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Operators []domain.OperatorUser `json:"operators"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Operators) != 2 {
		t.Fatalf("expected seeded and new operator, got %+v", body.Operators)
	}
}

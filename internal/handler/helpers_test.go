package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/engine/internal/auth"
	"github.com/kiwari-pos/engine/internal/database"
	"github.com/kiwari-pos/engine/internal/middleware"
	"github.com/kiwari-pos/engine/internal/service"
)

func testClaims() *auth.Claims {
	return &auth.Claims{StaffID: uuid.New(), Role: "CASHIER"}
}

// withClaims mounts routes behind a middleware that injects claims the way
// Authenticate would. nil claims leaves the request unauthenticated.
func withClaims(claims *auth.Claims, mount func(r chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if claims != nil {
				req = req.WithContext(middleware.WithClaims(req.Context(), claims))
			}
			next.ServeHTTP(w, req)
		})
	})
	mount(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, bytes.NewBufferString(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	}
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func dataOf(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("data missing: %v", resp)
	}
	return data
}

func errorOf(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	e, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("error missing: %v", resp)
	}
	return e
}

func testNumeric(s string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(s)
	return n
}

func testOrder(status database.OrderStatus) database.Order {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	return database.Order{
		ID:          uuid.New(),
		OrderNumber: "ORD-20261019-0001",
		Status:      status,
		OrderType:   database.OrderTypeDINEIN,
		Subtotal:    testNumeric("23"),
		TaxAmount:   testNumeric("0"),
		DeliveryFee: testNumeric("0"),
		TotalAmount: testNumeric("23"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testItem(orderID uuid.UUID) service.ItemResult {
	return service.ItemResult{
		Item: database.OrderItem{
			ID:           uuid.New(),
			OrderID:      orderID,
			MenuItemID:   uuid.New(),
			MenuItemName: "Burger",
			Quantity:     2,
			UnitPrice:    testNumeric("10"),
			TotalPrice:   testNumeric("23"),
		},
		Addons: []database.OrderItemAddon{{
			ID:         uuid.New(),
			AddonID:    uuid.New(),
			AddonName:  "Extra Cheese",
			Quantity:   1,
			UnitPrice:  testNumeric("1.5"),
			TotalPrice: testNumeric("1.5"),
		}},
	}
}

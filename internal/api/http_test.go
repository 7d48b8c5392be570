package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aganoob/mercadona-mcp/internal/mercadona"
)

func doRequest(t *testing.T, deps Deps, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	NewHTTPHandler(deps).ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to parse error envelope: %v (body: %s)", err, rr.Body.String())
	}
	return envelope.Error.Type, envelope.Error.Message
}

func TestHTTP_Health(t *testing.T) {
	deps, _ := newTestDeps(t)

	rr := doRequest(t, deps, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHTTP_Status_ReflectsCredentials(t *testing.T) {
	deps, _ := newTestDeps(t)

	rr := doRequest(t, deps, http.MethodGet, "/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var status statusPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to parse status: %v", err)
	}
	if status.Authenticated {
		t.Fatal("expected unauthenticated status")
	}

	authenticate(t, deps)

	rr = doRequest(t, deps, http.MethodGet, "/status", "")
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to parse status: %v", err)
	}
	if !status.Authenticated {
		t.Fatal("expected authenticated status after saving credentials")
	}
}

func TestHTTP_PutCredentials(t *testing.T) {
	deps, _ := newTestDeps(t)

	rr := doRequest(t, deps, http.MethodPut, "/profile/credentials", `{"token":"tok","uuid":"cust-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	p := deps.Profile.Load()
	if p.Credential == nil || p.Credential.Token != "tok" {
		t.Fatalf("credential not persisted: %+v", p.Credential)
	}
}

func TestHTTP_PutCredentials_RejectsPartial(t *testing.T) {
	deps, _ := newTestDeps(t)

	rr := doRequest(t, deps, http.MethodPut, "/profile/credentials", `{"token":"tok"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	errType, _ := decodeError(t, rr)
	if errType != "invalid_request_error" {
		t.Fatalf("unexpected error type: %s", errType)
	}
}

func TestHTTP_PutLocation_PreservesCredentials(t *testing.T) {
	deps, _ := newTestDeps(t)
	authenticate(t, deps)

	rr := doRequest(t, deps, http.MethodPut, "/profile/location", `{"postal_code":"46001","warehouse_id":"vlc1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	p := deps.Profile.Load()
	if p.Credential == nil || p.Credential.Token != "tok" {
		t.Fatal("credential lost when saving location")
	}
	if p.Location == nil || p.Location.WarehouseID != "vlc1" {
		t.Fatalf("location not persisted: %+v", p.Location)
	}
}

func TestHTTP_GetProfile_NeverEchoesToken(t *testing.T) {
	deps, _ := newTestDeps(t)
	authenticate(t, deps)

	rr := doRequest(t, deps, http.MethodGet, "/profile", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "tok") {
		t.Fatalf("token leaked in profile response: %s", rr.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse profile: %v", err)
	}
	if out["authenticated"] != true {
		t.Fatalf("expected authenticated true, got: %v", out["authenticated"])
	}
}

func TestHTTP_Search(t *testing.T) {
	deps, remote := newTestDeps(t)
	remote.searchHits = []mercadona.Product{available("p1", "Leche Entera", "1.15")}

	rr := doRequest(t, deps, http.MethodGet, "/search?q=leche", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var summaries []productSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("failed to parse results: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Name != "Leche Entera" {
		t.Fatalf("unexpected results: %+v", summaries)
	}
}

func TestHTTP_Search_MissingQuery(t *testing.T) {
	deps, _ := newTestDeps(t)

	rr := doRequest(t, deps, http.MethodGet, "/search", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHTTP_GetProduct_NotFound(t *testing.T) {
	deps, _ := newTestDeps(t)

	rr := doRequest(t, deps, http.MethodGet, "/products/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	errType, _ := decodeError(t, rr)
	if errType != "not_found" {
		t.Fatalf("unexpected error type: %s", errType)
	}
}

func TestHTTP_GetCart_Unauthenticated(t *testing.T) {
	deps, _ := newTestDeps(t)

	rr := doRequest(t, deps, http.MethodGet, "/cart", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	errType, _ := decodeError(t, rr)
	if errType != "authentication_error" {
		t.Fatalf("unexpected error type: %s", errType)
	}
}

func TestHTTP_AddCartItems(t *testing.T) {
	deps, remote := newTestDeps(t)
	authenticate(t, deps)
	remote.cart.Lines = []mercadona.CartLine{
		{Product: available("p1", "Leche Entera", "1.15"), Quantity: 1},
	}

	rr := doRequest(t, deps, http.MethodPost, "/cart/items", `[{"product_id":"p1","quantity":2},{"product_id":"p2"}]`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if remote.lastPut == nil {
		t.Fatal("no cart update reached the remote")
	}
	lines := remote.lastPut.Lines
	if len(lines) != 2 || lines[0].Quantity != 3 || lines[1].Quantity != 1 {
		t.Fatalf("unexpected merged lines: %+v", lines)
	}
}

func TestHTTP_RemoveCartItem(t *testing.T) {
	deps, remote := newTestDeps(t)
	authenticate(t, deps)
	remote.cart.Lines = []mercadona.CartLine{
		{Product: available("p1", "Leche Entera", "1.15"), Quantity: 1},
		{Product: available("p2", "Pan de Molde", "0.99"), Quantity: 2},
	}

	rr := doRequest(t, deps, http.MethodDelete, "/cart/items/p1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	lines := remote.lastPut.Lines
	if len(lines) != 1 || lines[0].ProductID != "p2" {
		t.Fatalf("unexpected remaining lines: %+v", lines)
	}
}

func TestHTTP_ClearCart(t *testing.T) {
	deps, remote := newTestDeps(t)
	authenticate(t, deps)

	rr := doRequest(t, deps, http.MethodDelete, "/cart", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if remote.lastPut == nil || len(remote.lastPut.Lines) != 0 {
		t.Fatalf("expected empty line set, got: %+v", remote.lastPut)
	}
}

func TestHTTP_ListOrders(t *testing.T) {
	deps, remote := newTestDeps(t)
	authenticate(t, deps)
	remote.orders = []mercadona.Order{
		{ID: "o1", StartDate: "2026-01-10T10:00:00Z"},
		{ID: "o2", StartDate: "2026-01-03T10:00:00Z"},
	}

	rr := doRequest(t, deps, http.MethodGet, "/orders?limit=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var orders []mercadona.Order
	if err := json.Unmarshal(rr.Body.Bytes(), &orders); err != nil {
		t.Fatalf("failed to parse orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "o1" {
		t.Fatalf("unexpected orders: %+v", orders)
	}
}

func TestHTTP_ListOrders_BadLimit(t *testing.T) {
	deps, _ := newTestDeps(t)
	authenticate(t, deps)

	rr := doRequest(t, deps, http.MethodGet, "/orders?limit=nope", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHTTP_Recommendations_Roundtrip(t *testing.T) {
	deps, remote := newTestDeps(t)
	authenticate(t, deps)

	now := time.Now().UTC()
	remote.orders = []mercadona.Order{
		{ID: "o3", StartDate: now.AddDate(0, 0, -20).Format(time.RFC3339)},
		{ID: "o2", StartDate: now.AddDate(0, 0, -30).Format(time.RFC3339)},
		{ID: "o1", StartDate: now.AddDate(0, 0, -40).Format(time.RFC3339)},
	}
	line := mercadona.OrderLine{
		ProductID:       "p1",
		OrderedQuantity: 2,
		Product:         available("p1", "Leche Entera", "1.15"),
	}
	remote.lines["o1"] = []mercadona.OrderLine{line}
	remote.lines["o2"] = []mercadona.OrderLine{line}
	remote.lines["o3"] = []mercadona.OrderLine{line}

	rr := doRequest(t, deps, http.MethodPost, "/recommendations", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, deps, http.MethodGet, "/recommendations", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 reading back report, got %d", rr.Code)
	}
	var report struct {
		Items []struct {
			ID           string `json:"id"`
			SuggestedQty int    `json:"suggested_qty"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to parse report: %v", err)
	}
	if len(report.Items) != 1 || report.Items[0].ID != "p1" || report.Items[0].SuggestedQty != 2 {
		t.Fatalf("unexpected report: %+v", report.Items)
	}
}

func TestHTTP_Recommendations_NoneYet(t *testing.T) {
	deps, _ := newTestDeps(t)

	rr := doRequest(t, deps, http.MethodGet, "/recommendations", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/aganoob/mercadona-mcp/internal/config"
	"github.com/aganoob/mercadona-mcp/internal/mercadona"
	"github.com/aganoob/mercadona-mcp/internal/profile"
)

// --- fake remote store ---

// fakeRemote fakes both the store API and the search index behind one
// httptest server.
type fakeRemote struct {
	mu         sync.Mutex
	searchHits []mercadona.Product
	searchCode int
	cart       mercadona.Cart
	cartCode   int
	products   map[string]mercadona.Product
	orders     []mercadona.Order
	lines      map[string][]mercadona.OrderLine
	lastPut    *putCapture
}

type putCapture struct {
	ID      string               `json:"id"`
	Version int64                `json:"version"`
	Lines   []mercadona.CartItem `json:"lines"`
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		cart:     mercadona.Cart{ID: "cart-1", Version: 7},
		products: map[string]mercadona.Product{},
		lines:    map[string][]mercadona.OrderLine{},
	}
}

func (f *fakeRemote) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case strings.HasPrefix(r.URL.Path, "/1/indexes/"):
			if f.searchCode != 0 {
				w.WriteHeader(f.searchCode)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"hits": f.searchHits})

		case strings.Contains(r.URL.Path, "/cart/"):
			if f.cartCode != 0 {
				w.WriteHeader(f.cartCode)
				return
			}
			if r.Method == http.MethodPut {
				var put putCapture
				json.NewDecoder(r.Body).Decode(&put)
				f.lastPut = &put
				w.WriteHeader(http.StatusOK)
				return
			}
			json.NewEncoder(w).Encode(f.cart)

		case strings.HasSuffix(r.URL.Path, "/lines/prepared/"):
			parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
			orderID := parts[len(parts)-3]
			json.NewEncoder(w).Encode(map[string]any{"results": f.lines[orderID]})

		case strings.HasSuffix(r.URL.Path, "/orders/"):
			json.NewEncoder(w).Encode(map[string]any{"results": f.orders})

		case strings.HasPrefix(r.URL.Path, "/products/"):
			parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
			p, ok := f.products[parts[1]]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(p)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// --- helpers ---

func newTestDeps(t *testing.T) (Deps, *fakeRemote) {
	t.Helper()

	remote := newFakeRemote()
	srv := httptest.NewServer(remote.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := config.Config{}
	cfg.API.BaseURL = srv.URL
	cfg.API.SearchAppID = "TESTAPP"
	cfg.API.SearchAPIKey = "test-key"
	cfg.API.SearchBaseURL = srv.URL
	cfg.API.DefaultWarehouse = "4115"
	cfg.Report.File = filepath.Join(dir, "smart_cart_calculation.json")

	return Deps{
		Config:  cfg,
		Profile: profile.NewStore(filepath.Join(dir, "auth.json")),
	}, remote
}

func authenticate(t *testing.T, deps Deps) {
	t.Helper()
	err := deps.Profile.Save(&profile.Credential{Token: "tok", CustomerID: "cust-1"}, nil)
	if err != nil {
		t.Fatalf("saving credential: %v", err)
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func available(id, name, price string) mercadona.Product {
	return mercadona.Product{
		ID:          id,
		DisplayName: name,
		Published:   true,
		PriceInstructions: &mercadona.PriceInstructions{
			UnitPrice: price,
		},
	}
}

// --- tests ---

func TestMCPTool_GetStatus_NotLoggedIn(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := mcpGetStatus(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_status", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var status statusPayload
	if err := json.Unmarshal([]byte(toolText(t, result)), &status); err != nil {
		t.Fatalf("failed to parse status: %v", err)
	}
	if status.Authenticated {
		t.Fatal("expected unauthenticated status")
	}
	if status.PostalCode != "Not set" {
		t.Fatalf("expected postal code placeholder, got %q", status.PostalCode)
	}
	if status.WarehouseID != "4115" {
		t.Fatalf("expected default warehouse, got %q", status.WarehouseID)
	}
}

func TestMCPTool_SetCredentials_PersistsToProfile(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := mcpSetCredentials(deps)

	req := makeCallToolRequest("set_credentials", map[string]interface{}{
		"mo_user": map[string]interface{}{"token": "tok-abc", "uuid": "cust-9"},
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	p := deps.Profile.Load()
	if p.Credential == nil || p.Credential.Token != "tok-abc" || p.Credential.CustomerID != "cust-9" {
		t.Fatalf("credential not persisted: %+v", p.Credential)
	}
}

func TestMCPTool_SetCredentials_RejectsPartial(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := mcpSetCredentials(deps)

	req := makeCallToolRequest("set_credentials", map[string]interface{}{
		"mo_user": map[string]interface{}{"token": "tok-only"},
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for credential missing uuid")
	}
}

func TestMCPTool_SetLocation_VisibleInStatus(t *testing.T) {
	deps, _ := newTestDeps(t)

	setLoc := mcpSetLocation(deps)
	req := makeCallToolRequest("set_location", map[string]interface{}{
		"postal_code":  "46001",
		"warehouse_id": "vlc1",
	})
	result, err := setLoc(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	status, err := mcpGetStatus(deps)(context.Background(), makeCallToolRequest("get_status", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var payload statusPayload
	if err := json.Unmarshal([]byte(toolText(t, status)), &payload); err != nil {
		t.Fatalf("failed to parse status: %v", err)
	}
	if payload.PostalCode != "46001" || payload.WarehouseID != "vlc1" {
		t.Fatalf("location not reflected in status: %+v", payload)
	}
}

func TestMCPTool_SearchProducts(t *testing.T) {
	deps, remote := newTestDeps(t)
	remote.searchHits = []mercadona.Product{
		available("p1", "Leche Entera", "1.15"),
		available("p2", "Pan de Molde", "0.99"),
	}
	handler := mcpSearchProducts(deps)

	req := makeCallToolRequest("search_products", map[string]interface{}{"query": "leche"})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var summaries []productSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &summaries); err != nil {
		t.Fatalf("failed to parse results: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 results, got %d", len(summaries))
	}
	if summaries[0].ID != "p1" || summaries[0].Price != "1.15" {
		t.Fatalf("unexpected first result: %+v", summaries[0])
	}
}

func TestMCPTool_SearchProducts_DegradesToEmpty(t *testing.T) {
	deps, remote := newTestDeps(t)
	remote.searchCode = http.StatusInternalServerError
	handler := mcpSearchProducts(deps)

	req := makeCallToolRequest("search_products", map[string]interface{}{"query": "leche"})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("search failure should not be a tool error: %s", toolText(t, result))
	}
	if toolText(t, result) != "[]" {
		t.Fatalf("expected empty array, got: %s", toolText(t, result))
	}
}

func TestMCPTool_GetCart_RequiresLogin(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := mcpGetCart(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_cart", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected blocking error without credentials")
	}
	if !strings.Contains(toolText(t, result), "login") {
		t.Fatalf("expected login hint, got: %s", toolText(t, result))
	}
}

func TestMCPTool_GetCart(t *testing.T) {
	deps, remote := newTestDeps(t)
	authenticate(t, deps)
	remote.cart.Lines = []mercadona.CartLine{
		{Product: available("p1", "Leche Entera", "1.15"), Quantity: 3},
	}
	remote.cart.Summary.Total = "3.45"
	handler := mcpGetCart(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_cart", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var view cartView
	if err := json.Unmarshal([]byte(toolText(t, result)), &view); err != nil {
		t.Fatalf("failed to parse cart: %v", err)
	}
	if view.CartID != "cart-1" || view.Total != "3.45" {
		t.Fatalf("unexpected cart view: %+v", view)
	}
	if len(view.Items) != 1 || view.Items[0].Quantity != 3 || view.Items[0].UnitPrice != "1.15" {
		t.Fatalf("unexpected items: %+v", view.Items)
	}
}

func TestMCPTool_AddToCart_AccumulatesQuantity(t *testing.T) {
	deps, remote := newTestDeps(t)
	authenticate(t, deps)
	remote.cart.Lines = []mercadona.CartLine{
		{Product: available("p1", "Leche Entera", "1.15"), Quantity: 2},
	}
	handler := mcpAddToCart(deps)

	req := makeCallToolRequest("add_to_cart", map[string]interface{}{
		"product_id": "p1",
		"quantity":   2,
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	if remote.lastPut == nil {
		t.Fatal("no cart update reached the remote")
	}
	if remote.lastPut.ID != "cart-1" || remote.lastPut.Version != 7 {
		t.Fatalf("update did not echo cart identity: %+v", remote.lastPut)
	}
	if len(remote.lastPut.Lines) != 1 || remote.lastPut.Lines[0].Quantity != 4 {
		t.Fatalf("expected accumulated quantity 4, got: %+v", remote.lastPut.Lines)
	}
}

func TestMCPTool_AddToCartBulk(t *testing.T) {
	deps, remote := newTestDeps(t)
	authenticate(t, deps)
	handler := mcpAddToCartBulk(deps)

	req := makeCallToolRequest("add_to_cart_bulk", map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"product_id": "p1", "quantity": 2},
			map[string]interface{}{"product_id": "p2"},
			map[string]interface{}{"product_id": "p1", "quantity": 1},
		},
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	if remote.lastPut == nil {
		t.Fatal("no cart update reached the remote")
	}
	lines := remote.lastPut.Lines
	if len(lines) != 2 {
		t.Fatalf("expected 2 merged lines, got %d", len(lines))
	}
	if lines[0].ProductID != "p1" || lines[0].Quantity != 3 {
		t.Fatalf("expected p1 qty 3, got: %+v", lines[0])
	}
	if lines[1].ProductID != "p2" || lines[1].Quantity != 1 {
		t.Fatalf("expected p2 default qty 1, got: %+v", lines[1])
	}
	if !strings.Contains(toolText(t, result), "3 product(s)") {
		t.Fatalf("unexpected confirmation: %s", toolText(t, result))
	}
}

func TestMCPTool_AddToCartBulk_NoItems(t *testing.T) {
	deps, _ := newTestDeps(t)
	authenticate(t, deps)
	handler := mcpAddToCartBulk(deps)

	req := makeCallToolRequest("add_to_cart_bulk", map[string]interface{}{
		"items": []interface{}{},
	})
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for empty items")
	}
}

func TestMCPTool_ClearCart(t *testing.T) {
	deps, remote := newTestDeps(t)
	authenticate(t, deps)
	remote.cart.Lines = []mercadona.CartLine{
		{Product: available("p1", "Leche Entera", "1.15"), Quantity: 2},
	}
	handler := mcpClearCart(deps)

	result, err := handler(context.Background(), makeCallToolRequest("clear_cart", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if remote.lastPut == nil || len(remote.lastPut.Lines) != 0 {
		t.Fatalf("expected empty line set, got: %+v", remote.lastPut)
	}
}

func TestMCPTool_CalculateSmartCart_WritesReport(t *testing.T) {
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
		OrderedQuantity: 1,
		Product:         available("p1", "Leche Entera", "1.15"),
	}
	remote.lines["o1"] = []mercadona.OrderLine{line}
	remote.lines["o2"] = []mercadona.OrderLine{line}
	remote.lines["o3"] = []mercadona.OrderLine{line}

	handler := mcpCalculateSmartCart(deps)
	result, err := handler(context.Background(), makeCallToolRequest("calculate_smart_cart", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "1 recommendations") {
		t.Fatalf("unexpected confirmation: %s", toolText(t, result))
	}

	data, err := os.ReadFile(deps.Config.Report.File)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	var report struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("failed to parse report: %v", err)
	}
	if len(report.Items) != 1 || report.Items[0].ID != "p1" {
		t.Fatalf("unexpected report items: %+v", report.Items)
	}
}

func TestMCPResource_Cart(t *testing.T) {
	deps, remote := newTestDeps(t)
	authenticate(t, deps)
	remote.cart.Summary.Total = "12.30"

	handler := mcpResourceCart(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("mercadona://cart"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var c mercadona.Cart
	if err := json.Unmarshal([]byte(tc.Text), &c); err != nil {
		t.Fatalf("failed to parse cart: %v", err)
	}
	if c.Summary.Total != "12.30" {
		t.Fatalf("unexpected total: %s", c.Summary.Total)
	}
}

func TestMCPResource_SmartCart_Missing(t *testing.T) {
	deps, _ := newTestDeps(t)

	handler := mcpResourceSmartCart(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("mercadona://smart_cart"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc := contents[0].(mcp.TextResourceContents)
	if !strings.Contains(tc.Text, "No smart cart calculation found") {
		t.Fatalf("expected missing-report notice, got: %s", tc.Text)
	}
}

func TestMCPTool_Login_ReturnsProcedure(t *testing.T) {
	handler := mcpLogin()

	result, err := handler(context.Background(), makeCallToolRequest("login", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := toolText(t, result)
	if !strings.Contains(text, "authenticate-user") || !strings.Contains(text, "set_credentials") {
		t.Fatalf("login procedure incomplete: %s", text)
	}
}

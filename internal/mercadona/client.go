package mercadona

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const searchTimeout = 10 * time.Second

// Options configures a Client. SearchBaseURL is derived from SearchAppID
// when empty; tests set it to point at a local fake.
type Options struct {
	BaseURL       string
	SearchAppID   string
	SearchAPIKey  string
	SearchBaseURL string
}

// Client talks to the retailer's private web API under a fixed Session.
// It makes one attempt per call; there is no retry policy.
type Client struct {
	opts       Options
	session    Session
	httpClient *http.Client
}

// New creates a Client for the given session.
func New(opts Options, session Session) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.SearchBaseURL == "" {
		opts.SearchBaseURL = fmt.Sprintf("https://%s-dsn.algolia.net", opts.SearchAppID)
	}
	opts.SearchBaseURL = strings.TrimRight(opts.SearchBaseURL, "/")
	return &Client{
		opts:    opts,
		session: session,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Session returns the session the client was built with.
func (c *Client) Session() Session {
	return c.session
}

// commonParams returns the query string shared by product, cart, and order
// endpoints: language plus the warehouse partition.
func (c *Client) commonParams() string {
	return "?lang=es&wh=" + c.session.WarehouseID
}

func (c *Client) authHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.session.Token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
}

// searchRequest is the JSON body for the search index query.
type searchRequest struct {
	Query string `json:"query"`
}

// searchResponse mirrors the search index reply; hits carry full products.
type searchResponse struct {
	Hits []Product `json:"hits"`
}

// Search queries the per-warehouse product index and returns purchasable
// hits: unpublished items and items already marked unavailable are filtered
// out. The call runs under a fixed timeout.
func (c *Client) Search(ctx context.Context, query string) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/1/indexes/products_prod_%s_es/query", c.opts.SearchBaseURL, c.session.WarehouseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("x-algolia-application-id", c.opts.SearchAppID)
	req.Header.Set("x-algolia-api-key", c.opts.SearchAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "search", Code: resp.StatusCode}
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	products := make([]Product, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if hit.Available() {
			products = append(products, hit)
		}
	}
	return products, nil
}

// GetProduct fetches full details for a single catalog item.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	url := fmt.Sprintf("%s/products/%s/%s", c.opts.BaseURL, productID, c.commonParams())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating product request: %w", err)
	}
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("product request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "get product", Code: resp.StatusCode}
	}

	var p Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding product: %w", err)
	}
	return &p, nil
}

// GetCart fetches the authoritative cart for the session's customer.
func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	if !c.session.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	url := fmt.Sprintf("%s/customers/%s/cart/%s", c.opts.BaseURL, c.session.CustomerID, c.commonParams())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating cart request: %w", err)
	}
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cart request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "get cart", Code: resp.StatusCode}
	}

	var cart Cart
	if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}
	return &cart, nil
}

// cartUpdate is the PUT body for a full-replace cart update. The version
// must be the one read from the current cart; the server rejects stale
// writes on its own terms.
type cartUpdate struct {
	ID      string     `json:"id"`
	Version int64      `json:"version"`
	Lines   []CartItem `json:"lines"`
}

// UpdateCart replaces the cart's full line set. It first fetches the current
// cart to obtain the id and version to echo back, then submits the desired
// lines in a single PUT. Any 2xx response is success.
func (c *Client) UpdateCart(ctx context.Context, items []CartItem) error {
	current, err := c.GetCart(ctx)
	if err != nil {
		return fmt.Errorf("fetching cart before update: %w", err)
	}

	if items == nil {
		items = []CartItem{}
	}
	body, err := json.Marshal(cartUpdate{ID: current.ID, Version: current.Version, Lines: items})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/customers/%s/cart/%s", c.opts.BaseURL, c.session.CustomerID, c.commonParams())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating cart update request: %w", err)
	}
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cart update request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: "update cart", Code: resp.StatusCode}
	}
	return nil
}

// ordersResponse mirrors the paginated order listing.
type ordersResponse struct {
	Results []Order `json:"results"`
}

// ListOrders returns at most limit most-recent orders.
func (c *Client) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	if !c.session.Authenticated() {
		return nil, ErrNotAuthenticated
	}
	if limit <= 0 {
		limit = 100
	}

	url := fmt.Sprintf("%s/customers/%s/orders/", c.opts.BaseURL, c.session.CustomerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating orders request: %w", err)
	}
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orders request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "list orders", Code: resp.StatusCode}
	}

	var result ordersResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding orders: %w", err)
	}

	if len(result.Results) > limit {
		result.Results = result.Results[:limit]
	}
	return result.Results, nil
}

// orderLinesResponse mirrors the prepared-lines listing for one order.
type orderLinesResponse struct {
	Results []OrderLine `json:"results"`
}

// OrderLines fetches the prepared line items of a past order.
func (c *Client) OrderLines(ctx context.Context, orderID string) ([]OrderLine, error) {
	if !c.session.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	url := fmt.Sprintf("%s/customers/%s/orders/%s/lines/prepared/", c.opts.BaseURL, c.session.CustomerID, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating order lines request: %w", err)
	}
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order lines request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "order lines", Code: resp.StatusCode}
	}

	var result orderLinesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding order lines: %w", err)
	}
	return result.Results, nil
}

package mercadona

// PriceInstructions is the pricing block attached to catalog products.
// Only the fields the tools surface are mapped; the rest of the payload is
// ignored on decode.
type PriceInstructions struct {
	UnitPrice      string  `json:"unit_price"`
	BulkPrice      string  `json:"bulk_price"`
	ReferencePrice string  `json:"reference_price"`
	UnitName       string  `json:"unit_name"`
	UnitSize       float64 `json:"unit_size"`
	IsPack         bool    `json:"is_pack"`
	PackSize       float64 `json:"pack_size"`
}

// Product is a catalog item. UnavailableFrom is null for purchasable items;
// a non-empty value marks the item as withdrawn from sale.
type Product struct {
	ID                string             `json:"id"`
	DisplayName       string             `json:"display_name"`
	Packaging         string             `json:"packaging"`
	Thumbnail         string             `json:"thumbnail"`
	ShareURL          string             `json:"share_url"`
	Published         bool               `json:"published"`
	UnavailableFrom   *string            `json:"unavailable_from"`
	PriceInstructions *PriceInstructions `json:"price_instructions,omitempty"`
}

// Available reports whether the product can currently be ordered.
func (p Product) Available() bool {
	return p.Published && (p.UnavailableFrom == nil || *p.UnavailableFrom == "")
}

// CartItem is the wire form of one desired cart line in a cart update.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartLine is one line of the remote cart as the server reports it.
type CartLine struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Cart is the authoritative server-side cart. Version is an opaque,
// monotonically advancing token; updates must echo back the version they
// read and the server arbitrates conflicts.
type Cart struct {
	ID      string     `json:"id"`
	Version int64      `json:"version"`
	Lines   []CartLine `json:"lines"`
	Summary struct {
		Total string `json:"total"`
	} `json:"summary"`
}

// Items projects the cart's lines into the wire form used for updates.
func (c Cart) Items() []CartItem {
	items := make([]CartItem, 0, len(c.Lines))
	for _, line := range c.Lines {
		items = append(items, CartItem{ProductID: line.Product.ID, Quantity: line.Quantity})
	}
	return items
}

// Order is one record of purchase history.
type Order struct {
	ID        string  `json:"id"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Status    string  `json:"status"`
	Total     float64 `json:"total"`
}

// OrderLine is one prepared line of a past order.
type OrderLine struct {
	ProductID       string  `json:"product_id"`
	OrderedQuantity float64 `json:"ordered_quantity"`
	Product         Product `json:"product"`
}

// Package cart computes the next full desired cart-line set from the current
// remote state plus a batch of requested changes. The remote update contract
// is full-replace, not patch, so every mutation is a read-merge-write of the
// complete line set.
package cart

import (
	"context"
	"fmt"

	"github.com/aganoob/mercadona-mcp/internal/mercadona"
)

// Change is one requested cart mutation: add Quantity of ProductID.
// Quantity <= 0 means "unspecified" and defaults to 1.
type Change struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartService is the slice of the session client the reconciler needs.
type CartService interface {
	GetCart(ctx context.Context) (*mercadona.Cart, error)
	UpdateCart(ctx context.Context, items []mercadona.CartItem) error
}

// Reconciler applies mutation batches against the authoritative remote cart.
// Each operation is atomic from the caller's point of view: one fetch, one
// merge, one PUT of the full resulting set.
type Reconciler struct {
	svc CartService
}

func NewReconciler(svc CartService) *Reconciler {
	return &Reconciler{svc: svc}
}

// Add adds quantity of a single product. quantity <= 0 defaults to 1.
func (r *Reconciler) Add(ctx context.Context, productID string, quantity int) error {
	return r.AddBulk(ctx, []Change{{ProductID: productID, Quantity: quantity}})
}

// AddBulk merges a batch of adds into the current cart. Quantities for
// products already in the cart accumulate; duplicate product ids within one
// batch accumulate across all their occurrences.
func (r *Reconciler) AddBulk(ctx context.Context, changes []Change) error {
	current, err := r.svc.GetCart(ctx)
	if err != nil {
		return fmt.Errorf("fetching cart: %w", err)
	}

	next := mergeAdd(current.Items(), changes)
	if err := r.svc.UpdateCart(ctx, next); err != nil {
		return fmt.Errorf("updating cart: %w", err)
	}
	return nil
}

// Remove drops the target product's line entirely, leaving all other lines
// at their current quantities. Removing an absent product is a no-op success.
func (r *Reconciler) Remove(ctx context.Context, productID string) error {
	current, err := r.svc.GetCart(ctx)
	if err != nil {
		return fmt.Errorf("fetching cart: %w", err)
	}

	next := removeLine(current.Items(), productID)
	if err := r.svc.UpdateCart(ctx, next); err != nil {
		return fmt.Errorf("updating cart: %w", err)
	}
	return nil
}

// Clear replaces the cart with an empty line set.
func (r *Reconciler) Clear(ctx context.Context) error {
	if err := r.svc.UpdateCart(ctx, []mercadona.CartItem{}); err != nil {
		return fmt.Errorf("clearing cart: %w", err)
	}
	return nil
}

// mergeAdd builds the next line set: a quantity mapping seeded from every
// current line, with each requested change incrementing its product's entry
// (never overwriting). Changes with an empty product id are skipped. The
// emitted order is current lines first, then new products in first-encounter
// order, so the PUT body is deterministic.
func mergeAdd(current []mercadona.CartItem, changes []Change) []mercadona.CartItem {
	quantities := make(map[string]int, len(current)+len(changes))
	order := make([]string, 0, len(current)+len(changes))

	for _, item := range current {
		if _, seen := quantities[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	for _, ch := range changes {
		if ch.ProductID == "" {
			continue
		}
		qty := ch.Quantity
		if qty <= 0 {
			qty = 1
		}
		if _, seen := quantities[ch.ProductID]; !seen {
			order = append(order, ch.ProductID)
		}
		quantities[ch.ProductID] += qty
	}

	next := make([]mercadona.CartItem, 0, len(order))
	for _, pid := range order {
		next = append(next, mercadona.CartItem{ProductID: pid, Quantity: quantities[pid]})
	}
	return next
}

// removeLine returns current without the target product's line.
func removeLine(current []mercadona.CartItem, productID string) []mercadona.CartItem {
	next := make([]mercadona.CartItem, 0, len(current))
	for _, item := range current {
		if item.ProductID == productID {
			continue
		}
		next = append(next, item)
	}
	return next
}

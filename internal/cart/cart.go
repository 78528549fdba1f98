package cart

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// SortOrder selects the direction of Cart.Sorted.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// Cart is an in-memory shopping cart.
//
// Lines keep insertion order; quantities are tracked per product identity
// (SKU), so adding the same product twice sums its quantity.
//
// Thread-safety: Cart is safe for concurrent use via internal mutex.
type Cart struct {
	mu         sync.Mutex
	items      []Item
	quantities map[int64]int64 // SKU -> total quantity
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{quantities: make(map[int64]int64)}
}

// AddToCart appends item and adds qty to its product's quantity.
func (c *Cart) AddToCart(item Item, qty int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, item)
	c.quantities[item.SKU] += qty
}

// QuantityFor returns the total quantity added for item's product.
// ok is false when the product was never added.
func (c *Cart) QuantityFor(item Item) (qty int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	qty, ok = c.quantities[item.SKU]
	return qty, ok
}

// Items returns the cart lines in insertion order.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Sorted returns the cart lines ordered by price. Lines with equal prices
// keep insertion order.
func (c *Cart) Sorted(order SortOrder) []Item {
	items := c.Items()
	switch order {
	case Descending:
		slices.SortStableFunc(items, func(a, b Item) int { return OrderByPrice(b, a) })
	default:
		slices.SortStableFunc(items, OrderByPrice)
	}
	return items
}

// AnonymousUser is recorded as addedBy for sessions without a signed-in user.
const AnonymousUser = "Not Signed In/Semi Anon"

// Session is one shopper's context. Create one per shopper and pass it
// explicitly; there is no process-wide session.
type Session struct {
	User string // empty when not signed in
	Cart *Cart
}

// NewSession creates a session for user with an empty cart.
func NewSession(user string) *Session {
	return &Session{User: user, Cart: NewCart()}
}

// AddedBy returns the value recorded in addedBy for this session.
func (s *Session) AddedBy() string {
	if s == nil || s.User == "" {
		return AnonymousUser
	}
	return s.User
}

// Pusher stores a value under a generated key. Implemented by *store.Store.
type Pusher interface {
	Push(ctx context.Context, collection string, value any) (string, error)
}

// Writer pushes cart items to a collection.
type Writer struct {
	pusher     Pusher
	collection string
}

// NewWriter creates a Writer for collection.
func NewWriter(p Pusher, collection string) *Writer {
	return &Writer{pusher: p, collection: collection}
}

// AddItem pushes item with addedBy set from the session and returns the
// generated key. The item is also added to the session's cart.
func (w *Writer) AddItem(ctx context.Context, session *Session, item Item) (string, error) {
	item.AddedBy = session.AddedBy()
	key, err := w.pusher.Push(ctx, w.collection, item.Fields())
	if err != nil {
		return "", fmt.Errorf("add item %s: %w", item, err)
	}
	if session != nil && session.Cart != nil {
		session.Cart.AddToCart(item, item.Quantity)
	}
	return key, nil
}

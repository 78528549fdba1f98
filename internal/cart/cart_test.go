package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/store"
	"github.com/roach88/recordsync/internal/testutil"
)

var (
	widget = Item{Price: 9.99, Name: "Widget", SKU: 1, Quantity: 1}
	gadget = Item{Price: 4.5, Name: "Gadget", SKU: 2, Quantity: 1}
	gizmo  = Item{Price: 20, Name: "Gizmo", SKU: 3, Quantity: 1}
)

func TestItem_String(t *testing.T) {
	assert.Equal(t, "Widget $9.99", widget.String())
	assert.Equal(t, "Gizmo $20.00", gizmo.String())
}

func TestEqualsByIdentity_IgnoresPrice(t *testing.T) {
	discounted := widget
	discounted.Price = 1

	assert.True(t, EqualsByIdentity(widget, discounted))
	assert.False(t, EqualsByIdentity(widget, gadget))
}

func TestOrderByPrice(t *testing.T) {
	assert.Negative(t, OrderByPrice(gadget, widget))
	assert.Positive(t, OrderByPrice(gizmo, widget))

	samePrice := Item{Price: widget.Price, SKU: 99}
	assert.Zero(t, OrderByPrice(widget, samePrice))
	assert.False(t, EqualsByIdentity(widget, samePrice), "equal price is not equal identity")
}

func TestCart_QuantitySumsByIdentity(t *testing.T) {
	c := NewCart()
	c.AddToCart(widget, 2)
	c.AddToCart(gadget, 1)
	c.AddToCart(Item{Price: 5, Name: "Widget (sale)", SKU: 1}, 3)

	qty, ok := c.QuantityFor(widget)
	require.True(t, ok)
	assert.Equal(t, int64(5), qty)

	_, ok = c.QuantityFor(gizmo)
	assert.False(t, ok)

	assert.Len(t, c.Items(), 3)
}

func TestCart_Sorted(t *testing.T) {
	c := NewCart()
	c.AddToCart(widget, 1)
	c.AddToCart(gizmo, 1)
	c.AddToCart(gadget, 1)

	assert.Equal(t, []Item{gadget, widget, gizmo}, c.Sorted(Ascending))
	assert.Equal(t, []Item{gizmo, widget, gadget}, c.Sorted(Descending))
	assert.Equal(t, []Item{widget, gizmo, gadget}, c.Items(), "sorting leaves insertion order intact")
}

func TestSession_AddedBy(t *testing.T) {
	assert.Equal(t, "u1", NewSession("u1").AddedBy())
	assert.Equal(t, AnonymousUser, NewSession("").AddedBy())
	assert.Equal(t, "Not Signed In/Semi Anon", AnonymousUser)
}

func TestSession_NotShared(t *testing.T) {
	a, b := NewSession("a"), NewSession("b")
	a.Cart.AddToCart(widget, 1)
	assert.Empty(t, b.Cart.Items())
}

func TestItemFromFields(t *testing.T) {
	item, err := ItemFromFields(ir.Fields{
		"price":    ir.Int(3),
		"name":     ir.String("Bolt"),
		"sku":      ir.Int(7),
		"quantity": ir.Int(2),
		"addedBy":  ir.Null{},
	})
	require.NoError(t, err)
	assert.Equal(t, Item{Price: 3, Name: "Bolt", SKU: 7, Quantity: 2}, item)

	round, err := ItemFromFields(widget.Fields())
	require.NoError(t, err)
	assert.Equal(t, widget, round)
}

func TestItemFromFields_Errors(t *testing.T) {
	base := widget.Fields()

	tests := []struct {
		name  string
		field string
		value ir.Value
		want  string
	}{
		{"missing price", "price", nil, `field "price": missing`},
		{"string sku", "sku", ir.String("7"), `field "sku": want integer`},
		{"fractional quantity", "quantity", ir.Number(1.5), `field "quantity": want integer`},
		{"numeric owner", "addedBy", ir.Int(1), `field "addedBy": want string`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base.Clone()
			if tt.value == nil {
				delete(f, tt.field)
			} else {
				f[tt.field] = tt.value
			}
			_, err := ItemFromFields(f)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestWriter_AddItem(t *testing.T) {
	ctx := context.Background()
	s := testutil.OpenStore(t, store.WithKeyGenerator(testutil.NewSequentialKeys("")))
	w := NewWriter(s, "shoppingCartItems")

	signedIn := NewSession("u1")
	key, err := w.AddItem(ctx, signedIn, widget)
	require.NoError(t, err)
	assert.Equal(t, "k1", key)

	anon := NewSession("")
	key, err = w.AddItem(ctx, anon, gadget)
	require.NoError(t, err)
	assert.Equal(t, "k2", key)

	n, err := s.Get(ctx, "shoppingCartItems", "k1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"addedBy":"u1","name":"Widget","price":9.99,"quantity":1,"sku":1}`, string(n.Value))

	n, err = s.Get(ctx, "shoppingCartItems", "k2")
	require.NoError(t, err)
	rec, err := n.Record()
	require.NoError(t, err)
	item, err := ItemFromFields(rec.Fields)
	require.NoError(t, err)
	assert.Equal(t, AnonymousUser, item.AddedBy)

	qty, ok := signedIn.Cart.QuantityFor(widget)
	require.True(t, ok)
	assert.Equal(t, int64(1), qty)
}

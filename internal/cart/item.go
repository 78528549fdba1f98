// Package cart holds the shopping-cart domain: items, an in-memory cart,
// an explicit session, and a writer that pushes items to the store in the
// record shape the watcher validates.
package cart

import (
	"cmp"
	"fmt"

	"github.com/roach88/recordsync/internal/ir"
)

// Record field names.
const (
	FieldPrice    = "price"
	FieldName     = "name"
	FieldSKU      = "sku"
	FieldQuantity = "quantity"
)

// Item is one product line.
//
// Items have two distinct comparisons: identity (EqualsByIdentity, by SKU)
// and ordering (OrderByPrice). Two items can share a price without being
// the same product.
type Item struct {
	Price    float64 `json:"price"`
	Name     string  `json:"name"`
	SKU      int64   `json:"sku"`
	Quantity int64   `json:"quantity"`
	AddedBy  string  `json:"addedBy,omitempty"`
}

// String formats the item as "name $price".
func (i Item) String() string {
	return fmt.Sprintf("%s $%0.2f", i.Name, i.Price)
}

// EqualsByIdentity reports whether a and b are the same product.
func EqualsByIdentity(a, b Item) bool {
	return a.SKU == b.SKU
}

// OrderByPrice compares a and b by price. Suitable for slices.SortFunc.
func OrderByPrice(a, b Item) int {
	return cmp.Compare(a.Price, b.Price)
}

// Fields returns the record form of the item. addedBy is omitted when empty.
func (i Item) Fields() ir.Fields {
	f := ir.Fields{
		FieldPrice:    ir.Number(i.Price),
		FieldName:     ir.String(i.Name),
		FieldSKU:      ir.Int(i.SKU),
		FieldQuantity: ir.Int(i.Quantity),
	}
	if i.AddedBy != "" {
		f[ir.FieldAddedBy] = ir.String(i.AddedBy)
	}
	return f
}

// ItemFromFields decodes a record into an Item.
// price accepts integers; sku and quantity must be integers.
func ItemFromFields(f ir.Fields) (Item, error) {
	var item Item

	switch v := f[FieldPrice].(type) {
	case ir.Number:
		item.Price = float64(v)
	case ir.Int:
		item.Price = float64(v)
	default:
		return Item{}, fieldError(FieldPrice, "number", f[FieldPrice])
	}

	name, ok := f[FieldName].(ir.String)
	if !ok {
		return Item{}, fieldError(FieldName, "string", f[FieldName])
	}
	item.Name = string(name)

	sku, ok := f[FieldSKU].(ir.Int)
	if !ok {
		return Item{}, fieldError(FieldSKU, "integer", f[FieldSKU])
	}
	item.SKU = int64(sku)

	qty, ok := f[FieldQuantity].(ir.Int)
	if !ok {
		return Item{}, fieldError(FieldQuantity, "integer", f[FieldQuantity])
	}
	item.Quantity = int64(qty)

	switch v := f[ir.FieldAddedBy].(type) {
	case nil, ir.Null:
	case ir.String:
		item.AddedBy = string(v)
	default:
		return Item{}, fieldError(ir.FieldAddedBy, "string", v)
	}

	return item, nil
}

func fieldError(field, want string, got ir.Value) error {
	if got == nil {
		return fmt.Errorf("field %q: missing, want %s", field, want)
	}
	return fmt.Errorf("field %q: want %s, got %T", field, want, got)
}

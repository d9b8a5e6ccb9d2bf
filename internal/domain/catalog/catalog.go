package catalog

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("catalog: product not found")

// Product is the read-only view the checkout surface consumes. Price is in
// minor currency units.
type Product struct {
	ID    string
	Name  string
	Price int64
	Stock int
}

// Reader is the catalog contract. The coordinator never reads live prices;
// only the cart surface consults the catalog, to validate products and to
// snapshot unit prices.
type Reader interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
}

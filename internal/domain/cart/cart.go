package cart

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("cart: item not found")
	ErrInvalidQuantity = errors.New("cart: quantity must be greater than zero")
)

// Line is a single product entry in a user's cart.
type Line struct {
	ProductID string
	Quantity  int
}

type Cart struct {
	UserID    string
	Lines     []Line
	UpdatedAt time.Time
}

func New(userID string) *Cart {
	return &Cart{UserID: userID, UpdatedAt: time.Now().UTC()}
}

// SetLine adds the product or overwrites its quantity when already present.
// Cart edits are last-writer-wins per user.
func (c *Cart) SetLine(productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = quantity
			c.touch()
			return nil
		}
	}
	c.Lines = append(c.Lines, Line{ProductID: productID, Quantity: quantity})
	c.touch()
	return nil
}

// UpdateLine changes the quantity of an existing line.
func (c *Cart) UpdateLine(productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines[i].Quantity = quantity
			c.touch()
			return nil
		}
	}
	return ErrNotFound
}

func (c *Cart) RemoveLine(productID string) {
	kept := c.Lines[:0]
	for _, l := range c.Lines {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	c.Lines = kept
	c.touch()
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Lines = append([]Line(nil), c.Lines...)
	return &clone
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now().UTC()
}

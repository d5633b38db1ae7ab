// Package model defines data structures for the catalog command orchestrator.
package model

import (
	"time"
)

// Product is one row of the catalog snapshot fetched for a command.
type Product struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Price              float64    `json:"price"`
	StockQuantity      int        `json:"stock_quantity"`
	DiscountPercentage float64    `json:"discount_percentage,omitempty"`
	DiscountExpiresAt  *time.Time `json:"discount_expires_at,omitempty"`
	OriginalPrice      float64    `json:"original_price,omitempty"`
	CreatedAt          time.Time  `json:"created_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at,omitempty"`
}

// HasDiscount reports whether a discount is currently stored on the product.
func (p *Product) HasDiscount() bool {
	return p.DiscountPercentage > 0
}

// BasePrice returns the undiscounted price of the product.
func (p *Product) BasePrice() float64 {
	if p.OriginalPrice > 0 {
		return p.OriginalPrice
	}
	return p.Price
}

// Snapshot is the ordered product list a single command operates on. It is
// fetched fresh per command and never mutated in place.
type Snapshot struct {
	ShopID   string
	ShopName string
	Products []Product
}

// FindByID returns the product with the given id, or nil.
func (s *Snapshot) FindByID(id string) *Product {
	for i := range s.Products {
		if s.Products[i].ID == id {
			return &s.Products[i]
		}
	}
	return nil
}

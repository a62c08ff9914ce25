// Package model defines domain types used by the service.
package model

// Product represents one catalog entry.
type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Stock is the quantity record paired one-to-one with a Product.
type Stock struct {
	ProductID string `json:"product_id"`
	Count     int64  `json:"count"`
}

// IngestMessage is the queue-resident form of one parsed catalog row.
//
// ID is assigned by the consumer when the row omits one. Title and Price are
// required; a message missing either is failed rather than committed.
type IngestMessage struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description,omitempty"`
	Price       *float64 `json:"price" validate:"required,gt=0"`
	Count       *int64   `json:"count,omitempty" validate:"omitempty,gte=0"`
}

// ProductView is the denormalized read shape: catalog entry plus count.
type ProductView struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Count       int64   `json:"count"`
}

// View merges a product with its stock count.
func View(p Product, count int64) ProductView {
	return ProductView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Count:       count,
	}
}

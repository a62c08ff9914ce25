package store

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/catalog-import-service/internal/model"
)

// Seed loads a small demo catalog. Intended for local runs, gated behind
// configuration; production data arrives through the ingestion pipeline.
func (s *Store) Seed(ctx context.Context) error {
	products := []model.Product{
		{ID: "1", Title: "Product Title 1", Description: "Short Product Description 1", Price: 24},
		{ID: "2", Title: "Product Title 2", Description: "Short Product Description 2", Price: 15},
		{ID: "3", Title: "Product Title 3", Description: "Short Product Description 3", Price: 23},
		{ID: "4", Title: "Product Title 4", Description: "Short Product Description 4", Price: 15},
	}
	counts := map[string]int64{"1": 10, "2": 5, "3": 20, "4": 32}
	for _, p := range products {
		st := model.Stock{ProductID: p.ID, Count: counts[p.ID]}
		if err := s.Commit(ctx, p, st); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}

// Package store holds the two catalog tables (products, stocks) behind a
// single atomic commit. A product and its stock record are always written
// together; neither table is ever left with a dangling half.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/fairyhunter13/catalog-import-service/internal/model"
	"github.com/fairyhunter13/catalog-import-service/internal/obs"
)

// CommitHook runs inside the commit critical section, before either table is
// touched. Returning an error aborts the commit with no table modified. Used
// by tests to inject transaction failures.
type CommitHook func(p model.Product, s model.Stock) error

// Store keeps the products and stocks tables.
type Store struct {
	mu       sync.RWMutex
	products map[string]model.Product
	stocks   map[string]model.Stock
	hook     CommitHook
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		products: make(map[string]model.Product),
		stocks:   make(map[string]model.Stock),
	}
}

// SetCommitHook installs a hook executed inside every commit.
func (s *Store) SetCommitHook(h CommitHook) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

// Commit writes the product and its stock record atomically: both succeed or
// neither does. Re-committing an existing id overwrites both rows
// (last-write-wins), which makes replayed deliveries safe.
func (s *Store) Commit(ctx context.Context, p model.Product, st model.Stock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("commit: product id is empty")
	}
	if st.ProductID != p.ID {
		return fmt.Errorf("commit: stock product_id %q does not match product id %q", st.ProductID, p.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hook != nil {
		if err := s.hook(p, st); err != nil {
			obs.CommitsFailed.Inc()
			return fmt.Errorf("commit %s: %w", p.ID, err)
		}
	}
	s.products[p.ID] = p
	s.stocks[p.ID] = st
	obs.CommitsSucceeded.Inc()
	return nil
}

// GetProduct fetches one catalog entry.
func (s *Store) GetProduct(ctx context.Context, id string) (model.Product, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Product{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok, nil
}

// GetStock fetches the quantity record for a product. A missing record is
// reported as absent, not as an error; readers synthesize a zero default.
func (s *Store) GetStock(ctx context.Context, id string) (model.Stock, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Stock{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stocks[id]
	return st, ok, nil
}

// ListProducts returns every catalog entry, unordered.
func (s *Store) ListProducts(ctx context.Context) ([]model.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

// Len returns the number of catalog entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

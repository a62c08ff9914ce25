// Package catalog is the read path: it joins catalog entries with their
// quantity records into the denormalized view served to clients.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/catalog-import-service/internal/model"
)

// ErrNotFound is returned when no catalog entry exists for an id.
var ErrNotFound = errors.New("product not found")

// Reader is the slice of the store the aggregator reads from.
type Reader interface {
	GetProduct(ctx context.Context, id string) (model.Product, bool, error)
	GetStock(ctx context.Context, id string) (model.Stock, bool, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
}

// Aggregator answers point and list queries over the two tables.
type Aggregator struct {
	reader Reader
}

// NewAggregator creates an Aggregator over the given reader.
func NewAggregator(r Reader) *Aggregator {
	return &Aggregator{reader: r}
}

// GetByID fetches one entry joined with its quantity record. A missing
// quantity record is a valid state and yields count 0, not an error.
func (a *Aggregator) GetByID(ctx context.Context, id string) (model.ProductView, error) {
	p, ok, err := a.reader.GetProduct(ctx, id)
	if err != nil {
		return model.ProductView{}, fmt.Errorf("get product %s: %w", id, err)
	}
	if !ok {
		return model.ProductView{}, ErrNotFound
	}
	st, ok, err := a.reader.GetStock(ctx, id)
	if err != nil {
		return model.ProductView{}, fmt.Errorf("get stock %s: %w", id, err)
	}
	if !ok {
		return model.View(p, 0), nil
	}
	return model.View(p, st.Count), nil
}

// List returns every entry joined with its quantity record. The per-entry
// joins run concurrently and are awaited jointly; if any one fails, the whole
// call fails rather than returning a partial result.
func (a *Aggregator) List(ctx context.Context) ([]model.ProductView, error) {
	products, err := a.reader.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	views := make([]model.ProductView, len(products))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range products {
		g.Go(func() error {
			st, ok, err := a.reader.GetStock(gctx, p.ID)
			if err != nil {
				return fmt.Errorf("get stock %s: %w", p.ID, err)
			}
			var count int64
			if ok {
				count = st.Count
			}
			views[i] = model.View(p, count)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// Package static serves a fixed external product catalog from memory.
package static

import (
	"context"
	"slices"
	"sync"

	"github.com/avstrong/rentals/internal/catalog"
)

type Catalog struct {
	mu       sync.RWMutex
	products []catalog.ExternalProduct
}

func New(products ...catalog.ExternalProduct) *Catalog {
	c := &Catalog{}
	c.Replace(products...)

	return c
}

// Replace swaps the whole catalog, as a provider-side edit would.
func (c *Catalog) Replace(products ...catalog.ExternalProduct) {
	cloned := make([]catalog.ExternalProduct, len(products))
	for i, p := range products {
		p.Features = slices.Clone(p.Features)
		cloned[i] = p
	}

	c.mu.Lock()
	c.products = cloned
	c.mu.Unlock()
}

func (c *Catalog) ListProducts(_ context.Context) ([]catalog.ExternalProduct, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]catalog.ExternalProduct, len(c.products))
	for i, p := range c.products {
		p.Features = slices.Clone(p.Features)
		result[i] = p
	}

	return result, nil
}

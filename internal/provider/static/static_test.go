package static

import (
	"context"
	"testing"

	"github.com/avstrong/rentals/internal/catalog"
)

func TestListProductsReturnsCopies(t *testing.T) {
	c := New(catalog.ExternalProduct{ID: "ext_weekly", Features: []string{"wifi"}})

	got, err := c.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	got[0].Features[0] = "mutated"

	again, _ := c.ListProducts(context.Background())
	if again[0].Features[0] != "wifi" {
		t.Fatalf("features = %v, catalog shares memory with callers", again[0].Features)
	}

	c.Replace()

	empty, _ := c.ListProducts(context.Background())
	if len(empty) != 0 {
		t.Fatalf("after replace got %d products, want 0", len(empty))
	}
}

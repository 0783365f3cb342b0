// Package catalog keeps the product store and the full-text product index in sync and
// answers catalog queries for the assistant.
package catalog

import (
	"context"

	"github.com/hyperjump/decora/internal/models"
)

// SearchOptions optional parameters for index search. Nil means use defaults.
type SearchOptions struct {
	// NameBoost multiplies the score of matches in the product name. Values <= 1 disable it.
	NameBoost float64
	// Fuzzy enables typo-tolerant term matching.
	Fuzzy bool
	// Fuzziness is the maximum edit distance per term when Fuzzy is set (1 or 2). Default 1.
	Fuzziness int
}

// Index defines full-text product index operations.
type Index interface {
	Index(ctx context.Context, p *models.Product) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Hit, error)
	Delete(ctx context.Context, id string) error
	Close() error
	// DocCount returns the total number of products in the index.
	DocCount() (uint64, error)
}

// Hit is a single index search result.
type Hit struct {
	ID    string
	Score float64
}

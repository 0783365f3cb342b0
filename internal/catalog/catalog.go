package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/decora/internal/models"
	"github.com/hyperjump/decora/internal/productid"
	"github.com/hyperjump/decora/internal/storage"
)

const (
	defaultSearchLimit = 20
	// rankingPool bounds how many index hits are used to rank a filtered query.
	rankingPool = 200
	nameBoost   = 2.0
)

// Catalog stores products and keeps the full-text index in sync with storage.
type Catalog struct {
	storage storage.Storage
	index   Index
	logger  *zap.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// New creates a catalog over the given storage and index.
func New(store storage.Storage, index Index, opts ...Option) *Catalog {
	c := &Catalog{storage: store, index: index, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert validates and stores a product, then indexes it. Inputs without an ID get
// one derived from name and type, so re-importing the same item updates it.
func (c *Catalog) Upsert(ctx context.Context, in *models.ProductInput) (*models.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = productid.For(in.Name, in.Type)
	}
	p := in.ToProduct(id)
	if err := c.storage.UpsertProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to store product: %w", err)
	}
	if err := c.index.Index(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to index product: %w", err)
	}
	c.logger.Debug("catalog product upserted", zap.String("id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// Delete removes a product from storage and the index.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.storage.DeleteProduct(ctx, id); err != nil {
		return err
	}
	if err := c.index.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from index: %w", err)
	}
	c.logger.Debug("catalog product deleted", zap.String("id", id))
	return nil
}

// Get returns a product by ID.
func (c *Catalog) Get(ctx context.Context, id string) (*models.Product, error) {
	return c.storage.GetProduct(ctx, id)
}

// List returns products filtered by style and type. Empty filters match any value.
func (c *Catalog) List(ctx context.Context, style, productType string, offset, limit int) ([]*models.Product, error) {
	style = strings.ToLower(strings.TrimSpace(style))
	productType = strings.ToLower(strings.TrimSpace(productType))
	if style == "" && productType == "" {
		return c.storage.ListProducts(ctx, offset, limit)
	}
	all, err := c.storage.QueryProducts(ctx, style, productType, 0)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return []*models.Product{}, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Search runs a full-text search over the catalog. When the exact query matches
// nothing, it retries with fuzzy matching.
func (c *Catalog) Search(ctx context.Context, text string, limit int) ([]*models.Product, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	hits, err := c.index.Search(ctx, text, limit, &SearchOptions{NameBoost: nameBoost})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		hits, err = c.index.Search(ctx, text, limit, &SearchOptions{NameBoost: nameBoost, Fuzzy: true})
		if err != nil {
			return nil, err
		}
	}
	out := make([]*models.Product, 0, len(hits))
	for _, h := range hits {
		p, err := c.storage.GetProduct(ctx, h.ID)
		if errors.Is(err, models.ErrProductNotFound) {
			c.logger.Debug("catalog index hit without stored product", zap.String("id", h.ID))
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Query selects products for display. Products matching q.Style and q.Type are
// ranked by q.Text relevance when set, skipping images in q.ExcludeImages and
// repeated images, and capped at q.Limit. When a style and type together leave
// nothing to show, the style filter is dropped.
func (c *Catalog) Query(ctx context.Context, q models.ProductQuery) ([]*models.Product, error) {
	out, err := c.query(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 && q.Style != "" && q.Type != "" {
		c.logger.Debug("catalog relaxing style filter", zap.String("style", q.Style), zap.String("type", q.Type))
		q.Style = ""
		return c.query(ctx, q)
	}
	return out, nil
}

func (c *Catalog) query(ctx context.Context, q models.ProductQuery) ([]*models.Product, error) {
	candidates, err := c.storage.QueryProducts(ctx, q.Style, q.Type, 0)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Text) != "" && len(candidates) > 1 {
		if err := c.rank(ctx, q.Text, candidates); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]*models.Product, 0, q.Limit)
	for _, p := range candidates {
		if _, skip := q.ExcludeImages[p.ImageURL]; skip {
			continue
		}
		if _, dup := seen[p.ImageURL]; dup {
			continue
		}
		seen[p.ImageURL] = struct{}{}
		out = append(out, p)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// rank reorders products in place: index hits for text first by score, then the rest
// in their original order.
func (c *Catalog) rank(ctx context.Context, text string, products []*models.Product) error {
	hits, err := c.index.Search(ctx, text, rankingPool, &SearchOptions{NameBoost: nameBoost, Fuzzy: true})
	if err != nil {
		return err
	}
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		scores[h.ID] = h.Score
	}
	sort.SliceStable(products, func(i, j int) bool {
		return scores[products[i].ID] > scores[products[j].ID]
	})
	return nil
}

// Reindex rebuilds the index from storage and returns the number of products indexed.
func (c *Catalog) Reindex(ctx context.Context) (int, error) {
	products, err := c.storage.ListProducts(ctx, 0, 0)
	if err != nil {
		return 0, err
	}
	for _, p := range products {
		if err := c.index.Index(ctx, p); err != nil {
			return 0, fmt.Errorf("failed to index product %s: %w", p.ID, err)
		}
	}
	c.logger.Info("catalog reindexed", zap.Int("products", len(products)))
	return len(products), nil
}

// IndexedCount returns the number of products in the index.
func (c *Catalog) IndexedCount() (uint64, error) {
	return c.index.DocCount()
}

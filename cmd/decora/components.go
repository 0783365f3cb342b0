package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hyperjump/decora/internal/ai"
	"github.com/hyperjump/decora/internal/assistant"
	"github.com/hyperjump/decora/internal/auth"
	"github.com/hyperjump/decora/internal/blobstore"
	"github.com/hyperjump/decora/internal/catalog"
	"github.com/hyperjump/decora/internal/config"
	"github.com/hyperjump/decora/internal/storage"
	"github.com/hyperjump/decora/internal/watcher"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Storage   storage.Storage
	Index     *catalog.BleveIndex
	Catalog   *catalog.Catalog
	Importer  *catalog.Importer
	Provider  ai.Provider
	Assistant *assistant.Assistant
	Uploads   *blobstore.DiskStore
	Auth      *auth.Authenticator
	Watcher   *watcher.Watcher
}

// Close releases resources held by components.
func (c *Components) Close() {
	if c.Watcher != nil {
		c.Watcher.Stop()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// initializeComponents opens storage and the catalog index. With withAssistant it
// also builds the model provider, assistant, upload store and authenticator.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withAssistant bool) (*Components, error) {
	store, err := storage.Open(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	idx, err := catalog.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize catalog index: %w", err)
	}
	c.Index = idx
	c.Catalog = catalog.New(store, idx, catalog.WithLogger(logger))
	c.Importer = catalog.NewImporter(c.Catalog, logger)

	if err := syncIndex(ctx, c, logger); err != nil {
		c.Close()
		return nil, err
	}

	if !withAssistant {
		return c, nil
	}

	provider, err := ai.New(ctx, &cfg.AI, publicHost(cfg))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize ai provider: %w", err)
	}
	c.Provider = provider
	c.Assistant = assistant.New(store, c.Catalog, provider,
		assistant.ConfigFrom(&cfg.AI, &cfg.Assistant),
		assistant.WithLogger(logger))

	uploads, err := blobstore.NewDiskStore(cfg.Storage.UploadsPath, cfg.Server.BaseURL(), logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize uploads: %w", err)
	}
	c.Uploads = uploads
	c.Auth = auth.New(cfg.Auth.JWTSecret, logger)

	logger.Info("assistant initialized",
		zap.String("provider", provider.Name()),
		zap.String("model", cfg.AI.Model),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Int("max_images", cfg.Assistant.MaxImages))
	return c, nil
}

// publicHost is the host uploads are served from; the model provider may fetch
// attached images from it even when it resolves to a private address.
func publicHost(cfg *config.Config) string {
	u, err := url.Parse(cfg.Server.BaseURL())
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// syncIndex rebuilds the catalog index when it is empty but storage has products,
// which happens after switching to an in-memory index or a fresh index path.
func syncIndex(ctx context.Context, c *Components, logger *zap.Logger) error {
	indexed, err := c.Catalog.IndexedCount()
	if err != nil {
		return fmt.Errorf("failed to read catalog index: %w", err)
	}
	stored, err := c.Storage.CountProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if indexed > 0 || stored == 0 {
		return nil
	}
	n, err := c.Catalog.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild catalog index: %w", err)
	}
	logger.Info("catalog index rebuilt", zap.Int("products", n))
	return nil
}

// seedCatalog imports the configured seed paths and, when enabled, starts watching
// them for changes.
func seedCatalog(ctx context.Context, c *Components, cfg *config.Config, logger *zap.Logger) error {
	if len(cfg.Catalog.SeedPaths) == 0 {
		return nil
	}
	w := watcher.New(c.Importer, cfg.Catalog.SeedPaths, cfg.Catalog.Extensions, watcher.WithLogger(logger))
	n := w.Sync(ctx)
	logger.Info("catalog seeded", zap.Strings("paths", cfg.Catalog.SeedPaths), zap.Int("products", n))
	if !cfg.Catalog.Watch {
		return nil
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start catalog watcher: %w", err)
	}
	c.Watcher = w
	return nil
}

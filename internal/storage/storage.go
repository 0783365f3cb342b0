// Package storage defines the persistence interface for sessions, messages, and products.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/decora/internal/models"
)

// Storage defines session, message, and catalog persistence operations.
// Lookups of unknown IDs return the matching models sentinel error.
type Storage interface {
	// Session operations
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, ownerID string, offset, limit int) ([]*models.Session, error)
	UpdateSessionTitle(ctx context.Context, id, title string) error
	TouchSession(ctx context.Context, id string, at time.Time) error
	DeleteSession(ctx context.Context, id string) error

	// Message operations
	AddMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error)
	ShownImages(ctx context.Context, sessionID string) ([]string, error)

	// Product operations
	UpsertProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context, offset, limit int) ([]*models.Product, error)
	QueryProducts(ctx context.Context, style, productType string, limit int) ([]*models.Product, error)

	// Stats
	CountSessions(ctx context.Context) (int64, error)
	CountMessages(ctx context.Context) (int64, error)
	CountProducts(ctx context.Context) (int64, error)

	Close() error
}

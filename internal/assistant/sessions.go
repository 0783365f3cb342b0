package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/decora/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxTitleLength  = 100
)

// CreateSession starts a session for owner. An empty title becomes the default title,
// which the first message replaces.
func (a *Assistant) CreateSession(ctx context.Context, owner, title string) (*models.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = models.DefaultSessionTitle
	}
	if len([]rune(title)) > maxTitleLength {
		return nil, fmt.Errorf("%w: title too long (max %d characters)", models.ErrInvalidInput, maxTitleLength)
	}
	now := a.now()
	sess := &models.Session{Title: title, OwnerID: owner, CreatedAt: now, UpdatedAt: now}
	if err := a.storage.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	a.logger.Debug("session created", zap.String("session_id", sess.ID), zap.String("owner", owner))
	return sess, nil
}

// ListSessions returns the owner's sessions, most recently active first.
func (a *Assistant) ListSessions(ctx context.Context, owner string, offset, limit int) ([]*models.Session, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	list, err := a.storage.ListSessions(ctx, owner, offset, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.Session{}
	}
	return list, nil
}

// GetSession returns a session with its messages.
func (a *Assistant) GetSession(ctx context.Context, id, owner string) (*models.SessionDetail, error) {
	sess, err := a.authorize(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	msgs, err := a.storage.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return &models.SessionDetail{Session: sess, Messages: msgs}, nil
}

// RenameSession changes a session title.
func (a *Assistant) RenameSession(ctx context.Context, id, owner, title string) (*models.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	}
	if len([]rune(title)) > maxTitleLength {
		return nil, fmt.Errorf("%w: title too long (max %d characters)", models.ErrInvalidInput, maxTitleLength)
	}
	if _, err := a.authorize(ctx, id, owner); err != nil {
		return nil, err
	}
	if err := a.storage.UpdateSessionTitle(ctx, id, title); err != nil {
		return nil, err
	}
	return a.storage.GetSession(ctx, id)
}

// DeleteSession removes a session, its messages, and its in-memory state.
func (a *Assistant) DeleteSession(ctx context.Context, id, owner string) error {
	if _, err := a.authorize(ctx, id, owner); err != nil {
		return err
	}
	unlock := a.state.Lock(id)
	defer unlock()
	if err := a.storage.DeleteSession(ctx, id); err != nil {
		return err
	}
	a.state.Drop(id)
	a.logger.Debug("session deleted", zap.String("session_id", id))
	return nil
}

// History returns a session's messages, oldest first.
func (a *Assistant) History(ctx context.Context, id, owner string) ([]*models.Message, error) {
	detail, err := a.GetSession(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	return detail.Messages, nil
}

// LatestSession returns the owner's most recently active session, creating one when the
// owner has none.
func (a *Assistant) LatestSession(ctx context.Context, owner string) (*models.Session, error) {
	list, err := a.storage.ListSessions(ctx, owner, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		return list[0], nil
	}
	return a.CreateSession(ctx, owner, "")
}

// ActiveSessions returns how many sessions have in-memory state.
func (a *Assistant) ActiveSessions() int {
	return a.state.Len()
}

func (a *Assistant) authorize(ctx context.Context, id, owner string) (*models.Session, error) {
	sess, err := a.storage.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != "" && sess.OwnerID != owner {
		return nil, fmt.Errorf("%w: session %s", models.ErrForbidden, id)
	}
	return sess, nil
}

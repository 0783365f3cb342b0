// Package ai talks to generative model providers.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hyperjump/decora/internal/config"
	"github.com/hyperjump/decora/internal/models"
)

var (
	ErrRateLimited   = errors.New("model provider rate limited the request")
	ErrUnavailable   = errors.New("model provider unavailable")
	ErrEmptyResponse = errors.New("model returned no content")
)

// Turn is one earlier message of the conversation.
type Turn struct {
	Role string // models.RoleUser or models.RoleAssistant
	Text string
}

// Request is a single generation call. ImageURL, when set, is sent to the model as a
// picture the user attached.
type Request struct {
	System      string
	History     []Turn
	Text        string
	ImageURL    string
	Temperature *float64
}

// Response is the model's answer.
type Response struct {
	Text string
}

// Provider generates a reply for a conversation.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// New returns the provider selected by cfg.Provider. Images attached to messages are
// only downloaded from public addresses or from imageHosts.
func New(ctx context.Context, cfg *config.AIConfig, imageHosts ...string) (Provider, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	switch strings.ToLower(cfg.Provider) {
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires ai.api_key (or DECORA_AI_API_KEY)")
		}
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, NewImageClient(cfg.Timeout, imageHosts...))
	case "openrouter":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openrouter provider requires ai.api_key (or DECORA_AI_API_KEY)")
		}
		return NewOpenRouterProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, httpClient), nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown ai provider: %s", cfg.Provider)
	}
}

// TurnsFromMessages converts stored messages into history turns, skipping messages
// without text and keeping at most the last limit turns (all when limit <= 0).
func TurnsFromMessages(msgs []*models.Message, limit int) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Text: m.Text})
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}

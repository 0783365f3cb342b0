package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/decora/internal/models"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider generates replies through an OpenAI-compatible chat completions API.
type OpenRouterProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenRouterProvider creates a provider. An empty baseURL uses OpenRouter.
func NewOpenRouterProvider(apiKey, model, baseURL string, httpClient *http.Client) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = defaultOpenRouterURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenRouterProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Name returns the provider name.
func (o *OpenRouterProvider) Name() string { return "openrouter" }

// Generate posts the conversation to /chat/completions and returns the first choice.
func (o *OpenRouterProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    buildChatMessages(req),
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w (429)", ErrRateLimited)
	case http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w (503)", ErrUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("chat completion failed (status %d): %s", resp.StatusCode, chatResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completion failed: status %d", resp.StatusCode)
	}
	if len(chatResp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{Text: text}, nil
}

func buildChatMessages(req Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	for _, t := range req.History {
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: t.Text})
	}
	if req.ImageURL == "" {
		msgs = append(msgs, chatMessage{Role: "user", Content: req.Text})
		return msgs
	}
	parts := make([]contentPart, 0, 2)
	if req.Text != "" {
		parts = append(parts, contentPart{Type: "text", Text: req.Text})
	}
	parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageRef{URL: req.ImageURL}})
	msgs = append(msgs, chatMessage{Role: "user", Content: parts})
	return msgs
}

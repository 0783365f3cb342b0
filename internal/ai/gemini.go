package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/hyperjump/decora/internal/models"
)

// GeminiProvider generates replies with the Gemini API.
type GeminiProvider struct {
	client     *genai.Client
	model      string
	httpClient *http.Client
}

// NewGeminiProvider creates a Gemini client. baseURL overrides the API endpoint when set.
// httpClient is used to download attached images.
func NewGeminiProvider(ctx context.Context, apiKey, model, baseURL string, httpClient *http.Client) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GeminiProvider{client: client, model: model, httpClient: httpClient}, nil
}

// Name returns the provider name.
func (g *GeminiProvider) Name() string { return "gemini" }

// Generate sends the conversation to Gemini and returns the concatenated text parts of
// the first candidate.
func (g *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var image *genai.Part
	if req.ImageURL != "" {
		data, mimeType, err := fetchImage(ctx, g.httpClient, req.ImageURL)
		if err != nil {
			return nil, err
		}
		image = &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
	}

	contents := buildGeminiContents(req, image)
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	text := geminiText(resp)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{Text: text}, nil
}

func buildGeminiContents(req Request, image *genai.Part) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		role := genai.RoleUser
		if t.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Text}},
		})
	}

	current := &genai.Content{Role: genai.RoleUser}
	if req.Text != "" {
		current.Parts = append(current.Parts, &genai.Part{Text: req.Text})
	}
	if image != nil {
		current.Parts = append(current.Parts, image)
	}
	if len(current.Parts) > 0 {
		contents = append(contents, current)
	}
	return contents
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if asAPIError(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		case http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %s", ErrUnavailable, apiErr.Message)
		}
	}
	return fmt.Errorf("gemini generate: %w", err)
}

func asAPIError(err error, out *genai.APIError) bool {
	if errors.As(err, out) {
		return true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		*out = *p
		return true
	}
	return false
}

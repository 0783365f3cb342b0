package models

import (
	"fmt"
	"strings"
)

// MaxMessageLength caps the size of a single user message.
const MaxMessageLength = 4000

// Reply sources.
const (
	SourceModel     = "model"
	SourceCatalog   = "catalog"
	SourceSelection = "selection"
	SourceNone      = "none"
)

// SendRequest is a user message sent to the assistant.
type SendRequest struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// Validate trims the text and checks that the request carries text or an image.
func (r *SendRequest) Validate() error {
	r.Text = strings.TrimSpace(r.Text)
	r.ImageURL = strings.TrimSpace(r.ImageURL)
	if r.Text == "" && r.ImageURL == "" {
		return fmt.Errorf("%w: text or image_url is required", ErrInvalidInput)
	}
	if len([]rune(r.Text)) > MaxMessageLength {
		return fmt.Errorf("%w: message too long (max %d characters)", ErrInvalidInput, MaxMessageLength)
	}
	if r.ImageURL != "" && !IsHTTPURL(r.ImageURL) {
		return fmt.Errorf("%w: image_url must be an http(s) URL", ErrInvalidInput)
	}
	return nil
}

// ReplyImage is an image shown to the user. ProductID and ModelURL are set when the
// image comes from the catalog.
type ReplyImage struct {
	URL       string `json:"url"`
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name,omitempty"`
	ModelURL  string `json:"model_url,omitempty"`
}

// Reply is the assistant's answer to a SendRequest.
type Reply struct {
	SessionID string       `json:"session_id"`
	Intent    string       `json:"intent"`
	Text      string       `json:"text"`
	Images    []ReplyImage `json:"images"`
	Source    string       `json:"source"`
	// Messages are the assistant messages persisted for this reply.
	Messages []*Message `json:"messages"`
}

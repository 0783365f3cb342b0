package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a decoration item in the catalog. ModelURL points at the 3-D model
// that AR clients place in the scene.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ImageURL    string          `json:"image_url"`
	ModelURL    string          `json:"model_url,omitempty"`
	Style       string          `json:"style"`
	Type        string          `json:"type"`
	Price       decimal.Decimal `json:"price"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProductInput is the input for creating or updating a product.
type ProductInput struct {
	ID          string          `json:"id,omitempty" yaml:"id"`
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description"`
	ImageURL    string          `json:"image_url" yaml:"image_url"`
	ModelURL    string          `json:"model_url,omitempty" yaml:"model_url"`
	Style       string          `json:"style" yaml:"style"`
	Type        string          `json:"type" yaml:"type"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
}

// Validate checks required fields and normalizes tags to lowercase.
func (p *ProductInput) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.ImageURL = strings.TrimSpace(p.ImageURL)
	p.ModelURL = strings.TrimSpace(p.ModelURL)
	p.Style = strings.ToLower(strings.TrimSpace(p.Style))
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	if p.Name == "" {
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	}
	if !IsHTTPURL(p.ImageURL) {
		return fmt.Errorf("%w: product %q needs an http(s) image_url", ErrInvalidInput, p.Name)
	}
	if p.ModelURL != "" && !IsHTTPURL(p.ModelURL) {
		return fmt.Errorf("%w: product %q has an invalid model_url", ErrInvalidInput, p.Name)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: product %q has a negative price", ErrInvalidInput, p.Name)
	}
	return nil
}

// ToProduct converts the input into a Product with the given ID.
func (p *ProductInput) ToProduct(id string) *Product {
	return &Product{
		ID:          id,
		Name:        p.Name,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		ModelURL:    p.ModelURL,
		Style:       p.Style,
		Type:        p.Type,
		Price:       p.Price,
	}
}

// ProductQuery selects catalog products for display. Empty Style or Type match any value.
// Text, when set, ranks matches by relevance. Products whose image is in ExcludeImages
// are skipped.
type ProductQuery struct {
	Text          string
	Style         string
	Type          string
	Limit         int
	ExcludeImages map[string]struct{}
}

// IsHTTPURL reports whether s is an absolute http or https URL with a host.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

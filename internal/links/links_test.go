package links

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	e := NewExtractor([]string{"images.example.net"})
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "markdown image",
			text: "Try this lamp: ![Arc lamp](https://cdn.example.com/arc.jpg)",
			want: []string{"https://cdn.example.com/arc.jpg"},
		},
		{
			name: "markdown link to image with title",
			text: `1. [Velvet sofa](https://cdn.example.com/sofa.PNG "green")`,
			want: []string{"https://cdn.example.com/sofa.PNG"},
		},
		{
			name: "html img and anchor",
			text: `<p>Options:</p><img src="https://cdn.example.com/a.webp"><a href="https://cdn.example.com/b.gif?w=1&amp;h=2">b</a>`,
			want: []string{"https://cdn.example.com/a.webp", "https://cdn.example.com/b.gif?w=1&h=2"},
		},
		{
			name: "bare urls with trailing punctuation",
			text: "See https://cdn.example.com/vase.jpeg, or https://cdn.example.com/vase2.jpg.",
			want: []string{"https://cdn.example.com/vase.jpeg", "https://cdn.example.com/vase2.jpg"},
		},
		{
			name: "allowed host without extension",
			text: "https://images.example.net/photo/123 and https://cdn.images.example.net/p/9",
			want: []string{"https://images.example.net/photo/123", "https://cdn.images.example.net/p/9"},
		},
		{
			name: "non-image links ignored",
			text: "Buy it at https://shop.example.com/product/42 or [here](https://shop.example.com/x).",
			want: nil,
		},
		{
			name: "duplicates removed in order",
			text: "![a](https://cdn.example.com/1.jpg) ![b](https://cdn.example.com/2.jpg) https://cdn.example.com/1.jpg",
			want: []string{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"},
		},
		{
			name: "non-http schemes ignored",
			text: "ftp://cdn.example.com/a.jpg data:image/png;base64,xyz",
			want: nil,
		},
		{
			name: "no links",
			text: "Warm neutral tones would suit a north-facing room.",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUsable(t *testing.T) {
	e := NewExtractor(nil)
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/a.jpg", true},
		{"http://cdn.example.com/a.JPEG?size=large", true},
		{"https://cdn.example.com/a", false},
		{"https://cdn.example.com/a.svg", false},
		{"/relative/a.jpg", false},
		{"https:///a.jpg", false},
	}
	for _, tt := range tests {
		if got := e.Usable(tt.url); got != tt.want {
			t.Errorf("Usable(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestStripURLs(t *testing.T) {
	e := NewExtractor(nil)
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "markdown images removed",
			text: "Here are two lamps:\n\n- ![Arc](https://cdn.example.com/arc.jpg)\n- ![Tripod](https://cdn.example.com/tripod.jpg)\n\nEnjoy!",
			want: "Here are two lamps:\n\nEnjoy!",
		},
		{
			name: "image link keeps label",
			text: "Consider the [Velvet Sofa](https://cdn.example.com/sofa.png) for your lounge.",
			want: "Consider the Velvet Sofa for your lounge.",
		},
		{
			name: "bare image url removed, page link kept",
			text: "Photo: https://cdn.example.com/vase.jpg. Details: https://shop.example.com/vase",
			want: "Photo: . Details: https://shop.example.com/vase",
		},
		{
			name: "html image removed",
			text: `Look <img src="https://cdn.example.com/a.gif" alt="a"> at this`,
			want: "Look  at this",
		},
		{
			name: "plain text unchanged",
			text: "A rug would tie the room together.",
			want: "A rug would tie the room together.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.StripURLs(tt.text); got != tt.want {
				t.Errorf("StripURLs() = %q, want %q", got, tt.want)
			}
		})
	}
}

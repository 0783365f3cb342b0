// Package cli provides output formatting and an HTTP client for the decora CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/decora/internal/models"
	"github.com/hyperjump/decora/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteReply writes an assistant reply.
func WriteReply(w io.Writer, reply *models.Reply, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, reply)
	}
	if reply.Text != "" {
		fmt.Fprintf(w, "%s\n", reply.Text)
	}
	for i, img := range reply.Images {
		label := img.Name
		if label == "" {
			label = "image"
		}
		fmt.Fprintf(w, "  [%d] %s: %s\n", i+1, label, img.URL)
		if img.ModelURL != "" {
			fmt.Fprintf(w, "      3D model: %s\n", img.ModelURL)
		}
	}
	return nil
}

// WriteSessions writes a list of sessions.
func WriteSessions(w io.Writer, sessions []*models.Session, format OutputFormat) error {
	if format == OutputJSON {
		if sessions == nil {
			sessions = []*models.Session{}
		}
		return writeJSON(w, map[string]interface{}{"sessions": sessions})
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %s  %s\n", s.ID, s.UpdatedAt.Local().Format("2006-01-02 15:04"), utils.Truncate(s.Title, 60))
	}
	return nil
}

// WriteSession writes a session with its messages.
func WriteSession(w io.Writer, detail *models.SessionDetail, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, detail)
	}
	fmt.Fprintf(w, "%s  %s\n\n", detail.Session.ID, detail.Session.Title)
	for _, m := range detail.Messages {
		fmt.Fprintf(w, "%s: %s\n", m.Role, m.Text)
		if m.ImageURL != "" {
			fmt.Fprintf(w, "  image: %s\n", m.ImageURL)
		}
	}
	return nil
}

// WriteProducts writes a list of products.
func WriteProducts(w io.Writer, products []*models.Product, format OutputFormat) error {
	if format == OutputJSON {
		if products == nil {
			products = []*models.Product{}
		}
		return writeJSON(w, map[string]interface{}{"products": products})
	}
	if len(products) == 0 {
		fmt.Fprintln(w, "No products found.")
		return nil
	}
	fmt.Fprintf(w, "\nFound %d products\n\n", len(products))
	for _, p := range products {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%s  (%s %s)  %s\n", p.Name, p.Style, p.Type, p.Price.StringFixed(2))
		fmt.Fprintf(w, "ID: %s\n", p.ID)
		fmt.Fprintf(w, "Image: %s\n", p.ImageURL)
		if p.ModelURL != "" {
			fmt.Fprintf(w, "3D model: %s\n", p.ModelURL)
		}
		if p.Description != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(p.Description, 200))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// Status is the server status report.
type Status struct {
	Sessions        int64                  `json:"sessions"`
	Messages        int64                  `json:"messages"`
	Products        int64                  `json:"products"`
	IndexedProducts *uint64                `json:"indexed_products,omitempty"`
	UptimeSeconds   int64                  `json:"uptime_seconds,omitempty"`
	ActiveSessions  *int                   `json:"active_sessions,omitempty"`
	DiskUsage       *DiskUsage             `json:"disk_usage,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

// DiskUsage mirrors storage.DiskUsage in status reports.
type DiskUsage struct {
	Paths map[string]int64 `json:"paths"`
	Total int64            `json:"total"`
}

// WriteStatus writes a status report.
func WriteStatus(w io.Writer, status *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "sessions:           %d\n", status.Sessions)
	fmt.Fprintf(w, "messages:           %d\n", status.Messages)
	fmt.Fprintf(w, "products:           %d\n", status.Products)
	if status.IndexedProducts != nil {
		fmt.Fprintf(w, "indexed_products:   %d   # documents in the catalog index\n", *status.IndexedProducts)
	}
	if status.UptimeSeconds > 0 {
		fmt.Fprintf(w, "uptime_seconds:     %d\n", status.UptimeSeconds)
	}
	if status.ActiveSessions != nil {
		fmt.Fprintf(w, "active_sessions:    %d   # sessions with in-memory state\n", *status.ActiveSessions)
	}
	if status.DiskUsage != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # storage + index + uploads on disk\n", status.DiskUsage.Total)
	}
	if len(status.Config) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		keys := make([]string, 0, len(status.Config))
		for k := range status.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%-19s %v\n", k+":", status.Config[k])
		}
	}
	return nil
}

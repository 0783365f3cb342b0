package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/decora/internal/blobstore"
	"github.com/hyperjump/decora/internal/cli"
	"github.com/hyperjump/decora/internal/config"
	"github.com/hyperjump/decora/internal/models"
	"go.uber.org/zap"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"velvet sofa", "-limit", "5"},
			expected: []string{"-limit", "5", "velvet sofa"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "velvet sofa"},
			expected: []string{"-limit", "5", "velvet sofa"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"velvet sofa"},
			expected: []string{"velvet sofa"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"show", "me", "lamps", "--image", "https://example.com/room.jpg"},
			expected: []string{"--image", "https://example.com/room.jpg", "show", "me", "lamps"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"rugs"}, "rugs"},
		{"multiple words", []string{"scandinavian", "lamps"}, "scandinavian lamps"},
		{"single quoted phrase", []string{"scandinavian lamps"}, "scandinavian lamps"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
ai:
  provider: mock
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.AI.Provider != "mock" {
		t.Errorf("provider = %q, want mock", cfg.AI.Provider)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Driver:         "sqlite",
			DatabasePath:   filepath.Join(dir, "decora.db"),
			BleveIndexPath: filepath.Join(dir, "index"),
			UploadsPath:    filepath.Join(dir, "uploads"),
		},
		AI:      config.AIConfig{Provider: "mock"},
		Catalog: config.CatalogConfig{SeedPaths: []string{filepath.Join(dir, "catalog")}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestBotUploads(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	uploads, err := blobstore.NewDiskStore(cfg.Storage.UploadsPath, cfg.Server.BaseURL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()

	if cfg.Server.PublicURL != "" {
		t.Fatalf("public_url should not be defaulted, got %q", cfg.Server.PublicURL)
	}
	if got := botUploads(cfg, uploads, logger); got != nil {
		t.Error("bot should decline photos without public_url")
	}

	if got := publicHost(cfg); got != "localhost" {
		t.Errorf("public host without public_url = %q, want localhost", got)
	}

	cfg.Server.PublicURL = "https://decor.example.com"
	if got := botUploads(cfg, uploads, logger); got != uploads {
		t.Error("bot should accept photos when public_url is set")
	}
	if got := publicHost(cfg); got != "decor.example.com" {
		t.Errorf("public host = %q", got)
	}
}

func TestComponents_SeedAndRebuildIndex(t *testing.T) {
	dir := t.TempDir()
	catalogDir := filepath.Join(dir, "catalog")
	if err := os.MkdirAll(catalogDir, 0755); err != nil {
		t.Fatal(err)
	}
	products := `[
  {"id": "lamp-1", "name": "Arc Floor Lamp", "image_url": "https://cdn.example.com/arc.jpg", "style": "modern", "type": "lamp", "price": "129.00"},
  {"id": "rug-1", "name": "Wool Rug", "image_url": "https://cdn.example.com/rug.jpg", "style": "boho", "type": "rug", "price": "89.50"}
]`
	if err := os.WriteFile(filepath.Join(catalogDir, "products.json"), []byte(products), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, dir)
	ctx := context.Background()
	logger := zap.NewNop()

	c, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		t.Fatal(err)
	}
	if c.Assistant == nil || c.Uploads == nil || c.Auth == nil {
		t.Fatalf("assistant components missing: %+v", c)
	}
	if err := seedCatalog(ctx, c, cfg, logger); err != nil {
		t.Fatal(err)
	}
	if n, err := c.Storage.CountProducts(ctx); err != nil || n != 2 {
		t.Fatalf("products after seed = %d, %v; want 2", n, err)
	}
	c.Close()

	// A fresh index path starts empty and is rebuilt from storage.
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "index2")
	c, err = initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if c.Assistant != nil {
		t.Error("assistant should not be built without withAssistant")
	}
	indexed, err := c.Catalog.IndexedCount()
	if err != nil || indexed != 2 {
		t.Errorf("indexed = %d, %v; want 2", indexed, err)
	}

	status, err := localStatus(ctx, c, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if status.Products != 2 || status.Sessions != 0 {
		t.Errorf("status: %+v", status)
	}
	if status.IndexedProducts == nil || *status.IndexedProducts != 2 {
		t.Errorf("indexed_products: %v", status.IndexedProducts)
	}
	if status.DiskUsage == nil {
		t.Fatal("expected disk usage")
	}
	if _, ok := status.DiskUsage.Paths["database"]; !ok {
		t.Errorf("disk usage should include the sqlite database: %v", status.DiskUsage.Paths)
	}
}

func TestChatLoop(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []models.SendRequest
	)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(models.Session{ID: "s2"})
	})
	mux.HandleFunc("POST /api/v1/sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var req models.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		sent = append(sent, req)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.Reply{
			SessionID: r.PathValue("id"),
			Text:      r.PathValue("id") + " echo: " + req.Text,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	in := strings.NewReader("hello\n\n/image https://example.com/room.jpg\nwhat fits here?\n/new\nagain\n/quit\nignored\n")
	var out bytes.Buffer
	client := cli.NewClient(srv.URL, "", "alice")
	if err := chatLoop(context.Background(), client, "s1", in, &out, cli.OutputText); err != nil {
		t.Fatal(err)
	}

	if len(sent) != 3 {
		t.Fatalf("expected 3 messages, got %+v", sent)
	}
	if sent[0].ImageURL != "" || sent[1].ImageURL != "https://example.com/room.jpg" || sent[2].ImageURL != "" {
		t.Errorf("image should attach to the next message only: %+v", sent)
	}
	got := out.String()
	for _, want := range []string{"s1 echo: hello", "s1 echo: what fits here?", "session s2", "s2 echo: again"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "ignored") {
		t.Error("input after /quit should not be sent")
	}
}

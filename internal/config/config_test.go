package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
ai:
  provider: mock
  timeout: 15s
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.AI.Provider != "mock" || cfg.AI.Timeout != 15*time.Second {
		t.Errorf("unexpected ai config: %+v", cfg.AI)
	}
	if cfg.Server.PublicURL != "" {
		t.Errorf("public_url should stay unset, got %s", cfg.Server.PublicURL)
	}
	if got := cfg.Server.BaseURL(); got != "http://127.0.0.1:9000" {
		t.Errorf("base url: got %s", got)
	}
}

func TestLoad_envOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
ai:
  provider: gemini
  api_key: from-file
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DECORA_AI_API_KEY", "from-env")
	t.Setenv("DECORA_SERVER_PORT", "9191")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AI.APIKey != "from-env" {
		t.Errorf("api key: got %q, want env value", cfg.AI.APIKey)
	}
	if cfg.AI.Provider != "gemini" {
		t.Errorf("provider from file should survive overlay, got %q", cfg.AI.Provider)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port: got %d", cfg.Server.Port)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/decora.db"
catalog:
  seed_paths: ["./catalog"]
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "decora.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Catalog.SeedPaths) != 1 {
		t.Fatalf("seed paths: got %d", len(cfg.Catalog.SeedPaths))
	}
	if want := filepath.Join(dir, "catalog"); cfg.Catalog.SeedPaths[0] != want {
		t.Errorf("seed path = %s, want %s", cfg.Catalog.SeedPaths[0], want)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("default driver: got %s", cfg.Storage.Driver)
	}
	if cfg.AI.Provider != "gemini" || cfg.AI.Model != "gemini-2.5-flash" {
		t.Errorf("default ai: got %+v", cfg.AI)
	}
	if cfg.Assistant.MaxImages != 3 {
		t.Errorf("default max images: got %d", cfg.Assistant.MaxImages)
	}
	if len(cfg.Catalog.Extensions) != 4 || cfg.Catalog.Extensions[0] != ".json" {
		t.Errorf("catalog extensions: got %v", cfg.Catalog.Extensions)
	}
}

func TestApplyDefaults_openRouterModel(t *testing.T) {
	cfg := &Config{AI: AIConfig{Provider: "openrouter"}}
	ApplyDefaults(cfg)
	if cfg.AI.Model != "google/gemini-2.5-flash" {
		t.Errorf("openrouter model: got %s", cfg.AI.Model)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		Catalog: CatalogConfig{SeedPaths: []string{"/tmp/catalog"}},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if len(loaded.Catalog.SeedPaths) != 1 || loaded.Catalog.SeedPaths[0] != "/tmp/catalog" {
		t.Errorf("loaded seed paths: got %v", loaded.Catalog.SeedPaths)
	}
}

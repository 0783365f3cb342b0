// Package main is the Decora CLI entry point.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/decora/internal/auth"
	"github.com/hyperjump/decora/internal/blobstore"
	"github.com/hyperjump/decora/internal/cli"
	"github.com/hyperjump/decora/internal/config"
	"github.com/hyperjump/decora/internal/models"
	"github.com/hyperjump/decora/internal/server"
	"github.com/hyperjump/decora/internal/storage"
	"github.com/hyperjump/decora/internal/telegram"
	"github.com/hyperjump/decora/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/decora/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory so that "decora server" from a project dir
// uses the project's config. When the default file does not exist either, the config
// is built from environment variables alone.
// Returns the config and the path that was actually loaded ("" when none was).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg, err := config.FromEnv()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "bot":
		runBot()
	case "chat":
		runChat()
	case "sessions":
		runSessions()
	case "catalog":
		runCatalog()
	case "status":
		runStatus()
	case "token":
		runToken()
	case "version", "--version", "-v":
		fmt.Printf("decora version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and creates the logger. It exits on failure.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolvedConfigPath, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (catalog reloads, model calls, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := seedCatalog(ctx, components, cfg, logger); err != nil {
		logger.Fatal("Failed to seed catalog", zap.Error(err))
	}

	srv := server.NewServer(
		components.Assistant,
		components.Catalog,
		components.Uploads,
		components.Storage,
		components.Auth,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(stopCtx)
}

func runBot() {
	fs := flag.NewFlagSet("bot", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	token := fs.String("token", "", "telegram bot token (default from config or DECORA_TELEGRAM_TOKEN)")
	_ = fs.Parse(os.Args[2:])

	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if *token != "" {
		cfg.Telegram.Token = *token
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := seedCatalog(ctx, components, cfg, logger); err != nil {
		logger.Fatal("Failed to seed catalog", zap.Error(err))
	}

	b, err := telegram.New(cfg.Telegram.Token, components.Assistant, botUploads(cfg, components.Uploads, logger), logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}
	if err := b.Run(ctx); err != nil {
		logger.Fatal("Bot failed", zap.Error(err))
	}
}

// botUploads returns the upload store for bot photos, or nil when public_url is not
// configured. Photos are only useful to the model when that URL is reachable from it.
func botUploads(cfg *config.Config, uploads *blobstore.DiskStore, logger *zap.Logger) *blobstore.DiskStore {
	if cfg.Server.PublicURL == "" {
		logger.Warn("server.public_url is not set; photos sent to the bot will be declined")
		return nil
	}
	return uploads
}

// clientFlags registers the flags shared by commands that talk to a running server.
func clientFlags(fs *flag.FlagSet) (serverURL, token, user, output *string) {
	serverURL = fs.String("server", defaultServerURL, "server URL")
	token = fs.String("token", os.Getenv("DECORA_TOKEN"), "bearer token (default from DECORA_TOKEN)")
	user = fs.String("user", os.Getenv("DECORA_USER"), "owner sent as X-User-ID when the server has no jwt_secret")
	output = fs.String("output", "text", "output format: text or json")
	return serverURL, token, user, output
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runChat() {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	serverURL, token, user, output := clientFlags(fs)
	sessionID := fs.String("session", "", "session ID to continue (default: a new session)")
	image := fs.String("image", "", "image URL to attach to the first message")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseFormat(*output)

	client := cli.NewClient(*serverURL, *token, *user)
	ctx := context.Background()

	if *sessionID == "" {
		sess, err := client.CreateSession(ctx, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Create session failed: %v\n", err)
			os.Exit(1)
		}
		*sessionID = sess.ID
	}

	// One-shot: the message is given on the command line.
	if text := buildQuery(fs.Args()); text != "" || *image != "" {
		if err := sendAndPrint(ctx, client, *sessionID, models.SendRequest{Text: text, ImageURL: *image}, format); err != nil {
			fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := chatLoop(ctx, client, *sessionID, os.Stdin, os.Stdout, format); err != nil {
		fmt.Fprintf(os.Stderr, "Chat failed: %v\n", err)
		os.Exit(1)
	}
}

// chatLoop reads messages line by line until EOF or /quit. "/image <url>" attaches an
// image to the next message and "/new" starts a new session.
func chatLoop(ctx context.Context, client *cli.Client, sessionID string, in io.Reader, out io.Writer, format cli.OutputFormat) error {
	fmt.Fprintf(out, "session %s (/new, /image <url>, /quit)\n", sessionID)
	scanner := bufio.NewScanner(in)
	var pendingImage string
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/new":
			sess, err := client.CreateSession(ctx, "")
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			sessionID = sess.ID
			fmt.Fprintf(out, "session %s\n", sessionID)
			continue
		case strings.HasPrefix(line, "/image "):
			pendingImage = strings.TrimSpace(strings.TrimPrefix(line, "/image "))
			fmt.Fprintln(out, "image attached to the next message")
			continue
		}
		req := models.SendRequest{Text: line, ImageURL: pendingImage}
		pendingImage = ""
		reply, err := client.Send(ctx, sessionID, req)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if err := cli.WriteReply(out, reply, format); err != nil {
			return err
		}
	}
}

func sendAndPrint(ctx context.Context, client *cli.Client, sessionID string, req models.SendRequest, format cli.OutputFormat) error {
	reply, err := client.Send(ctx, sessionID, req)
	if err != nil {
		return err
	}
	return cli.WriteReply(os.Stdout, reply, format)
}

func runSessions() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: decora sessions <list|show|delete> [flags] [id]")
		fmt.Println("  decora sessions list          List your sessions")
		fmt.Println("  decora sessions show <id>     Show a session with its messages")
		fmt.Println("  decora sessions delete <id>   Delete a session")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	serverURL, token, user, output := clientFlags(fs)
	offset := fs.Int("offset", 0, "number of sessions to skip")
	limit := fs.Int("limit", 20, "number of sessions to list")
	_ = fs.Parse(argsReorder(os.Args[3:]))
	format := parseFormat(*output)

	client := cli.NewClient(*serverURL, *token, *user)
	ctx := context.Background()

	switch sub {
	case "list":
		sessions, err := client.ListSessions(ctx, *offset, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteSessions(os.Stdout, sessions, format)
	case "show":
		if fs.NArg() < 1 {
			fmt.Println("Usage: decora sessions show <id>")
			os.Exit(1)
		}
		detail, err := client.GetSession(ctx, fs.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Show failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteSession(os.Stdout, detail, format)
	case "delete":
		if fs.NArg() < 1 {
			fmt.Println("Usage: decora sessions delete <id>")
			os.Exit(1)
		}
		if err := client.DeleteSession(ctx, fs.Arg(0)); err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Session deleted: %s\n", fs.Arg(0))
	default:
		fmt.Printf("Unknown sessions subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runCatalog() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: decora catalog <import|search|reindex> [flags] [args]")
		fmt.Println("  decora catalog import <file-or-directory>   Import products")
		fmt.Println("  decora catalog search <query>               Search products")
		fmt.Println("  decora catalog reindex                      Rebuild the catalog index")
		os.Exit(1)
	}
	switch sub := os.Args[2]; sub {
	case "import":
		runCatalogImport(os.Args[3:])
	case "search":
		runCatalogSearch(os.Args[3:])
	case "reindex":
		runCatalogReindex(os.Args[3:])
	default:
		fmt.Printf("Unknown catalog subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runCatalogImport(args []string) {
	fs := flag.NewFlagSet("catalog import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	save := fs.Bool("save", false, "add the path to catalog.seed_paths in the config file")
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() < 1 {
		fmt.Println("Usage: decora catalog import [flags] <file-or-directory>")
		os.Exit(1)
	}
	path, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid path: %v\n", err)
		os.Exit(1)
	}

	cfg, resolvedConfigPath, logger := setup(*configPath, false)
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	var n int
	if info.IsDir() {
		n, err = components.Importer.ImportDirectory(ctx, path, cfg.Catalog.Extensions)
	} else {
		n, err = components.Importer.ImportFile(ctx, path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d product(s) from %s\n", n, path)

	if *save {
		if resolvedConfigPath == "" {
			fmt.Fprintln(os.Stderr, "No config file loaded; --save needs --config")
			os.Exit(1)
		}
		for _, p := range cfg.Catalog.SeedPaths {
			if p == path {
				return
			}
		}
		cfg.Catalog.SeedPaths = append(cfg.Catalog.SeedPaths, path)
		if err := config.Save(resolvedConfigPath, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Save config failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added %s to catalog.seed_paths in %s\n", path, resolvedConfigPath)
	}
}

func runCatalogSearch(args []string) {
	fs := flag.NewFlagSet("catalog search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL, token, user, output := clientFlags(fs)
	limit := fs.Int("limit", 10, "number of results")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: decora catalog search [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(args))

	query := buildQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format := parseFormat(*output)
	ctx := context.Background()

	var products []*models.Product
	if *serverURL != "" {
		// Use the HTTP API when the server is running (avoids Bleve/SQLite lock conflicts).
		res, err := cli.NewClient(*serverURL, *token, *user).SearchProducts(ctx, query, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		products = res
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(ctx, cfg, logger, false)
		if err != nil {
			logger.Fatal("Failed to initialize", zap.Error(err))
		}
		defer components.Close()
		products, err = components.Catalog.Search(ctx, query, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteProducts(os.Stdout, products, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runCatalogReindex(args []string) {
	fs := flag.NewFlagSet("catalog reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	n, err := components.Catalog.Reindex(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reindex failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Reindexed %d product(s)\n", n)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL, token, user, output := clientFlags(fs)
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*output)
	ctx := context.Background()

	var status *cli.Status
	if *serverURL != "" {
		res, err := cli.NewClient(*serverURL, *token, *user).Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = res
	} else {
		cfg, _, logger := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(ctx, cfg, logger, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		status, err = localStatus(ctx, components, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// localStatus builds a status report from direct storage access.
func localStatus(ctx context.Context, c *Components, cfg *config.Config) (*cli.Status, error) {
	sessions, err := c.Storage.CountSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	messages, err := c.Storage.CountMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	products, err := c.Storage.CountProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	status := &cli.Status{
		Sessions: sessions,
		Messages: messages,
		Products: products,
		Config: map[string]interface{}{
			"storage_driver":   cfg.Storage.Driver,
			"ai_provider":      cfg.AI.Provider,
			"ai_model":         cfg.AI.Model,
			"max_images":       cfg.Assistant.MaxImages,
			"catalog_watch":    cfg.Catalog.Watch,
			"auth_enabled":     cfg.Auth.JWTSecret != "",
			"database_path":    cfg.Storage.DatabasePath,
			"bleve_index_path": cfg.Storage.BleveIndexPath,
			"uploads_path":     cfg.Storage.UploadsPath,
		},
	}
	if indexed, err := c.Catalog.IndexedCount(); err == nil {
		status.IndexedProducts = &indexed
	}
	paths := map[string]string{
		"index":   cfg.Storage.BleveIndexPath,
		"uploads": cfg.Storage.UploadsPath,
	}
	if cfg.Storage.Driver == "sqlite" {
		paths["database"] = cfg.Storage.DatabasePath
	}
	if usage, err := storage.MeasureDiskUsage(paths); err == nil {
		status.DiskUsage = &cli.DiskUsage{Paths: usage.Paths, Total: usage.Total}
	}
	return status, nil
}

func runToken() {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	ttl := fs.Duration("ttl", 0, "token lifetime (default from auth.token_ttl)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: decora token [flags] <owner>")
		os.Exit(1)
	}
	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	token, err := auth.New(cfg.Auth.JWTSecret, logger).Issue(fs.Arg(0), lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Issue token failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

// buildQuery joins all positional args with spaces so multi-word input works the
// same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after positional
// arguments to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so "decora catalog search rugs
// --limit 5" would otherwise leave --limit unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printUsage() {
	fmt.Println(`decora - Chat assistant for home decor

Usage:
  decora server [flags]                     Start the HTTP server
  decora bot [flags]                        Run the Telegram bot
  decora chat [flags] [message]             Chat with the assistant via the server
  decora sessions <list|show|delete>        Manage your chat sessions
  decora catalog import [flags] <path>      Import products from JSON, YAML or XLSX
  decora catalog search [flags] <query>     Search the product catalog
  decora catalog reindex [flags]            Rebuild the catalog index from storage
  decora status [flags]                     Show storage/index/config status
  decora token [flags] <owner>              Issue a bearer token for owner
  decora version                            Show version
  decora help                               Show this help

Server and Bot Flags:
  --config string    Config file path (default: /usr/local/etc/decora/config.yaml)
  --debug            Enable debug logging
  --token string     (bot only) Telegram bot token

Client Flags (chat, sessions, catalog search, status):
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage where supported.
  --token string     Bearer token (default: $DECORA_TOKEN)
  --user string      Owner sent as X-User-ID when the server has no jwt_secret (default: $DECORA_USER)
  --output string    Output format: text or json (default: text)

Chat Flags:
  --session string   Session ID to continue (default: a new session)
  --image string     Image URL to attach to the message

Catalog Import Flags:
  --save             Add the path to catalog.seed_paths in the config file

Token Flags:
  --ttl duration     Token lifetime (default from auth.token_ttl; 0 = no expiry)

Examples:
  decora server
  decora chat "show me some scandinavian lamps"
  decora chat --image https://example.com/room.jpg "what would fit here?"
  decora sessions list --output json
  decora catalog import --save ./catalog.yaml
  decora catalog search --server "" velvet sofa
  decora token alice --ttl 24h`)
}

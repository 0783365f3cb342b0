// Package watcher reloads catalog files when they change on disk, using fsnotify with debouncing.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Importer loads the products in a catalog file.
type Importer interface {
	ImportFile(ctx context.Context, path string) (int, error)
}

// Watcher watches catalog files and directories. Created or written files are
// re-imported after the debounce interval. Removed files are only logged; their
// products stay in the catalog.
type Watcher struct {
	importer   Importer
	dirs       []string
	files      map[string]struct{}
	extensions []string
	debounce   time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	ctx      context.Context
	pending  map[string]*time.Timer
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must stay quiet before it is re-imported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher over paths, which may be catalog files or directories.
// Directories are watched recursively and filtered by extensions (empty = all).
func New(importer Importer, paths []string, extensions []string, opts ...Option) *Watcher {
	w := &Watcher{
		importer:   importer,
		files:      make(map[string]struct{}),
		extensions: extensions,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		abs = filepath.Clean(abs)
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			w.files[abs] = struct{}{}
			continue
		}
		w.dirs = append(w.dirs, abs)
	}
	return w
}

// Start begins watching. Missing directories are created. It returns once the
// watches are registered; events are handled until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			_ = fsw.Close()
			return err
		}
		if err := addTree(fsw, dir); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	for file := range w.files {
		if err := fsw.Add(filepath.Dir(file)); err != nil {
			_ = fsw.Close()
			return err
		}
	}

	w.mu.Lock()
	w.fsw = fsw
	w.ctx = ctx
	w.mu.Unlock()

	w.logger.Info("catalog watcher started",
		zap.Strings("directories", w.dirs),
		zap.Int("files", len(w.files)),
		zap.Strings("extensions", w.extensions))
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if w.inWatchedDir(path) {
				w.handleNewDirectory(fsw, path)
			}
			return
		}
		if w.accepts(path) {
			w.schedule(path)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		if !w.accepts(path) {
			return
		}
		w.cancel(path)
		w.logger.Info("catalog file removed, products kept", zap.String("path", path))
	}
}

// handleNewDirectory watches a directory that appeared under a watched root and
// imports the catalog files already inside it.
func (w *Watcher) handleNewDirectory(fsw *fsnotify.Watcher, dir string) {
	if err := addTree(fsw, dir); err != nil {
		w.logger.Warn("catalog watcher failed to add directory", zap.String("path", dir), zap.Error(err))
		return
	}
	w.logger.Debug("catalog watcher added directory", zap.String("path", dir))
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.schedule(path)
		}
		return nil
	})
}

// accepts reports whether path is a watched catalog file or a matching file under a
// watched directory.
func (w *Watcher) accepts(path string) bool {
	if _, ok := w.files[path]; ok {
		return true
	}
	return w.inWatchedDir(path) && matchExtension(path, w.extensions)
}

func (w *Watcher) inWatchedDir(path string) bool {
	for _, dir := range w.dirs {
		if inDir(dir, path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		ctx := w.ctx
		w.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		w.reload(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) reload(ctx context.Context, path string) {
	n, err := w.importer.ImportFile(ctx, path)
	if err != nil {
		w.logger.Warn("catalog reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("catalog reloaded", zap.String("path", path), zap.Int("products", n))
}

// Sync imports every catalog file currently under the watched paths and returns the
// number of products loaded. Files that fail to import are logged and skipped.
func (w *Watcher) Sync(ctx context.Context) int {
	total := 0
	load := func(path string) {
		n, err := w.importer.ImportFile(ctx, path)
		if err != nil {
			w.logger.Warn("catalog import failed", zap.String("path", path), zap.Error(err))
			return
		}
		total += n
	}
	for file := range w.files {
		load(file)
	}
	for _, dir := range w.dirs {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if matchExtension(path, w.extensions) {
				load(path)
			}
			return nil
		})
	}
	return total
}

// Paths returns the watched directories and files.
func (w *Watcher) Paths() []string {
	out := append([]string(nil), w.dirs...)
	for f := range w.files {
		out = append(out, f)
	}
	return out
}

// Stop stops watching and cancels pending reloads.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		for path, t := range w.pending {
			t.Stop()
			delete(w.pending, path)
		}
		fsw := w.fsw
		w.fsw = nil
		w.mu.Unlock()
		close(w.done)
		if fsw != nil {
			_ = fsw.Close()
		}
	})
}

func addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

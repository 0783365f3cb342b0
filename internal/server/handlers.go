package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/decora/internal/auth"
	"github.com/hyperjump/decora/internal/blobstore"
	"github.com/hyperjump/decora/internal/models"
	"github.com/hyperjump/decora/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultProductLimit = 50
	maxProductLimit     = 200
	maxJSONBody         = 1 << 20
)

type createSessionRequest struct {
	Title string `json:"title"`
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decode(r, &req, true); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.assistant.CreateSession(r.Context(), auth.Owner(r.Context()), req.Title)
	if err != nil {
		s.fail(w, "create session", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := s.page(w, r)
	if !ok {
		return
	}
	list, err := s.assistant.ListSessions(r.Context(), auth.Owner(r.Context()), offset, limit)
	if err != nil {
		s.fail(w, "list sessions", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sessions": list})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	detail, err := s.assistant.GetSession(r.Context(), chi.URLParam(r, "id"), auth.Owner(r.Context()))
	if err != nil {
		s.fail(w, "get session", err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req renameSessionRequest
	if err := s.decode(r, &req, false); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.assistant.RenameSession(r.Context(), chi.URLParam(r, "id"), auth.Owner(r.Context()), req.Title)
	if err != nil {
		s.fail(w, "rename session", err)
		return
	}
	s.respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete session request", zap.String("session_id", id))
	if err := s.assistant.DeleteSession(r.Context(), id, auth.Owner(r.Context())); err != nil {
		s.fail(w, "delete session", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendRequest
	if err := s.decode(r, &req, false); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	reply, err := s.assistant.Send(r.Context(), id, auth.Owner(r.Context()), req)
	if err != nil {
		s.fail(w, "send message", err, zap.String("session_id", id))
		return
	}
	s.respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := s.page(w, r)
	if !ok {
		return
	}
	if limit <= 0 {
		limit = defaultProductLimit
	}
	if limit > maxProductLimit {
		limit = maxProductLimit
	}
	q := r.URL.Query()
	list, err := s.catalog.List(r.Context(), q.Get("style"), q.Get("type"), offset, limit)
	if err != nil {
		s.fail(w, "list products", err)
		return
	}
	if list == nil {
		list = []*models.Product{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"products": list})
}

func (s *Server) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	_, limit, ok := s.page(w, r)
	if !ok {
		return
	}
	if limit > maxProductLimit {
		limit = maxProductLimit
	}
	s.logger.Debug("product search request", zap.String("query", q), zap.Int("limit", limit))
	list, err := s.catalog.Search(r.Context(), q, limit)
	if err != nil {
		s.fail(w, "search products", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": q, "products": list})
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get product", err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpsertProduct(w http.ResponseWriter, r *http.Request) {
	var input models.ProductInput
	if err := s.decode(r, &input, false); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("upsert product request", zap.String("id", input.ID), zap.String("name", input.Name))
	p, err := s.catalog.Upsert(r.Context(), &input)
	if err != nil {
		s.fail(w, "upsert product", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete product request", zap.String("id", id))
	if err := s.catalog.Delete(r.Context(), id); err != nil {
		s.fail(w, "delete product", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		s.respondError(w, http.StatusNotImplemented, "uploads not enabled")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, blobstore.MaxUploadBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if _, ok := blobstore.Extension(contentType); !ok {
		sniff := make([]byte, 512)
		n, _ := io.ReadFull(file, sniff)
		contentType = http.DetectContentType(sniff[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			s.fail(w, "upload", err)
			return
		}
	}

	url, err := s.uploads.Put(r.Context(), header.Filename, contentType, file)
	if err != nil {
		s.fail(w, "upload", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		s.respondError(w, http.StatusNotFound, "file not found")
		return
	}
	name := chi.URLParam(r, "name")
	f, err := s.uploads.Open(name)
	if err != nil {
		s.fail(w, "get file", err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.fail(w, "get file", err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := s.storage.CountSessions(ctx)
	if err != nil {
		s.fail(w, "status: count sessions", err)
		return
	}
	messages, err := s.storage.CountMessages(ctx)
	if err != nil {
		s.fail(w, "status: count messages", err)
		return
	}
	products, err := s.storage.CountProducts(ctx)
	if err != nil {
		s.fail(w, "status: count products", err)
		return
	}
	resp := map[string]interface{}{
		"sessions":       sessions,
		"messages":       messages,
		"products":       products,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	if s.assistant != nil {
		resp["active_sessions"] = s.assistant.ActiveSessions()
	}
	if indexed, err := s.catalog.IndexedCount(); err == nil {
		resp["indexed_products"] = indexed
	}

	if s.config != nil {
		cfg := s.config
		resp["config"] = map[string]interface{}{
			"storage_driver":   cfg.Storage.Driver,
			"ai_provider":      cfg.AI.Provider,
			"ai_model":         cfg.AI.Model,
			"history_limit":    cfg.AI.HistoryLimit,
			"max_images":       cfg.Assistant.MaxImages,
			"catalog_watch":    cfg.Catalog.Watch,
			"auth_enabled":     s.auth.Enabled(),
			"database_path":    cfg.Storage.DatabasePath,
			"bleve_index_path": cfg.Storage.BleveIndexPath,
			"uploads_path":     cfg.Storage.UploadsPath,
		}
		paths := map[string]string{
			"index":   cfg.Storage.BleveIndexPath,
			"uploads": cfg.Storage.UploadsPath,
		}
		if cfg.Storage.Driver == "sqlite" {
			paths["database"] = cfg.Storage.DatabasePath
		}
		if usage, err := storage.MeasureDiskUsage(paths); err == nil {
			resp["disk_usage"] = usage
		} else {
			s.logger.Warn("status: disk usage failed", zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// page reads offset and limit query parameters. Missing values are zero. It writes a
// 400 response and returns false when either is malformed.
func (s *Server) page(w http.ResponseWriter, r *http.Request) (offset, limit int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"offset", &offset}, {"limit", &limit}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid "+p.name)
			return 0, 0, false
		}
		*p.dst = n
	}
	return offset, limit, true
}

// decode reads a JSON body into v. With allowEmpty, an empty body leaves v unchanged.
func (s *Server) decode(r *http.Request, v interface{}, allowEmpty bool) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// fail maps err to a status code, logs it, and writes the error response.
func (s *Server) fail(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status, msg := statusFor(err)
	fields = append(fields, zap.Int("status", status), zap.Error(err))
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", fields...)
	} else {
		s.logger.Debug(op+" rejected", fields...)
	}
	s.respondError(w, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrProductNotFound),
		errors.Is(err, blobstore.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrAssistantUnavailable):
		return http.StatusBadGateway, models.GenericFailureMessage
	default:
		return http.StatusInternalServerError, models.GenericFailureMessage
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

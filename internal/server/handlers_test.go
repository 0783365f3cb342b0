package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/decora/internal/ai"
	"github.com/hyperjump/decora/internal/assistant"
	"github.com/hyperjump/decora/internal/auth"
	"github.com/hyperjump/decora/internal/blobstore"
	"github.com/hyperjump/decora/internal/catalog"
	"github.com/hyperjump/decora/internal/config"
	"github.com/hyperjump/decora/internal/models"
	"github.com/hyperjump/decora/internal/storage"
	"go.uber.org/zap"
)

type testServer struct {
	srv     *Server
	handler http.Handler
	mock    *ai.MockProvider
	store   storage.Storage
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "decora.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	idx, err := catalog.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	cat := catalog.New(store, idx)

	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(dir, "decora.db")
	cfg.Storage.UploadsPath = filepath.Join(dir, "uploads")
	cfg.AI.Provider = "mock"
	config.ApplyDefaults(cfg)
	cfg.Storage.BleveIndexPath = ""

	uploads, err := blobstore.NewDiskStore(cfg.Storage.UploadsPath, "http://decora.test", nil)
	if err != nil {
		t.Fatal(err)
	}
	mock := ai.NewMockProvider()
	asst := assistant.New(store, cat, mock, assistant.ConfigFrom(&cfg.AI, &cfg.Assistant))
	srv := NewServer(asst, cat, uploads, store, auth.New(secret, nil), cfg, zap.NewNop())
	return &testServer{srv: srv, handler: srv.Handler(), mock: mock, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	r := httptest.NewRequest(method, path, rd)
	if user != "" {
		r.Header.Set(auth.UserHeader, user)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, "")
	w := ts.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body: %s", w.Body.String())
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/api/v1/sessions", "alice", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: got %d %s", w.Code, w.Body.String())
	}
	var sess models.Session
	decodeBody(t, w, &sess)
	if sess.ID == "" || sess.OwnerID != "alice" || sess.Title != models.DefaultSessionTitle {
		t.Fatalf("unexpected session %+v", sess)
	}

	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/messages", "alice",
		map[string]string{"text": "what colour should my walls be?"})
	if w.Code != http.StatusOK {
		t.Fatalf("send: got %d %s", w.Code, w.Body.String())
	}
	var reply models.Reply
	decodeBody(t, w, &reply)
	if reply.Source != models.SourceModel || !strings.Contains(reply.Text, "walls") {
		t.Errorf("unexpected reply %+v", reply)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+sess.ID, "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: got %d", w.Code)
	}
	var detail models.SessionDetail
	decodeBody(t, w, &detail)
	if len(detail.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(detail.Messages))
	}
	if detail.Messages[0].Role != models.RoleUser || detail.Messages[1].Role != models.RoleAssistant {
		t.Errorf("message order: %s, %s", detail.Messages[0].Role, detail.Messages[1].Role)
	}

	w = ts.do(t, http.MethodPatch, "/api/v1/sessions/"+sess.ID, "alice", map[string]string{"title": "Living room"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename: got %d %s", w.Code, w.Body.String())
	}
	var renamed models.Session
	decodeBody(t, w, &renamed)
	if renamed.Title != "Living room" {
		t.Errorf("title: got %q", renamed.Title)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/sessions?limit=10", "alice", nil)
	var list struct {
		Sessions []models.Session `json:"sessions"`
	}
	decodeBody(t, w, &list)
	if len(list.Sessions) != 1 || list.Sessions[0].ID != sess.ID {
		t.Errorf("list: %+v", list.Sessions)
	}

	w = ts.do(t, http.MethodDelete, "/api/v1/sessions/"+sess.ID, "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: got %d", w.Code)
	}
	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+sess.ID, "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d", w.Code)
	}
	n, _ := ts.store.CountMessages(context.Background())
	if n != 0 {
		t.Errorf("messages should be deleted with the session, %d left", n)
	}
}

func TestSessionErrors(t *testing.T) {
	ts := newTestServer(t, "")
	w := ts.do(t, http.MethodPost, "/api/v1/sessions", "alice", map[string]string{"title": "Bedroom"})
	var sess models.Session
	decodeBody(t, w, &sess)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   interface{}
		want   int
	}{
		{"other owner get", http.MethodGet, "/api/v1/sessions/" + sess.ID, "bob", nil, http.StatusForbidden},
		{"other owner send", http.MethodPost, "/api/v1/sessions/" + sess.ID + "/messages", "bob", map[string]string{"text": "hi"}, http.StatusForbidden},
		{"unknown session", http.MethodGet, "/api/v1/sessions/nope", "alice", nil, http.StatusNotFound},
		{"send to unknown session", http.MethodPost, "/api/v1/sessions/nope/messages", "alice", map[string]string{"text": "hi"}, http.StatusNotFound},
		{"empty message", http.MethodPost, "/api/v1/sessions/" + sess.ID + "/messages", "alice", map[string]string{"text": "  "}, http.StatusBadRequest},
		{"empty title", http.MethodPatch, "/api/v1/sessions/" + sess.ID, "alice", map[string]string{"title": ""}, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/v1/sessions?limit=abc", "alice", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.user, tt.body)
			if w.Code != tt.want {
				t.Errorf("got %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSendMessage_ModelFailure(t *testing.T) {
	ts := newTestServer(t, "")
	w := ts.do(t, http.MethodPost, "/api/v1/sessions", "alice", nil)
	var sess models.Session
	decodeBody(t, w, &sess)

	ts.mock.SetError(ai.ErrUnavailable)
	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/messages", "alice", map[string]string{"text": "what colour should my walls be?"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	decodeBody(t, w, &out)
	if out["error"] != models.GenericFailureMessage {
		t.Errorf("error: got %q", out["error"])
	}
}

func TestProducts(t *testing.T) {
	ts := newTestServer(t, "")
	items := []models.ProductInput{
		{ID: "arc", Name: "Arc Lamp", ImageURL: "https://cdn.example.com/arc.jpg", Style: "modern", Type: "lamp"},
		{ID: "linen", Name: "Linen Sofa", ImageURL: "https://cdn.example.com/linen.jpg", Style: "scandinavian", Type: "sofa"},
	}
	for _, it := range items {
		if w := ts.do(t, http.MethodPost, "/api/v1/products", "", it); w.Code != http.StatusCreated {
			t.Fatalf("upsert %s: got %d %s", it.ID, w.Code, w.Body.String())
		}
	}
	if w := ts.do(t, http.MethodPost, "/api/v1/products", "", models.ProductInput{Name: "No Image"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid upsert: got %d", w.Code)
	}

	w := ts.do(t, http.MethodGet, "/api/v1/products/arc", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: got %d", w.Code)
	}
	var p models.Product
	decodeBody(t, w, &p)
	if p.Name != "Arc Lamp" {
		t.Errorf("name: got %q", p.Name)
	}

	var list struct {
		Products []models.Product `json:"products"`
	}
	w = ts.do(t, http.MethodGet, "/api/v1/products?type=sofa", "", nil)
	decodeBody(t, w, &list)
	if len(list.Products) != 1 || list.Products[0].ID != "linen" {
		t.Errorf("filtered list: %+v", list.Products)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/products/search?q=lamp", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search: got %d", w.Code)
	}
	list.Products = nil
	decodeBody(t, w, &list)
	if len(list.Products) == 0 || list.Products[0].ID != "arc" {
		t.Errorf("search results: %+v", list.Products)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/products/search", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search without q: got %d", w.Code)
	}

	if w := ts.do(t, http.MethodDelete, "/api/v1/products/arc", "", nil); w.Code != http.StatusOK {
		t.Fatalf("delete: got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/products/arc", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d", w.Code)
	}
	if w := ts.do(t, http.MethodDelete, "/api/v1/products/arc", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d", w.Code)
	}
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadAndServeFile(t *testing.T) {
	ts := newTestServer(t, "")
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

	body, ct := multipartBody(t, "room.png", "application/octet-stream", png)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	r.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: got %d %s", w.Code, w.Body.String())
	}
	var out map[string]string
	decodeBody(t, w, &out)
	if !strings.HasPrefix(out["url"], "http://decora.test/files/") || !strings.HasSuffix(out["url"], ".png") {
		t.Fatalf("url: got %q", out["url"])
	}

	path := strings.TrimPrefix(out["url"], "http://decora.test")
	w = ts.do(t, http.MethodGet, path, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get file: got %d", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), png) {
		t.Error("served file differs from upload")
	}

	body, ct = multipartBody(t, "notes.txt", "text/plain", []byte("hello there"))
	r = httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	r.Header.Set("Content-Type", ct)
	w = httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("text upload: got %d", w.Code)
	}

	if w := ts.do(t, http.MethodGet, "/files/missing.png", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing file: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t, "")
	ts.do(t, http.MethodPost, "/api/v1/products", "", models.ProductInput{
		Name: "Arc Lamp", ImageURL: "https://cdn.example.com/arc.jpg", Style: "modern", Type: "lamp",
	})
	ts.do(t, http.MethodPost, "/api/v1/sessions", "alice", nil)

	w := ts.do(t, http.MethodGet, "/api/v1/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Sessions        int64                  `json:"sessions"`
		Products        int64                  `json:"products"`
		IndexedProducts uint64                 `json:"indexed_products"`
		Config          map[string]interface{} `json:"config"`
		DiskUsage       *storage.DiskUsage     `json:"disk_usage"`
		ActiveSessions  *int                   `json:"active_sessions"`
	}
	decodeBody(t, w, &out)
	if out.Sessions != 1 || out.Products != 1 || out.IndexedProducts != 1 {
		t.Errorf("counts: %+v", out)
	}
	// Creating a session does not allocate assistant state.
	if out.ActiveSessions == nil || *out.ActiveSessions != 0 {
		t.Errorf("active_sessions: %v", out.ActiveSessions)
	}
	if out.Config["ai_provider"] != "mock" {
		t.Errorf("config summary: %+v", out.Config)
	}
	if out.DiskUsage == nil {
		t.Fatal("disk usage missing")
	}
	if _, ok := out.DiskUsage.Paths["database"]; !ok {
		t.Errorf("disk usage should include the database: %+v", out.DiskUsage)
	}
}

func TestAuthRequiredWithSecret(t *testing.T) {
	ts := newTestServer(t, "s3cret")

	if w := ts.do(t, http.MethodGet, "/api/v1/sessions", "alice", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("without token: got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("health should stay public: got %d", w.Code)
	}

	token, err := ts.srv.auth.Issue("alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("with token: got %d %s", w.Code, w.Body.String())
	}
	var sess models.Session
	decodeBody(t, w, &sess)
	if sess.OwnerID != "alice" {
		t.Errorf("owner: got %q", sess.OwnerID)
	}
}

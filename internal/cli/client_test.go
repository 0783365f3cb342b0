package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/decora/internal/models"
)

func TestClient_SendAndHeaders(t *testing.T) {
	var gotAuth, gotUser, gotPath string
	var gotReq models.SendRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.Header.Get("X-User-ID")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(models.Reply{SessionID: "s1", Text: "hello back", Source: models.SourceModel})
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", "tok", "ignored")
	reply, err := c.Send(context.Background(), "s1", models.SendRequest{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Text != "hello back" {
		t.Errorf("reply: %+v", reply)
	}
	if gotPath != "/api/v1/sessions/s1/messages" || gotReq.Text != "hello" {
		t.Errorf("request: path %q body %+v", gotPath, gotReq)
	}
	if gotAuth != "Bearer tok" || gotUser != "" {
		t.Errorf("headers: auth %q user %q", gotAuth, gotUser)
	}

	c = NewClient(ts.URL, "", "alice")
	if _, err := c.Send(context.Background(), "s1", models.SendRequest{Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "" || gotUser != "alice" {
		t.Errorf("headers without token: auth %q user %q", gotAuth, gotUser)
	}
}

func TestClient_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"Sorry, something went wrong. Please try again."}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, "", "").CreateSession(context.Background(), "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Message != models.GenericFailureMessage {
		t.Errorf("APIError: %+v", apiErr)
	}
}

func TestClient_ListsAndSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sessions":
			if r.URL.Query().Get("limit") != "5" {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"sessions":[{"id":"s1","title":"Kitchen"}]}`))
		case "/api/v1/products/search":
			if r.URL.Query().Get("q") != "arc lamp" {
				http.Error(w, "bad query", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"query":"arc lamp","products":[{"id":"p1","name":"Arc Lamp","price":"10"}]}`))
		case "/api/v1/status":
			_, _ = w.Write([]byte(`{"sessions":1,"messages":2,"products":3,"indexed_products":3}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()
	c := NewClient(ts.URL, "", "")
	ctx := context.Background()

	sessions, err := c.ListSessions(ctx, 0, 5)
	if err != nil || len(sessions) != 1 || sessions[0].Title != "Kitchen" {
		t.Errorf("ListSessions: %v %+v", err, sessions)
	}
	products, err := c.SearchProducts(ctx, "arc lamp", 0)
	if err != nil || len(products) != 1 || products[0].Name != "Arc Lamp" {
		t.Errorf("SearchProducts: %v %+v", err, products)
	}
	status, err := c.Status(ctx)
	if err != nil || status.Products != 3 || status.IndexedProducts == nil || *status.IndexedProducts != 3 {
		t.Errorf("Status: %v %+v", err, status)
	}
	if err := c.DeleteSession(ctx, "s1"); err == nil {
		t.Error("DELETE on unknown route should fail")
	}
}

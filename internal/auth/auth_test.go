package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	a := New("s3cret", nil)
	token, err := a.Issue("user-42", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	owner, err := a.Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	if owner != "user-42" {
		t.Errorf("owner: got %q", owner)
	}

	if _, err := New("other", nil).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: expected ErrInvalidToken, got %v", err)
	}
	if _, err := a.Parse("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: expected ErrInvalidToken, got %v", err)
	}
	if _, err := a.Issue("  ", time.Hour); err == nil {
		t.Error("empty owner should fail")
	}
}

func TestParse_Expired(t *testing.T) {
	a := New("s3cret", nil)
	a.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := a.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	a.now = time.Now
	if _, err := a.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: expected ErrInvalidToken, got %v", err)
	}
}

func TestIssue_NoSecret(t *testing.T) {
	a := New("", nil)
	if a.Enabled() {
		t.Fatal("authenticator without secret should be disabled")
	}
	if _, err := a.Issue("u", time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}

func ownerHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(Owner(r.Context())))
	})
}

func TestMiddleware(t *testing.T) {
	withSecret := New("s3cret", nil)
	good, err := withSecret.Issue("alice", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		auth     *Authenticator
		header   map[string]string
		wantCode int
		wantBody string
	}{
		{"disabled anonymous", New("", nil), nil, http.StatusOK, AnonymousOwner},
		{"disabled user header", New("", nil), map[string]string{UserHeader: "bob"}, http.StatusOK, "bob"},
		{"valid token", withSecret, map[string]string{"Authorization": "Bearer " + good}, http.StatusOK, "alice"},
		{"missing token", withSecret, nil, http.StatusUnauthorized, ""},
		{"header ignored when enabled", withSecret, map[string]string{UserHeader: "bob"}, http.StatusUnauthorized, ""},
		{"bad token", withSecret, map[string]string{"Authorization": "Bearer abc"}, http.StatusUnauthorized, ""},
		{"wrong scheme", withSecret, map[string]string{"Authorization": "Basic " + good}, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			tt.auth.Middleware(ownerHandler()).ServeHTTP(w, r)
			if w.Code != tt.wantCode {
				t.Fatalf("status: got %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("owner: got %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

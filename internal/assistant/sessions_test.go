package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/decora/internal/models"
)

func TestSessions_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.asst.CreateSession(ctx, "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Title != models.DefaultSessionTitle || sess.OwnerID != "u1" {
		t.Errorf("unexpected session: %+v", sess)
	}
	named, err := f.asst.CreateSession(ctx, "u1", "  Bedroom  ")
	if err != nil {
		t.Fatal(err)
	}
	if named.Title != "Bedroom" {
		t.Errorf("title = %q", named.Title)
	}
	if _, err := f.asst.CreateSession(ctx, "u1", strings.Repeat("x", 101)); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("long title err = %v", err)
	}

	f.send(t, sess.ID, "show me modern lamps")

	list, err := f.asst.ListSessions(ctx, "u1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != sess.ID {
		t.Errorf("expected active session first, got %+v", list)
	}
	if list[0].Title != "show me modern lamps" {
		t.Errorf("title not taken from first message: %q", list[0].Title)
	}
	other, _ := f.asst.ListSessions(ctx, "u2", 0, 10)
	if len(other) != 0 {
		t.Errorf("u2 sees %d sessions", len(other))
	}

	renamed, err := f.asst.RenameSession(ctx, sess.ID, "u1", "Living room")
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Title != "Living room" {
		t.Errorf("renamed title = %q", renamed.Title)
	}
	if _, err := f.asst.RenameSession(ctx, sess.ID, "u2", "mine"); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("rename by other owner err = %v", err)
	}
	if _, err := f.asst.RenameSession(ctx, sess.ID, "u1", " "); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("blank rename err = %v", err)
	}

	detail, err := f.asst.GetSession(ctx, sess.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Messages) != 5 {
		t.Errorf("expected user + text + 3 images, got %d messages", len(detail.Messages))
	}
	history, _ := f.asst.History(ctx, sess.ID, "u1")
	if len(history) != len(detail.Messages) {
		t.Errorf("History and GetSession disagree")
	}

	if f.asst.ActiveSessions() == 0 {
		t.Fatal("expected state for the active session")
	}
	if err := f.asst.DeleteSession(ctx, sess.ID, "u2"); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("delete by other owner err = %v", err)
	}
	if err := f.asst.DeleteSession(ctx, sess.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.asst.GetSession(ctx, sess.ID, "u1"); !errors.Is(err, models.ErrSessionNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
	if st := f.asst.state.Get(sess.ID); len(st.Shown) != 0 || st.LastStyle != "" {
		t.Errorf("state survived delete: %+v", st)
	}
	n, _ := f.store.CountMessages(ctx)
	if n != 0 {
		t.Errorf("messages survived delete: %d", n)
	}
}

func TestSessions_LatestSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.asst.LatestSession(ctx, "tg:42")
	if err != nil {
		t.Fatal(err)
	}
	again, _ := f.asst.LatestSession(ctx, "tg:42")
	if again.ID != first.ID {
		t.Errorf("LatestSession created a second session")
	}
}

func TestStateStore(t *testing.T) {
	s := NewStateStore()
	s.Update("a", func(st *SessionState) {
		st.LastStyle = "boho"
		st.Shown["https://cdn.example.com/1.jpg"] = struct{}{}
	})
	got := s.Get("a")
	got.Shown["mutated"] = struct{}{}
	if _, ok := s.Get("a").Shown["mutated"]; ok {
		t.Error("Get must return a copy")
	}
	if s.Get("a").LastStyle != "boho" {
		t.Error("update lost")
	}
	s.Drop("a")
	if s.Get("a").LastStyle != "" {
		t.Error("drop did not reset state")
	}
}

package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/openintentos/openintent/internal/store"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	sess, err := st.CreateSession(ctx, "research", "deepseek-chat")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("empty session id")
	}

	got, err := st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "research" || got.Model != "deepseek-chat" || got.MessageCount != 0 {
		t.Fatalf("got %+v", got)
	}

	if err := st.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.GetSession(ctx, sess.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.DeleteSession(ctx, sess.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestEnsureSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if err := st.EnsureSession(ctx, "telegram-7", "telegram-7", "gpt-4o"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := st.AppendMessage(ctx, "telegram-7", store.SessionMessage{Role: "user", Content: "hi"}, 3); err != nil {
		t.Fatalf("append: %v", err)
	}

	// A second ensure must keep the row and its counters.
	if err := st.EnsureSession(ctx, "telegram-7", "telegram-7", "claude-sonnet-4-20250514"); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	got, err := st.GetSession(ctx, "telegram-7")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MessageCount != 1 || got.TokenCount != 3 || got.Model != "gpt-4o" {
		t.Fatalf("got %+v", got)
	}

	if err := st.EnsureSession(ctx, "", "x", ""); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("empty id: %v", err)
	}
}

func TestCreateSessionRejectsEmptyName(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.CreateSession(context.Background(), "", "m"); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAppendMessageMaintainsCounts(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	sess, err := st.CreateSession(ctx, "counts", "m")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i, tokens := range []int{3, 5, 7} {
		msg := store.SessionMessage{Role: "user", Content: fmt.Sprintf("msg %d", i)}
		if _, err := st.AppendMessage(ctx, sess.ID, msg, tokens); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MessageCount != 3 {
		t.Errorf("message count = %d, want 3", got.MessageCount)
	}
	if got.TokenCount != 15 {
		t.Errorf("token count = %d, want 15", got.TokenCount)
	}
}

func TestAppendMessageRejectsBadRole(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	sess, _ := st.CreateSession(ctx, "roles", "m")

	msg := store.SessionMessage{Role: "narrator", Content: "x"}
	if _, err := st.AppendMessage(ctx, sess.ID, msg, 0); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestRecentMessagesReturnsTailInOrder(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	sess, _ := st.CreateSession(ctx, "tail", "m")

	for i := 0; i < 10; i++ {
		msg := store.SessionMessage{Role: "user", Content: fmt.Sprintf("m%d", i)}
		if _, err := st.AppendMessage(ctx, sess.ID, msg, 0); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := st.RecentMessages(ctx, sess.ID, 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	for i, m := range msgs {
		want := fmt.Sprintf("m%d", 6+i)
		if m.Content != want {
			t.Errorf("msgs[%d] = %q, want %q", i, m.Content, want)
		}
	}
}

func TestDeleteSessionCascadesMessages(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	sess, _ := st.CreateSession(ctx, "cascade", "m")
	if _, err := st.AppendMessage(ctx, sess.ID, store.SessionMessage{Role: "user", Content: "x"}, 0); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := st.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var n int
	if err := st.DB().QueryRow(
		`SELECT COUNT(*) FROM session_messages WHERE session_id = ?`, sess.ID).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("messages left after session delete: %d", n)
	}
}

func TestCompactSessionKeepsTailAndSummaryFirst(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	sess, _ := st.CreateSession(ctx, "compact", "m")

	for i := 0; i < 12; i++ {
		msg := store.SessionMessage{Role: "user", Content: fmt.Sprintf("m%d", i)}
		if _, err := st.AppendMessage(ctx, sess.ID, msg, 1); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := st.CompactSession(ctx, sess.ID, 4, "what came before"); err != nil {
		t.Fatalf("compact: %v", err)
	}

	msgs, err := st.RecentMessages(ctx, sess.ID, 100)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("len = %d, want 5", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "what came before" {
		t.Fatalf("first message = %+v, want summary", msgs[0])
	}
	for i := 1; i < 5; i++ {
		want := fmt.Sprintf("m%d", 7+i)
		if msgs[i].Content != want {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Content, want)
		}
	}

	got, err := st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MessageCount != 5 {
		t.Fatalf("message count = %d, want 5", got.MessageCount)
	}
}

func TestCompactSessionKeepZero(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	sess, _ := st.CreateSession(ctx, "wipe", "m")
	for i := 0; i < 3; i++ {
		if _, err := st.AppendMessage(ctx, sess.ID, store.SessionMessage{Role: "user", Content: "x"}, 0); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := st.CompactSession(ctx, sess.ID, 0, "everything"); err != nil {
		t.Fatalf("compact: %v", err)
	}
	msgs, err := st.RecentMessages(ctx, sess.ID, 100)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "everything" {
		t.Fatalf("msgs = %+v", msgs)
	}
}

package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/types"
)

func newTestStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	store, err := NewStore(log, rdb)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, mr
}

func TestCreateThenGetReturnsAnonymousDefaults(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sess, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !sess.Anonymous() {
		t.Fatalf("new session user id: want=%d got=%d", types.AnonymousUserID, sess.UserID)
	}
	if len(sess.SearchHistory) != 0 {
		t.Fatalf("new session history: want empty got=%v", sess.SearchHistory)
	}
	if sess.Theme != types.ThemeLight {
		t.Fatalf("new session theme: want=%q got=%q", types.ThemeLight, sess.Theme)
	}
	if sess.SafeSearch != types.SafeSearchModerate {
		t.Fatalf("new session safesearch: want=%q got=%q", types.SafeSearchModerate, sess.SafeSearch)
	}
	if sess.CreatedAt.IsZero() {
		t.Fatalf("new session created_at is zero")
	}

	ttl := mr.TTL(sessionKey(token))
	if ttl != RetentionWindow {
		t.Fatalf("session ttl: want=%v got=%v", RetentionWindow, ttl)
	}
}

func TestGetMissingSessionReportsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "no-such-token")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound got=%v", err)
	}
}

func TestUpdateIsMergePatch(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.AppendHistory(ctx, token, "capybaras"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	theme := types.ThemeDark
	if err := store.Update(ctx, token, Patch{Theme: &theme}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	sess, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Theme != types.ThemeDark {
		t.Fatalf("theme after patch: want=%q got=%q", types.ThemeDark, sess.Theme)
	}
	if sess.SafeSearch != types.SafeSearchModerate {
		t.Fatalf("safesearch changed by unrelated patch: got=%q", sess.SafeSearch)
	}
	if len(sess.SearchHistory) != 1 || sess.SearchHistory[0] != "capybaras" {
		t.Fatalf("history changed by unrelated patch: got=%v", sess.SearchHistory)
	}
}

func TestUpdateMissingSessionReportsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	theme := types.ThemeBeige
	err := store.Update(context.Background(), "no-such-token", Patch{Theme: &theme})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Update missing: want ErrNotFound got=%v", err)
	}
}

func TestAppendHistoryPreservesOrderAndDuplicates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, q := range []string{"cats", "dogs", "cats"} {
		if err := store.AppendHistory(ctx, token, q); err != nil {
			t.Fatalf("AppendHistory(%q): %v", q, err)
		}
	}

	sess, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []string{"cats", "dogs", "cats"}
	if len(sess.SearchHistory) != len(want) {
		t.Fatalf("history length: want=%d got=%d", len(want), len(sess.SearchHistory))
	}
	for i := range want {
		if sess.SearchHistory[i] != want[i] {
			t.Fatalf("history[%d]: want=%q got=%q", i, want[i], sess.SearchHistory[i])
		}
	}
}

func TestAppendHistoryBoundsListLength(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < maxHistoryLen+10; i++ {
		if err := store.AppendHistory(ctx, token, "q"); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	sess, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.SearchHistory) != maxHistoryLen {
		t.Fatalf("history cap: want=%d got=%d", maxHistoryLen, len(sess.SearchHistory))
	}
}

func TestAppendHistoryDoesNotOutliveSession(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Half the retention window passes before the visitor searches again. The
	// history list must expire with the session hash, not get a fresh window.
	mr.FastForward(RetentionWindow / 2)
	if err := store.AppendHistory(ctx, token, "cats"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	sessTTL := mr.TTL(sessionKey(token))
	histTTL := mr.TTL(historyKey(token))
	if histTTL > sessTTL {
		t.Fatalf("history ttl outlives session: session=%v history=%v", sessTTL, histTTL)
	}
	if histTTL <= 0 {
		t.Fatalf("history ttl not set: got=%v", histTTL)
	}
}

func TestRebindClearsHistory(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.AppendHistory(ctx, token, "cats"); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	userID := int64(42)
	if err := store.Update(ctx, token, Patch{UserID: &userID, ClearHistory: true}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	sess, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.UserID != 42 {
		t.Fatalf("user id after rebind: want=42 got=%d", sess.UserID)
	}
	if len(sess.SearchHistory) != 0 {
		t.Fatalf("history after rebind: want empty got=%v", sess.SearchHistory)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(ctx, token); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := store.Delete(ctx, token); err != nil {
		t.Fatalf("repeated Delete: %v", err)
	}

	if _, err := store.Get(ctx, token); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get after delete: want ErrNotFound got=%v", err)
	}
}

func TestExpiredSessionIsAbsent(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	mr.FastForward(RetentionWindow + time.Hour)

	if _, err := store.Get(ctx, token); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get after retention window: want ErrNotFound got=%v", err)
	}
}

package services

import (
  "context"
  "errors"
  "fmt"
  "testing"
  "time"

  "github.com/alicebob/miniredis/v2"
  goredis "github.com/redis/go-redis/v9"
  "gorm.io/driver/sqlite"
  "gorm.io/gorm"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/repos"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/sessions"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/types"
)

type testEnv struct {
  db      *gorm.DB
  rdb     *goredis.Client
  mr      *miniredis.Miniredis
  log     *logger.Logger
  store   sessions.Store
  users   repos.UserRepo
  prefs   repos.UserPreferencesRepo
  history repos.UserSearchHistoryRepo
}

func newTestEnv(t *testing.T) *testEnv {
  t.Helper()

  log, err := logger.New("test")
  if err != nil {
    t.Fatalf("logger.New: %v", err)
  }

  dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
  db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
  if err != nil {
    t.Fatalf("gorm.Open: %v", err)
  }
  if err := db.AutoMigrate(&types.User{}, &types.UserPreferences{}, &types.UserSearchHistory{}); err != nil {
    t.Fatalf("AutoMigrate: %v", err)
  }

  mr := miniredis.RunT(t)
  rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
  t.Cleanup(func() { _ = rdb.Close() })

  store, err := sessions.NewStore(log, rdb)
  if err != nil {
    t.Fatalf("NewStore: %v", err)
  }

  return &testEnv{
    db:      db,
    rdb:     rdb,
    mr:      mr,
    log:     log,
    store:   store,
    users:   repos.NewUserRepo(db, log),
    prefs:   repos.NewUserPreferencesRepo(db, log),
    history: repos.NewUserSearchHistoryRepo(db, log),
  }
}

func (env *testEnv) newReconcileService() ReconcileService {
  return NewReconcileService(env.db, env.log, env.store, env.users, env.prefs, env.history)
}

func (env *testEnv) mustCreateUser(t *testing.T, username, email string) *types.User {
  t.Helper()
  past := time.Now().Add(-time.Hour)
  user, err := env.users.Create(context.Background(), nil, &types.User{
    Username:    username,
    Email:       email,
    Provider:    types.ProviderLocal,
    ProviderID:  types.ProviderLocal + ":" + email,
    CreatedAt:   past,
    UpdatedAt:   past,
    LastLoginAt: past,
  })
  if err != nil {
    t.Fatalf("create user: %v", err)
  }
  return user
}

func (env *testEnv) mustCreateSession(t *testing.T) string {
  t.Helper()
  token, err := env.store.Create(context.Background())
  if err != nil {
    t.Fatalf("create session: %v", err)
  }
  return token
}

func TestReconcileSignupMigratesSessionState(t *testing.T) {
  env := newTestEnv(t)
  rs := env.newReconcileService()
  ctx := context.Background()

  token := env.mustCreateSession(t)
  theme := types.ThemeDark
  if err := env.store.Update(ctx, token, sessions.Patch{Theme: &theme}); err != nil {
    t.Fatalf("Update session theme: %v", err)
  }
  for _, q := range []string{"cats", "dogs", "cats"} {
    if err := env.store.AppendHistory(ctx, token, q); err != nil {
      t.Fatalf("AppendHistory(%q): %v", q, err)
    }
  }
  user := env.mustCreateUser(t, "newbie", "newbie@example.com")

  if err := rs.ReconcileSignup(ctx, token, user.ID); err != nil {
    t.Fatalf("ReconcileSignup: %v", err)
  }

  prefs, err := env.prefs.GetByUserID(ctx, nil, user.ID)
  if err != nil {
    t.Fatalf("GetByUserID prefs: %v", err)
  }
  if prefs.Theme != types.ThemeDark {
    t.Fatalf("migrated theme: want=%q got=%q", types.ThemeDark, prefs.Theme)
  }
  if prefs.SafeSearch != types.SafeSearchModerate {
    t.Fatalf("migrated safesearch: want=%q got=%q", types.SafeSearchModerate, prefs.SafeSearch)
  }

  rows, err := env.history.ListByUserID(ctx, nil, user.ID)
  if err != nil {
    t.Fatalf("ListByUserID: %v", err)
  }
  want := []string{"cats", "dogs", "cats"}
  if len(rows) != len(want) {
    t.Fatalf("migrated history length: want=%d got=%d", len(want), len(rows))
  }
  for i := range want {
    if rows[i].Query != want[i] {
      t.Fatalf("migrated history[%d]: want=%q got=%q", i, want[i], rows[i].Query)
    }
    if i > 0 && rows[i].QueriedAt.Before(rows[i-1].QueriedAt) {
      t.Fatalf("migrated history timestamps not ordered at %d", i)
    }
  }

  sess, err := env.store.Get(ctx, token)
  if err != nil {
    t.Fatalf("Get session: %v", err)
  }
  if sess.UserID != user.ID {
    t.Fatalf("session binding: want=%d got=%d", user.ID, sess.UserID)
  }
  if len(sess.SearchHistory) != 0 {
    t.Fatalf("session history after migration: want empty got=%v", sess.SearchHistory)
  }

  fresh, err := env.users.GetByID(ctx, nil, user.ID)
  if err != nil {
    t.Fatalf("GetByID: %v", err)
  }
  if !fresh.LastLoginAt.After(user.CreatedAt) {
    t.Fatalf("last login not advanced: %v", fresh.LastLoginAt)
  }
}

func TestReconcileSignupIsIdempotent(t *testing.T) {
  env := newTestEnv(t)
  rs := env.newReconcileService()
  ctx := context.Background()

  token := env.mustCreateSession(t)
  if err := env.store.AppendHistory(ctx, token, "cats"); err != nil {
    t.Fatalf("AppendHistory: %v", err)
  }
  user := env.mustCreateUser(t, "newbie", "newbie@example.com")

  if err := rs.ReconcileSignup(ctx, token, user.ID); err != nil {
    t.Fatalf("first ReconcileSignup: %v", err)
  }
  if err := rs.ReconcileSignup(ctx, token, user.ID); err != nil {
    t.Fatalf("repeated ReconcileSignup: %v", err)
  }

  rows, err := env.history.ListByUserID(ctx, nil, user.ID)
  if err != nil {
    t.Fatalf("ListByUserID: %v", err)
  }
  if len(rows) != 1 {
    t.Fatalf("history rows after repeat: want=1 got=%d", len(rows))
  }
}

// A signup retry after the transaction committed but the rebind failed must not
// duplicate the copied rows.
func TestReconcileSignupToleratesRetryAfterCommit(t *testing.T) {
  env := newTestEnv(t)
  rs := env.newReconcileService()
  ctx := context.Background()

  token := env.mustCreateSession(t)
  if err := env.store.AppendHistory(ctx, token, "cats"); err != nil {
    t.Fatalf("AppendHistory: %v", err)
  }
  user := env.mustCreateUser(t, "newbie", "newbie@example.com")

  // Simulate the committed first attempt: durable rows exist, session unbound.
  if _, err := env.prefs.Create(ctx, nil, &types.UserPreferences{UserID: user.ID, Theme: types.ThemeLight, SafeSearch: types.SafeSearchModerate}); err != nil {
    t.Fatalf("seed prefs: %v", err)
  }
  if err := env.history.Append(ctx, nil, user.ID, "cats"); err != nil {
    t.Fatalf("seed history: %v", err)
  }

  if err := rs.ReconcileSignup(ctx, token, user.ID); err != nil {
    t.Fatalf("ReconcileSignup retry: %v", err)
  }

  rows, err := env.history.ListByUserID(ctx, nil, user.ID)
  if err != nil {
    t.Fatalf("ListByUserID: %v", err)
  }
  if len(rows) != 1 {
    t.Fatalf("history rows after retry: want=1 got=%d", len(rows))
  }
  sess, err := env.store.Get(ctx, token)
  if err != nil {
    t.Fatalf("Get session: %v", err)
  }
  if sess.UserID != user.ID {
    t.Fatalf("session not rebound on retry: got=%d", sess.UserID)
  }
}

func TestReconcileLoginDiscardsSessionState(t *testing.T) {
  env := newTestEnv(t)
  rs := env.newReconcileService()
  ctx := context.Background()

  user := env.mustCreateUser(t, "regular", "regular@example.com")
  if _, err := env.prefs.Create(ctx, nil, &types.UserPreferences{
    UserID:     user.ID,
    Theme:      types.ThemeBeige,
    SafeSearch: types.SafeSearchStrict,
  }); err != nil {
    t.Fatalf("seed prefs: %v", err)
  }

  token := env.mustCreateSession(t)
  theme := types.ThemeDark
  if err := env.store.Update(ctx, token, sessions.Patch{Theme: &theme}); err != nil {
    t.Fatalf("Update session theme: %v", err)
  }
  if err := env.store.AppendHistory(ctx, token, "anonymous query"); err != nil {
    t.Fatalf("AppendHistory: %v", err)
  }

  if err := rs.ReconcileLogin(ctx, token, user.ID); err != nil {
    t.Fatalf("ReconcileLogin: %v", err)
  }

  prefs, err := env.prefs.GetByUserID(ctx, nil, user.ID)
  if err != nil {
    t.Fatalf("GetByUserID prefs: %v", err)
  }
  if prefs.Theme != types.ThemeBeige || prefs.SafeSearch != types.SafeSearchStrict {
    t.Fatalf("durable prefs overwritten on login: got theme=%q safesearch=%q", prefs.Theme, prefs.SafeSearch)
  }

  rows, err := env.history.ListByUserID(ctx, nil, user.ID)
  if err != nil {
    t.Fatalf("ListByUserID: %v", err)
  }
  if len(rows) != 0 {
    t.Fatalf("anonymous history merged on login: got=%d rows", len(rows))
  }

  sess, err := env.store.Get(ctx, token)
  if err != nil {
    t.Fatalf("Get session: %v", err)
  }
  if sess.UserID != user.ID {
    t.Fatalf("session binding: want=%d got=%d", user.ID, sess.UserID)
  }
  if len(sess.SearchHistory) != 0 {
    t.Fatalf("session history after login: want empty got=%v", sess.SearchHistory)
  }
}

func TestReconcileIsNoOpWhenAlreadyBoundToSameUser(t *testing.T) {
  env := newTestEnv(t)
  rs := env.newReconcileService()
  ctx := context.Background()

  user := env.mustCreateUser(t, "regular", "regular@example.com")
  token := env.mustCreateSession(t)
  if err := rs.ReconcileLogin(ctx, token, user.ID); err != nil {
    t.Fatalf("first ReconcileLogin: %v", err)
  }
  if err := rs.ReconcileLogin(ctx, token, user.ID); err != nil {
    t.Fatalf("repeated ReconcileLogin: %v", err)
  }
  if err := rs.ReconcileSignup(ctx, token, user.ID); err != nil {
    t.Fatalf("ReconcileSignup on bound session: %v", err)
  }
}

func TestReconcileRejectsForeignBinding(t *testing.T) {
  env := newTestEnv(t)
  rs := env.newReconcileService()
  ctx := context.Background()

  alice := env.mustCreateUser(t, "alice", "alice@example.com")
  bob := env.mustCreateUser(t, "bob", "bob@example.com")

  token := env.mustCreateSession(t)
  if err := rs.ReconcileLogin(ctx, token, alice.ID); err != nil {
    t.Fatalf("bind to alice: %v", err)
  }

  if err := rs.ReconcileLogin(ctx, token, bob.ID); !errors.Is(err, apperr.ErrIdentityConflict) {
    t.Fatalf("login on foreign binding: want ErrIdentityConflict got=%v", err)
  }
  if err := rs.ReconcileSignup(ctx, token, bob.ID); !errors.Is(err, apperr.ErrIdentityConflict) {
    t.Fatalf("signup on foreign binding: want ErrIdentityConflict got=%v", err)
  }
}

func TestReconcileMissingSessionReportsNotFound(t *testing.T) {
  env := newTestEnv(t)
  rs := env.newReconcileService()

  user := env.mustCreateUser(t, "regular", "regular@example.com")
  err := rs.ReconcileLogin(context.Background(), "no-such-token", user.ID)
  if !errors.Is(err, apperr.ErrNotFound) {
    t.Fatalf("missing session: want ErrNotFound got=%v", err)
  }
}

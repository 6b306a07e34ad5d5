package services

import (
  "context"
  "errors"
  "fmt"
  "time"

  "gorm.io/gorm"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/repos"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/sessions"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/types"
)

// ReconcileService merges a session's anonymous state into Postgres at the
// moment a visitor authenticates, then rebinds the session to the user.
//
// Signup copies session preferences and anonymous history into the new account.
// Login never overwrites an existing account from session data; the session's
// anonymous history is logged and discarded so a reused session can never
// pollute another user's history.
type ReconcileService interface {
  ReconcileSignup(ctx context.Context, token string, userID int64) error
  ReconcileLogin(ctx context.Context, token string, userID int64) error
}

type reconcileService struct {
  db           *gorm.DB
  log          *logger.Logger
  sessionStore sessions.Store
  prefsRepo    repos.UserPreferencesRepo
  historyRepo  repos.UserSearchHistoryRepo
  userRepo     repos.UserRepo
}

func NewReconcileService(
  db *gorm.DB,
  log *logger.Logger,
  sessionStore sessions.Store,
  userRepo repos.UserRepo,
  prefsRepo repos.UserPreferencesRepo,
  historyRepo repos.UserSearchHistoryRepo,
) ReconcileService {
  serviceLog := log.With("service", "ReconcileService")
  return &reconcileService{
    db:           db,
    log:          serviceLog,
    sessionStore: sessionStore,
    prefsRepo:    prefsRepo,
    historyRepo:  historyRepo,
    userRepo:     userRepo,
  }
}

// checkBinding reads the session and applies the identity rules: an unbound
// session proceeds, a session already bound to this user is an idempotent
// no-op, a session bound to anyone else is a conflict.
func (rs *reconcileService) checkBinding(ctx context.Context, token string, userID int64) (sess *types.Session, done bool, err error) {
  sess, err = rs.sessionStore.Get(ctx, token)
  if err != nil {
    return nil, false, err
  }
  if !sess.Anonymous() {
    if sess.UserID == userID {
      return sess, true, nil
    }
    return nil, false, fmt.Errorf("%w: session %q is bound to user %d, not %d", apperr.ErrIdentityConflict, token, sess.UserID, userID)
  }
  return sess, false, nil
}

// rebind points the session at the user and clears the migrated (or discarded)
// anonymous history. Runs only after the durable writes committed, so a rebind
// failure leaves the session unbound and the whole call retryable.
func (rs *reconcileService) rebind(ctx context.Context, token string, userID int64) error {
  return rs.sessionStore.Update(ctx, token, sessions.Patch{
    UserID:       &userID,
    ClearHistory: true,
  })
}

func (rs *reconcileService) ReconcileSignup(ctx context.Context, token string, userID int64) error {
  sess, done, err := rs.checkBinding(ctx, token, userID)
  if err != nil {
    return err
  }
  if done {
    return nil
  }

  now := time.Now()
  base := sess.CreatedAt
  if base.IsZero() {
    base = now
  }

  txErr := rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    // Tolerate a retry after a committed transaction whose rebind failed: the
    // rows are already there, so skip the copies instead of violating
    // uniqueness.
    _, pErr := rs.prefsRepo.GetByUserID(ctx, tx, userID)
    if errors.Is(pErr, apperr.ErrNotFound) {
      if _, err := rs.prefsRepo.Create(ctx, tx, &types.UserPreferences{
        UserID:     userID,
        Theme:      sess.Theme,
        SafeSearch: sess.SafeSearch,
      }); err != nil {
        return fmt.Errorf("Failed to create user preferences: %w", err)
      }
    } else if pErr != nil {
      return fmt.Errorf("Failed to check user preferences: %w", pErr)
    }

    existing, hErr := rs.historyRepo.ListByUserID(ctx, tx, userID)
    if hErr != nil {
      return fmt.Errorf("Failed to check user search history: %w", hErr)
    }
    if len(existing) == 0 && len(sess.SearchHistory) > 0 {
      entries := make([]*types.UserSearchHistory, 0, len(sess.SearchHistory))
      for i, query := range sess.SearchHistory {
        entries = append(entries, &types.UserSearchHistory{
          UserID:    userID,
          Query:     query,
          QueriedAt: base.Add(time.Duration(i) * time.Millisecond),
        })
      }
      if err := rs.historyRepo.BulkInsert(ctx, tx, entries); err != nil {
        return fmt.Errorf("Failed to migrate anonymous search history: %w", err)
      }
    }

    if err := rs.userRepo.UpdateLastLogin(ctx, tx, userID, now); err != nil {
      return fmt.Errorf("Failed to update last login: %w", err)
    }
    return nil
  })
  if txErr != nil {
    return txErr
  }

  if err := rs.rebind(ctx, token, userID); err != nil {
    return fmt.Errorf("Failed to rebind session after signup: %w", err)
  }
  rs.log.Info("Session reconciled on signup", "user_id", userID, "migrated_queries", len(sess.SearchHistory))
  return nil
}

func (rs *reconcileService) ReconcileLogin(ctx context.Context, token string, userID int64) error {
  sess, done, err := rs.checkBinding(ctx, token, userID)
  if err != nil {
    return err
  }
  if done {
    return nil
  }

  // Durable state wins on login. The anonymous session data is never merged
  // into an existing account; log what is being dropped and move on.
  if len(sess.SearchHistory) > 0 {
    rs.log.Info("Discarding anonymous session history on login", "user_id", userID, "discarded_queries", len(sess.SearchHistory))
  }

  txErr := rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    if err := rs.userRepo.UpdateLastLogin(ctx, tx, userID, time.Now()); err != nil {
      return fmt.Errorf("Failed to update last login: %w", err)
    }
    return nil
  })
  if txErr != nil {
    return txErr
  }

  if err := rs.rebind(ctx, token, userID); err != nil {
    return fmt.Errorf("Failed to rebind session after login: %w", err)
  }
  rs.log.Info("Session reconciled on login", "user_id", userID)
  return nil
}

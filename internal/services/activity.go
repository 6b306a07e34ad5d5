package services

import (
  "context"
  "fmt"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/repos"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/sessions"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/types"
)

// ActivityService records searches and preference changes against whichever
// store owns them: the session while the visitor is anonymous, Postgres once
// the session is bound. For a bound session the session copy of preferences is
// refreshed as an advisory cache; Postgres stays authoritative.
type ActivityService interface {
  RecordSearch(ctx context.Context, token, query string) error
  SetPreferences(ctx context.Context, token string, theme *types.Theme, safesearch *types.SafeSearch) error
  GetPreferences(ctx context.Context, token string) (types.Theme, types.SafeSearch, error)
}

type activityService struct {
  log          *logger.Logger
  sessionStore sessions.Store
  prefsRepo    repos.UserPreferencesRepo
  historyRepo  repos.UserSearchHistoryRepo
}

func NewActivityService(
  log *logger.Logger,
  sessionStore sessions.Store,
  prefsRepo repos.UserPreferencesRepo,
  historyRepo repos.UserSearchHistoryRepo,
) ActivityService {
  serviceLog := log.With("service", "ActivityService")
  return &activityService{
    log:          serviceLog,
    sessionStore: sessionStore,
    prefsRepo:    prefsRepo,
    historyRepo:  historyRepo,
  }
}

func (as *activityService) RecordSearch(ctx context.Context, token, query string) error {
  if query == "" {
    return nil
  }

  sess, err := as.sessionStore.Get(ctx, token)
  if err != nil {
    return err
  }

  if sess.Anonymous() {
    return as.sessionStore.AppendHistory(ctx, token, query)
  }
  return as.historyRepo.Append(ctx, nil, sess.UserID, query)
}

func (as *activityService) SetPreferences(ctx context.Context, token string, theme *types.Theme, safesearch *types.SafeSearch) error {
  if theme == nil && safesearch == nil {
    return nil
  }

  sess, err := as.sessionStore.Get(ctx, token)
  if err != nil {
    return err
  }

  if !sess.Anonymous() {
    if err := as.prefsRepo.Update(ctx, nil, sess.UserID, theme, safesearch); err != nil {
      return fmt.Errorf("Failed to update durable preferences: %w", err)
    }
  }

  // Session copy: authoritative while anonymous, advisory cache once bound.
  return as.sessionStore.Update(ctx, token, sessions.Patch{Theme: theme, SafeSearch: safesearch})
}

func (as *activityService) GetPreferences(ctx context.Context, token string) (types.Theme, types.SafeSearch, error) {
  sess, err := as.sessionStore.Get(ctx, token)
  if err != nil {
    return "", "", err
  }

  if !sess.Anonymous() {
    prefs, err := as.prefsRepo.GetByUserID(ctx, nil, sess.UserID)
    if err == nil {
      return prefs.Theme, prefs.SafeSearch, nil
    }
    // Soft failure: fall back to the session's advisory copy rather than
    // blocking the caller on the durable store.
    as.log.Warn("Failed to read durable preferences, serving session copy", "user_id", sess.UserID, "error", err)
  }

  return sess.Theme, sess.SafeSearch, nil
}

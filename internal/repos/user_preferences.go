package repos

import (
  "context"
  "errors"
  "time"

  "gorm.io/gorm"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/types"
)

type UserPreferencesRepo interface {
  Create(ctx context.Context, tx *gorm.DB, prefs *types.UserPreferences) (*types.UserPreferences, error)
  GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*types.UserPreferences, error)
  Update(ctx context.Context, tx *gorm.DB, userID int64, theme *types.Theme, safesearch *types.SafeSearch) error
}

type userPreferencesRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserPreferencesRepo(db *gorm.DB, baseLog *logger.Logger) UserPreferencesRepo {
  repoLog := baseLog.With("repo", "UserPreferencesRepo")
  return &userPreferencesRepo{db: db, log: repoLog}
}

func (pr *userPreferencesRepo) Create(ctx context.Context, tx *gorm.DB, prefs *types.UserPreferences) (*types.UserPreferences, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  if prefs.Theme == "" {
    prefs.Theme = types.ThemeLight
  }
  if prefs.SafeSearch == "" {
    prefs.SafeSearch = types.SafeSearchModerate
  }

  if err := transaction.WithContext(ctx).Create(prefs).Error; err != nil {
    return nil, err
  }

  return prefs, nil
}

func (pr *userPreferencesRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID int64) (*types.UserPreferences, error) {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  var result types.UserPreferences

  if err := transaction.WithContext(ctx).
    Where("user_id = ?", userID).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperr.ErrNotFound
    }
    return nil, err
  }
  return &result, nil
}

func (pr *userPreferencesRepo) Update(ctx context.Context, tx *gorm.DB, userID int64, theme *types.Theme, safesearch *types.SafeSearch) error {
  transaction := tx
  if transaction == nil {
    transaction = pr.db
  }

  updates := map[string]any{"updated_at": time.Now()}
  if theme != nil {
    updates["theme"] = *theme
  }
  if safesearch != nil {
    updates["safesearch"] = *safesearch
  }

  res := transaction.WithContext(ctx).
    Model(&types.UserPreferences{}).
    Where("user_id = ?", userID).
    Updates(updates)
  if res.Error != nil {
    return res.Error
  }
  if res.RowsAffected == 0 {
    return apperr.ErrNotFound
  }
  return nil
}

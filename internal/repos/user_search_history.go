package repos

import (
  "context"
  "time"

  "gorm.io/gorm"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/types"
)

type UserSearchHistoryRepo interface {
  Append(ctx context.Context, tx *gorm.DB, userID int64, query string) error
  BulkInsert(ctx context.Context, tx *gorm.DB, entries []*types.UserSearchHistory) error
  ListByUserID(ctx context.Context, tx *gorm.DB, userID int64) ([]*types.UserSearchHistory, error)
  DeleteByUserID(ctx context.Context, tx *gorm.DB, userID int64) error
}

type userSearchHistoryRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserSearchHistoryRepo(db *gorm.DB, baseLog *logger.Logger) UserSearchHistoryRepo {
  repoLog := baseLog.With("repo", "UserSearchHistoryRepo")
  return &userSearchHistoryRepo{db: db, log: repoLog}
}

func (hr *userSearchHistoryRepo) Append(ctx context.Context, tx *gorm.DB, userID int64, query string) error {
  transaction := tx
  if transaction == nil {
    transaction = hr.db
  }

  entry := &types.UserSearchHistory{
    UserID:    userID,
    Query:     query,
    QueriedAt: time.Now(),
  }

  return transaction.WithContext(ctx).Create(entry).Error
}

func (hr *userSearchHistoryRepo) BulkInsert(ctx context.Context, tx *gorm.DB, entries []*types.UserSearchHistory) error {
  transaction := tx
  if transaction == nil {
    transaction = hr.db
  }

  if len(entries) == 0 {
    return nil
  }

  // Single multi-row insert; gorm assigns ids in slice order, so insertion order
  // is the read-back order of ListByUserID.
  return transaction.WithContext(ctx).Create(&entries).Error
}

func (hr *userSearchHistoryRepo) ListByUserID(ctx context.Context, tx *gorm.DB, userID int64) ([]*types.UserSearchHistory, error) {
  transaction := tx
  if transaction == nil {
    transaction = hr.db
  }

  var results []*types.UserSearchHistory

  if err := transaction.WithContext(ctx).
    Where("user_id = ?", userID).
    Order("id ASC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (hr *userSearchHistoryRepo) DeleteByUserID(ctx context.Context, tx *gorm.DB, userID int64) error {
  transaction := tx
  if transaction == nil {
    transaction = hr.db
  }

  return transaction.WithContext(ctx).
    Where("user_id = ?", userID).
    Delete(&types.UserSearchHistory{}).Error
}

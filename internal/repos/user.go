package repos

import (
  "context"
  "errors"
  "fmt"
  "time"

  "gorm.io/gorm"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/types"
)

type UserRepo interface {
  Create(ctx context.Context, tx *gorm.DB, user *types.User) (*types.User, error)
  GetByID(ctx context.Context, tx *gorm.DB, userID int64) (*types.User, error)
  GetByUsernameOrEmail(ctx context.Context, tx *gorm.DB, usernameOrEmail string) (*types.User, error)
  GetByProviderIdentity(ctx context.Context, tx *gorm.DB, provider, providerID string) (*types.User, error)
  UsernameOrEmailExists(ctx context.Context, tx *gorm.DB, username, email string) (bool, error)
  UpdateLastLogin(ctx context.Context, tx *gorm.DB, userID int64, at time.Time) error
  UpdatePfpKey(ctx context.Context, tx *gorm.DB, userID int64, pfpKey *string) error
  Delete(ctx context.Context, tx *gorm.DB, userID int64) error
}

type userRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
  repoLog := baseLog.With("repo", "UserRepo")
  return &userRepo{db: db, log: repoLog}
}

func (ur *userRepo) Create(ctx context.Context, tx *gorm.DB, user *types.User) (*types.User, error) {
  transaction := tx
  if transaction == nil {
    transaction = ur.db
  }

  if user == nil {
    return nil, fmt.Errorf("No user given")
  }

  if err := transaction.WithContext(ctx).Create(user).Error; err != nil {
    return nil, err
  }

  return user, nil
}

func (ur *userRepo) GetByID(ctx context.Context, tx *gorm.DB, userID int64) (*types.User, error) {
  transaction := tx
  if transaction == nil {
    transaction = ur.db
  }

  var result types.User

  if err := transaction.WithContext(ctx).
    Where("id = ?", userID).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperr.ErrNotFound
    }
    return nil, err
  }
  return &result, nil
}

func (ur *userRepo) GetByUsernameOrEmail(ctx context.Context, tx *gorm.DB, usernameOrEmail string) (*types.User, error) {
  transaction := tx
  if transaction == nil {
    transaction = ur.db
  }

  var result types.User

  if err := transaction.WithContext(ctx).
    Where("username = ? OR email = ?", usernameOrEmail, usernameOrEmail).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperr.ErrNotFound
    }
    return nil, err
  }
  return &result, nil
}

func (ur *userRepo) GetByProviderIdentity(ctx context.Context, tx *gorm.DB, provider, providerID string) (*types.User, error) {
  transaction := tx
  if transaction == nil {
    transaction = ur.db
  }

  var result types.User

  if err := transaction.WithContext(ctx).
    Where("provider = ? AND provider_id = ?", provider, providerID).
    First(&result).Error; err != nil {
    if errors.Is(err, gorm.ErrRecordNotFound) {
      return nil, apperr.ErrNotFound
    }
    return nil, err
  }
  return &result, nil
}

func (ur *userRepo) UsernameOrEmailExists(ctx context.Context, tx *gorm.DB, username, email string) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = ur.db
  }

  var count int64

  if err := transaction.WithContext(ctx).
    Model(&types.User{}).
    Where("username = ? OR email = ?", username, email).
    Count(&count).Error; err != nil {
    return false, err
  }
  exists := count > 0
  return exists, nil
}

func (ur *userRepo) UpdateLastLogin(ctx context.Context, tx *gorm.DB, userID int64, at time.Time) error {
  transaction := tx
  if transaction == nil {
    transaction = ur.db
  }

  res := transaction.WithContext(ctx).
    Model(&types.User{}).
    Where("id = ?", userID).
    Updates(map[string]any{"last_login_at": at, "updated_at": at})
  if res.Error != nil {
    return res.Error
  }
  if res.RowsAffected == 0 {
    return apperr.ErrNotFound
  }
  return nil
}

func (ur *userRepo) UpdatePfpKey(ctx context.Context, tx *gorm.DB, userID int64, pfpKey *string) error {
  transaction := tx
  if transaction == nil {
    transaction = ur.db
  }

  res := transaction.WithContext(ctx).
    Model(&types.User{}).
    Where("id = ?", userID).
    Updates(map[string]any{"pfp_key": pfpKey, "updated_at": time.Now()})
  if res.Error != nil {
    return res.Error
  }
  if res.RowsAffected == 0 {
    return apperr.ErrNotFound
  }
  return nil
}

func (ur *userRepo) Delete(ctx context.Context, tx *gorm.DB, userID int64) error {
  transaction := tx
  if transaction == nil {
    transaction = ur.db
  }

  return transaction.WithContext(ctx).
    Where("id = ?", userID).
    Delete(&types.User{}).Error
}

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
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/utils"
)

// AuthService covers local account registration and login plus federated
// sign-in. Every successful authentication funnels through the reconcile
// service so the visitor's session is merged and rebound exactly once.
type AuthService interface {
  Register(ctx context.Context, token, username, email, password string) (*types.User, error)
  Login(ctx context.Context, token, usernameOrEmail, password string) (*types.User, error)
  FederatedSignIn(ctx context.Context, token, provider, providerID, username, email string) (*types.User, error)
  Logout(ctx context.Context, token string) error
}

type authService struct {
  db           *gorm.DB
  log          *logger.Logger
  userRepo     repos.UserRepo
  reconcile    ReconcileService
  sessionStore sessions.Store
}

func NewAuthService(
  db *gorm.DB,
  log *logger.Logger,
  userRepo repos.UserRepo,
  reconcile ReconcileService,
  sessionStore sessions.Store,
) AuthService {
  serviceLog := log.With("service", "AuthService")
  return &authService{
    db:           db,
    log:          serviceLog,
    userRepo:     userRepo,
    reconcile:    reconcile,
    sessionStore: sessionStore,
  }
}

func (as *authService) Register(ctx context.Context, token, username, email, password string) (*types.User, error) {
  if username == "" || email == "" || password == "" {
    return nil, fmt.Errorf("%w: username, email, and password are required", apperr.ErrValidation)
  }

  exists, err := as.userRepo.UsernameOrEmailExists(ctx, nil, username, email)
  if err != nil {
    return nil, fmt.Errorf("Failed to check existing users: %w", err)
  }
  if exists {
    return nil, fmt.Errorf("%w: username or email already in use", apperr.ErrValidation)
  }

  hashed, err := utils.HashPassword(password)
  if err != nil {
    return nil, err
  }

  now := time.Now()
  user := &types.User{
    Username:    username,
    Password:    &hashed,
    Email:       email,
    Provider:    types.ProviderLocal,
    ProviderID:  types.ProviderLocal + ":" + email,
    CreatedAt:   now,
    UpdatedAt:   now,
    LastLoginAt: now,
  }
  if _, err := as.userRepo.Create(ctx, nil, user); err != nil {
    return nil, fmt.Errorf("Failed to create user: %w", err)
  }

  if err := as.reconcile.ReconcileSignup(ctx, token, user.ID); err != nil {
    return nil, err
  }
  return user, nil
}

func (as *authService) Login(ctx context.Context, token, usernameOrEmail, password string) (*types.User, error) {
  if usernameOrEmail == "" || password == "" {
    return nil, fmt.Errorf("%w: credentials are required", apperr.ErrValidation)
  }

  user, err := as.userRepo.GetByUsernameOrEmail(ctx, nil, usernameOrEmail)
  if err != nil {
    if errors.Is(err, apperr.ErrNotFound) {
      return nil, apperr.ErrNotFound
    }
    return nil, fmt.Errorf("Failed to look up user: %w", err)
  }
  if user.Password == nil || !utils.CheckPassword(*user.Password, password) {
    return nil, fmt.Errorf("%w: invalid password", apperr.ErrValidation)
  }

  if err := as.reconcile.ReconcileLogin(ctx, token, user.ID); err != nil {
    return nil, err
  }
  return user, nil
}

// FederatedSignIn resolves the provider identity to a user, creating the
// account on first contact. First contact takes the signup reconciliation path
// so the anonymous session's preferences and history carry over.
func (as *authService) FederatedSignIn(ctx context.Context, token, provider, providerID, username, email string) (*types.User, error) {
  if provider == "" || providerID == "" {
    return nil, fmt.Errorf("%w: provider identity is required", apperr.ErrValidation)
  }

  user, err := as.userRepo.GetByProviderIdentity(ctx, nil, provider, providerID)
  if err == nil {
    if err := as.reconcile.ReconcileLogin(ctx, token, user.ID); err != nil {
      return nil, err
    }
    return user, nil
  }
  if !errors.Is(err, apperr.ErrNotFound) {
    return nil, fmt.Errorf("Failed to look up federated user: %w", err)
  }

  now := time.Now()
  user = &types.User{
    Username:    username,
    Email:       email,
    Provider:    provider,
    ProviderID:  providerID,
    CreatedAt:   now,
    UpdatedAt:   now,
    LastLoginAt: now,
  }
  if _, err := as.userRepo.Create(ctx, nil, user); err != nil {
    return nil, fmt.Errorf("Failed to create federated user: %w", err)
  }

  if err := as.reconcile.ReconcileSignup(ctx, token, user.ID); err != nil {
    return nil, err
  }
  return user, nil
}

func (as *authService) Logout(ctx context.Context, token string) error {
  return as.sessionStore.Delete(ctx, token)
}

package types

import (
  "time"
)

// ProviderLocal is the provider name for accounts registered with a username and
// password. Federated accounts carry the OAuth provider name ("google", "github").
const ProviderLocal = "local"

type User struct {
  ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
  Username    string     `gorm:"uniqueIndex;not null;column:username" json:"username"`
  Password    *string    `gorm:"column:password" json:"-"`
  Email       string     `gorm:"uniqueIndex;not null;column:email" json:"email"`
  PfpKey      *string    `gorm:"uniqueIndex;column:pfp_key" json:"pfp_key"`
  Provider    string     `gorm:"not null;uniqueIndex:idx_users_provider_identity;column:provider" json:"provider"`
  ProviderID  string     `gorm:"not null;uniqueIndex:idx_users_provider_identity;column:provider_id" json:"provider_id"`
  CreatedAt   time.Time  `gorm:"not null;default:now()" json:"created_at"`
  UpdatedAt   time.Time  `gorm:"not null;default:now()" json:"updated_at"`
  LastLoginAt time.Time  `gorm:"not null;default:now()" json:"last_login_at"`
}

func (User) TableName() string {
  return "users"
}

// IsLocal reports whether the account authenticates with a stored credential hash
// rather than a federated identity.
func (u *User) IsLocal() bool {
  return u.Provider == ProviderLocal
}

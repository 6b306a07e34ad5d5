package types

import (
  "time"
)

type UserSearchHistory struct {
  ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
  UserID    int64     `gorm:"index;not null;column:user_id" json:"user_id"`
  Query     string    `gorm:"not null;column:query" json:"query"`
  QueriedAt time.Time `gorm:"not null;default:now();column:queried_at" json:"queried_at"`
}

func (UserSearchHistory) TableName() string {
  return "user_search_history"
}

package types

import (
  "time"
)

type Theme string

const (
  ThemeLight Theme = "light"
  ThemeDark  Theme = "dark"
  ThemeBeige Theme = "beige"
)

type SafeSearch string

const (
  SafeSearchOff      SafeSearch = "off"
  SafeSearchModerate SafeSearch = "moderate"
  SafeSearchStrict   SafeSearch = "strict"
)

type UserPreferences struct {
  ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
  UserID     int64      `gorm:"uniqueIndex;not null;column:user_id" json:"user_id"`
  Theme      Theme      `gorm:"not null;default:light;column:theme" json:"theme"`
  SafeSearch SafeSearch `gorm:"not null;default:moderate;column:safesearch" json:"safesearch"`
  UpdatedAt  time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserPreferences) TableName() string {
  return "user_preferences"
}

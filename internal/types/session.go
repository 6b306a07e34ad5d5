package types

import (
  "time"
)

// AnonymousUserID is the sentinel bound to a session before the visitor logs in.
const AnonymousUserID int64 = -1

// Session is the ephemeral per-visitor state held in Redis. Once UserID is a real
// user id the preference and history fields are advisory caches of Postgres, not
// authoritative.
type Session struct {
  Token              string     `json:"token"`
  UserID             int64      `json:"user_id"`
  LastIndexNamespace string     `json:"last_index_namespace"`
  SearchHistory      []string   `json:"logged_out_search_history"`
  Theme              Theme      `json:"logged_out_theme"`
  SafeSearch         SafeSearch `json:"logged_out_safesearch"`
  CreatedAt          time.Time  `json:"created_at"`
}

// Anonymous reports whether no authenticated user is bound to the session.
func (s *Session) Anonymous() bool {
  return s.UserID == AnonymousUserID
}

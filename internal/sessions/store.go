package sessions

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/apperr"
	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/types"
)

const (
	keyPrefix     = "session:"
	historySuffix = ":history"

	// RetentionWindow is how long a session survives past creation. Past it the
	// store reports the session as absent.
	RetentionWindow = 60 * 24 * time.Hour

	// maxHistoryLen bounds the anonymous history list so a long-lived anonymous
	// session cannot grow without limit. Oldest entries are dropped first.
	maxHistoryLen = 250
)

// Patch carries the fields of a session update. Nil fields are left untouched, so
// a caller can never unset a field by omission.
type Patch struct {
	UserID             *int64
	LastIndexNamespace *string
	Theme              *types.Theme
	SafeSearch         *types.SafeSearch
	ClearHistory       bool
}

type Store interface {
	Create(ctx context.Context) (string, error)
	Get(ctx context.Context, token string) (*types.Session, error)
	Update(ctx context.Context, token string, patch Patch) error
	AppendHistory(ctx context.Context, token, query string) error
	Delete(ctx context.Context, token string) error
}

type store struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewStore(log *logger.Logger, rdb *goredis.Client) (Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	return &store{log: log.With("service", "SessionStore"), rdb: rdb}, nil
}

func sessionKey(token string) string { return keyPrefix + token }

func historyKey(token string) string { return keyPrefix + token + historySuffix }

func (s *store) Create(ctx context.Context) (string, error) {
	token := uuid.NewString()
	key := sessionKey(token)
	now := time.Now().UTC()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"user_id":               strconv.FormatInt(types.AnonymousUserID, 10),
		"last_index_namespace":  "",
		"logged_out_theme":      string(types.ThemeLight),
		"logged_out_safesearch": string(types.SafeSearchModerate),
		"created_at":            now.Format(time.RFC3339),
	})
	pipe.Expire(ctx, key, RetentionWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("Failed to create session: %w", err)
	}

	return token, nil
}

func (s *store) Get(ctx context.Context, token string) (*types.Session, error) {
	key := sessionKey(token)

	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("Failed to read session %q: %w", token, err)
	}
	if len(fields) == 0 {
		return nil, apperr.ErrNotFound
	}

	history, err := s.rdb.LRange(ctx, historyKey(token), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("Failed to read session history %q: %w", token, err)
	}

	sess := &types.Session{
		Token:              token,
		UserID:             types.AnonymousUserID,
		LastIndexNamespace: fields["last_index_namespace"],
		SearchHistory:      history,
		Theme:              types.Theme(fields["logged_out_theme"]),
		SafeSearch:         types.SafeSearch(fields["logged_out_safesearch"]),
	}
	if raw, ok := fields["user_id"]; ok {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("Corrupt user_id on session %q: %w", token, err)
		}
		sess.UserID = id
	}
	if raw, ok := fields["created_at"]; ok {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("Corrupt created_at on session %q: %w", token, err)
		}
		sess.CreatedAt = at
	}

	return sess, nil
}

func (s *store) Update(ctx context.Context, token string, patch Patch) error {
	key := sessionKey(token)

	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("Failed to check session %q: %w", token, err)
	}
	if exists == 0 {
		return apperr.ErrNotFound
	}

	updates := map[string]any{}
	if patch.UserID != nil {
		updates["user_id"] = strconv.FormatInt(*patch.UserID, 10)
	}
	if patch.LastIndexNamespace != nil {
		updates["last_index_namespace"] = *patch.LastIndexNamespace
	}
	if patch.Theme != nil {
		updates["logged_out_theme"] = string(*patch.Theme)
	}
	if patch.SafeSearch != nil {
		updates["logged_out_safesearch"] = string(*patch.SafeSearch)
	}

	pipe := s.rdb.TxPipeline()
	if len(updates) > 0 {
		pipe.HSet(ctx, key, updates)
	}
	if patch.ClearHistory {
		pipe.Del(ctx, historyKey(token))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Failed to update session %q: %w", token, err)
	}
	return nil
}

// AppendHistory pushes one query onto the session's history list. RPUSH is atomic,
// so concurrent appends for the same token interleave instead of losing writes.
func (s *store) AppendHistory(ctx context.Context, token, query string) error {
	key := sessionKey(token)
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("Failed to check session %q: %w", token, err)
	}
	if exists == 0 {
		return apperr.ErrNotFound
	}

	// The history expiry follows the session hash so the list never outlives
	// its session.
	ttl, err := s.rdb.TTL(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("Failed to read session ttl %q: %w", token, err)
	}
	if ttl <= 0 {
		ttl = RetentionWindow
	}

	hkey := historyKey(token)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, hkey, query)
	pipe.LTrim(ctx, hkey, -maxHistoryLen, -1)
	pipe.Expire(ctx, hkey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Failed to append session history %q: %w", token, err)
	}
	return nil
}

// Delete removes the session and its history. Deleting an absent session is a
// no-op success.
func (s *store) Delete(ctx context.Context, token string) error {
	if err := s.rdb.Del(ctx, sessionKey(token), historyKey(token)).Err(); err != nil {
		return fmt.Errorf("Failed to delete session %q: %w", token, err)
	}
	return nil
}

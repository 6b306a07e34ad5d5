package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
	"github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/utils"
)

// New dials the shared Redis instance used for both the session store and the
// offload queue streams. The connection is owned by the caller and closed at
// process shutdown.
func New(log *logger.Logger) (*goredis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	host := utils.GetEnv("REDIS_HOST", "localhost", log)
	port := utils.GetEnv("REDIS_PORT", "6379", log)
	password := strings.TrimSpace(utils.GetEnv("REDIS_USER_PASS", "", log))

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        host + ":" + port,
		Username:    "default",
		Password:    password,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return rdb, nil
}

package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tonagent/server/internal/agent/model"
	errx "github.com/tonagent/server/internal/core/error"
	logx "github.com/tonagent/server/pkg/logger"
)

// RedisHistoryRepository keeps the per-session history in a capped Redis
// list so several agent instances can share one conversation. Same contract
// as the in-memory store; entries expire after the configured TTL.
type RedisHistoryRepository struct {
	rdb      redis.Cmdable
	ttl      time.Duration
	capacity int
}

func NewRedisHistoryRepository(rdb redis.Cmdable, ttl time.Duration, capacity int) *RedisHistoryRepository {
	if capacity <= 0 {
		capacity = 5
	}
	return &RedisHistoryRepository{rdb: rdb, ttl: ttl, capacity: capacity}
}

func (r *RedisHistoryRepository) historyKey(sessionKey string) string {
	return fmt.Sprintf("conversation:%s:history", sessionKey)
}

func (r *RedisHistoryRepository) Append(ctx context.Context, sessionKey string, entry model.HistoryEntry) error {
	b, err := json.Marshal(entry)
	if err != nil {
		logx.Error().Err(err).Str("session_key", sessionKey).Msg("failed to marshal history entry")
		return fmt.Errorf("marshal history entry: %w", err)
	}
	key := r.historyKey(sessionKey)

	// append, then cap to the newest entries
	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push history entry to redis")
		return errx.WrapRedis(err)
	}
	if err := r.rdb.LTrim(ctx, key, int64(-r.capacity), -1).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to trim history list")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on history key")
		}
	}
	return nil
}

func (r *RedisHistoryRepository) Recent(ctx context.Context, sessionKey string) ([]model.HistoryEntry, error) {
	key := r.historyKey(sessionKey)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return []model.HistoryEntry{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session history from redis")
		return nil, errx.WrapRedis(err)
	}

	entries := make([]model.HistoryEntry, 0, len(rows))
	for i, s := range rows {
		var e model.HistoryEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			logx.Error().Err(err).Str("session_key", sessionKey).Int("index", i).Msg("failed to unmarshal history entry")
			return nil, fmt.Errorf("unmarshal history entry at index %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *RedisHistoryRepository) Clear(ctx context.Context, sessionKey string) error {
	key := r.historyKey(sessionKey)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session history from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisHistoryRepository) Count(ctx context.Context, sessionKey string) (int, error) {
	key := r.historyKey(sessionKey)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get history count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.HistoryRepository = (*RedisHistoryRepository)(nil)

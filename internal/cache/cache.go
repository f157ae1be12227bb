package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/pribylovaa/go-steam-client/internal/models"
	"github.com/redis/go-redis/v9"
)

// SnapshotCache — минимальный контракт кэша снапшотов сессий.
// Кэш опционален: рядом с postgres-хранилищем он снимает нагрузку
// чтения при частых рестартах парка ботов.
type SnapshotCache interface {
	// Get возвращает снапшот и признак его наличия в кэше.
	Get(ctx context.Context, steamID int64) (*models.Snapshot, bool, error)
	// Set сохраняет снапшот с TTL (обычно до истечения refresh-токена).
	Set(ctx context.Context, steamID int64, snap *models.Snapshot, ttl time.Duration) error
	// Delete удаляет снапшот из кэша (logout).
	Delete(ctx context.Context, steamID int64) error
	// Close закрывает клиент Redis.
	Close() error
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "steam:session:".
func NewRedisCache(redisURL, prefix string) (SnapshotCache, error) {
	if prefix == "" {
		prefix = "steam:session:"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &redisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *redisCache) key(steamID int64) string {
	return c.prefix + strconv.FormatInt(steamID, 10)
}

func (c *redisCache) Get(ctx context.Context, steamID int64) (*models.Snapshot, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(steamID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, err
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, err
	}

	return &snap, true, nil
}

func (c *redisCache) Set(ctx context.Context, steamID int64, snap *models.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, c.key(steamID), data, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, steamID int64) error {
	return c.rdb.Del(ctx, c.key(steamID)).Err()
}

func (c *redisCache) Close() error { return c.rdb.Close() }

package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	// DefaultKeyPrefix is the prefix for all dedup keys in Redis.
	DefaultKeyPrefix = "attachsort:dedup:"
)

// RedisConfig holds the connection settings for RedisIndex.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL (e.g. "redis://localhost:6379/0").
	URL string

	// KeyPrefix is prepended to every key (default: DefaultKeyPrefix).
	KeyPrefix string

	// TTL expires recorded hashes after the given duration. Zero keeps them forever.
	TTL time.Duration
}

// RedisIndex is an Index persisted in Redis, so re-running the pipeline over
// the same mailbox is idempotent across processes.
type RedisIndex struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisIndex connects to Redis using cfg and verifies the connection.
func NewRedisIndex(ctx context.Context, cfg RedisConfig) (*RedisIndex, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisIndexFromClient(rdb, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisIndexFromClient wraps an existing client.
func NewRedisIndexFromClient(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *RedisIndex {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisIndex{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisIndex) key(mailbox, hash string) string {
	return r.prefix + mailbox + ":" + hash
}

// pendingKey holds the id of an uploaded file that still has to be filed
func (r *RedisIndex) pendingKey(mailbox, hash string) string {
	return r.key(mailbox, hash) + ":pending"
}

func (r *RedisIndex) Has(ctx context.Context, mailbox, hash string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(mailbox, hash)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check hash: %w", err)
	}
	return n > 0, nil
}

func (r *RedisIndex) Record(ctx context.Context, mailbox, hash string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.key(mailbox, hash), time.Now().Unix(), r.ttl)
		pipe.Del(ctx, r.pendingKey(mailbox, hash))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record hash: %w", err)
	}
	return nil
}

func (r *RedisIndex) Claim(ctx context.Context, mailbox, hash string) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.key(mailbox, hash), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim hash: %w", err)
	}
	return ok, nil
}

func (r *RedisIndex) Forget(ctx context.Context, mailbox, hash string) error {
	if err := r.rdb.Del(ctx, r.key(mailbox, hash), r.pendingKey(mailbox, hash)).Err(); err != nil {
		return fmt.Errorf("failed to forget hash: %w", err)
	}
	return nil
}

func (r *RedisIndex) SetPending(ctx context.Context, mailbox, hash, fileID string) error {
	if err := r.rdb.Set(ctx, r.pendingKey(mailbox, hash), fileID, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark file pending: %w", err)
	}
	return nil
}

// TakePending uses GETDEL so concurrent runs never resume the same file twice.
func (r *RedisIndex) TakePending(ctx context.Context, mailbox, hash string) (string, error) {
	fileID, err := r.rdb.GetDel(ctx, r.pendingKey(mailbox, hash)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to take pending file: %w", err)
	}
	return fileID, nil
}

// Ping checks that Redis is reachable. It backs the readiness probe.
func (r *RedisIndex) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying connection.
func (r *RedisIndex) Close() error {
	return r.rdb.Close()
}

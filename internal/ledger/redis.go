package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	attemptsKeyPrefix = "attempts:"
	lockoutKeyPrefix  = "lockout:"
)

// recordFailureScript increments the counter and refreshes its TTL in one step
var recordFailureScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[1])
return count
`)

// startLockoutScript stores an expiry (unix ms) unless a later one is already
// stored, and returns whichever expiry is in effect
var startLockoutScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) > tonumber(ARGV[1]) then
	return current
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return ARGV[2]
`)

// RedisLedger stores counters and windows as Redis keys with native TTLs.
// Lockout windows hold their expiry as unix milliseconds.
type RedisLedger struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisLedger wraps a connected client; prefix namespaces every key
func NewRedisLedger(client redis.UniversalClient, prefix string) *RedisLedger {
	return &RedisLedger{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// NewRedisClient parses a redis:// URL and applies pool settings
func NewRedisClient(url, password string, db, poolSize int) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Only set password if not already in URL
	if opts.Password == "" && password != "" {
		opts.Password = password
	}
	if db != 0 {
		opts.DB = db
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	return redis.NewClient(opts), nil
}

func (l *RedisLedger) attemptsKey(username string) string {
	return l.prefix + attemptsKeyPrefix + username
}

func (l *RedisLedger) lockoutKey(username string) string {
	return l.prefix + lockoutKeyPrefix + username
}

// FailureCount returns the live failure count, 0 when the key is gone
func (l *RedisLedger) FailureCount(ctx context.Context, username string) (int, error) {
	count, err := l.client.Get(ctx, l.attemptsKey(username)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return count, nil
}

// RecordFailure atomically increments and sets the TTL to window
func (l *RedisLedger) RecordFailure(ctx context.Context, username string, window time.Duration) (int, error) {
	count, err := recordFailureScript.Run(ctx, l.client,
		[]string{l.attemptsKey(username)},
		window.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return int(count), nil
}

// ClearFailures deletes the counter key
func (l *RedisLedger) ClearFailures(ctx context.Context, username string) error {
	if err := l.client.Del(ctx, l.attemptsKey(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

// LockoutExpiry returns the stored expiry if it is still in the future
func (l *RedisLedger) LockoutExpiry(ctx context.Context, username string) (*time.Time, error) {
	raw, err := l.client.Get(ctx, l.lockoutKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// A corrupt value must not lock anyone out
		return nil, fmt.Errorf("%w: malformed lockout value %q", models.ErrStorageUnavailable, raw)
	}

	expiry := time.UnixMilli(millis)
	if !expiry.After(l.now()) {
		return nil, nil
	}
	return &expiry, nil
}

// StartLockout sets the window unless an unexpired one exists, in one script call
func (l *RedisLedger) StartLockout(ctx context.Context, username string, duration time.Duration) (time.Time, error) {
	now := l.now()
	expiry := now.Add(duration)

	millis, err := startLockoutScript.Run(ctx, l.client,
		[]string{l.lockoutKey(username)},
		now.UnixMilli(),
		expiry.UnixMilli(),
		duration.Milliseconds(),
	).Int64()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return time.UnixMilli(millis), nil
}

// Ping checks connectivity
func (l *RedisLedger) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	return nil
}

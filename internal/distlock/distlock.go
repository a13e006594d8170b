// Package distlock provides a Redis-backed distributed lock, used by both
// the Hot-Reload Coordinator's ReloadScheduler and the self-upgrade state
// machine to serialize an operation across daemon instances sharing the
// same Redis — adapted from the teacher's
// internal/infrastructure/lock.DistributedLock.
package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release/Extend when the lock was never
// acquired or has already expired/been released.
var ErrNotHeld = errors.New("distlock: lock not held")

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end`

// Lock is a held (or attempted) distributed lock on one key.
type Lock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
	logger *slog.Logger
	held   bool
}

// Manager acquires Locks against a shared Redis client.
type Manager struct {
	client *redis.Client
	logger *slog.Logger
}

// Config configures lock acquisition retry behavior.
type Config struct {
	TTL            time.Duration
	MaxRetries     int
	RetryInterval  time.Duration
	AcquireTimeout time.Duration
}

// DefaultConfig matches the teacher's DistributedLock defaults.
func DefaultConfig() Config {
	return Config{
		TTL:            30 * time.Second,
		MaxRetries:     3,
		RetryInterval:  100 * time.Millisecond,
		AcquireTimeout: 5 * time.Second,
	}
}

// NewManager returns a Manager backed by client.
func NewManager(client *redis.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{client: client, logger: logger}
}

// Acquire attempts to take key, retrying cfg.MaxRetries times with
// cfg.RetryInterval between attempts. Returns (nil, nil) if the lock is
// held by someone else after all retries are exhausted — callers decide
// whether that's an error.
func (m *Manager) Acquire(ctx context.Context, key string, cfg Config) (*Lock, error) {
	if cfg.TTL <= 0 {
		cfg = DefaultConfig()
	}

	value, err := randomValue()
	if err != nil {
		return nil, fmt.Errorf("distlock: generate lock value: %w", err)
	}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		acquireCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
		ok, err := m.client.SetNX(acquireCtx, key, value, cfg.TTL).Result()
		cancel()
		if err != nil {
			if attempt == cfg.MaxRetries {
				return nil, fmt.Errorf("distlock: acquire %q after %d attempts: %w", key, attempt+1, err)
			}
			time.Sleep(cfg.RetryInterval)
			continue
		}
		if ok {
			m.logger.Debug("distlock: acquired", "key", key)
			return &Lock{client: m.client, key: key, value: value, ttl: cfg.TTL, logger: m.logger, held: true}, nil
		}
		if attempt == cfg.MaxRetries {
			return nil, nil
		}
		time.Sleep(cfg.RetryInterval)
	}
	return nil, nil
}

// Release drops the lock if still held by this value.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return ErrNotHeld
	}
	res, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("distlock: release %q: %w", l.key, err)
	}
	l.held = false
	if n, _ := res.(int64); n != 1 {
		l.logger.Warn("distlock: release found lock already expired or stolen", "key", l.key)
	}
	return nil
}

// Extend refreshes the TTL, failing if the lock has since expired or been
// taken by another holder.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.held {
		return ErrNotHeld
	}
	res, err := l.client.Eval(ctx, extendScript, []string{l.key}, l.value, int(ttl.Seconds())).Result()
	if err != nil {
		return fmt.Errorf("distlock: extend %q: %w", l.key, err)
	}
	if n, _ := res.(int64); n != 1 {
		l.held = false
		return ErrNotHeld
	}
	l.ttl = ttl
	return nil
}

func randomValue() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

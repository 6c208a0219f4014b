// Package distlock serializes cross-process critical sections, shift
// opening above all, over whichever backend the deployment has. Redis is
// preferred; without it PostgreSQL advisory locks on the shared database
// give the same guarantee for as long as the session lives.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a single-use distributed lock. A Lock value belongs to one
// goroutine; two goroutines wanting the same key each create their own.
type Lock interface {
	// Acquire attempts the lock without blocking and reports whether it
	// was taken.
	Acquire(ctx context.Context) (bool, error)
	// Release frees the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// NewLock picks the backend: Redis when a client is configured, otherwise
// PostgreSQL advisory locking. ttl only applies to the Redis backend;
// advisory locks die with their database session instead.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewAdvisoryLock(db, key)
}

// AdvisoryLock implements Lock on pg_try_advisory_lock. Advisory locks are
// session scoped, so a crashed holder loses the lock as soon as its
// connection dies, much like a Redis TTL running out.
type AdvisoryLock struct {
	db  *sql.DB
	key int64
}

// NewAdvisoryLock derives a stable 64-bit advisory key from the string key.
func NewAdvisoryLock(db *sql.DB, key string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &AdvisoryLock{db: db, key: int64(h.Sum64())}
}

// Acquire is non-blocking: pg_try_advisory_lock answers straight away.
func (l *AdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var ok bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok)
	return ok, err
}

// Release frees the advisory lock for this session.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.key)
	return err
}

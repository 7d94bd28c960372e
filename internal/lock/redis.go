package lock

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if it still carries our token, so an
// expired holder never frees a lock someone else took over.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// renewScript extends the lease only while it still carries our token.
var renewScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('PEXPIRE', KEYS[1], ARGV[2])
    end
    return 0
`)

// ErrLeaseLost is the cancellation cause seen by a holder whose lease
// expired or was taken over while it was still working.
var ErrLeaseLost = errors.New("lock lease lost")

// RedisLocker takes a lease with SET NX PX and a random token and renews
// it every third of the ttl while fn runs.  The local locker in front of it
// keeps goroutines of one instance from polling Redis against each other.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	local  *LocalLocker
}

// NewRedisLocker builds a RedisLocker.  ttl bounds how long a crashed holder
// can block a key; a live holder keeps renewing it.
func NewRedisLocker(rdb *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, ttl: ttl, retry: 25 * time.Millisecond, local: NewLocalLocker()}
}

// New returns a RedisLocker when rdb is set and a LocalLocker otherwise.
func New(rdb *redis.Client, prefix string, ttl time.Duration) Locker {
	if rdb == nil {
		return NewLocalLocker()
	}
	return NewRedisLocker(rdb, prefix, ttl)
}

// WithLock polls for the lease until ctx is done, runs fn, then releases.
// If the lease cannot be renewed, the context passed to fn is cancelled
// with ErrLeaseLost.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return l.local.WithLock(ctx, key, func(ctx context.Context) error {
		full := l.prefix + ":" + key
		token := uuid.NewString()
		for {
			ok, err := l.rdb.SetNX(ctx, full, token, l.ttl).Result()
			if err != nil {
				return err
			}
			if ok {
				break
			}
			t := time.NewTimer(l.retry)
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(ErrNotAcquired, ctx.Err())
			case <-t.C:
			}
		}
		defer func() {
			// release even if the request context is already cancelled
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil {
				log.Printf("lock: release %s failed: %v", full, err)
			}
		}()
		fctx, cancel := context.WithCancelCause(ctx)
		defer cancel(nil)
		go keepAlive(fctx, l.ttl/3, func(ctx context.Context) (bool, error) {
			n, err := renewScript.Run(ctx, l.rdb, []string{full}, token, l.ttl.Milliseconds()).Int()
			return n == 1, err
		}, cancel)
		return fn(fctx)
	})
}

// keepAlive calls extend every interval until ctx is done.  Redis errors
// are retried on the next tick; a lease that is no longer ours stops the
// loop and cancels the holder through lost.
func keepAlive(ctx context.Context, every time.Duration, extend func(context.Context) (bool, error), lost context.CancelCauseFunc) {
	if every <= 0 {
		every = time.Millisecond
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		ok, err := extend(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Printf("lock: renew failed: %v", err)
		case err == nil && !ok:
			log.Printf("lock: lease lost before release")
			lost(ErrLeaseLost)
			return
		}
	}
}

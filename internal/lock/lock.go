package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"consultorio/internal/model"
)

var ErrLockNotAcquired = errors.New("day lock not acquired")

// Locker serializes booking admissions per practitioner-day. Two
// concurrent requests for the same practitioner and date never run
// their check-then-append section at the same time.
type Locker interface {
	WithDayLock(ctx context.Context, practitioner model.PractitionerID, date string, fn func(ctx context.Context) error) error
}

func dayKey(practitioner model.PractitionerID, date string) string {
	return fmt.Sprintf("lock:day:%s:%s", practitioner, date)
}

// mutexLocker guards each practitioner-day with an in-process mutex.
// Sufficient for a single instance; use the Redis locker when several
// instances share one database. Entries are refcounted and dropped once
// the last holder releases, so the map does not grow with every day
// ever booked.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[string]*dayLock
}

type dayLock struct {
	mu   sync.Mutex
	refs int
}

// NewMutexLocker creates an in-process per-day locker.
func NewMutexLocker() Locker {
	return &mutexLocker{locks: make(map[string]*dayLock)}
}

func (l *mutexLocker) acquire(key string) *dayLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.locks[key]
	if !ok {
		d = &dayLock{}
		l.locks[key] = d
	}
	d.refs++
	return d
}

func (l *mutexLocker) release(key string, d *dayLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d.refs--
	if d.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *mutexLocker) WithDayLock(ctx context.Context, practitioner model.PractitionerID, date string, fn func(ctx context.Context) error) error {
	key := dayKey(practitioner, date)

	d := l.acquire(key)
	defer l.release(key, d)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDayLocker creates a locker backed by a per-day Redis key, for
// deployments where more than one instance admits bookings.
func NewRedisDayLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisDayLocker{client: client, ttl: ttl}
}

func (l *redisDayLocker) WithDayLock(ctx context.Context, practitioner model.PractitionerID, date string, fn func(ctx context.Context) error) error {
	key := dayKey(practitioner, date)
	token := uuid.NewString()

	// Retry acquisition briefly; the holder finishes within the TTL.
	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire day lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

// Only the holder may delete the key; a compare-and-delete script keeps
// an expired holder from releasing its successor's lock.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release day lock: %w", err)
	}
	return nil
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

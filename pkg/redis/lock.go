package redis

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when another holder owns the lock
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock that expired or changed owner
	ErrLockNotHeld = errors.New("lock not held")
)

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// LockStore is the subset of the Redis client the locker needs.
type LockStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Lock is a held lock.
type Lock struct {
	store  LockStore
	logger ectologger.Logger
	key    string
	value  string
	ttl    time.Duration
}

// Locker acquires single-holder locks with SET NX.
type Locker struct {
	store     LockStore
	keyPrefix string
	logger    ectologger.Logger
}

func NewLocker(store LockStore, keyPrefix string, logger ectologger.Logger) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		store:     store,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

// Acquire takes the lock once. There is no retry; a held lock returns ErrLockNotAcquired.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.store.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	l.logger.WithContext(ctx).WithField("ttl", ttl.String()).Infof("Acquired lock: %s", lockKey)

	return &Lock{
		store:  l.store,
		logger: l.logger,
		key:    lockKey,
		value:  lockValue,
		ttl:    ttl,
	}, nil
}

func (lock *Lock) Key() string {
	return lock.key
}

// Release deletes the lock only if this holder still owns it.
func (lock *Lock) Release(ctx context.Context) error {
	result, err := lock.store.Eval(ctx, releaseScript, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}

	lock.logger.WithContext(ctx).Infof("Released lock: %s", lock.key)
	return nil
}

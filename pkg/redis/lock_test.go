package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/qtlcandidateload/pkg/logging"
)

// memoryStore mimics SET NX and the compare-and-delete script.
type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if m.err != nil {
		return redis.NewBoolResult(false, m.err)
	}
	if _, ok := m.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = value.(string)
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *memoryStore) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	if m.err != nil {
		return redis.NewCmdResult(nil, m.err)
	}
	if m.values[keys[0]] == args[0].(string) {
		delete(m.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestLocker_SingleHolder(t *testing.T) {
	store := newMemoryStore()
	locker := NewLocker(store, "", logging.Discard())
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "qtlcandidateload", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "lock:qtlcandidateload", lock.Key())
	assert.Equal(t, time.Hour, store.ttls["lock:qtlcandidateload"])

	_, err = locker.Acquire(ctx, "qtlcandidateload", time.Hour)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)

	again, err := locker.Acquire(ctx, "qtlcandidateload", time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, lock.value, again.value)
}

func TestLocker_ReleaseAfterTakeover(t *testing.T) {
	store := newMemoryStore()
	locker := NewLocker(store, "jobs:", logging.Discard())
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "load", time.Minute)
	require.NoError(t, err)

	// expired and taken by another run
	store.values["jobs:load"] = "someone-else"
	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
	assert.Equal(t, "someone-else", store.values["jobs:load"])
}

func TestLocker_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("connection refused")

	_, err := NewLocker(store, "", logging.Discard()).Acquire(context.Background(), "load", time.Minute)
	assert.ErrorIs(t, err, store.err)
}

func TestConfig_Addr(t *testing.T) {
	assert.Equal(t, "redis:6379", Config{Host: "redis", Port: 6379}.Addr())
}

package lock

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLeaseStoreWithoutRedis(t *testing.T) {
	var s *leaseStore
	_, granted, err := s.claim(context.Background(), EventKey("evt_1"), time.Second)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, granted)

	res, err := s.release(context.Background(), EventKey("evt_1"), "owner")
	assert.NoError(t, err)
	assert.Equal(t, leaseExpired, res)
	assert.Nil(t, newLeaseStore(nil))
}

func TestLeaseStoreRejectsBadArguments(t *testing.T) {
	s := &leaseStore{rdb: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})}
	_, _, err := s.claim(context.Background(), " ", time.Second)
	assert.ErrorIs(t, err, ErrBlankEventID)
	_, _, err = s.claim(context.Background(), EventKey("evt_1"), 0)
	assert.ErrorIs(t, err, ErrLeaseTTL)
}

func TestNilEventLockerGrants(t *testing.T) {
	e := NewEventLocker(nil, time.Second, zap.NewNop())
	require.Nil(t, e)

	release, ok, err := e.Acquire(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)
	release(context.Background())
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "webhook:event:evt_123", EventKey(" evt_123 "))
}

func TestAcquireRejectsBlankEventID(t *testing.T) {
	e := NewEventLocker(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), 0, zap.NewNop())
	require.NotNil(t, e)
	assert.Equal(t, 30*time.Second, e.ttl)

	_, ok, err := e.Acquire(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrBlankEventID)
	assert.False(t, ok)
}

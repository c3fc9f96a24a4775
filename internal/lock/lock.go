package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// dropOwnedLease deletes the lease only while the caller still owns it.
// It answers 1 when dropped, 0 when the lease already expired and -1 when a
// different worker holds it now.
const dropOwnedLease = `
local owner = redis.call("GET", KEYS[1])
if not owner then
  return 0
end
if owner ~= ARGV[1] then
  return -1
end
return redis.call("DEL", KEYS[1])
`

var (
	ErrStoreUnavailable = errors.New("event lease store not configured")
	ErrBlankEventID     = errors.New("event id is blank")
	ErrLeaseTTL         = errors.New("event lease ttl must be positive")
)

type dropResult int64

const (
	leaseStolen  dropResult = -1
	leaseExpired dropResult = 0
	leaseDropped dropResult = 1
)

// leaseStore keeps one redis key per in-flight webhook event. The key value
// is a per-attempt owner token.
type leaseStore struct {
	rdb  redis.Cmdable
	drop *redis.Script
}

func newLeaseStore(rdb redis.Cmdable) *leaseStore {
	if rdb == nil {
		return nil
	}
	return &leaseStore{rdb: rdb, drop: redis.NewScript(dropOwnedLease)}
}

// claim takes the lease for key when nobody holds it.
func (s *leaseStore) claim(ctx context.Context, key string, ttl time.Duration) (owner string, granted bool, err error) {
	switch {
	case s == nil || s.rdb == nil:
		return "", false, ErrStoreUnavailable
	case strings.TrimSpace(key) == "":
		return "", false, ErrBlankEventID
	case ttl <= 0:
		return "", false, ErrLeaseTTL
	}

	owner = uuid.NewString()
	granted, err = s.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !granted {
		return "", false, nil
	}
	return owner, true, nil
}

// release gives the lease back. A lease that expired or moved to another
// worker is left alone.
func (s *leaseStore) release(ctx context.Context, key, owner string) (dropResult, error) {
	if s == nil || s.rdb == nil || key == "" || owner == "" {
		return leaseExpired, nil
	}
	n, err := s.drop.Run(ctx, s.rdb, []string{key}, owner).Int64()
	if err != nil {
		return leaseExpired, err
	}
	return dropResult(n), nil
}

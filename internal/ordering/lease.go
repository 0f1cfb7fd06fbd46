// Package ordering serialises the "read max order, insert at max+1" step of
// an upload per user.  Two uploads by the same user take turns; uploads by
// different users never wait on each other.
package ordering

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLeaseTimeout is returned when the context ends before the lease is free.
var ErrLeaseTimeout = errors.New("ordering: timed out waiting for upload lease")

// Lease grants exclusive access to a user's order sequence.  The returned
// release func must be called exactly once.
type Lease interface {
	Acquire(ctx context.Context, userID string) (release func(), err error)
}

const retryEvery = 25 * time.Millisecond

// releaseScript deletes the key only if it still carries our token, so a
// holder whose lease expired cannot free somebody else's.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// RedisLease is a lease shared by every API instance using the same Redis.
// TTL bounds how long a crashed holder can block the user.  When Redis
// cannot be reached the lease falls back to an in-process LocalLease, so
// uploads keep working and stay serialised within this instance.
type RedisLease struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	local  *LocalLease
}

func NewRedisLease(rdb *redis.Client, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLease{rdb: rdb, ttl: ttl, prefix: "lease:upload:", local: NewLocalLease()}
}

func (l *RedisLease) Acquire(ctx context.Context, userID string) (func(), error) {
	key := l.prefix + userID
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ticker := time.NewTicker(retryEvery)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return l.local.Acquire(ctx, userID)
		}
		if ok {
			return func() {
				// Detached from ctx: the request may already be cancelled.
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.rdb, []string{key}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ErrLeaseTimeout
		case <-ticker.C:
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// LocalLease is an in-process keyed mutex.  It only serialises uploads
// handled by this process and is used when Redis is unavailable.
type LocalLease struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocalLease() *LocalLease {
	return &LocalLease{slots: make(map[string]*slot)}
}

func (l *LocalLease) Acquire(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[userID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[userID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(userID, s)
		return nil, ErrLeaseTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(userID, s)
		})
	}, nil
}

// unref drops the slot once nobody holds or waits for it.
func (l *LocalLease) unref(userID string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, userID)
	}
}

// New picks the Redis lease when a client is available.
func New(rdb *redis.Client, ttl time.Duration) Lease {
	if rdb == nil {
		return NewLocalLease()
	}
	return NewRedisLease(rdb, ttl)
}

package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/bower/pkg/ports"
)

// ErrLockAcquire is returned when the lock cannot be acquired.
var ErrLockAcquire = errors.New("failed to acquire distributed lock")

// unlockScript deletes the lock key only if it still holds our token, so a
// holder whose lock already expired cannot delete a lock someone else now owns.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker implements ports.DistributedLocker using Redis SET NX PX.
type Locker struct {
	client *backend.Client
	prefix string
	// retry is the polling interval while the lock is held elsewhere.
	retry time.Duration
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{
		client: client,
		prefix: prefix,
		retry:  100 * time.Millisecond,
	}
}

// Lock acquires a distributed lock for the given key. It tries once
// immediately and then polls until the lock is acquired or ctx is done.
// The returned UnlockFunc releases the lock with a token-checked delete.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	if unlock, ok, err := l.tryAcquire(ctx, lockKey, token, ttl); err != nil || ok {
		return unlock, err
	}

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			unlock, ok, err := l.tryAcquire(ctx, lockKey, token, ttl)
			if err != nil {
				return nil, err
			}
			if ok {
				return unlock, nil
			}
		}
	}
}

func (l *Locker) tryAcquire(ctx context.Context, lockKey, token string, ttl time.Duration) (ports.UnlockFunc, bool, error) {
	success, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Join(ErrLockAcquire, err)
	}
	if !success {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		// A zero result means the lock already expired and possibly
		// changed hands. Nothing left for us to release.
		return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
	}
	return unlock, true, nil
}

package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tdeu/truthmarket/internal/domain"
)

const lockPrefix = "truthmarket:lock:"

// unlockScript deletes the lock only when the caller still owns it, so an
// expired-and-reacquired lock is never released by the previous holder.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// LockManager implements domain.LockManager with SET NX and a token-checked
// Lua unlock. Locks self-expire at the TTL, so a crashed holder never wedges
// a market permanently.
type LockManager struct {
	client *Client
	logger *slog.Logger
}

// NewLockManager creates a LockManager on the shared client.
func NewLockManager(client *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		client: client,
		logger: logger.With(slog.String("component", "lock_manager")),
	}
}

// Acquire takes the named lock for at most ttl. It returns ErrLockHeld when
// another holder owns the lock, and an unlock function otherwise.
func (l *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	full := lockPrefix + key

	ok, err := l.client.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	unlock := func() {
		// Release on a fresh context so cancellation of the work does not
		// leave the lock to expire on its own.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, l.client.rdb, []string{full}, token).Err(); err != nil {
			l.logger.Warn("lock release failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockManager)(nil)

package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/logger"
)

var _ domain.UserLocker = (*RedisLocker)(nil)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisLocker is a token lock shared by every engine process pointed at the
// same redis. The TTL bounds how long a crashed holder blocks a user.
type RedisLocker struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, log: log.With("component", "redis_locker")}
}

func lockKey(userID string) string {
	return fmt.Sprintf("settle_lock:%s", userID)
}

func (l *RedisLocker) Acquire(ctx context.Context, userID string) (func(), error) {
	key := lockKey(userID)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, domain.NewStorageError("acquire user lock", err)
	}
	if !ok {
		return nil, domain.ErrLockHeld.WithKey(userID)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.rdb, []string{key}, token).Err(); err != nil {
				l.log.Warn("failed to release user lock", "user_id", userID, "error", err)
			}
		})
	}, nil
}

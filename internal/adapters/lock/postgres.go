package lock

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/logger"
)

var _ domain.UserLocker = (*PostgresLocker)(nil)

const advisoryNamespace = "settle_user"

// PostgresLocker holds a session-level advisory lock on a dedicated
// connection for as long as the caller keeps the lock.
type PostgresLocker struct {
	db  *sqlx.DB
	log *logger.Logger
}

func NewPostgresLocker(db *sqlx.DB, log *logger.Logger) *PostgresLocker {
	if log == nil {
		log = logger.Nop()
	}
	return &PostgresLocker{db: db, log: log.With("component", "pg_locker")}
}

func advisoryKey64(namespace, id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(namespace))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}

func (l *PostgresLocker) Acquire(ctx context.Context, userID string) (func(), error) {
	key := advisoryKey64(advisoryNamespace, userID)

	conn, err := l.db.Connx(ctx)
	if err != nil {
		return nil, domain.NewStorageError("acquire user lock", err)
	}

	var locked bool
	if err := conn.GetContext(ctx, &locked, "SELECT pg_try_advisory_lock($1)", key); err != nil {
		_ = conn.Close()
		return nil, domain.NewStorageError("acquire user lock", err)
	}
	if !locked {
		_ = conn.Close()
		return nil, domain.ErrLockHeld.WithKey(userID)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.ExecContext(releaseCtx, "SELECT pg_advisory_unlock($1)", key); err != nil {
				l.log.Warn("failed to release advisory lock", "user_id", userID, "error", err)
			}
			_ = conn.Close()
		})
	}, nil
}

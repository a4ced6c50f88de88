// Package lock provides the single-writer-per-user lock used by report
// settlement. Implementations never block: a held lock is reported as
// domain.ErrLockHeld so the caller can treat it as a benign conflict.
package lock

import (
	"context"
	"sync"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

var _ domain.UserLocker = (*MemoryLocker)(nil)

// MemoryLocker serializes users within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]struct{})}
}

func (l *MemoryLocker) Acquire(ctx context.Context, userID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[userID]; ok {
		return nil, domain.ErrLockHeld.WithKey(userID)
	}
	l.held[userID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, userID)
			l.mu.Unlock()
		})
	}, nil
}

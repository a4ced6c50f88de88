package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("Second acquire for the same user conflicts", func(t *testing.T) {
		l := NewMemoryLocker()
		release, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)

		_, err = l.Acquire(ctx, "u1")
		assert.ErrorIs(t, err, domain.ErrLockHeld)
		assert.ErrorIs(t, err, domain.ErrConflict)

		release()
		release2, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)
		release2()
	})

	t.Run("Different users do not contend", func(t *testing.T) {
		l := NewMemoryLocker()
		r1, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)
		r2, err := l.Acquire(ctx, "u2")
		require.NoError(t, err)
		r1()
		r2()
	})

	t.Run("Release is idempotent", func(t *testing.T) {
		l := NewMemoryLocker()
		release, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)
		release()

		other, err := l.Acquire(ctx, "u1")
		require.NoError(t, err)
		release()

		_, err = l.Acquire(ctx, "u1")
		assert.ErrorIs(t, err, domain.ErrLockHeld, "a stale release must not free someone else's lock")
		other()
	})

	t.Run("Cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewMemoryLocker().Acquire(cctx, "u1")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Exactly one concurrent winner", func(t *testing.T) {
		l := NewMemoryLocker()
		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := l.Acquire(ctx, "u1"); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})
}

func TestAdvisoryKey64(t *testing.T) {
	a := advisoryKey64(advisoryNamespace, "u1")
	assert.Equal(t, a, advisoryKey64(advisoryNamespace, "u1"))
	assert.NotEqual(t, a, advisoryKey64(advisoryNamespace, "u2"))
	assert.NotEqual(t, a, advisoryKey64("other", "u1"))
}

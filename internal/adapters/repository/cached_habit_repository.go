package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/logger"
)

var _ domain.TrackedHabitRepository = (*CachedTrackedHabitRepository)(nil)

const habitCacheTTL = 30 * time.Minute

// CachedTrackedHabitRepository serves per-user habit lists from redis.
// Single-habit reads always go to the underlying store since settlement
// needs the locked row.
type CachedTrackedHabitRepository struct {
	next  domain.TrackedHabitRepository
	cache *redis.Client
	log   *logger.Logger
}

func NewCachedTrackedHabitRepository(next domain.TrackedHabitRepository, cache *redis.Client, log *logger.Logger) *CachedTrackedHabitRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedTrackedHabitRepository{
		next:  next,
		cache: cache,
		log:   log.With("component", "habit_cache"),
	}
}

func habitCacheKey(userID string) string {
	return fmt.Sprintf("habits:%s", userID)
}

// Invalidate drops the cached list for a user. Failures are logged, never returned.
func (r *CachedTrackedHabitRepository) Invalidate(ctx context.Context, userID string) {
	if err := r.cache.Del(ctx, habitCacheKey(userID)).Err(); err != nil {
		r.log.Warn("failed to invalidate habit cache", "user_id", userID, "error", err)
	}
}

func (r *CachedTrackedHabitRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.TrackedHabit, error) {
	key := habitCacheKey(userID)

	val, err := r.cache.Get(ctx, key).Bytes()
	if err == nil {
		var habits []*domain.TrackedHabit
		if err := json.Unmarshal(val, &habits); err == nil {
			return habits, nil
		}

		r.log.Warn("corrupted habit cache entry, cleaning up key", "user_id", userID)
		r.cache.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		r.log.Warn("redis read error", "error", err)
	}

	habits, err := r.next.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(habits); err == nil {
		if setErr := r.cache.Set(ctx, key, data, habitCacheTTL).Err(); setErr != nil {
			r.log.Warn("redis set error", "error", setErr)
		}
	}

	return habits, nil
}

func (r *CachedTrackedHabitRepository) GetTrackedHabit(ctx context.Context, userID, habitKey string) (*domain.TrackedHabit, error) {
	return r.next.GetTrackedHabit(ctx, userID, habitKey)
}

func (r *CachedTrackedHabitRepository) GetByID(ctx context.Context, id string) (*domain.TrackedHabit, error) {
	return r.next.GetByID(ctx, id)
}

func (r *CachedTrackedHabitRepository) UpdateSettlement(ctx context.Context, h *domain.TrackedHabit) error {
	if err := r.next.UpdateSettlement(ctx, h); err != nil {
		return err
	}
	r.Invalidate(ctx, h.UserID)
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

var _ domain.ConfigProvider = (*PostgresConfigRepository)(nil)

// PostgresConfigRepository reads operator-tuned coefficients from the database
// on every call. Stored values overlay the defaults.
type PostgresConfigRepository struct {
	db *sqlx.DB
}

func NewPostgresConfigRepository(db *sqlx.DB) *PostgresConfigRepository {
	return &PostgresConfigRepository{db: db}
}

func (r *PostgresConfigRepository) GetCoefficients(ctx context.Context) (domain.Coefficients, error) {
	var payload []byte
	err := r.db.GetContext(ctx, &payload, `SELECT payload FROM engine_coefficients WHERE id = 1`)
	if err != nil {
		return domain.Coefficients{}, mapError("get coefficients", err, domain.ErrCoefficientsNotFound)
	}

	c := domain.DefaultCoefficients()
	if err := json.Unmarshal(payload, &c); err != nil {
		return domain.Coefficients{}, fmt.Errorf("%w: %v", domain.ErrInvalidCoefficients, err)
	}
	if err := c.Validate(); err != nil {
		return domain.Coefficients{}, err
	}
	return c, nil
}

func (r *PostgresConfigRepository) GetThresholds(ctx context.Context) (domain.ThresholdSet, error) {
	rows := []struct {
		HabitKey string `db:"habit_key"`
		domain.HabitThresholds
	}{}
	if err := r.db.SelectContext(ctx, &rows, `SELECT habit_key, policy, target, danger FROM habit_thresholds`); err != nil {
		return nil, mapError("get thresholds", err, nil)
	}

	set := domain.DefaultThresholds()
	for _, row := range rows {
		set[domain.NormalizeHabitKey(row.HabitKey)] = row.HabitThresholds
	}
	return set, nil
}

func (r *PostgresConfigRepository) SaveCoefficients(ctx context.Context, c domain.Coefficients) error {
	if err := c.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal coefficients: %w", err)
	}

	query := `
		INSERT INTO engine_coefficients (id, payload, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

	_, err = r.db.ExecContext(ctx, query, string(payload), time.Now().UTC())
	return mapError("save coefficients", err, nil)
}

func (r *PostgresConfigRepository) SaveThreshold(ctx context.Context, habitKey string, th domain.HabitThresholds) error {
	key := domain.NormalizeHabitKey(habitKey)
	if key == "" {
		return domain.ErrHabitKeyEmpty
	}
	if th.Policy != "" && !th.Policy.Valid() {
		return fmt.Errorf("unknown policy %q", th.Policy)
	}

	query := `
		INSERT INTO habit_thresholds (habit_key, policy, target, danger)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (habit_key) DO UPDATE
		SET policy = EXCLUDED.policy, target = EXCLUDED.target, danger = EXCLUDED.danger`

	_, err := r.db.ExecContext(ctx, query, key, string(th.Policy), th.Target, th.Danger)
	return mapError("save threshold", err, nil)
}

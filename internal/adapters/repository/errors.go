package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

// mapError translates driver errors into the domain taxonomy. Both the pgx
// and lib/pq drivers are understood since either can back the sqlx handle.
func mapError(op string, err error, notFound *domain.NotFoundError) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		if notFound != nil {
			return notFound
		}
		return &domain.NotFoundError{Entity: op}
	}

	code, constraint := pgCode(err)
	switch code {
	case uniqueViolationCode:
		return domain.ErrAlreadySettled.WithKey(constraint)
	case foreignKeyViolationCode:
		return &domain.NotFoundError{Entity: "referenced row", ID: constraint}
	}

	return domain.NewStorageError(op, err)
}

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint
	}
	return "", ""
}

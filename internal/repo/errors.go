package repo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки репозиториев.
var (
	// ErrNotLeader — advisory lock занят другим процессом.
	ErrNotLeader = errors.New("leadership is held by another process")
)

// uniqueViolation — код ошибки PostgreSQL при нарушении уникальности.
const uniqueViolation = "23505"

// constraintName возвращает имя нарушенного ограничения уникальности.
func constraintName(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName != "" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

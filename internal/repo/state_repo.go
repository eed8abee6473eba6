package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/ServiceGrid/internal/store"
)

// StateRepo — store.Store на PostgreSQL.
//
// Документ — строка states. Put с EmptyEtag вставляет строку,
// с непустым etag обновляет её условием по etag. Строка, не попавшая
// под условие, означает конфликт.
type StateRepo struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*StateRepo)(nil)

// NewStateRepo создаёт новый StateRepo.
func NewStateRepo(pool *pgxpool.Pool) *StateRepo {
	return &StateRepo{pool: pool}
}

// Get возвращает документ.
func (r *StateRepo) Get(ctx context.Context, id string) (store.Document, error) {
	var etag string
	var body []byte

	err := r.pool.QueryRow(ctx, `SELECT etag, body FROM states WHERE id = $1`, id).Scan(&etag, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get state %s: %w", id, err)
	}

	return store.Document{ID: id, Etag: store.Etag(etag), Body: body}, nil
}

// Put записывает документ, если текущий etag равен expected.
func (r *StateRepo) Put(ctx context.Context, id string, body []byte, expected store.Etag) (store.Etag, error) {
	next := store.NextEtag(expected, body)

	var (
		affected int64
		err      error
	)
	if expected == store.EmptyEtag {
		affected, err = r.insert(ctx, id, body, next)
	} else {
		affected, err = r.update(ctx, id, body, next, expected)
	}
	if err != nil {
		return store.EmptyEtag, err
	}

	if affected == 1 {
		return next, nil
	}

	// Условие не выполнено: читаем текущий etag для ConflictError
	current := store.EmptyEtag
	doc, err := r.Get(ctx, id)
	switch {
	case err == nil:
		current = doc.Etag
	case !errors.Is(err, store.ErrNotFound):
		return store.EmptyEtag, err
	}

	return store.EmptyEtag, &store.ConflictError{ID: id, Current: current, Expected: expected}
}

func (r *StateRepo) insert(ctx context.Context, id string, body []byte, etag store.Etag) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO states (id, etag, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, id, string(etag), body)
	if err != nil {
		return 0, fmt.Errorf("insert state %s: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

func (r *StateRepo) update(ctx context.Context, id string, body []byte, etag, expected store.Etag) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE states
		SET etag = $2, body = $3, updated_at = now()
		WHERE id = $1 AND etag = $4
	`, id, string(etag), body, string(expected))
	if err != nil {
		return 0, fmt.Errorf("update state %s: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// ListIDsWithPrefix возвращает отсортированные ids с префиксом.
func (r *StateRepo) ListIDsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	sql, args, err := listIDsQuery(prefix)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan state ids: %w", err)
	}
	return ids, nil
}

func listIDsQuery(prefix string) (string, []any, error) {
	q := squirrel.Select("id").
		From(statesTable).
		OrderBy("id").
		PlaceholderFormat(squirrel.Dollar)
	if prefix != "" {
		q = q.Where(squirrel.Like{"id": escapeLike(prefix) + "%"})
	}
	return q.ToSql()
}

// escapeLike экранирует спецсимволы LIKE (экранирующий символ по умолчанию — \).
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

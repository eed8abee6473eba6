package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/ServiceGrid/internal/broker"
	"github.com/shaiso/ServiceGrid/internal/domain"
)

// TaskRepo — broker.Broker на PostgreSQL.
//
// Очередь consumer'а — строки таблицы с его consumer_id в порядке seq.
// Дедупликация — уникальный ключ (consumer_id, fingerprint): строка
// удаляется при выдаче, после этого эквивалентная task снова принимается.
type TaskRepo struct {
	pool  *pgxpool.Pool
	table string
}

var _ broker.Broker = (*TaskRepo)(nil)

// NewTaskRepo создаёт TaskRepo над таблицей table
// (TasksTable или PersistedTasksTable).
func NewTaskRepo(pool *pgxpool.Pool, table string) *TaskRepo {
	return &TaskRepo{pool: pool, table: table}
}

// PostNewTask добавляет task, если эквивалентной ещё нет в очереди.
func (r *TaskRepo) PostNewTask(ctx context.Context, task *domain.Task) (bool, error) {
	sql, args, err := r.insertQuery(task)
	if err != nil {
		return false, err
	}

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		if name, ok := constraintName(err); ok {
			return false, fmt.Errorf("insert task: constraint %s: %w", name, err)
		}
		return false, fmt.Errorf("insert task: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveNextTask достаёт первую task очереди.
//
// FOR UPDATE SKIP LOCKED: два процесса одного consumer'а не получат
// одну и ту же task.
func (r *TaskRepo) RemoveNextTask(ctx context.Context, consumerID string) (*domain.Task, error) {
	sql, args, err := r.removeQuery(consumerID)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = r.pool.QueryRow(ctx, sql, args...).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, broker.ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("remove next task: %w", err)
	}

	return decodeTask(body)
}

// PendingTasks возвращает снимок очереди.
func (r *TaskRepo) PendingTasks(ctx context.Context, consumerID string) ([]*domain.Task, error) {
	sql, args, err := squirrel.Select("body").
		From(r.table).
		Where(squirrel.Eq{"consumer_id": consumerID}).
		OrderBy("seq").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan pending tasks: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(bodies))
	for _, body := range bodies {
		task, err := decodeTask(body)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Consumers возвращает ids consumer'ов с непустыми очередями.
func (r *TaskRepo) Consumers(ctx context.Context) ([]string, error) {
	sql, args, err := squirrel.Select("consumer_id").
		Distinct().
		From(r.table).
		OrderBy("consumer_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list consumers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *TaskRepo) insertQuery(task *domain.Task) (string, []any, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return "", nil, fmt.Errorf("marshal task: %w", err)
	}

	sql, args, err := squirrel.Insert(r.table).
		Columns("consumer_id", "fingerprint", "body").
		Values(task.ConsumerID, task.Fingerprint(), body).
		Suffix("ON CONFLICT (consumer_id, fingerprint) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}
	return sql, args, nil
}

func (r *TaskRepo) removeQuery(consumerID string) (string, []any, error) {
	next := fmt.Sprintf("seq = (SELECT seq FROM %s WHERE consumer_id = ? ORDER BY seq LIMIT 1 FOR UPDATE SKIP LOCKED)", r.table)

	sql, args, err := squirrel.Delete(r.table).
		Where(next, consumerID).
		Suffix("RETURNING body").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}
	return sql, args, nil
}

func decodeTask(body []byte) (*domain.Task, error) {
	var task domain.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &task, nil
}

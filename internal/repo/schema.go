package repo

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Таблицы.
const (
	statesTable         = "states"
	TasksTable          = "tasks"
	PersistedTasksTable = "persisted_tasks"
)

//go:embed schema.sql
var schema string

// Migrate создаёт таблицы, если их ещё нет.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

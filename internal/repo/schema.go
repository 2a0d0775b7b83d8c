package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблицы состояния splittable стадий.
//
// Все строки помечены scope (идентификатором pipeline), поэтому
// несколько pipeline могут делить одну базу.
const schema = `
CREATE TABLE IF NOT EXISTS flume_state (
	scope      TEXT  NOT NULL,
	stage_id   TEXT  NOT NULL,
	key        TEXT  NOT NULL,
	namespace  TEXT  NOT NULL,
	cell       TEXT  NOT NULL,
	data       BYTEA NOT NULL,
	PRIMARY KEY (scope, stage_id, key, namespace, cell)
);

CREATE TABLE IF NOT EXISTS flume_holds (
	scope      TEXT        NOT NULL,
	stage_id   TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	namespace  TEXT        NOT NULL,
	hold       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (scope, stage_id, key, namespace)
);

CREATE TABLE IF NOT EXISTS flume_timers (
	scope      TEXT        NOT NULL,
	stage_id   TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	namespace  TEXT        NOT NULL,
	timer_id   TEXT        NOT NULL,
	fire_at    TIMESTAMPTZ NOT NULL,
	domain     TEXT        NOT NULL,
	PRIMARY KEY (scope, stage_id, key, namespace, timer_id)
);

CREATE INDEX IF NOT EXISTS flume_timers_fire_at ON flume_timers (scope, fire_at);
`

// EnsureSchema создаёт таблицы, если их нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

package repo

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/state"
)

// StateRepo — state.Backend поверх PostgreSQL.
//
// Commit выполняется одной транзакцией, FireDueTimers — одним
// DELETE ... RETURNING, поэтому таймер срабатывает ровно один раз даже
// при нескольких читателях.
type StateRepo struct {
	pool   *pgxpool.Pool
	scope  string
	owned  bool
	closed atomic.Bool
}

// NewStateRepo создаёт StateRepo поверх существующего пула.
// Пул остаётся во владении вызывающего.
func NewStateRepo(pool *pgxpool.Pool, scope string) (*StateRepo, error) {
	if scope == "" {
		return nil, ErrNoScope
	}
	return &StateRepo{pool: pool, scope: scope}, nil
}

// OpenStateRepo открывает пул, создаёт схему и возвращает backend.
// Подходит как state.Opener для имени state.BackendPostgres.
func OpenStateRepo(ctx context.Context, cfg state.Config) (state.Backend, error) {
	if cfg.Scope == "" {
		return nil, ErrNoScope
	}

	pool, err := NewPool(ctx, cfg.DBURL)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &StateRepo{pool: pool, scope: cfg.Scope, owned: true}, nil
}

// Read читает ячейку.
func (r *StateRepo) Read(ctx context.Context, target domain.StepAndKey, namespace, cell string) ([]byte, bool, error) {
	if r.closed.Load() {
		return nil, false, ErrClosed
	}

	query := `
		SELECT data FROM flume_state
		WHERE scope = $1 AND stage_id = $2 AND key = $3 AND namespace = $4 AND cell = $5
	`
	var data []byte
	err := r.pool.QueryRow(ctx, query, r.scope, target.StageID, target.Key, namespace, cell).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cell %s: %w", cell, err)
	}
	return data, true, nil
}

// Hold возвращает watermark hold.
func (r *StateRepo) Hold(ctx context.Context, target domain.StepAndKey, namespace string) (time.Time, bool, error) {
	if r.closed.Load() {
		return time.Time{}, false, ErrClosed
	}

	query := `
		SELECT hold FROM flume_holds
		WHERE scope = $1 AND stage_id = $2 AND key = $3 AND namespace = $4
	`
	var hold time.Time
	err := r.pool.QueryRow(ctx, query, r.scope, target.StageID, target.Key, namespace).Scan(&hold)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read hold: %w", err)
	}
	return hold.UTC(), true, nil
}

// Commit применяет мутацию в одной транзакции.
func (r *StateRepo) Commit(ctx context.Context, target domain.StepAndKey, namespace string, m state.Mutation) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if m.IsEmpty() {
		return nil
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		base := []any{r.scope, target.StageID, target.Key, namespace}

		for _, cell := range m.Clears {
			_, err := tx.Exec(ctx, `
				DELETE FROM flume_state
				WHERE scope = $1 AND stage_id = $2 AND key = $3 AND namespace = $4 AND cell = $5
			`, append(base, cell)...)
			if err != nil {
				return fmt.Errorf("clear cell %s: %w", cell, err)
			}
		}

		for cell, data := range m.Writes {
			_, err := tx.Exec(ctx, `
				INSERT INTO flume_state (scope, stage_id, key, namespace, cell, data)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (scope, stage_id, key, namespace, cell) DO UPDATE SET data = EXCLUDED.data
			`, append(base, cell, data)...)
			if err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}

		if m.ClearHold {
			_, err := tx.Exec(ctx, `
				DELETE FROM flume_holds
				WHERE scope = $1 AND stage_id = $2 AND key = $3 AND namespace = $4
			`, base...)
			if err != nil {
				return fmt.Errorf("clear hold: %w", err)
			}
		}

		if m.AddHold != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO flume_holds (scope, stage_id, key, namespace, hold)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (scope, stage_id, key, namespace)
				DO UPDATE SET hold = LEAST(flume_holds.hold, EXCLUDED.hold)
			`, append(base, m.AddHold.UTC())...)
			if err != nil {
				return fmt.Errorf("add hold: %w", err)
			}
		}

		if t := m.SetTimer; t != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO flume_timers (scope, stage_id, key, namespace, timer_id, fire_at, domain)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (scope, stage_id, key, namespace, timer_id)
				DO UPDATE SET fire_at = EXCLUDED.fire_at, domain = EXCLUDED.domain
			`, r.scope, target.StageID, target.Key, t.Namespace, t.TimerID, t.FireAt.UTC(), string(t.Domain))
			if err != nil {
				return fmt.Errorf("set timer: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("commit %s: %w", target, err)
	}
	return nil
}

// FireDueTimers удаляет и возвращает созревшие таймеры.
func (r *StateRepo) FireDueTimers(ctx context.Context, now time.Time) ([]state.FiredTimer, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	query := `
		WITH fired AS (
			DELETE FROM flume_timers
			WHERE scope = $1 AND fire_at <= $2
			RETURNING stage_id, key, namespace, timer_id, fire_at, domain
		)
		SELECT stage_id, key, namespace, timer_id, fire_at, domain
		FROM fired
		ORDER BY fire_at, stage_id, key
	`
	rows, err := r.pool.Query(ctx, query, r.scope, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("fire timers: %w", err)
	}
	defer rows.Close()

	var fired []state.FiredTimer
	for rows.Next() {
		var ft state.FiredTimer
		var timerDomain string
		err := rows.Scan(
			&ft.Target.StageID,
			&ft.Target.Key,
			&ft.Timer.Namespace,
			&ft.Timer.TimerID,
			&ft.Timer.FireAt,
			&timerDomain,
		)
		if err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		ft.Timer.FireAt = ft.Timer.FireAt.UTC()
		ft.Timer.Domain = domain.TimeDomain(timerDomain)
		fired = append(fired, ft)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}

	return fired, nil
}

// PendingTimers возвращает число установленных таймеров.
func (r *StateRepo) PendingTimers(ctx context.Context) (int, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}

	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM flume_timers WHERE scope = $1`, r.scope).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count timers: %w", err)
	}
	return n, nil
}

// Purge удаляет все строки scope. Вызывается после завершения pipeline.
func (r *StateRepo) Purge(ctx context.Context) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, table := range []string{"flume_state", "flume_holds", "flume_timers"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE scope = $1", r.scope); err != nil {
				return fmt.Errorf("purge %s: %w", table, err)
			}
		}
		return nil
	})
}

// Close закрывает пул, если StateRepo им владеет.
func (r *StateRepo) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.owned {
		r.pool.Close()
	}
	return nil
}

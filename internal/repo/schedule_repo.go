package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/batchflows/internal/domain"
)

// PGScheduleRepo — ScheduleRepo в PostgreSQL.
//
// Позволяет scheduler'у пережить рестарт без повторного запуска
// уже обработанного слота.
type PGScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewPGScheduleRepo создаёт новый PGScheduleRepo.
func NewPGScheduleRepo(pool *pgxpool.Pool) *PGScheduleRepo {
	return &PGScheduleRepo{pool: pool}
}

// Get возвращает состояние расписания flow.
func (r *PGScheduleRepo) Get(ctx context.Context, flow string) (*domain.ScheduleState, error) {
	query := `
		SELECT flow, schedule, enabled, next_due_at, last_run_at, last_run_id
		FROM schedules
		WHERE flow = $1
	`
	return scanSchedule(r.pool.QueryRow(ctx, query, flow))
}

// Upsert сохраняет состояние расписания.
func (r *PGScheduleRepo) Upsert(ctx context.Context, state *domain.ScheduleState) error {
	scheduleJSON, err := json.Marshal(state.Schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}

	query := `
		INSERT INTO schedules (flow, schedule, enabled, next_due_at, last_run_at, last_run_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (flow) DO UPDATE
		SET schedule = EXCLUDED.schedule, enabled = EXCLUDED.enabled,
		    next_due_at = EXCLUDED.next_due_at, last_run_at = EXCLUDED.last_run_at,
		    last_run_id = EXCLUDED.last_run_id
	`
	_, err = r.pool.Exec(ctx, query,
		state.Flow,
		scheduleJSON,
		state.Enabled,
		state.NextDueAt,
		state.LastRunAt,
		state.LastRunID,
	)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

// List возвращает все состояния расписаний.
func (r *PGScheduleRepo) List(ctx context.Context) ([]domain.ScheduleState, error) {
	query := `
		SELECT flow, schedule, enabled, next_due_at, last_run_at, last_run_id
		FROM schedules
		ORDER BY flow
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	states := []domain.ScheduleState{}
	for rows.Next() {
		state, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

func scanSchedule(row pgx.Row) (*domain.ScheduleState, error) {
	var state domain.ScheduleState
	var scheduleJSON []byte

	err := row.Scan(
		&state.Flow,
		&scheduleJSON,
		&state.Enabled,
		&state.NextDueAt,
		&state.LastRunAt,
		&state.LastRunID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	if err := json.Unmarshal(scheduleJSON, &state.Schedule); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	return &state, nil
}

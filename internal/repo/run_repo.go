package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/batchflows/internal/domain"
)

const runColumns = `id, flow, status, params, decospecs, data, started_at, finished_at,
		       error, idempotency_key, created_at`

// PGRunRepo — RunRepo в PostgreSQL.
type PGRunRepo struct {
	pool *pgxpool.Pool
}

// NewPGRunRepo создаёт новый PGRunRepo.
func NewPGRunRepo(pool *pgxpool.Pool) *PGRunRepo {
	return &PGRunRepo{pool: pool}
}

// Create создаёт новый run.
func (r *PGRunRepo) Create(ctx context.Context, run *domain.Run) error {
	paramsJSON, decosJSON, dataJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (id, flow, status, params, decospecs, data, started_at, finished_at,
		                  error, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.Flow,
		run.Status,
		paramsJSON,
		decosJSON,
		dataJSON,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
		nullString(run.IdempotencyKey),
		run.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update обновляет run.
func (r *PGRunRepo) Update(ctx context.Context, run *domain.Run) error {
	_, _, dataJSON, err := marshalRun(run)
	if err != nil {
		return err
	}

	query := `
		UPDATE runs
		SET status = $2, started_at = $3, finished_at = $4, error = $5, data = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
		dataJSON,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *PGRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает run по ключу идемпотентности.
func (r *PGRunRepo) GetByIdempotencyKey(ctx context.Context, flow, key string) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE flow = $1 AND idempotency_key = $2`
	return scanRun(r.pool.QueryRow(ctx, query, flow, key))
}

// List возвращает список runs с фильтрацией.
func (r *PGRunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::text IS NULL OR flow = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Flow),
		nullString(string(filter.Status)),
		filter.limit(),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Helpers ---

func marshalRun(run *domain.Run) (params, decos, data []byte, err error) {
	if params, err = json.Marshal(run.Params); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal params: %w", err)
	}
	if decos, err = json.Marshal(run.DecoSpecs); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal decospecs: %w", err)
	}
	if data, err = json.Marshal(run.Data); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal data: %w", err)
	}
	return params, decos, data, nil
}

// scanRun сканирует одну строку в Run.
// pgx.Rows тоже реализует pgx.Row, поэтому хелпер общий.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var paramsJSON, decosJSON, dataJSON []byte
	var idempotencyKey, runError *string

	err := row.Scan(
		&run.ID,
		&run.Flow,
		&run.Status,
		&paramsJSON,
		&decosJSON,
		&dataJSON,
		&run.StartedAt,
		&run.FinishedAt,
		&runError,
		&idempotencyKey,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	for _, f := range []struct {
		raw  []byte
		dst  any
		name string
	}{
		{paramsJSON, &run.Params, "params"},
		{decosJSON, &run.DecoSpecs, "decospecs"},
		{dataJSON, &run.Data, "data"},
	} {
		if f.raw == nil {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", f.name, err)
		}
	}

	run.IdempotencyKey = derefString(idempotencyKey)
	run.Error = derefString(runError)
	return &run, nil
}

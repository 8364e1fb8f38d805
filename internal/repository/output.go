package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akave-ai/apicapture/internal/model"
)

// OutputStore persists output definitions.
type OutputStore interface {
	Create(ctx context.Context, out *model.Output) error
	List(ctx context.Context) ([]model.Output, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Output, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// OutputRepository persists and reads output definitions in Postgres.
type OutputRepository struct {
	pool *pgxpool.Pool
}

// NewOutputRepository returns an OutputRepository using the given pool.
func NewOutputRepository(pool *pgxpool.Pool) *OutputRepository {
	return &OutputRepository{pool: pool}
}

// Create inserts a new output and returns it with ID and CreatedAt set.
func (r *OutputRepository) Create(ctx context.Context, out *model.Output) error {
	query := `
		INSERT INTO outputs (id, type, title, configuration, desired_state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx, query,
		out.ID,
		out.Type,
		out.Title,
		out.Configuration,
		out.DesiredState,
	).Scan(&out.ID, &out.CreatedAt)
}

// List returns all outputs ordered by created_at descending.
func (r *OutputRepository) List(ctx context.Context) ([]model.Output, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, title, configuration, created_at, desired_state
		FROM outputs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Output
	for rows.Next() {
		var o model.Output
		if err := rows.Scan(
			&o.ID,
			&o.Type,
			&o.Title,
			&o.Configuration,
			&o.CreatedAt,
			&o.DesiredState,
		); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// GetByID returns one output by id, or nil if not found.
func (r *OutputRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Output, error) {
	var o model.Output
	err := r.pool.QueryRow(ctx, `
		SELECT id, type, title, configuration, created_at, desired_state
		FROM outputs WHERE id = $1`, id).Scan(
		&o.ID,
		&o.Type,
		&o.Title,
		&o.Configuration,
		&o.CreatedAt,
		&o.DesiredState,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// Delete removes an output. It reports false when no row matched.
func (r *OutputRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM outputs WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

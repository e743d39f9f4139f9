package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/portfolio-tracker/internal/model"
)

// ErrHoldingNotFound is returned when no holding has the requested ID.
var ErrHoldingNotFound = errors.New("holding not found")

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HoldingRepository stores holdings in PostgreSQL.
type HoldingRepository struct {
	db DB
}

// NewHoldingRepository creates a new HoldingRepository.
func NewHoldingRepository(db DB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

// Migrate creates the schema.
func (r *HoldingRepository) Migrate(ctx context.Context) error {
	return Migrate(ctx, r.db)
}

const holdingColumns = `id, symbol, name, quantity, buy_price, current_price, created_at, updated_at`

func scanHolding(row pgx.Row) (model.Holding, error) {
	var h model.Holding
	err := row.Scan(
		&h.ID, &h.Symbol, &h.Name,
		&h.Quantity, &h.BuyPrice, &h.CurrentPrice,
		&h.CreatedAt, &h.UpdatedAt,
	)
	return h, err
}

// List returns every holding, oldest first.
func (r *HoldingRepository) List(ctx context.Context) ([]model.Holding, error) {
	rows, err := r.db.Query(ctx, `SELECT `+holdingColumns+` FROM holdings ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	var out []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	return out, nil
}

// Get returns one holding by ID.
func (r *HoldingRepository) Get(ctx context.Context, id uuid.UUID) (model.Holding, error) {
	h, err := scanHolding(r.db.QueryRow(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Holding{}, ErrHoldingNotFound
	}
	if err != nil {
		return model.Holding{}, fmt.Errorf("get holding %s: %w", id, err)
	}
	return h, nil
}

// Insert stores a new holding.
func (r *HoldingRepository) Insert(ctx context.Context, h model.Holding) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO holdings (`+holdingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, h.ID, h.Symbol, h.Name, h.Quantity, h.BuyPrice, h.CurrentPrice, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert holding: %w", err)
	}
	return nil
}

// Update overwrites a holding's mutable fields.
func (r *HoldingRepository) Update(ctx context.Context, h model.Holding) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE holdings
		SET symbol = $2, name = $3, quantity = $4, buy_price = $5, current_price = $6, updated_at = $7
		WHERE id = $1
	`, h.ID, h.Symbol, h.Name, h.Quantity, h.BuyPrice, h.CurrentPrice, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update holding: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrHoldingNotFound
	}
	return nil
}

// Delete removes a holding.
func (r *HoldingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM holdings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete holding: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrHoldingNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"token-sale-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const roundColumns = `id, rate, hard_cap, min_buy, max_buy, raised, start_time, end_time,
	whitelist_only, active, completed, created_at, updated_at`

// RoundRepo implements ports.RoundRepository.
type RoundRepo struct {
	pool Pool
}

// NewRoundRepo creates a new RoundRepo.
func NewRoundRepo(pool Pool) *RoundRepo {
	return &RoundRepo{pool: pool}
}

func scanRound(row pgx.Row) (*domain.Round, error) {
	rd := &domain.Round{}
	err := row.Scan(
		&rd.ID, &rd.Rate, &rd.HardCap, &rd.MinBuy, &rd.MaxBuy, &rd.Raised,
		&rd.StartTime, &rd.EndTime, &rd.WhitelistOnly, &rd.Active, &rd.Completed,
		&rd.CreatedAt, &rd.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rd, nil
}

// Create inserts a new round within a transaction. Round IDs are assigned by
// the service from the sale-state counter, so the insert carries the ID.
func (r *RoundRepo) Create(ctx context.Context, tx pgx.Tx, rd *domain.Round) error {
	query := `INSERT INTO rounds (id, rate, hard_cap, min_buy, max_buy, raised, start_time, end_time,
		whitelist_only, active, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := tx.Exec(ctx, query,
		rd.ID, rd.Rate, rd.HardCap, rd.MinBuy, rd.MaxBuy, rd.Raised,
		rd.StartTime, rd.EndTime, rd.WhitelistOnly, rd.Active, rd.Completed,
		rd.CreatedAt, rd.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert round: %w", err)
	}
	return nil
}

// GetByID fetches a round by its ID (non-locking read).
func (r *RoundRepo) GetByID(ctx context.Context, id int64) (*domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1`

	rd, err := scanRound(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get round by id: %w", err)
	}
	return rd, nil
}

// GetByIDForUpdate fetches a round by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *RoundRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds WHERE id = $1 FOR UPDATE`

	rd, err := scanRound(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get round for update: %w", err)
	}
	return rd, nil
}

// Update rewrites a round's mutable fields within a transaction.
func (r *RoundRepo) Update(ctx context.Context, tx pgx.Tx, rd *domain.Round) error {
	query := `UPDATE rounds SET raised = $1, active = $2, completed = $3, updated_at = NOW()
		WHERE id = $4`

	tag, err := tx.Exec(ctx, query, rd.Raised, rd.Active, rd.Completed, rd.ID)
	if err != nil {
		return fmt.Errorf("update round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("round not found: %d", rd.ID)
	}
	return nil
}

// List returns all rounds ordered by ID.
func (r *RoundRepo) List(ctx context.Context) ([]domain.Round, error) {
	query := `SELECT ` + roundColumns + ` FROM rounds ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		rd, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		rounds = append(rounds, *rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return rounds, nil
}

package postgres

import (
	"context"
	"fmt"

	"token-sale-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const saleStateColumns = `current_round, total_rounds, total_raised, status,
	individual_cap, soft_cap, hard_cap_allocated, paused, updated_at`

// SaleStateRepo implements ports.SaleStateRepository. The sale_state table
// holds exactly one row, keyed id = 1 and seeded by migration.
type SaleStateRepo struct {
	pool Pool
}

// NewSaleStateRepo creates a new SaleStateRepo.
func NewSaleStateRepo(pool Pool) *SaleStateRepo {
	return &SaleStateRepo{pool: pool}
}

func scanSaleState(row pgx.Row) (*domain.SaleState, error) {
	s := &domain.SaleState{}
	err := row.Scan(
		&s.CurrentRound, &s.TotalRounds, &s.TotalRaised, &s.Status,
		&s.IndividualCap, &s.SoftCap, &s.HardCapAllocated, &s.Paused, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Get fetches the sale state (non-locking read).
func (r *SaleStateRepo) Get(ctx context.Context) (*domain.SaleState, error) {
	query := `SELECT ` + saleStateColumns + ` FROM sale_state WHERE id = 1`

	s, err := scanSaleState(r.pool.QueryRow(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("get sale state: %w", err)
	}
	return s, nil
}

// GetForUpdate fetches the sale state with pessimistic locking. Every
// mutating sale operation locks this row first, which serializes them.
// This MUST be called within a transaction.
func (r *SaleStateRepo) GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.SaleState, error) {
	query := `SELECT ` + saleStateColumns + ` FROM sale_state WHERE id = 1 FOR UPDATE`

	s, err := scanSaleState(tx.QueryRow(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("get sale state for update: %w", err)
	}
	return s, nil
}

// Update rewrites the sale state within a transaction.
func (r *SaleStateRepo) Update(ctx context.Context, tx pgx.Tx, s *domain.SaleState) error {
	query := `UPDATE sale_state SET current_round = $1, total_rounds = $2, total_raised = $3,
		status = $4, individual_cap = $5, soft_cap = $6, hard_cap_allocated = $7,
		paused = $8, updated_at = NOW()
		WHERE id = 1`

	tag, err := tx.Exec(ctx, query,
		s.CurrentRound, s.TotalRounds, s.TotalRaised, s.Status,
		s.IndividualCap, s.SoftCap, s.HardCapAllocated, s.Paused,
	)
	if err != nil {
		return fmt.Errorf("update sale state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sale state row missing")
	}
	return nil
}

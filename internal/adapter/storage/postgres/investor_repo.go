package postgres

import (
	"context"
	"errors"
	"fmt"

	"token-sale-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const investorColumns = `address, total_contributed, tokens_received, whitelisted,
	last_purchase_at, created_at, updated_at`

// InvestorRepo implements ports.InvestorRepository.
type InvestorRepo struct {
	pool Pool
}

// NewInvestorRepo creates a new InvestorRepo.
func NewInvestorRepo(pool Pool) *InvestorRepo {
	return &InvestorRepo{pool: pool}
}

func scanInvestor(row pgx.Row) (*domain.Investor, error) {
	inv := &domain.Investor{}
	err := row.Scan(
		&inv.Address, &inv.TotalContributed, &inv.TokensReceived, &inv.Whitelisted,
		&inv.LastPurchaseAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// GetByAddress fetches an investor position (non-locking read).
// Returns nil if the address has never interacted with the sale.
func (r *InvestorRepo) GetByAddress(ctx context.Context, address uuid.UUID) (*domain.Investor, error) {
	query := `SELECT ` + investorColumns + ` FROM investors WHERE address = $1`

	inv, err := scanInvestor(r.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get investor: %w", err)
	}
	return inv, nil
}

// GetByAddressForUpdate fetches an investor with pessimistic locking.
// This MUST be called within a transaction. Returns nil if absent.
func (r *InvestorRepo) GetByAddressForUpdate(ctx context.Context, tx pgx.Tx, address uuid.UUID) (*domain.Investor, error) {
	query := `SELECT ` + investorColumns + ` FROM investors WHERE address = $1 FOR UPDATE`

	inv, err := scanInvestor(tx.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get investor for update: %w", err)
	}
	return inv, nil
}

// Upsert inserts or replaces an investor position within a transaction.
func (r *InvestorRepo) Upsert(ctx context.Context, tx pgx.Tx, inv *domain.Investor) error {
	query := `INSERT INTO investors (address, total_contributed, tokens_received, whitelisted,
		last_purchase_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			total_contributed = EXCLUDED.total_contributed,
			tokens_received = EXCLUDED.tokens_received,
			whitelisted = EXCLUDED.whitelisted,
			last_purchase_at = EXCLUDED.last_purchase_at,
			updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query,
		inv.Address, inv.TotalContributed, inv.TokensReceived, inv.Whitelisted,
		inv.LastPurchaseAt, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert investor: %w", err)
	}
	return nil
}

// SetWhitelisted flips allow-list membership, creating the position row if
// the address has never purchased. Runs inside the caller's transaction so
// the flip commits together with its audit event.
func (r *InvestorRepo) SetWhitelisted(ctx context.Context, tx pgx.Tx, address uuid.UUID, whitelisted bool) error {
	query := `INSERT INTO investors (address, total_contributed, tokens_received, whitelisted,
		created_at, updated_at)
		VALUES ($1, 0, 0, $2, NOW(), NOW())
		ON CONFLICT (address) DO UPDATE SET
			whitelisted = EXCLUDED.whitelisted,
			updated_at = NOW()`

	_, err := tx.Exec(ctx, query, address, whitelisted)
	if err != nil {
		return fmt.Errorf("set whitelisted: %w", err)
	}
	return nil
}

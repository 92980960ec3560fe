package postgres

import (
	"context"
	"errors"
	"fmt"

	"token-sale-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ledgerStateColumns = `settlement_held, token_held, settlement_ceiling, token_ceiling,
	paused, updated_at`

const ledgerAccountColumns = `address, deposited_settlement, deposited_token,
	sent_settlement, sent_token, created_at, updated_at`

// LedgerRepo implements ports.LedgerRepository. The ledger_state table holds
// exactly one row, keyed id = 1 and seeded by migration.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func scanLedgerState(row pgx.Row) (*domain.LedgerState, error) {
	s := &domain.LedgerState{}
	err := row.Scan(
		&s.SettlementHeld, &s.TokenHeld, &s.SettlementCeiling, &s.TokenCeiling,
		&s.Paused, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanLedgerAccount(row pgx.Row) (*domain.LedgerAccount, error) {
	a := &domain.LedgerAccount{}
	err := row.Scan(
		&a.Address, &a.DepositedSettlement, &a.DepositedToken,
		&a.SentSettlement, &a.SentToken, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetState fetches the ledger state (non-locking read).
func (r *LedgerRepo) GetState(ctx context.Context) (*domain.LedgerState, error) {
	query := `SELECT ` + ledgerStateColumns + ` FROM ledger_state WHERE id = 1`

	s, err := scanLedgerState(r.pool.QueryRow(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("get ledger state: %w", err)
	}
	return s, nil
}

// GetStateForUpdate fetches the ledger state with pessimistic locking.
// Every mutating ledger operation locks this row first.
// This MUST be called within a transaction.
func (r *LedgerRepo) GetStateForUpdate(ctx context.Context, tx pgx.Tx) (*domain.LedgerState, error) {
	query := `SELECT ` + ledgerStateColumns + ` FROM ledger_state WHERE id = 1 FOR UPDATE`

	s, err := scanLedgerState(tx.QueryRow(ctx, query))
	if err != nil {
		return nil, fmt.Errorf("get ledger state for update: %w", err)
	}
	return s, nil
}

// UpdateState rewrites the ledger state within a transaction.
func (r *LedgerRepo) UpdateState(ctx context.Context, tx pgx.Tx, s *domain.LedgerState) error {
	query := `UPDATE ledger_state SET settlement_held = $1, token_held = $2,
		settlement_ceiling = $3, token_ceiling = $4, paused = $5, updated_at = NOW()
		WHERE id = 1`

	tag, err := tx.Exec(ctx, query,
		s.SettlementHeld, s.TokenHeld, s.SettlementCeiling, s.TokenCeiling, s.Paused,
	)
	if err != nil {
		return fmt.Errorf("update ledger state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger state row missing")
	}
	return nil
}

// GetAccount fetches per-account movement counters (non-locking read).
// Returns nil if the address has never moved funds.
func (r *LedgerRepo) GetAccount(ctx context.Context, address uuid.UUID) (*domain.LedgerAccount, error) {
	query := `SELECT ` + ledgerAccountColumns + ` FROM ledger_accounts WHERE address = $1`

	a, err := scanLedgerAccount(r.pool.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger account: %w", err)
	}
	return a, nil
}

// GetAccountForUpdate fetches per-account counters with pessimistic locking.
// This MUST be called within a transaction. Returns nil if absent.
func (r *LedgerRepo) GetAccountForUpdate(ctx context.Context, tx pgx.Tx, address uuid.UUID) (*domain.LedgerAccount, error) {
	query := `SELECT ` + ledgerAccountColumns + ` FROM ledger_accounts WHERE address = $1 FOR UPDATE`

	a, err := scanLedgerAccount(tx.QueryRow(ctx, query, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger account for update: %w", err)
	}
	return a, nil
}

// UpsertAccount inserts or replaces per-account counters within a transaction.
func (r *LedgerRepo) UpsertAccount(ctx context.Context, tx pgx.Tx, a *domain.LedgerAccount) error {
	query := `INSERT INTO ledger_accounts (address, deposited_settlement, deposited_token,
		sent_settlement, sent_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			deposited_settlement = EXCLUDED.deposited_settlement,
			deposited_token = EXCLUDED.deposited_token,
			sent_settlement = EXCLUDED.sent_settlement,
			sent_token = EXCLUDED.sent_token,
			updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, query,
		a.Address, a.DepositedSettlement, a.DepositedToken,
		a.SentSettlement, a.SentToken, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert ledger account: %w", err)
	}
	return nil
}

// SetAuthorized adds or removes an address from the withdrawal
// authorization set. Both directions are idempotent. Runs inside the
// caller's transaction so the change commits together with its audit event.
func (r *LedgerRepo) SetAuthorized(ctx context.Context, tx pgx.Tx, address uuid.UUID, enabled bool) error {
	var query string
	if enabled {
		query = `INSERT INTO withdrawal_authorizations (address, created_at)
			VALUES ($1, NOW())
			ON CONFLICT (address) DO NOTHING`
	} else {
		query = `DELETE FROM withdrawal_authorizations WHERE address = $1`
	}

	_, err := tx.Exec(ctx, query, address)
	if err != nil {
		return fmt.Errorf("set authorized: %w", err)
	}
	return nil
}

// IsAuthorized reports withdrawal authorization set membership.
func (r *LedgerRepo) IsAuthorized(ctx context.Context, address uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM withdrawal_authorizations WHERE address = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, address).Scan(&exists); err != nil {
		return false, fmt.Errorf("check authorization: %w", err)
	}
	return exists, nil
}

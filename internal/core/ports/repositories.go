package ports

import (
	"context"

	"token-sale-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository defines persistence operations for operator accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
}

// RoundRepository defines persistence operations for sale rounds.
// Methods accepting pgx.Tx run inside transaction blocks for pessimistic locking.
type RoundRepository interface {
	Create(ctx context.Context, tx pgx.Tx, round *domain.Round) error
	GetByID(ctx context.Context, id int64) (*domain.Round, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Round, error)
	Update(ctx context.Context, tx pgx.Tx, round *domain.Round) error
	List(ctx context.Context) ([]domain.Round, error)
}

// InvestorRepository defines persistence operations for investor positions.
type InvestorRepository interface {
	GetByAddress(ctx context.Context, address uuid.UUID) (*domain.Investor, error)
	// GetByAddressForUpdate locks the investor row; returns nil if absent.
	GetByAddressForUpdate(ctx context.Context, tx pgx.Tx, address uuid.UUID) (*domain.Investor, error)
	Upsert(ctx context.Context, tx pgx.Tx, investor *domain.Investor) error
	SetWhitelisted(ctx context.Context, tx pgx.Tx, address uuid.UUID, whitelisted bool) error
}

// SaleStateRepository manages the single sale-wide state row.
type SaleStateRepository interface {
	Get(ctx context.Context) (*domain.SaleState, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.SaleState, error)
	Update(ctx context.Context, tx pgx.Tx, state *domain.SaleState) error
}

// LedgerRepository manages the custodian's holdings, per-account counters
// and the withdrawal authorization set.
type LedgerRepository interface {
	GetState(ctx context.Context) (*domain.LedgerState, error)
	GetStateForUpdate(ctx context.Context, tx pgx.Tx) (*domain.LedgerState, error)
	UpdateState(ctx context.Context, tx pgx.Tx, state *domain.LedgerState) error

	GetAccount(ctx context.Context, address uuid.UUID) (*domain.LedgerAccount, error)
	GetAccountForUpdate(ctx context.Context, tx pgx.Tx, address uuid.UUID) (*domain.LedgerAccount, error)
	UpsertAccount(ctx context.Context, tx pgx.Tx, account *domain.LedgerAccount) error

	SetAuthorized(ctx context.Context, tx pgx.Tx, address uuid.UUID, enabled bool) error
	IsAuthorized(ctx context.Context, address uuid.UUID) (bool, error)
}

// EventRepository persists the audit event stream.
type EventRepository interface {
	Create(ctx context.Context, tx pgx.Tx, event *domain.Event) error
	List(ctx context.Context, params EventListParams) ([]domain.Event, error)
}

// EventListParams holds filter + pagination for listing events.
type EventListParams struct {
	Kind     *domain.EventKind
	Actor    *uuid.UUID
	RoundID  *int64
	Page     int
	PageSize int
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

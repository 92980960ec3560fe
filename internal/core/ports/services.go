package ports

import (
	"context"
	"time"

	"token-sale-engine/internal/core/domain"

	"github.com/google/uuid"
)

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT session token operations.
type TokenService interface {
	Generate(accountID uuid.UUID, role domain.AccountRole) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID uuid.UUID
	Role      domain.AccountRole
}

// SignatureService handles HMAC-SHA256 signing for outbound transfer calls.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// IdempotencyCache deduplicates retried purchase requests (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// SaleService owns the round state machine, purchases, finalize and refunds.
type SaleService interface {
	CreateRound(ctx context.Context, actor uuid.UUID, req CreateRoundRequest) (*domain.Round, error)
	ActivateRound(ctx context.Context, actor uuid.UUID, roundID int64) (*domain.Round, error)
	BuyTokens(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
	FinalizeSale(ctx context.Context, actor uuid.UUID) (*domain.SaleState, error)
	Refund(ctx context.Context, caller uuid.UUID) (*RefundResult, error)

	SetWhitelisted(ctx context.Context, actor uuid.UUID, address uuid.UUID, whitelisted bool) error
	SetIndividualCap(ctx context.Context, actor uuid.UUID, cap int64) error
	SetSoftCap(ctx context.Context, actor uuid.UUID, cap int64) error
	SetPaused(ctx context.Context, actor uuid.UUID, paused bool) error
}

// CreateRoundRequest holds validated input for round creation.
type CreateRoundRequest struct {
	Rate          int64
	HardCap       int64
	MinBuy        int64
	MaxBuy        int64
	StartTime     time.Time
	EndTime       time.Time
	WhitelistOnly bool
}

// PurchaseRequest holds validated input for a token purchase.
type PurchaseRequest struct {
	Buyer       uuid.UUID
	Amount      int64 // settlement base units
	ReferenceID string
	ClientIP    string
}

// PurchaseResult is the outcome of a successful purchase.
type PurchaseResult struct {
	RoundID        int64     `json:"round_id"`
	Buyer          uuid.UUID `json:"buyer"`
	Amount         int64     `json:"amount"`
	TokensIssued   int64     `json:"tokens_issued"`
	RoundRaised    int64     `json:"round_raised"`
	TotalRaised    int64     `json:"total_raised"`
	RoundCompleted bool      `json:"round_completed"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// RefundResult is the outcome of a successful refund.
type RefundResult struct {
	Caller      uuid.UUID `json:"caller"`
	Amount      int64     `json:"amount"`
	ProcessedAt time.Time `json:"processed_at"`
}

// LedgerService is the custodian's deposit/withdraw/administration surface.
type LedgerService interface {
	DepositSettlement(ctx context.Context, from uuid.UUID, amount int64) (*domain.LedgerAccount, error)
	WithdrawSettlement(ctx context.Context, caller uuid.UUID, to uuid.UUID, amount int64) (*domain.LedgerAccount, error)
	DepositToken(ctx context.Context, caller uuid.UUID, amount int64) (*domain.LedgerAccount, error)
	WithdrawToken(ctx context.Context, caller uuid.UUID, to uuid.UUID, amount int64) (*domain.LedgerAccount, error)

	SetAuthorized(ctx context.Context, actor uuid.UUID, address uuid.UUID, enabled bool) error
	SetLimits(ctx context.Context, actor uuid.UUID, tokenCeiling, settlementCeiling int64) error
	SetPaused(ctx context.Context, actor uuid.UUID, paused bool) error

	// Queries stay available while paused.
	Balances(ctx context.Context) (*domain.LedgerState, error)
	AccountOf(ctx context.Context, address uuid.UUID) (*domain.LedgerAccount, error)
	IsAuthorized(ctx context.Context, address uuid.UUID) (bool, error)
}

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.Account, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
}

// RegisterRequest holds input for account registration.
type RegisterRequest struct {
	Username string
	Password string
}

// ReportingService defines the read-only status surface.
type ReportingService interface {
	SaleStatus(ctx context.Context) (*SaleStatus, error)
	InvestorPosition(ctx context.Context, address uuid.UUID) (*domain.Investor, error)
	ListEvents(ctx context.Context, params EventListParams) ([]domain.Event, error)
}

// SaleStatus aggregates the sale state with its rounds for reporting.
type SaleStatus struct {
	State  domain.SaleState `json:"state"`
	Rounds []domain.Round   `json:"rounds"`
}

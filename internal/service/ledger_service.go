package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"token-sale-engine/internal/core/domain"
	"token-sale-engine/internal/core/ports"
	"token-sale-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService.
//
// The ledger's actual holdings are the only source of truth for what can be
// withdrawn; the per-account deposited/sent counters are monotonic audit
// history. Outbound counters are written before the external transfer is
// issued, and a failed transfer rolls the whole operation back.
type LedgerServiceImpl struct {
	accountRepo ports.AccountRepository
	ledgerRepo  ports.LedgerRepository
	eventRepo   ports.EventRepository
	tokenClient ports.TokenClient
	settlement  ports.SettlementClient
	transactor  ports.DBTransactor
	custodian   uuid.UUID // the engine's own token account
	log         zerolog.Logger
	now         func() time.Time
}

// NewLedgerService creates a new LedgerServiceImpl. custodian is the
// engine's own address on the token rail, the destination of token deposits.
func NewLedgerService(
	accountRepo ports.AccountRepository,
	ledgerRepo ports.LedgerRepository,
	eventRepo ports.EventRepository,
	tokenClient ports.TokenClient,
	settlement ports.SettlementClient,
	transactor ports.DBTransactor,
	custodian uuid.UUID,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		accountRepo: accountRepo,
		ledgerRepo:  ledgerRepo,
		eventRepo:   eventRepo,
		tokenClient: tokenClient,
		settlement:  settlement,
		transactor:  transactor,
		custodian:   custodian,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *LedgerServiceImpl) requireOwner(ctx context.Context, actor uuid.UUID) error {
	account, err := s.accountRepo.GetByID(ctx, actor)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("fetch actor: %w", err))
	}
	if account == nil || !account.IsOwner() {
		return apperror.ErrOwnerOnly()
	}
	return nil
}

// canWithdraw reports whether the caller may invoke withdrawal entry points:
// members of the authorization set, plus the owner implicitly.
func (s *LedgerServiceImpl) canWithdraw(ctx context.Context, caller uuid.UUID) (bool, error) {
	authorized, err := s.ledgerRepo.IsAuthorized(ctx, caller)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("check authorization: %w", err))
	}
	if authorized {
		return true, nil
	}
	account, err := s.accountRepo.GetByID(ctx, caller)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("fetch caller: %w", err))
	}
	return account != nil && account.IsOwner(), nil
}

// DepositSettlement credits an inbound settlement transfer to the sender.
// The same path serves explicit deposits and unsolicited inbound transfers.
func (s *LedgerServiceImpl) DepositSettlement(ctx context.Context, from uuid.UUID, amount int64) (*domain.LedgerAccount, error) {
	if amount <= 0 {
		return nil, apperror.ErrZeroAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.ledgerRepo.GetStateForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock ledger state: %w", err))
	}
	if state.Paused {
		return nil, apperror.ErrLedgerPaused()
	}
	if amount > state.SettlementCeiling {
		return nil, apperror.ErrOverCeiling()
	}

	now := s.now()
	state.SettlementHeld += amount
	state.UpdatedAt = now
	if err := s.ledgerRepo.UpdateState(ctx, dbTx, state); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update ledger state: %w", err))
	}

	account, err := s.creditAccount(ctx, dbTx, from, now, func(a *domain.LedgerAccount) {
		a.DepositedSettlement += amount
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordEvent(ctx, dbTx, domain.EventSettlementDeposit, &from, &amount, nil); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("from", from.String()).
		Int64("amount", amount).
		Msg("settlement deposit")

	return account, nil
}

// WithdrawSettlement pays settlement funds out to a recipient. Authorized
// callers and the owner only. The sent counter and the holdings debit are
// recorded before the payout is issued.
func (s *LedgerServiceImpl) WithdrawSettlement(ctx context.Context, caller uuid.UUID, to uuid.UUID, amount int64) (*domain.LedgerAccount, error) {
	if amount <= 0 {
		return nil, apperror.ErrZeroAmount()
	}
	if to == uuid.Nil {
		return nil, apperror.ErrNullRecipient()
	}
	allowed, err := s.canWithdraw(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.ErrUnauthorizedWithdrawal()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.ledgerRepo.GetStateForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock ledger state: %w", err))
	}
	if state.Paused {
		return nil, apperror.ErrLedgerPaused()
	}
	if state.SettlementHeld < amount {
		return nil, apperror.ErrInsufficientHoldings()
	}

	now := s.now()
	state.SettlementHeld -= amount
	state.UpdatedAt = now
	if err := s.ledgerRepo.UpdateState(ctx, dbTx, state); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update ledger state: %w", err))
	}

	account, err := s.creditAccount(ctx, dbTx, to, now, func(a *domain.LedgerAccount) {
		a.SentSettlement += amount
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordEvent(ctx, dbTx, domain.EventSettlementWithdrawal, &caller, &amount, map[string]interface{}{
		"to": to,
	}); err != nil {
		return nil, err
	}

	// Interaction last: a payout failure aborts the transaction and leaves
	// counters and holdings untouched.
	if err := s.settlement.Payout(ctx, to, amount); err != nil {
		return nil, apperror.ErrTransferFailed(fmt.Errorf("settlement payout: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("caller", caller.String()).
		Str("to", to.String()).
		Int64("amount", amount).
		Msg("settlement withdrawal")

	return account, nil
}

// DepositToken pulls tokens from the caller into the custodian.
func (s *LedgerServiceImpl) DepositToken(ctx context.Context, caller uuid.UUID, amount int64) (*domain.LedgerAccount, error) {
	if amount <= 0 {
		return nil, apperror.ErrZeroAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.ledgerRepo.GetStateForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock ledger state: %w", err))
	}
	if state.Paused {
		return nil, apperror.ErrLedgerPaused()
	}
	if amount > state.TokenCeiling {
		return nil, apperror.ErrOverCeiling()
	}

	now := s.now()
	state.TokenHeld += amount
	state.UpdatedAt = now
	if err := s.ledgerRepo.UpdateState(ctx, dbTx, state); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update ledger state: %w", err))
	}

	account, err := s.creditAccount(ctx, dbTx, caller, now, func(a *domain.LedgerAccount) {
		a.DepositedToken += amount
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordEvent(ctx, dbTx, domain.EventTokenDeposit, &caller, &amount, nil); err != nil {
		return nil, err
	}

	// Pull the tokens from the caller after all bookkeeping is written.
	if err := s.tokenClient.TransferFrom(ctx, caller, s.custodian, amount); err != nil {
		return nil, apperror.ErrTransferFailed(fmt.Errorf("token transfer from: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("from", caller.String()).
		Int64("amount", amount).
		Msg("token deposit")

	return account, nil
}

// WithdrawToken transfers tokens out of the custodian. Authorized callers
// and the owner only.
func (s *LedgerServiceImpl) WithdrawToken(ctx context.Context, caller uuid.UUID, to uuid.UUID, amount int64) (*domain.LedgerAccount, error) {
	if amount <= 0 {
		return nil, apperror.ErrZeroAmount()
	}
	if to == uuid.Nil {
		return nil, apperror.ErrNullRecipient()
	}
	allowed, err := s.canWithdraw(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.ErrUnauthorizedWithdrawal()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.ledgerRepo.GetStateForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock ledger state: %w", err))
	}
	if state.Paused {
		return nil, apperror.ErrLedgerPaused()
	}
	if state.TokenHeld < amount {
		return nil, apperror.ErrInsufficientHoldings()
	}

	now := s.now()
	state.TokenHeld -= amount
	state.UpdatedAt = now
	if err := s.ledgerRepo.UpdateState(ctx, dbTx, state); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update ledger state: %w", err))
	}

	account, err := s.creditAccount(ctx, dbTx, to, now, func(a *domain.LedgerAccount) {
		a.SentToken += amount
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordEvent(ctx, dbTx, domain.EventTokenWithdrawal, &caller, &amount, map[string]interface{}{
		"to": to,
	}); err != nil {
		return nil, err
	}

	if err := s.tokenClient.Transfer(ctx, to, amount); err != nil {
		return nil, apperror.ErrTransferFailed(fmt.Errorf("token transfer: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("caller", caller.String()).
		Str("to", to.String()).
		Int64("amount", amount).
		Msg("token withdrawal")

	return account, nil
}

// SetAuthorized grants or revokes withdrawal rights. Idempotent. The set
// membership change and its audit event commit together.
func (s *LedgerServiceImpl) SetAuthorized(ctx context.Context, actor uuid.UUID, address uuid.UUID, enabled bool) error {
	if err := s.requireOwner(ctx, actor); err != nil {
		return err
	}
	if address == uuid.Nil {
		return apperror.ErrNullRecipient()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.ledgerRepo.SetAuthorized(ctx, dbTx, address, enabled); err != nil {
		return apperror.InternalError(fmt.Errorf("set authorized: %w", err))
	}
	if err := s.recordEvent(ctx, dbTx, domain.EventAuthorizationSet, &actor, nil, map[string]interface{}{
		"address": address,
		"enabled": enabled,
	}); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// SetLimits updates the per-transaction deposit ceilings, effective for
// subsequent deposits immediately.
func (s *LedgerServiceImpl) SetLimits(ctx context.Context, actor uuid.UUID, tokenCeiling, settlementCeiling int64) error {
	if err := s.requireOwner(ctx, actor); err != nil {
		return err
	}
	if tokenCeiling <= 0 || settlementCeiling <= 0 {
		return apperror.ErrZeroAmount()
	}
	return s.updateState(ctx, actor, domain.EventLimitsSet, map[string]interface{}{
		"token_ceiling":      tokenCeiling,
		"settlement_ceiling": settlementCeiling,
	}, func(state *domain.LedgerState) {
		state.TokenCeiling = tokenCeiling
		state.SettlementCeiling = settlementCeiling
	})
}

// SetPaused toggles the ledger pause gate. Queries stay available.
func (s *LedgerServiceImpl) SetPaused(ctx context.Context, actor uuid.UUID, paused bool) error {
	if err := s.requireOwner(ctx, actor); err != nil {
		return err
	}
	kind := domain.EventPaused
	if !paused {
		kind = domain.EventUnpaused
	}
	return s.updateState(ctx, actor, kind, map[string]interface{}{"component": "ledger"}, func(state *domain.LedgerState) {
		state.Paused = paused
	})
}

// Balances returns the ledger's current holdings and ceilings.
func (s *LedgerServiceImpl) Balances(ctx context.Context) (*domain.LedgerState, error) {
	state, err := s.ledgerRepo.GetState(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get ledger state: %w", err))
	}
	return state, nil
}

// AccountOf returns the per-account counters for an address.
func (s *LedgerServiceImpl) AccountOf(ctx context.Context, address uuid.UUID) (*domain.LedgerAccount, error) {
	account, err := s.ledgerRepo.GetAccount(ctx, address)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get ledger account: %w", err))
	}
	if account == nil {
		account = &domain.LedgerAccount{Address: address}
	}
	return account, nil
}

// IsAuthorized reports authorization set membership.
func (s *LedgerServiceImpl) IsAuthorized(ctx context.Context, address uuid.UUID) (bool, error) {
	authorized, err := s.ledgerRepo.IsAuthorized(ctx, address)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("check authorization: %w", err))
	}
	return authorized, nil
}

// creditAccount applies a counter mutation to a ledger account row under
// lock, creating the row on first touch.
func (s *LedgerServiceImpl) creditAccount(ctx context.Context, dbTx pgx.Tx, address uuid.UUID, now time.Time, mutate func(*domain.LedgerAccount)) (*domain.LedgerAccount, error) {
	account, err := s.ledgerRepo.GetAccountForUpdate(ctx, dbTx, address)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock ledger account: %w", err))
	}
	if account == nil {
		account = &domain.LedgerAccount{Address: address, CreatedAt: now}
	}
	mutate(account)
	account.UpdatedAt = now
	if err := s.ledgerRepo.UpsertAccount(ctx, dbTx, account); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update ledger account: %w", err))
	}
	return account, nil
}

// updateState applies a mutation to the ledger state row under lock and
// records the matching event in the same transaction.
func (s *LedgerServiceImpl) updateState(ctx context.Context, actor uuid.UUID, kind domain.EventKind, details map[string]interface{}, mutate func(*domain.LedgerState)) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.ledgerRepo.GetStateForUpdate(ctx, dbTx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock ledger state: %w", err))
	}
	mutate(state)
	state.UpdatedAt = s.now()
	if err := s.ledgerRepo.UpdateState(ctx, dbTx, state); err != nil {
		return apperror.InternalError(fmt.Errorf("update ledger state: %w", err))
	}
	if err := s.recordEvent(ctx, dbTx, kind, &actor, nil, details); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *LedgerServiceImpl) recordEvent(ctx context.Context, dbTx pgx.Tx, kind domain.EventKind, actor *uuid.UUID, amount *int64, details map[string]interface{}) error {
	event := &domain.Event{
		ID:        uuid.New(),
		Kind:      kind,
		Actor:     actor,
		Amount:    amount,
		CreatedAt: s.now(),
	}
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("marshal event details: %w", err))
		}
		event.Details = string(b)
	}
	if err := s.eventRepo.Create(ctx, dbTx, event); err != nil {
		return apperror.InternalError(fmt.Errorf("record event: %w", err))
	}
	return nil
}

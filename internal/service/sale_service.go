package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"token-sale-engine/internal/core/domain"
	"token-sale-engine/internal/core/ports"
	"token-sale-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const purchaseIdempotencyTTL = 24 * time.Hour

// SalePolicy holds the engine-wide sale limits loaded from configuration.
type SalePolicy struct {
	GlobalHardCap    int64
	MinRate          int64
	MaxRate          int64
	MinIndividualCap int64
	MaxIndividualCap int64
	MinSoftCap       int64
	MaxSoftCap       int64
}

// SaleServiceImpl implements ports.SaleService.
//
// Every mutating operation runs inside one database transaction with
// FOR UPDATE locks on the rows it touches, so callers observe either all of
// its effects or none. Outbound transfers are issued only after all
// bookkeeping has been written inside the transaction; a transfer failure
// rolls the whole operation back.
type SaleServiceImpl struct {
	accountRepo  ports.AccountRepository
	roundRepo    ports.RoundRepository
	investorRepo ports.InvestorRepository
	saleRepo     ports.SaleStateRepository
	ledgerRepo   ports.LedgerRepository
	eventRepo    ports.EventRepository
	idempCache   ports.IdempotencyCache
	tokenClient  ports.TokenClient
	settlement   ports.SettlementClient
	transactor   ports.DBTransactor
	policy       SalePolicy
	log          zerolog.Logger
	now          func() time.Time
}

// NewSaleService creates a new SaleServiceImpl.
func NewSaleService(
	accountRepo ports.AccountRepository,
	roundRepo ports.RoundRepository,
	investorRepo ports.InvestorRepository,
	saleRepo ports.SaleStateRepository,
	ledgerRepo ports.LedgerRepository,
	eventRepo ports.EventRepository,
	idempCache ports.IdempotencyCache,
	tokenClient ports.TokenClient,
	settlement ports.SettlementClient,
	transactor ports.DBTransactor,
	policy SalePolicy,
	log zerolog.Logger,
) *SaleServiceImpl {
	return &SaleServiceImpl{
		accountRepo:  accountRepo,
		roundRepo:    roundRepo,
		investorRepo: investorRepo,
		saleRepo:     saleRepo,
		ledgerRepo:   ledgerRepo,
		eventRepo:    eventRepo,
		idempCache:   idempCache,
		tokenClient:  tokenClient,
		settlement:   settlement,
		transactor:   transactor,
		policy:       policy,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// requireOwner verifies the actor is the sale owner.
func (s *SaleServiceImpl) requireOwner(ctx context.Context, actor uuid.UUID) error {
	account, err := s.accountRepo.GetByID(ctx, actor)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("fetch actor: %w", err))
	}
	if account == nil || !account.IsOwner() {
		return apperror.ErrOwnerOnly()
	}
	return nil
}

// CreateRound appends a new inactive round. The aggregate hard-cap check
// uses the running accumulator on the sale state, not a scan over rounds.
func (s *SaleServiceImpl) CreateRound(ctx context.Context, actor uuid.UUID, req ports.CreateRoundRequest) (*domain.Round, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return nil, err
	}
	if req.Rate < s.policy.MinRate || req.Rate > s.policy.MaxRate {
		return nil, apperror.ErrInvalidRate()
	}
	if req.HardCap <= 0 || req.MinBuy <= 0 || req.MaxBuy <= 0 {
		return nil, apperror.ErrZeroAmount()
	}
	if req.MinBuy > req.MaxBuy {
		return nil, apperror.Validation("min_buy must not exceed max_buy")
	}
	now := s.now()
	if !req.StartTime.Before(req.EndTime) {
		return nil, apperror.ErrInvalidTimeRange()
	}
	if req.StartTime.Before(now) {
		return nil, apperror.ErrInvalidTimeRange()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.saleRepo.GetForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock sale state: %w", err))
	}
	if state.Paused {
		return nil, apperror.ErrSalePaused()
	}
	if state.Finalized() {
		return nil, apperror.ErrSaleFinalized()
	}
	if state.HardCapAllocated+req.HardCap > s.policy.GlobalHardCap {
		return nil, apperror.ErrGlobalCapExceeded()
	}

	round := &domain.Round{
		ID:            state.TotalRounds + 1,
		Rate:          req.Rate,
		HardCap:       req.HardCap,
		MinBuy:        req.MinBuy,
		MaxBuy:        req.MaxBuy,
		StartTime:     req.StartTime.UTC(),
		EndTime:       req.EndTime.UTC(),
		WhitelistOnly: req.WhitelistOnly,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.roundRepo.Create(ctx, dbTx, round); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create round: %w", err))
	}

	state.TotalRounds++
	state.HardCapAllocated += req.HardCap
	state.UpdatedAt = now
	if err := s.saleRepo.Update(ctx, dbTx, state); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update sale state: %w", err))
	}

	if err := s.recordEvent(ctx, dbTx, domain.EventRoundCreated, &actor, &round.ID, &req.HardCap, map[string]interface{}{
		"rate":           req.Rate,
		"min_buy":        req.MinBuy,
		"max_buy":        req.MaxBuy,
		"start_time":     round.StartTime,
		"end_time":       round.EndTime,
		"whitelist_only": req.WhitelistOnly,
	}); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Int64("round_id", round.ID).
		Int64("hard_cap", round.HardCap).
		Int64("rate", round.Rate).
		Msg("round created")

	return round, nil
}

// ActivateRound makes the target round the single active round, deactivating
// any previously active round in the same operation.
func (s *SaleServiceImpl) ActivateRound(ctx context.Context, actor uuid.UUID, roundID int64) (*domain.Round, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return nil, err
	}
	if roundID <= 0 {
		return nil, apperror.ErrInvalidRoundID()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.saleRepo.GetForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock sale state: %w", err))
	}
	if state.Paused {
		return nil, apperror.ErrSalePaused()
	}
	if state.Finalized() {
		return nil, apperror.ErrSaleFinalized()
	}
	if roundID > state.TotalRounds {
		return nil, apperror.ErrInvalidRoundID()
	}

	round, err := s.roundRepo.GetByIDForUpdate(ctx, dbTx, roundID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock round: %w", err))
	}
	if round == nil {
		return nil, apperror.ErrInvalidRoundID()
	}
	now := s.now()
	if round.StartTime.After(now) {
		return nil, apperror.ErrRoundNotStarted()
	}
	if round.Active {
		return nil, apperror.ErrRoundAlreadyActive()
	}

	// Deactivate the previously active round first; at most one round is
	// ever observed active.
	if state.CurrentRound != 0 && state.CurrentRound != roundID {
		prev, err := s.roundRepo.GetByIDForUpdate(ctx, dbTx, state.CurrentRound)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock previous round: %w", err))
		}
		if prev != nil && prev.Active {
			prev.Active = false
			prev.UpdatedAt = now
			if err := s.roundRepo.Update(ctx, dbTx, prev); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("deactivate previous round: %w", err))
			}
		}
	}

	round.Active = true
	round.UpdatedAt = now
	if err := s.roundRepo.Update(ctx, dbTx, round); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("activate round: %w", err))
	}

	state.CurrentRound = roundID
	state.UpdatedAt = now
	if err := s.saleRepo.Update(ctx, dbTx, state); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update sale state: %w", err))
	}

	if err := s.recordEvent(ctx, dbTx, domain.EventRoundActivated, &actor, &roundID, nil, nil); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Int64("round_id", roundID).Msg("round activated")

	return round, nil
}

// BuyTokens executes a purchase against the active round. On success the
// settlement amount is forwarded into the custodial ledger and the token
// amount is transferred to the buyer from the engine's working balance.
func (s *SaleServiceImpl) BuyTokens(ctx context.Context, req ports.PurchaseRequest) (*ports.PurchaseResult, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrZeroAmount()
	}

	var idempKey string
	if req.ReferenceID != "" {
		idempKey = domain.BuildPurchaseKey(req.Buyer, req.ReferenceID)
		cached, err := s.idempCache.Get(ctx, idempKey)
		if err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("idempotency check failed, proceeding")
		}
		if cached != nil {
			result := &ports.PurchaseResult{}
			if err := json.Unmarshal(cached, result); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("unmarshal cached purchase: %w", err))
			}
			return result, nil
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.saleRepo.GetForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock sale state: %w", err))
	}
	if state.Paused {
		return nil, apperror.ErrSalePaused()
	}
	if state.Finalized() {
		return nil, apperror.ErrSaleFinalized()
	}
	if state.CurrentRound == 0 {
		return nil, apperror.ErrNoActiveRound()
	}

	round, err := s.roundRepo.GetByIDForUpdate(ctx, dbTx, state.CurrentRound)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock round: %w", err))
	}
	if round == nil || !round.Active {
		return nil, apperror.ErrNoActiveRound()
	}

	now := s.now()
	if !round.InWindow(now) {
		return nil, apperror.ErrOutOfTimeWindow()
	}
	if req.Amount < round.MinBuy {
		return nil, apperror.ErrBelowMinBuy()
	}
	if req.Amount > round.MaxBuy {
		return nil, apperror.ErrAboveMaxBuy()
	}

	investor, err := s.investorRepo.GetByAddressForUpdate(ctx, dbTx, req.Buyer)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock investor: %w", err))
	}
	if investor == nil {
		investor = &domain.Investor{Address: req.Buyer, CreatedAt: now}
	}
	if round.WhitelistOnly && !investor.Whitelisted {
		return nil, apperror.ErrNotWhitelisted()
	}
	if round.Raised+req.Amount > round.HardCap {
		return nil, apperror.ErrRoundCapExceeded()
	}
	if state.TotalRaised+req.Amount > s.policy.GlobalHardCap {
		return nil, apperror.ErrGlobalCapExceeded()
	}
	if investor.TotalContributed+req.Amount > state.IndividualCap {
		return nil, apperror.ErrIndividualCapExceeded()
	}

	// The token amount must stay representable in int64.
	if req.Amount > math.MaxInt64/round.Rate {
		return nil, apperror.ErrTokenOverflow()
	}
	tokens := req.Amount * round.Rate

	// Effects: all bookkeeping is written before the token transfer.
	investor.TotalContributed += req.Amount
	investor.TokensReceived += tokens
	investor.LastPurchaseAt = &now
	investor.UpdatedAt = now
	if err := s.investorRepo.Upsert(ctx, dbTx, investor); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update investor: %w", err))
	}

	round.Raised += req.Amount
	completed := round.Raised == round.HardCap
	if completed {
		// Hard cap hit exactly: the round closes in the same operation.
		round.Active = false
		round.Completed = true
	}
	round.UpdatedAt = now
	if err := s.roundRepo.Update(ctx, dbTx, round); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update round: %w", err))
	}

	state.TotalRaised += req.Amount
	if completed {
		state.CurrentRound = 0
	}
	state.UpdatedAt = now
	if err := s.saleRepo.Update(ctx, dbTx, state); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update sale state: %w", err))
	}

	// Forward the settlement amount into the custodial ledger, attributed
	// to the buyer.
	if err := s.creditLedgerDeposit(ctx, dbTx, req.Buyer, req.Amount, now); err != nil {
		return nil, err
	}

	if err := s.recordEvent(ctx, dbTx, domain.EventTokensPurchased, &req.Buyer, &round.ID, &req.Amount, map[string]interface{}{
		"tokens":       tokens,
		"rate":         round.Rate,
		"reference_id": req.ReferenceID,
		"client_ip":    req.ClientIP,
	}); err != nil {
		return nil, err
	}
	if completed {
		if err := s.recordEvent(ctx, dbTx, domain.EventRoundCompleted, nil, &round.ID, &round.Raised, nil); err != nil {
			return nil, err
		}
	}

	// Interaction: token transfer to the buyer happens last. A failure here
	// aborts the transaction and leaves no partial state.
	if err := s.tokenClient.Transfer(ctx, req.Buyer, tokens); err != nil {
		return nil, apperror.ErrTransferFailed(fmt.Errorf("token transfer: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	result := &ports.PurchaseResult{
		RoundID:        round.ID,
		Buyer:          req.Buyer,
		Amount:         req.Amount,
		TokensIssued:   tokens,
		RoundRaised:    round.Raised,
		TotalRaised:    state.TotalRaised,
		RoundCompleted: completed,
		ProcessedAt:    now,
	}

	if idempKey != "" {
		respJSON, err := json.Marshal(result)
		if err == nil {
			if err := s.idempCache.Set(ctx, idempKey, respJSON, purchaseIdempotencyTTL); err != nil {
				s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache purchase result")
			}
		}
	}

	s.log.Info().
		Str("buyer", req.Buyer.String()).
		Int64("round_id", round.ID).
		Int64("amount", req.Amount).
		Int64("tokens", tokens).
		Bool("round_completed", completed).
		Msg("purchase processed")

	return result, nil
}

// creditLedgerDeposit credits the custodian's holdings and the buyer's
// deposited counter inside the purchase transaction. This is the sale-side
// entry into the ledger's deposit path; the per-transaction ceiling applies
// only to direct deposits.
func (s *SaleServiceImpl) creditLedgerDeposit(ctx context.Context, dbTx pgx.Tx, from uuid.UUID, amount int64, now time.Time) error {
	ledgerState, err := s.ledgerRepo.GetStateForUpdate(ctx, dbTx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock ledger state: %w", err))
	}
	if ledgerState.Paused {
		return apperror.ErrLedgerPaused()
	}
	ledgerState.SettlementHeld += amount
	ledgerState.UpdatedAt = now
	if err := s.ledgerRepo.UpdateState(ctx, dbTx, ledgerState); err != nil {
		return apperror.InternalError(fmt.Errorf("update ledger state: %w", err))
	}

	account, err := s.ledgerRepo.GetAccountForUpdate(ctx, dbTx, from)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock ledger account: %w", err))
	}
	if account == nil {
		account = &domain.LedgerAccount{Address: from, CreatedAt: now}
	}
	account.DepositedSettlement += amount
	account.UpdatedAt = now
	if err := s.ledgerRepo.UpsertAccount(ctx, dbTx, account); err != nil {
		return apperror.InternalError(fmt.Errorf("update ledger account: %w", err))
	}
	return nil
}

// FinalizeSale latches the terminal sale state exactly once. No funds move:
// every purchase already forwarded its settlement into the ledger.
func (s *SaleServiceImpl) FinalizeSale(ctx context.Context, actor uuid.UUID) (*domain.SaleState, error) {
	if err := s.requireOwner(ctx, actor); err != nil {
		return nil, err
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.saleRepo.GetForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock sale state: %w", err))
	}
	if state.Finalized() {
		return nil, apperror.ErrSaleFinalized()
	}

	now := s.now()
	if state.CurrentRound != 0 {
		round, err := s.roundRepo.GetByIDForUpdate(ctx, dbTx, state.CurrentRound)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock round: %w", err))
		}
		if round != nil && round.Active {
			// An active round inside its window blocks finalize. A round
			// whose window elapsed is expired; its flag is cleared here.
			if !now.After(round.EndTime) {
				return nil, apperror.ErrRoundStillActive()
			}
			round.Active = false
			round.UpdatedAt = now
			if err := s.roundRepo.Update(ctx, dbTx, round); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("expire round: %w", err))
			}
		}
	}

	if state.TotalRaised >= state.SoftCap {
		state.Status = domain.SaleStatusSucceeded
	} else {
		state.Status = domain.SaleStatusFailed
	}
	state.CurrentRound = 0
	state.UpdatedAt = now
	if err := s.saleRepo.Update(ctx, dbTx, state); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update sale state: %w", err))
	}

	if err := s.recordEvent(ctx, dbTx, domain.EventSaleFinalized, &actor, nil, &state.TotalRaised, map[string]interface{}{
		"status":   state.Status,
		"soft_cap": state.SoftCap,
	}); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("status", string(state.Status)).
		Int64("total_raised", state.TotalRaised).
		Int64("soft_cap", state.SoftCap).
		Msg("sale finalized")

	return state, nil
}

// Refund returns a failed-sale contribution to the caller. The recorded
// contribution is zeroed before the payout is issued, so a re-entrant call
// arriving mid-payout observes no remaining contribution. Tokens already
// distributed are not clawed back.
func (s *SaleServiceImpl) Refund(ctx context.Context, caller uuid.UUID) (*ports.RefundResult, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.saleRepo.GetForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock sale state: %w", err))
	}
	// Entitlement is re-derived from the soft-cap comparison on every call.
	if !state.RefundsOpen() {
		return nil, apperror.ErrRefundUnavailable()
	}

	investor, err := s.investorRepo.GetByAddressForUpdate(ctx, dbTx, caller)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock investor: %w", err))
	}
	if investor == nil || investor.TotalContributed == 0 {
		return nil, apperror.ErrNoContribution()
	}

	amount := investor.TotalContributed
	now := s.now()

	// Effects: zero the contribution before anything leaves the ledger.
	investor.TotalContributed = 0
	investor.UpdatedAt = now
	if err := s.investorRepo.Upsert(ctx, dbTx, investor); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("zero contribution: %w", err))
	}

	ledgerState, err := s.ledgerRepo.GetStateForUpdate(ctx, dbTx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock ledger state: %w", err))
	}
	// A paused ledger blocks the payout path just like direct withdrawals.
	if ledgerState.Paused {
		return nil, apperror.ErrLedgerPaused()
	}
	if ledgerState.SettlementHeld < amount {
		return nil, apperror.ErrInsufficientHoldings()
	}
	ledgerState.SettlementHeld -= amount
	ledgerState.UpdatedAt = now
	if err := s.ledgerRepo.UpdateState(ctx, dbTx, ledgerState); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update ledger state: %w", err))
	}

	account, err := s.ledgerRepo.GetAccountForUpdate(ctx, dbTx, caller)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock ledger account: %w", err))
	}
	if account == nil {
		account = &domain.LedgerAccount{Address: caller, CreatedAt: now}
	}
	account.SentSettlement += amount
	account.UpdatedAt = now
	if err := s.ledgerRepo.UpsertAccount(ctx, dbTx, account); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update ledger account: %w", err))
	}

	if err := s.recordEvent(ctx, dbTx, domain.EventRefundIssued, &caller, nil, &amount, nil); err != nil {
		return nil, err
	}

	// Interaction: the settlement payout is issued last; failure aborts the
	// whole refund with the contribution intact.
	if err := s.settlement.Payout(ctx, caller, amount); err != nil {
		return nil, apperror.ErrTransferFailed(fmt.Errorf("settlement payout: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("caller", caller.String()).
		Int64("amount", amount).
		Msg("refund processed")

	return &ports.RefundResult{Caller: caller, Amount: amount, ProcessedAt: now}, nil
}

// SetWhitelisted adds or removes an account from the allow-list. The flag
// flip and its audit event commit together.
func (s *SaleServiceImpl) SetWhitelisted(ctx context.Context, actor uuid.UUID, address uuid.UUID, whitelisted bool) error {
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

	if err := s.investorRepo.SetWhitelisted(ctx, dbTx, address, whitelisted); err != nil {
		return apperror.InternalError(fmt.Errorf("set whitelisted: %w", err))
	}
	if err := s.recordEvent(ctx, dbTx, domain.EventWhitelistUpdated, &actor, nil, nil, map[string]interface{}{
		"address":     address,
		"whitelisted": whitelisted,
	}); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// SetIndividualCap updates the per-investor contribution cap within policy
// bounds. Historical contributions are not re-checked against the new cap.
func (s *SaleServiceImpl) SetIndividualCap(ctx context.Context, actor uuid.UUID, cap int64) error {
	if err := s.requireOwner(ctx, actor); err != nil {
		return err
	}
	if cap < s.policy.MinIndividualCap || cap > s.policy.MaxIndividualCap {
		return apperror.Validation("individual cap outside policy bounds")
	}
	return s.updateState(ctx, actor, domain.EventCapSet, map[string]interface{}{"individual_cap": cap}, func(state *domain.SaleState) error {
		state.IndividualCap = cap
		return nil
	})
}

// SetSoftCap updates the sale soft cap within policy bounds.
func (s *SaleServiceImpl) SetSoftCap(ctx context.Context, actor uuid.UUID, cap int64) error {
	if err := s.requireOwner(ctx, actor); err != nil {
		return err
	}
	if cap < s.policy.MinSoftCap || cap > s.policy.MaxSoftCap {
		return apperror.Validation("soft cap outside policy bounds")
	}
	return s.updateState(ctx, actor, domain.EventCapSet, map[string]interface{}{"soft_cap": cap}, func(state *domain.SaleState) error {
		if state.Finalized() {
			return apperror.ErrSaleFinalized()
		}
		state.SoftCap = cap
		return nil
	})
}

// SetPaused toggles the sale-wide pause gate.
func (s *SaleServiceImpl) SetPaused(ctx context.Context, actor uuid.UUID, paused bool) error {
	if err := s.requireOwner(ctx, actor); err != nil {
		return err
	}
	kind := domain.EventPaused
	if !paused {
		kind = domain.EventUnpaused
	}
	return s.updateState(ctx, actor, kind, map[string]interface{}{"component": "sale"}, func(state *domain.SaleState) error {
		state.Paused = paused
		return nil
	})
}

// updateState applies a mutation to the sale state row under lock and
// records the matching event in the same transaction.
func (s *SaleServiceImpl) updateState(ctx context.Context, actor uuid.UUID, kind domain.EventKind, details map[string]interface{}, mutate func(*domain.SaleState) error) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	state, err := s.saleRepo.GetForUpdate(ctx, dbTx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock sale state: %w", err))
	}
	if err := mutate(state); err != nil {
		return err
	}
	state.UpdatedAt = s.now()
	if err := s.saleRepo.Update(ctx, dbTx, state); err != nil {
		return apperror.InternalError(fmt.Errorf("update sale state: %w", err))
	}
	if err := s.recordEvent(ctx, dbTx, kind, &actor, nil, nil, details); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// recordEvent persists an audit event inside the operation's transaction.
func (s *SaleServiceImpl) recordEvent(ctx context.Context, dbTx pgx.Tx, kind domain.EventKind, actor *uuid.UUID, roundID *int64, amount *int64, details map[string]interface{}) error {
	event := &domain.Event{
		ID:        uuid.New(),
		Kind:      kind,
		Actor:     actor,
		RoundID:   roundID,
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

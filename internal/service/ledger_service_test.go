package service

import (
	"context"
	"testing"
	"time"

	"token-sale-engine/internal/core/domain"
	"token-sale-engine/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc         *LedgerServiceImpl
	accountRepo *mocks.MockAccountRepository
	ledgerRepo  *mocks.MockLedgerRepository
	eventRepo   *mocks.MockEventRepository
	tokenClient *mocks.MockTokenClient
	settlement  *mocks.MockSettlementClient
	transactor  *mocks.MockDBTransactor
	custodian   uuid.UUID
	ctrl        *gomock.Controller
}

var ledgerTestNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		accountRepo: mocks.NewMockAccountRepository(ctrl),
		ledgerRepo:  mocks.NewMockLedgerRepository(ctrl),
		eventRepo:   mocks.NewMockEventRepository(ctrl),
		tokenClient: mocks.NewMockTokenClient(ctrl),
		settlement:  mocks.NewMockSettlementClient(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		custodian:   uuid.New(),
		ctrl:        ctrl,
	}
	d.svc = NewLedgerService(
		d.accountRepo, d.ledgerRepo, d.eventRepo, d.tokenClient, d.settlement,
		d.transactor, d.custodian, zerolog.Nop(),
	)
	d.svc.now = func() time.Time { return ledgerTestNow }
	return d
}

func testLedgerState() *domain.LedgerState {
	return &domain.LedgerState{
		SettlementHeld:    100_000,
		TokenHeld:         5_000_000,
		SettlementCeiling: 50_000,
		TokenCeiling:      1_000_000,
	}
}

func expectLedgerOwner(d *ledgerTestDeps, actor uuid.UUID) {
	d.accountRepo.EXPECT().GetByID(gomock.Any(), actor).Return(&domain.Account{
		ID:     actor,
		Role:   domain.RoleOwner,
		Status: domain.AccountStatusActive,
	}, nil)
}

// ==================== DepositSettlement Tests ====================

func TestLedgerService_DepositSettlement_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	from := uuid.New()
	tx := &mockTx{}

	state := testLedgerState()
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(state, nil)
	d.ledgerRepo.EXPECT().UpdateState(ctx, tx, gomock.Any()).Return(nil)
	d.ledgerRepo.EXPECT().GetAccountForUpdate(ctx, tx, from).Return(nil, nil)
	d.ledgerRepo.EXPECT().UpsertAccount(ctx, tx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	account, err := d.svc.DepositSettlement(ctx, from, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(110_000), state.SettlementHeld)
	assert.Equal(t, int64(10_000), account.DepositedSettlement)
}

func TestLedgerService_DepositSettlement_ZeroAmount(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.DepositSettlement(context.Background(), uuid.New(), 0)
	assertAppError(t, err, "LEDG_001")
}

func TestLedgerService_DepositSettlement_OverCeiling(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(testLedgerState(), nil)

	_, err := d.svc.DepositSettlement(ctx, uuid.New(), 60_000) // ceiling is 50_000
	assertAppError(t, err, "LEDG_002")
}

func TestLedgerService_DepositSettlement_Paused(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	state := testLedgerState()
	state.Paused = true
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(state, nil)

	_, err := d.svc.DepositSettlement(ctx, uuid.New(), 10_000)
	assertAppError(t, err, "LEDG_007")
}

// ==================== WithdrawSettlement Tests ====================

func TestLedgerService_WithdrawSettlement_Authorized(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	caller := uuid.New()
	to := uuid.New()
	tx := &mockTx{}

	d.ledgerRepo.EXPECT().IsAuthorized(ctx, caller).Return(true, nil)
	state := testLedgerState()
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(state, nil)
	d.ledgerRepo.EXPECT().UpdateState(ctx, tx, gomock.Any()).Return(nil)
	d.ledgerRepo.EXPECT().GetAccountForUpdate(ctx, tx, to).Return(nil, nil)
	d.ledgerRepo.EXPECT().UpsertAccount(ctx, tx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.settlement.EXPECT().Payout(ctx, to, int64(40_000)).Return(nil)

	account, err := d.svc.WithdrawSettlement(ctx, caller, to, 40_000)
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), state.SettlementHeld)
	assert.Equal(t, int64(40_000), account.SentSettlement)
}

func TestLedgerService_WithdrawSettlement_OwnerImplicitlyAllowed(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	owner := uuid.New()
	to := uuid.New()
	tx := &mockTx{}

	d.ledgerRepo.EXPECT().IsAuthorized(ctx, owner).Return(false, nil)
	expectLedgerOwner(d, owner)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(testLedgerState(), nil)
	d.ledgerRepo.EXPECT().UpdateState(ctx, tx, gomock.Any()).Return(nil)
	d.ledgerRepo.EXPECT().GetAccountForUpdate(ctx, tx, to).Return(nil, nil)
	d.ledgerRepo.EXPECT().UpsertAccount(ctx, tx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.settlement.EXPECT().Payout(ctx, to, int64(1_000)).Return(nil)

	_, err := d.svc.WithdrawSettlement(ctx, owner, to, 1_000)
	require.NoError(t, err)
}

func TestLedgerService_WithdrawSettlement_Unauthorized(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	caller := uuid.New()

	d.ledgerRepo.EXPECT().IsAuthorized(ctx, caller).Return(false, nil)
	d.accountRepo.EXPECT().GetByID(ctx, caller).Return(&domain.Account{
		ID:     caller,
		Role:   domain.RoleInvestor,
		Status: domain.AccountStatusActive,
	}, nil)

	_, err := d.svc.WithdrawSettlement(ctx, caller, uuid.New(), 1_000)
	assertAppError(t, err, "LEDG_004")
}

func TestLedgerService_WithdrawSettlement_NullRecipient(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.WithdrawSettlement(context.Background(), uuid.New(), uuid.Nil, 1_000)
	assertAppError(t, err, "LEDG_005")
}

func TestLedgerService_WithdrawSettlement_InsufficientHoldings(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	caller := uuid.New()
	tx := &mockTx{}

	d.ledgerRepo.EXPECT().IsAuthorized(ctx, caller).Return(true, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(testLedgerState(), nil)

	_, err := d.svc.WithdrawSettlement(ctx, caller, uuid.New(), 200_000) // held is 100_000
	assertAppError(t, err, "LEDG_003")
}

func TestLedgerService_WithdrawSettlement_PayoutFailureAborts(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	caller := uuid.New()
	to := uuid.New()
	tx := &mockTx{}

	d.ledgerRepo.EXPECT().IsAuthorized(ctx, caller).Return(true, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(testLedgerState(), nil)
	d.ledgerRepo.EXPECT().UpdateState(ctx, tx, gomock.Any()).Return(nil)
	d.ledgerRepo.EXPECT().GetAccountForUpdate(ctx, tx, to).Return(nil, nil)
	d.ledgerRepo.EXPECT().UpsertAccount(ctx, tx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.settlement.EXPECT().Payout(ctx, to, int64(1_000)).Return(assert.AnError)

	_, err := d.svc.WithdrawSettlement(ctx, caller, to, 1_000)
	assertAppError(t, err, "LEDG_006")
}

// ==================== Token Deposit/Withdraw Tests ====================

func TestLedgerService_DepositToken_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	caller := uuid.New()
	tx := &mockTx{}

	state := testLedgerState()
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(state, nil)
	d.ledgerRepo.EXPECT().UpdateState(ctx, tx, gomock.Any()).Return(nil)
	d.ledgerRepo.EXPECT().GetAccountForUpdate(ctx, tx, caller).Return(nil, nil)
	d.ledgerRepo.EXPECT().UpsertAccount(ctx, tx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.tokenClient.EXPECT().TransferFrom(ctx, caller, d.custodian, int64(500_000)).Return(nil)

	account, err := d.svc.DepositToken(ctx, caller, 500_000)
	require.NoError(t, err)
	assert.Equal(t, int64(5_500_000), state.TokenHeld)
	assert.Equal(t, int64(500_000), account.DepositedToken)
}

func TestLedgerService_DepositToken_OverCeiling(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(testLedgerState(), nil)

	_, err := d.svc.DepositToken(ctx, uuid.New(), 2_000_000) // ceiling is 1_000_000
	assertAppError(t, err, "LEDG_002")
}

func TestLedgerService_WithdrawToken_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	caller := uuid.New()
	to := uuid.New()
	tx := &mockTx{}

	d.ledgerRepo.EXPECT().IsAuthorized(ctx, caller).Return(true, nil)
	state := testLedgerState()
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(state, nil)
	d.ledgerRepo.EXPECT().UpdateState(ctx, tx, gomock.Any()).Return(nil)
	d.ledgerRepo.EXPECT().GetAccountForUpdate(ctx, tx, to).Return(nil, nil)
	d.ledgerRepo.EXPECT().UpsertAccount(ctx, tx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.tokenClient.EXPECT().Transfer(ctx, to, int64(1_000_000)).Return(nil)

	account, err := d.svc.WithdrawToken(ctx, caller, to, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(4_000_000), state.TokenHeld)
	assert.Equal(t, int64(1_000_000), account.SentToken)
}

func TestLedgerService_WithdrawToken_InsufficientHoldings(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	caller := uuid.New()
	tx := &mockTx{}

	d.ledgerRepo.EXPECT().IsAuthorized(ctx, caller).Return(true, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(testLedgerState(), nil)

	_, err := d.svc.WithdrawToken(ctx, caller, uuid.New(), 10_000_000)
	assertAppError(t, err, "LEDG_003")
}

// ==================== Administration Tests ====================

func TestLedgerService_SetAuthorized_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	owner := uuid.New()
	address := uuid.New()
	tx := &mockTx{}

	expectLedgerOwner(d, owner)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().SetAuthorized(ctx, tx, address, true).Return(nil)
	d.eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	err := d.svc.SetAuthorized(ctx, owner, address, true)
	require.NoError(t, err)
}

// The membership change and its audit event share one transaction: an event
// write failure aborts the whole operation instead of committing silently.
func TestLedgerService_SetAuthorized_EventWriteFailureAborts(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	owner := uuid.New()
	address := uuid.New()
	tx := &mockTx{}

	expectLedgerOwner(d, owner)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().SetAuthorized(ctx, tx, address, true).Return(nil)
	d.eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(assert.AnError)

	err := d.svc.SetAuthorized(ctx, owner, address, true)
	assertAppError(t, err, "SYS_001")
}

func TestLedgerService_SetAuthorized_NotOwner(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	actor := uuid.New()
	d.accountRepo.EXPECT().GetByID(gomock.Any(), actor).Return(&domain.Account{
		ID:     actor,
		Role:   domain.RoleInvestor,
		Status: domain.AccountStatusActive,
	}, nil)

	err := d.svc.SetAuthorized(context.Background(), actor, uuid.New(), true)
	assertAppError(t, err, "AUTH_004")
}

func TestLedgerService_SetLimits_Success(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	owner := uuid.New()
	tx := &mockTx{}

	expectLedgerOwner(d, owner)
	state := testLedgerState()
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().GetStateForUpdate(ctx, tx).Return(state, nil)
	d.ledgerRepo.EXPECT().UpdateState(ctx, tx, gomock.Any()).Return(nil)
	d.eventRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)

	err := d.svc.SetLimits(ctx, owner, 2_000_000, 80_000)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000), state.TokenCeiling)
	assert.Equal(t, int64(80_000), state.SettlementCeiling)
}

func TestLedgerService_SetLimits_ZeroCeiling(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	owner := uuid.New()
	expectLedgerOwner(d, owner)

	err := d.svc.SetLimits(context.Background(), owner, 0, 80_000)
	assertAppError(t, err, "LEDG_001")
}

// ==================== Query Tests ====================

func TestLedgerService_AccountOf_UnknownAddress(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	address := uuid.New()

	d.ledgerRepo.EXPECT().GetAccount(ctx, address).Return(nil, nil)

	account, err := d.svc.AccountOf(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, address, account.Address)
	assert.Zero(t, account.DepositedSettlement)
	assert.Zero(t, account.SentSettlement)
}

func TestLedgerService_Balances_AvailableWhilePaused(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	state := testLedgerState()
	state.Paused = true
	d.ledgerRepo.EXPECT().GetState(ctx).Return(state, nil)

	result, err := d.svc.Balances(ctx)
	require.NoError(t, err)
	assert.True(t, result.Paused)
	assert.Equal(t, int64(100_000), result.SettlementHeld)
}

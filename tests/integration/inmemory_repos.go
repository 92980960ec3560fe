package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"token-sale-engine/internal/core/domain"
	"token-sale-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// The in-memory repos return copies and apply writes on Update/Upsert, so an
// aborted operation leaves no partial state behind. They do not emulate
// row-level locks; the concurrency tests call that caveat out explicitly.

// --- In-Memory Account Repo ---

type inMemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]*domain.Account
}

func newInMemoryAccountRepo() *inMemoryAccountRepo {
	return &inMemoryAccountRepo{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (r *inMemoryAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.accounts {
		if existing.Username == account.Username {
			return fmt.Errorf("username already exists")
		}
	}
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *inMemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryAccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Username == username {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Round Repo ---

type inMemoryRoundRepo struct {
	mu     sync.RWMutex
	rounds map[int64]*domain.Round
}

func newInMemoryRoundRepo() *inMemoryRoundRepo {
	return &inMemoryRoundRepo{rounds: make(map[int64]*domain.Round)}
}

func (r *inMemoryRoundRepo) Create(ctx context.Context, tx pgx.Tx, round *domain.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rounds[round.ID]; ok {
		return fmt.Errorf("round %d already exists", round.ID)
	}
	cp := *round
	r.rounds[round.ID] = &cp
	return nil
}

func (r *inMemoryRoundRepo) GetByID(ctx context.Context, id int64) (*domain.Round, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	round, ok := r.rounds[id]
	if !ok {
		return nil, nil
	}
	cp := *round
	return &cp, nil
}

func (r *inMemoryRoundRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id int64) (*domain.Round, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryRoundRepo) Update(ctx context.Context, tx pgx.Tx, round *domain.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rounds[round.ID]; !ok {
		return fmt.Errorf("round %d not found", round.ID)
	}
	cp := *round
	r.rounds[round.ID] = &cp
	return nil
}

func (r *inMemoryRoundRepo) List(ctx context.Context) ([]domain.Round, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domain.Round, 0, len(r.rounds))
	for _, round := range r.rounds {
		result = append(result, *round)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// --- In-Memory Investor Repo ---

type inMemoryInvestorRepo struct {
	mu        sync.RWMutex
	investors map[uuid.UUID]*domain.Investor
}

func newInMemoryInvestorRepo() *inMemoryInvestorRepo {
	return &inMemoryInvestorRepo{investors: make(map[uuid.UUID]*domain.Investor)}
}

func (r *inMemoryInvestorRepo) GetByAddress(ctx context.Context, address uuid.UUID) (*domain.Investor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.investors[address]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (r *inMemoryInvestorRepo) GetByAddressForUpdate(ctx context.Context, tx pgx.Tx, address uuid.UUID) (*domain.Investor, error) {
	return r.GetByAddress(ctx, address)
}

func (r *inMemoryInvestorRepo) Upsert(ctx context.Context, tx pgx.Tx, investor *domain.Investor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *investor
	r.investors[investor.Address] = &cp
	return nil
}

func (r *inMemoryInvestorRepo) SetWhitelisted(ctx context.Context, tx pgx.Tx, address uuid.UUID, whitelisted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.investors[address]
	if !ok {
		// Allow-listing may precede the first purchase.
		inv = &domain.Investor{Address: address, CreatedAt: time.Now().UTC()}
		r.investors[address] = inv
	}
	inv.Whitelisted = whitelisted
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

// --- In-Memory Sale State Repo ---

type inMemorySaleStateRepo struct {
	mu    sync.RWMutex
	state domain.SaleState
}

func newInMemorySaleStateRepo() *inMemorySaleStateRepo {
	return &inMemorySaleStateRepo{
		state: domain.SaleState{Status: domain.SaleStatusOpen, UpdatedAt: time.Now().UTC()},
	}
}

func (r *inMemorySaleStateRepo) Get(ctx context.Context) (*domain.SaleState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := r.state
	return &cp, nil
}

func (r *inMemorySaleStateRepo) GetForUpdate(ctx context.Context, tx pgx.Tx) (*domain.SaleState, error) {
	return r.Get(ctx)
}

func (r *inMemorySaleStateRepo) Update(ctx context.Context, tx pgx.Tx, state *domain.SaleState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = *state
	return nil
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu         sync.RWMutex
	state      domain.LedgerState
	accounts   map[uuid.UUID]*domain.LedgerAccount
	authorized map[uuid.UUID]bool
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{
		state:      domain.LedgerState{UpdatedAt: time.Now().UTC()},
		accounts:   make(map[uuid.UUID]*domain.LedgerAccount),
		authorized: make(map[uuid.UUID]bool),
	}
}

func (r *inMemoryLedgerRepo) GetState(ctx context.Context) (*domain.LedgerState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := r.state
	return &cp, nil
}

func (r *inMemoryLedgerRepo) GetStateForUpdate(ctx context.Context, tx pgx.Tx) (*domain.LedgerState, error) {
	return r.GetState(ctx)
}

func (r *inMemoryLedgerRepo) UpdateState(ctx context.Context, tx pgx.Tx, state *domain.LedgerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = *state
	return nil
}

func (r *inMemoryLedgerRepo) GetAccount(ctx context.Context, address uuid.UUID) (*domain.LedgerAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[address]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *inMemoryLedgerRepo) GetAccountForUpdate(ctx context.Context, tx pgx.Tx, address uuid.UUID) (*domain.LedgerAccount, error) {
	return r.GetAccount(ctx, address)
}

func (r *inMemoryLedgerRepo) UpsertAccount(ctx context.Context, tx pgx.Tx, account *domain.LedgerAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[account.Address] = &cp
	return nil
}

func (r *inMemoryLedgerRepo) SetAuthorized(ctx context.Context, tx pgx.Tx, address uuid.UUID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if enabled {
		r.authorized[address] = true
	} else {
		delete(r.authorized, address)
	}
	return nil
}

func (r *inMemoryLedgerRepo) IsAuthorized(ctx context.Context, address uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authorized[address], nil
}

// --- In-Memory Event Repo ---

type inMemoryEventRepo struct {
	mu     sync.RWMutex
	events []domain.Event
}

func newInMemoryEventRepo() *inMemoryEventRepo {
	return &inMemoryEventRepo{}
}

func (r *inMemoryEventRepo) Create(ctx context.Context, tx pgx.Tx, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *inMemoryEventRepo) List(ctx context.Context, params ports.EventListParams) ([]domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Event
	for i := len(r.events) - 1; i >= 0; i-- { // newest first
		e := r.events[i]
		if params.Kind != nil && e.Kind != *params.Kind {
			continue
		}
		if params.Actor != nil && (e.Actor == nil || *e.Actor != *params.Actor) {
			continue
		}
		if params.RoundID != nil && (e.RoundID == nil || *e.RoundID != *params.RoundID) {
			continue
		}
		result = append(result, e)
	}

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Event{}, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }

// --- Fake transfer rails ---

// fakeTokenRail records token movements instead of calling the external rail.
type fakeTokenRail struct {
	mu        sync.Mutex
	balances  map[uuid.UUID]int64
	failNext  bool
	transfers int
}

func newFakeTokenRail() *fakeTokenRail {
	return &fakeTokenRail{balances: make(map[uuid.UUID]int64)}
}

func (f *fakeTokenRail) Transfer(ctx context.Context, to uuid.UUID, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return fmt.Errorf("token rail unavailable")
	}
	f.balances[to] += amount
	f.transfers++
	return nil
}

func (f *fakeTokenRail) TransferFrom(ctx context.Context, from uuid.UUID, to uuid.UUID, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return fmt.Errorf("token rail unavailable")
	}
	f.balances[from] -= amount
	f.balances[to] += amount
	f.transfers++
	return nil
}

func (f *fakeTokenRail) BalanceOf(ctx context.Context, account uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[account], nil
}

// fakeSettlementRail records settlement payouts.
type fakeSettlementRail struct {
	mu       sync.Mutex
	payouts  map[uuid.UUID]int64
	failNext bool
}

func newFakeSettlementRail() *fakeSettlementRail {
	return &fakeSettlementRail{payouts: make(map[uuid.UUID]int64)}
}

func (f *fakeSettlementRail) Payout(ctx context.Context, to uuid.UUID, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return fmt.Errorf("settlement rail unavailable")
	}
	f.payouts[to] += amount
	return nil
}

func (f *fakeSettlementRail) payoutTo(to uuid.UUID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payouts[to]
}

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpHandler "token-sale-engine/internal/adapter/http/handler"
	redisStorage "token-sale-engine/internal/adapter/storage/redis"
	"token-sale-engine/internal/core/domain"
	"token-sale-engine/internal/core/ports"
	"token-sale-engine/internal/service"
	"token-sale-engine/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds a full application stack: real HTTP layer, middleware,
// handlers and services, backed by in-memory repos, miniredis for the
// idempotency cache and rate limiter, and fake transfer rails.

const (
	ownerUsername = "sale_owner"
	ownerPassword = "OwnerPass123!"
	railSecret    = "test-rail-shared-secret"
)

type testApp struct {
	server     *httptest.Server
	redis      *miniredis.Miniredis
	tokenRail  *fakeTokenRail
	settlement *fakeSettlementRail
	ownerID    uuid.UUID
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")

	accountRepo := newInMemoryAccountRepo()
	roundRepo := newInMemoryRoundRepo()
	investorRepo := newInMemoryInvestorRepo()
	saleStateRepo := newInMemorySaleStateRepo()
	ledgerRepo := newInMemoryLedgerRepo()
	eventRepo := newInMemoryEventRepo()
	transactor := newInMemoryTransactor()

	tokenRail := newFakeTokenRail()
	settlementRail := newFakeSettlementRail()

	log := logger.New("debug", false)
	custodian := uuid.New()

	authSvc := service.NewAuthService(accountRepo, hashSvc, tokenSvc)
	saleSvc := service.NewSaleService(
		accountRepo, roundRepo, investorRepo, saleStateRepo, ledgerRepo, eventRepo,
		idempotencyCache, tokenRail, settlementRail, transactor,
		service.SalePolicy{
			GlobalHardCap:    10_000_000,
			MinRate:          1,
			MaxRate:          1_000_000,
			MinIndividualCap: 1,
			MaxIndividualCap: 10_000_000,
			MinSoftCap:       1,
			MaxSoftCap:       10_000_000,
		},
		log,
	)
	ledgerSvc := service.NewLedgerService(accountRepo, ledgerRepo, eventRepo, tokenRail, settlementRail, transactor, custodian, log)
	reportingSvc := service.NewReportingService(saleStateRepo, roundRepo, investorRepo, eventRepo)

	// Seed the owner account the way first boot does.
	ownerHash, err := hashSvc.Hash(ownerPassword)
	require.NoError(t, err)
	now := time.Now().UTC()
	owner := &domain.Account{
		ID:           uuid.New(),
		Username:     ownerUsername,
		PasswordHash: ownerHash,
		Role:         domain.RoleOwner,
		Status:       domain.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, accountRepo.Create(context.Background(), owner))

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		SaleSvc:        saleSvc,
		LedgerSvc:      ledgerSvc,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		SignatureSvc:   service.NewHMACSignatureService(),
		RailSecret:     railSecret,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		Logger:         log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:     server,
		redis:      mr,
		tokenRail:  tokenRail,
		settlement: settlementRail,
		ownerID:    owner.ID,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// --- Helpers ---

func (a *testApp) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func decodeData(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := decodeBody(t, resp)
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return data
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := decodeBody(t, resp)
	code, _ := body["error_code"].(string)
	return code
}

func (a *testApp) register(t *testing.T, username string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":"StrongPass123!"}`, username)
	resp := a.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decodeData(t, resp)
	return data["account_id"].(string)
}

func (a *testApp) login(t *testing.T, username, password string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	resp := a.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeData(t, resp)
	return data["token"].(string)
}

func (a *testApp) ownerToken(t *testing.T) string {
	t.Helper()
	return a.login(t, ownerUsername, ownerPassword)
}

// setCaps configures the sale-wide caps via the owner endpoints.
func (a *testApp) setCaps(t *testing.T, ownerTok string, softCap, individualCap int64) {
	t.Helper()
	resp := a.do(t, http.MethodPut, "/api/v1/sale/soft-cap", ownerTok, fmt.Sprintf(`{"cap":%d}`, softCap))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = a.do(t, http.MethodPut, "/api/v1/sale/individual-cap", ownerTok, fmt.Sprintf(`{"cap":%d}`, individualCap))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// createActiveRound creates a round whose window opens shortly, waits for the
// window to open and activates it. Returns the round ID.
func (a *testApp) createActiveRound(t *testing.T, ownerTok string, rate, hardCap, minBuy, maxBuy int64, window time.Duration, whitelistOnly bool) int64 {
	t.Helper()
	start := time.Now().UTC().Add(150 * time.Millisecond)
	end := start.Add(window)
	body := fmt.Sprintf(
		`{"rate":%d,"hard_cap":%d,"min_buy":%d,"max_buy":%d,"start_time":%q,"end_time":%q,"whitelist_only":%t}`,
		rate, hardCap, minBuy, maxBuy, start.Format(time.RFC3339Nano), end.Format(time.RFC3339Nano), whitelistOnly,
	)
	resp := a.do(t, http.MethodPost, "/api/v1/sale/rounds", ownerTok, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decodeData(t, resp)
	roundID := int64(data["id"].(float64))

	time.Sleep(250 * time.Millisecond) // wait for the window to open

	resp = a.do(t, http.MethodPost, fmt.Sprintf("/api/v1/sale/rounds/%d/activate", roundID), ownerTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	return roundID
}

func (a *testApp) buy(t *testing.T, token string, amount int64, referenceID string) *http.Response {
	t.Helper()
	return a.do(t, http.MethodPost, "/api/v1/sale/buy", token,
		fmt.Sprintf(`{"amount":%d,"reference_id":%q}`, amount, referenceID))
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_RegisterAndLogin(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp := app.do(t, http.MethodPost, "/api/v1/auth/register", "",
		`{"username":"investor1","password":"StrongPass123!"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decodeData(t, resp)
	assert.NotEmpty(t, data["account_id"])
	assert.Equal(t, "investor1", data["username"])
	assert.Equal(t, "INVESTOR", data["role"])

	resp = app.do(t, http.MethodPost, "/api/v1/auth/login", "",
		`{"username":"investor1","password":"StrongPass123!"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	loginData := decodeData(t, resp)
	assert.NotEmpty(t, loginData["token"])
	assert.Greater(t, loginData["expiry"].(float64), float64(time.Now().Unix()))
}

func TestIntegration_LoginWrongCredentials(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp := app.do(t, http.MethodPost, "/api/v1/auth/login", "",
		`{"username":"nobody","password":"wrongwrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "AUTH_001", errorCode(t, resp))
}

func TestIntegration_DuplicateUsername(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	body := `{"username":"investor1","password":"StrongPass123!"}`
	resp := app.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = app.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "AUTH_002", errorCode(t, resp))
}

func TestIntegration_JWT_Unauthorized(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp := app.do(t, http.MethodGet, "/api/v1/sale/position", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestIntegration_OwnerOnlyRejectsInvestor(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.register(t, "investor1")
	tok := app.login(t, "investor1", "StrongPass123!")

	resp := app.do(t, http.MethodPut, "/api/v1/sale/soft-cap", tok, `{"cap":1000}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "AUTH_004", errorCode(t, resp))
}

func TestIntegration_SaleLifecycle_HardCapFinalize(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ownerTok := app.ownerToken(t)
	app.setCaps(t, ownerTok, 50_000, 200_000)
	roundID := app.createActiveRound(t, ownerTok, 5, 100_000, 10_000, 100_000, time.Hour, false)

	buyerID := app.register(t, "buyer1")
	buyerTok := app.login(t, "buyer1", "StrongPass123!")

	// A purchase that lands exactly on the hard cap closes the round.
	resp := app.buy(t, buyerTok, 100_000, "ord-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := decodeData(t, resp)
	assert.Equal(t, float64(roundID), data["round_id"])
	assert.Equal(t, float64(500_000), data["tokens_issued"])
	assert.Equal(t, float64(100_000), data["round_raised"])
	assert.Equal(t, true, data["round_completed"])

	// The completed round auto-deactivated; a follow-up purchase finds no
	// active round.
	resp = app.buy(t, buyerTok, 10_000, "ord-2")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SALE_001", errorCode(t, resp))

	// Tokens landed on the rail for the buyer.
	buyer := uuid.MustParse(buyerID)
	balance, err := app.tokenRail.BalanceOf(context.Background(), buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), balance)

	// Settlement was forwarded into the custodial ledger.
	resp = app.do(t, http.MethodGet, "/api/v1/ledger/balances", buyerTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balances := decodeData(t, resp)
	assert.Equal(t, float64(100_000), balances["settlement_held"])

	// Public status reflects the completed round.
	resp = app.do(t, http.MethodGet, "/api/v1/sale/status", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeData(t, resp)
	state := status["state"].(map[string]interface{})
	assert.Equal(t, float64(100_000), state["total_raised"])
	assert.Equal(t, float64(0), state["current_round"])
	rounds := status["rounds"].([]interface{})
	require.Len(t, rounds, 1)
	assert.Equal(t, true, rounds[0].(map[string]interface{})["completed"])

	// Raised beat the soft cap, so finalize latches SUCCEEDED.
	resp = app.do(t, http.MethodPost, "/api/v1/sale/finalize", ownerTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	finalized := decodeData(t, resp)
	assert.Equal(t, "SUCCEEDED", finalized["status"])

	// Finalize is one-shot.
	resp = app.do(t, http.MethodPost, "/api/v1/sale/finalize", ownerTok, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SALE_014", errorCode(t, resp))

	// No refunds after a successful sale.
	resp = app.do(t, http.MethodPost, "/api/v1/sale/refund", buyerTok, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SALE_016", errorCode(t, resp))
}

func TestIntegration_RefundAfterFailedSale(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ownerTok := app.ownerToken(t)
	app.setCaps(t, ownerTok, 500_000, 1_000_000)

	// Credentials first: the round window below is deliberately short.
	buyerID := app.register(t, "buyer1")
	buyerTok := app.login(t, "buyer1", "StrongPass123!")

	app.createActiveRound(t, ownerTok, 2, 500_000, 1_000, 400_000, time.Second, false)

	resp := app.buy(t, buyerTok, 100_000, "ord-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Refunds are closed while the sale is still open.
	resp = app.do(t, http.MethodPost, "/api/v1/sale/refund", buyerTok, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SALE_016", errorCode(t, resp))

	// Let the round window elapse, then finalize below the soft cap.
	time.Sleep(1200 * time.Millisecond)
	resp = app.do(t, http.MethodPost, "/api/v1/sale/finalize", ownerTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	finalized := decodeData(t, resp)
	assert.Equal(t, "FAILED", finalized["status"])

	resp = app.do(t, http.MethodPost, "/api/v1/sale/refund", buyerTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refund := decodeData(t, resp)
	assert.Equal(t, float64(100_000), refund["amount"])

	buyer := uuid.MustParse(buyerID)
	assert.Equal(t, int64(100_000), app.settlement.payoutTo(buyer))

	// A second refund finds no remaining contribution.
	resp = app.do(t, http.MethodPost, "/api/v1/sale/refund", buyerTok, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "SALE_017", errorCode(t, resp))

	// The custodial holdings are drained back to zero.
	resp = app.do(t, http.MethodGet, "/api/v1/ledger/balances", buyerTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balances := decodeData(t, resp)
	assert.Equal(t, float64(0), balances["settlement_held"])
}

func TestIntegration_WhitelistEnforcement(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ownerTok := app.ownerToken(t)
	app.setCaps(t, ownerTok, 50_000, 200_000)
	app.createActiveRound(t, ownerTok, 3, 100_000, 1_000, 50_000, time.Hour, true)

	buyerID := app.register(t, "buyer1")
	buyerTok := app.login(t, "buyer1", "StrongPass123!")

	resp := app.buy(t, buyerTok, 10_000, "ord-1")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "SALE_005", errorCode(t, resp))

	resp = app.do(t, http.MethodPut, "/api/v1/sale/whitelist", ownerTok,
		fmt.Sprintf(`{"address":%q,"whitelisted":true}`, buyerID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.buy(t, buyerTok, 10_000, "ord-2")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestIntegration_BuyLimits(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ownerTok := app.ownerToken(t)
	app.setCaps(t, ownerTok, 50_000, 60_000)
	app.createActiveRound(t, ownerTok, 1, 500_000, 10_000, 50_000, time.Hour, false)

	app.register(t, "buyer1")
	buyerTok := app.login(t, "buyer1", "StrongPass123!")

	resp := app.buy(t, buyerTok, 5_000, "ord-1")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "SALE_003", errorCode(t, resp))

	resp = app.buy(t, buyerTok, 60_000, "ord-2")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "SALE_004", errorCode(t, resp))

	resp = app.buy(t, buyerTok, 50_000, "ord-3")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Cumulative contribution may not pass the individual cap.
	resp = app.buy(t, buyerTok, 20_000, "ord-4")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "SALE_008", errorCode(t, resp))
}

func TestIntegration_PauseBlocksPurchases(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ownerTok := app.ownerToken(t)
	app.setCaps(t, ownerTok, 50_000, 200_000)
	app.createActiveRound(t, ownerTok, 1, 500_000, 1_000, 100_000, time.Hour, false)

	app.register(t, "buyer1")
	buyerTok := app.login(t, "buyer1", "StrongPass123!")

	resp := app.do(t, http.MethodPut, "/api/v1/sale/pause", ownerTok, `{"paused":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.buy(t, buyerTok, 10_000, "ord-1")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "SALE_018", errorCode(t, resp))

	// Reads stay available while paused.
	resp = app.do(t, http.MethodGet, "/api/v1/sale/status", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.do(t, http.MethodPut, "/api/v1/sale/pause", ownerTok, `{"paused":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.buy(t, buyerTok, 10_000, "ord-2")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestIntegration_IdempotentBuy(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ownerTok := app.ownerToken(t)
	app.setCaps(t, ownerTok, 50_000, 200_000)
	app.createActiveRound(t, ownerTok, 1, 500_000, 1_000, 100_000, time.Hour, false)

	app.register(t, "buyer1")
	buyerTok := app.login(t, "buyer1", "StrongPass123!")

	resp := app.buy(t, buyerTok, 20_000, "dup-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decodeData(t, resp)

	// A retry with the same reference replays the cached result.
	resp = app.buy(t, buyerTok, 20_000, "dup-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	second := decodeData(t, resp)
	assert.Equal(t, first["processed_at"], second["processed_at"])
	assert.Equal(t, first["round_raised"], second["round_raised"])

	resp = app.do(t, http.MethodGet, "/api/v1/sale/status", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeData(t, resp)
	state := status["state"].(map[string]interface{})
	assert.Equal(t, float64(20_000), state["total_raised"])
}

func TestIntegration_LedgerDepositWithdraw(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ownerTok := app.ownerToken(t)
	resp := app.do(t, http.MethodPut, "/api/v1/ledger/limits", ownerTok,
		`{"token_ceiling":100000,"settlement_ceiling":50000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	investorID := app.register(t, "investor1")
	investorTok := app.login(t, "investor1", "StrongPass123!")
	recipient := uuid.New()

	// Deposit within the ceiling.
	resp = app.do(t, http.MethodPost, "/api/v1/ledger/settlement/deposit", investorTok, `{"amount":20000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	account := decodeData(t, resp)
	assert.Equal(t, float64(20_000), account["deposited_settlement"])

	// Deposit over the per-transaction ceiling.
	resp = app.do(t, http.MethodPost, "/api/v1/ledger/settlement/deposit", investorTok, `{"amount":60000}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "LEDG_002", errorCode(t, resp))

	// Withdrawal requires authorization set membership (or the owner).
	withdrawBody := fmt.Sprintf(`{"to":%q,"amount":5000}`, recipient)
	resp = app.do(t, http.MethodPost, "/api/v1/ledger/settlement/withdraw", investorTok, withdrawBody)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "LEDG_004", errorCode(t, resp))

	resp = app.do(t, http.MethodPut, "/api/v1/ledger/authorizations", ownerTok,
		fmt.Sprintf(`{"address":%q,"enabled":true}`, investorID))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.do(t, http.MethodGet, "/api/v1/ledger/authorizations/"+investorID, investorTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	authData := decodeData(t, resp)
	assert.Equal(t, true, authData["authorized"])

	resp = app.do(t, http.MethodPost, "/api/v1/ledger/settlement/withdraw", investorTok, withdrawBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recipientAccount := decodeData(t, resp)
	assert.Equal(t, float64(5_000), recipientAccount["sent_settlement"])
	assert.Equal(t, int64(5_000), app.settlement.payoutTo(recipient))

	// Token side: deposit pulls from the caller, withdraw pushes out.
	resp = app.do(t, http.MethodPost, "/api/v1/ledger/token/deposit", investorTok, `{"amount":10000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.do(t, http.MethodPost, "/api/v1/ledger/token/withdraw", ownerTok,
		fmt.Sprintf(`{"to":%q,"amount":4000}`, recipient))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.do(t, http.MethodGet, "/api/v1/ledger/balances", investorTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balances := decodeData(t, resp)
	assert.Equal(t, float64(15_000), balances["settlement_held"])
	assert.Equal(t, float64(6_000), balances["token_held"])

	// Withdrawals cannot exceed actual holdings.
	resp = app.do(t, http.MethodPost, "/api/v1/ledger/token/withdraw", ownerTok,
		fmt.Sprintf(`{"to":%q,"amount":999999}`, recipient))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "LEDG_003", errorCode(t, resp))
}

func TestIntegration_InboundSettlementNotification(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ownerTok := app.ownerToken(t)
	resp := app.do(t, http.MethodPut, "/api/v1/ledger/limits", ownerTok,
		`{"token_ceiling":100000,"settlement_ceiling":50000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	sender := uuid.New()
	body := fmt.Sprintf(`{"sender":%q,"amount":15000}`, sender)
	sigSvc := service.NewHMACSignatureService()

	// Rail-signed notification, no session token.
	req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/ledger/settlement/inbound",
		bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", sigSvc.Sign(railSecret, body))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	account := decodeData(t, resp)
	assert.Equal(t, sender.String(), account["address"])
	assert.Equal(t, float64(15_000), account["deposited_settlement"])

	// The credit shows up in the ledger holdings.
	resp = app.do(t, http.MethodGet, "/api/v1/ledger/balances", ownerTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balances := decodeData(t, resp)
	assert.Equal(t, float64(15_000), balances["settlement_held"])

	// A bad signature is rejected before any ledger effect.
	req, err = http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/ledger/settlement/inbound",
		bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", sigSvc.Sign("wrong-secret", body))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "AUTH_005", errorCode(t, resp))

	// The per-transaction ceiling applies to unsolicited transfers too.
	over := fmt.Sprintf(`{"sender":%q,"amount":60000}`, sender)
	req, err = http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/ledger/settlement/inbound",
		bytes.NewReader([]byte(over)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", sigSvc.Sign(railSecret, over))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "LEDG_002", errorCode(t, resp))
}

func TestIntegration_LedgerPause(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ownerTok := app.ownerToken(t)
	resp := app.do(t, http.MethodPut, "/api/v1/ledger/limits", ownerTok,
		`{"token_ceiling":100000,"settlement_ceiling":50000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	app.register(t, "investor1")
	investorTok := app.login(t, "investor1", "StrongPass123!")

	resp = app.do(t, http.MethodPut, "/api/v1/ledger/pause", ownerTok, `{"paused":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.do(t, http.MethodPost, "/api/v1/ledger/settlement/deposit", investorTok, `{"amount":1000}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "LEDG_007", errorCode(t, resp))

	// Queries stay available while paused.
	resp = app.do(t, http.MethodGet, "/api/v1/ledger/balances", investorTok, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.do(t, http.MethodPut, "/api/v1/ledger/pause", ownerTok, `{"paused":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = app.do(t, http.MethodPost, "/api/v1/ledger/settlement/deposit", investorTok, `{"amount":1000}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestIntegration_EventFeed(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	ownerTok := app.ownerToken(t)
	app.setCaps(t, ownerTok, 50_000, 200_000)
	app.createActiveRound(t, ownerTok, 1, 500_000, 1_000, 100_000, time.Hour, false)

	app.register(t, "buyer1")
	buyerTok := app.login(t, "buyer1", "StrongPass123!")
	resp := app.buy(t, buyerTok, 10_000, "ord-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Investors cannot read the audit feed.
	resp = app.do(t, http.MethodGet, "/api/v1/events", buyerTok, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = app.do(t, http.MethodGet, "/api/v1/events?kind=TOKENS_PURCHASED", ownerTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	events := body["data"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, "TOKENS_PURCHASED", events[0].(map[string]interface{})["kind"])
	assert.Equal(t, float64(10_000), events[0].(map[string]interface{})["amount"])

	resp = app.do(t, http.MethodGet, "/api/v1/events", ownerTok, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	all := body["data"].([]interface{})
	assert.Greater(t, len(all), 1, "cap, round and purchase events expected")
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"token-sale-engine/config"
	httpHandler "token-sale-engine/internal/adapter/http/handler"
	pgStorage "token-sale-engine/internal/adapter/storage/postgres"
	redisStorage "token-sale-engine/internal/adapter/storage/redis"
	"token-sale-engine/internal/adapter/transfer"
	"token-sale-engine/internal/core/domain"
	"token-sale-engine/internal/core/ports"
	"token-sale-engine/internal/service"
	"token-sale-engine/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Token Sale Engine")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	accountRepo := pgStorage.NewAccountRepo(pool)
	roundRepo := pgStorage.NewRoundRepo(pool)
	investorRepo := pgStorage.NewInvestorRepo(pool)
	saleStateRepo := pgStorage.NewSaleStateRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	eventRepo := pgStorage.NewEventRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Initialize transfer rail clients
	custodian, err := uuid.Parse(cfg.Transfer.CustodianID)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid custodian ID in transfer config")
	}
	railHTTP := &http.Client{Timeout: cfg.Transfer.Timeout}
	tokenClient := transfer.NewTokenAPIClient(cfg.Transfer.TokenAPIURL, cfg.Transfer.SecretKey, sigSvc, railHTTP, log)
	settlementClient := transfer.NewSettlementAPIClient(cfg.Transfer.SettlementAPIURL, cfg.Transfer.SecretKey, sigSvc, railHTTP, log)

	// Initialize business services
	authSvc := service.NewAuthService(accountRepo, hashSvc, tokenSvc)
	saleSvc := service.NewSaleService(
		accountRepo,
		roundRepo,
		investorRepo,
		saleStateRepo,
		ledgerRepo,
		eventRepo,
		idempotencyCache,
		tokenClient,
		settlementClient,
		transactor,
		service.SalePolicy{
			GlobalHardCap:    cfg.Sale.GlobalHardCap,
			MinRate:          cfg.Sale.MinRate,
			MaxRate:          cfg.Sale.MaxRate,
			MinIndividualCap: cfg.Sale.MinIndividualCap,
			MaxIndividualCap: cfg.Sale.MaxIndividualCap,
			MinSoftCap:       cfg.Sale.MinSoftCap,
			MaxSoftCap:       cfg.Sale.MaxSoftCap,
		},
		log,
	)
	ledgerSvc := service.NewLedgerService(
		accountRepo,
		ledgerRepo,
		eventRepo,
		tokenClient,
		settlementClient,
		transactor,
		custodian,
		log,
	)
	reportingSvc := service.NewReportingService(saleStateRepo, roundRepo, investorRepo, eventRepo)

	// First-boot seeding: owner account and ledger ceilings
	if err := seedOwner(ctx, accountRepo, hashSvc, cfg.Owner, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed owner account")
	}
	if err := seedLedgerCeilings(ctx, ledgerRepo, transactor, cfg.Ledger, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed ledger ceilings")
	}

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		SaleSvc:        saleSvc,
		LedgerSvc:      ledgerSvc,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		SignatureSvc:   sigSvc,
		RailSecret:     cfg.Transfer.SecretKey,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// seedOwner creates the owner account on first boot. The owner's ID doubles
// as its ledger address, so it is minted once and reused across restarts.
func seedOwner(ctx context.Context, accountRepo ports.AccountRepository, hashSvc ports.HashService, cfg config.OwnerConfig, log zerolog.Logger) error {
	existing, err := accountRepo.GetByUsername(ctx, cfg.Username)
	if err != nil {
		return fmt.Errorf("look up owner: %w", err)
	}
	if existing != nil {
		return nil
	}

	passwordHash, err := hashSvc.Hash(cfg.Password)
	if err != nil {
		return fmt.Errorf("hash owner password: %w", err)
	}

	now := time.Now().UTC()
	owner := &domain.Account{
		ID:           uuid.New(),
		Username:     cfg.Username,
		PasswordHash: passwordHash,
		Role:         domain.RoleOwner,
		Status:       domain.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := accountRepo.Create(ctx, owner); err != nil {
		return fmt.Errorf("create owner: %w", err)
	}

	log.Info().Str("username", cfg.Username).Str("address", owner.ID.String()).Msg("Owner account seeded")
	return nil
}

// seedLedgerCeilings writes the configured per-transaction ceilings into the
// ledger state row if the migration left them unset.
func seedLedgerCeilings(ctx context.Context, ledgerRepo ports.LedgerRepository, transactor ports.DBTransactor, cfg config.LedgerConfig, log zerolog.Logger) error {
	state, err := ledgerRepo.GetState(ctx)
	if err != nil {
		return fmt.Errorf("read ledger state: %w", err)
	}
	if state.SettlementCeiling > 0 || state.TokenCeiling > 0 {
		return nil
	}

	tx, err := transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := ledgerRepo.GetStateForUpdate(ctx, tx)
	if err != nil {
		return fmt.Errorf("lock ledger state: %w", err)
	}
	if locked.SettlementCeiling > 0 || locked.TokenCeiling > 0 {
		return nil
	}

	locked.SettlementCeiling = cfg.SettlementCeiling
	locked.TokenCeiling = cfg.TokenCeiling
	locked.UpdatedAt = time.Now().UTC()
	if err := ledgerRepo.UpdateState(ctx, tx, locked); err != nil {
		return fmt.Errorf("write ceilings: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Info().
		Int64("settlement_ceiling", cfg.SettlementCeiling).
		Int64("token_ceiling", cfg.TokenCeiling).
		Msg("Ledger ceilings seeded")
	return nil
}

package handler

import (
	"token-sale-engine/internal/adapter/http/middleware"
	redisStore "token-sale-engine/internal/adapter/storage/redis"
	"token-sale-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	SaleSvc        ports.SaleService
	LedgerSvc      ports.LedgerService
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService
	SignatureSvc   ports.SignatureService
	RailSecret     string                     // shared key for rail-signed inbound notifications
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit
	r.Use(middleware.AuditLog(deps.Logger))

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	statusHandler := NewStatusHandler(deps.ReportingSvc)
	v1.GET("/sale/status", rl("reporting"), statusHandler.SaleStatus)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	ownerOnly := middleware.RequireOwner()

	saleHandler := NewSaleHandler(deps.SaleSvc)
	sale := v1.Group("/sale", jwtAuth)
	{
		sale.POST("/buy", rl("sale_buy"), saleHandler.Buy)
		sale.POST("/refund", rl("sale_refund"), saleHandler.Refund)
		sale.GET("/position", rl("reporting"), statusHandler.MyPosition)

		// Owner-only sale administration
		sale.POST("/rounds", ownerOnly, rl("admin"), saleHandler.CreateRound)
		sale.POST("/rounds/:id/activate", ownerOnly, rl("admin"), saleHandler.ActivateRound)
		sale.POST("/finalize", ownerOnly, rl("admin"), saleHandler.Finalize)
		sale.PUT("/whitelist", ownerOnly, rl("admin"), saleHandler.SetWhitelisted)
		sale.PUT("/individual-cap", ownerOnly, rl("admin"), saleHandler.SetIndividualCap)
		sale.PUT("/soft-cap", ownerOnly, rl("admin"), saleHandler.SetSoftCap)
		sale.PUT("/pause", ownerOnly, rl("admin"), saleHandler.SetPaused)
		sale.GET("/investors/:address", ownerOnly, rl("reporting"), statusHandler.InvestorPosition)
	}

	ledgerHandler := NewLedgerHandler(deps.LedgerSvc, deps.SignatureSvc, deps.RailSecret)

	// Rail-facing: the settlement rail authenticates with an HMAC signature
	// over the body, so this route sits outside the JWT group.
	v1.POST("/ledger/settlement/inbound", rl("ledger_write"), ledgerHandler.NotifyInbound)

	ledger := v1.Group("/ledger", jwtAuth)
	{
		ledger.POST("/settlement/deposit", rl("ledger_write"), ledgerHandler.DepositSettlement)
		ledger.POST("/settlement/withdraw", rl("ledger_write"), ledgerHandler.WithdrawSettlement)
		ledger.POST("/token/deposit", rl("ledger_write"), ledgerHandler.DepositToken)
		ledger.POST("/token/withdraw", rl("ledger_write"), ledgerHandler.WithdrawToken)

		ledger.GET("/balances", rl("reporting"), ledgerHandler.Balances)
		ledger.GET("/accounts/:address", rl("reporting"), ledgerHandler.AccountOf)
		ledger.GET("/authorizations/:address", rl("reporting"), ledgerHandler.IsAuthorized)

		// Owner-only ledger administration
		ledger.PUT("/authorizations", ownerOnly, rl("admin"), ledgerHandler.SetAuthorized)
		ledger.PUT("/limits", ownerOnly, rl("admin"), ledgerHandler.SetLimits)
		ledger.PUT("/pause", ownerOnly, rl("admin"), ledgerHandler.SetPaused)
	}

	// --- Audit event feed (owner only) ---
	v1.GET("/events", jwtAuth, ownerOnly, rl("reporting"), statusHandler.ListEvents)

	return r
}

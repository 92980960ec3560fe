package handler

import (
	"context"
	"encoding/json"
	"io"

	"token-sale-engine/internal/adapter/http/dto"
	"token-sale-engine/internal/core/domain"
	"token-sale-engine/internal/core/ports"
	"token-sale-engine/pkg/apperror"
	"token-sale-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LedgerHandler handles custodial ledger endpoints.
type LedgerHandler struct {
	ledgerSvc  ports.LedgerService
	sigSvc     ports.SignatureService
	railSecret string
}

// NewLedgerHandler creates a new LedgerHandler. railSecret is the shared
// key the settlement rail signs inbound notifications with.
func NewLedgerHandler(ledgerSvc ports.LedgerService, sigSvc ports.SignatureService, railSecret string) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc, sigSvc: sigSvc, railSecret: railSecret}
}

// DepositSettlement handles POST /api/v1/ledger/settlement/deposit.
func (h *LedgerHandler) DepositSettlement(c *gin.Context) {
	caller, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	account, err := h.ledgerSvc.DepositSettlement(c.Request.Context(), caller, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, account)
}

// NotifyInbound handles POST /api/v1/ledger/settlement/inbound. The
// settlement rail calls it when funds arrive without an explicit deposit;
// the credit is attributed to the sender named in the body. Authenticated
// by an HMAC signature over the raw body, not a session token.
func (h *LedgerHandler) NotifyInbound(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil || len(payload) == 0 {
		response.Error(c, apperror.Validation("missing request body"))
		return
	}

	signature := c.GetHeader("X-Signature")
	if signature == "" || !h.sigSvc.Verify(h.railSecret, string(payload), signature) {
		response.Error(c, apperror.ErrInvalidSignature())
		return
	}

	var req dto.InboundTransferRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		response.Error(c, apperror.Validation("malformed request body"))
		return
	}

	sender, err := uuid.Parse(req.Sender)
	if err != nil || sender == uuid.Nil {
		response.Error(c, apperror.Validation("invalid sender address"))
		return
	}

	account, err := h.ledgerSvc.DepositSettlement(c.Request.Context(), sender, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, account)
}

// WithdrawSettlement handles POST /api/v1/ledger/settlement/withdraw.
func (h *LedgerHandler) WithdrawSettlement(c *gin.Context) {
	h.withdraw(c, h.ledgerSvc.WithdrawSettlement)
}

// DepositToken handles POST /api/v1/ledger/token/deposit.
func (h *LedgerHandler) DepositToken(c *gin.Context) {
	caller, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	account, err := h.ledgerSvc.DepositToken(c.Request.Context(), caller, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, account)
}

// WithdrawToken handles POST /api/v1/ledger/token/withdraw.
func (h *LedgerHandler) WithdrawToken(c *gin.Context) {
	h.withdraw(c, h.ledgerSvc.WithdrawToken)
}

func (h *LedgerHandler) withdraw(c *gin.Context, op func(ctx context.Context, caller uuid.UUID, to uuid.UUID, amount int64) (*domain.LedgerAccount, error)) {
	caller, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	to, err := uuid.Parse(req.To)
	if err != nil {
		response.Error(c, apperror.Validation("invalid destination address"))
		return
	}

	account, err := op(c.Request.Context(), caller, to, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, account)
}

// SetAuthorized handles PUT /api/v1/ledger/authorizations (owner only).
func (h *LedgerHandler) SetAuthorized(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	address, err := uuid.Parse(req.Address)
	if err != nil {
		response.Error(c, apperror.Validation("invalid address"))
		return
	}

	if err := h.ledgerSvc.SetAuthorized(c.Request.Context(), actor, address, *req.Enabled); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"address": address.String(), "enabled": *req.Enabled})
}

// SetLimits handles PUT /api/v1/ledger/limits (owner only).
func (h *LedgerHandler) SetLimits(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.LimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.ledgerSvc.SetLimits(c.Request.Context(), actor, req.TokenCeiling, req.SettlementCeiling); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"token_ceiling":      req.TokenCeiling,
		"settlement_ceiling": req.SettlementCeiling,
	})
}

// SetPaused handles PUT /api/v1/ledger/pause (owner only).
func (h *LedgerHandler) SetPaused(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.ledgerSvc.SetPaused(c.Request.Context(), actor, *req.Paused); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"paused": *req.Paused})
}

// Balances handles GET /api/v1/ledger/balances. Available while paused.
func (h *LedgerHandler) Balances(c *gin.Context) {
	state, err := h.ledgerSvc.Balances(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, state)
}

// AccountOf handles GET /api/v1/ledger/accounts/:address.
func (h *LedgerHandler) AccountOf(c *gin.Context) {
	address, err := uuid.Parse(c.Param("address"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid address"))
		return
	}

	account, err := h.ledgerSvc.AccountOf(c.Request.Context(), address)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, account)
}

// IsAuthorized handles GET /api/v1/ledger/authorizations/:address.
func (h *LedgerHandler) IsAuthorized(c *gin.Context) {
	address, err := uuid.Parse(c.Param("address"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid address"))
		return
	}

	authorized, err := h.ledgerSvc.IsAuthorized(c.Request.Context(), address)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"address": address.String(), "authorized": authorized})
}

package handler

import (
	"context"
	"strconv"

	"token-sale-engine/internal/adapter/http/dto"
	"token-sale-engine/internal/adapter/http/middleware"
	"token-sale-engine/internal/core/ports"
	"token-sale-engine/pkg/apperror"
	"token-sale-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SaleHandler handles sale round, purchase, finalize and refund endpoints.
type SaleHandler struct {
	saleSvc ports.SaleService
}

// NewSaleHandler creates a new SaleHandler.
func NewSaleHandler(saleSvc ports.SaleService) *SaleHandler {
	return &SaleHandler{saleSvc: saleSvc}
}

// actorFromContext extracts the authenticated account ID set by JWTAuth.
func actorFromContext(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.CtxAccountID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// CreateRound handles POST /api/v1/sale/rounds (owner only).
func (h *SaleHandler) CreateRound(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	round, err := h.saleSvc.CreateRound(c.Request.Context(), actor, ports.CreateRoundRequest{
		Rate:          req.Rate,
		HardCap:       req.HardCap,
		MinBuy:        req.MinBuy,
		MaxBuy:        req.MaxBuy,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		WhitelistOnly: req.WhitelistOnly,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, round)
}

// ActivateRound handles POST /api/v1/sale/rounds/:id/activate (owner only).
func (h *SaleHandler) ActivateRound(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	roundID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || roundID <= 0 {
		response.Error(c, apperror.Validation("invalid round id"))
		return
	}

	round, err := h.saleSvc.ActivateRound(c.Request.Context(), actor, roundID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, round)
}

// Buy handles POST /api/v1/sale/buy.
func (h *SaleHandler) Buy(c *gin.Context) {
	buyer, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.saleSvc.BuyTokens(c.Request.Context(), ports.PurchaseRequest{
		Buyer:       buyer,
		Amount:      req.Amount,
		ReferenceID: req.ReferenceID,
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// Finalize handles POST /api/v1/sale/finalize (owner only).
func (h *SaleHandler) Finalize(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	state, err := h.saleSvc.FinalizeSale(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, state)
}

// Refund handles POST /api/v1/sale/refund.
func (h *SaleHandler) Refund(c *gin.Context) {
	caller, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	result, err := h.saleSvc.Refund(c.Request.Context(), caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, result)
}

// SetWhitelisted handles PUT /api/v1/sale/whitelist (owner only).
func (h *SaleHandler) SetWhitelisted(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	address, err := uuid.Parse(req.Address)
	if err != nil {
		response.Error(c, apperror.Validation("invalid address"))
		return
	}

	if err := h.saleSvc.SetWhitelisted(c.Request.Context(), actor, address, *req.Whitelisted); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"address": address.String(), "whitelisted": *req.Whitelisted})
}

// SetIndividualCap handles PUT /api/v1/sale/individual-cap (owner only).
func (h *SaleHandler) SetIndividualCap(c *gin.Context) {
	h.setCap(c, h.saleSvc.SetIndividualCap)
}

// SetSoftCap handles PUT /api/v1/sale/soft-cap (owner only).
func (h *SaleHandler) SetSoftCap(c *gin.Context) {
	h.setCap(c, h.saleSvc.SetSoftCap)
}

func (h *SaleHandler) setCap(c *gin.Context, set func(ctx context.Context, actor uuid.UUID, cap int64) error) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := set(c.Request.Context(), actor, req.Cap); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"cap": req.Cap})
}

// SetPaused handles PUT /api/v1/sale/pause (owner only).
func (h *SaleHandler) SetPaused(c *gin.Context) {
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

	if err := h.saleSvc.SetPaused(c.Request.Context(), actor, *req.Paused); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"paused": *req.Paused})
}

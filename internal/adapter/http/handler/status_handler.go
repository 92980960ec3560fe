package handler

import (
	"token-sale-engine/internal/adapter/http/dto"
	"token-sale-engine/internal/core/domain"
	"token-sale-engine/internal/core/ports"
	"token-sale-engine/pkg/apperror"
	"token-sale-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StatusHandler handles the read-only reporting endpoints.
type StatusHandler struct {
	reportingSvc ports.ReportingService
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(reportingSvc ports.ReportingService) *StatusHandler {
	return &StatusHandler{reportingSvc: reportingSvc}
}

// SaleStatus handles GET /api/v1/sale/status.
func (h *StatusHandler) SaleStatus(c *gin.Context) {
	status, err := h.reportingSvc.SaleStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, status)
}

// MyPosition handles GET /api/v1/sale/position — the caller's own
// contribution record.
func (h *StatusHandler) MyPosition(c *gin.Context) {
	caller, ok := actorFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	position, err := h.reportingSvc.InvestorPosition(c.Request.Context(), caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, position)
}

// InvestorPosition handles GET /api/v1/sale/investors/:address (owner only).
func (h *StatusHandler) InvestorPosition(c *gin.Context) {
	address, err := uuid.Parse(c.Param("address"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid address"))
		return
	}

	position, err := h.reportingSvc.InvestorPosition(c.Request.Context(), address)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, position)
}

// ListEvents handles GET /api/v1/events (owner only).
func (h *StatusHandler) ListEvents(c *gin.Context) {
	var query dto.EventListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.EventListParams{
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if query.Kind != "" {
		kind := domain.EventKind(query.Kind)
		params.Kind = &kind
	}
	if query.Actor != "" {
		actor, err := uuid.Parse(query.Actor)
		if err != nil {
			response.Error(c, apperror.Validation("invalid actor"))
			return
		}
		params.Actor = &actor
	}
	if query.RoundID > 0 {
		params.RoundID = &query.RoundID
	}

	events, err := h.reportingSvc.ListEvents(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, events)
}

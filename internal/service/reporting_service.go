package service

import (
	"context"
	"fmt"

	"token-sale-engine/internal/core/domain"
	"token-sale-engine/internal/core/ports"
	"token-sale-engine/pkg/apperror"

	"github.com/google/uuid"
)

// ReportingServiceImpl implements ports.ReportingService. Read-only; all
// queries remain available while the sale or the ledger is paused.
type ReportingServiceImpl struct {
	saleRepo     ports.SaleStateRepository
	roundRepo    ports.RoundRepository
	investorRepo ports.InvestorRepository
	eventRepo    ports.EventRepository
}

// NewReportingService creates a new ReportingServiceImpl.
func NewReportingService(
	saleRepo ports.SaleStateRepository,
	roundRepo ports.RoundRepository,
	investorRepo ports.InvestorRepository,
	eventRepo ports.EventRepository,
) *ReportingServiceImpl {
	return &ReportingServiceImpl{
		saleRepo:     saleRepo,
		roundRepo:    roundRepo,
		investorRepo: investorRepo,
		eventRepo:    eventRepo,
	}
}

// SaleStatus returns the sale state together with all rounds.
func (s *ReportingServiceImpl) SaleStatus(ctx context.Context) (*ports.SaleStatus, error) {
	state, err := s.saleRepo.Get(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get sale state: %w", err))
	}
	rounds, err := s.roundRepo.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list rounds: %w", err))
	}
	return &ports.SaleStatus{State: *state, Rounds: rounds}, nil
}

// InvestorPosition returns an investor's cumulative position. Unknown
// addresses yield an empty position rather than an error.
func (s *ReportingServiceImpl) InvestorPosition(ctx context.Context, address uuid.UUID) (*domain.Investor, error) {
	investor, err := s.investorRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get investor: %w", err))
	}
	if investor == nil {
		investor = &domain.Investor{Address: address}
	}
	return investor, nil
}

// ListEvents pages through the audit event stream.
func (s *ReportingServiceImpl) ListEvents(ctx context.Context, params ports.EventListParams) ([]domain.Event, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	events, err := s.eventRepo.List(ctx, params)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list events: %w", err))
	}
	return events, nil
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a mutating operation in the audit stream.
type EventKind string

const (
	EventRoundCreated         EventKind = "ROUND_CREATED"
	EventRoundActivated       EventKind = "ROUND_ACTIVATED"
	EventRoundCompleted       EventKind = "ROUND_COMPLETED"
	EventTokensPurchased      EventKind = "TOKENS_PURCHASED"
	EventSaleFinalized        EventKind = "SALE_FINALIZED"
	EventRefundIssued         EventKind = "REFUND_ISSUED"
	EventSettlementDeposit    EventKind = "SETTLEMENT_DEPOSIT"
	EventSettlementWithdrawal EventKind = "SETTLEMENT_WITHDRAWAL"
	EventTokenDeposit         EventKind = "TOKEN_DEPOSIT"
	EventTokenWithdrawal      EventKind = "TOKEN_WITHDRAWAL"
	EventAuthorizationSet     EventKind = "AUTHORIZATION_SET"
	EventLimitsSet            EventKind = "LIMITS_SET"
	EventCapSet               EventKind = "CAP_SET"
	EventWhitelistUpdated     EventKind = "WHITELIST_UPDATED"
	EventPaused               EventKind = "PAUSED"
	EventUnpaused             EventKind = "UNPAUSED"
)

// Event is one entry in the durable audit trail. The event stream is the
// only persisted history beyond current-state counters.
type Event struct {
	ID        uuid.UUID  `json:"id"`
	Kind      EventKind  `json:"kind"`
	Actor     *uuid.UUID `json:"actor,omitempty"`
	RoundID   *int64     `json:"round_id,omitempty"`
	Amount    *int64     `json:"amount,omitempty"`
	Details   string     `json:"details,omitempty"` // JSON string
	CreatedAt time.Time  `json:"created_at"`
}

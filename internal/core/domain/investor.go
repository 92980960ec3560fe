package domain

import (
	"time"

	"github.com/google/uuid"
)

// Investor tracks one buyer's cumulative position and allow-list membership.
type Investor struct {
	Address          uuid.UUID  `json:"address"`
	TotalContributed int64      `json:"total_contributed"`
	TokensReceived   int64      `json:"tokens_received"`
	Whitelisted      bool       `json:"whitelisted"`
	LastPurchaseAt   *time.Time `json:"last_purchase_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BuildPurchaseKey constructs the idempotency key for a purchase request.
func BuildPurchaseKey(buyer uuid.UUID, referenceID string) string {
	return buyer.String() + ":purchase:" + referenceID
}

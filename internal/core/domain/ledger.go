package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerState holds the custodian's actual holdings and deposit ceilings.
// The held amounts are the only source of truth for what can be withdrawn;
// per-account counters are audit history, never a spendable balance.
type LedgerState struct {
	SettlementHeld    int64     `json:"settlement_held"`
	TokenHeld         int64     `json:"token_held"`
	SettlementCeiling int64     `json:"settlement_ceiling"` // per-transaction deposit ceiling
	TokenCeiling      int64     `json:"token_ceiling"`
	Paused            bool      `json:"paused"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LedgerAccount records cumulative per-account movement in both directions.
// All four counters are monotonically non-decreasing.
type LedgerAccount struct {
	Address             uuid.UUID `json:"address"`
	DepositedSettlement int64     `json:"deposited_settlement"`
	DepositedToken      int64     `json:"deposited_token"`
	SentSettlement      int64     `json:"sent_settlement"`
	SentToken           int64     `json:"sent_token"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

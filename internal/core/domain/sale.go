package domain

import "time"

// SaleStatus is the sale-wide lifecycle state. OPEN transitions exactly once,
// via finalize, to SUCCEEDED or FAILED; both are terminal.
type SaleStatus string

const (
	SaleStatusOpen      SaleStatus = "OPEN"
	SaleStatusSucceeded SaleStatus = "SUCCEEDED"
	SaleStatusFailed    SaleStatus = "FAILED"
)

// SaleState is the single sale-wide aggregate record.
type SaleState struct {
	CurrentRound     int64      `json:"current_round"` // 0 = no round active
	TotalRounds      int64      `json:"total_rounds"`
	TotalRaised      int64      `json:"total_raised"`
	Status           SaleStatus `json:"status"`
	IndividualCap    int64      `json:"individual_cap"`
	SoftCap          int64      `json:"soft_cap"`
	HardCapAllocated int64      `json:"hard_cap_allocated"` // running sum of round hard caps
	Paused           bool       `json:"paused"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Finalized reports whether the sale has reached a terminal state.
func (s *SaleState) Finalized() bool {
	return s.Status == SaleStatusSucceeded || s.Status == SaleStatusFailed
}

// RefundsOpen reports refund entitlement. The soft-cap comparison is
// re-derived on every call rather than cached on a flag.
func (s *SaleState) RefundsOpen() bool {
	return s.Finalized() && s.TotalRaised < s.SoftCap
}

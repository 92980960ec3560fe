package domain

import "time"

// RoundStatus is the derived lifecycle state of a round.
type RoundStatus string

const (
	RoundStatusCreated   RoundStatus = "CREATED"
	RoundStatusActive    RoundStatus = "ACTIVE"
	RoundStatusCompleted RoundStatus = "COMPLETED"
	RoundStatusExpired   RoundStatus = "EXPIRED"
)

// Round is a time-boxed sale configuration. IDs are 1-based and monotonic;
// round id 0 is reserved for "no round".
type Round struct {
	ID            int64     `json:"id"`
	Rate          int64     `json:"rate"` // token units per settlement unit
	HardCap       int64     `json:"hard_cap"`
	MinBuy        int64     `json:"min_buy"`
	MaxBuy        int64     `json:"max_buy"`
	Raised        int64     `json:"raised"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	WhitelistOnly bool      `json:"whitelist_only"`
	Active        bool      `json:"active"`
	Completed     bool      `json:"completed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// InWindow reports whether now falls within the round's sale window.
func (r *Round) InWindow(now time.Time) bool {
	return !now.Before(r.StartTime) && !now.After(r.EndTime)
}

// Remaining returns how much settlement the round can still accept.
func (r *Round) Remaining() int64 {
	return r.HardCap - r.Raised
}

// Status derives the lifecycle state at the given time.
func (r *Round) Status(now time.Time) RoundStatus {
	switch {
	case r.Completed:
		return RoundStatusCompleted
	case r.Active:
		return RoundStatusActive
	case now.After(r.EndTime):
		return RoundStatusExpired
	default:
		return RoundStatusCreated
	}
}

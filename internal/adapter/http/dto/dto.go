package dto

import "time"

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest is the request body for account login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration. The
// account ID doubles as the ledger address funds are booked under.
type RegisterResponse struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreateRoundRequest is the request body for creating a sale round.
type CreateRoundRequest struct {
	Rate          int64     `json:"rate" binding:"required,gt=0"`
	HardCap       int64     `json:"hard_cap" binding:"required,gt=0"`
	MinBuy        int64     `json:"min_buy" binding:"required,gt=0"`
	MaxBuy        int64     `json:"max_buy" binding:"required,gt=0"`
	StartTime     time.Time `json:"start_time" binding:"required"`
	EndTime       time.Time `json:"end_time" binding:"required"`
	WhitelistOnly bool      `json:"whitelist_only"`
}

// BuyRequest is the request body for a token purchase. Amount is in
// settlement base units.
type BuyRequest struct {
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	ReferenceID string `json:"reference_id" binding:"required,max=100,safe_id"`
}

// WhitelistRequest toggles an address on the purchase allow-list.
type WhitelistRequest struct {
	Address     string `json:"address" binding:"required,uuid"`
	Whitelisted *bool  `json:"whitelisted" binding:"required"`
}

// CapRequest carries a new individual or soft cap value.
type CapRequest struct {
	Cap int64 `json:"cap" binding:"required,gt=0"`
}

// PauseRequest toggles the pause flag on the sale or the ledger.
type PauseRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

// DepositRequest is the request body for settlement or token deposits.
type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// InboundTransferRequest is the rail-signed notification body for a
// settlement transfer that arrived without an explicit deposit call.
type InboundTransferRequest struct {
	Sender string `json:"sender"`
	Amount int64  `json:"amount"`
}

// WithdrawRequest is the request body for settlement or token withdrawals.
type WithdrawRequest struct {
	To     string `json:"to" binding:"required,uuid"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

// AuthorizeRequest toggles an address in the withdrawal authorization set.
type AuthorizeRequest struct {
	Address string `json:"address" binding:"required,uuid"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

// LimitsRequest sets the per-transaction ledger ceilings.
type LimitsRequest struct {
	TokenCeiling      int64 `json:"token_ceiling" binding:"required,gt=0"`
	SettlementCeiling int64 `json:"settlement_ceiling" binding:"required,gt=0"`
}

// EventListQuery holds the query parameters for the event feed.
type EventListQuery struct {
	Kind     string `form:"kind" binding:"omitempty,safe_id"`
	Actor    string `form:"actor" binding:"omitempty,uuid"`
	RoundID  int64  `form:"round_id" binding:"omitempty,gt=0"`
	Page     int    `form:"page" binding:"omitempty,gt=0"`
	PageSize int    `form:"page_size" binding:"omitempty,gt=0"`
}

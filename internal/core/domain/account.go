package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountRole distinguishes the sale owner from ordinary investors.
type AccountRole string

const (
	RoleOwner    AccountRole = "OWNER"
	RoleInvestor AccountRole = "INVESTOR"
)

// AccountStatus represents the state of an operator account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

// Account is an authenticated caller. Its ID doubles as the on-ledger address.
type Account struct {
	ID           uuid.UUID     `json:"id"`
	Username     string        `json:"username"`
	PasswordHash string        `json:"-"` // Never expose
	Role         AccountRole   `json:"role"`
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsActive returns true if the account may authenticate.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// IsOwner returns true for the sale owner.
func (a *Account) IsOwner() bool {
	return a.Role == RoleOwner
}

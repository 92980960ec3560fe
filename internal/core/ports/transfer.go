package ports

import (
	"context"

	"github.com/google/uuid"
)

// TokenClient is the externally consumed fixed-cap token capability.
// The engine only ever issues ordinary transfer calls against it.
type TokenClient interface {
	// Transfer moves tokens from the engine's working balance to an account.
	Transfer(ctx context.Context, to uuid.UUID, amount int64) error
	// TransferFrom pulls tokens from an account into the custodian.
	TransferFrom(ctx context.Context, from uuid.UUID, to uuid.UUID, amount int64) error
	// BalanceOf queries an account's token balance.
	BalanceOf(ctx context.Context, account uuid.UUID) (int64, error)
}

// SettlementClient pays settlement funds out to an account on the external
// settlement rail. A failed payout must abort the surrounding operation.
type SettlementClient interface {
	Payout(ctx context.Context, to uuid.UUID, amount int64) error
}

package stable

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"stablebond/storage"
)

// PriceOracle returns the most recent reading for a feed. The engine never
// polls; it consumes whatever the adapter last observed.
type PriceOracle interface {
	Latest(ctx context.Context, feed string) (PriceReading, error)
}

// KYCVerifier gates mint and burn on the depositor's eligibility.
type KYCVerifier interface {
	Verified(ctx context.Context, account common.Address) (bool, error)
}

// Transfers moves token balances. Implementations bind to the same storage
// transaction as the engine so that balance changes commit or roll back with
// engine state.
type Transfers interface {
	Balance(token, account common.Address) (uint64, error)
	Move(token, from, to common.Address, amount uint64) error
	Mint(token, to common.Address, amount uint64) error
	Burn(token, from common.Address, amount uint64) error
}

// SettlementFactory binds a Transfers implementation to a transaction.
type SettlementFactory func(txn storage.Txn) Transfers


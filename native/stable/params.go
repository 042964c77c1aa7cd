package stable

import "time"

const (
	// PriceScale is the fixed-point scale of oracle prices (6 decimals).
	PriceScale uint64 = 1_000_000
	// BpsScale expresses 100% in basis points.
	BpsScale uint64 = 10_000
	// ProtocolFeeBps is the share of rebase yield routed to the fee vault.
	ProtocolFeeBps uint64 = 1_000

	MinCollateralRatioBps     uint32 = 12_000
	MaxCollateralRatioBps     uint32 = 65_000
	DefaultCollateralRatioBps uint32 = 15_000

	MinFeeRateBps     uint32 = 10
	MaxFeeRateBps     uint32 = 10_000
	DefaultFeeRateBps uint32 = 30

	MaxBonds      = 10
	MaxCollectors = 5
	MaxDepositors = 100

	MaxNameLength   = 32
	MaxSymbolLength = 10

	secondsPerYear uint64 = 365 * 24 * 60 * 60
)

// Params bundles the timing windows the engine enforces. They are passed in
// explicitly so tests and genesis files can tighten them.
type Params struct {
	OracleStaleness    time.Duration `toml:"OracleStaleness"`
	RateFreshness      time.Duration `toml:"RateFreshness"`
	RateUpdateInterval time.Duration `toml:"RateUpdateInterval"`
	RebaseInterval     time.Duration `toml:"RebaseInterval"`
	MaxDepositors      int           `toml:"MaxDepositors"`
}

// DefaultParams returns the production timing windows.
func DefaultParams() Params {
	return Params{
		OracleStaleness:    300 * time.Second,
		RateFreshness:      15 * time.Minute,
		RateUpdateInterval: 7 * 24 * time.Hour,
		RebaseInterval:     7 * 24 * time.Hour,
		MaxDepositors:      MaxDepositors,
	}
}

func (p Params) normalized() Params {
	def := DefaultParams()
	if p.OracleStaleness <= 0 {
		p.OracleStaleness = def.OracleStaleness
	}
	if p.RateFreshness <= 0 {
		p.RateFreshness = def.RateFreshness
	}
	if p.RateUpdateInterval <= 0 {
		p.RateUpdateInterval = def.RateUpdateInterval
	}
	if p.RebaseInterval <= 0 {
		p.RebaseInterval = def.RebaseInterval
	}
	if p.MaxDepositors <= 0 {
		p.MaxDepositors = def.MaxDepositors
	}
	return p
}

// ValidateCollateralRatio ensures ratio lies inside the protocol bounds.
func ValidateCollateralRatio(ratio uint32) error {
	if ratio < MinCollateralRatioBps || ratio > MaxCollateralRatioBps {
		return ErrInvalidCollateralRatio
	}
	return nil
}

// ValidateFeeRate ensures a fee rate does not exceed 100%.
func ValidateFeeRate(rate uint32) error {
	if rate > MaxFeeRateBps {
		return ErrInvalidFeeRate
	}
	return nil
}

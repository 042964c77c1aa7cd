package stable

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeedType identifies the quote currency of a bond's payment feed and decides
// how the rebase engine converts oracle prices.
type FeedType uint8

const (
	// FeedUSD feeds are quoted in USD and convert 1:1.
	FeedUSD FeedType = iota
	// FeedForeign feeds quote a USD pair against another fiat currency and
	// convert using the oracle mantissa.
	FeedForeign
	// FeedStub is used for test bonds and converts 1:1.
	FeedStub
)

func (f FeedType) String() string {
	switch f {
	case FeedUSD:
		return "usd"
	case FeedForeign:
		return "foreign"
	case FeedStub:
		return "stub"
	default:
		return "unknown"
	}
}

// ParseFeedType maps the configuration spelling onto a FeedType.
func ParseFeedType(value string) (FeedType, bool) {
	switch value {
	case "usd", "USD", "":
		return FeedUSD, true
	case "foreign", "FOREIGN":
		return FeedForeign, true
	case "stub", "STUB":
		return FeedStub, true
	default:
		return 0, false
	}
}

// PriceReading is the opaque oracle answer consumed by the engine.
type PriceReading struct {
	Mantissa   int64
	ObservedAt time.Time
}

// Asset tracks one synthetic asset issued against a single bond.
type Asset struct {
	ID              common.Address
	Name            string
	Symbol          string
	OriginalSymbol  string
	TargetCurrency  string
	Creator         common.Address
	Bond            common.Address
	Feed            string
	CollateralVault common.Address
	YieldToken      common.Address

	TotalSupply        uint64
	TotalCollateral    uint64
	CollateralRatioBps uint32
	Paused             bool

	CreatedAt         time.Time
	LastUpdated       time.Time
	LastRebase        time.Time
	LastRateUpdate    time.Time
	LastPriceUpdate   time.Time
	LastFeeCollection time.Time

	TotalRebaseAmount   uint64
	TotalYieldCollected uint64
}

// Clone returns a copy of the asset record.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}

// BondConfig holds the static parameters of a supported bond.
type BondConfig struct {
	Bond                common.Address
	PaymentAsset        common.Address
	Admin               common.Address
	FeedType            FeedType
	MinCreationAmount   uint64
	MinRedemptionAmount uint64
	Enabled             bool
	CustomFeeBps        *uint32
}

// Clone returns a deep copy of the bond configuration.
func (b *BondConfig) Clone() *BondConfig {
	if b == nil {
		return nil
	}
	clone := *b
	if b.CustomFeeBps != nil {
		fee := *b.CustomFeeBps
		clone.CustomFeeBps = &fee
	}
	return &clone
}

// BondCollateral aggregates the collateral locked against a bond across every
// asset that uses it.
type BondCollateral struct {
	Bond            common.Address
	TotalCollateral uint64
	AssetCount      uint32
}

// DepositorShare records a depositor's principal in one asset.
type DepositorShare struct {
	Depositor  common.Address
	BondAmount uint64
	MintAmount uint64
	UpdatedAt  time.Time
}

// DepositorState tracks yield paid to a depositor, separately from principal.
type DepositorState struct {
	Asset               common.Address
	Depositor           common.Address
	TotalYieldCollected uint64
	LastYieldCollection time.Time
}

// FeeVault accumulates the fees charged on mint and burn.
type FeeVault struct {
	TotalFeesCollected uint64
	LastCollection     time.Time
}

// ProtocolConfig is the global policy shared by every asset.
type ProtocolConfig struct {
	Admin                 common.Address
	FeeVault              common.Address
	FeeToken              common.Address
	MinCollateralRatioBps uint32
	BaseFeeBps            uint32
	Paused                bool
	Collectors            []common.Address
	Version               uint32
	AssetCount            uint32
	LastUpdate            time.Time
}

// Clone returns a deep copy of the protocol configuration.
func (p *ProtocolConfig) Clone() *ProtocolConfig {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Collectors = append([]common.Address(nil), p.Collectors...)
	return &clone
}

// IsCollector reports whether addr may distribute yield.
func (p *ProtocolConfig) IsCollector(addr common.Address) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Collectors {
		if c == addr {
			return true
		}
	}
	return false
}

// AddCollector appends addr to the authorised distributor set.
func (p *ProtocolConfig) AddCollector(addr common.Address) error {
	if p.IsCollector(addr) {
		return ErrCollectorAlreadyExists
	}
	if len(p.Collectors) >= MaxCollectors {
		return ErrMaxCollectorsReached
	}
	p.Collectors = append(p.Collectors, addr)
	return nil
}

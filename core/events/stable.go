package events

import (
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stablebond/core/types"
)

const (
	TypeFactoryInitialized   = "stable.factory.initialized"
	TypeFactoryConfigUpdated = "stable.factory.updated"
	TypeStablecoinCreated    = "stable.asset.created"
	TypeStablecoinUpdated    = "stable.asset.updated"
	TypeStablecoinPaused     = "stable.asset.paused"
	TypeStablecoinResumed    = "stable.asset.resumed"
	TypeStablecoinMinted     = "stable.asset.minted"
	TypeStablecoinBurned     = "stable.asset.burned"
	TypeYieldDistributed     = "stable.yield.distributed"
	TypeBondAdded            = "stable.bond.added"
	TypeBondConfigUpdated    = "stable.bond.updated"
	TypeBondRemoved          = "stable.bond.removed"
)

// Renderer is implemented by events that can be flattened into the generic
// attribute form consumed by indexers.
type Renderer interface {
	EventType() string
	Event() *types.Event
}

type FactoryInitialized struct {
	Admin              common.Address
	FeeVault           common.Address
	MinCollateralRatio uint32
	BaseFeeRate        uint32
	ProtocolVersion    uint32
	Timestamp          time.Time
}

func (FactoryInitialized) EventType() string { return TypeFactoryInitialized }

func (e FactoryInitialized) Event() *types.Event {
	return newEvent(TypeFactoryInitialized, e.Timestamp, map[string]string{
		"admin":              e.Admin.Hex(),
		"feeVault":           e.FeeVault.Hex(),
		"minCollateralRatio": formatUint(uint64(e.MinCollateralRatio)),
		"baseFeeRate":        formatUint(uint64(e.BaseFeeRate)),
		"protocolVersion":    formatUint(uint64(e.ProtocolVersion)),
	})
}

type FactoryConfigUpdated struct {
	Admin              common.Address
	FeeVault           common.Address
	MinCollateralRatio uint32
	BaseFeeRate        uint32
	ProtocolVersion    uint32
	Timestamp          time.Time
}

func (FactoryConfigUpdated) EventType() string { return TypeFactoryConfigUpdated }

func (e FactoryConfigUpdated) Event() *types.Event {
	return newEvent(TypeFactoryConfigUpdated, e.Timestamp, map[string]string{
		"admin":              e.Admin.Hex(),
		"feeVault":           e.FeeVault.Hex(),
		"minCollateralRatio": formatUint(uint64(e.MinCollateralRatio)),
		"baseFeeRate":        formatUint(uint64(e.BaseFeeRate)),
		"protocolVersion":    formatUint(uint64(e.ProtocolVersion)),
	})
}

type StablecoinCreated struct {
	Creator        common.Address
	Asset          common.Address
	Bond           common.Address
	Name           string
	Symbol         string
	TargetCurrency string
	Timestamp      time.Time
}

func (StablecoinCreated) EventType() string { return TypeStablecoinCreated }

func (e StablecoinCreated) Event() *types.Event {
	return newEvent(TypeStablecoinCreated, e.Timestamp, map[string]string{
		"creator":        e.Creator.Hex(),
		"asset":          e.Asset.Hex(),
		"bond":           e.Bond.Hex(),
		"name":           strings.TrimSpace(e.Name),
		"symbol":         normalizeAsset(e.Symbol),
		"targetCurrency": normalizeAsset(e.TargetCurrency),
	})
}

// StablecoinUpdated carries only the fields that changed; nil means
// untouched.
type StablecoinUpdated struct {
	Authority common.Address
	Asset     common.Address
	Name      *string
	Symbol    *string
	Timestamp time.Time
}

func (StablecoinUpdated) EventType() string { return TypeStablecoinUpdated }

func (e StablecoinUpdated) Event() *types.Event {
	attrs := map[string]string{
		"authority": e.Authority.Hex(),
		"asset":     e.Asset.Hex(),
	}
	if e.Name != nil {
		attrs["name"] = *e.Name
	}
	if e.Symbol != nil {
		attrs["symbol"] = *e.Symbol
	}
	return newEvent(TypeStablecoinUpdated, e.Timestamp, attrs)
}

type StablecoinPaused struct {
	Admin     common.Address
	Asset     common.Address
	Timestamp time.Time
}

func (StablecoinPaused) EventType() string { return TypeStablecoinPaused }

func (e StablecoinPaused) Event() *types.Event {
	return newEvent(TypeStablecoinPaused, e.Timestamp, map[string]string{
		"admin": e.Admin.Hex(),
		"asset": e.Asset.Hex(),
	})
}

type StablecoinResumed struct {
	Admin     common.Address
	Asset     common.Address
	Timestamp time.Time
}

func (StablecoinResumed) EventType() string { return TypeStablecoinResumed }

func (e StablecoinResumed) Event() *types.Event {
	return newEvent(TypeStablecoinResumed, e.Timestamp, map[string]string{
		"admin": e.Admin.Hex(),
		"asset": e.Asset.Hex(),
	})
}

type StablecoinMinted struct {
	Depositor  common.Address
	Asset      common.Address
	BondAmount uint64
	MintAmount uint64
	Fee        uint64
	BondPrice  uint64
	Timestamp  time.Time
}

func (StablecoinMinted) EventType() string { return TypeStablecoinMinted }

func (e StablecoinMinted) Event() *types.Event {
	return newEvent(TypeStablecoinMinted, e.Timestamp, map[string]string{
		"depositor":  e.Depositor.Hex(),
		"asset":      e.Asset.Hex(),
		"bondAmount": formatUint(e.BondAmount),
		"mintAmount": formatUint(e.MintAmount),
		"fee":        formatUint(e.Fee),
		"bondPrice":  formatUint(e.BondPrice),
	})
}

type StablecoinBurned struct {
	Depositor    common.Address
	Asset        common.Address
	BondAmount   uint64
	SupplyAmount uint64
	Fee          uint64
	BondPrice    uint64
	Timestamp    time.Time
}

func (StablecoinBurned) EventType() string { return TypeStablecoinBurned }

func (e StablecoinBurned) Event() *types.Event {
	return newEvent(TypeStablecoinBurned, e.Timestamp, map[string]string{
		"depositor":    e.Depositor.Hex(),
		"asset":        e.Asset.Hex(),
		"bondAmount":   formatUint(e.BondAmount),
		"supplyAmount": formatUint(e.SupplyAmount),
		"fee":          formatUint(e.Fee),
		"bondPrice":    formatUint(e.BondPrice),
	})
}

type YieldDistributed struct {
	Depositor      common.Address
	Asset          common.Address
	ProtocolFee    uint64
	DepositorYield uint64
	Timestamp      time.Time
}

func (YieldDistributed) EventType() string { return TypeYieldDistributed }

func (e YieldDistributed) Event() *types.Event {
	return newEvent(TypeYieldDistributed, e.Timestamp, map[string]string{
		"depositor":      e.Depositor.Hex(),
		"asset":          e.Asset.Hex(),
		"protocolFee":    formatUint(e.ProtocolFee),
		"depositorYield": formatUint(e.DepositorYield),
	})
}

type BondAdded struct {
	Bond         common.Address
	PaymentAsset common.Address
	Admin        common.Address
	Timestamp    time.Time
}

func (BondAdded) EventType() string { return TypeBondAdded }

func (e BondAdded) Event() *types.Event {
	return newEvent(TypeBondAdded, e.Timestamp, map[string]string{
		"bond":         e.Bond.Hex(),
		"paymentAsset": e.PaymentAsset.Hex(),
		"admin":        e.Admin.Hex(),
	})
}

type BondConfigUpdated struct {
	Bond         common.Address
	Enabled      bool
	CustomFeeBps *uint32
	Admin        common.Address
	Timestamp    time.Time
}

func (BondConfigUpdated) EventType() string { return TypeBondConfigUpdated }

func (e BondConfigUpdated) Event() *types.Event {
	attrs := map[string]string{
		"bond":    e.Bond.Hex(),
		"enabled": strconv.FormatBool(e.Enabled),
		"admin":   e.Admin.Hex(),
	}
	if e.CustomFeeBps != nil {
		attrs["customFeeBps"] = formatUint(uint64(*e.CustomFeeBps))
	}
	return newEvent(TypeBondConfigUpdated, e.Timestamp, attrs)
}

type BondRemoved struct {
	Bond      common.Address
	Admin     common.Address
	Timestamp time.Time
}

func (BondRemoved) EventType() string { return TypeBondRemoved }

func (e BondRemoved) Event() *types.Event {
	return newEvent(TypeBondRemoved, e.Timestamp, map[string]string{
		"bond":  e.Bond.Hex(),
		"admin": e.Admin.Hex(),
	})
}

func newEvent(kind string, ts time.Time, attrs map[string]string) *types.Event {
	evt := &types.Event{Type: kind, Attributes: attrs}
	if !ts.IsZero() {
		evt.Timestamp = ts.Unix()
	}
	return evt
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

package stable

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"stablebond/storage"
)

var (
	protocolKey   = []byte("stable/protocol")
	registryKey   = []byte("stable/registry")
	feeVaultKey   = []byte("stable/feevault")
	assetIndexKey = []byte("stable/asset/index")

	assetPrefix     = []byte("stable/asset/")
	ledgerPrefix    = []byte("stable/ledger/")
	depositorPrefix = []byte("stable/depositor/")
)

var errReadOnly = errors.New("stable engine: write attempted on read-only view")

func assetKey(id common.Address) []byte {
	buf := make([]byte, len(assetPrefix)+common.AddressLength)
	copy(buf, assetPrefix)
	copy(buf[len(assetPrefix):], id[:])
	return buf
}

func ledgerKey(asset common.Address) []byte {
	buf := make([]byte, len(ledgerPrefix)+common.AddressLength)
	copy(buf, ledgerPrefix)
	copy(buf[len(ledgerPrefix):], asset[:])
	return buf
}

func depositorKey(asset, depositor common.Address) []byte {
	buf := make([]byte, len(depositorPrefix)+2*common.AddressLength)
	copy(buf, depositorPrefix)
	copy(buf[len(depositorPrefix):], asset[:])
	copy(buf[len(depositorPrefix)+common.AddressLength:], depositor[:])
	return buf
}

type storedProtocol struct {
	Admin                 common.Address
	FeeVault              common.Address
	FeeToken              common.Address
	MinCollateralRatioBps uint32
	BaseFeeBps            uint32
	Paused                bool
	Collectors            []common.Address
	Version               uint32
	AssetCount            uint32
	LastUpdate            uint64
}

type storedBond struct {
	Bond                common.Address
	PaymentAsset        common.Address
	Admin               common.Address
	FeedType            uint8
	MinCreationAmount   uint64
	MinRedemptionAmount uint64
	Enabled             bool
	HasCustomFee        bool
	CustomFeeBps        uint32
}

type storedCollateral struct {
	Bond            common.Address
	TotalCollateral uint64
	AssetCount      uint32
}

type storedRegistry struct {
	Bonds      []storedBond
	Collateral []storedCollateral
}

type storedAsset struct {
	ID                  common.Address
	Name                string
	Symbol              string
	OriginalSymbol      string
	TargetCurrency      string
	Creator             common.Address
	Bond                common.Address
	Feed                string
	CollateralVault     common.Address
	YieldToken          common.Address
	TotalSupply         uint64
	TotalCollateral     uint64
	CollateralRatioBps  uint32
	Paused              bool
	CreatedAt           uint64
	LastUpdated         uint64
	LastRebase          uint64
	LastRateUpdate      uint64
	LastPriceUpdate     uint64
	LastFeeCollection   uint64
	TotalRebaseAmount   uint64
	TotalYieldCollected uint64
}

type storedShare struct {
	Depositor  common.Address
	BondAmount uint64
	MintAmount uint64
	UpdatedAt  uint64
}

type storedDepositorState struct {
	TotalYieldCollected uint64
	LastYieldCollection uint64
}

type storedFeeVault struct {
	TotalFeesCollected uint64
	LastCollection     uint64
}

// Timestamps are stored as unix nanoseconds so interval gates see the same
// instant that was written.
func toUnix(t time.Time) uint64 {
	if t.IsZero() || t.UnixNano() < 0 {
		return 0
	}
	return uint64(t.UnixNano())
}

func fromUnix(ts uint64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ts)).UTC()
}

// kvState persists engine records as RLP blobs inside a storage transaction.
type kvState struct {
	r storage.Reader
	w storage.Txn
}

func newReadState(r storage.Reader) *kvState { return &kvState{r: r} }

func newWriteState(txn storage.Txn) *kvState { return &kvState{r: txn, w: txn} }

func (s *kvState) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.r.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("stable engine: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *kvState) put(key []byte, value interface{}) error {
	if s.w == nil {
		return errReadOnly
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.w.Put(key, encoded)
}

func (s *kvState) Protocol() (*ProtocolConfig, error) {
	var stored storedProtocol
	ok, err := s.get(protocolKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrProtocolUninitialized
	}
	return &ProtocolConfig{
		Admin:                 stored.Admin,
		FeeVault:              stored.FeeVault,
		FeeToken:              stored.FeeToken,
		MinCollateralRatioBps: stored.MinCollateralRatioBps,
		BaseFeeBps:            stored.BaseFeeBps,
		Paused:                stored.Paused,
		Collectors:            append([]common.Address(nil), stored.Collectors...),
		Version:               stored.Version,
		AssetCount:            stored.AssetCount,
		LastUpdate:            fromUnix(stored.LastUpdate),
	}, nil
}

func (s *kvState) HasProtocol() (bool, error) {
	return s.r.Has(protocolKey)
}

func (s *kvState) PutProtocol(p *ProtocolConfig) error {
	return s.put(protocolKey, storedProtocol{
		Admin:                 p.Admin,
		FeeVault:              p.FeeVault,
		FeeToken:              p.FeeToken,
		MinCollateralRatioBps: p.MinCollateralRatioBps,
		BaseFeeBps:            p.BaseFeeBps,
		Paused:                p.Paused,
		Collectors:            p.Collectors,
		Version:               p.Version,
		AssetCount:            p.AssetCount,
		LastUpdate:            toUnix(p.LastUpdate),
	})
}

func (s *kvState) Registry() (*Registry, error) {
	var stored storedRegistry
	if _, err := s.get(registryKey, &stored); err != nil {
		return nil, err
	}
	reg := &Registry{}
	for _, b := range stored.Bonds {
		cfg := &BondConfig{
			Bond:                b.Bond,
			PaymentAsset:        b.PaymentAsset,
			Admin:               b.Admin,
			FeedType:            FeedType(b.FeedType),
			MinCreationAmount:   b.MinCreationAmount,
			MinRedemptionAmount: b.MinRedemptionAmount,
			Enabled:             b.Enabled,
		}
		if b.HasCustomFee {
			fee := b.CustomFeeBps
			cfg.CustomFeeBps = &fee
		}
		reg.Bonds = append(reg.Bonds, cfg)
	}
	for _, c := range stored.Collateral {
		reg.Collateral = append(reg.Collateral, &BondCollateral{
			Bond:            c.Bond,
			TotalCollateral: c.TotalCollateral,
			AssetCount:      c.AssetCount,
		})
	}
	return reg, nil
}

func (s *kvState) PutRegistry(reg *Registry) error {
	stored := storedRegistry{
		Bonds:      make([]storedBond, 0, len(reg.Bonds)),
		Collateral: make([]storedCollateral, 0, len(reg.Collateral)),
	}
	for _, b := range reg.Bonds {
		entry := storedBond{
			Bond:                b.Bond,
			PaymentAsset:        b.PaymentAsset,
			Admin:               b.Admin,
			FeedType:            uint8(b.FeedType),
			MinCreationAmount:   b.MinCreationAmount,
			MinRedemptionAmount: b.MinRedemptionAmount,
			Enabled:             b.Enabled,
		}
		if b.CustomFeeBps != nil {
			entry.HasCustomFee = true
			entry.CustomFeeBps = *b.CustomFeeBps
		}
		stored.Bonds = append(stored.Bonds, entry)
	}
	for _, c := range reg.Collateral {
		stored.Collateral = append(stored.Collateral, storedCollateral{
			Bond:            c.Bond,
			TotalCollateral: c.TotalCollateral,
			AssetCount:      c.AssetCount,
		})
	}
	return s.put(registryKey, stored)
}

func (s *kvState) Asset(id common.Address) (*Asset, error) {
	var stored storedAsset
	ok, err := s.get(assetKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssetNotFound
	}
	return &Asset{
		ID:                  stored.ID,
		Name:                stored.Name,
		Symbol:              stored.Symbol,
		OriginalSymbol:      stored.OriginalSymbol,
		TargetCurrency:      stored.TargetCurrency,
		Creator:             stored.Creator,
		Bond:                stored.Bond,
		Feed:                stored.Feed,
		CollateralVault:     stored.CollateralVault,
		YieldToken:          stored.YieldToken,
		TotalSupply:         stored.TotalSupply,
		TotalCollateral:     stored.TotalCollateral,
		CollateralRatioBps:  stored.CollateralRatioBps,
		Paused:              stored.Paused,
		CreatedAt:           fromUnix(stored.CreatedAt),
		LastUpdated:         fromUnix(stored.LastUpdated),
		LastRebase:          fromUnix(stored.LastRebase),
		LastRateUpdate:      fromUnix(stored.LastRateUpdate),
		LastPriceUpdate:     fromUnix(stored.LastPriceUpdate),
		LastFeeCollection:   fromUnix(stored.LastFeeCollection),
		TotalRebaseAmount:   stored.TotalRebaseAmount,
		TotalYieldCollected: stored.TotalYieldCollected,
	}, nil
}

func (s *kvState) PutAsset(a *Asset) error {
	return s.put(assetKey(a.ID), storedAsset{
		ID:                  a.ID,
		Name:                a.Name,
		Symbol:              a.Symbol,
		OriginalSymbol:      a.OriginalSymbol,
		TargetCurrency:      a.TargetCurrency,
		Creator:             a.Creator,
		Bond:                a.Bond,
		Feed:                a.Feed,
		CollateralVault:     a.CollateralVault,
		YieldToken:          a.YieldToken,
		TotalSupply:         a.TotalSupply,
		TotalCollateral:     a.TotalCollateral,
		CollateralRatioBps:  a.CollateralRatioBps,
		Paused:              a.Paused,
		CreatedAt:           toUnix(a.CreatedAt),
		LastUpdated:         toUnix(a.LastUpdated),
		LastRebase:          toUnix(a.LastRebase),
		LastRateUpdate:      toUnix(a.LastRateUpdate),
		LastPriceUpdate:     toUnix(a.LastPriceUpdate),
		LastFeeCollection:   toUnix(a.LastFeeCollection),
		TotalRebaseAmount:   a.TotalRebaseAmount,
		TotalYieldCollected: a.TotalYieldCollected,
	})
}

func (s *kvState) AssetIDs() ([]common.Address, error) {
	var ids []common.Address
	if _, err := s.get(assetIndexKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *kvState) appendAssetID(id common.Address) error {
	ids, err := s.AssetIDs()
	if err != nil {
		return err
	}
	return s.put(assetIndexKey, append(ids, id))
}

func (s *kvState) Ledger(asset common.Address, limit int) (*Ledger, error) {
	var stored []storedShare
	if _, err := s.get(ledgerKey(asset), &stored); err != nil {
		return nil, err
	}
	ledger := NewLedger(limit)
	for _, share := range stored {
		ledger.put(DepositorShare{
			Depositor:  share.Depositor,
			BondAmount: share.BondAmount,
			MintAmount: share.MintAmount,
			UpdatedAt:  fromUnix(share.UpdatedAt),
		})
	}
	return ledger, nil
}

func (s *kvState) PutLedger(asset common.Address, ledger *Ledger) error {
	shares := ledger.Shares()
	stored := make([]storedShare, 0, len(shares))
	for _, share := range shares {
		stored = append(stored, storedShare{
			Depositor:  share.Depositor,
			BondAmount: share.BondAmount,
			MintAmount: share.MintAmount,
			UpdatedAt:  toUnix(share.UpdatedAt),
		})
	}
	return s.put(ledgerKey(asset), stored)
}

func (s *kvState) DepositorState(asset, depositor common.Address) (*DepositorState, error) {
	var stored storedDepositorState
	if _, err := s.get(depositorKey(asset, depositor), &stored); err != nil {
		return nil, err
	}
	return &DepositorState{
		Asset:               asset,
		Depositor:           depositor,
		TotalYieldCollected: stored.TotalYieldCollected,
		LastYieldCollection: fromUnix(stored.LastYieldCollection),
	}, nil
}

func (s *kvState) PutDepositorState(state *DepositorState) error {
	return s.put(depositorKey(state.Asset, state.Depositor), storedDepositorState{
		TotalYieldCollected: state.TotalYieldCollected,
		LastYieldCollection: toUnix(state.LastYieldCollection),
	})
}

func (s *kvState) FeeVault() (*FeeVault, error) {
	var stored storedFeeVault
	if _, err := s.get(feeVaultKey, &stored); err != nil {
		return nil, err
	}
	return &FeeVault{
		TotalFeesCollected: stored.TotalFeesCollected,
		LastCollection:     fromUnix(stored.LastCollection),
	}, nil
}

func (s *kvState) PutFeeVault(v *FeeVault) error {
	return s.put(feeVaultKey, storedFeeVault{
		TotalFeesCollected: v.TotalFeesCollected,
		LastCollection:     toUnix(v.LastCollection),
	})
}

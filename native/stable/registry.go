package stable

import (
	"github.com/ethereum/go-ethereum/common"
)

// Registry holds the supported bond configurations together with the
// aggregate collateral tracked for each bond.
type Registry struct {
	Bonds      []*BondConfig
	Collateral []*BondCollateral
}

// BondParams describes a bond being onboarded.
type BondParams struct {
	Bond                common.Address
	PaymentAsset        common.Address
	FeedType            FeedType
	MinCreationAmount   uint64
	MinRedemptionAmount uint64
}

// BondUpdate toggles a bond and adjusts its fee override.
type BondUpdate struct {
	Enabled      *bool
	CustomFeeBps Update[uint32]
}

// Clone returns a deep copy of the registry.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return &Registry{}
	}
	clone := &Registry{
		Bonds:      make([]*BondConfig, 0, len(r.Bonds)),
		Collateral: make([]*BondCollateral, 0, len(r.Collateral)),
	}
	for _, b := range r.Bonds {
		clone.Bonds = append(clone.Bonds, b.Clone())
	}
	for _, c := range r.Collateral {
		entry := *c
		clone.Collateral = append(clone.Collateral, &entry)
	}
	return clone
}

// Bond returns the configuration of a supported bond.
func (r *Registry) Bond(bond common.Address) (*BondConfig, bool) {
	if r == nil {
		return nil, false
	}
	for _, cfg := range r.Bonds {
		if cfg.Bond == bond {
			return cfg, true
		}
	}
	return nil, false
}

// Tracker returns the aggregate collateral entry for a bond.
func (r *Registry) Tracker(bond common.Address) (*BondCollateral, bool) {
	if r == nil {
		return nil, false
	}
	for _, entry := range r.Collateral {
		if entry.Bond == bond {
			return entry, true
		}
	}
	return nil, false
}

// Add onboards a new bond. New bonds start enabled with no fee override.
func (r *Registry) Add(params BondParams, admin common.Address) (*BondConfig, error) {
	if len(r.Bonds) >= MaxBonds {
		return nil, ErrTooManyBonds
	}
	if _, ok := r.Bond(params.Bond); ok {
		return nil, ErrBondAlreadyExists
	}
	cfg := &BondConfig{
		Bond:                params.Bond,
		PaymentAsset:        params.PaymentAsset,
		Admin:               admin,
		FeedType:            params.FeedType,
		MinCreationAmount:   params.MinCreationAmount,
		MinRedemptionAmount: params.MinRedemptionAmount,
		Enabled:             true,
	}
	r.Bonds = append(r.Bonds, cfg)
	if _, ok := r.Tracker(params.Bond); !ok {
		r.Collateral = append(r.Collateral, &BondCollateral{Bond: params.Bond})
	}
	return cfg, nil
}

// Update applies the enable toggle and fee override instruction.
func (r *Registry) Update(bond common.Address, update BondUpdate) (*BondConfig, error) {
	cfg, ok := r.Bond(bond)
	if !ok {
		return nil, ErrBondNotFound
	}
	if fee, set := update.CustomFeeBps.Value(); set {
		if err := ValidateFeeRate(fee); err != nil {
			return nil, err
		}
	}
	if update.Enabled != nil {
		cfg.Enabled = *update.Enabled
	}
	cfg.CustomFeeBps = update.CustomFeeBps.Apply(cfg.CustomFeeBps)
	return cfg, nil
}

// Remove drops a bond. Bonds with collateral still tracked cannot be removed.
func (r *Registry) Remove(bond common.Address) error {
	if r.HasActiveCollateral(bond) {
		return ErrActiveCollateralExists
	}
	idx := -1
	for i, cfg := range r.Bonds {
		if cfg.Bond == bond {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrBondNotFound
	}
	r.Bonds = append(r.Bonds[:idx], r.Bonds[idx+1:]...)
	for i, entry := range r.Collateral {
		if entry.Bond == bond {
			r.Collateral = append(r.Collateral[:i], r.Collateral[i+1:]...)
			break
		}
	}
	return nil
}

// HasActiveCollateral reports whether any collateral is tracked for bond.
func (r *Registry) HasActiveCollateral(bond common.Address) bool {
	entry, ok := r.Tracker(bond)
	return ok && entry.TotalCollateral > 0
}

// Deposit increments the collateral tracked for bond.
func (r *Registry) Deposit(bond common.Address, amount uint64) error {
	entry, ok := r.Tracker(bond)
	if !ok {
		return ErrBondNotFound
	}
	total, err := addChecked(entry.TotalCollateral, amount)
	if err != nil {
		return err
	}
	entry.TotalCollateral = total
	return nil
}

// Withdraw decrements the collateral tracked for bond.
func (r *Registry) Withdraw(bond common.Address, amount uint64) error {
	entry, ok := r.Tracker(bond)
	if !ok {
		return ErrBondNotFound
	}
	total, err := subChecked(entry.TotalCollateral, amount, ErrInsufficientCollateral)
	if err != nil {
		return err
	}
	entry.TotalCollateral = total
	return nil
}

// Attach records a new asset issued against bond. The bond must be supported
// and enabled.
func (r *Registry) Attach(bond common.Address) error {
	cfg, ok := r.Bond(bond)
	if !ok {
		return ErrUnsupportedBond
	}
	if !cfg.Enabled {
		return ErrBondDisabled
	}
	entry, ok := r.Tracker(bond)
	if !ok {
		return ErrBondNotFound
	}
	entry.AssetCount++
	return nil
}

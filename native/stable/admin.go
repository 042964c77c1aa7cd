package stable

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"stablebond/core/events"
)

// InitParams seeds the global policy.
type InitParams struct {
	Admin                 common.Address
	FeeVault              common.Address
	FeeToken              common.Address
	MinCollateralRatioBps uint32
	BaseFeeBps            uint32
}

// InitProtocol stores the global policy. It may only run once.
func (e *Engine) InitProtocol(ctx context.Context, params InitParams, now time.Time) error {
	return e.run(ctx, "init_protocol", []attribute.KeyValue{
		attribute.String("admin", params.Admin.Hex()),
	}, func(tx *txn) error {
		exists, err := tx.state.HasProtocol()
		if err != nil {
			return err
		}
		if exists {
			return ErrProtocolInitialized
		}
		if err := ValidateCollateralRatio(params.MinCollateralRatioBps); err != nil {
			return err
		}
		if err := ValidateFeeRate(params.BaseFeeBps); err != nil {
			return err
		}
		policy := &ProtocolConfig{
			Admin:                 params.Admin,
			FeeVault:              params.FeeVault,
			FeeToken:              params.FeeToken,
			MinCollateralRatioBps: params.MinCollateralRatioBps,
			BaseFeeBps:            params.BaseFeeBps,
			Collectors:            []common.Address{params.Admin},
			Version:               1,
			LastUpdate:            now,
		}
		if err := tx.state.PutProtocol(policy); err != nil {
			return err
		}
		if err := tx.state.PutRegistry(&Registry{}); err != nil {
			return err
		}
		if err := tx.state.PutFeeVault(&FeeVault{}); err != nil {
			return err
		}
		tx.emit(events.FactoryInitialized{
			Admin:              policy.Admin,
			FeeVault:           policy.FeeVault,
			MinCollateralRatio: policy.MinCollateralRatioBps,
			BaseFeeRate:        policy.BaseFeeBps,
			ProtocolVersion:    policy.Version,
			Timestamp:          now,
		})
		return nil
	})
}

// ProtocolUpdate lists the policy fields to change; nil leaves a field as is.
type ProtocolUpdate struct {
	Admin                 *common.Address
	MinCollateralRatioBps *uint32
	BaseFeeBps            *uint32
	FeeVault              *common.Address
	AddCollector          *common.Address
}

// UpdateProtocol applies an admin change to the global policy and bumps its
// version.
func (e *Engine) UpdateProtocol(ctx context.Context, caller common.Address, update ProtocolUpdate, now time.Time) error {
	return e.run(ctx, "update_protocol", nil, func(tx *txn) error {
		policy, err := tx.state.Protocol()
		if err != nil {
			return err
		}
		if caller != policy.Admin {
			return ErrUnauthorized
		}
		if update.MinCollateralRatioBps != nil {
			if err := ValidateCollateralRatio(*update.MinCollateralRatioBps); err != nil {
				return err
			}
			policy.MinCollateralRatioBps = *update.MinCollateralRatioBps
		}
		if update.BaseFeeBps != nil {
			if err := ValidateFeeRate(*update.BaseFeeBps); err != nil {
				return err
			}
			policy.BaseFeeBps = *update.BaseFeeBps
		}
		if update.AddCollector != nil {
			if err := policy.AddCollector(*update.AddCollector); err != nil {
				return err
			}
		}
		if update.Admin != nil {
			policy.Admin = *update.Admin
		}
		if update.FeeVault != nil {
			policy.FeeVault = *update.FeeVault
		}
		policy.Version++
		policy.LastUpdate = now
		if err := tx.state.PutProtocol(policy); err != nil {
			return err
		}
		tx.emit(events.FactoryConfigUpdated{
			Admin:              policy.Admin,
			FeeVault:           policy.FeeVault,
			MinCollateralRatio: policy.MinCollateralRatioBps,
			BaseFeeRate:        policy.BaseFeeBps,
			ProtocolVersion:    policy.Version,
			Timestamp:          now,
		})
		return nil
	})
}

// SetProtocolPaused toggles the global pause switch.
func (e *Engine) SetProtocolPaused(ctx context.Context, caller common.Address, paused bool, now time.Time) error {
	return e.run(ctx, "set_protocol_paused", []attribute.KeyValue{
		attribute.Bool("paused", paused),
	}, func(tx *txn) error {
		policy, err := tx.state.Protocol()
		if err != nil {
			return err
		}
		if caller != policy.Admin {
			return ErrUnauthorized
		}
		policy.Paused = paused
		policy.LastUpdate = now
		return tx.state.PutProtocol(policy)
	})
}

// CreateAssetParams describes a new synthetic asset.
type CreateAssetParams struct {
	ID                 common.Address
	Name               string
	Symbol             string
	TargetCurrency     string
	Bond               common.Address
	Feed               string
	CollateralVault    common.Address
	YieldToken         common.Address
	CollateralRatioBps uint32
}

// CreateAsset registers a synthetic asset against a supported, enabled bond.
// A ratio of zero or below the policy minimum is raised to the minimum and a
// ratio above the ceiling is lowered to it.
func (e *Engine) CreateAsset(ctx context.Context, creator common.Address, params CreateAssetParams, now time.Time) (*Asset, error) {
	var created *Asset
	err := e.run(ctx, "create_asset", []attribute.KeyValue{
		attribute.String("asset", params.ID.Hex()),
		attribute.String("bond", params.Bond.Hex()),
	}, func(tx *txn) error {
		policy, err := tx.state.Protocol()
		if err != nil {
			return err
		}
		if policy.Paused {
			return ErrFactoryPaused
		}
		name := strings.TrimSpace(params.Name)
		if err := validateName(name); err != nil {
			return err
		}
		symbol := strings.TrimSpace(params.Symbol)
		if err := validateSymbol(symbol); err != nil {
			return err
		}
		if _, err := tx.state.Asset(params.ID); err == nil {
			return ErrAssetExists
		} else if !errors.Is(err, ErrAssetNotFound) {
			return err
		}
		registry, err := tx.state.Registry()
		if err != nil {
			return err
		}
		if err := registry.Attach(params.Bond); err != nil {
			return err
		}
		asset := &Asset{
			ID:                 params.ID,
			Name:               name,
			Symbol:             symbol,
			OriginalSymbol:     symbol,
			TargetCurrency:     strings.ToUpper(strings.TrimSpace(params.TargetCurrency)),
			Creator:            creator,
			Bond:               params.Bond,
			Feed:               strings.TrimSpace(params.Feed),
			CollateralVault:    params.CollateralVault,
			YieldToken:         params.YieldToken,
			CollateralRatioBps: clampRatio(params.CollateralRatioBps, policy.MinCollateralRatioBps),
			CreatedAt:          now,
			LastUpdated:        now,
			LastRebase:         now,
			LastRateUpdate:     now,
		}
		policy.AssetCount++
		if err := tx.state.PutRegistry(registry); err != nil {
			return err
		}
		if err := tx.state.PutProtocol(policy); err != nil {
			return err
		}
		if err := tx.state.PutAsset(asset); err != nil {
			return err
		}
		if err := tx.state.appendAssetID(asset.ID); err != nil {
			return err
		}
		created = asset.Clone()
		tx.emit(events.StablecoinCreated{
			Creator:        creator,
			Asset:          asset.ID,
			Bond:           asset.Bond,
			Name:           asset.Name,
			Symbol:         asset.Symbol,
			TargetCurrency: asset.TargetCurrency,
			Timestamp:      now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateAsset renames an asset. Only the creator may do so.
func (e *Engine) UpdateAsset(ctx context.Context, caller, assetID common.Address, name, symbol *string, now time.Time) error {
	return e.run(ctx, "update_asset", []attribute.KeyValue{
		attribute.String("asset", assetID.Hex()),
	}, func(tx *txn) error {
		policy, err := tx.state.Protocol()
		if err != nil {
			return err
		}
		if policy.Paused {
			return ErrFactoryPaused
		}
		asset, err := tx.state.Asset(assetID)
		if err != nil {
			return err
		}
		if caller != asset.Creator {
			return ErrUnauthorized
		}
		evt := events.StablecoinUpdated{Authority: caller, Asset: assetID, Timestamp: now}
		if name != nil {
			trimmed := strings.TrimSpace(*name)
			if err := validateName(trimmed); err != nil {
				return err
			}
			asset.Name = trimmed
			evt.Name = &trimmed
		}
		if symbol != nil {
			trimmed := strings.TrimSpace(*symbol)
			if err := validateSymbol(trimmed); err != nil {
				return err
			}
			asset.Symbol = trimmed
			evt.Symbol = &trimmed
		}
		asset.LastUpdated = now
		if err := tx.state.PutAsset(asset); err != nil {
			return err
		}
		tx.emit(evt)
		return nil
	})
}

// PauseAsset halts mint and burn for an asset.
func (e *Engine) PauseAsset(ctx context.Context, caller, assetID common.Address, now time.Time) error {
	return e.setAssetPaused(ctx, "pause_asset", caller, assetID, true, now)
}

// ResumeAsset lifts an asset pause.
func (e *Engine) ResumeAsset(ctx context.Context, caller, assetID common.Address, now time.Time) error {
	return e.setAssetPaused(ctx, "resume_asset", caller, assetID, false, now)
}

func (e *Engine) setAssetPaused(ctx context.Context, op string, caller, assetID common.Address, paused bool, now time.Time) error {
	return e.run(ctx, op, []attribute.KeyValue{
		attribute.String("asset", assetID.Hex()),
	}, func(tx *txn) error {
		policy, err := tx.state.Protocol()
		if err != nil {
			return err
		}
		if policy.Paused {
			return ErrFactoryPaused
		}
		asset, err := tx.state.Asset(assetID)
		if err != nil {
			return err
		}
		if caller != policy.Admin || caller != asset.Creator {
			return ErrUnauthorized
		}
		if paused && asset.Paused {
			return ErrAlreadyPaused
		}
		if !paused && !asset.Paused {
			return ErrNotPaused
		}
		asset.Paused = paused
		asset.LastUpdated = now
		if err := tx.state.PutAsset(asset); err != nil {
			return err
		}
		if paused {
			tx.emit(events.StablecoinPaused{Admin: caller, Asset: assetID, Timestamp: now})
		} else {
			tx.emit(events.StablecoinResumed{Admin: caller, Asset: assetID, Timestamp: now})
		}
		return nil
	})
}

// AddBond onboards a bond into the registry together with its collateral
// tracker entry.
func (e *Engine) AddBond(ctx context.Context, caller common.Address, params BondParams, now time.Time) error {
	return e.run(ctx, "add_bond", []attribute.KeyValue{
		attribute.String("bond", params.Bond.Hex()),
	}, func(tx *txn) error {
		registry, err := e.adminRegistry(tx, caller)
		if err != nil {
			return err
		}
		cfg, err := registry.Add(params, caller)
		if err != nil {
			return err
		}
		if err := tx.state.PutRegistry(registry); err != nil {
			return err
		}
		tx.emit(events.BondAdded{
			Bond:         cfg.Bond,
			PaymentAsset: cfg.PaymentAsset,
			Admin:        caller,
			Timestamp:    now,
		})
		return nil
	})
}

// UpdateBond toggles a bond or changes its fee override.
func (e *Engine) UpdateBond(ctx context.Context, caller, bond common.Address, update BondUpdate, now time.Time) error {
	return e.run(ctx, "update_bond", []attribute.KeyValue{
		attribute.String("bond", bond.Hex()),
	}, func(tx *txn) error {
		registry, err := e.adminRegistry(tx, caller)
		if err != nil {
			return err
		}
		cfg, err := registry.Update(bond, update)
		if err != nil {
			return err
		}
		if err := tx.state.PutRegistry(registry); err != nil {
			return err
		}
		evt := events.BondConfigUpdated{
			Bond:      cfg.Bond,
			Enabled:   cfg.Enabled,
			Admin:     caller,
			Timestamp: now,
		}
		if cfg.CustomFeeBps != nil {
			fee := *cfg.CustomFeeBps
			evt.CustomFeeBps = &fee
		}
		tx.emit(evt)
		return nil
	})
}

// RemoveBond drops a bond that no longer backs any collateral.
func (e *Engine) RemoveBond(ctx context.Context, caller, bond common.Address, now time.Time) error {
	return e.run(ctx, "remove_bond", []attribute.KeyValue{
		attribute.String("bond", bond.Hex()),
	}, func(tx *txn) error {
		registry, err := e.adminRegistry(tx, caller)
		if err != nil {
			return err
		}
		if err := registry.Remove(bond); err != nil {
			return err
		}
		if err := tx.state.PutRegistry(registry); err != nil {
			return err
		}
		tx.emit(events.BondRemoved{Bond: bond, Admin: caller, Timestamp: now})
		return nil
	})
}

func (e *Engine) adminRegistry(tx *txn, caller common.Address) (*Registry, error) {
	policy, err := tx.state.Protocol()
	if err != nil {
		return nil, err
	}
	if caller != policy.Admin {
		return nil, ErrUnauthorized
	}
	return tx.state.Registry()
}

func clampRatio(ratio, floor uint32) uint32 {
	if floor < MinCollateralRatioBps {
		floor = MinCollateralRatioBps
	}
	switch {
	case ratio < floor:
		return floor
	case ratio > MaxCollateralRatioBps:
		return MaxCollateralRatioBps
	default:
		return ratio
	}
}

func validateName(name string) error {
	if name == "" || len(name) > MaxNameLength {
		return ErrInvalidName
	}
	return nil
}

func validateSymbol(symbol string) error {
	if symbol == "" || len(symbol) > MaxSymbolLength {
		return ErrInvalidSymbol
	}
	return nil
}

package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stablebond/native/stable"
)

// Apply seeds an uninitialised engine with the genesis policy, bonds and
// assets. A store that already holds a protocol is left untouched and Apply
// reports false, so later admin changes survive a restart.
func Apply(ctx context.Context, engine *stable.Engine, g *Genesis, now time.Time) (bool, error) {
	if engine == nil {
		return false, fmt.Errorf("genesis: engine required")
	}
	if err := ValidateGenesis(g); err != nil {
		return false, err
	}
	_, err := engine.Protocol()
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, stable.ErrProtocolUninitialized):
		return false, fmt.Errorf("genesis: read protocol: %w", err)
	}
	admin, _ := parseAddress("protocol.Admin", g.Protocol.Admin)
	feeVault, _ := parseAddress("protocol.FeeVault", g.Protocol.FeeVault)
	feeToken, _ := parseOptionalAddress("protocol.FeeToken", g.Protocol.FeeToken)

	err = engine.InitProtocol(ctx, stable.InitParams{
		Admin:                 admin,
		FeeVault:              feeVault,
		FeeToken:              feeToken,
		MinCollateralRatioBps: g.Protocol.MinCollateralRatioBps,
		BaseFeeBps:            g.Protocol.BaseFeeBps,
	}, now)
	if err != nil {
		return false, fmt.Errorf("genesis: init protocol: %w", err)
	}

	for _, raw := range g.Protocol.Collectors {
		collector, _ := parseAddress("protocol.Collectors", raw)
		err := engine.UpdateProtocol(ctx, admin, stable.ProtocolUpdate{AddCollector: &collector}, now)
		if err != nil && !errors.Is(err, stable.ErrCollectorAlreadyExists) {
			return false, fmt.Errorf("genesis: add collector %s: %w", collector.Hex(), err)
		}
	}

	for i, b := range g.Bonds {
		addr, _ := parseAddress("bond.Address", b.Address)
		payment, _ := parseOptionalAddress("bond.PaymentAsset", b.PaymentAsset)
		feed, _ := stable.ParseFeedType(b.Feed)
		err := engine.AddBond(ctx, admin, stable.BondParams{
			Bond:                addr,
			PaymentAsset:        payment,
			FeedType:            feed,
			MinCreationAmount:   b.MinCreationAmount,
			MinRedemptionAmount: b.MinRedemptionAmount,
		}, now)
		if err != nil {
			return false, fmt.Errorf("genesis: bond[%d]: %w", i, err)
		}
		if b.CustomFeeBps == nil && b.Enabled == nil {
			continue
		}
		update := stable.BondUpdate{Enabled: b.Enabled}
		if b.CustomFeeBps != nil {
			update.CustomFeeBps = stable.Set(*b.CustomFeeBps)
		}
		if err := engine.UpdateBond(ctx, admin, addr, update, now); err != nil {
			return false, fmt.Errorf("genesis: bond[%d] update: %w", i, err)
		}
	}

	for i, a := range g.Assets {
		id, _ := parseAddress("asset.Address", a.Address)
		bond, _ := parseAddress("asset.Bond", a.Bond)
		vault, _ := parseAddress("asset.CollateralVault", a.CollateralVault)
		yield, _ := parseAddress("asset.YieldToken", a.YieldToken)
		_, err := engine.CreateAsset(ctx, admin, stable.CreateAssetParams{
			ID:                 id,
			Name:               a.Name,
			Symbol:             a.Symbol,
			TargetCurrency:     a.TargetCurrency,
			Bond:               bond,
			Feed:               a.Feed,
			CollateralVault:    vault,
			YieldToken:         yield,
			CollateralRatioBps: a.CollateralRatioBps,
		}, now)
		if err != nil {
			return false, fmt.Errorf("genesis: asset[%d]: %w", i, err)
		}
	}
	return true, nil
}

package config

import (
	"fmt"

	"stablebond/native/stable"
)

// ValidateGenesis checks addresses, bounds and cross references before any
// state is written.
func ValidateGenesis(g *Genesis) error {
	if g == nil {
		return fmt.Errorf("genesis: document required")
	}
	if _, err := parseAddress("protocol.Admin", g.Protocol.Admin); err != nil {
		return err
	}
	if _, err := parseAddress("protocol.FeeVault", g.Protocol.FeeVault); err != nil {
		return err
	}
	if _, err := parseOptionalAddress("protocol.FeeToken", g.Protocol.FeeToken); err != nil {
		return err
	}
	if err := stable.ValidateCollateralRatio(g.Protocol.MinCollateralRatioBps); err != nil {
		return fmt.Errorf("protocol.MinCollateralRatioBps: %w", err)
	}
	if err := stable.ValidateFeeRate(g.Protocol.BaseFeeBps); err != nil {
		return fmt.Errorf("protocol.BaseFeeBps: %w", err)
	}
	if len(g.Protocol.Collectors) >= stable.MaxCollectors {
		return fmt.Errorf("protocol.Collectors: at most %d besides the admin", stable.MaxCollectors-1)
	}
	for i, c := range g.Protocol.Collectors {
		if _, err := parseAddress(fmt.Sprintf("protocol.Collectors[%d]", i), c); err != nil {
			return err
		}
	}
	if len(g.Bonds) > stable.MaxBonds {
		return fmt.Errorf("bond: at most %d entries", stable.MaxBonds)
	}

	bonds := make(map[string]struct{}, len(g.Bonds))
	for i, b := range g.Bonds {
		addr, err := parseAddress(fmt.Sprintf("bond[%d].Address", i), b.Address)
		if err != nil {
			return err
		}
		if _, dup := bonds[addr.Hex()]; dup {
			return fmt.Errorf("bond[%d]: duplicate bond %s", i, addr.Hex())
		}
		bonds[addr.Hex()] = struct{}{}
		if _, err := parseOptionalAddress(fmt.Sprintf("bond[%d].PaymentAsset", i), b.PaymentAsset); err != nil {
			return err
		}
		if _, ok := stable.ParseFeedType(b.Feed); !ok {
			return fmt.Errorf("bond[%d].Feed: unknown feed type %q", i, b.Feed)
		}
		if b.CustomFeeBps != nil {
			if err := stable.ValidateFeeRate(*b.CustomFeeBps); err != nil {
				return fmt.Errorf("bond[%d].CustomFeeBps: %w", i, err)
			}
		}
	}

	assets := make(map[string]struct{}, len(g.Assets))
	for i, a := range g.Assets {
		addr, err := parseAddress(fmt.Sprintf("asset[%d].Address", i), a.Address)
		if err != nil {
			return err
		}
		if _, dup := assets[addr.Hex()]; dup {
			return fmt.Errorf("asset[%d]: duplicate asset %s", i, addr.Hex())
		}
		assets[addr.Hex()] = struct{}{}
		bond, err := parseAddress(fmt.Sprintf("asset[%d].Bond", i), a.Bond)
		if err != nil {
			return err
		}
		if _, ok := bonds[bond.Hex()]; !ok {
			return fmt.Errorf("asset[%d].Bond: %s is not declared in [[bond]]", i, bond.Hex())
		}
		if a.Feed == "" {
			return fmt.Errorf("asset[%d].Feed: required", i)
		}
		for field, value := range map[string]string{
			"CollateralVault": a.CollateralVault,
			"YieldToken":      a.YieldToken,
		} {
			if _, err := parseAddress(fmt.Sprintf("asset[%d].%s", i, field), value); err != nil {
				return err
			}
		}
	}
	return nil
}

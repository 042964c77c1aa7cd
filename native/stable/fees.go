package stable

// FeeRate resolves the basis-point rate charged for a bond: the bond's
// override when present, otherwise the protocol default.
func FeeRate(policy *ProtocolConfig, bond *BondConfig) uint32 {
	if bond != nil && bond.CustomFeeBps != nil {
		return *bond.CustomFeeBps
	}
	if policy == nil {
		return DefaultFeeRateBps
	}
	return policy.BaseFeeBps
}

// Fee computes floor(amount*rate/BpsScale).
func Fee(amount uint64, rateBps uint32) (uint64, error) {
	return widen(amount).
		mul(uint64(rateBps)).
		div(BpsScale).
		narrow(ErrFeeTooLarge)
}

// yieldSplit separates the protocol's cut from a rebase payout.
func yieldSplit(total uint64) (protocolFee, depositorYield uint64, err error) {
	protocolFee, err = widen(total).mul(ProtocolFeeBps).div(BpsScale).narrow(ErrMathOverflow)
	if err != nil {
		return 0, 0, err
	}
	depositorYield, err = subChecked(total, protocolFee, ErrMathOverflow)
	if err != nil {
		return 0, 0, err
	}
	return protocolFee, depositorYield, nil
}

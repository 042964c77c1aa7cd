package stable

import "time"

// OraclePrice scales the absolute oracle mantissa into PriceScale fixed point.
func OraclePrice(mantissa int64) (uint64, error) {
	magnitude := absMantissa(mantissa)
	price, err := widen(magnitude).mul(PriceScale).narrow(ErrMathOverflow)
	if err != nil {
		return 0, err
	}
	if price == 0 {
		return 0, ErrInvalidOraclePrice
	}
	return price, nil
}

func absMantissa(mantissa int64) uint64 {
	if mantissa < 0 {
		// Two's complement negation keeps math.MinInt64 representable.
		return uint64(^mantissa) + 1
	}
	return uint64(mantissa)
}

// MintAmount converts a bond deposit into supply units:
// floor(bond*price*BpsScale / ratio / PriceScale).
func MintAmount(bondAmount, price uint64, ratioBps uint32) (uint64, error) {
	if price == 0 {
		return 0, ErrInvalidOraclePrice
	}
	if err := ValidateCollateralRatio(ratioBps); err != nil {
		return 0, err
	}
	return widen(bondAmount).
		mul(price).
		mul(BpsScale).
		div(uint64(ratioBps)).
		div(PriceScale).
		narrow(ErrExcessivePriceDeviation)
}

// BondReturn converts a supply redemption into bond units:
// floor(supply*ratio*PriceScale / price / BpsScale).
func BondReturn(supplyAmount, price uint64, ratioBps uint32) (uint64, error) {
	if price == 0 {
		return 0, ErrInvalidOraclePrice
	}
	if err := ValidateCollateralRatio(ratioBps); err != nil {
		return 0, err
	}
	return widen(supplyAmount).
		mul(uint64(ratioBps)).
		mul(PriceScale).
		div(price).
		div(BpsScale).
		narrow(ErrExcessivePriceDeviation)
}

// checkAge enforces now - observed <= window. Readings stamped in the future
// are treated as age zero.
func checkAge(observed, now time.Time, window time.Duration, stale error) error {
	if observed.IsZero() {
		return stale
	}
	if now.Sub(observed) > window {
		return stale
	}
	return nil
}

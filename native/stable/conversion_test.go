package stable

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestMintAndRedeemScenario(t *testing.T) {
	price, err := OraclePrice(2)
	if err != nil {
		t.Fatalf("oracle price: %v", err)
	}
	if price != 2_000_000 {
		t.Fatalf("expected price 2000000, got %d", price)
	}
	minted, err := MintAmount(1_000_000, price, 15_000)
	if err != nil {
		t.Fatalf("mint amount: %v", err)
	}
	if minted != 1_333_333 {
		t.Fatalf("expected 1333333 minted, got %d", minted)
	}
	returned, err := BondReturn(minted, price, 15_000)
	if err != nil {
		t.Fatalf("bond return: %v", err)
	}
	if returned != 999_999 {
		t.Fatalf("expected 999999 returned, got %d", returned)
	}
}

func TestRoundTripNeverReturnsMoreThanDeposited(t *testing.T) {
	ratios := []uint32{MinCollateralRatioBps, DefaultCollateralRatioBps, 20_000, 33_333, MaxCollateralRatioBps}
	mantissas := []int64{1, 2, 7, 13, 999, 1_000_003}
	bonds := []uint64{1, 3, 17, 1_000, 999_999, 1_000_000_007}
	for _, r := range ratios {
		for _, m := range mantissas {
			price, err := OraclePrice(m)
			if err != nil {
				t.Fatalf("price %d: %v", m, err)
			}
			for _, b := range bonds {
				minted, err := MintAmount(b, price, r)
				if err != nil {
					t.Fatalf("mint b=%d p=%d r=%d: %v", b, price, r, err)
				}
				back, err := BondReturn(minted, price, r)
				if err != nil {
					t.Fatalf("return b=%d p=%d r=%d: %v", b, price, r, err)
				}
				if back > b {
					t.Fatalf("round trip created collateral: b=%d p=%d r=%d back=%d", b, price, r, back)
				}
			}
		}
	}
}

func TestConversionPreconditions(t *testing.T) {
	if _, err := MintAmount(1, 0, DefaultCollateralRatioBps); !errors.Is(err, ErrInvalidOraclePrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
	if _, err := BondReturn(1, PriceScale, 11_999); !errors.Is(err, ErrInvalidCollateralRatio) {
		t.Fatalf("expected invalid ratio, got %v", err)
	}
	if _, err := MintAmount(1, PriceScale, 65_001); !errors.Is(err, ErrInvalidCollateralRatio) {
		t.Fatalf("expected invalid ratio, got %v", err)
	}
	if _, err := OraclePrice(0); !errors.Is(err, ErrInvalidOraclePrice) {
		t.Fatalf("expected invalid price for zero mantissa, got %v", err)
	}
}

func TestOraclePriceUsesMagnitude(t *testing.T) {
	price, err := OraclePrice(-5)
	if err != nil {
		t.Fatalf("oracle price: %v", err)
	}
	if price != 5*PriceScale {
		t.Fatalf("expected %d, got %d", 5*PriceScale, price)
	}
	if _, err := OraclePrice(math.MinInt64); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow for min mantissa, got %v", err)
	}
}

func TestMintAmountOutOfRange(t *testing.T) {
	price, err := OraclePrice(1_000_000)
	if err != nil {
		t.Fatalf("oracle price: %v", err)
	}
	if _, err := MintAmount(math.MaxUint64, price, MinCollateralRatioBps); !errors.Is(err, ErrExcessivePriceDeviation) {
		t.Fatalf("expected excessive deviation, got %v", err)
	}
}

func TestCheckAgeBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	window := 300 * time.Second
	if err := checkAge(now.Add(-window), now, window, ErrStaleOraclePrice); err != nil {
		t.Fatalf("boundary age must be accepted: %v", err)
	}
	if err := checkAge(now.Add(-window-time.Second), now, window, ErrStaleOraclePrice); !errors.Is(err, ErrStaleOraclePrice) {
		t.Fatalf("expected stale, got %v", err)
	}
	if err := checkAge(time.Time{}, now, window, ErrStale); !errors.Is(err, ErrStale) {
		t.Fatalf("missing reading must be stale, got %v", err)
	}
	if err := checkAge(now.Add(time.Minute), now, window, ErrStale); err != nil {
		t.Fatalf("future reading treated as fresh: %v", err)
	}
}

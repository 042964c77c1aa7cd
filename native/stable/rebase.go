package stable

import (
	"math"
	"time"
)

// YieldQuote is the outcome of a rebase computation for one depositor.
type YieldQuote struct {
	CurrentPrice   uint64
	YieldRate      uint64
	TotalYield     uint64
	ProtocolFee    uint64
	DepositorYield uint64
}

// ConversionRate returns the currency conversion applied to a bond's oracle
// price. USD-quoted and stub feeds convert 1:1; foreign feeds use the oracle
// mantissa.
func ConversionRate(feed FeedType, reading PriceReading) uint64 {
	switch feed {
	case FeedForeign:
		return absMantissa(reading.Mantissa)
	default:
		return PriceScale
	}
}

// QuoteYield computes the time-weighted yield owed on supplyAmount:
//
//	current_price = |mantissa| * conversion / PriceScale
//	yield_rate    = current_price * elapsed / year   (PriceScale fixed point)
//	total_yield   = supply * yield_rate / PriceScale
//
// The protocol keeps ProtocolFeeBps of the total.
func QuoteYield(supplyAmount uint64, reading PriceReading, feed FeedType, elapsed time.Duration) (YieldQuote, error) {
	if elapsed < 0 {
		elapsed = 0
	}
	seconds := uint64(elapsed / time.Second)
	price := widen(absMantissa(reading.Mantissa)).
		mul(ConversionRate(feed, reading)).
		div(PriceScale)
	currentPrice, err := price.narrow(ErrMathOverflow)
	if err != nil {
		return YieldQuote{}, err
	}
	rate := price.mul(seconds).div(secondsPerYear)
	yieldRate, err := rate.narrow(ErrMathOverflow)
	if err != nil && rate.err == nil {
		// Reported saturated; the payout uses the wide value.
		yieldRate, err = math.MaxUint64, nil
	}
	if err != nil {
		return YieldQuote{}, err
	}
	total, err := rate.mul(supplyAmount).div(PriceScale).narrow(ErrMathOverflow)
	if err != nil {
		return YieldQuote{}, err
	}
	fee, depositorYield, err := yieldSplit(total)
	if err != nil {
		return YieldQuote{}, err
	}
	return YieldQuote{
		CurrentPrice:   currentPrice,
		YieldRate:      yieldRate,
		TotalYield:     total,
		ProtocolFee:    fee,
		DepositorYield: depositorYield,
	}, nil
}

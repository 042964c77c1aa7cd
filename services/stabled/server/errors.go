package server

import (
	"errors"
	"net/http"

	"stablebond/native/bank"
	"stablebond/native/stable"
	"stablebond/services/stabled/oracle"
)

var errorStatuses = []struct {
	status int
	errs   []error
}{
	{http.StatusNotFound, []error{
		stable.ErrAssetNotFound,
		stable.ErrBondNotFound,
		stable.ErrUserShareNotFound,
		stable.ErrNoUserPosition,
		stable.ErrProtocolUninitialized,
	}},
	{http.StatusForbidden, []error{
		stable.ErrUnauthorized,
		stable.ErrInvalidKycAccount,
	}},
	{http.StatusBadRequest, []error{
		stable.ErrInvalidAmount,
		stable.ErrInvalidCollateralRatio,
		stable.ErrInvalidFeeRate,
		stable.ErrInvalidName,
		stable.ErrInvalidSymbol,
	}},
	{http.StatusConflict, []error{
		stable.ErrAssetExists,
		stable.ErrBondAlreadyExists,
		stable.ErrAlreadyPaused,
		stable.ErrNotPaused,
		stable.ErrFactoryPaused,
		stable.ErrAssetPaused,
		stable.ErrProtocolInitialized,
		stable.ErrActiveCollateralExists,
		stable.ErrCollectorAlreadyExists,
		stable.ErrRebaseTooEarly,
		stable.ErrBondDisabled,
	}},
	{http.StatusServiceUnavailable, []error{
		stable.ErrStaleOraclePrice,
		stable.ErrStale,
		stable.ErrInvalidOraclePrice,
		oracle.ErrNoReading,
		oracle.ErrUnknownFeed,
	}},
	{http.StatusUnprocessableEntity, []error{
		stable.ErrInsufficientCollateral,
		stable.ErrInsufficientStablecoinBalance,
		stable.ErrInsufficientUserShare,
		stable.ErrDepositTooSmall,
		stable.ErrRedeemAmountTooSmall,
		stable.ErrUnsupportedBond,
		stable.ErrTooManyBonds,
		stable.ErrTooManyUsers,
		stable.ErrMaxCollectorsReached,
		stable.ErrExcessivePriceDeviation,
		stable.ErrFeeTooLarge,
		stable.ErrMathOverflow,
		bank.ErrInsufficientBalance,
		bank.ErrBalanceOverflow,
		bank.ErrSupplyUnderflow,
	}},
}

func errorStatus(err error) int {
	for _, group := range errorStatuses {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.status
			}
		}
	}
	return http.StatusInternalServerError
}

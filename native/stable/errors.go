package stable

import "errors"

var (
	errNilState = errors.New("stable engine: state not configured")

	// Arithmetic.
	ErrMathOverflow            = errors.New("stable engine: math overflow")
	ErrExcessivePriceDeviation = errors.New("stable engine: result exceeds supply range")
	ErrFeeTooLarge             = errors.New("stable engine: fee is too large")

	// Oracle and timing.
	ErrInvalidOraclePrice = errors.New("stable engine: oracle price is not valid")
	ErrStaleOraclePrice   = errors.New("stable engine: oracle price is too stale")
	ErrStale              = errors.New("stable engine: rate data is stale")
	ErrRebaseTooEarly     = errors.New("stable engine: rebase is too early")

	// Validation.
	ErrInvalidAmount          = errors.New("stable engine: amount must be positive")
	ErrInvalidCollateralRatio = errors.New("stable engine: invalid collateral ratio")
	ErrInvalidFeeRate         = errors.New("stable engine: invalid fee rate")
	ErrInvalidName            = errors.New("stable engine: name is invalid")
	ErrInvalidSymbol          = errors.New("stable engine: symbol is invalid")
	ErrDepositTooSmall        = errors.New("stable engine: deposit amount below minimum")
	ErrRedeemAmountTooSmall   = errors.New("stable engine: redeem amount is too small")
	ErrInvalidKycAccount      = errors.New("stable engine: invalid kyc account")

	// Authorization and pause state.
	ErrUnauthorized          = errors.New("stable engine: unauthorized")
	ErrFactoryPaused         = errors.New("stable engine: protocol is paused")
	ErrAssetPaused           = errors.New("stable engine: asset is paused")
	ErrAlreadyPaused         = errors.New("stable engine: asset is already paused")
	ErrNotPaused             = errors.New("stable engine: asset is not paused")
	ErrProtocolInitialized   = errors.New("stable engine: protocol already initialised")
	ErrProtocolUninitialized = errors.New("stable engine: protocol not initialised")

	// Consistency.
	ErrAssetNotFound                 = errors.New("stable engine: asset not found")
	ErrAssetExists                   = errors.New("stable engine: asset already exists")
	ErrBondNotFound                  = errors.New("stable engine: bond not found")
	ErrBondAlreadyExists             = errors.New("stable engine: bond is already supported")
	ErrUnsupportedBond               = errors.New("stable engine: bond is not supported")
	ErrBondDisabled                  = errors.New("stable engine: bond is disabled")
	ErrActiveCollateralExists        = errors.New("stable engine: bond has active collateral")
	ErrInsufficientCollateral        = errors.New("stable engine: insufficient collateral")
	ErrInsufficientStablecoinBalance = errors.New("stable engine: insufficient stablecoin balance")
	ErrInsufficientUserShare         = errors.New("stable engine: depositor share insufficient")
	ErrUserShareNotFound             = errors.New("stable engine: depositor share not found")
	ErrNoUserPosition                = errors.New("stable engine: depositor has no position")

	// Capacity.
	ErrTooManyBonds           = errors.New("stable engine: maximum number of bonds reached")
	ErrTooManyUsers           = errors.New("stable engine: maximum number of depositors reached")
	ErrCollectorAlreadyExists = errors.New("stable engine: collector already exists")
	ErrMaxCollectorsReached   = errors.New("stable engine: maximum number of collectors reached")
)

package stable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stablebond/core/events"
	"stablebond/observability"
	"stablebond/storage"
)

// Engine orchestrates issuance, redemption, rebase and registry operations.
// Every operation runs inside a single storage transaction: validation comes
// first, and any failure discards the transaction so nothing is persisted.
type Engine struct {
	mu         sync.Mutex
	db         storage.Database
	params     Params
	oracle     PriceOracle
	kyc        KYCVerifier
	settlement SettlementFactory
	emitter    events.Emitter
	metrics    *observability.StableEngineMetrics
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewEngine wires the engine to its store, oracle and settlement capability.
func NewEngine(db storage.Database, oracle PriceOracle, settlement SettlementFactory, params Params) (*Engine, error) {
	if db == nil {
		return nil, errNilState
	}
	if oracle == nil {
		return nil, fmt.Errorf("stable engine: price oracle required")
	}
	if settlement == nil {
		return nil, fmt.Errorf("stable engine: settlement required")
	}
	return &Engine{
		db:         db,
		params:     params.normalized(),
		oracle:     oracle,
		settlement: settlement,
		emitter:    events.NoopEmitter{},
		metrics:    observability.StableEngine(),
		logger:     slog.Default(),
		tracer:     otel.Tracer("stablebond/native/stable"),
	}, nil
}

// SetKYC configures the eligibility gate consulted on mint and burn. Without
// a verifier every depositor is rejected.
func (e *Engine) SetKYC(kyc KYCVerifier) {
	if e == nil {
		return
	}
	e.kyc = kyc
}

// SetEmitter configures the sink for committed events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// Params returns the timing windows in force.
func (e *Engine) Params() Params {
	return e.params
}

// txn carries the per-invocation handles an operation body works with.
type txn struct {
	ctx     context.Context
	state   *kvState
	bank    Transfers
	emitted []events.Event
}

func (t *txn) emit(evt events.Event) {
	t.emitted = append(t.emitted, evt)
}

func (e *Engine) run(ctx context.Context, op string, attrs []attribute.KeyValue, body func(tx *txn) error) error {
	if e == nil {
		return errNilState
	}
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "stable."+op, trace.WithAttributes(attrs...))
	defer span.End()

	var committed []events.Event
	e.mu.Lock()
	err := e.db.Update(func(st storage.Txn) error {
		tx := &txn{ctx: ctx, state: newWriteState(st), bank: e.settlement(st)}
		if err := body(tx); err != nil {
			return err
		}
		committed = tx.emitted
		return nil
	})
	e.mu.Unlock()

	e.metrics.Observe(op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("stable engine: operation failed", "operation", op, "error", err)
		return err
	}
	span.SetStatus(codes.Ok, op)
	for _, evt := range committed {
		e.emitter.Emit(evt)
	}
	return nil
}

func (e *Engine) view(fn func(st *kvState) error) error {
	if e == nil {
		return errNilState
	}
	return e.db.View(func(r storage.Reader) error {
		return fn(newReadState(r))
	})
}

func (e *Engine) verifyKYC(ctx context.Context, account common.Address) error {
	if e.kyc == nil {
		return ErrInvalidKycAccount
	}
	ok, err := e.kyc.Verified(ctx, account)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKycAccount, err)
	}
	if !ok {
		return ErrInvalidKycAccount
	}
	return nil
}

func (e *Engine) latest(ctx context.Context, feed string) (PriceReading, error) {
	reading, err := e.oracle.Latest(ctx, feed)
	if err != nil {
		return PriceReading{}, fmt.Errorf("stable engine: oracle %s: %w", feed, err)
	}
	return reading, nil
}

// MintResult reports the amounts settled by a mint.
type MintResult struct {
	BondAmount uint64
	MintAmount uint64
	Fee        uint64
	Price      uint64
}

// Mint deposits bondAmount of the asset's bond and issues supply to the
// depositor at the current oracle price and the asset's collateral ratio.
func (e *Engine) Mint(ctx context.Context, assetID, depositor common.Address, bondAmount uint64, now time.Time) (MintResult, error) {
	var (
		result  MintResult
		settled *Asset
	)
	err := e.run(ctx, "mint", []attribute.KeyValue{
		attribute.String("asset", assetID.Hex()),
		attribute.String("depositor", depositor.Hex()),
	}, func(tx *txn) error {
		asset, err := tx.state.Asset(assetID)
		if err != nil {
			return err
		}
		if asset.Paused {
			return ErrAssetPaused
		}
		if bondAmount == 0 {
			return ErrInvalidAmount
		}
		if err := e.verifyKYC(tx.ctx, depositor); err != nil {
			return err
		}
		policy, err := tx.state.Protocol()
		if err != nil {
			return err
		}
		registry, err := tx.state.Registry()
		if err != nil {
			return err
		}
		bond, ok := registry.Bond(asset.Bond)
		if !ok {
			return ErrBondNotFound
		}
		if bondAmount < bond.MinCreationAmount {
			return ErrDepositTooSmall
		}
		reading, err := e.latest(tx.ctx, asset.Feed)
		if err != nil {
			return err
		}
		if err := checkAge(reading.ObservedAt, now, e.params.OracleStaleness, ErrStaleOraclePrice); err != nil {
			return err
		}
		price, err := OraclePrice(reading.Mantissa)
		if err != nil {
			return err
		}
		mintAmount, err := MintAmount(bondAmount, price, asset.CollateralRatioBps)
		if err != nil {
			return err
		}
		fee, err := Fee(mintAmount, FeeRate(policy, bond))
		if err != nil {
			return err
		}
		totalSupply, err := addChecked(asset.TotalSupply, mintAmount)
		if err != nil {
			return err
		}
		totalCollateral, err := addChecked(asset.TotalCollateral, bondAmount)
		if err != nil {
			return err
		}
		vault, err := tx.state.FeeVault()
		if err != nil {
			return err
		}
		feesCollected, err := addChecked(vault.TotalFeesCollected, fee)
		if err != nil {
			return err
		}
		ledger, err := tx.state.Ledger(assetID, e.params.MaxDepositors)
		if err != nil {
			return err
		}
		if err := ledger.Credit(depositor, bondAmount, mintAmount, now); err != nil {
			return err
		}
		if err := registry.Deposit(asset.Bond, bondAmount); err != nil {
			return err
		}

		if fee > 0 {
			if err := tx.bank.Move(policy.FeeToken, depositor, policy.FeeVault, fee); err != nil {
				return fmt.Errorf("stable engine: collect fee: %w", err)
			}
		}
		if err := tx.bank.Move(asset.Bond, depositor, asset.CollateralVault, bondAmount); err != nil {
			return fmt.Errorf("stable engine: lock collateral: %w", err)
		}
		if err := tx.bank.Mint(asset.ID, depositor, mintAmount); err != nil {
			return fmt.Errorf("stable engine: issue supply: %w", err)
		}

		vault.TotalFeesCollected = feesCollected
		vault.LastCollection = now
		asset.TotalSupply = totalSupply
		asset.TotalCollateral = totalCollateral
		asset.LastUpdated = now
		asset.LastPriceUpdate = reading.ObservedAt
		asset.LastFeeCollection = now
		if err := tx.state.PutLedger(assetID, ledger); err != nil {
			return err
		}
		if err := tx.state.PutRegistry(registry); err != nil {
			return err
		}
		if err := tx.state.PutFeeVault(vault); err != nil {
			return err
		}
		if err := tx.state.PutAsset(asset); err != nil {
			return err
		}
		result = MintResult{BondAmount: bondAmount, MintAmount: mintAmount, Fee: fee, Price: price}
		tx.emit(events.StablecoinMinted{
			Depositor:  depositor,
			Asset:      assetID,
			BondAmount: bondAmount,
			MintAmount: mintAmount,
			Fee:        fee,
			BondPrice:  price,
			Timestamp:  now,
		})
		settled = asset
		return nil
	})
	if err != nil {
		return MintResult{}, err
	}
	e.metrics.RecordBacking(settled.Symbol, settled.TotalSupply, settled.TotalCollateral)
	return result, nil
}

// BurnResult reports the amounts settled by a burn.
type BurnResult struct {
	SupplyAmount uint64
	BondAmount   uint64
	Fee          uint64
	Price        uint64
}

// Burn redeems supplyAmount of the asset for bond collateral at the current
// oracle price and the asset's collateral ratio.
func (e *Engine) Burn(ctx context.Context, assetID, depositor common.Address, supplyAmount uint64, now time.Time) (BurnResult, error) {
	var (
		result  BurnResult
		settled *Asset
	)
	err := e.run(ctx, "burn", []attribute.KeyValue{
		attribute.String("asset", assetID.Hex()),
		attribute.String("depositor", depositor.Hex()),
	}, func(tx *txn) error {
		asset, err := tx.state.Asset(assetID)
		if err != nil {
			return err
		}
		if asset.Paused {
			return ErrAssetPaused
		}
		if supplyAmount == 0 {
			return ErrInvalidAmount
		}
		if err := e.verifyKYC(tx.ctx, depositor); err != nil {
			return err
		}
		policy, err := tx.state.Protocol()
		if err != nil {
			return err
		}
		registry, err := tx.state.Registry()
		if err != nil {
			return err
		}
		bond, ok := registry.Bond(asset.Bond)
		if !ok {
			return ErrBondNotFound
		}
		if supplyAmount < bond.MinRedemptionAmount {
			return ErrRedeemAmountTooSmall
		}
		reading, err := e.latest(tx.ctx, asset.Feed)
		if err != nil {
			return err
		}
		if err := checkAge(reading.ObservedAt, now, e.params.OracleStaleness, ErrStaleOraclePrice); err != nil {
			return err
		}
		price, err := OraclePrice(reading.Mantissa)
		if err != nil {
			return err
		}
		held, err := tx.bank.Balance(asset.ID, depositor)
		if err != nil {
			return err
		}
		if held < supplyAmount {
			return ErrInsufficientStablecoinBalance
		}
		bondAmount, err := BondReturn(supplyAmount, price, asset.CollateralRatioBps)
		if err != nil {
			return err
		}
		vaultBonds, err := tx.bank.Balance(asset.Bond, asset.CollateralVault)
		if err != nil {
			return err
		}
		if vaultBonds < bondAmount {
			return ErrInsufficientCollateral
		}
		fee, err := Fee(supplyAmount, FeeRate(policy, bond))
		if err != nil {
			return err
		}
		totalSupply, err := subChecked(asset.TotalSupply, supplyAmount, ErrMathOverflow)
		if err != nil {
			return err
		}
		totalCollateral, err := subChecked(asset.TotalCollateral, bondAmount, ErrInsufficientCollateral)
		if err != nil {
			return err
		}
		vault, err := tx.state.FeeVault()
		if err != nil {
			return err
		}
		feesCollected, err := addChecked(vault.TotalFeesCollected, fee)
		if err != nil {
			return err
		}
		ledger, err := tx.state.Ledger(assetID, e.params.MaxDepositors)
		if err != nil {
			return err
		}
		if err := ledger.Debit(depositor, bondAmount, supplyAmount, now); err != nil {
			return err
		}
		if err := registry.Withdraw(asset.Bond, bondAmount); err != nil {
			return err
		}

		if fee > 0 {
			if err := tx.bank.Move(policy.FeeToken, depositor, policy.FeeVault, fee); err != nil {
				return fmt.Errorf("stable engine: collect fee: %w", err)
			}
		}
		if err := tx.bank.Burn(asset.ID, depositor, supplyAmount); err != nil {
			return fmt.Errorf("stable engine: retire supply: %w", err)
		}
		if err := tx.bank.Move(asset.Bond, asset.CollateralVault, depositor, bondAmount); err != nil {
			return fmt.Errorf("stable engine: release collateral: %w", err)
		}

		vault.TotalFeesCollected = feesCollected
		vault.LastCollection = now
		asset.TotalSupply = totalSupply
		asset.TotalCollateral = totalCollateral
		asset.LastUpdated = now
		asset.LastPriceUpdate = reading.ObservedAt
		asset.LastFeeCollection = now
		if err := tx.state.PutLedger(assetID, ledger); err != nil {
			return err
		}
		if err := tx.state.PutRegistry(registry); err != nil {
			return err
		}
		if err := tx.state.PutFeeVault(vault); err != nil {
			return err
		}
		if err := tx.state.PutAsset(asset); err != nil {
			return err
		}
		result = BurnResult{SupplyAmount: supplyAmount, BondAmount: bondAmount, Fee: fee, Price: price}
		tx.emit(events.StablecoinBurned{
			Depositor:    depositor,
			Asset:        assetID,
			BondAmount:   bondAmount,
			SupplyAmount: supplyAmount,
			Fee:          fee,
			BondPrice:    price,
			Timestamp:    now,
		})
		settled = asset
		return nil
	})
	if err != nil {
		return BurnResult{}, err
	}
	e.metrics.RecordBacking(settled.Symbol, settled.TotalSupply, settled.TotalCollateral)
	return result, nil
}

// DistributeYield pays one depositor the yield accrued since the asset's last
// rebase. The rebase timestamp is shared by every depositor of the asset, so
// the first distribution in an interval closes the window for the others
// until the next interval.
func (e *Engine) DistributeYield(ctx context.Context, assetID, depositor, distributor common.Address, now time.Time) (YieldQuote, error) {
	var quote YieldQuote
	err := e.run(ctx, "distribute_yield", []attribute.KeyValue{
		attribute.String("asset", assetID.Hex()),
		attribute.String("depositor", depositor.Hex()),
	}, func(tx *txn) error {
		policy, err := tx.state.Protocol()
		if err != nil {
			return err
		}
		if policy.Paused {
			return ErrFactoryPaused
		}
		if !policy.IsCollector(distributor) {
			return ErrUnauthorized
		}
		asset, err := tx.state.Asset(assetID)
		if err != nil {
			return err
		}
		if asset.Paused {
			return ErrAssetPaused
		}
		elapsed := now.Sub(asset.LastRebase)
		if elapsed < e.params.RebaseInterval {
			return ErrRebaseTooEarly
		}
		ledger, err := tx.state.Ledger(assetID, e.params.MaxDepositors)
		if err != nil {
			return err
		}
		share, ok := ledger.Get(depositor)
		if !ok {
			return ErrNoUserPosition
		}
		if now.Sub(asset.LastRateUpdate) > e.params.RateUpdateInterval {
			return ErrStale
		}
		registry, err := tx.state.Registry()
		if err != nil {
			return err
		}
		bond, ok := registry.Bond(asset.Bond)
		if !ok {
			return ErrBondNotFound
		}
		reading, err := e.latest(tx.ctx, asset.Feed)
		if err != nil {
			return err
		}
		if err := checkAge(reading.ObservedAt, now, e.params.RateFreshness, ErrStale); err != nil {
			return err
		}
		q, err := QuoteYield(share.MintAmount, reading, bond.FeedType, elapsed)
		if err != nil {
			return err
		}
		rebaseTotal, err := addChecked(asset.TotalRebaseAmount, q.TotalYield)
		if err != nil {
			return err
		}
		yieldTotal, err := addChecked(asset.TotalYieldCollected, q.DepositorYield)
		if err != nil {
			return err
		}
		dstate, err := tx.state.DepositorState(assetID, depositor)
		if err != nil {
			return err
		}
		collected, err := addChecked(dstate.TotalYieldCollected, q.DepositorYield)
		if err != nil {
			return err
		}

		if q.ProtocolFee > 0 {
			if err := tx.bank.Mint(asset.YieldToken, policy.FeeVault, q.ProtocolFee); err != nil {
				return fmt.Errorf("stable engine: mint protocol yield: %w", err)
			}
		}
		if q.DepositorYield > 0 {
			if err := tx.bank.Mint(asset.YieldToken, depositor, q.DepositorYield); err != nil {
				return fmt.Errorf("stable engine: mint depositor yield: %w", err)
			}
			dstate.TotalYieldCollected = collected
			dstate.LastYieldCollection = now
			if err := tx.state.PutDepositorState(dstate); err != nil {
				return err
			}
		}
		asset.LastRebase = now
		asset.TotalRebaseAmount = rebaseTotal
		asset.TotalYieldCollected = yieldTotal
		if err := tx.state.PutAsset(asset); err != nil {
			return err
		}
		quote = q
		tx.emit(events.YieldDistributed{
			Depositor:      depositor,
			Asset:          assetID,
			ProtocolFee:    q.ProtocolFee,
			DepositorYield: q.DepositorYield,
			Timestamp:      now,
		})
		return nil
	})
	if err != nil {
		return YieldQuote{}, err
	}
	return quote, nil
}

// RefreshRate records a fresh conversion-rate observation for the asset. The
// rebase engine refuses to pay out once the last refresh is older than the
// rate update interval.
func (e *Engine) RefreshRate(ctx context.Context, caller, assetID common.Address, now time.Time) error {
	return e.run(ctx, "refresh_rate", []attribute.KeyValue{
		attribute.String("asset", assetID.Hex()),
	}, func(tx *txn) error {
		policy, err := tx.state.Protocol()
		if err != nil {
			return err
		}
		if !policy.IsCollector(caller) {
			return ErrUnauthorized
		}
		asset, err := tx.state.Asset(assetID)
		if err != nil {
			return err
		}
		reading, err := e.latest(tx.ctx, asset.Feed)
		if err != nil {
			return err
		}
		if err := checkAge(reading.ObservedAt, now, e.params.RateFreshness, ErrStale); err != nil {
			return err
		}
		if _, err := OraclePrice(reading.Mantissa); err != nil {
			return err
		}
		asset.LastRateUpdate = now
		asset.LastPriceUpdate = reading.ObservedAt
		return tx.state.PutAsset(asset)
	})
}

// Protocol returns the global policy.
func (e *Engine) Protocol() (*ProtocolConfig, error) {
	var out *ProtocolConfig
	err := e.view(func(st *kvState) error {
		p, err := st.Protocol()
		out = p
		return err
	})
	return out, err
}

// Asset returns the asset record.
func (e *Engine) Asset(id common.Address) (*Asset, error) {
	var out *Asset
	err := e.view(func(st *kvState) error {
		a, err := st.Asset(id)
		out = a
		return err
	})
	return out, err
}

// Assets lists every asset in creation order.
func (e *Engine) Assets() ([]*Asset, error) {
	var out []*Asset
	err := e.view(func(st *kvState) error {
		ids, err := st.AssetIDs()
		if err != nil {
			return err
		}
		for _, id := range ids {
			a, err := st.Asset(id)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// Bond returns the configuration of a supported bond.
func (e *Engine) Bond(id common.Address) (*BondConfig, error) {
	var out *BondConfig
	err := e.view(func(st *kvState) error {
		reg, err := st.Registry()
		if err != nil {
			return err
		}
		cfg, ok := reg.Bond(id)
		if !ok {
			return ErrBondNotFound
		}
		out = cfg.Clone()
		return nil
	})
	return out, err
}

// Bonds returns the full registry snapshot.
func (e *Engine) Bonds() (*Registry, error) {
	var out *Registry
	err := e.view(func(st *kvState) error {
		reg, err := st.Registry()
		out = reg
		return err
	})
	return out, err
}

// BondCollateral returns the aggregate collateral tracked for a bond.
func (e *Engine) BondCollateral(id common.Address) (BondCollateral, error) {
	var out BondCollateral
	err := e.view(func(st *kvState) error {
		reg, err := st.Registry()
		if err != nil {
			return err
		}
		entry, ok := reg.Tracker(id)
		if !ok {
			return ErrBondNotFound
		}
		out = *entry
		return nil
	})
	return out, err
}

// Share returns the depositor's position in an asset.
func (e *Engine) Share(assetID, depositor common.Address) (DepositorShare, error) {
	var out DepositorShare
	err := e.view(func(st *kvState) error {
		if _, err := st.Asset(assetID); err != nil {
			return err
		}
		ledger, err := st.Ledger(assetID, e.params.MaxDepositors)
		if err != nil {
			return err
		}
		share, ok := ledger.Get(depositor)
		if !ok {
			return ErrUserShareNotFound
		}
		out = share
		return nil
	})
	return out, err
}

// Shares lists every open position in an asset. An unknown asset reports
// ErrAssetNotFound rather than an empty ledger.
func (e *Engine) Shares(assetID common.Address) ([]DepositorShare, error) {
	var out []DepositorShare
	err := e.view(func(st *kvState) error {
		if _, err := st.Asset(assetID); err != nil {
			return err
		}
		ledger, err := st.Ledger(assetID, e.params.MaxDepositors)
		if err != nil {
			return err
		}
		out = ledger.Shares()
		return nil
	})
	return out, err
}

// DepositorState returns the yield bookkeeping for a depositor.
func (e *Engine) DepositorState(assetID, depositor common.Address) (*DepositorState, error) {
	var out *DepositorState
	err := e.view(func(st *kvState) error {
		s, err := st.DepositorState(assetID, depositor)
		out = s
		return err
	})
	return out, err
}

// FeeVault returns the cumulative fee totals.
func (e *Engine) FeeVault() (*FeeVault, error) {
	var out *FeeVault
	err := e.view(func(st *kvState) error {
		v, err := st.FeeVault()
		out = v
		return err
	})
	return out, err
}

// IsNotFound reports whether err describes a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAssetNotFound) ||
		errors.Is(err, ErrBondNotFound) ||
		errors.Is(err, ErrUserShareNotFound) ||
		errors.Is(err, ErrProtocolUninitialized)
}

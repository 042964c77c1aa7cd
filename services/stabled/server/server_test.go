package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"stablebond/native/bank"
	"stablebond/native/stable"
	"stablebond/services/stabled/indexer"
	"stablebond/services/stabled/oracle"
	"stablebond/services/stabled/storage"
	kv "stablebond/storage"
)

const testSecret = "test-secret"

var (
	t0 = time.Unix(1_700_000_000, 0).UTC()

	adminAddr     = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	feeVaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	feeTokenAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	bondAddr      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	paymentAddr   = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	assetAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	vaultAddr     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	yieldAddr     = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	depositorAddr = common.HexToAddress("0x0000000000000000000000000000000000000101")
	otherAddr     = common.HexToAddress("0x0000000000000000000000000000000000000102")
)

type fakeOracle struct {
	mu       sync.Mutex
	readings map[string]stable.PriceReading
}

func (o *fakeOracle) set(feed string, mantissa int64, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.readings[feed] = stable.PriceReading{Mantissa: mantissa, ObservedAt: at}
}

func (o *fakeOracle) Latest(_ context.Context, feed string) (stable.PriceReading, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	reading, ok := o.readings[feed]
	if !ok {
		return stable.PriceReading{}, fmt.Errorf("%w: %s", oracle.ErrNoReading, feed)
	}
	return reading, nil
}

func (o *fakeOracle) Snapshot(feed string) (storage.Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	reading, ok := o.readings[feed]
	if !ok {
		return storage.Snapshot{}, false
	}
	return storage.Snapshot{Feed: feed, Mantissa: reading.Mantissa, Sources: []string{"fake"}, ObservedAt: reading.ObservedAt}, true
}

type fakeKYC struct {
	mu       sync.Mutex
	verified map[common.Address]bool
}

func (k *fakeKYC) Verified(_ context.Context, account common.Address) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.verified[account], nil
}

func (k *fakeKYC) SetKYC(_ context.Context, account common.Address, verified bool, _ string, _ time.Time) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.verified[account] = verified
	return nil
}

type fakeEvents struct {
	query indexer.Query
}

func (f *fakeEvents) List(_ context.Context, q indexer.Query) ([]indexer.Record, error) {
	f.query = q
	return []indexer.Record{{Type: "stable.asset.minted", Asset: q.Asset}}, nil
}

type fixture struct {
	t       *testing.T
	db      *kv.MemDB
	engine  *stable.Engine
	oracle  *fakeOracle
	kyc     *fakeKYC
	events  *fakeEvents
	handler http.Handler
	logs    *bytes.Buffer
	now     time.Time
}

func newFixture(t *testing.T, ratio uint32, limit RateLimit) *fixture {
	t.Helper()
	db := kv.NewMemDB()
	ora := &fakeOracle{readings: map[string]stable.PriceReading{}}
	engine, err := stable.NewEngine(db, ora, func(txn kv.Txn) stable.Transfers {
		return bank.NewLedger(txn)
	}, stable.DefaultParams())
	require.NoError(t, err)
	kyc := &fakeKYC{verified: map[common.Address]bool{depositorAddr: true}}
	engine.SetKYC(kyc)

	ctx := context.Background()
	require.NoError(t, engine.InitProtocol(ctx, stable.InitParams{
		Admin:                 adminAddr,
		FeeVault:              feeVaultAddr,
		FeeToken:              feeTokenAddr,
		MinCollateralRatioBps: stable.MinCollateralRatioBps,
		BaseFeeBps:            stable.DefaultFeeRateBps,
	}, t0))
	require.NoError(t, engine.AddBond(ctx, adminAddr, stable.BondParams{
		Bond:                bondAddr,
		PaymentAsset:        paymentAddr,
		FeedType:            stable.FeedUSD,
		MinCreationAmount:   1,
		MinRedemptionAmount: 1,
	}, t0))
	_, err = engine.CreateAsset(ctx, adminAddr, stable.CreateAssetParams{
		ID:                 assetAddr,
		Name:               "Test Dollar",
		Symbol:             "tUSD",
		TargetCurrency:     "usd",
		Bond:               bondAddr,
		Feed:               "bond-usd",
		CollateralVault:    vaultAddr,
		YieldToken:         yieldAddr,
		CollateralRatioBps: ratio,
	}, t0)
	require.NoError(t, err)
	for _, holder := range []common.Address{depositorAddr, otherAddr} {
		for _, token := range []common.Address{bondAddr, feeTokenAddr} {
			require.NoError(t, db.Update(func(txn kv.Txn) error {
				return bank.NewLedger(txn).Mint(token, holder, 10_000_000_000)
			}))
		}
	}

	f := &fixture{t: t, db: db, engine: engine, oracle: ora, kyc: kyc, events: &fakeEvents{}, logs: &bytes.Buffer{}, now: t0}
	logger := slog.New(slog.NewJSONHandler(f.logs, nil))
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "stablebond"}, logger)
	require.NoError(t, err)
	srv, err := New(Config{RateLimit: limit}, Runtime{
		Engine: engine,
		Feeds:  ora,
		Events: f.events,
		KYC:    kyc,
		Now:    func() time.Time { return f.now },
	}, auth, logger)
	require.NoError(t, err)
	f.handler = srv.Handler()
	return f
}

func token(t *testing.T, subject common.Address, scopes string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject.Hex(),
		"iss": "stablebond",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if scopes != "" {
		claims["scope"] = scopes
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func assetPath(suffix string) string {
	return "/v1/assets/" + assetAddr.Hex() + suffix
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, stable.DefaultCollateralRatioBps, RateLimit{RequestsPerMinute: 600, Burst: 50})
	rec := f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	rec = f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "stablebond_http_requests_total")
}

func TestReadRoutes(t *testing.T) {
	f := newFixture(t, stable.DefaultCollateralRatioBps, RateLimit{RequestsPerMinute: 600, Burst: 50})

	rec := f.do(http.MethodGet, "/v1/protocol", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	proto := decode[protocolView](t, rec)
	require.Equal(t, adminAddr.Hex(), proto.Admin)
	require.EqualValues(t, 1, proto.Version)
	require.EqualValues(t, 1, proto.AssetCount)
	require.Equal(t, []string{adminAddr.Hex()}, proto.Collectors)

	rec = f.do(http.MethodGet, assetPath(""), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	asset := decode[assetView](t, rec)
	require.Equal(t, "tUSD", asset.Symbol)
	require.Equal(t, "USD", asset.TargetCurrency)
	require.Equal(t, "0", asset.TotalSupply)

	rec = f.do(http.MethodGet, "/v1/assets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[map[string][]assetView](t, rec)["assets"], 1)

	rec = f.do(http.MethodGet, "/v1/bonds/"+bondAddr.Hex(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bond := decode[bondView](t, rec)
	require.Equal(t, "usd", bond.FeedType)
	require.EqualValues(t, 1, bond.AssetCount)

	rec = f.do(http.MethodGet, "/v1/assets/"+otherAddr.Hex(), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodGet, "/v1/assets/"+otherAddr.Hex()+"/shares", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodGet, assetPath("/shares"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[map[string][]shareView](t, rec)["shares"])

	rec = f.do(http.MethodGet, "/v1/assets/not-an-address", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/v1/feeds/bond-usd", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	f.oracle.set("bond-usd", 1_000_000, t0)
	rec = f.do(http.MethodGet, "/v1/feeds/bond-usd", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1000000", decode[map[string]any](t, rec)["mantissa"])

	rec = f.do(http.MethodGet, assetPath("/events?type=stable.asset.minted&limit=5"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, assetAddr.Hex(), f.events.query.Asset)
	require.Equal(t, 5, f.events.query.Limit)
	require.Equal(t, "stable.asset.minted", f.events.query.Type)
}

func TestMintAndBurnOverHTTP(t *testing.T) {
	f := newFixture(t, stable.DefaultCollateralRatioBps, RateLimit{RequestsPerMinute: 600, Burst: 50})
	f.oracle.set("bond-usd", 2, t0)
	depositor := token(t, depositorAddr, "")

	rec := f.do(http.MethodPost, assetPath("/mint"), depositor, map[string]string{"amount": "1000000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	minted := decode[map[string]string](t, rec)
	require.Equal(t, "1333333", minted["mintAmount"])
	require.Equal(t, "3999", minted["fee"])
	require.Equal(t, depositorAddr.Hex(), minted["depositor"])

	rec = f.do(http.MethodGet, assetPath("/shares/"+depositorAddr.Hex()), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	share := decode[shareView](t, rec)
	require.Equal(t, "1000000", share.BondAmount)
	require.Equal(t, "1333333", share.MintAmount)

	rec = f.do(http.MethodGet, assetPath("/shares"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[map[string][]shareView](t, rec)["shares"], 1)

	f.now = t0.Add(time.Minute)
	rec = f.do(http.MethodPost, assetPath("/burn"), depositor, map[string]string{"amount": "1333333"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	burned := decode[map[string]string](t, rec)
	require.Equal(t, "999999", burned["bondAmount"])

	rec = f.do(http.MethodGet, assetPath("/shares/"+depositorAddr.Hex()), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	share = decode[shareView](t, rec)
	require.Equal(t, "1", share.BondAmount, "rounding dust stays with the depositor")
	require.Equal(t, "0", share.MintAmount)

	rec = f.do(http.MethodGet, assetPath("/shares/"+otherAddr.Hex()), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMintErrorsMapToStatuses(t *testing.T) {
	f := newFixture(t, stable.DefaultCollateralRatioBps, RateLimit{RequestsPerMinute: 600, Burst: 50})
	depositor := token(t, depositorAddr, "")

	rec := f.do(http.MethodPost, assetPath("/mint"), depositor, map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.oracle.set("bond-usd", 1_000_000, t0.Add(-time.Hour))
	rec = f.do(http.MethodPost, assetPath("/mint"), depositor, map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	f.oracle.set("bond-usd", 1_000_000, t0)
	rec = f.do(http.MethodPost, assetPath("/mint"), depositor, map[string]string{"amount": "0"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, assetPath("/mint"), depositor, map[string]string{"amount": "-5"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, assetPath("/mint"), depositor, map[string]any{"amount": "1", "extra": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, assetPath("/burn"), depositor, map[string]string{"amount": "5"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	other := token(t, otherAddr, "")
	rec = f.do(http.MethodPost, assetPath("/mint"), other, map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	admin := token(t, adminAddr, ScopeAdmin)
	rec = f.do(http.MethodPost, "/v1/admin/kyc", admin, map[string]any{"account": otherAddr.Hex(), "verified": true, "reference": "kyc-case-0007"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, f.logs.String(), "kyc-case-0007")
	require.Contains(t, f.logs.String(), `"reference":"***0007"`)
	rec = f.do(http.MethodPost, assetPath("/mint"), other, map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t, stable.DefaultCollateralRatioBps, RateLimit{RequestsPerMinute: 600, Burst: 50})
	body := map[string]string{"amount": "1"}

	rec := f.do(http.MethodPost, assetPath("/mint"), "", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": depositorAddr.Hex(), "iss": "stablebond", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("wrong"))
	require.NoError(t, err)
	rec = f.do(http.MethodPost, assetPath("/mint"), forged, body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, f.logs.String(), "stabled: token rejected")
	require.Contains(t, f.logs.String(), `"token":"[REDACTED]"`)
	require.NotContains(t, f.logs.String(), forged)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": depositorAddr.Hex(), "iss": "stablebond", "exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	rec = f.do(http.MethodPost, assetPath("/mint"), expired, body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": depositorAddr.Hex(), "iss": "elsewhere", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	rec = f.do(http.MethodPost, assetPath("/mint"), wrongIssuer, body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice", "iss": "stablebond", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	rec = f.do(http.MethodPost, assetPath("/mint"), badSubject, body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/v1/admin/assets/"+assetAddr.Hex()+"/pause", token(t, depositorAddr, ScopeCollector), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, assetPath("/rate"), token(t, depositorAddr, ""), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t, stable.DefaultCollateralRatioBps, RateLimit{RequestsPerMinute: 600, Burst: 50})
	admin := token(t, adminAddr, ScopeAdmin)
	impostor := token(t, otherAddr, ScopeAdmin)

	rec := f.do(http.MethodPost, "/v1/admin/assets/"+assetAddr.Hex()+"/pause", impostor, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/admin/assets/"+assetAddr.Hex()+"/pause", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[assetView](t, rec).Paused)
	rec = f.do(http.MethodPost, "/v1/admin/assets/"+assetAddr.Hex()+"/pause", admin, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(http.MethodPost, "/v1/admin/assets/"+assetAddr.Hex()+"/resume", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPatch, "/v1/admin/assets/"+assetAddr.Hex(), admin, map[string]string{"name": "Renamed Dollar"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Renamed Dollar", decode[assetView](t, rec).Name)

	second := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	rec = f.do(http.MethodPost, "/v1/admin/bonds", admin, map[string]string{
		"bond":              second.Hex(),
		"paymentAsset":      paymentAddr.Hex(),
		"feedType":          "foreign",
		"minCreationAmount": "10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "foreign", decode[bondView](t, rec).FeedType)
	rec = f.do(http.MethodPost, "/v1/admin/bonds", admin, map[string]string{"bond": second.Hex(), "paymentAsset": paymentAddr.Hex()})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPatch, "/v1/admin/bonds/"+second.Hex(), admin, map[string]any{"customFeeBps": 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decode[bondView](t, rec).CustomFeeBps)
	rec = f.do(http.MethodPatch, "/v1/admin/bonds/"+second.Hex(), admin, json.RawMessage(`{"customFeeBps": null, "enabled": false}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[bondView](t, rec)
	require.Nil(t, updated.CustomFeeBps)
	require.False(t, updated.Enabled)

	rec = f.do(http.MethodDelete, "/v1/admin/bonds/"+second.Hex(), admin, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodGet, "/v1/bonds/"+second.Hex(), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	created := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	rec = f.do(http.MethodPost, "/v1/admin/assets", admin, map[string]any{
		"id":              created.Hex(),
		"name":            "Test Euro",
		"symbol":          "tEUR",
		"targetCurrency":  "eur",
		"bond":            bondAddr.Hex(),
		"feed":            "bond-eur",
		"collateralVault": vaultAddr.Hex(),
		"yieldToken":      yieldAddr.Hex(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.EqualValues(t, stable.MinCollateralRatioBps, decode[assetView](t, rec).CollateralRatioBps)
	rec = f.do(http.MethodPost, "/v1/admin/assets", admin, map[string]any{
		"id": created.Hex(), "name": "Dup", "symbol": "DUP", "bond": bondAddr.Hex(), "feed": "x",
		"collateralVault": vaultAddr.Hex(), "yieldToken": yieldAddr.Hex(),
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPatch, "/v1/admin/protocol", admin, map[string]any{"baseFeeBps": 50, "addCollector": otherAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	proto := decode[protocolView](t, rec)
	require.EqualValues(t, 50, proto.BaseFeeBps)
	require.Greater(t, proto.Version, uint32(1))
	require.Contains(t, proto.Collectors, otherAddr.Hex())

	rec = f.do(http.MethodPatch, "/v1/admin/protocol", admin, map[string]any{"minCollateralRatioBps": 100})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/admin/protocol/pause", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[protocolView](t, rec).Paused)
	rec = f.do(http.MethodPost, "/v1/admin/assets/"+assetAddr.Hex()+"/pause", admin, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(http.MethodPost, "/v1/admin/protocol/resume", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[protocolView](t, rec).Paused)
}

func TestCollectorRoutes(t *testing.T) {
	f := newFixture(t, 20_000, RateLimit{RequestsPerMinute: 600, Burst: 50})
	f.oracle.set("bond-usd", 1, t0)
	rec := f.do(http.MethodPost, assetPath("/mint"), token(t, depositorAddr, ""), map[string]string{"amount": "2000000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	collector := token(t, adminAddr, ScopeCollector)
	week := 7 * 24 * time.Hour
	f.now = t0.Add(week)
	f.oracle.set("bond-usd", 1_000_000, f.now)

	rec = f.do(http.MethodPost, assetPath("/rebase"), token(t, otherAddr, ScopeCollector), map[string]string{"depositor": depositorAddr.Hex()})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, assetPath("/rebase"), collector, map[string]string{"depositor": depositorAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[map[string]string](t, rec)
	require.Equal(t, "19178", quote["totalYield"])
	require.Equal(t, "1917", quote["protocolFee"])
	require.Equal(t, "17261", quote["depositorYield"])

	rec = f.do(http.MethodPost, assetPath("/rebase"), collector, map[string]string{"depositor": depositorAddr.Hex()})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, assetPath("/shares/"+depositorAddr.Hex()), "", nil)
	require.Equal(t, "17261", decode[shareView](t, rec).TotalYieldCollected)

	f.now = f.now.Add(time.Hour)
	f.oracle.set("bond-usd", 1_000_000, f.now)
	rec = f.do(http.MethodPost, assetPath("/rate"), collector, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, f.now.Unix(), decode[assetView](t, rec).LastRateUpdate)
}

func TestBurnIsRateLimited(t *testing.T) {
	f := newFixture(t, stable.DefaultCollateralRatioBps, RateLimit{RequestsPerMinute: 1, Burst: 1})
	f.oracle.set("bond-usd", 2, t0)
	depositor := token(t, depositorAddr, "")
	rec := f.do(http.MethodPost, assetPath("/mint"), depositor, map[string]string{"amount": "1000000"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, assetPath("/burn"), depositor, map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(http.MethodPost, assetPath("/burn"), depositor, map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = f.do(http.MethodPost, assetPath("/mint"), depositor, map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	cases := map[error]int{
		stable.ErrAssetNotFound:                          http.StatusNotFound,
		fmt.Errorf("wrapped: %w", stable.ErrUnauthorized): http.StatusForbidden,
		stable.ErrInvalidSymbol:                          http.StatusBadRequest,
		stable.ErrRebaseTooEarly:                         http.StatusConflict,
		stable.ErrStale:                                  http.StatusServiceUnavailable,
		bank.ErrInsufficientBalance:                      http.StatusUnprocessableEntity,
		errors.New("disk on fire"):                       http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, errorStatus(err), err.Error())
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret}, nil)
	require.NoError(t, err)
	_, err = New(Config{}, Runtime{}, auth, nil)
	require.Error(t, err)
	_, err = NewAuthenticator(AuthConfig{}, nil)
	require.Error(t, err)
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"stablebond/native/stable"
	"stablebond/observability/logging"
	"stablebond/services/stabled/indexer"
)

const maxBodyBytes = 64 << 10

type protocolView struct {
	Admin                 string   `json:"admin"`
	FeeVault              string   `json:"feeVault"`
	FeeToken              string   `json:"feeToken"`
	MinCollateralRatioBps uint32   `json:"minCollateralRatioBps"`
	BaseFeeBps            uint32   `json:"baseFeeBps"`
	Paused                bool     `json:"paused"`
	Collectors            []string `json:"collectors"`
	Version               uint32   `json:"version"`
	AssetCount            uint32   `json:"assetCount"`
	LastUpdate            int64    `json:"lastUpdate"`
	TotalFeesCollected    string   `json:"totalFeesCollected"`
	LastFeeCollection     int64    `json:"lastFeeCollection,omitempty"`
}

type assetView struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Symbol              string `json:"symbol"`
	TargetCurrency      string `json:"targetCurrency"`
	Creator             string `json:"creator"`
	Bond                string `json:"bond"`
	Feed                string `json:"feed"`
	CollateralVault     string `json:"collateralVault"`
	YieldToken          string `json:"yieldToken"`
	TotalSupply         string `json:"totalSupply"`
	TotalCollateral     string `json:"totalCollateral"`
	CollateralRatioBps  uint32 `json:"collateralRatioBps"`
	Paused              bool   `json:"paused"`
	CreatedAt           int64  `json:"createdAt"`
	LastRebase          int64  `json:"lastRebase"`
	LastRateUpdate      int64  `json:"lastRateUpdate"`
	LastPriceUpdate     int64  `json:"lastPriceUpdate"`
	TotalRebaseAmount   string `json:"totalRebaseAmount"`
	TotalYieldCollected string `json:"totalYieldCollected"`
}

type bondView struct {
	Bond                string  `json:"bond"`
	PaymentAsset        string  `json:"paymentAsset"`
	Admin               string  `json:"admin"`
	FeedType            string  `json:"feedType"`
	MinCreationAmount   string  `json:"minCreationAmount"`
	MinRedemptionAmount string  `json:"minRedemptionAmount"`
	Enabled             bool    `json:"enabled"`
	CustomFeeBps        *uint32 `json:"customFeeBps,omitempty"`
	TotalCollateral     string  `json:"totalCollateral"`
	AssetCount          uint32  `json:"assetCount"`
}

type shareView struct {
	Asset               string `json:"asset"`
	Depositor           string `json:"depositor"`
	BondAmount          string `json:"bondAmount"`
	MintAmount          string `json:"mintAmount"`
	UpdatedAt           int64  `json:"updatedAt"`
	TotalYieldCollected string `json:"totalYieldCollected"`
	LastYieldCollection int64  `json:"lastYieldCollection,omitempty"`
}

func newAssetView(a *stable.Asset) assetView {
	return assetView{
		ID:                  a.ID.Hex(),
		Name:                a.Name,
		Symbol:              a.Symbol,
		TargetCurrency:      a.TargetCurrency,
		Creator:             a.Creator.Hex(),
		Bond:                a.Bond.Hex(),
		Feed:                a.Feed,
		CollateralVault:     a.CollateralVault.Hex(),
		YieldToken:          a.YieldToken.Hex(),
		TotalSupply:         formatAmount(a.TotalSupply),
		TotalCollateral:     formatAmount(a.TotalCollateral),
		CollateralRatioBps:  a.CollateralRatioBps,
		Paused:              a.Paused,
		CreatedAt:           unixOrZero(a.CreatedAt),
		LastRebase:          unixOrZero(a.LastRebase),
		LastRateUpdate:      unixOrZero(a.LastRateUpdate),
		LastPriceUpdate:     unixOrZero(a.LastPriceUpdate),
		TotalRebaseAmount:   formatAmount(a.TotalRebaseAmount),
		TotalYieldCollected: formatAmount(a.TotalYieldCollected),
	}
}

func newBondView(cfg *stable.BondConfig, collateral stable.BondCollateral) bondView {
	return bondView{
		Bond:                cfg.Bond.Hex(),
		PaymentAsset:        cfg.PaymentAsset.Hex(),
		Admin:               cfg.Admin.Hex(),
		FeedType:            cfg.FeedType.String(),
		MinCreationAmount:   formatAmount(cfg.MinCreationAmount),
		MinRedemptionAmount: formatAmount(cfg.MinRedemptionAmount),
		Enabled:             cfg.Enabled,
		CustomFeeBps:        cfg.CustomFeeBps,
		TotalCollateral:     formatAmount(collateral.TotalCollateral),
		AssetCount:          collateral.AssetCount,
	}
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	policy, err := s.engine.Protocol()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	vault, err := s.engine.FeeVault()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	collectors := make([]string, 0, len(policy.Collectors))
	for _, c := range policy.Collectors {
		collectors = append(collectors, c.Hex())
	}
	writeJSON(w, http.StatusOK, protocolView{
		Admin:                 policy.Admin.Hex(),
		FeeVault:              policy.FeeVault.Hex(),
		FeeToken:              policy.FeeToken.Hex(),
		MinCollateralRatioBps: policy.MinCollateralRatioBps,
		BaseFeeBps:            policy.BaseFeeBps,
		Paused:                policy.Paused,
		Collectors:            collectors,
		Version:               policy.Version,
		AssetCount:            policy.AssetCount,
		LastUpdate:            unixOrZero(policy.LastUpdate),
		TotalFeesCollected:    formatAmount(vault.TotalFeesCollected),
		LastFeeCollection:     unixOrZero(vault.LastCollection),
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.engine.Assets()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]assetView, 0, len(assets))
	for _, a := range assets {
		out = append(out, newAssetView(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": out})
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	asset, err := s.engine.Asset(assetID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAssetView(asset))
}

func (s *Server) handleShares(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	shares, err := s.engine.Shares(assetID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]shareView, 0, len(shares))
	for _, share := range shares {
		out = append(out, shareView{
			Asset:      assetID.Hex(),
			Depositor:  share.Depositor.Hex(),
			BondAmount: formatAmount(share.BondAmount),
			MintAmount: formatAmount(share.MintAmount),
			UpdatedAt:  unixOrZero(share.UpdatedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": out})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	depositor, ok := pathAddress(w, r, "depositor")
	if !ok {
		return
	}
	share, err := s.engine.Share(assetID, depositor)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	state, err := s.engine.DepositorState(assetID, depositor)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shareView{
		Asset:               assetID.Hex(),
		Depositor:           depositor.Hex(),
		BondAmount:          formatAmount(share.BondAmount),
		MintAmount:          formatAmount(share.MintAmount),
		UpdatedAt:           unixOrZero(share.UpdatedAt),
		TotalYieldCollected: formatAmount(state.TotalYieldCollected),
		LastYieldCollection: unixOrZero(state.LastYieldCollection),
	})
}

func (s *Server) handleBonds(w http.ResponseWriter, r *http.Request) {
	registry, err := s.engine.Bonds()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	out := make([]bondView, 0, len(registry.Bonds))
	for _, cfg := range registry.Bonds {
		var collateral stable.BondCollateral
		if entry, ok := registry.Tracker(cfg.Bond); ok {
			collateral = *entry
		}
		out = append(out, newBondView(cfg, collateral))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bonds": out})
}

func (s *Server) handleBond(w http.ResponseWriter, r *http.Request) {
	bond, ok := pathAddress(w, r, "bond")
	if !ok {
		return
	}
	cfg, err := s.engine.Bond(bond)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	collateral, err := s.engine.BondCollateral(bond)
	if err != nil && !errors.Is(err, stable.ErrBondNotFound) {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBondView(cfg, collateral))
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if s.feeds == nil {
		writeError(w, http.StatusNotImplemented, "oracle not configured")
		return
	}
	feed := chi.URLParam(r, "feed")
	snap, ok := s.feeds.Snapshot(feed)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no reading for feed %q", feed))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feed":       snap.Feed,
		"mantissa":   strconv.FormatInt(snap.Mantissa, 10),
		"sources":    snap.Sources,
		"proofId":    snap.ProofID,
		"observedAt": snap.ObservedAt.Unix(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotImplemented, "event index not configured")
		return
	}
	assetID, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	q := indexer.Query{Asset: assetID.Hex(), Type: strings.TrimSpace(r.URL.Query().Get("type"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = limit
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be a unix timestamp")
			return
		}
		q.Since = time.Unix(since, 0)
	}
	records, err := s.events.List(r.Context(), q)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	result, err := s.engine.Mint(r.Context(), assetID, principal.Account, amount, s.now())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":      assetID.Hex(),
		"depositor":  principal.Account.Hex(),
		"bondAmount": formatAmount(result.BondAmount),
		"mintAmount": formatAmount(result.MintAmount),
		"fee":        formatAmount(result.Fee),
		"price":      formatAmount(result.Price),
	})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}
	result, err := s.engine.Burn(r.Context(), assetID, principal.Account, amount, s.now())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":        assetID.Hex(),
		"depositor":    principal.Account.Hex(),
		"supplyAmount": formatAmount(result.SupplyAmount),
		"bondAmount":   formatAmount(result.BondAmount),
		"fee":          formatAmount(result.Fee),
		"price":        formatAmount(result.Price),
	})
}

type rebaseRequest struct {
	Depositor string `json:"depositor"`
}

func (s *Server) handleRebase(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	var req rebaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	depositor, ok := parseAddress(w, "depositor", req.Depositor)
	if !ok {
		return
	}
	quote, err := s.engine.DistributeYield(r.Context(), assetID, depositor, principal.Account, s.now())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":          assetID.Hex(),
		"depositor":      depositor.Hex(),
		"currentPrice":   formatAmount(quote.CurrentPrice),
		"yieldRate":      formatAmount(quote.YieldRate),
		"totalYield":     formatAmount(quote.TotalYield),
		"protocolFee":    formatAmount(quote.ProtocolFee),
		"depositorYield": formatAmount(quote.DepositorYield),
	})
}

func (s *Server) handleRefreshRate(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	if err := s.engine.RefreshRate(r.Context(), principal.Account, assetID, s.now()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.handleAsset(w, r)
}

type protocolUpdateRequest struct {
	Admin                 *string `json:"admin"`
	FeeVault              *string `json:"feeVault"`
	MinCollateralRatioBps *uint32 `json:"minCollateralRatioBps"`
	BaseFeeBps            *uint32 `json:"baseFeeBps"`
	AddCollector          *string `json:"addCollector"`
}

func (s *Server) handleUpdateProtocol(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req protocolUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	update := stable.ProtocolUpdate{
		MinCollateralRatioBps: req.MinCollateralRatioBps,
		BaseFeeBps:            req.BaseFeeBps,
	}
	for _, field := range []struct {
		name string
		raw  *string
		dst  **common.Address
	}{
		{"admin", req.Admin, &update.Admin},
		{"feeVault", req.FeeVault, &update.FeeVault},
		{"addCollector", req.AddCollector, &update.AddCollector},
	} {
		if field.raw == nil {
			continue
		}
		addr, ok := parseAddress(w, field.name, *field.raw)
		if !ok {
			return
		}
		*field.dst = &addr
	}
	if err := s.engine.UpdateProtocol(r.Context(), principal.Account, update, s.now()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.handleProtocol(w, r)
}

func (s *Server) handleProtocolPause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := PrincipalFromContext(r.Context())
		if err := s.engine.SetProtocolPaused(r.Context(), principal.Account, paused, s.now()); err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		s.handleProtocol(w, r)
	}
}

type createAssetRequest struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Symbol             string `json:"symbol"`
	TargetCurrency     string `json:"targetCurrency"`
	Bond               string `json:"bond"`
	Feed               string `json:"feed"`
	CollateralVault    string `json:"collateralVault"`
	YieldToken         string `json:"yieldToken"`
	CollateralRatioBps uint32 `json:"collateralRatioBps"`
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req createAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params := stable.CreateAssetParams{
		Name:               req.Name,
		Symbol:             req.Symbol,
		TargetCurrency:     req.TargetCurrency,
		Feed:               strings.TrimSpace(req.Feed),
		CollateralRatioBps: req.CollateralRatioBps,
	}
	for _, field := range []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"id", req.ID, &params.ID},
		{"bond", req.Bond, &params.Bond},
		{"collateralVault", req.CollateralVault, &params.CollateralVault},
		{"yieldToken", req.YieldToken, &params.YieldToken},
	} {
		addr, ok := parseAddress(w, field.name, field.raw)
		if !ok {
			return
		}
		*field.dst = addr
	}
	if params.Feed == "" {
		writeError(w, http.StatusBadRequest, "feed is required")
		return
	}
	asset, err := s.engine.CreateAsset(r.Context(), principal.Account, params, s.now())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAssetView(asset))
}

type updateAssetRequest struct {
	Name   *string `json:"name"`
	Symbol *string `json:"symbol"`
}

func (s *Server) handleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	assetID, ok := pathAddress(w, r, "asset")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	var req updateAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.UpdateAsset(r.Context(), principal.Account, assetID, req.Name, req.Symbol, s.now()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.handleAsset(w, r)
}

func (s *Server) handleAssetPause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assetID, ok := pathAddress(w, r, "asset")
		if !ok {
			return
		}
		principal, _ := PrincipalFromContext(r.Context())
		var err error
		if paused {
			err = s.engine.PauseAsset(r.Context(), principal.Account, assetID, s.now())
		} else {
			err = s.engine.ResumeAsset(r.Context(), principal.Account, assetID, s.now())
		}
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		s.handleAsset(w, r)
	}
}

type addBondRequest struct {
	Bond                string `json:"bond"`
	PaymentAsset        string `json:"paymentAsset"`
	FeedType            string `json:"feedType"`
	MinCreationAmount   string `json:"minCreationAmount"`
	MinRedemptionAmount string `json:"minRedemptionAmount"`
}

func (s *Server) handleAddBond(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	var req addBondRequest
	if !decodeBody(w, r, &req) {
		return
	}
	bond, ok := parseAddress(w, "bond", req.Bond)
	if !ok {
		return
	}
	payment, ok := parseAddress(w, "paymentAsset", req.PaymentAsset)
	if !ok {
		return
	}
	feed, known := stable.ParseFeedType(strings.TrimSpace(req.FeedType))
	if !known {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown feed type %q", req.FeedType))
		return
	}
	minCreation, ok := parseOptionalAmount(w, "minCreationAmount", req.MinCreationAmount)
	if !ok {
		return
	}
	minRedemption, ok := parseOptionalAmount(w, "minRedemptionAmount", req.MinRedemptionAmount)
	if !ok {
		return
	}
	params := stable.BondParams{
		Bond:                bond,
		PaymentAsset:        payment,
		FeedType:            feed,
		MinCreationAmount:   minCreation,
		MinRedemptionAmount: minRedemption,
	}
	if err := s.engine.AddBond(r.Context(), principal.Account, params, s.now()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	cfg, err := s.engine.Bond(bond)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	collateral, _ := s.engine.BondCollateral(bond)
	writeJSON(w, http.StatusCreated, newBondView(cfg, collateral))
}

// updateBondRequest distinguishes an absent customFeeBps (keep), an explicit
// null (clear), and a number (set).
type updateBondRequest struct {
	Enabled      *bool           `json:"enabled"`
	CustomFeeBps json.RawMessage `json:"customFeeBps"`
}

func (s *Server) handleUpdateBond(w http.ResponseWriter, r *http.Request) {
	bond, ok := pathAddress(w, r, "bond")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	var req updateBondRequest
	if !decodeBody(w, r, &req) {
		return
	}
	update := stable.BondUpdate{Enabled: req.Enabled}
	switch raw := strings.TrimSpace(string(req.CustomFeeBps)); raw {
	case "":
		update.CustomFeeBps = stable.Keep[uint32]()
	case "null":
		update.CustomFeeBps = stable.Clear[uint32]()
	default:
		var fee uint32
		if err := json.Unmarshal([]byte(raw), &fee); err != nil {
			writeError(w, http.StatusBadRequest, "customFeeBps must be an integer or null")
			return
		}
		update.CustomFeeBps = stable.Set(fee)
	}
	if err := s.engine.UpdateBond(r.Context(), principal.Account, bond, update, s.now()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.handleBond(w, r)
}

func (s *Server) handleRemoveBond(w http.ResponseWriter, r *http.Request) {
	bond, ok := pathAddress(w, r, "bond")
	if !ok {
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	if err := s.engine.RemoveBond(r.Context(), principal.Account, bond, s.now()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type kycRequest struct {
	Account   string `json:"account"`
	Verified  bool   `json:"verified"`
	Reference string `json:"reference"`
}

func (s *Server) handleKYC(w http.ResponseWriter, r *http.Request) {
	if s.kyc == nil {
		writeError(w, http.StatusNotImplemented, "kyc registry not configured")
		return
	}
	var req kycRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, ok := parseAddress(w, "account", req.Account)
	if !ok {
		return
	}
	if err := s.kyc.SetKYC(r.Context(), account, req.Verified, req.Reference, s.now()); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.logger.Info("stabled: kyc status recorded",
		"account", account.Hex(),
		"verified", req.Verified,
		"reference", logging.MaskReference(req.Reference))
	writeJSON(w, http.StatusOK, map[string]any{"account": account.Hex(), "verified": req.Verified})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func pathAddress(w http.ResponseWriter, r *http.Request, param string) (common.Address, bool) {
	return parseAddress(w, param, chi.URLParam(r, param))
}

func parseAddress(w http.ResponseWriter, field, raw string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a hex address", field))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseAmount(w http.ResponseWriter, raw string) (uint64, bool) {
	amount, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal integer")
		return 0, false
	}
	return amount, true
}

func parseOptionalAmount(w http.ResponseWriter, field, raw string) (uint64, bool) {
	if strings.TrimSpace(raw) == "" {
		return 0, true
	}
	amount, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a decimal integer", field))
		return 0, false
	}
	return amount, true
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tdeu/truthmarket/internal/domain"
)

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a message to a JSON error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps engine errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotDisputable),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrMarketNotOpen):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrSlippageExceeded),
		errors.Is(err, domain.ErrInsufficientBond),
		errors.Is(err, domain.ErrInsufficientShares):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrMarketFrozen):
		writeError(w, http.StatusLocked, err.Error())
	case errors.Is(err, domain.ErrTransientChain):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.markets.Count(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	pending, err := s.resolutions.ListUnsealed(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets":        count,
		"pending":        len(pending),
		"frozen_markets": s.engine.FrozenMarkets(),
	})
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	status := domain.StatusOpen
	if q := r.URL.Query().Get("status"); q != "" {
		parsed, err := domain.ParseMarketStatus(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status = parsed
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	markets, err := s.markets.ListByStatus(r.Context(), status, domain.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// marketView is the detailed market response including live pricing.
type marketView struct {
	Market      domain.Market            `json:"market"`
	Reserves    domain.ShareReserves     `json:"reserves"`
	PriceYesBps int64                    `json:"price_yes_bps"`
	PriceNoBps  int64                    `json:"price_no_bps"`
	Resolution  *domain.ResolutionRecord `json:"resolution,omitempty"`
	Frozen      bool                     `json:"frozen"`
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	market, err := s.ledger.Market(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	reserves, err := s.ledger.Reserves(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	curve := s.engine.Curve()
	view := marketView{
		Market:      market,
		Reserves:    reserves,
		PriceYesBps: curve.PriceBps(reserves, domain.SideYes),
		PriceNoBps:  curve.PriceBps(reserves, domain.SideNo),
		Frozen:      s.engine.Frozen(id),
	}
	if rec, err := s.resolutions.GetByMarket(r.Context(), id); err == nil {
		view.Resolution = &rec
	}
	writeJSON(w, http.StatusOK, view)
}

type createMarketRequest struct {
	Question   string    `json:"question"`
	ExpiresAt  time.Time `json:"expires_at"`
	FeeRateBps int64     `json:"fee_rate_bps"`
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	market, err := s.lifecycle.Create(r.Context(), req.Question, req.ExpiresAt, req.FeeRateBps)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

func (s *Server) handleApproveMarket(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.Approve(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "open"})
}

func (s *Server) handleCancelMarket(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.Cancel(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	side, shares, ok := tradeParams(w, r)
	if !ok {
		return
	}
	quote, err := s.engine.QuoteBuy(r.Context(), r.PathValue("id"), side, shares)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type tradeRequest struct {
	Account     string `json:"account"`
	Side        string `json:"side"`
	Shares      int64  `json:"shares"`
	MaxCost     int64  `json:"max_cost"`
	MinProceeds int64  `json:"min_proceeds"`
}

func (r tradeRequest) side() (domain.Side, bool) {
	switch r.Side {
	case "yes":
		return domain.SideYes, true
	case "no":
		return domain.SideNo, true
	default:
		return 0, false
	}
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side, ok := req.side()
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	receipt, err := s.engine.Buy(r.Context(), req.Account, r.PathValue("id"), side, req.Shares, req.MaxCost)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side, ok := req.side()
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	receipt, err := s.engine.Sell(r.Context(), req.Account, r.PathValue("id"), side, req.Shares, req.MinProceeds)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Side   string `json:"side"`
	Shares int64  `json:"shares"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	side := domain.SideYes
	if req.Side == "no" {
		side = domain.SideNo
	} else if req.Side != "yes" {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	if err := s.engine.Transfer(r.Context(), r.PathValue("id"), req.From, req.To, side, req.Shares); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	paid, err := s.engine.Redeem(r.Context(), r.PathValue("id"), req.Account)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"paid": paid})
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	disputes, err := s.disputes.ListByMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"disputes": disputes})
}

type submitDisputeRequest struct {
	Account       string   `json:"account"`
	Claimed       string   `json:"claimed_outcome"`
	Bond          int64    `json:"bond"`
	Evidence      string   `json:"evidence"`
	EvidenceLinks []string `json:"evidence_links"`
}

func (s *Server) handleSubmitDispute(w http.ResponseWriter, r *http.Request) {
	var req submitDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	claimed, err := domain.ParseOutcome(req.Claimed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := s.disputeSvc.Submit(r.Context(), r.PathValue("id"), req.Account, claimed, req.Bond, req.Evidence, req.EvidenceLinks)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

type validateDisputeRequest struct {
	Legitimate           bool `json:"legitimate"`
	ContradictsConsensus bool `json:"contradicts_consensus"`
}

func (s *Server) handleValidateDispute(w http.ResponseWriter, r *http.Request) {
	var req validateDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.disputeSvc.Validate(r.Context(), r.PathValue("id"), req.Legitimate, req.ContradictsConsensus); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "validated"})
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Accepted bool `json:"accepted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.disputeSvc.Resolve(r.Context(), r.PathValue("id"), req.Accepted); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleFinalizeMarket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	outcome, err := domain.ParseOutcome(req.Outcome)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.monitor.ForceFinalize(r.Context(), r.PathValue("id"), outcome); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "finalized"})
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("market_id"); id != "" {
		s.syncer.SyncMarket(r.Context(), id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "synced", "market_id": id})
		return
	}
	if err := s.syncer.SyncAll(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := s.audit.List(r.Context(), domain.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := s.ledger.Position(r.Context(), r.PathValue("id"), r.PathValue("account"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// tradeParams parses side and shares query parameters for quote requests.
func tradeParams(w http.ResponseWriter, r *http.Request) (domain.Side, int64, bool) {
	var side domain.Side
	switch r.URL.Query().Get("side") {
	case "yes":
		side = domain.SideYes
	case "no":
		side = domain.SideNo
	default:
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return 0, 0, false
	}
	shares, err := strconv.ParseInt(r.URL.Query().Get("shares"), 10, 64)
	if err != nil || shares <= 0 {
		writeError(w, http.StatusBadRequest, "shares must be a positive integer")
		return 0, 0, false
	}
	return side, shares, true
}

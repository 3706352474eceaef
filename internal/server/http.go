package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"YieldVault/internal/event"
	"YieldVault/internal/observability"
	"YieldVault/internal/query"
	"YieldVault/internal/registry"
	"YieldVault/internal/service"
	"YieldVault/internal/token"
	"YieldVault/internal/vault"
)

// HTTPServer exposes the ledger over HTTP/JSON. Mutations are submitted
// as commands to the single-threaded loop; reads either go through the
// Postgres read model (history, stats) or through an Inspect command so
// previews always see a consistent in-memory state.
type HTTPServer struct {
	addr          string
	commands      chan<- service.Command
	queries       *query.QueryService
	healthChecker *observability.HealthChecker
	metrics       *observability.Metrics
	logger        zerolog.Logger

	httpServer *http.Server
}

func NewHTTPServer(
	addr string,
	commands chan<- service.Command,
	queries *query.QueryService,
	healthChecker *observability.HealthChecker,
	metrics *observability.Metrics,
) *HTTPServer {
	return &HTTPServer{
		addr:          addr,
		commands:      commands,
		queries:       queries,
		healthChecker: healthChecker,
		metrics:       metrics,
		logger:        observability.NewLogger("http"),
	}
}

// Handler builds the route table.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/deposit", s.handleDeposit)
	mux.HandleFunc("POST /v1/mint", s.handleMint)
	mux.HandleFunc("POST /v1/sponsor", s.handleSponsor)
	mux.HandleFunc("POST /v1/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /v1/redeem", s.handleRedeem)
	mux.HandleFunc("POST /v1/liquidation/extract", s.handleExtract)
	mux.HandleFunc("POST /v1/liquidation/verify", s.handleVerify)
	mux.HandleFunc("POST /v1/fees/claim", s.handleClaimFee)
	mux.HandleFunc("POST /v1/store/adjust", s.handleStoreAdjust)
	mux.HandleFunc("POST /v1/token/seed", s.handleTokenSeed)
	mux.HandleFunc("POST /v1/params", s.handleParamUpdate)

	mux.HandleFunc("GET /v1/vault", s.handleVaultState)
	mux.HandleFunc("GET /v1/preview", s.handlePreview)
	mux.HandleFunc("GET /v1/max", s.handleMax)
	mux.HandleFunc("GET /v1/liquidation/balance", s.handleLiquidatableBalance)
	mux.HandleFunc("GET /v1/operations", s.handleOperations)
	mux.HandleFunc("GET /v1/liquidations", s.handleLiquidations)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/events/{sequence}", s.handleEvent)
	mux.HandleFunc("GET /v1/integrity", s.handleIntegrity)

	if s.healthChecker != nil {
		mux.HandleFunc("GET /healthz", s.healthChecker.LivenessHandler)
		mux.HandleFunc("GET /readyz", s.healthChecker.ReadinessHandler)
	}

	return mux
}

// Start runs the HTTP server until the context is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// --- Command handlers ---

type depositRequest struct {
	OpID     string `json:"op_id"`
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
	Assets   uint64 `json:"assets"`
	Shares   uint64 `json:"shares"`
	Sequence int64  `json:"sequence"`
}

type withdrawRequest struct {
	OpID     string `json:"op_id"`
	Caller   string `json:"caller"`
	Receiver string `json:"receiver"`
	Owner    string `json:"owner"`
	Assets   uint64 `json:"assets"`
	Shares   uint64 `json:"shares"`
	Sequence int64  `json:"sequence"`
}

type opResponse struct {
	OpID      string `json:"op_id"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Shares    uint64 `json:"shares,omitempty"`
	Assets    uint64 `json:"assets,omitempty"`
	Fee       uint64 `json:"fee,omitempty"`
}

func (s *HTTPServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opID, caller, receiver, err := parseOpParties(req.OpID, req.Caller, req.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.submit(w, r, opID, &event.Deposit{
		OpID:     opID,
		Caller:   caller,
		Receiver: receiver,
		Assets:   req.Assets,
		Sequence: defaultSequence(req.Sequence),
	})
}

func (s *HTTPServer) handleMint(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opID, caller, receiver, err := parseOpParties(req.OpID, req.Caller, req.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.submit(w, r, opID, &event.Mint{
		OpID:     opID,
		Caller:   caller,
		Receiver: receiver,
		Shares:   req.Shares,
		Sequence: defaultSequence(req.Sequence),
	})
}

func (s *HTTPServer) handleSponsor(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opID, err := parseOrNewUUID(req.OpID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("op_id: %w", err))
		return
	}
	caller, err := uuid.Parse(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("caller: %w", err))
		return
	}
	s.submit(w, r, opID, &event.Sponsor{
		OpID:     opID,
		Caller:   caller,
		Assets:   req.Assets,
		Sequence: defaultSequence(req.Sequence),
	})
}

func (s *HTTPServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opID, caller, receiver, owner, err := parseWithdrawParties(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.submit(w, r, opID, &event.Withdraw{
		OpID:     opID,
		Caller:   caller,
		Receiver: receiver,
		Owner:    owner,
		Assets:   req.Assets,
		Sequence: defaultSequence(req.Sequence),
	})
}

func (s *HTTPServer) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	opID, caller, receiver, owner, err := parseWithdrawParties(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.submit(w, r, opID, &event.Redeem{
		OpID:     opID,
		Caller:   caller,
		Receiver: receiver,
		Owner:    owner,
		Shares:   req.Shares,
		Sequence: defaultSequence(req.Sequence),
	})
}

type extractRequest struct {
	LiquidationID string `json:"liquidation_id"`
	Agent         string `json:"agent"`
	Recipient     string `json:"recipient"`
	TokenOut      string `json:"token_out"`
	TokenIn       string `json:"token_in"`
	Amount        uint64 `json:"amount"`
	Sequence      int64  `json:"sequence"`
}

func (s *HTTPServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	liqID, err := parseOrNewUUID(req.LiquidationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("liquidation_id: %w", err))
		return
	}
	agent, err := uuid.Parse(req.Agent)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("agent: %w", err))
		return
	}
	recipient, err := uuid.Parse(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("recipient: %w", err))
		return
	}
	tokenOut, err := uuid.Parse(req.TokenOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("token_out: %w", err))
		return
	}
	s.submit(w, r, liqID, &event.YieldExtracted{
		LiquidationID: liqID,
		Agent:         agent,
		Recipient:     recipient,
		TokenOut:      tokenOut,
		Amount:        req.Amount,
		Sequence:      defaultSequence(req.Sequence),
	})
}

func (s *HTTPServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	liqID, err := uuid.Parse(req.LiquidationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("liquidation_id: %w", err))
		return
	}
	agent, err := uuid.Parse(req.Agent)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("agent: %w", err))
		return
	}
	tokenIn, err := uuid.Parse(req.TokenIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("token_in: %w", err))
		return
	}
	s.submit(w, r, liqID, &event.ContributionVerified{
		LiquidationID: liqID,
		Agent:         agent,
		TokenIn:       tokenIn,
		Amount:        req.Amount,
		Sequence:      defaultSequence(req.Sequence),
	})
}

type claimRequest struct {
	ClaimID   string `json:"claim_id"`
	Recipient string `json:"recipient"`
	Shares    uint64 `json:"shares"`
	Sequence  int64  `json:"sequence"`
}

func (s *HTTPServer) handleClaimFee(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	claimID, err := parseOrNewUUID(req.ClaimID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("claim_id: %w", err))
		return
	}
	recipient, err := uuid.Parse(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("recipient: %w", err))
		return
	}
	s.submit(w, r, claimID, &event.FeeClaimed{
		ClaimID:   claimID,
		Recipient: recipient,
		Shares:    req.Shares,
		Sequence:  defaultSequence(req.Sequence),
	})
}

type adjustRequest struct {
	AdjustmentID string `json:"adjustment_id"`
	Delta        int64  `json:"delta"`
	Sequence     int64  `json:"sequence"`
}

func (s *HTTPServer) handleStoreAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Delta == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("delta must be non-zero"))
		return
	}
	adjID, err := parseOrNewUUID(req.AdjustmentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("adjustment_id: %w", err))
		return
	}
	s.submit(w, r, adjID, &event.StoreAdjusted{
		AdjustmentID: adjID,
		Delta:        req.Delta,
		Sequence:     defaultSequence(req.Sequence),
	})
}

type seedRequest struct {
	SeedID   string `json:"seed_id"`
	Account  string `json:"account"`
	Amount   uint64 `json:"amount"`
	Sequence int64  `json:"sequence"`
}

func (s *HTTPServer) handleTokenSeed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("amount must be non-zero"))
		return
	}
	seedID, err := parseOrNewUUID(req.SeedID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("seed_id: %w", err))
		return
	}
	account, err := uuid.Parse(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("account: %w", err))
		return
	}
	s.submit(w, r, seedID, &event.TokenSeeded{
		SeedID:   seedID,
		Account:  account,
		Amount:   req.Amount,
		Sequence: defaultSequence(req.Sequence),
	})
}

type paramRequest struct {
	UpdateID     string `json:"update_id"`
	Owner        string `json:"owner"`
	Kind         string `json:"kind"`
	NumericValue uint64 `json:"numeric_value"`
	AddressValue string `json:"address_value"`
	Sequence     int64  `json:"sequence"`
}

func (s *HTTPServer) handleParamUpdate(w http.ResponseWriter, r *http.Request) {
	var req paramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updateID, err := parseOrNewUUID(req.UpdateID)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("update_id: %w", err))
		return
	}
	owner, err := uuid.Parse(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("owner: %w", err))
		return
	}
	kind := event.ParamKind(req.Kind)
	switch kind {
	case event.ParamFeePercentage, event.ParamFeeRecipient, event.ParamLiquidationAgent, event.ParamClaimAgent:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown param kind %q", req.Kind))
		return
	}
	var addr uuid.UUID
	if req.AddressValue != "" {
		addr, err = uuid.Parse(req.AddressValue)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("address_value: %w", err))
			return
		}
	}
	s.submit(w, r, updateID, &event.ParamUpdated{
		UpdateID:     updateID,
		Owner:        owner,
		Kind:         kind,
		NumericValue: req.NumericValue,
		AddressValue: addr,
		Sequence:     defaultSequence(req.Sequence),
	})
}

// submit sends the event through the loop and writes the reply.
func (s *HTTPServer) submit(w http.ResponseWriter, r *http.Request, opID uuid.UUID, evt event.Event) {
	reply := make(chan service.CommandResult, 1)

	select {
	case s.commands <- service.Command{Event: evt, Reply: reply}:
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, r.Context().Err())
		return
	}

	select {
	case res := <-reply:
		if errors.Is(res.Err, service.ErrDuplicateOp) {
			writeJSON(w, http.StatusOK, opResponse{OpID: opID.String(), Duplicate: true})
			return
		}
		if res.Err != nil {
			writeError(w, statusForError(res.Err), res.Err)
			return
		}
		writeJSON(w, http.StatusOK, opResponse{
			OpID:   opID.String(),
			Shares: res.Result.Shares,
			Assets: res.Result.Assets,
			Fee:    res.Result.Fee,
		})
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, r.Context().Err())
	}
}

// --- Read handlers ---

type vaultStateResponse struct {
	Account          string `json:"account"`
	ShareToken       string `json:"share_token"`
	Owner            string `json:"owner"`
	FeeRecipient     string `json:"fee_recipient"`
	LiquidationAgent string `json:"liquidation_agent"`
	TotalSupply      uint64 `json:"total_supply"`
	TotalAssets      uint64 `json:"total_assets"`
	TotalDebt        uint64 `json:"total_debt"`
	TotalYield       uint64 `json:"total_yield"`
	AvailableYield   uint64 `json:"available_yield"`
	FeeBalance       uint64 `json:"fee_balance"`
	LatentBalance    uint64 `json:"latent_balance"`
	YieldBuffer      uint64 `json:"yield_buffer"`
	FeePercentage    uint64 `json:"fee_percentage"`
}

func (s *HTTPServer) handleVaultState(w http.ResponseWriter, r *http.Request) {
	var resp vaultStateResponse
	if !s.inspect(w, r, func(v *vault.Vault) {
		resp = vaultStateResponse{
			Account:          v.Account().String(),
			ShareToken:       v.ShareTokenID().String(),
			Owner:            v.Owner().String(),
			FeeRecipient:     v.FeeRecipient().String(),
			LiquidationAgent: v.LiquidationAgent().String(),
			TotalSupply:      v.TotalSupply(),
			TotalAssets:      v.TotalAssets(),
			TotalDebt:        v.TotalDebt(),
			TotalYield:       v.TotalYieldBalance(),
			AvailableYield:   v.AvailableYieldBalance(),
			FeeBalance:       v.FeeBalance(),
			LatentBalance:    v.LatentBalance(),
			YieldBuffer:      v.YieldBuffer(),
			FeePercentage:    v.FeePercentage(),
		}
	}) {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	op := r.URL.Query().Get("op")
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("amount: %w", err))
		return
	}

	switch op {
	case "deposit", "mint", "withdraw", "redeem", "to_shares", "to_assets":
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown preview op %q", op))
		return
	}

	var result uint64
	if !s.inspect(w, r, func(v *vault.Vault) {
		switch op {
		case "deposit":
			result = v.PreviewDeposit(amount)
		case "mint":
			result = v.PreviewMint(amount)
		case "withdraw":
			result = v.PreviewWithdraw(amount)
		case "redeem":
			result = v.PreviewRedeem(amount)
		case "to_shares":
			result = v.ConvertToShares(amount)
		case "to_assets":
			result = v.ConvertToAssets(amount)
		}
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"result": result})
}

func (s *HTTPServer) handleMax(w http.ResponseWriter, r *http.Request) {
	op := r.URL.Query().Get("op")
	owner, err := uuid.Parse(r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("owner: %w", err))
		return
	}

	switch op {
	case "deposit", "mint", "withdraw", "redeem":
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown max op %q", op))
		return
	}

	var result uint64
	if !s.inspect(w, r, func(v *vault.Vault) {
		switch op {
		case "deposit":
			result = v.MaxDeposit(owner)
		case "mint":
			result = v.MaxMint(owner)
		case "withdraw":
			result = v.MaxWithdraw(owner)
		case "redeem":
			result = v.MaxRedeem(owner)
		}
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"result": result})
}

func (s *HTTPServer) handleLiquidatableBalance(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("token: %w", err))
		return
	}

	var balance uint64
	var target uuid.UUID
	if !s.inspect(w, r, func(v *vault.Vault) {
		balance = v.LiquidatableBalanceOf(token)
		target = v.TargetOf()
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":   token.String(),
		"balance": balance,
		"target":  target.String(),
	})
}

// inspect runs fn inside the ledger loop and waits for completion.
// Returns false if the reply was already written (error path).
func (s *HTTPServer) inspect(w http.ResponseWriter, r *http.Request, fn func(*vault.Vault)) bool {
	reply := make(chan service.CommandResult, 1)

	select {
	case s.commands <- service.Command{Inspect: fn, Reply: reply}:
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, r.Context().Err())
		return false
	}

	select {
	case <-reply:
		return true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, r.Context().Err())
		return false
	}
}

func (s *HTTPServer) handleOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var actor *uuid.UUID
	if v := q.Get("actor"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("actor: %w", err))
			return
		}
		actor = &id
	}

	var opType *string
	if v := q.Get("op_type"); v != "" {
		opType = &v
	}

	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be in 1..500"))
			return
		}
		limit = n
	}

	var afterSeq *int64
	if v := q.Get("after_sequence"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("after_sequence: %w", err))
			return
		}
		afterSeq = &n
	}

	start := time.Now()
	ops, err := s.queries.GetOperationHistory(r.Context(), actor, opType, limit, afterSeq)
	s.observeQuery("operations", start, err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}

func (s *HTTPServer) handleLiquidations(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be in 1..500"))
			return
		}
		limit = n
	}

	var afterSeq *int64
	if v := r.URL.Query().Get("after_sequence"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("after_sequence: %w", err))
			return
		}
		afterSeq = &n
	}

	start := time.Now()
	ops, err := s.queries.GetLiquidationHistory(r.Context(), limit, afterSeq)
	s.observeQuery("liquidations", start, err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liquidations": ops})
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	stats, err := s.queries.GetStats(r.Context())
	s.observeQuery("stats", start, err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseInt(r.PathValue("sequence"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("sequence: %w", err))
		return
	}

	start := time.Now()
	evt, err := s.queries.GetEvent(r.Context(), seq)
	s.observeQuery("events", start, err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if evt == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no event at sequence %d", seq))
		return
	}
	writeJSON(w, http.StatusOK, evt)
}

func (s *HTTPServer) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	report, err := s.queries.VerifyIntegrity(r.Context())
	s.observeQuery("integrity", start, err)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) observeQuery(endpoint string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.QueryErrors.WithLabelValues(endpoint, "internal").Inc()
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// --- Helpers ---

func parseOpParties(opID, caller, receiver string) (uuid.UUID, uuid.UUID, uuid.UUID, error) {
	id, err := parseOrNewUUID(opID)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("op_id: %w", err)
	}
	c, err := uuid.Parse(caller)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("caller: %w", err)
	}
	rcv, err := uuid.Parse(receiver)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, fmt.Errorf("receiver: %w", err)
	}
	return id, c, rcv, nil
}

func parseWithdrawParties(req *withdrawRequest) (opID, caller, receiver, owner uuid.UUID, err error) {
	opID, caller, receiver, err = parseOpParties(req.OpID, req.Caller, req.Receiver)
	if err != nil {
		return
	}
	owner, err = uuid.Parse(req.Owner)
	if err != nil {
		err = fmt.Errorf("owner: %w", err)
	}
	return
}

// parseOrNewUUID generates an operation ID when the client omits one.
// Clients that need idempotent retries must supply their own.
func parseOrNewUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}

func defaultSequence(seq int64) int64 {
	if seq > 0 {
		return seq
	}
	return time.Now().UnixNano()
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, vault.ErrZeroAssets),
		errors.Is(err, vault.ErrZeroShares),
		errors.Is(err, vault.ErrZeroAddress),
		errors.Is(err, vault.ErrUnsupportedToken),
		errors.Is(err, vault.ErrWrongPaymentToken),
		errors.Is(err, vault.ErrFeePercentageHigh):
		return http.StatusBadRequest

	case errors.Is(err, vault.ErrNotOwner),
		errors.Is(err, vault.ErrNotLiquidationAgent),
		errors.Is(err, vault.ErrNotFeeRecipient),
		errors.Is(err, registry.ErrInsufficientAllowance):
		return http.StatusForbidden

	case errors.Is(err, vault.ErrLossyDeposit),
		errors.Is(err, vault.ErrExceedsMaxWithdraw),
		errors.Is(err, vault.ErrExceedsMaxRedeem),
		errors.Is(err, vault.ErrExceedsYield),
		errors.Is(err, vault.ErrExceedsFeeBalance),
		errors.Is(err, registry.ErrSupplyCapExceeded),
		errors.Is(err, registry.ErrInsufficientUnits),
		errors.Is(err, token.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

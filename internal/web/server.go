// Package web exposes the bot's operation surface over HTTP plus an SSE
// stream of terminal trades. Authentication, rate limiting and TLS belong
// to the deployment front, not here.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pegbot/internal/domain"
	"github.com/vadiminshakov/pegbot/internal/services/health"
	"github.com/vadiminshakov/pegbot/internal/services/orchestrator"
	"github.com/vadiminshakov/pegbot/internal/storage/trades"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHistoryLimit = 50
	defaultStatsWindow  = 24 * time.Hour
	heartbeatInterval   = 30 * time.Second
)

type orchestratorAPI interface {
	Submit(ctx context.Context, req domain.TradeRequest) (*domain.TradeRecord, error)
	Estimate(ctx context.Context, amount decimal.Decimal, action domain.Action) (*orchestrator.Estimate, error)
}

type oracleAPI interface {
	GetAllPrices(ctx context.Context) (*domain.PriceSnapshot, error)
	GetPegDeviation(ctx context.Context, target decimal.Decimal) (*domain.Deviation, error)
	GetLiquidityDepth(ctx context.Context) (*domain.LiquidityDepth, error)
}

type gateAPI interface {
	Config() domain.BotConfig
	CheckDailyLimits() (domain.DailyLimitReport, error)
	EvaluateSafety(balances map[string]decimal.Decimal, liquidity domain.LiquidityDepth, daily domain.DailyLimitReport) domain.SafetyStatus
	Enable(reason string)
	Disable(reason string)
	EmergencyPause(reason string)
	ApplyPatch(patch domain.ConfigPatch) error
}

type historyAPI interface {
	History(f trades.Filter) []*domain.TradeRecord
	Statistics(window time.Duration) domain.TradeStatistics
}

type healthAPI interface {
	Check(ctx context.Context) health.Report
}

type balanceAPI interface {
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
}

type tradeStream interface {
	Subscribe() chan domain.TradeRecord
	Unsubscribe(ch chan domain.TradeRecord)
}

// Server wires the HTTP handlers to the bot core.
type Server struct {
	addr         string
	orchestrator orchestratorAPI
	oracle       oracleAPI
	gate         gateAPI
	history      historyAPI
	health       healthAPI
	balances     balanceAPI
	stream       tradeStream
	logger       *zap.Logger
}

// NewServer creates the web server.
func NewServer(addr string, orch orchestratorAPI, oracle oracleAPI, gate gateAPI,
	history historyAPI, health healthAPI, balances balanceAPI, stream tradeStream, logger *zap.Logger) *Server {

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:         addr,
		orchestrator: orch,
		oracle:       oracle,
		gate:         gate,
		history:      history,
		health:       health,
		balances:     balances,
		stream:       stream,
		logger:       logger,
	}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/prices", s.handlePrices)
	mux.HandleFunc("/deviation", s.handleDeviation)
	mux.HandleFunc("/liquidity", s.handleLiquidity)
	mux.HandleFunc("/safety", s.handleSafety)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/enable", s.handleEnable)
	mux.HandleFunc("/disable", s.handleDisable)
	mux.HandleFunc("/emergency-pause", s.handleEmergencyPause)
	mux.HandleFunc("/trade", s.handleSubmit)
	mux.HandleFunc("/trade/estimate", s.handleEstimate)
	mux.HandleFunc("/trades", s.handleHistory)
	mux.HandleFunc("/trades/stats", s.handleStatistics)
	mux.HandleFunc("/trades/stream", s.handleTradeStream)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("web server listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	snapshot, err := s.oracle.GetAllPrices(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleDeviation(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	target := decimal.Zero
	if raw := r.URL.Query().Get("target"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			s.writeError(w, &domain.ValidationError{Reason: fmt.Sprintf("invalid target: %s", raw)})
			return
		}
		target = parsed
	}
	deviation, err := s.oracle.GetPegDeviation(r.Context(), target)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, deviation)
}

func (s *Server) handleLiquidity(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	depth, err := s.oracle.GetLiquidityDepth(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, depth)
}

// handleSafety composes the safety inputs concurrently and reduces them
// through the risk gate.
func (s *Server) handleSafety(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	var (
		balances  map[string]decimal.Decimal
		liquidity *domain.LiquidityDepth
		daily     domain.DailyLimitReport
	)
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		balances, err = s.balances.Balances(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		liquidity, err = s.oracle.GetLiquidityDepth(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		daily, err = s.gate.CheckDailyLimits()
		return err
	})
	if err := g.Wait(); err != nil {
		s.writeError(w, err)
		return
	}

	status := s.gate.EvaluateSafety(balances, *liquidity, daily)
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	report := s.health.Check(r.Context())
	code := http.StatusOK
	if !report.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, report)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.gate.Config())
	case http.MethodPost:
		var patch domain.ConfigPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			s.writeError(w, &domain.ValidationError{Reason: fmt.Sprintf("invalid config patch: %v", err)})
			return
		}
		if err := s.gate.ApplyPatch(patch); err != nil {
			s.writeError(w, &domain.ValidationError{Reason: err.Error()})
			return
		}
		s.writeJSON(w, http.StatusOK, s.gate.Config())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	s.handleStateChange(w, r, s.gate.Enable)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	s.handleStateChange(w, r, s.gate.Disable)
}

func (s *Server) handleEmergencyPause(w http.ResponseWriter, r *http.Request) {
	s.handleStateChange(w, r, s.gate.EmergencyPause)
}

func (s *Server) handleStateChange(w http.ResponseWriter, r *http.Request, apply func(string)) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req reasonRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	apply(req.Reason)
	s.writeJSON(w, http.StatusOK, s.gate.Config())
}

type submitRequest struct {
	Action    string `json:"action"`
	Amount    string `json:"amount"`
	MinOutput string `json:"min_output,omitempty"`
	Slippage  string `json:"slippage,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
}

func (r submitRequest) toDomain() (domain.TradeRequest, error) {
	action, err := domain.ActionFromString(r.Action)
	if err != nil {
		return domain.TradeRequest{}, &domain.ValidationError{Reason: err.Error()}
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return domain.TradeRequest{}, &domain.ValidationError{Reason: fmt.Sprintf("invalid amount: %s", r.Amount)}
	}

	req := domain.TradeRequest{
		Action:    action,
		Amount:    amount,
		MinOutput: decimal.Zero,
		Urgency:   domain.UrgencyFromString(r.Urgency),
	}
	if r.MinOutput != "" {
		if req.MinOutput, err = decimal.NewFromString(r.MinOutput); err != nil {
			return domain.TradeRequest{}, &domain.ValidationError{Reason: fmt.Sprintf("invalid min_output: %s", r.MinOutput)}
		}
	}
	if r.Slippage != "" {
		slip, err := decimal.NewFromString(r.Slippage)
		if err != nil {
			return domain.TradeRequest{}, &domain.ValidationError{Reason: fmt.Sprintf("invalid slippage: %s", r.Slippage)}
		}
		req.Slippage = &slip
	}
	return req, nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &domain.ValidationError{Reason: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	req, err := body.toDomain()
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec, err := s.orchestrator.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// execution failures still return the terminal record, not an error
	s.writeJSON(w, http.StatusOK, rec)
}

type estimateRequest struct {
	Action string `json:"action"`
	Amount string `json:"amount"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var body estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &domain.ValidationError{Reason: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	action, err := domain.ActionFromString(body.Action)
	if err != nil {
		s.writeError(w, &domain.ValidationError{Reason: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		s.writeError(w, &domain.ValidationError{Reason: fmt.Sprintf("invalid amount: %s", body.Amount)})
		return
	}

	estimate, err := s.orchestrator.Estimate(r.Context(), amount, action)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, estimate)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	filter := trades.Filter{Limit: defaultHistoryLimit}
	query := r.URL.Query()
	if raw := query.Get("status"); raw != "" {
		status := domain.TradeStatus(raw)
		if !status.Terminal() && status != domain.TradeStatusPending {
			s.writeError(w, &domain.ValidationError{Reason: fmt.Sprintf("unknown status: %s", raw)})
			return
		}
		filter.Status = status
	}
	if raw := query.Get("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 0 {
			s.writeError(w, &domain.ValidationError{Reason: fmt.Sprintf("invalid hours: %s", raw)})
			return
		}
		filter.Hours = hours
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			s.writeError(w, &domain.ValidationError{Reason: fmt.Sprintf("invalid limit: %s", raw)})
			return
		}
		filter.Limit = limit
	}

	s.writeJSON(w, http.StatusOK, s.history.History(filter))
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	window := defaultStatsWindow
	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 1 {
			s.writeError(w, &domain.ValidationError{Reason: fmt.Sprintf("invalid hours: %s", raw)})
			return
		}
		window = time.Duration(hours) * time.Hour
	}
	s.writeJSON(w, http.StatusOK, s.history.Statistics(window))
}

func (s *Server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "trade stream not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.stream.Subscribe()
	defer s.stream.Unsubscribe(sub)

	// comment heartbeat keeps proxies from closing the connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case rec, open := <-sub:
			if !open {
				return
			}
			payload, err := json.Marshal(rec)
			if err != nil {
				s.logger.Error("failed to encode trade event", zap.Error(err))
				continue
			}
			fmt.Fprint(w, "event: trade\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		validationErr  *domain.ValidationError
		safetyErr      *domain.SafetyViolation
		persistenceErr *domain.PersistenceError
	)

	code := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.As(err, &validationErr):
		code, kind = http.StatusBadRequest, "validation"
	case errors.As(err, &safetyErr):
		code, kind = http.StatusConflict, "safety"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		code, kind = http.StatusBadGateway, "upstream"
	case errors.Is(err, domain.ErrTradeNotFound):
		code, kind = http.StatusNotFound, "not_found"
	case errors.As(err, &persistenceErr):
		kind = "persistence"
	}

	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error(), Kind: kind})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

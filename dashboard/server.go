package dashboard

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/acme/autocert"

	"github.com/loyaltyx/demoledger/internal/domain"
	"github.com/loyaltyx/demoledger/internal/services/ledger"
	"github.com/loyaltyx/demoledger/internal/services/reconciler"
)

const opsPollInterval = 3 * time.Second

type ledgerAPI interface {
	Snapshot() *domain.Ledger
	PositionsWithEarnings() []domain.YieldPositionView
	DepositToYield(protocol domain.Protocol, amountPoints decimal.Decimal) (*ledger.Receipt, error)
	WithdrawFromYield(positionIndex int) (*ledger.Receipt, error)
	MintStablecoin(lusdAmount decimal.Decimal) (*ledger.Receipt, error)
	RedeemStablecoin(lusdAmount decimal.Decimal) (*ledger.Receipt, error)
	Stake(amountTokens decimal.Decimal) (*ledger.Receipt, error)
	Unstake(amountTokens decimal.Decimal) (*ledger.Receipt, error)
}

type demoAPI interface {
	EnableDemoMode(ctx context.Context) error
	DisableDemoMode(ctx context.Context) error
	Reset(ctx context.Context) error
	Status() reconciler.Status
}

type opReader interface {
	EventsAfter(index uint64) ([]domain.OpEventRecord, error)
}

// Server exposes the portfolio HTTP API, the HTML UI and an SSE stream
// of committed operations.
type Server struct {
	Addr    string
	Ledger  ledgerAPI
	Demo    demoAPI
	OpStore opReader
}

// NewServer creates a new web server instance.
func NewServer(addr string, ledger ledgerAPI, demo demoAPI, ops opReader) *Server {
	return &Server{Addr: addr, Ledger: ledger, Demo: demo, OpStore: ops}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", s.staticHandler())
	mux.HandleFunc("/api/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/ops/deposit", s.handleOp(s.deposit))
	mux.HandleFunc("/api/ops/withdraw", s.handleOp(s.withdraw))
	mux.HandleFunc("/api/ops/mint", s.handleOp(s.mint))
	mux.HandleFunc("/api/ops/redeem", s.handleOp(s.redeem))
	mux.HandleFunc("/api/ops/stake", s.handleOp(s.stake))
	mux.HandleFunc("/api/ops/unstake", s.handleOp(s.unstake))
	mux.HandleFunc("/api/demo/enable", s.handleDemo(func(ctx context.Context) error { return s.Demo.EnableDemoMode(ctx) }, "demo mode enabled"))
	mux.HandleFunc("/api/demo/disable", s.handleDemo(func(ctx context.Context) error { return s.Demo.DisableDemoMode(ctx) }, "demo mode disabled"))
	mux.HandleFunc("/api/demo/reset", s.handleDemo(func(ctx context.Context) error { return s.Demo.Reset(ctx) }, "demo account reset"))
	mux.HandleFunc("/ops/stream", s.handleOpStream)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	// HTTP server on port 80 for ACME challenges and HTTP->HTTPS redirects.
	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	// shutdown both servers when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http (acme) server shutdown error: %v", err)
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("https server shutdown error: %v", err)
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http (acme) server error: %v", err)
		}
	}()

	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type positionPayload struct {
	Protocol        string `json:"protocol"`
	PrincipalPoints string `json:"principal_points"`
	ExchangedAmount string `json:"exchanged_amount"`
	Asset           string `json:"asset"`
	APY             string `json:"apy"`
	OpenedAt        string `json:"opened_at"`
	Earned          string `json:"earned"`
}

type portfolioPayload struct {
	Points         string            `json:"points"`
	TokenBalance   string            `json:"token_balance"`
	StakedTokens   string            `json:"staked_tokens"`
	StakingRewards string            `json:"staking_rewards"`
	Collateral     string            `json:"collateral"`
	StablecoinDebt string            `json:"stablecoin_debt"`
	Positions      []positionPayload `json:"positions"`
	Demo           reconciler.Status `json:"demo"`
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot := s.Ledger.Snapshot()
	views := s.Ledger.PositionsWithEarnings()

	positions := make([]positionPayload, 0, len(views))
	for _, v := range views {
		positions = append(positions, positionPayload{
			Protocol:        string(v.Protocol),
			PrincipalPoints: v.PrincipalPoints.String(),
			ExchangedAmount: v.ExchangedAmount.String(),
			Asset:           v.Asset,
			APY:             v.APY.String(),
			OpenedAt:        v.OpenedAt.Format(time.RFC3339),
			Earned:          v.Earned.String(),
		})
	}

	writeJSON(w, http.StatusOK, portfolioPayload{
		Points:         snapshot.Points.String(),
		TokenBalance:   snapshot.TokenBalance.String(),
		StakedTokens:   snapshot.StakedTokens.String(),
		StakingRewards: snapshot.StakingRewards.String(),
		Collateral:     snapshot.Collateral.String(),
		StablecoinDebt: snapshot.StablecoinDebt.String(),
		Positions:      positions,
		Demo:           s.Demo.Status(),
	})
}

type opRequest struct {
	Protocol      string          `json:"protocol,omitempty"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
	PositionIndex int             `json:"position_index,omitempty"`
}

type opResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleOp(op func(opRequest) (*ledger.Receipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req opRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, opResponse{Error: "malformed request body"})
			return
		}

		receipt, err := op(req)
		if err != nil {
			// rejected transactions are a normal outcome, not a server fault
			if domain.IsValidation(err) {
				writeJSON(w, http.StatusOK, opResponse{Success: false, Error: err.Error()})
				return
			}
			log.Printf("operation failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, opResponse{Error: "internal error"})
			return
		}

		writeJSON(w, http.StatusOK, opResponse{Success: true, Message: receipt.Message})
	}
}

func (s *Server) deposit(req opRequest) (*ledger.Receipt, error) {
	return s.Ledger.DepositToYield(domain.ParseProtocol(req.Protocol), req.Amount)
}

func (s *Server) withdraw(req opRequest) (*ledger.Receipt, error) {
	return s.Ledger.WithdrawFromYield(req.PositionIndex)
}

func (s *Server) mint(req opRequest) (*ledger.Receipt, error) {
	return s.Ledger.MintStablecoin(req.Amount)
}

func (s *Server) redeem(req opRequest) (*ledger.Receipt, error) {
	return s.Ledger.RedeemStablecoin(req.Amount)
}

func (s *Server) stake(req opRequest) (*ledger.Receipt, error) {
	return s.Ledger.Stake(req.Amount)
}

func (s *Server) unstake(req opRequest) (*ledger.Receipt, error) {
	return s.Ledger.Unstake(req.Amount)
}

func (s *Server) handleDemo(action func(ctx context.Context) error, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := action(r.Context()); err != nil {
			writeJSON(w, http.StatusOK, opResponse{Success: false, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, opResponse{Success: true, Message: message})
	}
}

func (s *Server) handleOpStream(w http.ResponseWriter, r *http.Request) {
	if s.OpStore == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "operation journal not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// send a comment heartbeat every 20s so proxies keep connection
	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(opsPollInterval)
	defer pollTicker.Stop()

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	sendEvents := func() error {
		records, err := s.OpStore.EventsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Event)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: operation\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendEvents(); err != nil {
		http.Error(w, "failed to load operations", http.StatusInternalServerError)
		log.Printf("op stream initial load: %v", err)
		return
	}

	// after initial load, if nothing was sent, let the client leave its
	// 'loading' state.
	if lastIndex == 0 {
		fmt.Fprintf(w, "event: no_data\n")
		fmt.Fprintf(w, "data: {}\n\n")
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendEvents(); err != nil {
				log.Printf("op stream poll err: %v", err)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func (s *Server) staticHandler() http.Handler {
	fileServer := http.StripPrefix("/", http.FileServer(http.Dir("dashboard/static")))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assetPath := r.URL.Path
		if assetPath == "" || assetPath == "/" {
			assetPath = "/index.html"
		}

		if !shouldCompress(assetPath) || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			fileServer.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Vary", "Accept-Encoding")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		gzw := &gzipResponseWriter{ResponseWriter: w, writer: gz}
		fileServer.ServeHTTP(gzw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	writer *gzip.Writer
}

func (w *gzipResponseWriter) WriteHeader(statusCode int) {
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	return w.writer.Write(b)
}

func shouldCompress(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return true
	}
	switch ext {
	case ".html", ".css", ".js", ".json", ".svg", ".txt":
		return true
	default:
		return false
	}
}

// parseLastEventID extracts an SSE event ID from either the Last-Event-ID header or a query parameter.
// The header is preferred; the query parameter allows manual reconnects to resume from a known index.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		log.Printf("invalid last event id %q: %v", idStr, err)
		return 0
	}
	return id
}

// Package web exposes the portfolio report and the store's history queries
// as JSON endpoints.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vallethq/vallet/internal/domain"
	"github.com/vallethq/vallet/internal/services/report"
	"github.com/vallethq/vallet/pkg/indicators"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

const defaultHistoryLimit = 20

// historySource is the read slice of the snapshot store the server needs.
type historySource interface {
	PriceHistory(ctx context.Context, asset, currency string, limit int) ([]domain.PricePoint, error)
	ValueHistory(ctx context.Context, account string, assets []string, currency string, limit int) ([]domain.ValuePoint, error)
	PortfolioHistory(ctx context.Context, account, currency string, limit int) ([]domain.PortfolioPoint, error)
}

// Config holds the server parameters. When Domains is set the server
// obtains certificates through Let's Encrypt and serves TLS.
type Config struct {
	Addr         string   `yaml:"addr"`
	Domains      []string `yaml:"domains"`
	CertCacheDir string   `yaml:"cert_cache_dir"`
}

// Server serves /report, /history/value, /history/prices and
// /history/portfolio for a single configured account.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	store    historySource
	builder  *report.Builder
	account  string
	assets   []string
	currency string

	// now is swappable for tests
	now func() time.Time
}

// NewServer creates the server for one account.
func NewServer(cfg Config, logger *zap.Logger, store historySource, builder *report.Builder, account string, assets []string, currency string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		builder:  builder,
		account:  account,
		assets:   assets,
		currency: currency,
		now:      time.Now,
	}
}

// Start runs the server (blocking) and shuts it down on ctx cancellation.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/report", s.handleReport)
	mux.HandleFunc("/history/value", s.handleValueHistory)
	mux.HandleFunc("/history/prices", s.handlePriceHistory)
	mux.HandleFunc("/history/portfolio", s.handlePortfolioHistory)

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	var err error
	if len(s.cfg.Domains) > 0 {
		cacheDir := s.cfg.CertCacheDir
		if cacheDir == "" {
			cacheDir = "./certs"
		}
		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(s.cfg.Domains...),
			Cache:      autocert.DirCache(cacheDir),
		}
		server.TLSConfig = manager.TLSConfig()
		s.logger.Info("serving https", zap.String("addr", s.cfg.Addr), zap.Strings("domains", s.cfg.Domains))
		err = server.ListenAndServeTLS("", "")
	} else {
		s.logger.Info("serving http", zap.String("addr", s.cfg.Addr))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "web server")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("request failed", zap.Error(err))
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	return limit
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.builder.Build(r.Context(), s.account, s.assets, s.currency, s.now().UTC())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleValueHistory(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.ValueHistory(r.Context(), s.account, s.assets, s.currency, limitParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"account":  s.account,
		"currency": s.currency,
		"points":   points,
	})
}

type priceHistoryResponse struct {
	Asset     string              `json:"asset"`
	Currency  string              `json:"currency"`
	Points    []domain.PricePoint `json:"points"`
	SMA       []*decimal.Decimal  `json:"sma,omitempty"`
	SMAPeriod int                 `json:"sma_period,omitempty"`
	EMA       []*decimal.Decimal  `json:"ema,omitempty"`
	EMAPeriod int                 `json:"ema_period,omitempty"`
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("missing asset parameter"))
		return
	}

	points, err := s.store.PriceHistory(r.Context(), asset, s.currency, limitParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := priceHistoryResponse{Asset: asset, Currency: s.currency, Points: points}
	if raw := r.URL.Query().Get("sma"); raw != "" {
		if period, err := strconv.Atoi(raw); err == nil && period > 0 {
			resp.SMA = averageForPoints(points, period, indicators.SMA)
			resp.SMAPeriod = period
		}
	}
	if raw := r.URL.Query().Get("ema"); raw != "" {
		if period, err := strconv.Atoi(raw); err == nil && period > 0 {
			resp.EMA = averageForPoints(points, period, indicators.EMA)
			resp.EMAPeriod = period
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// averageForPoints annotates newest-first history rows with a moving
// average computed over chronological order; rows too early in the series
// stay nil.
func averageForPoints(points []domain.PricePoint, period int, compute func([]decimal.Decimal, int) ([]decimal.Decimal, error)) []*decimal.Decimal {
	if len(points) < period {
		return nil
	}

	closes := make([]decimal.Decimal, len(points))
	for i, p := range points {
		closes[len(points)-1-i] = p.Price
	}
	values, err := compute(closes, period)
	if err != nil {
		return nil
	}

	out := make([]*decimal.Decimal, len(points))
	for j := range values {
		chrono := period - 1 + j
		v := values[j]
		out[len(points)-1-chrono] = &v
	}
	return out
}

func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request) {
	points, err := s.store.PortfolioHistory(r.Context(), s.account, s.currency, limitParam(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"account":  s.account,
		"currency": s.currency,
		"points":   points,
	})
}

// Package dashboard serves a read-only JSON API over the run ledger and the
// positions currently under trailing-stop management.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/pmansara/opendrive/internal/broker"
	"github.com/pmansara/opendrive/internal/models"
	"github.com/pmansara/opendrive/internal/storage"
)

// PositionSource exposes the live positions owned by the monitor supervisor.
type PositionSource interface {
	Positions() []models.Position
	ActiveCount() int
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	broker    broker.Broker
	positions PositionSource
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

// Statistics summarizes all persisted runs and closed positions.
type Statistics struct {
	TotalRuns       int     `json:"total_runs"`
	TotalOrders     int     `json:"total_orders"`
	TotalSkips      int     `json:"total_skips"`
	TotalNotional   float64 `json:"total_notional"`
	ClosedPositions int     `json:"closed_positions"`
	WinningExits    int     `json:"winning_exits"`
	LosingExits     int     `json:"losing_exits"`
	TotalPnL        float64 `json:"total_pnl"`
	ActiveMonitors  int     `json:"active_monitors"`
	MarketStatus    string  `json:"market_status"`
}

func NewServer(cfg Config, store storage.Interface, b broker.Broker,
	positions PositionSource, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		broker:    b,
		positions: positions,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/api/runs", s.handleGetRuns)
	s.router.Get("/api/runs/{id}", s.handleGetRun)
	s.router.Get("/api/positions", s.handleGetPositions)
	s.router.Get("/api/closed", s.handleGetClosed)
	s.router.Get("/api/stats", s.handleGetStats)
	s.router.Get("/api/balance", s.handleGetBalance)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleGetRuns(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.storage.GetRuns())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, run := range s.storage.GetRuns() {
		if run.RunID == id {
			s.writeJSON(w, run)
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.positions.Positions())
}

func (s *Server) handleGetClosed(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.storage.GetClosedPositions())
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.calculateStatistics())
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.broker.GetAvailableBalance(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to get available balance")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, map[string]float64{"available_balance": balance})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) calculateStatistics() *Statistics {
	stats := &Statistics{
		ActiveMonitors: s.positions.ActiveCount(),
		MarketStatus:   "Closed",
	}
	if isMarketOpen() {
		stats.MarketStatus = "Open"
	}

	for _, run := range s.storage.GetRuns() {
		stats.TotalRuns++
		for _, rec := range run.Ledger.Records {
			if rec.SkippedReason != "" {
				stats.TotalSkips++
				continue
			}
			// Failed placements carry neither an order ID nor a skip reason.
			if !rec.Filled() {
				continue
			}
			stats.TotalOrders++
			stats.TotalNotional += rec.NotionalCost
		}
	}

	for _, pos := range s.storage.GetClosedPositions() {
		stats.ClosedPositions++
		pnl := (pos.ExitPrice - pos.Record.EntryPrice) * float64(pos.Record.LotSize)
		if pnl > 0 {
			stats.WinningExits++
		} else {
			stats.LosingExits++
		}
		stats.TotalPnL += pnl
	}

	return stats
}

func isMarketOpen() bool {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return false
	}
	now := time.Now().In(loc)

	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}

	totalMinutes := now.Hour()*60 + now.Minute()
	marketOpen := 9*60 + 15
	marketClose := 15*60 + 30

	return totalMinutes >= marketOpen && totalMinutes < marketClose
}

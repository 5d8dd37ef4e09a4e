// Package web serves the keep-alive endpoint, the dashboard JSON API and
// the prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"resellboost/internal/config"
	"resellboost/internal/economy"
	"resellboost/internal/model"
	"resellboost/internal/ratelimit"
)

const (
	DefaultPort = 8080

	apiScope         = "api"
	maxLeaderboard   = 100
	defaultBoardSize = 10
)

// APIPolicy is the per-IP budget of the /api/ routes.
var APIPolicy = ratelimit.Policy{Limit: 10, Window: 60 * time.Second}

type ConfigSource interface {
	Get() *config.Snapshot
}

// Leaderboards ranks members on a weekly field.
type Leaderboards interface {
	Leaderboard(ctx context.Context, field string, n int) ([]economy.Standing, error)
}

// Challenges reads the current community challenge.
type Challenges interface {
	Get() (model.CommunityChallenge, error)
}

type Options struct {
	Port         int
	Config       ConfigSource
	Leaderboards Leaderboards
	Challenges   Challenges
	// Backend names the user store in /healthz.
	Backend string
	Metrics http.Handler
	Limiter *ratelimit.Limiter
	Logger  *zap.Logger
}

type Server struct {
	opts    Options
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	handler http.Handler
}

func NewServer(opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New()
	}
	limiter.SetPolicy(apiScope, APIPolicy)

	s := &Server{opts: opts, limiter: limiter, logger: opts.Logger.Named("web")}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/config/gamification", s.handleGamification)
	api.HandleFunc("GET /api/products", s.handleProducts)
	api.HandleFunc("GET /api/achievements", s.handleAchievements)
	api.HandleFunc("GET /api/credit-shop", s.handleCreditShop)
	api.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	api.HandleFunc("GET /api/challenge", s.handleChallenge)
	api.HandleFunc("GET /api/simulate", s.handleSimulate)
	api.HandleFunc("POST /api/simulate", s.handleSimulate)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	mux.Handle("/api/", s.rateLimit(api))

	s.handler = corsMiddleware(mux)
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", s.opts.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server started", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web shutdown: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ok, retry := s.limiter.Allow(apiScope, ip); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) snapshot(w http.ResponseWriter) (*config.Snapshot, bool) {
	snap := s.opts.Config.Get()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "configuration not loaded")
		return nil, false
	}
	return snap, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "ResellBoost Bot is alive and running!")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"backend": s.opts.Backend,
	}
	status := http.StatusOK
	if snap := s.opts.Config.Get(); snap != nil {
		body["config_loaded_at"] = snap.LoadedAt
	} else {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func (s *Server) handleGamification(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.snapshot(w); ok {
		writeJSON(w, http.StatusOK, snap.Config.Gamification)
	}
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.snapshot(w); ok {
		writeJSON(w, http.StatusOK, orEmpty(snap.Products))
	}
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.snapshot(w); ok {
		writeJSON(w, http.StatusOK, orEmpty(snap.Achievements))
	}
}

func (s *Server) handleCreditShop(w http.ResponseWriter, r *http.Request) {
	if snap, ok := s.snapshot(w); ok {
		writeJSON(w, http.StatusOK, orEmpty(snap.CreditShop))
	}
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	if s.opts.Challenges == nil {
		writeJSON(w, http.StatusOK, model.CommunityChallenge{})
		return
	}
	c, err := s.opts.Challenges.Get()
	if err != nil {
		s.logger.Error("challenge read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "challenge unavailable")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	field := economy.BoardXP
	switch t := r.URL.Query().Get("type"); t {
	case "", "xp":
	case "affiliate":
		field = economy.BoardAffiliate
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown leaderboard type %q", t))
		return
	}

	limit := defaultBoardSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLeaderboard)
	}

	rows, err := s.opts.Leaderboards.Leaderboard(r.Context(), field, limit)
	if err != nil {
		s.logger.Error("leaderboard failed", zap.String("field", field), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "leaderboard unavailable")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}

	in := economy.SimInput{Level: 1}
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	} else {
		q := r.URL.Query()
		var err error
		if in.Messages, err = intParam(q.Get("messages"), 0); err == nil {
			if in.VIPReferrals, err = intParam(q.Get("vip_referrals"), 0); err == nil {
				if in.Level, err = intParam(q.Get("level"), 1); err == nil {
					in.Sales, err = floatParam(q.Get("sales"))
				}
			}
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if in.Messages < 0 || in.VIPReferrals < 0 || in.Sales < 0 || math.IsNaN(in.Sales) || math.IsInf(in.Sales, 0) {
		writeError(w, http.StatusBadRequest, "values must be non-negative")
		return
	}
	if in.Level < 1 {
		in.Level = 1
	}

	writeJSON(w, http.StatusOK, economy.Simulate(&snap.Config, in))
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func floatParam(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return f, nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

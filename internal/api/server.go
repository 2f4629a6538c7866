// Package api provides the HTTP server for coinledger.
//
// Routes:
//
//	GET  /api/coins/balance          balance + first-charge availability
//	POST /api/coins/consume          spend coins
//	GET  /api/coins/transactions     ledger history, newest first
//	GET  /api/coins/plans            recharge catalog
//	POST /api/payment/create         create and sign an order
//	POST /api/payment/callback       platform payment notification
//	GET  /api/payment/status         order status
//	POST /api/payment/mock-success   settle without the platform (opt-in)
//	POST /api/user/login             login-code exchange + registration
//	POST /api/content-security/text  text moderation
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fableworks/coinledger/internal/app/ledger"
	"github.com/fableworks/coinledger/internal/app/orders"
	"github.com/fableworks/coinledger/internal/app/payment"
	"github.com/fableworks/coinledger/internal/domain"
	"github.com/fableworks/coinledger/internal/security"
)

// Server is the coinledger HTTP API server.
type Server struct {
	ledger     *ledger.Service
	orders     *orders.Manager
	reconciler *payment.Reconciler
	signer     domain.OrderSigner
	platform   domain.Platform    // nil disables login and moderation
	sessions   *security.Sessions // nil disables bearer auth
	health     func(ctx context.Context) error

	allowMock      bool
	metricsEnabled bool
	corsOrigins    []string
	log            *zap.Logger
}

// NewServer creates a new API server.
func NewServer(ls *ledger.Service, om *orders.Manager, rec *payment.Reconciler, signer domain.OrderSigner, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		ledger:     ls,
		orders:     om,
		reconciler: rec,
		signer:     signer,
		log:        log.Named("api"),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// AllowMockPayment enables unsigned mock orders and /api/payment/mock-success.
func (s *Server) AllowMockPayment() { s.allowMock = true }

// SetPlatform sets the platform client used for login and moderation.
func (s *Server) SetPlatform(p domain.Platform) { s.platform = p }

// SetSessions enables bearer-token auth on account routes.
func (s *Server) SetSessions(sess *security.Sessions) { s.sessions = sess }

// SetHealthCheck sets the dependency probe behind /health.
func (s *Server) SetHealthCheck(fn func(ctx context.Context) error) { s.health = fn }

// SetCORSOrigins restricts CORS to origins. Empty allows any origin.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)

	// Platform → service; authenticated by msg_signature, not by session.
	r.Post("/api/payment/callback", s.handlePaymentCallback)
	r.Post("/api/user/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Route("/api/coins", func(r chi.Router) {
			r.Get("/balance", s.handleBalance)
			r.Post("/consume", s.handleConsume)
			r.Get("/transactions", s.handleTransactions)
			r.Get("/plans", s.handlePlans)
		})

		r.Route("/api/payment", func(r chi.Router) {
			r.Post("/create", s.handleCreateOrder)
			r.Get("/status", s.handleOrderStatus)
			if s.allowMock {
				r.Post("/mock-success", s.handleMockSuccess)
			}
		})

		r.Post("/api/content-security/text", s.handleCheckText)
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.log.Error("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "UNHEALTHY", "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"payment_signing": s.signer.Ready(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with a machine-readable code.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": msg,
	})
}

const maxBodyBytes = 64 << 10

// decodeJSON reads a bounded JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return false
	}
	return true
}

// corsMiddleware adds CORS headers for the mini-app client.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.corsOrigins) > 0 {
			origin = ""
			if o := r.Header.Get("Origin"); slices.Contains(s.corsOrigins, o) {
				origin = o
				w.Header().Add("Vary", "Origin")
			}
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

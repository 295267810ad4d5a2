// Package http exposes the ledger command surface as a JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tally/internal/services"
	"tally/internal/storage"
)

type Server struct {
	http.Server
	repo        *storage.Repository
	ledger      *services.LedgerService
	registry    *services.Registry
	processor   *services.Processor
	reset       *services.ResetService
	rateLimiter *rateLimiter
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 120 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 120
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, repo *storage.Repository, ledger *services.LedgerService, registry *services.Registry, processor *services.Processor, reset *services.ResetService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		repo:        repo,
		ledger:      ledger,
		registry:    registry,
		processor:   processor,
		reset:       reset,
		rateLimiter: newRateLimiter(),
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("GET /accounts", s.wrap(s.handleListAccounts))
	mux.HandleFunc("POST /accounts", s.wrap(s.handleCreateAccount))
	mux.HandleFunc("DELETE /accounts/{id}", s.wrap(s.handleDeleteAccount))
	mux.HandleFunc("POST /accounts/reorder", s.wrap(s.handleReorderAccounts))

	mux.HandleFunc("GET /accounts/{id}/pots", s.wrap(s.handleListPots))
	mux.HandleFunc("POST /accounts/{id}/pots", s.wrap(s.handleCreatePot))
	mux.HandleFunc("PATCH /accounts/{id}/pots/{name}", s.wrap(s.handleUpdatePot))
	mux.HandleFunc("DELETE /accounts/{id}/pots/{name}", s.wrap(s.handleDeletePot))

	mux.HandleFunc("GET /accounts/{id}/incomes", s.wrap(s.handleListIncomes))
	mux.HandleFunc("POST /incomes", s.wrap(s.handleCreateIncome))
	mux.HandleFunc("PUT /incomes/{id}", s.wrap(s.handleUpdateIncome))
	mux.HandleFunc("DELETE /incomes/{id}", s.wrap(s.handleDeleteIncome))

	mux.HandleFunc("GET /transactions", s.wrap(s.handleListTransactions))
	mux.HandleFunc("POST /transactions", s.wrap(s.handleCreateTransaction))
	mux.HandleFunc("PUT /transactions/{id}", s.wrap(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.wrap(s.handleDeleteTransaction))

	mux.HandleFunc("GET /accounts/{id}/targets", s.wrap(s.handleListTargets))
	mux.HandleFunc("POST /targets", s.wrap(s.handleCreateTarget))
	mux.HandleFunc("PUT /targets/{id}", s.wrap(s.handleUpdateTarget))
	mux.HandleFunc("DELETE /targets/{id}", s.wrap(s.handleDeleteTarget))

	mux.HandleFunc("GET /schedules/income", s.wrap(s.handleListIncomeSchedules))
	mux.HandleFunc("POST /schedules/income", s.wrap(s.handleAddIncomeSchedule))
	mux.HandleFunc("POST /schedules/income/{id}/execute", s.wrap(s.handleExecuteIncomeSchedule))
	mux.HandleFunc("DELETE /schedules/income/{id}", s.wrap(s.handleDeleteIncomeSchedule))

	mux.HandleFunc("GET /schedules/transfer", s.wrap(s.handleListTransferSchedules))
	mux.HandleFunc("POST /schedules/transfer", s.wrap(s.handleAddTransferSchedule))
	mux.HandleFunc("GET /schedules/transfer/{id}/can-execute", s.wrap(s.handleCanExecute))
	mux.HandleFunc("POST /schedules/transfer/{id}/execute", s.wrap(s.handleExecuteTransferSchedule))
	mux.HandleFunc("POST /schedules/transfer/execute-group", s.wrap(s.handleExecuteGroup))
	mux.HandleFunc("DELETE /schedules/transfer/{id}", s.wrap(s.handleDeleteTransferSchedule))
	mux.HandleFunc("POST /schedules/{kind}/execute-all", s.wrap(s.handleExecuteAll))

	mux.HandleFunc("POST /sweep", s.wrap(s.handleSweep))
	mux.HandleFunc("POST /reset", s.wrap(s.handleReset))
	mux.HandleFunc("POST /reduction", s.wrap(s.handleReduction))
	mux.HandleFunc("GET /processed", s.wrap(s.handleListProcessed))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.stop()
	}
	return s.Server.Shutdown(ctx)
}

// wrap adds request logging, rate limiting and standard headers.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()

		slog.InfoContext(r.Context(), "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(r.Context(), "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(r.Context(), "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds())
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

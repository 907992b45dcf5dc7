package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	applog "prestiti/internal/log"
	"prestiti/internal/middleware/ratelimit"
	"prestiti/internal/middleware/security"
	"prestiti/internal/middleware/trace"
	"prestiti/internal/services"
)

// Server wraps http.Server with the loan API routes and middleware chain.
type Server struct {
	http.Server

	loans        *services.LoanService
	limiter      ratelimit.Allower
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

// limiterStopper is implemented by limiters that run background goroutines.
type limiterStopper interface {
	Stop()
}

// clientCounter is implemented by the in-process limiter; the redis limiter
// keeps its counters server-side and does not report them here.
type clientCounter interface {
	ActiveClients() int
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// A nil limiter disables rate limiting.
func NewServer(addr string, loans *services.LoanService, limiter ratelimit.Allower) *Server {
	s := &Server{
		loans:   loans,
		limiter: limiter,
		tracer:  trace.NewMiddleware(extractClientIP),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /users", s.handleCreateUser)
	mux.HandleFunc("GET /users", s.handleListUsers)
	mux.HandleFunc("GET /users/{id}/loans", s.handleListUserLoans)

	mux.HandleFunc("POST /loans", s.handleCreateLoan)
	mux.HandleFunc("GET /loans", s.handleListLoans)
	mux.HandleFunc("GET /loans/{id}", s.handleGetLoan)
	mux.HandleFunc("POST /loans/{id}/share", s.handleShareLoan)
	mux.HandleFunc("GET /loans/{id}/schedule", s.handleLoanSchedule)
	mux.HandleFunc("GET /loans/{id}/summary", s.handleLoanSummary)
	mux.HandleFunc("POST /loans/{id}/export", s.handleLoanExport)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	var handler http.Handler = mux
	if limiter != nil {
		handler = ratelimit.Middleware(limiter, extractClientIP)(handler)
	}
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = applog.Middleware(applog.New(applog.Config{Component: applog.ComponentHTTP}))(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.loans.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleMetrics reports request and rate limiter metrics in a
// Prometheus-like plain text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_last_response_time_ms Duration of the most recent request in milliseconds\n")
	fmt.Fprintf(w, "# TYPE http_last_response_time_ms gauge\n")
	fmt.Fprintf(w, "http_last_response_time_ms %d\n\n", traceMetrics.LastResponseTime)

	if counter, ok := s.limiter.(clientCounter); ok {
		fmt.Fprintf(w, "# HELP rate_limit_active_clients Clients tracked by the rate limiter\n")
		fmt.Fprintf(w, "# TYPE rate_limit_active_clients gauge\n")
		fmt.Fprintf(w, "rate_limit_active_clients %d\n", counter.ActiveClients())
	}
}

// Shutdown stops the rate limiter's background goroutine and shuts down the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if stopper, ok := s.limiter.(limiterStopper); ok {
			stopper.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

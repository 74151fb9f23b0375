// Package api is the supplemental HTTP adapter over the process engine
// façade (SPEC_FULL.md §4.8): REST handlers that decode an optional JWT
// bearer token, rate-limit the deploy endpoint per company, wrap each call in
// an OpenTelemetry span, and serve the façade's Prometheus metrics at
// GET /metrics. It never
// bypasses the façade's own transaction/authorization rules — every handler
// is a thin decode/call/encode wrapper. Grounded on the reference engine's
// internal/api/server.go ServeMux + middleware shape.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/procengine/internal/config"
	"github.com/user/procengine/internal/observability"
	"github.com/user/procengine/internal/service"
)

// Server is the HTTP API server fronting a *service.Engine.
type Server struct {
	eng     *service.Engine
	auth    config.AuthConfig
	limiter *companyRateLimiter
}

func NewServer(eng *service.Engine, auth config.AuthConfig, apiCfg config.APIConfig) *Server {
	return &Server{
		eng:     eng,
		auth:    auth,
		limiter: newCompanyRateLimiter(apiCfg.DeployRatePerSecond, apiCfg.DeployRateBurst),
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /deployments", s.withMiddleware("deployments", s.rateLimitDeploy(s.createDeployment)))
	mux.HandleFunc("POST /process-instances", s.withMiddleware("process-instances", s.startProcessInstance))
	mux.HandleFunc("POST /tasks/{id}/complete", s.withMiddleware("tasks.complete", s.completeTask))
	mux.HandleFunc("GET /tasks", s.withMiddleware("tasks.query", s.queryTasks))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// ListenAndServe runs the HTTP server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.routes()}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// withMiddleware wraps h with an OpenTelemetry span and a claims-decoded
// context, named after the façade operation it fronts.
func (s *Server) withMiddleware(op string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.Tracer.Start(r.Context(), "api."+op)
		defer span.End()

		claims, err := claimsFromRequest(r, s.auth.JWTSigningKey)
		if err != nil {
			writeError(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		ctx = withClaims(ctx, claims)
		h(w, r.WithContext(ctx))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

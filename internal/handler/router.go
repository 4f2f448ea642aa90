package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/notarydesk/authcore/internal/observability/metrics"
	"github.com/notarydesk/authcore/internal/observability/requestid"
	"github.com/notarydesk/authcore/internal/security"
	"github.com/notarydesk/authcore/internal/security/audit"
	"github.com/notarydesk/authcore/internal/security/middleware"
)

const maxBodyBytes = 1 << 20

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Auth               *AuthHandler
	Users              *UsersHandler
	Health             *HealthHandler
	Guard              *middleware.Guard
	LoginLimiter       middleware.Allower
	Audit              *audit.Logger
	CORSAllowedOrigins []string
	Logger             *slog.Logger
}

// NewRouter builds the HTTP surface. Public routes are simply not wrapped by
// the guard.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	anyIdentity := cfg.Guard.Require(security.AnyIdentity())
	admin := func(h http.HandlerFunc) http.Handler {
		return cfg.Guard.Require(security.AdminOnly)(middleware.AuditRequests(cfg.Audit)(h))
	}
	superAdmin := func(h http.HandlerFunc) http.Handler {
		return cfg.Guard.Require(security.SuperAdminOnly)(middleware.AuditRequests(cfg.Audit)(h))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", cfg.Health.Health)
	mux.HandleFunc("GET /readyz", cfg.Health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	login := http.Handler(http.HandlerFunc(cfg.Auth.Login))
	if cfg.LoginLimiter != nil {
		login = middleware.RateLimit(cfg.LoginLimiter, middleware.ClientIP, log)(login)
	}
	mux.Handle("POST /api/auth/login", login)
	mux.HandleFunc("POST /api/auth/register", cfg.Auth.Register)
	mux.Handle("GET /api/auth/me", anyIdentity(http.HandlerFunc(cfg.Auth.Me)))
	mux.Handle("POST /api/auth/change-password", anyIdentity(http.HandlerFunc(cfg.Auth.ChangePassword)))

	mux.Handle("GET /api/users/{id}", anyIdentity(http.HandlerFunc(cfg.Users.Get)))
	mux.Handle("GET /api/admin/users", admin(cfg.Users.List))
	mux.Handle("PATCH /api/admin/users/{id}", admin(cfg.Users.Update))
	mux.Handle("POST /api/admin/users/{id}/deactivate", superAdmin(cfg.Users.Deactivate))

	// Metrics reads r.Pattern, which the mux sets on the request it receives,
	// so it has to wrap the mux directly.
	var h http.Handler = metrics.HTTPMetricsMiddleware(mux)
	h = middleware.RequireJSON(log)(h)
	h = middleware.LimitBody(maxBodyBytes)(h)
	h = withCORS(cfg.CORSAllowedOrigins, h)
	h = withAccessLog(log, h)
	h = requestid.Middleware(h)
	return otelhttp.NewHandler(h, "authcore")
}

// withCORS echoes the request origin when it is configured. Other origins
// get no Access-Control-Allow-Origin header at all.
func withCORS(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

type loggingWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withAccessLog logs one line per request. Headers and bodies are never
// logged.
func withAccessLog(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lw, r)

		log.Info("request completed",
			slog.String("request_id", requestid.FromContext(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", lw.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

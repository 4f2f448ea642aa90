package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/notarydesk/authcore/internal/observability/metrics"
	"github.com/notarydesk/authcore/internal/security"
	"github.com/notarydesk/authcore/internal/security/audit"
	"github.com/notarydesk/authcore/internal/security/auth"
)

type claimsContextKey struct{}

// WithClaims returns a copy of ctx carrying verified claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the claims attached by Guard.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return c, ok && c != nil
}

// Guard authenticates bearer tokens and enforces route policies.
type Guard struct {
	tokens *auth.TokenManager
	audit  *audit.Logger
	logger *slog.Logger
}

func NewGuard(tokens *auth.TokenManager, auditLog *audit.Logger, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{tokens: tokens, audit: auditLog, logger: logger}
}

// Require wraps a handler with token verification and the role check of
// policy. Every authentication failure gets the same 401 body; only the log
// line and the metric carry the reason.
func (g *Guard) Require(policy security.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				g.unauthorized(w, r, "missing_token")
				return
			}

			tokenString, err := auth.ExtractToken(header)
			if err != nil {
				g.unauthorized(w, r, "malformed_header")
				return
			}

			claims, err := g.tokens.Verify(tokenString)
			if err != nil {
				reason := "malformed"
				var te *auth.TokenError
				if errors.As(err, &te) {
					reason = te.Kind.String()
				}
				g.unauthorized(w, r, reason)
				return
			}

			if !policy.Allows(claims.Role) {
				metrics.ObserveAuthDecision("forbidden", "role")
				g.logger.Info("role not permitted",
					slog.String("path", r.URL.Path),
					slog.Int64("user_id", claims.UserID),
					slog.String("role", string(claims.Role)),
					slog.String("policy", policy.String()),
				)
				g.audit.LogDenied(r.Context(), claims.UserID, "role "+string(claims.Role)+" not in "+policy.String())
				WriteError(w, http.StatusForbidden, "forbidden")
				return
			}

			metrics.ObserveAuthDecision("allowed", "ok")
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func (g *Guard) unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	metrics.ObserveAuthDecision("unauthorized", reason)
	g.logger.Debug("request not authenticated",
		slog.String("path", r.URL.Path),
		slog.String("reason", reason),
	)
	WriteError(w, http.StatusUnauthorized, "unauthorized")
}

// Allower decides whether one more request under key may proceed.
type Allower interface {
	Allow(ctx context.Context, key string) bool
}

// KeyFunc derives the rate limit key of a request.
type KeyFunc func(r *http.Request) string

// RateLimit answers 429 once limiter rejects the request key.
func RateLimit(limiter Allower, keyFn KeyFunc, log *slog.Logger) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ClientIP
	}
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if !limiter.Allow(r.Context(), key) {
				log.Warn("rate limit exceeded",
					slog.String("path", r.URL.Path),
					slog.String("key", key),
				)
				w.Header().Set("Retry-After", "60")
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of the peer address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AuditRequests records every mutating request that reaches next. It must
// sit inside Guard so the actor is known.
func AuditRequests(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				var actor int64
				if c, ok := ClaimsFromContext(r.Context()); ok {
					actor = c.UserID
				}
				auditLog.LogAction(r.Context(), actor, audit.ActionAdminRequest, "api", r.URL.Path, "initiated", r.Method)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes the {"error": msg} body used by every endpoint.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/finsight/identity-service/internal/domain"
	"github.com/finsight/identity-service/internal/observability"
	"github.com/finsight/identity-service/internal/repository"
	"github.com/finsight/identity-service/internal/security"
	"github.com/finsight/identity-service/internal/service"
)

type contextKey string

const identityContextKey contextKey = "identity"

// AuthGateConfig drives the global authentication gate.
type AuthGateConfig struct {
	// RoutePrefix is stripped before allowlist matching, so deployments
	// mounted under a prefix keep the same public-path config.
	RoutePrefix string
	// PublicPaths match the normalized path exactly, or as a segment prefix
	// ("/health" covers "/health/live").
	PublicPaths []string
	CookieName  string
}

// AuthGate resolves the caller's identity from a bearer token or the session
// cookie and attaches it to the request context. The gate itself never rejects
// a request: public paths pass untouched, and a missing or invalid token on a
// protected path simply leaves the context anonymous for the route policy to
// judge. That keeps authentication concerns here and authorization decisions
// in RequireAuthenticated and RequireRole.
func AuthGate(cfg AuthGateConfig, users repository.UserRepository, tokens *service.TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// CORS preflights carry no credentials.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if isPublicPath(normalizePath(r.URL.Path, cfg.RoutePrefix), cfg.PublicPaths) {
				next.ServeHTTP(w, r)
				return
			}

			raw, source := extractToken(r, cfg.CookieName)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			subject := tokens.ExtractSubject(raw)
			if subject == "" {
				logger.WarnContext(r.Context(), "token subject extraction failed", "path", r.URL.Path)
				observability.RecordTokenValidation(r.Context(), "malformed", source)
				next.ServeHTTP(w, r)
				return
			}
			user, err := users.FindByEmail(subject)
			if err != nil {
				logger.WarnContext(r.Context(), "token subject unknown", "path", r.URL.Path)
				observability.RecordTokenValidation(r.Context(), "unknown_subject", source)
				next.ServeHTTP(w, r)
				return
			}
			if !tokens.Validate(raw, user) {
				logger.WarnContext(r.Context(), "token validation failed", "path", r.URL.Path)
				observability.RecordTokenValidation(r.Context(), "invalid", source)
				next.ServeHTTP(w, r)
				return
			}
			observability.RecordTokenValidation(r.Context(), "ok", source)

			ctx := context.WithValue(r.Context(), identityContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithIdentity attaches an already-resolved identity. Exposed for
// handler tests that bypass the gate.
func ContextWithIdentity(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, identityContextKey, user)
}

// IdentityFromContext returns the authenticated identity, if the gate
// resolved one.
func IdentityFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(identityContextKey).(*domain.User)
	return u, ok
}

// extractToken prefers the Authorization header; the session cookie is the
// browser fallback. The source label feeds the validation metric.
func extractToken(r *http.Request, cookieName string) (string, string) {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:]), "header"
	}
	return security.GetCookie(r, cookieName), "cookie"
}

func isPublicPath(path string, public []string) bool {
	for _, p := range public {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func normalizePath(path, prefix string) string {
	if prefix != "" {
		path = strings.TrimPrefix(path, prefix)
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

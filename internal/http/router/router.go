package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/finsight/identity-service/internal/domain"
	"github.com/finsight/identity-service/internal/health"
	"github.com/finsight/identity-service/internal/http/handler"
	"github.com/finsight/identity-service/internal/http/middleware"
	"github.com/finsight/identity-service/internal/http/response"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	UserHandler       *handler.UserHandler
	AuthGate          AuthGateFunc
	CORSOrigins       []string
	AuthRateLimitRPM  int
	APIRateLimitRPM   int
	GlobalRateLimiter GlobalRateLimiterFunc
	AuthRateLimiter   AuthRateLimiterFunc
	Readiness         *health.ProbeRunner
	RoutePrefix       string
	EnableOTelHTTP    bool
}

type AuthGateFunc func(http.Handler) http.Handler
type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())
	}
	// The gate resolves identity for every request and never rejects; route
	// policy below decides what requires one.
	if dep.AuthGate != nil {
		r.Use(func(next http.Handler) http.Handler { return dep.AuthGate(next) })
	}

	authLimiter := func(next http.Handler) http.Handler { return next }
	if dep.AuthRateLimiter != nil {
		authLimiter = dep.AuthRateLimiter
	} else if dep.AuthRateLimitRPM > 0 {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	prefix := dep.RoutePrefix
	if prefix == "" {
		prefix = "/"
	}
	r.Route(prefix, func(r chi.Router) {
		r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
		r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
		r.With(authLimiter).Post("/send-otp", dep.AuthHandler.SendVerifyOTP)
		r.With(authLimiter).Post("/verify-otp", dep.AuthHandler.VerifyOTP)
		r.With(authLimiter).Post("/send-reset-otp", dep.AuthHandler.SendResetOTP)
		r.With(authLimiter).Post("/reset-password", dep.AuthHandler.ResetPassword)
		r.Post("/logout", dep.AuthHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuthenticated)
			r.Get("/me", dep.UserHandler.Me)
			r.Patch("/me", dep.UserHandler.UpdateMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuthenticated)
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Get("/users/{id}", dep.UserHandler.GetUser)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

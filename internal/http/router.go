package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/redmonkez12/payflow-auth/internal/apperror"
	"github.com/redmonkez12/payflow-auth/internal/auth"
	"github.com/redmonkez12/payflow-auth/internal/config"
	"github.com/redmonkez12/payflow-auth/internal/httputil"
	"github.com/redmonkez12/payflow-auth/internal/logging"
	"github.com/redmonkez12/payflow-auth/internal/metrics"
)

// RouterDeps carries everything NewRouter mounts
type RouterDeps struct {
	Config         *config.Config
	AuthHandler    *auth.Handler
	AuthMiddleware *auth.Middleware
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures the HTTP router
func NewRouter(deps RouterDeps) *chi.Mux {
	cfg := deps.Config
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	r.Use(SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(deps.Logger))
	r.Use(deps.Metrics.Middleware)
	// Recoverer sits inside the logger so a recovered panic is logged as a 500
	// with the request id.
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Swagger UI - only in development
	if cfg.Server.IsDevelopment() {
		deps.Logger.Info("swagger ui enabled", "path", "/swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	r.Route(cfg.Server.APIPrefix, func(r chi.Router) {
		r.Post("/signup", deps.AuthHandler.Signup)
		r.Post("/login", deps.AuthHandler.Login)
		r.Post("/verify-otp", deps.AuthHandler.VerifyOTP)
		r.Get("/me", deps.AuthHandler.Me)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/change-password", deps.AuthHandler.ChangePassword)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondErrorWithCode(w, r, "Route not found", apperror.CodeRouteNotFound, http.StatusNotFound)
	})

	return r
}

// handleHealth is a liveness probe. It does not touch the database.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, r, map[string]string{"status": "ok"}, http.StatusOK)
}

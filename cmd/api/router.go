package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modelstation/modelstation/internal/config"
	"github.com/modelstation/modelstation/internal/handler"
	"github.com/modelstation/modelstation/internal/metrics"
	"github.com/modelstation/modelstation/internal/middleware"
)

type routerDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder metrics.Recorder
	// gatherer backs /metrics; nil leaves the route unmounted.
	gatherer  prometheus.Gatherer
	validator middleware.SessionValidator
	limiter   middleware.Limiter

	health *handler.HealthHandler
	auth   *handler.AuthHandler
	models *handler.ModelHandler
	proxy  *handler.ProxyHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	cfg := d.cfg
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger))
	if cfg.TracingEnabled {
		r.Use(middleware.Tracing(nil))
	}
	r.Use(middleware.HTTPMetrics(d.recorder))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)
	if d.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}

	requireSession := middleware.Auth(middleware.AuthConfig{
		Logger:    d.logger,
		Validator: d.validator,
	})

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:       d.logger,
		Limiter:      d.limiter,
		AuthEnabled:  cfg.RateLimitAuthEnabled,
		AuthRPS:      cfg.RateLimitAuthRPS,
		AuthBurst:    cfg.RateLimitAuthBurst,
		APIEnabled:   cfg.RateLimitAPIEnabled,
		APIPerMinute: cfg.RateLimitAPIPerMinute,
		APIBurst:     cfg.RateLimitAPIBurst,
	}
	authLimit := middleware.RateLimitAuth(rateLimitCfg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimit).Post("/register", d.auth.Register)
			r.With(authLimit).Post("/login", d.auth.Login)
			r.Post("/logout", d.auth.Logout)
			r.With(requireSession).Get("/me", d.auth.Me)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Use(middleware.RateLimitUser(rateLimitCfg))

			r.Route("/models", func(r chi.Router) {
				r.Get("/", d.models.List)
				r.Post("/", d.models.Create)
				r.Get("/{id}", d.models.Get)
				r.Patch("/{id}", d.models.Update)
				r.Delete("/{id}", d.models.Delete)
			})

			r.Route("/pods", func(r chi.Router) {
				r.Post("/", d.proxy.CreatePod)
				r.Get("/", d.proxy.ListPods)
				r.Get("/{podID}", d.proxy.GetPod)
				r.Delete("/{podID}", d.proxy.TerminatePod)
				r.Post("/{podID}/stop", d.proxy.StopPod)
				r.Post("/{podID}/resume", d.proxy.ResumePod)
			})

			r.Post("/pipeline/process", d.proxy.ProcessPipeline)
		})
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

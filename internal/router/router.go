package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stockledger-api/internal/handler"
	"stockledger-api/internal/metrics"
	"stockledger-api/internal/middleware"
)

// Config holds the configuration for creating a router.
type Config struct {
	Log         *zap.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer // serves /metrics when set
	CORSOrigins []string

	Handler            *handler.Handler
	AuthHandler        *handler.AuthHandler
	AdminHandler       *handler.AdminHandler
	LogHandler         *handler.NotificationLogHandler
	WarehouseHandler   *handler.WarehouseHandler
	ItemHandler        *handler.ItemHandler
	UserHandler        *handler.UserHandler
	TransactionHandler *handler.TransactionHandler
	AuditHandler       *handler.AuditHandler
	ReportHandler      *handler.ReportHandler
	EventHandler       *handler.EventHandler
	AuthMiddleware     func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log, cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Token", "X-Login-Key"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Row-Count", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
		r.Get("/api/v1/health", cfg.Handler.Health)
		r.Get("/api/v1/ready", cfg.Handler.Ready)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.AuthHandler != nil {
		r.Post("/api/v1/auth/token", cfg.AuthHandler.GenerateToken)
	}

	// AUTHENTICATED routes
	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.Post("/revoke", cfg.AuthHandler.RevokeToken)
					r.Post("/refresh", cfg.AuthHandler.RefreshToken)
					r.Get("/me", cfg.AuthHandler.Me)
				})
			}

			if h := cfg.WarehouseHandler; h != nil {
				r.Route("/warehouses", func(r chi.Router) {
					r.Get("/", h.List)
					r.Post("/", h.Create)
					r.Get("/{id}", h.Get)
					r.Put("/{id}", h.Update)
					r.Delete("/{id}", h.Delete)
				})
				r.Route("/categories", func(r chi.Router) {
					r.Get("/", h.ListCategories)
					r.Post("/", h.CreateCategory)
				})
			}

			if h := cfg.ItemHandler; h != nil {
				r.Route("/items", func(r chi.Router) {
					r.Get("/", h.List)
					r.Post("/", h.Create)
					r.Get("/{id}", h.Get)
					r.Put("/{id}", h.Update)
					r.Delete("/{id}", h.Delete)
				})
			}

			if h := cfg.UserHandler; h != nil {
				r.Route("/users", func(r chi.Router) {
					r.Get("/", h.List)
					r.Post("/", h.Create)
					r.Get("/{id}", h.Get)
				})
			}

			if h := cfg.TransactionHandler; h != nil {
				r.Route("/transactions", func(r chi.Router) {
					r.Get("/", h.List)
					r.Post("/issue", h.Issue())
					r.Post("/return", h.Return())
					r.Post("/exchange", h.Exchange())
					r.Post("/adjust", h.Adjust())
					r.Post("/transfer", h.Transfer())
				})
			}

			if h := cfg.AuditHandler; h != nil {
				r.Route("/audits", func(r chi.Router) {
					r.Get("/", h.List)
					r.Post("/", h.Create)
					r.Get("/{id}", h.Get)
					r.Post("/{id}/start", h.Start)
					r.Post("/{id}/complete", h.Complete)
					r.Post("/{id}/cancel", h.Cancel)
					r.Get("/{id}/details", h.Details)
					r.Post("/{id}/details", h.AddDetail)
				})
			}

			if h := cfg.ReportHandler; h != nil {
				r.Route("/reports", func(r chi.Router) {
					r.Get("/warehouses", h.WarehouseTotals)
					r.Get("/categories", h.Categories)
					r.Get("/low-stock", h.LowStock)
					r.Get("/discrepancies", h.Discrepancies)
					r.Get("/drift", h.Drift)
					r.Get("/transactions.xlsx", h.ExportTransactions)
				})
			}

			if cfg.EventHandler != nil {
				r.Get("/events", cfg.EventHandler.Stream)
			}

			r.Route("/admin", func(r chi.Router) {
				if h := cfg.AdminHandler; h != nil {
					r.Get("/stats", h.GetStats)
					r.Post("/drift/scan", h.ScanDrift)
				}
				if cfg.LogHandler != nil {
					r.Get("/notifications", cfg.LogHandler.List)
				}
			})
		})
	})

	return r
}

package app

import (
	"database/sql"
	"net/http"
	"time"

	"quizhub/internal/app/observability"
	"quizhub/internal/attempt"
	"quizhub/internal/auth"
	"quizhub/internal/catalog"
	"quizhub/internal/logger"
	"quizhub/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.Nop()
	}

	metrics := observability.NewCollector(db, log)
	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	authSvc := auth.NewService(db, auth.ServiceConfig{
		SessionTTL:     cfg.SessionTTL(),
		BootstrapToken: cfg.BootstrapToken,
		Logger:         log,
	})
	authHandler := auth.NewHandler(authSvc)

	catalogHandler := catalog.NewHandler(catalog.NewService(db, log))
	attemptHandler := attempt.NewHandler(attempt.NewService(db, log))
	reportHandler := report.NewHandler(report.NewService(db, log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", metrics.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Group(func(public chi.Router) {
			public.Use(RateLimitMiddleware(authLimiter))
			public.Post("/bootstrap/init", authHandler.BootstrapInit)
			public.Post("/auth/register", authHandler.Register)
			public.Post("/auth/login", authHandler.Login)
		})

		api.Group(func(browse chi.Router) {
			browse.Use(authHandler.OptionalAuth)
			browse.Get("/quizzes", catalogHandler.ListQuizzes)
			browse.Get("/quizzes/{id}", catalogHandler.GetQuiz)
		})

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)

			secure.Post("/quizzes/{id}/submit", attemptHandler.Submit)
			secure.Get("/results", attemptHandler.MyResults)
			secure.Get("/results/{id}", attemptHandler.Result)
			secure.Get("/results/{id}/answers", attemptHandler.Answers)

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles(auth.RoleStaff))
				admin.Get("/admin/categories", catalogHandler.ListCategories)
				admin.Post("/admin/categories", catalogHandler.CreateCategory)
				admin.Delete("/admin/categories/{id}", catalogHandler.DeleteCategory)
				admin.Post("/admin/quizzes", catalogHandler.CreateQuiz)
				admin.Delete("/admin/quizzes/{id}", catalogHandler.DeleteQuiz)
				admin.Post("/admin/quizzes/{id}/questions", catalogHandler.CreateQuestion)
				admin.Delete("/admin/questions/{id}", catalogHandler.DeleteQuestion)
				admin.Put("/admin/choices/{id}/correct", catalogHandler.SetChoiceCorrect)
				admin.Get("/admin/quizzes/{id}/summary", reportHandler.Summary)
				admin.Get("/admin/quizzes/{id}/results.xlsx", reportHandler.ExportResults)
			})
		})
	})

	return r
}

package app

import (
	"net/http"
	"time"

	"examprep/internal/app/apiresp"
	"examprep/internal/app/observability"
	"examprep/internal/attempt"
	"examprep/internal/exam"
	"examprep/internal/question"
	"examprep/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func NewRouter(cfg Config, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	obs := observability.NewCollector(observability.CollectorConfig{
		Logger:        logger.Named("http"),
		SessionCookie: attempt.SessionCookieName,
	})

	questionSvc := question.NewService(question.ServiceConfig{
		Root:   cfg.ExamRoot,
		Logger: logger.Named("question"),
		OnLoad: obs.ObserveExamLoad,
	})
	questionHandler := question.NewHandler(questionSvc)

	manager := attempt.NewManager(attempt.ManagerConfig{
		Engine:      exam.NewEngine(questionSvc, time.Now),
		IdleTimeout: cfg.SessionIdleTimeout,
		Logger:      logger.Named("session"),
		OnExpire:    obs.ObserveExpiry,
	})
	obs.RegisterSessionGauge(manager.Len)

	attemptSvc := attempt.NewService(manager, attempt.ServiceConfig{
		Logger:   logger.Named("attempt"),
		OnAnswer: obs.ObserveAnswer,
	})
	attemptHandler := attempt.NewHandler(attemptSvc)
	reportHandler := report.NewHandler(attemptSvc)

	limiter := NewIPRateLimiter(cfg.RateLimitPerMin, time.Minute)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", csrfHeaderName},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Handle("/metrics", obs.MetricsHandler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(RateLimitMiddleware(limiter))
		api.Use(CSRFCookieMiddleware)
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Get("/exams", questionHandler.ListExams)
		api.Get("/exams/{examID}/report", questionHandler.Report)

		api.Group(func(session chi.Router) {
			session.Use(attemptHandler.Session)
			session.Get("/session", attemptHandler.Current)
			session.Post("/session/exam", attemptHandler.SelectExam)
			session.Post("/session/jump/{questionNo}", attemptHandler.JumpTo)
			session.Post("/session/next", attemptHandler.Next)
			session.Post("/session/previous", attemptHandler.Previous)
			session.Post("/session/answer", attemptHandler.Submit)
			session.Post("/session/finish", attemptHandler.Finish)
			session.Post("/session/reset", attemptHandler.Reset)
			session.Get("/session/result", attemptHandler.Result)
			session.Get("/session/result/export", reportHandler.ExportResult)
			session.Get("/session/review", attemptHandler.Review)
			session.Get("/session/questions/{questionNo}/image", attemptHandler.Image)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

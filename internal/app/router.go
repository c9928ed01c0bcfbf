package app

import (
	"database/sql"
	"net/http"
	"time"

	"examportal/internal/app/observability"
	"examportal/internal/auth"
	"examportal/internal/exam"
	"examportal/internal/question"
	"examportal/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	authSvc := auth.NewService(db, auth.ServiceConfig{
		SessionTTL: time.Duration(cfg.SessionTTLHours) * time.Hour,
	})
	authHandler := auth.NewHandler(authSvc)

	examSvc := exam.NewService(db, cfg.DefaultExamMinutes)
	examHandler := exam.NewHandler(examSvc)

	questionSvc := question.NewService(db)
	questionHandler := question.NewHandler(questionSvc)

	reportSvc := report.NewService(db)
	reportHandler := report.NewHandler(reportSvc)

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(RateLimitMiddleware(authLimiter))
			public.Post("/auth/register", authHandler.Register)
			public.Post("/auth/login", authHandler.Login)
		})

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)

			secure.Post("/submissions/start", examHandler.StartSubmission)
			secure.Get("/submissions/{id}/step", examHandler.GetStep)
			secure.Put("/submissions/{id}/answers/{questionID}", examHandler.SubmitAnswer)
			secure.Post("/submissions/{id}/next", examHandler.Advance)
			secure.Post("/submissions/{id}/finish", examHandler.Finish)
			secure.Get("/submissions/{id}/result", examHandler.Result)
			secure.Post("/submissions/{id}/geolocation", examHandler.SaveGeolocation)

			secure.Group(func(teacher chi.Router) {
				teacher.Use(authHandler.RequireRoles(auth.RoleTeacher))

				teacher.Get("/exams", examHandler.ListExams)
				teacher.Post("/exams", examHandler.CreateExam)
				teacher.Get("/exams/{id}", examHandler.GetExam)
				teacher.Put("/exams/{id}", examHandler.UpdateExam)
				teacher.Delete("/exams/{id}", examHandler.DeleteExam)
				teacher.Post("/exams/{id}/publish", examHandler.PublishExam)
				teacher.Get("/exams/{id}/questions", examHandler.ListExamQuestions)
				teacher.Put("/exams/{id}/questions", examHandler.ReplaceExamQuestions)
				teacher.Get("/exams/{id}/report", reportHandler.ExamReport)
				teacher.Get("/exams/{id}/report.xlsx", reportHandler.ExamReportXLSX)

				teacher.Get("/questions", questionHandler.List)
				teacher.Post("/questions", questionHandler.Create)
				teacher.Get("/questions/{id}", questionHandler.Get)
				teacher.Put("/questions/{id}", questionHandler.Update)
				teacher.Delete("/questions/{id}", questionHandler.Delete)
			})
		})
	})

	return r
}

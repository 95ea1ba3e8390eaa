package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sswtrack/sswtrack/internal/ratelimit"
	"github.com/sswtrack/sswtrack/internal/roster"
	"github.com/sswtrack/sswtrack/internal/rules"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type AppDeps struct {
	Roster *roster.Service
	Auth   Authenticator
	Rules  *rules.Table
	// FeedbackLimiter throttles POST /feedback per client IP. Nil disables
	// the limit.
	FeedbackLimiter ratelimit.Limiter
	DB              Pinger // optional; /health skips the database check when nil
	Logger          *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Rules == nil {
		deps.Rules = rules.Default()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(deps))
	r.Get("/invites/{id}", handleVerifyInvite(deps))
	r.Post("/invites/{id}/activate", handleActivateInvite(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Auth))

		r.Get("/rules/{sector}", handleRules(deps))

		r.Get("/facilities", handleListFacilities(deps))
		r.Post("/facilities", handleCreateFacility(deps))

		r.Get("/staff", handleListStaff(deps))
		r.Post("/staff", handleCreateStaff(deps))
		r.Route("/staff/{id}", func(r chi.Router) {
			r.Get("/", handleGetStaff(deps))
			r.Patch("/", handleUpdateStaff(deps))
			r.Post("/status", handleChangeStatus(deps))
			r.Put("/residence", handleUpdateResidence(deps))
			r.Get("/residence/history", handleResidenceHistory(deps))
			r.Get("/checklist", handleGetChecklist(deps))
			r.Post("/checklist/{phase}/preview", handlePreviewChecklist(deps))
			r.Put("/checklist/{phase}", handleSaveChecklist(deps))
			r.Get("/interviews", handleListInterviews(deps))
			r.Post("/interviews", handleAddInterview(deps))
			r.Get("/qualifications", handleListQualifications(deps))
			r.Put("/qualifications/{qid}", handleSetQualification(deps))
		})

		r.Get("/tasks", handleTasks(deps))
		r.Get("/dashboard", handleDashboard(deps))
		r.Get("/activity", handleActivity(deps))
		r.Post("/feedback", handleFeedback(deps))
		r.Post("/invites", handleInvite(deps))
		r.Post("/reminders/digest", handleQueueDigest(deps))
		r.Get("/export/roster.xlsx", handleExport(deps))
	})

	return r
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.DB.Ping(ctx); err != nil {
				deps.Logger.Warn("health check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func handleRules(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sector, ok := deps.Rules.ParseSector(chi.URLParam(r, "sector"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown sector %q", chi.URLParam(r, "sector"))
			return
		}
		sr, _ := deps.Rules.Sector(sector)
		writeJSON(w, http.StatusOK, sr)
	}
}

package api

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sswtrack/sswtrack/internal/compliance"
	"github.com/sswtrack/sswtrack/internal/roster"
	"github.com/sswtrack/sswtrack/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func handleTasks(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := deps.Roster.Tasks()
		if err != nil {
			serviceError(w, err)
			return
		}
		if tasks == nil {
			tasks = []compliance.Task{}
		}
		writeJSON(w, http.StatusOK, tasks)
	}
}

func handleDashboard(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := deps.Roster.Dashboard()
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleActivity(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		offset := parseIntParam(r, "offset", 0, 0)

		log, err := deps.Roster.Activity(limit, offset)
		if err != nil {
			serviceError(w, err)
			return
		}
		if log == nil {
			log = []storage.Activity{}
		}
		writeJSON(w, http.StatusOK, log)
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func handleFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.FeedbackLimiter != nil {
			ok, err := deps.FeedbackLimiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				// Fail open.
				deps.Logger.Warn("rate limiter unavailable", "error", err)
			} else if !ok {
				w.Header().Set("Retry-After", "60")
				httpError(w, http.StatusTooManyRequests, "rate_limit_error", "too many requests, try again later")
				return
			}
		}

		var req roster.NewFeedback
		if !decodeBody(w, r, &req) {
			return
		}
		f, err := deps.Roster.Feedback(identity(r), req)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": f.ID, "status": "received"})
	}
}

func handleInvite(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roster.NewInvite
		if !decodeBody(w, r, &req) {
			return
		}
		u, err := deps.Roster.Invite(identity(r), req)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

type inviteView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func handleVerifyInvite(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := deps.Roster.VerifyInvite(chi.URLParam(r, "id"))
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "invitation not found")
			return
		case errors.Is(err, roster.ErrAlreadyActive):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": map[string]any{
					"message": "このアカウントは既に有効化されています",
					"type":    "invalid_request_error",
				},
				"already_active": true,
			})
			return
		case err != nil:
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inviteView{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role})
	}
}

func handleActivateInvite(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := deps.Auth.Subject(bearerToken(r))
		if err != nil {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
			return
		}
		u, err := deps.Roster.AcceptInvite(chi.URLParam(r, "id"), sub)
		if errors.Is(err, roster.ErrAlreadyActive) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func handleQueueDigest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := deps.Roster.QueueDigest(identity(r))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
	}
}

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := deps.Roster.Export(&buf); err != nil {
			serviceError(w, err)
			return
		}
		name := fmt.Sprintf("roster-%s.xlsx", time.Now().Format("20060102"))
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		w.Write(buf.Bytes())
	}
}

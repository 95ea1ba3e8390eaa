package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sswtrack/sswtrack/internal/roster"
	"github.com/sswtrack/sswtrack/internal/storage"
)

type staffRequest struct {
	FacilityID  string `json:"facility_id"`
	Name        string `json:"name"`
	NameKana    string `json:"name_kana"`
	Nationality string `json:"nationality"`
	Sector      string `json:"sector"`
	EntryDate   string `json:"entry_date"`
	Memo        string `json:"memo"`
}

type staffPatchRequest struct {
	FacilityID  *string `json:"facility_id"`
	Name        *string `json:"name"`
	NameKana    *string `json:"name_kana"`
	Nationality *string `json:"nationality"`
	Sector      *string `json:"sector"`
	EntryDate   *string `json:"entry_date"`
	Memo        *string `json:"memo"`
}

func handleListFacilities(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		facilities, err := deps.Roster.Facilities()
		if err != nil {
			serviceError(w, err)
			return
		}
		if facilities == nil {
			facilities = []storage.Facility{}
		}
		writeJSON(w, http.StatusOK, facilities)
	}
}

func handleCreateFacility(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		f, err := deps.Roster.CreateFacility(identity(r), req.Name)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, f)
	}
}

func handleListStaff(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		archived, _ := strconv.ParseBool(r.URL.Query().Get("archived"))
		list, err := deps.Roster.Roster(archived)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleCreateStaff(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req staffRequest
		if !decodeBody(w, r, &req) {
			return
		}
		entry, err := parseDate("entry_date", req.EntryDate)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		st, err := deps.Roster.CreateStaff(identity(r), roster.NewStaff{
			FacilityID:  req.FacilityID,
			Name:        req.Name,
			NameKana:    req.NameKana,
			Nationality: req.Nationality,
			Sector:      req.Sector,
			EntryDate:   entry,
			Memo:        req.Memo,
		})
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}

func handleGetStaff(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Roster.Status(chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleUpdateStaff(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req staffPatchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p := roster.StaffPatch{
			FacilityID:  req.FacilityID,
			Name:        req.Name,
			NameKana:    req.NameKana,
			Nationality: req.Nationality,
			Sector:      req.Sector,
			Memo:        req.Memo,
		}
		if req.EntryDate != nil {
			entry, err := parseDate("entry_date", *req.EntryDate)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			p.EntryDate = &entry
		}
		st, err := deps.Roster.UpdateStaff(identity(r), chi.URLParam(r, "id"), p)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleChangeStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status string `json:"status"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		st, err := deps.Roster.ChangeStatus(identity(r), chi.URLParam(r, "id"), req.Status)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleUpdateResidence(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ResidenceExpiry string `json:"residence_expiry"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		expiry, err := parseDate("residence_expiry", req.ResidenceExpiry)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		ch, err := deps.Roster.UpdateResidence(identity(r), chi.URLParam(r, "id"), expiry)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ch)
	}
}

func handleResidenceHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := deps.Roster.ResidenceHistory(chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		if history == nil {
			history = []storage.ResidenceChange{}
		}
		writeJSON(w, http.StatusOK, history)
	}
}

type checklistRequest struct {
	Items map[string]bool `json:"items"`
}

func handleGetChecklist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phases, err := deps.Roster.Checklist(chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, phases)
	}
}

func handlePreviewChecklist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checklistRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := deps.Roster.PreviewChecklist(chi.URLParam(r, "id"), chi.URLParam(r, "phase"), req.Items)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleSaveChecklist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checklistRequest
		if !decodeBody(w, r, &req) {
			return
		}
		view, err := deps.Roster.SaveChecklist(identity(r), chi.URLParam(r, "id"), chi.URLParam(r, "phase"), req.Items)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleListInterviews(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Roster.Interviews(chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		if list == nil {
			list = []storage.Interview{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleAddInterview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Date                string `json:"date"`
			Content             string `json:"content"`
			NextActions         string `json:"next_actions"`
			Type                string `json:"type"`
			SupervisorInterview bool   `json:"supervisor_interview"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		date, err := parseDate("date", req.Date)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		iv, err := deps.Roster.AddInterview(identity(r), chi.URLParam(r, "id"), roster.NewInterview{
			Date:                date,
			Content:             req.Content,
			NextActions:         req.NextActions,
			Type:                req.Type,
			SupervisorInterview: req.SupervisorInterview,
		})
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, iv)
	}
}

func handleListQualifications(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Roster.Qualifications(chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err)
			return
		}
		if list == nil {
			list = []roster.QualificationView{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleSetQualification(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Acquired bool   `json:"acquired"`
			Date     string `json:"date"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		date, err := parseDate("date", req.Date)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		st, err := deps.Roster.SetQualification(identity(r), chi.URLParam(r, "id"), chi.URLParam(r, "qid"), req.Acquired, date)
		if err != nil {
			serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

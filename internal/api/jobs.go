package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/applytrack/internal/jobs"
	"github.com/kalambet/applytrack/internal/resume"
	"github.com/kalambet/applytrack/internal/storage"
	"github.com/kalambet/applytrack/internal/tracker"
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := storage.JobFilter{
			Type:  q.Get("type"),
			Query: q.Get("q"),
			Limit: parseIntParam(r, "limit", 0, 500),
		}
		if raw, ok := q["status"]; ok {
			// "none" selects jobs the user has not engaged with.
			v := raw[0]
			if v == "none" {
				v = ""
			}
			st, err := tracker.ParseStatus(v)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			f.Status = &st
		}

		list, err := deps.Jobs.List(r.Context(), f)
		if err != nil {
			jobError(w, err)
			return
		}
		if list == nil {
			list = []tracker.JobApplication{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleCreateJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobs.NewJob
		if !decodeBody(w, r, &req) {
			return
		}
		job, err := deps.Jobs.Create(r.Context(), req)
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	}
}

func handleImportJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL string `json:"url"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required")
			return
		}
		job, err := deps.Jobs.ImportPosting(r.Context(), req.URL)
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	}
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleApply(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Jobs.Apply(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleToggleSave(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Jobs.ToggleSave(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleAddEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Events []tracker.StatusEvent `json:"events"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if len(req.Events) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "events is required and must not be empty")
			return
		}
		job, added, err := deps.Jobs.AddEvents(r.Context(), chi.URLParam(r, "id"), req.Events)
		if err != nil {
			jobError(w, err)
			return
		}
		if added == nil {
			added = []tracker.StatusEvent{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"job": job, "added": added})
	}
}

func handleAddNote(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		job, err := deps.Jobs.AddNote(r.Context(), chi.URLParam(r, "id"), req.Text)
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleFollowUp(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Jobs.RecordFollowUp(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleTimeline(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := deps.Jobs.Timeline(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			jobError(w, err)
			return
		}
		type entry struct {
			tracker.StatusEvent
			Label string `json:"label"`
		}
		out := make([]entry, len(events))
		for i, e := range events {
			out[i] = entry{StatusEvent: e, Label: tracker.Label(e.Type)}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// handleResume accepts a raw PDF body. The file name comes from the name
// query parameter.
func handleResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, resume.MaxSize)
		defer r.Body.Close()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "resume exceeds %d bytes", resume.MaxSize)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}
		if len(data) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "empty body")
			return
		}

		job, err := deps.Jobs.AttachResume(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("name"), bytes.NewReader(data), int64(len(data)))
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func handleBoard(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board, err := deps.Jobs.Board(r.Context())
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, board)
	}
}

func handleMove(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tracker.DragResult
		if !decodeBody(w, r, &req) {
			return
		}
		if req.DraggableID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "draggable_id is required")
			return
		}
		res, err := deps.Jobs.Move(r.Context(), req)
		if err != nil {
			jobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

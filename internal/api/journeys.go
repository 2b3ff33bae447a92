package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/renohq/reno/internal/storage"
)

type StartJourneyRequest struct {
	Template string `json:"template"`
}

func handleStartJourney(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req StartJourneyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Template == "" {
			req.Template = "diy_project_plan"
		}

		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetConversation(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}

		j, steps, err := deps.Journeys.Start(r.Context(), id, req.Template)
		if errors.Is(err, storage.ErrActiveJourneyExists) {
			httpError(w, http.StatusConflict, "conflict", "conversation already has an active journey")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to start journey: %v", err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, journeyResponse(j, steps))
	}
}

func handleGetJourney(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j, steps, err := deps.Journeys.Snapshot(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no active journey")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load journey: %v", err)
			return
		}
		writeJSON(w, journeyResponse(j, steps))
	}
}

func handleAdvanceJourney(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		step, err := deps.Journeys.Advance(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no active journey")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to advance journey: %v", err)
			return
		}

		if step.ID == "" {
			writeJSON(w, map[string]any{"status": "completed"})
			return
		}
		writeJSON(w, map[string]any{
			"status":       "active",
			"current_step": stepResponse(step),
		})
	}
}

func handleAbandonJourney(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Journeys.Abandon(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no active journey")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to abandon journey: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "abandoned"})
	}
}

func journeyResponse(j storage.Journey, steps []storage.JourneyStep) map[string]any {
	out := map[string]any{
		"id":       j.ID,
		"template": j.Template,
		"status":   j.Status,
	}
	stepList := make([]map[string]any, len(steps))
	for i, s := range steps {
		stepList[i] = stepResponse(s)
	}
	out["steps"] = stepList
	return out
}

func stepResponse(s storage.JourneyStep) map[string]any {
	return map[string]any{
		"id":       s.ID,
		"position": s.Position,
		"title":    s.Title,
		"status":   s.Status,
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/renohq/reno/internal/storage"
)

type CreateConversationRequest struct {
	Persona  string `json:"persona"`
	Scenario string `json:"scenario"`
	Mode     string `json:"mode"`
	HomeID   string `json:"home_id"`
	RoomID   string `json:"room_id"`
}

var (
	validPersonas = map[storage.Persona]bool{
		storage.PersonaNone: true, storage.PersonaHomeowner: true,
		storage.PersonaDIYWorker: true, storage.PersonaContractor: true,
	}
	validScenarios = map[storage.Scenario]bool{
		storage.ScenarioNone: true, storage.ScenarioDIYProjectPlan: true,
		storage.ScenarioContractorQuotes: true,
	}
	validModes = map[storage.Mode]bool{
		storage.ModeChat: true, storage.ModeAgent: true,
	}
)

func handleCreateConversation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CreateConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Persona == "" {
			req.Persona = string(storage.PersonaNone)
		}
		if req.Scenario == "" {
			req.Scenario = string(storage.ScenarioNone)
		}
		if req.Mode == "" {
			req.Mode = string(storage.ModeChat)
		}
		if !validPersonas[storage.Persona(req.Persona)] {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown persona %q", req.Persona)
			return
		}
		if !validScenarios[storage.Scenario(req.Scenario)] {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown scenario %q", req.Scenario)
			return
		}
		if !validModes[storage.Mode(req.Mode)] {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown mode %q", req.Mode)
			return
		}

		conv := storage.Conversation{
			ID:       uuid.New().String(),
			Persona:  storage.Persona(req.Persona),
			Scenario: storage.Scenario(req.Scenario),
			Mode:     storage.Mode(req.Mode),
			HomeID:   req.HomeID,
			RoomID:   req.RoomID,
			Status:   "active",
		}
		if err := deps.Store.CreateConversation(conv); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create conversation: %v", err)
			return
		}

		saved, err := deps.Store.GetConversation(conv.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load conversation: %v", err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, conversationResponse(saved))
	}
}

func handleListConversations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		convs, err := deps.Store.ListConversations(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list conversations: %v", err)
			return
		}

		out := make([]map[string]any, len(convs))
		for i, c := range convs {
			out[i] = conversationResponse(c)
		}
		writeJSON(w, out)
	}
}

func handleGetConversation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := deps.Store.GetConversation(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get conversation: %v", err)
			return
		}
		writeJSON(w, conversationResponse(conv))
	}
}

func handleListMessages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := deps.Store.GetConversation(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}

		msgs, err := deps.Store.Messages(r.Context(), id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}

		out := make([]map[string]any, len(msgs))
		for i, m := range msgs {
			entry := map[string]any{
				"id":         m.ID,
				"seq":        m.Seq,
				"role":       m.Role,
				"content":    m.Content,
				"created_at": m.CreatedAt.Format(time.RFC3339),
			}
			if m.Metadata != "" && m.Metadata != "{}" {
				entry["metadata"] = json.RawMessage(m.Metadata)
			}
			atts, err := deps.Store.AttachmentsForMessage(r.Context(), m.ID)
			if err == nil && len(atts) > 0 {
				entry["attachments"] = attachmentResponses(atts)
			}
			out[i] = entry
		}
		writeJSON(w, out)
	}
}

func handleArchiveConversation(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.ArchiveConversation(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to archive conversation: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "archived"})
	}
}

func conversationResponse(c storage.Conversation) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"persona":    string(c.Persona),
		"scenario":   string(c.Scenario),
		"mode":       string(c.Mode),
		"home_id":    c.HomeID,
		"room_id":    c.RoomID,
		"status":     c.Status,
		"created_at": c.CreatedAt.Format(time.RFC3339),
		"updated_at": c.UpdatedAt.Format(time.RFC3339),
	}
}

func attachmentResponses(atts []storage.Attachment) []map[string]any {
	out := make([]map[string]any, len(atts))
	for i, a := range atts {
		out[i] = map[string]any{
			"id":           a.ID,
			"kind":         a.Kind,
			"locator":      a.Locator,
			"content_type": a.ContentType,
			"provenance":   a.Provenance,
		}
		if a.JourneyStepID != "" {
			out[i]["journey_step_id"] = a.JourneyStepID
		}
	}
	return out
}

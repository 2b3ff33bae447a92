// Package api exposes the assistant over HTTP (app API) and MCP. The app API
// is bearer-token authenticated; /health is the only open route.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/renohq/reno/internal/actions"
	"github.com/renohq/reno/internal/blob"
	"github.com/renohq/reno/internal/journey"
	"github.com/renohq/reno/internal/pipeline"
	"github.com/renohq/reno/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB; turn uploads are raised separately

type AppDeps struct {
	Store    *storage.Store
	Pipeline *pipeline.Pipeline
	Resolver *actions.Resolver
	Journeys *journey.Manager
	Blobs    blob.Store
	Token    string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/v1/conversations", handleCreateConversation(deps))
		r.Get("/v1/conversations", handleListConversations(deps))
		r.Get("/v1/conversations/{id}", handleGetConversation(deps))
		r.Get("/v1/conversations/{id}/messages", handleListMessages(deps))
		r.Post("/v1/conversations/{id}/archive", handleArchiveConversation(deps))

		r.Post("/v1/conversations/{id}/turns", handleTurn(deps))
		r.Post("/v1/conversations/{id}/actions/{action_id}", handleResolveAction(deps))

		r.Post("/v1/conversations/{id}/journey", handleStartJourney(deps))
		r.Get("/v1/conversations/{id}/journey", handleGetJourney(deps))
		r.Post("/v1/conversations/{id}/journey/advance", handleAdvanceJourney(deps))
		r.Post("/v1/conversations/{id}/journey/abandon", handleAbandonJourney(deps))

		r.Post("/v1/knowledge", handleSaveSnippet(deps))
		r.Get("/v1/blobs/{id}", handleGetBlob(deps))
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

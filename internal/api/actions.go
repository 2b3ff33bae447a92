package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/renohq/reno/internal/actions"
	"github.com/renohq/reno/internal/storage"
)

type ResolveActionRequest struct {
	Params map[string]string `json:"params"`
}

func handleResolveAction(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		actionID := chi.URLParam(r, "action_id")
		if _, ok := actions.ByID(actionID); !ok {
			httpError(w, http.StatusNotFound, "not_found", "unknown action %q", actionID)
			return
		}

		var req ResolveActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		out, err := deps.Resolver.Resolve(r.Context(), chi.URLParam(r, "id"), actionID, req.Params)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve action: %v", err)
			return
		}
		writeJSON(w, out)
	}
}

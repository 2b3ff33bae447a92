package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/renohq/reno/internal/storage"
)

type SaveSnippetRequest struct {
	HomeID  string   `json:"home_id"`
	RoomID  string   `json:"room_id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func handleSaveSnippet(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req SaveSnippetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		tagsJSON := "[]"
		if len(req.Tags) > 0 {
			b, err := json.Marshal(req.Tags)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal tags: %v", err)
				return
			}
			tagsJSON = string(b)
		}

		sn := storage.Snippet{
			ID:        uuid.New().String(),
			HomeID:    req.HomeID,
			RoomID:    req.RoomID,
			Title:     req.Title,
			Content:   req.Content,
			Tags:      tagsJSON,
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveSnippet(sn); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save snippet: %v", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"id": sn.ID})
	}
}

func handleGetBlob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		data, err := deps.Blobs.Get("blob://" + id)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "blob not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read blob: %v", err)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Write(data)
	}
}

package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/renohq/reno/internal/pipeline"
	"github.com/renohq/reno/internal/storage"
)

// Turn uploads carry base64 payloads, so the limit leaves headroom over the
// pipeline's own per-attachment cap.
const maxTurnBodySize = 80 << 20

type TurnRequestBody struct {
	Text        string           `json:"text"`
	Stream      bool             `json:"stream"`
	Attachments []TurnAttachment `json:"attachments"`
}

type TurnAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"` // base64
}

func handleTurn(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxTurnBodySize)
		defer r.Body.Close()

		var body TurnRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		req := pipeline.TurnRequest{
			ConversationID: chi.URLParam(r, "id"),
			Text:           body.Text,
		}
		for i, a := range body.Attachments {
			data, err := base64.StdEncoding.DecodeString(a.Data)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "attachment %d is not valid base64", i)
				return
			}
			req.Attachments = append(req.Attachments, pipeline.IncomingAttachment{
				Filename:    a.Filename,
				ContentType: a.ContentType,
				Data:        data,
			})
		}

		if body.Stream {
			streamTurn(w, r, deps, req)
			return
		}

		res, err := deps.Pipeline.ProcessTurn(r.Context(), req)
		if err != nil {
			turnError(w, err)
			return
		}
		writeJSON(w, turnResponse(res))
	}
}

// streamTurn emits SSE events: zero or more "chunk" events as text is
// generated, then a single "done" event carrying the full turn result. A
// turn that fails before generation emits one "error" event.
func streamTurn(w http.ResponseWriter, r *http.Request, deps AppDeps, req pipeline.TurnRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	req.OnChunk = func(chunk string) {
		payload, err := json.Marshal(map[string]string{"text": chunk})
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: chunk\ndata: %s\n\n", payload)
		flusher.Flush()
	}

	res, err := deps.Pipeline.ProcessTurn(r.Context(), req)
	if err != nil {
		payload, merr := json.Marshal(map[string]string{"message": err.Error()})
		if merr == nil {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			flusher.Flush()
		}
		return
	}

	payload, err := json.Marshal(turnResponse(res))
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", payload)
	flusher.Flush()
}

func turnResponse(res pipeline.TurnResult) map[string]any {
	out := map[string]any{
		"user_message_id":      res.UserMessageID,
		"assistant_message_id": res.AssistantMessageID,
		"text":                 res.Text,
		"metadata":             res.Metadata,
	}
	if len(res.Attachments) > 0 {
		out["attachments"] = attachmentResponses(res.Attachments)
	}
	return out
}

func turnError(w http.ResponseWriter, err error) {
	var verr *pipeline.ValidationError
	if errors.As(err, &verr) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", verr)
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if strings.Contains(err.Error(), "context canceled") {
		// Client went away; nothing useful to write.
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "failed to process turn: %v", err)
}

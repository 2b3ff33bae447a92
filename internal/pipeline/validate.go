package pipeline

import (
	"fmt"
	"strings"
)

const (
	maxTextChars      = 8000
	maxAttachments    = 5
	maxAttachmentSize = 10 << 20
)

var allowedAttachmentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// ValidationError rejects a turn before any stage runs. It maps to a 400 at
// the API layer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// validate normalizes and checks the request in place. Text is trimmed and
// required; attachments are additional context, never a substitute for it.
func validate(req *TurnRequest) error {
	if req.ConversationID == "" {
		return &ValidationError{Field: "conversation_id", Reason: "required"}
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return &ValidationError{Field: "text", Reason: "required"}
	}
	if len(req.Text) > maxTextChars {
		return &ValidationError{Field: "text", Reason: fmt.Sprintf("longer than %d characters", maxTextChars)}
	}
	if len(req.Attachments) > maxAttachments {
		return &ValidationError{Field: "attachments", Reason: fmt.Sprintf("more than %d attachments", maxAttachments)}
	}
	for i, a := range req.Attachments {
		if !allowedAttachmentTypes[a.ContentType] {
			return &ValidationError{Field: "attachments", Reason: fmt.Sprintf("attachment %d has unsupported type %q", i, a.ContentType)}
		}
		if len(a.Data) == 0 {
			return &ValidationError{Field: "attachments", Reason: fmt.Sprintf("attachment %d is empty", i)}
		}
		if len(a.Data) > maxAttachmentSize {
			return &ValidationError{Field: "attachments", Reason: fmt.Sprintf("attachment %d exceeds %d bytes", i, maxAttachmentSize)}
		}
	}
	return nil
}

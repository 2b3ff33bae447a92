// Package pipeline runs one conversation turn through its stages: validate,
// classify, retrieve context, load history, generate, enrich with tools,
// link journey attachments, suggest follow-ups, and persist. Stages after
// validation degrade individually instead of failing the turn.
package pipeline

import (
	"github.com/renohq/reno/internal/actions"
	"github.com/renohq/reno/internal/provider"
	"github.com/renohq/reno/internal/storage"
)

// TurnRequest is one user turn. OnChunk, when set, receives assistant text
// incrementally as it is generated; the full text is still returned in the
// result.
type TurnRequest struct {
	ConversationID string
	Text           string
	Attachments    []IncomingAttachment
	OnChunk        func(chunk string)
}

// IncomingAttachment is an uploaded file before it is written to blob
// storage.
type IncomingAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ToolOutput is the fan-in of the enrichment tools that ran for a turn.
// Every field may be empty; a tool that failed contributes nothing.
type ToolOutput struct {
	Images      []provider.ImageResult      `json:"images,omitempty"`
	Products    []provider.SearchResult     `json:"products,omitempty"`
	Videos      []provider.VideoResult      `json:"videos,omitempty"`
	Contractors []provider.ContractorResult `json:"contractors,omitempty"`
}

func (t *ToolOutput) empty() bool {
	return len(t.Images) == 0 && len(t.Products) == 0 && len(t.Videos) == 0 && len(t.Contractors) == 0
}

// TurnMetadata is persisted as the assistant message's metadata JSON. The
// suggester reads suggested_actions/suggested_questions back to build its
// anti-repetition window, and the resolver reads intent and slots.
type TurnMetadata struct {
	Intent             string               `json:"intent"`
	IntentConfidence   float64              `json:"intent_confidence"`
	IntentFallback     bool                 `json:"intent_fallback,omitempty"`
	Degraded           bool                 `json:"degraded,omitempty"`
	Tools              *ToolOutput          `json:"tools,omitempty"`
	SuggestedActions   []actions.Suggestion `json:"suggested_actions,omitempty"`
	SuggestedQuestions []actions.Question   `json:"suggested_questions,omitempty"`
	Slots              map[string]string    `json:"slots,omitempty"`
	JourneyStepID      string               `json:"journey_step_id,omitempty"`
	ResolvedAction     string               `json:"resolved_action,omitempty"`
}

// TurnResult is everything a processed turn produced.
type TurnResult struct {
	UserMessageID      string
	AssistantMessageID string
	Text               string
	Metadata           TurnMetadata
	Attachments        []storage.Attachment
}

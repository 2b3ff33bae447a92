package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Persona labels who the user said they are. It is a hint for prompt
// framing, never a gate on which actions are offered.
type Persona string

const (
	PersonaNone       Persona = "none"
	PersonaHomeowner  Persona = "homeowner"
	PersonaDIYWorker  Persona = "diy_worker"
	PersonaContractor Persona = "contractor"
)

// Scenario selects a conversation-level framing template.
type Scenario string

const (
	ScenarioNone             Scenario = "none"
	ScenarioDIYProjectPlan   Scenario = "diy_project_plan"
	ScenarioContractorQuotes Scenario = "contractor_quotes"
)

// Mode controls whether multimodal tool enrichment runs for a conversation.
type Mode string

const (
	ModeChat  Mode = "chat"
	ModeAgent Mode = "agent"
)

type Conversation struct {
	ID        string
	Persona   Persona
	Scenario  Scenario
	HomeID    string
	RoomID    string
	Mode      Mode
	Status    string // "active", "archived"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one half of a turn. Immutable once persisted; Seq is assigned
// inside the AppendTurn transaction and is strictly increasing per
// conversation with no gaps.
type Message struct {
	ID             string // ULID, lexically sortable
	ConversationID string
	Seq            int64
	Role           string // "user", "assistant"
	Content        string
	Metadata       string // JSON, see pipeline.TurnMetadata
	CreatedAt      time.Time
}

// Attachment is serialized directly into action outcomes, hence the tags.
// Kind is "image" or "document". Provenance is "user_uploaded" or
// "generated". Analysis holds extracted key/values as JSON, e.g. a text
// excerpt. JourneyStepID is set when the attachment is linked to a journey
// step.
type Attachment struct {
	ID            string    `json:"id"`
	MessageID     string    `json:"message_id,omitempty"`
	JourneyStepID string    `json:"journey_step_id,omitempty"`
	Kind          string    `json:"kind"`
	Locator       string    `json:"locator"`
	ContentType   string    `json:"content_type"`
	Provenance    string    `json:"provenance"`
	Analysis      string    `json:"analysis,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Journey struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Template       string    `json:"template"`
	Status         string    `json:"status"` // "active", "completed", "abandoned"
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type JourneyStep struct {
	ID        string `json:"id"`
	JourneyID string `json:"journey_id"`
	Position  int    `json:"position"`
	Title     string `json:"title"`
	Status    string `json:"status"` // "pending", "in_progress", "done"
}

// Snippet is an indexed knowledge fragment scoped to a home and optionally a
// room. The retriever ranks these; an empty table is not an error.
type Snippet struct {
	ID        string
	HomeID    string
	RoomID    string
	Title     string
	Content   string
	Tags      string // JSON array stored as text
	CreatedAt time.Time
}

// TurnRecord is everything one turn persists atomically: the user message,
// the assistant message with its metadata, and any attachments (which may
// carry a journey step link). Either all of it commits or none does.
type TurnRecord struct {
	ConversationID   string
	UserMessage      Message
	AssistantMessage Message
	Attachments      []Attachment
}

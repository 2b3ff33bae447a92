package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/renohq/reno/internal/actions"
	"github.com/renohq/reno/internal/blob"
	"github.com/renohq/reno/internal/config"
	"github.com/renohq/reno/internal/docs"
	"github.com/renohq/reno/internal/intent"
	"github.com/renohq/reno/internal/knowledge"
	"github.com/renohq/reno/internal/provider"
	"github.com/renohq/reno/internal/storage"
)

// Store is the conversation state the pipeline reads and writes.
type Store interface {
	GetConversation(id string) (storage.Conversation, error)
	RecentMessages(ctx context.Context, conversationID string, charBudget int) ([]storage.Message, error)
	RecentAssistantMessages(ctx context.Context, conversationID string, n int) ([]storage.Message, error)
	AppendTurn(ctx context.Context, rec storage.TurnRecord) error
}

// JourneyLinker attaches turn images to the active journey's current step.
type JourneyLinker interface {
	LinkTurnImages(ctx context.Context, conversationID string, attachments []storage.Attachment) []storage.Attachment
}

// ContextRetriever ranks knowledge snippets for the turn's scope and text.
type ContextRetriever interface {
	Query(ctx context.Context, homeID, roomID, text string, limit int) []knowledge.Snippet
}

// Pipeline processes turns. One instance serves all conversations; turns on
// the same conversation are serialized, turns on different conversations run
// concurrently.
type Pipeline struct {
	store      Store
	classifier intent.Classifier
	retriever  ContextRetriever
	textGen    provider.TextGenerator
	imageGen   provider.ImageGenerator
	search     provider.WebSearcher
	places     provider.PlacesFinder
	blobs      blob.Store
	journeys   JourneyLinker
	suggester  *actions.Suggester

	tools config.ToolsConfig
	pcfg  config.PipelineConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store Store, classifier intent.Classifier, retriever ContextRetriever, textGen provider.TextGenerator, imageGen provider.ImageGenerator, search provider.WebSearcher, places provider.PlacesFinder, blobs blob.Store, journeys JourneyLinker, tools config.ToolsConfig, pcfg config.PipelineConfig) *Pipeline {
	return &Pipeline{
		store:      store,
		classifier: classifier,
		retriever:  retriever,
		textGen:    textGen,
		imageGen:   imageGen,
		search:     search,
		places:     places,
		blobs:      blobs,
		journeys:   journeys,
		suggester:  actions.NewSuggester(pcfg.MaxSuggestions),
		tools:      tools,
		pcfg:       pcfg,
	}
}

// lockConversation serializes turns per conversation. Returns the unlock
// func.
func (p *Pipeline) lockConversation(id string) func() {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = map[string]*sync.Mutex{}
	}
	l, ok := p.locks[id]
	if !ok {
		l = &sync.Mutex{}
		p.locks[id] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ProcessTurn runs one turn end to end and persists it. Stage failures after
// validation degrade the turn (metadata records it) instead of failing it;
// only validation, a missing conversation, and the final persist can return
// an error.
func (p *Pipeline) ProcessTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	if err := validate(&req); err != nil {
		return TurnResult{}, err
	}

	unlock := p.lockConversation(req.ConversationID)
	defer unlock()

	conv, err := p.store.GetConversation(req.ConversationID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("loading conversation: %w", err)
	}
	if conv.Status == "archived" {
		return TurnResult{}, &ValidationError{Field: "conversation_id", Reason: "conversation is archived"}
	}

	attachments, analyses := p.storeAttachments(req.Attachments)

	history, err := p.store.RecentMessages(ctx, conv.ID, p.pcfg.HistoryCharBudget)
	if err != nil {
		slog.Warn("history load failed, generating without it", "conversation_id", conv.ID, "error", err)
		history = nil
	}

	res := p.classify(ctx, conv, req.Text, history)

	snippets := p.retriever.Query(ctx, conv.HomeID, conv.RoomID, req.Text, p.pcfg.ContextSnippets)

	answer, degraded := p.generate(ctx, buildPrompt(conv, snippets, analyses, history, req.Text), req.OnChunk)

	slots := actions.SlotsFromMessages(history)
	for k, v := range extractSlots(req.Text) {
		slots[k] = v
	}

	var tools *ToolOutput
	if conv.Mode == storage.ModeAgent {
		tools = p.enrich(ctx, res.Label, req.Text, slots)
	}
	if tools != nil {
		for _, img := range tools.Images {
			attachments = append(attachments, storage.Attachment{
				ID:          uuid.New().String(),
				Kind:        "image",
				Locator:     img.Locator,
				ContentType: "image/png",
				Provenance:  "generated",
				Analysis:    "{}",
			})
		}
	}

	attachments = p.journeys.LinkTurnImages(ctx, conv.ID, attachments)

	window := p.suggestionWindow(ctx, conv.ID)
	meta := TurnMetadata{
		Intent:             string(res.Label),
		IntentConfidence:   res.Confidence,
		IntentFallback:     res.Fallback,
		Degraded:           degraded,
		Tools:              tools,
		SuggestedActions:   p.suggester.SuggestActions(res.Label, window),
		SuggestedQuestions: p.suggester.SuggestQuestions(res.Label, slots, window),
		Slots:              slots,
	}
	for _, a := range attachments {
		if a.JourneyStepID != "" {
			meta.JourneyStepID = a.JourneyStepID
			break
		}
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return TurnResult{}, fmt.Errorf("encoding turn metadata: %w", err)
	}

	now := time.Now().UTC()
	userMsg := storage.Message{
		ID:             ulid.Make().String(),
		ConversationID: conv.ID,
		Role:           "user",
		Content:        req.Text,
		Metadata:       "{}",
		CreatedAt:      now,
	}
	assistantMsg := storage.Message{
		ID:             ulid.Make().String(),
		ConversationID: conv.ID,
		Role:           "assistant",
		Content:        answer,
		Metadata:       string(metaJSON),
		CreatedAt:      now,
	}
	for i := range attachments {
		if attachments[i].Provenance == "user_uploaded" {
			attachments[i].MessageID = userMsg.ID
		} else {
			attachments[i].MessageID = assistantMsg.ID
		}
	}

	// The turn is already answered; a cancelled request must not lose it.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	rec := storage.TurnRecord{
		ConversationID:   conv.ID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Attachments:      attachments,
	}
	if err := p.store.AppendTurn(persistCtx, rec); err != nil {
		return TurnResult{}, fmt.Errorf("persisting turn: %w", err)
	}

	return TurnResult{
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
		Text:               answer,
		Metadata:           meta,
		Attachments:        attachments,
	}, nil
}

// storeAttachments writes uploads to blob storage and analyzes them. A
// failed analysis keeps the attachment with an empty analysis; a failed blob
// write drops the attachment with a warning.
func (p *Pipeline) storeAttachments(incoming []IncomingAttachment) ([]storage.Attachment, []string) {
	var (
		attachments []storage.Attachment
		analyses    []string
	)
	for _, in := range incoming {
		locator, err := p.blobs.Put(uuid.New().String(), in.Data)
		if err != nil {
			slog.Warn("storing attachment failed, dropping it", "filename", in.Filename, "error", err)
			continue
		}

		analysisJSON := "{}"
		analysis, err := docs.Analyze(in.Data, in.ContentType)
		if err != nil {
			slog.Warn("attachment analysis failed", "filename", in.Filename, "error", err)
		} else if len(analysis) > 0 {
			if b, merr := json.Marshal(analysis); merr == nil {
				analysisJSON = string(b)
			}
			analyses = append(analyses, describeAnalysis(in, analysis))
		}

		kind := "document"
		if in.ContentType != "application/pdf" {
			kind = "image"
		}
		attachments = append(attachments, storage.Attachment{
			ID:          uuid.New().String(),
			Kind:        kind,
			Locator:     locator,
			ContentType: in.ContentType,
			Provenance:  "user_uploaded",
			Analysis:    analysisJSON,
		})
	}
	return attachments, analyses
}

func describeAnalysis(in IncomingAttachment, analysis map[string]string) string {
	if excerpt := analysis["text_excerpt"]; excerpt != "" {
		return fmt.Sprintf("%s (pdf): %s", in.Filename, excerpt)
	}
	if analysis["width"] != "" {
		return fmt.Sprintf("%s: a %sx%s %s image", in.Filename, analysis["width"], analysis["height"], analysis["format"])
	}
	return in.Filename
}

// classify never fails the turn: a classifier error falls back to
// general_question at zero confidence.
func (p *Pipeline) classify(ctx context.Context, conv storage.Conversation, text string, history []storage.Message) intent.Result {
	chat := make([]provider.ChatMessage, len(history))
	for i, m := range history {
		chat[i] = provider.ChatMessage{Role: m.Role, Content: m.Content}
	}
	res, err := p.classifier.Classify(ctx, text, chat, intent.Scope{HomeID: conv.HomeID, RoomID: conv.RoomID})
	if err != nil {
		slog.Warn("intent classification failed", "conversation_id", conv.ID, "error", err)
		return intent.Result{Label: intent.GeneralQuestion, Fallback: true}
	}
	return res
}

func (p *Pipeline) suggestionWindow(ctx context.Context, conversationID string) actions.Window {
	msgs, err := p.store.RecentAssistantMessages(ctx, conversationID, p.pcfg.WindowTurns)
	if err != nil {
		slog.Warn("suggestion window load failed", "conversation_id", conversationID, "error", err)
		msgs = nil
	}
	return actions.WindowFromMessages(msgs, p.pcfg.WindowTurns)
}

var (
	budgetRe     = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:-|to)\s?\$?\d[\d,]*)?`)
	dimensionsRe = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:x|by)\s?\d+(?:\.\d+)?\s?(?:ft|feet|foot|m|meters|inches|in|')?\b`)
)

// extractSlots pulls durable facts out of the user's text so later turns and
// action resolutions can reuse them.
func extractSlots(text string) map[string]string {
	slots := map[string]string{}
	if m := budgetRe.FindString(text); m != "" {
		slots["budget"] = m
	}
	if m := dimensionsRe.FindString(text); m != "" {
		slots["dimensions"] = m
	}
	return slots
}

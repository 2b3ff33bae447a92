package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/renohq/reno/internal/config"
	"github.com/renohq/reno/internal/intent"
	"github.com/renohq/reno/internal/knowledge"
	"github.com/renohq/reno/internal/provider"
	"github.com/renohq/reno/internal/storage"
)

type mockStore struct {
	conv       storage.Conversation
	convErr    error
	recent     []storage.Message
	assistants []storage.Message
	appended   *storage.TurnRecord
	appendErr  error
}

func (m *mockStore) GetConversation(id string) (storage.Conversation, error) {
	if m.convErr != nil {
		return storage.Conversation{}, m.convErr
	}
	c := m.conv
	if c.ID == "" {
		c.ID = id
	}
	if c.Status == "" {
		c.Status = "active"
	}
	if c.Mode == "" {
		c.Mode = storage.ModeChat
	}
	return c, nil
}

func (m *mockStore) RecentMessages(ctx context.Context, conversationID string, charBudget int) ([]storage.Message, error) {
	return m.recent, nil
}

func (m *mockStore) RecentAssistantMessages(ctx context.Context, conversationID string, n int) ([]storage.Message, error) {
	return m.assistants, nil
}

func (m *mockStore) AppendTurn(ctx context.Context, rec storage.TurnRecord) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = &rec
	return nil
}

type mockTextGen struct {
	chunks []string
	err    error
	calls  int
}

func (m *mockTextGen) Complete(ctx context.Context, msgs []provider.ChatMessage) (string, error) {
	m.calls++
	return strings.Join(m.chunks, ""), m.err
}

func (m *mockTextGen) Stream(ctx context.Context, msgs []provider.ChatMessage) (<-chan string, <-chan error) {
	m.calls++
	ch := make(chan string, len(m.chunks))
	ech := make(chan error, 1)
	if m.err == nil {
		for _, c := range m.chunks {
			ch <- c
		}
	}
	close(ch)
	if m.err != nil {
		ech <- m.err
	}
	close(ech)
	return ch, ech
}

type stubClassifier struct {
	res intent.Result
	err error
}

func (s *stubClassifier) Classify(ctx context.Context, text string, history []provider.ChatMessage, scope intent.Scope) (intent.Result, error) {
	return s.res, s.err
}

type stubRetriever struct {
	snippets []knowledge.Snippet
}

func (s *stubRetriever) Query(ctx context.Context, homeID, roomID, text string, limit int) []knowledge.Snippet {
	return s.snippets
}

type mockImageGen struct {
	generateFn func(ctx context.Context, prompt, style string) ([]provider.ImageResult, error)
}

func (m *mockImageGen) GenerateImage(ctx context.Context, prompt, style string) ([]provider.ImageResult, error) {
	if m.generateFn == nil {
		return nil, errors.New("no image backend")
	}
	return m.generateFn(ctx, prompt, style)
}

type mockSearcher struct {
	searchFn func(ctx context.Context, query, regionHint string) ([]provider.SearchResult, error)
}

func (m *mockSearcher) Search(ctx context.Context, query, regionHint string) ([]provider.SearchResult, error) {
	if m.searchFn == nil {
		return nil, errors.New("no search backend")
	}
	return m.searchFn(ctx, query, regionHint)
}

type mockPlaces struct {
	findFn func(ctx context.Context, jobType, location string) ([]provider.ContractorResult, error)
}

func (m *mockPlaces) FindNearby(ctx context.Context, jobType, location string) ([]provider.ContractorResult, error) {
	if m.findFn == nil {
		return nil, errors.New("no places backend")
	}
	return m.findFn(ctx, jobType, location)
}

type mockBlobs struct{ puts int }

func (m *mockBlobs) Put(id string, data []byte) (string, error) {
	m.puts++
	return "blob://" + id, nil
}

func (m *mockBlobs) Get(locator string) ([]byte, error) { return nil, errors.New("not stored") }

type passthroughLinker struct{ stepID string }

func (l *passthroughLinker) LinkTurnImages(ctx context.Context, conversationID string, attachments []storage.Attachment) []storage.Attachment {
	if l.stepID == "" {
		return attachments
	}
	linked := make([]storage.Attachment, len(attachments))
	copy(linked, attachments)
	for i := range linked {
		if linked[i].Kind == "image" {
			linked[i].JourneyStepID = l.stepID
		}
	}
	return linked
}

type pipelineDeps struct {
	store      *mockStore
	textGen    provider.TextGenerator
	classifier *stubClassifier
	imageGen   *mockImageGen
	search     *mockSearcher
	places     *mockPlaces
	blobs      *mockBlobs
	linker     *passthroughLinker
}

func newTestPipeline(d *pipelineDeps) *Pipeline {
	if d.store == nil {
		d.store = &mockStore{}
	}
	if d.textGen == nil {
		d.textGen = &mockTextGen{chunks: []string{"an answer"}}
	}
	if d.classifier == nil {
		d.classifier = &stubClassifier{res: intent.Result{Label: intent.GeneralQuestion, Confidence: 0.9}}
	}
	if d.imageGen == nil {
		d.imageGen = &mockImageGen{}
	}
	if d.search == nil {
		d.search = &mockSearcher{}
	}
	if d.places == nil {
		d.places = &mockPlaces{}
	}
	if d.blobs == nil {
		d.blobs = &mockBlobs{}
	}
	if d.linker == nil {
		d.linker = &passthroughLinker{}
	}
	tools := config.ToolsConfig{DefaultLocation: "Austin, TX", PerToolTimeout: time.Second, OverallTimeout: 2 * time.Second}
	pcfg := config.PipelineConfig{HistoryCharBudget: 8000, ContextSnippets: 5, WindowTurns: 4, MaxSuggestions: 3}
	return New(d.store, d.classifier, &stubRetriever{}, d.textGen, d.imageGen, d.search, d.places, d.blobs, d.linker, tools, pcfg)
}

func TestProcessTurn_PersistsBothMessages(t *testing.T) {
	d := &pipelineDeps{store: &mockStore{}}
	p := newTestPipeline(d)

	res, err := p.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-1", Text: "  hello there  "})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.Text != "an answer" {
		t.Errorf("text = %q", res.Text)
	}
	rec := d.store.appended
	if rec == nil {
		t.Fatal("turn not persisted")
	}
	if rec.UserMessage.Content != "hello there" {
		t.Errorf("user content = %q, want trimmed text", rec.UserMessage.Content)
	}
	if rec.AssistantMessage.Content != "an answer" {
		t.Errorf("assistant content = %q", rec.AssistantMessage.Content)
	}
	if rec.UserMessage.ID == "" || rec.AssistantMessage.ID == "" {
		t.Error("messages missing ids")
	}
	if !strings.Contains(rec.AssistantMessage.Metadata, `"intent":"general_question"`) {
		t.Errorf("metadata = %s", rec.AssistantMessage.Metadata)
	}
}

func TestProcessTurn_Validation(t *testing.T) {
	p := newTestPipeline(&pipelineDeps{})
	tests := []struct {
		name string
		req  TurnRequest
	}{
		{"missing conversation", TurnRequest{Text: "hi"}},
		{"empty turn", TurnRequest{ConversationID: "c"}},
		{"whitespace only", TurnRequest{ConversationID: "c", Text: "   "}},
		{"attachment without text", TurnRequest{ConversationID: "c", Attachments: []IncomingAttachment{{ContentType: "image/png", Data: []byte{1}}}}},
		{"oversized text", TurnRequest{ConversationID: "c", Text: strings.Repeat("a", maxTextChars+1)}},
		{"too many attachments", TurnRequest{ConversationID: "c", Text: "hi", Attachments: make([]IncomingAttachment, maxAttachments+1)}},
		{"bad content type", TurnRequest{ConversationID: "c", Text: "hi", Attachments: []IncomingAttachment{{ContentType: "video/mp4", Data: []byte{1}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := range tt.req.Attachments {
				if tt.req.Attachments[i].ContentType == "" {
					tt.req.Attachments[i] = IncomingAttachment{ContentType: "image/png", Data: []byte{1}}
				}
			}
			_, err := p.ProcessTurn(context.Background(), tt.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestProcessTurn_ArchivedConversationRejected(t *testing.T) {
	d := &pipelineDeps{store: &mockStore{conv: storage.Conversation{ID: "conv-1", Status: "archived"}}}
	p := newTestPipeline(d)

	_, err := p.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-1", Text: "hi"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError for archived conversation", err)
	}
}

func TestProcessTurn_ChatModeSkipsEnrichment(t *testing.T) {
	d := &pipelineDeps{
		store:      &mockStore{conv: storage.Conversation{ID: "conv-1", Mode: storage.ModeChat}},
		classifier: &stubClassifier{res: intent.Result{Label: intent.DesignVisualization, Confidence: 0.95}},
		imageGen: &mockImageGen{generateFn: func(ctx context.Context, prompt, style string) ([]provider.ImageResult, error) {
			t.Error("image generation must not run in chat mode")
			return nil, nil
		}},
	}
	p := newTestPipeline(d)

	res, err := p.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-1", Text: "show me a gray living room"})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.Metadata.Tools != nil {
		t.Error("chat mode turn has tool output")
	}
}

func TestProcessTurn_AgentModeEnriches(t *testing.T) {
	d := &pipelineDeps{
		store:      &mockStore{conv: storage.Conversation{ID: "conv-1", Mode: storage.ModeAgent}},
		classifier: &stubClassifier{res: intent.Result{Label: intent.DesignVisualization, Confidence: 0.95}},
		imageGen: &mockImageGen{generateFn: func(ctx context.Context, prompt, style string) ([]provider.ImageResult, error) {
			return []provider.ImageResult{{Locator: "https://img.example/1.png"}}, nil
		}},
		search: &mockSearcher{searchFn: func(ctx context.Context, query, regionHint string) ([]provider.SearchResult, error) {
			return []provider.SearchResult{{Title: "paint", URL: "https://shop.example"}}, nil
		}},
	}
	p := newTestPipeline(d)

	res, err := p.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-1", Text: "show me a gray living room"})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.Metadata.Tools == nil {
		t.Fatal("agent mode turn missing tool output")
	}
	if len(res.Metadata.Tools.Images) != 1 || len(res.Metadata.Tools.Products) != 1 {
		t.Errorf("tools = %+v", res.Metadata.Tools)
	}

	// Generated images are persisted as assistant attachments.
	rec := d.store.appended
	if len(rec.Attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(rec.Attachments))
	}
	if rec.Attachments[0].Provenance != "generated" || rec.Attachments[0].MessageID != rec.AssistantMessage.ID {
		t.Errorf("attachment = %+v", rec.Attachments[0])
	}
}

func TestProcessTurn_ToolFailureDoesNotDegradeTurn(t *testing.T) {
	d := &pipelineDeps{
		store:      &mockStore{conv: storage.Conversation{ID: "conv-1", Mode: storage.ModeAgent}},
		classifier: &stubClassifier{res: intent.Result{Label: intent.DesignVisualization, Confidence: 0.95}},
		imageGen: &mockImageGen{generateFn: func(ctx context.Context, prompt, style string) ([]provider.ImageResult, error) {
			return []provider.ImageResult{{Locator: "https://img.example/1.png"}}, nil
		}},
		search: &mockSearcher{searchFn: func(ctx context.Context, query, regionHint string) ([]provider.SearchResult, error) {
			return nil, errors.New("search quota exhausted")
		}},
	}
	p := newTestPipeline(d)

	res, err := p.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-1", Text: "show me a gray living room"})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.Metadata.Degraded {
		t.Error("tool failure must not mark the turn degraded")
	}
	if res.Metadata.Tools == nil || len(res.Metadata.Tools.Images) != 1 {
		t.Error("surviving tool output lost")
	}
	if res.Metadata.Tools != nil && len(res.Metadata.Tools.Products) != 0 {
		t.Error("failed tool produced output")
	}
}

func TestProcessTurn_GenerationFailureDegrades(t *testing.T) {
	tg := &mockTextGen{err: errors.New("backend down")}
	d := &pipelineDeps{store: &mockStore{}, textGen: tg}
	p := newTestPipeline(d)

	res, err := p.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-1", Text: "hi"})
	if err != nil {
		t.Fatalf("generation failure must not fail the turn: %v", err)
	}
	if !res.Metadata.Degraded {
		t.Error("degraded flag not set")
	}
	if res.Text != apologyText {
		t.Errorf("text = %q, want apology fallback", res.Text)
	}
	if tg.calls < 2 {
		t.Errorf("calls = %d, generation must be retried once", tg.calls)
	}
	if d.store.appended == nil {
		t.Error("degraded turn must still persist")
	}
}

func TestProcessTurn_StreamsChunks(t *testing.T) {
	d := &pipelineDeps{textGen: &mockTextGen{chunks: []string{"soft ", "gray ", "walls"}}}
	p := newTestPipeline(d)

	var streamed strings.Builder
	res, err := p.ProcessTurn(context.Background(), TurnRequest{
		ConversationID: "conv-1",
		Text:           "what color?",
		OnChunk:        func(c string) { streamed.WriteString(c) },
	})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if streamed.String() != "soft gray walls" {
		t.Errorf("streamed = %q", streamed.String())
	}
	if res.Text != streamed.String() {
		t.Error("result text differs from streamed text")
	}
}

func TestProcessTurn_SuggestionsAvoidRecentOnes(t *testing.T) {
	d := &pipelineDeps{
		store: &mockStore{assistants: []storage.Message{
			{ID: "m1", Role: "assistant", Metadata: `{"suggested_actions":[{"id":"create_diy_plan","label":"x"}]}`},
		}},
		classifier: &stubClassifier{res: intent.Result{Label: intent.DIYGuide, Confidence: 0.9}},
	}
	p := newTestPipeline(d)

	res, err := p.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-1", Text: "how do I tile a floor"})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	for _, a := range res.Metadata.SuggestedActions {
		if a.ID == "create_diy_plan" {
			t.Error("recently offered action suggested again")
		}
	}
	if len(res.Metadata.SuggestedActions) == 0 {
		t.Error("no suggestions at all")
	}
}

func TestProcessTurn_JourneyStepRecorded(t *testing.T) {
	d := &pipelineDeps{
		store:      &mockStore{conv: storage.Conversation{ID: "conv-1", Mode: storage.ModeAgent}},
		classifier: &stubClassifier{res: intent.Result{Label: intent.DesignVisualization, Confidence: 0.9}},
		imageGen: &mockImageGen{generateFn: func(ctx context.Context, prompt, style string) ([]provider.ImageResult, error) {
			return []provider.ImageResult{{Locator: "https://img.example/1.png"}}, nil
		}},
		search: &mockSearcher{searchFn: func(ctx context.Context, query, regionHint string) ([]provider.SearchResult, error) {
			return nil, nil
		}},
		linker: &passthroughLinker{stepID: "step-3"},
	}
	p := newTestPipeline(d)

	res, err := p.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-1", Text: "render my idea"})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.Metadata.JourneyStepID != "step-3" {
		t.Errorf("journey step = %q, want step-3", res.Metadata.JourneyStepID)
	}
}

func TestProcessTurn_ClassifierFailureFallsBack(t *testing.T) {
	d := &pipelineDeps{classifier: &stubClassifier{err: errors.New("classifier down")}}
	p := newTestPipeline(d)

	res, err := p.ProcessTurn(context.Background(), TurnRequest{ConversationID: "conv-1", Text: "hi"})
	if err != nil {
		t.Fatalf("ProcessTurn failed: %v", err)
	}
	if res.Metadata.Intent != string(intent.GeneralQuestion) || !res.Metadata.IntentFallback {
		t.Errorf("metadata = %+v, want general_question fallback", res.Metadata)
	}
}

func TestExtractSlots(t *testing.T) {
	tests := []struct {
		text string
		slot string
		want string
	}{
		{"my budget is $2,500", "budget", "$2,500"},
		{"somewhere around $500 - $800", "budget", "$500 - $800"},
		{"the room is 12x14 ft", "dimensions", "12x14 ft"},
		{"about 10 by 12 feet", "dimensions", "10 by 12 feet"},
		{"no numbers here", "budget", ""},
	}
	for _, tt := range tests {
		got := extractSlots(tt.text)[tt.slot]
		if got != tt.want {
			t.Errorf("extractSlots(%q)[%s] = %q, want %q", tt.text, tt.slot, got, tt.want)
		}
	}
}

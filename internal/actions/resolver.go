package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/renohq/reno/internal/blob"
	"github.com/renohq/reno/internal/docs"
	"github.com/renohq/reno/internal/provider"
	"github.com/renohq/reno/internal/storage"
)

// Outcome statuses. A needs_input outcome is not an error: the action exists
// but a prerequisite is missing, and Prompt offers to produce it.
const (
	StatusCompleted  = "completed"
	StatusNeedsInput = "needs_input"
)

// Outcome is the result of resolving one action. Exactly one of the payload
// fields is set, matching the action kind.
type Outcome struct {
	ActionID    string                      `json:"action_id"`
	Status      string                      `json:"status"`
	Prompt      string                      `json:"prompt,omitempty"`
	Text        string                      `json:"text,omitempty"`
	Attachment  *storage.Attachment         `json:"attachment,omitempty"`
	Images      []provider.ImageResult      `json:"images,omitempty"`
	Products    []provider.SearchResult     `json:"products,omitempty"`
	Contractors []provider.ContractorResult `json:"contractors,omitempty"`
	Journey     *storage.Journey            `json:"journey,omitempty"`
	Steps       []storage.JourneyStep       `json:"steps,omitempty"`
}

// ResolverStore is the conversation state the resolver reads.
type ResolverStore interface {
	GetConversation(id string) (storage.Conversation, error)
	RecentMessages(ctx context.Context, conversationID string, charBudget int) ([]storage.Message, error)
	RecentAssistantMessages(ctx context.Context, conversationID string, n int) ([]storage.Message, error)
}

// JourneyStarter creates a journey from a template.
type JourneyStarter interface {
	Start(ctx context.Context, conversationID, templateID string) (storage.Journey, []storage.JourneyStep, error)
}

// Resolver executes catalog actions against conversation state. Resolution is
// deterministic for a given state: the same action against the same
// conversation classifies the same way (execute vs needs_input) every time.
type Resolver struct {
	store    ResolverStore
	textGen  provider.TextGenerator
	imageGen provider.ImageGenerator
	search   provider.WebSearcher
	places   provider.PlacesFinder
	blobs    blob.Store
	journeys JourneyStarter

	defaultLocation string
	historyBudget   int
}

func NewResolver(store ResolverStore, textGen provider.TextGenerator, imageGen provider.ImageGenerator, search provider.WebSearcher, places provider.PlacesFinder, blobs blob.Store, journeys JourneyStarter, defaultLocation string, historyBudget int) *Resolver {
	if historyBudget <= 0 {
		historyBudget = 8000
	}
	return &Resolver{
		store:           store,
		textGen:         textGen,
		imageGen:        imageGen,
		search:          search,
		places:          places,
		blobs:           blobs,
		journeys:        journeys,
		defaultLocation: defaultLocation,
		historyBudget:   historyBudget,
	}
}

// Resolve executes actionID for the conversation. Explicit params override
// values recovered from conversation state. Unknown action ids are an error;
// a catalog action with a missing prerequisite returns a needs_input outcome
// instead.
func (r *Resolver) Resolve(ctx context.Context, conversationID, actionID string, params map[string]string) (Outcome, error) {
	if _, ok := ByID(actionID); !ok {
		return Outcome{}, fmt.Errorf("unknown action %q", actionID)
	}
	if params == nil {
		params = map[string]string{}
	}

	conv, err := r.store.GetConversation(conversationID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading conversation: %w", err)
	}
	recent, err := r.store.RecentMessages(ctx, conversationID, r.historyBudget)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading history: %w", err)
	}
	slots := SlotsFromMessages(recent)

	out := Outcome{ActionID: actionID, Status: StatusCompleted}
	switch actionID {
	case ActionExportPDF:
		return r.exportPDF(ctx, conversationID, out)
	case ActionCreateDIYPlan:
		return r.createPlan(ctx, params, recent, slots, out)
	case ActionCostEstimate:
		return r.estimateCost(ctx, params, recent, slots, out)
	case ActionFindContractors:
		return r.findContractors(ctx, params, recent, slots, out)
	case ActionShowProducts:
		return r.showProducts(ctx, params, recent, out)
	case ActionStartJourney:
		return r.startJourney(ctx, conv, params, out)
	case ActionVisualize:
		return r.visualize(ctx, params, recent, out)
	}
	return Outcome{}, fmt.Errorf("unknown action %q", actionID)
}

func (r *Resolver) exportPDF(ctx context.Context, conversationID string, out Outcome) (Outcome, error) {
	assistants, err := r.store.RecentAssistantMessages(ctx, conversationID, 20)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading history: %w", err)
	}
	plan := latestPlan(assistants)
	if plan == "" {
		out.Status = StatusNeedsInput
		out.Prompt = "I don't see a project plan in this conversation yet. Want me to create one first and then export it?"
		return out, nil
	}

	data := docs.BuildPDF("Project Plan", plan)
	locator, err := r.blobs.Put(uuid.New().String()+".pdf", data)
	if err != nil {
		return Outcome{}, fmt.Errorf("storing pdf: %w", err)
	}
	out.Text = "Here's your project plan as a PDF."
	out.Attachment = &storage.Attachment{
		ID:          uuid.New().String(),
		Kind:        "document",
		Locator:     locator,
		ContentType: "application/pdf",
		Provenance:  "generated",
		Analysis:    "{}",
	}
	return out, nil
}

func (r *Resolver) createPlan(ctx context.Context, params map[string]string, recent []storage.Message, slots map[string]string, out Outcome) (Outcome, error) {
	project := firstNonEmpty(params["project"], lastUserText(recent))
	if project == "" {
		out.Status = StatusNeedsInput
		out.Prompt = "What project would you like a step-by-step plan for?"
		return out, nil
	}

	text, err := r.textGen.Complete(ctx, []provider.ChatMessage{
		{Role: "system", Content: "You are a home improvement assistant. Write a numbered step-by-step DIY plan with a materials list and safety notes. Plain text, no markdown tables."},
		{Role: "user", Content: withSlotContext("Project: "+project, slots)},
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("generating plan: %w", err)
	}
	out.Text = text
	return out, nil
}

func (r *Resolver) estimateCost(ctx context.Context, params map[string]string, recent []storage.Message, slots map[string]string, out Outcome) (Outcome, error) {
	project := firstNonEmpty(params["project"], lastUserText(recent))
	if project == "" {
		out.Status = StatusNeedsInput
		out.Prompt = "What project should I estimate the cost for?"
		return out, nil
	}

	text, err := r.textGen.Complete(ctx, []provider.ChatMessage{
		{Role: "system", Content: "You are a home improvement assistant. Give a realistic cost range for the project, broken down by materials and labor, and state the assumptions."},
		{Role: "user", Content: withSlotContext("Project: "+project, slots)},
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("generating estimate: %w", err)
	}
	out.Text = text
	return out, nil
}

func (r *Resolver) findContractors(ctx context.Context, params map[string]string, recent []storage.Message, slots map[string]string, out Outcome) (Outcome, error) {
	jobType := firstNonEmpty(params["job_type"], DetectJobType(conversationText(recent)), "general contractor")
	location := firstNonEmpty(params["location"], slots["location"], r.defaultLocation)
	if location == "" {
		out.Status = StatusNeedsInput
		out.Prompt = "What city or area should I search for contractors in?"
		return out, nil
	}

	results, err := r.places.FindNearby(ctx, jobType, location)
	if err != nil {
		return Outcome{}, fmt.Errorf("finding contractors: %w", err)
	}
	if len(results) == 0 {
		out.Text = fmt.Sprintf("I couldn't find any %s listings near %s. Try widening the area?", jobType, location)
		return out, nil
	}
	out.Text = fmt.Sprintf("Found %d %s options near %s.", len(results), jobType, location)
	out.Contractors = results
	return out, nil
}

func (r *Resolver) showProducts(ctx context.Context, params map[string]string, recent []storage.Message, out Outcome) (Outcome, error) {
	query := firstNonEmpty(params["query"], lastUserText(recent))
	if query == "" {
		out.Status = StatusNeedsInput
		out.Prompt = "What product are you looking for?"
		return out, nil
	}

	results, err := r.search.Search(ctx, query+" buy", "")
	if err != nil {
		return Outcome{}, fmt.Errorf("searching products: %w", err)
	}
	out.Text = fmt.Sprintf("Here's what I found for %q.", query)
	out.Products = results
	return out, nil
}

func (r *Resolver) startJourney(ctx context.Context, conv storage.Conversation, params map[string]string, out Outcome) (Outcome, error) {
	template := params["template"]
	if template == "" {
		if conv.Scenario == storage.ScenarioContractorQuotes {
			template = "contractor_quotes"
		} else {
			template = "diy_project_plan"
		}
	}

	j, steps, err := r.journeys.Start(ctx, conv.ID, template)
	if errors.Is(err, storage.ErrActiveJourneyExists) {
		out.Text = "This conversation already has an active project journey."
		return out, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("starting journey: %w", err)
	}
	out.Text = fmt.Sprintf("Started tracking this project. First step: %s.", steps[0].Title)
	out.Journey = &j
	out.Steps = steps
	return out, nil
}

func (r *Resolver) visualize(ctx context.Context, params map[string]string, recent []storage.Message, out Outcome) (Outcome, error) {
	description := firstNonEmpty(params["description"], lastUserText(recent))
	if description == "" {
		out.Status = StatusNeedsInput
		out.Prompt = "Describe the look you're going for and I'll render it."
		return out, nil
	}

	images, err := r.imageGen.GenerateImage(ctx, description, params["style"])
	if err != nil {
		return Outcome{}, fmt.Errorf("generating image: %w", err)
	}
	out.Text = "Here's a rendering of that."
	out.Images = images
	return out, nil
}

// latestPlan finds the most recent assistant message that was a DIY plan,
// either generated during a turn classified diy_guide or produced by a
// create_diy_plan resolution. Messages arrive newest first.
func latestPlan(assistants []storage.Message) string {
	for _, m := range assistants {
		meta := parseMeta(m.Metadata)
		if meta.Intent == "diy_guide" || meta.ResolvedAction == ActionCreateDIYPlan {
			return m.Content
		}
	}
	return ""
}

func parseMeta(raw string) turnMeta {
	var meta turnMeta
	_ = json.Unmarshal([]byte(raw), &meta)
	return meta
}

// jobTypeKeywords maps trade vocabulary to the search term used for
// contractor lookup. First match in conversation text wins.
var jobTypeKeywords = []struct {
	needle string
	job    string
}{
	{"plumb", "plumber"},
	{"leak", "plumber"},
	{"electri", "electrician"},
	{"wiring", "electrician"},
	{"roof", "roofer"},
	{"paint", "painter"},
	{"floor", "flooring contractor"},
	{"tile", "tile contractor"},
	{"hvac", "HVAC contractor"},
	{"furnace", "HVAC contractor"},
	{"air condition", "HVAC contractor"},
	{"kitchen", "kitchen remodeler"},
	{"bathroom", "bathroom remodeler"},
	{"deck", "deck builder"},
	{"fence", "fencing contractor"},
	{"landscap", "landscaper"},
	{"drywall", "drywall contractor"},
}

// DetectJobType maps free text to a contractor search term, or "" when no
// trade vocabulary appears.
func DetectJobType(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range jobTypeKeywords {
		if strings.Contains(lower, kw.needle) {
			return kw.job
		}
	}
	return ""
}

func lastUserText(msgs []storage.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" && strings.TrimSpace(msgs[i].Content) != "" {
			return msgs[i].Content
		}
	}
	return ""
}

func conversationText(msgs []storage.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role == "user" {
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func withSlotContext(prompt string, slots map[string]string) string {
	var parts []string
	for _, k := range []string{"dimensions", "budget", "materials", "style", "skill_level", "timeline"} {
		if v := slots[k]; v != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", k, v))
		}
	}
	if len(parts) == 0 {
		return prompt
	}
	return prompt + "\nKnown details: " + strings.Join(parts, "; ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

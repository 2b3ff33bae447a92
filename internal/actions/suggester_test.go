package actions

import (
	"testing"

	"github.com/renohq/reno/internal/intent"
	"github.com/renohq/reno/internal/storage"
)

func metaMsg(id, metadata string) storage.Message {
	return storage.Message{ID: id, Role: "assistant", Metadata: metadata}
}

func TestWindowFromMessages(t *testing.T) {
	msgs := []storage.Message{
		metaMsg("m3", `{"suggested_actions":[{"id":"export_pdf","label":"x"}],"suggested_questions":[{"id":"q_budget"}]}`),
		metaMsg("m2", `not json at all`),
		metaMsg("m1", `{"suggested_actions":[{"id":"create_diy_plan","label":"x"}]}`),
	}

	w := WindowFromMessages(msgs, 4)
	if !w.actions[ActionExportPDF] || !w.actions[ActionCreateDIYPlan] {
		t.Error("window missing offered actions")
	}
	if !w.questions["q_budget"] {
		t.Error("window missing offered question")
	}

	// Only the newest k messages count.
	w = WindowFromMessages(msgs, 1)
	if w.actions[ActionCreateDIYPlan] {
		t.Error("message outside the window leaked in")
	}
}

func TestSuggestActions_RanksIntentCandidatesFirst(t *testing.T) {
	s := NewSuggester(3)
	got := s.SuggestActions(intent.CostEstimate, WindowFromMessages(nil, 4))
	if len(got) != 3 {
		t.Fatalf("got %d suggestions, want 3", len(got))
	}
	if got[0].ID != ActionCostEstimate {
		t.Errorf("first suggestion = %q, want %q", got[0].ID, ActionCostEstimate)
	}
}

func TestSuggestActions_WindowFilters(t *testing.T) {
	s := NewSuggester(3)
	w := WindowFromMessages([]storage.Message{
		metaMsg("m1", `{"suggested_actions":[{"id":"get_cost_estimate"},{"id":"create_diy_plan"}]}`),
	}, 4)

	got := s.SuggestActions(intent.CostEstimate, w)
	for _, a := range got {
		if a.ID == ActionCostEstimate || a.ID == ActionCreateDIYPlan {
			t.Errorf("recently offered action %q suggested again", a.ID)
		}
	}
	if len(got) == 0 {
		t.Fatal("expected fallback suggestions")
	}
}

func TestSuggestActions_DefaultsAlsoWindowFiltered(t *testing.T) {
	s := NewSuggester(3)
	// Window out every candidate for pdf_export_request plus the first default.
	w := WindowFromMessages([]storage.Message{
		metaMsg("m1", `{"suggested_actions":[{"id":"export_pdf"},{"id":"create_diy_plan"},{"id":"start_journey"}]}`),
	}, 4)

	got := s.SuggestActions(intent.PDFExportRequest, w)
	if len(got) == 0 {
		t.Fatal("expected default suggestions")
	}
	for _, a := range got {
		if w.actions[a.ID] {
			t.Errorf("default suggestion %q was in the window", a.ID)
		}
	}
}

func TestSuggestActions_BothPathwaysOffered(t *testing.T) {
	s := NewSuggester(3)
	got := s.SuggestActions(intent.DIYGuide, WindowFromMessages(nil, 4))

	var hasDIY, hasPro bool
	for _, a := range got {
		switch a.ID {
		case ActionCreateDIYPlan:
			hasDIY = true
		case ActionFindContractors:
			hasPro = true
		}
	}
	if !hasDIY || !hasPro {
		t.Errorf("want both self-serve and professional pathways, got %v", got)
	}
}

func TestSuggestQuestions_SkipsFilledSlots(t *testing.T) {
	s := NewSuggester(3)
	slots := map[string]string{"budget": "$2000"}

	got := s.SuggestQuestions(intent.CostEstimate, slots, WindowFromMessages(nil, 4))
	for _, q := range got {
		if q.Slot == "budget" {
			t.Error("asked about a slot the user already filled")
		}
	}
	if len(got) == 0 {
		t.Fatal("expected remaining questions")
	}
}

func TestSuggestQuestions_FallsBackToDefaults(t *testing.T) {
	s := NewSuggester(3)
	// journey_progress has no questions of its own.
	got := s.SuggestQuestions(intent.JourneyProgress, nil, WindowFromMessages(nil, 4))
	if len(got) == 0 {
		t.Fatal("expected default questions")
	}
}

func TestSlotsFromMessages_NewerWins(t *testing.T) {
	// Chronological, as RecentMessages returns history: m1 is the older turn.
	msgs := []storage.Message{
		metaMsg("m1", `{"slots":{"budget":"$1000","style":"modern"}}`),
		metaMsg("m2", `{"slots":{"budget":"$3000"}}`),
	}
	slots := SlotsFromMessages(msgs)
	if slots["budget"] != "$3000" {
		t.Errorf("budget = %q, want the revised value from the later turn", slots["budget"])
	}
	if slots["style"] != "modern" {
		t.Errorf("style = %q, slots without a newer value must persist", slots["style"])
	}
}

package actions

import (
	"encoding/json"
	"log/slog"

	"github.com/renohq/reno/internal/intent"
	"github.com/renohq/reno/internal/storage"
)

// turnMeta is the subset of per-message metadata the suggester and resolver
// read back. The pipeline writes the full record; unknown keys are ignored.
type turnMeta struct {
	Intent             string            `json:"intent"`
	SuggestedActions   []Suggestion      `json:"suggested_actions,omitempty"`
	SuggestedQuestions []Question        `json:"suggested_questions,omitempty"`
	Slots              map[string]string `json:"slots,omitempty"`
	ResolvedAction     string            `json:"resolved_action,omitempty"`
}

// Suggestion is an offered follow-up action as surfaced to the client.
type Suggestion struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Window records which action and question ids were offered in the recent
// assistant turns, so the next turn doesn't repeat them.
type Window struct {
	actions   map[string]bool
	questions map[string]bool
}

// WindowFromMessages builds the anti-repetition window from the last k
// assistant messages (newest first, as returned by the store). Messages with
// unreadable metadata are skipped.
func WindowFromMessages(msgs []storage.Message, k int) Window {
	w := Window{actions: map[string]bool{}, questions: map[string]bool{}}
	if len(msgs) > k {
		msgs = msgs[:k]
	}
	for _, m := range msgs {
		var meta turnMeta
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
			slog.Warn("unreadable turn metadata, excluded from suggestion window", "message_id", m.ID, "error", err)
			continue
		}
		for _, a := range meta.SuggestedActions {
			w.actions[a.ID] = true
		}
		for _, q := range meta.SuggestedQuestions {
			w.questions[q.ID] = true
		}
	}
	return w
}

// SlotsFromMessages merges the slot maps of recent messages. Input is
// chronological, as RecentMessages returns it, so later values overwrite
// earlier ones and the newest turn wins.
func SlotsFromMessages(msgs []storage.Message) map[string]string {
	slots := map[string]string{}
	for _, m := range msgs {
		var meta turnMeta
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
			continue
		}
		for k, v := range meta.Slots {
			slots[k] = v
		}
	}
	return slots
}

// Suggester picks follow-up actions and clarifying questions for a turn.
type Suggester struct {
	max int // per-kind cap
}

func NewSuggester(max int) *Suggester {
	if max <= 0 {
		max = 3
	}
	return &Suggester{max: max}
}

// SuggestActions returns up to max actions for the intent, skipping anything
// offered within the window. When the intent's candidates are exhausted the
// generic defaults fill in, filtered by the same window.
func (s *Suggester) SuggestActions(label intent.Label, window Window) []Suggestion {
	out := s.pickActions(candidateActions[label], window, nil)
	if len(out) == 0 {
		out = s.pickActions(defaultActions, window, nil)
	} else if len(out) < s.max {
		out = s.pickActions(defaultActions, window, out)
	}
	return out
}

func (s *Suggester) pickActions(ids []string, window Window, out []Suggestion) []Suggestion {
	seen := map[string]bool{}
	for _, a := range out {
		seen[a.ID] = true
	}
	for _, id := range ids {
		if len(out) >= s.max {
			break
		}
		if window.actions[id] || seen[id] {
			continue
		}
		a, ok := ByID(id)
		if !ok {
			continue
		}
		out = append(out, Suggestion{ID: a.ID, Label: a.Label})
		seen[id] = true
	}
	return out
}

// SuggestQuestions returns up to max clarifying questions for the intent,
// skipping questions whose slot is already filled and anything asked within
// the window.
func (s *Suggester) SuggestQuestions(label intent.Label, slots map[string]string, window Window) []Question {
	out := s.pickQuestions(candidateQuestions[label], slots, window, nil)
	if len(out) == 0 {
		out = s.pickQuestions(defaultQuestions, slots, window, nil)
	}
	return out
}

func (s *Suggester) pickQuestions(qs []Question, slots map[string]string, window Window, out []Question) []Question {
	seen := map[string]bool{}
	for _, q := range out {
		seen[q.ID] = true
	}
	for _, q := range qs {
		if len(out) >= s.max {
			break
		}
		if window.questions[q.ID] || seen[q.ID] || slots[q.Slot] != "" {
			continue
		}
		out = append(out, q)
		seen[q.ID] = true
	}
	return out
}

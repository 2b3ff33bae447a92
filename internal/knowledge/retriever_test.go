package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/renohq/reno/internal/storage"
)

type mockSource struct {
	snippets []storage.Snippet
	err      error
}

func (m *mockSource) SnippetsForScope(ctx context.Context, homeID, roomID string, limit int) ([]storage.Snippet, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snippets, nil
}

func TestQuery_RanksByOverlap(t *testing.T) {
	src := &mockSource{snippets: []storage.Snippet{
		{ID: "s1", Title: "Kitchen", Content: "the kitchen cabinets are oak with brass handles"},
		{ID: "s2", Title: "Paint", Content: "living room painted eggshell white last spring"},
		{ID: "s3", Title: "Roof", Content: "roof replaced in 2019"},
	}}

	r := NewRetriever(src)
	got := r.Query(context.Background(), "home-1", "", "what paint is in the living room", 5)
	if len(got) == 0 {
		t.Fatal("expected results")
	}
	if got[0].ID != "s2" {
		t.Errorf("top result = %s, want s2", got[0].ID)
	}
	for _, sn := range got {
		if sn.Score <= 0 {
			t.Errorf("snippet %s has non-positive score", sn.ID)
		}
	}
}

func TestQuery_EmptyIndexIsNotAnError(t *testing.T) {
	r := NewRetriever(&mockSource{})
	got := r.Query(context.Background(), "home-1", "", "anything at all", 5)
	if got != nil {
		t.Errorf("got %v, want nil for empty index", got)
	}
}

func TestQuery_SourceFailureAbsorbed(t *testing.T) {
	r := NewRetriever(&mockSource{err: errors.New("disk gone")})
	got := r.Query(context.Background(), "home-1", "", "anything", 5)
	if got != nil {
		t.Errorf("got %v, want nil when source fails", got)
	}
}

func TestQuery_LimitApplied(t *testing.T) {
	var snippets []storage.Snippet
	for i := 0; i < 10; i++ {
		snippets = append(snippets, storage.Snippet{ID: string(rune('a' + i)), Content: "paint paint paint"})
	}
	r := NewRetriever(&mockSource{snippets: snippets})

	got := r.Query(context.Background(), "", "", "paint", 3)
	if len(got) != 3 {
		t.Errorf("got %d results, want 3", len(got))
	}
}

func TestTokenize(t *testing.T) {
	terms := tokenize("Paint the Living-Room, please!")
	for _, want := range []string{"paint", "living", "room", "please"} {
		if !terms[want] {
			t.Errorf("missing term %q", want)
		}
	}
	if terms["the"] {
		t.Error("short terms should be dropped")
	}
}

package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/renohq/reno/internal/provider"
)

type mockGenerator struct {
	completeFn func(ctx context.Context, messages []provider.ChatMessage) (string, error)
}

func (m *mockGenerator) Complete(ctx context.Context, messages []provider.ChatMessage) (string, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, messages)
	}
	return "", nil
}

func (m *mockGenerator) Stream(ctx context.Context, messages []provider.ChatMessage) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)
	close(chunks)
	close(errs)
	return chunks, errs
}

func TestLLMClassifier_ValidLabel(t *testing.T) {
	gen := &mockGenerator{
		completeFn: func(ctx context.Context, messages []provider.ChatMessage) (string, error) {
			return `{"intent":"design_visualization","confidence":0.92}`, nil
		},
	}

	c := NewLLMClassifier(gen)
	res, err := c.Classify(context.Background(), "paint my living room soft gray", nil, Scope{})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if res.Label != DesignVisualization {
		t.Errorf("label = %q, want design_visualization", res.Label)
	}
	if res.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", res.Confidence)
	}
	if res.Fallback {
		t.Error("primary result must not be marked fallback")
	}
}

func TestLLMClassifier_ToleratesWrappedJSON(t *testing.T) {
	gen := &mockGenerator{
		completeFn: func(ctx context.Context, messages []provider.ChatMessage) (string, error) {
			return "Sure! Here you go:\n```json\n{\"intent\":\"cost_estimate\",\"confidence\":0.8}\n```", nil
		},
	}

	c := NewLLMClassifier(gen)
	res, err := c.Classify(context.Background(), "how much would this cost", nil, Scope{})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if res.Label != CostEstimate {
		t.Errorf("label = %q, want cost_estimate", res.Label)
	}
}

func TestLLMClassifier_RejectsOutOfTaxonomy(t *testing.T) {
	gen := &mockGenerator{
		completeFn: func(ctx context.Context, messages []provider.ChatMessage) (string, error) {
			return `{"intent":"order_pizza","confidence":0.99}`, nil
		},
	}

	c := NewLLMClassifier(gen)
	if _, err := c.Classify(context.Background(), "anything", nil, Scope{}); err == nil {
		t.Fatal("expected error for out-of-taxonomy label")
	}
}

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		text string
		want Label
	}{
		{"How do I install a ceiling fan?", DIYGuide},
		{"Show me what it would look like in blue", DesignVisualization},
		{"how much would a new deck cost", CostEstimate},
		{"I need a contractor for the roof", ContractorQuotes},
		{"export my plan as a PDF please", PDFExportRequest},
		{"which brand of primer should I buy", ProductSearch},
		{"what's the next step in my project", JourneyProgress},
		{"tell me about your favorite color", GeneralQuestion},
	}

	c := KeywordClassifier{}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res, err := c.Classify(context.Background(), tt.text, nil, Scope{})
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if res.Label != tt.want {
				t.Errorf("label = %q, want %q", res.Label, tt.want)
			}
			if !res.Fallback {
				t.Error("keyword results must be marked fallback")
			}
		})
	}
}

func TestFallback_UsesPrimaryWhenHealthy(t *testing.T) {
	gen := &mockGenerator{
		completeFn: func(ctx context.Context, messages []provider.ChatMessage) (string, error) {
			return `{"intent":"diy_guide","confidence":0.9}`, nil
		},
	}
	f := NewFallback(NewLLMClassifier(gen), KeywordClassifier{})

	res, err := f.Classify(context.Background(), "how do I tile a backsplash", nil, Scope{})
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if res.Label != DIYGuide || res.Fallback {
		t.Errorf("got %+v, want primary diy_guide", res)
	}
}

func TestFallback_DegradesToKeywords(t *testing.T) {
	gen := &mockGenerator{
		completeFn: func(ctx context.Context, messages []provider.ChatMessage) (string, error) {
			return "", errors.New("provider down")
		},
	}
	f := NewFallback(NewLLMClassifier(gen), KeywordClassifier{})

	res, err := f.Classify(context.Background(), "find me a contractor", nil, Scope{})
	if err != nil {
		t.Fatalf("Classify must never fail, got: %v", err)
	}
	if res.Label != ContractorQuotes {
		t.Errorf("label = %q, want contractor_quotes", res.Label)
	}
	if !res.Fallback {
		t.Error("fallback result must be marked")
	}
}

func TestBuildPrompt_IncludesScopeAndTailOfHistory(t *testing.T) {
	history := make([]provider.ChatMessage, 10)
	for i := range history {
		history[i] = provider.ChatMessage{Role: "user", Content: "old"}
	}

	msgs := BuildPrompt("new question", history, Scope{HomeID: "home-1", RoomID: "kitchen"})
	if msgs[0].Role != "system" {
		t.Fatalf("first message role = %q, want system", msgs[0].Role)
	}
	if !strings.Contains(msgs[0].Content, "home-1") || !strings.Contains(msgs[0].Content, "kitchen") {
		t.Error("system prompt missing scope")
	}
	// system + 6 history + query
	if len(msgs) != 8 {
		t.Errorf("got %d messages, want 8 (history capped)", len(msgs))
	}
	if msgs[len(msgs)-1].Content != "new question" {
		t.Error("query must be last")
	}
}

// Package intent classifies a user turn into a closed taxonomy. The primary
// classifier asks the text generation capability for a constrained JSON
// label; a deterministic keyword classifier backs it up, so classification
// never fails a turn.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/renohq/reno/internal/provider"
)

const classifyTimeout = 3 * time.Second

// Label is one entry of the closed intent taxonomy.
type Label string

const (
	DesignVisualization Label = "design_visualization"
	DIYGuide            Label = "diy_guide"
	CostEstimate        Label = "cost_estimate"
	ContractorQuotes    Label = "contractor_quotes"
	ProductSearch       Label = "product_search"
	PDFExportRequest    Label = "pdf_export_request"
	JourneyProgress     Label = "journey_progress"
	GeneralQuestion     Label = "general_question"
)

// Labels lists the full taxonomy in a stable order.
func Labels() []Label {
	return []Label{
		DesignVisualization, DIYGuide, CostEstimate, ContractorQuotes,
		ProductSearch, PDFExportRequest, JourneyProgress, GeneralQuestion,
	}
}

func validLabel(l Label) bool {
	for _, known := range Labels() {
		if l == known {
			return true
		}
	}
	return false
}

// Result is a classification outcome.
type Result struct {
	Label      Label
	Confidence float64
	// Fallback is true when the deterministic classifier produced the label
	// because the primary path failed or returned an out-of-taxonomy label.
	Fallback bool
}

// Scope carries the home/room identifiers a conversation is about, if any.
type Scope struct {
	HomeID string
	RoomID string
}

// Classifier maps a turn to an intent label.
type Classifier interface {
	Classify(ctx context.Context, text string, history []provider.ChatMessage, scope Scope) (Result, error)
}

// LLMClassifier asks the text generation capability for a label, constrained
// to the taxonomy via the prompt and validated on the way back.
type LLMClassifier struct {
	generator provider.TextGenerator
}

func NewLLMClassifier(generator provider.TextGenerator) *LLMClassifier {
	return &LLMClassifier{generator: generator}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string, history []provider.ChatMessage, scope Scope) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	raw, err := c.generator.Complete(ctx, BuildPrompt(text, history, scope))
	if err != nil {
		return Result{}, fmt.Errorf("classification call: %w", err)
	}

	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return Result{}, fmt.Errorf("parsing classification %q: %w", raw, err)
	}

	label := Label(parsed.Intent)
	if !validLabel(label) {
		return Result{}, fmt.Errorf("out-of-taxonomy label %q", parsed.Intent)
	}
	conf := parsed.Confidence
	if conf <= 0 || conf > 1 {
		conf = 0.5
	}
	return Result{Label: label, Confidence: conf}, nil
}

// extractJSON returns the first {...} object in s, tolerating models that
// wrap their answer in prose or code fences.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// KeywordClassifier is the deterministic fallback: substring heuristics over
// the raw text. Rules are checked in order; the first hit wins.
type KeywordClassifier struct{}

var keywordRules = []struct {
	label    Label
	keywords []string
}{
	{PDFExportRequest, []string{"pdf", "export", "download the plan", "print the plan"}},
	{ContractorQuotes, []string{"contractor", "quote", "hire", "professional", "someone to do"}},
	{CostEstimate, []string{"cost", "price", "budget", "how much", "estimate"}},
	{DesignVisualization, []string{"visualize", "show me", "what would it look like", "render", "mockup", "paint my"}},
	{JourneyProgress, []string{"next step", "progress", "my project", "journey"}},
	{ProductSearch, []string{"buy", "product", "where can i get", "recommend a", "which brand"}},
	{DIYGuide, []string{"how do i", "how to", "diy", "myself", "steps to", "install", "tutorial"}},
}

func (KeywordClassifier) Classify(_ context.Context, text string, _ []provider.ChatMessage, _ Scope) (Result, error) {
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return Result{Label: rule.label, Confidence: 0.3, Fallback: true}, nil
			}
		}
	}
	return Result{Label: GeneralQuestion, Confidence: 0.1, Fallback: true}, nil
}

// Fallback combines a primary and a fallback classifier: the fallback runs
// only when the primary errors. The fallback itself must not fail.
type Fallback struct {
	Primary   Classifier
	Secondary Classifier
}

func NewFallback(primary, secondary Classifier) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary}
}

func (f *Fallback) Classify(ctx context.Context, text string, history []provider.ChatMessage, scope Scope) (Result, error) {
	res, err := f.Primary.Classify(ctx, text, history, scope)
	if err == nil {
		return res, nil
	}
	slog.Warn("primary intent classification failed, using fallback", "error", err)

	res, err = f.Secondary.Classify(ctx, text, history, scope)
	if err != nil {
		// The deterministic classifier has no failure mode, but guard anyway.
		return Result{Label: GeneralQuestion, Confidence: 0.1, Fallback: true}, nil
	}
	res.Fallback = true
	return res, nil
}

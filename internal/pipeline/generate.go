package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/renohq/reno/internal/knowledge"
	"github.com/renohq/reno/internal/provider"
	"github.com/renohq/reno/internal/storage"
)

const (
	generateRetryBackoff = time.Second

	apologyText = "Sorry, I'm having trouble answering right now. Please try again in a moment."

	basePrompt = "You are a friendly, practical home improvement assistant. Give concrete, actionable advice. When a question is ambiguous, ask one clarifying question instead of guessing."
)

var personaLines = map[storage.Persona]string{
	storage.PersonaHomeowner:  "The user is a homeowner. Avoid trade jargon and explain terms when you use them.",
	storage.PersonaDIYWorker:  "The user does their own work. Be specific about tools, materials, and technique.",
	storage.PersonaContractor: "The user is a professional contractor. Be precise and skip the basics.",
}

var scenarioLines = map[storage.Scenario]string{
	storage.ScenarioDIYProjectPlan:   "This conversation is about planning and executing a DIY project. Keep answers oriented toward the plan.",
	storage.ScenarioContractorQuotes: "This conversation is about hiring a contractor. Keep answers oriented toward scoping the job and comparing quotes.",
}

// buildPrompt assembles the generation messages: system preamble with persona
// and scenario framing, retrieved home context, attachment analyses, then the
// conversation history ending with the current user turn.
func buildPrompt(conv storage.Conversation, snippets []knowledge.Snippet, analyses []string, history []storage.Message, userText string) []provider.ChatMessage {
	var sys strings.Builder
	sys.WriteString(basePrompt)
	if line := personaLines[conv.Persona]; line != "" {
		sys.WriteString("\n")
		sys.WriteString(line)
	}
	if line := scenarioLines[conv.Scenario]; line != "" {
		sys.WriteString("\n")
		sys.WriteString(line)
	}
	if len(snippets) > 0 {
		sys.WriteString("\n\nWhat you know about this home:")
		for _, sn := range snippets {
			fmt.Fprintf(&sys, "\n- %s: %s", sn.Title, sn.Content)
		}
	}
	if len(analyses) > 0 {
		sys.WriteString("\n\nThe user attached files to this turn:")
		for _, a := range analyses {
			fmt.Fprintf(&sys, "\n- %s", a)
		}
	}

	msgs := []provider.ChatMessage{{Role: "system", Content: sys.String()}}
	for _, m := range history {
		msgs = append(msgs, provider.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return append(msgs, provider.ChatMessage{Role: "user", Content: userText})
}

// generate streams the assistant reply, forwarding chunks to onChunk when
// set. A failed generation is retried once; if the retry fails too, or
// chunks were already forwarded, the apology fallback is returned with
// degraded=true. The apology is always forwarded as a final chunk so the
// streamed view ends with the text that gets persisted. The turn itself
// never fails here.
func (p *Pipeline) generate(ctx context.Context, msgs []provider.ChatMessage, onChunk func(string)) (string, bool) {
	text, err := p.streamOnce(ctx, msgs, onChunk)
	if err == nil {
		return text, false
	}
	slog.Warn("generation failed", "error", err)

	// Retrying after chunks reached the client would duplicate text.
	canRetry := onChunk == nil || text == ""
	if canRetry && ctx.Err() == nil {
		select {
		case <-time.After(generateRetryBackoff):
		case <-ctx.Done():
		}
		if ctx.Err() == nil {
			retried, rerr := p.streamOnce(ctx, msgs, onChunk)
			if rerr == nil {
				return retried, false
			}
			slog.Warn("generation retry failed", "error", rerr)
		}
	}

	if onChunk != nil {
		onChunk(apologyText)
	}
	return apologyText, true
}

func (p *Pipeline) streamOnce(ctx context.Context, msgs []provider.ChatMessage, onChunk func(string)) (string, error) {
	chunks, errs := p.textGen.Stream(ctx, msgs)
	var b strings.Builder
	for chunk := range chunks {
		b.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	if err := <-errs; err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

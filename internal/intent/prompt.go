package intent

import (
	"fmt"
	"strings"

	"github.com/renohq/reno/internal/provider"
)

const systemPromptTemplate = `You are an intent classification engine for a home-improvement assistant. Analyze the user's message and conversation history. Your output must be ONLY a single valid JSON object of the form {"intent": "<label>", "confidence": <0..1>}. Do not include any other text, prose, or markdown.

Intent labels:
- "design_visualization": user wants to see what a change would look like
- "diy_guide": user wants step-by-step instructions to do work themselves
- "cost_estimate": user asks what something would cost
- "contractor_quotes": user wants to find or hire a professional
- "product_search": user wants products, materials, or tools
- "pdf_export_request": user wants a document/PDF export of a plan
- "journey_progress": user asks about their tracked project's steps or status
- "general_question": anything else

Rules:
- Pick exactly one label from the list above.
- confidence reflects how clearly the message matches the label.`

// BuildPrompt constructs the chat messages for intent classification.
func BuildPrompt(query string, history []provider.ChatMessage, scope Scope) []provider.ChatMessage {
	var sb strings.Builder
	sb.WriteString(systemPromptTemplate)

	if scope.HomeID != "" {
		fmt.Fprintf(&sb, "\n\n[Scope]\nThe conversation is about home %s", scope.HomeID)
		if scope.RoomID != "" {
			fmt.Fprintf(&sb, ", room %s", scope.RoomID)
		}
		sb.WriteString(".")
	}

	messages := []provider.ChatMessage{
		{Role: "system", Content: sb.String()},
	}

	// Only the tail of history matters for disambiguation.
	const maxHistory = 6
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	messages = append(messages, history...)

	messages = append(messages, provider.ChatMessage{
		Role:    "user",
		Content: query,
	})

	return messages
}

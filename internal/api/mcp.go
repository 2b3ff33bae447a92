package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/renohq/reno/internal/actions"
	"github.com/renohq/reno/internal/pipeline"
	"github.com/renohq/reno/internal/storage"
)

// MCPDeps holds dependencies for the MCP server. It reuses the same pipeline
// and resolver as the HTTP API, so MCP turns behave identically.
type MCPDeps struct {
	Store    *storage.Store
	Pipeline *pipeline.Pipeline
	Resolver *actions.Resolver
}

// NewMCPServer creates an MCP server exposing the assistant to agent hosts.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"reno",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("reno — home improvement assistant: conversational turns, follow-up actions, and project journeys."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("process_turn",
			mcp.WithDescription("Send one user turn to a conversation and get the assistant's reply with suggested follow-ups."),
			mcp.WithString("conversation_id", mcp.Description("Target conversation"), mcp.Required()),
			mcp.WithString("text", mcp.Description("The user's message"), mcp.Required()),
		),
		mcpProcessTurn(deps),
	)

	s.AddTool(
		mcp.NewTool("resolve_action",
			mcp.WithDescription("Execute a suggested follow-up action (create_diy_plan, export_pdf, get_cost_estimate, find_contractors, show_products, start_journey, visualize_design)."),
			mcp.WithString("conversation_id", mcp.Description("Target conversation"), mcp.Required()),
			mcp.WithString("action_id", mcp.Description("Catalog action id"), mcp.Required()),
			mcp.WithString("params", mcp.Description("Optional JSON object of parameter overrides")),
		),
		mcpResolveAction(deps),
	)

	s.AddTool(
		mcp.NewTool("start_journey",
			mcp.WithDescription("Start a guided project journey (diy_project_plan or contractor_quotes) for a conversation."),
			mcp.WithString("conversation_id", mcp.Description("Target conversation"), mcp.Required()),
			mcp.WithString("template", mcp.Description("Journey template id, defaults to the conversation's scenario")),
		),
		mcpStartJourney(deps),
	)

	s.AddTool(
		mcp.NewTool("add_home_fact",
			mcp.WithDescription("Store a fact about the user's home for retrieval in later turns."),
			mcp.WithString("content", mcp.Description("The fact to store"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Short title")),
			mcp.WithString("home_id", mcp.Description("Home scope")),
			mcp.WithString("room_id", mcp.Description("Room scope")),
		),
		mcpAddHomeFact(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"reno://conversations",
			"Recent Conversations",
			mcp.WithResourceDescription("Last 10 conversations with their setup"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceConversations(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"reno://journeys",
			"Active Journeys",
			mcp.WithResourceDescription("Active project journeys across recent conversations, with step progress"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceJourneys(deps),
	)

	return s
}

func mcpProcessTurn(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conversationID, err := req.RequireString("conversation_id")
		if err != nil {
			return mcpError("conversation_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		res, err := deps.Pipeline.ProcessTurn(ctx, pipeline.TurnRequest{
			ConversationID: conversationID,
			Text:           text,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("turn failed: %v", err)), nil
		}

		b, err := json.Marshal(turnResponse(res))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResolveAction(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conversationID, err := req.RequireString("conversation_id")
		if err != nil {
			return mcpError("conversation_id is required"), nil
		}
		actionID, err := req.RequireString("action_id")
		if err != nil {
			return mcpError("action_id is required"), nil
		}

		var params map[string]string
		if raw := req.GetString("params", ""); raw != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				return mcpError(fmt.Sprintf("invalid params JSON: %v", err)), nil
			}
		}

		out, err := deps.Resolver.Resolve(ctx, conversationID, actionID, params)
		if err != nil {
			return mcpError(fmt.Sprintf("action failed: %v", err)), nil
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal outcome: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpStartJourney(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conversationID, err := req.RequireString("conversation_id")
		if err != nil {
			return mcpError("conversation_id is required"), nil
		}

		params := map[string]string{}
		if tmpl := req.GetString("template", ""); tmpl != "" {
			params["template"] = tmpl
		}

		out, err := deps.Resolver.Resolve(ctx, conversationID, actions.ActionStartJourney, params)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start journey: %v", err)), nil
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal outcome: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddHomeFact(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		sn := storage.Snippet{
			ID:        uuid.New().String(),
			HomeID:    req.GetString("home_id", ""),
			RoomID:    req.GetString("room_id", ""),
			Title:     req.GetString("title", ""),
			Content:   content,
			Tags:      "[]",
			CreatedAt: time.Now().UTC(),
		}
		if err := deps.Store.SaveSnippet(sn); err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Stored home fact %s", sn.ID)), nil
	}
}

func mcpResourceConversations(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		convs, err := deps.Store.ListConversations(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}

		type convSummary struct {
			ID        string `json:"id"`
			Persona   string `json:"persona"`
			Scenario  string `json:"scenario"`
			Mode      string `json:"mode"`
			Status    string `json:"status"`
			UpdatedAt string `json:"updated_at"`
			LastTurn  string `json:"last_turn,omitempty"`
		}

		summaries := make([]convSummary, len(convs))
		for i, c := range convs {
			summaries[i] = convSummary{
				ID:        c.ID,
				Persona:   string(c.Persona),
				Scenario:  string(c.Scenario),
				Mode:      string(c.Mode),
				Status:    c.Status,
				UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
			}
			msgs, err := deps.Store.RecentAssistantMessages(ctx, c.ID, 1)
			if err != nil || len(msgs) == 0 {
				continue
			}
			last := msgs[0].Content
			if utf8.RuneCountInString(last) > 200 {
				runes := []rune(last)
				last = string(runes[:200]) + "..."
			}
			summaries[i].LastTurn = last
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversations: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceJourneys(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		convs, err := deps.Store.ListConversations(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}

		type stepSummary struct {
			Position int    `json:"position"`
			Title    string `json:"title"`
			Status   string `json:"status"`
		}
		type journeySummary struct {
			ConversationID string        `json:"conversation_id"`
			JourneyID      string        `json:"journey_id"`
			Template       string        `json:"template"`
			Steps          []stepSummary `json:"steps"`
		}

		summaries := []journeySummary{}
		for _, c := range convs {
			j, err := deps.Store.ActiveJourney(ctx, c.ID)
			if err != nil {
				continue
			}
			steps, err := deps.Store.JourneySteps(ctx, j.ID)
			if err != nil {
				continue
			}
			js := journeySummary{
				ConversationID: c.ID,
				JourneyID:      j.ID,
				Template:       j.Template,
				Steps:          make([]stepSummary, len(steps)),
			}
			for i, st := range steps {
				js.Steps[i] = stepSummary{Position: st.Position, Title: st.Title, Status: st.Status}
			}
			summaries = append(summaries, js)
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal journeys: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

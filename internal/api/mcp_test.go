package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/renohq/reno/internal/storage"
)

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	_, app := newTestServer(t)
	return MCPDeps{Store: app.Store, Pipeline: app.Pipeline, Resolver: app.Resolver}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_ProcessTurn(t *testing.T) {
	deps := newTestMCPDeps(t)

	conv := storage.Conversation{ID: "conv-1", Persona: storage.PersonaNone, Scenario: storage.ScenarioNone, Mode: storage.ModeChat, Status: "active"}
	if err := deps.Store.CreateConversation(conv); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}

	handler := mcpProcessTurn(deps)
	result, err := handler(context.Background(), makeCallToolRequest("process_turn", map[string]interface{}{
		"conversation_id": "conv-1",
		"text":            "how do I hang a shelf?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if out["text"] != "here's an idea" {
		t.Errorf("text = %v", out["text"])
	}

	count, err := deps.Store.MessageCount(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("counting messages: %v", err)
	}
	if count != 2 {
		t.Errorf("message count = %d, want 2", count)
	}
}

func TestMCPTool_ProcessTurn_MissingConversation(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpProcessTurn(deps)

	result, err := handler(context.Background(), makeCallToolRequest("process_turn", map[string]interface{}{
		"conversation_id": "nope",
		"text":            "hello",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for unknown conversation")
	}
}

func TestMCPTool_ResolveAction(t *testing.T) {
	deps := newTestMCPDeps(t)

	conv := storage.Conversation{ID: "conv-1", Mode: storage.ModeChat, Status: "active"}
	if err := deps.Store.CreateConversation(conv); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}

	handler := mcpResolveAction(deps)
	result, err := handler(context.Background(), makeCallToolRequest("resolve_action", map[string]interface{}{
		"conversation_id": "conv-1",
		"action_id":       "create_diy_plan",
		"params":          `{"project":"build a bookshelf"}`,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("failed to parse outcome: %v", err)
	}
	if out["status"] != "completed" {
		t.Errorf("status = %v", out["status"])
	}
}

func TestMCPTool_StartJourney(t *testing.T) {
	deps := newTestMCPDeps(t)

	conv := storage.Conversation{ID: "conv-1", Mode: storage.ModeChat, Status: "active"}
	if err := deps.Store.CreateConversation(conv); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}

	handler := mcpStartJourney(deps)
	result, err := handler(context.Background(), makeCallToolRequest("start_journey", map[string]interface{}{
		"conversation_id": "conv-1",
		"template":        "contractor_quotes",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("failed to parse outcome: %v", err)
	}
	if out["status"] != "completed" {
		t.Errorf("status = %v", out["status"])
	}

	j, err := deps.Store.ActiveJourney(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("loading journey: %v", err)
	}
	if j.Template != "contractor_quotes" {
		t.Errorf("template = %q", j.Template)
	}
}

func TestMCPTool_AddHomeFact(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpAddHomeFact(deps)

	result, err := handler(context.Background(), makeCallToolRequest("add_home_fact", map[string]interface{}{
		"content": "kitchen counters are butcher block",
		"home_id": "home-1",
		"title":   "Kitchen counters",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	snippets, err := deps.Store.SnippetsForScope(context.Background(), "home-1", "", 10)
	if err != nil {
		t.Fatalf("listing snippets: %v", err)
	}
	if len(snippets) != 1 {
		t.Fatalf("expected 1 snippet, got %d", len(snippets))
	}
	if snippets[0].Content != "kitchen counters are butcher block" {
		t.Errorf("content = %q", snippets[0].Content)
	}
}

func TestMCPResource_Conversations(t *testing.T) {
	deps := newTestMCPDeps(t)

	conv := storage.Conversation{ID: "conv-1", Persona: storage.PersonaHomeowner, Mode: storage.ModeChat, Status: "active"}
	if err := deps.Store.CreateConversation(conv); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}

	handler := mcpResourceConversations(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("reno://conversations"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var summaries []map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 || summaries[0]["persona"] != "homeowner" {
		t.Errorf("summaries = %v", summaries)
	}
}

func TestMCPResource_Journeys(t *testing.T) {
	deps := newTestMCPDeps(t)

	conv := storage.Conversation{ID: "conv-1", Mode: storage.ModeChat, Status: "active"}
	if err := deps.Store.CreateConversation(conv); err != nil {
		t.Fatalf("creating conversation: %v", err)
	}
	start := mcpStartJourney(deps)
	if _, err := start(context.Background(), makeCallToolRequest("start_journey", map[string]interface{}{
		"conversation_id": "conv-1",
	})); err != nil {
		t.Fatalf("starting journey: %v", err)
	}

	handler := mcpResourceJourneys(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("reno://journeys"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var summaries []map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 journey, got %d", len(summaries))
	}
	if summaries[0]["template"] != "diy_project_plan" {
		t.Errorf("template = %v", summaries[0]["template"])
	}
	steps, ok := summaries[0]["steps"].([]any)
	if !ok || len(steps) != 5 {
		t.Errorf("steps = %v", summaries[0]["steps"])
	}
}

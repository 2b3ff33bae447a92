// Package actions holds the follow-up action taxonomy, the anti-repetition
// suggester, and the resolver that executes a named action against
// accumulated conversation state.
package actions

import (
	"github.com/renohq/reno/internal/intent"
)

// Action is a taxonomy entry: a follow-up the assistant can offer or execute.
type Action struct {
	ID     string
	Label  string
	Params []string // required parameter names, resolved from conversation state
}

// Question is a clarifying question tied to a slot the user hasn't filled.
type Question struct {
	ID   string
	Slot string
	Text string
}

const (
	ActionCreateDIYPlan   = "create_diy_plan"
	ActionExportPDF       = "export_pdf"
	ActionCostEstimate    = "get_cost_estimate"
	ActionFindContractors = "find_contractors"
	ActionShowProducts    = "show_products"
	ActionStartJourney    = "start_journey"
	ActionVisualize       = "visualize_design"
)

var catalog = map[string]Action{
	ActionCreateDIYPlan:   {ID: ActionCreateDIYPlan, Label: "Create a step-by-step DIY plan", Params: []string{"project"}},
	ActionExportPDF:       {ID: ActionExportPDF, Label: "Export the plan as a PDF", Params: []string{"plan"}},
	ActionCostEstimate:    {ID: ActionCostEstimate, Label: "Estimate the cost", Params: []string{"project"}},
	ActionFindContractors: {ID: ActionFindContractors, Label: "Find contractors near you", Params: []string{"job_type", "location"}},
	ActionShowProducts:    {ID: ActionShowProducts, Label: "Show matching products", Params: []string{"query"}},
	ActionStartJourney:    {ID: ActionStartJourney, Label: "Track this as a project", Params: []string{"template"}},
	ActionVisualize:       {ID: ActionVisualize, Label: "Visualize the result", Params: []string{"description"}},
}

// ByID resolves a catalog action. The second return is false for unknown ids.
func ByID(id string) (Action, bool) {
	a, ok := catalog[id]
	return a, ok
}

// candidateActions lists follow-up actions per intent. Both the self-serve
// and the professional pathway appear wherever the user hasn't committed to
// one; persona never gates this list.
var candidateActions = map[intent.Label][]string{
	intent.DesignVisualization: {ActionCreateDIYPlan, ActionShowProducts, ActionCostEstimate, ActionFindContractors},
	intent.DIYGuide:            {ActionCreateDIYPlan, ActionShowProducts, ActionFindContractors, ActionStartJourney},
	intent.CostEstimate:        {ActionCostEstimate, ActionCreateDIYPlan, ActionFindContractors, ActionShowProducts},
	intent.ContractorQuotes:    {ActionFindContractors, ActionCostEstimate, ActionCreateDIYPlan, ActionStartJourney},
	intent.ProductSearch:       {ActionShowProducts, ActionCostEstimate, ActionCreateDIYPlan, ActionFindContractors},
	intent.PDFExportRequest:    {ActionExportPDF, ActionCreateDIYPlan, ActionStartJourney},
	intent.JourneyProgress:     {ActionStartJourney, ActionCreateDIYPlan, ActionExportPDF, ActionFindContractors},
	intent.GeneralQuestion:     {ActionCreateDIYPlan, ActionFindContractors, ActionVisualize},
}

// defaultActions backs up intents whose candidates are exhausted by the
// anti-repetition filter.
var defaultActions = []string{ActionCreateDIYPlan, ActionFindContractors, ActionVisualize, ActionStartJourney, ActionShowProducts}

// candidateQuestions lists clarifying questions per intent, keyed to the
// slot they fill so answered slots stop being asked about.
var candidateQuestions = map[intent.Label][]Question{
	intent.DesignVisualization: {
		{ID: "q_style", Slot: "style", Text: "What style are you going for? Modern, rustic, something else?"},
		{ID: "q_colors", Slot: "colors", Text: "Any colors you'd like to keep or avoid?"},
		{ID: "q_dimensions", Slot: "dimensions", Text: "Roughly how big is the space?"},
	},
	intent.DIYGuide: {
		{ID: "q_skill", Slot: "skill_level", Text: "Have you done a project like this before?"},
		{ID: "q_tools", Slot: "tools", Text: "What tools do you already have?"},
		{ID: "q_dimensions", Slot: "dimensions", Text: "Roughly how big is the space?"},
	},
	intent.CostEstimate: {
		{ID: "q_budget", Slot: "budget", Text: "Do you have a budget range in mind?"},
		{ID: "q_dimensions", Slot: "dimensions", Text: "Roughly how big is the space?"},
		{ID: "q_materials", Slot: "materials", Text: "Any preference on materials or finish quality?"},
	},
	intent.ContractorQuotes: {
		{ID: "q_location", Slot: "location", Text: "What city or area should I search in?"},
		{ID: "q_timeline", Slot: "timeline", Text: "When would you like the work done?"},
		{ID: "q_budget", Slot: "budget", Text: "Do you have a budget range in mind?"},
	},
	intent.ProductSearch: {
		{ID: "q_budget", Slot: "budget", Text: "Do you have a budget range in mind?"},
		{ID: "q_brand", Slot: "brand", Text: "Any brands you prefer or want to avoid?"},
		{ID: "q_quantity", Slot: "quantity", Text: "How much do you need?"},
	},
	intent.PDFExportRequest: nil,
	intent.JourneyProgress:  nil,
	intent.GeneralQuestion: {
		{ID: "q_goal", Slot: "goal", Text: "What are you hoping to change about the space?"},
	},
}

// defaultQuestions are the generic fallback when an intent's questions are
// all filtered out.
var defaultQuestions = []Question{
	{ID: "q_goal", Slot: "goal", Text: "What are you hoping to change about the space?"},
	{ID: "q_budget", Slot: "budget", Text: "Do you have a budget range in mind?"},
	{ID: "q_timeline", Slot: "timeline", Text: "When would you like the work done?"},
	{ID: "q_dimensions", Slot: "dimensions", Text: "Roughly how big is the space?"},
}

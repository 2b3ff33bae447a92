package journey

import "fmt"

// Template is a named, ordered list of step titles a journey is created from.
type Template struct {
	ID    string
	Title string
	Steps []string
}

var templates = map[string]Template{
	"diy_project_plan": {
		ID:    "diy_project_plan",
		Title: "DIY project",
		Steps: []string{
			"Define the project",
			"Plan and measure",
			"Gather materials",
			"Do the work",
			"Review and finish",
		},
	},
	"contractor_quotes": {
		ID:    "contractor_quotes",
		Title: "Hire a contractor",
		Steps: []string{
			"Describe the job",
			"Collect quotes",
			"Compare and choose",
			"Schedule the work",
		},
	},
}

// TemplateByID resolves a journey template.
func TemplateByID(id string) (Template, error) {
	t, ok := templates[id]
	if !ok {
		return Template{}, fmt.Errorf("unknown journey template %q", id)
	}
	return t, nil
}

// TemplateIDs lists available templates in a stable order.
func TemplateIDs() []string {
	return []string{"diy_project_plan", "contractor_quotes"}
}

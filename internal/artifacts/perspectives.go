package artifacts

const PerspectivesSchemaVersion = "perspectives.v1"

// Track classifies the research angle a perspective takes.
type Track string

const (
	TrackStandard    Track = "standard"
	TrackIndependent Track = "independent"
	TrackContrarian  Track = "contrarian"
)

// PromptContract bounds what a wave agent may produce for one perspective.
type PromptContract struct {
	MaxWords             int      `json:"max_words" validate:"gte=1"`
	MaxSources           int      `json:"max_sources" validate:"gte=1"`
	ToolBudget           int      `json:"tool_budget" validate:"gte=0"`
	MustIncludeSections  []string `json:"must_include_sections" validate:"required,min=1"`
}

// Perspective is one research angle within wave 1.
type Perspective struct {
	ID             string         `json:"id" validate:"required"`
	Title          string         `json:"title" validate:"required"`
	Track          Track          `json:"track" validate:"required,oneof=standard independent contrarian"`
	AgentType      string         `json:"agent_type" validate:"required"`
	PromptContract PromptContract `json:"prompt_contract"`
}

// Perspectives is the ordered perspectives.json document.
type Perspectives struct {
	SchemaVersion string        `json:"schema_version" validate:"required"`
	Items         []Perspective `json:"items" validate:"required,min=1"`
}

// DefaultMustIncludeSections is used when a caller doesn't specify sections:
// every wave output needs these three sections, Sources among them, per
// spec.md §4.7.
var DefaultMustIncludeSections = []string{"Findings", "Gaps", "Sources"}

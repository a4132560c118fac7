package artifacts

const ScopeSchemaVersion = "scope.v1"

// CitationPosture controls how aggressively the citation pipeline validates
// URLs. It is recorded in scope.json only: citations.ResolveMode derives the
// validation mode from sensitivity and an explicit override, not from it.
type CitationPosture string

const (
	CitationPostureStrict CitationPosture = "strict"
	CitationPostureNormal CitationPosture = "normal"
	CitationPostureRelaxed CitationPosture = "relaxed"
)

// Scope is immutable per run after Init (spec.md §3). It is embedded
// verbatim into every wave prompt.
type Scope struct {
	SchemaVersion   string          `json:"schema_version" validate:"required"`
	Questions       []string        `json:"questions" validate:"required,min=1"`
	NonGoals        []string        `json:"non_goals"`
	Deliverable     string          `json:"deliverable" validate:"required"`
	Depth           string          `json:"depth" validate:"required,oneof=quick standard deep"`
	TimeBudgetMin   int             `json:"time_budget_min" validate:"gte=1"`
	CitationPosture CitationPosture `json:"citation_posture" validate:"required"`
}

// ContractText renders the scope into the "## Scope Contract" section every
// wave-1 prompt must embed (checked by Gate A).
func (s Scope) ContractText() string {
	out := "## Scope Contract\n\n"
	out += "Questions:\n"
	for _, q := range s.Questions {
		out += "- " + q + "\n"
	}
	if len(s.NonGoals) > 0 {
		out += "\nNon-goals:\n"
		for _, n := range s.NonGoals {
			out += "- " + n + "\n"
		}
	}
	out += "\nDeliverable: " + s.Deliverable + "\n"
	out += "Depth: " + s.Depth + "\n"
	return out
}

package artifacts

const Wave1PlanSchemaVersion = "wave1-plan.v1"

// Wave1PlanEntry is one perspective's deterministic prompt, computed once
// and cached until the scope or contract changes (tracked via InputsDigest
// on the plan document as a whole, and PromptDigest per entry).
type Wave1PlanEntry struct {
	PerspectiveID string `json:"perspective_id"`
	PromptMD      string `json:"prompt_md"`
	PromptDigest  string `json:"prompt_digest"`
}

// Wave1Plan is wave-1/wave1-plan.json.
type Wave1Plan struct {
	SchemaVersion string           `json:"schema_version" validate:"required"`
	RunID         string           `json:"run_id" validate:"required"`
	InputsDigest  string           `json:"inputs_digest" validate:"required"`
	Entries       []Wave1PlanEntry `json:"entries" validate:"required"`
}

const WaveOutputMetaSchemaVersion = "wave-output-meta.v1"

// WaveOutputMeta is the <perspective_id>.meta.json sidecar next to each
// wave output markdown file.
type WaveOutputMeta struct {
	SchemaVersion   string `json:"schema_version" validate:"required"`
	PromptDigest    string `json:"prompt_digest" validate:"required"`
	AgentRunID      string `json:"agent_run_id,omitempty"`
	StartedAt       string `json:"started_at,omitempty"`
	FinishedAt      string `json:"finished_at,omitempty"`
	Model           string `json:"model,omitempty"`
	IngestedAt      string `json:"ingested_at" validate:"required"`
	SourceInputPath string `json:"source_input_path,omitempty"`
}

// FailureCode enumerates the typed wave-output validation failures
// (spec.md §4.7).
type FailureCode string

const (
	FailureMissingSection FailureCode = "MISSING_REQUIRED_SECTION"
	FailureTooManyWords   FailureCode = "TOO_MANY_WORDS"
	FailureMalformedSources FailureCode = "MALFORMED_SOURCES"
	FailureTooManySources FailureCode = "TOO_MANY_SOURCES"
)

// RetryDirective asks the agent seam to retry one perspective/gap with a
// change note describing what went wrong last time.
type RetryDirective struct {
	PerspectiveID     string      `json:"perspective_id"`
	Action            string      `json:"action"` // always "retry"
	ChangeNote        string      `json:"change_note"`
	BlockingErrorCode FailureCode `json:"blocking_error_code"`
	ConsumedAt        string      `json:"consumed_at,omitempty"`
}

const RetryDirectivesSchemaVersion = "retry-directives.v1"

// RetryDirectives is retry/retry-directives.json.
type RetryDirectives struct {
	SchemaVersion string           `json:"schema_version"`
	Directives    []RetryDirective `json:"directives"`
}

// WaveReviewEntry is one perspective's pass/fail verdict.
type WaveReviewEntry struct {
	PerspectiveID   string        `json:"perspective_id"`
	Pass            bool          `json:"pass"`
	Words           int           `json:"words"`
	Sources         int           `json:"sources"`
	MissingSections []string      `json:"missing_sections,omitempty"`
	FailureCodes    []FailureCode `json:"failure_codes,omitempty"`
	Attempt         int           `json:"attempt"`
}

const WaveReviewSchemaVersion = "wave-review.v1"

// WaveReview is wave-review.json.
type WaveReview struct {
	SchemaVersion   string            `json:"schema_version" validate:"required"`
	Wave            int               `json:"wave" validate:"gte=1"`
	Entries         []WaveReviewEntry `json:"entries"`
	RetryDirectives []RetryDirective  `json:"retry_directives"`
}

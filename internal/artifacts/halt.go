package artifacts

const HaltSchemaVersion = "halt.v1"

// HaltError carries the error code/message surfaced by a halt.
type HaltError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BlockedTransition names the transition a tick could not make.
type BlockedTransition struct {
	From Stage `json:"from"`
	To   Stage `json:"to"`
}

// HaltBlockers is the structured breakdown of why a tick halted.
type HaltBlockers struct {
	MissingArtifacts []string `json:"missing_artifacts"`
	BlockedGates     []string `json:"blocked_gates"`
	FailedChecks     []string `json:"failed_checks"`
}

// Halt is operator/halt/latest.json, overwritten by each halting tick; no
// per-tick tick-####.json copy is kept.
type Halt struct {
	SchemaVersion     string             `json:"schema_version" validate:"required"`
	CreatedAt         string             `json:"created_at"`
	RunID             string             `json:"run_id"`
	TickIndex         int                `json:"tick_index"`
	StageCurrent      Stage              `json:"stage_current"`
	BlockedTransition BlockedTransition  `json:"blocked_transition"`
	Error             HaltError          `json:"error"`
	Blockers          HaltBlockers       `json:"blockers"`
	RelatedPaths      map[string]string  `json:"related_paths"`
	NextCommands      []string           `json:"next_commands"`
	Notes             string             `json:"notes"`
}

const RunConfigSchemaVersion = "run-config.v1"

// CitationValidationMode is the resolved mode for the citation pipeline.
type CitationValidationMode string

const (
	CitationModeOffline    CitationValidationMode = "offline"
	CitationModeOnline     CitationValidationMode = "online"
	CitationModeOnlineDryRun CitationValidationMode = "online_dry_run"
)

// RunConfig is the effective-configuration snapshot written at Init, so a
// run can always be explained or replayed without consulting env vars.
type RunConfig struct {
	SchemaVersion          string                 `json:"schema_version" validate:"required"`
	RunID                  string                 `json:"run_id" validate:"required"`
	Mode                   string                 `json:"mode"`
	Sensitivity            string                 `json:"sensitivity"`
	CitationValidationMode CitationValidationMode `json:"citation_validation_mode"`
	LeaseSeconds           int                    `json:"lease_seconds"`
	StageTimeoutsSeconds   map[Stage]int          `json:"stage_timeouts_seconds"`
	RetryCaps              map[GateID]int         `json:"retry_caps"`
	PerspectivesEnabled    bool                   `json:"perspectives_enabled"`
}

// DefaultStageTimeouts mirrors spec.md §4.13.
func DefaultStageTimeouts() map[Stage]int {
	return map[Stage]int{
		StageInit: 120, StageWave1: 600, StagePivot: 120, StageWave2: 600,
		StageCitations: 600, StageSummaries: 600, StageSynthesis: 600,
		StageReview: 300, StageFinalize: 120,
	}
}

// DefaultRetryCaps mirrors spec.md §4.13.
func DefaultRetryCaps() map[GateID]int {
	return map[GateID]int{GateA: 0, GateB: 2, GateC: 1, GateD: 1, GateE: 3, GateF: 0}
}

// RunLedgerEntry is one line appended to runs_root/runs-ledger.jsonl on Init.
type RunLedgerEntry struct {
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`
	RunRoot   string `json:"run_root"`
	Query     string `json:"query"`
	Mode      string `json:"mode"`
}

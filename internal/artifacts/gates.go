package artifacts

// GateID identifies one of the six gates A-F (spec.md §3, §4.6).
type GateID string

const (
	GateA GateID = "A"
	GateB GateID = "B"
	GateC GateID = "C"
	GateD GateID = "D"
	GateE GateID = "E"
	GateF GateID = "F"
)

// GateClass controls whether a "warn" status is permitted.
type GateClass string

const (
	ClassHard GateClass = "hard"
	ClassSoft GateClass = "soft"
)

// GateStatus is the evaluated outcome of a gate.
type GateStatus string

const (
	GateNotRun GateStatus = "not_run"
	GatePass   GateStatus = "pass"
	GateFail   GateStatus = "fail"
	GateWarn   GateStatus = "warn" // soft gates only
)

// Gate is one evaluator's persisted state.
type Gate struct {
	ID           GateID             `json:"id" validate:"required"`
	Name         string             `json:"name" validate:"required"`
	Class        GateClass          `json:"class" validate:"required,oneof=hard soft"`
	Status       GateStatus         `json:"status" validate:"required,oneof=not_run pass fail warn"`
	CheckedAt    string             `json:"checked_at,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Artifacts    []string           `json:"artifacts,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	InputsDigest string             `json:"inputs_digest,omitempty"`
}

const GatesSchemaVersion = "gates.v1"

// Gates is the full gates.json document: six gates plus a document revision.
type Gates struct {
	SchemaVersion string          `json:"schema_version" validate:"required"`
	RunID         string          `json:"run_id" validate:"required"`
	Revision      int             `json:"revision" validate:"gte=1"`
	UpdatedAt     string          `json:"updated_at"`
	Gates         map[GateID]Gate `json:"gates" validate:"required"`
}

// NewGates builds the all-not_run gates.json written by Init.
func NewGates(runID string, now string) Gates {
	def := func(id GateID, name string, class GateClass) Gate {
		return Gate{ID: id, Name: name, Class: class, Status: GateNotRun}
	}
	return Gates{
		SchemaVersion: GatesSchemaVersion,
		RunID:         runID,
		Revision:      1,
		UpdatedAt:     now,
		Gates: map[GateID]Gate{
			GateA: def(GateA, "Planning completeness", ClassHard),
			GateB: def(GateB, "Wave output contract compliance", ClassHard),
			GateC: def(GateC, "Citation validation integrity", ClassHard),
			GateD: def(GateD, "Summary pack boundedness", ClassHard),
			GateE: def(GateE, "Synthesis quality", ClassHard),
			GateF: def(GateF, "Rollout safety", ClassSoft),
		},
	}
}

// MutableGateFields are the per-gate fields GatesWrite is allowed to patch.
var MutableGateFields = []string{"status", "checked_at", "metrics", "artifacts", "warnings", "notes"}

package artifacts

const PivotSchemaVersion = "pivot.v1"

// Priority is a gap's urgency band.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// GapSource records whether a gap came from the wave-1 "## Gaps" bullets or
// was supplied pre-normalized by an external caller.
type GapSource string

const (
	GapSourceExplicit     GapSource = "explicit"
	GapSourceParsedWave1  GapSource = "parsed_wave1"
)

// Gap is one normalized deficiency surfaced after wave 1.
type Gap struct {
	ID       string    `json:"id"`
	Priority Priority  `json:"priority"`
	Text     string    `json:"text"`
	Tags     []string  `json:"tags"`
	Source   GapSource `json:"source"`
}

// RuleHit names which pivot rule fired (spec.md §4.8).
type RuleHit string

const (
	RuleWave2RequiredP0     RuleHit = "Wave2Required.P0"
	RuleWave2RequiredP1     RuleHit = "Wave2Required.P1"
	RuleWave2RequiredVolume RuleHit = "Wave2Required.Volume"
	RuleWave2SkipNoGaps     RuleHit = "Wave2Skip.NoGaps"
)

// Pivot is pivot.json.
type Pivot struct {
	SchemaVersion    string   `json:"schema_version" validate:"required"`
	InputsDigest     string   `json:"inputs_digest" validate:"required"`
	Wave1References  []string `json:"wave1_references"`
	Gaps             []Gap    `json:"gaps"`
	RuleHit          RuleHit  `json:"rule_hit"`
	Wave2Required    bool     `json:"wave2_required"`
	Wave2GapIDs      []string `json:"wave2_gap_ids"`
}

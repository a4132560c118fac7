package artifacts

const SummaryPackSchemaVersion = "summary-pack.v1"

// SummaryEntry is one perspective's bounded summary.
type SummaryEntry struct {
	PerspectiveID string   `json:"perspective_id"`
	Path          string   `json:"path"`
	SizeBytes     int      `json:"size_bytes"`
	CitedCIDs     []string `json:"cited_cids"`
}

// SummaryPack is summaries/summary-pack.json.
type SummaryPack struct {
	SchemaVersion  string         `json:"schema_version" validate:"required"`
	Entries        []SummaryEntry `json:"entries"`
	TotalSizeBytes int            `json:"total_size_bytes"`
}

// RequiredSynthesisHeadings are the headings Gate E and SynthesisWrite both
// require to be present in final-synthesis.md.
var RequiredSynthesisHeadings = []string{"Summary", "Key Findings", "Evidence", "Caveats"}

// ReviewDecision is the reviewer's verdict on a synthesis draft.
type ReviewDecision string

const (
	ReviewPass             ReviewDecision = "PASS"
	ReviewChangesRequired  ReviewDecision = "CHANGES_REQUIRED"
)

// ReviewFinding is one reviewer-reported issue.
type ReviewFinding struct {
	Section  string `json:"section"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// ReviewDirective is one actionable instruction to revise the synthesis.
type ReviewDirective struct {
	Instruction string `json:"instruction"`
	Section     string `json:"section"`
}

const ReviewBundleSchemaVersion = "review-bundle.v1"

// ReviewBundle is review/review-bundle.json.
type ReviewBundle struct {
	SchemaVersion string            `json:"schema_version" validate:"required"`
	Decision      ReviewDecision    `json:"decision" validate:"required,oneof=PASS CHANGES_REQUIRED"`
	Findings      []ReviewFinding   `json:"findings" validate:"max=100"`
	Directives    []ReviewDirective `json:"directives" validate:"max=100"`
	Iteration     int               `json:"iteration"`
}

// GateEReportKind names the four Gate E report files (spec.md §4.10).
type GateEReportKind string

const (
	ReportNumericClaims       GateEReportKind = "numeric-claims"
	ReportSectionsPresent     GateEReportKind = "sections-present"
	ReportCitationUtilization GateEReportKind = "citation-utilization"
	ReportStatus              GateEReportKind = "status"
)

// NumericClaimFinding is one uncited numeric-claim paragraph found by Gate E.
type NumericClaimFinding struct {
	ParagraphIndex int    `json:"paragraph_index"`
	Excerpt        string `json:"excerpt"`
	Token          string `json:"token"`
}

// NumericClaimsReport is reports/gate-e-numeric-claims.json.
type NumericClaimsReport struct {
	UncitedCount int                   `json:"uncited_numeric_claims"`
	Findings     []NumericClaimFinding `json:"findings"`
}

// SectionsPresentReport is reports/gate-e-sections-present.json.
type SectionsPresentReport struct {
	Required []string `json:"required"`
	Present  []string `json:"present"`
	Missing  []string `json:"missing"`
	Ratio    float64  `json:"ratio"`
}

// CitationUtilizationReport is reports/gate-e-citation-utilization.json.
type CitationUtilizationReport struct {
	ValidatedCIDs    int     `json:"validated_cids"`
	UsedCIDs         int     `json:"used_cids"`
	TotalMentions    int     `json:"total_mentions"`
	UtilizationRatio float64 `json:"utilization_ratio"`
	DuplicateRate    float64 `json:"duplicate_rate"`
}

// StatusReport is reports/gate-e-status.json: the overall E verdict summary.
type StatusReport struct {
	Status   string   `json:"status"`
	Warnings []string `json:"warnings"`
}

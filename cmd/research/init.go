package main

import (
	"flag"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
	"github.com/deepresearch/orchestrator/internal/runlock"
	"github.com/deepresearch/orchestrator/internal/runstore"
)

// cmdInit creates a new run directory tree: manifest.json, gates.json,
// run-config.json, scope.json, perspectives.json, and an entry in
// runs_root/runs-ledger.jsonl.
func cmdInit(args []string, log *zap.Logger) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	runsRoot := fs.String("runs-root", ".", "parent directory under which the new run_root is created")
	query := fs.String("query", "", "the research query text")
	mode := fs.String("mode", "standard", "quick|standard|deep")
	sensitivity := fs.String("sensitivity", "normal", "normal|restricted|no_web")
	deliverable := fs.String("deliverable", "research brief", "the deliverable scope.json records")
	perspectiveCount := fs.Int("perspectives", 0, "override the default perspective count for --mode")
	if err := fs.Parse(args); err != nil {
		return exitUsageError
	}
	if *query == "" {
		printJSON(map[string]any{"error": map[string]any{"code": corerr.CodeInvalidArgs, "message": "--query is required"}})
		return exitUsageError
	}

	runID := uuid.NewString()
	runRoot := filepath.Join(*runsRoot, runID)
	now := time.Now()

	artifactPaths := artifacts.ArtifactPaths{
		Root: runRoot, Manifest: "manifest.json", Gates: "gates.json",
		RunConfig: "run-config.json", Scope: "scope.json", Perspectives: "perspectives.json",
		WaveReview: "wave-review.json", Pivot: "pivot.json", SummaryPack: "summaries/summary-pack.json",
		Synthesis: "synthesis/final-synthesis.md", ReviewBundle: "review/review-bundle.json",
		AuditLog: "logs/audit.jsonl",
	}
	limits := artifacts.Limits{MaxWave1Agents: 5, MaxReviewIterations: 2, MaxSummaryKB: 64, MaxTotalSummaryKB: 256, MaxFailures: 5}
	m := artifacts.NewManifest(runID, artifacts.QueryInfo{Text: *query, Mode: *mode, Sensitivity: *sensitivity}, limits, artifactPaths, now)
	g := artifacts.NewGates(runID, now.UTC().Format(time.RFC3339))

	store := runstore.New(runRoot, log)
	if err := store.WriteManifestInit(m); err != nil {
		return printOpError(err)
	}
	if err := store.WriteGatesInit(g); err != nil {
		return printOpError(err)
	}
	cfg := artifacts.RunConfig{
		SchemaVersion: artifacts.RunConfigSchemaVersion, RunID: runID, Mode: *mode, Sensitivity: *sensitivity,
		LeaseSeconds: runlock.DefaultLeaseSeconds, StageTimeoutsSeconds: artifacts.DefaultStageTimeouts(),
		RetryCaps: artifacts.DefaultRetryCaps(),
	}
	if err := store.WriteArtifact("run-config.json", cfg, "run_config_init", "init"); err != nil {
		return printOpError(err)
	}

	scope := buildDefaultScope(*query, *mode, *deliverable)
	if err := store.WriteArtifact(artifactPaths.Scope, scope, "scope_init", "init"); err != nil {
		return printOpError(err)
	}
	perspectives := buildDefaultPerspectives(*mode, *perspectiveCount)
	if err := store.WriteArtifact(artifactPaths.Perspectives, perspectives, "perspectives_init", "init"); err != nil {
		return printOpError(err)
	}

	if err := runstore.AppendLedger(*runsRoot, artifacts.RunLedgerEntry{
		RunID: runID, CreatedAt: m.CreatedAt, RunRoot: runRoot, Query: *query, Mode: *mode,
	}); err != nil {
		return printOpError(err)
	}

	printJSON(map[string]any{"run_id": runID, "run_root": runRoot})
	return exitOK
}

// defaultTimeBudgetMin mirrors the depth/time-budget pairing implied by
// spec.md's mode descriptions: a quick pass gets a fraction of a deep one.
func defaultTimeBudgetMin(mode string) int {
	switch mode {
	case "quick":
		return 15
	case "deep":
		return 120
	default:
		return 45
	}
}

// defaultPerspectiveCount is the number of perspectives Init seeds when the
// operator doesn't override it with --perspectives.
func defaultPerspectiveCount(mode string) int {
	switch mode {
	case "quick":
		return 1
	case "deep":
		return 5
	default:
		return 3
	}
}

func buildDefaultScope(query, mode, deliverable string) artifacts.Scope {
	return artifacts.Scope{
		SchemaVersion:   artifacts.ScopeSchemaVersion,
		Questions:       []string{query},
		Deliverable:     deliverable,
		Depth:           mode,
		TimeBudgetMin:   defaultTimeBudgetMin(mode),
		CitationPosture: artifacts.CitationPostureNormal,
	}
}

// perspectiveTracks cycles standard/independent/contrarian so a default
// perspective set always covers more than one research angle once it grows
// past one entry.
var perspectiveTracks = []artifacts.Track{artifacts.TrackStandard, artifacts.TrackIndependent, artifacts.TrackContrarian}

func buildDefaultPerspectives(mode string, countOverride int) artifacts.Perspectives {
	count := countOverride
	if count <= 0 {
		count = defaultPerspectiveCount(mode)
	}
	contract := artifacts.PromptContract{
		MaxWords: 1200, MaxSources: 12, ToolBudget: 10,
		MustIncludeSections: artifacts.DefaultMustIncludeSections,
	}
	items := make([]artifacts.Perspective, 0, count)
	for i := 0; i < count; i++ {
		track := perspectiveTracks[i%len(perspectiveTracks)]
		items = append(items, artifacts.Perspective{
			ID:             perspectiveID(mode, i),
			Title:          string(track) + " perspective",
			Track:          track,
			AgentType:      "research_perspective",
			PromptContract: contract,
		})
	}
	return artifacts.Perspectives{SchemaVersion: artifacts.PerspectivesSchemaVersion, Items: items}
}

func perspectiveID(mode string, ordinal int) string {
	return mode + "-" + string(rune('1'+ordinal))
}

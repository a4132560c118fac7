package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deepresearch/orchestrator/internal/agentrunner"
	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/citations"
	"github.com/deepresearch/orchestrator/internal/corerr"
	"github.com/deepresearch/orchestrator/internal/gates"
	"github.com/deepresearch/orchestrator/internal/ioutil"
	"github.com/deepresearch/orchestrator/internal/orchestrator"
	"github.com/deepresearch/orchestrator/internal/pivot"
	"github.com/deepresearch/orchestrator/internal/review"
	"github.com/deepresearch/orchestrator/internal/runlock"
	"github.com/deepresearch/orchestrator/internal/runstore"
	"github.com/deepresearch/orchestrator/internal/stagemachine"
	"github.com/deepresearch/orchestrator/internal/summaries"
	"github.com/deepresearch/orchestrator/internal/watchdog"
	"github.com/deepresearch/orchestrator/internal/wave"
)

// tickOptions carries the driver seam and per-stage input files a tick needs,
// threaded through unchanged across every stage of one run (and every ticked
// iteration of a "run" loop).
type tickOptions struct {
	driverKind           string
	fixturesFile         string
	citationMode         string
	citationFixturesFile string
	reviewBundleFile     string
}

// cmdTick acquires the run lock, reads the current stage, drives that
// stage's work through the configured driver, evaluates and persists the
// stage's gate, and — if the stage machine allows it — advances to --next
// (or, when --next is omitted, the one transition the precondition table
// allows from the current stage).
func cmdTick(args []string, log *zap.Logger) int {
	fs := flag.NewFlagSet("tick", flag.ContinueOnError)
	runRoot := fs.String("run", "", "path to the run_root directory")
	next := fs.String("next", "", "requested next stage (omit to auto-advance along the only legal transition)")
	driverKind := fs.String("driver", "fixture", "fixture|task|live")
	fixturesFile := fs.String("fixtures-file", "", `JSON file of agentrunner.Response keyed "kind/perspective_id" (fixture driver)`)
	citationFixturesFile := fs.String("citation-fixtures-file", "", "JSON file of offline citation fixtures keyed by normalized url")
	citationMode := fs.String("citation-mode", "", "override citation_validation_mode: offline|online|online_dry_run")
	reviewBundleFile := fs.String("review-bundle-file", "", "path to a review-bundle.json document (review stage)")
	if err := fs.Parse(args); err != nil {
		return exitUsageError
	}
	if *runRoot == "" {
		printJSON(map[string]any{"error": map[string]any{"code": corerr.CodeInvalidArgs, "message": "--run is required"}})
		return exitUsageError
	}

	lock, lerr := runlock.Acquire(*runRoot, fmt.Sprintf("pid-%d", os.Getpid()), runlock.DefaultLeaseSeconds)
	if lerr != nil {
		printJSON(map[string]any{"error": map[string]any{"code": lerr.Code, "message": lerr.Message}})
		return exitLockConflict
	}
	defer lock.Release()

	store := runstore.New(*runRoot, log)
	_, code := runTick(store, log, *next, tickOptions{
		driverKind: *driverKind, fixturesFile: *fixturesFile,
		citationMode: *citationMode, citationFixturesFile: *citationFixturesFile,
		reviewBundleFile: *reviewBundleFile,
	})
	return code
}

// maxRunTicks bounds an automatic "run" loop so a misconfigured precondition
// table, or a driver that never halts, cannot spin forever.
const maxRunTicks = 32

// cmdRun drives a run to completion (or the first halt/error) by repeatedly
// ticking the auto-decided transition, holding the run lock for the whole
// loop instead of re-acquiring it per stage.
func cmdRun(args []string, log *zap.Logger) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	runRoot := fs.String("run", "", "path to the run_root directory")
	driverKind := fs.String("driver", "fixture", "fixture|task|live")
	fixturesFile := fs.String("fixtures-file", "", `JSON file of agentrunner.Response keyed "kind/perspective_id" (fixture driver)`)
	citationFixturesFile := fs.String("citation-fixtures-file", "", "JSON file of offline citation fixtures keyed by normalized url")
	citationMode := fs.String("citation-mode", "", "override citation_validation_mode: offline|online|online_dry_run")
	reviewBundleFile := fs.String("review-bundle-file", "", "path to a review-bundle.json document, consulted whenever the loop reaches the review stage")
	if err := fs.Parse(args); err != nil {
		return exitUsageError
	}
	if *runRoot == "" {
		printJSON(map[string]any{"error": map[string]any{"code": corerr.CodeInvalidArgs, "message": "--run is required"}})
		return exitUsageError
	}

	lock, lerr := runlock.Acquire(*runRoot, fmt.Sprintf("pid-%d", os.Getpid()), runlock.DefaultLeaseSeconds)
	if lerr != nil {
		printJSON(map[string]any{"error": map[string]any{"code": lerr.Code, "message": lerr.Message}})
		return exitLockConflict
	}
	defer lock.Release()

	store := runstore.New(*runRoot, log)
	opts := tickOptions{
		driverKind: *driverKind, fixturesFile: *fixturesFile,
		citationMode: *citationMode, citationFixturesFile: *citationFixturesFile,
		reviewBundleFile: *reviewBundleFile,
	}

	var ticks []map[string]any
	for i := 0; i < maxRunTicks; i++ {
		if herr := lock.Heartbeat(); herr != nil {
			return printOpError(herr)
		}
		stage, code := runTick(store, log, "", opts)
		ticks = append(ticks, map[string]any{"tick": i + 1, "stage": string(stage), "exit_code": code})
		if code != exitOK {
			printJSON(map[string]any{"ticks": ticks, "stopped_reason": "tick_error_or_halt"})
			return code
		}
		if stage == artifacts.StageFinalize {
			printJSON(map[string]any{"ticks": ticks, "stopped_reason": "finalized"})
			return exitOK
		}
	}
	printJSON(map[string]any{"ticks": ticks, "stopped_reason": "max_ticks_reached"})
	return exitOperationErr
}

// runTick performs exactly one tick's work against an already-locked store:
// watchdog check, stage dispatch, and (if the stage's work didn't halt or
// fail) the gate-checked stage advance. It is the shared core behind both
// cmdTick (one stage, externally driven) and cmdRun (loop to completion).
func runTick(store *runstore.Store, log *zap.Logger, requestedNext string, opts tickOptions) (artifacts.Stage, int) {
	m, err := store.ReadManifest()
	if err != nil {
		return "", printOpError(err)
	}
	g, err := store.ReadGates()
	if err != nil {
		return "", printOpError(err)
	}
	if herr := stagemachine.ValidateHistoryConsistency(m.Stage); herr != nil {
		return "", printOpError(herr)
	}
	if m.Stage.Current == artifacts.StageFinalize {
		printJSON(map[string]any{"run_id": m.RunID, "stage": string(m.Stage.Current), "message": "run already finalized"})
		return m.Stage.Current, exitOK
	}

	var cfg artifacts.RunConfig
	if rerr := store.ReadArtifact("run-config.json", &cfg); rerr != nil {
		return "", printOpError(rerr)
	}

	waitingOnHalt := false
	var halt artifacts.Halt
	if rerr := store.ReadArtifact("operator/halt/latest.json", &halt); rerr == nil && halt.StageCurrent == m.Stage.Current {
		waitingOnHalt = true
	}
	lastProgress := parseRFC3339OrDefault(m.Stage.LastProgressAt, parseRFC3339OrDefault(m.Stage.StartedAt, m.CreatedAt))
	if timedOut, elapsed := watchdog.Check(m.Stage.Current, lastProgress, time.Now().UTC(), cfg.StageTimeoutsSeconds, waitingOnHalt); timedOut {
		failure := watchdog.BuildTimeoutFailure(m.Stage.Current, elapsed)
		if _, perr := store.ManifestPatch(m.Revision, map[string]any{"failures": append(m.Failures, failure)}, "watchdog timeout"); perr != nil {
			return "", printOpError(perr)
		}
		return "", printOpError(corerr.New(corerr.CodeStageTimeout, failure.Message, map[string]any{"stage": string(m.Stage.Current)}))
	}

	driver, derr := buildDriver(opts.driverKind, opts.fixturesFile)
	if derr != nil {
		return "", printOpError(derr)
	}
	ctx := context.Background()
	orch := orchestrator.New(driver, orchestrator.DefaultWaveConcurrency, log)

	var decidedNext artifacts.Stage
	var halted bool
	var workErr *corerr.Error
	switch m.Stage.Current {
	case artifacts.StageInit:
		decidedNext, g, workErr = tickInit(store, m, g)
	case artifacts.StageWave1:
		decidedNext, g, halted, workErr = tickWave(ctx, store, m, g, orch, 1, cfg)
	case artifacts.StageWave2:
		decidedNext, g, halted, workErr = tickWave(ctx, store, m, g, orch, 2, cfg)
	case artifacts.StagePivot:
		decidedNext, g, workErr = tickPivot(store, m, g)
	case artifacts.StageCitations:
		decidedNext, g, workErr = tickCitations(ctx, store, m, g, opts.citationMode, opts.citationFixturesFile, log)
	case artifacts.StageSummaries:
		decidedNext, g, halted, workErr = tickSummaries(ctx, store, m, g, driver)
	case artifacts.StageSynthesis:
		decidedNext, g, halted, workErr = tickSynthesis(ctx, store, m, g, driver)
	case artifacts.StageReview:
		decidedNext, g, workErr = tickReview(store, m, g, opts.reviewBundleFile)
	default:
		workErr = corerr.Newf(corerr.CodeInvalidState, "unknown stage %q", m.Stage.Current)
	}
	if workErr != nil {
		return "", printOpError(workErr)
	}
	if halted {
		h := orchestrator.BuildHalt(m.RunID, len(m.Stage.History)+1, m.Stage.Current, decidedNext, nil, corerr.CodeRunAgentRequired, "driver halted waiting for external agent-result input")
		if werr := store.WriteArtifact("operator/halt/latest.json", h, "halt", "driver_halted"); werr != nil {
			return "", printOpError(werr)
		}
		printJSON(h)
		return m.Stage.Current, exitOperationErr
	}

	if requestedNext != "" && artifacts.Stage(requestedNext) != decidedNext {
		return "", printOpError(corerr.New(corerr.CodeRequestedNextNotAllowed, "requested --next does not match the stage-computed transition", map[string]any{
			"requested": requestedNext, "decided": string(decidedNext),
		}))
	}

	nextManifest, code := checkAndAdvance(store, m, g, decidedNext, fmt.Sprintf("tick advance %s->%s", m.Stage.Current, decidedNext))
	return nextManifest.Stage.Current, code
}

// checkAndAdvance asks the stage machine whether current -> next is legal
// given g, and either writes a halt artifact (blocked) or commits the stage
// transition via ManifestPatch (allowed).
func checkAndAdvance(store *runstore.Store, m artifacts.Manifest, g artifacts.Gates, next artifacts.Stage, reason string) (artifacts.Manifest, int) {
	decision, derr := orchestrator.CheckAdvance(m.Stage.Current, next, g)
	if derr != nil {
		return m, printOpError(derr)
	}
	if !decision.Allowed {
		halt := orchestrator.BuildHalt(m.RunID, len(m.Stage.History)+1, m.Stage.Current, next, decision.BlockedGates, corerr.CodeGateBlocked, "one or more required gates have not passed")
		if werr := store.WriteArtifact("operator/halt/latest.json", halt, "halt", "gate_blocked"); werr != nil {
			return m, printOpError(werr)
		}
		printJSON(halt)
		return m, exitOperationErr
	}
	inputsDigest, _ := ioutil.SHA256DigestJSON(g)
	patch := map[string]any{
		"stage": map[string]any{
			"current": string(next),
			"history": append(m.Stage.History, artifacts.StageHistoryEntry{
				From: m.Stage.Current, To: next, Ts: time.Now().UTC().Format(time.RFC3339),
				GatesRevision: g.Revision, InputsDigest: inputsDigest,
			}),
			"last_progress_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	next2, perr := store.ManifestPatch(m.Revision, patch, reason)
	if perr != nil {
		return m, printOpError(perr)
	}
	printJSON(map[string]any{"advanced_to": next2.Stage.Current, "revision": next2.Revision})
	return next2, exitOK
}

// buildDriver resolves --driver into a concrete orchestrator.Driver. "live"
// refuses outright: a real LLM-calling AgentRunner is out of scope, and
// failing fast here is better than silently falling back to fixtures.
func buildDriver(kind, fixturesFile string) (orchestrator.Driver, *corerr.Error) {
	switch orchestrator.DriverKind(kind) {
	case orchestrator.DriverFixture:
		outputs := map[string]agentrunner.Response{}
		if fixturesFile != "" {
			data, rerr := os.ReadFile(fixturesFile)
			if rerr != nil {
				return nil, corerr.Newf(corerr.CodeNotFound, "read fixtures file: %v", rerr)
			}
			if jerr := json.Unmarshal(data, &outputs); jerr != nil {
				return nil, corerr.Newf(corerr.CodeInvalidJSON, "decode fixtures file: %v", jerr)
			}
		}
		return &orchestrator.FixtureDriver{Runner: &agentrunner.FixtureRunner{Outputs: outputs}}, nil
	case orchestrator.DriverTask:
		return &orchestrator.TaskDriver{}, nil
	case orchestrator.DriverLive:
		return nil, corerr.New(corerr.CodeDisabled, "the live driver (a real LLM-calling AgentRunner) is out of scope; use fixture or task", nil)
	default:
		return nil, corerr.Newf(corerr.CodeInvalidArgs, "unknown --driver %q", kind)
	}
}

func parseRFC3339OrDefault(value, fallback string) time.Time {
	if value != "" {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t
		}
	}
	if fallback != "" {
		if t, err := time.Parse(time.RFC3339, fallback); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

// tickInit builds wave-1/wave1-plan.json from scope.json + perspectives.json
// and evaluates Gate A.
func tickInit(store *runstore.Store, m artifacts.Manifest, g artifacts.Gates) (artifacts.Stage, artifacts.Gates, *corerr.Error) {
	var scope artifacts.Scope
	if err := store.ReadArtifact(m.Artifacts.Scope, &scope); err != nil {
		return "", g, err
	}
	var perspectives artifacts.Perspectives
	if err := store.ReadArtifact(m.Artifacts.Perspectives, &perspectives); err != nil {
		return "", g, err
	}
	plan := wave.BuildPlan(m.RunID, scope, perspectives)
	if err := store.WriteArtifact("wave-1/wave1-plan.json", plan, "wave1_plan", "tick:init"); err != nil {
		return "", g, err
	}
	gate := gates.EvaluateA(scope, perspectives, plan)
	g2, gerr := store.GateWrite(g.Revision, artifacts.GateA, gate, "tick:init gate A")
	if gerr != nil {
		return "", g, gerr
	}
	return artifacts.StageWave1, g2, nil
}

// tickWave runs one wave (1 or 2) through orch, persists outputs/meta/review,
// evaluates Gate B, and records a retry history entry when Gate B fails.
func tickWave(ctx context.Context, store *runstore.Store, m artifacts.Manifest, g artifacts.Gates, orch *orchestrator.Orchestrator, waveNum int, cfg artifacts.RunConfig) (artifacts.Stage, artifacts.Gates, bool, *corerr.Error) {
	var perspectives artifacts.Perspectives
	if err := store.ReadArtifact(m.Artifacts.Perspectives, &perspectives); err != nil {
		return "", g, false, err
	}
	byID := make(map[string]artifacts.Perspective, len(perspectives.Items))
	for _, p := range perspectives.Items {
		byID[p.ID] = p
	}

	var plan artifacts.Wave1Plan
	if waveNum == 1 {
		if err := store.ReadArtifact("wave-1/wave1-plan.json", &plan); err != nil {
			return "", g, false, err
		}
	} else {
		var scope artifacts.Scope
		if err := store.ReadArtifact(m.Artifacts.Scope, &scope); err != nil {
			return "", g, false, err
		}
		var pivotDoc artifacts.Pivot
		if err := store.ReadArtifact(m.Artifacts.Pivot, &pivotDoc); err != nil {
			return "", g, false, err
		}
		gapSet := make(map[string]bool, len(pivotDoc.Wave2GapIDs))
		for _, id := range pivotDoc.Wave2GapIDs {
			gapSet[id] = true
		}
		var decidedGaps []artifacts.Gap
		for _, gp := range pivotDoc.Gaps {
			if gapSet[gp.ID] {
				decidedGaps = append(decidedGaps, gp)
			}
		}
		entries := make([]artifacts.Wave1PlanEntry, 0, len(perspectives.Items))
		for _, p := range perspectives.Items {
			entries = append(entries, wave.BuildWave2Prompt(p, scope, decidedGaps))
		}
		plan = artifacts.Wave1Plan{SchemaVersion: artifacts.Wave1PlanSchemaVersion, RunID: m.RunID, InputsDigest: pivotDoc.InputsDigest, Entries: entries}
		if err := store.WriteArtifact("wave-2/wave2-plan.json", plan, "wave2_plan", "tick:wave2"); err != nil {
			return "", g, false, err
		}
	}

	prior := func(perspectiveID string) (artifacts.WaveOutputMeta, string, bool) {
		var meta artifacts.WaveOutputMeta
		if err := store.ReadArtifact(fmt.Sprintf("wave-%d/%s.meta.json", waveNum, perspectiveID), &meta); err != nil {
			return artifacts.WaveOutputMeta{}, "", false
		}
		md, rerr := store.ReadRawText(fmt.Sprintf("wave-%d/%s.md", waveNum, perspectiveID))
		if rerr != nil {
			return artifacts.WaveOutputMeta{}, "", false
		}
		return meta, md, true
	}

	result, werr := orch.TickWave(ctx, waveNum, plan, byID, prior)
	if werr != nil {
		return "", g, false, werr
	}
	if result.Halted {
		return nextAfterWave(waveNum), g, true, nil
	}

	for _, out := range result.Outputs {
		if err := store.WriteRawText(fmt.Sprintf("wave-%d/%s.md", waveNum, out.PerspectiveID), out.OutputMD, "wave_output", "tick:wave"); err != nil {
			return "", g, false, err
		}
		meta := out.Meta
		meta.SchemaVersion = artifacts.WaveOutputMetaSchemaVersion
		meta.IngestedAt = nowRFC3339()
		if err := store.WriteArtifact(fmt.Sprintf("wave-%d/%s.meta.json", waveNum, out.PerspectiveID), meta, "wave_output_meta", "tick:wave"); err != nil {
			return "", g, false, err
		}
	}
	if err := store.WriteArtifact(m.Artifacts.WaveReview, result.Review, "wave_review", "tick:wave"); err != nil {
		return "", g, false, err
	}

	gate := orchestrator.EvaluateWaveGate(result.Review)
	g2, gerr := store.GateWrite(g.Revision, artifacts.GateB, gate, "tick:wave gate B")
	if gerr != nil {
		return "", g, false, gerr
	}

	if gate.Status == artifacts.GateFail {
		changeNote := "revise failing perspective(s): " + strings.Join(gate.Warnings, ", ")
		currentCount := m.Metrics.RetryCounts[string(artifacts.GateB)]
		rec, rerr := watchdog.RetryRecord(artifacts.GateB, changeNote, "wave output contract failures", currentCount, cfg.RetryCaps)
		if rerr != nil {
			return "", g2, false, rerr
		}
		newCounts := copyRetryCounts(m.Metrics.RetryCounts)
		newCounts[string(artifacts.GateB)] = currentCount + 1
		if _, perr := store.ManifestPatch(m.Revision, map[string]any{
			"metrics": map[string]any{"retry_counts": newCounts, "retry_history": append(m.Metrics.RetryHistory, rec)},
		}, "tick:wave gate B retry record"); perr != nil {
			return "", g2, false, perr
		}
	}

	return nextAfterWave(waveNum), g2, false, nil
}

func nextAfterWave(waveNum int) artifacts.Stage {
	if waveNum == 1 {
		return artifacts.StagePivot
	}
	return artifacts.StageCitations
}

func copyRetryCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// tickPivot parses "## Gaps" out of every wave-1 output and applies the
// pivot rule table to decide wave2 vs citations.
func tickPivot(store *runstore.Store, m artifacts.Manifest, g artifacts.Gates) (artifacts.Stage, artifacts.Gates, *corerr.Error) {
	var perspectives artifacts.Perspectives
	if err := store.ReadArtifact(m.Artifacts.Perspectives, &perspectives); err != nil {
		return "", g, err
	}
	var allGaps []artifacts.Gap
	var references []string
	for _, p := range perspectives.Items {
		rel := fmt.Sprintf("wave-1/%s.md", p.ID)
		md, rerr := store.ReadRawText(rel)
		if rerr != nil {
			return "", g, rerr
		}
		references = append(references, rel)
		sections := wave.Sections(md)
		allGaps = append(allGaps, pivot.ParseGaps(p.ID, sections["Gaps"])...)
	}
	inputsDigest, _ := ioutil.SHA256DigestJSON(allGaps)
	decision := pivot.Decide(m.RunID, references, allGaps, inputsDigest)
	if err := store.WriteArtifact(m.Artifacts.Pivot, decision, "pivot_decision", "tick:pivot"); err != nil {
		return "", g, err
	}
	if decision.Wave2Required {
		return artifacts.StageWave2, g, nil
	}
	return artifacts.StageCitations, g, nil
}

// tickCitations extracts and validates every URL mentioned across wave
// output, writes citations.jsonl + found-by.json + blocked-urls.json +
// blocked-urls.md, and
// evaluates Gate C.
func tickCitations(ctx context.Context, store *runstore.Store, m artifacts.Manifest, g artifacts.Gates, modeOverride, fixturesFile string, log *zap.Logger) (artifacts.Stage, artifacts.Gates, *corerr.Error) {
	var perspectives artifacts.Perspectives
	if err := store.ReadArtifact(m.Artifacts.Perspectives, &perspectives); err != nil {
		return "", g, err
	}
	var pivotDoc artifacts.Pivot
	hasPivot := store.ReadArtifact(m.Artifacts.Pivot, &pivotDoc) == nil

	var docs []citations.Document
	for _, p := range perspectives.Items {
		if md, rerr := store.ReadRawText(fmt.Sprintf("wave-1/%s.md", p.ID)); rerr == nil {
			docs = append(docs, citations.Document{MD: md, Wave: 1, PerspectiveID: p.ID})
		}
		if hasPivot && pivotDoc.Wave2Required {
			if md, rerr := store.ReadRawText(fmt.Sprintf("wave-2/%s.md", p.ID)); rerr == nil {
				docs = append(docs, citations.Document{MD: md, Wave: 2, PerspectiveID: p.ID})
			}
		}
	}

	mode := citations.ResolveMode(m.Query.Sensitivity, artifacts.CitationValidationMode(modeOverride))

	fixtureEntries := citations.OfflineFixtures{}
	if fixturesFile != "" {
		data, rerr := os.ReadFile(fixturesFile)
		if rerr != nil {
			return "", g, corerr.Newf(corerr.CodeNotFound, "read citation fixtures file: %v", rerr)
		}
		if jerr := json.Unmarshal(data, &fixtureEntries); jerr != nil {
			return "", g, corerr.Newf(corerr.CodeInvalidJSON, "decode citation fixtures file: %v", jerr)
		}
	}
	var fetcher citations.Fetcher
	if mode == artifacts.CitationModeOnline || mode == artifacts.CitationModeOnlineDryRun {
		fetcher = &citations.HTTPFetcher{}
	}
	v := citations.NewValidator(mode, fixtureEntries, fetcher, log)

	citationList, foundBy := citations.Run(ctx, v, docs)
	for i := range citationList {
		var lines []string
		for _, mn := range foundBy[citationList[i].NormalizedURL] {
			lines = append(lines, mn.SourceLine)
		}
		citationList[i].FoundBy = lines
	}

	var jsonlLines []string
	for _, c := range citationList {
		data, jerr := json.Marshal(c)
		if jerr != nil {
			return "", g, corerr.Newf(corerr.CodeInvalidJSON, "marshal citation: %v", jerr)
		}
		jsonlLines = append(jsonlLines, string(data))
	}
	if err := store.WriteRawText("citations.jsonl", strings.Join(jsonlLines, "\n")+"\n", "citations", "tick:citations"); err != nil {
		return "", g, err
	}
	if err := store.WriteRawText("citations/found-by.json", mustJSON(foundBy), "found_by", "tick:citations"); err != nil {
		return "", g, err
	}

	var blocked []artifacts.BlockedURL
	for _, c := range citationList {
		switch c.Status {
		case artifacts.CitationBlocked, artifacts.CitationInvalid, artifacts.CitationMismatch:
			blocked = append(blocked, artifacts.BlockedURL{URL: c.URLOriginal, Reason: c.Notes, Action: "excluded from citation pool"})
		}
	}
	if err := store.WriteRawText("citations/blocked-urls.json", mustJSON(blocked), "blocked_urls", "tick:citations"); err != nil {
		return "", g, err
	}
	if err := store.WriteRawText("citations/blocked-urls.md", citations.RenderBlockedMarkdown(blocked), "blocked_urls", "tick:citations"); err != nil {
		return "", g, err
	}

	gate := gates.EvaluateC(citationList)
	g2, gerr := store.GateWrite(g.Revision, artifacts.GateC, gate, "tick:citations gate C")
	if gerr != nil {
		return "", g, gerr
	}
	return artifacts.StageSummaries, g2, nil
}

// readCitationsJSONL decodes citations.jsonl back into []artifacts.Citation,
// the read counterpart to tickCitations' write path.
func readCitationsJSONL(store *runstore.Store) ([]artifacts.Citation, *corerr.Error) {
	raw, err := store.ReadRawText("citations.jsonl")
	if err != nil {
		return nil, err
	}
	var out []artifacts.Citation
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var c artifacts.Citation
		if jerr := json.Unmarshal([]byte(line), &c); jerr != nil {
			return nil, corerr.Newf(corerr.CodeInvalidJSONL, "decode citations.jsonl line: %v", jerr)
		}
		out = append(out, c)
	}
	return out, nil
}

// tickSummaries calls the driver once per perspective for a "summary"
// output, builds summary-pack.json, and evaluates Gate D.
func tickSummaries(ctx context.Context, store *runstore.Store, m artifacts.Manifest, g artifacts.Gates, driver orchestrator.Driver) (artifacts.Stage, artifacts.Gates, bool, *corerr.Error) {
	var perspectives artifacts.Perspectives
	if err := store.ReadArtifact(m.Artifacts.Perspectives, &perspectives); err != nil {
		return "", g, false, err
	}
	citationList, err := readCitationsJSONL(store)
	if err != nil {
		return "", g, false, err
	}
	validatedCIDs := make(map[string]bool, len(citationList))
	for _, c := range citationList {
		validatedCIDs[c.CID] = true
	}

	var entries []summaries.EntryInput
	for _, p := range perspectives.Items {
		prompt := "Summarize validated findings for " + p.Title + " using only cited [@cid_...] markers already present in the wave output."
		req := agentrunner.Request{Kind: "summary", PerspectiveID: p.ID, PromptMD: prompt, PromptDigest: ioutil.DigestString(prompt)}
		resp, halted, rerr := driver.Resolve(ctx, req)
		if rerr != nil {
			return "", g, false, corerr.Newf(corerr.CodeRunAgentRequired, "summary for %s: %v", p.ID, rerr)
		}
		if halted {
			return artifacts.StageSynthesis, g, true, nil
		}
		rel := "summaries/" + p.ID + ".md"
		if err := store.WriteRawText(rel, resp.OutputMD, "summary_output", "tick:summaries"); err != nil {
			return "", g, false, err
		}
		entries = append(entries, summaries.EntryInput{
			PerspectiveID: p.ID, Path: rel, Text: resp.OutputMD, CitedCIDs: summaries.ExtractCitedCIDs(resp.OutputMD),
		})
	}

	pack, berr := summaries.BuildPack(entries, validatedCIDs)
	if berr != nil {
		return "", g, false, berr
	}
	if err := store.WriteArtifact(m.Artifacts.SummaryPack, pack, "summary_pack", "tick:summaries"); err != nil {
		return "", g, false, err
	}

	gate := gates.EvaluateD(pack, len(perspectives.Items), m.Limits.MaxSummaryKB, m.Limits.MaxTotalSummaryKB)
	g2, gerr := store.GateWrite(g.Revision, artifacts.GateD, gate, "tick:summaries gate D")
	if gerr != nil {
		return "", g, false, gerr
	}
	return artifacts.StageSynthesis, g2, false, nil
}

// tickSynthesis calls the driver once for a "synthesis" draft, computes the
// four Gate E reports, and evaluates Gate E.
func tickSynthesis(ctx context.Context, store *runstore.Store, m artifacts.Manifest, g artifacts.Gates, driver orchestrator.Driver) (artifacts.Stage, artifacts.Gates, bool, *corerr.Error) {
	var pack artifacts.SummaryPack
	if err := store.ReadArtifact(m.Artifacts.SummaryPack, &pack); err != nil {
		return "", g, false, err
	}
	citationList, err := readCitationsJSONL(store)
	if err != nil {
		return "", g, false, err
	}
	var validatedCIDs []string
	for _, c := range citationList {
		validatedCIDs = append(validatedCIDs, c.CID)
	}

	prompt := "Synthesize the final report from the summary pack, citing every numeric claim with a validated [@cid_...] marker."
	req := agentrunner.Request{Kind: "synthesis", PerspectiveID: "synthesis", PromptMD: prompt, PromptDigest: ioutil.DigestString(prompt)}
	resp, halted, rerr := driver.Resolve(ctx, req)
	if rerr != nil {
		return "", g, false, corerr.Newf(corerr.CodeRunAgentRequired, "synthesis: %v", rerr)
	}
	if halted {
		return artifacts.StageReview, g, true, nil
	}

	draftMD := resp.OutputMD
	if err := store.WriteRawText(m.Artifacts.Synthesis, draftMD, "synthesis_draft", "tick:synthesis"); err != nil {
		return "", g, false, err
	}

	sections := summaries.ValidateSynthesisHeadings(draftMD)
	numeric := summaries.FindUncitedNumericClaims(draftMD)
	util := summaries.ComputeCitationUtilization(draftMD, validatedCIDs)

	if err := store.WriteRawText("reports/gate-e-sections-present.json", mustJSON(sections), "gate_e_report", "tick:synthesis"); err != nil {
		return "", g, false, err
	}
	if err := store.WriteRawText("reports/gate-e-numeric-claims.json", mustJSON(numeric), "gate_e_report", "tick:synthesis"); err != nil {
		return "", g, false, err
	}
	if err := store.WriteRawText("reports/gate-e-citation-utilization.json", mustJSON(util), "gate_e_report", "tick:synthesis"); err != nil {
		return "", g, false, err
	}

	gate := gates.EvaluateE(sections, numeric, util)
	status := artifacts.StatusReport{Status: string(gate.Status), Warnings: gate.Warnings}
	if err := store.WriteRawText("reports/gate-e-status.json", mustJSON(status), "gate_e_report", "tick:synthesis"); err != nil {
		return "", g, false, err
	}

	g2, gerr := store.GateWrite(g.Revision, artifacts.GateE, gate, "tick:synthesis gate E")
	if gerr != nil {
		return "", g, false, gerr
	}
	return artifacts.StageReview, g2, false, nil
}

func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}\n"
	}
	return string(data) + "\n"
}

// tickReview ingests a review bundle dropped at --review-bundle-file and
// decides whether the run advances to finalize, loops back to synthesis, or
// escalates because the review iteration cap was reached without a PASS.
func tickReview(store *runstore.Store, m artifacts.Manifest, g artifacts.Gates, bundleFile string) (artifacts.Stage, artifacts.Gates, *corerr.Error) {
	if bundleFile == "" {
		return "", g, corerr.New(corerr.CodeInvalidArgs, "--review-bundle-file is required at the review stage", nil)
	}
	data, rerr := os.ReadFile(bundleFile)
	if rerr != nil {
		return "", g, corerr.Newf(corerr.CodeNotFound, "read review bundle file: %v", rerr)
	}
	var bundle artifacts.ReviewBundle
	if jerr := json.Unmarshal(data, &bundle); jerr != nil {
		return "", g, corerr.Newf(corerr.CodeInvalidJSON, "decode review bundle file: %v", jerr)
	}
	if err := review.ValidateBundle(bundle); err != nil {
		return "", g, err
	}
	if err := store.WriteArtifact(m.Artifacts.ReviewBundle, bundle, "review_bundle", "tick:review"); err != nil {
		return "", g, err
	}

	outcome, derr := review.Decide(bundle, m.Limits.MaxReviewIterations)
	switch outcome {
	case review.OutcomeAdvanceToFinalize:
		return artifacts.StageFinalize, g, nil
	case review.OutcomeReviseSynthesis:
		return artifacts.StageSynthesis, g, nil
	default: // review.OutcomeEscalate
		return "", g, derr
	}
}

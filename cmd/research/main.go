// Command research is the deterministic deep-research orchestrator's CLI
// (spec.md §6): init/tick/run/agent-result/status/inspect/triage/pause/
// resume/cancel/capture-fixtures, all operating on a single run_root
// directory tree. Every subcommand prints its results as JSON objects to
// stdout (one per command, except run, which prints one per tick) and
// exits 0 on success, 2 on usage error, 3 on a typed operation error, 4 on a
// lock conflict, 1 on an unexpected internal error.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
	"github.com/deepresearch/orchestrator/internal/fixtures"
	"github.com/deepresearch/orchestrator/internal/runstore"
	"github.com/deepresearch/orchestrator/internal/status"
)

const (
	exitOK           = 0
	exitUsageError   = 2
	exitOperationErr = 3
	exitLockConflict = 4
	exitInternalErr  = 1
)

func main() {
	_ = godotenv.Load(".env")
	log, _ := zap.NewProduction()
	if log == nil {
		log = zap.NewNop()
	}
	defer log.Sync()

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsageError)
	}

	verb := os.Args[1]
	args := os.Args[2:]

	var code int
	switch verb {
	case "init":
		code = cmdInit(args, log)
	case "tick":
		code = cmdTick(args, log)
	case "run":
		code = cmdRun(args, log)
	case "status":
		code = cmdStatus(args, log)
	case "inspect":
		code = cmdInspect(args, log)
	case "triage":
		code = cmdTriage(args, log)
	case "agent-result":
		code = cmdAgentResult(args, log)
	case "pause":
		code = cmdSetStatus(args, log, artifacts.StatusPaused)
	case "resume":
		code = cmdSetStatus(args, log, artifacts.StatusRunning)
	case "cancel":
		code = cmdSetStatus(args, log, artifacts.StatusCancelled)
	case "capture-fixtures":
		code = cmdCaptureFixtures(args, log)
	default:
		usage()
		code = exitUsageError
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: research <init|tick|run|status|inspect|triage|agent-result|pause|resume|cancel|capture-fixtures> [flags]")
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal output: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printOpError(err *corerr.Error) int {
	printJSON(map[string]any{"error": map[string]any{"code": err.Code, "message": err.Message, "details": err.Details}})
	return exitOperationErr
}

func loadRunRoot(fs *flag.FlagSet, args []string) (string, int, bool) {
	runRoot := fs.String("run", "", "path to the run_root directory")
	if err := fs.Parse(args); err != nil {
		return "", exitUsageError, false
	}
	if *runRoot == "" {
		printJSON(map[string]any{"error": map[string]any{"code": corerr.CodeInvalidArgs, "message": "--run is required"}})
		return "", exitUsageError, false
	}
	return *runRoot, 0, true
}

func cmdStatus(args []string, log *zap.Logger) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	runRoot, code, ok := loadRunRoot(fs, args)
	if !ok {
		return code
	}
	store := runstore.New(runRoot, log)
	m, err := store.ReadManifest()
	if err != nil {
		return printOpError(err)
	}
	g, err := store.ReadGates()
	if err != nil {
		return printOpError(err)
	}
	printJSON(status.BuildSummary(m, g))
	return exitOK
}

func cmdInspect(args []string, log *zap.Logger) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	runRoot, code, ok := loadRunRoot(fs, args)
	if !ok {
		return code
	}
	store := runstore.New(runRoot, log)
	m, err := store.ReadManifest()
	if err != nil {
		return printOpError(err)
	}
	g, err := store.ReadGates()
	if err != nil {
		return printOpError(err)
	}
	printJSON(status.BuildInspect(m, g))
	return exitOK
}

func cmdTriage(args []string, log *zap.Logger) int {
	fs := flag.NewFlagSet("triage", flag.ContinueOnError)
	runRoot, code, ok := loadRunRoot(fs, args)
	if !ok {
		return code
	}
	store := runstore.New(runRoot, log)
	m, err := store.ReadManifest()
	if err != nil {
		return printOpError(err)
	}
	g, err := store.ReadGates()
	if err != nil {
		return printOpError(err)
	}
	var halt *artifacts.Halt
	var h artifacts.Halt
	if rerr := store.ReadArtifact("operator/halt/latest.json", &h); rerr == nil {
		halt = &h
	}
	printJSON(status.BuildTriage(m, g, halt))
	return exitOK
}

// cmdAgentResult ingests a result file dropped by an external agent process
// for the "task" driver seam (spec.md §4.12) — this implementation accepts
// the markdown body directly via --output-file so a test or scripted agent
// can call it without needing a full driver loop.
func cmdAgentResult(args []string, log *zap.Logger) int {
	fs := flag.NewFlagSet("agent-result", flag.ContinueOnError)
	runRoot := fs.String("run", "", "path to the run_root directory")
	perspectiveID := fs.String("perspective", "", "perspective_id this result answers")
	outputFile := fs.String("output-file", "", "path to the agent's markdown output")
	wave := fs.Int("wave", 1, "wave number (1 or 2)")
	promptDigest := fs.String("prompt-digest", "", "prompt_digest this output answers")
	if err := fs.Parse(args); err != nil {
		return exitUsageError
	}
	if *runRoot == "" || *perspectiveID == "" || *outputFile == "" {
		printJSON(map[string]any{"error": map[string]any{"code": corerr.CodeInvalidArgs, "message": "--run, --perspective, and --output-file are required"}})
		return exitUsageError
	}
	body, rerr := os.ReadFile(*outputFile)
	if rerr != nil {
		printJSON(map[string]any{"error": map[string]any{"code": corerr.CodeNotFound, "message": rerr.Error()}})
		return exitOperationErr
	}

	store := runstore.New(*runRoot, log)
	rel := fmt.Sprintf("wave-%d/%s.md", *wave, *perspectiveID)
	if werr := store.WriteRawText(rel, string(body), "wave_output_ingest", "agent-result"); werr != nil {
		return printOpError(werr)
	}
	meta := artifacts.WaveOutputMeta{
		SchemaVersion: artifacts.WaveOutputMetaSchemaVersion,
		PromptDigest:  *promptDigest,
		IngestedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	metaRel := fmt.Sprintf("wave-%d/%s.meta.json", *wave, *perspectiveID)
	if werr := store.WriteArtifact(metaRel, meta, "wave_output_meta", "agent-result"); werr != nil {
		return printOpError(werr)
	}
	printJSON(map[string]any{"ingested": *perspectiveID, "path": rel})
	return exitOK
}

func cmdSetStatus(args []string, log *zap.Logger, newStatus artifacts.Status) int {
	fs := flag.NewFlagSet(string(newStatus), flag.ContinueOnError)
	runRoot, code, ok := loadRunRoot(fs, args)
	if !ok {
		return code
	}
	store := runstore.New(runRoot, log)
	m, err := store.ReadManifest()
	if err != nil {
		return printOpError(err)
	}
	if lerr := validateStatusTransition(m.Status, newStatus); lerr != nil {
		return printOpError(lerr)
	}
	next, perr := store.ManifestPatch(m.Revision, map[string]any{"status": newStatus}, "status transition via "+string(newStatus))
	if perr != nil {
		return printOpError(perr)
	}
	printJSON(map[string]any{"run_id": next.RunID, "status": next.Status})
	return exitOK
}

func validateStatusTransition(from, to artifacts.Status) *corerr.Error {
	terminal := from == artifacts.StatusCompleted || from == artifacts.StatusCancelled || from == artifacts.StatusFailed
	if terminal {
		return corerr.New(corerr.CodeLifecycleRuleViolation, "cannot transition a terminal run", map[string]any{"from": string(from), "to": string(to)})
	}
	return nil
}

func cmdCaptureFixtures(args []string, log *zap.Logger) int {
	fs := flag.NewFlagSet("capture-fixtures", flag.ContinueOnError)
	runRoot := fs.String("run", "", "path to the run_root directory")
	fixturesRoot := fs.String("fixtures-root", "", "directory under which the bundle is written")
	bundleID := fs.String("bundle-id", "", "identifier for this fixture bundle")
	reason := fs.String("reason", "", "why this bundle was captured")
	if err := fs.Parse(args); err != nil {
		return exitUsageError
	}
	if *runRoot == "" || *fixturesRoot == "" || *bundleID == "" {
		printJSON(map[string]any{"error": map[string]any{"code": corerr.CodeInvalidArgs, "message": "--run, --fixtures-root, and --bundle-id are required"}})
		return exitUsageError
	}
	bundle, berr := fixtures.CaptureBundle(*runRoot, *fixturesRoot, *bundleID, *reason, fixtures.DefaultArtifactSet())
	if berr != nil {
		return printOpError(berr)
	}
	printJSON(bundle)
	return exitOK
}

package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deepresearch/orchestrator/internal/agentrunner"
	"github.com/deepresearch/orchestrator/internal/artifacts"
	"github.com/deepresearch/orchestrator/internal/corerr"
	"github.com/deepresearch/orchestrator/internal/gates"
	"github.com/deepresearch/orchestrator/internal/stagemachine"
	"github.com/deepresearch/orchestrator/internal/wave"
)

// DefaultWaveConcurrency bounds how many perspectives run concurrently
// within one wave tick (spec.md §4.12).
const DefaultWaveConcurrency = 4

// Orchestrator ties one run's driver, concurrency policy, and logger
// together. It has no filesystem state of its own — every artifact it
// produces is handed back to the caller to persist via runstore, keeping
// Tick* functions independently testable without a real run_root.
type Orchestrator struct {
	Driver      Driver
	Concurrency int
	Log         *zap.Logger
}

// New builds an Orchestrator with sane defaults; a nil logger becomes
// zap.NewNop() and a zero concurrency becomes DefaultWaveConcurrency.
func New(driver Driver, concurrency int, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = DefaultWaveConcurrency
	}
	return &Orchestrator{Driver: driver, Concurrency: concurrency, Log: log}
}

// PerspectiveOutput is one perspective's resolved output plus its prior
// cached meta (if any) for this tick.
type PerspectiveOutput struct {
	PerspectiveID string
	OutputMD      string
	Meta          artifacts.WaveOutputMeta
	Halted        bool
}

// WaveResult is what TickWave returns: either every perspective resolved (in
// which case Halted is false and Review is populated), or at least one
// halted on an external task driver (Halted is true and the tick must stop
// here so the CLI can write its halt artifact).
type WaveResult struct {
	Outputs []PerspectiveOutput
	Review  artifacts.WaveReview
	Halted  bool
}

// PriorMeta is the caller-supplied lookup for a perspective's previously
// ingested wave-output-meta.v1 sidecar, used for prompt-digest caching: if
// the new prompt_digest matches the cached one, the stage skips calling the
// driver entirely and reuses the previously ingested output.
type PriorMeta func(perspectiveID string) (meta artifacts.WaveOutputMeta, outputMD string, ok bool)

// TickWave runs one wave (1 or 2) to completion: fan out a driver call per
// plan entry (skipping any whose prompt_digest is unchanged from a prior
// ingest), validate each output against its contract, and assemble the
// WaveReview + retry directives for any that failed.
//
// Expectations:
//   - concurrency is bounded to o.Concurrency regardless of how many
//     entries plan has
//   - if the driver halts on any entry (DriverTask), WaveResult.Halted is
//     true and Review is left zero-valued — the caller must not evaluate
//     Gate B until every perspective has resolved
//   - a driver error on one perspective does not abort the others; it is
//     recorded as a failing WaveReviewEntry so partial progress is never
//     silently lost
func (o *Orchestrator) TickWave(ctx context.Context, wave int, plan artifacts.Wave1Plan, perspectives map[string]artifacts.Perspective, prior PriorMeta) (WaveResult, *corerr.Error) {
	outputs := make([]PerspectiveOutput, len(plan.Entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)

	for i, entry := range plan.Entries {
		i, entry := i, entry
		g.Go(func() error {
			if meta, cachedMD, ok := prior(entry.PerspectiveID); ok && meta.PromptDigest == entry.PromptDigest {
				outputs[i] = PerspectiveOutput{PerspectiveID: entry.PerspectiveID, OutputMD: cachedMD, Meta: meta}
				return nil
			}
			req := agentrunner.Request{
				Kind:          stageKindForWave(wave),
				PerspectiveID: entry.PerspectiveID,
				PromptMD:      entry.PromptMD,
				PromptDigest:  entry.PromptDigest,
			}
			resp, halted, err := o.Driver.Resolve(gctx, req)
			if err != nil {
				o.Log.Warn("agent runner failed", zap.String("perspective_id", entry.PerspectiveID), zap.Error(err))
				outputs[i] = PerspectiveOutput{PerspectiveID: entry.PerspectiveID, Halted: false}
				return nil
			}
			if halted {
				outputs[i] = PerspectiveOutput{PerspectiveID: entry.PerspectiveID, Halted: true}
				return nil
			}
			outputs[i] = PerspectiveOutput{
				PerspectiveID: entry.PerspectiveID,
				OutputMD:      resp.OutputMD,
				Meta: artifacts.WaveOutputMeta{
					SchemaVersion: artifacts.WaveOutputMetaSchemaVersion,
					PromptDigest:  entry.PromptDigest,
					AgentRunID:    resp.AgentRunID,
					Model:         resp.Model,
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WaveResult{}, corerr.Newf(corerr.CodeRunAgentRequired, "wave tick: %v", err)
	}

	for _, out := range outputs {
		if out.Halted {
			return WaveResult{Outputs: outputs, Halted: true}, nil
		}
	}

	review := artifacts.WaveReview{SchemaVersion: artifacts.WaveReviewSchemaVersion, Wave: wave}
	for _, out := range outputs {
		p, ok := perspectives[out.PerspectiveID]
		if !ok {
			continue
		}
		entry := waveValidateOutput(out.OutputMD, p.PromptContract)
		entry.PerspectiveID = out.PerspectiveID
		review.Entries = append(review.Entries, entry)
		if !entry.Pass {
			review.RetryDirectives = append(review.RetryDirectives, wave.BuildRetryDirective(entry))
		}
	}
	return WaveResult{Outputs: outputs, Review: review}, nil
}

func waveValidateOutput(md string, contract artifacts.PromptContract) artifacts.WaveReviewEntry {
	return wave.ValidateOutput(md, contract)
}

func stageKindForWave(w int) string {
	if w == 1 {
		return "wave1"
	}
	return "wave2"
}

// EvaluateWaveGate runs Gate B over a completed WaveReview — a thin wrapper
// kept in this package so callers touch one import for the whole wave tick
// lifecycle (plan → run → validate → gate).
func EvaluateWaveGate(review artifacts.WaveReview) artifacts.Gate {
	return gates.EvaluateB(review)
}

// AdvanceDecision is the result of checking whether the stage machine allows
// moving from `from` to `to` given the current gates.json.
type AdvanceDecision = stagemachine.Decision

// CheckAdvance delegates to stagemachine.Advance; kept here so orchestrator
// callers don't need a second import for the one call they make per tick.
func CheckAdvance(from, to artifacts.Stage, g artifacts.Gates) (AdvanceDecision, *corerr.Error) {
	return stagemachine.Advance(from, to, g)
}

// BuildHalt renders a Halt artifact for a tick that could not proceed,
// either because the driver halted waiting for external input or because a
// stage transition was blocked on a gate.
func BuildHalt(runID string, tickIndex int, current artifacts.Stage, blockedTo artifacts.Stage, blockedGates []artifacts.GateID, code corerr.Code, message string) artifacts.Halt {
	gateNames := make([]string, len(blockedGates))
	for i, g := range blockedGates {
		gateNames[i] = string(g)
	}
	return artifacts.Halt{
		SchemaVersion: artifacts.HaltSchemaVersion,
		RunID:         runID,
		TickIndex:     tickIndex,
		StageCurrent:  current,
		BlockedTransition: artifacts.BlockedTransition{
			From: current, To: blockedTo,
		},
		Error: artifacts.HaltError{Code: string(code), Message: message},
		Blockers: artifacts.HaltBlockers{
			BlockedGates: gateNames,
		},
		NextCommands: []string{fmt.Sprintf("research agent-result --run %s ...", runID), fmt.Sprintf("research status --run %s", runID)},
	}
}

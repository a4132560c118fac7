// Package orchestrator runs the agent-facing part of a tick: TickWave fans a
// wave's plan out through a Driver, validates each output, and assembles the
// wave review; CheckAdvance and BuildHalt wrap the stage machine and the
// halt document. It reads and writes no files itself — cmd/research loads
// the run state and persists every result through internal/runstore.
package orchestrator

import (
	"context"

	"github.com/deepresearch/orchestrator/internal/agentrunner"
)

// DriverKind selects how wave/summary/synthesis/review text gets produced.
type DriverKind string

const (
	// DriverFixture replays pre-recorded agentrunner.Response values —
	// used for deterministic tests and fixture-replay runs.
	DriverFixture DriverKind = "fixture"
	// DriverTask halts the tick, waiting for an external process to drop a
	// result in through the agent-result verb before resuming — spec.md
	// §4.12's "agent seam" for a human- or script-driven agent. The tick
	// writes only the halt artifact (operator/halt/latest.json, code
	// RUN_AGENT_REQUIRED); no prompt file is written.
	DriverTask DriverKind = "task"
	// DriverLive calls an injected agentrunner.AgentRunner synchronously —
	// the seam a real LLM-calling implementation would plug into (the
	// implementation itself is out of scope per spec.md's Non-goals).
	DriverLive DriverKind = "live"
)

// Driver resolves one Request into a Response, or reports that the tick
// must halt and wait (TaskDriver only).
type Driver interface {
	// Resolve returns (response, false, nil) on synchronous completion, or
	// (zero, true, nil) when the tick must halt waiting for external input.
	Resolve(ctx context.Context, req agentrunner.Request) (resp agentrunner.Response, halted bool, err error)
}

// FixtureDriver wraps an agentrunner.AgentRunner backed by fixture data.
type FixtureDriver struct {
	Runner agentrunner.AgentRunner
}

func (d *FixtureDriver) Resolve(ctx context.Context, req agentrunner.Request) (agentrunner.Response, bool, error) {
	resp, err := d.Runner.Run(ctx, req)
	return resp, false, err
}

// LiveDriver wraps a real (or test-double) AgentRunner called synchronously.
type LiveDriver struct {
	Runner agentrunner.AgentRunner
}

func (d *LiveDriver) Resolve(ctx context.Context, req agentrunner.Request) (agentrunner.Response, bool, error) {
	resp, err := d.Runner.Run(ctx, req)
	return resp, false, err
}

// TaskDriver never resolves a request itself: it reports halted=true so the
// tick writes a halt artifact and stops; the agent-result CLI verb later
// ingests the dropped-in result file for the next tick to pick up.
type TaskDriver struct{}

func (d *TaskDriver) Resolve(_ context.Context, _ agentrunner.Request) (agentrunner.Response, bool, error) {
	return agentrunner.Response{}, true, nil
}

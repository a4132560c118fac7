// Package agentrunner defines the seam between the orchestrator and
// whatever actually produces wave/summary/synthesis/review text (spec.md
// §4.12's "agent seam"). This package ships only test doubles — a real
// AgentRunner (calling an LLM) is explicitly out of scope (Non-goals).
package agentrunner

import "context"

// Request is what the orchestrator hands an AgentRunner for one unit of
// work: a perspective's prompt, or a review-bundle request, identified by
// Kind so a single interface covers every stage that needs agent output.
type Request struct {
	Kind          string // "wave1" | "wave2" | "summary" | "synthesis" | "review"
	PerspectiveID string
	PromptMD      string
	PromptDigest  string
}

// Response is the agent seam's answer: raw markdown plus the metadata
// persisted into the corresponding *.meta.json sidecar.
type Response struct {
	OutputMD   string
	Model      string
	AgentRunID string
}

// AgentRunner produces agent output for one Request. Implementations may be
// synchronous (FixtureRunner, CountingRunner) or may halt the tick and wait
// for an external process to drop a result file (the "task" driver in
// internal/orchestrator) — that halting behavior lives in the driver, not
// here, since this interface only describes the in-process call.
type AgentRunner interface {
	Run(ctx context.Context, req Request) (Response, error)
}

// FixtureRunner returns pre-recorded output keyed by PerspectiveID+Kind, for
// deterministic tests and for replaying a captured run without an agent.
type FixtureRunner struct {
	Outputs map[string]Response // key: Kind + "/" + PerspectiveID
}

func fixtureKey(req Request) string { return req.Kind + "/" + req.PerspectiveID }

func (f *FixtureRunner) Run(_ context.Context, req Request) (Response, error) {
	if resp, ok := f.Outputs[fixtureKey(req)]; ok {
		return resp, nil
	}
	return Response{}, errNoFixture(req)
}

// CountingRunner wraps another AgentRunner and counts how many times Run
// was called per Kind + "/" + PerspectiveID key — grounded in the teacher's llm.Client tier-counting
// pattern, used by orchestrator tests to assert prompt-digest caching
// actually skips unchanged perspectives instead of re-invoking the runner.
type CountingRunner struct {
	Inner AgentRunner
	Calls map[string]int
}

// NewCountingRunner wraps inner with a fresh call counter.
func NewCountingRunner(inner AgentRunner) *CountingRunner {
	return &CountingRunner{Inner: inner, Calls: map[string]int{}}
}

func (c *CountingRunner) Run(ctx context.Context, req Request) (Response, error) {
	c.Calls[fixtureKey(req)]++
	return c.Inner.Run(ctx, req)
}

type fixtureMissError struct{ key string }

func (e fixtureMissError) Error() string { return "no fixture registered for " + e.key }

func errNoFixture(req Request) error { return fixtureMissError{key: fixtureKey(req)} }

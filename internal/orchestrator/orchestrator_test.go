package orchestrator

import (
	"context"
	"testing"

	"github.com/deepresearch/orchestrator/internal/agentrunner"
	"github.com/deepresearch/orchestrator/internal/artifacts"
)

func samplePerspectives() map[string]artifacts.Perspective {
	contract := artifacts.PromptContract{MaxWords: 100, MaxSources: 5, MustIncludeSections: []string{"Findings", "Gaps", "Sources"}}
	return map[string]artifacts.Perspective{
		"standard-1": {ID: "standard-1", PromptContract: contract},
	}
}

func samplePlan() artifacts.Wave1Plan {
	return artifacts.Wave1Plan{Entries: []artifacts.Wave1PlanEntry{
		{PerspectiveID: "standard-1", PromptMD: "prompt", PromptDigest: "digest-1"},
	}}
}

func noPrior(string) (artifacts.WaveOutputMeta, string, bool) { return artifacts.WaveOutputMeta{}, "", false }

func TestTickWave_ProducesPassingReviewForWellFormedOutput(t *testing.T) {
	runner := &agentrunner.FixtureRunner{Outputs: map[string]agentrunner.Response{
		"wave1/standard-1": {OutputMD: "## Findings\n\ntext\n\n## Gaps\n\n- (P1) thing\n\n## Sources\n\n- Example: https://example.com/a\n"},
	}}
	o := New(&FixtureDriver{Runner: runner}, 2, nil)
	result, err := o.TickWave(context.Background(), 1, samplePlan(), samplePerspectives(), noPrior)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if result.Halted {
		t.Fatalf("expected not halted")
	}
	if len(result.Review.Entries) != 1 || !result.Review.Entries[0].Pass {
		t.Fatalf("expected passing review entry, got %+v", result.Review.Entries)
	}
}

func TestTickWave_SkipsDriverCallWhenPromptDigestUnchanged(t *testing.T) {
	runner := &agentrunner.FixtureRunner{Outputs: map[string]agentrunner.Response{}}
	counting := agentrunner.NewCountingRunner(runner)
	o := New(&FixtureDriver{Runner: counting}, 2, nil)
	prior := func(id string) (artifacts.WaveOutputMeta, string, bool) {
		return artifacts.WaveOutputMeta{PromptDigest: "digest-1"}, "## Findings\n\ntext\n\n## Gaps\n\n- (P1) x\n\n## Sources\n\n- E: https://example.com/a\n", true
	}
	result, err := o.TickWave(context.Background(), 1, samplePlan(), samplePerspectives(), prior)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if counting.Calls["wave1/standard-1"] != 0 {
		t.Fatalf("expected driver not called when prompt digest unchanged, got %d calls", counting.Calls["wave1/standard-1"])
	}
	if len(result.Review.Entries) != 1 {
		t.Fatalf("expected 1 review entry from cached output")
	}
}

func TestTickWave_HaltsWhenTaskDriverHalts(t *testing.T) {
	o := New(&TaskDriver{}, 2, nil)
	result, err := o.TickWave(context.Background(), 1, samplePlan(), samplePerspectives(), noPrior)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !result.Halted {
		t.Fatalf("expected halted result from TaskDriver")
	}
}

func TestCheckAdvance_BlocksOnNotRunGate(t *testing.T) {
	g := artifacts.NewGates("run-1", "")
	d, err := CheckAdvance(artifacts.StageInit, artifacts.StageWave1, g)
	if err != nil {
		t.Fatalf("check advance: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected blocked")
	}
}

// Package status builds the shared read-model projection behind the
// status, inspect, and triage CLI verbs (spec.md §6): the CLI reads
// manifest+gates (and, for triage, the latest halt) and one Build function
// per verb renders the view it prints from those same documents, so the
// three commands can never disagree about a run's state.
package status

import "github.com/deepresearch/orchestrator/internal/artifacts"

// Summary is the compact view the "status" verb prints.
type Summary struct {
	RunID    string           `json:"run_id"`
	Status   artifacts.Status `json:"status"`
	Stage    artifacts.Stage  `json:"stage"`
	Revision int              `json:"revision"`
	Gates    map[string]string `json:"gates"`
}

// Triage is the diagnostic view the "triage" verb prints: everything
// Summary has plus the failures list and, if present, the current halt.
type Triage struct {
	Summary
	Failures []artifacts.Failure `json:"failures"`
	Halt     *artifacts.Halt     `json:"halt,omitempty"`
}

// BuildSummary projects a manifest+gates pair into Summary.
func BuildSummary(m artifacts.Manifest, g artifacts.Gates) Summary {
	gateView := make(map[string]string, len(g.Gates))
	for id, gate := range g.Gates {
		gateView[string(id)] = string(gate.Status)
	}
	return Summary{
		RunID:    m.RunID,
		Status:   m.Status,
		Stage:    m.Stage.Current,
		Revision: m.Revision,
		Gates:    gateView,
	}
}

// BuildTriage projects a manifest+gates+optional halt into Triage.
func BuildTriage(m artifacts.Manifest, g artifacts.Gates, halt *artifacts.Halt) Triage {
	return Triage{
		Summary:  BuildSummary(m, g),
		Failures: m.Failures,
		Halt:     halt,
	}
}

// Inspect is the full-detail view the "inspect" verb prints: the raw
// manifest and gates documents, for an operator who wants everything.
type Inspect struct {
	Manifest artifacts.Manifest `json:"manifest"`
	Gates    artifacts.Gates    `json:"gates"`
}

// BuildInspect returns the raw documents verbatim — there is no projection
// to do, but the helper keeps all three verbs going through this package.
func BuildInspect(m artifacts.Manifest, g artifacts.Gates) Inspect {
	return Inspect{Manifest: m, Gates: g}
}

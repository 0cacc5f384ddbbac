// Package determine produces the determination under test: given a
// scenario, which filings does the agent believe are required. The grading
// side never trusts this package; expected answers come from the scenario
// package's own policy.
package determine

import (
	"context"
	"time"

	"github.com/fleetware/regtrain/scenario"
)

// Determination is one agent's answer for one scenario.
type Determination struct {
	ScenarioID   string                `json:"scenarioId"`
	Requirements scenario.Requirements `json:"requirements"`
	Reasoning    string                `json:"reasoning"`
	Citations    []string              `json:"citations,omitempty"`
	// Confidence is in [0,1].
	Confidence   float64       `json:"confidence"`
	ResponseTime time.Duration `json:"responseTime"`
}

// Determiner is the swappable seam grading is written against. A rule-backed
// implementation, a live AI agent delegate, and a test stub all satisfy it.
type Determiner interface {
	Determine(ctx context.Context, sc *scenario.Scenario) (*Determination, error)
}

// Func adapts a plain function to the Determiner interface.
type Func func(ctx context.Context, sc *scenario.Scenario) (*Determination, error)

func (f Func) Determine(ctx context.Context, sc *scenario.Scenario) (*Determination, error) {
	return f(ctx, sc)
}

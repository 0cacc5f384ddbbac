package determine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fleetware/regtrain/rules"
	"github.com/fleetware/regtrain/scenario"
)

// Requirement action names. The determiner reads the engine's executed
// action list and maps these back to the five requirement flags.
const (
	ActionRequireUSDOT    = "require_usdot"
	ActionRequireMC       = "require_mc_authority"
	ActionRequireHazmat   = "require_hazmat_endorsement"
	ActionRequireIFTA     = "require_ifta"
	ActionRequireStateReg = "require_state_registration"
)

var actionCitations = map[string]string{
	ActionRequireUSDOT:    "49 CFR 390.19T",
	ActionRequireMC:       "49 USC 13902",
	ActionRequireHazmat:   "49 CFR 383.93",
	ActionRequireIFTA:     "IFTA Articles of Agreement R305",
	ActionRequireStateReg: "state intrastate operating authority",
}

// RuleDeterminer answers scenarios by running a compliance rule catalog
// through the rules engine. Its catalog encodes this determiner's own view
// of the regulations; it deliberately shares no code with the scenario
// package's expected-requirements policy.
type RuleDeterminer struct {
	registry *rules.Registry
	catalog  *rules.Catalog
	engine   *rules.Engine
}

// newVocabulary builds a registry carrying the standard condition and
// action names the compliance catalogs are written against. Requirement
// actions have no external effect; the determiner reads them off the
// executed-actions list after the pass.
func newVocabulary() (*rules.Registry, error) {
	registry, err := rules.NewRegistry()
	if err != nil {
		return nil, err
	}
	if err := registerConditions(registry); err != nil {
		return nil, err
	}
	for _, action := range []string{
		ActionRequireUSDOT,
		ActionRequireMC,
		ActionRequireHazmat,
		ActionRequireIFTA,
		ActionRequireStateReg,
	} {
		if err := registry.RegisterAction(action, func(rules.Context) error { return nil }); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// NewRuleDeterminer builds a determiner with the default compliance catalog.
func NewRuleDeterminer() (*RuleDeterminer, error) {
	registry, err := newVocabulary()
	if err != nil {
		return nil, err
	}

	catalog := rules.NewCatalog()
	if err := catalog.Load(complianceRules(), registry); err != nil {
		return nil, fmt.Errorf("failed to load compliance catalog: %w", err)
	}

	return &RuleDeterminer{
		registry: registry,
		catalog:  catalog,
		engine:   rules.NewEngine(registry),
	}, nil
}

// NewRuleDeterminerFromFile builds a determiner whose rule catalog comes
// from a YAML file instead of the built-in set. The file may define extra
// CEL conditions; the standard condition and action vocabulary is
// registered first.
func NewRuleDeterminerFromFile(path string) (*RuleDeterminer, error) {
	registry, err := newVocabulary()
	if err != nil {
		return nil, err
	}

	catalog := rules.NewCatalog()
	if err := rules.LoadFile(path, registry, catalog); err != nil {
		return nil, err
	}

	return &RuleDeterminer{
		registry: registry,
		catalog:  catalog,
		engine:   rules.NewEngine(registry),
	}, nil
}

// Catalog exposes the loaded compliance catalog, mainly so a service can
// report its version.
func (d *RuleDeterminer) Catalog() *rules.Catalog {
	return d.catalog
}

// Registry exposes the condition/action registry, needed to reload the
// catalog from disk.
func (d *RuleDeterminer) Registry() *rules.Registry {
	return d.registry
}

// Determine runs the compliance catalog against the scenario's facts.
func (d *RuleDeterminer) Determine(ctx context.Context, sc *scenario.Scenario) (*Determination, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result := d.engine.Evaluate(d.catalog.Active(), rules.Context{
		SessionID:   sc.ID,
		Environment: "training",
		Data:        Facts(sc),
		Timestamp:   start,
	})

	var req scenario.Requirements
	var citations []string
	for _, action := range result.ExecutedActions {
		switch action {
		case ActionRequireUSDOT:
			req.USDOT = true
		case ActionRequireMC:
			req.MCAuthority = true
		case ActionRequireHazmat:
			req.Hazmat = true
		case ActionRequireIFTA:
			req.IFTA = true
		case ActionRequireStateReg:
			req.StateRegistration = true
		}
		if cite, ok := actionCitations[action]; ok {
			citations = append(citations, cite)
		}
	}

	var reasons []string
	for _, eval := range result.Evaluations {
		if eval.Triggered {
			reasons = append(reasons, eval.RuleName)
		}
	}

	// Confidence degrades when the pass produced warnings or errors; an
	// indeterminate answer should grade as suspect, not as confident.
	confidence := 1.0
	confidence -= 0.1 * float64(len(result.Warnings))
	confidence -= 0.25 * float64(len(result.Errors))
	if confidence < 0 {
		confidence = 0
	}

	return &Determination{
		ScenarioID:   sc.ID,
		Requirements: req,
		Reasoning:    strings.Join(reasons, "; "),
		Citations:    citations,
		Confidence:   confidence,
		ResponseTime: time.Since(start),
	}, nil
}

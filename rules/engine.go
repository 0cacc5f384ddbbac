package rules

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// DefaultHistoryLimit bounds how many evaluations are retained per rule.
const DefaultHistoryLimit = 100

// Engine runs evaluation passes over a rule set. A pass is deterministic
// for a fixed (rules, context, handler behavior): rules are visited in a
// stable priority order and every outcome depends only on the inputs, never
// on wall clock or interleaving.
type Engine struct {
	evaluator *ConditionEvaluator
	registry  *Registry

	historyLimit int
	mu           sync.Mutex
	history      map[string][]*Evaluation
}

// NewEngine creates an engine resolving conditions and actions through
// registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{
		evaluator:    NewConditionEvaluator(registry),
		registry:     registry,
		historyLimit: DefaultHistoryLimit,
		history:      make(map[string][]*Evaluation),
	}
}

// Evaluate runs one pass over ruleset with the given context.
//
// Rules are sorted ascending by priority (stable, so ties keep their catalog
// order) and evaluated in that order. A rule triggers iff every one of its
// conditions is met; an empty condition list triggers vacuously. A triggered
// rule's actions are blocked when a previously triggered rule of strictly
// lower priority declares supersession over it; otherwise they execute in
// rule order. Action failures are recorded and never abort the pass.
func (en *Engine) Evaluate(ruleset []*Rule, ctx Context) *ExecutionResult {
	start := time.Now()
	snapshot := ctx.Snapshot()

	ordered := slices.Clone(ruleset)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	result := &ExecutionResult{
		Evaluations:     make([]*Evaluation, 0, len(ordered)),
		ExecutedActions: []string{},
		BlockedActions:  []string{},
		Warnings:        []string{},
		Errors:          []string{},
	}

	var triggered []*Rule
	for _, rule := range ordered {
		evalStart := time.Now()

		conditions := make([]ConditionResult, 0, len(rule.Conditions))
		ruleTriggered := true
		for _, name := range rule.Conditions {
			cr := en.evaluator.Evaluate(name, snapshot)
			if !en.registry.HasCondition(name) {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("rule %s: unknown condition %s", rule.ID, name))
			}
			conditions = append(conditions, cr)
			if !cr.Met {
				ruleTriggered = false
			}
		}

		eval := &Evaluation{
			RuleID:      rule.ID,
			RuleName:    rule.Name,
			Triggered:   ruleTriggered,
			Conditions:  conditions,
			Actions:     slices.Clone(rule.Actions),
			Priority:    rule.Priority,
			Elapsed:     time.Since(evalStart),
			Context:     snapshot,
			EvaluatedAt: evalStart,
		}
		result.Evaluations = append(result.Evaluations, eval)
		en.recordHistory(eval)

		if !ruleTriggered {
			continue
		}

		if winner := supersededBy(rule, triggered); winner != nil {
			result.BlockedActions = append(result.BlockedActions, rule.Actions...)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("rule %s superseded by %s", rule.ID, winner.ID))
			triggered = append(triggered, rule)
			continue
		}
		triggered = append(triggered, rule)

		for _, name := range rule.Actions {
			handler, ok := en.registry.action(name)
			if !ok {
				result.Errors = append(result.Errors,
					fmt.Sprintf("rule %s: action %s is not registered", rule.ID, name))
				continue
			}
			if err := handler(snapshot); err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("rule %s: action %s failed: %v", rule.ID, name, err))
				continue
			}
			result.ExecutedActions = append(result.ExecutedActions, name)
		}
	}

	result.Elapsed = time.Since(start)
	return result
}

// supersededBy returns the already-triggered rule that supersedes r, or nil.
// Only strictly lower priority rules can win; ties never suppress each
// other.
func supersededBy(r *Rule, triggered []*Rule) *Rule {
	for _, s := range triggered {
		if s.Priority < r.Priority && slices.Contains(s.SupersededBy, r.ID) {
			return s
		}
	}
	return nil
}

func (en *Engine) recordHistory(eval *Evaluation) {
	en.mu.Lock()
	defer en.mu.Unlock()

	h := append(en.history[eval.RuleID], eval)
	if len(h) > en.historyLimit {
		h = h[len(h)-en.historyLimit:]
	}
	en.history[eval.RuleID] = h
}

// History returns the retained evaluations for a rule, oldest first, capped
// at the history limit.
func (en *Engine) History(ruleID string) []*Evaluation {
	en.mu.Lock()
	defer en.mu.Unlock()
	return slices.Clone(en.history[ruleID])
}

// SetHistoryLimit adjusts the per-rule history bound. Existing entries are
// trimmed lazily on the next record.
func (en *Engine) SetHistoryLimit(n int) {
	en.mu.Lock()
	defer en.mu.Unlock()
	if n > 0 {
		en.historyLimit = n
	}
}

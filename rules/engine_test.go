package rules

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}
	return reg
}

func mustRegisterCondition(t *testing.T, reg *Registry, name string, met bool) {
	t.Helper()
	if err := reg.RegisterCondition(name, func(Context) (bool, any) { return met, met }); err != nil {
		t.Fatalf("RegisterCondition(%s) failed: %v", name, err)
	}
}

func mustRegisterAction(t *testing.T, reg *Registry, name string, h ActionHandler) {
	t.Helper()
	if h == nil {
		h = func(Context) error { return nil }
	}
	if err := reg.RegisterAction(name, h); err != nil {
		t.Fatalf("RegisterAction(%s) failed: %v", name, err)
	}
}

func TestEvaluateTriggersOnAllConditionsMet(t *testing.T) {
	reg := newTestRegistry(t)
	mustRegisterCondition(t, reg, "a", true)
	mustRegisterCondition(t, reg, "b", true)
	mustRegisterCondition(t, reg, "c", false)
	mustRegisterAction(t, reg, "act", nil)

	engine := NewEngine(reg)

	testCases := []struct {
		name       string
		conditions []string
		triggered  bool
	}{
		{"all met", []string{"a", "b"}, true},
		{"one unmet", []string{"a", "c"}, false},
		{"empty condition list triggers vacuously", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := engine.Evaluate([]*Rule{{
				ID:         "r1",
				Name:       "test rule",
				Conditions: tc.conditions,
				Actions:    []string{"act"},
				Active:     true,
			}}, Context{})

			if len(result.Evaluations) != 1 {
				t.Fatalf("expected 1 evaluation, got %d", len(result.Evaluations))
			}
			if result.Evaluations[0].Triggered != tc.triggered {
				t.Errorf("Triggered = %v, want %v", result.Evaluations[0].Triggered, tc.triggered)
			}
			executed := len(result.ExecutedActions) > 0
			if executed != tc.triggered {
				t.Errorf("action executed = %v, want %v", executed, tc.triggered)
			}
		})
	}
}

func TestEvaluatePriorityOrderStable(t *testing.T) {
	reg := newTestRegistry(t)
	mustRegisterCondition(t, reg, "always", true)

	var order []string
	for _, name := range []string{"first", "second", "third", "fourth"} {
		name := name
		mustRegisterAction(t, reg, name, func(Context) error {
			order = append(order, name)
			return nil
		})
	}

	// Two priority-5 rules keep their catalog order; priority 1 runs first.
	ruleset := []*Rule{
		{ID: "r-second", Priority: 5, Conditions: []string{"always"}, Actions: []string{"second"}},
		{ID: "r-third", Priority: 5, Conditions: []string{"always"}, Actions: []string{"third"}},
		{ID: "r-first", Priority: 1, Conditions: []string{"always"}, Actions: []string{"first"}},
		{ID: "r-fourth", Priority: 9, Conditions: []string{"always"}, Actions: []string{"fourth"}},
	}

	engine := NewEngine(reg)
	engine.Evaluate(ruleset, Context{})

	want := []string{"first", "second", "third", "fourth"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluateSupersession(t *testing.T) {
	reg := newTestRegistry(t)
	mustRegisterCondition(t, reg, "always", true)
	mustRegisterCondition(t, reg, "never", false)
	mustRegisterAction(t, reg, "winner-act", nil)
	mustRegisterAction(t, reg, "loser-act", nil)

	winner := &Rule{
		ID: "winner", Priority: 1,
		Conditions:   []string{"always"},
		Actions:      []string{"winner-act"},
		SupersededBy: []string{"loser"},
	}
	loser := &Rule{
		ID: "loser", Priority: 10,
		Conditions: []string{"always"},
		Actions:    []string{"loser-act"},
		Supersedes: []string{"winner"},
	}

	t.Run("triggered winner blocks loser actions", func(t *testing.T) {
		engine := NewEngine(reg)
		result := engine.Evaluate([]*Rule{loser, winner}, Context{})

		if diff := cmp.Diff([]string{"winner-act"}, result.ExecutedActions); diff != "" {
			t.Errorf("executed actions mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"loser-act"}, result.BlockedActions); diff != "" {
			t.Errorf("blocked actions mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("untriggered winner does not block", func(t *testing.T) {
		quietWinner := &Rule{
			ID: "winner", Priority: 1,
			Conditions:   []string{"never"},
			Actions:      []string{"winner-act"},
			SupersededBy: []string{"loser"},
		}
		engine := NewEngine(reg)
		result := engine.Evaluate([]*Rule{loser, quietWinner}, Context{})

		if diff := cmp.Diff([]string{"loser-act"}, result.ExecutedActions); diff != "" {
			t.Errorf("executed actions mismatch (-want +got):\n%s", diff)
		}
		if len(result.BlockedActions) != 0 {
			t.Errorf("expected no blocked actions, got %v", result.BlockedActions)
		}
	})

	t.Run("equal priority never supersedes", func(t *testing.T) {
		a := &Rule{ID: "a", Priority: 5, Conditions: []string{"always"},
			Actions: []string{"winner-act"}, SupersededBy: []string{"b"}}
		b := &Rule{ID: "b", Priority: 5, Conditions: []string{"always"},
			Actions: []string{"loser-act"}}
		engine := NewEngine(reg)
		result := engine.Evaluate([]*Rule{a, b}, Context{})

		if len(result.BlockedActions) != 0 {
			t.Errorf("expected no blocked actions at equal priority, got %v", result.BlockedActions)
		}
	})
}

func TestEvaluateUnknownConditionDegrades(t *testing.T) {
	reg := newTestRegistry(t)
	mustRegisterAction(t, reg, "act", nil)

	engine := NewEngine(reg)
	result := engine.Evaluate([]*Rule{{
		ID:         "r1",
		Conditions: []string{"no-such-condition"},
		Actions:    []string{"act"},
	}}, Context{})

	if result.Evaluations[0].Triggered {
		t.Error("rule with unknown condition must not trigger")
	}
	if len(result.Warnings) == 0 {
		t.Error("unknown condition should produce a warning")
	}
	if len(result.Errors) != 0 {
		t.Errorf("unknown condition must not be fatal, got errors: %v", result.Errors)
	}

	cr := result.Evaluations[0].Conditions[0]
	if cr.Met {
		t.Error("unknown condition must resolve to not met")
	}
	if cr.Value != "unknown condition" {
		t.Errorf("diagnostic value = %v, want %q", cr.Value, "unknown condition")
	}
}

func TestEvaluateActionFailureDoesNotAbort(t *testing.T) {
	reg := newTestRegistry(t)
	mustRegisterCondition(t, reg, "always", true)
	mustRegisterAction(t, reg, "boom", func(Context) error {
		return errors.New("handler exploded")
	})
	mustRegisterAction(t, reg, "ok", nil)

	engine := NewEngine(reg)
	result := engine.Evaluate([]*Rule{
		{ID: "r1", Priority: 1, Conditions: []string{"always"}, Actions: []string{"boom"}},
		{ID: "r2", Priority: 2, Conditions: []string{"always"}, Actions: []string{"ok"}},
	}, Context{})

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(result.Errors), result.Errors)
	}
	if diff := cmp.Diff([]string{"ok"}, result.ExecutedActions); diff != "" {
		t.Errorf("subsequent rule should still execute (-want +got):\n%s", diff)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	reg := newTestRegistry(t)
	mustRegisterCondition(t, reg, "always", true)
	mustRegisterCondition(t, reg, "never", false)
	for i := 0; i < 5; i++ {
		mustRegisterAction(t, reg, fmt.Sprintf("act-%d", i), nil)
	}

	var ruleset []*Rule
	for i := 0; i < 5; i++ {
		cond := "always"
		if i%2 == 1 {
			cond = "never"
		}
		ruleset = append(ruleset, &Rule{
			ID:         fmt.Sprintf("r-%d", i),
			Priority:   10 - i,
			Conditions: []string{cond},
			Actions:    []string{fmt.Sprintf("act-%d", i)},
		})
	}
	// r-4 (priority 6) suppresses r-0 (priority 10) when both trigger.
	ruleset[0].Supersedes = []string{"r-4"}
	ruleset[4].SupersededBy = []string{"r-0"}

	engine := NewEngine(reg)
	ctx := Context{Data: map[string]any{"k": "v"}}

	first := engine.Evaluate(ruleset, ctx)
	for i := 0; i < 10; i++ {
		again := engine.Evaluate(ruleset, ctx)

		if diff := cmp.Diff(first.ExecutedActions, again.ExecutedActions); diff != "" {
			t.Fatalf("executed actions varied between passes (-first +again):\n%s", diff)
		}
		if diff := cmp.Diff(first.BlockedActions, again.BlockedActions); diff != "" {
			t.Fatalf("blocked actions varied between passes (-first +again):\n%s", diff)
		}
		for j := range first.Evaluations {
			if first.Evaluations[j].Triggered != again.Evaluations[j].Triggered {
				t.Fatalf("rule %s triggered state varied between passes", first.Evaluations[j].RuleID)
			}
		}
	}
}

func TestEvaluateContextSnapshot(t *testing.T) {
	reg := newTestRegistry(t)
	mustRegisterCondition(t, reg, "always", true)
	mustRegisterAction(t, reg, "act", nil)

	data := map[string]any{"vehicle_count": 3}
	engine := NewEngine(reg)
	result := engine.Evaluate([]*Rule{
		{ID: "r1", Conditions: []string{"always"}, Actions: []string{"act"}},
	}, Context{Data: data})

	data["vehicle_count"] = 99

	if got := result.Evaluations[0].Context.Data["vehicle_count"]; got != 3 {
		t.Errorf("evaluation context mutated after the pass: got %v, want 3", got)
	}
}

func TestHistoryBounded(t *testing.T) {
	reg := newTestRegistry(t)
	mustRegisterCondition(t, reg, "always", true)
	mustRegisterAction(t, reg, "act", nil)

	engine := NewEngine(reg)
	engine.SetHistoryLimit(3)

	ruleset := []*Rule{{ID: "r1", Conditions: []string{"always"}, Actions: []string{"act"}}}
	for i := 0; i < 10; i++ {
		engine.Evaluate(ruleset, Context{Data: map[string]any{"pass": i}})
	}

	h := engine.History("r1")
	if len(h) != 3 {
		t.Fatalf("history length = %d, want 3", len(h))
	}
	// Most recent entries survive.
	if got := h[2].Context.Data["pass"]; got != 9 {
		t.Errorf("newest history entry pass = %v, want 9", got)
	}
	if got := h[0].Context.Data["pass"]; got != 7 {
		t.Errorf("oldest retained history entry pass = %v, want 7", got)
	}
}

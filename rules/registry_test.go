package rules

import (
	"testing"
)

func TestRegisterCELCondition(t *testing.T) {
	testCases := []struct {
		name       string
		expression string
		data       map[string]any
		wantMet    bool
	}{
		{"comparison true", `Data.vehicle_count >= 2`, map[string]any{"vehicle_count": 3}, true},
		{"comparison false", `Data.vehicle_count >= 2`, map[string]any{"vehicle_count": 1}, false},
		{"string equality", `Data.radius == "interstate"`, map[string]any{"radius": "interstate"}, true},
		{"boolean field", `Data.hazmat == true`, map[string]any{"hazmat": false}, false},
		{"non-boolean result is never met", `Data.vehicle_count + 1`, map[string]any{"vehicle_count": 3}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg := newTestRegistry(t)
			if err := reg.RegisterCELCondition("cond", tc.expression); err != nil {
				t.Fatalf("RegisterCELCondition(%q) failed: %v", tc.expression, err)
			}

			ev := NewConditionEvaluator(reg)
			result := ev.Evaluate("cond", Context{Data: tc.data})
			if result.Met != tc.wantMet {
				t.Errorf("Met = %v, want %v", result.Met, tc.wantMet)
			}
		})
	}
}

func TestRegisterCELConditionCompileError(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.RegisterCELCondition("broken", `Data.vehicle_count >=`)
	if err == nil {
		t.Fatal("RegisterCELCondition with a syntax error should fail")
	}
	if reg.HasCondition("broken") {
		t.Error("failed registration must not leave the condition behind")
	}
}

func TestRegisterCELConditionEvalErrorIsNotMet(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.RegisterCELCondition("cond", `Data.missing_key == "x"`); err != nil {
		t.Fatalf("RegisterCELCondition failed: %v", err)
	}

	ev := NewConditionEvaluator(reg)
	result := ev.Evaluate("cond", Context{Data: map[string]any{}})
	if result.Met {
		t.Error("evaluation error must resolve to not met")
	}
}

func TestRegisterDuplicates(t *testing.T) {
	reg := newTestRegistry(t)
	mustRegisterCondition(t, reg, "c", true)
	mustRegisterAction(t, reg, "a", nil)

	if err := reg.RegisterCondition("c", func(Context) (bool, any) { return true, nil }); err == nil {
		t.Error("duplicate condition registration should fail")
	}
	if err := reg.RegisterAction("a", func(Context) error { return nil }); err == nil {
		t.Error("duplicate action registration should fail")
	}
}

func TestRegisterNilHandlers(t *testing.T) {
	reg := newTestRegistry(t)

	if err := reg.RegisterCondition("c", nil); err == nil {
		t.Error("nil condition handler should be rejected")
	}
	if err := reg.RegisterAction("a", nil); err == nil {
		t.Error("nil action handler should be rejected")
	}
}

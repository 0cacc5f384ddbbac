package rules

// ConditionEvaluator resolves named conditions through a registry. An
// unknown name resolves to "not met" with a diagnostic value; it must never
// fail the pass, only keep rules that depend on it from firing.
type ConditionEvaluator struct {
	registry *Registry
}

// NewConditionEvaluator creates an evaluator backed by registry.
func NewConditionEvaluator(registry *Registry) *ConditionEvaluator {
	return &ConditionEvaluator{registry: registry}
}

// Evaluate resolves one condition against the context.
func (e *ConditionEvaluator) Evaluate(name string, ctx Context) ConditionResult {
	h, ok := e.registry.condition(name)
	if !ok {
		return ConditionResult{
			Condition: name,
			Met:       false,
			Value:     "unknown condition",
		}
	}

	met, value := h(ctx)
	return ConditionResult{
		Condition: name,
		Met:       met,
		Value:     value,
	}
}

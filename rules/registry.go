package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ConditionHandler resolves one named condition against a context. The
// returned value is diagnostic only; it is carried into the evaluation
// record but never interpreted by the engine.
type ConditionHandler func(ctx Context) (met bool, value any)

// ActionHandler runs one named action. Failures are reported per-action and
// never abort the evaluation pass.
type ActionHandler func(ctx Context) error

// Registry maps condition and action names to typed handlers. Names are
// resolved at catalog load time so a rule referencing an unregistered name
// is rejected before it can reach an evaluation pass.
type Registry struct {
	env        *cel.Env
	mu         sync.RWMutex
	conditions map[string]ConditionHandler
	actions    map[string]ActionHandler
}

// NewRegistry creates a registry with a CEL environment over the context's
// data bag, so conditions can be defined declaratively as expressions as
// well as in Go.
func NewRegistry() (*Registry, error) {
	env, err := cel.NewEnv(
		cel.Variable("Data", cel.DynType),
		cel.Variable("Environment", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Registry{
		env:        env,
		conditions: make(map[string]ConditionHandler),
		actions:    make(map[string]ActionHandler),
	}, nil
}

// RegisterCondition registers a Go condition handler under name.
func (r *Registry) RegisterCondition(name string, h ConditionHandler) error {
	if h == nil {
		return fmt.Errorf("condition %s: handler must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conditions[name]; exists {
		return fmt.Errorf("condition %s already registered", name)
	}
	r.conditions[name] = h
	return nil
}

// RegisterCELCondition compiles expression and registers it as a condition
// handler under name. The expression sees the context data bag as Data and
// the environment tag as Environment. Compilation failures surface here, at
// registration time, not during evaluation.
func (r *Registry) RegisterCELCondition(name, expression string) error {
	ast, issues := r.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("condition %s: compile error: %w", name, issues.Err())
	}

	// Cost limit guards against runaway expressions from catalog files.
	prog, err := r.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(1000000),
	)
	if err != nil {
		return fmt.Errorf("condition %s: program creation error: %w", name, err)
	}

	handler := func(ctx Context) (bool, any) {
		out, _, err := prog.Eval(map[string]any{
			"Data":        ctx.Data,
			"Environment": ctx.Environment,
		})
		if err != nil {
			return false, fmt.Sprintf("evaluation error: %v", err)
		}
		if met, ok := out.Value().(bool); ok {
			return met, out.Value()
		}
		// Non-boolean expressions never satisfy a condition.
		return false, out.Value()
	}

	return r.RegisterCondition(name, handler)
}

// RegisterAction registers an action handler under name.
func (r *Registry) RegisterAction(name string, h ActionHandler) error {
	if h == nil {
		return fmt.Errorf("action %s: handler must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %s already registered", name)
	}
	r.actions[name] = h
	return nil
}

// HasCondition reports whether name resolves to a registered condition.
func (r *Registry) HasCondition(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conditions[name]
	return ok
}

// HasAction reports whether name resolves to a registered action.
func (r *Registry) HasAction(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

func (r *Registry) condition(name string) (ConditionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.conditions[name]
	return h, ok
}

func (r *Registry) action(name string) (ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.actions[name]
	return h, ok
}

package rules

import (
	"maps"
	"time"
)

// Rule is a declarative regulatory rule: a list of named conditions that
// must all hold, and a list of named actions to run when they do. Rules are
// immutable once loaded into a catalog; changing one means loading a new
// catalog snapshot.
type Rule struct {
	ID       string
	Name     string
	Category string

	// Conditions and Actions are names resolved against a Registry.
	Conditions []string
	Actions    []string

	// Priority orders evaluation; lower values evaluate first and win
	// supersession contests.
	Priority int

	// Supersedes lists the higher-priority rules that suppress this rule
	// when they trigger; SupersededBy lists the lower-priority rules this
	// rule suppresses. The two sides are inverses of each other and the
	// catalog normalizes them at load time.
	Supersedes   []string
	SupersededBy []string

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Context is the input to one evaluation pass. The engine never mutates it;
// evaluations carry a snapshot taken at the start of the pass.
type Context struct {
	UserID      string
	CompanyID   string
	AgentID     string
	SessionID   string
	Environment string
	Data        map[string]any
	Timestamp   time.Time
}

// Snapshot returns a copy of the context with its own data bag, safe to
// retain after the caller's map changes.
func (c Context) Snapshot() Context {
	cp := c
	cp.Data = maps.Clone(c.Data)
	return cp
}

// ConditionResult is the outcome of resolving one named condition.
type ConditionResult struct {
	Condition string
	Met       bool
	// Value carries a diagnostic: the evaluated value for a resolved
	// condition, or a reason string when the condition could not be
	// resolved.
	Value any
}

// Evaluation records one rule's outcome within a pass, whether or not it
// triggered. Evaluations are immutable once recorded.
type Evaluation struct {
	RuleID      string
	RuleName    string
	Triggered   bool
	Conditions  []ConditionResult
	Actions     []string
	Priority    int
	Elapsed     time.Duration
	Context     Context
	EvaluatedAt time.Time
}

// ExecutionResult aggregates one full evaluation pass.
type ExecutionResult struct {
	Evaluations     []*Evaluation
	ExecutedActions []string
	BlockedActions  []string
	Warnings        []string
	Errors          []string
	Elapsed         time.Duration
}

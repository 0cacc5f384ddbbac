package rules

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Catalog holds the loaded rule set. Loads replace the whole snapshot
// atomically, so readers in the middle of an evaluation pass keep the rules
// they started with while a reload swaps in the next version.
type Catalog struct {
	mu      sync.RWMutex
	rules   []*Rule
	byID    map[string]*Rule
	version int
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byID: make(map[string]*Rule)}
}

// Load validates ruleset against registry and installs it as the new
// snapshot. Every condition and action name must resolve, every supersession
// reference must point at a rule in the set, and the supersedes/supersededBy
// declarations must agree with the priority ordering. Any violation rejects
// the whole load and leaves the previous snapshot in place.
func (c *Catalog) Load(ruleset []*Rule, registry *Registry) error {
	byID := make(map[string]*Rule, len(ruleset))
	for _, r := range ruleset {
		if r.ID == "" {
			return fmt.Errorf("rule %q has no ID", r.Name)
		}
		if _, dup := byID[r.ID]; dup {
			return fmt.Errorf("duplicate rule ID %s", r.ID)
		}
		byID[r.ID] = r
	}

	for _, r := range ruleset {
		for _, name := range r.Conditions {
			if !registry.HasCondition(name) {
				return fmt.Errorf("rule %s references unregistered condition %s", r.ID, name)
			}
		}
		for _, name := range r.Actions {
			if !registry.HasAction(name) {
				return fmt.Errorf("rule %s references unregistered action %s", r.ID, name)
			}
		}
		if err := validateSupersession(r, byID); err != nil {
			return err
		}
	}

	// Copy rules and complete each one-sided supersession declaration with
	// its inverse, so the engine only ever needs to consult one side.
	normalized := make([]*Rule, len(ruleset))
	normByID := make(map[string]*Rule, len(ruleset))
	for i, r := range ruleset {
		cp := *r
		cp.Supersedes = slices.Clone(r.Supersedes)
		cp.SupersededBy = slices.Clone(r.SupersededBy)
		normalized[i] = &cp
		normByID[cp.ID] = &cp
	}
	for _, r := range normalized {
		for _, winnerID := range r.Supersedes {
			winner := normByID[winnerID]
			if !slices.Contains(winner.SupersededBy, r.ID) {
				winner.SupersededBy = append(winner.SupersededBy, r.ID)
			}
		}
		for _, loserID := range r.SupersededBy {
			loser := normByID[loserID]
			if !slices.Contains(loser.Supersedes, r.ID) {
				loser.Supersedes = append(loser.Supersedes, r.ID)
			}
		}
	}

	now := time.Now()
	for _, r := range normalized {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now
	}

	c.mu.Lock()
	c.rules = normalized
	c.byID = normByID
	c.version++
	c.mu.Unlock()

	return nil
}

// validateSupersession checks referential integrity and priority direction
// for one rule's supersession declarations. A rule superseding another must
// carry strictly lower priority than it; equal priorities cannot suppress
// each other.
func validateSupersession(r *Rule, byID map[string]*Rule) error {
	for _, winnerID := range r.Supersedes {
		winner, ok := byID[winnerID]
		if !ok {
			return fmt.Errorf("rule %s supersedes unknown rule %s", r.ID, winnerID)
		}
		if winner.Priority >= r.Priority {
			return fmt.Errorf("rule %s declares %s as superseding it, but %s does not have lower priority",
				r.ID, winnerID, winnerID)
		}
	}
	for _, loserID := range r.SupersededBy {
		loser, ok := byID[loserID]
		if !ok {
			return fmt.Errorf("rule %s declares supersession of unknown rule %s", r.ID, loserID)
		}
		if loser.Priority <= r.Priority {
			return fmt.Errorf("rule %s cannot supersede %s: superseded rules must have higher priority",
				r.ID, loserID)
		}
	}
	return nil
}

// Rules returns the current snapshot in catalog order. The returned slice is
// a copy; the rules themselves are shared and must not be mutated.
func (c *Catalog) Rules() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.rules)
}

// Active returns the active rules of the current snapshot in catalog order.
func (c *Catalog) Active() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var active []*Rule
	for _, r := range c.rules {
		if r.Active {
			active = append(active, r)
		}
	}
	return active
}

// Get returns the rule with the given ID from the current snapshot.
func (c *Catalog) Get(id string) (*Rule, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	return r, nil
}

// Version returns the load generation, starting at 1 for the first
// successful load.
func (c *Catalog) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Len returns the number of rules in the current snapshot.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

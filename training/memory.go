package training

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetware/regtrain/scenario"
)

// MemoryStore implements Store in memory. Safe for concurrent use; suited
// to tests and single-process training runs.
type MemoryStore struct {
	mu        sync.RWMutex
	scenarios []*scenario.Scenario
	byID      map[string]*scenario.Scenario
	sessions  map[string]*Session
	order     []string // session IDs in creation order
	results   map[string]*TestResult
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*scenario.Scenario),
		sessions: make(map[string]*Session),
		results:  make(map[string]*TestResult),
	}
}

// AddScenarios appends scenarios, rejecting duplicates and invalid profiles.
func (m *MemoryStore) AddScenarios(ctx context.Context, scenarios []*scenario.Scenario) error {
	for _, sc := range scenarios {
		if err := sc.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sc := range scenarios {
		if _, exists := m.byID[sc.ID]; exists {
			continue
		}
		m.scenarios = append(m.scenarios, sc)
		m.byID[sc.ID] = sc
	}
	return nil
}

// GetScenario returns the scenario with the given ID.
func (m *MemoryStore) GetScenario(ctx context.Context, id string) (*scenario.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sc, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sc, nil
}

// NextScenario returns the first active scenario without a result in the
// session, in insertion order.
func (m *MemoryStore) NextScenario(ctx context.Context, sessionID string) (*scenario.Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tested := make(map[string]bool)
	for _, tr := range m.results {
		if tr.SessionID == sessionID {
			tested[tr.ScenarioID] = true
		}
	}

	for _, sc := range m.scenarios {
		if sc.Active && !tested[sc.ID] {
			return sc, nil
		}
	}
	return nil, ErrNoScenarios
}

// SaveSession inserts or replaces a session snapshot.
func (m *MemoryStore) SaveSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; !exists {
		m.order = append(m.order, s.ID)
	}
	m.sessions[s.ID] = s.clone()
	return nil
}

// GetSession returns the session with the given ID.
func (m *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

// LatestSession returns the most recently created session.
func (m *MemoryStore) LatestSession(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.order) == 0 {
		return nil, ErrNotFound
	}
	return m.sessions[m.order[len(m.order)-1]].clone(), nil
}

// SaveResult inserts or replaces a test result.
func (m *MemoryStore) SaveResult(ctx context.Context, tr *TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *tr
	m.results[tr.ID] = &cp
	return nil
}

// GetResult returns the result with the given ID.
func (m *MemoryStore) GetResult(ctx context.Context, id string) (*TestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tr, ok := m.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tr
	return &cp, nil
}

// ResultForScenario returns the session's result for one scenario.
func (m *MemoryStore) ResultForScenario(ctx context.Context, sessionID, scenarioID string) (*TestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tr := range m.results {
		if tr.SessionID == sessionID && tr.ScenarioID == scenarioID {
			cp := *tr
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ResultsForSession returns all results recorded in the session.
func (m *MemoryStore) ResultsForSession(ctx context.Context, sessionID string) ([]*TestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*TestResult
	for _, tr := range m.results {
		if tr.SessionID == sessionID {
			cp := *tr
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MemoryCorrectionStore implements CorrectionStore in memory.
type MemoryCorrectionStore struct {
	mu      sync.RWMutex
	entries []*Correction
}

// NewMemoryCorrectionStore creates an empty in-memory correction store.
func NewMemoryCorrectionStore() *MemoryCorrectionStore {
	return &MemoryCorrectionStore{}
}

// StoreCorrection appends a correction. IDs and timestamps are filled in
// when absent.
func (m *MemoryCorrectionStore) StoreCorrection(ctx context.Context, c *Correction) error {
	cp := *c
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, &cp)
	return nil
}

// LookupCorrections returns corrections for the profile key, most recent
// first.
func (m *MemoryCorrectionStore) LookupCorrections(ctx context.Context, profileKey string) ([]*Correction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Correction
	// Entries append in time order; walk backwards for most-recent-first.
	for i := len(m.entries) - 1; i >= 0; i-- {
		c := m.entries[i]
		if c.Jurisdiction+":"+c.OperationProfile == profileKey {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

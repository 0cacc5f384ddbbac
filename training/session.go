package training

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a training session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// Session accumulates statistics over one training run. Mutated only by its
// Tracker; everything handed out is a copy.
type Session struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	TotalScenarios int `json:"totalScenarios"`
	Completed      int `json:"completed"`
	Correct        int `json:"correct"`
	Incorrect      int `json:"incorrect"`
	PendingReview  int `json:"pendingReview"`

	// Accuracy is correct/(correct+incorrect)*100, nil while the
	// denominator is zero.
	Accuracy    *float64      `json:"accuracyPercentage"`
	AvgResponse time.Duration `json:"avgResponseTime"`
	Status      SessionStatus `json:"status"`
}

// NewSession creates an in-progress session expecting totalScenarios
// scenarios.
func NewSession(name string, totalScenarios int) *Session {
	return &Session{
		ID:             uuid.New().String(),
		Name:           name,
		StartedAt:      time.Now(),
		TotalScenarios: totalScenarios,
		Status:         StatusInProgress,
	}
}

func (s *Session) clone() *Session {
	cp := *s
	if s.Accuracy != nil {
		a := *s.Accuracy
		cp.Accuracy = &a
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Tracker owns one session's counters. Recording is idempotent by test
// result ID: re-recording a result with an unchanged outcome is a no-op,
// while a changed outcome (a pending result resolved by review, or a grade
// overturned) moves the result between buckets without double-counting it.
type Tracker struct {
	mu            sync.Mutex
	session       *Session
	outcomes      map[string]Outcome
	totalResponse time.Duration
}

// NewTracker creates a tracker owning session.
func NewTracker(session *Session) *Tracker {
	return &Tracker{
		session:  session,
		outcomes: make(map[string]Outcome),
	}
}

// Record folds one graded result into the session and returns an updated
// snapshot.
func (t *Tracker) Record(tr *TestResult) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	outcome := tr.Outcome()
	prev, seen := t.outcomes[tr.ID]

	if !seen {
		t.session.Completed++
		t.totalResponse += tr.Determination.ResponseTime
		t.addOutcome(outcome)
	} else if prev != outcome {
		t.removeOutcome(prev)
		t.addOutcome(outcome)
	}
	t.outcomes[tr.ID] = outcome

	t.recompute()
	return t.session.clone()
}

// Complete marks the session finished and returns the final snapshot.
func (t *Tracker) Complete() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session.Status != StatusCompleted {
		t.session.Status = StatusCompleted
		now := time.Now()
		t.session.CompletedAt = &now
	}
	return t.session.clone()
}

// Session returns a snapshot of the current counters.
func (t *Tracker) Session() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.clone()
}

func (t *Tracker) addOutcome(o Outcome) {
	switch o {
	case OutcomeCorrect:
		t.session.Correct++
	case OutcomeIncorrect:
		t.session.Incorrect++
	case OutcomePending:
		t.session.PendingReview++
	}
}

func (t *Tracker) removeOutcome(o Outcome) {
	switch o {
	case OutcomeCorrect:
		t.session.Correct--
	case OutcomeIncorrect:
		t.session.Incorrect--
	case OutcomePending:
		t.session.PendingReview--
	}
}

// recompute derives accuracy and average response time from the counters
// rather than adjusting them incrementally, so repeated updates cannot
// drift.
func (t *Tracker) recompute() {
	graded := t.session.Correct + t.session.Incorrect
	if graded == 0 {
		t.session.Accuracy = nil
	} else {
		pct := float64(t.session.Correct) / float64(graded) * 100
		t.session.Accuracy = &pct
	}

	if t.session.Completed > 0 {
		t.session.AvgResponse = t.totalResponse / time.Duration(t.session.Completed)
	}
}

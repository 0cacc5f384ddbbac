package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fleetware/regtrain/determine"
	"github.com/fleetware/regtrain/scenario"
)

// ErrNoActiveSession is returned by operations that need a session before
// one has been started.
var ErrNoActiveSession = errors.New("no active training session")

// Service drives the training loop: generate scenarios, obtain
// determinations, grade them, track the session, and fold corrections back
// into the knowledge store.
type Service struct {
	store       Store
	corrections CorrectionStore
	determiner  determine.Determiner
	grader      *Grader
	metrics     *Metrics
	logger      *slog.Logger

	mu      sync.Mutex
	tracker *Tracker
	// missed accumulates profiles behind stored corrections; the next
	// generated batch revisits them.
	missed []scenario.Profile
}

// NewService wires a training service. metrics may be nil to disable
// instrumentation.
func NewService(store Store, corrections CorrectionStore, determiner determine.Determiner,
	metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		corrections: corrections,
		determiner:  determiner,
		grader:      NewGrader(),
		metrics:     metrics,
		logger:      logger,
	}
}

// StartSession generates count scenarios with the given seed, persists
// them, and opens a new training session.
func (s *Service) StartSession(ctx context.Context, name string, count int, seed int64) (*Session, error) {
	if count < 1 {
		return nil, fmt.Errorf("scenario count must be positive, got %d", count)
	}

	s.mu.Lock()
	missed := append([]scenario.Profile(nil), s.missed...)
	s.mu.Unlock()

	gen := scenario.NewGenerator(seed).WithCorrections(missed)
	batch, err := gen.GenerateBatch(count)
	if err != nil {
		return nil, fmt.Errorf("scenario generation failed: %w", err)
	}
	if err := s.store.AddScenarios(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to persist scenarios: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ScenariosGenerated.Add(float64(len(batch)))
	}

	sess := NewSession(name, count)
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.mu.Lock()
	s.tracker = NewTracker(sess)
	s.mu.Unlock()

	s.logger.Info("training session started",
		"session", sess.ID, "name", name, "scenarios", count, "seed", seed)
	return sess.clone(), nil
}

// CurrentSession returns the live session, falling back to the most recent
// persisted one.
func (s *Service) CurrentSession(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	tracker := s.tracker
	s.mu.Unlock()

	if tracker != nil {
		return tracker.Session(), nil
	}
	return s.store.LatestSession(ctx)
}

// NextScenario returns one scenario not yet tested in the live session.
func (s *Service) NextScenario(ctx context.Context) (*scenario.Scenario, error) {
	tracker, err := s.requireTracker()
	if err != nil {
		return nil, err
	}
	return s.store.NextScenario(ctx, tracker.Session().ID)
}

// TestOutcome is the aggregate answer of one scenario test: the
// determination, its grade, the updated session, and any non-fatal errors
// encountered along the way.
type TestOutcome struct {
	Determination *determine.Determination `json:"determination"`
	Result        *TestResult              `json:"result"`
	Session       *Session                 `json:"session"`
	Errors        []string                 `json:"errors,omitempty"`
}

// TestScenario runs the determiner on one scenario, grades the answer, and
// records it. Re-testing a scenario already graded in this session returns
// the existing result unchanged; a scenario is never graded twice in one
// session. Persistence failures are reported in the outcome's error list;
// the in-memory session counters stay consistent regardless.
func (s *Service) TestScenario(ctx context.Context, scenarioID string) (*TestOutcome, error) {
	tracker, err := s.requireTracker()
	if err != nil {
		return nil, err
	}
	sessionID := tracker.Session().ID

	sc, err := s.store.GetScenario(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenarioID, err)
	}

	if existing, err := s.store.ResultForScenario(ctx, sessionID, scenarioID); err == nil {
		return &TestOutcome{
			Determination: existing.Determination,
			Result:        existing,
			Session:       tracker.Session(),
		}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing result: %w", err)
	}

	det, err := s.determiner.Determine(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("determination failed: %w", err)
	}
	if s.metrics != nil {
		s.metrics.Determinations.Inc()
		s.metrics.DetermineDuration.Observe(det.ResponseTime.Seconds())
	}

	tr := s.grader.Grade(sc, det)
	tr.SessionID = sessionID

	sess := tracker.Record(tr)
	if s.metrics != nil {
		s.metrics.ObserveResult(tr, sess)
	}

	outcome := &TestOutcome{Determination: det, Result: tr, Session: sess}
	if err := s.store.SaveResult(ctx, tr); err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("failed to persist result: %v", err))
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("failed to persist session: %v", err))
	}
	for _, msg := range outcome.Errors {
		s.logger.Error("test-scenario persistence failure", "scenario", scenarioID, "error", msg)
	}
	return outcome, nil
}

// Feedback is one human review of a graded scenario.
type Feedback struct {
	ScenarioID string
	IsCorrect  bool
	FieldView  map[string]FieldVerdict // optional per-field verdicts
	Text       string
	Reviewer   string

	// Corrected carries the human's corrected answer for an incorrect
	// determination; when nil the scenario's expected requirements are
	// stored as the correction.
	Corrected          *scenario.Requirements
	CorrectedReasoning string
}

// SubmitFeedback applies a manual review to the session's result for the
// scenario, updates the session, and writes a correction for incorrect
// determinations.
func (s *Service) SubmitFeedback(ctx context.Context, fb Feedback) (*TestOutcome, error) {
	tracker, err := s.requireTracker()
	if err != nil {
		return nil, err
	}
	sessionID := tracker.Session().ID

	tr, err := s.store.ResultForScenario(ctx, sessionID, fb.ScenarioID)
	if err != nil {
		return nil, fmt.Errorf("no result for scenario %s in session %s: %w", fb.ScenarioID, sessionID, err)
	}

	var reviewed *TestResult
	if len(fb.FieldView) > 0 {
		reviewed, err = s.grader.ApplyManualReview(tr, fb.FieldView, fb.Text, fb.Reviewer)
		if err != nil {
			return nil, err
		}
	} else {
		reviewed = s.grader.ApplyOverallReview(tr, fb.IsCorrect, fb.Text, fb.Reviewer)
	}

	sess := tracker.Record(reviewed)
	if s.metrics != nil {
		s.metrics.ObserveResult(reviewed, sess)
	}

	outcome := &TestOutcome{
		Determination: reviewed.Determination,
		Result:        reviewed,
		Session:       sess,
	}
	if err := s.store.SaveResult(ctx, reviewed); err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("failed to persist result: %v", err))
	}
	if err := s.store.SaveSession(ctx, sess); err != nil {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("failed to persist session: %v", err))
	}

	if reviewed.Outcome() == OutcomeIncorrect {
		if err := s.storeCorrection(ctx, fb, reviewed); err != nil {
			outcome.Errors = append(outcome.Errors, fmt.Sprintf("failed to store correction: %v", err))
		}
	}

	for _, msg := range outcome.Errors {
		s.logger.Error("submit-feedback persistence failure", "scenario", fb.ScenarioID, "error", msg)
	}
	return outcome, nil
}

func (s *Service) storeCorrection(ctx context.Context, fb Feedback, tr *TestResult) error {
	sc, err := s.store.GetScenario(ctx, fb.ScenarioID)
	if err != nil {
		return err
	}

	corrected := sc.Expected.Requirements
	reasoning := sc.Expected.Reasoning
	if fb.Corrected != nil {
		corrected = *fb.Corrected
		reasoning = fb.CorrectedReasoning
	}

	c := NewCorrection(sc, tr, corrected, reasoning, fb.Text)
	if err := s.corrections.StoreCorrection(ctx, c); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.CorrectionsStored.Inc()
	}

	s.mu.Lock()
	s.missed = append(s.missed, sc.Profile())
	s.mu.Unlock()

	s.logger.Info("correction stored", "scenario", sc.ID, "profile", c.ProfileKey())
	return nil
}

// CompleteSession marks the live session finished.
func (s *Service) CompleteSession(ctx context.Context) (*Session, error) {
	tracker, err := s.requireTracker()
	if err != nil {
		return nil, err
	}

	sess := tracker.Complete()
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return sess, fmt.Errorf("failed to persist completed session: %w", err)
	}
	return sess, nil
}

func (s *Service) requireTracker() (*Tracker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		return nil, ErrNoActiveSession
	}
	return s.tracker, nil
}

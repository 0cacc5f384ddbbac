package training

import (
	"context"
	"errors"

	"github.com/fleetware/regtrain/scenario"
)

// ErrNotFound is returned when a scenario, session, or result does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrNoScenarios is returned by NextScenario when every active scenario has
// already been tested in the session.
var ErrNoScenarios = errors.New("no untested scenarios remain")

// Store persists scenarios, sessions, and test results.
type Store interface {
	AddScenarios(ctx context.Context, scenarios []*scenario.Scenario) error
	GetScenario(ctx context.Context, id string) (*scenario.Scenario, error)

	// NextScenario returns one active scenario with no test result in the
	// given session, or ErrNoScenarios.
	NextScenario(ctx context.Context, sessionID string) (*scenario.Scenario, error)

	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	LatestSession(ctx context.Context) (*Session, error)

	SaveResult(ctx context.Context, tr *TestResult) error
	GetResult(ctx context.Context, id string) (*TestResult, error)
	ResultForScenario(ctx context.Context, sessionID, scenarioID string) (*TestResult, error)
	ResultsForSession(ctx context.Context, sessionID string) ([]*TestResult, error)
}

// CorrectionStore persists the shared correction knowledge. Append-only:
// implementations never delete or merge entries.
type CorrectionStore interface {
	StoreCorrection(ctx context.Context, c *Correction) error

	// LookupCorrections returns every correction recorded for the profile
	// key, most recent first.
	LookupCorrections(ctx context.Context, profileKey string) ([]*Correction, error)
}

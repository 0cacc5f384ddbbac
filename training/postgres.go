package training

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/fleetware/regtrain/determine"
	"github.com/fleetware/regtrain/scenario"
)

// PostgresStore implements Store and CorrectionStore backed by PostgreSQL.
// Scenarios are stored as JSON alongside denormalized profile columns so
// the training tables can be queried without unpacking the document.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// AddScenarios inserts scenarios, skipping IDs already present.
func (s *PostgresStore) AddScenarios(ctx context.Context, scenarios []*scenario.Scenario) error {
	for _, sc := range scenarios {
		if err := sc.Validate(); err != nil {
			return err
		}
	}

	for _, sc := range scenarios {
		doc, err := json.Marshal(sc)
		if err != nil {
			return fmt.Errorf("failed to encode scenario %s: %w", sc.ID, err)
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO scenarios (
				id, scenario_json, jurisdiction, operation_type, operation_radius,
				business_type, has_hazmat, fleet_size,
				expected_usdot, expected_mc, expected_hazmat, expected_ifta,
				expected_state_reg, expected_reasoning, created_at, active
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (id) DO NOTHING
		`, sc.ID, doc, sc.Jurisdiction, sc.OperationType, sc.OperationRadius,
			sc.BusinessType, sc.HasHazmat, sc.VehicleCount,
			sc.Expected.USDOT, sc.Expected.MCAuthority, sc.Expected.Hazmat,
			sc.Expected.IFTA, sc.Expected.StateRegistration, sc.Expected.Reasoning,
			sc.CreatedAt, sc.Active)
		if err != nil {
			return fmt.Errorf("failed to insert scenario %s: %w", sc.ID, err)
		}
	}
	return nil
}

// GetScenario returns the scenario with the given ID.
func (s *PostgresStore) GetScenario(ctx context.Context, id string) (*scenario.Scenario, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT scenario_json FROM scenarios WHERE id = $1
	`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario: %w", err)
	}
	return decodeScenario(doc)
}

// NextScenario returns the oldest active scenario without a result in the
// session.
func (s *PostgresStore) NextScenario(ctx context.Context, sessionID string) (*scenario.Scenario, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT scenario_json
		FROM scenarios
		WHERE active = true
		  AND id NOT IN (SELECT scenario_id FROM test_results WHERE session_id = $1)
		ORDER BY created_at ASC
		LIMIT 1
	`, sessionID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNoScenarios
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next scenario: %w", err)
	}
	return decodeScenario(doc)
}

func decodeScenario(doc []byte) (*scenario.Scenario, error) {
	var sc scenario.Scenario
	if err := json.Unmarshal(doc, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	return &sc, nil
}

// SaveSession upserts a session snapshot.
func (s *PostgresStore) SaveSession(ctx context.Context, sess *Session) error {
	var accuracy sql.NullFloat64
	if sess.Accuracy != nil {
		accuracy = sql.NullFloat64{Float64: *sess.Accuracy, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, name, started_at, completed_at, total, completed,
			correct, incorrect, pending, accuracy_pct, avg_response_ms, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			total = EXCLUDED.total,
			completed = EXCLUDED.completed,
			correct = EXCLUDED.correct,
			incorrect = EXCLUDED.incorrect,
			pending = EXCLUDED.pending,
			accuracy_pct = EXCLUDED.accuracy_pct,
			avg_response_ms = EXCLUDED.avg_response_ms,
			status = EXCLUDED.status
	`, sess.ID, sess.Name, sess.StartedAt, sess.CompletedAt, sess.TotalScenarios,
		sess.Completed, sess.Correct, sess.Incorrect, sess.PendingReview,
		accuracy, sess.AvgResponse.Milliseconds(), sess.Status)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession returns the session with the given ID.
func (s *PostgresStore) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, name, started_at, completed_at, total, completed,
		       correct, incorrect, pending, accuracy_pct, avg_response_ms, status
		FROM sessions WHERE id = $1
	`, id))
}

// LatestSession returns the most recently started session.
func (s *PostgresStore) LatestSession(ctx context.Context) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, `
		SELECT id, name, started_at, completed_at, total, completed,
		       correct, incorrect, pending, accuracy_pct, avg_response_ms, status
		FROM sessions ORDER BY started_at DESC LIMIT 1
	`))
}

func (s *PostgresStore) scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var completedAt sql.NullTime
	var accuracy sql.NullFloat64
	var avgMs int64

	err := row.Scan(&sess.ID, &sess.Name, &sess.StartedAt, &completedAt,
		&sess.TotalScenarios, &sess.Completed, &sess.Correct, &sess.Incorrect,
		&sess.PendingReview, &accuracy, &avgMs, &sess.Status)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if completedAt.Valid {
		t := completedAt.Time
		sess.CompletedAt = &t
	}
	if accuracy.Valid {
		a := accuracy.Float64
		sess.Accuracy = &a
	}
	sess.AvgResponse = time.Duration(avgMs) * time.Millisecond
	return &sess, nil
}

// SaveResult upserts a test result.
func (s *PostgresStore) SaveResult(ctx context.Context, tr *TestResult) error {
	var isCorrect sql.NullBool
	if tr.IsCorrect != nil {
		isCorrect = sql.NullBool{Bool: *tr.IsCorrect, Valid: true}
	}

	det := tr.Determination
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO test_results (
			id, scenario_id, session_id,
			det_usdot, det_mc, det_hazmat, det_ifta, det_state_reg, det_reasoning,
			response_time_ms, is_correct, reviewer_feedback, reviewed_by, reviewed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			is_correct = EXCLUDED.is_correct,
			reviewer_feedback = EXCLUDED.reviewer_feedback,
			reviewed_by = EXCLUDED.reviewed_by,
			reviewed_at = EXCLUDED.reviewed_at
	`, tr.ID, tr.ScenarioID, tr.SessionID,
		det.Requirements.USDOT, det.Requirements.MCAuthority, det.Requirements.Hazmat,
		det.Requirements.IFTA, det.Requirements.StateRegistration, det.Reasoning,
		det.ResponseTime.Milliseconds(), isCorrect, tr.ReviewerFeedback,
		tr.ReviewedBy, tr.ReviewedAt)
	if err != nil {
		return fmt.Errorf("failed to save test result: %w", err)
	}
	return nil
}

// GetResult returns the result with the given ID.
func (s *PostgresStore) GetResult(ctx context.Context, id string) (*TestResult, error) {
	rows, err := s.db.QueryContext(ctx, resultQuery+` WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get test result: %w", err)
	}
	defer rows.Close()
	return oneResult(rows)
}

// ResultForScenario returns the session's result for one scenario.
func (s *PostgresStore) ResultForScenario(ctx context.Context, sessionID, scenarioID string) (*TestResult, error) {
	rows, err := s.db.QueryContext(ctx,
		resultQuery+` WHERE session_id = $1 AND scenario_id = $2`, sessionID, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test result: %w", err)
	}
	defer rows.Close()
	return oneResult(rows)
}

// ResultsForSession returns all results recorded in the session.
func (s *PostgresStore) ResultsForSession(ctx context.Context, sessionID string) ([]*TestResult, error) {
	rows, err := s.db.QueryContext(ctx, resultQuery+` WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list test results: %w", err)
	}
	defer rows.Close()

	var out []*TestResult
	for rows.Next() {
		tr, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test results: %w", err)
	}
	return out, nil
}

const resultQuery = `
	SELECT id, scenario_id, session_id,
	       det_usdot, det_mc, det_hazmat, det_ifta, det_state_reg, det_reasoning,
	       response_time_ms, is_correct, reviewer_feedback, reviewed_by, reviewed_at
	FROM test_results`

func oneResult(rows *sql.Rows) (*TestResult, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read test result: %w", err)
		}
		return nil, ErrNotFound
	}
	return scanResult(rows)
}

func scanResult(rows *sql.Rows) (*TestResult, error) {
	var tr TestResult
	var det determineRecord
	var responseMs int64
	var isCorrect sql.NullBool
	var feedback, reviewedBy sql.NullString
	var reviewedAt sql.NullTime

	err := rows.Scan(&tr.ID, &tr.ScenarioID, &tr.SessionID,
		&det.usdot, &det.mc, &det.hazmat, &det.ifta, &det.stateReg, &det.reasoning,
		&responseMs, &isCorrect, &feedback, &reviewedBy, &reviewedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan test result: %w", err)
	}

	tr.Determination = det.toDetermination(tr.ScenarioID, responseMs)
	if isCorrect.Valid {
		b := isCorrect.Bool
		tr.IsCorrect = &b
	}
	tr.ReviewerFeedback = feedback.String
	tr.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		tr.ReviewedAt = &t
	}
	return &tr, nil
}

// StoreCorrection appends a correction row.
func (s *PostgresStore) StoreCorrection(ctx context.Context, c *Correction) error {
	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections (
			id, jurisdiction, operation_profile,
			usdot, mc, hazmat, ifta, state_reg, reasoning,
			source_scenario_id, source_result_id, source_agent, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, id, c.Jurisdiction, c.OperationProfile,
		c.Requirements.USDOT, c.Requirements.MCAuthority, c.Requirements.Hazmat,
		c.Requirements.IFTA, c.Requirements.StateRegistration, c.Reasoning,
		c.SourceScenarioID, c.SourceResultID, c.SourceAgent, c.Notes, createdAt, now)
	if err != nil {
		return fmt.Errorf("failed to insert correction: %w", err)
	}
	return nil
}

// LookupCorrections returns corrections for the profile key, most recent
// first.
func (s *PostgresStore) LookupCorrections(ctx context.Context, profileKey string) ([]*Correction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, jurisdiction, operation_profile,
		       usdot, mc, hazmat, ifta, state_reg, reasoning,
		       source_scenario_id, source_result_id, source_agent, notes,
		       created_at, updated_at
		FROM corrections
		WHERE jurisdiction || ':' || operation_profile = $1
		ORDER BY created_at DESC
	`, profileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list corrections: %w", err)
	}
	defer rows.Close()

	var out []*Correction
	for rows.Next() {
		var c Correction
		err := rows.Scan(&c.ID, &c.Jurisdiction, &c.OperationProfile,
			&c.Requirements.USDOT, &c.Requirements.MCAuthority, &c.Requirements.Hazmat,
			&c.Requirements.IFTA, &c.Requirements.StateRegistration, &c.Reasoning,
			&c.SourceScenarioID, &c.SourceResultID, &c.SourceAgent, &c.Notes,
			&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corrections: %w", err)
	}
	return out, nil
}

// determineRecord reassembles a determination from denormalized columns.
type determineRecord struct {
	usdot, mc, hazmat, ifta, stateReg bool
	reasoning                         sql.NullString
}

func (d determineRecord) toDetermination(scenarioID string, responseMs int64) *determine.Determination {
	return &determine.Determination{
		ScenarioID: scenarioID,
		Requirements: scenario.Requirements{
			USDOT:             d.usdot,
			MCAuthority:       d.mc,
			Hazmat:            d.hazmat,
			IFTA:              d.ifta,
			StateRegistration: d.stateReg,
		},
		Reasoning:    d.reasoning.String,
		ResponseTime: time.Duration(responseMs) * time.Millisecond,
	}
}

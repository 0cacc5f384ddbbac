package main

import (
	"github.com/fleetware/regtrain/scenario"
	"github.com/fleetware/regtrain/training"
)

// API request and response models.

// GenerateScenariosRequest starts a new training session.
type GenerateScenariosRequest struct {
	Count       int    `json:"count"`
	Seed        *int64 `json:"seed,omitempty"`
	SessionName string `json:"sessionName,omitempty"`
}

// GenerateScenariosResponse reports the created session.
type GenerateScenariosResponse struct {
	Count   int               `json:"count"`
	Session *training.Session `json:"session"`
}

// TestScenarioRequest runs the determiner against one scenario.
type TestScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

// SubmitFeedbackRequest applies a manual review to a tested scenario.
type SubmitFeedbackRequest struct {
	ScenarioID string `json:"scenarioId"`
	IsCorrect  bool   `json:"isCorrect"`
	Feedback   string `json:"feedback,omitempty"`
	ReviewedBy string `json:"reviewedBy,omitempty"`

	// PerFieldReview holds verdicts keyed by requirement field
	// (usdot, mc, hazmat, ifta, stateReg); values are
	// correct, incorrect, or cannot_verify.
	PerFieldReview map[string]training.FieldVerdict `json:"perFieldReview,omitempty"`

	// Correction optionally carries the corrected answer stored to the
	// knowledge table when the determination was wrong.
	Correction          *scenario.Requirements `json:"correction,omitempty"`
	CorrectionReasoning string                 `json:"correctionReasoning,omitempty"`
}

// ErrorResponse is the error envelope for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Package training grades determinations against expected answers,
// accumulates session statistics, and folds human corrections back into the
// shared knowledge store.
package training

import (
	"time"

	"github.com/fleetware/regtrain/determine"
)

// Field names of the five requirement flags, in grading order.
const (
	FieldUSDOT    = "usdot"
	FieldMC       = "mc"
	FieldHazmat   = "hazmat"
	FieldIFTA     = "ifta"
	FieldStateReg = "stateReg"
)

// GradedFields lists the requirement fields in a fixed order.
var GradedFields = []string{FieldUSDOT, FieldMC, FieldHazmat, FieldIFTA, FieldStateReg}

// Outcome is the grading state of a test result.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomePending   Outcome = "pending"
)

// FieldVerdict is a human reviewer's call on one requirement field.
type FieldVerdict string

const (
	VerdictCorrect   FieldVerdict = "correct"
	VerdictIncorrect FieldVerdict = "incorrect"
	// VerdictCannotVerify marks a field the reviewer had no expected answer
	// for. It never silently defaults to pass or fail; the result stays
	// pending.
	VerdictCannotVerify FieldVerdict = "cannot_verify"
)

// FieldComparison is the automatic expected-vs-actual comparison for one
// field.
type FieldComparison struct {
	Field    string `json:"field"`
	Expected bool   `json:"expected"`
	Actual   bool   `json:"actual"`
	Match    bool   `json:"match"`
}

// TestResult links a scenario to one determination and its grade.
// IsCorrect is nil while the result is pending: before the automatic
// comparison has run, or while a manual review left fields unverifiable.
type TestResult struct {
	ID            string                   `json:"id"`
	ScenarioID    string                   `json:"scenarioId"`
	SessionID     string                   `json:"sessionId"`
	Determination *determine.Determination `json:"determination"`
	Fields        []FieldComparison        `json:"fields"`
	IsCorrect     *bool                    `json:"isCorrect"`

	ReviewerFeedback string     `json:"reviewerFeedback,omitempty"`
	ReviewedBy       string     `json:"reviewedBy,omitempty"`
	ReviewedAt       *time.Time `json:"reviewedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Outcome reports the grading state.
func (tr *TestResult) Outcome() Outcome {
	switch {
	case tr.IsCorrect == nil:
		return OutcomePending
	case *tr.IsCorrect:
		return OutcomeCorrect
	default:
		return OutcomeIncorrect
	}
}

// IncorrectFields returns the fields that failed the automatic comparison.
func (tr *TestResult) IncorrectFields() []string {
	var out []string
	for _, f := range tr.Fields {
		if !f.Match {
			out = append(out, f.Field)
		}
	}
	return out
}

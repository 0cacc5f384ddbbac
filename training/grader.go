package training

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetware/regtrain/determine"
	"github.com/fleetware/regtrain/scenario"
)

// Grader compares determinations against a scenario's expected requirements
// and applies human reviews. Stateless; one grader serves any number of
// sessions.
type Grader struct{}

// NewGrader creates a grader.
func NewGrader() *Grader {
	return &Grader{}
}

// Grade compares det field-by-field against the scenario's expected
// requirements. IsCorrect is the conjunction of the five field matches.
func (g *Grader) Grade(sc *scenario.Scenario, det *determine.Determination) *TestResult {
	expected := sc.Expected.Requirements
	actual := det.Requirements

	fields := []FieldComparison{
		{Field: FieldUSDOT, Expected: expected.USDOT, Actual: actual.USDOT},
		{Field: FieldMC, Expected: expected.MCAuthority, Actual: actual.MCAuthority},
		{Field: FieldHazmat, Expected: expected.Hazmat, Actual: actual.Hazmat},
		{Field: FieldIFTA, Expected: expected.IFTA, Actual: actual.IFTA},
		{Field: FieldStateReg, Expected: expected.StateRegistration, Actual: actual.StateRegistration},
	}

	correct := true
	for i := range fields {
		fields[i].Match = fields[i].Expected == fields[i].Actual
		if !fields[i].Match {
			correct = false
		}
	}

	return &TestResult{
		ID:            uuid.New().String(),
		ScenarioID:    sc.ID,
		Determination: det,
		Fields:        fields,
		IsCorrect:     &correct,
		CreatedAt:     time.Now(),
	}
}

// ApplyManualReview folds a human review into a copy of tr. Fields absent
// from verdicts keep their automatic comparison. If any reviewed field is
// marked cannot-verify the result goes back to pending rather than guessing.
// Verdicts that contradict the automatic comparison are kept, with the
// disagreement appended to the feedback so it is never silent.
func (g *Grader) ApplyManualReview(tr *TestResult, verdicts map[string]FieldVerdict, feedback, reviewer string) (*TestResult, error) {
	for field, v := range verdicts {
		if !knownField(field) {
			return nil, fmt.Errorf("unknown requirement field %q", field)
		}
		switch v {
		case VerdictCorrect, VerdictIncorrect, VerdictCannotVerify:
		default:
			return nil, fmt.Errorf("field %s: invalid verdict %q", field, v)
		}
	}

	out := *tr
	out.Fields = append([]FieldComparison(nil), tr.Fields...)

	var disagreements []string
	unverifiable := false
	correct := true

	for i, f := range out.Fields {
		verdict, reviewed := verdicts[f.Field]
		if !reviewed {
			// Fall back to the automatic comparison for unreviewed fields.
			if !f.Match {
				correct = false
			}
			continue
		}

		switch verdict {
		case VerdictCannotVerify:
			unverifiable = true
		case VerdictCorrect:
			if !f.Match {
				disagreements = append(disagreements,
					fmt.Sprintf("%s: reviewer accepted a value the automatic comparison rejected", f.Field))
			}
			out.Fields[i].Match = true
		case VerdictIncorrect:
			if f.Match {
				disagreements = append(disagreements,
					fmt.Sprintf("%s: reviewer rejected a value the automatic comparison accepted", f.Field))
			}
			out.Fields[i].Match = false
			correct = false
		}
	}

	if unverifiable {
		out.IsCorrect = nil
	} else {
		out.IsCorrect = &correct
	}

	notes := feedback
	if len(disagreements) > 0 {
		if notes != "" {
			notes += "\n"
		}
		notes += "review disagrees with automatic comparison: " + strings.Join(disagreements, "; ")
	}
	out.ReviewerFeedback = notes
	out.ReviewedBy = reviewer
	now := time.Now()
	out.ReviewedAt = &now

	return &out, nil
}

// ApplyOverallReview records a blanket correct/incorrect review without
// per-field verdicts. The per-field comparisons are left as the automatic
// grader produced them; a disagreement between the overall verdict and the
// automatic conjunction is surfaced in the feedback.
func (g *Grader) ApplyOverallReview(tr *TestResult, isCorrect bool, feedback, reviewer string) *TestResult {
	out := *tr
	out.Fields = append([]FieldComparison(nil), tr.Fields...)

	if tr.IsCorrect != nil && *tr.IsCorrect != isCorrect {
		if feedback != "" {
			feedback += "\n"
		}
		feedback += fmt.Sprintf("review disagrees with automatic comparison: automatic grade was %v", *tr.IsCorrect)
	}

	out.IsCorrect = &isCorrect
	out.ReviewerFeedback = feedback
	out.ReviewedBy = reviewer
	now := time.Now()
	out.ReviewedAt = &now
	return &out
}

func knownField(name string) bool {
	for _, f := range GradedFields {
		if f == name {
			return true
		}
	}
	return false
}

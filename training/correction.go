package training

import (
	"strings"
	"time"

	"github.com/fleetware/regtrain/scenario"
)

// Correction is one human-verified answer fed back into the shared
// knowledge store. Entries are append-only: a later correction for the same
// profile key supersedes earlier ones for consumers, but the originals stay
// for audit.
type Correction struct {
	ID               string                `json:"id"`
	Jurisdiction     string                `json:"jurisdiction"`
	OperationProfile string                `json:"operationProfile"`
	Requirements     scenario.Requirements `json:"requirements"`
	Reasoning        string                `json:"reasoning"`

	SourceScenarioID string `json:"sourceScenarioId"`
	SourceResultID   string `json:"sourceResultId"`
	SourceAgent      string `json:"sourceAgent,omitempty"`
	Notes            string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProfileKey rebuilds the lookup key this correction is filed under.
func (c *Correction) ProfileKey() string {
	return c.Jurisdiction + ":" + c.OperationProfile
}

// NewCorrection builds a correction from a failed result and the
// human-supplied corrected answer.
func NewCorrection(sc *scenario.Scenario, tr *TestResult, corrected scenario.Requirements, reasoning, notes string) *Correction {
	return &Correction{
		Jurisdiction:     sc.Jurisdiction,
		OperationProfile: strings.TrimPrefix(sc.ProfileKey(), sc.Jurisdiction+":"),
		Requirements:     corrected,
		Reasoning:        reasoning,
		SourceScenarioID: sc.ID,
		SourceResultID:   tr.ID,
		Notes:            notes,
	}
}

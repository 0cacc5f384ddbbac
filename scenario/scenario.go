// Package scenario synthesizes business profiles for compliance training and
// computes each profile's expected regulatory determination. The expected
// answer is the single source of grading truth and is deliberately computed
// here, with no dependency on the determination engine under test.
package scenario

import (
	"fmt"
	"strings"
	"time"
)

// OperationType distinguishes carriers hauling for compensation from
// private-property operations.
type OperationType string

const (
	ForHire OperationType = "for_hire"
	Private OperationType = "private"
)

// OperationRadius distinguishes interstate from intrastate operation.
type OperationRadius string

const (
	Interstate OperationRadius = "interstate"
	Intrastate OperationRadius = "intrastate"
)

// BusinessType is the legal form of the carrier.
type BusinessType string

const (
	SoleProprietor BusinessType = "sole_proprietor"
	Partnership    BusinessType = "partnership"
	LLC            BusinessType = "llc"
	Corporation    BusinessType = "corporation"
)

// CargoType classifies what the carrier hauls.
type CargoType string

const (
	GeneralFreight CargoType = "general_freight"
	HouseholdGoods CargoType = "household_goods"
	Agricultural   CargoType = "agricultural"
	Passengers     CargoType = "passengers"
	Hazmat         CargoType = "hazmat"
)

// Requirements is the five-flag regulatory determination every component in
// the training loop speaks: which filings a profile needs.
type Requirements struct {
	USDOT             bool `json:"usdot"`
	MCAuthority       bool `json:"mc"`
	Hazmat            bool `json:"hazmat"`
	IFTA              bool `json:"ifta"`
	StateRegistration bool `json:"stateReg"`
}

// ExpectedRequirements is the known-correct answer embedded in a scenario.
type ExpectedRequirements struct {
	Requirements
	Reasoning string `json:"reasoning"`
}

// Scenario is one complete synthetic business profile. Immutable once
// generated.
type Scenario struct {
	ID              string               `json:"id"`
	Jurisdiction    string               `json:"jurisdiction"`
	BusinessType    BusinessType         `json:"businessType"`
	OperationType   OperationType        `json:"operationType"`
	OperationRadius OperationRadius      `json:"operationRadius"`
	VehicleCount    int                  `json:"vehicleCount"`
	DriverCount     int                  `json:"driverCount"`
	GrossWeightLbs  int                  `json:"grossWeightLbs"`
	PassengerSeats  int                  `json:"passengerSeats"`
	Cargo           CargoType            `json:"cargo"`
	HasHazmat       bool                 `json:"hasHazmat"`
	Expected        ExpectedRequirements `json:"expected"`
	CreatedAt       time.Time            `json:"createdAt"`
	Active          bool                 `json:"active"`
}

// Profile is the subset of scenario fields the expected-requirements policy
// depends on.
type Profile struct {
	Jurisdiction    string
	OperationType   OperationType
	OperationRadius OperationRadius
	HasHazmat       bool
	VehicleCount    int
	DriverCount     int
	GrossWeightLbs  int
	PassengerSeats  int
}

// Profile extracts the policy-relevant fields of the scenario.
func (s *Scenario) Profile() Profile {
	return Profile{
		Jurisdiction:    s.Jurisdiction,
		OperationType:   s.OperationType,
		OperationRadius: s.OperationRadius,
		HasHazmat:       s.HasHazmat,
		VehicleCount:    s.VehicleCount,
		DriverCount:     s.DriverCount,
		GrossWeightLbs:  s.GrossWeightLbs,
		PassengerSeats:  s.PassengerSeats,
	}
}

// ProfileKey is the (jurisdiction, operation profile) tuple corrections are
// keyed by.
func (s *Scenario) ProfileKey() string {
	return ProfileKey(s.Profile())
}

// ProfileKey builds the correction-store key for a profile.
func ProfileKey(p Profile) string {
	parts := []string{
		p.Jurisdiction,
		string(p.OperationType),
		string(p.OperationRadius),
	}
	if p.HasHazmat {
		parts = append(parts, "hazmat")
	}
	return strings.Join(parts, ":")
}

// Validate rejects internally inconsistent scenarios before they can reach a
// grader.
func (s *Scenario) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("scenario has no ID")
	}
	if s.Jurisdiction == "" {
		return fmt.Errorf("scenario %s: jurisdiction is required", s.ID)
	}
	if s.OperationType != ForHire && s.OperationType != Private {
		return fmt.Errorf("scenario %s: invalid operation type %q", s.ID, s.OperationType)
	}
	if s.OperationRadius != Interstate && s.OperationRadius != Intrastate {
		return fmt.Errorf("scenario %s: invalid operation radius %q", s.ID, s.OperationRadius)
	}
	if s.VehicleCount < 1 {
		return fmt.Errorf("scenario %s: vehicle count must be positive, got %d", s.ID, s.VehicleCount)
	}
	if s.DriverCount < 1 {
		return fmt.Errorf("scenario %s: driver count must be positive, got %d", s.ID, s.DriverCount)
	}
	if s.GrossWeightLbs <= 0 {
		return fmt.Errorf("scenario %s: gross weight must be positive, got %d", s.ID, s.GrossWeightLbs)
	}
	if s.HasHazmat != (s.Cargo == Hazmat) {
		return fmt.Errorf("scenario %s: hazmat flag disagrees with cargo classification %q", s.ID, s.Cargo)
	}
	if s.Cargo == Passengers && s.PassengerSeats < 1 {
		return fmt.Errorf("scenario %s: passenger operation requires seat count", s.ID)
	}
	return nil
}

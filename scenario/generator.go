package scenario

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Generator synthesizes scenarios. For a given seed the sequence of
// generated profiles and their expected requirements is fixed; only the
// scenario IDs and timestamps differ between runs.
type Generator struct {
	rng           *rand.Rand
	jurisdictions []string

	// missedProfiles biases random generation toward profiles a human has
	// previously corrected, so training revisits known weak spots.
	missedProfiles []Profile
}

// NewGenerator creates a generator seeded for reproducible output.
func NewGenerator(seed int64) *Generator {
	jurisdictions := Jurisdictions()
	sort.Strings(jurisdictions)

	return &Generator{
		rng:           rand.New(rand.NewSource(seed)),
		jurisdictions: jurisdictions,
	}
}

// WithCorrections registers previously corrected profiles. Roughly a quarter
// of subsequent random draws revisit one of them instead of a fresh profile.
func (g *Generator) WithCorrections(profiles []Profile) *Generator {
	g.missedProfiles = profiles
	return g
}

// Generate synthesizes one random scenario with its expected requirements.
func (g *Generator) Generate() (*Scenario, error) {
	var p Profile
	if len(g.missedProfiles) > 0 && g.rng.Intn(4) == 0 {
		p = g.missedProfiles[g.rng.Intn(len(g.missedProfiles))]
	} else {
		p = g.randomProfile()
	}
	return g.build(p)
}

// GenerateBatch synthesizes n scenarios.
func (g *Generator) GenerateBatch(n int) ([]*Scenario, error) {
	out := make([]*Scenario, 0, n)
	for i := 0; i < n; i++ {
		s, err := g.Generate()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Enumerate produces the deterministic regression grid: every combination
// of jurisdiction, operation type, radius, hazmat flag, and a small set of
// fleet sizes, in a fixed order.
func (g *Generator) Enumerate() ([]*Scenario, error) {
	fleetSizes := []int{1, 2, 5}
	var out []*Scenario

	for _, jurisdiction := range g.jurisdictions {
		for _, opType := range []OperationType{ForHire, Private} {
			for _, radius := range []OperationRadius{Interstate, Intrastate} {
				for _, hazmat := range []bool{false, true} {
					for _, fleet := range fleetSizes {
						p := Profile{
							Jurisdiction:    jurisdiction,
							OperationType:   opType,
							OperationRadius: radius,
							HasHazmat:       hazmat,
							VehicleCount:    fleet,
							DriverCount:     fleet,
							GrossWeightLbs:  26001,
						}
						s, err := g.build(p)
						if err != nil {
							return nil, err
						}
						out = append(out, s)
					}
				}
			}
		}
	}
	return out, nil
}

func (g *Generator) randomProfile() Profile {
	radius := Interstate
	if g.rng.Intn(2) == 0 {
		radius = Intrastate
	}
	opType := ForHire
	if g.rng.Intn(3) == 0 {
		opType = Private
	}

	vehicles := 1 + g.rng.Intn(12)
	drivers := vehicles + g.rng.Intn(3)

	// Weight classes spanning both sides of every jurisdiction threshold.
	weights := []int{9000, 14000, 20000, 26001, 33000, 80000}
	weight := weights[g.rng.Intn(len(weights))]

	hazmat := g.rng.Intn(5) == 0

	seats := 0
	if !hazmat && g.rng.Intn(8) == 0 {
		seats = 8 + g.rng.Intn(40)
	}

	return Profile{
		Jurisdiction:    g.jurisdictions[g.rng.Intn(len(g.jurisdictions))],
		OperationType:   opType,
		OperationRadius: radius,
		HasHazmat:       hazmat,
		VehicleCount:    vehicles,
		DriverCount:     drivers,
		GrossWeightLbs:  weight,
		PassengerSeats:  seats,
	}
}

func (g *Generator) build(p Profile) (*Scenario, error) {
	cargo := GeneralFreight
	switch {
	case p.HasHazmat:
		cargo = Hazmat
	case p.PassengerSeats > 0:
		cargo = Passengers
	}

	businessTypes := []BusinessType{SoleProprietor, Partnership, LLC, Corporation}

	s := &Scenario{
		ID:              uuid.New().String(),
		Jurisdiction:    p.Jurisdiction,
		BusinessType:    businessTypes[g.rng.Intn(len(businessTypes))],
		OperationType:   p.OperationType,
		OperationRadius: p.OperationRadius,
		VehicleCount:    p.VehicleCount,
		DriverCount:     p.DriverCount,
		GrossWeightLbs:  p.GrossWeightLbs,
		PassengerSeats:  p.PassengerSeats,
		Cargo:           cargo,
		HasHazmat:       p.HasHazmat,
		Expected:        ExpectedFor(p),
		CreatedAt:       time.Now(),
		Active:          true,
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("generated scenario failed validation: %w", err)
	}
	return s, nil
}

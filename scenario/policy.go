package scenario

import (
	"fmt"
	"strings"
)

// qualification holds one jurisdiction's intrastate USDOT thresholds: the
// gross weight and passenger seat counts at which an intrastate carrier
// becomes a regulated commercial operation.
type qualification struct {
	WeightLbs int
	Seats     int
}

// qualificationTable covers the jurisdictions the generator draws from.
// Jurisdictions not listed fall back to the federal 10,001 lbs / 9 seat
// thresholds.
var qualificationTable = map[string]qualification{
	"CA": {WeightLbs: 10001, Seats: 10},
	"TX": {WeightLbs: 26001, Seats: 15},
	"FL": {WeightLbs: 26001, Seats: 15},
	"NY": {WeightLbs: 18001, Seats: 10},
	"IL": {WeightLbs: 16001, Seats: 10},
	"GA": {WeightLbs: 10001, Seats: 10},
	"OH": {WeightLbs: 10001, Seats: 9},
	"PA": {WeightLbs: 17001, Seats: 15},
}

var defaultQualification = qualification{WeightLbs: 10001, Seats: 9}

// iftaFleetThreshold is the fleet size at which an interstate carrier needs
// fuel-tax registration.
const iftaFleetThreshold = 2

// Jurisdictions returns the jurisdictions with an explicit qualification
// entry, in no particular order.
func Jurisdictions() []string {
	out := make([]string, 0, len(qualificationTable))
	for j := range qualificationTable {
		out = append(out, j)
	}
	return out
}

// ExpectedFor computes the ground-truth regulatory determination for a
// profile. It is a pure function: same profile in, same answer out.
//
// Interstate operation requires a USDOT number; for-hire interstate also
// requires MC operating authority; interstate fleets of two or more
// vehicles require IFTA. Intrastate operation requires state registration,
// and a USDOT number when the jurisdiction's weight or passenger thresholds
// are met (hazmat always qualifies). Hazmat cargo requires the endorsement
// regardless of radius.
func ExpectedFor(p Profile) ExpectedRequirements {
	var req Requirements
	var reasons []string

	switch p.OperationRadius {
	case Interstate:
		req.USDOT = true
		reasons = append(reasons, "interstate operation requires a USDOT number")

		if p.OperationType == ForHire {
			req.MCAuthority = true
			reasons = append(reasons, "for-hire interstate transport requires MC operating authority")
		}
		if p.VehicleCount >= iftaFleetThreshold {
			req.IFTA = true
			reasons = append(reasons,
				fmt.Sprintf("interstate fleet of %d vehicles requires IFTA registration", p.VehicleCount))
		}

	case Intrastate:
		req.StateRegistration = true
		reasons = append(reasons,
			fmt.Sprintf("intrastate operation requires %s state registration", p.Jurisdiction))

		q, ok := qualificationTable[p.Jurisdiction]
		if !ok {
			q = defaultQualification
		}
		switch {
		case p.HasHazmat:
			req.USDOT = true
			reasons = append(reasons, "intrastate hazmat transport requires a USDOT number")
		case p.GrossWeightLbs >= q.WeightLbs:
			req.USDOT = true
			reasons = append(reasons,
				fmt.Sprintf("gross weight %d lbs meets the %s intrastate threshold of %d lbs",
					p.GrossWeightLbs, p.Jurisdiction, q.WeightLbs))
		case p.PassengerSeats >= q.Seats:
			req.USDOT = true
			reasons = append(reasons,
				fmt.Sprintf("%d passenger seats meets the %s intrastate threshold of %d",
					p.PassengerSeats, p.Jurisdiction, q.Seats))
		}
	}

	if p.HasHazmat {
		req.Hazmat = true
		reasons = append(reasons, "hazardous materials cargo requires a hazmat endorsement")
	}

	return ExpectedRequirements{
		Requirements: req,
		Reasoning:    strings.Join(reasons, "; "),
	}
}

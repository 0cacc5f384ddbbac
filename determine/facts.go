package determine

import (
	"github.com/fleetware/regtrain/rules"
	"github.com/fleetware/regtrain/scenario"
)

// intrastateThresholds is this determiner's own copy of the per-state
// qualification data. It is catalog data for the rules below, not a shared
// decision helper with the grading side.
var intrastateThresholds = map[string]struct {
	weightLbs int
	seats     int
}{
	"CA": {10001, 10},
	"TX": {26001, 15},
	"FL": {26001, 15},
	"NY": {18001, 10},
	"IL": {16001, 10},
	"GA": {10001, 10},
	"OH": {10001, 9},
	"PA": {17001, 15},
}

// Facts flattens a scenario into the rule context data bag.
func Facts(sc *scenario.Scenario) map[string]any {
	return map[string]any{
		"jurisdiction":     sc.Jurisdiction,
		"operation_type":   string(sc.OperationType),
		"operation_radius": string(sc.OperationRadius),
		"business_type":    string(sc.BusinessType),
		"vehicle_count":    sc.VehicleCount,
		"driver_count":     sc.DriverCount,
		"gross_weight":     sc.GrossWeightLbs,
		"passenger_seats":  sc.PassengerSeats,
		"cargo":            string(sc.Cargo),
		"has_hazmat":       sc.HasHazmat,
	}
}

func registerConditions(registry *rules.Registry) error {
	goConditions := map[string]rules.ConditionHandler{
		"meets_intrastate_qualification": func(ctx rules.Context) (bool, any) {
			jurisdiction, _ := ctx.Data["jurisdiction"].(string)
			weight, _ := ctx.Data["gross_weight"].(int)
			seats, _ := ctx.Data["passenger_seats"].(int)
			hazmat, _ := ctx.Data["has_hazmat"].(bool)

			t, ok := intrastateThresholds[jurisdiction]
			if !ok {
				t.weightLbs, t.seats = 10001, 9
			}
			switch {
			case hazmat:
				return true, "hazmat"
			case weight >= t.weightLbs:
				return true, weight
			case t.seats > 0 && seats >= t.seats:
				return true, seats
			}
			return false, weight
		},
	}
	for name, h := range goConditions {
		if err := registry.RegisterCondition(name, h); err != nil {
			return err
		}
	}

	celConditions := map[string]string{
		"is_interstate":              `Data.operation_radius == "interstate"`,
		"is_intrastate":              `Data.operation_radius == "intrastate"`,
		"is_for_hire":                `Data.operation_type == "for_hire"`,
		"has_hazmat_cargo":           `Data.has_hazmat == true`,
		"meets_ifta_fleet_threshold": `Data.vehicle_count >= 2`,
	}
	for name, expr := range celConditions {
		if err := registry.RegisterCELCondition(name, expr); err != nil {
			return err
		}
	}
	return nil
}

// complianceRules is the default determination catalog. Priorities follow
// evaluation order only; none of these rules supersede one another, since
// the five filings are independent obligations.
func complianceRules() []*rules.Rule {
	return []*rules.Rule{
		{
			ID:         "interstate-usdot",
			Name:       "interstate operation requires USDOT registration",
			Category:   "federal",
			Conditions: []string{"is_interstate"},
			Actions:    []string{ActionRequireUSDOT},
			Priority:   10,
			Active:     true,
		},
		{
			ID:         "interstate-mc-authority",
			Name:       "for-hire interstate transport requires MC authority",
			Category:   "federal",
			Conditions: []string{"is_interstate", "is_for_hire"},
			Actions:    []string{ActionRequireMC},
			Priority:   20,
			Active:     true,
		},
		{
			ID:         "interstate-ifta",
			Name:       "multi-vehicle interstate fleet requires IFTA",
			Category:   "fuel_tax",
			Conditions: []string{"is_interstate", "meets_ifta_fleet_threshold"},
			Actions:    []string{ActionRequireIFTA},
			Priority:   30,
			Active:     true,
		},
		{
			ID:         "intrastate-usdot",
			Name:       "qualifying intrastate operation requires USDOT registration",
			Category:   "state",
			Conditions: []string{"is_intrastate", "meets_intrastate_qualification"},
			Actions:    []string{ActionRequireUSDOT},
			Priority:   40,
			Active:     true,
		},
		{
			ID:         "intrastate-registration",
			Name:       "intrastate operation requires state registration",
			Category:   "state",
			Conditions: []string{"is_intrastate"},
			Actions:    []string{ActionRequireStateReg},
			Priority:   50,
			Active:     true,
		},
		{
			ID:         "hazmat-endorsement",
			Name:       "hazardous materials cargo requires hazmat endorsement",
			Category:   "safety",
			Conditions: []string{"has_hazmat_cargo"},
			Actions:    []string{ActionRequireHazmat},
			Priority:   60,
			Active:     true,
		},
	}
}

package plan

import (
	"fmt"

	"github.com/ohowland/cgc_plan/internal/pkg/solver"
)

// Family groups slack variables by the row they relax.
type Family int

const (
	TargetShortfall Family = iota
	MinBudgetShortfall
	MaxBudgetOverage
	RenewableCapacityShortfall
	RenewableProductionShortfall
	EmissionsOverage
)

func (f Family) String() string {
	switch f {
	case TargetShortfall:
		return "target shortfall"
	case MinBudgetShortfall:
		return "min budget shortfall"
	case MaxBudgetOverage:
		return "max budget exceeded"
	case RenewableCapacityShortfall:
		return "renewable capacity shortfall"
	case RenewableProductionShortfall:
		return "renewable production shortfall"
	case EmissionsOverage:
		return "emissions overage"
	default:
		return "unknown"
	}
}

// MarshalText encodes the family by its String form.
func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText decodes a family written by MarshalText.
func (f *Family) UnmarshalText(text []byte) error {
	for c := TargetShortfall; c <= EmissionsOverage; c++ {
		if c.String() == string(text) {
			*f = c
			return nil
		}
	}
	return fmt.Errorf("unknown slack family %q", text)
}

// Unit of the slack values of the family.
func (f Family) Unit() string {
	switch f {
	case TargetShortfall, MinBudgetShortfall, MaxBudgetOverage:
		return "₹"
	case RenewableCapacityShortfall:
		return "MW"
	case RenewableProductionShortfall:
		return "MWh"
	case EmissionsOverage:
		return "kg CO2"
	default:
		return ""
	}
}

func (f Family) varName(subject string) string {
	var base string
	switch f {
	case TargetShortfall:
		base = "Slack_Target"
	case MinBudgetShortfall:
		base = "Slack_Min_Budget"
	case MaxBudgetOverage:
		base = "Slack_Max_Budget"
	case RenewableCapacityShortfall:
		base = "Slack_Renewable_Capacity"
	case RenewableProductionShortfall:
		base = "Slack_Renewable_Production"
	default:
		base = "Slack_Emissions"
	}
	if subject == "" {
		return base
	}
	return base + "[" + subject + "]"
}

// Slack is one slack variable. Subject is the source name or year it
// belongs to, empty for the model-wide slacks.
type Slack struct {
	Family  Family
	Subject string
	Var     solver.Var
}

// Package report renders an analysis.Report for people and programs.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ohowland/cgc_plan/internal/pkg/analysis"
)

// Indian numbering units, in rupees.
const (
	Crore     = 1e7
	LakhCrore = 1e12
)

// FormatINR renders rupees in lakh crore from 10^5 crore upward and in
// crore below.
func FormatINR(rupees float64) string {
	crore := rupees / Crore
	if crore >= 1e5 {
		return fmt.Sprintf("₹%.2f lakh crore", crore/1e5)
	}
	return fmt.Sprintf("₹%.2f crore", crore)
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// WriteText writes the human readable report.
func WriteText(w io.Writer, r analysis.Report) error {
	p := &printer{w: w}
	threshold := r.DisplayThreshold

	p.printf("India's Optimal Energy Transition Strategy\n")
	p.printf("==========================================\n")
	p.printf("Run %s, status %s\n", r.RunID, r.Status)

	p.printf("\nTotal Investment: %s\n", FormatINR(r.TotalInvestment))

	p.printf("\nInvestment Breakdown by Source:\n")
	for _, s := range r.Sources {
		if s.Total > threshold {
			p.printf("  %s: %s\n", s.Source, FormatINR(s.Total))
			for _, a := range s.Allocations {
				p.printf("    %d: %s\n", a.Year, FormatINR(a.Amount))
			}
		}
		if s.Shortfall > threshold {
			p.printf("  ⚠ %s target shortfall: %s\n", s.Source, FormatINR(s.Shortfall))
		}
	}

	p.printf("\nAnnual Budget Analysis:\n")
	for _, y := range r.Years {
		p.printf("  %d: %s\n", y.Year, FormatINR(y.Total))
		if y.MinShortfall > threshold {
			p.printf("    ⚠ Min budget shortfall: %s\n", FormatINR(y.MinShortfall))
		}
		if y.MaxExceeded > threshold {
			p.printf("    ⚠ Max budget exceeded by: %s\n", FormatINR(y.MaxExceeded))
		}
	}

	rn := r.Renewables
	p.printf("\nRenewable Energy Targets:\n")
	p.printf("  Capacity: %.2f MW / %.2f MW\n", rn.CapacityAchieved, rn.CapacityTarget)
	if rn.CapacityShortfall > threshold {
		p.printf("    ⚠ Shortfall: %.2f MW%s\n", rn.CapacityShortfall, ofTarget(rn.CapacityShortfall, rn.CapacityTarget))
	}
	p.printf("  Production: %.2f BU / %.2f BU\n", rn.ProductionAchieved, rn.ProductionTarget)
	// the production slack is compared in MWh, like the row it relaxes
	if rn.ProductionShortfall*1e6 > threshold {
		p.printf("    ⚠ Shortfall: %.2f BU%s\n", rn.ProductionShortfall, ofTarget(rn.ProductionShortfall, rn.ProductionTarget))
	}

	e := r.Emissions
	p.printf("\nEmissions Analysis:\n")
	p.printf("  Total Emissions: %.2f kg CO2 / %.2f kg CO2\n", e.Produced, e.Target)
	if e.Exceeded() {
		p.printf("    ⚠ Emissions exceed target by: %.2f kg CO2\n", e.Delta)
	} else {
		p.printf("    Emissions are below target by: %.2f kg CO2\n", -e.Delta)
	}

	p.printf("\nObjective: %.2f (recomputed %.2f)\n", r.Objective, r.RecomputedObjective)
	return p.err
}

func ofTarget(shortfall, target float64) string {
	if target <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%.2f%% of target)", 100*shortfall/target)
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r analysis.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Write renders r in format, "text" or "json".
func Write(w io.Writer, r analysis.Report, format string) error {
	switch format {
	case "json":
		return WriteJSON(w, r)
	case "text", "":
		return WriteText(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

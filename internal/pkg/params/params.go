// Package params joins the input tables into validated, read-only source
// parameters for the investment model.
package params

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrMissingParameter is returned when a modelled source lacks a value the
// model cannot do without.
var ErrMissingParameter = errors.New("missing parameter")

// GoalSources maps the recognized goal labels to source names. Other goal
// labels are ignored.
var GoalSources = map[string]string{
	"Coal Capacity (GW)":        "Coal",
	"Natural Gas Capacity (GW)": "Natural Gas",
	"Nuclear Capacity (GW)":     "Nuclear",
	"Solar Capacity (GW)":       "Solar",
	"Wind Capacity (GW)":        "Wind",
	"Hydropower Capacity (GW)":  "Hydropower",
	"Biomass Capacity (GW)":     "Biomass",
}

// CapacityFactors is the share of the year each technology produces at
// nameplate capacity.
var CapacityFactors = map[string]float64{
	"Solar":       0.2,
	"Wind":        0.3,
	"Hydropower":  0.4,
	"Biomass":     0.7,
	"Nuclear":     0.9,
	"Coal":        0.8,
	"Natural Gas": 0.5,
}

// RenewableSources are counted toward the renewable capacity and production
// targets when they are modelled.
var RenewableSources = []string{"Solar", "Wind", "Hydropower", "Biomass"}

// MWPerGW converts goal values to model units.
const MWPerGW = 1000

// Source is one modelled technology.
type Source struct {
	Name            string
	CapitalCost     float64 // ₹/MW
	CurrentCapacity float64 // MW
	TargetCapacity  float64 // MW
	EmissionFactor  float64 // kg CO2/kWh
	CapacityFactor  float64
	MinPlants       int
	MaxPlants       int
	Renewable       bool
}

// CapacityGap is the capacity still to be built, in MW. It is negative when
// the target is already exceeded.
func (s Source) CapacityGap() float64 {
	return s.TargetCapacity - s.CurrentCapacity
}

// RequiredFunding is the investment that closes the capacity gap, in ₹.
func (s Source) RequiredFunding() float64 {
	return s.CapacityGap() * s.CapitalCost
}

// AddedCapacity is the capacity bought by investment rupees, in MW.
func (s Source) AddedCapacity(investment float64) float64 {
	return investment / s.CapitalCost
}

// Parameters are the joined inputs. The zero value has no sources.
type Parameters struct {
	sources []Source
	index   map[string]int

	// Excluded lists cost rows without a recognized target, in table order.
	Excluded []string
	// Unrecognized lists goal labels that map to no source.
	Unrecognized []string
}

// New joins the tables. Sources are those with both a cost row and a
// recognized target, in cost-table order. A later duplicate goal label
// replaces an earlier one.
func New(t Tables) (Parameters, error) {
	targets := make(map[string]float64)
	var p Parameters
	for _, g := range t.Goals {
		name, ok := GoalSources[g.Goal]
		if !ok {
			p.Unrecognized = append(p.Unrecognized, g.Goal)
			continue
		}
		targets[name] = g.TargetValue * MWPerGW
	}

	plants := make(map[string]PlantRecord, len(t.Plants))
	for _, pr := range t.Plants {
		plants[pr.Source] = pr
	}

	costed := make(map[string]bool, len(t.Emissions))
	p.index = make(map[string]int)
	for _, e := range t.Emissions {
		costed[e.Source] = true
		target, ok := targets[e.Source]
		if !ok {
			p.Excluded = append(p.Excluded, e.Source)
			continue
		}
		if !(e.CapitalCost > 0) || math.IsInf(e.CapitalCost, 0) {
			return Parameters{}, fmt.Errorf("%w: %s: capital cost must be positive and finite, got %g",
				ErrMissingParameter, e.Source, e.CapitalCost)
		}
		cf, ok := CapacityFactors[e.Source]
		if !ok {
			return Parameters{}, fmt.Errorf("%w: %s: no capacity factor", ErrMissingParameter, e.Source)
		}
		pr := plants[e.Source]
		p.index[e.Source] = len(p.sources)
		p.sources = append(p.sources, Source{
			Name:            e.Source,
			CapitalCost:     e.CapitalCost,
			CurrentCapacity: e.CurrentCapacity,
			TargetCapacity:  target,
			EmissionFactor:  e.EmissionFactor,
			CapacityFactor:  cf,
			MinPlants:       pr.MinPlants,
			MaxPlants:       pr.MaxPlants,
			Renewable:       isRenewable(e.Source),
		})
	}

	for _, name := range sortedKeys(targets) {
		if !costed[name] {
			return Parameters{}, fmt.Errorf("%w: %s has a capacity target but no capital cost", ErrMissingParameter, name)
		}
	}
	return p, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isRenewable(name string) bool {
	for _, r := range RenewableSources {
		if r == name {
			return true
		}
	}
	return false
}

// Sources returns the modelled sources in table order.
func (p Parameters) Sources() []Source {
	out := make([]Source, len(p.sources))
	copy(out, p.sources)
	return out
}

// Source looks up a modelled source by name.
func (p Parameters) Source(name string) (Source, bool) {
	i, ok := p.index[name]
	if !ok {
		return Source{}, false
	}
	return p.sources[i], true
}

// Renewables returns the modelled renewable sources in table order.
func (p Parameters) Renewables() []Source {
	var out []Source
	for _, s := range p.sources {
		if s.Renewable {
			out = append(out, s)
		}
	}
	return out
}

// Names returns the modelled source names in table order.
func (p Parameters) Names() []string {
	out := make([]string, len(p.sources))
	for i, s := range p.sources {
		out[i] = s.Name
	}
	return out
}

// RequiredFunding is Source(name).RequiredFunding(), zero for unknown names.
func (p Parameters) RequiredFunding(name string) float64 {
	s, _ := p.Source(name)
	return s.RequiredFunding()
}

// CapacityGap is Source(name).CapacityGap(), zero for unknown names.
func (p Parameters) CapacityGap(name string) float64 {
	s, _ := p.Source(name)
	return s.CapacityGap()
}

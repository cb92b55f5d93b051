package params

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ohowland/cgc_plan/internal/pkg/config"
)

// ErrMalformedInput is returned for tables that cannot be decoded.
var ErrMalformedInput = errors.New("malformed input")

// Column headers of the input tables.
const (
	ColSource          = "Source"
	ColCapitalCost     = "Capital Cost (₹/MW)"
	ColCurrentCapacity = "Current Production (MW)"
	ColEmissionFactor  = "Emission Factor (kg CO2/kWh)"
	ColMaxPlants       = "Max Plants"
	ColMinPlants       = "Min Plants"
	ColGoal            = "Goal"
	ColTargetValue     = "Target Value"
)

// EmissionRecord is one row of the emissions/cost table.
type EmissionRecord struct {
	Source          string
	CapitalCost     float64 // ₹/MW
	CurrentCapacity float64 // MW
	EmissionFactor  float64 // kg CO2/kWh
}

// PlantRecord is one row of the potential plants table.
type PlantRecord struct {
	Source    string
	MaxPlants int
	MinPlants int
}

// GoalRecord is one row of the policy goals table.
type GoalRecord struct {
	Goal        string
	TargetValue float64 // GW
}

// Tables are the decoded inputs.
type Tables struct {
	Emissions []EmissionRecord
	Plants    []PlantRecord
	Goals     []GoalRecord
}

// LoadFiles opens and decodes the three input tables.
func LoadFiles(paths config.Inputs) (Tables, error) {
	open := func(path string) (*os.File, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input table: %w", err)
		}
		return f, nil
	}

	emissions, err := open(paths.Emissions)
	if err != nil {
		return Tables{}, err
	}
	defer emissions.Close()

	plants, err := open(paths.Plants)
	if err != nil {
		return Tables{}, err
	}
	defer plants.Close()

	goals, err := open(paths.Goals)
	if err != nil {
		return Tables{}, err
	}
	defer goals.Close()

	return LoadTables(emissions, plants, goals)
}

// LoadTables decodes the three CSV tables by header name. Extra columns are
// ignored.
func LoadTables(emissions, plants, goals io.Reader) (Tables, error) {
	var t Tables
	var err error
	if t.Emissions, err = readEmissions(emissions); err != nil {
		return Tables{}, fmt.Errorf("emissions table: %w", err)
	}
	if t.Plants, err = readPlants(plants); err != nil {
		return Tables{}, fmt.Errorf("plants table: %w", err)
	}
	if t.Goals, err = readGoals(goals); err != nil {
		return Tables{}, fmt.Errorf("goals table: %w", err)
	}
	return t, nil
}

// table is a decoded CSV with a header index.
type table struct {
	cols map[string]int
	rows [][]string
}

func readTable(r io.Reader, required ...string) (table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(records) == 0 {
		return table{}, fmt.Errorf("%w: missing header row", ErrMalformedInput)
	}

	cols := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[h] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return table{}, fmt.Errorf("%w: missing column %q", ErrMalformedInput, name)
		}
	}

	var rows [][]string
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return table{cols, rows}, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func (t table) str(row []string, col string) string {
	i := t.cols[col]
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (t table) float(row []string, line int, col string) (float64, error) {
	s := strings.ReplaceAll(t.str(row, col), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: row %d: column %q: %q is not a number", ErrMalformedInput, line, col, t.str(row, col))
	}
	return v, nil
}

func (t table) int(row []string, line int, col string) (int, error) {
	v, err := t.float(row, line, col)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: row %d: column %q: %g is not a whole number", ErrMalformedInput, line, col, v)
	}
	return int(v), nil
}

func (t table) source(row []string, line int, seen map[string]bool) (string, error) {
	name := t.str(row, ColSource)
	if name == "" {
		return "", fmt.Errorf("%w: row %d: empty %q", ErrMalformedInput, line, ColSource)
	}
	if seen[name] {
		return "", fmt.Errorf("%w: row %d: duplicate source %q", ErrMalformedInput, line, name)
	}
	seen[name] = true
	return name, nil
}

func readEmissions(r io.Reader) ([]EmissionRecord, error) {
	t, err := readTable(r, ColSource, ColCapitalCost, ColCurrentCapacity, ColEmissionFactor)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := make([]EmissionRecord, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		var rec EmissionRecord
		if rec.Source, err = t.source(row, line, seen); err != nil {
			return nil, err
		}
		if rec.CapitalCost, err = t.float(row, line, ColCapitalCost); err != nil {
			return nil, err
		}
		if rec.CurrentCapacity, err = t.float(row, line, ColCurrentCapacity); err != nil {
			return nil, err
		}
		if rec.EmissionFactor, err = t.float(row, line, ColEmissionFactor); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func readPlants(r io.Reader) ([]PlantRecord, error) {
	t, err := readTable(r, ColSource, ColMaxPlants, ColMinPlants)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := make([]PlantRecord, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		var rec PlantRecord
		if rec.Source, err = t.source(row, line, seen); err != nil {
			return nil, err
		}
		if rec.MaxPlants, err = t.int(row, line, ColMaxPlants); err != nil {
			return nil, err
		}
		if rec.MinPlants, err = t.int(row, line, ColMinPlants); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// readGoals keeps every recognized goal. Rows with other labels are kept
// when their value parses and dropped otherwise, since the model ignores
// them either way.
func readGoals(r io.Reader) ([]GoalRecord, error) {
	t, err := readTable(r, ColGoal, ColTargetValue)
	if err != nil {
		return nil, err
	}
	out := make([]GoalRecord, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		rec := GoalRecord{Goal: t.str(row, ColGoal)}
		rec.TargetValue, err = t.float(row, line, ColTargetValue)
		if err != nil {
			if _, ok := GoalSources[rec.Goal]; ok {
				return nil, err
			}
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

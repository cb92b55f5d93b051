// Package config loads the planning run configuration from a JSON file.
//
// Every economic assumption and solver knob used by the model lives here so
// that no constant is embedded in the model itself. Fields omitted from the
// file keep their defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ohowland/cgc_plan/internal/pkg/solver"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root of the configuration file.
type Config struct {
	Inputs Inputs        `json:"Inputs"`
	Model  Model         `json:"Model"`
	Solver solver.Params `json:"Solver"`
	Report Report        `json:"Report"`
	Export Export        `json:"Export"`
}

// Inputs are the three CSV tables joined by source name.
type Inputs struct {
	Emissions string `json:"Emissions"`
	Plants    string `json:"Plants"`
	Goals     string `json:"Goals"`
}

// Model holds the economic assumptions of the investment model.
type Model struct {
	StartYear int `json:"StartYear"`
	EndYear   int `json:"EndYear"`

	// PenaltyFactor weights every slack unit in the objective; must be > 1.
	PenaltyFactor float64 `json:"PenaltyFactor"`

	// TotalInvestmentBudget in rupees over the whole horizon.
	TotalInvestmentBudget float64 `json:"TotalInvestmentBudget"`
	MinBudgetFraction     float64 `json:"MinBudgetFraction"`
	MaxBudgetFraction     float64 `json:"MaxBudgetFraction"`

	// EmissionDisplacement is the coefficient applied to the renewable
	// production target in the emission target.
	EmissionDisplacement float64 `json:"EmissionDisplacement"`

	HoursPerYear float64 `json:"HoursPerYear"`
}

// Report controls result interpretation and rendering.
type Report struct {
	// DisplayThreshold in model units; smaller values are treated as zero.
	DisplayThreshold float64 `json:"DisplayThreshold"`
	// Format is "text" or "json".
	Format string `json:"Format"`
}

// Export sections are optional; a nil section is disabled.
type Export struct {
	NATS  *NATS  `json:"NATS,omitempty"`
	Mongo *Mongo `json:"Mongo,omitempty"`
	SQL   *SQL   `json:"SQL,omitempty"`
}

type NATS struct {
	URL     string `json:"URL"`
	Subject string `json:"Subject"`
}

type Mongo struct {
	URI        string `json:"URI"`
	Port       string `json:"Port"`
	Database   string `json:"Database"`
	Collection string `json:"Collection"`
}

type SQL struct {
	Driver   string `json:"Driver"`
	Server   string `json:"Server"`
	Port     int    `json:"Port"`
	Username string `json:"Username"`
	Password string `json:"Password"`
	Database string `json:"Database"`
	Table    string `json:"Table"`
}

// Default returns the configuration of the 2024-2030 national plan.
func Default() Config {
	return Config{
		Inputs: Inputs{
			Emissions: "./config/data/indian_electricity_sources_with_emissions.csv",
			Plants:    "./config/data/potential_energy_plants_india.csv",
			Goals:     "./config/data/final_government_goals_2030_with_percent.csv",
		},
		Model: Model{
			StartYear:             2024,
			EndYear:               2030,
			PenaltyFactor:         1.1,
			TotalInvestmentBudget: 44 * 10e11,
			MinBudgetFraction:     0.8,
			MaxBudgetFraction:     1.2,
			EmissionDisplacement:  0.43,
			HoursPerYear:          8760,
		},
		Solver: solver.DefaultParams(),
		Report: Report{
			DisplayThreshold: 0.5,
			Format:           "text",
		},
	}
}

// New reads configPath over the defaults and validates the result.
func New(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	return Parse(jsonConfig)
}

// Parse decodes jsonConfig over the defaults and validates the result.
func Parse(jsonConfig []byte) (Config, error) {
	cfg := Default()
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Years is the inclusive planning horizon.
func (m Model) Years() []int {
	if m.EndYear < m.StartYear {
		return nil
	}
	years := make([]int, 0, m.EndYear-m.StartYear+1)
	for y := m.StartYear; y <= m.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// AverageAnnualInvestment is the total budget spread evenly over the horizon.
func (m Model) AverageAnnualInvestment() float64 {
	n := len(m.Years())
	if n == 0 {
		return 0
	}
	return m.TotalInvestmentBudget / float64(n)
}

// Validate checks every field; the first failure is returned.
func (c Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Report.DisplayThreshold < 0 {
		return fmt.Errorf("%w: DisplayThreshold must be >= 0, got %g", ErrInvalidConfig, c.Report.DisplayThreshold)
	}
	switch c.Report.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: Format must be text or json, got %q", ErrInvalidConfig, c.Report.Format)
	}
	if s := c.Export.SQL; s != nil {
		switch s.Driver {
		case "mysql", "postgres":
		default:
			return fmt.Errorf("%w: SQL Driver must be mysql or postgres, got %q", ErrInvalidConfig, s.Driver)
		}
	}
	return nil
}

// Validate checks the economic assumptions.
func (m Model) Validate() error {
	if m.StartYear > m.EndYear {
		return fmt.Errorf("%w: StartYear (%d) is after EndYear (%d)", ErrInvalidConfig, m.StartYear, m.EndYear)
	}
	if !(m.PenaltyFactor > 1) {
		return fmt.Errorf("%w: PenaltyFactor must be > 1, got %g", ErrInvalidConfig, m.PenaltyFactor)
	}
	if m.TotalInvestmentBudget < 0 {
		return fmt.Errorf("%w: TotalInvestmentBudget must be >= 0, got %g", ErrInvalidConfig, m.TotalInvestmentBudget)
	}
	if m.MinBudgetFraction < 0 || m.MaxBudgetFraction < m.MinBudgetFraction {
		return fmt.Errorf("%w: budget fractions must satisfy 0 <= min (%g) <= max (%g)",
			ErrInvalidConfig, m.MinBudgetFraction, m.MaxBudgetFraction)
	}
	if !(m.HoursPerYear > 0) {
		return fmt.Errorf("%w: HoursPerYear must be > 0, got %g", ErrInvalidConfig, m.HoursPerYear)
	}
	return nil
}

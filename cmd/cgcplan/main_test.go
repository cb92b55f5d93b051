package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/ohowland/cgc_plan/internal/pkg/analysis"
	"github.com/ohowland/cgc_plan/internal/pkg/config"
	"github.com/ohowland/cgc_plan/internal/pkg/solver"
	"github.com/ohowland/cgc_plan/internal/pkg/solver/mocksolver"
)

func testOptions() options {
	return options{
		configPath: "./testdata/cgcplan_test.json",
		budget:     -1,
		logFormat:  "console",
	}
}

func mockEngine(status solver.Status) newSolver {
	return func(solver.Params) solver.Solver { return mocksolver.New(status) }
}

func TestLoadConfigFile(t *testing.T) {
	cfg, err := loadConfig(testOptions())
	assert.NilError(t, err)
	assert.Equal(t, cfg.Inputs.Goals, "./testdata/goals.csv")
	assert.Equal(t, cfg.Model.TotalInvestmentBudget, 7e9)
	assert.Equal(t, cfg.Report.Format, "json")
}

func TestLoadConfigOverrides(t *testing.T) {
	opts := testOptions()
	opts.goals = "./other/goals.csv"
	opts.budget = 9e9
	opts.format = "text"

	cfg, err := loadConfig(opts)
	assert.NilError(t, err)

	// flags win over the file, omitted flags keep the file values
	assert.Equal(t, cfg.Inputs.Goals, "./other/goals.csv")
	assert.Equal(t, cfg.Inputs.Emissions, "./testdata/emissions.csv")
	assert.Equal(t, cfg.Model.TotalInvestmentBudget, 9e9)
	assert.Equal(t, cfg.Report.Format, "text")

	opts.budget = 0
	cfg, err = loadConfig(opts)
	assert.NilError(t, err)
	assert.Equal(t, cfg.Model.TotalInvestmentBudget, 0.0)
}

func TestLoadConfigDefaults(t *testing.T) {
	opts := testOptions()
	opts.configPath = ""

	cfg, err := loadConfig(opts)
	assert.NilError(t, err)
	assert.Equal(t, cfg.Model.TotalInvestmentBudget, 4.4e13)
	assert.Equal(t, cfg.Inputs.Goals, config.Default().Inputs.Goals)
}

func TestLoadConfigInvalid(t *testing.T) {
	opts := testOptions()
	opts.format = "yaml"
	_, err := loadConfig(opts)
	assert.Assert(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestRun(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(testOptions(), &stdout, &stderr, simplexSolver)
	if code != 0 {
		t.Fatalf("run(): FAILED. exit %d: %s", code, stderr.String())
	}
	t.Logf("run(): PASSED. exit %d", code)

	var r analysis.Report
	assert.NilError(t, json.Unmarshal(stdout.Bytes(), &r))
	assert.Equal(t, r.Status, solver.Optimal.String())
	assert.Assert(t, math.Abs(r.TotalInvestment-5.6e9) < 1e4, "total %v", r.TotalInvestment)
}

func TestRunNotOptimal(t *testing.T) {
	for _, status := range []solver.Status{solver.Infeasible, solver.Unbounded, solver.Error} {
		var stdout, stderr bytes.Buffer
		code := run(testOptions(), &stdout, &stderr, mockEngine(status))
		assert.Equal(t, code, 1)
		// only the status is printed, no partial report
		assert.Equal(t, stdout.String(), status.String()+"\n")
	}
}

func TestRunConfigError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	opts := testOptions()
	opts.format = "yaml"
	assert.Equal(t, run(opts, &stdout, &stderr, mockEngine(solver.Optimal)), 2)
	assert.Assert(t, is.Contains(stderr.String(), "Format"))

	opts = testOptions()
	opts.logFormat = "xml"
	stderr.Reset()
	assert.Equal(t, run(opts, &stdout, &stderr, mockEngine(solver.Optimal)), 2)
	assert.Assert(t, is.Contains(stderr.String(), "unknown log format"))
	assert.Equal(t, stdout.Len(), 0)
}

func TestRunMissingInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	opts := testOptions()
	opts.plants = "./testdata/missing.csv"
	assert.Equal(t, run(opts, &stdout, &stderr, mockEngine(solver.Optimal)), 1)
	assert.Assert(t, is.Contains(stderr.String(), "open input table"))
	assert.Equal(t, stdout.Len(), 0)
}

// Package pipeline runs one planning pass: load parameters, build the
// model, solve it once and analyze the solution. Stage transitions and the
// finished report are published on a msg bus for exporters.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ohowland/cgc_plan/internal/pkg/analysis"
	"github.com/ohowland/cgc_plan/internal/pkg/config"
	"github.com/ohowland/cgc_plan/internal/pkg/msg"
	"github.com/ohowland/cgc_plan/internal/pkg/params"
	"github.com/ohowland/cgc_plan/internal/pkg/plan"
	"github.com/ohowland/cgc_plan/internal/pkg/solver"
)

// ErrAlreadyRan is returned by a second Run on the same pipeline.
var ErrAlreadyRan = errors.New("pipeline: already ran")

// Stage names a pipeline transition.
type Stage string

const (
	Loaded   Stage = "loaded"
	Built    Stage = "built"
	Solved   Stage = "solved"
	Analyzed Stage = "analyzed"
	Failed   Stage = "failed"
)

// StageEvent is the payload of msg.Stage messages.
type StageEvent struct {
	RunID uuid.UUID
	Stage Stage
	Time  time.Time
	Err   error
}

// Pipeline owns one run. It is not reusable.
type Pipeline struct {
	mux       *sync.Mutex
	cfg       config.Config
	solver    solver.Solver
	logger    *zap.Logger
	runID     uuid.UUID
	publisher *msg.PubSub
	ran       bool
}

// New returns a pipeline that solves on s. s must be fresh.
func New(cfg config.Config, s solver.Solver, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.New()
	return &Pipeline{
		mux:       &sync.Mutex{},
		cfg:       cfg,
		solver:    s,
		logger:    logger.Named("pipeline").With(zap.Stringer("run", runID)),
		runID:     runID,
		publisher: msg.NewPublisher(runID),
	}
}

// RunID identifies the run in logs, events and the report.
func (p *Pipeline) RunID() uuid.UUID {
	return p.runID
}

// Subscribe returns a channel on which the specified topic is broadcast
func (p *Pipeline) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return p.publisher.Subscribe(pid, topic)
}

// Unsubscribe pid from all topic broadcasts
func (p *Pipeline) Unsubscribe(pid uuid.UUID) {
	p.publisher.Unsubscribe(pid)
}

// Close ends every subscription.
func (p *Pipeline) Close() {
	p.publisher.Close()
	p.logger.Debug("closed")
}

// RunFiles loads the configured input tables and runs.
func (p *Pipeline) RunFiles() (analysis.Report, error) {
	p.logger.Info("loading input tables",
		zap.String("emissions", p.cfg.Inputs.Emissions),
		zap.String("plants", p.cfg.Inputs.Plants),
		zap.String("goals", p.cfg.Inputs.Goals),
	)
	tables, err := params.LoadFiles(p.cfg.Inputs)
	if err != nil {
		if !p.start() {
			return analysis.Report{}, ErrAlreadyRan
		}
		return analysis.Report{}, p.fail(err)
	}
	return p.Run(tables)
}

// Run executes every stage once on tables.
func (p *Pipeline) Run(tables params.Tables) (analysis.Report, error) {
	if !p.start() {
		return analysis.Report{}, ErrAlreadyRan
	}

	parameters, err := params.New(tables)
	if err != nil {
		return analysis.Report{}, p.fail(err)
	}
	for _, name := range parameters.Excluded {
		p.logger.Debug("source has no recognized target, excluded", zap.String("source", name))
	}
	for _, goal := range parameters.Unrecognized {
		p.logger.Debug("goal not recognized, excluded", zap.String("goal", goal))
	}
	p.logger.Info("energy sources considered", zap.Strings("sources", parameters.Names()))
	p.emit(Loaded, nil)

	m, err := plan.New(parameters, p.cfg.Model, p.solver, p.logger)
	if err != nil {
		return analysis.Report{}, p.fail(fmt.Errorf("build model: %w", err))
	}
	p.emit(Built, nil)

	sol, err := m.Solve()
	if err != nil {
		return analysis.Report{}, p.fail(err)
	}
	p.emit(Solved, nil)

	r, err := analysis.Analyze(m, sol, p.cfg.Report.DisplayThreshold)
	if err != nil {
		return analysis.Report{}, p.fail(err)
	}
	r.RunID = p.runID
	p.logEmissions(r)
	p.emit(Analyzed, nil)

	p.publisher.Publish(msg.Report, r)
	p.logger.Info("analysis complete",
		zap.Float64("totalInvestment", r.TotalInvestment),
		zap.Int("warnings", len(r.Warnings)),
	)
	return r, nil
}

func (p *Pipeline) start() bool {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.ran {
		return false
	}
	p.ran = true
	return true
}

func (p *Pipeline) emit(stage Stage, err error) {
	p.publisher.Publish(msg.Stage, StageEvent{RunID: p.runID, Stage: stage, Time: time.Now(), Err: err})
}

func (p *Pipeline) fail(err error) error {
	var serr *plan.SolveError
	if errors.As(err, &serr) {
		p.logger.Error("model could not be solved to optimality", zap.Stringer("status", serr.Status))
	} else {
		p.logger.Error("run failed", zap.Error(err))
	}
	p.emit(Failed, err)
	return err
}

func (p *Pipeline) logEmissions(r analysis.Report) {
	for _, s := range r.Sources {
		for _, a := range s.Allocations {
			p.logger.Debug("emission contribution",
				zap.String("source", s.Source),
				zap.Int("year", a.Year),
				zap.Float64("kgCO2", a.Emissions),
			)
		}
	}
	p.logger.Debug("emissions",
		zap.Float64("produced", r.Emissions.Produced),
		zap.Float64("target", r.Emissions.Target),
		zap.Float64("slack", r.Emissions.Slack),
	)
}

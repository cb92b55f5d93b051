package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ohowland/cgc_plan/internal/lib/solver/simplexlp"
	"github.com/ohowland/cgc_plan/internal/pkg/config"
	"github.com/ohowland/cgc_plan/internal/pkg/database/mongodb"
	"github.com/ohowland/cgc_plan/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/cgc_plan/internal/pkg/datastreams/sqldb"
	"github.com/ohowland/cgc_plan/internal/pkg/msg"
	"github.com/ohowland/cgc_plan/internal/pkg/pipeline"
	"github.com/ohowland/cgc_plan/internal/pkg/plan"
	"github.com/ohowland/cgc_plan/internal/pkg/report"
	"github.com/ohowland/cgc_plan/internal/pkg/solver"
)

const version = "0.1.0"

type options struct {
	configPath string
	emissions  string
	plants     string
	goals      string
	budget     float64
	format     string
	logFormat  string
	verbose    bool
}

func parseFlags() options {
	opts := options{}
	pflag.StringVarP(&opts.configPath, "config", "c", "",
		"JSON configuration file; defaults apply when empty")
	pflag.StringVar(&opts.emissions, "emissions", "",
		"emissions and capital cost table (overrides Inputs.Emissions)")
	pflag.StringVar(&opts.plants, "plants", "",
		"potential plants table (overrides Inputs.Plants)")
	pflag.StringVar(&opts.goals, "goals", "",
		"government goals table (overrides Inputs.Goals)")
	pflag.Float64Var(&opts.budget, "budget", -1,
		"total investment budget in rupees (overrides Model.TotalInvestmentBudget)")
	pflag.StringVarP(&opts.format, "format", "f", "",
		"report format, text or json (overrides Report.Format)")
	pflag.StringVar(&opts.logFormat, "log-format", "console",
		"log encoding, console or json")
	pflag.BoolVarP(&opts.verbose, "verbose", "v", false,
		"log at debug level")
	pflag.Parse()
	return opts
}

func loadConfig(opts options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.New(opts.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if opts.emissions != "" {
		cfg.Inputs.Emissions = opts.emissions
	}
	if opts.plants != "" {
		cfg.Inputs.Plants = opts.plants
	}
	if opts.goals != "" {
		cfg.Inputs.Goals = opts.goals
	}
	if opts.budget >= 0 {
		cfg.Model.TotalInvestmentBudget = opts.budget
	}
	if opts.format != "" {
		cfg.Report.Format = opts.format
	}
	return cfg, cfg.Validate()
}

func buildLogger(opts options) (*zap.Logger, error) {
	var zc zap.Config
	switch opts.logFormat {
	case "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
		if !opts.verbose {
			zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.logFormat)
	}
	if opts.verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	// stdout carries the report
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

type exporter interface {
	Process() error
	Stop()
}

// startExporters launches one goroutine per configured export section.
func startExporters(cfg config.Export, p msg.Publisher, logger *zap.Logger, wg *sync.WaitGroup) ([]exporter, error) {
	var exporters []exporter
	if cfg.NATS != nil {
		h, err := natshandler.New(*cfg.NATS, p, logger)
		if err != nil {
			return exporters, err
		}
		exporters = append(exporters, h)
	}
	if cfg.Mongo != nil {
		h, err := mongodb.New(*cfg.Mongo, p, logger)
		if err != nil {
			return exporters, err
		}
		exporters = append(exporters, h)
	}
	if cfg.SQL != nil {
		h, err := sqldb.New(*cfg.SQL, p, logger)
		if err != nil {
			return exporters, err
		}
		exporters = append(exporters, h)
	}

	for _, e := range exporters {
		wg.Add(1)
		go func(e exporter) {
			defer wg.Done()
			if err := e.Process(); err != nil {
				logger.Warn("exporter stopped", zap.Error(err))
			}
		}(e)
	}
	return exporters, nil
}

// newSolver returns a fresh engine for params.
type newSolver func(params solver.Params) solver.Solver

func simplexSolver(params solver.Params) solver.Solver {
	return simplexlp.New(params)
}

// run returns the process exit code: 0 on success, 1 when the run fails and
// 2 on a configuration or flag error.
func run(opts options, stdout, stderr io.Writer, engine newSolver) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	logger, err := buildLogger(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	defer logger.Sync()
	logger.Info("starting cgcplan", zap.String("version", version))

	p := pipeline.New(cfg, engine(cfg.Solver), logger)

	var wg sync.WaitGroup
	exporters, err := startExporters(cfg.Export, p, logger, &wg)
	if err != nil {
		logger.Error("unable to start exporters", zap.Error(err))
		for _, e := range exporters {
			e.Stop()
		}
		p.Close()
		wg.Wait()
		return 1
	}

	r, err := p.RunFiles()
	// closing the bus lets exporters drain the report and return
	p.Close()
	wg.Wait()

	if err != nil {
		var serr *plan.SolveError
		if errors.As(err, &serr) {
			fmt.Fprintln(stdout, serr.Status)
		} else {
			fmt.Fprintln(stderr, err)
		}
		return 1
	}

	if err := report.Write(stdout, r, cfg.Report.Format); err != nil {
		logger.Error("unable to write report", zap.Error(err))
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(parseFlags(), os.Stdout, os.Stderr, simplexSolver))
}

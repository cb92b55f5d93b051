// Package sqldb writes finished reports to a MySQL or PostgreSQL database:
// one row per run and one row per source and year allocation.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ohowland/cgc_plan/internal/pkg/analysis"
	"github.com/ohowland/cgc_plan/internal/pkg/config"
	"github.com/ohowland/cgc_plan/internal/pkg/msg"
)

const (
	DefaultTable = "plans"

	writeTimeout = 5 * time.Second
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config.SQL
	logger *zap.Logger
	open   func(driver, dsn string) (*sql.DB, error)
	stop   chan bool
	once   *sync.Once
}

func (h Handler) PID() uuid.UUID {
	return h.pid
}

// New subscribes a handler to the reports of system.
func New(cfg config.SQL, system msg.Publisher, logger *zap.Logger) (*Handler, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := DSN(cfg); err != nil {
		return nil, err
	}

	pid := uuid.New()
	inbox, err := system.Subscribe(pid, msg.Report)
	if err != nil {
		return nil, err
	}

	return &Handler{
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		logger: logger.Named("sql").With(zap.String("driver", cfg.Driver)),
		open:   sql.Open,
		stop:   make(chan bool),
		once:   &sync.Once{},
	}, nil
}

// DSN builds the driver specific data source name.
func DSN(cfg config.SQL) (string, error) {
	switch cfg.Driver {
	case "mysql":
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		c := mysql.NewConfig()
		c.User = cfg.Username
		c.Passwd = cfg.Password
		c.Net = "tcp"
		c.Addr = cfg.Server + ":" + strconv.Itoa(port)
		c.DBName = cfg.Database
		c.ParseTime = true
		return c.FormatDSN(), nil
	case "postgres":
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		parts := []string{
			"host=" + keywordValue(cfg.Server),
			"port=" + strconv.Itoa(port),
			"user=" + keywordValue(cfg.Username),
			"password=" + keywordValue(cfg.Password),
			"dbname=" + keywordValue(cfg.Database),
			"sslmode=disable",
		}
		return strings.Join(parts, " "), nil
	default:
		return "", fmt.Errorf("sqldb: unsupported driver %q", cfg.Driver)
	}
}

// keywordValue quotes v for a libpq keyword/value connection string.
func keywordValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// dialect differs only in identifier quoting and bind parameters.
type dialect struct {
	postgres bool
}

func (d dialect) ident(name string) string {
	if d.postgres {
		return pq.QuoteIdentifier(name)
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d dialect) binds(n int) string {
	b := make([]string, n)
	for i := range b {
		if d.postgres {
			b[i] = "$" + strconv.Itoa(i+1)
		} else {
			b[i] = "?"
		}
	}
	return strings.Join(b, ", ")
}

func (d dialect) createStatements(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	runid VARCHAR(36) PRIMARY KEY,
	status VARCHAR(32) NOT NULL,
	objective DOUBLE PRECISION NOT NULL,
	total_investment DOUBLE PRECISION NOT NULL,
	emissions_produced DOUBLE PRECISION NOT NULL,
	emissions_target DOUBLE PRECISION NOT NULL,
	warnings INTEGER NOT NULL
)`, d.ident(table)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	runid VARCHAR(36) NOT NULL,
	source VARCHAR(64) NOT NULL,
	year INTEGER NOT NULL,
	amount DOUBLE PRECISION NOT NULL,
	added_capacity DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (runid, source, year)
)`, d.ident(table+"_allocations")),
	}
}

func (d dialect) insertRun(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (runid, status, objective, total_investment, emissions_produced, emissions_target, warnings) VALUES (%s)`,
		d.ident(table), d.binds(7))
}

func (d dialect) insertAllocation(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (runid, source, year, amount, added_capacity) VALUES (%s)`,
		d.ident(table+"_allocations"), d.binds(5))
}

func initTables(ctx context.Context, ex execer, d dialect, table string) error {
	for _, stmt := range d.createStatements(table) {
		if _, err := ex.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// writeReport inserts the run row followed by its allocations.
func writeReport(ctx context.Context, ex execer, d dialect, table string, r analysis.Report) error {
	_, err := ex.ExecContext(ctx, d.insertRun(table),
		r.RunID.String(), r.Status, r.Objective, r.TotalInvestment,
		r.Emissions.Produced, r.Emissions.Target, len(r.Warnings))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	stmt := d.insertAllocation(table)
	for _, s := range r.Sources {
		for _, a := range s.Allocations {
			if _, err := ex.ExecContext(ctx, stmt, r.RunID.String(), s.Source, a.Year, a.Amount, a.AddedCapacity); err != nil {
				return fmt.Errorf("insert allocation %s %d: %w", s.Source, a.Year, err)
			}
		}
	}
	return nil
}

// Stop ends Process without draining the inbox.
func (h *Handler) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Process creates the tables and writes every report until the
// subscription is closed or Stop is called.
func (h *Handler) Process() error {
	dsn, err := DSN(h.config)
	if err != nil {
		return err
	}
	db, err := h.open(h.config.Driver, dsn)
	if err != nil {
		h.logger.Error("unable to open database", zap.Error(err))
		return err
	}
	defer db.Close()

	d := dialect{postgres: h.config.Driver == "postgres"}
	ctx := context.Background()
	if err := initTables(ctx, db, d, h.config.Table); err != nil {
		h.logger.Error("unable to create tables", zap.Error(err))
		return err
	}

loop:
	for {
		select {
		case m, ok := <-h.inbox:
			if !ok {
				break loop
			}
			r, ok := m.Payload().(analysis.Report)
			if !ok {
				continue
			}
			if err := h.write(ctx, db, d, r); err != nil {
				h.logger.Error("write failed", zap.Stringer("run", r.RunID), zap.Error(err))
			}
		case <-h.stop:
			break loop
		}
	}
	h.logger.Info("process shutdown")
	return nil
}

func (h *Handler) write(ctx context.Context, db *sql.DB, d dialect, r analysis.Report) error {
	h.mux.Lock()
	defer h.mux.Unlock()
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := writeReport(ctx, tx, d, h.config.Table, r); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

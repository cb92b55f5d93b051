// Package webservice serves the most recent planning report over HTTP.
package webservice

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ohowland/cgc_plan/internal/pkg/analysis"
	"github.com/ohowland/cgc_plan/internal/pkg/msg"
)

const contentType = "application/json; charset=UTF-8"

type Config struct {
	URL  string
	Port string
}

// App holds the report being served. The report is replaced whole and
// never mutated.
type App struct {
	mux    *sync.RWMutex
	report *analysis.Report
	pid    uuid.UUID
	Config Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		mux:    &sync.RWMutex{},
		pid:    uuid.New(),
		Config: cfg,
		logger: logger.Named("webservice"),
	}
}

// Set replaces the served report.
func (app *App) Set(r analysis.Report) {
	app.mux.Lock()
	defer app.mux.Unlock()
	app.report = &r
}

func (app *App) current() (analysis.Report, bool) {
	app.mux.RLock()
	defer app.mux.RUnlock()
	if app.report == nil {
		return analysis.Report{}, false
	}
	return *app.report, true
}

// Attach serves every report published by system. The returned channel is
// closed once the subscription ends.
func (app *App) Attach(system msg.Publisher) (<-chan struct{}, error) {
	inbox, err := system.Subscribe(app.pid, msg.Report)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range inbox {
			if r, ok := m.Payload().(analysis.Report); ok {
				app.Set(r)
				app.logger.Info("serving report", zap.Stringer("run", r.RunID))
			}
		}
	}()
	return done, nil
}

func (app *App) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", app.BaseHandler)
	r.HandleFunc("/report", app.ReportHandler)
	r.HandleFunc("/report/sources/{source}", app.SourceHandler)
	r.HandleFunc("/report/years/{year}", app.YearHandler)
	return r
}

func (app *App) BaseHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
}

func (app *App) ReportHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentType)
	switch r.Method {
	case "GET":
		report, ok := app.current()
		if !ok {
			app.writeError(w, http.StatusServiceUnavailable, errors.New("no report available"))
			return
		}
		app.writeJSON(w, report)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (app *App) SourceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	w.Header().Set("Content-Type", contentType)
	switch r.Method {
	case "GET":
		report, ok := app.current()
		if !ok {
			app.writeError(w, http.StatusServiceUnavailable, errors.New("no report available"))
			return
		}
		s, ok := report.Source(vars["source"])
		if !ok {
			app.writeError(w, http.StatusNotFound, errors.New("unknown source "+strconv.Quote(vars["source"])))
			return
		}
		app.writeJSON(w, s)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (app *App) YearHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	w.Header().Set("Content-Type", contentType)
	switch r.Method {
	case "GET":
		year, err := strconv.Atoi(vars["year"])
		if err != nil {
			app.writeError(w, http.StatusBadRequest, errors.New("malformed year "+strconv.Quote(vars["year"])))
			return
		}
		report, ok := app.current()
		if !ok {
			app.writeError(w, http.StatusServiceUnavailable, errors.New("no report available"))
			return
		}
		y, ok := report.Year(year)
		if !ok {
			app.writeError(w, http.StatusNotFound, errors.New("year outside the planning horizon"))
			return
		}
		app.writeJSON(w, y)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (app *App) writeJSON(w http.ResponseWriter, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		app.logger.Error("malformed JSON", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		app.logger.Debug("write response", zap.Error(err))
	}
}

func (app *App) writeError(w http.ResponseWriter, code int, err error) {
	w.WriteHeader(code)
	body, _ := json.Marshal(struct {
		Error string `json:"Error"`
	}{err.Error()})
	w.Write(body)
}

// Package natshandler publishes finished reports to a NATS subject.
package natshandler

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ohowland/cgc_plan/internal/pkg/analysis"
	"github.com/ohowland/cgc_plan/internal/pkg/config"
	"github.com/ohowland/cgc_plan/internal/pkg/msg"
)

// DefaultSubject is used when the configuration names none.
const DefaultSubject = "cgcplan.report"

// conn is the part of *nats.Conn the handler uses.
type conn interface {
	Publish(subject string, data []byte) error
	Flush() error
	Close()
}

type Handler struct {
	mux     *sync.Mutex
	inbox   <-chan msg.Msg
	pid     uuid.UUID
	config  config.NATS
	logger  *zap.Logger
	connect func(url string) (conn, error)
	stop    chan bool
	once    *sync.Once
}

func (h Handler) PID() uuid.UUID {
	return h.pid
}

// New subscribes a handler to the reports of system.
func New(cfg config.NATS, system msg.Publisher, logger *zap.Logger) (*Handler, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pid := uuid.New()
	inbox, err := system.Subscribe(pid, msg.Report)
	if err != nil {
		return nil, err
	}

	return &Handler{
		mux:     &sync.Mutex{},
		inbox:   inbox,
		pid:     pid,
		config:  cfg,
		logger:  logger.Named("nats"),
		connect: dial,
		stop:    make(chan bool),
		once:    &sync.Once{},
	}, nil
}

func dial(url string) (conn, error) {
	nc, err := nats.Connect(url, nats.Name("cgcplan"))
	if err != nil {
		return nil, err
	}
	return nc, nil
}

// Stop ends Process without draining the inbox.
func (h *Handler) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Process publishes every report until the subscription is closed or Stop
// is called.
func (h *Handler) Process() error {
	h.logger.Info("process started", zap.String("url", h.config.URL))
	nc, err := h.connect(h.config.URL)
	if err != nil {
		h.logger.Error("unable to connect to nats server", zap.Error(err))
		return err
	}
	defer nc.Close()

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
			if err := h.publish(nc, r); err != nil {
				h.logger.Error("unable to publish to nats server", zap.Error(err))
			}
		case <-h.stop:
			break loop
		}
	}
	if err := nc.Flush(); err != nil {
		h.logger.Warn("flush failed", zap.Error(err))
	}
	h.logger.Info("process shutdown")
	return nil
}

func (h *Handler) publish(nc conn, r analysis.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	h.mux.Lock()
	defer h.mux.Unlock()
	if err := nc.Publish(h.config.Subject, data); err != nil {
		return err
	}
	h.logger.Debug("report published", zap.String("subject", h.config.Subject), zap.Stringer("run", r.RunID))
	return nil
}

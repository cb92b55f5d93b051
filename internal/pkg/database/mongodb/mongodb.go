// Package mongodb upserts finished reports into a MongoDB collection keyed
// by run id.
package mongodb

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ohowland/cgc_plan/internal/pkg/analysis"
	"github.com/ohowland/cgc_plan/internal/pkg/config"
	"github.com/ohowland/cgc_plan/internal/pkg/msg"
)

// DefaultCollection is used when the configuration names none.
const DefaultCollection = "plans"

const writeTimeout = 5 * time.Second

// collection is the part of *mongo.Collection the handler uses.
type collection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type Handler struct {
	mux    *sync.Mutex
	inbox  <-chan msg.Msg
	pid    uuid.UUID
	config config.Mongo
	logger *zap.Logger
	open   func(ctx context.Context, cfg config.Mongo) (collection, func(context.Context) error, error)
	stop   chan bool
	once   *sync.Once
}

func (h Handler) PID() uuid.UUID {
	return h.pid
}

// New subscribes a handler to the reports of system.
func New(cfg config.Mongo, system msg.Publisher, logger *zap.Logger) (*Handler, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
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
		mux:    &sync.Mutex{},
		inbox:  inbox,
		pid:    pid,
		config: cfg,
		logger: logger.Named("mongo"),
		open:   connect,
		stop:   make(chan bool),
		once:   &sync.Once{},
	}, nil
}

// URI joins the configured URI and port.
func URI(cfg config.Mongo) string {
	if cfg.Port == "" {
		return cfg.URI
	}
	return cfg.URI + ":" + cfg.Port
}

func connect(ctx context.Context, cfg config.Mongo) (collection, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(URI(cfg)))
	if err != nil {
		return nil, nil, err
	}
	return client.Database(cfg.Database).Collection(cfg.Collection), client.Disconnect, nil
}

func reportToBSON(r analysis.Report) bson.D {
	sources := make(bson.A, 0, len(r.Sources))
	for _, s := range r.Sources {
		allocations := make(bson.A, 0, len(s.Allocations))
		for _, a := range s.Allocations {
			allocations = append(allocations, bson.M{
				"year":          a.Year,
				"amount":        a.Amount,
				"addedCapacity": a.AddedCapacity,
			})
		}
		sources = append(sources, bson.M{
			"source":          s.Source,
			"total":           s.Total,
			"requiredFunding": s.RequiredFunding,
			"shortfall":       s.Shortfall,
			"allocations":     allocations,
		})
	}

	years := make(bson.A, 0, len(r.Years))
	for _, y := range r.Years {
		years = append(years, bson.M{
			"year":         y.Year,
			"total":        y.Total,
			"minShortfall": y.MinShortfall,
			"maxExceeded":  y.MaxExceeded,
		})
	}

	warnings := make(bson.A, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		warnings = append(warnings, bson.M{
			"family":    w.Family.String(),
			"subject":   w.Subject,
			"magnitude": w.Magnitude,
			"unit":      w.Unit,
		})
	}

	//TODO: runid should be written as a binary of subtype 0x04 (UUID standard).
	// currently written as a string.
	return bson.D{
		{Key: "$set", Value: bson.M{
			"runid":           r.RunID.String(),
			"status":          r.Status,
			"objective":       r.Objective,
			"totalInvestment": r.TotalInvestment,
			"sources":         sources,
			"years":           years,
			"renewables": bson.M{
				"capacityAchieved":   r.Renewables.CapacityAchieved,
				"capacityTarget":     r.Renewables.CapacityTarget,
				"productionAchieved": r.Renewables.ProductionAchieved,
				"productionTarget":   r.Renewables.ProductionTarget,
			},
			"emissions": bson.M{
				"produced": r.Emissions.Produced,
				"target":   r.Emissions.Target,
				"delta":    r.Emissions.Delta,
			},
			"warnings": warnings,
		}},
	}
}

// Stop ends Process without draining the inbox.
func (h *Handler) Stop() {
	h.once.Do(func() { close(h.stop) })
}

// Process upserts every report until the subscription is closed or Stop
// is called.
func (h *Handler) Process() error {
	ctx := context.Background()
	coll, disconnect, err := h.open(ctx, h.config)
	if err != nil {
		h.logger.Error("unable to connect", zap.String("uri", URI(h.config)), zap.Error(err))
		return err
	}
	defer disconnect(ctx)

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
			if err := h.write(ctx, coll, r); err != nil {
				h.logger.Error("upsert failed", zap.Stringer("run", r.RunID), zap.Error(err))
			}
		case <-h.stop:
			break loop
		}
	}
	h.logger.Info("process shutdown")
	return nil
}

func (h *Handler) write(ctx context.Context, coll collection, r analysis.Report) error {
	h.mux.Lock()
	defer h.mux.Unlock()
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	opts := options.Update().SetUpsert(true)
	_, err := coll.UpdateOne(ctx, bson.M{"runid": r.RunID.String()}, reportToBSON(r), opts)
	return err
}

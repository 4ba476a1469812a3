// Package usage meters token consumption. Recording is fire and forget: a
// chat turn never waits on metering, and a full buffer drops events rather
// than applying backpressure.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/docloom/docloom/internal/log"
)

// Event types.
const (
	EventEmbedding  = "embedding"
	EventGeneration = "generation"
)

// Event is one token expenditure.
type Event struct {
	Identity  string
	Provider  string
	Model     string
	EventType string
	Tokens    int
}

// Querier is the database surface Meter needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DefaultBufferSize is the event queue depth before drops begin.
const DefaultBufferSize = 1024

// insertTimeout bounds one usage row insert; the worker must not wedge on a
// slow database.
const insertTimeout = 5 * time.Second

// Meter records usage events asynchronously. One worker goroutine drains
// the queue into Prometheus counters and the usage_events table. Safe for
// concurrent use.
type Meter struct {
	db     Querier
	logger log.Logger

	events chan Event
	wg     sync.WaitGroup
	once   sync.Once

	tokens  *prometheus.CounterVec
	dropped prometheus.Counter
}

// NewMeter creates a meter and starts its worker. bufferSize <= 0 selects
// the default. Collectors are registered on reg.
func NewMeter(db Querier, reg prometheus.Registerer, logger log.Logger, bufferSize int) *Meter {
	if logger == nil {
		logger = log.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	m := &Meter{
		db:     db,
		logger: logger,
		events: make(chan Event, bufferSize),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docloom_usage_tokens_total",
			Help: "Tokens consumed, by provider, model and event type.",
		}, []string{"provider", "model", "type"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docloom_usage_events_dropped_total",
			Help: "Usage events dropped because the buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.tokens, m.dropped)
	}

	m.wg.Add(1)
	go m.run()
	return m
}

// Record enqueues an event without blocking. When the buffer is full the
// event is counted as dropped and discarded; usage numbers may undercount
// under pressure, chat latency never grows.
func (m *Meter) Record(ev Event) {
	if ev.Tokens <= 0 {
		return
	}
	select {
	case m.events <- ev:
	default:
		m.dropped.Inc()
		m.logger.Warn("usage event dropped, buffer full",
			"identity", ev.Identity,
			"type", ev.EventType,
		)
	}
}

func (m *Meter) run() {
	defer m.wg.Done()
	for ev := range m.events {
		m.tokens.WithLabelValues(ev.Provider, ev.Model, ev.EventType).Add(float64(ev.Tokens))
		m.persist(ev)
	}
}

func (m *Meter) persist(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if _, err := m.db.Exec(ctx, `
		INSERT INTO usage_events (identity, provider, model, event_type, tokens)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.Identity, ev.Provider, ev.Model, ev.EventType, ev.Tokens,
	); err != nil {
		m.logger.Warn("usage event not persisted",
			"identity", ev.Identity,
			"type", ev.EventType,
			"error", err,
		)
	}
}

// Close drains buffered events and stops the worker. Record must not be
// called after Close.
func (m *Meter) Close() {
	m.once.Do(func() {
		close(m.events)
		m.wg.Wait()
	})
}

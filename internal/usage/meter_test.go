package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingDB struct {
	mu    sync.Mutex
	args  [][]any
	block chan struct{}
}

func (r *recordingDB) Exec(ctx context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return pgconn.CommandTag{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args = append(r.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *recordingDB) inserted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.args)
}

func TestMeterRecordsAndPersists(t *testing.T) {
	defer goleak.VerifyNone(t)

	db := &recordingDB{}
	reg := prometheus.NewRegistry()
	m := NewMeter(db, reg, nil, 16)

	m.Record(Event{Identity: "user:1", Provider: "hosted", Model: "gpt-4o-mini", EventType: EventGeneration, Tokens: 50})
	m.Record(Event{Identity: "user:1", Provider: "hosted", Model: "gpt-4o-mini", EventType: EventGeneration, Tokens: 25})
	m.Record(Event{Identity: "user:1", Provider: "hosted", Model: "text-embedding-3-small", EventType: EventEmbedding, Tokens: 10})
	m.Close()

	assert.Equal(t, 3, db.inserted())
	assert.InDelta(t, 75, testutil.ToFloat64(
		m.tokens.WithLabelValues("hosted", "gpt-4o-mini", EventGeneration)), 0.001)
	assert.InDelta(t, 10, testutil.ToFloat64(
		m.tokens.WithLabelValues("hosted", "text-embedding-3-small", EventEmbedding)), 0.001)
}

func TestMeterIgnoresZeroTokenEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	db := &recordingDB{}
	m := NewMeter(db, prometheus.NewRegistry(), nil, 16)
	m.Record(Event{Identity: "user:1", EventType: EventGeneration, Tokens: 0})
	m.Record(Event{Identity: "user:1", EventType: EventGeneration, Tokens: -3})
	m.Close()

	assert.Zero(t, db.inserted())
}

func TestMeterDropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	db := &recordingDB{block: release}
	m := NewMeter(db, prometheus.NewRegistry(), nil, 1)

	// First event occupies the worker, second fills the buffer, the rest
	// must drop without blocking.
	for range 5 {
		m.Record(Event{Identity: "user:1", Provider: "hosted", Model: "m", EventType: EventGeneration, Tokens: 1})
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.dropped) >= 3
	}, time.Second, 10*time.Millisecond)

	close(release)
	m.Close()

	assert.LessOrEqual(t, db.inserted(), 2)
}

func TestMeterCloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewMeter(&recordingDB{}, prometheus.NewRegistry(), nil, 4)
	m.Record(Event{Identity: "user:1", Provider: "p", Model: "m", EventType: EventEmbedding, Tokens: 1})
	m.Close()
	m.Close()
}

// Package journal stamps committed events with a sequence number, an id
// and a time, and fans them out to sinks.
package journal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	"github.com/R3E-Network/vrf_coordinator/internal/metrics"
	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

// Envelope is a journaled event.
type Envelope struct {
	ID      uuid.UUID       `json:"id"`
	Seq     uint64          `json:"seq"`
	Name    string          `json:"name"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// Sink stores envelopes. Write receives envelopes in sequence order.
type Sink interface {
	Write(ctx context.Context, envs []Envelope) error
}

// Journal assigns sequence numbers and writes to every sink. Sink failures
// are logged and counted; the events they describe are already committed.
type Journal struct {
	mu      sync.Mutex
	seq     uint64
	clock   clockwork.Clock
	sinks   []Sink
	log     *logger.Logger
	metrics *metrics.Metrics
}

// Config holds journal dependencies. Clock defaults to the real clock.
// Sequence numbers continue after StartSeq.
type Config struct {
	StartSeq uint64
	Clock    clockwork.Clock
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Sinks    []Sink
}

// New creates a journal.
func New(cfg Config) *Journal {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("journal")
	}
	return &Journal{seq: cfg.StartSeq, clock: cfg.Clock, sinks: cfg.Sinks, log: cfg.Logger, metrics: cfg.Metrics}
}

// Publish journals events in order and returns their envelopes.
func (j *Journal) Publish(ctx context.Context, events ...vrf.Event) []Envelope {
	if len(events) == 0 {
		return nil
	}

	// The lock spans the sink writes so sinks observe sequence order.
	j.mu.Lock()
	defer j.mu.Unlock()

	envs := make([]Envelope, 0, len(events))
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			j.log.WithError(err).WithField("event", ev.EventName()).Error("marshal event")
			payload = json.RawMessage(`{}`)
		}
		j.seq++
		envs = append(envs, Envelope{
			ID:      uuid.New(),
			Seq:     j.seq,
			Name:    ev.EventName(),
			Time:    j.clock.Now().UTC(),
			Payload: payload,
		})
	}

	for _, sink := range j.sinks {
		if err := sink.Write(ctx, envs); err != nil {
			j.metrics.RecordJournalFailure()
			j.log.WithContext(ctx).WithError(err).WithField("events", len(envs)).Error("journal sink write failed")
		}
	}
	return envs
}

// AddSink attaches a sink. It receives only events published afterwards.
func (j *Journal) AddSink(s Sink) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sinks = append(j.sinks, s)
}

// Package callback delivers random words to consumers. A consumer runs on
// the other side of a trust boundary, so its failure is reported as an
// Outcome value and never as an error of the delivering operation.
package callback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

// DefaultTimeout bounds a single consumer callback.
const DefaultTimeout = 5 * time.Second

// Consumer receives fulfilled randomness.
type Consumer interface {
	RawFulfillRandomWords(ctx context.Context, f vrf.Fulfillment) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, f vrf.Fulfillment) error

// RawFulfillRandomWords implements Consumer.
func (fn ConsumerFunc) RawFulfillRandomWords(ctx context.Context, f vrf.Fulfillment) error {
	return fn(ctx, f)
}

// Status tags an Outcome.
type Status string

const (
	Succeeded  Status = "succeeded"
	Failed     Status = "failed"
	Panicked   Status = "panicked"
	TimedOut   Status = "timed_out"
	NoReceiver Status = "no_receiver"
)

// Outcome is the result of one delivery.
type Outcome struct {
	Status Status
	Reason string
}

// OK reports whether the consumer accepted the words.
func (o Outcome) OK() bool {
	return o.Status == Succeeded
}

// Dispatcher routes deliveries to consumers registered by address.
type Dispatcher struct {
	mu        sync.RWMutex
	consumers map[util.Uint160]Consumer
	timeout   time.Duration
	log       *logger.Logger
}

// NewDispatcher returns an empty dispatcher. A non-positive timeout selects
// DefaultTimeout.
func NewDispatcher(timeout time.Duration, log *logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NewDefault("callback")
	}
	return &Dispatcher{consumers: make(map[util.Uint160]Consumer), timeout: timeout, log: log}
}

// Register binds addr to c, replacing any earlier binding.
func (d *Dispatcher) Register(addr util.Uint160, c Consumer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.consumers[addr] = c
}

// Unregister removes the binding of addr.
func (d *Dispatcher) Unregister(addr util.Uint160) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.consumers, addr)
}

// Deliver invokes the consumer registered at addr and reports how it went.
func (d *Dispatcher) Deliver(ctx context.Context, addr util.Uint160, f vrf.Fulfillment) Outcome {
	d.mu.RLock()
	c, ok := d.consumers[addr]
	d.mu.RUnlock()
	if !ok {
		return Outcome{Status: NoReceiver, Reason: "no consumer registered at " + addr.StringLE()}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Outcome{Status: Panicked, Reason: fmt.Sprint(r)}
			}
		}()
		if err := c.RawFulfillRandomWords(ctx, f); err != nil {
			done <- Outcome{Status: Failed, Reason: err.Error()}
			return
		}
		done <- Outcome{Status: Succeeded}
	}()

	var out Outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = Outcome{Status: TimedOut, Reason: ctx.Err().Error()}
	}

	if !out.OK() {
		d.log.WithContext(ctx).WithFields(map[string]any{
			"consumer":   addr.StringLE(),
			"request_id": f.RequestID.StringLE(),
			"status":     out.Status,
			"reason":     out.Reason,
		}).Warn("consumer callback did not succeed")
	}
	return out
}

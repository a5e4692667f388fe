// Package testutil provides test doubles shared by package tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
)

// Recorder is a callback consumer that keeps every fulfillment it receives.
type Recorder struct {
	mu      sync.Mutex
	got     []vrf.Fulfillment
	notify  chan struct{}
	fail    error
	onEvent func(vrf.Fulfillment)
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 64)}
}

// FailWith makes later deliveries record the fulfillment and return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// OnFulfill runs fn inside each delivery, after recording it.
func (r *Recorder) OnFulfill(fn func(vrf.Fulfillment)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvent = fn
}

// RawFulfillRandomWords implements callback.Consumer.
func (r *Recorder) RawFulfillRandomWords(_ context.Context, f vrf.Fulfillment) error {
	r.mu.Lock()
	r.got = append(r.got, f)
	fail, fn := r.fail, r.onEvent
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	if fn != nil {
		fn(f)
	}
	return fail
}

// Fulfillments returns a copy of what has been received.
func (r *Recorder) Fulfillments() []vrf.Fulfillment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]vrf.Fulfillment(nil), r.got...)
}

// Wait blocks until at least n fulfillments arrived or timeout passes.
func (r *Recorder) Wait(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		r.mu.Lock()
		have := len(r.got)
		r.mu.Unlock()
		if have >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-deadline:
			return false
		}
	}
}

// ErrTransferFailed is returned by FailingSettlement.
var ErrTransferFailed = errors.New("transfer failed")

// FailingSettlement rejects every transfer and counts attempts.
type FailingSettlement struct {
	mu       sync.Mutex
	attempts map[util.Uint160]int
}

// NewFailingSettlement returns a settlement layer that always fails.
func NewFailingSettlement() *FailingSettlement {
	return &FailingSettlement{attempts: make(map[util.Uint160]int)}
}

// Transfer implements settlement.Settlement.
func (s *FailingSettlement) Transfer(_ context.Context, to util.Uint160, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[to]++
	return ErrTransferFailed
}

// Attempts returns how many transfers to addr were tried.
func (s *FailingSettlement) Attempts(addr util.Uint160) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[addr]
}

// Package coordinator implements the randomness request protocol:
// subscriptions pay for requests, requests are committed as hashes, and
// registered oracles fulfill them with proofs.
//
// Every entry point runs in one storage transaction. Events are collected
// inside the transaction and published after it commits, in commit order.
// Consumer callbacks run after commit and outside the store lock, so a
// consumer may call back into the coordinator. RandomWordsFulfilled carries
// the callback outcome and is therefore journaled after the callback
// returns: events caused by the callback, and by operations that committed
// while it ran, precede it.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/callback"
	"github.com/R3E-Network/vrf_coordinator/internal/chain"
	"github.com/R3E-Network/vrf_coordinator/internal/crypto"
	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
	"github.com/R3E-Network/vrf_coordinator/internal/journal"
	"github.com/R3E-Network/vrf_coordinator/internal/ledger"
	"github.com/R3E-Network/vrf_coordinator/internal/metrics"
	"github.com/R3E-Network/vrf_coordinator/internal/provingkey"
	"github.com/R3E-Network/vrf_coordinator/internal/settlement"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

// Publisher receives committed events.
type Publisher interface {
	Publish(ctx context.Context, events ...vrf.Event) []journal.Envelope
}

// Config holds coordinator configuration and collaborators. Store, Chain,
// Verifier and Settlement are required.
type Config struct {
	Operator     util.Uint160
	MaxConsumers int

	Store      storage.Store
	Chain      chain.Source
	Verifier   crypto.Verifier
	Settlement settlement.Settlement
	Dispatcher *callback.Dispatcher
	Publisher  Publisher
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

// Coordinator is the request/fulfill state machine.
type Coordinator struct {
	operator util.Uint160

	store      storage.Store
	chain      chain.Source
	verifier   crypto.Verifier
	settlement settlement.Settlement
	dispatcher *callback.Dispatcher
	publisher  Publisher
	metrics    *metrics.Metrics
	log        *logger.Logger

	ledger *ledger.Ledger
	keys   *provingkey.Registry

	// pubMu spans commit and publish so the journal sees commit order.
	pubMu sync.Mutex
}

// New creates a coordinator.
func New(cfg Config) (*Coordinator, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("coordinator: store required")
	case cfg.Chain == nil:
		return nil, fmt.Errorf("coordinator: chain source required")
	case cfg.Verifier == nil:
		return nil, fmt.Errorf("coordinator: verifier required")
	case cfg.Settlement == nil:
		return nil, fmt.Errorf("coordinator: settlement required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("coordinator")
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = callback.NewDispatcher(callback.DefaultTimeout, log.Named("callback"))
	}

	return &Coordinator{
		operator:   cfg.Operator,
		store:      cfg.Store,
		chain:      cfg.Chain,
		verifier:   cfg.Verifier,
		settlement: cfg.Settlement,
		dispatcher: dispatcher,
		publisher:  cfg.Publisher,
		metrics:    cfg.Metrics,
		log:        log,
		ledger:     ledger.New(cfg.MaxConsumers),
		keys:       provingkey.New(),
	}, nil
}

// Operator returns the operator address.
func (c *Coordinator) Operator() util.Uint160 {
	return c.operator
}

// Dispatcher returns the dispatcher consumers register with.
func (c *Coordinator) Dispatcher() *callback.Dispatcher {
	return c.dispatcher
}

// MaxConsumers returns the per-subscription consumer cap.
func (c *Coordinator) MaxConsumers() int {
	return c.ledger.MaxConsumers()
}

// =============================================================================
// Transaction plumbing
// =============================================================================

// events collects the events of one transaction, skipping no-op results.
type events []vrf.Event

func (e *events) add(ev vrf.Event) {
	if ev != nil {
		*e = append(*e, ev)
	}
}

// run executes fn atomically, then records, logs and publishes the outcome.
func (c *Coordinator) run(ctx context.Context, op string, fn func(tx storage.Tx, out *events) error) error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	var out events
	err := c.store.Atomic(ctx, func(tx storage.Tx) error {
		out = out[:0]
		return fn(tx, &out)
	})
	c.finish(ctx, op, err, out)
	return err
}

func (c *Coordinator) finish(ctx context.Context, op string, err error, out events) {
	c.metrics.RecordOperation(op, err)
	entry := c.log.WithContext(ctx).WithField("op", op)
	if err != nil {
		entry.WithField("code", svcerrors.CodeOf(err)).Debugf("rejected: %v", err)
		return
	}
	for _, ev := range out {
		entry.WithField("event", ev.EventName()).Info("committed")
	}
	c.publish(ctx, out...)
}

func (c *Coordinator) publish(ctx context.Context, evs ...vrf.Event) {
	if c.publisher != nil && len(evs) > 0 {
		c.publisher.Publish(ctx, evs...)
	}
}

func (c *Coordinator) requireOperator(caller util.Uint160) error {
	if caller != c.operator {
		return svcerrors.ErrOnlyOperator
	}
	return nil
}

func config(tx storage.ConfigTx) (vrf.GlobalConfig, error) {
	cfg, ok := tx.Config()
	if !ok {
		return vrf.GlobalConfig{}, svcerrors.ErrNotConfigured
	}
	return cfg, nil
}

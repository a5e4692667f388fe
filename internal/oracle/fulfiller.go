// Package oracle runs an in-process oracle: it watches the event journal
// for requests made against its proving key and fulfills them once they
// have enough confirmations.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/chain"
	"github.com/R3E-Network/vrf_coordinator/internal/coordinator"
	"github.com/R3E-Network/vrf_coordinator/internal/crypto"
	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
	"github.com/R3E-Network/vrf_coordinator/internal/journal"
	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

// DefaultInterval is how often the fulfiller polls the chain height.
const DefaultInterval = time.Second

// Config configures a Fulfiller.
type Config struct {
	Coordinator *coordinator.Coordinator
	Chain       chain.Source
	Prover      *crypto.Prover
	GasPrice    int64
	Interval    time.Duration
	Clock       clockwork.Clock
	Logger      *logger.Logger
}

type job struct {
	seq     uint64
	event   vrf.RandomWordsRequested
	readyAt uint64
}

// Fulfiller is a journal.Sink that queues requests for its key and a
// worker that fulfills them.
type Fulfiller struct {
	coord    *coordinator.Coordinator
	chain    chain.Source
	prover   *crypto.Prover
	keyHash  util.Uint256
	gasPrice int64
	interval time.Duration
	clock    clockwork.Clock
	log      *logger.Logger

	mu   sync.Mutex
	jobs map[util.Uint256]job
}

var _ journal.Sink = (*Fulfiller)(nil)

// New returns a fulfiller for cfg.Prover's key.
func New(cfg Config) (*Fulfiller, error) {
	if cfg.Coordinator == nil || cfg.Chain == nil || cfg.Prover == nil {
		return nil, fmt.Errorf("oracle: coordinator, chain and prover are required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("oracle")
	}
	return &Fulfiller{
		coord:    cfg.Coordinator,
		chain:    cfg.Chain,
		prover:   cfg.Prover,
		keyHash:  cfg.Prover.KeyHash(),
		gasPrice: cfg.GasPrice,
		interval: interval,
		clock:    clock,
		log:      log,
		jobs:     make(map[util.Uint256]job),
	}, nil
}

// Write implements journal.Sink. Only RandomWordsRequested events for this
// fulfiller's key are queued.
func (f *Fulfiller) Write(_ context.Context, envs []journal.Envelope) error {
	for _, env := range envs {
		if env.Name != (vrf.RandomWordsRequested{}).EventName() {
			continue
		}
		var ev vrf.RandomWordsRequested
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s #%d: %w", env.Name, env.Seq, err)
		}
		if ev.KeyHash != f.keyHash {
			continue
		}
		f.mu.Lock()
		f.jobs[ev.RequestID] = job{
			seq:     env.Seq,
			event:   ev,
			readyAt: ev.BlockHeight + uint64(ev.MinimumRequestConfirmations),
		}
		f.mu.Unlock()
	}
	return nil
}

// Pending returns the number of queued requests.
func (f *Fulfiller) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

// Tick fulfills every queued request that has enough confirmations and
// returns how many were fulfilled.
func (f *Fulfiller) Tick(ctx context.Context) (int, error) {
	height, err := f.chain.BlockHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("read block height: %w", err)
	}

	f.mu.Lock()
	ready := make([]job, 0, len(f.jobs))
	for _, j := range f.jobs {
		if height >= j.readyAt {
			ready = append(ready, j)
		}
	}
	f.mu.Unlock()
	sort.Slice(ready, func(i, k int) bool { return ready[i].seq < ready[k].seq })

	done := 0
	for _, j := range ready {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		drop, err := f.fulfill(ctx, j.event)
		entry := f.log.WithContext(ctx).WithField("request_id", j.event.RequestID.StringLE())
		switch {
		case err == nil:
			done++
			entry.Debug("request fulfilled")
		case drop:
			entry.WithField("code", svcerrors.CodeOf(err)).Warnf("dropping request: %v", err)
		default:
			entry.WithField("code", svcerrors.CodeOf(err)).Infof("fulfillment deferred: %v", err)
			continue
		}
		f.mu.Lock()
		delete(f.jobs, j.event.RequestID)
		f.mu.Unlock()
	}
	return done, nil
}

// fulfill reports whether a failed job should be dropped from the queue.
func (f *Fulfiller) fulfill(ctx context.Context, ev vrf.RandomWordsRequested) (bool, error) {
	blockHash, err := f.chain.BlockHash(ctx, ev.BlockHeight)
	if err != nil {
		return svcerrors.CodeOf(err) == svcerrors.ErrBlockhashNotFound.Code, err
	}
	proof := vrf.Proof{
		PublicKey: f.prover.PublicKey(),
		PreSeed:   ev.PreSeed,
		Proof:     f.prover.Prove(crypto.Seed(ev.PreSeed, blockHash)),
	}
	rec := vrf.RequestRecord{
		BlockHeight:      ev.BlockHeight,
		SubID:            ev.SubID,
		CallbackGasLimit: ev.CallbackGasLimit,
		NumWords:         ev.NumWords,
		Consumer:         ev.Sender,
	}
	if _, err := f.coord.FulfillRandomWords(ctx, proof, rec, f.gasPrice); err != nil {
		switch svcerrors.CodeOf(err) {
		case svcerrors.ErrNoCorrespondingRequest.Code,
			svcerrors.ErrIncorrectCommitment.Code,
			svcerrors.ErrNoSuchProvingKey.Code:
			return true, err
		}
		return false, err
	}
	return false, nil
}

// Run polls until ctx is done.
func (f *Fulfiller) Run(ctx context.Context) {
	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()
	f.log.WithField("key_hash", f.keyHash.StringLE()).Info("oracle started")
	for {
		select {
		case <-ctx.Done():
			f.log.Info("oracle stopped")
			return
		case <-ticker.Chan():
			if _, err := f.Tick(ctx); err != nil && ctx.Err() == nil {
				f.log.WithError(err).Warn("oracle tick failed")
			}
		}
	}
}

// Package audit recomputes the coordinator's balance invariants from the
// store and reports drift.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	"github.com/R3E-Network/vrf_coordinator/internal/metrics"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

// DefaultSchedule runs the audit once a minute.
const DefaultSchedule = "@every 1m"

// Report is the result of one audit pass.
type Report struct {
	CheckedAt     time.Time  `json:"checked_at"`
	Totals        vrf.Totals `json:"totals"`
	Balances      int64      `json:"balances"`
	Withdrawable  int64      `json:"withdrawable"`
	Subscriptions int        `json:"subscriptions"`
	Pending       uint64     `json:"pending"`
	Outstanding   int        `json:"outstanding"`
	Violations    []string   `json:"violations,omitempty"`
}

// OK reports whether every invariant held.
func (r Report) OK() bool {
	return len(r.Violations) == 0
}

// Config configures an Auditor.
type Config struct {
	Store   storage.Store
	Clock   clockwork.Clock
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// Auditor checks the store on demand or on a cron schedule.
type Auditor struct {
	store   storage.Store
	clock   clockwork.Clock
	metrics *metrics.Metrics
	log     *logger.Logger

	mu   sync.RWMutex
	last *Report
	cron *cron.Cron
}

// New returns an auditor over cfg.Store.
func New(cfg Config) *Auditor {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("audit")
	}
	return &Auditor{store: cfg.Store, clock: clock, metrics: cfg.Metrics, log: log}
}

// Check runs one audit pass. Violations are reported in the Report; the
// error is reserved for store failures.
func (a *Auditor) Check(ctx context.Context) (Report, error) {
	r := Report{CheckedAt: a.clock.Now().UTC()}
	err := a.store.View(ctx, func(tx storage.Tx) error {
		r.Totals = tx.Totals()
		subs := tx.ListSubscriptions()
		r.Subscriptions = len(subs)
		for _, s := range subs {
			r.Balances += s.Balance
			r.Pending += s.PendingRequests
			if s.Balance < 0 {
				r.Violations = append(r.Violations, fmt.Sprintf("subscription %d has negative balance %d", s.ID, s.Balance))
			}
		}
		for holder, amount := range tx.ListWithdrawable() {
			r.Withdrawable += amount
			if amount < 0 {
				r.Violations = append(r.Violations, fmt.Sprintf("withdrawable of %s is negative", holder.StringLE()))
			}
		}
		r.Outstanding = tx.CommitmentCount()
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	if tracked := r.Balances + r.Withdrawable; tracked != r.Totals.Tracked {
		r.Violations = append(r.Violations, fmt.Sprintf("tracked total %d, balances sum to %d", r.Totals.Tracked, tracked))
	}
	if r.Totals.Held < r.Totals.Tracked {
		r.Violations = append(r.Violations, fmt.Sprintf("held %d below tracked %d", r.Totals.Held, r.Totals.Tracked))
	}
	if r.Pending != uint64(r.Outstanding) {
		r.Violations = append(r.Violations, fmt.Sprintf("%d pending requests counted, %d commitments stored", r.Pending, r.Outstanding))
	}

	a.mu.Lock()
	a.last = &r
	a.mu.Unlock()

	a.metrics.RecordAudit(r.OK())
	entry := a.log.WithContext(ctx).WithField("subscriptions", r.Subscriptions)
	if r.OK() {
		entry.Debug("audit passed")
	} else {
		entry.WithField("violations", r.Violations).Error("audit failed")
	}
	return r, nil
}

// Last returns the most recent report.
func (a *Auditor) Last() (Report, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return Report{}, false
	}
	return *a.last, true
}

// Start schedules Check with a standard cron expression or descriptor such
// as "@every 30s". An empty schedule selects DefaultSchedule.
func (a *Auditor) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := a.Check(ctx); err != nil {
			a.log.WithError(err).Warn("audit pass did not run")
		}
	}); err != nil {
		return fmt.Errorf("audit schedule %q: %w", schedule, err)
	}

	a.mu.Lock()
	if a.cron != nil {
		a.cron.Stop()
	}
	a.cron = c
	a.mu.Unlock()

	c.Start()
	a.log.WithField("schedule", schedule).Info("audit scheduled")
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (a *Auditor) Stop() {
	a.mu.Lock()
	c := a.cron
	a.cron = nil
	a.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

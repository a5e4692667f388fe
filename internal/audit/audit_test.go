package audit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	"github.com/R3E-Network/vrf_coordinator/internal/metrics"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
	"github.com/R3E-Network/vrf_coordinator/internal/storage/memory"
	"github.com/R3E-Network/vrf_coordinator/pkg/logger"
)

func seed(t *testing.T, store storage.Store, fn func(tx storage.Tx)) {
	t.Helper()
	require.NoError(t, store.Atomic(context.Background(), func(tx storage.Tx) error {
		fn(tx)
		return nil
	}))
}

func newAuditor(store storage.Store, clock clockwork.Clock) *Auditor {
	return New(Config{Store: store, Clock: clock, Metrics: metrics.New(), Logger: logger.NewDiscard("audit")})
}

func TestCheckBalanced(t *testing.T) {
	store := memory.New()
	seed(t, store, func(tx storage.Tx) {
		tx.PutSubscription(vrf.Subscription{ID: 1, Balance: 700, PendingRequests: 1})
		tx.PutSubscription(vrf.Subscription{ID: 2, Balance: 200})
		tx.SetWithdrawable(util.Uint160{0x01}, 100)
		tx.PutCommitment(util.Uint256{0x01}, util.Uint256{0x02})
		tx.SetTotals(vrf.Totals{Held: 1_050, Tracked: 1_000})
	})
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	a := newAuditor(store, clock)

	_, ok := a.Last()
	assert.False(t, ok)

	r, err := a.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, r.OK(), r.Violations)
	assert.Equal(t, int64(900), r.Balances)
	assert.Equal(t, int64(100), r.Withdrawable)
	assert.Equal(t, 2, r.Subscriptions)
	assert.Equal(t, 1, r.Outstanding)
	assert.Equal(t, clock.Now(), r.CheckedAt)

	last, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, r, last)
}

func TestCheckReportsDrift(t *testing.T) {
	store := memory.New()
	seed(t, store, func(tx storage.Tx) {
		tx.PutSubscription(vrf.Subscription{ID: 1, Balance: 500, PendingRequests: 2})
		tx.SetTotals(vrf.Totals{Held: 400, Tracked: 450})
	})
	r, err := newAuditor(store, clockwork.NewFakeClock()).Check(context.Background())
	require.NoError(t, err)
	assert.False(t, r.OK())
	assert.Len(t, r.Violations, 3)
}

func TestCheckCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newAuditor(memory.New(), nil).Check(ctx)
	assert.Error(t, err)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	a := newAuditor(memory.New(), nil)
	assert.Error(t, a.Start(context.Background(), "not a schedule"))
	a.Stop()
}

func TestStartRunsChecks(t *testing.T) {
	a := newAuditor(memory.New(), nil)
	require.NoError(t, a.Start(context.Background(), "@every 1s"))
	defer a.Stop()

	assert.Eventually(t, func() bool {
		_, ok := a.Last()
		return ok
	}, 5*time.Second, 50*time.Millisecond)
}

package ledger

import (
	"context"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
	"github.com/R3E-Network/vrf_coordinator/internal/storage/memory"
)

var (
	owner    = util.Uint160{0xaa}
	stranger = util.Uint160{0xbb}
	alice    = util.Uint160{0x01}
	bob      = util.Uint160{0x02}
	carol    = util.Uint160{0x03}
)

type fixture struct {
	t      *testing.T
	store  *memory.Store
	ledger *Ledger
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, store: memory.New(), ledger: New(2)}
}

func (f *fixture) do(fn func(tx storage.Tx) error) error {
	return f.store.Atomic(context.Background(), fn)
}

func (f *fixture) create(who util.Uint160) uint64 {
	var id uint64
	require.NoError(f.t, f.do(func(tx storage.Tx) error {
		id, _ = f.ledger.Create(tx, who)
		return nil
	}))
	return id
}

func (f *fixture) sub(id uint64) vrf.Subscription {
	var sub vrf.Subscription
	require.NoError(f.t, f.do(func(tx storage.Tx) error {
		var err error
		sub, err = f.ledger.Get(tx, id)
		return err
	}))
	return sub
}

func (f *fixture) totals() vrf.Totals {
	var totals vrf.Totals
	_ = f.store.View(context.Background(), func(tx storage.Tx) error {
		totals = tx.Totals()
		return nil
	})
	return totals
}

// =============================================================================
// Creation and funding
// =============================================================================

func TestCreateAssignsIncreasingIDs(t *testing.T) {
	f := newFixture(t)
	for want := uint64(1); want <= 5; want++ {
		assert.Equal(t, want, f.create(owner))
	}
	sub := f.sub(3)
	assert.Equal(t, owner, sub.Owner)
	assert.Zero(t, sub.Balance)
	assert.Empty(t, sub.Consumers)
}

func TestFundAccumulates(t *testing.T) {
	f := newFixture(t)
	id := f.create(owner)

	var events []vrf.Event
	for _, amount := range []int64{300, 700} {
		require.NoError(t, f.do(func(tx storage.Tx) error {
			ev, err := f.ledger.Fund(tx, id, amount, amount)
			events = append(events, ev)
			return err
		}))
	}

	assert.Equal(t, int64(1000), f.sub(id).Balance)
	assert.Equal(t, vrf.SubscriptionFunded{SubID: id, OldBalance: 300, NewBalance: 1000}, events[1])
	assert.Equal(t, vrf.Totals{Held: 1000, Tracked: 1000}, f.totals())
}

func TestFundRejects(t *testing.T) {
	f := newFixture(t)
	id := f.create(owner)

	err := f.do(func(tx storage.Tx) error {
		_, err := f.ledger.Fund(tx, 99, 10, 10)
		return err
	})
	assert.ErrorIs(t, err, svcerrors.ErrInvalidSubscription)

	err = f.do(func(tx storage.Tx) error {
		_, err := f.ledger.Fund(tx, id, 10, 9)
		return err
	})
	assert.ErrorIs(t, err, svcerrors.ErrInsufficientValue)

	err = f.do(func(tx storage.Tx) error {
		_, err := f.ledger.Fund(tx, id, -1, 0)
		return err
	})
	assert.ErrorIs(t, err, svcerrors.ErrInvalidAmount)

	assert.Zero(t, f.sub(id).Balance)
}

func TestOverpaymentIsRecoverable(t *testing.T) {
	f := newFixture(t)
	id := f.create(owner)

	require.NoError(t, f.do(func(tx storage.Tx) error {
		_, err := f.ledger.Fund(tx, id, 100, 250)
		return err
	}))
	assert.Equal(t, vrf.Totals{Held: 250, Tracked: 100}, f.totals())

	var amount int64
	var ev vrf.Event
	require.NoError(t, f.do(func(tx storage.Tx) error {
		amount, ev = f.ledger.RecoverFunds(tx, stranger)
		return nil
	}))
	assert.Equal(t, int64(150), amount)
	assert.Equal(t, vrf.FundsRecovered{To: stranger, Amount: 150}, ev)
	assert.Equal(t, vrf.Totals{Held: 100, Tracked: 100}, f.totals())
}

// =============================================================================
// Consumers
// =============================================================================

func TestConsumerCap(t *testing.T) {
	f := newFixture(t)
	id := f.create(owner)
	add := func(c util.Uint160) (vrf.Event, error) {
		var ev vrf.Event
		err := f.do(func(tx storage.Tx) error {
			var err error
			ev, err = f.ledger.AddConsumer(tx, owner, id, c)
			return err
		})
		return ev, err
	}
	remove := func(c util.Uint160) error {
		return f.do(func(tx storage.Tx) error {
			_, err := f.ledger.RemoveConsumer(tx, owner, id, c)
			return err
		})
	}

	_, err := add(alice)
	require.NoError(t, err)
	_, err = add(bob)
	require.NoError(t, err)

	_, err = add(carol)
	assert.ErrorIs(t, err, svcerrors.ErrTooManyConsumers)

	// Re-adding a present consumer is a silent no-op, even at the cap.
	ev, err := add(alice)
	require.NoError(t, err)
	assert.Nil(t, ev)

	require.NoError(t, remove(alice))
	ev, err = add(carol)
	require.NoError(t, err)
	assert.Equal(t, vrf.SubscriptionConsumerAdded{SubID: id, Consumer: carol}, ev)
	assert.Equal(t, []util.Uint160{bob, carol}, f.sub(id).Consumers)

	assert.ErrorIs(t, remove(alice), svcerrors.ErrConsumerNotFound)
}

func TestConsumerMutationsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	id := f.create(owner)

	err := f.do(func(tx storage.Tx) error {
		_, err := f.ledger.AddConsumer(tx, stranger, id, alice)
		return err
	})
	assert.ErrorIs(t, err, svcerrors.ErrMustBeSubOwner)

	err = f.do(func(tx storage.Tx) error {
		_, err := f.ledger.AddConsumer(tx, owner, 42, alice)
		return err
	})
	assert.ErrorIs(t, err, svcerrors.ErrInvalidSubscription)
}

func TestNonceSurvivesRemoval(t *testing.T) {
	f := newFixture(t)
	id := f.create(owner)

	var nonces []uint64
	require.NoError(t, f.do(func(tx storage.Tx) error {
		if _, err := f.ledger.AddConsumer(tx, owner, id, alice); err != nil {
			return err
		}
		nonces = append(nonces, f.ledger.NextNonce(tx, id, alice))
		if _, err := f.ledger.RemoveConsumer(tx, owner, id, alice); err != nil {
			return err
		}
		if _, err := f.ledger.AddConsumer(tx, owner, id, alice); err != nil {
			return err
		}
		nonces = append(nonces, f.ledger.NextNonce(tx, id, alice))
		return nil
	}))
	assert.Equal(t, []uint64{2, 3}, nonces)
}

// =============================================================================
// Ownership
// =============================================================================

func TestOwnerTransfer(t *testing.T) {
	f := newFixture(t)
	id := f.create(owner)

	err := f.do(func(tx storage.Tx) error {
		_, err := f.ledger.RequestOwnerTransfer(tx, stranger, id, stranger)
		return err
	})
	assert.ErrorIs(t, err, svcerrors.ErrMustBeSubOwner)

	require.NoError(t, f.do(func(tx storage.Tx) error {
		ev, err := f.ledger.RequestOwnerTransfer(tx, owner, id, alice)
		assert.Equal(t, vrf.SubscriptionOwnerTransferRequested{SubID: id, From: owner, To: alice}, ev)
		return err
	}))

	err = f.do(func(tx storage.Tx) error {
		_, err := f.ledger.AcceptOwnerTransfer(tx, bob, id)
		return err
	})
	assert.ErrorIs(t, err, svcerrors.ErrMustBeRequestedOwner)

	err = f.do(func(tx storage.Tx) error {
		_, err := f.ledger.AcceptOwnerTransfer(tx, alice, 77)
		return err
	})
	assert.ErrorIs(t, err, svcerrors.ErrInvalidSubscription)

	require.NoError(t, f.do(func(tx storage.Tx) error {
		ev, err := f.ledger.AcceptOwnerTransfer(tx, alice, id)
		assert.Equal(t, vrf.SubscriptionOwnerTransferred{SubID: id, From: owner, To: alice}, ev)
		return err
	}))

	sub := f.sub(id)
	assert.Equal(t, alice, sub.Owner)
	assert.False(t, sub.HasPendingOwner())
}

// =============================================================================
// Cancel and charge
// =============================================================================

func TestCancelRefusesWithPendingRequests(t *testing.T) {
	f := newFixture(t)
	id := f.create(owner)
	oracle := util.Uint160{0xcc}

	require.NoError(t, f.do(func(tx storage.Tx) error {
		if _, err := f.ledger.Fund(tx, id, 1000, 1000); err != nil {
			return err
		}
		sub, _ := f.ledger.Get(tx, id)
		f.ledger.MarkRequested(tx, sub)
		return nil
	}))

	cancel := func() (int64, error) {
		var amount int64
		err := f.do(func(tx storage.Tx) error {
			var err error
			amount, _, err = f.ledger.Cancel(tx, id, alice)
			return err
		})
		return amount, err
	}

	_, err := cancel()
	assert.ErrorIs(t, err, svcerrors.ErrPendingRequestExists)

	require.NoError(t, f.do(func(tx storage.Tx) error {
		return f.ledger.Charge(tx, id, oracle, 400)
	}))
	sub := f.sub(id)
	assert.Equal(t, int64(600), sub.Balance)
	assert.Equal(t, uint64(1), sub.RequestCount)
	assert.Zero(t, sub.PendingRequests)

	amount, err := cancel()
	require.NoError(t, err)
	assert.Equal(t, int64(600), amount)
	// The oracle's credit is still held and tracked.
	assert.Equal(t, vrf.Totals{Held: 400, Tracked: 400}, f.totals())

	_, err = cancel()
	assert.ErrorIs(t, err, svcerrors.ErrInvalidSubscription)
}

func TestChargeInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	id := f.create(owner)

	err := f.do(func(tx storage.Tx) error {
		return f.ledger.Charge(tx, id, util.Uint160{0xcc}, 1)
	})
	assert.ErrorIs(t, err, svcerrors.ErrInsufficientBalance)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	id := f.create(owner)
	oracle := util.Uint160{0xcc}

	require.NoError(t, f.do(func(tx storage.Tx) error {
		if _, err := f.ledger.Fund(tx, id, 500, 500); err != nil {
			return err
		}
		return f.ledger.Charge(tx, id, oracle, 300)
	}))

	err := f.do(func(tx storage.Tx) error {
		ok, err := f.ledger.Withdraw(tx, oracle, 301)
		assert.True(t, ok)
		return err
	})
	assert.ErrorIs(t, err, svcerrors.ErrInsufficientBalance)

	require.NoError(t, f.do(func(tx storage.Tx) error {
		ok, err := f.ledger.Withdraw(tx, stranger, 1)
		assert.False(t, ok)
		return err
	}))

	require.NoError(t, f.do(func(tx storage.Tx) error {
		_, err := f.ledger.Withdraw(tx, oracle, 300)
		return err
	}))
	assert.Equal(t, vrf.Totals{Held: 200, Tracked: 200}, f.totals())
}

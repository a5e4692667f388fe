package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
)

var errAbort = errors.New("abort")

func TestAtomicCommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error {
		id := tx.NextSubscriptionID()
		tx.PutSubscription(vrf.Subscription{ID: id, Balance: 5})
		tx.SetTotals(vrf.Totals{Held: 5, Tracked: 5})
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		sub, ok := tx.Subscription(1)
		require.True(t, ok)
		assert.Equal(t, int64(5), sub.Balance)
		assert.Equal(t, vrf.Totals{Held: 5, Tracked: 5}, tx.Totals())
		return nil
	}))
}

func TestAtomicDiscardsOnError(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.Atomic(ctx, func(tx storage.Tx) error {
		tx.NextSubscriptionID()
		tx.PutSubscription(vrf.Subscription{ID: 1})
		tx.PutCommitment(util.Uint256{1}, util.Uint256{2})
		tx.PutProvingKey(vrf.ProvingKey{Hash: util.Uint256{3}})
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error {
		_, ok := tx.Subscription(1)
		assert.False(t, ok)
		assert.Zero(t, tx.CommitmentCount())
		assert.Empty(t, tx.ProvingKeyHashes())
		// The counter rolled back too.
		assert.Equal(t, uint64(1), tx.NextSubscriptionID())
		return nil
	}))
}

func TestSubscriptionsAreCopied(t *testing.T) {
	s := New()
	ctx := context.Background()
	consumer := util.Uint160{7}

	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error {
		sub := vrf.Subscription{ID: 1, Consumers: []util.Uint160{consumer}}
		tx.PutSubscription(sub)
		sub.Consumers[0] = util.Uint160{8}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		sub, _ := tx.Subscription(1)
		assert.Equal(t, []util.Uint160{consumer}, sub.Consumers)
		sub.Consumers[0] = util.Uint160{9}
		again, _ := tx.Subscription(1)
		assert.Equal(t, []util.Uint160{consumer}, again.Consumers)
		return nil
	}))
}

func TestProvingKeyOrderSurvivesRemoval(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, b, c := util.Uint256{1}, util.Uint256{2}, util.Uint256{3}

	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error {
		tx.PutProvingKey(vrf.ProvingKey{Hash: a})
		tx.PutProvingKey(vrf.ProvingKey{Hash: b})
		tx.PutProvingKey(vrf.ProvingKey{Hash: c})
		tx.DeleteProvingKey(a)
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		assert.Equal(t, []util.Uint256{b, c}, tx.ProvingKeyHashes())
		_, ok := tx.ProvingKey(a)
		assert.False(t, ok)
		return nil
	}))
}

func TestDeleteNoncesScopedToSubscription(t *testing.T) {
	s := New()
	ctx := context.Background()
	consumer := util.Uint160{1}

	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error {
		tx.SetNonce(1, consumer, 3)
		tx.SetNonce(2, consumer, 4)
		return nil
	}))
	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error {
		tx.SetNonce(1, util.Uint160{2}, 1)
		tx.DeleteNonces(1)
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
		_, ok := tx.Nonce(1, consumer)
		assert.False(t, ok)
		_, ok = tx.Nonce(1, util.Uint160{2})
		assert.False(t, ok)
		n, ok := tx.Nonce(2, consumer)
		assert.True(t, ok)
		assert.Equal(t, uint64(4), n)
		return nil
	}))
}

func TestCanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Atomic(ctx, func(storage.Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

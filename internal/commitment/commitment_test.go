package commitment

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

func TestCommitVerifyConsume(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	id := util.Uint256{0x11}
	rec := vrf.RequestRecord{BlockHeight: 7, SubID: 1, CallbackGasLimit: 100, NumWords: 1, Consumer: util.Uint160{1}}

	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error {
		assert.ErrorIs(t, Verify(tx, id, rec), svcerrors.ErrNoCorrespondingRequest)
		Commit(tx, id, rec)
		return nil
	}))

	require.NoError(t, s.Atomic(ctx, func(tx storage.Tx) error {
		assert.True(t, Pending(tx, id))
		assert.NoError(t, Verify(tx, id, rec))

		tampered := rec
		tampered.NumWords = 2
		assert.ErrorIs(t, Verify(tx, id, tampered), svcerrors.ErrIncorrectCommitment)

		Consume(tx, id)
		assert.ErrorIs(t, Verify(tx, id, rec), svcerrors.ErrNoCorrespondingRequest)
		assert.Zero(t, tx.CommitmentCount())
		return nil
	}))
}

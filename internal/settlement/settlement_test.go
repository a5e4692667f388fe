package settlement

import (
	"context"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
)

func TestMemoryTransfer(t *testing.T) {
	m := NewMemory()
	addr := util.Uint160{1}
	ctx := context.Background()

	require.NoError(t, m.Transfer(ctx, addr, 10))
	require.NoError(t, m.Transfer(ctx, addr, 5))
	assert.Equal(t, int64(15), m.BalanceOf(addr))
	assert.Zero(t, m.BalanceOf(util.Uint160{2}))

	assert.ErrorIs(t, m.Transfer(ctx, addr, -1), svcerrors.ErrInvalidAmount)
}

package fee

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
)

var fixture = vrf.FeeTierTable{4, 3, 2, 1, 0, 1, 2, 3, 4}

func TestFeeTierFixture(t *testing.T) {
	require.NoError(t, ValidateTable(fixture))
	s := New(fixture)

	want := []uint32{4, 4, 3, 2, 1, 0}
	for count, tier := range want {
		assert.Equal(t, tier, s.FeeTier(uint64(count)), "count %d", count)
	}
	assert.Equal(t, uint32(0), s.FeeTier(math.MaxUint64))
}

func TestFeeTierNonIncreasing(t *testing.T) {
	tables := []vrf.FeeTierTable{
		fixture,
		{500, 400, 300, 200, 100, 10, 100, 1000, 10000},
		{7, 7, 7, 7, 7, 0, 0, 0, 0},
	}
	for _, table := range tables {
		require.NoError(t, ValidateTable(table))
		s := New(table)
		prev := s.FeeTier(0)
		for c := uint64(1); c < 20000; c += 7 {
			cur := s.FeeTier(c)
			assert.LessOrEqual(t, cur, prev, "table %v count %d", table, c)
			prev = cur
		}
	}
}

func TestValidateTableRejects(t *testing.T) {
	err := ValidateTable(vrf.FeeTierTable{1, 2, 0, 0, 0, 1, 2, 3, 4})
	assert.ErrorIs(t, err, svcerrors.ErrInvalidFeeTiers)

	err = ValidateTable(vrf.FeeTierTable{4, 3, 2, 1, 0, 5, 2, 3, 4})
	assert.ErrorIs(t, err, svcerrors.ErrInvalidFeeTiers)
}

func TestPayment(t *testing.T) {
	s := New(fixture)
	cfg := vrf.GlobalConfig{GasAfterPaymentCalculation: 1000, FeeTiers: fixture}

	got, err := s.Payment(cfg, 2, 500, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2*(1000+500)+4*vrf.FlatFeeUnit), got)

	got, err = s.Payment(cfg, 2, 500, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2*(1000+500)), got)

	_, err = s.Payment(cfg, math.MaxInt64, math.MaxUint32, 0)
	assert.ErrorIs(t, err, svcerrors.ErrPaymentTooLarge)
}

func TestWrapperPrice(t *testing.T) {
	s := New(fixture)
	cfg := vrf.WrapperConfig{WrapperGasOverhead: 10000, CoordinatorGasOverhead: 8000, PremiumPercent: 10}

	got, err := s.WrapperPrice(cfg, 100, 20000, 2)
	require.NoError(t, err)
	gas := int64(20000 + 10000 + 8000 + 2*WordGasOverhead)
	assert.Equal(t, 100*gas*110/100+4*vrf.FlatFeeUnit, got)

	_, err = s.WrapperPrice(cfg, math.MaxInt64, 20000, 2)
	assert.ErrorIs(t, err, svcerrors.ErrPaymentTooLarge)
}

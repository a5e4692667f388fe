// Package fee implements the tiered fee schedule and the payment and price
// formulas built on it.
package fee

import (
	"math/big"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
)

// WordGasOverhead is the gas budgeted per random word when the wrapper
// prices a request.
const WordGasOverhead uint32 = 5000

// Schedule interprets a validated fee tier table.
type Schedule struct {
	fees        [vrf.TierCount]uint32
	breakpoints [vrf.TierCount - 1]uint32
}

// ValidateTable rejects tables whose breakpoints decrease or whose fees
// increase, so that FeeTier is non-increasing in the request count.
func ValidateTable(t vrf.FeeTierTable) error {
	fees, bps := t.Fees(), t.Breakpoints()
	for i := 1; i < len(fees); i++ {
		if fees[i] > fees[i-1] {
			return svcerrors.ErrInvalidFeeTiers.WithDetails("tier", i+1)
		}
	}
	for i := 1; i < len(bps); i++ {
		if bps[i] < bps[i-1] {
			return svcerrors.ErrInvalidFeeTiers.WithDetails("breakpoint", i+1)
		}
	}
	return nil
}

// New returns the schedule of t. The table must have passed ValidateTable.
func New(t vrf.FeeTierTable) Schedule {
	return Schedule{fees: t.Fees(), breakpoints: t.Breakpoints()}
}

// FeeTier returns the flat fee, in millionths of one GAS, for a
// subscription that has completed requestCount requests.
func (s Schedule) FeeTier(requestCount uint64) uint32 {
	for i, bp := range s.breakpoints {
		if requestCount <= uint64(bp) {
			return s.fees[i]
		}
	}
	return s.fees[len(s.fees)-1]
}

// Payment is the amount charged for one fulfillment: reimbursed gas plus
// the flat fee of the subscription's tier.
func (s Schedule) Payment(cfg vrf.GlobalConfig, gasPrice int64, callbackGasLimit uint32, requestCount uint64) (int64, error) {
	if gasPrice < 0 {
		return 0, svcerrors.ErrGasPriceOverRange.WithMessage("negative gas price")
	}
	gas := new(big.Int).SetUint64(uint64(cfg.GasAfterPaymentCalculation) + uint64(callbackGasLimit))
	total := gas.Mul(gas, big.NewInt(gasPrice))
	total.Add(total, flat(s.FeeTier(requestCount)))
	return toAmount(total)
}

// WrapperPrice is what the wrapper charges a caller for one request.
func (s Schedule) WrapperPrice(cfg vrf.WrapperConfig, gasPrice int64, callbackGasLimit, numWords uint32) (int64, error) {
	if gasPrice < 0 {
		return 0, svcerrors.ErrGasPriceTooLow
	}
	gas := new(big.Int).SetUint64(uint64(callbackGasLimit) +
		uint64(cfg.WrapperGasOverhead) +
		uint64(cfg.CoordinatorGasOverhead) +
		uint64(numWords)*uint64(WordGasOverhead))
	total := gas.Mul(gas, big.NewInt(gasPrice))
	total.Mul(total, big.NewInt(100+int64(cfg.PremiumPercent)))
	total.Quo(total, big.NewInt(100))
	total.Add(total, flat(s.FeeTier(0)))
	return toAmount(total)
}

func flat(fee uint32) *big.Int {
	return new(big.Int).Mul(big.NewInt(int64(fee)), big.NewInt(vrf.FlatFeeUnit))
}

func toAmount(v *big.Int) (int64, error) {
	if !v.IsInt64() {
		return 0, svcerrors.ErrPaymentTooLarge
	}
	return v.Int64(), nil
}

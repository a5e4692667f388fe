package vrf

import "github.com/nspcc-dev/neo-go/pkg/util"

// FeeTierTable is the operator-supplied fee schedule: five flat fees (one
// per tier, most expensive first) followed by four cumulative request-count
// breakpoints.
type FeeTierTable [9]uint32

// TierCount is the number of fee tiers in a FeeTierTable.
const TierCount = 5

// Fees returns the per-tier flat fees.
func (t FeeTierTable) Fees() [TierCount]uint32 {
	var out [TierCount]uint32
	copy(out[:], t[:TierCount])
	return out
}

// Breakpoints returns the request counts at which tiers 2..5 start.
func (t FeeTierTable) Breakpoints() [TierCount - 1]uint32 {
	var out [TierCount - 1]uint32
	copy(out[:], t[TierCount:])
	return out
}

// GlobalConfig is the coordinator configuration record.
type GlobalConfig struct {
	MinimumRequestConfirmations uint16       `json:"minimum_request_confirmations"`
	MaxGasLimit                 uint32       `json:"max_gas_limit"`
	MaxGasPrice                 int64        `json:"max_gas_price"`
	GasAfterPaymentCalculation  uint32       `json:"gas_after_payment_calculation"`
	FeeTiers                    FeeTierTable `json:"fee_tier_table"`
}

// WrapperConfig is the direct-funding wrapper configuration record.
type WrapperConfig struct {
	MinGasPrice            int64        `json:"min_gas_price"`
	WrapperGasOverhead     uint32       `json:"wrapper_gas_overhead"`
	CoordinatorGasOverhead uint32       `json:"coordinator_gas_overhead"`
	PremiumPercent         uint8        `json:"premium_percent"`
	KeyHash                util.Uint256 `json:"key_hash"`
	MaxNumWords            uint8        `json:"max_num_words"`
}

// Callback is the wrapper's record of an in-flight direct-funding request.
type Callback struct {
	RequestID        util.Uint256 `json:"request_id"`
	CallbackAddress  util.Uint160 `json:"callback_address"`
	CallbackGasLimit uint32       `json:"callback_gas_limit"`
	RequestGasPrice  int64        `json:"request_gas_price"`
	// Cost is the price charged to the caller, computed at request time.
	Cost int64 `json:"cost"`
	Paid int64 `json:"paid"`
}

// Package vrf holds the domain records of the randomness coordinator:
// subscriptions, proving keys, request records, configuration and events.
package vrf

import (
	"math/big"
	"slices"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Protocol ceilings.
const (
	MaxRequestConfirmations uint16 = 200
	MaxNumWords             uint32 = 500

	// FlatFeeUnit converts one fee-tier unit (a millionth of one GAS) into
	// the smallest GAS unit.
	FlatFeeUnit int64 = 100
)

// Subscription is the billing unit for randomness requests.
type Subscription struct {
	ID           uint64       `json:"id"`
	Owner        util.Uint160 `json:"owner"`
	PendingOwner util.Uint160 `json:"pending_owner"`
	Balance      int64        `json:"balance"`
	RequestCount uint64       `json:"request_count"`

	// PendingRequests counts commitments that still reference this subscription.
	PendingRequests uint64         `json:"pending_requests"`
	Consumers       []util.Uint160 `json:"consumers"`
}

// Clone returns a deep copy.
func (s Subscription) Clone() Subscription {
	s.Consumers = slices.Clone(s.Consumers)
	return s
}

// HasConsumer reports whether addr is in the consumer set.
func (s Subscription) HasConsumer(addr util.Uint160) bool {
	return slices.Contains(s.Consumers, addr)
}

// HasPendingOwner reports whether an ownership transfer is in progress.
func (s Subscription) HasPendingOwner() bool {
	return !s.PendingOwner.Equals(util.Uint160{})
}

// ProvingKey binds an oracle to a registered public key.
type ProvingKey struct {
	Hash        util.Uint256 `json:"hash"`
	PublicKey   []byte       `json:"public_key"`
	Oracle      util.Uint160 `json:"oracle"`
	MaxGasPrice int64        `json:"max_gas_price"`
}

// RequestRecord is the full request data re-supplied at fulfillment and
// checked against the stored commitment.
type RequestRecord struct {
	BlockHeight      uint64       `json:"block_height"`
	SubID            uint64       `json:"sub_id"`
	CallbackGasLimit uint32       `json:"callback_gas_limit"`
	NumWords         uint32       `json:"num_words"`
	Consumer         util.Uint160 `json:"consumer"`
}

// Proof is what an oracle submits to fulfill a request.
type Proof struct {
	PublicKey []byte       `json:"public_key"`
	PreSeed   util.Uint256 `json:"pre_seed"`
	Proof     []byte       `json:"proof"`
}

// Totals tracks value held by the coordinator. Tracked is the part of Held
// owned by subscriptions and withdrawable balances.
type Totals struct {
	Held    int64 `json:"held"`
	Tracked int64 `json:"tracked"`
}

// Unaccounted is the value RecoverFunds may sweep.
func (t Totals) Unaccounted() int64 {
	return t.Held - t.Tracked
}

// Fulfillment is what a consumer callback receives.
type Fulfillment struct {
	RequestID   util.Uint256 `json:"request_id"`
	RandomWords []*big.Int   `json:"random_words"`
	// Payment is the fee charged for the request as seen by the deliverer.
	Payment int64 `json:"payment"`
}

// Package storage declares the transactional state interfaces used by the
// coordinator and the wrapper. Components accept the narrow Tx view they
// need; a Store runs a whole entry point inside one transaction.
package storage

import (
	"context"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
)

// ConfigTx holds the coordinator configuration record.
type ConfigTx interface {
	Config() (vrf.GlobalConfig, bool)
	SetConfig(cfg vrf.GlobalConfig)
}

// SubscriptionTx holds subscriptions and per-consumer nonces.
type SubscriptionTx interface {
	// NextSubscriptionID advances the id counter and returns the new value.
	NextSubscriptionID() uint64
	Subscription(id uint64) (vrf.Subscription, bool)
	PutSubscription(sub vrf.Subscription)
	DeleteSubscription(id uint64)
	ListSubscriptions() []vrf.Subscription

	Nonce(subID uint64, consumer util.Uint160) (uint64, bool)
	SetNonce(subID uint64, consumer util.Uint160, nonce uint64)
	DeleteNonces(subID uint64)
}

// BalanceTx holds value totals and withdrawable balances.
type BalanceTx interface {
	Totals() vrf.Totals
	SetTotals(t vrf.Totals)
	Withdrawable(addr util.Uint160) (int64, bool)
	SetWithdrawable(addr util.Uint160, amount int64)
	ListWithdrawable() map[util.Uint160]int64
}

// ProvingKeyTx holds the insertion-ordered proving key registry.
type ProvingKeyTx interface {
	ProvingKey(keyHash util.Uint256) (vrf.ProvingKey, bool)
	// PutProvingKey appends a new key to the registry order.
	PutProvingKey(key vrf.ProvingKey)
	// DeleteProvingKey keeps the relative order of the remaining keys.
	DeleteProvingKey(keyHash util.Uint256)
	ProvingKeyHashes() []util.Uint256
}

// CommitmentTx holds outstanding request commitments.
type CommitmentTx interface {
	Commitment(requestID util.Uint256) (util.Uint256, bool)
	PutCommitment(requestID, commitment util.Uint256)
	DeleteCommitment(requestID util.Uint256)
	CommitmentCount() int
}

// WrapperState is the scalar state of the direct-funding wrapper.
type WrapperState struct {
	SubID         uint64       `json:"sub_id"`
	Enabled       bool         `json:"enabled"`
	Held          int64        `json:"held"`
	Committed     int64        `json:"committed"`
	LastRequestID util.Uint256 `json:"last_request_id"`
}

// WrapperTx holds wrapper configuration, scalar state and callbacks.
type WrapperTx interface {
	WrapperConfig() (vrf.WrapperConfig, bool)
	SetWrapperConfig(cfg vrf.WrapperConfig)
	WrapperState() WrapperState
	SetWrapperState(st WrapperState)

	Callback(requestID util.Uint256) (vrf.Callback, bool)
	PutCallback(cb vrf.Callback)
	DeleteCallback(requestID util.Uint256)
	CallbackCount() int
}

// Tx is the full transactional view.
type Tx interface {
	ConfigTx
	SubscriptionTx
	BalanceTx
	ProvingKeyTx
	CommitmentTx
	WrapperTx
}

// Store runs functions against consistent state. Atomic commits the writes
// made by fn only when fn returns nil. View discards writes.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

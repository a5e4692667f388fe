package vrf

import (
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Event is a structured record emitted by exactly one committed transition.
type Event interface {
	EventName() string
}

type ConfigSet struct {
	Config GlobalConfig `json:"config"`
}

type SubscriptionCreated struct {
	SubID uint64       `json:"sub_id"`
	Owner util.Uint160 `json:"owner"`
}

type SubscriptionFunded struct {
	SubID      uint64 `json:"sub_id"`
	OldBalance int64  `json:"old_balance"`
	NewBalance int64  `json:"new_balance"`
}

type SubscriptionConsumerAdded struct {
	SubID    uint64       `json:"sub_id"`
	Consumer util.Uint160 `json:"consumer"`
}

type SubscriptionConsumerRemoved struct {
	SubID    uint64       `json:"sub_id"`
	Consumer util.Uint160 `json:"consumer"`
}

type SubscriptionOwnerTransferRequested struct {
	SubID uint64       `json:"sub_id"`
	From  util.Uint160 `json:"from"`
	To    util.Uint160 `json:"to"`
}

type SubscriptionOwnerTransferred struct {
	SubID uint64       `json:"sub_id"`
	From  util.Uint160 `json:"from"`
	To    util.Uint160 `json:"to"`
}

type SubscriptionCanceled struct {
	SubID  uint64       `json:"sub_id"`
	To     util.Uint160 `json:"to"`
	Amount int64        `json:"amount"`
}

type FundsRecovered struct {
	To     util.Uint160 `json:"to"`
	Amount int64        `json:"amount"`
}

type ProvingKeyRegistered struct {
	KeyHash     util.Uint256 `json:"key_hash"`
	Oracle      util.Uint160 `json:"oracle"`
	MaxGasPrice int64        `json:"max_gas_price"`
}

type ProvingKeyDeregistered struct {
	KeyHash util.Uint256 `json:"key_hash"`
	Oracle  util.Uint160 `json:"oracle"`
}

type RandomWordsRequested struct {
	KeyHash                     util.Uint256 `json:"key_hash"`
	RequestID                   util.Uint256 `json:"request_id"`
	PreSeed                     util.Uint256 `json:"pre_seed"`
	SubID                       uint64       `json:"sub_id"`
	MinimumRequestConfirmations uint16       `json:"minimum_request_confirmations"`
	CallbackGasLimit            uint32       `json:"callback_gas_limit"`
	NumWords                    uint32       `json:"num_words"`
	Sender                      util.Uint160 `json:"sender"`
	BlockHeight                 uint64       `json:"block_height"`
}

type RandomWordsFulfilled struct {
	RequestID         util.Uint256 `json:"request_id"`
	RandomWords       []*big.Int   `json:"random_words"`
	SubID             uint64       `json:"sub_id"`
	Payment           int64        `json:"payment"`
	CallbackSucceeded bool         `json:"callback_succeeded"`
}

type OracleWithdrawn struct {
	Oracle util.Uint160 `json:"oracle"`
	To     util.Uint160 `json:"to"`
	Amount int64        `json:"amount"`
}

type WrapperConfigSet struct {
	Config WrapperConfig `json:"config"`
}

type WrapperEnabled struct{}

type WrapperDisabled struct{}

type WrapperRequestCreated struct {
	RequestID util.Uint256 `json:"request_id"`
	Consumer  util.Uint160 `json:"consumer"`
	Cost      int64        `json:"cost"`
	Paid      int64        `json:"paid"`
}

type WrapperFulfilled struct {
	RequestID util.Uint256 `json:"request_id"`
	Consumer  util.Uint160 `json:"consumer"`
	Cost      int64        `json:"cost"`
	Succeeded bool         `json:"succeeded"`
}

type WrapperWithdrawn struct {
	To     util.Uint160 `json:"to"`
	Amount int64        `json:"amount"`
}

func (ConfigSet) EventName() string                          { return "ConfigSet" }
func (SubscriptionCreated) EventName() string                { return "SubscriptionCreated" }
func (SubscriptionFunded) EventName() string                 { return "SubscriptionFunded" }
func (SubscriptionConsumerAdded) EventName() string          { return "SubscriptionConsumerAdded" }
func (SubscriptionConsumerRemoved) EventName() string        { return "SubscriptionConsumerRemoved" }
func (SubscriptionOwnerTransferRequested) EventName() string { return "SubscriptionOwnerTransferRequested" }
func (SubscriptionOwnerTransferred) EventName() string       { return "SubscriptionOwnerTransferred" }
func (SubscriptionCanceled) EventName() string               { return "SubscriptionCanceled" }
func (FundsRecovered) EventName() string                     { return "FundsRecovered" }
func (ProvingKeyRegistered) EventName() string               { return "ProvingKeyRegistered" }
func (ProvingKeyDeregistered) EventName() string             { return "ProvingKeyDeregistered" }
func (RandomWordsRequested) EventName() string               { return "RandomWordsRequested" }
func (RandomWordsFulfilled) EventName() string               { return "RandomWordsFulfilled" }
func (OracleWithdrawn) EventName() string                    { return "OracleWithdrawn" }
func (WrapperConfigSet) EventName() string                   { return "WrapperConfigSet" }
func (WrapperEnabled) EventName() string                     { return "WrapperEnabled" }
func (WrapperDisabled) EventName() string                    { return "WrapperDisabled" }
func (WrapperRequestCreated) EventName() string              { return "WrapperRequestCreated" }
func (WrapperFulfilled) EventName() string                   { return "WrapperFulfilled" }
func (WrapperWithdrawn) EventName() string                   { return "WrapperWithdrawn" }

// Package ledger manages subscriptions, their consumers and balances, and
// the withdrawable balances credited to oracles.
//
// Every operation runs against a caller-supplied transaction, validates
// before it writes, and returns the single event describing the transition
// (or nil when the call changed nothing).
package ledger

import (
	"math"
	"slices"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
)

// DefaultMaxConsumers bounds the consumer set of a subscription.
const DefaultMaxConsumers = 100

// Tx is the state the ledger reads and writes.
type Tx interface {
	storage.SubscriptionTx
	storage.BalanceTx
}

// Ledger applies subscription and balance transitions.
type Ledger struct {
	maxConsumers int
}

// New returns a ledger enforcing maxConsumers per subscription.
func New(maxConsumers int) *Ledger {
	if maxConsumers <= 0 {
		maxConsumers = DefaultMaxConsumers
	}
	return &Ledger{maxConsumers: maxConsumers}
}

// MaxConsumers returns the consumer cap.
func (l *Ledger) MaxConsumers() int {
	return l.maxConsumers
}

// =============================================================================
// Lookups
// =============================================================================

// Get returns subscription id or InvalidSubscription.
func (l *Ledger) Get(tx Tx, id uint64) (vrf.Subscription, error) {
	sub, ok := tx.Subscription(id)
	if !ok {
		return vrf.Subscription{}, svcerrors.ErrInvalidSubscription.WithDetails("sub_id", id)
	}
	return sub, nil
}

// Owned returns subscription id if caller owns it.
func (l *Ledger) Owned(tx Tx, caller util.Uint160, id uint64) (vrf.Subscription, error) {
	sub, err := l.Get(tx, id)
	if err != nil {
		return sub, err
	}
	if sub.Owner != caller {
		return sub, svcerrors.ErrMustBeSubOwner.WithDetails("sub_id", id)
	}
	return sub, nil
}

// =============================================================================
// Subscription lifecycle
// =============================================================================

// Create opens a subscription owned by owner.
func (l *Ledger) Create(tx Tx, owner util.Uint160) (uint64, vrf.Event) {
	id := tx.NextSubscriptionID()
	tx.PutSubscription(vrf.Subscription{ID: id, Owner: owner})
	return id, vrf.SubscriptionCreated{SubID: id, Owner: owner}
}

// Fund credits amount to subscription id. sentValue is what the caller
// actually transferred; anything above amount stays held but untracked.
func (l *Ledger) Fund(tx Tx, id uint64, amount, sentValue int64) (vrf.Event, error) {
	sub, err := l.Get(tx, id)
	if err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, svcerrors.ErrInvalidAmount
	}
	if sentValue < amount {
		return nil, svcerrors.ErrInsufficientValue.
			WithDetails("amount", amount).
			WithDetails("sent", sentValue)
	}
	totals := tx.Totals()
	if sub.Balance > math.MaxInt64-amount || totals.Held > math.MaxInt64-sentValue {
		return nil, svcerrors.ErrInvalidAmount.WithMessage("balance overflow")
	}

	old := sub.Balance
	sub.Balance += amount
	totals.Held += sentValue
	totals.Tracked += amount
	tx.PutSubscription(sub)
	tx.SetTotals(totals)

	return vrf.SubscriptionFunded{SubID: id, OldBalance: old, NewBalance: sub.Balance}, nil
}

// Cancel deletes subscription id and returns the balance to refund. It
// refuses while any request against the subscription is outstanding.
func (l *Ledger) Cancel(tx Tx, id uint64, to util.Uint160) (int64, vrf.Event, error) {
	sub, err := l.Get(tx, id)
	if err != nil {
		return 0, nil, err
	}
	if sub.PendingRequests > 0 {
		return 0, nil, svcerrors.ErrPendingRequestExists.
			WithDetails("sub_id", id).
			WithDetails("pending", sub.PendingRequests)
	}

	totals := tx.Totals()
	totals.Held -= sub.Balance
	totals.Tracked -= sub.Balance
	tx.SetTotals(totals)
	tx.DeleteSubscription(id)
	tx.DeleteNonces(id)

	return sub.Balance, vrf.SubscriptionCanceled{SubID: id, To: to, Amount: sub.Balance}, nil
}

// RecoverFunds releases the held value no balance accounts for.
func (l *Ledger) RecoverFunds(tx Tx, to util.Uint160) (int64, vrf.Event) {
	totals := tx.Totals()
	amount := totals.Unaccounted()
	totals.Held = totals.Tracked
	tx.SetTotals(totals)
	return amount, vrf.FundsRecovered{To: to, Amount: amount}
}

// =============================================================================
// Consumers and ownership
// =============================================================================

// AddConsumer authorizes consumer on subscription id. Adding a consumer
// that is already present changes nothing and returns a nil event.
func (l *Ledger) AddConsumer(tx Tx, caller util.Uint160, id uint64, consumer util.Uint160) (vrf.Event, error) {
	sub, err := l.Owned(tx, caller, id)
	if err != nil {
		return nil, err
	}
	if sub.HasConsumer(consumer) {
		return nil, nil
	}
	if len(sub.Consumers) >= l.maxConsumers {
		return nil, svcerrors.ErrTooManyConsumers.WithDetails("max", l.maxConsumers)
	}

	sub.Consumers = append(sub.Consumers, consumer)
	tx.PutSubscription(sub)
	// A re-added consumer keeps its nonce so it never repeats a request id.
	if _, ok := tx.Nonce(id, consumer); !ok {
		tx.SetNonce(id, consumer, 1)
	}
	return vrf.SubscriptionConsumerAdded{SubID: id, Consumer: consumer}, nil
}

// RemoveConsumer revokes consumer from subscription id.
func (l *Ledger) RemoveConsumer(tx Tx, caller util.Uint160, id uint64, consumer util.Uint160) (vrf.Event, error) {
	sub, err := l.Owned(tx, caller, id)
	if err != nil {
		return nil, err
	}
	if !sub.HasConsumer(consumer) {
		return nil, svcerrors.ErrConsumerNotFound.WithDetails("consumer", consumer.StringLE())
	}

	sub.Consumers = slices.DeleteFunc(sub.Consumers, func(c util.Uint160) bool { return c == consumer })
	tx.PutSubscription(sub)
	return vrf.SubscriptionConsumerRemoved{SubID: id, Consumer: consumer}, nil
}

// RequestOwnerTransfer records newOwner as the pending owner. Repeating the
// current request changes nothing.
func (l *Ledger) RequestOwnerTransfer(tx Tx, caller util.Uint160, id uint64, newOwner util.Uint160) (vrf.Event, error) {
	sub, err := l.Owned(tx, caller, id)
	if err != nil {
		return nil, err
	}
	if sub.PendingOwner == newOwner {
		return nil, nil
	}
	sub.PendingOwner = newOwner
	tx.PutSubscription(sub)
	return vrf.SubscriptionOwnerTransferRequested{SubID: id, From: caller, To: newOwner}, nil
}

// AcceptOwnerTransfer completes a transfer started by the current owner.
func (l *Ledger) AcceptOwnerTransfer(tx Tx, caller util.Uint160, id uint64) (vrf.Event, error) {
	sub, err := l.Get(tx, id)
	if err != nil {
		return nil, err
	}
	if !sub.HasPendingOwner() || sub.PendingOwner != caller {
		return nil, svcerrors.ErrMustBeRequestedOwner.WithDetails("sub_id", id)
	}
	from := sub.Owner
	sub.Owner = caller
	sub.PendingOwner = util.Uint160{}
	tx.PutSubscription(sub)
	return vrf.SubscriptionOwnerTransferred{SubID: id, From: from, To: caller}, nil
}

// =============================================================================
// Request accounting
// =============================================================================

// NextNonce advances and returns the nonce of consumer on subscription id.
func (l *Ledger) NextNonce(tx Tx, id uint64, consumer util.Uint160) uint64 {
	n, _ := tx.Nonce(id, consumer)
	n++
	tx.SetNonce(id, consumer, n)
	return n
}

// MarkRequested records one more outstanding request against sub.
func (l *Ledger) MarkRequested(tx Tx, sub vrf.Subscription) {
	sub.PendingRequests++
	tx.PutSubscription(sub)
}

// Charge settles one fulfillment: it debits payment from subscription id,
// closes one outstanding request and credits payment to oracle.
func (l *Ledger) Charge(tx Tx, id uint64, oracle util.Uint160, payment int64) error {
	sub, err := l.Get(tx, id)
	if err != nil {
		return err
	}
	if sub.Balance < payment {
		return svcerrors.ErrInsufficientBalance.
			WithDetails("balance", sub.Balance).
			WithDetails("payment", payment)
	}
	credited, _ := tx.Withdrawable(oracle)
	if credited > math.MaxInt64-payment {
		return svcerrors.ErrPaymentTooLarge
	}

	sub.Balance -= payment
	sub.RequestCount++
	if sub.PendingRequests > 0 {
		sub.PendingRequests--
	}
	tx.PutSubscription(sub)
	tx.SetWithdrawable(oracle, credited+payment)
	return nil
}

// Withdraw debits amount from the withdrawable balance of holder. A holder
// with no record at all is reported as ok=false.
func (l *Ledger) Withdraw(tx Tx, holder util.Uint160, amount int64) (ok bool, err error) {
	balance, ok := tx.Withdrawable(holder)
	if !ok {
		return false, nil
	}
	if amount < 0 {
		return true, svcerrors.ErrInvalidAmount
	}
	if balance < amount {
		return true, svcerrors.ErrInsufficientBalance.
			WithDetails("balance", balance).
			WithDetails("amount", amount)
	}
	tx.SetWithdrawable(holder, balance-amount)
	totals := tx.Totals()
	totals.Held -= amount
	totals.Tracked -= amount
	tx.SetTotals(totals)
	return true, nil
}

package coordinator

import (
	"context"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
)

// CreateSubscription opens a subscription owned by caller.
func (c *Coordinator) CreateSubscription(ctx context.Context, caller util.Uint160) (uint64, error) {
	var id uint64
	err := c.run(ctx, "create_subscription", func(tx storage.Tx, out *events) error {
		var ev vrf.Event
		id, ev = c.ledger.Create(tx, caller)
		out.add(ev)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CreateSubscriptionWithConsumers opens a subscription owned by caller and
// adds consumers to it in the same transaction. Nothing is created if any
// consumer is rejected.
func (c *Coordinator) CreateSubscriptionWithConsumers(ctx context.Context, caller util.Uint160, consumers ...util.Uint160) (uint64, error) {
	var id uint64
	err := c.run(ctx, "create_subscription", func(tx storage.Tx, out *events) error {
		var ev vrf.Event
		id, ev = c.ledger.Create(tx, caller)
		out.add(ev)
		for _, consumer := range consumers {
			ev, err := c.ledger.AddConsumer(tx, caller, id, consumer)
			if err != nil {
				return err
			}
			out.add(ev)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Fund credits amount to subscription subID. sentValue is the value that
// accompanied the call; any excess over amount is recoverable by the
// operator.
func (c *Coordinator) Fund(ctx context.Context, subID uint64, amount, sentValue int64) error {
	return c.run(ctx, "fund", func(tx storage.Tx, out *events) error {
		ev, err := c.ledger.Fund(tx, subID, amount, sentValue)
		out.add(ev)
		return err
	})
}

// AddConsumer authorizes consumer to request against subID.
func (c *Coordinator) AddConsumer(ctx context.Context, caller util.Uint160, subID uint64, consumer util.Uint160) error {
	return c.run(ctx, "add_consumer", func(tx storage.Tx, out *events) error {
		ev, err := c.ledger.AddConsumer(tx, caller, subID, consumer)
		out.add(ev)
		return err
	})
}

// RemoveConsumer revokes consumer from subID.
func (c *Coordinator) RemoveConsumer(ctx context.Context, caller util.Uint160, subID uint64, consumer util.Uint160) error {
	return c.run(ctx, "remove_consumer", func(tx storage.Tx, out *events) error {
		ev, err := c.ledger.RemoveConsumer(tx, caller, subID, consumer)
		out.add(ev)
		return err
	})
}

// RequestSubscriptionOwnerTransfer starts handing subID to newOwner.
func (c *Coordinator) RequestSubscriptionOwnerTransfer(ctx context.Context, caller util.Uint160, subID uint64, newOwner util.Uint160) error {
	return c.run(ctx, "request_owner_transfer", func(tx storage.Tx, out *events) error {
		ev, err := c.ledger.RequestOwnerTransfer(tx, caller, subID, newOwner)
		out.add(ev)
		return err
	})
}

// AcceptSubscriptionOwnerTransfer completes a pending transfer to caller.
func (c *Coordinator) AcceptSubscriptionOwnerTransfer(ctx context.Context, caller util.Uint160, subID uint64) error {
	return c.run(ctx, "accept_owner_transfer", func(tx storage.Tx, out *events) error {
		ev, err := c.ledger.AcceptOwnerTransfer(tx, caller, subID)
		out.add(ev)
		return err
	})
}

// CancelSubscription deletes subID and refunds its balance to to. Only the
// owner may cancel, and only with no outstanding requests.
func (c *Coordinator) CancelSubscription(ctx context.Context, caller util.Uint160, subID uint64, to util.Uint160) error {
	return c.run(ctx, "cancel_subscription", func(tx storage.Tx, out *events) error {
		if _, err := c.ledger.Owned(tx, caller, subID); err != nil {
			return err
		}
		return c.cancel(ctx, tx, out, subID, to)
	})
}

// OwnerCancelSubscription lets the operator cancel subID, refunding its
// owner.
func (c *Coordinator) OwnerCancelSubscription(ctx context.Context, caller util.Uint160, subID uint64) error {
	return c.run(ctx, "owner_cancel_subscription", func(tx storage.Tx, out *events) error {
		if err := c.requireOperator(caller); err != nil {
			return err
		}
		sub, err := c.ledger.Get(tx, subID)
		if err != nil {
			return err
		}
		return c.cancel(ctx, tx, out, subID, sub.Owner)
	})
}

func (c *Coordinator) cancel(ctx context.Context, tx storage.Tx, out *events, subID uint64, to util.Uint160) error {
	amount, ev, err := c.ledger.Cancel(tx, subID, to)
	if err != nil {
		return err
	}
	if err := c.settlement.Transfer(ctx, to, amount); err != nil {
		return err
	}
	out.add(ev)
	return nil
}

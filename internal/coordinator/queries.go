package coordinator

import (
	"context"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/crypto"
	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	"github.com/R3E-Network/vrf_coordinator/internal/fee"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
)

// GetConfig returns the current configuration.
func (c *Coordinator) GetConfig(ctx context.Context) (vrf.GlobalConfig, error) {
	var cfg vrf.GlobalConfig
	err := c.store.View(ctx, func(tx storage.Tx) error {
		var err error
		cfg, err = config(tx)
		return err
	})
	return cfg, err
}

// GetSubscription returns subscription subID.
func (c *Coordinator) GetSubscription(ctx context.Context, subID uint64) (vrf.Subscription, error) {
	var sub vrf.Subscription
	err := c.store.View(ctx, func(tx storage.Tx) error {
		var err error
		sub, err = c.ledger.Get(tx, subID)
		return err
	})
	return sub, err
}

// PendingRequestExists reports whether subID has outstanding requests.
func (c *Coordinator) PendingRequestExists(ctx context.Context, subID uint64) (bool, error) {
	sub, err := c.GetSubscription(ctx, subID)
	if err != nil {
		return false, err
	}
	return sub.PendingRequests > 0, nil
}

// GetProvingKey returns the key registered under keyHash.
func (c *Coordinator) GetProvingKey(ctx context.Context, keyHash util.Uint256) (vrf.ProvingKey, error) {
	var key vrf.ProvingKey
	err := c.store.View(ctx, func(tx storage.Tx) error {
		var err error
		key, err = c.keys.Lookup(tx, keyHash)
		return err
	})
	return key, err
}

// ProvingKeyHashes lists registered keys in registration order.
func (c *Coordinator) ProvingKeyHashes(ctx context.Context) ([]util.Uint256, error) {
	var hashes []util.Uint256
	err := c.store.View(ctx, func(tx storage.Tx) error {
		hashes = tx.ProvingKeyHashes()
		return nil
	})
	return hashes, err
}

// HashOfKey returns the registry identifier of publicKey.
func (c *Coordinator) HashOfKey(publicKey []byte) util.Uint256 {
	return c.keys.HashOfKey(publicKey)
}

// ComputeRequestID derives the id and pre-seed of the nonce-th request of
// sender against subID.
func (c *Coordinator) ComputeRequestID(keyHash util.Uint256, sender util.Uint160, subID, nonce uint64) (requestID, preSeed util.Uint256) {
	return crypto.ComputeRequestID(keyHash, sender, subID, nonce)
}

// CommitmentOf returns the stored commitment of requestID, if outstanding.
func (c *Coordinator) CommitmentOf(ctx context.Context, requestID util.Uint256) (util.Uint256, bool, error) {
	var (
		h  util.Uint256
		ok bool
	)
	err := c.store.View(ctx, func(tx storage.Tx) error {
		h, ok = tx.Commitment(requestID)
		return nil
	})
	return h, ok, err
}

// Nonce returns the current nonce of consumer on subID.
func (c *Coordinator) Nonce(ctx context.Context, subID uint64, consumer util.Uint160) (uint64, error) {
	var n uint64
	err := c.store.View(ctx, func(tx storage.Tx) error {
		n, _ = tx.Nonce(subID, consumer)
		return nil
	})
	return n, err
}

// Withdrawable returns the balance addr may withdraw.
func (c *Coordinator) Withdrawable(ctx context.Context, addr util.Uint160) (int64, error) {
	var amount int64
	err := c.store.View(ctx, func(tx storage.Tx) error {
		amount, _ = tx.Withdrawable(addr)
		return nil
	})
	return amount, err
}

// Totals returns the held and tracked value.
func (c *Coordinator) Totals(ctx context.Context) (vrf.Totals, error) {
	var t vrf.Totals
	err := c.store.View(ctx, func(tx storage.Tx) error {
		t = tx.Totals()
		return nil
	})
	return t, err
}

// FeeTier returns the flat fee of a subscription with requestCount
// completed requests under the current configuration.
func (c *Coordinator) FeeTier(ctx context.Context, requestCount uint64) (uint32, error) {
	cfg, err := c.GetConfig(ctx)
	if err != nil {
		return 0, err
	}
	return fee.New(cfg.FeeTiers).FeeTier(requestCount), nil
}

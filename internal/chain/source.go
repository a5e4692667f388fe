// Package chain supplies block heights and block hashes to the coordinator.
package chain

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/util"

	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
)

// Source reports the current block height and the hash of past blocks.
// BlockHash returns errors.ErrBlockhashNotFound when the hash of height is
// not (or no longer) available.
type Source interface {
	BlockHeight(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, height uint64) (util.Uint256, error)
}

// Counter is an explicit, locally advanced block clock. Block hashes are
// derived from the height and a salt, and only the most recent window
// blocks stay available.
type Counter struct {
	mu     sync.RWMutex
	height uint64
	window uint64
	salt   []byte
}

// NewCounter starts at height 0. A zero window keeps every hash.
func NewCounter(window uint64, salt []byte) *Counter {
	return &Counter{window: window, salt: append([]byte(nil), salt...)}
}

// Advance moves the clock forward by n blocks and returns the new height.
func (c *Counter) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
	return c.height
}

// BlockHeight implements Source.
func (c *Counter) BlockHeight(context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height, nil
}

// BlockHash implements Source.
func (c *Counter) BlockHash(_ context.Context, height uint64) (util.Uint256, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height > c.height || (c.window > 0 && c.height-height > c.window) {
		return util.Uint256{}, svcerrors.ErrBlockhashNotFound.WithDetails("height", height)
	}
	buf := binary.BigEndian.AppendUint64(append([]byte(nil), c.salt...), height)
	return hash.Sha256(buf), nil
}

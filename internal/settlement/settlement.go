// Package settlement moves value out of the coordinator to external
// addresses.
package settlement

import (
	"context"
	"math"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/util"

	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
)

// Settlement transfers amount to an address. Implementations must either
// complete the transfer or return an error.
type Settlement interface {
	Transfer(ctx context.Context, to util.Uint160, amount int64) error
}

// Memory records transfers as balances, standing in for the host ledger.
type Memory struct {
	mu       sync.RWMutex
	balances map[util.Uint160]int64
}

var _ Settlement = (*Memory)(nil)

// NewMemory returns an empty in-memory settlement layer.
func NewMemory() *Memory {
	return &Memory{balances: make(map[util.Uint160]int64)}
}

// Transfer implements Settlement.
func (m *Memory) Transfer(ctx context.Context, to util.Uint160, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount < 0 {
		return svcerrors.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[to] > math.MaxInt64-amount {
		return svcerrors.ErrInvalidAmount.WithMessage("balance overflow")
	}
	m.balances[to] += amount
	return nil
}

// BalanceOf returns what has been transferred to addr so far.
func (m *Memory) BalanceOf(addr util.Uint160) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[addr]
}

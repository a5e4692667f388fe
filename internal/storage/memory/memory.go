// Package memory is the in-process implementation of storage.Store.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
)

type nonceKey struct {
	subID    uint64
	consumer util.Uint160
}

// scalars is the non-keyed part of the state; a transaction works on a copy.
type scalars struct {
	config        vrf.GlobalConfig
	configSet     bool
	lastSubID     uint64
	totals        vrf.Totals
	keyOrder      []util.Uint256
	wrapperConfig vrf.WrapperConfig
	wrapperSet    bool
	wrapper       storage.WrapperState
}

// Store keeps all state in maps guarded by a single lock. Writers are
// serialized; readers share the lock.
type Store struct {
	mu sync.RWMutex

	scalars       scalars
	subscriptions map[uint64]vrf.Subscription
	nonces        map[nonceKey]uint64
	withdrawable  map[util.Uint160]int64
	provingKeys   map[util.Uint256]vrf.ProvingKey
	commitments   map[util.Uint256]util.Uint256
	callbacks     map[util.Uint256]vrf.Callback
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		subscriptions: make(map[uint64]vrf.Subscription),
		nonces:        make(map[nonceKey]uint64),
		withdrawable:  make(map[util.Uint160]int64),
		provingKeys:   make(map[util.Uint256]vrf.ProvingKey),
		commitments:   make(map[util.Uint256]util.Uint256),
		callbacks:     make(map[util.Uint256]vrf.Callback),
	}
}

// Atomic implements storage.Store.
func (s *Store) Atomic(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.begin()
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View implements storage.Store.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.begin())
}

func (s *Store) begin() *tx {
	sc := s.scalars
	sc.keyOrder = slices.Clone(s.scalars.keyOrder)
	return &tx{
		store:         s,
		scalars:       sc,
		subscriptions: newLayer(s.subscriptions),
		nonces:        newLayer(s.nonces),
		withdrawable:  newLayer(s.withdrawable),
		provingKeys:   newLayer(s.provingKeys),
		commitments:   newLayer(s.commitments),
		callbacks:     newLayer(s.callbacks),
	}
}

type tx struct {
	store *Store

	scalars       scalars
	subscriptions *layer[uint64, vrf.Subscription]
	nonces        *layer[nonceKey, uint64]
	withdrawable  *layer[util.Uint160, int64]
	provingKeys   *layer[util.Uint256, vrf.ProvingKey]
	commitments   *layer[util.Uint256, util.Uint256]
	callbacks     *layer[util.Uint256, vrf.Callback]
}

func (t *tx) commit() {
	t.store.scalars = t.scalars
	t.subscriptions.commit()
	t.nonces.commit()
	t.withdrawable.commit()
	t.provingKeys.commit()
	t.commitments.commit()
	t.callbacks.commit()
}

// Config ----------------------------------------------------------------------

func (t *tx) Config() (vrf.GlobalConfig, bool) {
	return t.scalars.config, t.scalars.configSet
}

func (t *tx) SetConfig(cfg vrf.GlobalConfig) {
	t.scalars.config = cfg
	t.scalars.configSet = true
}

// Subscriptions ---------------------------------------------------------------

func (t *tx) NextSubscriptionID() uint64 {
	t.scalars.lastSubID++
	return t.scalars.lastSubID
}

func (t *tx) Subscription(id uint64) (vrf.Subscription, bool) {
	sub, ok := t.subscriptions.get(id)
	if !ok {
		return vrf.Subscription{}, false
	}
	return sub.Clone(), true
}

func (t *tx) PutSubscription(sub vrf.Subscription) {
	t.subscriptions.put(sub.ID, sub.Clone())
}

func (t *tx) DeleteSubscription(id uint64) {
	t.subscriptions.del(id)
}

func (t *tx) ListSubscriptions() []vrf.Subscription {
	var out []vrf.Subscription
	t.subscriptions.each(func(_ uint64, sub vrf.Subscription) {
		out = append(out, sub.Clone())
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *tx) Nonce(subID uint64, consumer util.Uint160) (uint64, bool) {
	return t.nonces.get(nonceKey{subID: subID, consumer: consumer})
}

func (t *tx) SetNonce(subID uint64, consumer util.Uint160, nonce uint64) {
	t.nonces.put(nonceKey{subID: subID, consumer: consumer}, nonce)
}

func (t *tx) DeleteNonces(subID uint64) {
	var doomed []nonceKey
	t.nonces.each(func(k nonceKey, _ uint64) {
		if k.subID == subID {
			doomed = append(doomed, k)
		}
	})
	for _, k := range doomed {
		t.nonces.del(k)
	}
}

// Balances --------------------------------------------------------------------

func (t *tx) Totals() vrf.Totals {
	return t.scalars.totals
}

func (t *tx) SetTotals(totals vrf.Totals) {
	t.scalars.totals = totals
}

func (t *tx) Withdrawable(addr util.Uint160) (int64, bool) {
	return t.withdrawable.get(addr)
}

func (t *tx) SetWithdrawable(addr util.Uint160, amount int64) {
	t.withdrawable.put(addr, amount)
}

func (t *tx) ListWithdrawable() map[util.Uint160]int64 {
	out := make(map[util.Uint160]int64)
	t.withdrawable.each(func(k util.Uint160, v int64) { out[k] = v })
	return out
}

// Proving keys ----------------------------------------------------------------

func (t *tx) ProvingKey(keyHash util.Uint256) (vrf.ProvingKey, bool) {
	key, ok := t.provingKeys.get(keyHash)
	if !ok {
		return vrf.ProvingKey{}, false
	}
	key.PublicKey = slices.Clone(key.PublicKey)
	return key, true
}

func (t *tx) PutProvingKey(key vrf.ProvingKey) {
	if _, exists := t.provingKeys.get(key.Hash); !exists {
		t.scalars.keyOrder = append(t.scalars.keyOrder, key.Hash)
	}
	key.PublicKey = slices.Clone(key.PublicKey)
	t.provingKeys.put(key.Hash, key)
}

func (t *tx) DeleteProvingKey(keyHash util.Uint256) {
	t.provingKeys.del(keyHash)
	t.scalars.keyOrder = slices.DeleteFunc(t.scalars.keyOrder, func(h util.Uint256) bool {
		return h == keyHash
	})
}

func (t *tx) ProvingKeyHashes() []util.Uint256 {
	return slices.Clone(t.scalars.keyOrder)
}

// Commitments -----------------------------------------------------------------

func (t *tx) Commitment(requestID util.Uint256) (util.Uint256, bool) {
	return t.commitments.get(requestID)
}

func (t *tx) PutCommitment(requestID, commitment util.Uint256) {
	t.commitments.put(requestID, commitment)
}

func (t *tx) DeleteCommitment(requestID util.Uint256) {
	t.commitments.del(requestID)
}

func (t *tx) CommitmentCount() int {
	return t.commitments.len()
}

// Wrapper ---------------------------------------------------------------------

func (t *tx) WrapperConfig() (vrf.WrapperConfig, bool) {
	return t.scalars.wrapperConfig, t.scalars.wrapperSet
}

func (t *tx) SetWrapperConfig(cfg vrf.WrapperConfig) {
	t.scalars.wrapperConfig = cfg
	t.scalars.wrapperSet = true
}

func (t *tx) WrapperState() storage.WrapperState {
	return t.scalars.wrapper
}

func (t *tx) SetWrapperState(st storage.WrapperState) {
	t.scalars.wrapper = st
}

func (t *tx) Callback(requestID util.Uint256) (vrf.Callback, bool) {
	return t.callbacks.get(requestID)
}

func (t *tx) PutCallback(cb vrf.Callback) {
	t.callbacks.put(cb.RequestID, cb)
}

func (t *tx) DeleteCallback(requestID util.Uint256) {
	t.callbacks.del(requestID)
}

func (t *tx) CallbackCount() int {
	return t.callbacks.len()
}

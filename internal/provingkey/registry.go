// Package provingkey maintains the registry binding proving keys to the
// oracles allowed to fulfill with them.
package provingkey

import (
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/vrf_coordinator/internal/crypto"
	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
	"github.com/R3E-Network/vrf_coordinator/internal/storage"
)

// Registry applies key registrations. Operator checks belong to the caller.
type Registry struct{}

// New returns a Registry.
func New() *Registry {
	return &Registry{}
}

// HashOfKey returns the identifier of publicKey.
func (r *Registry) HashOfKey(publicKey []byte) util.Uint256 {
	return crypto.HashOfKey(publicKey)
}

// Register binds publicKey to oracle. globalMaxGasPrice is the configured
// ceiling for any key.
func (r *Registry) Register(tx storage.ProvingKeyTx, oracle util.Uint160, publicKey []byte, maxGasPrice, globalMaxGasPrice int64) (vrf.Event, error) {
	if len(publicKey) == 0 {
		return nil, svcerrors.ErrInvalidConfig.WithMessage("empty public key")
	}
	keyHash := r.HashOfKey(publicKey)
	if existing, ok := tx.ProvingKey(keyHash); ok {
		return nil, svcerrors.ErrProvingKeyAlreadyRegistered.WithDetails("oracle", existing.Oracle.StringLE())
	}
	if maxGasPrice < 0 || maxGasPrice > globalMaxGasPrice {
		return nil, svcerrors.ErrGasPriceOverRange.
			WithDetails("max_gas_price", maxGasPrice).
			WithDetails("ceiling", globalMaxGasPrice)
	}

	tx.PutProvingKey(vrf.ProvingKey{
		Hash:        keyHash,
		PublicKey:   publicKey,
		Oracle:      oracle,
		MaxGasPrice: maxGasPrice,
	})
	return vrf.ProvingKeyRegistered{KeyHash: keyHash, Oracle: oracle, MaxGasPrice: maxGasPrice}, nil
}

// Deregister removes publicKey from the registry.
func (r *Registry) Deregister(tx storage.ProvingKeyTx, publicKey []byte) (vrf.Event, error) {
	keyHash := r.HashOfKey(publicKey)
	key, ok := tx.ProvingKey(keyHash)
	if !ok {
		return nil, svcerrors.ErrNoSuchProvingKey.WithDetails("key_hash", keyHash.StringLE())
	}
	tx.DeleteProvingKey(keyHash)
	return vrf.ProvingKeyDeregistered{KeyHash: keyHash, Oracle: key.Oracle}, nil
}

// Lookup returns the key registered under keyHash.
func (r *Registry) Lookup(tx storage.ProvingKeyTx, keyHash util.Uint256) (vrf.ProvingKey, error) {
	key, ok := tx.ProvingKey(keyHash)
	if !ok {
		return vrf.ProvingKey{}, svcerrors.ErrNoSuchProvingKey.WithDetails("key_hash", keyHash.StringLE())
	}
	return key, nil
}

// IsOracle reports whether addr owns any registered key.
func (r *Registry) IsOracle(tx storage.ProvingKeyTx, addr util.Uint160) bool {
	for _, h := range tx.ProvingKeyHashes() {
		if key, ok := tx.ProvingKey(h); ok && key.Oracle == addr {
			return true
		}
	}
	return false
}

// Package crypto implements the hashing and proof primitives of the
// coordinator: key hashes, request ids, commitments, seeds and word
// derivation, plus the injected proof verification capability.
package crypto

import (
	"encoding/binary"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"golang.org/x/crypto/sha3"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
)

// Keccak256 hashes the concatenation of parts.
func Keccak256(parts ...[]byte) util.Uint256 {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out util.Uint256
	copy(out[:], h.Sum(nil))
	return out
}

// HashOfKey returns the registry identifier of a proving key.
func HashOfKey(publicKey []byte) util.Uint256 {
	return Keccak256(publicKey)
}

// ComputeRequestID derives the pre-seed and request id of the nonce-th
// request made by sender against subID with keyHash.
func ComputeRequestID(keyHash util.Uint256, sender util.Uint160, subID, nonce uint64) (requestID, preSeed util.Uint256) {
	preSeed = Keccak256(keyHash.BytesBE(), sender.BytesBE(), u64(subID), u64(nonce))
	return RequestID(keyHash, preSeed), preSeed
}

// RequestID derives the request id a fulfillment of preSeed refers to.
func RequestID(keyHash, preSeed util.Uint256) util.Uint256 {
	return Keccak256(keyHash.BytesBE(), preSeed.BytesBE())
}

// Commitment hashes the immutable parameters of a request.
func Commitment(requestID util.Uint256, rec vrf.RequestRecord) util.Uint256 {
	return Keccak256(
		requestID.BytesBE(),
		u64(rec.BlockHeight),
		u64(rec.SubID),
		u32(rec.CallbackGasLimit),
		u32(rec.NumWords),
		rec.Consumer.BytesBE(),
	)
}

// Seed mixes the pre-seed with the hash of the request block.
func Seed(preSeed, blockHash util.Uint256) util.Uint256 {
	return Keccak256(preSeed.BytesBE(), blockHash.BytesBE())
}

// RandomWords expands a verified output into n words.
func RandomWords(output util.Uint256, n uint32) []*big.Int {
	words := make([]*big.Int, n)
	for i := uint32(0); i < n; i++ {
		w := Keccak256(output.BytesBE(), u32(i))
		words[i] = new(big.Int).SetBytes(w.BytesBE())
	}
	return words
}

func u64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func u32(v uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, v)
}

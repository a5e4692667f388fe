package crypto

import (
	"context"
	"math/big"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/vrf_coordinator/internal/domain/vrf"
	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
)

func TestKeccak256KnownVector(t *testing.T) {
	// keccak256("") as used by Ethereum tooling.
	want, err := util.Uint256DecodeStringBE("c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470")
	require.NoError(t, err)
	assert.Equal(t, want, Keccak256())
	assert.Equal(t, want, Keccak256(nil, []byte{}))
}

func TestComputeRequestIDDependsOnEveryInput(t *testing.T) {
	keyHash := Keccak256([]byte("key"))
	sender := util.Uint160{1}

	id, preSeed := ComputeRequestID(keyHash, sender, 1, 2)
	again, againSeed := ComputeRequestID(keyHash, sender, 1, 2)
	assert.Equal(t, id, again)
	assert.Equal(t, preSeed, againSeed)
	assert.Equal(t, Keccak256(keyHash.BytesBE(), preSeed.BytesBE()), id)

	other, _ := ComputeRequestID(keyHash, sender, 1, 3)
	assert.NotEqual(t, id, other)
	other, _ = ComputeRequestID(keyHash, sender, 2, 2)
	assert.NotEqual(t, id, other)
	other, _ = ComputeRequestID(keyHash, util.Uint160{2}, 1, 2)
	assert.NotEqual(t, id, other)
	other, _ = ComputeRequestID(Keccak256([]byte("other")), sender, 1, 2)
	assert.NotEqual(t, id, other)
}

func TestCommitmentBindsRecord(t *testing.T) {
	id := Keccak256([]byte("request"))
	rec := vrf.RequestRecord{BlockHeight: 10, SubID: 1, CallbackGasLimit: 100000, NumWords: 2, Consumer: util.Uint160{9}}
	base := Commitment(id, rec)

	mutations := []vrf.RequestRecord{rec, rec, rec, rec, rec}
	mutations[0].BlockHeight++
	mutations[1].SubID++
	mutations[2].CallbackGasLimit++
	mutations[3].NumWords++
	mutations[4].Consumer = util.Uint160{8}
	for i, m := range mutations {
		assert.NotEqual(t, base, Commitment(id, m), "mutation %d", i)
	}
	assert.NotEqual(t, base, Commitment(Keccak256([]byte("x")), rec))
}

func TestRandomWords(t *testing.T) {
	out := Keccak256([]byte("output"))
	words := RandomWords(out, 3)
	require.Len(t, words, 3)
	for i, w := range words {
		assert.Equal(t, new(big.Int).SetBytes(Keccak256(out.BytesBE(), []byte{0, 0, 0, byte(i)}).BytesBE()), w)
	}
	assert.NotEqual(t, words[0], words[1])
	assert.Empty(t, RandomWords(out, 0))
}

// =============================================================================
// Signature proofs
// =============================================================================

func TestSignatureVerifierRoundTrip(t *testing.T) {
	prover, err := GenerateProver()
	require.NoError(t, err)

	seed := Seed(Keccak256([]byte("pre")), Keccak256([]byte("block")))
	proof := prover.Prove(seed)

	v := NewSignatureVerifier()
	out, err := v.Verify(context.Background(), prover.PublicKey(), seed, proof)
	require.NoError(t, err)
	assert.Equal(t, Keccak256(proof), out)

	// RFC 6979 signatures are deterministic, so the output is too.
	assert.Equal(t, proof, prover.Prove(seed))

	addr, err := OracleAddress(prover.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, prover.Address(), addr)
	assert.Equal(t, HashOfKey(prover.PublicKey()), prover.KeyHash())
}

func TestSignatureVerifierRejects(t *testing.T) {
	prover, err := GenerateProver()
	require.NoError(t, err)
	stranger, err := GenerateProver()
	require.NoError(t, err)

	seed := Keccak256([]byte("seed"))
	v := NewSignatureVerifier()
	ctx := context.Background()

	_, err = v.Verify(ctx, prover.PublicKey(), Keccak256([]byte("other")), prover.Prove(seed))
	assert.ErrorIs(t, err, svcerrors.ErrInvalidProof)

	_, err = v.Verify(ctx, prover.PublicKey(), seed, stranger.Prove(seed))
	assert.ErrorIs(t, err, svcerrors.ErrInvalidProof)

	_, err = v.Verify(ctx, []byte{1, 2, 3}, seed, prover.Prove(seed))
	assert.ErrorIs(t, err, svcerrors.ErrInvalidProof)

	_, err = v.Verify(ctx, prover.PublicKey(), seed, nil)
	assert.ErrorIs(t, err, svcerrors.ErrInvalidProof)

	_, err = v.Verify(ctx, prover.PublicKey(), seed, prover.Prove(seed)[:63])
	assert.ErrorIs(t, err, svcerrors.ErrInvalidProof)
}

func TestSignatureVerifierFoldsHighS(t *testing.T) {
	prover, err := GenerateProver()
	require.NoError(t, err)
	seed := Seed(Keccak256([]byte("pre")), Keccak256([]byte("block")))

	proof := prover.Prove(seed)
	s := new(big.Int).SetBytes(proof[32:])
	require.LessOrEqual(t, s.Cmp(halfOrder), 0)

	// Same r with N-s is also a valid signature of the seed.
	flipped := make([]byte, len(proof))
	copy(flipped, proof[:32])
	new(big.Int).Sub(curveOrder, s).FillBytes(flipped[32:])
	require.NotEqual(t, proof, flipped)

	v := NewSignatureVerifier()
	ctx := context.Background()
	out, err := v.Verify(ctx, prover.PublicKey(), seed, proof)
	require.NoError(t, err)
	alt, err := v.Verify(ctx, prover.PublicKey(), seed, flipped)
	require.NoError(t, err)
	assert.Equal(t, out, alt)
	assert.Equal(t, Keccak256(proof), out)
}

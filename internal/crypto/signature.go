package crypto

import (
	"context"
	"crypto/elliptic"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"

	svcerrors "github.com/R3E-Network/vrf_coordinator/internal/errors"
)

// Verifier authenticates a proof of seed under publicKey and returns the
// random output it commits to.
type Verifier interface {
	Verify(ctx context.Context, publicKey []byte, seed util.Uint256, proof []byte) (util.Uint256, error)
}

// signatureLen is the size of an r||s secp256r1 signature.
const signatureLen = 64

var (
	curveOrder = elliptic.P256().Params().N
	halfOrder  = new(big.Int).Rsh(curveOrder, 1)
)

// SignatureVerifier treats the proof as a deterministic secp256r1 signature
// over the seed. The output is the Keccak-256 of the signature in low-S
// form, so (r, s) and (r, N-s) yield the same output.
type SignatureVerifier struct{}

// NewSignatureVerifier returns a SignatureVerifier.
func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{}
}

// Verify implements Verifier.
func (SignatureVerifier) Verify(_ context.Context, publicKey []byte, seed util.Uint256, proof []byte) (util.Uint256, error) {
	pub, err := keys.NewPublicKeyFromBytes(publicKey, elliptic.P256())
	if err != nil {
		return util.Uint256{}, svcerrors.ErrInvalidProof.WithMessage("malformed public key: %v", err)
	}
	if len(proof) != signatureLen {
		return util.Uint256{}, svcerrors.ErrInvalidProof.WithMessage("proof must be %d bytes, got %d", signatureLen, len(proof))
	}
	digest := hash.Sha256(seed.BytesBE())
	if !pub.Verify(proof, digest.BytesBE()) {
		return util.Uint256{}, svcerrors.ErrInvalidProof
	}
	return Keccak256(lowS(proof)), nil
}

// lowS returns sig with s replaced by N-s when s is in the upper half of
// the curve order.
func lowS(sig []byte) []byte {
	s := new(big.Int).SetBytes(sig[32:])
	if s.Cmp(halfOrder) <= 0 {
		return sig
	}
	out := make([]byte, signatureLen)
	copy(out, sig[:32])
	new(big.Int).Sub(curveOrder, s).FillBytes(out[32:])
	return out
}

// OracleAddress returns the script hash of a proving key, the address an
// oracle uses when it registers with that key.
func OracleAddress(publicKey []byte) (util.Uint160, error) {
	pub, err := keys.NewPublicKeyFromBytes(publicKey, elliptic.P256())
	if err != nil {
		return util.Uint160{}, err
	}
	return pub.GetScriptHash(), nil
}

// Prover produces proofs accepted by SignatureVerifier.
type Prover struct {
	key *keys.PrivateKey
}

// NewProver wraps an existing private key.
func NewProver(key *keys.PrivateKey) *Prover {
	return &Prover{key: key}
}

// GenerateProver creates a prover with a fresh key.
func GenerateProver() (*Prover, error) {
	key, err := keys.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &Prover{key: key}, nil
}

// PublicKey returns the compressed public key.
func (p *Prover) PublicKey() []byte {
	return p.key.PublicKey().Bytes()
}

// KeyHash returns the registry identifier of the prover's key.
func (p *Prover) KeyHash() util.Uint256 {
	return HashOfKey(p.PublicKey())
}

// Address returns the script hash of the prover's key.
func (p *Prover) Address() util.Uint160 {
	return p.key.GetScriptHash()
}

// Prove signs seed and returns the signature in low-S form.
func (p *Prover) Prove(seed util.Uint256) []byte {
	return lowS(p.key.Sign(seed.BytesBE()))
}

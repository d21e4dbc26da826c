// primitives.go - Cryptographic collaborators backing the withdrawal relation.
//
// The relation assumes only a two-input collision-resistant hash, a base-point
// scalar multiplication, and a bit decomposition. They are pluggable so the
// folding logic can be exercised against a trivial hash in tests; the defaults
// wire MiMC over the BW6-761 scalar field and BLS12-377 G1, matching the
// in-circuit gadgets.

package withdrawal

import (
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	bw6761_fr "github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
)

// TreeDepth is the fixed height of the commitment tree. Leaf positions are
// 32-bit indices and every sibling path carries exactly one value per level.
const TreeDepth = 32

// HashFunc is a two-input collision-resistant hash over the field.
type HashFunc func(a, b *big.Int) *big.Int

// ScalarMulFunc derives a public key by multiplying the fixed base point by
// secret, returning the affine coordinates.
type ScalarMulFunc func(secret *big.Int) (x, y *big.Int)

// DecomposeFunc expands a leaf index into TreeDepth binary digits, least
// significant first. The weighted sum of the digits must reconstruct the
// index; Evaluate rejects decompositions that do not.
type DecomposeFunc func(index uint32) [TreeDepth]uint8

// Primitives bundles the external collaborators consumed by the relation.
type Primitives struct {
	Hash      HashFunc
	ScalarMul ScalarMulFunc
	Decompose DecomposeFunc
}

// DefaultPrimitives returns the production collaborators: MiMC over the
// BW6-761 scalar field and BLS12-377 G1 base-point multiplication.
func DefaultPrimitives() Primitives {
	return Primitives{
		Hash:      MimcHash,
		ScalarMul: DerivePublicKey,
		Decompose: DecomposeIndex,
	}
}

// MimcHash computes MiMC(a, b) over the BW6-761 scalar field. Inputs are
// written as canonical field-element blocks so the digest matches the
// in-circuit MiMC gadget.
func MimcHash(a, b *big.Int) *big.Int {
	var ea, eb bw6761_fr.Element
	ea.SetBigInt(a)
	eb.SetBigInt(b)
	abuf := ea.Bytes()
	bbuf := eb.Bytes()
	h := mimcNative.NewMiMC()
	h.Write(abuf[:])
	h.Write(bbuf[:])
	return new(big.Int).SetBytes(h.Sum(nil))
}

// DerivePublicKey multiplies the BLS12-377 G1 generator by secret and returns
// the affine coordinates of the resulting point.
func DerivePublicKey(secret *big.Int) (x, y *big.Int) {
	g1Jac, _, _, _ := bls12377.Generators()
	var g, pk bls12377.G1Affine
	g.FromJacobian(&g1Jac)
	pk.ScalarMultiplication(&g, secret)
	xBytes := pk.X.Bytes()
	yBytes := pk.Y.Bytes()
	return new(big.Int).SetBytes(xBytes[:]), new(big.Int).SetBytes(yBytes[:])
}

// DecomposeIndex expands index into its 32 binary digits, least significant
// first.
func DecomposeIndex(index uint32) [TreeDepth]uint8 {
	var bits [TreeDepth]uint8
	for i := 0; i < TreeDepth; i++ {
		bits[i] = uint8((index >> uint(i)) & 1)
	}
	return bits
}

var (
	// fieldModulus bounds timestamps, siblings, and every hash input.
	fieldModulus = bw6761_fr.Modulus()
	// scalarModulus bounds the spender secret (BLS12-377 scalar field).
	scalarModulus = bls12377_fr.Modulus()
)

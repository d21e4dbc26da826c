package withdrawal

import (
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/sw_bls12377"
	"github.com/consensys/gnark/std/hash/mimc"
)

// Circuit is the provable form of the withdrawal relation: the prover knows
// (Index, Secret, Timestamp, SiblingPath) such that the leaf built from
// Secret and Timestamp folds through the sibling path to Root, and Nullifier
// equals MiMC(Secret, Index).
type Circuit struct {
	// Public inputs
	Root        frontend.Variable    `gnark:",public"`
	Nullifier   frontend.Variable    `gnark:",public"`
	Token       frontend.Variable    `gnark:",public"`
	AssetAmount frontend.Variable    `gnark:",public"`
	G           sw_bls12377.G1Affine `gnark:",public"` // Base point for key derivation

	// Private inputs
	Index       frontend.Variable
	Secret      frontend.Variable
	Timestamp   frontend.Variable
	SiblingPath [TreeDepth]frontend.Variable
}

// Define implements the relation constraints.
func (c *Circuit) Define(api frontend.API) error {
	// Index must fit 32 bits. ToBinary yields the digits least significant
	// first; bit i drives the left/right ordering at level i.
	bits := api.ToBinary(c.Index, TreeDepth)

	// pk = G^secret
	pk := new(sw_bls12377.G1Affine)
	pk.ScalarMul(api, c.G, c.Secret)

	// commitment = MiMC(pk.x, pk.y)
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	hasher.Write(pk.X, pk.Y)
	commitment := hasher.Sum()

	// leaf = MiMC(commitment, timestamp)
	hasher.Reset()
	hasher.Write(commitment, c.Timestamp)
	cur := hasher.Sum()

	// Fold the leaf through the sibling path. The accumulator goes left when
	// the index bit is 0, right when it is 1.
	for i := 0; i < TreeDepth; i++ {
		left := api.Select(bits[i], c.SiblingPath[i], cur)
		right := api.Select(bits[i], cur, c.SiblingPath[i])
		hasher.Reset()
		hasher.Write(left, right)
		cur = hasher.Sum()
	}
	api.AssertIsEqual(c.Root, cur)

	// nullifier = MiMC(secret, index), independent of the path branch
	hasher.Reset()
	hasher.Write(c.Secret, c.Index)
	api.AssertIsEqual(c.Nullifier, hasher.Sum())

	// Token and AssetAmount are part of the statement but no derivation step
	// consumes them; square them so their wires survive compilation. Binding
	// them to the withdrawal is left to the outer verifier contract.
	api.Mul(c.Token, c.Token)
	api.Mul(c.AssetAmount, c.AssetAmount)

	return nil
}

// BasePoint returns the BLS12-377 G1 generator in gnark form. All public keys
// are derived from this fixed point.
func BasePoint() sw_bls12377.G1Affine {
	g1Jac, _, _, _ := bls12377.Generators()
	var g bls12377.G1Affine
	g.FromJacobian(&g1Jac)
	xBytes := g.X.Bytes()
	yBytes := g.Y.Bytes()
	return sw_bls12377.G1Affine{
		X: new(big.Int).SetBytes(xBytes[:]),
		Y: new(big.Int).SetBytes(yBytes[:]),
	}
}

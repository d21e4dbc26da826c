package withdrawal

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func zeroPath() [TreeDepth]*big.Int {
	var path [TreeDepth]*big.Int
	for i := range path {
		path[i] = big.NewInt(0)
	}
	return path
}

func testWitness() Witness {
	return Witness{
		Index:       7,
		Secret:      big.NewInt(1234),
		Timestamp:   big.NewInt(1700000000),
		SiblingPath: zeroPath(),
	}
}

// mockPrimitives replaces the hash with an order-sensitive affine map so the
// exact left/right wiring of the fold is observable, and the scalar mul with
// a trivial coordinate pair.
func mockPrimitives() Primitives {
	shift := new(big.Int).Lsh(big.NewInt(1), 64)
	return Primitives{
		Hash: func(a, b *big.Int) *big.Int {
			out := new(big.Int).Mul(a, shift)
			return out.Add(out, b)
		},
		ScalarMul: func(secret *big.Int) (x, y *big.Int) {
			return new(big.Int).Set(secret), new(big.Int).Add(secret, big.NewInt(1))
		},
		Decompose: DecomposeIndex,
	}
}

func TestDecomposeIndexRoundTrip(t *testing.T) {
	for _, index := range []uint32{0, 1, 2, 7, 1 << 16, 0xdeadbeef, 1<<32 - 1} {
		bits := DecomposeIndex(index)
		var sum uint64
		for i, b := range bits {
			require.LessOrEqual(t, b, uint8(1), "bit %d of index %d", i, index)
			sum += uint64(b) << uint(i)
		}
		require.Equal(t, uint64(index), sum, "reconstruction of index %d", index)
	}
}

func TestEvaluateDeterminism(t *testing.T) {
	w := testWitness()
	first, err := Evaluate(w)
	require.NoError(t, err)
	second, err := Evaluate(w)
	require.NoError(t, err)
	require.Zero(t, first.Root.Cmp(second.Root))
	require.Zero(t, first.Nullifier.Cmp(second.Nullifier))
}

func TestFoldStepOrdering(t *testing.T) {
	p := mockPrimitives()
	cur := big.NewInt(3)
	sib := big.NewInt(5)

	left, err := p.FoldStep(cur, sib, 0)
	require.NoError(t, err)
	require.Zero(t, left.Cmp(p.Hash(cur, sib)), "bit 0 must keep the accumulator on the left")

	right, err := p.FoldStep(cur, sib, 1)
	require.NoError(t, err)
	require.Zero(t, right.Cmp(p.Hash(sib, cur)), "bit 1 must swap the accumulator to the right")

	require.NotZero(t, left.Cmp(right))
}

func TestFoldStepRejectsNonBinaryBit(t *testing.T) {
	p := DefaultPrimitives()
	_, err := p.FoldStep(big.NewInt(1), big.NewInt(2), 2)
	require.ErrorIs(t, err, ErrBitNotBinary)
}

func TestSwapOrderingChangesRoot(t *testing.T) {
	// Identical witnesses except for the position of the lowest bit: the same
	// leaf and siblings must fold to different roots when cur != sib.
	w0 := testWitness()
	w0.Index = 0
	w0.SiblingPath[0] = big.NewInt(42)
	w1 := w0
	w1.Index = 1

	out0, err := Evaluate(w0)
	require.NoError(t, err)
	out1, err := Evaluate(w1)
	require.NoError(t, err)
	require.NotZero(t, out0.Root.Cmp(out1.Root))
}

func TestPathSensitivity(t *testing.T) {
	w := testWitness()
	base, err := Evaluate(w)
	require.NoError(t, err)

	for _, level := range []int{0, 15, TreeDepth - 1} {
		mutated := w // the sibling array is copied by value
		mutated.SiblingPath[level] = big.NewInt(999)
		out, err := Evaluate(mutated)
		require.NoError(t, err)
		require.NotZero(t, base.Root.Cmp(out.Root), "changing sibling %d must change the root", level)
		require.Zero(t, base.Nullifier.Cmp(out.Nullifier), "the nullifier must not depend on the path")
	}
}

func TestNullifierIndependence(t *testing.T) {
	w := testWitness()

	sameSecret := w
	sameSecret.Index = w.Index + 1
	a, err := Evaluate(w)
	require.NoError(t, err)
	b, err := Evaluate(sameSecret)
	require.NoError(t, err)
	require.NotZero(t, a.Nullifier.Cmp(b.Nullifier), "same secret, different index")

	otherSecret := w
	otherSecret.Secret = big.NewInt(4321)
	c, err := Evaluate(otherSecret)
	require.NoError(t, err)
	require.NotZero(t, a.Nullifier.Cmp(c.Nullifier), "different secret, same index")
}

func TestCommitmentStability(t *testing.T) {
	p := DefaultPrimitives()
	secret := big.NewInt(1234)
	reference := p.Commitment(secret)

	// The commitment is a function of the secret alone; unrelated witness
	// fields never feed into it.
	for _, w := range []Witness{
		{Index: 0, Secret: secret, Timestamp: big.NewInt(1), SiblingPath: zeroPath()},
		{Index: 99, Secret: secret, Timestamp: big.NewInt(777), SiblingPath: zeroPath()},
	} {
		require.NoError(t, w.Validate())
		require.Zero(t, reference.Cmp(p.Commitment(w.Secret)))
	}
}

func TestEndToEndScenario(t *testing.T) {
	// secret = 7, index = 0, timestamp = 1000, all-zero sibling path. With
	// index 0 every fold keeps (cur, sibling) order, so the root is 32
	// applications of Hash(cur, 0) starting from the leaf.
	w := Witness{
		Index:       0,
		Secret:      big.NewInt(7),
		Timestamp:   big.NewInt(1000),
		SiblingPath: zeroPath(),
	}

	pkx, pky := DerivePublicKey(big.NewInt(7))
	commitment := MimcHash(pkx, pky)
	cur := MimcHash(commitment, big.NewInt(1000))
	for i := 0; i < TreeDepth; i++ {
		cur = MimcHash(cur, big.NewInt(0))
	}
	nullifier := MimcHash(big.NewInt(7), big.NewInt(0))

	out, err := Evaluate(w)
	require.NoError(t, err)
	require.Zero(t, cur.Cmp(out.Root))
	require.Zero(t, nullifier.Cmp(out.Nullifier))
}

func TestBoundaryIndexAllOnes(t *testing.T) {
	// index = 2^32 - 1 forces a swap at every level.
	w := testWitness()
	w.Index = 1<<32 - 1
	for i := range w.SiblingPath {
		w.SiblingPath[i] = big.NewInt(int64(i + 1))
	}

	p := DefaultPrimitives()
	cur := p.Leaf(p.Commitment(w.Secret), w.Timestamp)
	for i := 0; i < TreeDepth; i++ {
		cur = p.Hash(w.SiblingPath[i], cur)
	}

	out, err := Evaluate(w)
	require.NoError(t, err)
	require.Zero(t, cur.Cmp(out.Root))
}

func TestValidateRejectsMalformedWitness(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Witness)
		want   error
	}{
		{"nil secret", func(w *Witness) { w.Secret = nil }, ErrMissingValue},
		{"zero secret", func(w *Witness) { w.Secret = big.NewInt(0) }, ErrSecretOutOfRange},
		{"negative secret", func(w *Witness) { w.Secret = big.NewInt(-1) }, ErrSecretOutOfRange},
		{"secret at scalar modulus", func(w *Witness) { w.Secret = new(big.Int).Set(scalarModulus) }, ErrSecretOutOfRange},
		{"nil timestamp", func(w *Witness) { w.Timestamp = nil }, ErrMissingValue},
		{"timestamp at field modulus", func(w *Witness) { w.Timestamp = new(big.Int).Set(fieldModulus) }, ErrNotInField},
		{"nil sibling", func(w *Witness) { w.SiblingPath[3] = nil }, ErrMissingValue},
		{"sibling at field modulus", func(w *Witness) { w.SiblingPath[31] = new(big.Int).Set(fieldModulus) }, ErrNotInField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := testWitness()
			w.SiblingPath = zeroPath()
			tc.mutate(&w)
			_, err := Evaluate(w)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEvaluateRejectsBrokenDecomposition(t *testing.T) {
	w := testWitness()

	wrongSum := DefaultPrimitives()
	wrongSum.Decompose = func(index uint32) [TreeDepth]uint8 {
		return [TreeDepth]uint8{} // all zeros regardless of index
	}
	_, err := wrongSum.Evaluate(w)
	require.ErrorIs(t, err, ErrBadDecomposition)

	nonBinary := DefaultPrimitives()
	nonBinary.Decompose = func(index uint32) [TreeDepth]uint8 {
		bits := DecomposeIndex(index)
		bits[5] = 2
		return bits
	}
	_, err = nonBinary.Evaluate(w)
	require.ErrorIs(t, err, ErrBitNotBinary)
}

func TestMockPipelineWiring(t *testing.T) {
	// With the order-sensitive mock hash the full pipeline is predictable:
	// index 1 swaps only the first level.
	p := mockPrimitives()
	w := Witness{
		Index:       1,
		Secret:      big.NewInt(9),
		Timestamp:   big.NewInt(2),
		SiblingPath: zeroPath(),
	}
	w.SiblingPath[0] = big.NewInt(11)

	commitment := p.Hash(big.NewInt(9), big.NewInt(10))
	cur := p.Hash(commitment, big.NewInt(2))
	cur = p.Hash(big.NewInt(11), cur) // level 0: bit 1, sibling left
	for i := 1; i < TreeDepth; i++ {
		cur = p.Hash(cur, big.NewInt(0))
	}

	out, err := p.Evaluate(w)
	require.NoError(t, err)
	require.Zero(t, cur.Cmp(out.Root))
	require.Zero(t, p.Hash(big.NewInt(9), big.NewInt(1)).Cmp(out.Nullifier))
}

// prove.go - Groth16 drivers for the withdrawal relation.
//
// Compiles the circuit over BW6-761, manages proving/verifying keys on disk,
// and turns a witness into a published withdrawal transaction.

package withdrawal

import (
	"bytes"
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Tx is a published withdrawal: the two relation outputs, the declared token
// and amount, and the serialized Groth16 proof.
type Tx struct {
	Root        *big.Int `json:"root"`
	Nullifier   *big.Int `json:"nullifier"`
	Token       *big.Int `json:"token"`
	AssetAmount *big.Int `json:"asset_amount"`
	Proof       []byte   `json:"proof"`
}

// CompileCircuit compiles the withdrawal circuit over the BW6-761 scalar
// field.
func CompileCircuit() (constraint.ConstraintSystem, error) {
	var circuit Circuit
	ccs, err := frontend.Compile(ecc.BW6_761.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, fmt.Errorf("circuit compilation failed: %w", err)
	}
	return ccs, nil
}

// Prove evaluates the relation natively, proves knowledge of the witness, and
// returns the withdrawal transaction carrying the proof.
func Prove(w Witness, token, assetAmount *big.Int, ccs constraint.ConstraintSystem, pk groth16.ProvingKey) (*Tx, error) {
	out, err := Evaluate(w)
	if err != nil {
		return nil, err
	}

	assignment := &Circuit{
		Root:        out.Root,
		Nullifier:   out.Nullifier,
		Token:       token,
		AssetAmount: assetAmount,
		G:           BasePoint(),
		Index:       w.Index,
		Secret:      w.Secret,
		Timestamp:   w.Timestamp,
	}
	for i := 0; i < TreeDepth; i++ {
		assignment.SiblingPath[i] = w.SiblingPath[i]
	}

	gw, err := frontend.NewWitness(assignment, ecc.BW6_761.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(ccs, pk, gw)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}

	return &Tx{
		Root:        out.Root,
		Nullifier:   out.Nullifier,
		Token:       token,
		AssetAmount: assetAmount,
		Proof:       buf.Bytes(),
	}, nil
}

// Verify checks a withdrawal transaction's proof against its public values.
// It does not compare Root against any published root; that is the ledger's
// job.
func Verify(tx *Tx, vk groth16.VerifyingKey) error {
	public := &Circuit{
		Root:        tx.Root,
		Nullifier:   tx.Nullifier,
		Token:       tx.Token,
		AssetAmount: tx.AssetAmount,
		G:           BasePoint(),
	}
	w, err := frontend.NewWitness(public, ecc.BW6_761.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}

	proof := groth16.NewProof(ecc.BW6_761)
	if _, err := proof.ReadFrom(bytes.NewReader(tx.Proof)); err != nil {
		return fmt.Errorf("proof unmarshaling failed: %w", err)
	}

	if err := groth16.Verify(proof, vk, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey loads a Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BW6_761)
	_, err = pk.ReadFrom(f)
	return pk, err
}

// LoadVerifyingKey loads a Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BW6_761)
	_, err = vk.ReadFrom(f)
	return vk, err
}

// SetupOrLoadKeys loads Groth16 keys from disk if both exist, otherwise runs
// the trusted setup and saves the fresh pair.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, err
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}

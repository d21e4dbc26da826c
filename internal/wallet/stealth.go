// stealth.go - One-time stealth addresses via ephemeral Diffie-Hellman.
//
// A sender derives a fresh address for the recipient so deposits to the same
// spender are unlinkable on the tree. Scheme: the sender draws an ephemeral
// scalar e and publishes E = G^e; both sides compute the shared point
// shared = P^e = E^s and the tweak t = MiMC(shared.x, shared.y) mod r. The
// stealth address is S = P^t, which only the recipient can spend since the
// stealth secret is s*t mod r.

package wallet

import (
	"errors"
	"fmt"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"

	"shieldnote/internal/withdrawal"
)

// ErrDegenerateTweak fires when the derived tweak reduces to zero mod r,
// which would collapse the stealth point to infinity.
var ErrDegenerateTweak = errors.New("stealth tweak is zero")

// EphemeralKey is the sender's one-time public key E = G^e, published
// alongside the deposit so the recipient can recover the stealth secret.
type EphemeralKey struct {
	P bls12377.G1Affine
}

// Address renders the ephemeral key in the same hex form as addresses.
func (e EphemeralKey) Address() string {
	return PublicKey{P: e.P}.Address()
}

// ParseEphemeralKey decodes a hex-encoded ephemeral key.
func ParseEphemeralKey(s string) (EphemeralKey, error) {
	pk, err := ParseAddress(s)
	if err != nil {
		return EphemeralKey{}, err
	}
	return EphemeralKey{P: pk.P}, nil
}

// DeriveStealth derives a one-time address for the recipient and the
// ephemeral key the recipient needs to claim it.
func DeriveStealth(recipient PublicKey) (EphemeralKey, PublicKey, error) {
	var e bls12377_fr.Element
	for {
		if _, err := e.SetRandom(); err != nil {
			return EphemeralKey{}, PublicKey{}, fmt.Errorf("ephemeral key generation failed: %w", err)
		}
		if !e.IsZero() {
			break
		}
	}
	eBig := e.BigInt(new(big.Int))

	g1Jac, _, _, _ := bls12377.Generators()
	var g bls12377.G1Affine
	g.FromJacobian(&g1Jac)

	var eph EphemeralKey
	eph.P.ScalarMultiplication(&g, eBig)

	var shared bls12377.G1Affine
	shared.ScalarMultiplication(&recipient.P, eBig)

	t, err := stealthTweak(&shared)
	if err != nil {
		return EphemeralKey{}, PublicKey{}, err
	}

	var stealth PublicKey
	stealth.P.ScalarMultiplication(&recipient.P, t)
	return eph, stealth, nil
}

// RecoverStealthSecret reconstructs the private key of a stealth address from
// the recipient's key and the published ephemeral key.
func RecoverStealthSecret(sk *PrivateKey, eph EphemeralKey) (*PrivateKey, error) {
	var shared bls12377.G1Affine
	shared.ScalarMultiplication(&eph.P, sk.Secret)

	t, err := stealthTweak(&shared)
	if err != nil {
		return nil, err
	}

	secret := new(big.Int).Mul(sk.Secret, t)
	secret.Mod(secret, bls12377_fr.Modulus())
	if secret.Sign() == 0 {
		return nil, ErrDegenerateTweak
	}
	return &PrivateKey{Secret: secret}, nil
}

// stealthTweak hashes the shared point into a scalar.
func stealthTweak(shared *bls12377.G1Affine) (*big.Int, error) {
	xBytes := shared.X.Bytes()
	yBytes := shared.Y.Bytes()
	t := withdrawal.MimcHash(
		new(big.Int).SetBytes(xBytes[:]),
		new(big.Int).SetBytes(yBytes[:]),
	)
	t.Mod(t, bls12377_fr.Modulus())
	if t.Sign() == 0 {
		return nil, ErrDegenerateTweak
	}
	return t, nil
}

// Package wallet manages spender keys, the on-disk wallet file, and the HTTP
// API served by the wallet daemon.
//
// A spender's identity is a single BLS12-377 scalar; the public key G^secret
// doubles as the input of the note commitment, so holding the wallet file is
// holding the notes.
package wallet

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
)

var (
	ErrWalletExists = errors.New("wallet file already exists")
	ErrEmptyWallet  = errors.New("wallet file holds no secret")
	ErrBadAddress   = errors.New("malformed address")
)

// PrivateKey is the spender secret, a nonzero BLS12-377 scalar.
type PrivateKey struct {
	Secret *big.Int
}

// PublicKey is the point G^secret on BLS12-377 G1.
type PublicKey struct {
	P bls12377.G1Affine
}

// GeneratePrivateKey draws a fresh nonzero scalar.
func GeneratePrivateKey() (*PrivateKey, error) {
	var s bls12377_fr.Element
	for {
		if _, err := s.SetRandom(); err != nil {
			return nil, fmt.Errorf("key generation failed: %w", err)
		}
		if !s.IsZero() {
			break
		}
	}
	return &PrivateKey{Secret: s.BigInt(new(big.Int))}, nil
}

// Public derives the public key G^secret.
func (sk *PrivateKey) Public() PublicKey {
	g1Jac, _, _, _ := bls12377.Generators()
	var g bls12377.G1Affine
	g.FromJacobian(&g1Jac)
	var pk PublicKey
	pk.P.ScalarMultiplication(&g, sk.Secret)
	return pk
}

// Coordinates returns the affine coordinates as big integers, the form the
// commitment hash consumes.
func (pk PublicKey) Coordinates() (x, y *big.Int) {
	xBytes := pk.P.X.Bytes()
	yBytes := pk.P.Y.Bytes()
	return new(big.Int).SetBytes(xBytes[:]), new(big.Int).SetBytes(yBytes[:])
}

// Address renders the public key as a hex string.
func (pk PublicKey) Address() string {
	return hex.EncodeToString(pk.P.Marshal())
}

// ParseAddress decodes a hex address back into a public key. The point is
// checked to lie on the curve and in the correct subgroup.
func ParseAddress(s string) (PublicKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	var pk PublicKey
	if err := pk.P.Unmarshal(raw); err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	return pk, nil
}

// Wallet is the persistent spender state: the secret and the node endpoint
// the wallet talks to.
type Wallet struct {
	Secret   *big.Int
	Endpoint string
}

// walletFile is the JSON form of the wallet; the secret is stored hex-encoded.
type walletFile struct {
	Secret   string `json:"secret"`
	Endpoint string `json:"endpoint"`
}

// Init creates a new wallet file with a fresh key. It refuses to overwrite an
// existing wallet.
func Init(path, endpoint string) (*Wallet, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ErrWalletExists
	}
	sk, err := GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	w := &Wallet{Secret: sk.Secret, Endpoint: endpoint}
	if err := w.Save(path); err != nil {
		return nil, err
	}
	return w, nil
}

// Load reads a wallet file from disk.
func Load(path string) (*Wallet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var wf walletFile
	if err := json.NewDecoder(f).Decode(&wf); err != nil {
		return nil, fmt.Errorf("failed to decode wallet file: %w", err)
	}
	if wf.Secret == "" {
		return nil, ErrEmptyWallet
	}
	secret, ok := new(big.Int).SetString(wf.Secret, 16)
	if !ok {
		return nil, fmt.Errorf("failed to parse wallet secret")
	}
	return &Wallet{Secret: secret, Endpoint: wf.Endpoint}, nil
}

// Save writes the wallet to disk, readable by the owner only.
func (w *Wallet) Save(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(walletFile{Secret: w.Secret.Text(16), Endpoint: w.Endpoint})
}

// PrivateKey returns the wallet's key.
func (w *Wallet) PrivateKey() *PrivateKey {
	return &PrivateKey{Secret: w.Secret}
}

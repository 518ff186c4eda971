package cnwlicensing

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Signer holds the authority's Ed25519 private key and produces
// activation keys. It is safe for concurrent use. Signers belong on the
// authority side only; client deployments embed a Verifier instead.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner creates a Signer from raw Ed25519 private key material.
func NewSigner(key ed25519.PrivateKey) (*Signer, error) {
	if l := len(key); l != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key length %d, expected %d", ErrKeyType, l, ed25519.PrivateKeySize)
	}
	return &Signer{key: key}, nil
}

// SignerFromPEM creates a Signer from a PKCS8 PEM-encoded Ed25519
// private key.
func SignerFromPEM(data []byte) (*Signer, error) {
	key, err := ParsePrivateKeyPEM(data)
	if err != nil {
		return nil, err
	}
	return NewSigner(key)
}

// Sign produces the activation key authorizing licenseKey on machineID.
// The license key may be in either presentation; it is normalized before
// signing, so a word-format key signs identically to its hex form. The
// returned activation key is the 128-character lowercase hex encoding of
// the Ed25519 signature. Ed25519 signing is deterministic: identical
// inputs always produce an identical activation key.
func (s *Signer) Sign(licenseKey, machineID string) (string, error) {
	keyHex, err := NormalizeKey(licenseKey)
	if err != nil {
		return "", err
	}
	sig := ed25519.Sign(s.key, buildActivationMessage(keyHex, machineID))
	return hex.EncodeToString(sig), nil
}

// Public returns the public half of the signing key.
func (s *Signer) Public() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Verifier returns a Verifier for the public half of the signing key.
func (s *Signer) Verifier() *Verifier {
	return &Verifier{key: s.Public()}
}

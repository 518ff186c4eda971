package cnwlicensing

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Verifier holds the authority's Ed25519 public key and checks
// activation keys. It is safe for concurrent use and is the only key
// material a client deployment embeds.
type Verifier struct {
	key ed25519.PublicKey
}

// NewVerifier creates a Verifier from raw Ed25519 public key material.
func NewVerifier(key ed25519.PublicKey) (*Verifier, error) {
	if l := len(key); l != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key length %d, expected %d", ErrKeyType, l, ed25519.PublicKeySize)
	}
	return &Verifier{key: key}, nil
}

// VerifierFromPEM creates a Verifier from a SubjectPublicKeyInfo
// PEM-encoded Ed25519 public key.
func VerifierFromPEM(data []byte) (*Verifier, error) {
	key, err := ParsePublicKeyPEM(data)
	if err != nil {
		return nil, err
	}
	return NewVerifier(key)
}

// Verify reports whether activationKey is a valid signature authorizing
// licenseKey on machineID. The license key may be in either
// presentation; it is normalized before the message is rebuilt, so
// word-format keys verify identically to hex-format ones.
//
// Verify returns false on any malformed input, decode failure, or
// signature mismatch. Failures are not distinguished by reason so the
// result cannot be used as an oracle for why an activation was rejected.
func (v *Verifier) Verify(licenseKey, machineID, activationKey string) bool {
	keyHex, err := NormalizeKey(licenseKey)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(activationKey)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(v.key, buildActivationMessage(keyHex, machineID), sig)
}

// VerifyProof applies Verify to the triple stored in an activation proof.
func (v *Verifier) VerifyProof(p *ActivationProof) bool {
	if p == nil {
		return false
	}
	return v.Verify(p.LicenseKey, p.MachineID, p.ActivationKey)
}

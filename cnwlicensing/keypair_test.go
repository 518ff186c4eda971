package cnwlicensing

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
)

func TestGenerateKeyPair_RoundTrip(t *testing.T) {
	privPEM, pubPEM, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	priv, err := ParsePrivateKeyPEM(privPEM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pub, err := ParsePublicKeyPEM(pubPEM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if derived := priv.Public().(ed25519.PublicKey); !derived.Equal(pub) {
		t.Error("public PEM does not match the private key's public half")
	}
}

func TestGenerateKeyPair_PEMBlockTypes(t *testing.T) {
	privPEM, pubPEM, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	block, rest := pem.Decode(privPEM)
	if block == nil || block.Type != "PRIVATE KEY" {
		t.Errorf("expected a PRIVATE KEY block, got %+v", block)
	}
	if len(bytes.TrimSpace(rest)) != 0 {
		t.Errorf("unexpected trailing data after private key block")
	}

	block, _ = pem.Decode(pubPEM)
	if block == nil || block.Type != "PUBLIC KEY" {
		t.Errorf("expected a PUBLIC KEY block, got %+v", block)
	}
}

func TestParsePrivateKeyPEM_WrongAlgorithm(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(ecKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	if _, err := ParsePrivateKeyPEM(data); !errors.Is(err, ErrKeyType) {
		t.Errorf("expected ErrKeyType for an ECDSA key, got %v", err)
	}
}

func TestParsePublicKeyPEM_WrongAlgorithm(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	if _, err := ParsePublicKeyPEM(data); !errors.Is(err, ErrKeyType) {
		t.Errorf("expected ErrKeyType for an ECDSA key, got %v", err)
	}
}

func TestParsePrivateKeyPEM_NoBlock(t *testing.T) {
	if _, err := ParsePrivateKeyPEM([]byte("not pem at all")); err == nil {
		t.Error("expected an error for non-PEM input")
	}
	if _, err := ParsePublicKeyPEM(nil); err == nil {
		t.Error("expected an error for empty input")
	}
}

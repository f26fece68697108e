// Package crypto implements Ed25519 signing and verification over
// canonicalized payloads. It never signs caller-supplied bytes directly —
// every Sign/Verify call routes through pkg/canonicalize first, so a
// signature always covers a deterministic, domain-separated form.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/Connerlevi/capnet/pkg/canonicalize"
)

// Keypair is an Ed25519 keypair. Fields are the raw key bytes — 32 for the
// public key, 64 for the private key, per crypto/ed25519.
type Keypair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeypair creates a fresh Ed25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: key generation failed: %w", err)
	}
	return &Keypair{PublicKey: pub, PrivateKey: priv}, nil
}

// KeypairFromBytes reconstructs a Keypair from raw key bytes (e.g. loaded
// from the persistent store). It validates lengths up front: a length
// mismatch is a structural failure, never a silently-accepted key.
func KeypairFromBytes(pub, priv []byte) (*Keypair, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	return &Keypair{
		PublicKey:  ed25519.PublicKey(pub),
		PrivateKey: ed25519.PrivateKey(priv),
	}, nil
}

// Sign canonicalizes v under domain d and produces a detached Ed25519
// signature over the result.
func Sign(kp *Keypair, domain canonicalize.Domain, v any) ([]byte, error) {
	if len(kp.PrivateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(kp.PrivateKey))
	}
	payload, err := canonicalize.Canonicalize(domain, v)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign: %w", err)
	}
	return ed25519.Sign(kp.PrivateKey, payload), nil
}

// Verify canonicalizes v under domain d and checks sig against pubKey.
//
// A structurally invalid public key or signature (wrong length) is
// reported as an error, not as a silent "false" — callers need to
// distinguish a malformed input from a legitimate cryptographic
// rejection.
func Verify(pubKey ed25519.PublicKey, domain canonicalize.Domain, v any, sig []byte) (bool, error) {
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("crypto: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pubKey))
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("crypto: signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}
	payload, err := canonicalize.Canonicalize(domain, v)
	if err != nil {
		return false, fmt.Errorf("crypto: verify: %w", err)
	}
	return ed25519.Verify(pubKey, payload, sig), nil
}

package mandate

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/IOUser755/AP2-01-sub000/pkg/schema"
)

// Signature algorithms supported by the chain.
const (
	AlgorithmEd25519   = "ed25519"
	AlgorithmECDSAP256 = "ecdsa-p256"
)

// Signer produces detached signatures over a mandate digest. Public keys
// travel as base64-encoded PKIX DER so verifiers need no key registry.
type Signer interface {
	Algorithm() string
	KeyID() string
	PublicKey() (string, error)
	Sign(digest []byte) (string, error)
}

// Ed25519Signer signs digests with an Ed25519 private key.
type Ed25519Signer struct {
	keyID string
	priv  ed25519.PrivateKey
}

// NewEd25519Signer generates a fresh keypair.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &Ed25519Signer{keyID: keyID, priv: priv}, nil
}

func (s *Ed25519Signer) Algorithm() string { return AlgorithmEd25519 }
func (s *Ed25519Signer) KeyID() string     { return s.keyID }

func (s *Ed25519Signer) PublicKey() (string, error) {
	return encodePublicKey(s.priv.Public())
}

func (s *Ed25519Signer) Sign(digest []byte) (string, error) {
	if len(digest) == 0 {
		return "", fmt.Errorf("digest is required")
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.priv, digest)), nil
}

// ECDSAP256Signer signs digests with an ECDSA P-256 key using ASN.1
// DER signatures.
type ECDSAP256Signer struct {
	keyID string
	priv  *ecdsa.PrivateKey
}

// NewECDSAP256Signer generates a fresh keypair.
func NewECDSAP256Signer(keyID string) (*ECDSAP256Signer, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate p256 key: %w", err)
	}
	return &ECDSAP256Signer{keyID: keyID, priv: priv}, nil
}

func (s *ECDSAP256Signer) Algorithm() string { return AlgorithmECDSAP256 }
func (s *ECDSAP256Signer) KeyID() string     { return s.keyID }

func (s *ECDSAP256Signer) PublicKey() (string, error) {
	return encodePublicKey(&s.priv.PublicKey)
}

func (s *ECDSAP256Signer) Sign(digest []byte) (string, error) {
	if len(digest) == 0 {
		return "", fmt.Errorf("digest is required")
	}
	sum := sha256.Sum256(digest)
	sig, err := ecdsa.SignASN1(rand.Reader, s.priv, sum[:])
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// NewSignature builds a signature record for a digest using the given
// signer.
func NewSignature(signer Signer, digest []byte, now time.Time) (schema.Signature, error) {
	pub, err := signer.PublicKey()
	if err != nil {
		return schema.Signature{}, err
	}
	value, err := signer.Sign(digest)
	if err != nil {
		return schema.Signature{}, err
	}
	return schema.Signature{
		Algorithm: signer.Algorithm(),
		KeyID:     signer.KeyID(),
		PublicKey: pub,
		Value:     value,
		Timestamp: now.UTC(),
	}, nil
}

// VerifySignature checks a signature record against a digest. The public
// key embedded in the record is the verification key.
func VerifySignature(sig schema.Signature, digest []byte) error {
	pubDER, err := base64.StdEncoding.DecodeString(sig.PublicKey)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	value, err := base64.StdEncoding.DecodeString(sig.Value)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(pubDER)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}

	switch sig.Algorithm {
	case AlgorithmEd25519:
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("public key is not ed25519")
		}
		if !ed25519.Verify(key, digest, value) {
			return fmt.Errorf("ed25519 signature mismatch")
		}
	case AlgorithmECDSAP256:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("public key is not ecdsa")
		}
		sum := sha256.Sum256(digest)
		if !ecdsa.VerifyASN1(key, sum[:], value) {
			return fmt.Errorf("ecdsa signature mismatch")
		}
	default:
		return fmt.Errorf("unsupported signature algorithm %q", sig.Algorithm)
	}
	return nil
}

func encodePublicKey(pub any) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

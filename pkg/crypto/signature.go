package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Key and signature sizes at the wire interface.
const (
	// PublicKeySize is the uncompressed SEC1 public key length in bytes.
	PublicKeySize = 65
	// SignatureSize is the compact r||s signature length in bytes.
	SignatureSize = 64
	// PrivateKeySize is the private scalar length in bytes.
	PrivateKeySize = 32
)

// Verification errors. Callers match these with errors.Is.
var (
	ErrBadEncoding  = errors.New("malformed hex encoding")
	ErrBadPublicKey = errors.New("invalid public key")
	ErrBadSignature = errors.New("invalid signature")
)

// Signer signs 32-byte digests with a secp256k1 private key.
type Signer interface {
	// Sign produces a 64-byte compact ECDSA signature over a 32-byte digest.
	Sign(digest []byte) ([]byte, error)
	// PublicKey returns the uncompressed 65-byte SEC1 public key.
	PublicKey() []byte
}

// PrivateKey wraps a secp256k1 private key for ECDSA signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromHex creates a PrivateKey from a hex-encoded 32-byte secret.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	return PrivateKeyFromBytes(b)
}

// Sign produces a 64-byte compact r||s ECDSA signature over a 32-byte digest.
func (pk *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	// SignCompact prepends a 1-byte recovery code; the wire format carries
	// the bare r||s pair.
	sig := ecdsa.SignCompact(pk.key, digest, false)
	return sig[1:], nil
}

// SignData hashes data with SHA-256 and returns the hex-encoded compact
// signature. This is the exact signing flow of the device SDK.
func (pk *PrivateKey) SignData(data []byte) (string, error) {
	digest := Hash(data)
	sig, err := pk.Sign(digest[:])
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// PublicKey returns the uncompressed 65-byte SEC1 public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeUncompressed()
}

// PublicKeyHex returns the lowercase hex form of the uncompressed public key.
func (pk *PrivateKey) PublicKeyHex() string {
	return hex.EncodeToString(pk.PublicKey())
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// VerifySignature checks a 64-byte compact ECDSA signature against a 32-byte
// digest and an uncompressed SEC1 public key. Returns false on any error.
func VerifySignature(digest, signature, publicKey []byte) bool {
	if len(signature) != SignatureSize || len(publicKey) != PublicKeySize {
		return false
	}
	pubKey, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(signature[32:]); overflow {
		return false
	}
	return ecdsa.NewSignature(&r, &s).Verify(digest, pubKey)
}

// VerifyHex verifies a hex-encoded compact signature over data under a
// hex-encoded uncompressed public key. The data is SHA-256 hashed before
// verification. The returned error distinguishes malformed inputs from a
// signature that does not verify.
func VerifyHex(publicKeyHex string, data []byte, signatureHex string) error {
	pubKey, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("%w: public key: %v", ErrBadEncoding, err)
	}
	if len(pubKey) != PublicKeySize {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrBadPublicKey, PublicKeySize, len(pubKey))
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("%w: signature: %v", ErrBadEncoding, err)
	}
	if len(sig) != SignatureSize {
		return fmt.Errorf("%w: want %d bytes, got %d", ErrBadSignature, SignatureSize, len(sig))
	}
	digest := Hash(data)
	if !VerifySignature(digest[:], sig, pubKey) {
		return ErrBadSignature
	}
	return nil
}

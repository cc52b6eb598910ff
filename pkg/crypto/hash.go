// Package crypto provides the signing primitives shared by the node and the
// device SDK: secp256k1 ECDSA over SHA-256 digests, compact 64-byte r||s
// signatures, and uncompressed SEC1 public keys, all hex-encoded at the wire.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash computes the SHA-256 digest of data.
func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HashHex computes the SHA-256 digest of data as lowercase hex.
func HashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

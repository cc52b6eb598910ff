package device

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/pulse-net/pulse-chain/pkg/crypto"
)

// BIP-44 derivation path constants.
// Full path: m/44'/CoinType'/account'/0/index
const (
	// PurposeBIP44 is the BIP-44 purpose field (hardened).
	PurposeBIP44 = bip32.FirstHardenedChild + 44

	// CoinTypePulse is our placeholder coin type (hardened).
	CoinTypePulse = bip32.FirstHardenedChild + 8886
)

// HDKey represents a hierarchical deterministic key (BIP-32).
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DeriveChild derives a child key at the given index.
// For hardened derivation, add bip32.FirstHardenedChild to the index.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// DeriveDevice derives the signing key for one device slot at
// m/44'/8886'/account'/0/index.
func (k *HDKey) DeriveDevice(account, index uint32) (*crypto.PrivateKey, error) {
	child, err := k.DerivePath(
		PurposeBIP44,
		CoinTypePulse,
		bip32.FirstHardenedChild+account,
		0,
		index,
	)
	if err != nil {
		return nil, err
	}
	raw := child.key.Key
	if len(raw) != crypto.PrivateKeySize {
		return nil, fmt.Errorf("derived key is %d bytes, want %d", len(raw), crypto.PrivateKeySize)
	}
	return crypto.PrivateKeyFromBytes(raw)
}

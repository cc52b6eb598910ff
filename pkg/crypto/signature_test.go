package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	pub := key.PublicKey()
	if len(pub) != PublicKeySize {
		t.Errorf("PublicKey() length = %d, want %d", len(pub), PublicKeySize)
	}
	if pub[0] != 0x04 {
		t.Errorf("PublicKey() first byte = %#x, want 0x04 (uncompressed SEC1)", pub[0])
	}

	ser := key.Serialize()
	if len(ser) != PrivateKeySize {
		t.Errorf("Serialize() length = %d, want %d", len(ser), PrivateKeySize)
	}
}

func TestGenerateKey_Unique(t *testing.T) {
	k1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	k2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	if bytes.Equal(k1.Serialize(), k2.Serialize()) {
		t.Error("two generated keys should not be identical")
	}
}

func TestPrivateKeyFromBytes(t *testing.T) {
	original, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	restored, err := PrivateKeyFromBytes(original.Serialize())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}

	if !bytes.Equal(original.PublicKey(), restored.PublicKey()) {
		t.Error("restored key should have same public key")
	}
}

func TestPrivateKeyFromBytes_InvalidLength(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 16)},
		{"too long", make([]byte, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrivateKeyFromBytes(tt.data)
			if err == nil {
				t.Error("expected error for invalid key length")
			}
		})
	}
}

func TestPrivateKeyFromHex(t *testing.T) {
	original, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	restored, err := PrivateKeyFromHex(hex.EncodeToString(original.Serialize()))
	if err != nil {
		t.Fatalf("PrivateKeyFromHex() error: %v", err)
	}
	if restored.PublicKeyHex() != original.PublicKeyHex() {
		t.Error("restored key should have same public key")
	}

	if _, err := PrivateKeyFromHex("not-hex"); !errors.Is(err, ErrBadEncoding) {
		t.Errorf("PrivateKeyFromHex(garbage) error = %v, want ErrBadEncoding", err)
	}
}

func TestSign_Verify(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	digest := Hash([]byte("test heartbeat payload"))
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Errorf("signature length = %d, want %d", len(sig), SignatureSize)
	}

	if !VerifySignature(digest[:], sig, key.PublicKey()) {
		t.Error("signature should verify under signing key")
	}
}

func TestVerifySignature_WrongKey(t *testing.T) {
	k1, _ := GenerateKey()
	k2, _ := GenerateKey()

	digest := Hash([]byte("test data"))
	sig, err := k1.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	if VerifySignature(digest[:], sig, k2.PublicKey()) {
		t.Error("signature should not verify under a different key")
	}
}

func TestVerifySignature_MutatedDigest(t *testing.T) {
	key, _ := GenerateKey()

	digest := Hash([]byte("original"))
	sig, err := key.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	mutated := digest
	mutated[0] ^= 0x01
	if VerifySignature(mutated[:], sig, key.PublicKey()) {
		t.Error("signature should not verify over a mutated digest")
	}
}

func TestVerifyHex(t *testing.T) {
	key, _ := GenerateKey()
	data := []byte(`{"timestamp":1700000000000,"heart_rate":72}`)

	sigHex, err := key.SignData(data)
	if err != nil {
		t.Fatalf("SignData() error: %v", err)
	}
	if len(sigHex) != SignatureSize*2 {
		t.Errorf("hex signature length = %d, want %d", len(sigHex), SignatureSize*2)
	}

	if err := VerifyHex(key.PublicKeyHex(), data, sigHex); err != nil {
		t.Errorf("VerifyHex() error: %v", err)
	}

	// Mutating any byte of the signed data must invalidate the signature.
	mutated := append([]byte(nil), data...)
	mutated[3] ^= 0xff
	if err := VerifyHex(key.PublicKeyHex(), mutated, sigHex); !errors.Is(err, ErrBadSignature) {
		t.Errorf("VerifyHex(mutated data) error = %v, want ErrBadSignature", err)
	}
}

func TestVerifyHex_Errors(t *testing.T) {
	key, _ := GenerateKey()
	data := []byte("payload")
	sigHex, _ := key.SignData(data)

	tests := []struct {
		name   string
		pubKey string
		sig    string
		want   error
	}{
		{"garbage pubkey hex", "zzzz", sigHex, ErrBadEncoding},
		{"short pubkey", strings.Repeat("ab", 33), sigHex, ErrBadPublicKey},
		{"garbage sig hex", key.PublicKeyHex(), "not-hex", ErrBadEncoding},
		{"short sig", key.PublicKeyHex(), strings.Repeat("ab", 32), ErrBadSignature},
		{"swapped key", swapKeyHex(t), sigHex, ErrBadSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyHex(tt.pubKey, data, tt.sig); !errors.Is(err, tt.want) {
				t.Errorf("VerifyHex() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func swapKeyHex(t *testing.T) string {
	t.Helper()
	k, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	return k.PublicKeyHex()
}

func TestHashHex(t *testing.T) {
	// SHA-256 of the empty string is a fixed vector.
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := HashHex(nil); got != want {
		t.Errorf("HashHex(nil) = %s, want %s", got, want)
	}
}

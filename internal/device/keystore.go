package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// keystoreFile is the on-disk JSON format for an encrypted device identity.
type keystoreFile struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	EncryptedSeed []byte    `json:"encrypted_seed"`
	// NextIndex is the next unused device slot under the BIP-44 account.
	NextIndex uint32        `json:"next_index"`
	Devices   []DeviceEntry `json:"devices"`
}

// DeviceEntry stores metadata for one derived device key.
type DeviceEntry struct {
	Index  uint32 `json:"index"`
	Name   string `json:"name"`
	PubKey string `json:"pubkey"`
}

// Keystore manages encrypted identity storage on disk.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) identityPath(name string) string {
	return filepath.Join(ks.path, name+".identity")
}

// Create writes a new encrypted identity file from a mnemonic seed.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) error {
	path := ks.identityPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("identity %q already exists", name)
	}

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}

	kf := keystoreFile{
		Version:       1,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Devices:       []DeviceEntry{},
	}
	return ks.writeFile(path, &kf)
}

// LoadSeed decrypts an identity and returns the seed bytes.
func (ks *Keystore) LoadSeed(name string, password []byte) ([]byte, error) {
	kf, err := ks.readFile(ks.identityPath(name))
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt identity: %w", err)
	}
	return seed, nil
}

// AddDevice records a derived device slot and bumps the next free index.
func (ks *Keystore) AddDevice(identity string, entry DeviceEntry) error {
	path := ks.identityPath(identity)
	kf, err := ks.readFile(path)
	if err != nil {
		return err
	}

	for _, existing := range kf.Devices {
		if existing.Index == entry.Index {
			if existing.PubKey == entry.PubKey {
				return nil
			}
			return fmt.Errorf("device index %d already exists", entry.Index)
		}
	}

	kf.Devices = append(kf.Devices, entry)
	if entry.Index >= kf.NextIndex {
		kf.NextIndex = entry.Index + 1
	}
	return ks.writeFile(path, kf)
}

// Devices lists the derived device entries for an identity.
func (ks *Keystore) Devices(identity string) ([]DeviceEntry, error) {
	kf, err := ks.readFile(ks.identityPath(identity))
	if err != nil {
		return nil, err
	}
	return kf.Devices, nil
}

// NextIndex returns the next unused device slot.
func (ks *Keystore) NextIndex(identity string) (uint32, error) {
	kf, err := ks.readFile(ks.identityPath(identity))
	if err != nil {
		return 0, err
	}
	return kf.NextIndex, nil
}

// List returns the identity names present in the keystore directory.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(entry.Name(), ".identity"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (ks *Keystore) readFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity file: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse identity file: %w", err)
	}
	return &kf, nil
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace identity file: %w", err)
	}
	return nil
}

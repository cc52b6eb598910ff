package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pulse-net/pulse-chain/internal/storage"
	"github.com/pulse-net/pulse-chain/pkg/types"
)

// tipKey is the meta-namespace key holding the chain tip.
var tipKey = []byte("tip")

// tipRecord is the persisted form of the chain tip.
type tipRecord struct {
	Index uint64 `json:"index"`
	Hash  string `json:"hash"`
}

// Store persists blocks, accounts, and the tip pointer to a storage.DB,
// using the blocks/accounts/meta namespaces. Writes become durable at
// Flush; the engine calls it exactly once per committed block.
type Store struct {
	blocks   *storage.Namespace
	accounts *storage.Namespace
	meta     *storage.Namespace
}

// NewStore creates a chain store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{
		blocks:   storage.NewNamespace(db, storage.NSBlocks),
		accounts: storage.NewNamespace(db, storage.NSAccounts),
		meta:     storage.NewNamespace(db, storage.NSMeta),
	}
}

// blockKey returns the 8-byte big-endian key for a block index. Big-endian
// keys keep ForEach iteration in chain order.
func blockKey(index uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], index)
	return key[:]
}

// PutBlock stores a block in its canonical JSON form.
func (s *Store) PutBlock(blk *types.PulseBlock) error {
	if err := s.blocks.Put(blockKey(blk.Index), blk.CanonicalJSON()); err != nil {
		return fmt.Errorf("block put %d: %w", blk.Index, err)
	}
	return nil
}

// GetBlock retrieves a block by index. Returns ErrNotFound for unknown
// indices.
func (s *Store) GetBlock(index uint64) (*types.PulseBlock, error) {
	data, err := s.blocks.Get(blockKey(index))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("block %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("block get %d: %w", index, err)
	}
	var blk types.PulseBlock
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal %d: %w", index, err)
	}
	return &blk, nil
}

// ForEachBlock iterates all stored blocks in index order.
func (s *Store) ForEachBlock(fn func(*types.PulseBlock) error) error {
	return s.blocks.ForEach(nil, func(_, value []byte) error {
		var blk types.PulseBlock
		if err := json.Unmarshal(value, &blk); err != nil {
			return fmt.Errorf("block unmarshal: %w", err)
		}
		return fn(&blk)
	})
}

// PutAccount stores an account keyed by its public key hex.
func (s *Store) PutAccount(acct *types.Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("account marshal: %w", err)
	}
	if err := s.accounts.Put([]byte(acct.PubKey), data); err != nil {
		return fmt.Errorf("account put: %w", err)
	}
	return nil
}

// LoadAccounts reads every persisted account into a map keyed by pubkey.
func (s *Store) LoadAccounts() (map[string]*types.Account, error) {
	accounts := make(map[string]*types.Account)
	err := s.accounts.ForEach(nil, func(_, value []byte) error {
		var acct types.Account
		if err := json.Unmarshal(value, &acct); err != nil {
			return fmt.Errorf("account unmarshal: %w", err)
		}
		accounts[acct.PubKey] = &acct
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// SetTip stores the chain tip pointer.
func (s *Store) SetTip(index uint64, hash string) error {
	data, err := json.Marshal(tipRecord{Index: index, Hash: hash})
	if err != nil {
		return fmt.Errorf("tip marshal: %w", err)
	}
	if err := s.meta.Put(tipKey, data); err != nil {
		return fmt.Errorf("tip put: %w", err)
	}
	return nil
}

// GetTip returns the persisted tip pointer. found is false on a fresh
// database.
func (s *Store) GetTip() (index uint64, hash string, found bool, err error) {
	data, err := s.meta.Get(tipKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("tip get: %w", err)
	}
	var rec tipRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, "", false, fmt.Errorf("tip unmarshal: %w", err)
	}
	return rec.Index, rec.Hash, true, nil
}

// Flush makes all prior writes durable.
func (s *Store) Flush() error {
	return s.meta.Flush()
}

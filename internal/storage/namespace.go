package storage

// Namespaces used by the chain core. Each maps to a key prefix within the
// single underlying database.
const (
	NSBlocks   = "blocks"
	NSAccounts = "accounts"
	NSMeta     = "meta"
)

// Namespace wraps a DB and scopes all keys under "<name>/". It isolates the
// core's keyspaces (blocks, accounts, meta) within one database.
type Namespace struct {
	inner  DB
	prefix []byte
}

// NewNamespace creates a namespace view of inner under the given name.
func NewNamespace(inner DB, name string) *Namespace {
	return &Namespace{inner: inner, prefix: append([]byte(name), '/')}
}

// prefixed returns key with the namespace prefix prepended.
func (n *Namespace) prefixed(key []byte) []byte {
	out := make([]byte, len(n.prefix)+len(key))
	copy(out, n.prefix)
	copy(out[len(n.prefix):], key)
	return out
}

// Get retrieves a value by key.
func (n *Namespace) Get(key []byte) ([]byte, error) {
	return n.inner.Get(n.prefixed(key))
}

// Put stores a key-value pair.
func (n *Namespace) Put(key, value []byte) error {
	return n.inner.Put(n.prefixed(key), value)
}

// Delete removes a key.
func (n *Namespace) Delete(key []byte) error {
	return n.inner.Delete(n.prefixed(key))
}

// Has checks if a key exists.
func (n *Namespace) Has(key []byte) (bool, error) {
	return n.inner.Has(n.prefixed(key))
}

// ForEach iterates over all keys in the namespace. The callback sees keys
// with the namespace prefix stripped.
func (n *Namespace) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	full := n.prefixed(prefix)
	return n.inner.ForEach(full, func(key, value []byte) error {
		return fn(key[len(n.prefix):], value)
	})
}

// Flush flushes the underlying database.
func (n *Namespace) Flush() error {
	return n.inner.Flush()
}

// Close is a no-op — the outer DB manages its own lifecycle.
func (n *Namespace) Close() error {
	return nil
}

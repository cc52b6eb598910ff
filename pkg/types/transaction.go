package types

// Transaction is a value transfer conditioned on the sender's recent
// liveness: it references the signature of a heartbeat the node has already
// accepted from the sender within the freshness window.
type Transaction struct {
	TxID            string  `json:"tx_id"`
	SenderPubKey    string  `json:"sender_pubkey"`
	RecipientPubKey string  `json:"recipient_pubkey"`
	Amount          float64 `json:"amount"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp uint64 `json:"timestamp"`
	// HeartbeatSignature is the hex signature of an accepted heartbeat from
	// the sender, proving liveness.
	HeartbeatSignature string `json:"heartbeat_signature"`
	// Signature is the compact ECDSA signature over SignableBytes, hex.
	Signature string `json:"signature"`
}

// SignableBytes returns the canonical encoding of the signed fields.
func (t *Transaction) SignableBytes() []byte {
	b := make([]byte, 0, 512)
	return t.appendSignable(b)
}

func (t *Transaction) appendSignable(b []byte) []byte {
	b = append(b, `{"tx_id":`...)
	b = appendQuoted(b, t.TxID)
	b = append(b, `,"sender_pubkey":`...)
	b = appendQuoted(b, t.SenderPubKey)
	b = append(b, `,"recipient_pubkey":`...)
	b = appendQuoted(b, t.RecipientPubKey)
	b = append(b, `,"amount":`...)
	b = appendFloat64(b, t.Amount)
	b = append(b, `,"timestamp":`...)
	b = appendUint(b, t.Timestamp)
	b = append(b, `,"heartbeat_signature":`...)
	b = appendQuoted(b, t.HeartbeatSignature)
	return append(b, '}')
}

// appendCanonical emits the full transaction, signature included, for block
// hashing.
func (t *Transaction) appendCanonical(b []byte) []byte {
	b = t.appendSignable(b)
	b = b[:len(b)-1] // reopen the object
	b = append(b, `,"signature":`...)
	b = appendQuoted(b, t.Signature)
	return append(b, '}')
}

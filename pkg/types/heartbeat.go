// Package types defines the core data model of the Pulse chain: heartbeats,
// transactions, blocks, accounts, and their canonical signable encodings.
package types

import "math"

// Heart rate bounds accepted by the node, in beats per minute.
const (
	MinHeartRate = 30
	MaxHeartRate = 220
)

// Weight coefficients for the per-heartbeat contribution
// W = alpha*(HR/70) + beta*min(|motion|/0.5, 2) + gamma.
const (
	weightAlpha = 0.4
	weightBeta  = 0.4
	weightGamma = 0.2

	restingHeartRate = 70.0
	motionNormScale  = 0.5
	motionNormCap    = 2.0
)

// Motion is the accelerometer vector sampled with a heartbeat.
type Motion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the Euclidean norm of the vector.
func (m Motion) Magnitude() float64 {
	return math.Sqrt(m.X*m.X + m.Y*m.Y + m.Z*m.Z)
}

// Heartbeat is one signed liveness packet from a device.
type Heartbeat struct {
	// Timestamp is milliseconds since the Unix epoch, device clock.
	Timestamp uint64 `json:"timestamp"`
	// HeartRate is beats per minute.
	HeartRate uint16 `json:"heart_rate"`
	Motion    Motion `json:"motion"`
	// Temperature is body temperature in Celsius.
	Temperature float32 `json:"temperature"`
	// DevicePubKey is the uncompressed SEC1 public key, lowercase hex.
	DevicePubKey string `json:"device_pubkey"`
	// Signature is the 64-byte compact ECDSA signature over SignableBytes,
	// lowercase hex.
	Signature string `json:"signature"`
}

// Weight returns the heartbeat's weighted contribution W.
func (h *Heartbeat) Weight() float64 {
	hrNorm := float64(h.HeartRate) / restingHeartRate
	motionNorm := math.Min(h.Motion.Magnitude()/motionNormScale, motionNormCap)
	return weightAlpha*hrNorm + weightBeta*motionNorm + weightGamma
}

// SignableBytes returns the canonical encoding of the signed fields. The
// byte sequence must match the device SDK exactly; see canonical.go.
func (h *Heartbeat) SignableBytes() []byte {
	b := make([]byte, 0, 192)
	return h.appendSignable(b)
}

func (h *Heartbeat) appendSignable(b []byte) []byte {
	b = append(b, `{"timestamp":`...)
	b = appendUint(b, h.Timestamp)
	b = append(b, `,"heart_rate":`...)
	b = appendUint(b, uint64(h.HeartRate))
	b = append(b, `,"motion":{"x":`...)
	b = appendFloat64(b, h.Motion.X)
	b = append(b, `,"y":`...)
	b = appendFloat64(b, h.Motion.Y)
	b = append(b, `,"z":`...)
	b = appendFloat64(b, h.Motion.Z)
	b = append(b, `},"temperature":`...)
	b = appendFloat32(b, h.Temperature)
	b = append(b, `,"device_pubkey":`...)
	b = appendQuoted(b, h.DevicePubKey)
	return append(b, '}')
}

// appendCanonical emits the full heartbeat, signature included, for block
// hashing.
func (h *Heartbeat) appendCanonical(b []byte) []byte {
	b = h.appendSignable(b)
	b = b[:len(b)-1] // reopen the object
	b = append(b, `,"signature":`...)
	b = appendQuoted(b, h.Signature)
	return append(b, '}')
}

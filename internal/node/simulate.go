package node

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/pulse-net/pulse-chain/pkg/crypto"
	"github.com/pulse-net/pulse-chain/pkg/types"
)

// Simulator cadence. Three devices pulse every two seconds and occasionally
// pay each other, enough to keep blocks flowing on an otherwise idle node.
const (
	simDeviceCount  = 3
	simPulseEvery   = 2 * time.Second
	simTxEveryTicks = 5
)

// simDevice is one synthetic wearer.
type simDevice struct {
	key      *crypto.PrivateKey
	lastSig  string // signature of the most recent accepted heartbeat
	activity float64
}

// runSimulator feeds signed heartbeats (and the occasional transaction)
// from generated device keys directly into the engine.
func (n *Node) runSimulator() {
	devices := make([]*simDevice, 0, simDeviceCount)
	for i := 0; i < simDeviceCount; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			n.logger.Error().Err(err).Msg("Simulator key generation failed")
			return
		}
		devices = append(devices, &simDevice{key: key, activity: rand.Float64() * 0.5})
		n.logger.Info().
			Int("device", i).
			Str("pubkey", key.PublicKeyHex()[:16]+"...").
			Msg("Simulated device created")
	}

	ticker := time.NewTicker(simPulseEvery)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
		}
		tick++

		for _, dev := range devices {
			hb := dev.makeHeartbeat(n.nowMs())
			if err := n.engine.SubmitHeartbeat(hb); err != nil {
				n.logger.Debug().Err(err).Msg("Simulated heartbeat rejected")
				continue
			}
			dev.lastSig = hb.Signature
		}

		// Occasionally move value between the first two devices.
		if tick%simTxEveryTicks == 0 {
			n.simulateTransfer(devices[0], devices[1])
		}
	}
}

func (n *Node) nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

// makeHeartbeat synthesizes a plausible signed packet: heart rate follows
// the device's activity level with natural jitter so the biometric monitor
// accepts it.
func (d *simDevice) makeHeartbeat(nowMs uint64) *types.Heartbeat {
	// Drift activity a little each tick, clamped to [0, 0.8].
	d.activity += (rand.Float64() - 0.5) * 0.1
	if d.activity < 0 {
		d.activity = 0
	}
	if d.activity > 0.8 {
		d.activity = 0.8
	}

	hb := &types.Heartbeat{
		Timestamp: nowMs,
		HeartRate: uint16(70 + d.activity*60 + rand.Float64()*10),
		Motion: types.Motion{
			X: (rand.Float64()-0.5)*0.4 + d.activity*0.5,
			Y: (rand.Float64()-0.5)*0.4 + d.activity*0.3,
			Z: (rand.Float64()-0.5)*0.2 + d.activity*0.2,
		},
		Temperature:  float32(36.5 + (rand.Float64() - 0.5)),
		DevicePubKey: d.key.PublicKeyHex(),
	}
	sig, err := d.key.SignData(hb.SignableBytes())
	if err != nil {
		return hb
	}
	hb.Signature = sig
	return hb
}

// simulateTransfer sends a small payment from one simulated device to
// another, provided the sender has funds and a live heartbeat.
func (n *Node) simulateTransfer(from, to *simDevice) {
	if from.lastSig == "" {
		return
	}
	balance := n.engine.Balance(from.key.PublicKeyHex())
	if balance < 0.2 {
		return
	}

	tx := &types.Transaction{
		TxID:               uuid.NewString(),
		SenderPubKey:       from.key.PublicKeyHex(),
		RecipientPubKey:    to.key.PublicKeyHex(),
		Amount:             balance * 0.1,
		Timestamp:          n.nowMs(),
		HeartbeatSignature: from.lastSig,
	}
	sig, err := from.key.SignData(tx.SignableBytes())
	if err != nil {
		return
	}
	tx.Signature = sig

	if err := n.engine.SubmitTransaction(tx); err != nil {
		n.logger.Debug().Err(err).Msg("Simulated transaction rejected")
		return
	}
	n.logger.Info().
		Str("from", tx.SenderPubKey[:12]+"...").
		Str("to", tx.RecipientPubKey[:12]+"...").
		Float64("amount", tx.Amount).
		Msg("Simulated transfer queued")
}

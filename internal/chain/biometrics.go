package chain

import (
	"fmt"
	"math"

	"github.com/pulse-net/pulse-chain/pkg/types"
)

// Biometric plausibility thresholds. A real heart shows natural variability
// (SDNN well above zero) but not random noise; a real accelerometer never
// reads perfectly constant while moving.
const (
	bioMaxHistory   = 60 // ~5 minutes of samples at 5s intervals
	bioMinSamples   = 10 // checks activate once this much history exists
	bioMinSDNN      = 0.5
	bioMaxSDNN      = 40.0
	bioMinBodyTemp  = 33.0
	bioMaxBodyTemp  = 42.0
	bioMismatchHR   = 130.0
	bioMismatchMove = 0.05
)

// deviceHistory is the rolling sensor record for one device.
type deviceHistory struct {
	heartRates []uint16
	motionMags []float64
}

// BiometricMonitor tracks per-device sensor history and rejects heartbeats
// whose signals look synthetic: constant or perfectly periodic heart rate,
// noise-level variability, motionless high exertion, or a body temperature
// outside the human range.
type BiometricMonitor struct {
	devices map[string]*deviceHistory
}

// NewBiometricMonitor creates an empty monitor.
func NewBiometricMonitor() *BiometricMonitor {
	return &BiometricMonitor{devices: make(map[string]*deviceHistory)}
}

// Check records the heartbeat's sensor readings and returns an
// ErrImplausibleBiometrics-wrapped error if the accumulated history marks
// the device as synthetic. The reading is recorded either way so a device
// cannot reset its history by alternating good and bad packets.
func (m *BiometricMonitor) Check(hb *types.Heartbeat) error {
	h := m.devices[hb.DevicePubKey]
	if h == nil {
		h = &deviceHistory{}
		m.devices[hb.DevicePubKey] = h
	}

	h.heartRates = append(h.heartRates, hb.HeartRate)
	if len(h.heartRates) > bioMaxHistory {
		h.heartRates = h.heartRates[len(h.heartRates)-bioMaxHistory:]
	}
	h.motionMags = append(h.motionMags, hb.Motion.Magnitude())
	if len(h.motionMags) > bioMaxHistory {
		h.motionMags = h.motionMags[len(h.motionMags)-bioMaxHistory:]
	}

	if hb.Temperature < bioMinBodyTemp || hb.Temperature > bioMaxBodyTemp {
		return fmt.Errorf("%w: temperature %.1f outside human range", ErrImplausibleBiometrics, hb.Temperature)
	}

	if len(h.heartRates) < bioMinSamples {
		return nil
	}

	sdnn := heartRateSDNN(h.heartRates)
	if sdnn < bioMinSDNN {
		return fmt.Errorf("%w: heart rate variability %.2f below %.1f", ErrImplausibleBiometrics, sdnn, bioMinSDNN)
	}
	if sdnn > bioMaxSDNN {
		return fmt.Errorf("%w: heart rate variability %.2f above %.1f", ErrImplausibleBiometrics, sdnn, bioMaxSDNN)
	}
	if isPeriodic(h.heartRates) {
		return fmt.Errorf("%w: periodic heart rate pattern", ErrImplausibleBiometrics)
	}

	avgHR, avgMotion := averages(h.heartRates, h.motionMags)
	if avgHR > bioMismatchHR && avgMotion < bioMismatchMove {
		return fmt.Errorf("%w: heart rate %.0f with no motion", ErrImplausibleBiometrics, avgHR)
	}

	return nil
}

// Retain drops history for devices not in the active set.
func (m *BiometricMonitor) Retain(active map[string]struct{}) {
	for pubkey := range m.devices {
		if _, ok := active[pubkey]; !ok {
			delete(m.devices, pubkey)
		}
	}
}

// heartRateSDNN is the sample standard deviation of the recorded heart
// rates, the standard HRV summary statistic.
func heartRateSDNN(values []uint16) float64 {
	if len(values) < 2 {
		return 0
	}
	n := float64(len(values))
	mean := 0.0
	for _, v := range values {
		mean += float64(v)
	}
	mean /= n

	variance := 0.0
	for _, v := range values {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= n - 1
	return math.Sqrt(variance)
}

// isPeriodic detects alternating two-value oscillators and constant runs.
func isPeriodic(values []uint16) bool {
	if len(values) < 8 {
		return false
	}
	recent := values[len(values)-8:]
	period2 := 0
	for i := 0; i < 6; i++ {
		if recent[i] == recent[i+2] {
			period2++
		}
	}
	if period2 >= 5 {
		return true
	}

	tail := values
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	first := tail[0]
	for _, v := range tail[1:] {
		if v != first {
			return false
		}
	}
	return true
}

func averages(hrs []uint16, motions []float64) (avgHR, avgMotion float64) {
	for _, v := range hrs {
		avgHR += float64(v)
	}
	avgHR /= float64(len(hrs))
	for _, v := range motions {
		avgMotion += v
	}
	avgMotion /= float64(len(motions))
	return avgHR, avgMotion
}

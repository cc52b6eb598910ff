package chain

import "github.com/pulse-net/pulse-chain/pkg/types"

// blockSample is what the rolling stats window retains per block.
type blockSample struct {
	timestamp uint64 // ms
	txCount   int
	security  float64
}

// statsWindow tracks the last types.StatsWindow committed blocks for the
// TPS, average-block-time, and windowed-security figures.
type statsWindow struct {
	samples []blockSample
}

func (w *statsWindow) add(blk *types.PulseBlock) {
	w.samples = append(w.samples, blockSample{
		timestamp: blk.Timestamp,
		txCount:   len(blk.Transactions),
		security:  blk.Security,
	})
	if len(w.samples) > types.StatsWindow {
		w.samples = w.samples[len(w.samples)-types.StatsWindow:]
	}
}

// tps returns transactions per second across the window span.
func (w *statsWindow) tps() float64 {
	if len(w.samples) < 2 {
		return 0
	}
	spanMs := w.samples[len(w.samples)-1].timestamp - w.samples[0].timestamp
	if spanMs == 0 {
		return 0
	}
	total := 0
	for _, s := range w.samples {
		total += s.txCount
	}
	return float64(total) / (float64(spanMs) / 1000.0)
}

// avgBlockTime returns the mean inter-block interval in seconds.
func (w *statsWindow) avgBlockTime() float64 {
	if len(w.samples) < 2 {
		return 0
	}
	spanMs := w.samples[len(w.samples)-1].timestamp - w.samples[0].timestamp
	return float64(spanMs) / 1000.0 / float64(len(w.samples)-1)
}

// totalSecurity returns the summed security across the window.
func (w *statsWindow) totalSecurity() float64 {
	sum := 0.0
	for _, s := range w.samples {
		sum += s.security
	}
	return sum
}

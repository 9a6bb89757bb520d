package mlofi

import (
	"math"

	"github.com/davecliff/BristolStockExchange/pkg/lob"
)

// sample windows: OFI pressure accumulates over a longer horizon than the
// depth normaliser so short bursts still register.
const (
	ofiWindow    = 10
	volumeWindow = 10
)

// Tracker accumulates per-level order-flow and depth samples from the
// snapshot stream one trader observes, and derives the two quantities the
// impact-sensitive strategy needs: a depth-normalised price offset and a
// bid/ask volume ratio for the significance filter.
//
// Until two snapshots have been observed there is no flow to measure, so
// Offset and VolumeRatio both read as zero.
type Tracker struct {
	m    int
	last *lob.Snapshot

	ofi     [][]int64   // per observation: contribution of each level 1..m
	depths  [][]float64 // per observation: (bidQty+askQty)/2 per level
	bidVols [][]int64
	askVols [][]int64
}

// NewTracker creates a tracker looking m levels deep.
func NewTracker(m int) *Tracker {
	return &Tracker{m: m}
}

// Depth returns the configured number of levels.
func (t *Tracker) Depth() int {
	return t.m
}

// Ready reports whether at least one snapshot pair has been observed.
func (t *Tracker) Ready() bool {
	return len(t.ofi) > 0
}

// Observe feeds the next book snapshot. The first call only primes the
// previous-snapshot slot.
func (t *Tracker) Observe(snap lob.Snapshot) {
	if t.last == nil {
		t.last = &snap
		return
	}

	ofi := make([]int64, t.m)
	depths := make([]float64, t.m)
	bidVols := make([]int64, t.m)
	askVols := make([]int64, t.m)
	for i := 1; i <= t.m; i++ {
		ofi[i-1] = LevelOFI(*t.last, snap, i)
		bid := snap.Level(lob.Buy, i)
		ask := snap.Level(lob.Sell, i)
		depths[i-1] = float64(bid.Qty+ask.Qty) / 2
		bidVols[i-1] = bid.Qty
		askVols[i-1] = ask.Qty
	}

	t.ofi = appendWindow(t.ofi, ofi, ofiWindow)
	t.depths = appendWindowF(t.depths, depths, volumeWindow)
	t.bidVols = appendWindow(t.bidVols, bidVols, volumeWindow)
	t.askVols = appendWindow(t.askVols, askVols, volumeWindow)
	t.last = &snap
}

// Offset maps accumulated imbalance to a signed quote-price shift: the
// windowed OFI sum per level, normalised by that level's average depth,
// weighted by decay^(i-1) and scaled by the impact coefficient c. The
// coefficient is a tunable strategy parameter, not a constant of the model.
func (t *Tracker) Offset(c float64) float64 {
	if !t.Ready() {
		return 0
	}

	cum := make([]float64, t.m)
	for _, sample := range t.ofi {
		for i, v := range sample {
			cum[i] += float64(v)
		}
	}

	avgDepth := make([]float64, t.m)
	n := float64(len(t.depths))
	for _, sample := range t.depths {
		for i, d := range sample {
			avgDepth[i] += d
		}
	}
	for i := range avgDepth {
		avgDepth[i] = avgDepth[i]/n + 1 // +1 keeps thin books from exploding the ratio
	}

	offset := 0.0
	for i := 0; i < t.m; i++ {
		offset += cum[i] * c * math.Pow(DefaultDecay, float64(i)) / avgDepth[i]
	}
	return offset
}

// VolumeRatio returns (vBid-vAsk)/(vBid+vAsk) over the windowed average
// resting volumes per level, weighting level i by exp(-i/2). The result is
// in [-1, 1]; its magnitude against a threshold decides whether the
// imbalance is worth acting on.
func (t *Tracker) VolumeRatio() float64 {
	if !t.Ready() {
		return 0
	}

	n := float64(len(t.bidVols))
	vBid, vAsk := 0.0, 0.0
	for i := 0; i < t.m; i++ {
		var sb, sa float64
		for _, sample := range t.bidVols {
			sb += float64(sample[i])
		}
		for _, sample := range t.askVols {
			sa += float64(sample[i])
		}
		w := math.Exp(-0.5 * float64(i))
		vBid += w * (sb/n + 1)
		vAsk += w * (sa/n + 1)
	}
	return (vBid - vAsk) / (vBid + vAsk)
}

func appendWindow(window [][]int64, sample []int64, max int) [][]int64 {
	window = append(window, sample)
	if len(window) > max {
		window = window[1:]
	}
	return window
}

func appendWindowF(window [][]float64, sample []float64, max int) [][]float64 {
	window = append(window, sample)
	if len(window) > max {
		window = window[1:]
	}
	return window
}

// Package mlofi computes multi-level order-flow imbalance (MLOFI) from
// consecutive order-book snapshots: a scalar summary of net buy/sell
// pressure across the top m levels of the book, together with a
// significance filter that suppresses noise-level imbalances.
package mlofi

import (
	"math"

	"github.com/davecliff/BristolStockExchange/pkg/lob"
)

// DefaultDecay is the per-level geometric weight applied when aggregating
// level contributions: deeper levels carry exponentially less pressure.
const DefaultDecay = 0.8

// LevelOFI returns the signed order-flow imbalance contribution of level n
// (1-based) between two consecutive snapshots of the same book.
//
// Bid-side growth counts as positive pressure: if the n-th bid price rose,
// the whole new quantity is pressure in; if it held, the quantity delta;
// if it fell, the old quantity counts as pressure out. The ask side is the
// mirror image and enters with opposite sign. Levels missing from either
// snapshot read as (price 0, qty 0) rather than being an error.
func LevelOFI(prev, curr lob.Snapshot, n int) int64 {
	b := curr.Level(lob.Buy, n)
	bPrev := prev.Level(lob.Buy, n)
	a := curr.Level(lob.Sell, n)
	aPrev := prev.Level(lob.Sell, n)

	var deltaW int64
	switch {
	case b.Price > bPrev.Price:
		deltaW = b.Qty
	case b.Price == bPrev.Price:
		deltaW = b.Qty - bPrev.Qty
	default:
		deltaW = -bPrev.Qty
	}

	var deltaV int64
	switch {
	case a.Price > aPrev.Price:
		deltaV = -aPrev.Qty
	case a.Price == aPrev.Price:
		deltaV = a.Qty - aPrev.Qty
	default:
		deltaV = a.Qty
	}

	return deltaW - deltaV
}

// ImbalanceAlter aggregates the per-level contributions of levels 1..m
// into a single scalar MLOFI value, weighting level i by DefaultDecay^(i-1).
// It is a pure function of its two snapshots and the depth parameter:
// identical inputs always produce identical output. A larger m broadens
// how deep into the book the imbalance looks.
func ImbalanceAlter(prev, curr lob.Snapshot, m int) float64 {
	v := 0.0
	for i := 1; i <= m; i++ {
		v += math.Pow(DefaultDecay, float64(i-1)) * float64(LevelOFI(prev, curr, i))
	}
	return v
}

// IsImbalanceSignificant reports whether an imbalance magnitude clears the
// configured noise threshold. Raising the threshold above a previously
// significant value makes that value insignificant.
func IsImbalanceSignificant(value, threshold float64) bool {
	return math.Abs(value) > threshold
}

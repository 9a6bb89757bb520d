package trader

import (
	"math"

	"github.com/davecliff/BristolStockExchange/pkg/lob"
	"github.com/davecliff/BristolStockExchange/pkg/mlofi"
)

// ImpactSensitive augments a shaver-style baseline with the multi-level
// order-flow imbalance signal: under net buying pressure it quotes more
// aggressively, under net selling pressure less. The evaluation filter is
// an independent toggle: with it enabled the trader only deviates from its
// baseline when the volume-ratio imbalance clears the significance
// threshold, so it ignores noise-level fluctuations.
type ImpactSensitive struct {
	base
	tracker  *mlofi.Tracker
	params   Params
	filtered bool
}

func NewImpactSensitive(id string, params Params, filtered bool) *ImpactSensitive {
	ttype := TypeImpactSensitive
	if filtered {
		ttype = TypeImpactFiltered
	}
	return &ImpactSensitive{
		base:     newBase(ttype, id),
		tracker:  mlofi.NewTracker(params.Depth),
		params:   params,
		filtered: filtered,
	}
}

// Respond feeds the tracker one snapshot per tick. With no previous
// snapshot the signal stays at zero, so the first tick always quotes the
// baseline.
func (t *ImpactSensitive) Respond(view MarketView) {
	t.tracker.Observe(view.Snapshot)
}

func (t *ImpactSensitive) Decide(view MarketView) (*lob.Order, error) {
	if t.assignment == nil {
		return nil, nil
	}

	baseline := t.baselinePrice(view.Snapshot)
	price := baseline

	if t.useSignal() {
		// anchor on the midprice when both sides are quoted, otherwise on
		// the baseline, then shift by the depth-normalised offset
		benchmark := float64(baseline)
		if mid, ok := view.Snapshot.Mid(); ok {
			benchmark = mid
		}
		shifted := benchmark + t.tracker.Offset(t.params.ImpactCoeff)
		price = clipToLimit(roundPrice(shifted), t.assignment.Side, t.assignment.Limit)
	}

	return t.quote(price, view), nil
}

// useSignal applies the evaluation filter: without it the signal is always
// in force, with it only a significant volume-ratio imbalance activates
// the imbalance-altered pricing.
func (t *ImpactSensitive) useSignal() bool {
	if !t.tracker.Ready() {
		return false
	}
	if !t.filtered {
		return true
	}
	return mlofi.IsImbalanceSignificant(t.tracker.VolumeRatio(), t.params.Threshold)
}

// baselinePrice joins the own-side best, never beyond the limit; an empty
// side means quoting the limit outright.
func (t *ImpactSensitive) baselinePrice(snap lob.Snapshot) int64 {
	a := t.assignment
	if a.Side == lob.Buy {
		if best, ok := snap.BestBid(); ok {
			return clipToLimit(best.Price, a.Side, a.Limit)
		}
		return a.Limit
	}
	if best, ok := snap.BestAsk(); ok {
		return clipToLimit(best.Price, a.Side, a.Limit)
	}
	return a.Limit
}

func roundPrice(p float64) int64 {
	r := int64(math.Round(p))
	if r < lob.SysMinPrice {
		r = lob.SysMinPrice
	}
	if r > lob.SysMaxPrice {
		r = lob.SysMaxPrice
	}
	return r
}

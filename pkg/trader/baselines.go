package trader

import (
	"math/rand"

	"github.com/davecliff/BristolStockExchange/pkg/lob"
)

// Giveaway quotes its limit price directly: it gives the whole surplus
// away but never trades at a loss.
type Giveaway struct {
	base
}

func NewGiveaway(id string) *Giveaway {
	return &Giveaway{base: newBase(TypeGiveaway, id)}
}

func (g *Giveaway) Decide(view MarketView) (*lob.Order, error) {
	if g.assignment == nil {
		return nil, nil
	}
	return g.quote(g.assignment.Limit, view), nil
}

// ZIC is the zero-intelligence-constrained trader of Gode & Sunder 1993:
// a uniform random quote between the system price bound and its limit.
type ZIC struct {
	base
	rng *rand.Rand
}

func NewZIC(id string, rng *rand.Rand) *ZIC {
	return &ZIC{base: newBase(TypeZIC, id), rng: rng}
}

func (z *ZIC) Decide(view MarketView) (*lob.Order, error) {
	if z.assignment == nil {
		return nil, nil
	}
	limit := z.assignment.Limit
	var lo, hi int64
	if z.assignment.Side == lob.Buy {
		lo, hi = lob.SysMinPrice, limit
	} else {
		lo, hi = limit, lob.SysMaxPrice
	}
	if lo > hi {
		return nil, ErrBadLimit
	}
	price := lo + z.rng.Int63n(hi-lo+1)
	return z.quote(price, view), nil
}

// Shaver improves on the current best price by one penny, clipped at its
// limit. With an empty side it posts a stub quote at the system bound.
type Shaver struct {
	base
}

func NewShaver(id string) *Shaver {
	return &Shaver{base: newBase(TypeShaver, id)}
}

func (s *Shaver) Decide(view MarketView) (*lob.Order, error) {
	if s.assignment == nil {
		return nil, nil
	}
	return s.quote(shavedPrice(view.Snapshot, s.assignment, 1), view), nil
}

// Sniper lurks until less than lurkThreshold of the session remains, then
// shaves increasingly aggressively as time runs out.
type Sniper struct {
	base
}

const (
	lurkThreshold   = 0.2
	shaveGrowthRate = 3
)

func NewSniper(id string) *Sniper {
	return &Sniper{base: newBase(TypeSniper, id)}
}

func (s *Sniper) Decide(view MarketView) (*lob.Order, error) {
	if s.assignment == nil || view.Countdown > lurkThreshold {
		return nil, nil
	}
	shave := int64(1.0 / (0.01 + view.Countdown/(shaveGrowthRate*lurkThreshold)))
	return s.quote(shavedPrice(view.Snapshot, s.assignment, shave), view), nil
}

// shavedPrice improves the own-side best by shave pennies, clipped at the
// assignment limit; stub-quotes the system bound when the side is empty.
func shavedPrice(snap lob.Snapshot, a *Assignment, shave int64) int64 {
	if a.Side == lob.Buy {
		best, ok := snap.BestBid()
		if !ok {
			return lob.SysMinPrice
		}
		return clipToLimit(best.Price+shave, a.Side, a.Limit)
	}
	best, ok := snap.BestAsk()
	if !ok {
		return lob.SysMaxPrice
	}
	return clipToLimit(best.Price-shave, a.Side, a.Limit)
}

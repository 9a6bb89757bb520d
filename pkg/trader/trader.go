// Package trader implements the trading agents that quote into the
// exchange: the classic baseline strategies (Giveaway, ZIC, Shaver,
// Sniper) and the impact-sensitive strategy that shifts its quotes with
// the multi-level order-flow imbalance signal.
package trader

import (
	"fmt"
	"math/rand"

	"github.com/davecliff/BristolStockExchange/pkg/lob"
)

// Strategy type names, as they appear in configuration and in the
// balances output.
const (
	TypeGiveaway        = "GVWY"
	TypeZIC             = "ZIC"
	TypeShaver          = "SHVR"
	TypeSniper          = "SNPR"
	TypeImpactSensitive = "ISHV"
	// impact-sensitive with the significance filter enabled
	TypeImpactFiltered = "ISHV-F"
)

var (
	ErrUnknownType = fmt.Errorf("unknown trader type")
	ErrBadLimit    = fmt.Errorf("assignment limit outside system price band")
)

// Assignment is a customer order: an instruction to buy or sell a quantity
// subject to a limit price. The trader's profit on a fill is the
// difference between its limit and the trade price.
type Assignment struct {
	Side      lob.Side
	Limit     int64
	Qty       int64
	IssueTime float64
}

// MarketView is the market state a trader observes when asked to act.
type MarketView struct {
	Time      float64
	Countdown float64 // fraction of the session remaining, 1 at open, 0 at close
	Snapshot  lob.Snapshot
}

// Trader is the capability contract every strategy variant satisfies:
// observe market state, decide an order action (or none). Decide returns
// (nil, nil) when the trader has nothing to quote; a non-nil error is a
// strategy computation failure the session logs and skips.
type Trader interface {
	ID() string
	Type() string
	SetAssignment(a Assignment)
	HasAssignment() bool
	Decide(view MarketView) (*lob.Order, error)
	// Respond lets the trader update internal state from the public view
	// after each tick. It never mutates the book.
	Respond(view MarketView)
	// Bookkeep credits the trader's balance for its own fill and retires
	// the completed assignment.
	Bookkeep(trade lob.Trade, time float64)
	Balance() int64
	Blotter() []lob.Trade
}

// Params carries the tunables the strategy variants draw from
// configuration.
type Params struct {
	// MLOFI depth, impact coefficient and significance threshold for the
	// impact-sensitive variants. The coefficient is deliberately a
	// configuration parameter: the mapping from imbalance magnitude to
	// price shift is a tuning choice, not a fixed constant.
	Depth       int
	ImpactCoeff float64
	Threshold   float64
}

// DefaultParams mirror the values the strategy was originally tuned with.
func DefaultParams() Params {
	return Params{Depth: 3, ImpactCoeff: 5, Threshold: 0.6}
}

// New constructs a trader of the named type.
func New(ttype, id string, rng *rand.Rand, params Params) (Trader, error) {
	switch ttype {
	case TypeGiveaway:
		return NewGiveaway(id), nil
	case TypeZIC:
		return NewZIC(id, rng), nil
	case TypeShaver:
		return NewShaver(id), nil
	case TypeSniper:
		return NewSniper(id), nil
	case TypeImpactSensitive:
		return NewImpactSensitive(id, params, false), nil
	case TypeImpactFiltered:
		return NewImpactSensitive(id, params, true), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, ttype)
}

// Types lists every known strategy type name.
func Types() []string {
	return []string{
		TypeGiveaway, TypeZIC, TypeShaver, TypeSniper,
		TypeImpactSensitive, TypeImpactFiltered,
	}
}

// base carries the bookkeeping every variant shares: id, balance, blotter
// and the single working assignment. Balances are mutated only by the
// owning trader's fills.
type base struct {
	id         string
	ttype      string
	balance    int64
	blotter    []lob.Trade
	assignment *Assignment
	lastQuote  int64
}

func newBase(ttype, id string) base {
	return base{id: id, ttype: ttype}
}

func (b *base) ID() string   { return b.id }
func (b *base) Type() string { return b.ttype }

func (b *base) SetAssignment(a Assignment) {
	// one working order per trader: a fresh assignment replaces the old
	b.assignment = &a
}

func (b *base) HasAssignment() bool { return b.assignment != nil }

func (b *base) Balance() int64       { return b.balance }
func (b *base) Blotter() []lob.Trade { return b.blotter }
func (b *base) Respond(_ MarketView) {}

func (b *base) Bookkeep(trade lob.Trade, _ float64) {
	if b.assignment == nil {
		return
	}
	var profit int64
	if b.assignment.Side == lob.Buy {
		profit = (b.assignment.Limit - trade.Price) * trade.Qty
	} else {
		profit = (trade.Price - b.assignment.Limit) * trade.Qty
	}
	b.balance += profit
	b.blotter = append(b.blotter, trade)
	b.assignment = nil
}

// quote assembles the outgoing order for the current assignment.
func (b *base) quote(price int64, view MarketView) *lob.Order {
	b.lastQuote = price
	return &lob.Order{
		Side:  b.assignment.Side,
		Price: price,
		Qty:   b.assignment.Qty,
		TID:   b.id,
		Time:  view.Time,
	}
}

// clipToLimit keeps a quote on the profitable side of the limit price.
func clipToLimit(price int64, side lob.Side, limit int64) int64 {
	if side == lob.Buy && price > limit {
		return limit
	}
	if side == lob.Sell && price < limit {
		return limit
	}
	return price
}

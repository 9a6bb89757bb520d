package lob

import "fmt"

// Side represents order side (buy/sell)
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "Bid"
	}
	return "Ask"
}

// System-wide price band, in integer pennies. Traders use these as
// stub-quote bounds when a side of the book is empty.
const (
	SysMinPrice int64 = 1
	SysMaxPrice int64 = 200
)

// Errors
var (
	ErrInvalidPrice  = fmt.Errorf("invalid price")
	ErrInvalidQty    = fmt.Errorf("invalid quantity")
	ErrInvalidSide   = fmt.Errorf("invalid side")
	ErrOrderNotFound = fmt.Errorf("order not found")
)

// Order represents a resting or incoming limit order. Price is in integer
// pennies. Qty is decremented on partial fills; an order is removed from
// the book when Qty reaches zero or it is cancelled.
type Order struct {
	ID    uint64
	Side  Side
	Price int64
	Qty   int64
	TID   string  // issuing trader
	Time  float64 // simulated issue time

	seq uint64 // arrival sequence, breaks price ties
}

// Trade represents an executed trade. Trades are created only by the
// matching engine and are never mutated afterwards.
type Trade struct {
	ID        uint64
	Price     int64
	Qty       int64
	BuyOrder  uint64
	SellOrder uint64
	Buyer     string
	Seller    string
	Time      float64
}

// PriceLevel is one aggregated price level of the book.
type PriceLevel struct {
	Price int64
	Qty   int64
	Count int
}

// Snapshot is the published view of the book down to a fixed depth.
// Bids are sorted best-first (descending), asks ascending. Revision is
// the book revision the snapshot was taken at.
type Snapshot struct {
	Revision uint64
	Time     float64
	Bids     []PriceLevel
	Asks     []PriceLevel
}

// BestBid returns the top bid level, if any.
func (s Snapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top ask level, if any.
func (s Snapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Mid returns the midprice when both sides are quoted.
func (s Snapshot) Mid() (float64, bool) {
	bb, okb := s.BestBid()
	ba, oka := s.BestAsk()
	if !okb || !oka {
		return 0, false
	}
	return float64(bb.Price+ba.Price) / 2, true
}

// Level returns the n-th level (1-based) of one side, zero-padded when the
// side is shallower than n. Depth beyond the snapshot is never an error.
func (s Snapshot) Level(side Side, n int) PriceLevel {
	var lvls []PriceLevel
	if side == Buy {
		lvls = s.Bids
	} else {
		lvls = s.Asks
	}
	if n < 1 || n > len(lvls) {
		return PriceLevel{}
	}
	return lvls[n-1]
}

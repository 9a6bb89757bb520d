package lob

import (
	"sort"
)

// OrderBook holds the resting bids and asks for a single instrument with
// strict price-time priority. It is not safe for concurrent use: a book is
// owned exclusively by one session and mutated serially.
type OrderBook struct {
	bids bookSide
	asks bookSide

	orders   map[uint64]*Order
	lastID   uint64
	lastSeq  uint64
	revision uint64
}

// NewOrderBook creates an empty order book.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:   bookSide{side: Buy},
		asks:   bookSide{side: Sell},
		orders: make(map[uint64]*Order),
	}
}

// Insert validates the order and rests it at its priority-ordered position.
// Orders at the same price queue behind earlier arrivals.
func (ob *OrderBook) Insert(order *Order) error {
	if err := ob.validate(order); err != nil {
		return err
	}
	if order.ID == 0 {
		ob.lastID++
		order.ID = ob.lastID
	} else if order.ID > ob.lastID {
		ob.lastID = order.ID
	}
	ob.lastSeq++
	order.seq = ob.lastSeq

	ob.sideOf(order.Side).add(order)
	ob.orders[order.ID] = order
	ob.revision++
	return nil
}

// Cancel removes a resting order. Cancelling an id that is not resting
// (already filled, already cancelled, or never seen) reports
// ErrOrderNotFound and changes no state.
func (ob *OrderBook) Cancel(id uint64) error {
	order, ok := ob.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	ob.sideOf(order.Side).remove(order)
	delete(ob.orders, id)
	ob.revision++
	return nil
}

// BestBid returns the aggregated top-of-book bid level.
func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	return ob.bids.best()
}

// BestAsk returns the aggregated top-of-book ask level.
func (ob *OrderBook) BestAsk() (PriceLevel, bool) {
	return ob.asks.best()
}

// Levels publishes the top-depth aggregated levels per side, stamped with
// the current book revision.
func (ob *OrderBook) Levels(depth int) Snapshot {
	return Snapshot{
		Revision: ob.revision,
		Bids:     ob.bids.levels(depth),
		Asks:     ob.asks.levels(depth),
	}
}

// Revision returns the monotonically increasing mutation counter.
func (ob *OrderBook) Revision() uint64 {
	return ob.revision
}

// Order returns a resting order by id.
func (ob *OrderBook) Order(id uint64) (*Order, bool) {
	o, ok := ob.orders[id]
	return o, ok
}

// Depth returns the number of resting orders on one side.
func (ob *OrderBook) Depth(side Side) int {
	n := 0
	for _, lvl := range ob.sideOf(side).levels(0) {
		n += lvl.Count
	}
	return n
}

func (ob *OrderBook) validate(order *Order) error {
	if order.Side != Buy && order.Side != Sell {
		return ErrInvalidSide
	}
	if order.Price <= 0 {
		return ErrInvalidPrice
	}
	if order.Qty <= 0 {
		return ErrInvalidQty
	}
	return nil
}

func (ob *OrderBook) sideOf(side Side) *bookSide {
	if side == Buy {
		return &ob.bids
	}
	return &ob.asks
}

// peekBest returns the single best order (price, then earliest arrival) on
// one side without removing it.
func (ob *OrderBook) peekBest(side Side) *Order {
	return ob.sideOf(side).peek()
}

// reduceBest decrements the best order on one side by qty, removing it when
// nothing remains. Used by the matching engine only.
func (ob *OrderBook) reduceBest(side Side, qty int64) {
	s := ob.sideOf(side)
	order := s.peek()
	if order == nil {
		return
	}
	order.Qty -= qty
	s.lvls[0].qty -= qty
	if order.Qty <= 0 {
		order.Qty = 0
		s.remove(order)
		delete(ob.orders, order.ID)
	}
	ob.revision++
}

// bookSide is one side of the book: price levels sorted best-first, each
// level a FIFO queue of orders.
type bookSide struct {
	side Side
	lvls []*sideLevel
}

type sideLevel struct {
	price  int64
	orders []*Order
	qty    int64
}

// better reports whether price a has priority over price b on this side.
func (bs *bookSide) better(a, b int64) bool {
	if bs.side == Buy {
		return a > b
	}
	return a < b
}

func (bs *bookSide) add(order *Order) {
	i := sort.Search(len(bs.lvls), func(i int) bool {
		return !bs.better(bs.lvls[i].price, order.Price)
	})
	if i < len(bs.lvls) && bs.lvls[i].price == order.Price {
		lvl := bs.lvls[i]
		lvl.orders = append(lvl.orders, order)
		lvl.qty += order.Qty
		return
	}
	lvl := &sideLevel{price: order.Price, orders: []*Order{order}, qty: order.Qty}
	bs.lvls = append(bs.lvls, nil)
	copy(bs.lvls[i+1:], bs.lvls[i:])
	bs.lvls[i] = lvl
}

func (bs *bookSide) remove(order *Order) {
	for i, lvl := range bs.lvls {
		if lvl.price != order.Price {
			continue
		}
		for j, o := range lvl.orders {
			if o.ID == order.ID {
				lvl.orders = append(lvl.orders[:j], lvl.orders[j+1:]...)
				lvl.qty -= o.Qty
				break
			}
		}
		if len(lvl.orders) == 0 {
			bs.lvls = append(bs.lvls[:i], bs.lvls[i+1:]...)
		}
		return
	}
}

// peek returns the earliest-arrived order at the best price.
func (bs *bookSide) peek() *Order {
	if len(bs.lvls) == 0 {
		return nil
	}
	return bs.lvls[0].orders[0]
}

func (bs *bookSide) best() (PriceLevel, bool) {
	if len(bs.lvls) == 0 {
		return PriceLevel{}, false
	}
	lvl := bs.lvls[0]
	return PriceLevel{Price: lvl.price, Qty: lvl.qty, Count: len(lvl.orders)}, true
}

// levels returns the top-depth aggregated levels, best first. depth <= 0
// means the whole side.
func (bs *bookSide) levels(depth int) []PriceLevel {
	n := len(bs.lvls)
	if depth > 0 && depth < n {
		n = depth
	}
	out := make([]PriceLevel, 0, n)
	for _, lvl := range bs.lvls[:n] {
		out = append(out, PriceLevel{Price: lvl.price, Qty: lvl.qty, Count: len(lvl.orders)})
	}
	return out
}

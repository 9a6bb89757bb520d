package lob

import (
	"github.com/luxfi/log"
)

// Engine matches incoming orders against the resting opposite side of the
// book it owns, under price-time priority with resting-price execution:
// when prices cross, the trade executes at the standing order's price, so
// price improvement always favours the order that was there first.
type Engine struct {
	book        *OrderBook
	lastTradeID uint64
	logger      log.Logger
}

// NewEngine creates a matching engine over book.
func NewEngine(book *OrderBook, logger log.Logger) *Engine {
	return &Engine{book: book, logger: logger}
}

// Book returns the order book the engine owns.
func (e *Engine) Book() *OrderBook {
	return e.book
}

// Submit attempts immediate matching before resting any remainder.
// It repeatedly takes the best opposite-side order; while prices cross it
// executes min(remaining quantities) at the resting price, decrements both
// sides, and removes fully filled orders. One Trade is emitted per partial
// or full match. Any unmatched remainder rests on the book.
func (e *Engine) Submit(order *Order) ([]Trade, error) {
	if err := e.book.validate(order); err != nil {
		return nil, err
	}
	if order.ID == 0 {
		e.book.lastID++
		order.ID = e.book.lastID
	}

	opposite := Sell
	if order.Side == Sell {
		opposite = Buy
	}

	var trades []Trade
	for order.Qty > 0 {
		resting := e.book.peekBest(opposite)
		if resting == nil {
			break
		}
		if order.Side == Buy && order.Price < resting.Price {
			break
		}
		if order.Side == Sell && order.Price > resting.Price {
			break
		}

		qty := order.Qty
		if resting.Qty < qty {
			qty = resting.Qty
		}

		e.lastTradeID++
		trade := Trade{
			ID:    e.lastTradeID,
			Price: resting.Price, // resting price wins
			Qty:   qty,
			Time:  order.Time,
		}
		if order.Side == Buy {
			trade.BuyOrder, trade.Buyer = order.ID, order.TID
			trade.SellOrder, trade.Seller = resting.ID, resting.TID
		} else {
			trade.BuyOrder, trade.Buyer = resting.ID, resting.TID
			trade.SellOrder, trade.Seller = order.ID, order.TID
		}

		order.Qty -= qty
		e.book.reduceBest(opposite, qty)
		trades = append(trades, trade)

		if e.logger != nil {
			e.logger.Debug("trade executed",
				"price", trade.Price,
				"qty", trade.Qty,
				"buyer", trade.Buyer,
				"seller", trade.Seller)
		}
	}

	if order.Qty > 0 {
		if err := e.book.Insert(order); err != nil {
			return trades, err
		}
	}
	return trades, nil
}

package lob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(NewOrderBook(), nil)
}

func TestEngineExactFill(t *testing.T) {
	e := newTestEngine()

	// empty book; rest an ask, then lift it exactly
	trades, err := e.Submit(&Order{Side: Sell, Price: 105, Qty: 5, TID: "S00"})
	require.NoError(t, err)
	assert.Empty(t, trades)

	trades, err = e.Submit(&Order{Side: Buy, Price: 105, Qty: 5, TID: "B00"})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(105), trades[0].Price)
	assert.Equal(t, int64(5), trades[0].Qty)
	assert.Equal(t, "B00", trades[0].Buyer)
	assert.Equal(t, "S00", trades[0].Seller)

	_, ok := e.Book().BestBid()
	assert.False(t, ok, "book should be empty after exact fill")
	_, ok = e.Book().BestAsk()
	assert.False(t, ok)
}

func TestEngineRestingPriceWins(t *testing.T) {
	e := newTestEngine()

	_, err := e.Submit(&Order{Side: Sell, Price: 100, Qty: 10, TID: "S00"})
	require.NoError(t, err)

	// aggressive buy at 102 still trades at the standing ask's 100
	trades, err := e.Submit(&Order{Side: Buy, Price: 102, Qty: 4, TID: "B00"})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(100), trades[0].Price)
	assert.Equal(t, int64(4), trades[0].Qty)

	best, ok := e.Book().BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(6), best.Qty, "resting ask reduced by traded qty")
}

func TestEnginePriceTimePriority(t *testing.T) {
	e := newTestEngine()

	a := &Order{Side: Buy, Price: 100, Qty: 10, TID: "B-A", Time: 1}
	b := &Order{Side: Buy, Price: 100, Qty: 10, TID: "B-B", Time: 2}
	_, err := e.Submit(a)
	require.NoError(t, err)
	_, err = e.Submit(b)
	require.NoError(t, err)

	trades, err := e.Submit(&Order{Side: Sell, Price: 100, Qty: 10, TID: "S00", Time: 3})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, a.ID, trades[0].BuyOrder, "earlier arrival at equal price fills first")
	assert.Equal(t, "B-A", trades[0].Buyer)

	best, ok := e.Book().BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(10), best.Qty, "B left untouched")
	resting, ok := e.Book().Order(b.ID)
	require.True(t, ok)
	assert.Equal(t, int64(10), resting.Qty)
}

func TestEngineCascadingFills(t *testing.T) {
	e := newTestEngine()

	_, err := e.Submit(&Order{Side: Sell, Price: 100, Qty: 3, TID: "S00"})
	require.NoError(t, err)
	_, err = e.Submit(&Order{Side: Sell, Price: 101, Qty: 3, TID: "S01"})
	require.NoError(t, err)
	_, err = e.Submit(&Order{Side: Sell, Price: 103, Qty: 3, TID: "S02"})
	require.NoError(t, err)

	// buy 7 @ 102 sweeps two levels, rests remainder of 1 at 102
	trades, err := e.Submit(&Order{Side: Buy, Price: 102, Qty: 7, TID: "B00"})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(100), trades[0].Price)
	assert.Equal(t, int64(3), trades[0].Qty)
	assert.Equal(t, int64(101), trades[1].Price)
	assert.Equal(t, int64(3), trades[1].Qty)

	bid, ok := e.Book().BestBid()
	require.True(t, ok)
	assert.Equal(t, int64(102), bid.Price)
	assert.Equal(t, int64(1), bid.Qty)

	ask, ok := e.Book().BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(103), ask.Price)
}

func TestEngineNeverLeavesCrossedBook(t *testing.T) {
	e := newTestEngine()

	orders := []Order{
		{Side: Buy, Price: 95, Qty: 2, TID: "B00"},
		{Side: Sell, Price: 105, Qty: 2, TID: "S00"},
		{Side: Buy, Price: 106, Qty: 1, TID: "B01"},
		{Side: Sell, Price: 94, Qty: 4, TID: "S01"},
		{Side: Buy, Price: 100, Qty: 3, TID: "B02"},
		{Side: Sell, Price: 100, Qty: 3, TID: "S02"},
	}
	for i := range orders {
		o := orders[i]
		_, err := e.Submit(&o)
		require.NoError(t, err)

		bid, okb := e.Book().BestBid()
		ask, oka := e.Book().BestAsk()
		if okb && oka {
			assert.Less(t, bid.Price, ask.Price, "book must never stay crossed")
		}
	}
}

func TestEngineQuantityConservation(t *testing.T) {
	e := newTestEngine()

	_, err := e.Submit(&Order{Side: Sell, Price: 100, Qty: 5, TID: "S00"})
	require.NoError(t, err)
	_, err = e.Submit(&Order{Side: Sell, Price: 100, Qty: 5, TID: "S01"})
	require.NoError(t, err)

	incoming := &Order{Side: Buy, Price: 100, Qty: 8, TID: "B00"}
	trades, err := e.Submit(incoming)
	require.NoError(t, err)

	var total int64
	for _, tr := range trades {
		total += tr.Qty
	}
	assert.Equal(t, int64(8), total, "buy-side fills equal sell-side fills")
	assert.Equal(t, int64(0), incoming.Qty)

	ask, ok := e.Book().BestAsk()
	require.True(t, ok)
	assert.Equal(t, int64(2), ask.Qty)
}

func TestEngineRejectsInvalidOrders(t *testing.T) {
	e := newTestEngine()

	_, err := e.Submit(&Order{Side: Buy, Price: 0, Qty: 1, TID: "B00"})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = e.Submit(&Order{Side: Buy, Price: 100, Qty: 0, TID: "B00"})
	assert.ErrorIs(t, err, ErrInvalidQty)

	// rejected orders never touch the book
	assert.Equal(t, uint64(0), e.Book().Revision())
}

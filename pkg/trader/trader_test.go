package trader

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davecliff/BristolStockExchange/pkg/lob"
)

func viewWith(bids, asks []lob.PriceLevel) MarketView {
	return MarketView{
		Time:      10,
		Countdown: 0.5,
		Snapshot:  lob.Snapshot{Bids: bids, Asks: asks},
	}
}

func TestFactory(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, ttype := range Types() {
		tr, err := New(ttype, "T00", rng, DefaultParams())
		require.NoError(t, err)
		assert.Equal(t, ttype, tr.Type())
		assert.Equal(t, "T00", tr.ID())
	}

	_, err := New("NOPE", "T00", rng, DefaultParams())
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestNoAssignmentMeansNoOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, ttype := range Types() {
		tr, err := New(ttype, "T00", rng, DefaultParams())
		require.NoError(t, err)

		order, err := tr.Decide(viewWith(nil, nil))
		assert.NoError(t, err, ttype)
		assert.Nil(t, order, ttype)
	}
}

func TestGiveawayQuotesLimit(t *testing.T) {
	g := NewGiveaway("B00")
	g.SetAssignment(Assignment{Side: lob.Buy, Limit: 110, Qty: 1})

	order, err := g.Decide(viewWith(nil, nil))
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, int64(110), order.Price)
	assert.Equal(t, lob.Buy, order.Side)
	assert.Equal(t, "B00", order.TID)
}

func TestZICStaysInsideLimit(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	z := NewZIC("B00", rng)
	z.SetAssignment(Assignment{Side: lob.Buy, Limit: 110, Qty: 1})
	for i := 0; i < 200; i++ {
		order, err := z.Decide(viewWith(nil, nil))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, order.Price, lob.SysMinPrice)
		assert.LessOrEqual(t, order.Price, int64(110))
	}

	s := NewZIC("S00", rng)
	s.SetAssignment(Assignment{Side: lob.Sell, Limit: 90, Qty: 1})
	for i := 0; i < 200; i++ {
		order, err := s.Decide(viewWith(nil, nil))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, order.Price, int64(90))
		assert.LessOrEqual(t, order.Price, lob.SysMaxPrice)
	}
}

func TestZICBadLimitIsStrategyError(t *testing.T) {
	z := NewZIC("S00", rand.New(rand.NewSource(1)))
	z.SetAssignment(Assignment{Side: lob.Sell, Limit: lob.SysMaxPrice + 50, Qty: 1})

	_, err := z.Decide(viewWith(nil, nil))
	assert.ErrorIs(t, err, ErrBadLimit)
}

func TestShaver(t *testing.T) {
	t.Run("improvesBestBid", func(t *testing.T) {
		s := NewShaver("B00")
		s.SetAssignment(Assignment{Side: lob.Buy, Limit: 120, Qty: 1})
		order, err := s.Decide(viewWith([]lob.PriceLevel{{Price: 100, Qty: 4}}, nil))
		require.NoError(t, err)
		assert.Equal(t, int64(101), order.Price)
	})

	t.Run("clipsAtLimit", func(t *testing.T) {
		s := NewShaver("B00")
		s.SetAssignment(Assignment{Side: lob.Buy, Limit: 100, Qty: 1})
		order, err := s.Decide(viewWith([]lob.PriceLevel{{Price: 100, Qty: 4}}, nil))
		require.NoError(t, err)
		assert.Equal(t, int64(100), order.Price)
	})

	t.Run("stubQuoteOnEmptySide", func(t *testing.T) {
		s := NewShaver("S00")
		s.SetAssignment(Assignment{Side: lob.Sell, Limit: 90, Qty: 1})
		order, err := s.Decide(viewWith(nil, nil))
		require.NoError(t, err)
		assert.Equal(t, lob.SysMaxPrice, order.Price)
	})
}

func TestSniperLurks(t *testing.T) {
	s := NewSniper("B00")
	s.SetAssignment(Assignment{Side: lob.Buy, Limit: 120, Qty: 1})

	early := viewWith([]lob.PriceLevel{{Price: 100, Qty: 1}}, nil)
	early.Countdown = 0.9
	order, err := s.Decide(early)
	require.NoError(t, err)
	assert.Nil(t, order, "sniper holds fire while time remains")

	late := viewWith([]lob.PriceLevel{{Price: 100, Qty: 1}}, nil)
	late.Countdown = 0.05
	order, err = s.Decide(late)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Greater(t, order.Price, int64(100), "late sniper shaves aggressively")
	assert.LessOrEqual(t, order.Price, int64(120))
}

func TestBookkeepProfit(t *testing.T) {
	g := NewGiveaway("B00")
	g.SetAssignment(Assignment{Side: lob.Buy, Limit: 110, Qty: 2})
	g.Bookkeep(lob.Trade{Price: 100, Qty: 2}, 5)
	assert.Equal(t, int64(20), g.Balance())
	assert.False(t, g.HasAssignment(), "fill retires the assignment")
	assert.Len(t, g.Blotter(), 1)

	s := NewGiveaway("S00")
	s.SetAssignment(Assignment{Side: lob.Sell, Limit: 90, Qty: 1})
	s.Bookkeep(lob.Trade{Price: 100, Qty: 1}, 5)
	assert.Equal(t, int64(10), s.Balance())
}

func TestImpactSensitiveFallsBackWithoutSignal(t *testing.T) {
	tr := NewImpactSensitive("B00", DefaultParams(), false)
	tr.SetAssignment(Assignment{Side: lob.Buy, Limit: 110, Qty: 1})

	// no snapshots observed yet: baseline pricing
	view := viewWith([]lob.PriceLevel{{Price: 100, Qty: 5}}, nil)
	order, err := tr.Decide(view)
	require.NoError(t, err)
	assert.Equal(t, int64(100), order.Price)
}

func TestImpactSensitiveShiftsWithPressure(t *testing.T) {
	params := Params{Depth: 3, ImpactCoeff: 5, Threshold: 0.6}
	tr := NewImpactSensitive("B00", params, false)
	tr.SetAssignment(Assignment{Side: lob.Buy, Limit: 150, Qty: 1})

	quiet := viewWith(
		[]lob.PriceLevel{{Price: 100, Qty: 5}},
		[]lob.PriceLevel{{Price: 104, Qty: 5}},
	)
	tr.Respond(quiet)

	surge := viewWith(
		[]lob.PriceLevel{{Price: 100, Qty: 20}},
		[]lob.PriceLevel{{Price: 104, Qty: 5}},
	)
	tr.Respond(surge)

	order, err := tr.Decide(surge)
	require.NoError(t, err)
	// midprice 102 plus a positive offset: more aggressive than the
	// baseline join at 100
	assert.Greater(t, order.Price, int64(100))
	assert.LessOrEqual(t, order.Price, int64(150))
}

func TestImpactSensitiveNegativePressureBacksOff(t *testing.T) {
	params := Params{Depth: 3, ImpactCoeff: 5, Threshold: 0.6}
	tr := NewImpactSensitive("B00", params, false)
	tr.SetAssignment(Assignment{Side: lob.Buy, Limit: 150, Qty: 1})

	tr.Respond(viewWith(
		[]lob.PriceLevel{{Price: 100, Qty: 5}},
		[]lob.PriceLevel{{Price: 104, Qty: 5}},
	))
	tr.Respond(viewWith(
		[]lob.PriceLevel{{Price: 100, Qty: 5}},
		[]lob.PriceLevel{{Price: 103, Qty: 25}},
	))

	order, err := tr.Decide(viewWith(
		[]lob.PriceLevel{{Price: 100, Qty: 5}},
		[]lob.PriceLevel{{Price: 103, Qty: 25}},
	))
	require.NoError(t, err)
	mid := 101.5
	assert.Less(t, float64(order.Price), mid, "selling pressure pulls the bid below mid")
}

func TestImpactFilteredIgnoresInsignificantImbalance(t *testing.T) {
	params := Params{Depth: 3, ImpactCoeff: 5, Threshold: 0.99}
	tr := NewImpactSensitive("B00", params, true)
	tr.SetAssignment(Assignment{Side: lob.Buy, Limit: 150, Qty: 1})

	tr.Respond(viewWith(
		[]lob.PriceLevel{{Price: 100, Qty: 5}},
		[]lob.PriceLevel{{Price: 104, Qty: 5}},
	))
	balanced := viewWith(
		[]lob.PriceLevel{{Price: 100, Qty: 6}},
		[]lob.PriceLevel{{Price: 104, Qty: 5}},
	)
	tr.Respond(balanced)

	order, err := tr.Decide(balanced)
	require.NoError(t, err)
	assert.Equal(t, int64(100), order.Price, "filter suppresses a sub-threshold signal")
}

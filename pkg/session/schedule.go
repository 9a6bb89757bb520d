package session

import (
	"math"
	"math/rand"

	"github.com/davecliff/BristolStockExchange/pkg/config"
	"github.com/davecliff/BristolStockExchange/pkg/lob"
	"github.com/davecliff/BristolStockExchange/pkg/trader"
)

// pendingAssignment is a customer order waiting for its issue time.
type pendingAssignment struct {
	tid string
	a   trader.Assignment
}

// orderFlow generates the customer orders that drive the market: each
// replenishment interval every buyer gets a bid assignment priced off the
// demand schedule and every seller an ask off the supply schedule, with
// issue times spread across the interval per the configured time mode.
type orderFlow struct {
	supply   config.ScheduleConfig
	demand   config.ScheduleConfig
	interval float64
	timeMode string
	rng      *rand.Rand
}

func newOrderFlow(cfg config.Config, rng *rand.Rand) *orderFlow {
	return &orderFlow{
		supply:   cfg.Supply,
		demand:   cfg.Demand,
		interval: cfg.Session.Interval,
		timeMode: cfg.Session.TimeMode,
		rng:      rng,
	}
}

// replenish produces a fresh batch of to-be-issued assignments for the
// whole population, anchored at sim time now.
func (f *orderFlow) replenish(now float64, buyers, sellers []string) []pendingAssignment {
	batch := make([]pendingAssignment, 0, len(buyers)+len(sellers))

	times := f.issueTimes(len(buyers))
	for i, tid := range buyers {
		batch = append(batch, pendingAssignment{
			tid: tid,
			a: trader.Assignment{
				Side:      lob.Buy,
				Limit:     f.orderPrice(i, len(buyers), f.demand),
				Qty:       1,
				IssueTime: now + times[i],
			},
		})
	}

	times = f.issueTimes(len(sellers))
	for i, tid := range sellers {
		batch = append(batch, pendingAssignment{
			tid: tid,
			a: trader.Assignment{
				Side:      lob.Sell,
				Limit:     f.orderPrice(i, len(sellers), f.supply),
				Qty:       1,
				IssueTime: now + times[i],
			},
		})
	}
	return batch
}

// orderPrice places the i-th of n limit prices inside the schedule range.
// fixed spaces them evenly, jittered adds up to half a step of noise, and
// random draws uniformly from the range. Results are clipped to the system
// price band.
func (f *orderFlow) orderPrice(i, n int, sched config.ScheduleConfig) int64 {
	pmin := clampSys(sched.PriceLow)
	pmax := clampSys(sched.PriceHigh)
	prange := float64(pmax - pmin)

	step := 0.0
	if n > 1 {
		step = prange / float64(n-1)
	}
	halfStep := int64(math.Round(step / 2))

	var price int64
	switch sched.StepMode {
	case "fixed":
		price = pmin + int64(float64(i)*step)
	case "jittered":
		price = pmin + int64(float64(i)*step)
		if halfStep > 0 {
			price += f.rng.Int63n(2*halfStep+1) - halfStep
		}
	case "random":
		price = pmin + f.rng.Int63n(pmax-pmin+1)
	}
	return clampSys(price)
}

// issueTimes spreads n issue offsets across the replenishment interval,
// squished so the last arrival lands on the interval boundary, then
// shuffled so trader index does not correlate with arrival order.
func (f *orderFlow) issueTimes(n int) []float64 {
	if n == 0 {
		return nil
	}
	tstep := f.interval
	if n > 1 {
		tstep = f.interval / float64(n-1)
	}

	times := make([]float64, n)
	arrival := 0.0
	for t := 0; t < n; t++ {
		switch f.timeMode {
		case "periodic":
			arrival = f.interval
		case "drip-fixed":
			arrival = float64(t) * tstep
		case "drip-jitter":
			arrival = float64(t)*tstep + tstep*f.rng.Float64()
		case "drip-poisson":
			arrival += f.rng.ExpFloat64() * f.interval / float64(n)
		}
		times[t] = arrival
	}

	// fit the drawn arrivals back into the interval
	last := times[n-1]
	if last > 0 && last != f.interval {
		for t := range times {
			times[t] = f.interval * (times[t] / last)
		}
	}

	f.rng.Shuffle(n, func(i, j int) {
		times[i], times[j] = times[j], times[i]
	})
	return times
}

func clampSys(p int64) int64 {
	if p < lob.SysMinPrice {
		return lob.SysMinPrice
	}
	if p > lob.SysMaxPrice {
		return lob.SysMaxPrice
	}
	return p
}

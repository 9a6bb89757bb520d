// Package session runs one trading day: a discrete-event scheduler that
// feeds customer orders to a population of traders, routes their quotes
// through the matching engine, and records everything on an append-only
// tape. Event processing is strictly serial: one order is fully matched,
// cascading fills included, before the next trader acts. That is the
// zero-latency assumption of the model, so a session must never be driven
// from more than one goroutine. Parallel replication happens across
// independent sessions, which share no mutable state.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/luxfi/log"

	"github.com/davecliff/BristolStockExchange/pkg/config"
	"github.com/davecliff/BristolStockExchange/pkg/lob"
	"github.com/davecliff/BristolStockExchange/pkg/metrics"
	"github.com/davecliff/BristolStockExchange/pkg/trader"
)

// State is the session lifecycle: Open before Run, Trading inside the tick
// loop, Closed afterwards.
type State int

const (
	Open State = iota
	Trading
	Closed
)

var ErrSessionClosed = fmt.Errorf("session closed")

// Session owns one order book, one tape and one trader population by
// exclusive ownership.
type Session struct {
	id      string
	day     int
	cfg     config.Config
	logger  log.Logger
	metrics *metrics.Metrics

	book    *lob.OrderBook
	engine  *lob.Engine
	traders map[string]trader.Trader
	ids     []string // stable iteration and random selection
	buyers  []string
	sellers []string

	rng     *rand.Rand
	flow    *orderFlow
	pending []pendingAssignment
	resting map[string]uint64 // last quoted order per trader
	tape    *Tape
	state   State

	// OnTrade, when set before Run, observes each trade as it is taped.
	OnTrade func(TradeRecord)
}

// New builds a session for one trading day. day offsets the seed so
// replicated days draw independent randomness while staying reproducible.
// Configuration malformed enough that the session cannot initialize is the
// only fatal error in the core.
func New(cfg config.Config, day int, logger log.Logger, m *metrics.Metrics) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Session.Seed + int64(day)))
	book := lob.NewOrderBook()

	s := &Session{
		id:      uuid.NewString(),
		day:     day,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		book:    book,
		engine:  lob.NewEngine(book, logger),
		traders: make(map[string]trader.Trader),
		rng:     rng,
		flow:    newOrderFlow(cfg, rng),
		resting: make(map[string]uint64),
		tape:    NewTape(),
		state:   Open,
	}

	params := trader.Params{
		Depth:       cfg.Signal.Depth,
		ImpactCoeff: cfg.Signal.ImpactCoeff,
		Threshold:   cfg.Signal.Threshold,
	}
	if err := s.populate("B", cfg.Buyers, params, &s.buyers); err != nil {
		return nil, err
	}
	if err := s.populate("S", cfg.Sellers, params, &s.sellers); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) populate(prefix string, pop []config.Population, params trader.Params, out *[]string) error {
	n := 0
	for _, p := range pop {
		for i := 0; i < p.Count; i++ {
			id := fmt.Sprintf("%s%02d", prefix, n)
			t, err := trader.New(p.Type, id, s.rng, params)
			if err != nil {
				return err
			}
			s.traders[id] = t
			s.ids = append(s.ids, id)
			*out = append(*out, id)
			n++
		}
	}
	return nil
}

// ID returns the session's unique run id.
func (s *Session) ID() string { return s.id }

// Day returns the trading-day index.
func (s *Session) Day() int { return s.day }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Tape returns the session's tape.
func (s *Session) Tape() *Tape { return s.tape }

// Trader returns a member of the population by id.
func (s *Session) Trader(id string) (trader.Trader, bool) {
	t, ok := s.traders[id]
	return t, ok
}

// Submit routes one order through the matching engine and tapes the
// resulting trades. Closed sessions reject all submissions.
func (s *Session) Submit(order *lob.Order) ([]lob.Trade, error) {
	if s.state == Closed {
		return nil, ErrSessionClosed
	}
	return s.engine.Submit(order)
}

// Run drives the session from Open through Trading to Closed. Each tick
// one uniformly chosen trader acts; its order is fully resolved before
// anything else happens. Cancellation via ctx takes effect after the
// current tick completes; in-flight matching is never interrupted.
func (s *Session) Run(ctx context.Context) error {
	if s.state != Open {
		return ErrSessionClosed
	}
	s.state = Trading

	nTraders := len(s.ids)
	timestep := 1.0 / float64(nTraders)
	duration := float64(s.cfg.Session.Ticks) * timestep

	s.logger.Info("session open",
		"session", s.id,
		"day", s.day,
		"traders", nTraders,
		"ticks", s.cfg.Session.Ticks)

	for tick := 0; tick < s.cfg.Session.Ticks; tick++ {
		select {
		case <-ctx.Done():
			s.close()
			s.logger.Info("session stopped", "session", s.id, "tick", tick)
			return ctx.Err()
		default:
		}

		now := float64(tick) * timestep
		countdown := (duration - now) / duration

		s.issueAssignments(now)
		s.step(now, countdown)

		if s.metrics != nil {
			s.metrics.TicksProcessed.Inc()
		}
	}

	s.close()
	s.logger.Info("session closed",
		"session", s.id,
		"day", s.day,
		"trades", len(s.tape.trades),
		"quotes", len(s.tape.quotes))
	return nil
}

// step runs one tick: one trader decides, its order is matched to
// completion, then the whole population observes the new public state.
func (s *Session) step(now, countdown float64) {
	tid := s.ids[s.rng.Intn(len(s.ids))]
	t := s.traders[tid]

	view := trader.MarketView{
		Time:      now,
		Countdown: countdown,
		Snapshot:  s.snapshot(now),
	}

	order, err := t.Decide(view)
	if err != nil {
		// a strategy computation failure never aborts the session: the
		// trader simply takes no action this tick
		s.logger.Warn("trader decision failed, skipping tick",
			"session", s.id, "trader", tid, "error", err)
		if s.metrics != nil {
			s.metrics.StrategyErrors.Inc()
		}
		return
	}
	if order == nil {
		return
	}

	s.tape.AppendQuote(QuoteRecord{
		Session: s.id,
		Day:     s.day,
		Time:    now,
		TID:     order.TID,
		Side:    order.Side,
		Price:   order.Price,
		Qty:     order.Qty,
	})

	// each trader works at most one live quote: a new quote supersedes any
	// previous one still resting. A fill in the meantime leaves a stale id
	// behind, which the book reports as not-found and we ignore.
	if prev, ok := s.resting[tid]; ok {
		if err := s.book.Cancel(prev); err != nil && !errors.Is(err, lob.ErrOrderNotFound) {
			s.logger.Warn("cancel failed", "session", s.id, "order", prev, "error", err)
		}
	}

	trades, err := s.engine.Submit(order)
	if err != nil {
		// validation failure: the order is discarded and the originating
		// trader notified via the failure result; the session continues
		s.logger.Warn("order rejected",
			"session", s.id, "trader", tid, "error", err)
		if s.metrics != nil {
			s.metrics.OrdersRejected.Inc()
		}
		return
	}
	s.resting[tid] = order.ID
	if s.metrics != nil {
		s.metrics.OrdersSubmitted.Inc()
	}

	for _, tr := range trades {
		s.bookkeep(tr, now)
		rec := TradeRecord{
			Session: s.id,
			Day:     s.day,
			Time:    now,
			Price:   tr.Price,
			Qty:     tr.Qty,
			Buyer:   tr.Buyer,
			Seller:  tr.Seller,
		}
		s.tape.AppendTrade(rec)
		if s.OnTrade != nil {
			s.OnTrade(rec)
		}
		if s.metrics != nil {
			s.metrics.TradesExecuted.Inc()
		}
	}

	// everyone sees the post-match book; Respond never mutates it, so a
	// fixed iteration order is fine
	post := trader.MarketView{
		Time:      now,
		Countdown: countdown,
		Snapshot:  s.snapshot(now),
	}
	for _, id := range s.ids {
		s.traders[id].Respond(post)
	}
}

// bookkeep credits both counterparties for a fill. Orders only ever come
// from the session's own population, but a missing id is tolerated.
func (s *Session) bookkeep(tr lob.Trade, now float64) {
	if buyer, ok := s.traders[tr.Buyer]; ok {
		buyer.Bookkeep(tr, now)
	}
	if seller, ok := s.traders[tr.Seller]; ok {
		seller.Bookkeep(tr, now)
	}
}

// issueAssignments hands due customer orders to their traders and
// replenishes the batch when it runs dry.
func (s *Session) issueAssignments(now float64) {
	if len(s.pending) == 0 {
		s.pending = s.flow.replenish(now, s.buyers, s.sellers)
		return
	}

	remaining := s.pending[:0]
	for _, p := range s.pending {
		if p.a.IssueTime < now {
			s.traders[p.tid].SetAssignment(p.a)
		} else {
			remaining = append(remaining, p)
		}
	}
	s.pending = remaining
}

func (s *Session) snapshot(now float64) lob.Snapshot {
	snap := s.book.Levels(0)
	snap.Time = now
	return snap
}

func (s *Session) close() {
	s.state = Closed
	if s.metrics != nil {
		s.metrics.SessionsClosed.Inc()
	}
}

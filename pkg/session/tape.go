package session

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/davecliff/BristolStockExchange/pkg/lob"
)

// TradeRecord is one executed trade on the tape, the single source of
// truth for downstream analysis.
type TradeRecord struct {
	Session string
	Day     int
	Time    float64
	Price   int64
	Qty     int64
	Buyer   string
	Seller  string
}

// QuoteRecord is one raw quote as submitted, before matching.
type QuoteRecord struct {
	Session string
	Day     int
	Time    float64
	TID     string
	Side    lob.Side
	Price   int64
	Qty     int64
}

// Tape is the append-only chronological record of a session: every trade
// and every raw quote, totally ordered by simulated time. Records are
// never mutated or deleted.
type Tape struct {
	trades []TradeRecord
	quotes []QuoteRecord
}

func NewTape() *Tape {
	return &Tape{}
}

func (t *Tape) AppendTrade(r TradeRecord) {
	t.trades = append(t.trades, r)
}

func (t *Tape) AppendQuote(r QuoteRecord) {
	t.quotes = append(t.quotes, r)
}

// Trades returns the trade records in tape order.
func (t *Tape) Trades() []TradeRecord {
	return t.trades
}

// Quotes returns the quote records in tape order.
func (t *Tape) Quotes() []QuoteRecord {
	return t.quotes
}

// WriteTradesCSV dumps the trade tape as tabular records for the external
// analysis collaborators.
func (t *Tape) WriteTradesCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"session", "day", "time", "price", "qty", "buyer", "seller"}); err != nil {
		return err
	}
	for _, r := range t.trades {
		rec := []string{
			r.Session,
			strconv.Itoa(r.Day),
			strconv.FormatFloat(r.Time, 'f', 4, 64),
			strconv.FormatInt(r.Price, 10),
			strconv.FormatInt(r.Qty, 10),
			r.Buyer,
			r.Seller,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteQuotesCSV dumps the raw quote stream.
func (t *Tape) WriteQuotesCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"session", "day", "time", "trader", "side", "price", "qty"}); err != nil {
		return err
	}
	for _, r := range t.quotes {
		rec := []string{
			r.Session,
			strconv.Itoa(r.Day),
			strconv.FormatFloat(r.Time, 'f', 4, 64),
			r.TID,
			r.Side.String(),
			strconv.FormatInt(r.Price, 10),
			strconv.FormatInt(r.Qty, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

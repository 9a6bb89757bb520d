package session

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// TypeBalance is the end-of-day aggregate profit for one strategy type:
// the unit the hypothesis-testing collaborators consume.
type TypeBalance struct {
	Type    string
	Traders int
	Total   int64
	Mean    decimal.Decimal
}

// Balances aggregates per-trader profit into per-type records, sorted by
// type name for stable output.
func (s *Session) Balances() []TypeBalance {
	byType := make(map[string]*TypeBalance)
	for _, t := range s.traders {
		tb, ok := byType[t.Type()]
		if !ok {
			tb = &TypeBalance{Type: t.Type()}
			byType[t.Type()] = tb
		}
		tb.Traders++
		tb.Total += t.Balance()
	}

	out := make([]TypeBalance, 0, len(byType))
	for _, tb := range byType {
		tb.Mean = decimal.NewFromInt(tb.Total).
			DivRound(decimal.NewFromInt(int64(tb.Traders)), 4)
		out = append(out, *tb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// WriteBalancesCSV writes one row per strategy type for one trading day.
func WriteBalancesCSV(w io.Writer, session string, day int, balances []TypeBalance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"session", "day", "type", "traders", "total", "mean"}); err != nil {
		return err
	}
	for _, b := range balances {
		rec := []string{
			session,
			strconv.Itoa(day),
			b.Type,
			strconv.Itoa(b.Traders),
			strconv.FormatInt(b.Total, 10),
			b.Mean.String(),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

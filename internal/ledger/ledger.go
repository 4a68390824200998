package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Epsilon is the quantity tolerance in MMTCO2e. Quantities within Epsilon of
// zero are treated as zero and dropped by Cleanup.
const Epsilon = 1e-7

var (
	ErrNotFound           = errors.New("no batch matches selection")
	ErrAmbiguousSelection = errors.New("selection matches more than one batch")
)

// Row is a materialized ledger row: one batch key and its quantity.
type Row struct {
	Key Key
	Qty float64
}

// Ledger is the single source of truth for compliance instruments: a sparse
// table mapping classification keys to quantities. Keying by the full
// classification tuple means adding to an existing key sums in place.
type Ledger struct {
	rows map[Key]float64
}

func New() *Ledger {
	return &Ledger{rows: make(map[Key]float64)}
}

// Add applies a signed quantity delta to the batch at key k, creating the row
// if absent. This is the only primitive that changes quantities.
func (l *Ledger) Add(k Key, qty float64) {
	l.rows[k] += qty
}

// Quantity returns the quantity at key k (zero for absent rows).
func (l *Ledger) Quantity(k Key) float64 {
	return l.rows[k]
}

// Transfer moves qty from one batch to another. Total quantity is unchanged.
// The source row may go negative; callers that permit this (historical deficit
// reconciliation) re-key the remainder to StatusDeficit.
func (l *Ledger) Transfer(from, to Key, qty float64) {
	if qty == 0 {
		return
	}
	l.Add(from, -qty)
	l.Add(to, qty)
}

// Rekey moves the full quantity of every row matching pred to rekey(key),
// merging into any existing destination rows. Used for status transitions
// (not_avail -> avail, avail -> unsold, ...). All matched rows are lifted off
// the books before any destination is written, so a destination that itself
// matches pred cannot clobber a quantity merged into it.
func (l *Ledger) Rekey(pred func(Key) bool, rekey func(Key) Key) {
	matched := l.Select(pred)
	for _, r := range matched {
		delete(l.rows, r.Key)
	}
	for _, r := range matched {
		l.rows[rekey(r.Key)] += r.Qty
	}
}

// Select returns the rows matching pred, ordered deterministically by Key.Less
// (earliest vintage first). It never mutates the ledger.
func (l *Ledger) Select(pred func(Key) bool) []Row {
	var out []Row
	for k, q := range l.rows {
		if pred(k) {
			out = append(out, Row{Key: k, Qty: q})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// Singleton returns the exactly-one row matching pred, or a typed error when
// the selection is empty or ambiguous.
func (l *Ledger) Singleton(pred func(Key) bool) (Row, error) {
	rows := l.Select(pred)
	switch len(rows) {
	case 0:
		return Row{}, ErrNotFound
	case 1:
		return rows[0], nil
	default:
		return Row{}, fmt.Errorf("%w: %d matches", ErrAmbiguousSelection, len(rows))
	}
}

// Sum totals the quantity of all rows matching pred.
func (l *Ledger) Sum(pred func(Key) bool) float64 {
	total := 0.0
	for k, q := range l.rows {
		if pred(k) {
			total += q
		}
	}
	return total
}

// Total sums every row on the books, retirement included.
func (l *Ledger) Total() float64 {
	total := 0.0
	for _, q := range l.rows {
		total += q
	}
	return total
}

// Cleanup drops rows whose quantity is NaN or within Epsilon of zero.
// Idempotent: a second call on a cleaned ledger is a no-op.
func (l *Ledger) Cleanup() {
	for k, q := range l.rows {
		if math.IsNaN(q) || math.Abs(q) < Epsilon {
			delete(l.rows, k)
		}
	}
}

// Clone returns a deep copy, used for end-of-quarter snapshots.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{rows: make(map[Key]float64, len(l.rows))}
	for k, q := range l.rows {
		c.rows[k] = q
	}
	return c
}

// Rows returns every row, ordered deterministically.
func (l *Ledger) Rows() []Row {
	return l.Select(func(Key) bool { return true })
}

func (l *Ledger) Len() int { return len(l.rows) }

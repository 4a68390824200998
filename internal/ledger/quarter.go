package ledger

import "fmt"

// Quarter identifies a calendar quarter (e.g. 2013Q1). The zero value is the
// "not applicable" sentinel used by batches that are outside the auction cycle.
type Quarter struct {
	Year int
	Q    int // 1..4
}

// NeverUnsold is the far-future sentinel carried by batches that have never
// gone unsold at auction.
var NeverUnsold = Quarter{Year: 2200, Q: 4}

// QuarterNA is the zero-value sentinel for date dimensions that do not apply.
var QuarterNA = Quarter{}

func NewQuarter(year, q int) (Quarter, error) {
	if q < 1 || q > 4 {
		return Quarter{}, fmt.Errorf("quarter out of range: %dQ%d", year, q)
	}
	return Quarter{Year: year, Q: q}, nil
}

// ParseQuarter parses the "2019Q2" wire form.
func ParseQuarter(s string) (Quarter, error) {
	var year, q int
	if _, err := fmt.Sscanf(s, "%dQ%d", &year, &q); err != nil {
		return Quarter{}, fmt.Errorf("malformed quarter %q", s)
	}
	return NewQuarter(year, q)
}

// MustQuarter panics on an invalid quarter. For package-level tables and tests.
func MustQuarter(year, q int) Quarter {
	qt, err := NewQuarter(year, q)
	if err != nil {
		panic(err)
	}
	return qt
}

func (q Quarter) IsZero() bool { return q == Quarter{} }

func (q Quarter) String() string {
	if q.IsZero() {
		return "n/a"
	}
	return fmt.Sprintf("%dQ%d", q.Year, q.Q)
}

// Index returns a monotonically increasing ordinal, usable for ordering and
// distance arithmetic.
func (q Quarter) Index() int { return q.Year*4 + (q.Q - 1) }

func (q Quarter) Before(other Quarter) bool { return q.Index() < other.Index() }

func (q Quarter) After(other Quarter) bool { return q.Index() > other.Index() }

// Next returns the following calendar quarter.
func (q Quarter) Next() Quarter {
	if q.Q == 4 {
		return Quarter{Year: q.Year + 1, Q: 1}
	}
	return Quarter{Year: q.Year, Q: q.Q + 1}
}

// AddQuarters returns the quarter n quarters after q (n may be negative).
func (q Quarter) AddQuarters(n int) Quarter {
	idx := q.Index() + n
	year := idx / 4
	rem := idx % 4
	if rem < 0 {
		rem += 4
		year--
	}
	return Quarter{Year: year, Q: rem + 1}
}

// QuartersSince returns the number of quarters elapsed from other to q.
// Positive when q is later.
func (q Quarter) QuartersSince(other Quarter) int { return q.Index() - other.Index() }

// QuartersOf lists all four quarters of a calendar year in order.
func QuartersOf(year int) [4]Quarter {
	return [4]Quarter{{year, 1}, {year, 2}, {year, 3}, {year, 4}}
}

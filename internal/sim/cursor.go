// Package sim is the quarterly account-ledger simulation engine: the quarter
// cursor, the per-jurisdiction scenario state, and the transition function
// that applies one quarter of auction mechanics to the instrument ledger.
package sim

import "wcisim/internal/ledger"

// Cursor is a jurisdiction's private time cursor. It advances strictly
// forward one quarter at a time and goes inert at the configured end date.
// Each jurisdiction owns its own cursor; nothing is shared between runs.
type Cursor struct {
	cur ledger.Quarter
	end ledger.Quarter
}

func NewCursor(start, end ledger.Quarter) *Cursor {
	return &Cursor{cur: start, end: end}
}

// Current returns the quarter the cursor sits on.
func (c *Cursor) Current() ledger.Quarter { return c.cur }

// Done reports whether the cursor has passed the end date.
func (c *Cursor) Done() bool { return c.cur.After(c.end) }

// Advance steps forward exactly one quarter. Once past the end date it is a
// no-op and returns false.
func (c *Cursor) Advance() bool {
	if c.Done() {
		return false
	}
	c.cur = c.cur.Next()
	return true
}

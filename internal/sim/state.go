package sim

import "wcisim/internal/ledger"

// AuctionOutcome records what one auction offered and what cleared. The
// append-only history of outcomes is both a reporting output and the input to
// the eligibility rules (consecutive sell-outs unlock reintroduction and
// redesignation).
type AuctionOutcome struct {
	Quarter   ledger.Quarter
	Type      ledger.AuctionType
	Available float64
	Sold      float64
}

// Fraction is the realized sold fraction, zero when nothing was offered.
func (o AuctionOutcome) Fraction() float64 {
	if o.Available <= ledger.Epsilon {
		return 0
	}
	return o.Sold / o.Available
}

// SoldOut reports a fully-cleared auction.
func (o AuctionOutcome) SoldOut() bool {
	return o.Available > ledger.Epsilon && o.Available-o.Sold <= ledger.Epsilon
}

// Snapshot is the durable end-of-quarter record: a deep copy of the ledger
// tagged with its quarter.
type Snapshot struct {
	Quarter ledger.Quarter
	Ledger  *ledger.Ledger
}

// State is the per-jurisdiction scenario state accumulated across quarters.
type State struct {
	Juris ledger.Jurisdiction

	// Outcomes is append-only: one entry per auction actually held.
	Outcomes []AuctionOutcome

	// ConsecutiveSellouts counts back-to-back fully-sold current auctions.
	// Reintroduction unlocks at two.
	ConsecutiveSellouts int

	// Snapshots holds one ledger copy per completed quarter.
	Snapshots []Snapshot

	advanceSoldOut map[ledger.Quarter]bool
}

func NewState(j ledger.Jurisdiction) *State {
	return &State{Juris: j, advanceSoldOut: make(map[ledger.Quarter]bool)}
}

// ReintroEligible reports whether unsold current-auction allowances may be
// reintroduced this quarter.
func (s *State) ReintroEligible() bool { return s.ConsecutiveSellouts >= 2 }

// RecordAdvance notes an advance auction's outcome for the same-year
// redesignation rule.
func (s *State) RecordAdvance(o AuctionOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	s.advanceSoldOut[o.Quarter] = o.SoldOut()
}

// AdvanceSoldOutAt reports whether the advance auction at q cleared fully.
func (s *State) AdvanceSoldOutAt(q ledger.Quarter) bool { return s.advanceSoldOut[q] }

// RecordCurrent notes a current auction's outcome and rolls the sell-out
// counter: a full clear extends the streak, anything less resets it.
func (s *State) RecordCurrent(o AuctionOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	if o.Available <= ledger.Epsilon {
		return // no auction held; streak unchanged
	}
	if o.SoldOut() {
		s.ConsecutiveSellouts++
	} else {
		s.ConsecutiveSellouts = 0
	}
}

// LastSnapshot returns the most recent snapshot, or nil before the first
// completed quarter.
func (s *State) LastSnapshot() *Snapshot {
	if len(s.Snapshots) == 0 {
		return nil
	}
	return &s.Snapshots[len(s.Snapshots)-1]
}

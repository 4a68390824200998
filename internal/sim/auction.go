package sim

import (
	"wcisim/internal/ledger"
)

// QC reintroduction anomalies: dated exceptions from the recorded 2015
// auctions, preserved as-is because their regulatory basis is uncertain.
var (
	qcNoReintroQuarter       = ledger.MustQuarter(2015, 2)
	qcVintage2013OnlyFrom    = ledger.MustQuarter(2015, 3)
	qcVintage2013OnlyThrough = ledger.MustQuarter(2015, 4)
)

// redesignationCap limits redesignated or reintroduced quantities to this
// share of the destination auction's available supply.
const redesignationCap = 0.25

func availableAt(t ledger.AuctionType, q ledger.Quarter) func(ledger.Key) bool {
	return func(k ledger.Key) bool {
		return k.Acct == ledger.AcctAuctHold && k.AuctType == t &&
			k.Stat == ledger.StatusAvailable && k.DateLevel == q
	}
}

// advanceAuction runs one quarter's advance auction: lots dated this quarter
// become available, CA may redesignate January leftovers into a fully-selling
// Q4, and the sold fraction clears redesignated lots before new ones.
func (s *Simulation) advanceAuction(q ledger.Quarter) {
	s.led.Rekey(
		func(k ledger.Key) bool {
			return k.Acct == ledger.AcctAuctHold && k.AuctType == ledger.AuctionAdvance &&
				k.Stat == ledger.StatusNotAvailable && k.DateLevel == q
		},
		func(k ledger.Key) ledger.Key { k.Stat = ledger.StatusAvailable; return k },
	)

	if s.juris == ledger.CA && q.Q == 4 &&
		s.state.AdvanceSoldOutAt(ledger.Quarter{Year: q.Year, Q: 2}) &&
		s.state.AdvanceSoldOutAt(ledger.Quarter{Year: q.Year, Q: 3}) {
		s.redesignateUnsoldAdvance(q)
	}

	fraction := s.sales.SoldFraction(ledger.AuctionAdvance, q)
	outcome := s.runSale(q, ledger.AuctionAdvance, fraction, []func(ledger.Key) bool{
		func(k ledger.Key) bool { return k.New == ledger.NewnessRedes },
		func(k ledger.Key) bool { return k.New != ledger.NewnessRedes },
	})
	if outcome.Available > ledger.Epsilon {
		s.state.RecordAdvance(outcome)
	}
}

// redesignateUnsoldAdvance re-offers advance lots that went unsold in Q1 of
// the same year, capped at a quarter of this auction's available supply.
func (s *Simulation) redesignateUnsoldAdvance(q ledger.Quarter) {
	available := s.led.Sum(availableAt(ledger.AuctionAdvance, q))
	budget := redesignationCap * available
	if budget <= ledger.Epsilon {
		return
	}
	q1 := ledger.Quarter{Year: q.Year, Q: 1}
	candidates := s.led.Select(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctAuctHold && k.AuctType == ledger.AuctionAdvance &&
			k.Stat == ledger.StatusUnsold && k.LastUnsold == q1
	})
	s.moveIntoAuction(candidates, budget, ledger.NewnessRedes, q)
}

// currentAuction runs one quarter's current auction: state-owned lots and CA
// consignment become available, eligible unsold lots reintroduce, and the
// sold fraction clears in strict priority order (consignment, reintroduced,
// newly available, each earliest vintage first).
func (s *Simulation) currentAuction(q ledger.Quarter) {
	s.led.Rekey(
		func(k ledger.Key) bool {
			return k.Acct == ledger.AcctAuctHold && k.AuctType == ledger.AuctionCurrent &&
				k.Cat != ledger.CatConsign &&
				k.Stat == ledger.StatusNotAvailable && k.DateLevel == q
		},
		func(k ledger.Key) ledger.Key { k.Stat = ledger.StatusAvailable; return k },
	)

	if s.juris == ledger.CA {
		s.led.Rekey(
			func(k ledger.Key) bool {
				return k.Acct == ledger.AcctAuctHold && k.Cat == ledger.CatConsign &&
					k.Stat == ledger.StatusNotAvailable && k.DateLevel == q
			},
			func(k ledger.Key) ledger.Key { k.Stat = ledger.StatusAvailable; return k },
		)
		// Consignment that went unsold earlier re-enters alongside the new
		// lots, marked redesignated.
		s.led.Rekey(
			func(k ledger.Key) bool {
				return k.Acct == ledger.AcctAuctHold && k.Cat == ledger.CatConsign &&
					k.Stat == ledger.StatusUnsold
			},
			func(k ledger.Key) ledger.Key {
				k.Stat = ledger.StatusAvailable
				k.New = ledger.NewnessRedes
				k.DateLevel = q
				return k
			},
		)
	}

	if allowed, onlyVintage := s.reintroPolicy(q); allowed {
		s.reintroduceUnsold(q, onlyVintage)
	}

	fraction := s.sales.SoldFraction(ledger.AuctionCurrent, q)
	tiers := []func(ledger.Key) bool{
		func(k ledger.Key) bool { return k.New == ledger.NewnessReintro },
		func(k ledger.Key) bool { return k.New != ledger.NewnessReintro },
	}
	if s.juris == ledger.CA {
		tiers = []func(ledger.Key) bool{
			func(k ledger.Key) bool { return k.Cat == ledger.CatConsign },
			func(k ledger.Key) bool {
				return k.Cat != ledger.CatConsign && k.New == ledger.NewnessReintro
			},
			func(k ledger.Key) bool {
				return k.Cat != ledger.CatConsign && k.New != ledger.NewnessReintro
			},
		}
	}
	s.lastCurrent = s.runSale(q, ledger.AuctionCurrent, fraction, tiers)
}

// reintroPolicy decides whether unsold current-auction lots may re-offer this
// quarter, and whether the offer is restricted to a single vintage.
func (s *Simulation) reintroPolicy(q ledger.Quarter) (allowed bool, onlyVintage int) {
	if s.juris == ledger.QC {
		if q == qcNoReintroQuarter {
			return false, 0
		}
		if !q.Before(qcVintage2013OnlyFrom) && !q.After(qcVintage2013OnlyThrough) {
			return s.state.ReintroEligible(), 2013
		}
	}
	return s.state.ReintroEligible(), 0
}

// reintroduceUnsold re-offers unsold state-owned current lots, capped at a
// quarter of this auction's available supply, earliest vintage first.
func (s *Simulation) reintroduceUnsold(q ledger.Quarter, onlyVintage int) {
	available := s.led.Sum(availableAt(ledger.AuctionCurrent, q))
	budget := redesignationCap * available
	if budget <= ledger.Epsilon {
		return
	}
	candidates := s.led.Select(func(k ledger.Key) bool {
		if k.Acct != ledger.AcctAuctHold || k.AuctType != ledger.AuctionCurrent ||
			k.Stat != ledger.StatusUnsold || k.Cat == ledger.CatConsign {
			return false
		}
		return onlyVintage == 0 || k.Vintage == onlyVintage
	})
	s.moveIntoAuction(candidates, budget, ledger.NewnessReintro, q)
}

// moveIntoAuction makes up to budget of the candidate rows available at
// quarter q with the given provenance mark. Candidates arrive earliest
// vintage first and are drawn greedily.
func (s *Simulation) moveIntoAuction(candidates []ledger.Row, budget float64, mark ledger.Newness, q ledger.Quarter) {
	remaining := budget
	for _, r := range candidates {
		if remaining <= ledger.Epsilon {
			break
		}
		take := r.Qty
		if take > remaining {
			take = remaining
		}
		if take <= ledger.Epsilon {
			continue
		}
		dst := r.Key
		dst.Stat = ledger.StatusAvailable
		dst.New = mark
		dst.DateLevel = q
		s.led.Transfer(r.Key, dst, take)
		remaining -= take
	}
}

// runSale clears the configured fraction of this quarter's available supply.
// Tiers are drained strictly in order; within a tier the selection order
// (earliest vintage first) decides. A fully-selling auction clears every row
// outright so no rounding residue survives.
func (s *Simulation) runSale(q ledger.Quarter, t ledger.AuctionType, fraction float64, tiers []func(ledger.Key) bool) AuctionOutcome {
	avail := availableAt(t, q)
	available := s.led.Sum(avail)
	if available <= ledger.Epsilon {
		return AuctionOutcome{Quarter: q, Type: t}
	}

	if fraction >= 1 {
		s.led.Rekey(avail, func(k ledger.Key) ledger.Key { return soldKey(k) })
		return AuctionOutcome{Quarter: q, Type: t, Available: available, Sold: available}
	}

	remaining := fraction * available
	sold := 0.0
	for _, tier := range tiers {
		if remaining <= ledger.Epsilon {
			break
		}
		rows := s.led.Select(func(k ledger.Key) bool { return avail(k) && tier(k) })
		for _, r := range rows {
			if remaining <= ledger.Epsilon {
				break
			}
			take := r.Qty
			if take > remaining {
				take = remaining
			}
			if take <= ledger.Epsilon {
				continue
			}
			s.led.Transfer(r.Key, soldKey(r.Key), take)
			remaining -= take
			sold += take
		}
	}
	return AuctionOutcome{Quarter: q, Type: t, Available: available, Sold: sold}
}

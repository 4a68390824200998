package sim

import (
	"wcisim/internal/ledger"
	"wcisim/internal/regs"
)

// postAuction runs the every-quarter bookkeeping after both auctions settle:
// roll the sell-out streak, mark leftover lots unsold, apply QC true-ups and
// recorded compliance surrenders, then handle CA's 24-month unsold rules
// (retirement first, reserve rollover second).
func (s *Simulation) postAuction(q ledger.Quarter) {
	if s.lastCurrent.Quarter == q {
		s.state.RecordCurrent(s.lastCurrent)
	}

	s.markUnsold(q)

	if s.juris == ledger.QC {
		s.applyTrueUps(q)
	}
	s.applyComplianceEvents(q)

	if s.juris == ledger.CA {
		s.retireLongUnsold(q)
		s.rolloverLongUnsold(q)
	}
}

// markUnsold turns every lot still available at this quarter's auctions into
// an unsold batch: first-unsold set once, last-unsold always refreshed.
func (s *Simulation) markUnsold(q ledger.Quarter) {
	s.led.Rekey(
		func(k ledger.Key) bool {
			return k.Stat == ledger.StatusAvailable && k.DateLevel == q
		},
		func(k ledger.Key) ledger.Key {
			k.Stat = ledger.StatusUnsold
			k.New = ledger.NewnessNA
			k.DateLevel = ledger.QuarterNA
			if k.FirstUnsold == ledger.NeverUnsold {
				k.FirstUnsold = q
			}
			k.LastUnsold = q
			return k
		},
	)
}

// longUnsold matches auction-holding batches unsold for 24 months or more.
func longUnsold(q ledger.Quarter) func(ledger.Key) bool {
	return func(k ledger.Key) bool {
		return k.Acct == ledger.AcctAuctHold && k.Stat == ledger.StatusUnsold &&
			k.FirstUnsold != ledger.NeverUnsold &&
			q.QuartersSince(k.FirstUnsold) >= unsoldRolloverQuarters
	}
}

// retireLongUnsold consumes the injectable EIM-outstanding and bankruptcy
// retirement budgets once batches cross the 24-month threshold. Under the
// proposed post-2020 regs the retirement draws an equivalent quantity from
// future-vintage allocation holding; under the earlier texts it takes the
// unsold stock directly.
func (s *Simulation) retireLongUnsold(q ledger.Quarter) {
	eligible := s.led.Sum(longUnsold(q))
	if eligible <= ledger.Epsilon {
		return
	}

	year := q.Year
	eimLeft := s.regs.EIMRetirementFor(year) - s.eimRetired[year]
	bkLeft := s.regs.BankruptcyRetirementFor(year) - s.bankruptcyRetired[year]
	if eimLeft <= ledger.Epsilon && bkLeft <= ledger.Epsilon {
		return
	}

	target := longUnsold(q)
	if s.regs.VariantFor(ledger.CA) == regs.VariantProposedRegs {
		target = func(k ledger.Key) bool {
			return k.Acct == ledger.AcctAllocHold && k.Cat == ledger.CatCap &&
				k.Stat == ledger.StatusNA && k.Vintage > year && k.Vintage <= regs.LastVintage
		}
	}

	if eimLeft > ledger.Epsilon {
		amount := min64(eimLeft, eligible)
		s.eimRetired[year] += s.retireFrom(target, amount, "EIM outstanding emissions")
	}
	if bkLeft > ledger.Epsilon {
		amount := min64(bkLeft, eligible)
		s.bankruptcyRetired[year] += s.retireFrom(target, amount, "bankruptcy")
	}
}

// rolloverLongUnsold moves what remains unsold past 24 months permanently
// into the price containment reserve.
func (s *Simulation) rolloverLongUnsold(q ledger.Quarter) {
	s.led.Rekey(longUnsold(q), func(k ledger.Key) ledger.Key {
		k.Acct = ledger.AcctReserve
		k.AuctType = ledger.AuctionReserve
		k.Stat = ledger.StatusNA
		k.New = ledger.NewnessNA
		k.DateLevel = ledger.QuarterNA
		return k
	})
}

// applyTrueUps settles the QC allocation corrections recorded for this
// quarter: each delta moves from allocation holding (earliest vintage at or
// after the emissions year with stock) into general holding. The one dated
// anomaly draws from the reserve instead.
func (s *Simulation) applyTrueUps(q ledger.Quarter) {
	for _, d := range s.hist.TrueUpDeltasAt(q) {
		if d.FromAPCR {
			dst := baseKey(s.juris)
			dst.Acct = ledger.AcctGeneral
			dst.Cat = ledger.CatAPCR
			dst.Vintage = ledger.VintageAPCR
			s.led.Transfer(apcrKey(s.juris), dst, d.Qty)
			s.log.Info().Float64("qty", d.Qty).Stringer("quarter", q).
				Msg("true-up settled from reserve")
			continue
		}
		remaining := d.Qty
		for y := d.EmissionsYear; y <= regs.LastVintage && remaining > ledger.Epsilon; y++ {
			src := capKey(s.juris, y)
			have := s.led.Quantity(src)
			if have <= ledger.Epsilon {
				continue
			}
			take := min64(have, remaining)
			dst := baseKey(s.juris)
			dst.Acct = ledger.AcctGeneral
			dst.Cat = ledger.CatIndustrialAlloc
			dst.Vintage = y
			s.led.Transfer(src, dst, take)
			remaining -= take
		}
		if remaining > ledger.Epsilon {
			s.log.Warn().Float64("unfilled", remaining).Int("emissions_year", d.EmissionsYear).
				Msg("true-up could not be fully sourced from allocation holding")
		}
	}
}

// applyComplianceEvents retires recorded compliance surrenders, drawing from
// compliance accounts first and general holding second, earliest vintage
// first, capped at what private accounts actually hold.
func (s *Simulation) applyComplianceEvents(q ledger.Quarter) {
	for _, e := range s.hist.ComplianceEventsAt(s.juris, q) {
		remaining := e.Qty
		remaining -= s.retireFrom(func(k ledger.Key) bool {
			return k.Acct == ledger.AcctCompliance
		}, remaining, "compliance surrender")
		if remaining > ledger.Epsilon {
			remaining -= s.retireFrom(func(k ledger.Key) bool {
				return k.Acct == ledger.AcctGeneral && k.Juris == s.juris
			}, remaining, "compliance surrender")
		}
		if remaining > ledger.Epsilon {
			s.log.Warn().Float64("unfilled", remaining).Int("year", e.Year).
				Msg("compliance surrender exceeds private holdings")
		}
	}
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

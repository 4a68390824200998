package sim

import (
	"fmt"

	"github.com/rs/zerolog"

	"wcisim/internal/history"
	"wcisim/internal/ledger"
	"wcisim/internal/regs"
	"wcisim/internal/scenario"
)

// lastAdvanceYear is the last year with a simulated advance auction: later
// auctions would carry vintages past the 2030 horizon.
const lastAdvanceYear = 2027

// unsoldRolloverQuarters is the 24-month threshold after which long-unsold CA
// allowances retire or roll into the reserve.
const unsoldRolloverQuarters = 8

// Simulation drives one jurisdiction's ledger through the quarterly
// transition function. It owns its ledger and state outright; the regulatory
// store, historical adapter, and sales series are shared immutable inputs.
type Simulation struct {
	juris    ledger.Jurisdiction
	led      *ledger.Ledger
	state    *State
	regs     *regs.Store
	hist     *history.Adapter
	sales    *history.SalesSeries
	settings scenario.Settings
	checker  *ledger.Checker
	log      zerolog.Logger

	start ledger.Quarter

	// created accumulates the quantity legitimately added to the books during
	// the current step (budget tranches, early action, the Ontario flow), so
	// the conservation check knows what delta to expect.
	created float64

	// lastCurrent carries this quarter's current-auction outcome into the
	// post-auction bookkeeping, where the sell-out streak rolls.
	lastCurrent AuctionOutcome

	// Annual retirement budgets already consumed, by year.
	eimRetired        map[int]float64
	bankruptcyRetired map[int]float64
}

func NewSimulation(
	j ledger.Jurisdiction,
	rs *regs.Store,
	hist *history.Adapter,
	sales *history.SalesSeries,
	settings scenario.Settings,
	checker *ledger.Checker,
	log zerolog.Logger,
) *Simulation {
	start := regs.CAStartQuarter
	if j == ledger.QC {
		start = regs.QCStartQuarter
	}
	return &Simulation{
		juris:             j,
		led:               ledger.New(),
		state:             NewState(j),
		regs:              rs,
		hist:              hist,
		sales:             sales,
		settings:          settings,
		checker:           checker,
		log:               log.With().Str("jurisdiction", j.String()).Logger(),
		start:             start,
		eimRetired:        make(map[int]float64),
		bankruptcyRetired: make(map[int]float64),
	}
}

func (s *Simulation) Ledger() *ledger.Ledger { return s.led }
func (s *Simulation) State() *State          { return s.state }
func (s *Simulation) Start() ledger.Quarter  { return s.start }

// Step applies the full quarterly transition for quarter q. Sub-operations
// fire in regulation-mandated order; the order is a business invariant
// because sales priority decides which instruments clear an undersold
// auction.
func (s *Simulation) Step(q ledger.Quarter) error {
	before := s.led.Total()
	s.created = 0

	s.applyCreationEvents(q)

	if q == s.start {
		s.scheduleStartQuarter(q)
	}
	if q.Q == 1 {
		if err := s.startOfYear(q); err != nil {
			return err
		}
	}
	if q.Year <= lastAdvanceYear {
		s.advanceAuction(q)
	}
	s.currentAuction(q)
	s.postAuction(q)
	if q.Q == 4 {
		if err := s.yearEnd(q); err != nil {
			return err
		}
	}
	s.led.Cleanup()

	op := fmt.Sprintf("%s %s", s.juris, q)
	if err := s.checker.CheckConservation(op, before, s.led.Total(), s.created); err != nil {
		return err
	}
	if err := s.checker.CheckNoUnexplainedNegatives(s.led); err != nil {
		return err
	}
	if err := s.checker.CheckDistinctKeys(s.led.Rows()); err != nil {
		return err
	}
	expected := s.regs.CumulativeIssuanceThrough(s.juris, q)
	if err := s.checker.CheckBudget(s.led, expected, q); err != nil {
		return err
	}

	s.state.Snapshots = append(s.state.Snapshots, Snapshot{Quarter: q, Ledger: s.led.Clone()})
	return nil
}

// applyCreationEvents adds the budget tranches and one-off issuances due this
// quarter. These are the only operations that change the ledger total.
func (s *Simulation) applyCreationEvents(q ledger.Quarter) {
	if q == s.start {
		s.createTranche(regs.FirstVintage, 2020)
	}
	if q == regs.Post2020Creation {
		s.createTranche(2021, regs.LastVintage)
	}
	if s.juris == ledger.CA && q == regs.EarlyActionQuarter {
		qty := s.regs.EarlyActionQty()
		s.led.Add(earlyActionKey(s.juris), qty)
		s.created += qty
		s.log.Info().Float64("qty", qty).Msg("early action credits issued")
	}
	if s.juris == ledger.CA && q == regs.OntarioNetFlowQuarter {
		qty := s.regs.OntarioNetFlowQty()
		s.led.Add(ontarioKey(), qty)
		s.created += qty
		s.log.Info().Float64("qty", qty).Msg("ontario net flow recorded")
	}
}

// createTranche books one decade's budgets: per vintage, the reserve and
// voluntary-reserve carve-outs split off at creation and the remainder lands
// in allocation holding.
func (s *Simulation) createTranche(firstYear, lastYear int) {
	for y := firstYear; y <= lastYear; y++ {
		capQty, err := s.regs.CapFor(s.juris, y)
		if err != nil {
			s.log.Error().Err(err).Int("vintage", y).Msg("cap lookup failed, vintage skipped")
			continue
		}
		apcr, _ := s.regs.APCRFor(s.juris, y)
		vre, _ := s.regs.VREFor(s.juris, y)

		s.led.Add(apcrKey(s.juris), apcr)
		if vre > 0 {
			s.led.Add(vreKey(s.juris, y), vre)
		}
		s.led.Add(capKey(s.juris, y), capQty-apcr-vre)
		s.created += capQty
	}
	s.log.Info().Int("from", firstYear).Int("to", lastYear).Msg("budget tranche created")
}

// scheduleStartQuarter books the recorded offerings of the program's very
// first auction quarter, which predates the regular start-of-year schedule.
func (s *Simulation) scheduleStartQuarter(q ledger.Quarter) {
	firstVintage := regs.FirstVintage
	if qty, ok := s.hist.RecordedNewlyAvailable(s.juris, ledger.AuctionCurrent, q); ok && qty > 0 {
		s.transferFromCap(firstVintage, auctionLotKey(s.juris, ledger.AuctionCurrent, ledger.CatStateOwned, firstVintage, q), qty)
	}
	advVintage := q.Year + 3
	if qty, ok := s.hist.RecordedNewlyAvailable(s.juris, ledger.AuctionAdvance, q); ok && qty > 0 {
		s.transferFromCap(advVintage, auctionLotKey(s.juris, ledger.AuctionAdvance, ledger.CatStateOwned, advVintage, q), qty)
	}
	// The first vintage's free allocation has no prior year-end to ride on.
	// It stages here unless this quarter's own year-end covers it.
	if q.Year+1 != firstVintage {
		s.stageAnnualAllocation(firstVintage)
	}
}

// startOfYear runs the Q1-only transfers: distribute the staged annual
// allocation, move consigned allowances onto the auction calendar, and
// upsample this year's current supply and the vintage year+3 advance supply
// into quarterly lots.
func (s *Simulation) startOfYear(q ledger.Quarter) error {
	year := q.Year
	s.distributeAnnualAllocation(year)
	s.scheduleConsignment(year)

	// Current-auction supply for this year is whatever allocation holding
	// still carries for the vintage: every other carve-out has already left.
	remaining := s.led.Quantity(capKey(s.juris, year))
	if remaining > ledger.Epsilon {
		split := s.hist.QuarterlySplit(s.juris, ledger.AuctionCurrent, year, remaining)
		for lotQ, qty := range split {
			if qty <= ledger.Epsilon || lotQ.Before(q) {
				continue
			}
			s.transferFromCap(year, auctionLotKey(s.juris, ledger.AuctionCurrent, ledger.CatStateOwned, year, lotQ), qty)
		}
	}

	if year <= lastAdvanceYear {
		advVintage := year + 3
		advQty, err := s.regs.AdvanceFor(s.juris, advVintage)
		if err != nil {
			return fmt.Errorf("advance carve for vintage %d: %w", advVintage, err)
		}
		if advQty > ledger.Epsilon {
			split := s.hist.QuarterlySplit(s.juris, ledger.AuctionAdvance, year, advQty)
			for lotQ, qty := range split {
				if qty <= ledger.Epsilon || lotQ.Before(q) {
					continue
				}
				s.transferFromCap(advVintage, auctionLotKey(s.juris, ledger.AuctionAdvance, ledger.CatStateOwned, advVintage, lotQ), qty)
			}
		}
	}
	return nil
}

// yearEnd runs the Q4-only transfers: fold unsold advance lots back into
// current supply, stage next year's allocation, and settle the scheduled
// voluntary-reserve retirements.
func (s *Simulation) yearEnd(q ledger.Quarter) error {
	// Unsold advance lots of any vintage become current state-owned supply,
	// merged by vintage, keeping their unsold history for the rollover rules.
	s.led.Rekey(
		func(k ledger.Key) bool {
			return k.Acct == ledger.AcctAuctHold && k.AuctType == ledger.AuctionAdvance &&
				k.Stat == ledger.StatusUnsold
		},
		func(k ledger.Key) ledger.Key {
			k.AuctType = ledger.AuctionCurrent
			k.Cat = ledger.CatStateOwned
			k.DateLevel = ledger.QuarterNA
			return k
		},
	)

	if q.Year+1 <= regs.LastVintage {
		s.stageAnnualAllocation(q.Year + 1)
	}

	if s.juris == ledger.CA {
		if qty := s.regs.VRERetirementAt(q); qty > ledger.Epsilon {
			s.retireFrom(
				func(k ledger.Key) bool { return k.Acct == ledger.AcctVoluntaryReserve },
				qty, "voluntary reserve retirement")
		}
	}
	return nil
}

// stageAnnualAllocation carves vintage y's free allocation out of allocation
// holding: the consigned share of the utility allocation goes to limited use,
// everything else stages in annual allocation holding for Q1 distribution.
func (s *Simulation) stageAnnualAllocation(year int) {
	consigned, err := s.regs.ConsignedFor(s.juris, year)
	if err != nil {
		s.log.Error().Err(err).Int("vintage", year).Msg("consignment lookup failed")
		return
	}
	if consigned > ledger.Epsilon {
		s.transferFromCap(year, limitedUseKey(s.juris, year), consigned)
	}
	for _, prog := range allocationPrograms(s.juris) {
		qty, err := s.regs.AllocationFor(s.juris, prog, year)
		if err != nil {
			s.log.Error().Err(err).Int("vintage", year).Stringer("program", prog).
				Msg("allocation lookup failed")
			continue
		}
		if prog == ledger.CatUtilityAlloc {
			qty -= consigned
		}
		if qty <= ledger.Epsilon {
			continue
		}
		s.transferFromCap(year, annualAllocKey(s.juris, prog, year), qty)
	}
}

// distributeAnnualAllocation releases the staged vintage-y allocation to its
// holders: utility allowances to compliance accounts, everything else to
// general holding.
func (s *Simulation) distributeAnnualAllocation(year int) {
	s.led.Rekey(
		func(k ledger.Key) bool {
			return k.Acct == ledger.AcctAnnualAllocHold && k.Vintage <= year
		},
		func(k ledger.Key) ledger.Key {
			if k.Cat == ledger.CatUtilityAlloc {
				k.Acct = ledger.AcctCompliance
			} else {
				k.Acct = ledger.AcctGeneral
			}
			return k
		},
	)
}

// scheduleConsignment moves vintage-y consigned allowances from limited use
// onto this year's four auction quarters in even lots.
func (s *Simulation) scheduleConsignment(year int) {
	src := limitedUseKey(s.juris, year)
	total := s.led.Quantity(src)
	if total <= ledger.Epsilon {
		return
	}
	per := total / 4
	for _, lotQ := range ledger.QuartersOf(year) {
		dst := auctionLotKey(s.juris, ledger.AuctionCurrent, ledger.CatConsign, year, lotQ)
		s.led.Transfer(src, dst, per)
	}
}

// transferFromCap draws qty of a vintage out of allocation holding. When the
// historical record demands more than the vintage can supply, the overdraw
// stays on the books as an explicit deficit marker rather than an unexplained
// negative.
func (s *Simulation) transferFromCap(vintage int, dst ledger.Key, qty float64) {
	src := capKey(s.juris, vintage)
	s.led.Transfer(src, dst, qty)
	if s.led.Quantity(src) < -ledger.Epsilon {
		s.led.Rekey(
			func(k ledger.Key) bool { return k == src },
			func(k ledger.Key) ledger.Key { k.Stat = ledger.StatusDeficit; return k },
		)
		s.log.Warn().Int("vintage", vintage).
			Msg("allocation holding overdrawn, remainder marked deficit")
	}
}

// retireFrom moves up to qty into the retirement account, drawing matching
// rows earliest vintage first. Returns the quantity actually retired.
func (s *Simulation) retireFrom(pred func(ledger.Key) bool, qty float64, reason string) float64 {
	remaining := qty
	for _, r := range s.led.Select(pred) {
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
		s.led.Transfer(r.Key, retirementKey(s.juris, r.Key.Vintage), take)
		remaining -= take
	}
	retired := qty - remaining
	if retired > ledger.Epsilon {
		s.log.Debug().Float64("qty", retired).Str("reason", reason).Msg("instruments retired")
	}
	return retired
}

func allocationPrograms(j ledger.Jurisdiction) []ledger.Category {
	if j == ledger.QC {
		return []ledger.Category{ledger.CatIndustrialAlloc}
	}
	return []ledger.Category{ledger.CatIndustrialAlloc, ledger.CatUtilityAlloc, ledger.CatGasAlloc}
}

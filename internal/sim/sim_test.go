package sim

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcisim/internal/history"
	"wcisim/internal/ledger"
	"wcisim/internal/regs"
	"wcisim/internal/scenario"
)

func newTestSim(j ledger.Jurisdiction, undersellYears map[int]bool, fraction float64) *Simulation {
	rs := regs.Build(regs.VariantBaseline, regs.VariantBaseline)
	hist := history.NewAdapter()
	sales := history.NewSalesSeries(undersellYears, fraction)
	checker := ledger.NewChecker(ledger.PolicyStrict, zerolog.Nop())
	return NewSimulation(j, rs, hist, sales, scenario.Default(), checker, zerolog.Nop())
}

func TestCursor_AdvancesAndStops(t *testing.T) {
	c := NewCursor(ledger.MustQuarter(2012, 4), ledger.MustQuarter(2013, 2))

	var seen []ledger.Quarter
	for !c.Done() {
		seen = append(seen, c.Current())
		c.Advance()
	}
	require.Equal(t, []ledger.Quarter{
		ledger.MustQuarter(2012, 4),
		ledger.MustQuarter(2013, 1),
		ledger.MustQuarter(2013, 2),
	}, seen)

	assert.False(t, c.Advance(), "advancing a finished cursor must be a no-op")
	assert.True(t, c.Done())
}

// A single vintage sold out in one quarter: the reserve carve is untouched,
// the advance lot stays parked for its own auction date, the current offering
// lands sold in general holding, and the ledger total is unchanged.
func TestCurrentAuction_SingleVintageRoundTrip(t *testing.T) {
	s := newTestSim(ledger.CA, nil, 1.0)
	q := ledger.MustQuarter(2019, 2)

	s.led.Add(apcrKey(ledger.CA), 5)
	s.led.Add(auctionLotKey(ledger.CA, ledger.AuctionAdvance, ledger.CatStateOwned, 2022, ledger.MustQuarter(2019, 3)), 10)
	s.led.Add(auctionLotKey(ledger.CA, ledger.AuctionCurrent, ledger.CatStateOwned, 2019, q), 85)

	s.currentAuction(q)
	s.postAuction(q)

	assert.InDelta(t, 5, s.led.Quantity(apcrKey(ledger.CA)), ledger.Epsilon)
	advance := s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctAuctHold && k.AuctType == ledger.AuctionAdvance
	})
	assert.InDelta(t, 10, advance, ledger.Epsilon)
	sold := s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctGeneral && k.Stat == ledger.StatusSold
	})
	assert.InDelta(t, 85, sold, ledger.Epsilon)
	assert.InDelta(t, 100, s.led.Total(), ledger.Epsilon)
}

func TestCurrentAuction_UndersoldMarksUnsold(t *testing.T) {
	s := newTestSim(ledger.CA, map[int]bool{2019: true}, 0.6)
	q := ledger.MustQuarter(2019, 2)

	s.led.Add(auctionLotKey(ledger.CA, ledger.AuctionCurrent, ledger.CatStateOwned, 2019, q), 50)

	s.currentAuction(q)
	s.postAuction(q)

	sold := s.led.Sum(func(k ledger.Key) bool { return k.Acct == ledger.AcctGeneral })
	assert.InDelta(t, 30, sold, ledger.Epsilon)

	unsold := s.led.Select(func(k ledger.Key) bool { return k.Stat == ledger.StatusUnsold })
	require.Len(t, unsold, 1)
	assert.InDelta(t, 20, unsold[0].Qty, ledger.Epsilon)
	assert.Equal(t, q, unsold[0].Key.FirstUnsold)
	assert.Equal(t, q, unsold[0].Key.LastUnsold)
	assert.Equal(t, ledger.QuarterNA, unsold[0].Key.DateLevel)
}

// CA priority: consignment clears completely before reintroduced lots, which
// clear completely before newly available lots, earliest vintage first.
func TestCurrentAuction_SalesPriority(t *testing.T) {
	s := newTestSim(ledger.CA, map[int]bool{2019: true}, 0.6)
	q := ledger.MustQuarter(2019, 2)

	consign := auctionLotKey(ledger.CA, ledger.AuctionCurrent, ledger.CatConsign, 2019, q)
	consign.Stat = ledger.StatusAvailable
	s.led.Add(consign, 10)

	reintro := auctionLotKey(ledger.CA, ledger.AuctionCurrent, ledger.CatStateOwned, 2017, q)
	reintro.Stat = ledger.StatusAvailable
	reintro.New = ledger.NewnessReintro
	s.led.Add(reintro, 10)

	fresh := auctionLotKey(ledger.CA, ledger.AuctionCurrent, ledger.CatStateOwned, 2019, q)
	fresh.Stat = ledger.StatusAvailable
	s.led.Add(fresh, 20)

	s.currentAuction(q)
	s.postAuction(q)

	// 0.6 of 40 available sells: all 10 consigned, all 10 reintroduced, then
	// 4 of the new lot.
	soldConsign := s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctGeneral && k.Cat == ledger.CatConsign
	})
	assert.InDelta(t, 10, soldConsign, ledger.Epsilon)
	soldReintro := s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctGeneral && k.Vintage == 2017
	})
	assert.InDelta(t, 10, soldReintro, ledger.Epsilon)
	soldFresh := s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctGeneral && k.Cat == ledger.CatStateOwned && k.Vintage == 2019
	})
	assert.InDelta(t, 4, soldFresh, ledger.Epsilon)

	unsold := s.led.Sum(func(k ledger.Key) bool { return k.Stat == ledger.StatusUnsold })
	assert.InDelta(t, 16, unsold, ledger.Epsilon)
}

func TestReintroduction_RequiresTwoSellouts(t *testing.T) {
	st := NewState(ledger.CA)
	q := ledger.MustQuarter(2019, 1)

	soldOut := AuctionOutcome{Quarter: q, Type: ledger.AuctionCurrent, Available: 10, Sold: 10}
	partial := AuctionOutcome{Quarter: q, Type: ledger.AuctionCurrent, Available: 10, Sold: 7}
	empty := AuctionOutcome{Quarter: q, Type: ledger.AuctionCurrent}

	st.RecordCurrent(soldOut)
	assert.False(t, st.ReintroEligible(), "one sellout is not enough")
	st.RecordCurrent(soldOut)
	assert.True(t, st.ReintroEligible())

	st.RecordCurrent(empty)
	assert.True(t, st.ReintroEligible(), "a quarter without an auction keeps the streak")

	st.RecordCurrent(partial)
	assert.False(t, st.ReintroEligible(), "a partial auction resets the streak")
	st.RecordCurrent(soldOut)
	assert.False(t, st.ReintroEligible())
}

// The recorded 2015 QC auctions are dated exceptions: Q2 reoffered nothing,
// Q3 and Q4 reoffered vintage 2013 only.
func TestReintroPolicy_QC2015Anomalies(t *testing.T) {
	s := newTestSim(ledger.QC, nil, 1.0)
	s.state.ConsecutiveSellouts = 2

	allowed, _ := s.reintroPolicy(ledger.MustQuarter(2015, 2))
	assert.False(t, allowed)

	for _, q := range []ledger.Quarter{ledger.MustQuarter(2015, 3), ledger.MustQuarter(2015, 4)} {
		allowed, only := s.reintroPolicy(q)
		assert.True(t, allowed, q.String())
		assert.Equal(t, 2013, only, q.String())
	}

	allowed, only := s.reintroPolicy(ledger.MustQuarter(2016, 1))
	assert.True(t, allowed)
	assert.Zero(t, only)
}

// At 2015Q3 an eligible QC book reoffers its unsold vintage 2013 but leaves
// vintage 2014 untouched.
func TestReintroduction_QC2015VintageRestriction(t *testing.T) {
	s := newTestSim(ledger.QC, nil, 1.0)
	q := ledger.MustQuarter(2015, 3)
	s.state.ConsecutiveSellouts = 2

	for _, v := range []int{2013, 2014} {
		k := auctionLotKey(ledger.QC, ledger.AuctionCurrent, ledger.CatStateOwned, v, ledger.QuarterNA)
		k.Stat = ledger.StatusUnsold
		k.New = ledger.NewnessNA
		k.FirstUnsold = ledger.MustQuarter(2015, 1)
		k.LastUnsold = ledger.MustQuarter(2015, 1)
		s.led.Add(k, 8)
	}
	s.led.Add(auctionLotKey(ledger.QC, ledger.AuctionCurrent, ledger.CatStateOwned, 2015, q), 40)

	s.currentAuction(q)
	s.postAuction(q)
	// Step runs Cleanup each quarter; driving the sub-operations directly
	// leaves the zero-quantity residue Transfer writes at the source key.
	s.led.Cleanup()

	sold2013 := s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctGeneral && k.Vintage == 2013
	})
	assert.InDelta(t, 8, sold2013, ledger.Epsilon, "vintage 2013 reoffers and clears")

	unsold := s.led.Select(func(k ledger.Key) bool { return k.Stat == ledger.StatusUnsold })
	require.Len(t, unsold, 1)
	assert.Equal(t, 2014, unsold[0].Key.Vintage)
	assert.InDelta(t, 8, unsold[0].Qty, ledger.Epsilon)
}

// The one recorded QC true-up sourced from the reserve: 2016Q3 moves the
// 0.22 MMT correction out of the reserve pool into general holding.
func TestPostAuction_QCTrueUpAnomalyDrawsReserve(t *testing.T) {
	s := newTestSim(ledger.QC, nil, 1.0)
	s.led.Add(apcrKey(ledger.QC), 5)

	s.applyTrueUps(history.QCTrueUpAnomalyQuarter)

	assert.InDelta(t, 4.78, s.led.Quantity(apcrKey(ledger.QC)), ledger.Epsilon)
	inGeneral := s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctGeneral && k.Cat == ledger.CatAPCR
	})
	assert.InDelta(t, 0.22, inGeneral, ledger.Epsilon)
	assert.InDelta(t, 5, s.led.Total(), ledger.Epsilon, "a true-up is a pure transfer")
}

// Q4 redesignation of January leftovers is capped at a quarter of the
// auction's available supply.
func TestAdvanceAuction_RedesignationCap(t *testing.T) {
	s := newTestSim(ledger.CA, nil, 1.0)
	q := ledger.MustQuarter(2019, 4)
	q1 := ledger.MustQuarter(2019, 1)

	for _, mid := range []ledger.Quarter{ledger.MustQuarter(2019, 2), ledger.MustQuarter(2019, 3)} {
		s.state.RecordAdvance(AuctionOutcome{
			Quarter: mid, Type: ledger.AuctionAdvance, Available: 10, Sold: 10,
		})
	}

	leftover := auctionLotKey(ledger.CA, ledger.AuctionAdvance, ledger.CatStateOwned, 2022, ledger.QuarterNA)
	leftover.Stat = ledger.StatusUnsold
	leftover.New = ledger.NewnessNA
	leftover.FirstUnsold = q1
	leftover.LastUnsold = q1
	s.led.Add(leftover, 20)

	s.led.Add(auctionLotKey(ledger.CA, ledger.AuctionAdvance, ledger.CatStateOwned, 2022, q), 40)

	s.advanceAuction(q)

	// 25% of the 40 available may redesignate: 10 of the 20 leftovers clear
	// alongside the new supply, the rest stay unsold.
	sold := s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctGeneral && k.Stat == ledger.StatusSold
	})
	assert.InDelta(t, 50, sold, ledger.Epsilon)

	stillUnsold := s.led.Sum(func(k ledger.Key) bool { return k.Stat == ledger.StatusUnsold })
	assert.InDelta(t, 10, stillUnsold, ledger.Epsilon)
}

// A CA batch unsold for 24 months lands in the reserve account and leaves
// auction holding.
func TestPostAuction_LongUnsoldRollsIntoReserve(t *testing.T) {
	s := newTestSim(ledger.CA, nil, 1.0)
	first := ledger.MustQuarter(2019, 1)

	k := auctionLotKey(ledger.CA, ledger.AuctionCurrent, ledger.CatStateOwned, 2018, ledger.QuarterNA)
	k.Stat = ledger.StatusUnsold
	k.FirstUnsold = first
	k.LastUnsold = first
	s.led.Add(k, 12)

	s.postAuction(first.AddQuarters(7))
	assert.InDelta(t, 12, s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctAuctHold
	}), ledger.Epsilon, "one quarter short of the threshold, nothing moves")

	s.postAuction(first.AddQuarters(8))
	inReserve := s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctReserve && k.AuctType == ledger.AuctionReserve
	})
	assert.InDelta(t, 12, inReserve, ledger.Epsilon)
	assert.InDelta(t, 0, s.led.Sum(func(k ledger.Key) bool {
		return k.Acct == ledger.AcctAuctHold
	}), ledger.Epsilon)
}

// An injected EIM retirement budget consumes long-unsold stock before the
// reserve rollover takes the rest.
func TestPostAuction_EIMRetirementBeforeRollover(t *testing.T) {
	s := newTestSim(ledger.CA, nil, 1.0)
	s.regs.SetEIMRetirement(map[int]float64{2021: 5})
	first := ledger.MustQuarter(2019, 1)

	k := auctionLotKey(ledger.CA, ledger.AuctionCurrent, ledger.CatStateOwned, 2018, ledger.QuarterNA)
	k.Stat = ledger.StatusUnsold
	k.FirstUnsold = first
	k.LastUnsold = first
	s.led.Add(k, 12)

	s.postAuction(first.AddQuarters(8)) // 2021Q1

	retired := s.led.Sum(func(k ledger.Key) bool { return k.Acct == ledger.AcctRetirement })
	assert.InDelta(t, 5, retired, ledger.Epsilon)
	inReserve := s.led.Sum(func(k ledger.Key) bool { return k.Acct == ledger.AcctReserve })
	assert.InDelta(t, 7, inReserve, ledger.Epsilon)
	assert.InDelta(t, 5, s.eimRetired[2021], ledger.Epsilon, "the annual budget is consumed")
}

// The full 2012Q4-2030Q4 replay must hold every invariant at every quarter:
// conservation, distinct keys, no unexplained negatives, and agreement with
// the cumulative statutory issuance. Strict policy turns any breach into a
// run-aborting error.
func TestRunner_FullHorizon(t *testing.T) {
	rs := regs.Build(regs.VariantBaseline, regs.VariantBaseline)
	r := NewRunner(rs, scenario.Default(), ledger.PolicyStrict, nil, zerolog.Nop())

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)
	assert.Empty(t, res.Violations)

	ca := res.States[ledger.CA]
	qc := res.States[ledger.QC]
	require.NotNil(t, ca)
	require.NotNil(t, qc)

	// 2012Q4..2030Q4 for CA, 2013Q4..2030Q4 for QC.
	assert.Len(t, ca.Snapshots, 73)
	assert.Len(t, qc.Snapshots, 69)

	for _, st := range []*State{ca, qc} {
		last := st.LastSnapshot()
		require.NotNil(t, last)
		assert.Equal(t, ledger.MustQuarter(2030, 4), last.Quarter)
		assert.Greater(t, last.Ledger.Total(), 0.0)
	}
}

func TestRunner_FullHorizonProposedRegs(t *testing.T) {
	rs := regs.Build(regs.VariantProposedRegs, regs.VariantBaseline)
	r := NewRunner(rs, scenario.Default(), ledger.PolicyStrict, nil, zerolog.Nop())

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
}

func TestRunner_Cancellation(t *testing.T) {
	rs := regs.Build(regs.VariantBaseline, regs.VariantBaseline)
	r := NewRunner(rs, scenario.Default(), ledger.PolicyWarn, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

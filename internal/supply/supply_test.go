package supply_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcisim/internal/ledger"
	"wcisim/internal/scenario"
	"wcisim/internal/sim"
	"wcisim/internal/supply"
)

func flatSettings(base float64, offsetShare float64, baseYear int) scenario.Settings {
	s := scenario.Default()
	s.CABaseEmissions = base
	s.BaseYear = baseYear
	s.Emissions = scenario.SimplePath(0)
	s.Offsets = scenario.SimplePath(offsetShare)
	return s
}

func runState(snaps []sim.Snapshot, outcomes []sim.AuctionOutcome) *sim.State {
	st := sim.NewState(ledger.CA)
	st.Snapshots = snaps
	st.Outcomes = outcomes
	return st
}

func soldOutcome(year, q int, qty float64) sim.AuctionOutcome {
	return sim.AuctionOutcome{
		Quarter:   ledger.MustQuarter(year, q),
		Type:      ledger.AuctionCurrent,
		Available: qty,
		Sold:      qty,
	}
}

func yearEnd(year int, private, sold, retired float64) sim.Snapshot {
	l := ledger.New()
	genKey := ledger.Key{
		Acct: ledger.AcctGeneral, Juris: ledger.CA, Vintage: year,
		Stat:        ledger.StatusNA,
		DateLevel:   ledger.QuarterNA,
		FirstUnsold: ledger.NeverUnsold,
		LastUnsold:  ledger.NeverUnsold,
	}
	l.Add(genKey, private-sold)

	soldKey := genKey
	soldKey.Stat = ledger.StatusSold
	l.Add(soldKey, sold)

	retKey := genKey
	retKey.Acct = ledger.AcctRetirement
	l.Add(retKey, retired)

	return sim.Snapshot{Quarter: ledger.MustQuarter(year, 4), Ledger: l}
}

func TestBuild_BankAndReserveSales(t *testing.T) {
	// Flat 50 MMT/yr emissions, 10% offsets: 45 MMT/yr net obligation against
	// a constant 100 MMT of private holdings.
	settings := flatSettings(50, 0.1, 2016)
	st := runState(
		[]sim.Snapshot{
			yearEnd(2016, 100, 60, 0),
			yearEnd(2017, 100, 60, 0),
			yearEnd(2018, 100, 60, 0),
			yearEnd(2019, 100, 60, 0),
		},
		[]sim.AuctionOutcome{soldOutcome(2016, 3, 60)},
	)

	series := supply.Build(ledger.CA, st, settings)
	require.Len(t, series.Points, 4)
	assert.Equal(t, "CA", series.Jurisdiction)

	p16, p17, p18, p19 := series.Points[0], series.Points[1], series.Points[2], series.Points[3]

	assert.InDelta(t, 60, p16.AuctionSupply, 1e-9)
	assert.InDelta(t, 0, p17.AuctionSupply, 1e-9, "no new sales after the first year")

	assert.InDelta(t, 50, p16.Emissions, 1e-9)
	assert.InDelta(t, 5, p16.Offsets, 1e-9)

	assert.InDelta(t, 55, p16.Bank, 1e-9)
	assert.InDelta(t, 10, p17.Bank, 1e-9)

	// Year three exhausts the bank: 135 owed against 100 held.
	assert.InDelta(t, 0, p18.Bank, 1e-9)
	assert.InDelta(t, 35, p18.ReserveSales, 1e-9)

	// Reserve purchases from 2018 stay surrendered; only the new year's
	// deficit needs covering.
	assert.InDelta(t, 0, p19.Bank, 1e-9)
	assert.InDelta(t, 45, p19.ReserveSales, 1e-9)
}

func TestBuild_AuctionSupplyFollowsOutcomes(t *testing.T) {
	// A compliance surrender retires sold allowances out of general holding.
	// The reported auction supply must still be what the auctions cleared,
	// not what survives on the books at year end.
	settings := flatSettings(50, 0.1, 2016)
	st := runState(
		[]sim.Snapshot{
			yearEnd(2016, 100, 60, 0),
			yearEnd(2017, 60, 20, 40),
		},
		[]sim.AuctionOutcome{
			soldOutcome(2016, 3, 60),
			{Quarter: ledger.MustQuarter(2017, 2), Type: ledger.AuctionCurrent, Available: 80, Sold: 55},
			{Quarter: ledger.MustQuarter(2017, 4), Type: ledger.AuctionAdvance, Available: 30, Sold: 25},
		},
	)

	series := supply.Build(ledger.CA, st, settings)
	require.Len(t, series.Points, 2)
	assert.InDelta(t, 60, series.Points[0].AuctionSupply, 1e-9)
	assert.InDelta(t, 80, series.Points[1].AuctionSupply, 1e-9,
		"surrendered allowances must not shrink the year's auction supply")
}

func TestBuild_RetirementReducesObligation(t *testing.T) {
	settings := flatSettings(50, 0.1, 2016)
	series := supply.Build(ledger.CA, runState([]sim.Snapshot{
		yearEnd(2016, 100, 60, 20),
	}, nil), settings)

	require.Len(t, series.Points, 1)
	// Outstanding: 50 - 5 - 20 retired = 25; bank = 100 - 25.
	assert.InDelta(t, 75, series.Points[0].Bank, 1e-9)
	assert.InDelta(t, 20, series.Points[0].Retired, 1e-9)
}

func TestBuild_IgnoresMidYearSnapshots(t *testing.T) {
	settings := flatSettings(50, 0.1, 2016)
	mid := sim.Snapshot{Quarter: ledger.MustQuarter(2016, 2), Ledger: ledger.New()}
	series := supply.Build(ledger.CA, runState([]sim.Snapshot{mid, yearEnd(2016, 100, 60, 0)}, nil), settings)
	require.Len(t, series.Points, 1)
	assert.Equal(t, 2016, series.Points[0].Year)
}

func TestBuild_EmptyState(t *testing.T) {
	series := supply.Build(ledger.QC, nil, scenario.Default())
	assert.Equal(t, "QC", series.Jurisdiction)
	assert.Empty(t, series.Points)

	series = supply.Build(ledger.QC, sim.NewState(ledger.QC), scenario.Default())
	assert.Empty(t, series.Points)
}

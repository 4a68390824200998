// Package supply reduces a run's state, its auction outcomes and quarterly
// ledger snapshots, together with the scenario emissions/offset projections
// into the annual reporting series: auction supply, private bank, and
// required reserve sales.
package supply

import (
	"wcisim/internal/ledger"
	"wcisim/internal/scenario"
	"wcisim/internal/sim"
)

// Point is one reporting year of the banking series.
type Point struct {
	Year int `json:"year"`

	// AuctionSupply is the quantity sold at auction during the year.
	AuctionSupply float64 `json:"auction_supply"`
	// PrivateHoldings is the end-of-year balance of private accounts
	// (general plus compliance).
	PrivateHoldings float64 `json:"private_holdings"`
	// Retired is the cumulative quantity surrendered through year end.
	Retired float64 `json:"retired"`

	Emissions float64 `json:"emissions"`
	Offsets   float64 `json:"offsets"`

	// Bank is the cumulative private surplus after covering the outstanding
	// compliance obligation, floored at zero.
	Bank float64 `json:"bank"`
	// ReserveSales is the quantity the reserve must sell this year to cover
	// the obligation once the bank is exhausted.
	ReserveSales float64 `json:"reserve_sales"`
}

// Series is one jurisdiction's annual banking series.
type Series struct {
	Jurisdiction string  `json:"jurisdiction"`
	Points       []Point `json:"points"`
}

// Build reduces one jurisdiction's run state into the banking series. Only Q4
// snapshots contribute a reporting year; partial trailing years are dropped.
// Auction supply is read from the recorded auction outcomes rather than from
// surviving sold rows, since compliance surrenders retire sold allowances off
// the general account.
func Build(j ledger.Jurisdiction, st *sim.State, settings scenario.Settings) Series {
	s := Series{Jurisdiction: j.String()}
	if st == nil {
		return s
	}

	yearEnds := make([]sim.Snapshot, 0, len(st.Snapshots))
	for _, snap := range st.Snapshots {
		if snap.Quarter.Q == 4 {
			yearEnds = append(yearEnds, snap)
		}
	}
	if len(yearEnds) == 0 {
		return s
	}

	base := settings.CABaseEmissions
	if j == ledger.QC {
		base = settings.QCBaseEmissions
	}
	firstYear := yearEnds[0].Quarter.Year
	lastYear := yearEnds[len(yearEnds)-1].Quarter.Year
	emissions := annualEmissions(settings, base, firstYear, lastYear)

	soldByYear := make(map[int]float64, len(st.Outcomes))
	for _, o := range st.Outcomes {
		soldByYear[o.Quarter.Year] += o.Sold
	}

	var (
		cumEmissions    float64
		cumOffsets      float64
		cumReserveSales float64
	)
	for _, snap := range yearEnds {
		y := snap.Quarter.Year
		p := Point{Year: y}

		p.AuctionSupply = soldByYear[y]

		p.PrivateHoldings = snap.Ledger.Sum(func(k ledger.Key) bool {
			return k.Acct == ledger.AcctGeneral || k.Acct == ledger.AcctCompliance
		})
		p.Retired = snap.Ledger.Sum(func(k ledger.Key) bool {
			return k.Acct == ledger.AcctRetirement
		})

		p.Emissions = emissions[y]
		p.Offsets = p.Emissions * settings.Offsets.Share(y)
		cumEmissions += p.Emissions
		cumOffsets += p.Offsets

		// The outstanding obligation is what has been emitted but not yet
		// covered by offsets or surrendered allowances. Reserve purchases
		// from earlier years already covered their share.
		outstanding := cumEmissions - cumOffsets - p.Retired - cumReserveSales
		bank := p.PrivateHoldings - outstanding
		if bank < 0 {
			p.ReserveSales = -bank
			cumReserveSales += p.ReserveSales
			bank = 0
		}
		p.Bank = bank

		s.Points = append(s.Points, p)
	}
	return s
}

// annualEmissions projects covered emissions for [firstYear, lastYear]. The
// scenario path compounds forward from the base year; years before it hold
// the base-year level.
func annualEmissions(settings scenario.Settings, base float64, firstYear, lastYear int) map[int]float64 {
	from := settings.BaseYear
	if from > firstYear {
		projected := settings.Emissions.Annual(base, from, lastYear)
		for y := firstYear; y < from; y++ {
			projected[y] = base
		}
		return projected
	}
	return settings.Emissions.Annual(base, from, lastYear)
}

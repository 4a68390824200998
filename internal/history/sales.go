package history

import "wcisim/internal/ledger"

// SalesSeries combines the recorded auction settlement percentages of the
// joint CA-QC market with the scenario's projected sold fractions. Historical
// data takes precedence over projection for overlapping quarters.
type SalesSeries struct {
	undersellYears    map[int]bool
	undersellFraction float64
}

// NewSalesSeries builds the series for one run. undersellYears and fraction
// come from the scenario settings; projection defaults to fully-sold.
func NewSalesSeries(undersellYears map[int]bool, undersellFraction float64) *SalesSeries {
	return &SalesSeries{
		undersellYears:    undersellYears,
		undersellFraction: undersellFraction,
	}
}

// SoldFraction returns the fraction of offered supply that clears at the
// given auction. The two jurisdictions share one undivided auction, so the
// fraction is keyed only by auction type and quarter.
func (s *SalesSeries) SoldFraction(t ledger.AuctionType, q ledger.Quarter) float64 {
	if rec, ok := soldFractionRecord[t]; ok {
		if f, ok := rec[q]; ok {
			return f
		}
	}
	if s.undersellYears[q.Year] {
		return s.undersellFraction
	}
	return 1.0
}

// Recorded returns whether a quarter's fraction comes from the historical
// record rather than projection.
func (s *SalesSeries) Recorded(t ledger.AuctionType, q ledger.Quarter) bool {
	rec, ok := soldFractionRecord[t]
	if !ok {
		return false
	}
	_, ok = rec[q]
	return ok
}

// Joint-auction settlement percentages as reported in the quarterly auction
// summaries. The 2016 collapse and the 2017 recovery are the load-bearing
// entries: they drive the reintroduction eligibility sequence.
var soldFractionRecord = map[ledger.AuctionType]map[ledger.Quarter]float64{
	ledger.AuctionCurrent: {
		ledger.MustQuarter(2012, 4): 0.97,
		ledger.MustQuarter(2013, 1): 1.00,
		ledger.MustQuarter(2013, 2): 1.00,
		ledger.MustQuarter(2013, 3): 1.00,
		ledger.MustQuarter(2013, 4): 1.00,
		ledger.MustQuarter(2014, 1): 1.00,
		ledger.MustQuarter(2014, 2): 1.00,
		ledger.MustQuarter(2014, 3): 1.00,
		ledger.MustQuarter(2014, 4): 1.00,
		ledger.MustQuarter(2015, 1): 1.00,
		ledger.MustQuarter(2015, 2): 1.00,
		ledger.MustQuarter(2015, 3): 1.00,
		ledger.MustQuarter(2015, 4): 1.00,
		ledger.MustQuarter(2016, 1): 0.95,
		ledger.MustQuarter(2016, 2): 0.11,
		ledger.MustQuarter(2016, 3): 0.35,
		ledger.MustQuarter(2016, 4): 0.88,
		ledger.MustQuarter(2017, 1): 0.64,
		ledger.MustQuarter(2017, 2): 1.00,
		ledger.MustQuarter(2017, 3): 1.00,
		ledger.MustQuarter(2017, 4): 1.00,
		ledger.MustQuarter(2018, 1): 1.00,
		ledger.MustQuarter(2018, 2): 1.00,
		ledger.MustQuarter(2018, 3): 1.00,
	},
	ledger.AuctionAdvance: {
		ledger.MustQuarter(2012, 4): 0.46,
		ledger.MustQuarter(2013, 1): 0.79,
		ledger.MustQuarter(2013, 2): 0.74,
		ledger.MustQuarter(2013, 3): 1.00,
		ledger.MustQuarter(2013, 4): 1.00,
		ledger.MustQuarter(2014, 1): 1.00,
		ledger.MustQuarter(2014, 2): 1.00,
		ledger.MustQuarter(2014, 3): 1.00,
		ledger.MustQuarter(2014, 4): 1.00,
		ledger.MustQuarter(2015, 1): 1.00,
		ledger.MustQuarter(2015, 2): 1.00,
		ledger.MustQuarter(2015, 3): 1.00,
		ledger.MustQuarter(2015, 4): 1.00,
		ledger.MustQuarter(2016, 1): 1.00,
		ledger.MustQuarter(2016, 2): 0.02,
		ledger.MustQuarter(2016, 3): 0.09,
		ledger.MustQuarter(2016, 4): 0.34,
		ledger.MustQuarter(2017, 1): 0.16,
		ledger.MustQuarter(2017, 2): 0.18,
		ledger.MustQuarter(2017, 3): 1.00,
		ledger.MustQuarter(2017, 4): 1.00,
		ledger.MustQuarter(2018, 1): 1.00,
		ledger.MustQuarter(2018, 2): 1.00,
		ledger.MustQuarter(2018, 3): 1.00,
	},
}

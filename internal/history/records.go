// Package history replays the recorded auction, allocation, and compliance
// record for quarters already observed, and hands off to formulaic projection
// once the record runs out. Historical data always wins over projection for
// overlapping quarters.
package history

import (
	"wcisim/internal/ledger"
)

type auctionKey struct {
	J ledger.Jurisdiction
	T ledger.AuctionType
}

// Adapter replays recorded newly-available auction quantities. Within the
// last partially-recorded calendar year, the statutory remainder is spread
// evenly over the unrecorded quarters; later years project one quarter of the
// annual total each.
type Adapter struct {
	newlyAvailable map[auctionKey]map[ledger.Quarter]float64
	lastRecorded   map[auctionKey]ledger.Quarter

	trueUps    []TrueUp
	compliance []ComplianceEvent
}

// NewAdapter builds the adapter over the embedded record. Callers treat it as
// read-only for the duration of a run.
func NewAdapter() *Adapter {
	a := &Adapter{
		newlyAvailable: map[auctionKey]map[ledger.Quarter]float64{},
		lastRecorded:   map[auctionKey]ledger.Quarter{},
		trueUps:        qcTrueUpRecord,
		compliance:     complianceRecord,
	}
	for k, rec := range newlyAvailableRecord {
		a.newlyAvailable[k] = rec
		var last ledger.Quarter
		for q := range rec {
			if q.After(last) {
				last = q
			}
		}
		a.lastRecorded[k] = last
	}
	return a
}

// Cutover returns the first quarter with no recorded data for a series; from
// there on the transition function runs on pure projection.
func (a *Adapter) Cutover(j ledger.Jurisdiction, t ledger.AuctionType) ledger.Quarter {
	last, ok := a.lastRecorded[auctionKey{j, t}]
	if !ok {
		return ledger.Quarter{}
	}
	return last.Next()
}

// RecordedNewlyAvailable returns the recorded newly-available quantity at one
// auction, and whether the quarter is inside the record at all.
func (a *Adapter) RecordedNewlyAvailable(j ledger.Jurisdiction, t ledger.AuctionType, q ledger.Quarter) (float64, bool) {
	rec, ok := a.newlyAvailable[auctionKey{j, t}]
	if !ok {
		return 0, false
	}
	v, ok := rec[q]
	return v, ok
}

// QuarterlySplit distributes one vintage year's auction supply over the four
// quarters it is offered in. Quarters inside the record replay it verbatim;
// the remaining statutory total is split evenly across unrecorded quarters.
// A recorded overshoot of the annual total leaves nothing for the remaining
// quarters (the ledger reconciles the excess as an allocation-holding
// deficit).
func (a *Adapter) QuarterlySplit(j ledger.Jurisdiction, t ledger.AuctionType, year int, annualTotal float64) map[ledger.Quarter]float64 {
	out := make(map[ledger.Quarter]float64, 4)
	rec := a.newlyAvailable[auctionKey{j, t}]

	recordedSum := 0.0
	var unrecorded []ledger.Quarter
	for _, q := range ledger.QuartersOf(year) {
		if v, ok := rec[q]; ok {
			out[q] = v
			recordedSum += v
		} else {
			unrecorded = append(unrecorded, q)
		}
	}
	if len(unrecorded) == 0 {
		return out
	}
	remaining := annualTotal - recordedSum
	if remaining < 0 {
		remaining = 0
	}
	per := remaining / float64(len(unrecorded))
	for _, q := range unrecorded {
		out[q] = per
	}
	return out
}

// newlyAvailableRecord holds the regulator-reported newly-available
// quantities per auction quarter, in MMTCO2e. The record thins out after the
// first compliance period; unlisted quarters fall back to projection.
var newlyAvailableRecord = map[auctionKey]map[ledger.Quarter]float64{
	{ledger.CA, ledger.AuctionCurrent}: {
		ledger.MustQuarter(2012, 4): 5.576,
		ledger.MustQuarter(2013, 1): 0.922,
		ledger.MustQuarter(2013, 2): 0.922,
		ledger.MustQuarter(2013, 3): 0.922,
		ledger.MustQuarter(2013, 4): 0.923,
		ledger.MustQuarter(2014, 1): 2.372,
		ledger.MustQuarter(2014, 2): 2.372,
		ledger.MustQuarter(2014, 3): 2.372,
		ledger.MustQuarter(2014, 4): 2.384,
	},
	{ledger.CA, ledger.AuctionAdvance}: {
		ledger.MustQuarter(2012, 4): 39.450,
		ledger.MustQuarter(2013, 1): 9.560,
		ledger.MustQuarter(2013, 2): 9.560,
		ledger.MustQuarter(2013, 3): 9.560,
		ledger.MustQuarter(2013, 4): 9.560,
		ledger.MustQuarter(2014, 1): 9.260,
		ledger.MustQuarter(2014, 2): 9.260,
		ledger.MustQuarter(2014, 3): 9.260,
		ledger.MustQuarter(2014, 4): 9.260,
	},
	{ledger.QC, ledger.AuctionCurrent}: {
		ledger.MustQuarter(2013, 4): 2.787,
		ledger.MustQuarter(2014, 1): 1.049,
		ledger.MustQuarter(2014, 2): 1.049,
		ledger.MustQuarter(2014, 3): 1.049,
		ledger.MustQuarter(2014, 4): 1.049,
	},
	{ledger.QC, ledger.AuctionAdvance}: {
		ledger.MustQuarter(2013, 4): 1.633,
		ledger.MustQuarter(2014, 1): 1.633,
		ledger.MustQuarter(2014, 2): 1.633,
		ledger.MustQuarter(2014, 3): 1.633,
		ledger.MustQuarter(2014, 4): 1.633,
	},
}

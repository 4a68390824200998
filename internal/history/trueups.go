package history

import "wcisim/internal/ledger"

// TrueUp is one reported correction to a QC annual allocation: the regulator
// publishes cumulative-to-date totals, so the quantity to move is the delta
// against the previous report for the same emissions year.
type TrueUp struct {
	EmissionsYear int
	Seq           int // 0 = initial report, 1.. = true-up N
	Quarter       ledger.Quarter
	Cumulative    float64
}

// TrueUpDelta is the resolved quantity a true-up moves at its distribution
// quarter. FromAPCR marks the single dated anomaly whose source account was
// the reserve rather than allocation holding.
type TrueUpDelta struct {
	EmissionsYear int
	Qty           float64
	FromAPCR      bool
}

// QCTrueUpAnomalyQuarter is the one recorded distribution drawn from the
// reserve account; its regulatory basis is uncertain, so it stays a named,
// dated exception rather than a general rule.
var QCTrueUpAnomalyQuarter = ledger.MustQuarter(2016, 3)

// TrueUpDeltasAt resolves the true-ups distributed at quarter q into deltas.
func (a *Adapter) TrueUpDeltasAt(q ledger.Quarter) []TrueUpDelta {
	var out []TrueUpDelta
	for _, t := range a.trueUps {
		if t.Quarter != q || t.Seq == 0 {
			continue
		}
		prev := a.priorCumulative(t.EmissionsYear, t.Seq)
		delta := t.Cumulative - prev
		if delta <= 0 {
			continue
		}
		out = append(out, TrueUpDelta{
			EmissionsYear: t.EmissionsYear,
			Qty:           delta,
			FromAPCR:      q == QCTrueUpAnomalyQuarter,
		})
	}
	return out
}

func (a *Adapter) priorCumulative(emissionsYear, seq int) float64 {
	prev := 0.0
	for _, t := range a.trueUps {
		if t.EmissionsYear == emissionsYear && t.Seq == seq-1 {
			prev = t.Cumulative
		}
	}
	return prev
}

// qcTrueUpRecord is the reported QC allocation distribution history:
// cumulative quantities per emissions year, initial report plus true-ups.
var qcTrueUpRecord = []TrueUp{
	{EmissionsYear: 2013, Seq: 0, Quarter: ledger.MustQuarter(2014, 1), Cumulative: 16.50},
	{EmissionsYear: 2013, Seq: 1, Quarter: ledger.MustQuarter(2014, 4), Cumulative: 16.85},
	{EmissionsYear: 2014, Seq: 0, Quarter: ledger.MustQuarter(2015, 1), Cumulative: 16.15},
	{EmissionsYear: 2014, Seq: 1, Quarter: ledger.MustQuarter(2015, 4), Cumulative: 16.43},
	{EmissionsYear: 2015, Seq: 0, Quarter: ledger.MustQuarter(2016, 1), Cumulative: 15.80},
	{EmissionsYear: 2015, Seq: 1, Quarter: ledger.MustQuarter(2016, 3), Cumulative: 16.02},
	{EmissionsYear: 2016, Seq: 0, Quarter: ledger.MustQuarter(2017, 1), Cumulative: 15.45},
	{EmissionsYear: 2016, Seq: 1, Quarter: ledger.MustQuarter(2017, 4), Cumulative: 15.61},
}

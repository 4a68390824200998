package history

import "wcisim/internal/ledger"

// ComplianceEvent is one recorded compliance surrender: instruments retired
// against a compliance deadline, drawn from private holdings.
type ComplianceEvent struct {
	J       ledger.Jurisdiction
	Year    int // compliance year the surrender settles
	Quarter ledger.Quarter
	Qty     float64
}

// ComplianceEventsAt returns the recorded surrenders settling at quarter q
// for one jurisdiction.
func (a *Adapter) ComplianceEventsAt(j ledger.Jurisdiction, q ledger.Quarter) []ComplianceEvent {
	var out []ComplianceEvent
	for _, e := range a.compliance {
		if e.J == j && e.Quarter == q {
			out = append(out, e)
		}
	}
	return out
}

// complianceRecord is the reported surrender history. The large entries are
// the triennial full-period settlements; the small ones are the 30% annual
// installments.
var complianceRecord = []ComplianceEvent{
	{J: ledger.CA, Year: 2014, Quarter: ledger.MustQuarter(2015, 4), Qty: 127.6},
	{J: ledger.CA, Year: 2015, Quarter: ledger.MustQuarter(2016, 4), Qty: 106.3},
	{J: ledger.CA, Year: 2016, Quarter: ledger.MustQuarter(2017, 4), Qty: 103.9},
	{J: ledger.CA, Year: 2017, Quarter: ledger.MustQuarter(2018, 4), Qty: 240.4},

	{J: ledger.QC, Year: 2014, Quarter: ledger.MustQuarter(2015, 4), Qty: 18.8},
	{J: ledger.QC, Year: 2015, Quarter: ledger.MustQuarter(2016, 4), Qty: 17.4},
	{J: ledger.QC, Year: 2016, Quarter: ledger.MustQuarter(2017, 4), Qty: 16.9},
	{J: ledger.QC, Year: 2017, Quarter: ledger.MustQuarter(2018, 4), Qty: 39.6},
}

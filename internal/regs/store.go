// Package regs is the regulatory parameter store: the statute-derived tables
// (annual caps, reserve and advance carve-outs, allocation formulas) that the
// simulation reads but never mutates. All lookups are total over 2013-2030 and
// return a typed error outside that range.
package regs

import (
	"errors"
	"fmt"

	"wcisim/internal/ledger"
)

var (
	ErrMissingRegulatoryData = errors.New("missing regulatory data")
	ErrUnsupportedVariant    = errors.New("unsupported regulation variant")
)

const (
	// FirstVintage and LastVintage bound the supported budget years.
	FirstVintage = 2013
	LastVintage  = 2030

	post2020Creation = 2017 // Q4: the 2021-2030 budgets enter the books

	advanceFraction = 0.10   // advance carve-out, vintages 2015 on
	vreFraction     = 0.0025 // CA voluntary renewable reserve, 2013-2020

	// One-off additions to the circulating budget.
	earlyActionQty = 2.427  // CA early action credits, issued 2014Q2
	onNetFlowQty   = 13.186 // net instruments left behind by Ontario's 2018 linkage
)

// Milestone quarters, shared across packages.
var (
	CAStartQuarter        = ledger.MustQuarter(2012, 4)
	QCStartQuarter        = ledger.MustQuarter(2013, 4)
	Post2020Creation      = ledger.MustQuarter(post2020Creation, 4)
	EarlyActionQuarter    = ledger.MustQuarter(2014, 2)
	OntarioNetFlowQuarter = ledger.MustQuarter(2018, 2)
	EndQuarter            = ledger.MustQuarter(2030, 4)
)

var caCaps = map[int]float64{
	2013: 162.8, 2014: 159.7,
	2015: 394.5, 2016: 382.4, 2017: 370.4,
	2018: 358.3, 2019: 346.3, 2020: 334.2,
	2021: 320.8, 2022: 307.5, 2023: 294.1, 2024: 280.7, 2025: 267.4,
	2026: 254.0, 2027: 240.6, 2028: 227.3, 2029: 213.9, 2030: 200.5,
}

var qcCaps = map[int]float64{
	2013: 23.2, 2014: 23.2,
	2015: 65.3, 2016: 63.19, 2017: 61.08,
	2018: 58.96, 2019: 56.85, 2020: 54.74,
	2021: 55.26, 2022: 54.02, 2023: 52.79, 2024: 51.55, 2025: 50.31,
	2026: 49.08, 2027: 47.84, 2028: 46.60, 2029: 45.37, 2030: 44.13,
}

// Pre-2021 reserve fractions of the annual cap.
var caAPCRFrac = map[int]float64{
	2013: 0.01, 2014: 0.01,
	2015: 0.04, 2016: 0.04, 2017: 0.04,
	2018: 0.07, 2019: 0.07, 2020: 0.07,
}

var qcAPCRFrac = map[int]float64{
	2013: 0.01, 2014: 0.01,
	2015: 0.04, 2016: 0.04, 2017: 0.04,
	2018: 0.04, 2019: 0.04, 2020: 0.04,
}

// post2020APCRBase is the reserve fraction applied to 2021-2030 caps before
// any variant shift.
const post2020APCRBase = 0.04

// Store exposes the regulatory tables for one run. Immutable after Build;
// every simulation component holds it by shared reference.
type Store struct {
	caVariant Variant
	qcVariant Variant

	caps        map[ledger.Jurisdiction]map[int]float64
	apcrFrac    map[ledger.Jurisdiction]map[int]float64
	allocations map[ledger.Jurisdiction]map[ledger.Category]map[int]float64

	// CA consigns this share of the utility allocation through the auction;
	// the rest goes straight to utility compliance accounts.
	consignShare float64

	// Injectable retirement schedules, zero by default. Real quantities for
	// 2018-2020 are pending regulator data.
	eimRetirement        map[int]float64
	bankruptcyRetirement map[int]float64

	// Historical retirements out of the CA voluntary renewable reserve.
	vreRetirements map[ledger.Quarter]float64
}

// Build assembles the default store for the given regulation variants.
func Build(caVariant, qcVariant Variant) *Store {
	s := &Store{
		caVariant: caVariant,
		qcVariant: qcVariant,
		caps: map[ledger.Jurisdiction]map[int]float64{
			ledger.CA: copyTable(caCaps),
			ledger.QC: copyTable(qcCaps),
		},
		apcrFrac: map[ledger.Jurisdiction]map[int]float64{
			ledger.CA: caAPCRFrac,
			ledger.QC: qcAPCRFrac,
		},
		consignShare:         0.80,
		eimRetirement:        map[int]float64{},
		bankruptcyRetirement: map[int]float64{},
		vreRetirements: map[ledger.Quarter]float64{
			ledger.MustQuarter(2016, 4): 0.100,
			ledger.MustQuarter(2018, 4): 0.147,
		},
	}
	s.allocations = map[ledger.Jurisdiction]map[ledger.Category]map[int]float64{
		ledger.CA: {
			ledger.CatIndustrialAlloc: {},
			ledger.CatUtilityAlloc:    {},
			ledger.CatGasAlloc:        {},
		},
		ledger.QC: {
			ledger.CatIndustrialAlloc: {},
		},
	}
	for y := FirstVintage; y <= LastVintage; y++ {
		s.allocations[ledger.CA][ledger.CatIndustrialAlloc][y] = 53.8 - 0.9*float64(y-2013)
		s.allocations[ledger.CA][ledger.CatUtilityAlloc][y] = 97.7 - 2.4*float64(y-2013)
		if y >= 2015 {
			s.allocations[ledger.CA][ledger.CatGasAlloc][y] = 43.7 - 0.8*float64(y-2015)
		}
		s.allocations[ledger.QC][ledger.CatIndustrialAlloc][y] = 16.5 - 0.35*float64(y-2013)
	}
	return s
}

func (s *Store) VariantFor(j ledger.Jurisdiction) Variant {
	if j == ledger.QC {
		return s.qcVariant
	}
	return s.caVariant
}

func (s *Store) yearInRange(year int) error {
	if year < FirstVintage || year > LastVintage {
		return fmt.Errorf("%w: year %d outside %d-%d",
			ErrMissingRegulatoryData, year, FirstVintage, LastVintage)
	}
	return nil
}

// CapFor returns the annual statutory cap.
func (s *Store) CapFor(j ledger.Jurisdiction, year int) (float64, error) {
	if err := s.yearInRange(year); err != nil {
		return 0, err
	}
	caps, ok := s.caps[j]
	if !ok {
		return 0, fmt.Errorf("%w: no cap table for %s", ErrMissingRegulatoryData, j)
	}
	return caps[year], nil
}

// APCRFor returns the annual reserve carve-out. For CA vintages 2021-2030 the
// preliminary-draft and proposed-regs variants add a fixed per-year shift of
// 2% of the 2026-2030 cap sum spread evenly over the decade.
func (s *Store) APCRFor(j ledger.Jurisdiction, year int) (float64, error) {
	cap, err := s.CapFor(j, year)
	if err != nil {
		return 0, err
	}
	if year <= 2020 {
		return cap * s.apcrFrac[j][year], nil
	}
	qty := cap * post2020APCRBase
	if j == ledger.CA && s.caVariant != VariantBaseline {
		qty += s.post2020APCRShift()
	}
	return qty, nil
}

func (s *Store) post2020APCRShift() float64 {
	sum := 0.0
	for y := 2026; y <= 2030; y++ {
		sum += s.caps[ledger.CA][y]
	}
	return 0.02 * sum / 10.0
}

func copyTable(t map[int]float64) map[int]float64 {
	c := make(map[int]float64, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

// AdvanceFor returns the advance-auction carve-out for a vintage. The advance
// mechanism starts with vintage 2015 (sold three years ahead, from 2012Q4).
func (s *Store) AdvanceFor(j ledger.Jurisdiction, year int) (float64, error) {
	cap, err := s.CapFor(j, year)
	if err != nil {
		return 0, err
	}
	if year < 2015 {
		return 0, nil
	}
	return cap * advanceFraction, nil
}

// VREFor returns the CA voluntary renewable electricity reserve carve-out.
// Zero for QC and for post-2020 vintages.
func (s *Store) VREFor(j ledger.Jurisdiction, year int) (float64, error) {
	cap, err := s.CapFor(j, year)
	if err != nil {
		return 0, err
	}
	if j != ledger.CA || year > 2020 {
		return 0, nil
	}
	return cap * vreFraction, nil
}

// AllocationFor returns the free allocation for one program and vintage.
func (s *Store) AllocationFor(j ledger.Jurisdiction, program ledger.Category, year int) (float64, error) {
	if err := s.yearInRange(year); err != nil {
		return 0, err
	}
	progs, ok := s.allocations[j]
	if !ok {
		return 0, fmt.Errorf("%w: no allocation table for %s", ErrMissingRegulatoryData, j)
	}
	table, ok := progs[program]
	if !ok {
		return 0, fmt.Errorf("%w: %s has no %s program", ErrMissingRegulatoryData, j, program)
	}
	return table[year], nil
}

// TotalAllocationFor sums every allocation program for a vintage.
func (s *Store) TotalAllocationFor(j ledger.Jurisdiction, year int) (float64, error) {
	if err := s.yearInRange(year); err != nil {
		return 0, err
	}
	total := 0.0
	for _, table := range s.allocations[j] {
		total += table[year]
	}
	return total, nil
}

// ConsignedFor returns the consigned share of the CA utility allocation for a
// vintage. QC has no consignment.
func (s *Store) ConsignedFor(j ledger.Jurisdiction, year int) (float64, error) {
	if j != ledger.CA {
		return 0, nil
	}
	util, err := s.AllocationFor(j, ledger.CatUtilityAlloc, year)
	if err != nil {
		return 0, err
	}
	return util * s.consignShare, nil
}

// CurrentAuctionFor returns the state-owned current-auction supply for a
// vintage: whatever the cap leaves after the reserve, VRE, advance, and free
// allocation carve-outs.
func (s *Store) CurrentAuctionFor(j ledger.Jurisdiction, year int) (float64, error) {
	cap, err := s.CapFor(j, year)
	if err != nil {
		return 0, err
	}
	apcr, _ := s.APCRFor(j, year)
	vre, _ := s.VREFor(j, year)
	adv, _ := s.AdvanceFor(j, year)
	alloc, _ := s.TotalAllocationFor(j, year)
	return cap - apcr - vre - adv - alloc, nil
}

// EIMRetirementFor and BankruptcyRetirementFor return the injectable annual
// retirement schedules (zero absent better data).
func (s *Store) EIMRetirementFor(year int) float64        { return s.eimRetirement[year] }
func (s *Store) BankruptcyRetirementFor(year int) float64 { return s.bankruptcyRetirement[year] }

// SetEIMRetirement and SetBankruptcyRetirement override the placeholder
// schedules before a run starts.
func (s *Store) SetEIMRetirement(sched map[int]float64) {
	if sched != nil {
		s.eimRetirement = sched
	}
}

func (s *Store) SetBankruptcyRetirement(sched map[int]float64) {
	if sched != nil {
		s.bankruptcyRetirement = sched
	}
}

// VRERetirementAt returns the recorded retirement out of the CA voluntary
// reserve scheduled for a quarter, zero if none.
func (s *Store) VRERetirementAt(q ledger.Quarter) float64 { return s.vreRetirements[q] }

// EarlyActionQty is the one-off CA early action issuance.
func (s *Store) EarlyActionQty() float64 { return earlyActionQty }

// OntarioNetFlowQty is the net instrument flow left in the linked market by
// Ontario's entry and mid-2018 withdrawal.
func (s *Store) OntarioNetFlowQty() float64 { return onNetFlowQty }

// CumulativeIssuanceThrough is the closed-form statutory issuance a
// jurisdiction's ledger must total at the end of quarter q: the budget
// tranches created so far plus the one-off additions.
func (s *Store) CumulativeIssuanceThrough(j ledger.Jurisdiction, q ledger.Quarter) float64 {
	total := 0.0
	start := CAStartQuarter
	if j == ledger.QC {
		start = QCStartQuarter
	}
	if q.Before(start) {
		return 0
	}
	for y := FirstVintage; y <= 2020; y++ {
		total += s.caps[j][y]
	}
	if !q.Before(Post2020Creation) {
		for y := 2021; y <= LastVintage; y++ {
			total += s.caps[j][y]
		}
	}
	if j == ledger.CA {
		if !q.Before(EarlyActionQuarter) {
			total += earlyActionQty
		}
		if !q.Before(OntarioNetFlowQuarter) {
			total += onNetFlowQty
		}
	}
	return total
}

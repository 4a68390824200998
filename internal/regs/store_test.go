package regs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcisim/internal/ledger"
	"wcisim/internal/regs"
)

func TestCapFor_KnownYears(t *testing.T) {
	s := regs.Build(regs.VariantBaseline, regs.VariantBaseline)

	ca2013, err := s.CapFor(ledger.CA, 2013)
	require.NoError(t, err)
	assert.Equal(t, 162.8, ca2013)

	qc2015, err := s.CapFor(ledger.QC, 2015)
	require.NoError(t, err)
	assert.Equal(t, 65.3, qc2015)
}

func TestCapFor_OutOfRangeIsTypedError(t *testing.T) {
	s := regs.Build(regs.VariantBaseline, regs.VariantBaseline)

	_, err := s.CapFor(ledger.CA, 2031)
	assert.ErrorIs(t, err, regs.ErrMissingRegulatoryData)

	_, err = s.CapFor(ledger.CA, 2012)
	assert.ErrorIs(t, err, regs.ErrMissingRegulatoryData)
}

func TestAPCRFor_Pre2021Fractions(t *testing.T) {
	s := regs.Build(regs.VariantBaseline, regs.VariantBaseline)

	apcr, err := s.APCRFor(ledger.CA, 2013)
	require.NoError(t, err)
	assert.InDelta(t, 162.8*0.01, apcr, 1e-9)

	apcr, err = s.APCRFor(ledger.CA, 2018)
	require.NoError(t, err)
	assert.InDelta(t, 358.3*0.07, apcr, 1e-9)
}

func TestAPCRFor_Post2020VariantShift(t *testing.T) {
	base := regs.Build(regs.VariantBaseline, regs.VariantBaseline)
	prop := regs.Build(regs.VariantProposedRegs, regs.VariantBaseline)

	a, err := base.APCRFor(ledger.CA, 2025)
	require.NoError(t, err)
	b, err := prop.APCRFor(ledger.CA, 2025)
	require.NoError(t, err)

	// 2% of the 2026-2030 cap sum spread over ten years.
	capSum := 254.0 + 240.6 + 227.3 + 213.9 + 200.5
	assert.InDelta(t, 0.02*capSum/10.0, b-a, 1e-9)

	// QC is untouched by the CA variant.
	qa, err := base.APCRFor(ledger.QC, 2025)
	require.NoError(t, err)
	qb, err := prop.APCRFor(ledger.QC, 2025)
	require.NoError(t, err)
	assert.Equal(t, qa, qb)
}

func TestAdvanceFor_StartsWithVintage2015(t *testing.T) {
	s := regs.Build(regs.VariantBaseline, regs.VariantBaseline)

	adv, err := s.AdvanceFor(ledger.CA, 2014)
	require.NoError(t, err)
	assert.Zero(t, adv)

	adv, err = s.AdvanceFor(ledger.CA, 2015)
	require.NoError(t, err)
	assert.InDelta(t, 394.5*0.10, adv, 1e-9)
}

func TestVREFor_CAOnlyPre2021(t *testing.T) {
	s := regs.Build(regs.VariantBaseline, regs.VariantBaseline)

	vre, err := s.VREFor(ledger.CA, 2015)
	require.NoError(t, err)
	assert.InDelta(t, 394.5*0.0025, vre, 1e-9)

	vre, err = s.VREFor(ledger.QC, 2015)
	require.NoError(t, err)
	assert.Zero(t, vre)

	vre, err = s.VREFor(ledger.CA, 2021)
	require.NoError(t, err)
	assert.Zero(t, vre)
}

func TestCurrentAuctionFor_PositiveRemainderEveryYear(t *testing.T) {
	for _, v := range []regs.Variant{regs.VariantBaseline, regs.VariantProposedRegs} {
		s := regs.Build(v, regs.VariantBaseline)
		for _, j := range []ledger.Jurisdiction{ledger.CA, ledger.QC} {
			for y := regs.FirstVintage; y <= regs.LastVintage; y++ {
				cur, err := s.CurrentAuctionFor(j, y)
				require.NoError(t, err)
				assert.Positivef(t, cur, "%s vintage %d under %s", j, y, v)
			}
		}
	}
}

func TestCurrentAuctionFor_CarveOutsSumToCap(t *testing.T) {
	s := regs.Build(regs.VariantBaseline, regs.VariantBaseline)

	for y := regs.FirstVintage; y <= regs.LastVintage; y++ {
		cap, err := s.CapFor(ledger.CA, y)
		require.NoError(t, err)
		apcr, _ := s.APCRFor(ledger.CA, y)
		vre, _ := s.VREFor(ledger.CA, y)
		adv, _ := s.AdvanceFor(ledger.CA, y)
		alloc, _ := s.TotalAllocationFor(ledger.CA, y)
		cur, _ := s.CurrentAuctionFor(ledger.CA, y)

		assert.InDeltaf(t, cap, apcr+vre+adv+alloc+cur, 1e-9, "vintage %d", y)
	}
}

func TestCumulativeIssuanceThrough(t *testing.T) {
	s := regs.Build(regs.VariantBaseline, regs.VariantBaseline)

	assert.Zero(t, s.CumulativeIssuanceThrough(ledger.CA, ledger.MustQuarter(2012, 3)))

	firstTranche := s.CumulativeIssuanceThrough(ledger.CA, ledger.MustQuarter(2013, 1))
	want := 0.0
	for _, c := range []float64{162.8, 159.7, 394.5, 382.4, 370.4, 358.3, 346.3, 334.2} {
		want += c
	}
	assert.InDelta(t, want, firstTranche, 1e-9)

	// Early action lands 2014Q2.
	withEA := s.CumulativeIssuanceThrough(ledger.CA, ledger.MustQuarter(2014, 2))
	assert.InDelta(t, s.EarlyActionQty(), withEA-firstTranche, 1e-9)

	// Second tranche lands 2017Q4, Ontario flow 2018Q2.
	with2 := s.CumulativeIssuanceThrough(ledger.CA, ledger.MustQuarter(2017, 4))
	assert.Greater(t, with2, withEA)
	withON := s.CumulativeIssuanceThrough(ledger.CA, ledger.MustQuarter(2018, 2))
	assert.InDelta(t, s.OntarioNetFlowQty(), withON-with2, 1e-9)

	// QC has neither one-off.
	qc := s.CumulativeIssuanceThrough(ledger.QC, regs.EndQuarter)
	qcCaps := 0.0
	for y := regs.FirstVintage; y <= regs.LastVintage; y++ {
		c, err := s.CapFor(ledger.QC, y)
		require.NoError(t, err)
		qcCaps += c
	}
	assert.InDelta(t, qcCaps, qc, 1e-9)
}

func TestParseVariant(t *testing.T) {
	v, err := regs.ParseVariant("proposed_regs")
	require.NoError(t, err)
	assert.Equal(t, regs.VariantProposedRegs, v)

	v, err = regs.ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, regs.VariantBaseline, v)

	_, err = regs.ParseVariant("post_2030_wishlist")
	assert.ErrorIs(t, err, regs.ErrUnsupportedVariant)
}

func TestOverrides_LoadAndApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	doc := `
eim_retirement:
  2018: 0.55
  2019: 0.55
bankruptcy_retirement:
  2020: 1.2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	o, err := regs.LoadOverrides(path)
	require.NoError(t, err)

	s := regs.Build(regs.VariantBaseline, regs.VariantBaseline)
	s.Apply(o)

	assert.Equal(t, 0.55, s.EIMRetirementFor(2018))
	assert.Equal(t, 1.2, s.BankruptcyRetirementFor(2020))
	assert.Zero(t, s.EIMRetirementFor(2021))
}

func TestOverrides_RejectsOutOfRangeYear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	doc := "ca_caps:\n  2031: 190.0\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := regs.LoadOverrides(path)
	assert.ErrorIs(t, err, regs.ErrMissingRegulatoryData)
}

package regs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"wcisim/internal/ledger"
)

// Overrides is the on-disk shape for replacing the placeholder retirement
// schedules (and, rarely, cap rows) without a rebuild. Only the keys present
// in the file are applied.
type Overrides struct {
	CACaps               map[int]float64 `yaml:"ca_caps"`
	QCCaps               map[int]float64 `yaml:"qc_caps"`
	EIMRetirement        map[int]float64 `yaml:"eim_retirement"`
	BankruptcyRetirement map[int]float64 `yaml:"bankruptcy_retirement"`
}

// LoadOverrides parses an overrides YAML file. Malformed files are a hard
// error: broken regulatory input must halt initialization, not degrade it.
func LoadOverrides(path string) (*Overrides, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	for year := range o.CACaps {
		if year < FirstVintage || year > LastVintage {
			return nil, fmt.Errorf("%w: ca_caps year %d", ErrMissingRegulatoryData, year)
		}
	}
	for year := range o.QCCaps {
		if year < FirstVintage || year > LastVintage {
			return nil, fmt.Errorf("%w: qc_caps year %d", ErrMissingRegulatoryData, year)
		}
	}
	return &o, nil
}

// Apply folds the overrides into the store. Must run before the simulation
// starts; the store is immutable afterwards.
func (s *Store) Apply(o *Overrides) {
	if o == nil {
		return
	}
	for year, v := range o.CACaps {
		s.caps[ledger.CA][year] = v
	}
	for year, v := range o.QCCaps {
		s.caps[ledger.QC][year] = v
	}
	for year, v := range o.EIMRetirement {
		s.eimRetirement[year] = v
	}
	for year, v := range o.BankruptcyRetirement {
		s.bankruptcyRetirement[year] = v
	}
}

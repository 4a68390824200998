// Package scenario holds the user-tunable run parameters: the covered
// emissions trajectory, the offset supply rate, and the projected auction
// undersell. Bad user input never halts a run; it falls back to documented
// defaults with a logged warning.
package scenario

import (
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultEmissionsGrowth is the fallback annual emissions growth rate applied
// when the user supplies nothing usable: a 2%/year decline.
const DefaultEmissionsGrowth = -0.02

// DefaultOffsetRate is the fallback offset supply rate as a share of covered
// emissions.
const DefaultOffsetRate = 0.04

// PathKind selects how an annual series is generated.
type PathKind uint8

const (
	PathSimple PathKind = iota // one rate for the whole horizon
	PathStaged                 // per-stage rates over year ranges
	PathCustom                 // explicit per-year values
)

// Stage is one leg of a staged path: rate applies for years [From, To].
type Stage struct {
	From int     `yaml:"from"`
	To   int     `yaml:"to"`
	Rate float64 `yaml:"rate"`
}

// Path generates an annual series from a base value. Simple paths compound a
// single rate; staged paths compound per-stage rates; custom paths replay the
// user's explicit values and fall back to the last stated value beyond them.
type Path struct {
	Kind   PathKind        `yaml:"-"`
	Rate   float64         `yaml:"rate"`
	Stages []Stage         `yaml:"stages"`
	Custom map[int]float64 `yaml:"custom"`
}

// SimplePath builds a single-rate path.
func SimplePath(rate float64) Path { return Path{Kind: PathSimple, Rate: rate} }

// Annual generates the series for years [fromYear, toYear] starting at base
// in fromYear.
func (p Path) Annual(base float64, fromYear, toYear int) map[int]float64 {
	out := make(map[int]float64, toYear-fromYear+1)
	switch p.Kind {
	case PathCustom:
		last := base
		for y := fromYear; y <= toYear; y++ {
			if v, ok := p.Custom[y]; ok {
				last = v
			}
			out[y] = last
		}
	case PathStaged:
		v := base
		for y := fromYear; y <= toYear; y++ {
			if y > fromYear {
				v *= 1 + p.rateFor(y)
			}
			out[y] = v
		}
	default:
		v := base
		for y := fromYear; y <= toYear; y++ {
			if y > fromYear {
				v *= 1 + p.Rate
			}
			out[y] = v
		}
	}
	return out
}

// Share returns the rate in force for one year, read directly rather than
// compounded. Offset paths carry shares of covered emissions, so their
// per-year value is the rate itself.
func (p Path) Share(year int) float64 {
	switch p.Kind {
	case PathCustom:
		years := make([]int, 0, len(p.Custom))
		for y := range p.Custom {
			years = append(years, y)
		}
		sort.Ints(years)
		v := p.Rate
		for _, y := range years {
			if y > year {
				break
			}
			v = p.Custom[y]
		}
		return v
	case PathStaged:
		return p.rateFor(year)
	default:
		return p.Rate
	}
}

func (p Path) rateFor(year int) float64 {
	for _, s := range p.Stages {
		if year >= s.From && year <= s.To {
			return s.Rate
		}
	}
	return p.Rate
}

// Undersell projects auctions in the listed years to clear only Fraction of
// offered supply. Historical quarters are unaffected.
type Undersell struct {
	Years    []int   `yaml:"years"`
	Fraction float64 `yaml:"fraction"`
}

// YearSet returns the undersell years as a set.
func (u Undersell) YearSet() map[int]bool {
	set := make(map[int]bool, len(u.Years))
	for _, y := range u.Years {
		set[y] = true
	}
	return set
}

// Settings is the full user scenario.
type Settings struct {
	Emissions Path      `yaml:"emissions"`
	Offsets   Path      `yaml:"offsets"`
	Undersell Undersell `yaml:"undersell"`

	// Base-year covered emissions in MMTCO2e.
	CABaseEmissions float64 `yaml:"ca_base_emissions"`
	QCBaseEmissions float64 `yaml:"qc_base_emissions"`
	BaseYear        int     `yaml:"base_year"`
}

// Default is the documented fallback scenario.
func Default() Settings {
	return Settings{
		Emissions:       SimplePath(DefaultEmissionsGrowth),
		Offsets:         SimplePath(DefaultOffsetRate),
		Undersell:       Undersell{Fraction: 1.0},
		CABaseEmissions: 345.1,
		QCBaseEmissions: 58.8,
		BaseYear:        2015,
	}
}

// filePath mirrors Path for YAML input. Rate is a pointer so an explicit
// "rate: 0" (a flat path) is distinguishable from an absent field, which
// falls back to the default rate.
type filePath struct {
	Rate   *float64        `yaml:"rate"`
	Stages []Stage         `yaml:"stages"`
	Custom map[int]float64 `yaml:"custom"`
}

// fileSettings mirrors Settings with the path kinds inferred from which
// fields are present.
type fileSettings struct {
	Emissions filePath  `yaml:"emissions"`
	Offsets   filePath  `yaml:"offsets"`
	Undersell Undersell `yaml:"undersell"`

	CABaseEmissions float64 `yaml:"ca_base_emissions"`
	QCBaseEmissions float64 `yaml:"qc_base_emissions"`
	BaseYear        int     `yaml:"base_year"`
}

// Load reads a scenario YAML file. Malformed or out-of-range values fall back
// to the default scenario with a warning; user input is never a hard failure.
func Load(path string, log zerolog.Logger) Settings {
	def := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).
			Msg("scenario file unreadable, using defaults")
		return def
	}
	var fs fileSettings
	if err := yaml.Unmarshal(raw, &fs); err != nil {
		log.Warn().Err(err).Str("path", path).
			Msg("scenario file malformed, using defaults")
		return def
	}

	s := def
	s.Emissions = inferKind(fs.Emissions, DefaultEmissionsGrowth)
	s.Offsets = inferKind(fs.Offsets, DefaultOffsetRate)
	if fs.Undersell.Fraction > 0 {
		s.Undersell = fs.Undersell
	}
	if fs.CABaseEmissions > 0 {
		s.CABaseEmissions = fs.CABaseEmissions
	}
	if fs.QCBaseEmissions > 0 {
		s.QCBaseEmissions = fs.QCBaseEmissions
	}
	if fs.BaseYear > 0 {
		s.BaseYear = fs.BaseYear
	}

	if err := s.validate(); err != nil {
		log.Warn().Err(err).Msg("scenario out of range, using defaults")
		return def
	}
	return s
}

func inferKind(p filePath, fallbackRate float64) Path {
	rate := fallbackRate
	if p.Rate != nil {
		rate = *p.Rate
	}
	switch {
	case len(p.Custom) > 0:
		return Path{Kind: PathCustom, Rate: rate, Custom: p.Custom}
	case len(p.Stages) > 0:
		return Path{Kind: PathStaged, Rate: rate, Stages: p.Stages}
	default:
		return SimplePath(rate)
	}
}

func (s Settings) validate() error {
	if s.Undersell.Fraction < 0 || s.Undersell.Fraction > 1 {
		return fmt.Errorf("undersell fraction %v outside [0,1]", s.Undersell.Fraction)
	}
	if s.Emissions.Rate < -1 || s.Emissions.Rate > 1 {
		return fmt.Errorf("emissions rate %v outside [-1,1]", s.Emissions.Rate)
	}
	years := append([]int(nil), s.Undersell.Years...)
	sort.Ints(years)
	for _, y := range years {
		if y < 2013 || y > 2030 {
			return fmt.Errorf("undersell year %d outside 2013-2030", y)
		}
	}
	return nil
}

package ledger

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Policy decides what a checker does with an invariant violation.
// Production replays of the messy historical record run warn-only; the test
// harness runs strict so a violation fails the build.
type Policy uint8

const (
	PolicyWarn Policy = iota
	PolicyStrict
)

// Violation is one detected invariant breach.
type Violation struct {
	Check  string
	Detail string
}

func (v Violation) Error() string {
	return fmt.Sprintf("invariant violated [%s]: %s", v.Check, v.Detail)
}

// Checker verifies the conservation and consistency invariants of a ledger.
// All checks are read-only. Violations are always recorded and logged; under
// PolicyStrict they are also returned as errors.
type Checker struct {
	policy     Policy
	log        zerolog.Logger
	violations []Violation
	hook       func(check string)
}

func NewChecker(policy Policy, log zerolog.Logger) *Checker {
	return &Checker{policy: policy, log: log}
}

// SetHook installs a callback invoked once per violation, keyed by check name.
// Used to bump the violation metric without coupling this package to metrics.
func (c *Checker) SetHook(fn func(check string)) { c.hook = fn }

// Violations returns everything recorded so far.
func (c *Checker) Violations() []Violation { return c.violations }

func (c *Checker) report(check, format string, args ...interface{}) error {
	v := Violation{Check: check, Detail: fmt.Sprintf(format, args...)}
	c.violations = append(c.violations, v)
	c.log.Warn().Str("check", check).Msg(v.Detail)
	if c.hook != nil {
		c.hook(check)
	}
	if c.policy == PolicyStrict {
		return v
	}
	return nil
}

// CheckConservation verifies that an operation changed the ledger total by
// exactly the quantity it was entitled to create (zero for pure transfers).
func (c *Checker) CheckConservation(op string, before, after, created float64) error {
	delta := after - before
	if math.Abs(delta-created) > Epsilon {
		return c.report("conservation",
			"%s: total moved by %.9f, expected %.9f", op, delta, created)
	}
	return nil
}

// CheckDistinctKeys verifies that no two rows of a materialized snapshot share
// a classification key. The live ledger is keyed by the full tuple, so this
// can only fail on externally-assembled row sets.
func (c *Checker) CheckDistinctKeys(rows []Row) error {
	for i := 1; i < len(rows); i++ {
		if rows[i].Key == rows[i-1].Key {
			return c.report("distinct_keys", "duplicate key %s", rows[i].Key)
		}
	}
	return nil
}

// CheckNoUnexplainedNegatives flags any negative balance that is not an
// intentional deficit marker.
func (c *Checker) CheckNoUnexplainedNegatives(l *Ledger) error {
	for _, r := range l.Rows() {
		if r.Qty < -Epsilon && r.Key.Stat != StatusDeficit {
			return c.report("no_negatives",
				"batch %s has unexplained negative quantity %.9f", r.Key, r.Qty)
		}
	}
	return nil
}

// CheckBudget verifies the ledger total against the cumulative statutory
// issuance through the given quarter.
func (c *Checker) CheckBudget(l *Ledger, expected float64, q Quarter) error {
	total := l.Total()
	if math.Abs(total-expected) > Epsilon {
		return c.report("budget",
			"%s: ledger total %.9f, statutory issuance %.9f (diff %.9f)",
			q, total, expected, total-expected)
	}
	return nil
}

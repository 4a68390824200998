package regs

import "fmt"

// Variant selects which post-2020 regulation text a jurisdiction's run
// follows. The choice shifts the 2021-2030 reserve carve-out and changes how
// long-unsold allowances are retired for EIM outstanding emissions and
// bankruptcies.
type Variant uint8

const (
	VariantBaseline Variant = iota
	VariantPreliminaryDraft
	VariantProposedRegs
)

func (v Variant) String() string {
	switch v {
	case VariantBaseline:
		return "baseline"
	case VariantPreliminaryDraft:
		return "preliminary_draft"
	case VariantProposedRegs:
		return "proposed_regs"
	default:
		return "unknown"
	}
}

// ParseVariant maps a config string onto a Variant. Unrecognized values are a
// hard error rather than a silent fallback.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "baseline", "":
		return VariantBaseline, nil
	case "preliminary_draft":
		return VariantPreliminaryDraft, nil
	case "proposed_regs":
		return VariantProposedRegs, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedVariant, s)
	}
}

package composite

// FormulaKind tags the fixed set of per-pixel combination rules a preset may
// use, replacing arbitrary expression evaluation with a closed, auditable
// set of operations (spec §9 design note).
type FormulaKind int

const (
	Direct FormulaKind = iota
	Ratio
	Sum
	AbsDiff
)

// Formula combines one or two input channels into one output channel.
type Formula struct {
	Kind FormulaKind
	// Channel names are keys into the values map passed to Apply: A is
	// always required, B is required for Ratio/Sum/AbsDiff.
	A, B string
}

// Apply evaluates the formula for one pixel's channel values, looked up by
// name from values.
func (f Formula) Apply(values map[string]float32) float32 {
	switch f.Kind {
	case Direct:
		return values[f.A]
	case Ratio:
		b := values[f.B]
		if b == 0 {
			return 0
		}
		return values[f.A] / b
	case Sum:
		return values[f.A] + values[f.B]
	case AbsDiff:
		d := values[f.A] - values[f.B]
		if d < 0 {
			return -d
		}
		return d
	default:
		return 0
	}
}

// Preset names the three formulas that produce a composite's R, G, B
// channels from a product's available polarization channels.
type Preset struct {
	Name string
	R, G, B Formula
	// Required lists the source channel names this preset needs present on
	// the product for auto-select to consider it a candidate.
	Required []string
}

// Catalogue is the fixed set of composite presets spec §4.H names.
var Catalogue = []Preset{
	{
		Name:     "hh-hv-vv",
		Required: []string{"HH", "HV", "VV"},
		R:        Formula{Kind: Direct, A: "HH"},
		G:        Formula{Kind: Direct, A: "HV"},
		B:        Formula{Kind: Direct, A: "VV"},
	},
	{
		Name:     "dual-pol-h",
		Required: []string{"HH", "HV"},
		R:        Formula{Kind: Direct, A: "HH"},
		G:        Formula{Kind: Direct, A: "HV"},
		B:        Formula{Kind: Ratio, A: "HH", B: "HV"},
	},
	{
		Name:     "dual-pol-v",
		Required: []string{"VV", "VH"},
		R:        Formula{Kind: Direct, A: "VV"},
		G:        Formula{Kind: Direct, A: "VH"},
		B:        Formula{Kind: Ratio, A: "VV", B: "VH"},
	},
	{
		Name:     "pauli-power",
		Required: []string{"HH", "HV", "VV"},
		R:        Formula{Kind: AbsDiff, A: "HH", B: "VV"},
		G:        Formula{Kind: Direct, A: "HV"},
		B:        Formula{Kind: Sum, A: "HH", B: "VV"},
	},
}

// AutoSelect returns the first catalogue preset whose Required channels are
// all present in available, or false if none match.
func AutoSelect(available map[string]bool) (Preset, bool) {
	for _, p := range Catalogue {
		ok := true
		for _, ch := range p.Required {
			if !available[ch] {
				ok = false
				break
			}
		}
		if ok {
			return p, true
		}
	}
	return Preset{}, false
}

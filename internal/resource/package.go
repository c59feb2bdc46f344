package resource

import "github.com/aristath/simkernel/internal/kernerr"

// FillStrategy controls how Package.Split divides a quantity into pieces.
type FillStrategy int

const (
	FillFirst FillStrategy = iota
	FillEqual
	FillUniform
	FillNormal
)

// UnpackagedName is the reserved singleton package applied by default —
// no fill constraint.
const UnpackagedName = "unpackaged"

// Package is a named fill rule (spec §3). Splitting a resource into a
// Package must yield pieces in [FillMin, FillMax], except possibly one
// trailing piece holding the remainder if it is >= FillMin.
type Package struct {
	Name     string
	FillMin  float64
	FillMax  float64
	Strategy FillStrategy
}

// Unpackaged is the reserved no-constraint package.
var Unpackaged = Package{Name: UnpackagedName, FillMin: 0, FillMax: 0, Strategy: FillFirst}

// IsUnpackaged reports whether p is the unpackaged singleton (any
// quantity passes through untouched).
func (p Package) IsUnpackaged() bool {
	return p.Name == UnpackagedName
}

// Split divides qty into pieces obeying the package's fill rule. It
// returns the sequence of piece quantities; the caller is responsible
// for actually extracting resources of those quantities.
func (p Package) Split(qty float64) ([]float64, error) {
	if p.IsUnpackaged() || qty <= EpsRsrc {
		return []float64{qty}, nil
	}
	if p.FillMin <= 0 || p.FillMax < p.FillMin {
		return nil, kernerr.Newf(kernerr.ValueError, "package %q has invalid fill range [%.9g, %.9g]", p.Name, p.FillMin, p.FillMax)
	}

	var pieces []float64
	remaining := qty
	switch p.Strategy {
	case FillEqual:
		n := int(remaining/p.FillMax) + 1
		for n > 0 {
			per := remaining / float64(n)
			if per >= p.FillMin-EpsRsrc && per <= p.FillMax+EpsRsrc {
				break
			}
			n++
		}
		per := remaining / float64(n)
		for i := 0; i < n; i++ {
			pieces = append(pieces, per)
		}
		return pieces, nil
	default: // FillFirst, FillUniform, FillNormal: take fill_max pieces, trailing remainder
		for remaining > p.FillMax+EpsRsrc {
			pieces = append(pieces, p.FillMax)
			remaining -= p.FillMax
		}
		if remaining >= p.FillMin-EpsRsrc {
			pieces = append(pieces, remaining)
		} else if len(pieces) > 0 {
			// fold remainder into the trailing piece rather than
			// producing an under-filled residue
			pieces[len(pieces)-1] += remaining
		} else {
			pieces = append(pieces, remaining)
		}
		return pieces, nil
	}
}

// TransportStrategy controls how a TransportUnit computes shippable
// item counts.
type TransportStrategy int

const (
	TransportFirst TransportStrategy = iota
	TransportEqual
	TransportHybrid
)

// UnrestrictedName is the reserved singleton transport unit passing all
// counts through.
const UnrestrictedName = "unrestricted"

// TransportUnit is a named integer-count packaging rule (spec §3).
type TransportUnit struct {
	Name     string
	FillMin  int
	FillMax  int
	Strategy TransportStrategy
}

// Unrestricted is the reserved no-constraint transport unit.
var Unrestricted = TransportUnit{Name: UnrestrictedName, FillMin: 0, FillMax: 0, Strategy: TransportFirst}

func (t TransportUnit) IsUnrestricted() bool {
	return t.Name == UnrestrictedName
}

// MaxShippable returns how many of available items may be shipped
// together under this transport unit's rule.
func (t TransportUnit) MaxShippable(available int) int {
	if t.IsUnrestricted() || t.FillMax <= 0 {
		return available
	}
	if available < t.FillMax {
		return available
	}
	n := (available / t.FillMax) * t.FillMax
	return n
}

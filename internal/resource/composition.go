package resource

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Composition is an immutable, normalized nuclide-id -> mass-fraction
// mapping. Nuclide ids follow the Z*1e7 + A*1e4 + M convention (spec §3).
type Composition struct {
	frac map[int64]float64
}

// NewComposition normalizes frac (copying it) so fractions sum to 1.
// A zero-sum input is rejected.
func NewComposition(frac map[int64]float64) (Composition, error) {
	total := 0.0
	vals := make([]float64, 0, len(frac))
	for _, v := range frac {
		vals = append(vals, v)
	}
	total = floats.Sum(vals)
	if total <= 0 {
		return Composition{}, fmt.Errorf("composition: fractions must sum to a positive value, got %.9g", total)
	}
	norm := make(map[int64]float64, len(frac))
	for nucID, v := range frac {
		norm[nucID] = v / total
	}
	return Composition{frac: norm}, nil
}

// MassFrac returns the normalized mass fraction of nucID (0 if absent).
func (c Composition) MassFrac(nucID int64) float64 {
	return c.frac[nucID]
}

// Each calls fn for every (nuclide id, mass fraction) pair in ascending
// nuclide-id order, for deterministic iteration (e.g. when recording).
func (c Composition) Each(fn func(nucID int64, massFrac float64)) {
	ids := make([]int64, 0, len(c.frac))
	for id := range c.frac {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fn(id, c.frac[id])
	}
}

// key returns a canonical string form used for interning equality and
// hashing. Two compositions with identical normalized maps (within a
// tight tolerance) produce the same key and therefore share a QualID.
func (c Composition) key() string {
	ids := make([]int64, 0, len(c.frac))
	for id := range c.frac {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(strconv.FormatInt(id, 10))
		sb.WriteByte(':')
		// Round to avoid float noise splitting an otherwise-identical
		// composition into two qual_ids.
		sb.WriteString(strconv.FormatFloat(roundFrac(c.frac[id]), 'g', 9, 64))
		sb.WriteByte(';')
	}
	return sb.String()
}

func roundFrac(v float64) float64 {
	const scale = 1e9
	return float64(int64(v*scale+0.5)) / scale
}

// Mix returns the mass-weighted combination of a (qtyA, A) and
// (qtyB, B), used by Material.Absorb.
func Mix(qtyA float64, a Composition, qtyB float64, b Composition) (Composition, error) {
	total := qtyA + qtyB
	if total <= 0 {
		return Composition{}, fmt.Errorf("composition: cannot mix with non-positive total quantity %.9g", total)
	}
	merged := make(map[int64]float64, len(a.frac)+len(b.frac))
	for id, f := range a.frac {
		merged[id] += f * qtyA
	}
	for id, f := range b.frac {
		merged[id] += f * qtyB
	}
	return NewComposition(merged)
}

// CompositionRegistry interns Compositions into QualIDs; two
// compositions with identical normalized maps share a QualID, and each
// unique QualID is recorded once (spec §3). The kernel Context owns one
// of these and exposes it through resource.Env.InternComposition.
type CompositionRegistry struct {
	byKey map[string]QualID
	byID  map[QualID]Composition
}

func NewCompositionRegistry() *CompositionRegistry {
	return &CompositionRegistry{
		byKey: make(map[string]QualID),
		byID:  make(map[QualID]Composition),
	}
}

// Intern returns the QualID for comp, assigning a fresh one via next
// only if an identical normalized composition hasn't been seen before.
// The second return value reports whether this call assigned a fresh
// id, so callers can record a Compositions row exactly once per unique
// qual_id.
func (r *CompositionRegistry) Intern(comp Composition, next func() QualID) (QualID, bool) {
	k := comp.key()
	if id, ok := r.byKey[k]; ok {
		return id, false
	}
	id := next()
	r.byKey[k] = id
	r.byID[id] = comp
	return id, true
}

// Lookup returns the Composition interned under id, if any.
func (r *CompositionRegistry) Lookup(id QualID) (Composition, bool) {
	c, ok := r.byID[id]
	return c, ok
}

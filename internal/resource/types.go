// Package resource implements spec §4.3: Material and Product value
// types, the Composition store, and the ResTracker bookkeeping that
// records every resource state transition.
package resource

import "github.com/aristath/simkernel/internal/kernerr"

// EpsRsrc is the quantity-comparison epsilon used throughout the
// resource model (spec §3, §4.3).
const EpsRsrc = 1e-6

// ObjID identifies a resource's root lineage. It is preserved across
// every split and merge of a resource's descendants.
type ObjID int64

// StateID is bumped on every observable state change of a resource and
// is unique across all resources in a simulation.
type StateID int64

// QualID interns a Composition (Material) or Quality string (Product).
type QualID int64

// Kind distinguishes the two resource specializations.
type Kind int

const (
	KindMaterial Kind = iota
	KindProduct
)

func (k Kind) String() string {
	switch k {
	case KindMaterial:
		return "Material"
	case KindProduct:
		return "Product"
	default:
		return "Unknown"
	}
}

// Resource is the common read surface over Material and Product, used
// by packaging and transport-unit computations that are type-agnostic.
type Resource interface {
	ObjID() ObjID
	StateID() StateID
	Quantity() float64
	Units() string
	Kind() Kind
	PackageName() string
}

// Row is the Resources table row emitted by ResTracker on every mutation
// (spec §4.3, §6).
type Row struct {
	StateID     StateID
	ObjID       ObjID
	Type        Kind
	TimeCreated int
	Quantity    float64
	Units       string
	QualID      QualID
	PackageName string
	Parent1     StateID
	Parent2     StateID
}

// Env is the set of simulation-scoped services a resource factory needs:
// id allocation, composition/quality interning, and row recording. It is
// implemented by the kernel Context (internal/context) — resource.go
// never holds global mutable state itself (spec §9 design note).
type Env interface {
	NextObjID() ObjID
	NextStateID() StateID
	Now() int

	// InternComposition returns the QualID for frac, assigning and
	// recording a new one only if an identical normalized map hasn't
	// been seen before.
	InternComposition(frac map[int64]float64) QualID
	// InternQuality is the Product analogue of InternComposition.
	InternQuality(quality string) QualID

	RecordResourceRow(Row)

	// Tracking may be disabled for untracked (speculative) resources
	// used only during exchange matching (spec §4.3).
	TrackingEnabled() bool
}

func negativeQuantityErr(have, want float64) error {
	return kernerr.Newf(kernerr.ValueError, "extraction of %.9g exceeds available quantity %.9g", want, have)
}

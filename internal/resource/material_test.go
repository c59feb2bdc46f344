package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnv is a minimal resource.Env good enough for exercising
// Material/Product mutation without a full kernel Context.
type fakeEnv struct {
	now      int
	objSeq   ObjID
	stateSeq StateID
	qualSeq  QualID
	comps    map[string]QualID
	quals    map[string]QualID
	rows     []Row
	tracking bool
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		comps:    make(map[string]QualID),
		quals:    make(map[string]QualID),
		tracking: true,
	}
}

func (e *fakeEnv) NextObjID() ObjID     { e.objSeq++; return e.objSeq }
func (e *fakeEnv) NextStateID() StateID { e.stateSeq++; return e.stateSeq }
func (e *fakeEnv) Now() int             { return e.now }

func (e *fakeEnv) InternComposition(frac map[int64]float64) QualID {
	comp, _ := NewComposition(frac)
	key := comp.key()
	if id, ok := e.comps[key]; ok {
		return id
	}
	e.qualSeq++
	e.comps[key] = e.qualSeq
	return e.qualSeq
}

func (e *fakeEnv) InternQuality(q string) QualID {
	if id, ok := e.quals[q]; ok {
		return id
	}
	e.qualSeq++
	e.quals[q] = e.qualSeq
	return e.qualSeq
}

func (e *fakeEnv) RecordResourceRow(r Row) { e.rows = append(e.rows, r) }
func (e *fakeEnv) TrackingEnabled() bool   { return e.tracking }

func naturalUComp(t *testing.T) Composition {
	t.Helper()
	comp, err := NewComposition(map[int64]float64{922350000: 0.0071, 922380000: 0.9929})
	require.NoError(t, err)
	return comp
}

func TestExtractQtyConservesTotalMass(t *testing.T) {
	env := newFakeEnv()
	comp := naturalUComp(t)
	m, err := CreateMaterial(env, 100, "kg", comp)
	require.NoError(t, err)

	extracted, err := m.ExtractQty(30)
	require.NoError(t, err)

	assert.InDelta(t, 70, m.Quantity(), EpsRsrc)
	assert.InDelta(t, 30, extracted.Quantity(), EpsRsrc)
	assert.InDelta(t, 100, m.Quantity()+extracted.Quantity(), EpsRsrc)
	assert.Equal(t, m.ObjID(), extracted.ObjID(), "obj_id is preserved across a split")
}

func TestExtractQtyRejectsMoreThanAvailable(t *testing.T) {
	env := newFakeEnv()
	m, err := CreateMaterial(env, 10, "kg", naturalUComp(t))
	require.NoError(t, err)

	_, err = m.ExtractQty(10 + 1)
	assert.Error(t, err)
}

func TestAbsorbConservesTotalMassAndMixesComposition(t *testing.T) {
	env := newFakeEnv()
	enriched, err := NewComposition(map[int64]float64{922350000: 0.9, 922380000: 0.1})
	require.NoError(t, err)

	a, err := CreateMaterial(env, 40, "kg", naturalUComp(t))
	require.NoError(t, err)
	b, err := CreateMaterial(env, 10, "kg", enriched)
	require.NoError(t, err)

	require.NoError(t, a.Absorb(b))

	assert.InDelta(t, 50, a.Quantity(), EpsRsrc)
	assert.InDelta(t, 0, b.Quantity(), EpsRsrc)

	// mass-weighted U235 fraction: (40*0.0071 + 10*0.9) / 50
	want := (40*0.0071 + 10*0.9) / 50
	assert.InDelta(t, want, a.Composition().MassFrac(922350000), 1e-9)
}

func TestAbsorbRejectsMismatchedUnits(t *testing.T) {
	env := newFakeEnv()
	a, err := CreateMaterial(env, 10, "kg", naturalUComp(t))
	require.NoError(t, err)
	b, err := CreateMaterial(env, 10, "g", naturalUComp(t))
	require.NoError(t, err)

	assert.Error(t, a.Absorb(b))
}

func TestExtractThenAbsorbRoundTripsToOriginalQuantity(t *testing.T) {
	env := newFakeEnv()
	m, err := CreateMaterial(env, 75, "kg", naturalUComp(t))
	require.NoError(t, err)

	piece, err := m.ExtractQty(25)
	require.NoError(t, err)
	require.NoError(t, m.Absorb(piece))

	assert.InDelta(t, 75, m.Quantity(), EpsRsrc)
}

package resource

import "github.com/aristath/simkernel/internal/kernerr"

// Material is a Resource specialized by a Composition (spec §3).
type Material struct {
	env     Env
	objID   ObjID
	stateID StateID
	qty     float64
	units   string
	comp    Composition
	qualID  QualID
	pkg     string
}

var _ Resource = (*Material)(nil)

func (m *Material) ObjID() ObjID          { return m.objID }
func (m *Material) StateID() StateID      { return m.stateID }
func (m *Material) Quantity() float64     { return m.qty }
func (m *Material) Units() string         { return m.units }
func (m *Material) Kind() Kind            { return KindMaterial }
func (m *Material) PackageName() string   { return m.pkg }
func (m *Material) Composition() Composition { return m.comp }
func (m *Material) QualID() QualID        { return m.qualID }

// CreateMaterial assigns obj_id, bumps state_id, and records the
// creation via env (spec §4.3).
func CreateMaterial(env Env, qty float64, units string, comp Composition) (*Material, error) {
	if qty < 0 {
		return nil, kernerr.Newf(kernerr.ValueError, "cannot create material with negative quantity %.9g", qty)
	}
	qualID := env.InternComposition(compositionToMap(comp))
	m := &Material{
		env:     env,
		objID:   env.NextObjID(),
		stateID: env.NextStateID(),
		qty:     qty,
		units:   units,
		comp:    comp,
		qualID:  qualID,
		pkg:     UnpackagedName,
	}
	m.record(0, 0)
	return m, nil
}

func compositionToMap(c Composition) map[int64]float64 {
	out := make(map[int64]float64)
	c.Each(func(id int64, f float64) { out[id] = f })
	return out
}

func (m *Material) record(parent1, parent2 StateID) {
	if !m.env.TrackingEnabled() {
		return
	}
	m.env.RecordResourceRow(Row{
		StateID:     m.stateID,
		ObjID:       m.objID,
		Type:        KindMaterial,
		TimeCreated: m.env.Now(),
		Quantity:    m.qty,
		Units:       m.units,
		QualID:      m.qualID,
		PackageName: m.pkg,
		Parent1:     parent1,
		Parent2:     parent2,
	})
}

// ExtractQty mutates self to the leftover and returns a new Material of
// quantity q with identical composition (spec §4.3). If q equals the
// current quantity within EpsRsrc, self is emptied but not destroyed.
func (m *Material) ExtractQty(q float64) (*Material, error) {
	if q < 0 {
		return nil, kernerr.Newf(kernerr.ValueError, "cannot extract negative quantity %.9g", q)
	}
	if q > m.qty+EpsRsrc {
		return nil, negativeQuantityErr(m.qty, q)
	}
	preSplit := m.stateID

	extracted := q
	remainder := m.qty - q
	if remainder < 0 {
		remainder = 0
	}
	if remainder < EpsRsrc {
		remainder = 0
	}

	out := &Material{
		env:    m.env,
		objID:  m.objID, // obj_id preserved across splits (spec §3)
		qty:    extracted,
		units:  m.units,
		comp:   m.comp,
		qualID: m.qualID,
		pkg:    m.pkg,
	}
	out.stateID = m.env.NextStateID()
	out.record(preSplit, 0)

	m.qty = remainder
	m.stateID = m.env.NextStateID()
	m.record(preSplit, 0)

	return out, nil
}

// ExtractComp removes a resource of quantity q with composition comp;
// the complement remains in self (spec §4.3 separation operation). comp
// need not equal self's composition.
func (m *Material) ExtractComp(q float64, comp Composition) (*Material, error) {
	if q < 0 {
		return nil, kernerr.Newf(kernerr.ValueError, "cannot extract negative quantity %.9g", q)
	}
	if q > m.qty+EpsRsrc {
		return nil, negativeQuantityErr(m.qty, q)
	}
	rest := make(map[int64]float64)
	m.comp.Each(func(id int64, f float64) { rest[id] += f * m.qty })
	comp.Each(func(id int64, f float64) { rest[id] -= f * q })
	for id, mass := range rest {
		if mass < -EpsRsrc {
			return nil, kernerr.Newf(kernerr.ValueError, "separation would leave a negative mass of nuclide %d", id)
		}
		if mass < 0 {
			rest[id] = 0
		}
	}
	preSplit := m.stateID
	remainder := m.qty - q
	if remainder < EpsRsrc {
		remainder = 0
	}

	qualID := m.env.InternComposition(compositionToMap(comp))
	out := &Material{
		env:    m.env,
		objID:  m.objID,
		qty:    q,
		units:  m.units,
		comp:   comp,
		qualID: qualID,
		pkg:    m.pkg,
	}
	out.stateID = m.env.NextStateID()
	out.record(preSplit, 0)

	m.qty = remainder
	if restComp, err := NewComposition(rest); remainder > 0 && err == nil {
		m.comp = restComp
		m.qualID = m.env.InternComposition(rest)
	}
	m.stateID = m.env.NextStateID()
	m.record(preSplit, 0)

	return out, nil
}

// Absorb merges other into self; composition becomes the mass-weighted
// mixture; other is emptied (spec §4.3).
func (m *Material) Absorb(other *Material) error {
	if other.units != m.units {
		return kernerr.Newf(kernerr.ValueError, "cannot absorb material with mismatched units %q into %q", other.units, m.units)
	}
	preMerge := m.stateID
	otherState := other.stateID

	mixed, err := Mix(m.qty, m.comp, other.qty, other.comp)
	if err != nil {
		return err
	}
	m.qty += other.qty
	m.comp = mixed
	m.qualID = m.env.InternComposition(compositionToMap(mixed))
	m.stateID = m.env.NextStateID()
	m.record(preMerge, otherState)

	other.qty = 0
	other.stateID = m.env.NextStateID()
	other.record(otherState, 0)
	return nil
}

// Repackage divides r into pieces following pkg's fill rule, leaving any
// trailing remainder in r itself (spec §4.3).
func (m *Material) Repackage(pkg Package) ([]*Material, error) {
	sizes, err := pkg.Split(m.qty)
	if err != nil {
		return nil, err
	}
	if len(sizes) == 1 && sizes[0] == m.qty {
		m.pkg = pkg.Name
		preSplit := m.stateID
		m.stateID = m.env.NextStateID()
		m.record(preSplit, 0)
		return []*Material{m}, nil
	}
	pieces := make([]*Material, 0, len(sizes))
	for i, sz := range sizes {
		if i == len(sizes)-1 {
			// last piece stays as the (mutated) source
			m.qty = sz
			m.pkg = pkg.Name
			preSplit := m.stateID
			m.stateID = m.env.NextStateID()
			m.record(preSplit, 0)
			pieces = append(pieces, m)
			continue
		}
		piece, err := m.ExtractQty(sz)
		if err != nil {
			return nil, err
		}
		piece.pkg = pkg.Name
		preSplit := piece.stateID
		piece.stateID = m.env.NextStateID()
		piece.record(preSplit, 0)
		pieces = append(pieces, piece)
	}
	return pieces, nil
}

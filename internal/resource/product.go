package resource

import "github.com/aristath/simkernel/internal/kernerr"

// Product is a Resource specialized by an opaque quality string instead
// of a Composition — bulk, non-nuclear goods (spec §3, §4.3).
type Product struct {
	env     Env
	objID   ObjID
	stateID StateID
	qty     float64
	units   string
	quality string
	qualID  QualID
	pkg     string
	value   float64 // money per unit; 0 when unvalued
}

var _ Resource = (*Product)(nil)

func (p *Product) ObjID() ObjID        { return p.objID }
func (p *Product) StateID() StateID    { return p.stateID }
func (p *Product) Quantity() float64   { return p.qty }
func (p *Product) Units() string       { return p.units }
func (p *Product) Kind() Kind          { return KindProduct }
func (p *Product) PackageName() string { return p.pkg }
func (p *Product) Quality() string     { return p.quality }
func (p *Product) QualID() QualID      { return p.qualID }

// UnitValue returns the money-per-unit value attached to p, 0 if none
// was given at creation (spec §3).
func (p *Product) UnitValue() float64 { return p.value }

// CreateProduct assigns obj_id, bumps state_id, and records the
// creation via env (spec §4.3). unitValue may be 0 when the product
// carries no money-per-unit attribute.
func CreateProduct(env Env, qty float64, units, quality string, unitValue float64) (*Product, error) {
	if qty < 0 {
		return nil, kernerr.Newf(kernerr.ValueError, "cannot create product with negative quantity %.9g", qty)
	}
	p := &Product{
		env:     env,
		objID:   env.NextObjID(),
		stateID: env.NextStateID(),
		qty:     qty,
		units:   units,
		quality: quality,
		qualID:  env.InternQuality(quality),
		pkg:     UnpackagedName,
		value:   unitValue,
	}
	p.record(0, 0)
	return p, nil
}

func (p *Product) record(parent1, parent2 StateID) {
	if !p.env.TrackingEnabled() {
		return
	}
	p.env.RecordResourceRow(Row{
		StateID:     p.stateID,
		ObjID:       p.objID,
		Type:        KindProduct,
		TimeCreated: p.env.Now(),
		Quantity:    p.qty,
		Units:       p.units,
		QualID:      p.qualID,
		PackageName: p.pkg,
		Parent1:     parent1,
		Parent2:     parent2,
	})
}

// Extract removes a quantity q of product, leaving the remainder in
// self; quality is shared by both pieces since Product carries no
// per-unit composition to separate (spec §4.3).
func (p *Product) Extract(q float64) (*Product, error) {
	if q < 0 {
		return nil, kernerr.Newf(kernerr.ValueError, "cannot extract negative quantity %.9g", q)
	}
	if q > p.qty+EpsRsrc {
		return nil, negativeQuantityErr(p.qty, q)
	}
	preSplit := p.stateID
	remainder := p.qty - q
	if remainder < EpsRsrc {
		remainder = 0
	}

	out := &Product{
		env:     p.env,
		objID:   p.objID,
		qty:     q,
		units:   p.units,
		quality: p.quality,
		qualID:  p.qualID,
		pkg:     p.pkg,
		value:   p.value,
	}
	out.stateID = p.env.NextStateID()
	out.record(preSplit, 0)

	p.qty = remainder
	p.stateID = p.env.NextStateID()
	p.record(preSplit, 0)

	return out, nil
}

// Absorb merges other into self. Since quality is an opaque string
// rather than a blendable composition, the quantity-weighted-dominant
// quality wins: the larger-quantity side's quality string is kept,
// matching how bulk product grading is reported upstream (spec §4.3).
// UnitValue is combined by quantity-weighted average (spec §3).
func (p *Product) Absorb(other *Product) error {
	if other.units != p.units {
		return kernerr.Newf(kernerr.ValueError, "cannot absorb product with mismatched units %q into %q", other.units, p.units)
	}
	preMerge := p.stateID
	otherState := other.stateID

	if other.qty > p.qty {
		p.quality = other.quality
		p.qualID = other.qualID
	}
	total := p.qty + other.qty
	if total > 0 {
		p.value = (p.value*p.qty + other.value*other.qty) / total
	}
	p.qty = total
	p.stateID = p.env.NextStateID()
	p.record(preMerge, otherState)

	other.qty = 0
	other.stateID = p.env.NextStateID()
	other.record(otherState, 0)
	return nil
}

// Repackage divides p into pieces following pkg's fill rule, leaving any
// trailing remainder in p itself (spec §4.3).
func (p *Product) Repackage(pkg Package) ([]*Product, error) {
	sizes, err := pkg.Split(p.qty)
	if err != nil {
		return nil, err
	}
	if len(sizes) == 1 && sizes[0] == p.qty {
		p.pkg = pkg.Name
		preSplit := p.stateID
		p.stateID = p.env.NextStateID()
		p.record(preSplit, 0)
		return []*Product{p}, nil
	}
	pieces := make([]*Product, 0, len(sizes))
	for i, sz := range sizes {
		if i == len(sizes)-1 {
			p.qty = sz
			p.pkg = pkg.Name
			preSplit := p.stateID
			p.stateID = p.env.NextStateID()
			p.record(preSplit, 0)
			pieces = append(pieces, p)
			continue
		}
		piece, err := p.Extract(sz)
		if err != nil {
			return nil, err
		}
		piece.value = p.value
		piece.pkg = pkg.Name
		preSplit := piece.stateID
		piece.stateID = p.env.NextStateID()
		piece.record(preSplit, 0)
		pieces = append(pieces, piece)
	}
	return pieces, nil
}

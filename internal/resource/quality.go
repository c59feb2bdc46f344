package resource

// QualityRegistry interns Product quality strings into QualIDs, the
// Product analogue of CompositionRegistry (spec §3).
type QualityRegistry struct {
	byKey map[string]QualID
	byID  map[QualID]string
}

func NewQualityRegistry() *QualityRegistry {
	return &QualityRegistry{
		byKey: make(map[string]QualID),
		byID:  make(map[QualID]string),
	}
}

// Intern returns the QualID for quality, assigning a fresh one via next
// only if this exact string hasn't been seen before. The second return
// value reports whether this call assigned a fresh id, so callers can
// record a Products row exactly once per unique quality.
func (r *QualityRegistry) Intern(quality string, next func() QualID) (QualID, bool) {
	if id, ok := r.byKey[quality]; ok {
		return id, false
	}
	id := next()
	r.byKey[quality] = id
	r.byID[id] = quality
	return id, true
}

// Lookup returns the quality string interned under id, if any.
func (r *QualityRegistry) Lookup(id QualID) (string, bool) {
	q, ok := r.byID[id]
	return q, ok
}

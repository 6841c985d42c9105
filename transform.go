package cowmap

// MapValues returns a new map with every value passed through
// transform. The receiver is never modified; the result keeps the
// receiver's capacity. A transform failure aborts the whole operation
// and is returned verbatim.
func (m *Map[K, V]) MapValues(
	transform func(K, V) (V, error),
) (*Map[K, V], error) {
	out := m.emptyLike()
	t := m.table
	if t == nil {
		return out, nil
	}
	nt, err := t.mapValues(transform)
	if err != nil {
		return nil, err
	}
	out.table = nt
	return out, nil
}

// CompactMapValues is MapValues where transform may also drop entries
// by returning keep == false.
func (m *Map[K, V]) CompactMapValues(
	transform func(K, V) (V, bool, error),
) (*Map[K, V], error) {
	out := m.emptyLike()
	t := m.table
	if t == nil {
		return out, nil
	}
	nt, err := t.compactMapValues(transform)
	if err != nil {
		return nil, err
	}
	out.table = nt
	return out, nil
}

// Filter returns a new map holding the entries predicate keeps.
func (m *Map[K, V]) Filter(
	predicate func(K, V) (bool, error),
) (*Map[K, V], error) {
	out := m.emptyLike()
	t := m.table
	if t == nil {
		return out, nil
	}
	nt, err := t.filter(predicate)
	if err != nil {
		return nil, err
	}
	out.table = nt
	return out, nil
}

// emptyLike returns an empty map carrying the receiver's hasher, seed
// and shrink floor, so transformed results bucket keys identically.
func (m *Map[K, V]) emptyLike() *Map[K, V] {
	mm := &Map[K, V]{
		seed:    m.seed,
		keyHash: m.keyHash,
		minCap:  m.minCap,
	}
	mm.lazyInit()
	return mm
}

// TransformValues builds a new map keyed like m with every value
// passed through transform, which may change the value type. The
// result is pre-sized for m's count.
func TransformValues[K comparable, V, U any](
	m *Map[K, V],
	transform func(K, V) (U, error),
) (*Map[K, U], error) {
	out := New[K, U](WithPresize(m.Len()))
	var err error
	m.Range(func(k K, v V) bool {
		var u U
		if u, err = transform(k, v); err != nil {
			return false
		}
		out.Set(k, u)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

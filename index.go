package cowmap

// Position is an opaque cursor into the map: a bucket index, an offset
// within that bucket's chain, and the generation token of the handle
// that issued it. A position stays usable only until the next mutating
// call on the handle; after that it is stale, and every operation that
// takes it fails loudly rather than resolve against moved storage.
//
// Positions order first by bucket index, then by offset within the
// bucket: a position deeper in a chain (closer to the tail, fewer
// nodes remaining) sorts after one nearer the head.
type Position struct {
	bucket int
	offset int
	gen    uint64
}

// Equal reports whether two positions point at the same place. Both
// must come from the same generation.
func (p Position) Equal(o Position) bool {
	if p.gen != o.gen {
		panic("cowmap: comparing positions from different generations")
	}
	return p.bucket == o.bucket && p.offset == o.offset
}

// Before reports whether p precedes o in iteration order. Both must
// come from the same generation.
func (p Position) Before(o Position) bool {
	if p.gen != o.gen {
		panic("cowmap: comparing positions from different generations")
	}
	if p.bucket != o.bucket {
		return p.bucket < o.bucket
	}
	return p.offset < o.offset
}

// First returns the position of the first entry, or End for an empty
// map. O(1) via the first-occupied cache.
func (m *Map[K, V]) First() Position {
	t := m.table
	if t == nil {
		return Position{gen: m.gen}
	}
	return Position{bucket: t.firstOccupied, gen: m.gen}
}

// End returns the past-the-end position: bucket index == capacity,
// offset 0. It never resolves to an entry.
func (m *Map[K, V]) End() Position {
	return Position{bucket: m.Cap(), gen: m.gen}
}

// IsEnd reports whether p is the past-the-end position.
func (m *Map[K, V]) IsEnd(p Position) bool {
	m.checkGeneration(p)
	return p.bucket >= m.Cap()
}

// Find returns a resolvable position for key, or no position at all
// when the key is absent.
func (m *Map[K, V]) Find(key K) (Position, bool) {
	t := m.table
	if t == nil {
		return Position{}, false
	}
	bidx := t.hashIndex(m.hashOf(&key))
	offset := 0
	for c := t.buckets[bidx]; c != nil; c = c.next {
		if c.entry.Key == key {
			return Position{bucket: bidx, offset: offset, gen: m.gen}, true
		}
		offset++
	}
	return Position{}, false
}

// Next returns the position after p: the next node of the same chain,
// else the head of the next occupied bucket, else End. Advancing End
// is a usage error.
func (m *Map[K, V]) Next(p Position) Position {
	node, t := m.resolve(p)
	if node.next != nil {
		return Position{bucket: p.bucket, offset: p.offset + 1, gen: m.gen}
	}
	return Position{bucket: t.nextOccupied(p.bucket + 1), gen: m.gen}
}

// At returns the entry p points at. Resolution re-walks the chain from
// the bucket head, O(offset) within one bucket.
func (m *Map[K, V]) At(p Position) (K, V) {
	node, _ := m.resolve(p)
	return node.entry.Key, node.entry.Value
}

// DeleteAt removes the entry p points at and returns it. Like every
// mutating call it invalidates all outstanding positions, p included.
func (m *Map[K, V]) DeleteAt(p Position) (K, V) {
	m.resolve(p)
	m.gen++
	m.ensureUnique()
	e := m.table.removeAt(p.bucket, p.offset)
	m.shrinkAfterRemoval()
	return e.Key, e.Value
}

// resolve validates p against the handle and returns the node it
// points at. Stale, past-the-end and out-of-range positions are usage
// errors.
func (m *Map[K, V]) resolve(p Position) (*chainNode[K, V], *hashTable[K, V]) {
	m.checkGeneration(p)
	t := m.table
	if t == nil || p.bucket < 0 || p.bucket >= t.capacity() || p.offset < 0 {
		panic("cowmap: position out of range")
	}
	head := t.buckets[p.bucket]
	if head == nil {
		panic("cowmap: position out of range")
	}
	node := head.nodeAt(p.offset)
	if node == nil {
		panic("cowmap: position out of range")
	}
	return node, t
}

func (m *Map[K, V]) checkGeneration(p Position) {
	if p.gen != m.gen {
		panic("cowmap: stale position")
	}
}

package cowmap

import "sync/atomic"

// minTableCapacity is the smallest bucket count a table is ever
// allocated or shrunk to.
const minTableCapacity = 3

// hashTable is the bucket array backing one or more Map handles.
// buckets[i] holds the head of the collision chain for hash index i,
// or nil when the bucket is empty.
//
// Invariants:
//   - count == sum of all chain counts
//   - firstOccupied is the smallest non-empty bucket index, or
//     len(buckets) when the table is empty
//   - every entry lives in the bucket hashIndex selects for its key
type hashTable[K comparable, V any] struct {
	buckets       []*chainNode[K, V]
	count         int
	firstOccupied int
	// refs counts the Map handles sharing this table; a handle must
	// own the only reference before mutating.
	refs atomic.Int32
}

func newHashTable[K comparable, V any](capacity int) *hashTable[K, V] {
	if capacity < minTableCapacity {
		capacity = minTableCapacity
	}
	t := &hashTable[K, V]{
		buckets:       make([]*chainNode[K, V], capacity),
		firstOccupied: capacity,
	}
	t.refs.Store(1)
	return t
}

func (t *hashTable[K, V]) capacity() int {
	return len(t.buckets)
}

// hashIndex maps a hash value to a bucket index. The sign bit is
// masked off before the modulo so the index stays non-negative for
// hashers that fill the whole word.
func (t *hashTable[K, V]) hashIndex(hash uintptr) int {
	return int((hash & hashMask) % uintptr(len(t.buckets)))
}

// lookup returns the node holding key in the given bucket, or nil.
func (t *hashTable[K, V]) lookup(bidx int, key K) *chainNode[K, V] {
	if head := t.buckets[bidx]; head != nil {
		return head.find(key)
	}
	return nil
}

// set stores value under key in the given bucket, creating the chain
// when the bucket is empty. Returns the previous value, if any.
func (t *hashTable[K, V]) set(bidx int, key K, value V) (previous V, replaced bool) {
	if head := t.buckets[bidx]; head != nil {
		previous, replaced = head.set(key, value)
		if !replaced {
			t.count++
		}
		return previous, replaced
	}
	t.buckets[bidx] = newChainNode(key, value)
	t.count++
	if bidx < t.firstOccupied {
		t.firstOccupied = bidx
	}
	return previous, false
}

// setWith is set with a combine step for existing keys. A failing
// combine leaves the table untouched.
func (t *hashTable[K, V]) setWith(
	bidx int,
	key K,
	value V,
	combine func(existing, incoming V) (V, error),
) error {
	if head := t.buckets[bidx]; head != nil {
		replaced, err := head.setWith(key, value, combine)
		if err != nil {
			return err
		}
		if !replaced {
			t.count++
		}
		return nil
	}
	t.buckets[bidx] = newChainNode(key, value)
	t.count++
	if bidx < t.firstOccupied {
		t.firstOccupied = bidx
	}
	return nil
}

// insertNew appends a known-absent entry, bypassing the key scan. Used
// by rehash paths where keys are unique by construction.
func (t *hashTable[K, V]) insertNew(bidx int, key K, value V) {
	node := newChainNode(key, value)
	if head := t.buckets[bidx]; head != nil {
		head.append(node)
	} else {
		t.buckets[bidx] = node
		if bidx < t.firstOccupied {
			t.firstOccupied = bidx
		}
	}
	t.count++
}

// remove deletes key from the given bucket. The first-occupied cache
// is rescanned only when the bucket at the cached index went empty;
// buckets before the cache are empty by definition.
func (t *hashTable[K, V]) remove(bidx int, key K) (removed V, found bool) {
	head := t.buckets[bidx]
	if head == nil {
		return removed, false
	}
	newHead, removed, found := head.remove(key)
	if !found {
		return removed, false
	}
	t.buckets[bidx] = newHead
	t.count--
	if newHead == nil && bidx <= t.firstOccupied {
		t.rescanFirstOccupied()
	}
	return removed, true
}

// removeAt deletes the entry at the given bucket and chain offset. The
// caller guarantees the position resolves.
func (t *hashTable[K, V]) removeAt(bidx, offset int) Entry[K, V] {
	newHead, e := t.buckets[bidx].removeAt(offset)
	t.buckets[bidx] = newHead
	t.count--
	if newHead == nil && bidx <= t.firstOccupied {
		t.rescanFirstOccupied()
	}
	return e
}

// rescanFirstOccupied advances the first-occupied cache past buckets
// that went empty. Scanning starts at the stale cache value, never
// from zero: everything before it is already known empty.
func (t *hashTable[K, V]) rescanFirstOccupied() {
	for i := t.firstOccupied; i < len(t.buckets); i++ {
		if t.buckets[i] != nil {
			t.firstOccupied = i
			return
		}
	}
	t.firstOccupied = len(t.buckets)
}

// nextOccupied returns the first non-empty bucket index at or after
// bidx, or the capacity when none remain.
func (t *hashTable[K, V]) nextOccupied(bidx int) int {
	for i := bidx; i < len(t.buckets); i++ {
		if t.buckets[i] != nil {
			return i
		}
	}
	return len(t.buckets)
}

// resizeTo rehashes every entry into a fresh bucket array of the given
// capacity, reusing the existing nodes. This is the only operation
// that changes a live table's capacity. No-op when the capacity stays
// the same.
func (t *hashTable[K, V]) resizeTo(newCapacity int, hashOf func(*K) uintptr) {
	if newCapacity < minTableCapacity {
		newCapacity = minTableCapacity
	}
	if newCapacity == len(t.buckets) {
		return
	}
	buckets := make([]*chainNode[K, V], newCapacity)
	first := newCapacity
	for _, head := range t.buckets {
		for c := head; c != nil; {
			next := c.next
			c.next = nil
			c.count = 1
			bidx := int((hashOf(&c.entry.Key) & hashMask) % uintptr(newCapacity))
			if b := buckets[bidx]; b != nil {
				b.append(c)
			} else {
				buckets[bidx] = c
				if bidx < first {
					first = bidx
				}
			}
			c = next
		}
	}
	t.buckets = buckets
	t.firstOccupied = first
}

// clone deep-copies every bucket's chain into a new table of the same
// capacity. The clone starts with a single reference.
func (t *hashTable[K, V]) clone() *hashTable[K, V] {
	nt := &hashTable[K, V]{
		buckets:       make([]*chainNode[K, V], len(t.buckets)),
		count:         t.count,
		firstOccupied: t.firstOccupied,
	}
	nt.refs.Store(1)
	for i, head := range t.buckets {
		nt.buckets[i] = head.clone()
	}
	return nt
}

// cloneToCapacity deep-copies and rehashes in one pass over the source
// buckets, equivalent to clone followed by resizeTo. Used when
// copy-on-write duplication and a resize coincide.
func (t *hashTable[K, V]) cloneToCapacity(
	newCapacity int,
	hashOf func(*K) uintptr,
) *hashTable[K, V] {
	nt := newHashTable[K, V](newCapacity)
	for _, head := range t.buckets {
		for c := head; c != nil; c = c.next {
			nt.insertNew(nt.hashIndex(hashOf(&c.entry.Key)), c.entry.Key, c.entry.Value)
		}
	}
	return nt
}

// mapValues builds a new table of the same capacity with every value
// passed through transform. Bucket layout is preserved, so count and
// the first-occupied cache carry over from the transformed contents.
func (t *hashTable[K, V]) mapValues(
	transform func(K, V) (V, error),
) (*hashTable[K, V], error) {
	nt := newHashTable[K, V](len(t.buckets))
	for i, head := range t.buckets {
		nh, err := head.mapValues(transform)
		if err != nil {
			return nil, err
		}
		nt.buckets[i] = nh
		if nh != nil {
			nt.count += nh.count
			if i < nt.firstOccupied {
				nt.firstOccupied = i
			}
		}
	}
	return nt, nil
}

// compactMapValues is mapValues where transform may drop entries.
// Chains can shrink to empty, so count and first-occupied are computed
// from the transformed contents, never copied from the source.
func (t *hashTable[K, V]) compactMapValues(
	transform func(K, V) (V, bool, error),
) (*hashTable[K, V], error) {
	nt := newHashTable[K, V](len(t.buckets))
	for i, head := range t.buckets {
		nh, err := head.compactMapValues(transform)
		if err != nil {
			return nil, err
		}
		nt.buckets[i] = nh
		if nh != nil {
			nt.count += nh.count
			if i < nt.firstOccupied {
				nt.firstOccupied = i
			}
		}
	}
	return nt, nil
}

// filter builds a new table holding the entries predicate keeps.
func (t *hashTable[K, V]) filter(
	predicate func(K, V) (bool, error),
) (*hashTable[K, V], error) {
	return t.compactMapValues(func(k K, v V) (V, bool, error) {
		keep, err := predicate(k, v)
		return v, keep, err
	})
}

// all yields every entry, walking buckets from the first-occupied
// cache upward and each chain in insertion order. The order is stable
// for one unmutated snapshot.
func (t *hashTable[K, V]) all(yield func(Entry[K, V]) bool) bool {
	for i := t.firstOccupied; i < len(t.buckets); i++ {
		if head := t.buckets[i]; head != nil {
			if !head.all(yield) {
				return false
			}
		}
	}
	return true
}

package cowmap

import (
	"fmt"
	"math/rand"
	"strings"
	"unsafe"
)

// Map is a hash map with separate-chaining collision resolution and
// copy-on-write value semantics. It is meant as a drop-in substitute
// for a plain map[K]V when cheap snapshots are needed: Clone returns a
// handle sharing the same storage in O(1), and whichever handle
// mutates first pays for the deep copy.
//
// Key features:
//   - Amortized O(1) Get/Set/Update/Delete
//   - Defaults to Go's built-in hash function, customizable on creation
//   - O(1) Clone with structural sharing between handles
//   - Position-based iteration with explicit staleness detection
//   - Bulk construction, merging and map/filter transforms
//
// A zero Map is an empty map ready for use.
//
// Map is not safe for concurrent use. Sharing is between copies of the
// map value, never between concurrent mutators of the same handle;
// callers needing cross-goroutine access must synchronize externally.
// Copy handles with Clone, not by assignment: plain assignment
// bypasses the reference accounting that copy-on-write relies on.
type Map[K comparable, V any] struct {
	table *hashTable[K, V]
	// gen is this handle's generation token. Every mutating call bumps
	// it, unconditionally, which invalidates all previously issued
	// positions (see Position).
	gen     uint64
	seed    uintptr
	keyHash HashFunc
	// minCap is the shrink floor: the table never shrinks below it.
	// WithPresize raises it above the global minimum.
	minCap int
}

// Config defines configurable Map options.
type Config struct {
	sizeHint int
}

// WithPresize configures a new Map with capacity enough to hold
// sizeHint entries without growing. The resulting capacity is also the
// minimal capacity: the table never shrinks below it. Zero or negative
// values are ignored.
func WithPresize(sizeHint int) func(*Config) {
	return func(c *Config) {
		c.sizeHint = sizeHint
	}
}

// New creates an empty Map.
//
// Parameters:
//   - WithPresize option for initial capacity
func New[K comparable, V any](options ...func(*Config)) *Map[K, V] {
	return NewWithHasher[K, V](nil, options...)
}

// NewWithHasher creates a Map with a custom key hash function.
//
// Parameters:
//   - keyHash: nil uses the built-in hasher
//   - WithPresize option for initial capacity
func NewWithHasher[K comparable, V any](
	keyHash func(key K, seed uintptr) uintptr,
	options ...func(*Config),
) *Map[K, V] {
	var c Config
	for _, o := range options {
		o(&c)
	}

	m := &Map[K, V]{}
	m.lazyInit()
	if keyHash != nil {
		m.keyHash = func(ptr unsafe.Pointer, seed uintptr) uintptr {
			return keyHash(*(*K)(ptr), seed)
		}
	}
	if c.sizeHint > 0 {
		m.minCap = grownCapacity(c.sizeHint, 0)
		m.table = newHashTable[K, V](m.minCap)
	}
	return m
}

// lazyInit installs the hasher and seed on first use, which keeps the
// zero Map usable.
func (m *Map[K, V]) lazyInit() {
	if m.keyHash != nil {
		return
	}
	m.seed = uintptr(rand.Uint64())
	m.keyHash, _ = defaultHasher[K]()
	m.minCap = minTableCapacity
}

func (m *Map[K, V]) hashOf(key *K) uintptr {
	return m.keyHash(noescape(unsafe.Pointer(key)), m.seed)
}

// grownCapacity returns the capacity for a table that must accommodate
// needed entries: at least 1.5x the needed count, at least double the
// current capacity, never below the global floor.
func grownCapacity(needed, current int) int {
	c := needed + needed/2
	if d := current * 2; d > c {
		c = d
	}
	if c < minTableCapacity {
		c = minTableCapacity
	}
	return c
}

// Len returns the number of stored entries.
func (m *Map[K, V]) Len() int {
	if m.table == nil {
		return 0
	}
	return m.table.count
}

// Cap returns the current bucket count, 0 for a map that holds no
// table.
func (m *Map[K, V]) Cap() int {
	if m.table == nil {
		return 0
	}
	return m.table.capacity()
}

// IsEmpty reports whether the map holds no entries.
func (m *Map[K, V]) IsEmpty() bool {
	return m.Len() == 0
}

// Generation returns the handle's current generation token. Positions
// issued before the token changed are stale. Diagnostic use only.
func (m *Map[K, V]) Generation() uint64 {
	return m.gen
}

// Get retrieves the value stored under key.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	t := m.table
	if t == nil {
		return value, false
	}
	if n := t.lookup(t.hashIndex(m.hashOf(&key)), key); n != nil {
		return n.entry.Value, true
	}
	return value, false
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value under key, inserting or replacing.
func (m *Map[K, V]) Set(key K, value V) {
	m.Update(key, value)
}

// Update stores value under key and returns the value previously
// stored there, if any.
func (m *Map[K, V]) Update(key K, value V) (previous V, loaded bool) {
	m.gen++
	t := m.prepareInsert()
	return t.set(t.hashIndex(m.hashOf(&key)), key, value)
}

// SetWith stores value under key; when the key already exists the
// stored value becomes combine(existing, incoming) instead. A failing
// combine aborts the call, leaves the contents unchanged and is
// returned verbatim.
func (m *Map[K, V]) SetWith(
	key K,
	value V,
	combine func(existing, incoming V) (V, error),
) error {
	m.gen++
	t := m.prepareInsert()
	return t.setWith(t.hashIndex(m.hashOf(&key)), key, value, combine)
}

// prepareInsert readies the table for one more entry: allocate on
// first use, clone when shared, grow when the load factor reached 1.
// Growing while shared clones and rehashes in a single pass.
func (m *Map[K, V]) prepareInsert() *hashTable[K, V] {
	m.lazyInit()
	t := m.table
	if t == nil {
		t = newHashTable[K, V](m.minCap)
		m.table = t
		return t
	}
	if t.count >= t.capacity() {
		grown := grownCapacity(t.count+1, t.capacity())
		if t.refs.Load() > 1 {
			t.refs.Add(-1)
			t = t.cloneToCapacity(grown, m.hashOf)
			m.table = t
		} else {
			t.resizeTo(grown, m.hashOf)
		}
		return t
	}
	m.ensureUnique()
	return m.table
}

// ensureUnique makes m the sole owner of its table, cloning it when it
// is shared with another handle.
func (m *Map[K, V]) ensureUnique() {
	t := m.table
	if t == nil || t.refs.Load() == 1 {
		return
	}
	t.refs.Add(-1)
	m.table = t.clone()
}

// Delete removes key and returns the removed value, if any. A removal
// that leaves the table far below its capacity shrinks it; one that
// empties the map releases the table entirely.
func (m *Map[K, V]) Delete(key K) (removed V, loaded bool) {
	m.gen++
	t := m.table
	if t == nil {
		return removed, false
	}
	if t.lookup(t.hashIndex(m.hashOf(&key)), key) == nil {
		// Absent key: no reason to break sharing.
		return removed, false
	}
	m.ensureUnique()
	t = m.table
	removed, loaded = t.remove(t.hashIndex(m.hashOf(&key)), key)
	m.shrinkAfterRemoval()
	return removed, loaded
}

// shrinkAfterRemoval applies the post-removal policy: drop the table
// when it emptied, halve the capacity when the load factor fell to
// 1/4 above the floor. The caller already owns the table uniquely.
func (m *Map[K, V]) shrinkAfterRemoval() {
	t := m.table
	if t.count == 0 {
		m.table = nil
		return
	}
	if c := t.capacity(); c > m.minCap && t.count <= c/4 {
		t.resizeTo(max(c/2, m.minCap), m.hashOf)
	}
}

// Clear removes every entry. With keepCapacity the map keeps a table
// of the same capacity; otherwise the table is released and the map
// reports capacity 0. Calling Clear repeatedly is idempotent.
func (m *Map[K, V]) Clear(keepCapacity bool) {
	m.gen++
	t := m.table
	if t == nil {
		return
	}
	t.refs.Add(-1)
	if keepCapacity {
		m.table = newHashTable[K, V](t.capacity())
	} else {
		m.table = nil
	}
}

// Reserve ensures the table has free capacity for at least n more
// entries, growing to max(1.5x the resulting count, double the current
// capacity) when it does not. Negative n is a usage error.
func (m *Map[K, V]) Reserve(n int) {
	if n < 0 {
		panic("cowmap: negative capacity reservation")
	}
	m.gen++
	m.lazyInit()
	t := m.table
	if t == nil {
		m.table = newHashTable[K, V](grownCapacity(n, 0))
		return
	}
	if t.capacity()-t.count < n {
		grown := grownCapacity(t.count+n, t.capacity())
		if t.refs.Load() > 1 {
			t.refs.Add(-1)
			m.table = t.cloneToCapacity(grown, m.hashOf)
		} else {
			t.resizeTo(grown, m.hashOf)
		}
		return
	}
	m.ensureUnique()
}

// Clone returns a handle sharing this map's storage. The call is O(1);
// the first handle to mutate afterwards clones the table. The clone
// starts a generation history of its own.
func (m *Map[K, V]) Clone() *Map[K, V] {
	if m.table != nil {
		m.table.refs.Add(1)
	}
	return &Map[K, V]{
		table:   m.table,
		seed:    m.seed,
		keyHash: m.keyHash,
		minCap:  m.minCap,
	}
}

// Merge integrates other into m. For keys present in both, the stored
// value becomes combine(existing, incoming); a nil combine keeps the
// incoming value. The table is pre-sized for the combined count before
// any entry moves. A combine failure aborts the merge; entries already
// merged stay.
func (m *Map[K, V]) Merge(
	other *Map[K, V],
	combine func(existing, incoming V) (V, error),
) error {
	if other == nil || other.IsEmpty() {
		m.gen++
		return nil
	}
	return m.mergeSeq(other.Len(), other.All(), combine)
}

// SetAll inserts every entry, combining with existing values the way
// Merge does. The capacity is pre-sized from len(entries).
func (m *Map[K, V]) SetAll(
	entries []Entry[K, V],
	combine func(existing, incoming V) (V, error),
) error {
	return m.mergeSeq(len(entries), func(yield func(K, V) bool) {
		for _, e := range entries {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}, combine)
}

// mergeSeq inserts every entry of seq via set-with-combine. sizeHint
// pre-sizes the table once up front; should the source outgrow the
// hint, prepareInsert still grows opportunistically per entry.
func (m *Map[K, V]) mergeSeq(
	sizeHint int,
	seq func(yield func(K, V) bool),
	combine func(existing, incoming V) (V, error),
) error {
	if combine == nil {
		combine = func(_, incoming V) (V, error) {
			return incoming, nil
		}
	}
	m.Reserve(sizeHint)
	var err error
	seq(func(k K, v V) bool {
		t := m.prepareInsert()
		err = t.setWith(t.hashIndex(m.hashOf(&k)), k, v, combine)
		return err == nil
	})
	return err
}

// All returns an iterator over all entries. The order is unspecified
// but stable for one unmutated snapshot; it does not survive
// mutations. The iterator may be ranged over multiple times, each pass
// is a fresh traversal.
func (m *Map[K, V]) All() func(yield func(K, V) bool) {
	return func(yield func(K, V) bool) {
		m.Range(yield)
	}
}

// Keys returns an iterator over all keys.
func (m *Map[K, V]) Keys() func(yield func(K) bool) {
	return func(yield func(K) bool) {
		m.Range(func(k K, _ V) bool {
			return yield(k)
		})
	}
}

// Values returns an iterator over all values.
func (m *Map[K, V]) Values() func(yield func(V) bool) {
	return func(yield func(V) bool) {
		m.Range(func(_ K, v V) bool {
			return yield(v)
		})
	}
}

// Range calls yield for every entry until yield returns false.
func (m *Map[K, V]) Range(yield func(key K, value V) bool) {
	t := m.table
	if t == nil {
		return
	}
	t.all(func(e Entry[K, V]) bool {
		return yield(e.Key, e.Value)
	})
}

// ToMap returns a built-in map with a copy of the contents.
func (m *Map[K, V]) ToMap() map[K]V {
	result := make(map[K]V, m.Len())
	m.Range(func(k K, v V) bool {
		result[k] = v
		return true
	})
	return result
}

// ToMapWithLimit is ToMap capped at limit entries. limit < 0 means no
// cap.
func (m *Map[K, V]) ToMapWithLimit(limit int) map[K]V {
	if limit < 0 {
		return m.ToMap()
	}
	result := make(map[K]V, min(m.Len(), limit))
	m.Range(func(k K, v V) bool {
		if limit <= 0 {
			return false
		}
		result[k] = v
		limit--
		return true
	})
	return result
}

// FromMap inserts every entry of source, replacing existing values.
func (m *Map[K, V]) FromMap(source map[K]V) {
	if len(source) == 0 {
		m.gen++
		return
	}
	// Replacement cannot fail, the error path is unreachable.
	_ = m.mergeSeq(len(source), func(yield func(K, V) bool) {
		for k, v := range source {
			if !yield(k, v) {
				return
			}
		}
	}, nil)
}

// String implements fmt.Stringer.
func (m *Map[K, V]) String() string {
	const limit = 1024
	return strings.Replace(fmt.Sprint(m.ToMapWithLimit(limit)), "map[", "Map[", 1)
}

package cowmap

// Entry is one key/value pair stored in the map.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// chainNode is one link of a bucket's collision chain. Every node
// exclusively owns its successor, so a chain is an owned singly linked
// list. count caches the number of nodes from this node to the tail;
// it is refreshed bottom-up after every structural edit.
type chainNode[K comparable, V any] struct {
	entry Entry[K, V]
	next  *chainNode[K, V]
	count int
}

func newChainNode[K comparable, V any](key K, value V) *chainNode[K, V] {
	return &chainNode[K, V]{entry: Entry[K, V]{Key: key, Value: value}, count: 1}
}

// find returns the node holding key, or nil. Linear scan in chain
// order.
func (n *chainNode[K, V]) find(key K) *chainNode[K, V] {
	for c := n; c != nil; c = c.next {
		if c.entry.Key == key {
			return c
		}
	}
	return nil
}

// refreshCounts recomputes the suffix count of every node reachable
// from n, deepest node first, and returns n's count (0 for a nil
// chain).
func (n *chainNode[K, V]) refreshCounts() int {
	if n == nil {
		return 0
	}
	n.count = 1 + n.next.refreshCounts()
	return n.count
}

// append links node at the tail of the chain and refreshes the suffix
// counts on the path from n to the new tail. node must carry a correct
// count of its own (it may itself be a chain).
func (n *chainNode[K, V]) append(node *chainNode[K, V]) {
	tail := n
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = node
	n.refreshCounts()
}

// set replaces key's value when present, otherwise appends a new node
// at the tail. Returns the previous value and whether one existed.
func (n *chainNode[K, V]) set(key K, value V) (previous V, replaced bool) {
	if c := n.find(key); c != nil {
		previous = c.entry.Value
		c.entry.Value = value
		return previous, true
	}
	n.append(newChainNode(key, value))
	return previous, false
}

// setWith is set with a combine step for existing keys: the stored
// value becomes combine(existing, incoming). The combine result is
// buffered before it is committed, so a failing combine leaves the
// chain untouched and the error is returned verbatim.
func (n *chainNode[K, V]) setWith(
	key K,
	value V,
	combine func(existing, incoming V) (V, error),
) (replaced bool, err error) {
	c := n.find(key)
	if c == nil {
		n.append(newChainNode(key, value))
		return false, nil
	}
	merged, err := combine(c.entry.Value, value)
	if err != nil {
		return false, err
	}
	c.entry.Value = merged
	return true, nil
}

// remove detaches the node holding key and re-links the chain around
// it. It returns the new chain head (nil when the only node was
// removed), the removed value, and whether the key was found.
func (n *chainNode[K, V]) remove(key K) (head *chainNode[K, V], removed V, found bool) {
	if n.entry.Key == key {
		head = n.next
		n.next = nil
		return head, n.entry.Value, true
	}
	prev := n
	for c := n.next; c != nil; prev, c = c, c.next {
		if c.entry.Key == key {
			prev.next = c.next
			c.next = nil
			n.refreshCounts()
			return n, c.entry.Value, true
		}
	}
	return n, removed, false
}

// removeAt detaches the node at the given chain offset. The caller
// guarantees offset < n.count.
func (n *chainNode[K, V]) removeAt(offset int) (head *chainNode[K, V], e Entry[K, V]) {
	if offset == 0 {
		head = n.next
		n.next = nil
		return head, n.entry
	}
	prev := n
	for i := 1; i < offset; i++ {
		prev = prev.next
	}
	c := prev.next
	prev.next = c.next
	c.next = nil
	n.refreshCounts()
	return n, c.entry
}

// nodeAt walks offset steps from n and returns the node there, or nil
// when the chain is shorter.
func (n *chainNode[K, V]) nodeAt(offset int) *chainNode[K, V] {
	c := n
	for i := 0; i < offset && c != nil; i++ {
		c = c.next
	}
	return c
}

// clone deep-copies the whole chain. Suffix counts carry over
// unchanged since the structure is identical.
func (n *chainNode[K, V]) clone() *chainNode[K, V] {
	if n == nil {
		return nil
	}
	return &chainNode[K, V]{entry: n.entry, next: n.next.clone(), count: n.count}
}

// mapValues builds a fresh chain with every value passed through
// transform, preserving chain order. The receiver is never modified; a
// transform failure aborts construction and is returned verbatim.
func (n *chainNode[K, V]) mapValues(
	transform func(K, V) (V, error),
) (*chainNode[K, V], error) {
	var head, tail *chainNode[K, V]
	for c := n; c != nil; c = c.next {
		v, err := transform(c.entry.Key, c.entry.Value)
		if err != nil {
			return nil, err
		}
		node := newChainNode(c.entry.Key, v)
		if head == nil {
			head = node
		} else {
			tail.next = node
		}
		tail = node
	}
	head.refreshCounts()
	return head, nil
}

// compactMapValues is mapValues where transform may also drop the
// entry by returning keep == false. The result may be nil even for a
// non-empty receiver.
func (n *chainNode[K, V]) compactMapValues(
	transform func(K, V) (V, bool, error),
) (*chainNode[K, V], error) {
	var head, tail *chainNode[K, V]
	for c := n; c != nil; c = c.next {
		v, keep, err := transform(c.entry.Key, c.entry.Value)
		if err != nil {
			return nil, err
		}
		if !keep {
			continue
		}
		node := newChainNode(c.entry.Key, v)
		if head == nil {
			head = node
		} else {
			tail.next = node
		}
		tail = node
	}
	head.refreshCounts()
	return head, nil
}

// filter builds a fresh chain holding the entries predicate keeps.
func (n *chainNode[K, V]) filter(
	predicate func(K, V) (bool, error),
) (*chainNode[K, V], error) {
	return n.compactMapValues(func(k K, v V) (V, bool, error) {
		keep, err := predicate(k, v)
		return v, keep, err
	})
}

// all yields every entry in chain order. Each call starts a fresh
// traversal. Returns false when yield stopped early.
func (n *chainNode[K, V]) all(yield func(Entry[K, V]) bool) bool {
	for c := n; c != nil; c = c.next {
		if !yield(c.entry) {
			return false
		}
	}
	return true
}

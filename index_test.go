package cowmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// collidingMap buckets every key into one chain, making positions
// within a single bucket deterministic.
func collidingMap(keys ...string) *Map[string, int] {
	m := NewWithHasher[string, int](func(string, uintptr) uintptr {
		return 0
	})
	for i, k := range keys {
		m.Set(k, i)
	}
	return m
}

func TestPositionFirstEndEmpty(t *testing.T) {
	m := New[string, int]()
	require.True(t, m.IsEnd(m.First()))
	require.True(t, m.First().Equal(m.End()))

	m.Set("a", 1)
	require.False(t, m.IsEnd(m.First()))
}

func TestPositionWalkVisitsEverythingOnce(t *testing.T) {
	m := New[string, int]()
	for i, k := range testData[:32] {
		m.Set(k, i)
	}

	seen := map[string]int{}
	for p := m.First(); !m.IsEnd(p); p = m.Next(p) {
		k, v := m.At(p)
		_, dup := seen[k]
		require.False(t, dup, "key %q visited twice", k)
		seen[k] = v
	}
	require.Len(t, seen, 32)
	for i, k := range testData[:32] {
		require.Equal(t, i, seen[k])
	}
}

func TestPositionFirstUsesOccupiedCache(t *testing.T) {
	m := New[int, int]()
	m.Set(1, 1)
	m.Set(2, 2)
	p := m.First()
	require.Equal(t, m.table.firstOccupied, p.bucket)
	require.Equal(t, 0, p.offset)
}

func TestPositionFind(t *testing.T) {
	m := collidingMap("a", "b", "c")

	p, ok := m.Find("b")
	require.True(t, ok)
	k, v := m.At(p)
	require.Equal(t, "b", k)
	require.Equal(t, 1, v)

	_, ok = m.Find("missing")
	require.False(t, ok)
}

func TestPositionNextWithinChain(t *testing.T) {
	m := collidingMap("a", "b", "c")

	p, _ := m.Find("a")
	var keys []string
	for q := p; !m.IsEnd(q); q = m.Next(q) {
		k, _ := m.At(q)
		keys = append(keys, k)
	}
	// Chain order is insertion order: most recently appended last.
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestPositionOrderingTieBreak(t *testing.T) {
	m := collidingMap("head", "mid", "tail")

	pHead, _ := m.Find("head")
	pMid, _ := m.Find("mid")
	pTail, _ := m.Find("tail")

	// Deeper in the chain (fewer nodes remaining) sorts after.
	require.True(t, pHead.Before(pMid))
	require.True(t, pMid.Before(pTail))
	require.False(t, pTail.Before(pMid))
	require.False(t, pHead.Before(pHead))
	require.True(t, pHead.Equal(pHead))
	require.False(t, pHead.Equal(pTail))

	// End sorts after every resolvable position.
	require.True(t, pTail.Before(m.End()))
}

func TestPositionOrderingAcrossBuckets(t *testing.T) {
	m := New[int, int]()
	for i := 0; i < 16; i++ {
		m.Set(i, i)
	}
	var prev Position
	started := false
	for p := m.First(); !m.IsEnd(p); p = m.Next(p) {
		if started {
			require.True(t, prev.Before(p))
			require.False(t, p.Before(prev))
		}
		prev, started = p, true
	}
}

func TestPositionStaleAfterMutation(t *testing.T) {
	mutations := map[string]func(m *Map[string, int]){
		"set":        func(m *Map[string, int]) { m.Set("zzz", 1) },
		"update":     func(m *Map[string, int]) { m.Update("k", 2) },
		"delete":     func(m *Map[string, int]) { m.Delete("k") },
		"deleteNoop": func(m *Map[string, int]) { m.Delete("missing") },
		"clear":      func(m *Map[string, int]) { m.Clear(true) },
		"reserve":    func(m *Map[string, int]) { m.Reserve(1) },
		"merge":      func(m *Map[string, int]) { _ = m.Merge(nil, nil) },
		"fromMap":    func(m *Map[string, int]) { m.FromMap(nil) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			m := New[string, int]()
			m.Set("k", 1)
			p, ok := m.Find("k")
			require.True(t, ok)

			mutate(m)

			require.Panics(t, func() { m.At(p) })
			require.Panics(t, func() { m.Next(p) })
			require.Panics(t, func() { m.DeleteAt(p) })
			require.Panics(t, func() { m.IsEnd(p) })
		})
	}
}

func TestPositionCrossGenerationCompare(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	p1, _ := m.Find("a")

	m.Set("b", 2)
	p2, _ := m.Find("a")

	require.Panics(t, func() { p1.Before(p2) })
	require.Panics(t, func() { p1.Equal(p2) })
}

func TestPositionResolveUsageErrors(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)

	require.Panics(t, func() { m.At(m.End()) })
	require.Panics(t, func() { m.Next(m.End()) })

	// A hand-built out-of-range position with a matching generation.
	p := Position{bucket: m.Cap() - 1, offset: 99, gen: m.Generation()}
	require.Panics(t, func() { m.At(p) })
}

func TestDeleteAt(t *testing.T) {
	m := collidingMap("a", "b", "c")

	p, _ := m.Find("b")
	k, v := m.DeleteAt(p)
	require.Equal(t, "b", k)
	require.Equal(t, 1, v)
	require.Equal(t, 2, m.Len())
	require.False(t, m.Contains("b"))

	// The position died with the mutation.
	require.Panics(t, func() { m.At(p) })
}

func TestDeleteAtLastEntryReleasesTable(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)
	p, _ := m.Find("a")
	m.DeleteAt(p)
	require.True(t, m.IsEmpty())
	require.Equal(t, 0, m.Cap())
}

func TestDeleteAtOnSharedTable(t *testing.T) {
	a := collidingMap("a", "b", "c")
	b := a.Clone()

	p, _ := b.Find("c")
	b.DeleteAt(p)

	require.True(t, a.Contains("c"))
	require.False(t, b.Contains("c"))
}

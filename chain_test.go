package cowmap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// requireChainCounts verifies the suffix-count invariant: every node's
// count equals the number of nodes from it to the tail.
func requireChainCounts[K comparable, V any](t *testing.T, head *chainNode[K, V]) {
	t.Helper()
	remaining := 0
	for c := head; c != nil; c = c.next {
		remaining++
	}
	for c := head; c != nil; c = c.next {
		require.Equal(t, remaining, c.count)
		remaining--
	}
}

func chainKeys[K comparable, V any](head *chainNode[K, V]) []K {
	var keys []K
	head.all(func(e Entry[K, V]) bool {
		keys = append(keys, e.Key)
		return true
	})
	return keys
}

func buildChain(t *testing.T, keys ...string) *chainNode[string, int] {
	t.Helper()
	head := newChainNode(keys[0], 0)
	for i, k := range keys[1:] {
		_, replaced := head.set(k, i+1)
		require.False(t, replaced)
	}
	return head
}

func TestChainSetAppendsAtTail(t *testing.T) {
	head := buildChain(t, "a", "b", "c")
	require.Equal(t, []string{"a", "b", "c"}, chainKeys(head))
	requireChainCounts(t, head)

	prev, replaced := head.set("b", 42)
	require.True(t, replaced)
	require.Equal(t, 1, prev)
	require.Equal(t, []string{"a", "b", "c"}, chainKeys(head))
	requireChainCounts(t, head)
}

func TestChainFind(t *testing.T) {
	head := buildChain(t, "a", "b", "c")
	require.NotNil(t, head.find("c"))
	require.Nil(t, head.find("missing"))
}

func TestChainRemove(t *testing.T) {
	for _, victim := range []string{"a", "b", "c"} {
		t.Run(victim, func(t *testing.T) {
			head := buildChain(t, "a", "b", "c")
			newHead, _, found := head.remove(victim)
			require.True(t, found)
			require.Len(t, chainKeys(newHead), 2)
			require.NotContains(t, chainKeys(newHead), victim)
			requireChainCounts(t, newHead)
		})
	}

	head := buildChain(t, "a", "b", "c")
	newHead, _, found := head.remove("missing")
	require.False(t, found)
	require.Equal(t, head, newHead)
	requireChainCounts(t, newHead)
}

func TestChainRemoveLastCollapses(t *testing.T) {
	head := newChainNode("only", 1)
	newHead, removed, found := head.remove("only")
	require.True(t, found)
	require.Equal(t, 1, removed)
	require.Nil(t, newHead)
}

func TestChainRemoveAt(t *testing.T) {
	head := buildChain(t, "a", "b", "c")
	newHead, e := head.removeAt(1)
	require.Equal(t, "b", e.Key)
	require.Equal(t, []string{"a", "c"}, chainKeys(newHead))
	requireChainCounts(t, newHead)

	newHead, e = newHead.removeAt(0)
	require.Equal(t, "a", e.Key)
	require.Equal(t, []string{"c"}, chainKeys(newHead))
	requireChainCounts(t, newHead)
}

func TestChainCloneIsDeep(t *testing.T) {
	head := buildChain(t, "a", "b", "c")
	cp := head.clone()
	requireChainCounts(t, cp)

	cp.set("b", 99)
	cp.set("d", 100)
	orig := head.find("b")
	require.Equal(t, 1, orig.entry.Value)
	require.Nil(t, head.find("d"))
}

func TestChainSetWithBuffersCombine(t *testing.T) {
	head := buildChain(t, "a", "b")
	boom := errors.New("boom")

	replaced, err := head.setWith("a", 10, func(existing, incoming int) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, replaced)
	// The failing combine left the existing value in place.
	require.Equal(t, 0, head.find("a").entry.Value)

	replaced, err = head.setWith("a", 10, func(existing, incoming int) (int, error) {
		return existing + incoming, nil
	})
	require.NoError(t, err)
	require.True(t, replaced)
	require.Equal(t, 10, head.find("a").entry.Value)

	// Absent key appends without invoking combine.
	replaced, err = head.setWith("z", 7, func(int, int) (int, error) {
		return 0, boom
	})
	require.NoError(t, err)
	require.False(t, replaced)
	require.Equal(t, []string{"a", "b", "z"}, chainKeys(head))
	requireChainCounts(t, head)
}

func TestChainMapValues(t *testing.T) {
	head := buildChain(t, "a", "b", "c")

	mapped, err := head.mapValues(func(k string, v int) (int, error) {
		return v * 10, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, chainKeys(mapped))
	require.Equal(t, 10, mapped.find("b").entry.Value)
	requireChainCounts(t, mapped)
	// Source untouched.
	require.Equal(t, 1, head.find("b").entry.Value)

	boom := errors.New("boom")
	_, err = head.mapValues(func(k string, v int) (int, error) {
		if k == "b" {
			return 0, boom
		}
		return v, nil
	})
	require.ErrorIs(t, err, boom)
}

func TestChainCompactMapAndFilter(t *testing.T) {
	head := buildChain(t, "a", "b", "c", "d")

	compacted, err := head.compactMapValues(func(k string, v int) (int, bool, error) {
		return v, v%2 == 0, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, chainKeys(compacted))
	requireChainCounts(t, compacted)

	// Everything dropped collapses to a nil chain.
	empty, err := head.filter(func(string, int) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	require.Nil(t, empty)

	kept, err := head.filter(func(k string, _ int) (bool, error) {
		return k != "a", nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "c", "d"}, chainKeys(kept))
	requireChainCounts(t, kept)
}

func TestChainTraversalRestartable(t *testing.T) {
	head := buildChain(t, "a", "b")
	for i := 0; i < 2; i++ {
		require.Equal(t, []string{"a", "b"}, chainKeys(head),
			fmt.Sprintf("pass %d", i))
	}
}

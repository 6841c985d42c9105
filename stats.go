package cowmap

import (
	"fmt"
	"math"
	"strings"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is the CPU cache line size, automatically detected
// through the `golang.org/x/sys` package. Used by the struct layout
// diagnostics.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})

// MapStats is Map statistics.
//
// Warning: map statistics are intended for diagnostic purposes, not
// for production code. Breaking changes may be introduced into this
// struct even between minor releases.
type MapStats struct {
	// Capacity is the bucket count of the current table.
	Capacity int
	// Size is the number of entries stored in the map.
	Size int
	// UsedBuckets is the number of buckets holding at least one entry.
	UsedBuckets int
	// EmptyBuckets is the number of buckets holding no entries.
	EmptyBuckets int
	// FirstOccupied is the cached index of the first non-empty bucket,
	// == Capacity when the map is empty.
	FirstOccupied int
	// MinChainLen is the minimum collision chain length over used
	// buckets.
	MinChainLen int
	// MaxChainLen is the maximum collision chain length.
	MaxChainLen int
	// LoadFactor is Size divided by Capacity.
	LoadFactor float64
	// Generation is the handle's current generation token.
	Generation uint64
	// Shared reports whether the table is currently shared with
	// another handle.
	Shared bool
}

// Stats returns statistics for the Map. It is an O(N) operation, so it
// should be used only for diagnostics or debugging purposes.
func (m *Map[K, V]) Stats() *MapStats {
	stats := &MapStats{
		Generation:  m.gen,
		MinChainLen: math.MaxInt,
	}
	t := m.table
	if t == nil {
		stats.MinChainLen = 0
		return stats
	}
	stats.Capacity = t.capacity()
	stats.Size = t.count
	stats.FirstOccupied = t.firstOccupied
	stats.Shared = t.refs.Load() > 1
	stats.LoadFactor = float64(t.count) / float64(t.capacity())
	for _, head := range t.buckets {
		if head == nil {
			stats.EmptyBuckets++
			continue
		}
		stats.UsedBuckets++
		if head.count < stats.MinChainLen {
			stats.MinChainLen = head.count
		}
		if head.count > stats.MaxChainLen {
			stats.MaxChainLen = head.count
		}
	}
	if stats.UsedBuckets == 0 {
		stats.MinChainLen = 0
	}
	return stats
}

// ToString returns string representation of map stats.
func (s *MapStats) ToString() string {
	var sb strings.Builder
	sb.WriteString("MapStats{\n")
	sb.WriteString(fmt.Sprintf("Capacity:      %d\n", s.Capacity))
	sb.WriteString(fmt.Sprintf("Size:          %d\n", s.Size))
	sb.WriteString(fmt.Sprintf("UsedBuckets:   %d\n", s.UsedBuckets))
	sb.WriteString(fmt.Sprintf("EmptyBuckets:  %d\n", s.EmptyBuckets))
	sb.WriteString(fmt.Sprintf("FirstOccupied: %d\n", s.FirstOccupied))
	sb.WriteString(fmt.Sprintf("MinChainLen:   %d\n", s.MinChainLen))
	sb.WriteString(fmt.Sprintf("MaxChainLen:   %d\n", s.MaxChainLen))
	sb.WriteString(fmt.Sprintf("LoadFactor:    %.2f\n", s.LoadFactor))
	sb.WriteString(fmt.Sprintf("Generation:    %d\n", s.Generation))
	sb.WriteString(fmt.Sprintf("Shared:        %v\n", s.Shared))
	sb.WriteString("}\n")
	return sb.String()
}

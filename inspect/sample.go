package inspect

import "math"

// Sampling selects a deterministic subset of the tiles a Run pass visits.
// The zero value keeps every tile.
type Sampling struct {
	mode sampleMode
	k    uint64
	r    float64
}

type sampleMode int

const (
	sampleNone sampleMode = iota
	sampleCount
	sampleRatio
)

// Count keeps tiles whose streaming ordinal is <= k (spec.md §4.7).
func Count(k uint64) Sampling { return Sampling{mode: sampleCount, k: k} }

// Ratio keeps a tile if splitmix64(index XOR total) <= r * math.MaxUint64,
// for r in (0,1].
func Ratio(r float64) Sampling { return Sampling{mode: sampleRatio, r: r} }

// Keep reports whether the tile at the given 1-based ordinal (out of
// total tiles seen in this pass) survives sampling.
func (s Sampling) Keep(ordinal, total uint64) bool {
	switch s.mode {
	case sampleCount:
		return ordinal <= s.k
	case sampleRatio:
		if s.r >= 1.0 {
			return true
		}
		if s.r <= 0 {
			return false
		}
		h := splitmix64(ordinal ^ total)
		return h <= uint64(s.r*float64(math.MaxUint64))
	default:
		return true
	}
}

// Active reports whether this Sampling actually restricts the tile set.
func (s Sampling) Active() bool { return s.mode != sampleNone }

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

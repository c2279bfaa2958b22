package prune

import "github.com/nullisland/tilekit/mvt"

// Stats is the merged result of a prune/optimize run: the mutation
// pipeline's per-zoom/per-layer counters (spec.md §4.6) plus the driver's
// own bookkeeping of what made it to the destination archive. Each CPU
// worker keeps its own Stats and merges it into the run's single Stats,
// under a mutex, when the worker exits (spec.md §5).
type Stats struct {
	Mutation     mvt.MutationStats
	TilesRead    uint64
	TilesWritten uint64
	TilesDropped uint64 // empty after mutation and suppressed by DropEmptyTiles
}

// NewStats returns a zero-valued, ready-to-merge-into Stats.
func NewStats() *Stats {
	return &Stats{Mutation: *mvt.NewMutationStats()}
}

// Merge folds other into s. Commutative and associative (spec.md §5a), so
// the order in which workers merge does not change the result. Merge does
// no locking of its own.
func (s *Stats) Merge(other *Stats) {
	if other == nil {
		return
	}
	s.Mutation.Merge(&other.Mutation)
	s.TilesRead += other.TilesRead
	s.TilesWritten += other.TilesWritten
	s.TilesDropped += other.TilesDropped
}

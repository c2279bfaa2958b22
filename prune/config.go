// Package prune implements the concurrent prune/optimize driver of
// spec.md §4.8/§4.9: a reader pool and a CPU pool coordinated around an
// MBTiles or PMTiles source, feeding a single sink that assembles the
// destination archive. Grounded on the teacher's extract.go (errgroup-based
// worker pools over bounded ranges) and stats.go (worker/ordered-collector
// split), generalized from "copy/re-encode tile bytes" to "decode, prune,
// re-encode via the mvt package".
package prune

import (
	"fmt"

	"github.com/nullisland/tilekit/errs"
)

// Config configures one prune/optimize run (spec.md §4.8).
type Config struct {
	// Threads is the size of the CPU pool (decode/mutate/encode workers).
	Threads int
	// Readers is the size of the reader pool (independent source handles).
	Readers int
	// IOBatch is how many tiles the sink groups per destination transaction.
	IOBatch int
	// DropEmptyTiles suppresses tiles whose mutation left zero layers.
	DropEmptyTiles bool
	// ApplyFilters turns on per-feature filter evaluation; false means
	// layer-only pruning (spec.md §4.6 step 3 never runs the evaluator).
	ApplyFilters bool
	// KeepUnknownFilters is the unknown-filter policy (spec.md §4.5 step 4):
	// true keeps features whose decision was Unknown, false drops them.
	KeepUnknownFilters bool
	// ToleranceSquared drives geometry simplification; 0 disables it.
	ToleranceSquared float64
	// ReadCacheMB/WriteCacheMB hint at the MBTiles page cache size via
	// PRAGMA cache_size on each reader/writer connection the MBTiles
	// driver opens; they change no semantics, only memory/IO tradeoffs
	// (spec.md §5's resource-bounds note). Unused by the PMTiles driver,
	// which has no underlying relational engine to hint.
	ReadCacheMB  int
	WriteCacheMB int
}

func (c Config) normalized() Config {
	out := c
	if out.Threads <= 0 {
		out.Threads = 1
	}
	if out.Readers <= 0 {
		out.Readers = 1
	}
	if out.IOBatch <= 0 {
		out.IOBatch = 1000
	}
	return out
}

func (c Config) validate() error {
	if c.Threads < 0 || c.Readers < 0 || c.IOBatch < 0 {
		return errs.New(errs.IO, fmt.Errorf("prune config: Threads/Readers/IOBatch must be non-negative"))
	}
	return nil
}

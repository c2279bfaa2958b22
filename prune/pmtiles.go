package prune

import (
	"context"
	"log"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nullisland/tilekit/errs"
	"github.com/nullisland/tilekit/mvt"
	"github.com/nullisland/tilekit/pmtiles"
	"github.com/nullisland/tilekit/style"
)

// pmtilesJob is one addressed tile queued for the CPU pool, expanded out of
// a directory entry's run-length so each tile can be pruned against its own
// actual zoom (spec.md §4.9: a run's shared bytes don't imply a shared
// mutation outcome once zoom-dependent style rules are involved).
type pmtilesJob struct {
	index  int
	tileID uint64
	z      uint8
	x, y   uint32
}

type pmtilesResult struct {
	index  int
	tileID uint64
	data   []byte
}

// PrunePMTiles runs the PMTiles prune/optimize driver of spec.md §4.9: a
// single reader walks the source directory once to build the ordered
// addressed-tile list, a CPU pool decodes and mvt.Prunes each tile
// concurrently, and a single assembler goroutine drains results in strict
// tile-ID order (an ordered, indexed buffer exactly like the teacher's
// stats.go collector) since Resolver.AddTileIsNew requires a strictly
// increasing key sequence. Output is written the same way
// ConvertMbtilesToPmtiles does: mutated bytes spooled to a scratch file,
// then handed to Finalize for the atomic temp-file/rename commit.
func PrunePMTiles(ctx context.Context, logger *log.Logger, cfg Config, st *style.Style, input, output string) (*Stats, error) {
	cfg = cfg.normalized()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := pmtiles.CheckOutputExtension(output); err != nil {
		return nil, err
	}

	archive, err := pmtiles.OpenArchive(input)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	metadata, err := archive.Metadata()
	if err != nil {
		return nil, err
	}

	entries, err := archive.AllEntries()
	if err != nil {
		return nil, err
	}

	jobs := make([]pmtilesJob, 0, archive.Header.AddressedTilesCount)
	for _, e := range entries {
		for i := uint32(0); i < e.RunLength; i++ {
			id := e.TileID + uint64(i)
			z, x, y := pmtiles.IDToZxy(id)
			jobs = append(jobs, pmtilesJob{index: len(jobs), tileID: id, z: z, x: x, y: y})
		}
	}
	logger.Printf("pruning %d tiles (%d workers)\n", len(jobs), cfg.Threads)

	tmpfile, err := os.CreateTemp("", "tilekit-prune-*")
	if err != nil {
		return nil, errs.New(errs.IO, err)
	}
	defer os.Remove(tmpfile.Name())
	defer tmpfile.Close()

	resolver := pmtiles.NewResolver(true)
	merged := NewStats()
	var mergeMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	jobCh := make(chan pmtilesJob, cfg.IOBatch)
	resultCh := make(chan pmtilesResult, cfg.IOBatch)

	g.Go(func() error {
		defer close(jobCh)
		for _, j := range jobs {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case jobCh <- j:
			}
		}
		return nil
	})

	workers := cfg.Threads
	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			defer func() { done <- struct{}{} }()
			local := NewStats()
			defer func() {
				mergeMu.Lock()
				merged.Merge(local)
				mergeMu.Unlock()
			}()

			for j := range jobCh {
				raw, ok, err := archive.GetTile(j.z, j.x, j.y)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				decoded, err := pmtiles.DecodeTilePayload(raw, archive.Header.TileCompression)
				if err != nil {
					return err
				}
				local.TilesRead++

				opts := mvt.PruneOptions{
					Zoom:               j.z,
					Style:              st,
					ApplyFilters:       cfg.ApplyFilters,
					KeepUnknownFilters: cfg.KeepUnknownFilters,
					ToleranceSquared:   cfg.ToleranceSquared,
				}
				mutated, empty, err := mvt.Prune(decoded, opts, &local.Mutation)
				if err != nil {
					return err
				}
				dropped := empty && cfg.DropEmptyTiles
				if dropped {
					local.TilesDropped++
				}
				// Preserve the source archive's declared tile_compression
				// (spec.md §4.2) rather than letting the resolver force its
				// own: encode now, before the bytes ever reach the resolver.
				// A tile pruned down to nothing is stored as a literal
				// zero-length entry, never run through the compressor. A
				// dropped tile is still sent, with nil data, so the
				// assembler's index sequence has no gap.
				encoded := []byte{}
				if dropped {
					encoded = nil
				} else if !empty {
					encoded, err = pmtiles.EncodeTilePayload(mutated, archive.Header.TileCompression)
					if err != nil {
						return err
					}
				}

				select {
				case <-gctx.Done():
					return gctx.Err()
				case resultCh <- pmtilesResult{index: j.index, tileID: j.tileID, data: encoded}:
				}
			}
			return nil
		})
	}
	go func() {
		for i := 0; i < workers; i++ {
			<-done
		}
		close(resultCh)
	}()

	g.Go(func() error {
		pending := make(map[int]pmtilesResult)
		next := 0
		flush := func(r pmtilesResult) error {
			if r.data == nil {
				return nil // dropped tile
			}
			isNew, newData, err := resolver.AddTileIsNew(r.tileID, r.data, 1)
			if err != nil {
				return err
			}
			if isNew {
				if _, err := tmpfile.Write(newData); err != nil {
					return errs.New(errs.IO, err)
				}
			}
			merged.TilesWritten++
			return nil
		}
		for r := range resultCh {
			pending[r.index] = r
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				if err := flush(r); err != nil {
					return err
				}
				delete(pending, next)
				next++
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if _, err := tmpfile.Seek(0, 0); err != nil {
		return nil, errs.New(errs.IO, err)
	}

	header := archive.Header
	header.Clustered = true
	spec := pmtiles.WriteSpec{Header: header, Metadata: metadata}
	if _, err := pmtiles.Finalize(logger, resolver, spec, tmpfile, output); err != nil {
		return nil, err
	}

	return merged, nil
}

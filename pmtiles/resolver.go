package pmtiles

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// offsetLen records where a unique tile's bytes already live in the data
// section being assembled.
type offsetLen struct {
	Offset uint64
	Length uint32
}

// Resolver deduplicates tile content by hash and run-length-encodes
// contiguous identical tiles, exactly as the teacher's convert/cluster
// pipeline does, but keyed on xxhash instead of fnv128a (the teacher's own
// content-hash primitive of choice elsewhere in the codebase).
//
// AddTileIsNew must be called with strictly increasing, unique tile IDs.
// The resolver never transcodes the bytes it's handed: callers must already
// have run them through EncodeTilePayload for the archive's declared
// TileCompression before calling AddTileIsNew, so the header's declared
// compression always matches what's actually in the data section.
type Resolver struct {
	Entries        []EntryV3
	Offset         uint64
	AddressedTiles uint64

	offsetMap   map[uint64]offsetLen
	deduplicate bool
}

// NewResolver builds a Resolver. When deduplicate is false every tile is
// treated as unique content: there is no hash lookup and no run-length
// merging of identical consecutive tiles.
func NewResolver(deduplicate bool) *Resolver {
	return &Resolver{
		Entries:     make([]EntryV3, 0),
		offsetMap:   make(map[uint64]offsetLen),
		deduplicate: deduplicate,
	}
}

// AddTileIsNew records tileID -> data. It returns whether new bytes must be
// appended to the data section (true) along with those bytes, or whether
// the tile was resolved as a duplicate/run-length extension (false, nil).
// data must already be encoded (compressed, if at all) the way it will be
// stored on disk; the resolver only hashes and offsets it.
func (r *Resolver) AddTileIsNew(tileID uint64, data []byte, runLength uint32) (bool, []byte, error) {
	r.AddressedTiles += uint64(runLength)

	if r.deduplicate {
		sum := xxhash.Sum64(data)
		if found, ok := r.offsetMap[sum]; ok {
			last := r.Entries[len(r.Entries)-1]
			if tileID == last.TileID+uint64(last.RunLength) && last.Offset == found.Offset && last.Length == found.Length {
				if uint64(last.RunLength)+uint64(runLength) > math.MaxUint32 {
					panic("maximum 32-bit run length exceeded")
				}
				r.Entries[len(r.Entries)-1].RunLength += runLength
			} else {
				r.Entries = append(r.Entries, EntryV3{TileID: tileID, Offset: found.Offset, Length: found.Length, RunLength: runLength})
			}
			return false, nil, nil
		}
	}

	entry := EntryV3{TileID: tileID, Offset: r.Offset, Length: uint32(len(data)), RunLength: runLength}
	r.Entries = append(r.Entries, entry)
	if r.deduplicate {
		r.offsetMap[xxhash.Sum64(data)] = offsetLen{r.Offset, uint32(len(data))}
	}
	r.Offset += uint64(len(data))
	return true, data, nil
}

// TileContentsCount is the number of unique tile byte-strings written.
func (r *Resolver) TileContentsCount() uint64 {
	if r.deduplicate {
		return uint64(len(r.offsetMap))
	}
	count := uint64(0)
	for _, e := range r.Entries {
		if e.RunLength > 0 {
			count++
		}
	}
	return count
}

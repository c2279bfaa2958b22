package pmtiles

import (
	"fmt"
	"math"
	"os"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/nullisland/tilekit/errs"
)

// Validate checks that an archive's header statistics agree with its
// directory contents (SPEC_FULL.md §D.1, grounded on the teacher's
// verify.go): file length, addressed-tile/entry/content counts, zoom
// range, and — for clustered archives — non-decreasing tile-data offsets
// in tile-ID order.
func Validate(path string) error {
	a, err := OpenArchive(path)
	if err != nil {
		return err
	}
	defer a.Close()

	fi, err := os.Stat(path)
	if err != nil {
		return errs.New(errs.IO, err)
	}

	expectedLen := int64(HeaderV3LenBytes) + int64(a.Header.RootLength) + int64(a.Header.MetadataLength) +
		int64(a.Header.LeafDirectoryLength) + int64(a.Header.TileDataLength)
	if fi.Size() != expectedLen {
		return errs.New(errs.MalformedHeader, fmt.Errorf("archive length %d does not match header-derived length %d", fi.Size(), expectedLen))
	}

	entries, err := a.AllEntries()
	if err != nil {
		return err
	}

	minTileID := uint64(math.MaxUint64)
	var maxTileID uint64
	addressedTiles := uint64(0)
	offsets := roaring64.New()
	var currentOffset uint64

	for _, e := range entries {
		alreadySeen := offsets.Contains(e.Offset)
		offsets.Add(e.Offset)
		addressedTiles += uint64(e.RunLength)

		if e.TileID < minTileID {
			minTileID = e.TileID
		}
		if e.TileID > maxTileID {
			maxTileID = e.TileID
		}

		if e.Offset+uint64(e.Length) > a.Header.TileDataLength {
			return errs.New(errs.MalformedDirectory, fmt.Errorf("entry %+v lies outside the tile data section", e))
		}

		if a.Header.Clustered {
			// An offset seen before is a dedup pointing back at existing
			// content and doesn't advance the cursor. A new offset must
			// sit exactly where the cursor expects the next tile's bytes;
			// anything else is a gap or an out-of-order entry.
			if !alreadySeen {
				if e.Offset != currentOffset {
					return errs.New(errs.MalformedDirectory, fmt.Errorf("out-of-order entry %+v in clustered archive", e))
				}
				currentOffset += uint64(e.Length)
			}
		}
	}

	if addressedTiles != a.Header.AddressedTilesCount {
		return errs.New(errs.MalformedHeader, fmt.Errorf("header addressed tiles count=%d but %d tiles addressed", a.Header.AddressedTilesCount, addressedTiles))
	}
	if uint64(len(entries)) != a.Header.TileEntriesCount {
		return errs.New(errs.MalformedHeader, fmt.Errorf("header tile entries count=%d but %d tile entries", a.Header.TileEntriesCount, len(entries)))
	}
	if offsets.GetCardinality() != a.Header.TileContentsCount {
		return errs.New(errs.MalformedHeader, fmt.Errorf("header tile contents count=%d but %d tile contents", a.Header.TileContentsCount, offsets.GetCardinality()))
	}

	if len(entries) > 0 {
		if z, _, _ := IDToZxy(minTileID); z != a.Header.MinZoom {
			return errs.New(errs.MalformedHeader, fmt.Errorf("header MinZoom=%d does not match min tile zoom %d", a.Header.MinZoom, z))
		}
		if z, _, _ := IDToZxy(maxTileID); z != a.Header.MaxZoom {
			return errs.New(errs.MalformedHeader, fmt.Errorf("header MaxZoom=%d does not match max tile zoom %d", a.Header.MaxZoom, z))
		}
	}

	if !(a.Header.CenterZoom >= a.Header.MinZoom && a.Header.CenterZoom <= a.Header.MaxZoom) {
		return errs.New(errs.MalformedHeader, fmt.Errorf("header CenterZoom=%d not within [MinZoom=%d, MaxZoom=%d]", a.Header.CenterZoom, a.Header.MinZoom, a.Header.MaxZoom))
	}

	if a.Header.MinLonE7 >= a.Header.MaxLonE7 || a.Header.MinLatE7 >= a.Header.MaxLatE7 {
		return errs.New(errs.MalformedHeader, fmt.Errorf("bounds has non-positive area"))
	}

	return nil
}

package inspect

import (
	"github.com/nullisland/tilekit/mbtiles"
	"github.com/nullisland/tilekit/pmtiles"
)

// TileRecord is what one streaming pass sees for a single addressed tile.
// Data is populated only when a pass asks for it (layer summaries, single
// -tile lookups); count/histogram passes run with it nil.
type TileRecord struct {
	Z       uint8
	X, Y    uint32
	Length  uint64
	Data    []byte
}

// TileSource lets the aggregator run its multi-pass phases (spec.md §4.7)
// over either container through a unified cursor (spec.md §4.3), re-
// iterating for each phase that needs a fresh pass.
type TileSource interface {
	ForEachTile(withData bool, f func(TileRecord) error) error
	TotalTiles() (uint64, error)
	// GetTile does the direct, non-streaming lookup phase 7's single-tile
	// summary needs; ok is false if no tile exists at (z, x, y).
	GetTile(z uint8, x, y uint32) (data []byte, ok bool, err error)
}

type pmtilesSource struct {
	archive *pmtiles.Archive
}

// FromPMTiles adapts an open PMTiles archive into a TileSource. Each
// directory run is expanded into its run_length addressed tiles, all
// sharing that entry's byte length.
func FromPMTiles(archive *pmtiles.Archive) TileSource {
	return &pmtilesSource{archive: archive}
}

func (s *pmtilesSource) TotalTiles() (uint64, error) {
	return s.archive.Header.AddressedTilesCount, nil
}

// GetTile returns the decompressed (raw MVT) bytes for (z, x, y), per the
// tile-payload codec bridge (spec.md §4.4): decode passes never see the
// source tile_compression byte, only decoded payloads.
func (s *pmtilesSource) GetTile(z uint8, x, y uint32) ([]byte, bool, error) {
	raw, ok, err := s.archive.GetTile(z, x, y)
	if err != nil || !ok {
		return nil, ok, err
	}
	decoded, err := pmtiles.DecodeTilePayload(raw, s.archive.Header.TileCompression)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

func (s *pmtilesSource) ForEachTile(withData bool, f func(TileRecord) error) error {
	entries, err := s.archive.AllEntries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		for i := uint32(0); i < e.RunLength; i++ {
			tileID := e.TileID + uint64(i)
			z, x, y := pmtiles.IDToZxy(tileID)
			rec := TileRecord{Z: z, X: x, Y: y, Length: uint64(e.Length)}
			if withData {
				data, ok, err := s.GetTile(z, x, y)
				if err != nil {
					return err
				}
				if ok {
					rec.Data = data
				}
			}
			if err := f(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

type mbtilesSource struct {
	reader *mbtiles.Reader
}

// FromMBTiles adapts an open MBTiles reader into a TileSource. The driver
// behind Reader.GetTile has no length-only query, so every tile's blob is
// fetched even when withData is false; only Data is left nil in that case.
func FromMBTiles(reader *mbtiles.Reader) TileSource {
	return &mbtilesSource{reader: reader}
}

func (s *mbtilesSource) TotalTiles() (uint64, error) {
	n, err := s.reader.TileCount()
	return uint64(n), err
}

// GetTile returns the decompressed (raw MVT) bytes for (z, x, y). MBTiles
// has no declared per-tile compression field, so the gzip-magic bridge
// (spec.md §4.4) does all the work: gzip-stored tiles are unwrapped,
// anything else passes through unchanged.
func (s *mbtilesSource) GetTile(z uint8, x, y uint32) ([]byte, bool, error) {
	raw, ok, err := s.reader.GetTile(z, x, y)
	if err != nil || !ok {
		return nil, ok, err
	}
	decoded, err := pmtiles.DecodeTilePayload(raw, pmtiles.NoCompression)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

func (s *mbtilesSource) ForEachTile(withData bool, f func(TileRecord) error) error {
	return s.reader.EachCoordinate(func(z uint8, x, y uint32) error {
		raw, ok, err := s.reader.GetTile(z, x, y)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		rec := TileRecord{Z: z, X: x, Y: y, Length: uint64(len(raw))}
		if withData {
			decoded, err := pmtiles.DecodeTilePayload(raw, pmtiles.NoCompression)
			if err != nil {
				return err
			}
			rec.Data = decoded
		}
		return f(rec)
	})
}

package prune

import (
	"bytes"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/nullisland/tilekit/errs"
	"github.com/nullisland/tilekit/mbtiles"
	"github.com/nullisland/tilekit/mvt"
	"github.com/nullisland/tilekit/pmtiles"
)

// SimplifyTile is the "simplify one tile" operation of spec.md §2: open the
// source, locate the single tile by id, apply geometry simplification, and
// emit a minimal single-tile destination archive. Source and destination
// formats are each resolved independently from their file extensions, so a
// PMTiles archive can be simplified down to a single-tile MBTiles file and
// vice versa.
func SimplifyTile(logger *log.Logger, input, output string, z uint8, x, y uint32, toleranceSquared float64) error {
	raw, declaredCompression, tileType, err := readOneTile(input, z, x, y)
	if err != nil {
		return err
	}
	if raw == nil {
		return errs.New(errs.TileNotFound, fmt.Errorf("no tile at z=%d x=%d y=%d in %s", z, x, y, input))
	}

	decoded, err := pmtiles.DecodeTilePayload(raw, declaredCompression)
	if err != nil {
		return err
	}

	simplified, _, err := mvt.Simplify(decoded, toleranceSquared)
	if err != nil {
		return err
	}

	return writeOneTile(logger, output, z, x, y, simplified, tileType, declaredCompression)
}

func readOneTile(input string, z uint8, x, y uint32) ([]byte, pmtiles.Compression, pmtiles.TileType, error) {
	switch strings.ToLower(filepath.Ext(input)) {
	case ".mbtiles":
		reader, err := mbtiles.OpenReader(input, 0)
		if err != nil {
			return nil, pmtiles.NoCompression, pmtiles.Mvt, err
		}
		defer reader.Close()
		data, ok, err := reader.GetTile(z, x, y)
		if err != nil || !ok {
			return nil, pmtiles.NoCompression, pmtiles.Mvt, err
		}
		return data, pmtiles.NoCompression, pmtiles.Mvt, nil
	case ".pmtiles":
		archive, err := pmtiles.OpenArchive(input)
		if err != nil {
			return nil, pmtiles.NoCompression, pmtiles.Mvt, err
		}
		defer archive.Close()
		data, ok, err := archive.GetTile(z, x, y)
		if err != nil || !ok {
			return nil, pmtiles.NoCompression, archive.Header.TileType, err
		}
		return data, archive.Header.TileCompression, archive.Header.TileType, nil
	default:
		return nil, pmtiles.NoCompression, pmtiles.Mvt, errs.New(errs.UnsupportedConversion, fmt.Errorf("unrecognized source archive extension for %q", input))
	}
}

// writeOneTile emits a minimal destination archive holding exactly one
// tile, in the format output's extension declares. The PMTiles case reuses
// Resolver/Finalize with a single entry rather than hand-rolling a
// one-tile writer, keeping this on the same atomic-write path as every
// other PMTiles output (SPEC_FULL.md §D.2).
func writeOneTile(logger *log.Logger, output string, z uint8, x, y uint32, data []byte, tileType pmtiles.TileType, compression pmtiles.Compression) error {
	switch strings.ToLower(filepath.Ext(output)) {
	case ".mbtiles":
		writer, err := mbtiles.CreateWriter(output, 1, 0)
		if err != nil {
			return err
		}
		if err := writer.PutTile(z, x, y, data); err != nil {
			writer.Abort()
			return err
		}
		return writer.Close()
	case ".pmtiles":
		header := pmtiles.HeaderV3{
			TileType:        tileType,
			TileCompression: compression,
			MinZoom:         z,
			MaxZoom:         z,
			Clustered:       true,
		}

		encoded, err := pmtiles.EncodeTilePayload(data, header.TileCompression)
		if err != nil {
			return err
		}

		resolver := pmtiles.NewResolver(false)
		tileID := pmtiles.ZxyToID(z, x, y)
		_, newData, err := resolver.AddTileIsNew(tileID, encoded, 1)
		if err != nil {
			return err
		}
		spec := pmtiles.WriteSpec{Header: header, Metadata: map[string]interface{}{}}
		_, err = pmtiles.Finalize(logger, resolver, spec, bytes.NewReader(newData), output)
		return err
	default:
		return errs.New(errs.UnsupportedConversion, fmt.Errorf("unrecognized destination archive extension for %q", output))
	}
}

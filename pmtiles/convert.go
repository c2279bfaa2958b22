package pmtiles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/nullisland/tilekit/errs"
	"github.com/nullisland/tilekit/mbtiles"
)

// ConvertMbtilesToPmtiles reads an MBTiles archive end to end and writes an
// equivalent clustered, deduplicated PMTiles v3 archive. Grounded on the
// teacher's ConvertMbtiles (pmtiles/convert.go): two passes over the
// source — once to collect the full tile-ID set so entries can be written
// in strictly increasing order, once to stream tile bytes through a
// Resolver — but reading through the mbtiles package's cgo-free driver
// instead of inline SQL, and writing atomically via Finalize.
func ConvertMbtilesToPmtiles(logger *log.Logger, input, output string) error {
	if err := CheckOutputExtension(output); err != nil {
		return err
	}

	reader, err := mbtiles.OpenReader(input, 0)
	if err != nil {
		return err
	}
	defer reader.Close()

	rawMetadata, err := reader.Metadata()
	if err != nil {
		return err
	}

	header, jsonMetadata, err := mbtilesToHeaderJSON(rawMetadata)
	if err != nil {
		return err
	}

	logger.Println("assembling tile ID set")
	tileIDs := make([]uint64, 0)
	if err := reader.EachCoordinate(func(z uint8, x, y uint32) error {
		tileIDs = append(tileIDs, ZxyToID(z, x, y))
		return nil
	}); err != nil {
		return err
	}
	sort.Slice(tileIDs, func(i, j int) bool { return tileIDs[i] < tileIDs[j] })

	// MBTiles has no standard field declaring how tile_data is compressed;
	// the gzip-magic bytes of the actual data are the only reliable signal
	// (spec.md §4.2/§4.4), so the first non-empty tile is sniffed for it.
	header.TileCompression = NoCompression
	for _, id := range tileIDs {
		z, x, y := IDToZxy(id)
		data, ok, err := reader.GetTile(z, x, y)
		if err != nil {
			return err
		}
		if !ok || len(data) == 0 {
			continue
		}
		if bytes.Equal(data[:min(2, len(data))], gzipMagic) {
			header.TileCompression = Gzip
		}
		break
	}

	tmpfile, err := os.CreateTemp("", "tilekit-convert-*")
	if err != nil {
		return errs.New(errs.IO, err)
	}
	defer os.Remove(tmpfile.Name())
	defer tmpfile.Close()

	resolver := NewResolver(true)

	logger.Println("writing tiles")
	for _, id := range tileIDs {
		z, x, y := IDToZxy(id)
		data, ok, err := reader.GetTile(z, x, y)
		if err != nil {
			return err
		}
		if !ok || len(data) == 0 {
			continue
		}
		isNew, newData, err := resolver.AddTileIsNew(id, data, 1)
		if err != nil {
			return err
		}
		if isNew {
			if _, err := tmpfile.Write(newData); err != nil {
				return errs.New(errs.IO, err)
			}
		}
	}

	if _, err := tmpfile.Seek(0, 0); err != nil {
		return errs.New(errs.IO, err)
	}

	header.Clustered = true
	spec := WriteSpec{Header: header, Metadata: jsonMetadata}
	if _, err := Finalize(logger, resolver, spec, tmpfile, output); err != nil {
		return err
	}

	return nil
}

func mbtilesToHeaderJSON(raw map[string]string) (HeaderV3, map[string]interface{}, error) {
	header := HeaderV3{}
	jsonResult := make(map[string]interface{})

	for key, value := range raw {
		switch key {
		case "format":
			switch value {
			case "pbf":
				header.TileType = Mvt
			case "png":
				header.TileType = Png
			case "jpg":
				header.TileType = Jpeg
			case "webp":
				header.TileType = Webp
			}
			jsonResult["format"] = value
		case "bounds":
			minLon, minLat, maxLon, maxLat, err := parseBounds(value)
			if err != nil {
				return header, jsonResult, err
			}
			header.MinLonE7, header.MinLatE7, header.MaxLonE7, header.MaxLatE7 = minLon, minLat, maxLon, maxLat
		case "center":
			lon, lat, zoom, err := parseCenter(value)
			if err != nil {
				return header, jsonResult, err
			}
			header.CenterLonE7, header.CenterLatE7, header.CenterZoom = lon, lat, zoom
		case "minzoom":
			z, err := strconv.ParseInt(value, 10, 8)
			if err != nil {
				return header, jsonResult, errs.New(errs.MalformedHeader, err)
			}
			header.MinZoom = uint8(z)
		case "maxzoom":
			z, err := strconv.ParseInt(value, 10, 8)
			if err != nil {
				return header, jsonResult, errs.New(errs.MalformedHeader, err)
			}
			header.MaxZoom = uint8(z)
		case "json":
			var nested map[string]interface{}
			if err := json.Unmarshal([]byte(value), &nested); err == nil {
				for k, v := range nested {
					jsonResult[k] = v
				}
			}
		case "compression":
			// Not a real MBTiles metadata field (almost always absent); kept
			// in the JSON metadata passthrough but never used to decide
			// header.TileCompression, which is derived by sniffing actual
			// tile bytes instead (see ConvertMbtilesToPmtiles).
			jsonResult["compression"] = value
		default:
			jsonResult[key] = value
		}
	}

	return header, jsonResult, nil
}

func parseBounds(bounds string) (int32, int32, int32, int32, error) {
	parts := strings.Split(bounds, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, errs.New(errs.MalformedHeader, fmt.Errorf("bounds %q does not have 4 components", bounds))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, 0, 0, 0, errs.New(errs.MalformedHeader, err)
		}
		vals[i] = v
	}
	const e7 = 10000000.0
	return int32(vals[0] * e7), int32(vals[1] * e7), int32(vals[2] * e7), int32(vals[3] * e7), nil
}

func parseCenter(center string) (int32, int32, uint8, error) {
	parts := strings.Split(center, ",")
	if len(parts) != 3 {
		return 0, 0, 0, errs.New(errs.MalformedHeader, fmt.Errorf("center %q does not have 3 components", center))
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, 0, errs.New(errs.MalformedHeader, err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, 0, errs.New(errs.MalformedHeader, err)
	}
	zoom, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 8)
	if err != nil {
		return 0, 0, 0, errs.New(errs.MalformedHeader, err)
	}
	const e7 = 10000000.0
	return int32(lon * e7), int32(lat * e7), uint8(zoom), nil
}

// ConvertPmtilesToMbtiles reads a PMTiles v3 archive and writes an
// equivalent MBTiles file, flipping Y back to TMS addressing and
// reconstituting the metadata(name, value) rows from the JSON metadata
// section (the inverse of ConvertMbtilesToPmtiles).
func ConvertPmtilesToMbtiles(logger *log.Logger, input, output string) (err error) {
	if err := mbtiles.CheckOutputExtension(output); err != nil {
		return err
	}

	archive, err := OpenArchive(input)
	if err != nil {
		return err
	}
	defer archive.Close()

	metadata, err := archive.Metadata()
	if err != nil {
		return err
	}

	writer, err := mbtiles.CreateWriter(output, 1000, 0)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			writer.Abort()
			return
		}
		err = writer.Close()
	}()

	if err := writeMbtilesMetadata(writer, archive.Header, metadata); err != nil {
		return err
	}

	entries, err := archive.AllEntries()
	if err != nil {
		return err
	}

	logger.Println("writing tiles")
	for _, e := range entries {
		for i := uint32(0); i < e.RunLength; i++ {
			z, x, y := IDToZxy(e.TileID + uint64(i))
			data, ok, err := archive.GetTile(z, x, y)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := writer.PutTile(z, x, y, data); err != nil {
				return errs.New(errs.IO, err)
			}
		}
	}

	return nil
}

func writeMbtilesMetadata(writer *mbtiles.Writer, header HeaderV3, metadata map[string]interface{}) error {
	set := func(name, value string) error { return writer.SetMetadata(name, value) }

	formatName := tileTypeToString(header.TileType)
	if formatName == "mvt" {
		formatName = "pbf"
	}
	if err := set("format", formatName); err != nil {
		return err
	}
	if err := set("bounds", fmt.Sprintf("%f,%f,%f,%f",
		float64(header.MinLonE7)/1e7, float64(header.MinLatE7)/1e7,
		float64(header.MaxLonE7)/1e7, float64(header.MaxLatE7)/1e7)); err != nil {
		return err
	}
	if err := set("center", fmt.Sprintf("%f,%f,%d",
		float64(header.CenterLonE7)/1e7, float64(header.CenterLatE7)/1e7, header.CenterZoom)); err != nil {
		return err
	}
	if err := set("minzoom", strconv.Itoa(int(header.MinZoom))); err != nil {
		return err
	}
	if err := set("maxzoom", strconv.Itoa(int(header.MaxZoom))); err != nil {
		return err
	}

	rest := make(map[string]interface{})
	for k, v := range metadata {
		if s, ok := v.(string); ok {
			if err := set(k, s); err != nil {
				return err
			}
		} else {
			rest[k] = v
		}
	}
	if len(rest) > 0 {
		b, err := json.Marshal(rest)
		if err != nil {
			return errs.New(errs.IO, err)
		}
		if err := set("json", string(b)); err != nil {
			return err
		}
	}
	return nil
}

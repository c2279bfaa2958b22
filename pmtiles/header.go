package pmtiles

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nullisland/tilekit/errs"
)

// Compression is the compression algorithm applied to a section of a PMTiles
// archive (directories, metadata, or tile payloads).
type Compression uint8

const (
	NoCompression Compression = 0
	Gzip          Compression = 1
	Brotli        Compression = 2

	// UnknownCompression is a sentinel for "not a valid on-disk code",
	// kept out of the 0..2 range spec.md §3/§6 defines.
	UnknownCompression Compression = 255
)

// TileType is the format of individual tile payloads in the archive.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
	Png             TileType = 2
	Jpeg            TileType = 3
	Webp            TileType = 4
	Avif            TileType = 5
)

// HeaderV3LenBytes is the fixed size of the binary PMTiles v3 header.
const HeaderV3LenBytes = 127

// HeaderV3 is the 127-byte fixed header described in spec.md §3/§6.
type HeaderV3 struct {
	SpecVersion         uint8
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// HeaderJSON is a human-readable projection of the parts of the binary
// header an external caller (the CLI collaborator, §6) might render.
type HeaderJSON struct {
	TileCompression string    `json:"tile_compression"`
	TileType        string    `json:"tile_type"`
	MinZoom         int       `json:"minzoom"`
	MaxZoom         int       `json:"maxzoom"`
	Bounds          []float64 `json:"bounds"`
	Center          []float64 `json:"center"`
}

func tileTypeToString(t TileType) string {
	switch t {
	case Mvt:
		return "mvt"
	case Png:
		return "png"
	case Jpeg:
		return "jpg"
	case Webp:
		return "webp"
	case Avif:
		return "avif"
	default:
		return ""
	}
}

func validCompression(c Compression) bool {
	switch c {
	case NoCompression, Gzip, Brotli:
		return true
	default:
		return false
	}
}

func compressionToString(c Compression) string {
	switch c {
	case NoCompression:
		return "none"
	case Gzip:
		return "gzip"
	case Brotli:
		return "br"
	default:
		return "unknown"
	}
}

func headerExt(header HeaderV3) string {
	base := tileTypeToString(header.TileType)
	if base == "" {
		return ""
	}
	return "." + base
}

// HeaderToJSON projects the binary header into HeaderJSON.
func HeaderToJSON(header HeaderV3) HeaderJSON {
	return HeaderJSON{
		TileCompression: compressionToString(header.TileCompression),
		TileType:        tileTypeToString(header.TileType),
		MinZoom:         int(header.MinZoom),
		MaxZoom:         int(header.MaxZoom),
		Bounds: []float64{
			float64(header.MinLonE7) / 1e7,
			float64(header.MinLatE7) / 1e7,
			float64(header.MaxLonE7) / 1e7,
			float64(header.MaxLatE7) / 1e7,
		},
		Center: []float64{
			float64(header.CenterLonE7) / 1e7,
			float64(header.CenterLatE7) / 1e7,
			float64(header.CenterZoom),
		},
	}
}

// SerializeHeader writes the 127-byte binary header, little-endian, per
// spec.md §6's offset table.
func SerializeHeader(header HeaderV3) []byte {
	b := make([]byte, HeaderV3LenBytes)
	copy(b[0:7], "PMTiles")
	b[7] = 3
	binary.LittleEndian.PutUint64(b[8:16], header.RootOffset)
	binary.LittleEndian.PutUint64(b[16:24], header.RootLength)
	binary.LittleEndian.PutUint64(b[24:32], header.MetadataOffset)
	binary.LittleEndian.PutUint64(b[32:40], header.MetadataLength)
	binary.LittleEndian.PutUint64(b[40:48], header.LeafDirectoryOffset)
	binary.LittleEndian.PutUint64(b[48:56], header.LeafDirectoryLength)
	binary.LittleEndian.PutUint64(b[56:64], header.TileDataOffset)
	binary.LittleEndian.PutUint64(b[64:72], header.TileDataLength)
	binary.LittleEndian.PutUint64(b[72:80], header.AddressedTilesCount)
	binary.LittleEndian.PutUint64(b[80:88], header.TileEntriesCount)
	binary.LittleEndian.PutUint64(b[88:96], header.TileContentsCount)
	if header.Clustered {
		b[96] = 0x1
	}
	b[97] = uint8(header.InternalCompression)
	b[98] = uint8(header.TileCompression)
	b[99] = uint8(header.TileType)
	b[100] = header.MinZoom
	b[101] = header.MaxZoom
	binary.LittleEndian.PutUint32(b[102:106], uint32(header.MinLonE7))
	binary.LittleEndian.PutUint32(b[106:110], uint32(header.MinLatE7))
	binary.LittleEndian.PutUint32(b[110:114], uint32(header.MaxLonE7))
	binary.LittleEndian.PutUint32(b[114:118], uint32(header.MaxLatE7))
	b[118] = header.CenterZoom
	binary.LittleEndian.PutUint32(b[119:123], uint32(header.CenterLonE7))
	binary.LittleEndian.PutUint32(b[123:127], uint32(header.CenterLatE7))
	return b
}

// DeserializeHeader parses the 127-byte binary header, validating the magic
// number and spec version per spec.md §4.2/§4.10.
func DeserializeHeader(d []byte) (HeaderV3, error) {
	h := HeaderV3{}
	if len(d) < HeaderV3LenBytes {
		return h, errs.New(errs.MalformedHeader, fmt.Errorf("header is %d bytes, need %d", len(d), HeaderV3LenBytes))
	}
	if string(d[0:7]) != "PMTiles" {
		return h, errs.New(errs.MalformedHeader, fmt.Errorf("magic number not detected; is this a PMTiles archive?"))
	}
	specVersion := d[7]
	if specVersion != 3 {
		return h, errs.New(errs.MalformedHeader, fmt.Errorf("archive is spec version %d; this module only supports version 3", specVersion))
	}

	h.SpecVersion = specVersion
	h.RootOffset = binary.LittleEndian.Uint64(d[8:16])
	h.RootLength = binary.LittleEndian.Uint64(d[16:24])
	h.MetadataOffset = binary.LittleEndian.Uint64(d[24:32])
	h.MetadataLength = binary.LittleEndian.Uint64(d[32:40])
	h.LeafDirectoryOffset = binary.LittleEndian.Uint64(d[40:48])
	h.LeafDirectoryLength = binary.LittleEndian.Uint64(d[48:56])
	h.TileDataOffset = binary.LittleEndian.Uint64(d[56:64])
	h.TileDataLength = binary.LittleEndian.Uint64(d[64:72])
	h.AddressedTilesCount = binary.LittleEndian.Uint64(d[72:80])
	h.TileEntriesCount = binary.LittleEndian.Uint64(d[80:88])
	h.TileContentsCount = binary.LittleEndian.Uint64(d[88:96])
	h.Clustered = d[96] == 0x1
	h.InternalCompression = Compression(d[97])
	h.TileCompression = Compression(d[98])
	h.TileType = TileType(d[99])
	h.MinZoom = d[100]
	h.MaxZoom = d[101]
	h.MinLonE7 = int32(binary.LittleEndian.Uint32(d[102:106]))
	h.MinLatE7 = int32(binary.LittleEndian.Uint32(d[106:110]))
	h.MaxLonE7 = int32(binary.LittleEndian.Uint32(d[110:114]))
	h.MaxLatE7 = int32(binary.LittleEndian.Uint32(d[114:118]))
	h.CenterZoom = d[118]
	h.CenterLonE7 = int32(binary.LittleEndian.Uint32(d[119:123]))
	h.CenterLatE7 = int32(binary.LittleEndian.Uint32(d[123:127]))

	if !validCompression(h.InternalCompression) || !validCompression(h.TileCompression) {
		return h, errs.New(errs.UnsupportedCompression, fmt.Errorf("unknown compression code"))
	}

	return h, nil
}

// CheckOutputExtension fails fast (before any I/O) if path's extension
// doesn't match the declared PMTiles output format (spec.md §4.10/§6).
func CheckOutputExtension(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pmtiles" {
		return errs.New(errs.UnsupportedConversion, fmt.Errorf("output path %q must have a .pmtiles extension", path))
	}
	return nil
}

func headerToStringifiedJSON(header HeaderV3) string {
	s, _ := json.MarshalIndent(HeaderToJSON(header), "", "    ")
	return string(s)
}

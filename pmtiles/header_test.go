package pmtiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	header := HeaderV3{
		RootOffset:          1,
		RootLength:          2,
		MetadataOffset:      3,
		MetadataLength:      4,
		LeafDirectoryOffset: 5,
		LeafDirectoryLength: 6,
		TileDataOffset:      7,
		TileDataLength:      8,
		AddressedTilesCount: 9,
		TileEntriesCount:    10,
		TileContentsCount:   11,
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     Brotli,
		TileType:            Mvt,
		MinZoom:             1,
		MaxZoom:             2,
		MinLonE7:            11000000,
		MinLatE7:            21000000,
		MaxLonE7:            12000000,
		MaxLatE7:            22000000,
		CenterZoom:          3,
		CenterLonE7:         31000000,
		CenterLatE7:         32000000,
	}

	b := SerializeHeader(header)
	require.Len(t, b, HeaderV3LenBytes)
	assert.Equal(t, "PMTiles", string(b[0:7]))
	assert.Equal(t, byte(3), b[7])

	result, err := DeserializeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, header.RootOffset, result.RootOffset)
	assert.Equal(t, header.MetadataLength, result.MetadataLength)
	assert.Equal(t, header.Clustered, result.Clustered)
	assert.Equal(t, header.InternalCompression, result.InternalCompression)
	assert.Equal(t, header.TileCompression, result.TileCompression)
	assert.Equal(t, header.TileType, result.TileType)
	assert.Equal(t, header.MinZoom, result.MinZoom)
	assert.Equal(t, header.MaxZoom, result.MaxZoom)
	assert.Equal(t, header.MinLonE7, result.MinLonE7)
	assert.Equal(t, header.CenterLatE7, result.CenterLatE7)
}

func TestDeserializeHeaderRejectsBadMagic(t *testing.T) {
	b := make([]byte, HeaderV3LenBytes)
	copy(b, "NOTPMTIL")
	_, err := DeserializeHeader(b)
	require.Error(t, err)
}

func TestDeserializeHeaderRejectsBadVersion(t *testing.T) {
	header := HeaderV3{}
	b := SerializeHeader(header)
	b[7] = 99
	_, err := DeserializeHeader(b)
	require.Error(t, err)
}

func TestDeserializeHeaderRejectsUnknownCompression(t *testing.T) {
	header := HeaderV3{InternalCompression: NoCompression, TileCompression: 99}
	b := SerializeHeader(header)
	_, err := DeserializeHeader(b)
	require.Error(t, err)
}

func TestDeserializeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DeserializeHeader(make([]byte, 10))
	require.Error(t, err)
}

func TestHeaderToJSON(t *testing.T) {
	header := HeaderV3{
		TileCompression: Brotli,
		TileType:        Mvt,
		MinZoom:         1,
		MaxZoom:         3,
		MinLonE7:        11000000,
		MinLatE7:        21000000,
		MaxLonE7:        12000000,
		MaxLatE7:        22000000,
		CenterZoom:      2,
	}
	j := HeaderToJSON(header)
	assert.Equal(t, "br", j.TileCompression)
	assert.Equal(t, "mvt", j.TileType)
	assert.Equal(t, 1, j.MinZoom)
	assert.Equal(t, 3, j.MaxZoom)
	assert.InDelta(t, 1.1, j.Bounds[0], 1e-9)
	assert.InDelta(t, 2.0, j.Center[2], 1e-9)
}

func TestCheckOutputExtension(t *testing.T) {
	assert.NoError(t, CheckOutputExtension("out.pmtiles"))
	assert.NoError(t, CheckOutputExtension("OUT.PMTILES"))
	assert.Error(t, CheckOutputExtension("out.mbtiles"))
	assert.Error(t, CheckOutputExtension("out"))
}

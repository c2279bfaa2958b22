package prune

import (
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullisland/tilekit/mbtiles"
	"github.com/nullisland/tilekit/pmtiles"
)

func encodeTestTile(t *testing.T) []byte {
	t.Helper()
	f := geojson.NewFeature(orb.LineString{{0, 0}, {0, 1}, {0, 2}, {0, 3}})
	f.Properties["class"] = "river"
	layers := mvt.Layers{{Name: "water", Extent: 4096, Features: []*geojson.Feature{f}}}
	data, err := mvt.Marshal(layers)
	require.NoError(t, err)
	return data
}

func TestSimplifyTileMbtilesToMbtiles(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.mbtiles")
	w, err := mbtiles.CreateWriter(src, 10, 0)
	require.NoError(t, err)
	require.NoError(t, w.PutTile(3, 1, 1, encodeTestTile(t)))
	require.NoError(t, w.Close())

	dst := filepath.Join(t.TempDir(), "dst.mbtiles")
	logger := log.New(io.Discard, "", 0)
	err = SimplifyTile(logger, src, dst, 3, 1, 1, 0.25)
	require.NoError(t, err)

	reader, err := mbtiles.OpenReader(dst, 0)
	require.NoError(t, err)
	defer reader.Close()

	data, ok, err := reader.GetTile(3, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	layers, err := mvt.Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, "water", layers[0].Name)
}

func TestSimplifyTileMbtilesToPmtiles(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.mbtiles")
	w, err := mbtiles.CreateWriter(src, 10, 0)
	require.NoError(t, err)
	require.NoError(t, w.PutTile(3, 1, 1, encodeTestTile(t)))
	require.NoError(t, w.Close())

	dst := filepath.Join(t.TempDir(), "dst.pmtiles")
	logger := log.New(io.Discard, "", 0)
	err = SimplifyTile(logger, src, dst, 3, 1, 1, 0)
	require.NoError(t, err)

	archive, err := pmtiles.OpenArchive(dst)
	require.NoError(t, err)
	defer archive.Close()

	raw, ok, err := archive.GetTile(3, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)

	decoded, err := pmtiles.DecodeTilePayload(raw, archive.Header.TileCompression)
	require.NoError(t, err)
	layers, err := mvt.Unmarshal(decoded)
	require.NoError(t, err)
	require.Len(t, layers, 1)
}

func TestSimplifyTileMissingTileErrors(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src.mbtiles")
	w, err := mbtiles.CreateWriter(src, 10, 0)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	dst := filepath.Join(t.TempDir(), "dst.mbtiles")
	logger := log.New(io.Discard, "", 0)
	err = SimplifyTile(logger, src, dst, 9, 9, 9, 0)
	require.Error(t, err)
}

package mbtiles

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestMbtiles(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mbtiles")

	w, err := CreateWriter(path, 10, 0)
	require.NoError(t, err)
	require.NoError(t, w.SetMetadata("name", "test"))
	require.NoError(t, w.SetMetadata("format", "pbf"))
	require.NoError(t, w.PutTile(1, 0, 0, []byte("tile-0-0")))
	require.NoError(t, w.PutTile(1, 1, 1, []byte("tile-1-1")))
	require.NoError(t, w.Close())
	return path
}

func TestWriterAndReaderRoundTrip(t *testing.T) {
	path := buildTestMbtiles(t)

	r, err := OpenReader(path, 0)
	require.NoError(t, err)
	defer r.Close()

	meta, err := r.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "test", meta["name"])

	count, err := r.TileCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	data, ok, err := r.GetTile(1, 0, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("tile-0-0"), data)

	data, ok, err = r.GetTile(1, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("tile-1-1"), data)

	_, ok, err = r.GetTile(1, 5, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEachCoordinateUnflipsY(t *testing.T) {
	path := buildTestMbtiles(t)
	r, err := OpenReader(path, 0)
	require.NoError(t, err)
	defer r.Close()

	seen := make(map[[3]uint32]bool)
	err = r.EachCoordinate(func(z uint8, x, y uint32) error {
		seen[[3]uint32{uint32(z), x, y}] = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, seen[[3]uint32{1, 0, 0}])
	assert.True(t, seen[[3]uint32{1, 1, 1}])
}

func TestEachTileShardedPartitionsByXorXY(t *testing.T) {
	path := buildTestMbtiles(t)
	r, err := OpenReader(path, 0)
	require.NoError(t, err)
	defer r.Close()

	totalShards := 2
	counts := make([]int, totalShards)
	for shard := 0; shard < totalShards; shard++ {
		err := r.EachTileSharded(shard, totalShards, func(tile Tile) error {
			counts[shard]++
			assert.Equal(t, shard, int((tile.X^tile.Y)%uint32(totalShards)))
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, counts[0]+counts[1])
}

func TestCheckOutputExtension(t *testing.T) {
	assert.NoError(t, CheckOutputExtension("out.mbtiles"))
	assert.NoError(t, CheckOutputExtension("OUT.MBTILES"))
	assert.Error(t, CheckOutputExtension("out.pmtiles"))
}

func TestAbortDiscardsOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.mbtiles")
	w, err := CreateWriter(path, 10, 0)
	require.NoError(t, err)
	require.NoError(t, w.PutTile(0, 0, 0, []byte("x")))
	w.Abort()

	_, err = OpenReader(path, 0)
	assert.Error(t, err, "Abort must not leave a file at the final path")
}

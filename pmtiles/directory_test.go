package pmtiles

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullisland/tilekit/errs"
)

func TestDirectoryRoundTrip(t *testing.T) {
	entries := []EntryV3{
		{TileID: 0, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 1, Offset: 10, Length: 20, RunLength: 1}, // adjacent to previous
		{TileID: 5, Offset: 100, Length: 5, RunLength: 3}, // non-adjacent, run of 3
	}

	serialized, err := SerializeEntries(entries, NoCompression)
	require.NoError(t, err)

	result, err := DeserializeEntries(bytes.NewBuffer(serialized), NoCompression)
	require.NoError(t, err)
	assert.Equal(t, entries, result)
}

func TestDirectoryRoundTripCompressed(t *testing.T) {
	entries := []EntryV3{
		{TileID: 0, Offset: 0, Length: 0, RunLength: 0}, // leaf pointer
		{TileID: 1, Offset: 1, Length: 1, RunLength: 1},
		{TileID: 2, Offset: 2, Length: 2, RunLength: 2},
	}
	for _, c := range []Compression{Gzip, Brotli} {
		serialized, err := SerializeEntries(entries, c)
		require.NoError(t, err)
		result, err := DeserializeEntries(bytes.NewBuffer(serialized), c)
		require.NoError(t, err)
		assert.Equal(t, entries, result, "compression=%d", c)
	}
}

func TestDirectoryRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	entries := make([]EntryV3, 0, 500)
	var tileID, offset uint64
	for i := 0; i < 500; i++ {
		tileID += uint64(rng.Intn(5) + 1)
		length := uint32(rng.Intn(4000) + 1)
		run := uint32(rng.Intn(3) + 1)
		entries = append(entries, EntryV3{TileID: tileID, Offset: offset, Length: length, RunLength: run})
		offset += uint64(length)
		if rng.Intn(4) == 0 {
			offset += uint64(rng.Intn(1000))
		}
	}

	serialized, err := SerializeEntries(entries, NoCompression)
	require.NoError(t, err)
	result, err := DeserializeEntries(bytes.NewBuffer(serialized), NoCompression)
	require.NoError(t, err)
	assert.Equal(t, entries, result)
}

func TestFindTileRun(t *testing.T) {
	entries := []EntryV3{
		{TileID: 0, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 5, Offset: 100, Length: 20, RunLength: 3}, // covers 5,6,7
		{TileID: 10, Offset: 200, Length: 5, RunLength: 0}, // leaf pointer
	}

	e, ok := findTile(entries, 0)
	require.True(t, ok)
	assert.Equal(t, uint64(0), e.TileID)

	e, ok = findTile(entries, 6)
	require.True(t, ok)
	assert.Equal(t, uint64(5), e.TileID)

	_, ok = findTile(entries, 8)
	assert.False(t, ok)

	e, ok = findTile(entries, 10)
	require.True(t, ok)
	assert.Equal(t, uint32(0), e.RunLength)
}

func TestDeserializeEntriesMalformedOffsetFails(t *testing.T) {
	// Hand-build a directory whose offset column starts with "0" (adjacency
	// marker) on the very first entry, which spec.md §4.1 forbids.
	var b bytes.Buffer
	writeUvarint := func(v uint64) {
		buf := make([]byte, 10)
		n := 0
		for {
			c := byte(v & 0x7f)
			v >>= 7
			if v != 0 {
				c |= 0x80
			}
			buf[n] = c
			n++
			if v == 0 {
				break
			}
		}
		b.Write(buf[:n])
	}
	writeUvarint(1) // count
	writeUvarint(5) // tile id delta
	writeUvarint(1) // run length
	writeUvarint(4) // length
	writeUvarint(0) // offset marker: "adjacent to previous" but there is no previous

	result, err := DeserializeEntries(bytes.NewBuffer(b.Bytes()), NoCompression)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.MalformedDirectory))
	assert.Nil(t, result)
}

func TestBuildRootsLeaves(t *testing.T) {
	entries := make([]EntryV3, 0, 100)
	var tileID uint64
	for i := 0; i < 100; i++ {
		entries = append(entries, EntryV3{TileID: tileID, Offset: tileID * 10, Length: 10, RunLength: 1})
		tileID++
	}

	root, leaves, numLeaves, err := buildRootsLeaves(entries, 10, NoCompression)
	require.NoError(t, err)
	assert.Equal(t, 10, numLeaves)
	assert.NotEmpty(t, root)
	assert.NotEmpty(t, leaves)

	rootEntries, err := DeserializeEntries(bytes.NewBuffer(root), NoCompression)
	require.NoError(t, err)
	assert.Len(t, rootEntries, 10)
	for _, e := range rootEntries {
		assert.Equal(t, uint32(0), e.RunLength, "root entries must be leaf pointers")
	}
}

func TestOptimizeDirectoriesSmallFitsInRoot(t *testing.T) {
	entries := []EntryV3{{TileID: 0, Offset: 0, Length: 10, RunLength: 1}}
	root, leaves, numLeaves, err := optimizeDirectories(entries, 16384-HeaderV3LenBytes, NoCompression)
	require.NoError(t, err)
	assert.Equal(t, 0, numLeaves)
	assert.Empty(t, leaves)
	assert.NotEmpty(t, root)
}

func TestIterateEntriesWalksLeaves(t *testing.T) {
	leafEntries := []EntryV3{{TileID: 1, Offset: 0, Length: 10, RunLength: 1}}
	leafBytes, err := SerializeEntries(leafEntries, NoCompression)
	require.NoError(t, err)

	rootEntries := []EntryV3{{TileID: 1, Offset: 0, Length: uint32(len(leafBytes)), RunLength: 0}}
	rootBytes, err := SerializeEntries(rootEntries, NoCompression)
	require.NoError(t, err)

	sections := map[string][]byte{
		"root": rootBytes,
		"leaf": leafBytes,
	}
	header := HeaderV3{
		RootOffset:          0,
		RootLength:          uint64(len(rootBytes)),
		LeafDirectoryOffset: 1000,
		InternalCompression: NoCompression,
	}

	var visited []EntryV3
	err = IterateEntries(header, func(offset, length uint64) ([]byte, error) {
		if offset == header.RootOffset {
			return sections["root"], nil
		}
		return sections["leaf"], nil
	}, func(e EntryV3) {
		visited = append(visited, e)
	})
	require.NoError(t, err)
	require.Len(t, visited, 1)
	assert.Equal(t, uint64(1), visited[0].TileID)
}

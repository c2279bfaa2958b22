package pmtiles

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/nullisland/tilekit/errs"
)

// Zxy is a decoded tile coordinate: zoom, column, row.
type Zxy struct {
	Z uint8
	X uint32
	Y uint32
}

// EntryV3 is a single entry in a PMTiles v3 directory: either a tile
// (RunLength > 0, Offset/Length point into the tile data section) or a
// pointer to a leaf directory (RunLength == 0, Offset/Length point into the
// leaf directory section).
type EntryV3 struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// SerializeEntries encodes entries as four delta/varint-coded columns
// (tile ID deltas, run lengths, lengths, offsets-with-adjacency-marker),
// optionally compressed, per spec.md §4.1.
func SerializeEntries(entries []EntryV3, compression Compression) ([]byte, error) {
	var b bytes.Buffer
	w, err := compressWriter(&b, compression)
	if err != nil {
		return nil, err
	}

	tmp := make([]byte, binary.MaxVarintLen64)

	n := binary.PutUvarint(tmp, uint64(len(entries)))
	w.Write(tmp[:n])

	lastID := uint64(0)
	for _, entry := range entries {
		n = binary.PutUvarint(tmp, entry.TileID-lastID)
		w.Write(tmp[:n])
		lastID = entry.TileID
	}

	for _, entry := range entries {
		n = binary.PutUvarint(tmp, uint64(entry.RunLength))
		w.Write(tmp[:n])
	}

	for _, entry := range entries {
		n = binary.PutUvarint(tmp, uint64(entry.Length))
		w.Write(tmp[:n])
	}

	for i, entry := range entries {
		if i > 0 && entry.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			n = binary.PutUvarint(tmp, 0)
		} else {
			n = binary.PutUvarint(tmp, entry.Offset+1) // +1 so 0 is free to mean "adjacent"
		}
		w.Write(tmp[:n])
	}

	if err := w.Close(); err != nil {
		return nil, errs.New(errs.IO, err)
	}
	return b.Bytes(), nil
}

// DeserializeEntries decodes a directory section produced by SerializeEntries.
func DeserializeEntries(data *bytes.Buffer, compression Compression) ([]EntryV3, error) {
	reader, err := decompressReader(data, compression)
	if err != nil {
		return nil, err
	}
	byteReader := bufio.NewReader(reader)

	numEntries, err := binary.ReadUvarint(byteReader)
	if err != nil {
		return nil, errs.New(errs.MalformedDirectory, err)
	}

	entries := make([]EntryV3, numEntries)

	lastID := uint64(0)
	for i := uint64(0); i < numEntries; i++ {
		delta, err := binary.ReadUvarint(byteReader)
		if err != nil {
			return nil, errs.New(errs.MalformedDirectory, err)
		}
		lastID += delta
		entries[i].TileID = lastID
	}

	for i := uint64(0); i < numEntries; i++ {
		runLength, err := binary.ReadUvarint(byteReader)
		if err != nil {
			return nil, errs.New(errs.MalformedDirectory, err)
		}
		entries[i].RunLength = uint32(runLength)
	}

	for i := uint64(0); i < numEntries; i++ {
		length, err := binary.ReadUvarint(byteReader)
		if err != nil {
			return nil, errs.New(errs.MalformedDirectory, err)
		}
		entries[i].Length = uint32(length)
	}

	for i := uint64(0); i < numEntries; i++ {
		v, err := binary.ReadUvarint(byteReader)
		if err != nil {
			return nil, errs.New(errs.MalformedDirectory, err)
		}
		if i == 0 && v == 0 {
			return nil, errs.New(errs.MalformedDirectory, errors.New("first directory entry uses the adjacent-offset marker 0"))
		}
		if i > 0 && v == 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}

	return entries, nil
}

// findTile does a binary search over a sorted directory, honoring
// run-length semantics: an entry with RunLength == 0 is a leaf-directory
// pointer (always returned for the caller to recurse into); otherwise the
// entry covers [TileID, TileID+RunLength).
func findTile(entries []EntryV3, tileID uint64) (EntryV3, bool) {
	m := 0
	n := len(entries) - 1
	for m <= n {
		k := (n + m) >> 1
		cmp := int64(tileID) - int64(entries[k].TileID)
		if cmp > 0 {
			m = k + 1
		} else if cmp < 0 {
			n = k - 1
		} else {
			return entries[k], true
		}
	}

	if n >= 0 {
		if entries[n].RunLength == 0 {
			return entries[n], true
		}
		if tileID-entries[n].TileID < uint64(entries[n].RunLength) {
			return entries[n], true
		}
	}
	return EntryV3{}, false
}

// buildRootsLeaves splits entries into leafSize-sized leaf directories plus
// a root directory of leaf pointers.
func buildRootsLeaves(entries []EntryV3, leafSize int, compression Compression) ([]byte, []byte, int, error) {
	rootEntries := make([]EntryV3, 0)
	leavesBytes := make([]byte, 0)
	numLeaves := 0

	for idx := 0; idx < len(entries); idx += leafSize {
		numLeaves++
		end := idx + leafSize
		if end > len(entries) {
			end = len(entries)
		}
		serialized, err := SerializeEntries(entries[idx:end], compression)
		if err != nil {
			return nil, nil, 0, err
		}

		rootEntries = append(rootEntries, EntryV3{
			TileID: entries[idx].TileID,
			Offset: uint64(len(leavesBytes)),
			Length: uint32(len(serialized)),
		})
		leavesBytes = append(leavesBytes, serialized...)
	}

	rootBytes, err := SerializeEntries(rootEntries, compression)
	if err != nil {
		return nil, nil, 0, err
	}
	return rootBytes, leavesBytes, numLeaves, nil
}

// optimizeDirectories grows a root-only directory until it either fits in
// targetRootLen bytes, or spills the bulk of the entries into leaf
// directories addressed by root pointers. Ported from the teacher's sizing
// algorithm; this module's own writer never emits leaf directories (spec.md
// §4.2), but the ladder is kept and exercised for archives whose directory
// would otherwise exceed the root budget.
func optimizeDirectories(entries []EntryV3, targetRootLen int, compression Compression) ([]byte, []byte, int, error) {
	if len(entries) < 16384 {
		testRootBytes, err := SerializeEntries(entries, compression)
		if err != nil {
			return nil, nil, 0, err
		}
		if len(testRootBytes) <= targetRootLen {
			return testRootBytes, make([]byte, 0), 0, nil
		}
	}

	leafSize := float32(len(entries)) / 3500
	if leafSize < 4096 {
		leafSize = 4096
	}

	for {
		rootBytes, leavesBytes, numLeaves, err := buildRootsLeaves(entries, int(leafSize), compression)
		if err != nil {
			return nil, nil, 0, err
		}
		if len(rootBytes) <= targetRootLen {
			return rootBytes, leavesBytes, numLeaves, nil
		}
		leafSize *= 1.2
	}
}

// IterateEntries walks every tile entry reachable from the root directory,
// recursing into leaf directories with an explicit stack rather than
// recursion so that a pathologically deep directory tree cannot overflow
// the call stack (spec.md §4.2).
func IterateEntries(header HeaderV3, fetch func(offset, length uint64) ([]byte, error), operation func(EntryV3)) error {
	type pending struct {
		offset uint64
		length uint64
	}

	stack := []pending{{header.RootOffset, header.RootLength}}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		data, err := fetch(cur.offset, cur.length)
		if err != nil {
			return err
		}

		directory, err := DeserializeEntries(bytes.NewBuffer(data), header.InternalCompression)
		if err != nil {
			return err
		}

		for _, entry := range directory {
			if entry.RunLength > 0 {
				operation(entry)
			} else {
				stack = append(stack, pending{header.LeafDirectoryOffset + entry.Offset, uint64(entry.Length)})
			}
		}
	}

	return nil
}

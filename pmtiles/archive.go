package pmtiles

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/nullisland/tilekit/errs"
)

// Archive is a read handle onto a local PMTiles v3 file. Unlike the
// teacher's bucket-backed Reader, every lookup here goes through a plain
// *os.File via io.SectionReader — this module carries no remote-storage
// feature (SPEC_FULL.md §A).
type Archive struct {
	file   *os.File
	Header HeaderV3
}

// OpenArchive opens path, validates the 127-byte header, and returns a
// ready-to-query Archive. The caller must Close it.
func OpenArchive(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.IO, err)
	}

	buf := make([]byte, HeaderV3LenBytes)
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, errs.New(errs.MalformedHeader, err)
	}

	header, err := DeserializeHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Archive{file: f, Header: header}, nil
}

// Close releases the underlying file handle.
func (a *Archive) Close() error {
	return a.file.Close()
}

func (a *Archive) section(offset, length uint64) ([]byte, error) {
	r := io.NewSectionReader(a.file, int64(offset), int64(length))
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.New(errs.IO, err)
	}
	return b, nil
}

// Metadata decodes the archive's JSON metadata section.
func (a *Archive) Metadata() (map[string]interface{}, error) {
	b, err := a.section(a.Header.MetadataOffset, a.Header.MetadataLength)
	if err != nil {
		return nil, err
	}
	return DeserializeMetadata(bytes.NewReader(b), a.Header.InternalCompression)
}

// GetTile looks up the raw (still tile_compression-encoded) bytes for
// (z, x, y), walking leaf directories as needed. It returns ok=false if the
// archive has no tile at that coordinate.
func (a *Archive) GetTile(z uint8, x, y uint32) ([]byte, bool, error) {
	tileID := ZxyToID(z, x, y)

	dirOffset := a.Header.RootOffset
	dirLength := a.Header.RootLength

	for depth := 0; depth <= 4; depth++ {
		data, err := a.section(dirOffset, dirLength)
		if err != nil {
			return nil, false, err
		}
		directory, err := DeserializeEntries(bytes.NewBuffer(data), a.Header.InternalCompression)
		if err != nil {
			return nil, false, err
		}

		entry, ok := findTile(directory, tileID)
		if !ok {
			return nil, false, nil
		}
		if entry.RunLength > 0 {
			tile, err := a.section(a.Header.TileDataOffset+entry.Offset, uint64(entry.Length))
			if err != nil {
				return nil, false, err
			}
			return tile, true, nil
		}
		dirOffset = a.Header.LeafDirectoryOffset + entry.Offset
		dirLength = uint64(entry.Length)
	}

	return nil, false, errs.New(errs.MalformedDirectory, fmt.Errorf("leaf directory recursion exceeded expected depth"))
}

// AllEntries walks the full directory tree and returns every tile entry, in
// tile-ID order.
func (a *Archive) AllEntries() ([]EntryV3, error) {
	entries := make([]EntryV3, 0, a.Header.TileEntriesCount)
	err := IterateEntries(a.Header, func(offset, length uint64) ([]byte, error) {
		return a.section(offset, length)
	}, func(e EntryV3) {
		entries = append(entries, e)
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].TileID < entries[j].TileID })
	return entries, err
}

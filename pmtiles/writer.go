package pmtiles

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/nullisland/tilekit/errs"
)

// WriteSpec is everything Finalize needs to lay out a PMTiles v3 archive
// around an already-populated Resolver: header fields the caller has
// computed (bounds, zoom range, tile type, clustered flag) plus the raw
// tile-data bytes to copy in as-is (already encoded per Header.TileCompression,
// via EncodeTilePayload, before they were handed to the Resolver).
type WriteSpec struct {
	Header   HeaderV3
	Metadata map[string]interface{}
}

// Finalize assembles [header][root][metadata][leaves?][data] from a
// Resolver's entries and the source of tile bytes (tileData), writing
// atomically: to "<output>.tmp-<pid>" then renamed into place on success,
// so a crash or cancellation never leaves a partial file at output
// (SPEC_FULL.md §D.2, grounded on the teacher's edit.go temp-file/rename).
//
// This module's own writer never emits leaf directories (spec.md §4.2):
// callers are expected to pass a directory small enough to fit in one root
// section, and Finalize errors out rather than silently spilling to leaves.
func Finalize(logger *log.Logger, resolver *Resolver, spec WriteSpec, tileData io.Reader, output string) (HeaderV3, error) {
	header := spec.Header
	header.AddressedTilesCount = resolver.AddressedTiles
	header.TileEntriesCount = uint64(len(resolver.Entries))
	header.TileContentsCount = resolver.TileContentsCount()
	header.InternalCompression = Gzip
	if header.TileCompression == UnknownCompression {
		header.TileCompression = NoCompression
	}

	rootBytes, leavesBytes, numLeaves, err := optimizeDirectories(resolver.Entries, 16384-HeaderV3LenBytes, header.InternalCompression)
	if err != nil {
		return header, err
	}
	if numLeaves > 0 {
		return header, errs.New(errs.UnsupportedConversion, fmt.Errorf("directory requires %d leaf directories, which this writer does not emit", numLeaves))
	}

	metadataBytes, err := SerializeMetadata(spec.Metadata, header.InternalCompression)
	if err != nil {
		return header, err
	}

	header.RootOffset = HeaderV3LenBytes
	header.RootLength = uint64(len(rootBytes))
	header.MetadataOffset = header.RootOffset + header.RootLength
	header.MetadataLength = uint64(len(metadataBytes))
	header.LeafDirectoryOffset = header.MetadataOffset + header.MetadataLength
	header.LeafDirectoryLength = uint64(len(leavesBytes))
	header.TileDataOffset = header.LeafDirectoryOffset + header.LeafDirectoryLength
	header.TileDataLength = resolver.Offset

	tmpPath := fmt.Sprintf("%s.tmp-%d", output, os.Getpid())
	if _, err := os.Stat(tmpPath); err == nil {
		return header, errs.New(errs.IO, fmt.Errorf("temp output path %s already exists", tmpPath))
	}

	outfile, err := os.Create(tmpPath)
	if err != nil {
		return header, errs.New(errs.IO, err)
	}

	if err := writeSections(outfile, header, rootBytes, metadataBytes, tileData); err != nil {
		outfile.Close()
		os.Remove(tmpPath)
		return header, err
	}

	if err := outfile.Close(); err != nil {
		os.Remove(tmpPath)
		return header, errs.New(errs.IO, err)
	}

	if err := os.Rename(tmpPath, output); err != nil {
		os.Remove(tmpPath)
		return header, errs.New(errs.IO, err)
	}

	logger.Printf("wrote %s: %d addressed tiles, %d entries, %d unique contents\n",
		output, header.AddressedTilesCount, header.TileEntriesCount, header.TileContentsCount)

	return header, nil
}

func writeSections(w io.Writer, header HeaderV3, rootBytes, metadataBytes []byte, tileData io.Reader) error {
	if _, err := w.Write(SerializeHeader(header)); err != nil {
		return errs.New(errs.IO, err)
	}
	if _, err := w.Write(rootBytes); err != nil {
		return errs.New(errs.IO, err)
	}
	if _, err := w.Write(metadataBytes); err != nil {
		return errs.New(errs.IO, err)
	}
	if _, err := io.Copy(w, tileData); err != nil {
		return errs.New(errs.IO, err)
	}
	return nil
}

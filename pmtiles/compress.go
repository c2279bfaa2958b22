package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/nullisland/tilekit/errs"
)

type nopWriteCloser struct {
	io.Writer
}

func (w *nopWriteCloser) Close() error { return nil }

// compressWriter wraps w so that bytes written through it are compressed
// per the declared Compression code. Callers own the returned WriteCloser
// and must Close it to flush.
func compressWriter(w io.Writer, compression Compression) (io.WriteCloser, error) {
	switch compression {
	case NoCompression:
		return &nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case Brotli:
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	default:
		return nil, errs.New(errs.UnsupportedCompression, fmt.Errorf("compression code %d not supported for writing", compression))
	}
}

// decompressReader wraps r so that reads through it are decompressed per
// the declared Compression code.
func decompressReader(r io.Reader, compression Compression) (io.Reader, error) {
	switch compression {
	case NoCompression:
		return r, nil
	case Gzip:
		return gzip.NewReader(r)
	case Brotli:
		return brotli.NewReader(r), nil
	default:
		return nil, errs.New(errs.UnsupportedCompression, fmt.Errorf("compression code %d not supported for reading", compression))
	}
}

// SerializeMetadata JSON-encodes metadata and compresses it per compression.
func SerializeMetadata(metadata map[string]interface{}, compression Compression) ([]byte, error) {
	jsonBytes, err := json.Marshal(metadata)
	if err != nil {
		return nil, errs.New(errs.IO, err)
	}

	var b bytes.Buffer
	w, err := compressWriter(&b, compression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(jsonBytes); err != nil {
		return nil, errs.New(errs.IO, err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.New(errs.IO, err)
	}
	return b.Bytes(), nil
}

// DeserializeMetadataBytes decompresses and returns the raw JSON metadata bytes.
func DeserializeMetadataBytes(reader io.Reader, compression Compression) ([]byte, error) {
	r, err := decompressReader(reader, compression)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.New(errs.IO, err)
	}
	return b, nil
}

// decompressTile decompresses a single tile payload per its declared
// Compression code, returning the raw tile bytes (e.g. undecoded MVT).
func decompressTile(data []byte, compression Compression) ([]byte, error) {
	if compression == NoCompression {
		return data, nil
	}
	r, err := decompressReader(bytes.NewReader(data), compression)
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.New(errs.IO, err)
	}
	return out, nil
}

// gzipMagic is the two leading bytes of every gzip stream.
var gzipMagic = []byte{0x1f, 0x8b}

// DecodeTilePayload is the tile-payload codec bridge of spec.md §4.4: on
// decode, a gzip-magic-prefixed payload is always treated as gzip
// regardless of the declared Compression, tolerating archives whose
// declared code doesn't match their actual bytes; otherwise the declared
// code is honored. Callers with no declared code of their own (MBTiles
// tile_data has none) pass NoCompression — the magic check still does the
// real work for tiles that turn out to be gzip-compressed anyway.
func DecodeTilePayload(data []byte, declared Compression) ([]byte, error) {
	if len(data) >= 2 && bytes.Equal(data[:2], gzipMagic) {
		return decompressTile(data, Gzip)
	}
	return decompressTile(data, declared)
}

// EncodeTilePayload is the encode half of the bridge: it honors the
// declared Compression strictly (spec.md §4.4's encode policy), unlike
// the decode path.
func EncodeTilePayload(data []byte, declared Compression) ([]byte, error) {
	if declared == NoCompression {
		return data, nil
	}
	var b bytes.Buffer
	w, err := compressWriter(&b, declared)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, errs.New(errs.IO, err)
	}
	if err := w.Close(); err != nil {
		return nil, errs.New(errs.IO, err)
	}
	return b.Bytes(), nil
}

// metadataCoercionKey is where DeserializeMetadata files a metadata section
// whose top-level JSON value isn't an object, so callers can keep treating
// Metadata() as a string mapping (spec.md:80).
const metadataCoercionKey = "value"

// DeserializeMetadata decompresses and JSON-decodes the metadata section,
// tolerating unknown shapes by coercing them to a string mapping: a
// top-level JSON value that isn't an object is wrapped under
// metadataCoercionKey instead of failing the whole read.
func DeserializeMetadata(reader io.Reader, compression Compression) (map[string]interface{}, error) {
	jsonBytes, err := DeserializeMetadataBytes(reader, compression)
	if err != nil {
		return nil, err
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &metadata); err == nil {
		return metadata, nil
	}

	var coerced interface{}
	if err := json.Unmarshal(jsonBytes, &coerced); err != nil {
		return nil, errs.New(errs.IO, err)
	}
	return map[string]interface{}{metadataCoercionKey: coerced}, nil
}

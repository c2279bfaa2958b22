package mbtiles

import (
	"fmt"
	"os"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nullisland/tilekit/errs"
)

// Writer creates and populates an MBTiles file with the canonical
// tiles(zoom_level, tile_column, tile_row, tile_data) schema, batching
// inserts into savepoints the way the teacher batches conversions into
// transactions (pmtiles/convert.go's ConvertMbtiles, in reverse). It writes
// to a temporary path and is only renamed into place on Close, so a
// crash or Abort leaves no partial file at the final path (spec.md §5/§6,
// SPEC_FULL.md §D.2).
type Writer struct {
	conn       *sqlite.Conn
	finalPath  string
	tmpPath    string
	batchSize  int
	inBatch    int
	release    sqlitex.ReleaseFunc
	done       bool
}

// CreateWriter creates a fresh MBTiles database at a sibling temporary
// path, with the canonical schema, and returns a batching Writer.
// batchSize tiles are grouped per savepoint before being committed. The
// file only appears at path once Close succeeds. cacheSizeMB, when
// positive, is applied as a PRAGMA cache_size hint (spec.md §5's
// resource-bounds note); 0 leaves SQLite's default page cache alone.
func CreateWriter(path string, batchSize, cacheSizeMB int) (*Writer, error) {
	tmpPath := fmt.Sprintf("%s.tmp-%d", path, os.Getpid())
	if _, err := os.Stat(tmpPath); err == nil {
		return nil, errs.New(errs.IO, fmt.Errorf("temp output path %s already exists", tmpPath))
	}

	conn, err := sqlite.OpenConn(tmpPath, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return nil, errs.New(errs.IO, fmt.Errorf("create mbtiles %s: %w", tmpPath, err))
	}

	if err := sqlitex.ExecuteTransient(conn, `
		CREATE TABLE metadata (name TEXT, value TEXT);
		CREATE UNIQUE INDEX metadata_name ON metadata (name);
		CREATE TABLE tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL
		);
		CREATE UNIQUE INDEX tiles_index ON tiles (zoom_level, tile_column, tile_row);
		PRAGMA synchronous = OFF;
	`, nil); err != nil {
		conn.Close()
		os.Remove(tmpPath)
		return nil, errs.New(errs.IO, fmt.Errorf("create schema: %w", err))
	}

	if err := setCacheSizeMB(conn, cacheSizeMB); err != nil {
		conn.Close()
		os.Remove(tmpPath)
		return nil, err
	}

	if batchSize <= 0 {
		batchSize = 1000
	}

	return &Writer{conn: conn, finalPath: path, tmpPath: tmpPath, batchSize: batchSize}, nil
}

// SetMetadata writes (or overwrites) a single metadata(name, value) row.
func (w *Writer) SetMetadata(name, value string) error {
	stmt := w.conn.Prep("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)")
	stmt.BindText(1, name)
	stmt.BindText(2, value)
	defer stmt.Reset()
	if _, err := stmt.Step(); err != nil {
		return errs.New(errs.IO, err)
	}
	return nil
}

// PutTile inserts one tile in XYZ coordinates, converting to MBTiles'
// flipped-Y row addressing, batching the surrounding savepoint so io_batch
// tiles share one transaction.
func (w *Writer) PutTile(z uint8, x, y uint32, data []byte) error {
	if w.inBatch == 0 {
		release, err := sqlitex.Save(w.conn)
		if err != nil {
			return errs.New(errs.IO, err)
		}
		w.release = release
	}

	tmsY := (uint32(1) << z) - 1 - y
	stmt := w.conn.Prep("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	stmt.BindInt64(1, int64(z))
	stmt.BindInt64(2, int64(x))
	stmt.BindInt64(3, int64(tmsY))
	stmt.BindBytes(4, data)
	_, err := stmt.Step()
	stmt.Reset()
	if err != nil {
		return errs.New(errs.IO, err)
	}

	w.inBatch++
	if w.inBatch >= w.batchSize {
		w.flush(nil)
	}
	return nil
}

func (w *Writer) flush(errp *error) {
	if w.release == nil {
		return
	}
	w.release(errp)
	w.release = nil
	w.inBatch = 0
}

// Close flushes any pending batch, closes the connection, and atomically
// renames the temporary file into place. Callers that want to discard the
// output (cancellation, a mid-run error) must call Abort instead.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	var err error
	w.flush(&err)
	if closeErr := w.conn.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(w.tmpPath)
		return errs.New(errs.IO, err)
	}

	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		os.Remove(w.tmpPath)
		return errs.New(errs.IO, err)
	}
	return nil
}

// Abort closes the connection without renaming, discarding the temporary
// file. Used when a prune/convert run is cancelled or fails partway
// through (spec.md §5's cancellation guarantee).
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.conn.Close()
	os.Remove(w.tmpPath)
}

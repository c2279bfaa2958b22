// Package mbtiles reads and writes the MBTiles SQLite container format:
// either the simple tiles(zoom_level, tile_column, tile_row, tile_data)
// table, or the normalized map/images schema joined through a tiles view
// (grounded on sfomuseum-go-tilepacks' mbtiles outputter and the teacher's
// own ConvertMbtiles query shape in pmtiles/convert.go).
package mbtiles

import (
	"fmt"
	"path/filepath"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/nullisland/tilekit/errs"
)

// Tile is a single row read from an MBTiles archive, addressed in XYZ
// (non-flipped) coordinates.
type Tile struct {
	Z    uint8
	X    uint32
	Y    uint32
	Data []byte
}

// Reader is a read-only handle onto an MBTiles file. It transparently
// queries either the plain tiles table or the normalized map/images pair
// (spec.md §4.3) through a single SQL shape resolved once at open time.
type Reader struct {
	conn      *sqlite.Conn
	path      string
	tileQuery string
}

// OpenReader opens path read-only via zombiezen.com/go/sqlite, the
// cgo-free driver the teacher already depends on for ConvertMbtiles, and
// inspects the schema so every subsequent query works against either the
// plain tiles table or the map/images join. cacheSizeMB, when positive, is
// applied as a PRAGMA cache_size hint (spec.md §5's resource-bounds note);
// 0 leaves SQLite's default page cache alone.
func OpenReader(path string, cacheSizeMB int) (*Reader, error) {
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		return nil, errs.New(errs.IO, fmt.Errorf("open mbtiles %s: %w", path, err))
	}
	if err := setCacheSizeMB(conn, cacheSizeMB); err != nil {
		conn.Close()
		return nil, err
	}
	r := &Reader{conn: conn, path: path}
	if err := r.resolveSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

// setCacheSizeMB issues PRAGMA cache_size for conn. SQLite treats a
// negative cache_size as a size in kibibytes rather than pages, which is
// what lets a megabyte-denominated hint translate directly.
func setCacheSizeMB(conn *sqlite.Conn, cacheSizeMB int) error {
	if cacheSizeMB <= 0 {
		return nil
	}
	stmt := fmt.Sprintf("PRAGMA cache_size = -%d", cacheSizeMB*1024)
	if err := sqlitex.ExecuteTransient(conn, stmt, nil); err != nil {
		return errs.New(errs.IO, fmt.Errorf("set cache_size: %w", err))
	}
	return nil
}

// resolveSchema decides whether to query the plain tiles table or the
// map⨝images pair, by checking sqlite_master for table names (spec.md
// §4.3: "inspecting the schema at open time"). A plain tiles table always
// wins if present, since it's the canonical schema this module writes.
func (r *Reader) resolveSchema() error {
	hasTable := func(name string) (bool, error) {
		found := false
		err := sqlitex.Execute(r.conn, "SELECT 1 FROM sqlite_master WHERE type IN ('table','view') AND name = ?", &sqlitex.ExecOptions{
			Args: []interface{}{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				return nil
			},
		})
		return found, err
	}

	hasTiles, err := hasTable("tiles")
	if err != nil {
		return errs.New(errs.SchemaMismatch, err)
	}
	if hasTiles {
		r.tileQuery = "tiles"
		return nil
	}

	hasMap, err := hasTable("map")
	if err != nil {
		return errs.New(errs.SchemaMismatch, err)
	}
	hasImages, err := hasTable("images")
	if err != nil {
		return errs.New(errs.SchemaMismatch, err)
	}
	if hasMap && hasImages {
		r.tileQuery = "(SELECT map.zoom_level AS zoom_level, map.tile_column AS tile_column, " +
			"map.tile_row AS tile_row, images.tile_data AS tile_data " +
			"FROM map JOIN images ON map.tile_id = images.tile_id)"
		return nil
	}

	return errs.New(errs.SchemaMismatch, fmt.Errorf("%s has neither a tiles table nor a map/images pair", r.path))
}

// Close releases the underlying connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// Metadata reads the metadata(name, value) table into a map.
func (r *Reader) Metadata() (map[string]string, error) {
	metadata := make(map[string]string)
	err := sqlitex.Execute(r.conn, "SELECT name, value FROM metadata", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			metadata[stmt.ColumnText(0)] = stmt.ColumnText(1)
			return nil
		},
	})
	if err != nil {
		return nil, errs.New(errs.SchemaMismatch, fmt.Errorf("read metadata: %w", err))
	}
	return metadata, nil
}

// TileCount returns the number of rows in the tiles view/table.
func (r *Reader) TileCount() (int64, error) {
	var count int64
	err := sqlitex.Execute(r.conn, fmt.Sprintf("SELECT count(*) FROM %s", r.tileQuery), &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, errs.New(errs.SchemaMismatch, fmt.Errorf("count tiles: %w", err))
	}
	return count, nil
}

// EachCoordinate streams every (z, x, y) in the archive, converting the
// MBTiles TMS (flipped-Y) row addressing to plain XYZ as it goes. f is
// called once per row; returning an error stops iteration and is
// propagated to the caller.
func (r *Reader) EachCoordinate(f func(z uint8, x, y uint32) error) error {
	var cbErr error
	err := sqlitex.Execute(r.conn, fmt.Sprintf("SELECT zoom_level, tile_column, tile_row FROM %s", r.tileQuery), &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			z := uint8(stmt.ColumnInt64(0))
			x := uint32(stmt.ColumnInt64(1))
			tmsY := uint32(stmt.ColumnInt64(2))
			y := (uint32(1) << z) - 1 - tmsY
			if err := f(z, x, y); err != nil {
				cbErr = err
				return err
			}
			return nil
		},
	})
	if cbErr != nil {
		return cbErr
	}
	if err != nil {
		return errs.New(errs.SchemaMismatch, fmt.Errorf("iterate coordinates: %w", err))
	}
	return nil
}

// GetTile fetches one tile's bytes in XYZ coordinates, converting to the
// MBTiles flipped-Y row internally. ok is false if no row matches.
func (r *Reader) GetTile(z uint8, x, y uint32) (data []byte, ok bool, err error) {
	tmsY := (uint32(1) << z) - 1 - y
	stmt := r.conn.Prep(fmt.Sprintf("SELECT tile_data FROM %s WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?", r.tileQuery))
	stmt.BindInt64(1, int64(z))
	stmt.BindInt64(2, int64(x))
	stmt.BindInt64(3, int64(tmsY))
	defer stmt.Reset()

	hasRow, stepErr := stmt.Step()
	if stepErr != nil {
		return nil, false, errs.New(errs.IO, stepErr)
	}
	if !hasRow {
		return nil, false, nil
	}

	buf := make([]byte, stmt.ColumnLen(0))
	stmt.ColumnBytes(0, buf)
	return buf, true, nil
}

// EachTileSharded streams every tile whose (x XOR y) falls in this reader's
// shard, i.e. `shardIndex == (x^y) % totalShards`, converting TMS rows to
// XYZ as it goes. The concurrent prune driver's reader pool (spec.md §4.8)
// uses this to partition the tile key-space across independent read
// handles without coordinating through a shared cursor.
func (r *Reader) EachTileSharded(shardIndex, totalShards int, f func(Tile) error) error {
	var cbErr error
	err := sqlitex.Execute(r.conn, fmt.Sprintf("SELECT zoom_level, tile_column, tile_row, tile_data FROM %s", r.tileQuery), &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			z := uint8(stmt.ColumnInt64(0))
			x := uint32(stmt.ColumnInt64(1))
			tmsY := uint32(stmt.ColumnInt64(2))
			y := (uint32(1) << z) - 1 - tmsY
			if int((x^y)%uint32(totalShards)) != shardIndex {
				return nil
			}
			buf := make([]byte, stmt.ColumnLen(3))
			stmt.ColumnBytes(3, buf)
			if err := f(Tile{Z: z, X: x, Y: y, Data: buf}); err != nil {
				cbErr = err
				return err
			}
			return nil
		},
	})
	if cbErr != nil {
		return cbErr
	}
	if err != nil {
		return errs.New(errs.SchemaMismatch, fmt.Errorf("iterate sharded tiles: %w", err))
	}
	return nil
}

// CheckOutputExtension fails fast (before any I/O) if path's extension
// doesn't match the declared MBTiles output format (spec.md §4.10/§6).
func CheckOutputExtension(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".mbtiles" {
		return errs.New(errs.UnsupportedConversion, fmt.Errorf("output path %q must have a .mbtiles extension", path))
	}
	return nil
}

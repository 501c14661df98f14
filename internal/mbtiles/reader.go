package mbtiles

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/springmap/internal/tile"
)

// Reader reads tiles from an MBTiles database. It is safe for concurrent use.
type Reader struct {
	db   *sql.DB
	path string
}

// OpenReader opens an MBTiles database read-only.
func OpenReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name IN ('tiles', 'metadata')").Scan(&count)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	if count < 2 {
		db.Close()
		return nil, fmt.Errorf("%w: %s lacks tiles/metadata tables", ErrInvalid, path)
	}

	return &Reader{db: db, path: path}, nil
}

// Path returns the database file path.
func (r *Reader) Path() string { return r.path }

// Tile returns the tile at c (XYZ scheme). Gzipped payloads are inflated;
// raster images are returned as stored.
func (r *Reader) Tile(ctx context.Context, c tile.Coords) ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, c)
	}

	var data []byte
	err := r.db.QueryRowContext(ctx,
		"SELECT tile_data FROM tiles WHERE zoom_level=? AND tile_column=? AND tile_row=?",
		c.Z, c.X, c.TMSY(),
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTileNotFound, c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tile %s: %w", c, err)
	}

	if !isGzip(data) {
		return data, nil
	}
	inflated, err := gzipDecompress(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress tile %s: %w", c, err)
	}
	return inflated, nil
}

// Metadata reads the metadata table. Missing zoom levels are derived from the tiles table.
func (r *Reader) Metadata() (Metadata, error) {
	rows, err := r.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return Metadata{}, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		values[name] = value.String
	}
	if err := rows.Err(); err != nil {
		return Metadata{}, fmt.Errorf("error iterating metadata: %w", err)
	}

	meta := MetadataFromMap(values)
	if _, ok := values["maxzoom"]; !ok {
		var minZoom, maxZoom sql.NullInt64
		err := r.db.QueryRow("SELECT MIN(zoom_level), MAX(zoom_level) FROM tiles").Scan(&minZoom, &maxZoom)
		if err != nil {
			return Metadata{}, fmt.Errorf("failed to query zoom range: %w", err)
		}
		meta.MinZoom = int(minZoom.Int64)
		meta.MaxZoom = int(maxZoom.Int64)
	}
	return meta, nil
}

// Close closes the database connection.
func (r *Reader) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	return io.ReadAll(gr)
}

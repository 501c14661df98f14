package mbtiles

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/springmap/internal/tile"
)

// DefaultBatchSize is the number of tiles buffered before flushing to the database.
const DefaultBatchSize = 100

type entry struct {
	coords tile.Coords
	data   []byte
}

// WriterOptions tunes a Writer.
type WriterOptions struct {
	BatchSize int
	// Gzip compresses tile payloads; use it for vector tiles, not images.
	Gzip bool
}

// Writer writes tiles to an MBTiles database. It is safe for concurrent use.
type Writer struct {
	db    *sql.DB
	path  string
	batch []entry
	opts  WriterOptions
	count int
	mu    sync.Mutex
}

// Create creates (or opens) the database at path, initialises the schema and
// replaces the metadata.
func Create(path string, metadata Metadata, opts WriterOptions) (*Writer, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := WriteMetadata(db, metadata); err != nil {
		db.Close()
		return nil, err
	}

	return &Writer{
		db:    db,
		path:  path,
		batch: make([]entry, 0, opts.BatchSize),
		opts:  opts,
	}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT NOT NULL,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS tiles (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_data BLOB NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// WriteMetadata replaces the metadata table contents.
func WriteMetadata(db *sql.DB, meta Metadata) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.Exec("DELETE FROM metadata"); err != nil {
		return fmt.Errorf("failed to clear metadata: %w", err)
	}
	for key, value := range meta.ToMap() {
		if _, err := tx.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to insert metadata %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// WriteTile queues a tile (XYZ scheme) and flushes when the batch is full.
func (w *Writer) WriteTile(c tile.Coords, data []byte) error {
	if !c.Valid() {
		return fmt.Errorf("invalid tile coordinates %s", c)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.batch = append(w.batch, entry{coords: c, data: data})
	if len(w.batch) >= w.opts.BatchSize {
		return w.flushLocked(context.Background())
	}
	return nil
}

// Flush writes any buffered tiles.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

// Count returns the number of tiles flushed so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *Writer) flushLocked(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range w.batch {
		data := e.data
		if w.opts.Gzip && !isGzip(data) {
			if data, err = gzipCompress(data); err != nil {
				return fmt.Errorf("failed to compress tile %s: %w", e.coords, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, e.coords.Z, e.coords.X, e.coords.TMSY(), data); err != nil {
			return fmt.Errorf("failed to insert tile %s: %w", e.coords, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.count += len(w.batch)
	w.batch = w.batch[:0]
	return nil
}

// Close flushes remaining tiles and closes the database.
func (w *Writer) Close() error {
	if err := w.Flush(context.Background()); err != nil {
		w.db.Close()
		return err
	}
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)

	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

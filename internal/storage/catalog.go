package storage

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/media"
)

// A Record is one saved file in the catalog.
type Record struct {
	ID       int64
	Batch    uuid.UUID
	Source   string
	Tag      string
	Path     string
	Size     int64
	Width    int
	Height   int
	Layout   media.PixelFormat
	Seq      uint64
	Captured time.Time
	Saved    time.Time
	Chunks   map[string]float64
}

// Catalog indexes saved files in a SQLite database.
type Catalog struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenCatalog opens (and if needed creates) the catalog at path. Use
// ":memory:" for a throwaway catalog.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "storage: open catalog")
	}
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "storage: migrate catalog")
	}
	return c, nil
}

func (c *Catalog) migrate() error {
	_, err := c.db.Exec(`
	CREATE TABLE IF NOT EXISTS saves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		batch TEXT NOT NULL,
		source TEXT NOT NULL,
		tag TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		size INTEGER DEFAULT 0,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		layout TEXT NOT NULL,
		seq INTEGER NOT NULL,
		captured DATETIME,
		saved DATETIME NOT NULL,
		chunks TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_saves_batch ON saves(batch);
	CREATE INDEX IF NOT EXISTS idx_saves_source ON saves(source);
	`)
	return err
}

// Record adds the files of one FrameSet, saved as part of batch.
func (c *Catalog) Record(batch uuid.UUID, set *media.FrameSet, files []Saved, at time.Time) error {
	if len(files) == 0 {
		return nil
	}

	var chunks []byte
	if len(set.Chunks) > 0 {
		var err error
		if chunks, err = json.Marshal(set.Chunks); err != nil {
			return errors.Wrap(err, "storage: encode chunks")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return errors.Wrap(err, "storage: begin")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO saves (batch, source, tag, path, size, width, height, layout, seq, captured, saved, chunks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "storage: prepare")
	}
	defer stmt.Close()

	for _, f := range files {
		_, err := stmt.Exec(batch.String(), set.Source, f.Tag, f.Path, f.Size, f.Width, f.Height,
			string(f.Layout), set.Seq, set.Timestamp.UTC(), at.UTC(), nullString(chunks))
		if err != nil {
			return errors.Wrapf(err, "storage: insert %s", f.Path)
		}
	}
	return errors.Wrap(tx.Commit(), "storage: commit")
}

// Recent returns the n most recently saved records, newest first.
func (c *Catalog) Recent(n int) ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(`
		SELECT id, batch, source, tag, path, size, width, height, layout, seq, captured, saved, chunks
		FROM saves ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, errors.Wrap(err, "storage: query")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var batch, layout string
		var captured sql.NullTime
		var chunks sql.NullString
		err := rows.Scan(&r.ID, &batch, &r.Source, &r.Tag, &r.Path, &r.Size, &r.Width, &r.Height,
			&layout, &r.Seq, &captured, &r.Saved, &chunks)
		if err != nil {
			return nil, errors.Wrap(err, "storage: scan")
		}
		if r.Batch, err = uuid.Parse(batch); err != nil {
			return nil, errors.Wrapf(err, "storage: record %d", r.ID)
		}
		r.Layout = media.PixelFormat(layout)
		r.Captured = captured.Time
		if chunks.Valid && chunks.String != "" {
			if err := json.Unmarshal([]byte(chunks.String), &r.Chunks); err != nil {
				return nil, errors.Wrapf(err, "storage: record %d chunks", r.ID)
			}
		}
		records = append(records, r)
	}
	return records, errors.Wrap(rows.Err(), "storage: rows")
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func nullString(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: b != nil}
}

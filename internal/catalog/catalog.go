// Package catalog provides a SQLite-backed record of what the pipeline has
// done locally: which archives were downloaded (and their checksums) and
// which batches were staged. It holds no remote state; the archive MD5 is
// recorded for future version-control use, nothing consumes it yet.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS archives (
	name          TEXT PRIMARY KEY,
	md5           TEXT NOT NULL DEFAULT '',
	size          INTEGER NOT NULL DEFAULT 0,
	downloaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS batches (
	path         TEXT PRIMARY KEY,
	conversation TEXT NOT NULL,
	messages     INTEGER NOT NULL DEFAULT 0,
	staged_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_batches_conversation ON batches(conversation);
`

// ArchiveRecord is one downloaded archive.
type ArchiveRecord struct {
	Name         string
	MD5          string
	Size         int64
	DownloadedAt time.Time
}

// BatchRecord is one staged conversation batch.
type BatchRecord struct {
	Path         string
	Conversation string
	Messages     int
	StagedAt     time.Time
}

// DB wraps a sql.DB with catalog-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the catalog database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// RecordArchive upserts a downloaded archive. Re-downloading the same
// archive refreshes its checksum and timestamp instead of duplicating it.
func (db *DB) RecordArchive(rec ArchiveRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO archives (name, md5, size, downloaded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			md5           = excluded.md5,
			size          = excluded.size,
			downloaded_at = excluded.downloaded_at
	`, rec.Name, rec.MD5, rec.Size, rec.DownloadedAt)
	if err != nil {
		return fmt.Errorf("catalog: record archive: %w", err)
	}
	return nil
}

// GetArchive returns the record for an archive name, or nil when unseen.
func (db *DB) GetArchive(name string) (*ArchiveRecord, error) {
	var rec ArchiveRecord
	err := db.conn.QueryRow(`
		SELECT name, md5, size, downloaded_at FROM archives WHERE name = ?
	`, name).Scan(&rec.Name, &rec.MD5, &rec.Size, &rec.DownloadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get archive: %w", err)
	}
	return &rec, nil
}

// AllChecksums returns the MD5 recorded for every known archive.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT name, md5 FROM archives`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, md5 string
		if err := rows.Scan(&name, &md5); err != nil {
			return nil, err
		}
		out[name] = md5
	}
	return out, rows.Err()
}

// RecordBatch upserts a staged batch file.
func (db *DB) RecordBatch(rec BatchRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO batches (path, conversation, messages, staged_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			conversation = excluded.conversation,
			messages     = excluded.messages,
			staged_at    = excluded.staged_at
	`, rec.Path, rec.Conversation, rec.Messages, rec.StagedAt)
	if err != nil {
		return fmt.Errorf("catalog: record batch: %w", err)
	}
	return nil
}

// BatchesFor returns all staged batches recorded for a conversation,
// newest first.
func (db *DB) BatchesFor(conversation string) ([]BatchRecord, error) {
	rows, err := db.conn.Query(`
		SELECT path, conversation, messages, staged_at
		FROM batches WHERE conversation = ?
		ORDER BY staged_at DESC
	`, conversation)
	if err != nil {
		return nil, fmt.Errorf("catalog: batches for: %w", err)
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var rec BatchRecord
		if err := rows.Scan(&rec.Path, &rec.Conversation, &rec.Messages, &rec.StagedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

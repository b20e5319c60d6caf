package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"voucherpipe/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  driveFileId TEXT NOT NULL DEFAULT '',
  filename TEXT NOT NULL,
  hash TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'fetched',
  pdfRef TEXT NOT NULL DEFAULT '',
  jsonRef TEXT NOT NULL DEFAULT '',
  lastError TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(filename)
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertDocument(driveFileID, filename, hash, pdfRef, status string) (internal.DocumentRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO documents (driveFileId, filename, hash, status, pdfRef)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(filename) DO UPDATE SET
  driveFileId=excluded.driveFileId,
  hash=excluded.hash,
  status=excluded.status,
  pdfRef=excluded.pdfRef,
  lastError=NULL,
  updatedAt=CURRENT_TIMESTAMP
`, driveFileID, filename, hash, status, pdfRef)
	if err != nil {
		return internal.DocumentRow{}, err
	}

	row, err := d.GetDocumentByFilename(filename)
	if err != nil {
		return internal.DocumentRow{}, err
	}
	if row == nil {
		return internal.DocumentRow{}, errors.New("failed to upsert document")
	}
	return *row, nil
}

func (d *DB) GetDocumentByFilename(filename string) (*internal.DocumentRow, error) {
	var row internal.DocumentRow
	err := d.conn.QueryRow(`
SELECT id, driveFileId, filename, hash, status, pdfRef, jsonRef, lastError
FROM documents WHERE filename = ?
`, filename).Scan(
		&row.ID, &row.DriveFileID, &row.Filename, &row.Hash, &row.Status, &row.PDFRef, &row.JSONRef, &row.LastError,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListDocumentsByStatus(status string, limit int) ([]internal.DocumentRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.conn.Query(`
SELECT id, driveFileId, filename, hash, status, pdfRef, jsonRef, lastError
FROM documents WHERE status = ? ORDER BY filename ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DocumentRow
	for rows.Next() {
		var row internal.DocumentRow
		if err := rows.Scan(&row.ID, &row.DriveFileID, &row.Filename, &row.Hash, &row.Status, &row.PDFRef, &row.JSONRef, &row.LastError); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateDocumentStatus(documentID int, status string) error {
	_, err := d.conn.Exec(`UPDATE documents SET status = ?, lastError = NULL, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, documentID)
	return err
}

func (d *DB) MarkDocumentFailed(documentID int, status, lastError string) error {
	_, err := d.conn.Exec(`UPDATE documents SET status = ?, lastError = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, lastError, documentID)
	return err
}

func (d *DB) SetDocumentJSONRef(documentID int, jsonRef string) error {
	_, err := d.conn.Exec(`UPDATE documents SET jsonRef = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, jsonRef, documentID)
	return err
}

func (d *DB) InsertRun(traceID string, counts map[string]int, timings map[string]float64) error {
	countsJSON, _ := json.Marshal(counts)
	timingsJSON, _ := json.Marshal(timings)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, countsJson, timingsJson) VALUES (?, ?, ?)`, traceID, string(countsJSON), string(timingsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

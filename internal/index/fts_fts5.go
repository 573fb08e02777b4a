//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			key UNINDEXED,
			note_type,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, key, noteType, body string) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE key = ?`, key)
	_, err := tx.Exec(`INSERT INTO notes_fts (key, note_type, body) VALUES (?, ?, ?)`, key, noteType, body)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDeletePatient(tx *sql.Tx, patientID string) error {
	_, err := tx.Exec(`DELETE FROM notes_fts WHERE key IN (SELECT key FROM notes WHERE patient_id = ?)`, patientID)
	if err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

func ftsClear(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search and returns matching notes with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT n.patient_id,
		       n.visit_id,
		       n.note_id,
		       n.visit_time,
		       n.note_type,
		       snippet(notes_fts, 2, '<b>', '</b>', '...', 32)
		FROM notes_fts
		JOIN notes n ON n.key = notes_fts.key
		WHERE notes_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.PatientID, &r.VisitID, &r.NoteID, &r.VisitTime, &r.NoteType, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

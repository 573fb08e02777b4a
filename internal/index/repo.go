package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/medrec/internal/models"
)

const metaSourceChecksum = "source_checksum"

// SearchResult represents one search hit.
type SearchResult struct {
	PatientID string `json:"patient_id"`
	VisitID   string `json:"visit_id"`
	NoteID    string `json:"note_id"`
	VisitTime string `json:"visit_time"`
	NoteType  string `json:"note_type"`
	Snippet   string `json:"snippet"`
}

func rowKey(patientID, visitID, noteID string) string {
	return strings.Join([]string{patientID, visitID, noteID}, "\x1f")
}

func insertVisit(tx *sql.Tx, patientID string, v *models.Visit) error {
	stmt, err := tx.Prepare(`
		INSERT INTO notes (key, patient_id, visit_id, note_id, visit_time, note_type, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			visit_time = excluded.visit_time,
			note_type  = excluded.note_type,
			body       = excluded.body
	`)
	if err != nil {
		return fmt.Errorf("index: prepare note insert: %w", err)
	}
	defer stmt.Close()
	for _, n := range v.Notes {
		key := rowKey(patientID, v.ID, n.ID)
		if _, err := stmt.Exec(key, patientID, v.ID, n.ID, v.VisitTime, n.Type, n.Text); err != nil {
			return fmt.Errorf("index: insert note: %w", err)
		}
		if err := ftsUpsert(tx, key, n.Type, n.Text); err != nil {
			return err
		}
	}
	return nil
}

// Rebuild replaces the whole index with the notes of patients and records
// the checksum of the stores they were read from.
func (db *DB) Rebuild(patients []*models.Patient, sourceChecksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := ftsClear(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM notes`); err != nil {
		return fmt.Errorf("index: clear notes: %w", err)
	}
	for _, p := range patients {
		for _, v := range p.Visits {
			if err := insertVisit(tx, p.ID, v); err != nil {
				return err
			}
		}
	}
	if err := setMeta(tx, metaSourceChecksum, sourceChecksum); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertVisit indexes every note of v under patientID.
func (db *DB) UpsertVisit(patientID string, v *models.Visit) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertVisit(tx, patientID, v); err != nil {
		return err
	}
	return tx.Commit()
}

// DeletePatient removes every indexed note of patientID.
func (db *DB) DeletePatient(patientID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDeletePatient(tx, patientID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE patient_id = ?`, patientID); err != nil {
		return fmt.Errorf("index: delete patient: %w", err)
	}
	return tx.Commit()
}

// SourceChecksum returns the checksum recorded by the last Rebuild, or
// empty string when the index was never built.
func (db *DB) SourceChecksum() (string, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaSourceChecksum).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: source checksum: %w", err)
	}
	return v, nil
}

// SetSourceChecksum records the stores' checksum after an incremental change.
func (db *DB) SetSourceChecksum(sum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := setMeta(tx, metaSourceChecksum, sum); err != nil {
		return err
	}
	return tx.Commit()
}

// Count returns the number of indexed notes.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

func setMeta(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("index: set meta %s: %w", key, err)
	}
	return nil
}

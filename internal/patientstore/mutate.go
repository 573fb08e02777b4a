package patientstore

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/starford/medrec/internal/apperr"
	"github.com/starford/medrec/internal/models"
	"github.com/starford/medrec/internal/storage"
)

// Get returns a snapshot of the patient with id.
func (s *Store) Get(id string) (*models.Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Patients returns snapshots of every patient in first-seen order.
func (s *Store) Patients() []*models.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Patient, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.patients[id].Clone())
	}
	return out
}

// Len returns the number of patients held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// HasNote reports whether a note id is already used by any visit.
func (s *Store) HasNote(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.noteIDs[id]
	return ok
}

// Add appends visit to patient pid, creating the patient when unseen.
// visit must carry exactly one note, since the primary store holds one
// row per visit. The row goes to the primary store and the note text to
// the notes store before the in-memory map changes. A visit id already
// recorded for the patient, or a note id used anywhere, fails with
// apperr.ErrAlreadyExists.
func (s *Store) Add(pid string, visit *models.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(visit.Notes) != 1 {
		return fmt.Errorf("patientstore: visit %s has %d notes, want 1: %w", visit.ID, len(visit.Notes), apperr.ErrInvalidInput)
	}
	p, known := s.patients[pid]
	if known && p.HasVisit(visit.ID) {
		return fmt.Errorf("patientstore: visit %s for patient %s: %w", visit.ID, pid, apperr.ErrAlreadyExists)
	}
	note := visit.Notes[0]
	if _, dup := s.noteIDs[note.ID]; dup {
		return fmt.Errorf("patientstore: note %s: %w", note.ID, apperr.ErrAlreadyExists)
	}

	if err := s.appendLocked(pid, visit, note); err != nil {
		return err
	}
	// The visit row is durable at this point. A failed text append only
	// loses the text, which the load join already tolerates.
	if note.Text != "" {
		if err := s.notes.Append(s.fs, s.files.Notes, note); err != nil {
			s.logger.Warn("patientstore: note text not persisted",
				slog.String("note_id", note.ID), slog.String("error", err.Error()))
		}
	}

	if !known {
		p = models.NewPatient(pid)
		s.patients[pid] = p
		s.order = append(s.order, pid)
	}
	p.AddVisit(visit)
	s.noteIDs[note.ID] = struct{}{}
	s.refreshChecksum()
	s.logger.Debug("patientstore: visit added",
		slog.String("patient_id", pid), slog.String("visit_id", visit.ID))
	return nil
}

// appendLocked writes the row of visit and note to the primary store
// without reading it.
func (s *Store) appendLocked(pid string, visit *models.Visit, note models.Note) error {
	head, err := storage.EncodeRows(Header)
	if err != nil {
		return err
	}
	body, err := storage.EncodeRows(record(pid, visit, note))
	if err != nil {
		return err
	}
	if err := s.fs.Append(s.files.Patients, head, body); err != nil {
		return fmt.Errorf("patientstore: append: %w", err)
	}
	return nil
}

// Remove deletes patient pid from the primary store and from memory.
// It reports false when the patient is unknown; the store is untouched.
func (s *Store) Remove(pid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patients[pid]
	if !ok {
		return false, nil
	}
	if err := s.rewriteLocked(pid); err != nil {
		return false, err
	}
	delete(s.patients, pid)
	s.skipped = slices.DeleteFunc(s.skipped, func(r skippedRow) bool { return r.patientID == pid })
	for i, id := range s.order {
		if id == pid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	for _, v := range p.Visits {
		for _, n := range v.Notes {
			delete(s.noteIDs, n.ID)
		}
	}
	s.refreshChecksum()
	s.logger.Debug("patientstore: patient removed", slog.String("patient_id", pid))
	return true, nil
}

// RewriteExcluding replaces the primary store with every in-memory row
// and every row skipped at load, except those of pid. Memory is not changed, so repeating it is a no-op
// on content.
func (s *Store) RewriteExcluding(pid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rewriteLocked(pid); err != nil {
		return err
	}
	s.refreshChecksum()
	return nil
}

func (s *Store) rewriteLocked(exclude string) error {
	rows := [][]string{Header}
	for _, id := range s.order {
		if id == exclude {
			continue
		}
		p := s.patients[id]
		for _, v := range p.Visits {
			for _, n := range v.Notes {
				rows = append(rows, record(p.ID, v, n))
			}
		}
	}
	for _, r := range s.skipped {
		if r.patientID != exclude {
			rows = append(rows, r.record)
		}
	}
	data, err := storage.EncodeRows(rows...)
	if err != nil {
		return err
	}
	if err := s.fs.Write(s.files.Patients, data); err != nil {
		return fmt.Errorf("patientstore: rewrite: %w", err)
	}
	return nil
}

// Checksum returns the digest of the stores as of the last load or write.
func (s *Store) Checksum() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checksum
}

// Package patientstore keeps the in-memory patient map in sync with the
// primary flat store. Every mutation is written through to disk before it
// is visible in memory.
package patientstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/starford/medrec/internal/apperr"
	"github.com/starford/medrec/internal/checksum"
	"github.com/starford/medrec/internal/models"
	"github.com/starford/medrec/internal/notes"
	"github.com/starford/medrec/internal/storage"
)

// Primary store columns, in the order written to a fresh file.
const (
	ColPatientID      = "Patient_ID"
	ColVisitID        = "Visit_ID"
	ColVisitTime      = "Visit_time"
	ColDepartment     = "Visit_department"
	ColGender         = "Gender"
	ColRace           = "Race"
	ColAge            = "Age"
	ColEthnicity      = "Ethnicity"
	ColInsurance      = "Insurance"
	ColZipCode        = "Zip_code"
	ColChiefComplaint = "Chief_complaint"
	ColNoteID         = "Note_ID"
	ColNoteType       = "Note_type"
)

// Header is the primary store column order.
var Header = []string{
	ColPatientID, ColVisitID, ColVisitTime, ColDepartment,
	ColGender, ColRace, ColAge, ColEthnicity, ColInsurance,
	ColZipCode, ColChiefComplaint, ColNoteID, ColNoteType,
}

// Age policies for rows whose Age column is not a non-negative integer.
const (
	AgePolicySkip  = "skip"
	AgePolicyAbort = "abort"
)

// Files names the stores inside the data directory.
type Files struct {
	Patients string
	Notes    string
}

// LoadReport summarises one load pass.
type LoadReport struct {
	Rows     int
	Patients int
	Visits   int
	Skipped  int
	Missing  bool
}

// Store owns the patient map for one session.
type Store struct {
	mu        sync.RWMutex
	fs        storage.Provider
	files     Files
	agePolicy string
	logger    *slog.Logger

	patients map[string]*models.Patient
	order    []string
	notes    notes.Index
	noteIDs  map[string]struct{}
	checksum string

	// Rows left out of memory by the skip policy. Rewrites emit them
	// again so the primary store never loses them.
	skipped []skippedRow
}

type skippedRow struct {
	patientID string
	record    []string
}

// Option configures a Store.
type Option func(*Store)

// WithAgePolicy selects how rows with a malformed age are handled.
func WithAgePolicy(policy string) Option {
	return func(s *Store) {
		s.agePolicy = policy
	}
}

// New creates an empty store. Call Load to populate it.
func New(p storage.Provider, files Files, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		fs:        p,
		files:     files,
		agePolicy: AgePolicySkip,
		logger:    logger,
		patients:  make(map[string]*models.Patient),
		notes:     make(notes.Index),
		noteIDs:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load rebuilds the in-memory map from the notes and primary stores.
// A missing primary store yields an empty map. With AgePolicyAbort a
// malformed age fails the whole load and the previous state is kept.
func (s *Store) Load() (LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Reload reloads only when the stores changed since the last load or
// write made by this store. It reports whether a load happened.
func (s *Store) Reload() (bool, LoadReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, err := checksum.Files(s.fs, s.files.Patients, s.files.Notes)
	if err != nil {
		return false, LoadReport{}, fmt.Errorf("patientstore: checksum: %w", err)
	}
	if sum == s.checksum {
		return false, LoadReport{}, nil
	}
	rep, err := s.loadLocked()
	return err == nil, rep, err
}

func (s *Store) loadLocked() (LoadReport, error) {
	ix := notes.Load(s.fs, s.files.Notes, s.logger)
	res, err := s.readPrimary(ix)
	if err != nil {
		return res.report, err
	}
	s.patients = res.patients
	s.order = res.order
	s.notes = ix
	s.noteIDs = res.noteIDs
	s.skipped = res.skipped
	s.refreshChecksum()
	s.logger.Info("patientstore: loaded",
		slog.Int("rows", res.report.Rows),
		slog.Int("patients", res.report.Patients),
		slog.Int("visits", res.report.Visits),
		slog.Int("skipped", res.report.Skipped))
	return res.report, nil
}

type loadResult struct {
	patients map[string]*models.Patient
	order    []string
	noteIDs  map[string]struct{}
	skipped  []skippedRow
	report   LoadReport
}

func (s *Store) readPrimary(ix notes.Index) (loadResult, error) {
	res := loadResult{
		patients: make(map[string]*models.Patient),
		noteIDs:  make(map[string]struct{}),
	}
	t, err := storage.ReadTable(s.fs, s.files.Patients)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("patientstore: data file not found", slog.String("file", s.files.Patients))
			res.report.Missing = true
			return res, nil
		}
		return res, fmt.Errorf("patientstore: read: %w", err)
	}
	if len(t.Header) == 0 {
		s.logger.Warn("patientstore: data file is empty", slog.String("file", s.files.Patients))
		return res, nil
	}
	if err := t.Require(Header...); err != nil {
		return res, fmt.Errorf("patientstore: %w", err)
	}

	for i, row := range t.Rows {
		line := i + 2 // header is line 1
		res.report.Rows++

		visit, err := visitFromRow(t, row)
		if err != nil {
			if s.agePolicy == AgePolicyAbort {
				return res, fmt.Errorf("patientstore: line %d: %w", line, err)
			}
			s.logger.Warn("patientstore: row skipped",
				slog.Int("line", line), slog.String("error", err.Error()))
			res.report.Skipped++
			res.skipped = append(res.skipped, skippedRow{
				patientID: t.Get(row, ColPatientID),
				record:    rawRecord(t, row),
			})
			continue
		}

		noteID := t.Get(row, ColNoteID)
		text, _ := ix.Text(noteID)
		visit.AddNote(models.NewNote(noteID, t.Get(row, ColNoteType), text))

		pid := t.Get(row, ColPatientID)
		p, ok := res.patients[pid]
		if !ok {
			p = models.NewPatient(pid)
			res.patients[pid] = p
			res.order = append(res.order, pid)
		}
		if p.HasVisit(visit.ID) {
			s.logger.Warn("patientstore: duplicate visit id",
				slog.Int("line", line), slog.String("patient_id", pid), slog.String("visit_id", visit.ID))
		}
		if _, dup := res.noteIDs[noteID]; dup {
			s.logger.Warn("patientstore: duplicate note id",
				slog.Int("line", line), slog.String("note_id", noteID))
		}
		res.noteIDs[noteID] = struct{}{}
		p.AddVisit(visit)
		res.report.Visits++
	}
	res.report.Patients = len(res.patients)
	return res, nil
}

func visitFromRow(t *storage.Table, row []string) (*models.Visit, error) {
	raw := t.Get(row, ColAge)
	age, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || age < 0 {
		return nil, fmt.Errorf("invalid age %q: %w", raw, apperr.ErrInvalidInput)
	}
	return &models.Visit{
		ID:             t.Get(row, ColVisitID),
		VisitTime:      t.Get(row, ColVisitTime),
		Department:     t.Get(row, ColDepartment),
		Gender:         t.Get(row, ColGender),
		Race:           t.Get(row, ColRace),
		Age:            age,
		Ethnicity:      t.Get(row, ColEthnicity),
		Insurance:      t.Get(row, ColInsurance),
		ZipCode:        t.Get(row, ColZipCode),
		ChiefComplaint: t.Get(row, ColChiefComplaint),
	}, nil
}

// rawRecord reorders row into Header order without interpreting it.
func rawRecord(t *storage.Table, row []string) []string {
	out := make([]string, len(Header))
	for i, col := range Header {
		out[i] = t.Get(row, col)
	}
	return out
}

func record(pid string, v *models.Visit, n models.Note) []string {
	return []string{
		pid, v.ID, v.VisitTime, v.Department,
		v.Gender, v.Race, strconv.Itoa(v.Age), v.Ethnicity, v.Insurance,
		v.ZipCode, v.ChiefComplaint, n.ID, n.Type,
	}
}

// refreshChecksum must be called with the write lock held.
func (s *Store) refreshChecksum() {
	sum, err := checksum.Files(s.fs, s.files.Patients, s.files.Notes)
	if err != nil {
		s.logger.Warn("patientstore: checksum failed", slog.String("error", err.Error()))
		sum = ""
	}
	s.checksum = sum
}

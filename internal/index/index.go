package index

import "github.com/starford/medrec/internal/models"

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	Rebuild(patients []*models.Patient, sourceChecksum string) error
	UpsertVisit(patientID string, v *models.Visit) error
	DeletePatient(patientID string) error
	SourceChecksum() (string, error)
	SetSourceChecksum(sum string) error
	Count() (int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Source is what Sync reads records from.
type Source interface {
	Patients() []*models.Patient
	Checksum() string
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)

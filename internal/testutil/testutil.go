// Package testutil provides shared test helpers for setting up data
// directories and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/medrec/internal/index"
	"github.com/starford/medrec/internal/storage"
)

// File names used by the fixtures.
const (
	PatientsFile    = "Patient_data.csv"
	NotesFile       = "Notes.csv"
	CredentialsFile = "Credentials.csv"
	UsageLogFile    = "usage_log.csv"
)

// PatientsHeader is the primary store header line.
const PatientsHeader = "Patient_ID,Visit_ID,Visit_time,Visit_department,Gender,Race,Age,Ethnicity,Insurance,Zip_code,Chief_complaint,Note_ID,Note_type\n"

// Credentials is a credential store covering every role.
const Credentials = "username,password,role\n" +
	"drsmith,pw1,clinician\n" +
	"nurse1,pw2,nurse\n" +
	"admin1,pw3,admin\n" +
	"boss,pw4,management\n"

// Logger returns a logger that discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "medrec-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestData creates a temporary data directory holding the given files and
// returns it with a storage provider rooted there.
func TestData(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Sample returns the standard fixture: two patients, three visits, a notes
// store covering two of the three notes and the credential store.
func Sample() map[string]string {
	return map[string]string{
		PatientsFile: PatientsHeader +
			"P1,V1,01/05/2021,ER,M,White,45,Hispanic,Aetna,10001,Chest pain,N1,Progress\n" +
			"P1,V2,02/10/2021,Cardio,M,White,45,Hispanic,Aetna,10001,Follow-up,N2,Consult\n" +
			"P2,V3,01/05/2021,ER,F,Asian,30,Non-Hispanic,Medicare,10002,Fever,N3,Triage\n",
		NotesFile: "Note_ID,Note_text\n" +
			"N1,Patient stable\n" +
			"N2,\"Echo normal, continue meds\"\n",
		CredentialsFile: Credentials,
	}
}

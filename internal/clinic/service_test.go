package clinic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/medrec/internal/access"
	"github.com/starford/medrec/internal/apperr"
	"github.com/starford/medrec/internal/index"
	"github.com/starford/medrec/internal/patientstore"
	"github.com/starford/medrec/internal/sse"
	"github.com/starford/medrec/internal/storage"
	"github.com/starford/medrec/internal/testutil"
	"github.com/starford/medrec/internal/usagelog"
)

var (
	clinician  = &access.User{Username: "drsmith", Role: access.RoleClinician}
	nurse      = &access.User{Username: "nurse1", Role: access.RoleNurse}
	admin      = &access.User{Username: "admin1", Role: access.RoleAdmin}
	management = &access.User{Username: "boss", Role: access.RoleManagement}
)

var files = patientstore.Files{Patients: testutil.PatientsFile, Notes: testutil.NotesFile}

type env struct {
	dir   string
	fs    *storage.FS
	store *patientstore.Store
	db    *index.DB
	svc   *Service
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	dir, fs := testutil.TestData(t, testutil.Sample())
	logger := testutil.Logger()
	store := patientstore.New(fs, files, logger)
	if _, err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	db := testutil.TestDB(t)
	if err := index.Sync(db, store, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	usage := usagelog.New(fs, testutil.UsageLogFile, logger)
	opts = append([]Option{WithIndex(db)}, opts...)
	svc := NewService(store, fs, testutil.CredentialsFile, usage, logger, opts...)
	return &env{dir: dir, fs: fs, store: store, db: db, svc: svc}
}

func (e *env) usageLog(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.dir, testutil.UsageLogFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatal(err)
	}
	return string(data)
}

// sequence returns an id generator that hands out ids in order, per length.
func sequence(ids map[int][]string) func(int) string {
	return func(n int) string {
		next := ids[n][0]
		ids[n] = ids[n][1:]
		return next
	}
}

var visitIn = VisitInput{
	Date:           "2021-03-15",
	Department:     "Neuro",
	Gender:         "F",
	Race:           "Black",
	Age:            52,
	Ethnicity:      "Non-Hispanic",
	Insurance:      "Cigna",
	ZipCode:        "10003",
	ChiefComplaint: "Headache",
}

func TestAuthenticate(t *testing.T) {
	e := newEnv(t)
	u, ok := e.svc.Authenticate(context.Background(), "drsmith", "pw1")
	if !ok || u.Role != access.RoleClinician {
		t.Fatalf("Authenticate = %+v, %v", u, ok)
	}
	if _, ok := e.svc.Authenticate(context.Background(), "drsmith", "nope"); ok {
		t.Error("wrong password accepted")
	}
}

func TestAdd_WritesThroughAndRoundTrips(t *testing.T) {
	e := newEnv(t, WithIDGenerator(sequence(map[int][]string{
		VisitIDLen: {"abcd1234"},
		NoteIDLen:  {"ef5678"},
	})))

	v, err := e.svc.Add(context.Background(), nurse, "P1", visitIn, NoteInput{Type: "Progress", Text: "Migraine, prescribed rest"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if v.ID != "abcd1234" || v.VisitTime != "03/15/2021" || v.Notes[0].ID != "ef5678" {
		t.Errorf("unexpected visit %+v", v)
	}

	fresh := patientstore.New(e.fs, files, testutil.Logger())
	if _, err := fresh.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	p, ok := fresh.Get("P1")
	if !ok || len(p.Visits) != 3 {
		t.Fatalf("reloaded P1 = %+v", p)
	}
	got := p.Visits[2]
	if got.Department != "Neuro" || got.Age != 52 || got.Notes[0].Text != "Migraine, prescribed rest" || got.Notes[0].Type != "Progress" {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if !strings.Contains(e.usageLog(t), "nurse1,nurse,") || !strings.Contains(e.usageLog(t), "add_patient: P1") {
		t.Errorf("usage log = %q", e.usageLog(t))
	}

	hits, err := e.db.Search("Migraine", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].VisitID != "abcd1234" {
		t.Errorf("index hits = %+v", hits)
	}
	sum, _ := e.db.SourceChecksum()
	if sum != e.store.Checksum() {
		t.Errorf("index checksum %q, store %q", sum, e.store.Checksum())
	}
}

func TestAdd_NewPatient(t *testing.T) {
	e := newEnv(t)
	if _, err := e.svc.Add(context.Background(), clinician, "P7", visitIn, NoteInput{Text: "first visit"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	p, ok := e.store.Get("P7")
	if !ok || len(p.Visits) != 1 {
		t.Fatalf("P7 = %+v", p)
	}
	if n := p.Visits[0].Notes[0]; n.Type != "Unknown" || len(n.ID) != NoteIDLen || len(p.Visits[0].ID) != VisitIDLen {
		t.Errorf("generated note %+v visit %q", n, p.Visits[0].ID)
	}
}

func TestAdd_RetriesIDCollision(t *testing.T) {
	e := newEnv(t, WithIDGenerator(sequence(map[int][]string{
		VisitIDLen: {"V1", "V9"},
		NoteIDLen:  {"N1", "N2", "N9"},
	})))
	v, err := e.svc.Add(context.Background(), nurse, "P1", visitIn, NoteInput{Text: "x"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if v.ID != "V9" || v.Notes[0].ID != "N9" {
		t.Errorf("ids = %s/%s, want V9/N9", v.ID, v.Notes[0].ID)
	}
}

func TestAdd_Forbidden(t *testing.T) {
	e := newEnv(t)
	for _, u := range []*access.User{admin, management} {
		_, err := e.svc.Add(context.Background(), u, "P1", visitIn, NoteInput{Text: "x"})
		if !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("%s: err = %v, want ErrForbidden", u.Role, err)
		}
	}
	if p, _ := e.store.Get("P1"); len(p.Visits) != 2 {
		t.Errorf("forbidden add changed the store")
	}
}

func TestAdd_InvalidInput(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	bad := visitIn
	bad.Date = "03/15/2021"
	if _, err := e.svc.Add(ctx, nurse, "P1", bad, NoteInput{}); !errors.Is(err, apperr.ErrInvalidDate) {
		t.Errorf("bad date err = %v", err)
	}

	bad = visitIn
	bad.Age = -3
	if _, err := e.svc.Add(ctx, nurse, "P1", bad, NoteInput{}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("negative age err = %v", err)
	}

	if _, err := e.svc.Add(ctx, nurse, "  ", visitIn, NoteInput{}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("blank pid err = %v", err)
	}
}

func TestAdd_AgeHasNoUpperBound(t *testing.T) {
	e := newEnv(t)
	in := visitIn
	in.Age = 212
	v, err := e.svc.Add(context.Background(), nurse, "P2", in, NoteInput{Type: "Progress"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got, _ := e.store.Get("P2"); got.Visits[len(got.Visits)-1].Age != 212 || v.Age != 212 {
		t.Errorf("age not stored as given: %+v", v)
	}
}

func TestRemove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if err := e.svc.Remove(ctx, clinician, "P1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := e.store.Get("P1"); ok {
		t.Error("P1 still in memory")
	}
	if hits, _ := e.db.Search("stable", 10); len(hits) != 0 {
		t.Errorf("removed notes still indexed: %+v", hits)
	}

	err := e.svc.Remove(ctx, clinician, "P1")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second remove err = %v, want ErrNotFound", err)
	}
	log := e.usageLog(t)
	if !strings.Contains(log, "remove_patient: P1\n") || !strings.Contains(log, "remove_patient: P1 NOT_FOUND") {
		t.Errorf("usage log = %q", log)
	}
}

func TestRetrieve(t *testing.T) {
	e := newEnv(t)
	s, err := e.svc.Retrieve(context.Background(), nurse, "P1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !strings.HasPrefix(s.Info, "Patient ID: P1\n") || !strings.Contains(s.Info, "Patient stable") {
		t.Errorf("info = %q", s.Info)
	}
	if s.MostRecentVisit == nil || s.MostRecentVisit.ID != "V2" {
		t.Errorf("most recent = %+v", s.MostRecentVisit)
	}

	if _, err := e.svc.Retrieve(context.Background(), nurse, "P404"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := e.svc.Retrieve(context.Background(), admin, "P1"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("admin err = %v, want ErrForbidden", err)
	}
	if !strings.Contains(e.usageLog(t), "retrieve_patient: P404 NOT_FOUND") {
		t.Errorf("usage log = %q", e.usageLog(t))
	}
}

func TestCountVisits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, u := range []*access.User{clinician, nurse, admin, management} {
		n, err := e.svc.CountVisits(ctx, u, "2021-01-05")
		if err != nil {
			t.Fatalf("%s: %v", u.Role, err)
		}
		if n != 2 {
			t.Errorf("%s: count = %d, want 2", u.Role, n)
		}
	}
	if n, _ := e.svc.CountVisits(ctx, admin, "2021-01-06"); n != 0 {
		t.Errorf("count on empty day = %d", n)
	}
	if _, err := e.svc.CountVisits(ctx, admin, "01/05/2021"); !errors.Is(err, apperr.ErrInvalidDate) {
		t.Errorf("err = %v, want ErrInvalidDate", err)
	}
	if !strings.Contains(e.usageLog(t), "admin1,admin,") || !strings.Contains(e.usageLog(t), "count_visits: 2021-01-05") {
		t.Errorf("usage log = %q", e.usageLog(t))
	}
}

func TestNotesOn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	notes, err := e.svc.NotesOn(ctx, clinician, "P1", "2021-01-05")
	if err != nil {
		t.Fatalf("NotesOn: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != "N1" || notes[0].Text != "Patient stable" {
		t.Errorf("notes = %+v", notes)
	}
	notes, err = e.svc.NotesOn(ctx, clinician, "P1", "2022-01-01")
	if err != nil || notes == nil || len(notes) != 0 {
		t.Errorf("no-match notes = %+v, %v", notes, err)
	}
	if _, err := e.svc.NotesOn(ctx, clinician, "P404", "2021-01-05"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := e.svc.NotesOn(ctx, management, "P1", "2021-01-05"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
	if !strings.Contains(e.usageLog(t), "view_note: P1 on 01/05/2021") {
		t.Errorf("usage log = %q", e.usageLog(t))
	}
}

func TestSearchNotes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hits, err := e.svc.SearchNotes(ctx, nurse, "Echo", 10)
	if err != nil {
		t.Fatalf("SearchNotes: %v", err)
	}
	if len(hits) != 1 || hits[0].NoteID != "N2" {
		t.Errorf("hits = %+v", hits)
	}
	if _, err := e.svc.SearchNotes(ctx, nurse, " ", 10); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("blank query err = %v", err)
	}
	if _, err := e.svc.SearchNotes(ctx, admin, "Echo", 10); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("admin err = %v", err)
	}
}

func TestStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	rep, err := e.svc.Stats(ctx, management)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if rep.Visits != 3 {
		t.Errorf("visits = %d, want 3", rep.Visits)
	}
	if _, err := e.svc.Stats(ctx, clinician); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("clinician err = %v", err)
	}
	if !strings.Contains(e.usageLog(t), "boss,management,") || !strings.Contains(e.usageLog(t), "generate_statistics") {
		t.Errorf("usage log = %q", e.usageLog(t))
	}
}

func TestReload_PicksUpExternalEdit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	loaded, err := e.svc.Reload(ctx)
	if err != nil || loaded {
		t.Fatalf("unchanged reload = %v, %v", loaded, err)
	}

	extra := "P3,V4,01/05/2021,ER,F,White,70,Hispanic,Aetna,10004,Fall,N4,Triage\n"
	f, err := os.OpenFile(filepath.Join(e.dir, testutil.PatientsFile), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(extra); err != nil {
		t.Fatal(err)
	}
	f.Close()

	loaded, err = e.svc.Reload(ctx)
	if err != nil || !loaded {
		t.Fatalf("changed reload = %v, %v", loaded, err)
	}
	if n, _ := e.svc.CountVisits(ctx, admin, "2021-01-05"); n != 3 {
		t.Errorf("count after reload = %d, want 3", n)
	}
	if n, _ := e.db.Count(); n != 4 {
		t.Errorf("indexed notes = %d, want 4", n)
	}
}

func TestEventsPublished(t *testing.T) {
	b := sse.NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	e := newEnv(t, WithBroker(b))
	if err := e.svc.Remove(context.Background(), nurse, "P2"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	var got []string
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case msg := <-ch:
			got = append(got, string(msg))
		case <-timeout:
			t.Fatalf("events = %q", got)
		}
	}
	if !strings.Contains(got[0], "event: patient.removed") || !strings.Contains(got[0], `"patient_id":"P2"`) {
		t.Errorf("first event = %q", got[0])
	}
	if !strings.Contains(got[1], "event: counts.updated") || !strings.Contains(got[1], `"patients":1`) {
		t.Errorf("second event = %q", got[1])
	}
}

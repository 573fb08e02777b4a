package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/starford/medrec/internal/access"
	"github.com/starford/medrec/internal/clinic"
	"github.com/starford/medrec/internal/patientstore"
	"github.com/starford/medrec/internal/testutil"
	"github.com/starford/medrec/internal/usagelog"
)

func testService(t *testing.T) (*clinic.Service, *patientstore.Store) {
	t.Helper()
	_, fs := testutil.TestData(t, testutil.Sample())
	logger := testutil.Logger()
	store := patientstore.New(fs, patientstore.Files{Patients: testutil.PatientsFile, Notes: testutil.NotesFile}, logger)
	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}
	return clinic.NewService(store, fs, testutil.CredentialsFile, usagelog.New(fs, testutil.UsageLogFile, logger), logger), store
}

func run(t *testing.T, svc *clinic.Service, u *access.User, input string) string {
	t.Helper()
	var out bytes.Buffer
	if err := New(svc, u, strings.NewReader(input), &out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

var nurse = &access.User{Username: "nurse1", Role: access.RoleNurse}

func TestMenu_RetrieveAndStop(t *testing.T) {
	svc, _ := testService(t)
	out := run(t, svc, nurse, "retrieve_patient\nP2\nretrieve_patient\nP9\nStop\nretrieve_patient\nP1\n")

	if !strings.Contains(out, "Patient ID: P2\nVisit ID: V3") {
		t.Errorf("missing P2 record in %q", out)
	}
	if !strings.Contains(out, "Patient not found.") {
		t.Errorf("missing not-found message in %q", out)
	}
	if strings.Contains(out, "Patient ID: P1") {
		t.Error("input after Stop was processed")
	}
}

func TestMenu_AddPatient(t *testing.T) {
	svc, store := testService(t)
	input := strings.Join([]string{
		"add_patient", "P3", "2022-06-01", "ER", "F", "White", "33",
		"Hispanic", "Aetna", "10009", "Cough", "Triage", "Mild cough",
		"Stop",
	}, "\n") + "\n"
	out := run(t, svc, nurse, input)

	if !strings.Contains(out, "Visit added.") {
		t.Fatalf("output = %q", out)
	}
	p, ok := store.Get("P3")
	if !ok || len(p.Visits) != 1 {
		t.Fatalf("P3 = %+v", p)
	}
	v := p.Visits[0]
	if v.VisitTime != "06/01/2022" || v.Age != 33 || v.Notes[0].Text != "Mild cough" || v.Notes[0].Type != "Triage" {
		t.Errorf("visit = %+v", v)
	}
}

func TestMenu_AddPatientBadAge(t *testing.T) {
	svc, store := testService(t)
	input := strings.Join([]string{
		"add_patient", "P3", "2022-06-01", "ER", "F", "White", "thirty",
		"Hispanic", "Aetna", "10009", "Cough", "Triage", "Mild cough",
	}, "\n") + "\n"
	out := run(t, svc, nurse, input)
	if !strings.Contains(out, "Invalid age.") {
		t.Errorf("output = %q", out)
	}
	if _, ok := store.Get("P3"); ok {
		t.Error("patient added despite bad age")
	}
}

func TestMenu_RemoveCountAndViewNote(t *testing.T) {
	svc, store := testService(t)
	input := "view_note\nP1\n2021-02-10\n" +
		"view_note\nP1\n2021-02-11\n" +
		"view_note\nP1\n02/10/2021\n" +
		"remove_patient\nP1\n" +
		"count_visits\n2021-01-05\n" +
		"Stop\n"
	out := run(t, svc, nurse, input)

	for _, want := range []string{
		"Note ID: N2, Type: Consult\nEcho normal, continue meds",
		"No notes found on that date.",
		"Invalid date format.",
		"Patient removed.",
		"Total visits on 2021-01-05: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if _, ok := store.Get("P1"); ok {
		t.Error("P1 still present")
	}
}

func TestMenu_InsufficientPermission(t *testing.T) {
	svc, _ := testService(t)
	guest := &access.User{Username: "temp", Role: "intern"}
	out := run(t, svc, guest, "retrieve_patient\nbogus\nStop\n")
	if !strings.Contains(out, "Invalid action or insufficient permission.") {
		t.Errorf("output = %q", out)
	}
}

func TestAdminCountsOnceAndExits(t *testing.T) {
	svc, _ := testService(t)
	admin := &access.User{Username: "admin1", Role: access.RoleAdmin}
	out := run(t, svc, admin, "2021/01/05\n2021-01-05\nretrieve_patient\n")

	if !strings.Contains(out, "Invalid format. Please enter date as YYYY-MM-DD") {
		t.Errorf("missing retry message in %q", out)
	}
	if !strings.Contains(out, "Total visits on 2021-01-05: 2") {
		t.Errorf("missing count in %q", out)
	}
	if strings.Contains(out, "Enter action") {
		t.Error("admin should not see the menu")
	}
}

func TestManagementGetsReport(t *testing.T) {
	svc, _ := testService(t)
	boss := &access.User{Username: "boss", Role: access.RoleManagement}
	out := run(t, svc, boss, "")

	for _, want := range []string{"since:", "2020-01-01", "visits: 3", "gender:", "age_group:"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestEOFEndsSession(t *testing.T) {
	svc, _ := testService(t)
	out := run(t, svc, nurse, "add_patient\nP3\n")
	if strings.Contains(out, "Visit added.") {
		t.Error("partial add should not complete")
	}
}

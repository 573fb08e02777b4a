package models

import "testing"

func TestAllInfo(t *testing.T) {
	p := NewPatient("P1")
	v := &Visit{
		ID: "V1", VisitTime: "01/05/2021", Department: "ER", Gender: "M",
		Race: "White", Age: 45, Ethnicity: "Hispanic", Insurance: "Aetna",
		ZipCode: "10001", ChiefComplaint: "Chest pain",
	}
	v.AddNote(NewNote("N1", "Progress", "Patient stable"))
	v.AddNote(NewNote("N2", "", ""))
	p.AddVisit(v)

	want := "Patient ID: P1\n" +
		"Visit ID: V1, Time: 01/05/2021, Dept: ER, Gender: M, Race: White, Age: 45, " +
		"Ethnicity: Hispanic, Insurance: Aetna, Zip: 10001, Complaint: Chest pain\n" +
		"Notes:\n" +
		"Note ID: N1, Type: Progress\nPatient stable\n" +
		"Note ID: N2, Type: Unknown\n" +
		"\n"
	if got := p.AllInfo(); got != want {
		t.Errorf("AllInfo =\n%q\nwant\n%q", got, want)
	}
}

func TestAllInfo_NoVisits(t *testing.T) {
	if got := NewPatient("P9").AllInfo(); got != "Patient ID: P9\n" {
		t.Errorf("AllInfo = %q", got)
	}
}

func TestRemoveAllVisits(t *testing.T) {
	p := NewPatient("P1")
	p.AddVisit(&Visit{ID: "V1"})
	p.AddVisit(&Visit{ID: "V2"})
	p.RemoveAllVisits()
	if len(p.Visits) != 0 {
		t.Errorf("visits = %d after clear", len(p.Visits))
	}
	p.AddVisit(&Visit{ID: "V3"})
	if len(p.Visits) != 1 || !p.HasVisit("V3") || p.HasVisit("V1") {
		t.Errorf("visits = %+v", p.Visits)
	}
}

// Package models defines the clinical record types: Patient owns Visits,
// Visit owns Notes.
package models

import (
	"fmt"
	"strings"
)

// UnknownNoteType is assigned when a source carries no note type.
const UnknownNoteType = "Unknown"

// Note is a single clinical note attached to a visit.
type Note struct {
	ID   string `json:"note_id"`
	Type string `json:"note_type"`
	Text string `json:"note_text"`
}

// NewNote builds a note, defaulting an empty type to UnknownNoteType.
func NewNote(id, typ, text string) Note {
	if typ == "" {
		typ = UnknownNoteType
	}
	return Note{ID: id, Type: typ, Text: text}
}

func (n Note) String() string {
	return fmt.Sprintf("Note ID: %s, Type: %s\n%s", n.ID, n.Type, n.Text)
}

// Visit is one encounter of a patient. VisitTime holds the stored
// MM/DD/YYYY date string; it carries no time of day.
type Visit struct {
	ID             string `json:"visit_id"`
	VisitTime      string `json:"visit_time"`
	Department     string `json:"department"`
	Gender         string `json:"gender"`
	Race           string `json:"race"`
	Age            int    `json:"age"`
	Ethnicity      string `json:"ethnicity"`
	Insurance      string `json:"insurance"`
	ZipCode        string `json:"zip_code"`
	ChiefComplaint string `json:"chief_complaint"`
	Notes          []Note `json:"notes"`
}

// AddNote appends n to the visit's notes.
func (v *Visit) AddNote(n Note) {
	v.Notes = append(v.Notes, n)
}

func (v *Visit) String() string {
	notes := make([]string, len(v.Notes))
	for i, n := range v.Notes {
		notes[i] = n.String()
	}
	return fmt.Sprintf("Visit ID: %s, Time: %s, Dept: %s, Gender: %s, "+
		"Race: %s, Age: %d, Ethnicity: %s, Insurance: %s, "+
		"Zip: %s, Complaint: %s\nNotes:\n%s",
		v.ID, v.VisitTime, v.Department, v.Gender,
		v.Race, v.Age, v.Ethnicity, v.Insurance,
		v.ZipCode, v.ChiefComplaint, strings.Join(notes, "\n"))
}

// Patient groups every visit recorded under one patient id.
type Patient struct {
	ID     string   `json:"patient_id"`
	Visits []*Visit `json:"visits"`
}

// NewPatient returns a patient with no visits.
func NewPatient(id string) *Patient {
	return &Patient{ID: id}
}

// AddVisit appends v to the patient's visits.
func (p *Patient) AddVisit(v *Visit) {
	p.Visits = append(p.Visits, v)
}

// RemoveAllVisits clears the visit list in place.
func (p *Patient) RemoveAllVisits() {
	p.Visits = nil
}

// AllInfo renders the patient id followed by every visit and its notes,
// in visit order.
func (p *Patient) AllInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient ID: %s\n", p.ID)
	for _, v := range p.Visits {
		b.WriteString(v.String())
		b.WriteString("\n")
	}
	return b.String()
}

// HasVisit reports whether a visit with id is already recorded.
func (p *Patient) HasVisit(id string) bool {
	for _, v := range p.Visits {
		if v.ID == id {
			return true
		}
	}
	return false
}

// Clone returns a copy of p whose visit slice can be read while the
// original keeps growing. Visits are shared; they are not modified once
// attached to a patient.
func (p *Patient) Clone() *Patient {
	visits := make([]*Visit, len(p.Visits))
	copy(visits, p.Visits)
	return &Patient{ID: p.ID, Visits: visits}
}

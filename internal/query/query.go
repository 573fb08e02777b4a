// Package query answers date-based questions over the in-memory records.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/medrec/internal/apperr"
	"github.com/starford/medrec/internal/models"
)

// Date layouts. Stored dates are parsed leniently (one or two digit month
// and day) and always written zero-padded.
const (
	InputLayout      = "2006-01-02"
	StoreLayout      = "01/02/2006"
	storeParseLayout = "1/2/2006"
)

// ParseInputDate parses a user-facing YYYY-MM-DD date.
func ParseInputDate(s string) (time.Time, error) {
	d, err := time.Parse(InputLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", s, apperr.ErrInvalidDate)
	}
	return d, nil
}

// ParseStoreDate parses a stored MM/DD/YYYY date.
func ParseStoreDate(s string) (time.Time, error) {
	return time.Parse(storeParseLayout, strings.TrimSpace(s))
}

// FormatStoreDate renders d as MM/DD/YYYY.
func FormatStoreDate(d time.Time) string {
	return d.Format(StoreLayout)
}

// InputToStore converts a YYYY-MM-DD string to its stored MM/DD/YYYY form.
func InputToStore(s string) (string, error) {
	d, err := ParseInputDate(s)
	if err != nil {
		return "", err
	}
	return FormatStoreDate(d), nil
}

// StoreToInput converts a stored date to YYYY-MM-DD.
func StoreToInput(s string) (string, error) {
	d, err := ParseStoreDate(s)
	if err != nil {
		return "", err
	}
	return d.Format(InputLayout), nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// visitOn reports whether v is dated on day. Unparseable dates never match.
func visitOn(v *models.Visit, day time.Time) bool {
	d, err := ParseStoreDate(v.VisitTime)
	if err != nil {
		return false
	}
	return sameDay(d, day)
}

// CountVisitsOn counts visits across all patients dated on day. Visits
// whose stored date does not parse are skipped silently.
func CountVisitsOn(patients []*models.Patient, day time.Time) int {
	n := 0
	for _, p := range patients {
		for _, v := range p.Visits {
			if visitOn(v, day) {
				n++
			}
		}
	}
	return n
}

// NotesOn returns, in visit order, every note of the patient's visits
// dated on day. No match yields an empty slice.
func NotesOn(p *models.Patient, day time.Time) []models.Note {
	out := []models.Note{}
	for _, v := range p.Visits {
		if visitOn(v, day) {
			out = append(out, v.Notes...)
		}
	}
	return out
}

// MostRecentVisit returns the patient's latest dated visit. Visits with
// an unparseable date are ignored; ties keep the earlier visit. It returns
// nil when no visit has a usable date.
func MostRecentVisit(p *models.Patient) *models.Visit {
	var (
		best     *models.Visit
		bestDate time.Time
	)
	for _, v := range p.Visits {
		d, err := ParseStoreDate(v.VisitTime)
		if err != nil {
			continue
		}
		if best == nil || d.After(bestDate) {
			best, bestDate = v, d
		}
	}
	return best
}

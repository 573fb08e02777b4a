// Package stats builds the management report: visit counts per
// demographic category.
package stats

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/starford/medrec/internal/models"
	"github.com/starford/medrec/internal/query"
)

// Since is the first visit date included in the report.
var Since = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// Bucket is one category and its visit count.
type Bucket struct {
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
}

// Report holds categorical visit counts.
type Report struct {
	Since     string   `json:"since" yaml:"since"`
	Visits    int      `json:"visits" yaml:"visits"`
	Unparsed  int      `json:"unparsed_dates" yaml:"unparsed_dates"`
	Gender    []Bucket `json:"gender" yaml:"gender"`
	Race      []Bucket `json:"race" yaml:"race"`
	Ethnicity []Bucket `json:"ethnicity" yaml:"ethnicity"`
	Insurance []Bucket `json:"insurance" yaml:"insurance"`
	AgeGroup  []Bucket `json:"age_group" yaml:"age_group"`
}

type ageBin struct {
	label    string
	min, max int // (min, max]
}

var ageBins = []ageBin{
	{"0-18", 0, 18},
	{"19-35", 18, 35},
	{"36-50", 35, 50},
	{"51-65", 50, 65},
	{"66+", 65, 100},
}

// AgeGroup returns the report bucket for age, or "" outside (0, 100].
func AgeGroup(age int) string {
	for _, b := range ageBins {
		if age > b.min && age <= b.max {
			return b.label
		}
	}
	return ""
}

// Build counts visits dated on or after Since. Visits whose date does not
// parse are left out and counted in Unparsed. Empty category values are
// not counted.
func Build(patients []*models.Patient) Report {
	all := lo.FlatMap(patients, func(p *models.Patient, _ int) []*models.Visit {
		return p.Visits
	})

	unparsed := 0
	visits := lo.Filter(all, func(v *models.Visit, _ int) bool {
		d, err := query.ParseStoreDate(v.VisitTime)
		if err != nil {
			unparsed++
			return false
		}
		return !d.Before(Since)
	})

	ages := lo.CountValuesBy(visits, func(v *models.Visit) string { return AgeGroup(v.Age) })
	ageGroups := make([]Bucket, 0, len(ageBins))
	for _, b := range ageBins {
		ageGroups = append(ageGroups, Bucket{Label: b.label, Count: ages[b.label]})
	}

	return Report{
		Since:     Since.Format(query.InputLayout),
		Visits:    len(visits),
		Unparsed:  unparsed,
		Gender:    countBy(visits, func(v *models.Visit) string { return v.Gender }),
		Race:      countBy(visits, func(v *models.Visit) string { return v.Race }),
		Ethnicity: countBy(visits, func(v *models.Visit) string { return v.Ethnicity }),
		Insurance: countBy(visits, func(v *models.Visit) string { return v.Insurance }),
		AgeGroup:  ageGroups,
	}
}

func countBy(visits []*models.Visit, key func(*models.Visit) string) []Bucket {
	counts := lo.CountValuesBy(visits, key)
	delete(counts, "")
	out := lo.MapToSlice(counts, func(label string, n int) Bucket {
		return Bucket{Label: label, Count: n}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Package clinic is the session service shared by every front end. It
// checks capabilities, writes through to the stores, mirrors changes into
// the search index, records usage and publishes change events.
package clinic

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/medrec/internal/access"
	"github.com/starford/medrec/internal/apperr"
	"github.com/starford/medrec/internal/index"
	"github.com/starford/medrec/internal/models"
	"github.com/starford/medrec/internal/patientstore"
	"github.com/starford/medrec/internal/query"
	"github.com/starford/medrec/internal/sse"
	"github.com/starford/medrec/internal/stats"
	"github.com/starford/medrec/internal/storage"
	"github.com/starford/medrec/internal/usagelog"
)

// Generated identifier lengths in hex characters.
const (
	VisitIDLen = 8
	NoteIDLen  = 6

	maxIDAttempts = 16
)

// VisitInput holds the user-entered fields of a new visit. Date is YYYY-MM-DD.
type VisitInput struct {
	Date           string `json:"date"`
	Department     string `json:"department"`
	Gender         string `json:"gender"`
	Race           string `json:"race"`
	Age            int    `json:"age"`
	Ethnicity      string `json:"ethnicity"`
	Insurance      string `json:"insurance"`
	ZipCode        string `json:"zip_code"`
	ChiefComplaint string `json:"chief_complaint"`
}

// Validate checks the visit fields. The date format itself is checked by
// Add so that it maps to apperr.ErrInvalidDate.
func (in VisitInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Date, validation.Required),
		validation.Field(&in.Age, validation.Min(0)),
	)
}

// NoteInput holds the user-entered fields of the note attached to a new visit.
type NoteInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Summary is the retrieve view of one patient.
type Summary struct {
	PatientID       string        `json:"patient_id"`
	Info            string        `json:"info"`
	MostRecentVisit *models.Visit `json:"most_recent_visit,omitempty"`
}

// Service coordinates the patient store, search index, usage log and
// event broker for authenticated users.
type Service struct {
	store       *patientstore.Store
	fs          storage.Provider
	credentials string
	usage       *usagelog.Logger
	logger      *slog.Logger

	index  index.NoteIndex
	broker *sse.Broker
	newID  func(n int) string
}

// Option configures a Service.
type Option func(*Service)

// WithIndex mirrors mutations into ix and enables SearchNotes.
func WithIndex(ix index.NoteIndex) Option {
	return func(s *Service) { s.index = ix }
}

// WithBroker publishes change events to b.
func WithBroker(b *sse.Broker) Option {
	return func(s *Service) { s.broker = b }
}

// WithIDGenerator replaces the random identifier source.
func WithIDGenerator(fn func(n int) string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a session service. credentials names the credential
// store inside fs.
func NewService(store *patientstore.Store, fs storage.Provider, credentials string, usage *usagelog.Logger, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:       store,
		fs:          fs,
		credentials: credentials,
		usage:       usage,
		logger:      logger,
		newID:       randomHex,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomHex(n int) string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:n]
}

// Authenticate checks username and password against the credential store.
func (s *Service) Authenticate(_ context.Context, username, password string) (*access.User, bool) {
	return access.Authenticate(s.fs, s.credentials, username, password, s.logger)
}

func (s *Service) require(u *access.User, c access.Capability) error {
	if u == nil {
		return apperr.ErrUnauthorized
	}
	if !u.Can(c) {
		s.logger.Info("clinic: permission denied",
			slog.String("username", u.Username), slog.String("role", u.Role), slog.String("capability", string(c)))
		return fmt.Errorf("%s: %w", c, apperr.ErrForbidden)
	}
	return nil
}

func (s *Service) record(u *access.User, action string) {
	if s.usage == nil {
		return
	}
	// Usage failures are logged by the usage logger and never fail the action.
	_ = s.usage.Record(u.Username, u.Role, action)
}

func (s *Service) totals() (patients, visits int) {
	all := s.store.Patients()
	for _, p := range all {
		visits += len(p.Visits)
	}
	return len(all), visits
}

func (s *Service) publish(kind, pid, vid string) {
	if s.broker == nil {
		return
	}
	patients, visits := s.totals()
	s.broker.PublishChange(sse.Change{Kind: kind, PatientID: pid, VisitID: vid, Patients: patients, Visits: visits})
}

func (s *Service) mirror(op string, fn func(ix index.NoteIndex) error) {
	if s.index == nil {
		return
	}
	if err := fn(s.index); err != nil {
		s.logger.Warn("clinic: index update failed", slog.String("op", op), slog.String("error", err.Error()))
		return
	}
	if err := s.index.SetSourceChecksum(s.store.Checksum()); err != nil {
		s.logger.Warn("clinic: index checksum update failed", slog.String("error", err.Error()))
	}
}

func (s *Service) uniqueVisitID(pid string) (string, error) {
	p, known := s.store.Get(pid)
	for i := 0; i < maxIDAttempts; i++ {
		id := s.newID(VisitIDLen)
		if !known || !p.HasVisit(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("clinic: visit id for %s: %w", pid, apperr.ErrAlreadyExists)
}

func (s *Service) uniqueNoteID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := s.newID(NoteIDLen)
		if !s.store.HasNote(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("clinic: note id: %w", apperr.ErrAlreadyExists)
}

// Add records a new visit with one note for patient pid, creating the
// patient when unseen. Identifiers are generated. The visit is written
// through to the stores before it is returned.
func (s *Service) Add(_ context.Context, u *access.User, pid string, in VisitInput, note NoteInput) (*models.Visit, error) {
	if err := s.require(u, access.AddRemove); err != nil {
		return nil, err
	}
	pid = strings.TrimSpace(pid)
	if pid == "" {
		return nil, fmt.Errorf("patient id is required: %w", apperr.ErrInvalidInput)
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	visitTime, err := query.InputToStore(in.Date)
	if err != nil {
		return nil, err
	}

	var visit *models.Visit
	for attempt := 0; ; attempt++ {
		vid, err := s.uniqueVisitID(pid)
		if err != nil {
			return nil, err
		}
		nid, err := s.uniqueNoteID()
		if err != nil {
			return nil, err
		}
		visit = &models.Visit{
			ID:             vid,
			VisitTime:      visitTime,
			Department:     in.Department,
			Gender:         in.Gender,
			Race:           in.Race,
			Age:            in.Age,
			Ethnicity:      in.Ethnicity,
			Insurance:      in.Insurance,
			ZipCode:        in.ZipCode,
			ChiefComplaint: in.ChiefComplaint,
		}
		visit.AddNote(models.NewNote(nid, note.Type, note.Text))

		err = s.store.Add(pid, visit)
		if err == nil {
			break
		}
		// Another session may have taken the id between the check and the add.
		if !errors.Is(err, apperr.ErrAlreadyExists) || attempt+1 >= maxIDAttempts {
			return nil, err
		}
	}

	s.mirror("upsert", func(ix index.NoteIndex) error { return ix.UpsertVisit(pid, visit) })
	s.record(u, "add_patient: "+pid)
	s.publish(sse.KindAdded, pid, visit.ID)
	s.logger.Info("clinic: visit added", slog.String("patient_id", pid), slog.String("visit_id", visit.ID))
	return visit, nil
}

// Remove deletes patient pid and all its visits.
func (s *Service) Remove(_ context.Context, u *access.User, pid string) error {
	if err := s.require(u, access.AddRemove); err != nil {
		return err
	}
	ok, err := s.store.Remove(pid)
	if err != nil {
		return err
	}
	if !ok {
		s.record(u, "remove_patient: "+pid+" NOT_FOUND")
		return fmt.Errorf("patient %s: %w", pid, apperr.ErrNotFound)
	}

	s.mirror("delete", func(ix index.NoteIndex) error { return ix.DeletePatient(pid) })
	s.record(u, "remove_patient: "+pid)
	s.publish(sse.KindRemoved, pid, "")
	s.logger.Info("clinic: patient removed", slog.String("patient_id", pid))
	return nil
}

// Retrieve returns the full record text of patient pid and its most
// recent visit.
func (s *Service) Retrieve(_ context.Context, u *access.User, pid string) (*Summary, error) {
	if err := s.require(u, access.AccessPHI); err != nil {
		return nil, err
	}
	p, ok := s.store.Get(pid)
	if !ok {
		s.record(u, "retrieve_patient: "+pid+" NOT_FOUND")
		return nil, fmt.Errorf("patient %s: %w", pid, apperr.ErrNotFound)
	}
	s.record(u, "retrieve_patient: "+pid)
	return &Summary{
		PatientID:       p.ID,
		Info:            p.AllInfo(),
		MostRecentVisit: query.MostRecentVisit(p),
	}, nil
}

// CountVisits counts visits on the YYYY-MM-DD date across all patients.
func (s *Service) CountVisits(_ context.Context, u *access.User, date string) (int, error) {
	if err := s.require(u, access.CountVisits); err != nil {
		return 0, err
	}
	day, err := query.ParseInputDate(date)
	if err != nil {
		return 0, err
	}
	n := query.CountVisitsOn(s.store.Patients(), day)
	s.record(u, "count_visits: "+day.Format(query.InputLayout))
	return n, nil
}

// NotesOn returns the notes of patient pid on the YYYY-MM-DD date.
func (s *Service) NotesOn(_ context.Context, u *access.User, pid, date string) ([]models.Note, error) {
	if err := s.require(u, access.ViewNotes); err != nil {
		return nil, err
	}
	day, err := query.ParseInputDate(date)
	if err != nil {
		return nil, err
	}
	p, ok := s.store.Get(pid)
	if !ok {
		s.record(u, "view_note: "+pid+" NOT_FOUND")
		return nil, fmt.Errorf("patient %s: %w", pid, apperr.ErrNotFound)
	}
	s.record(u, "view_note: "+pid+" on "+query.FormatStoreDate(day))
	return query.NotesOn(p, day), nil
}

// SearchNotes runs a text search over every indexed note.
func (s *Service) SearchNotes(_ context.Context, u *access.User, q string, limit int) ([]index.SearchResult, error) {
	if err := s.require(u, access.ViewNotes); err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, fmt.Errorf("search query is required: %w", apperr.ErrInvalidInput)
	}
	if s.index == nil {
		return nil, fmt.Errorf("search index not configured: %w", apperr.ErrNotFound)
	}
	res, err := s.index.Search(q, limit)
	if err != nil {
		return nil, err
	}
	s.record(u, "search_notes: "+q)
	return res, nil
}

// Stats builds the management report over the current records.
func (s *Service) Stats(_ context.Context, u *access.User) (stats.Report, error) {
	if err := s.require(u, access.GenerateStats); err != nil {
		return stats.Report{}, err
	}
	rep := stats.Build(s.store.Patients())
	if rep.Unparsed > 0 {
		s.logger.Warn("clinic: visits with unparseable dates left out of statistics", slog.Int("count", rep.Unparsed))
	}
	s.record(u, "generate_statistics")
	return rep, nil
}

// Reload re-reads the stores when they changed on disk and resynchronises
// the search index. It reports whether a load happened.
func (s *Service) Reload(_ context.Context) (bool, error) {
	loaded, rep, err := s.store.Reload()
	if err != nil {
		s.logger.Error("clinic: reload failed", slog.String("error", err.Error()))
		return false, err
	}
	if !loaded {
		return false, nil
	}
	if s.index != nil {
		if err := index.Sync(s.index, s.store, s.logger); err != nil {
			s.logger.Warn("clinic: index sync failed", slog.String("error", err.Error()))
		}
	}
	s.logger.Info("clinic: stores reloaded",
		slog.Int("patients", rep.Patients), slog.Int("visits", rep.Visits), slog.Int("skipped", rep.Skipped))
	if s.broker != nil {
		s.broker.PublishChange(sse.Change{Kind: sse.KindReloaded, Patients: rep.Patients, Visits: rep.Visits})
	}
	return true, nil
}

// Package console is the interactive menu front end. It only prompts and
// renders; every record operation goes through the session service.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/medrec/internal/access"
	"github.com/starford/medrec/internal/apperr"
	"github.com/starford/medrec/internal/clinic"
	"github.com/starford/medrec/internal/stats"
)

// Menu actions.
const (
	ActionAdd      = "add_patient"
	ActionRemove   = "remove_patient"
	ActionRetrieve = "retrieve_patient"
	ActionCount    = "count_visits"
	ActionViewNote = "view_note"
	ActionStop     = "Stop"
)

const menuPrompt = "\nEnter action (add_patient, remove_patient, retrieve_patient, count_visits, view_note, Stop): "

// errEOF ends the session when input runs out mid-prompt.
var errEOF = errors.New("console: end of input")

// Console runs one interactive session for an authenticated user.
type Console struct {
	svc  *clinic.Service
	user *access.User
	in   *bufio.Scanner
	out  io.Writer
}

// New creates a console session reading from in and writing to out.
func New(svc *clinic.Service, user *access.User, in io.Reader, out io.Writer) *Console {
	return &Console{svc: svc, user: user, in: bufio.NewScanner(in), out: out}
}

// Run dispatches on the user's role. Management gets the statistics report
// and admin a single visit count; both then exit. Other roles get the
// action menu until Stop or end of input.
func (c *Console) Run(ctx context.Context) error {
	switch {
	case c.user.CanGenerateStats():
		return c.stats(ctx)
	case c.user.Role == access.RoleAdmin:
		return c.adminCount(ctx)
	}

	for {
		action, err := c.prompt(menuPrompt)
		if errors.Is(err, errEOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if action == ActionStop {
			return nil
		}
		if err := c.dispatch(ctx, action); err != nil {
			if errors.Is(err, errEOF) {
				return nil
			}
			return err
		}
	}
}

func (c *Console) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", errEOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *Console) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

func (c *Console) dispatch(ctx context.Context, action string) error {
	var err error
	switch {
	case action == ActionAdd && c.user.CanAddRemove():
		err = c.add(ctx)
	case action == ActionRemove && c.user.CanAddRemove():
		err = c.remove(ctx)
	case action == ActionRetrieve && c.user.CanAccessPHI():
		err = c.retrieve(ctx)
	case action == ActionCount && c.user.CanCountVisits():
		err = c.count(ctx)
	case action == ActionViewNote && c.user.CanViewNotes():
		err = c.viewNote(ctx)
	default:
		c.println("Invalid action or insufficient permission.")
	}
	return err
}

// report prints the operator message for a failed action. Only I/O
// failures on the session itself are returned.
func (c *Console) report(err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.println("Patient not found.")
	case errors.Is(err, apperr.ErrInvalidDate):
		c.println("Invalid date format.")
	case errors.Is(err, apperr.ErrForbidden):
		c.println("Invalid action or insufficient permission.")
	default:
		c.println("Error:", err)
	}
}

func (c *Console) add(ctx context.Context) error {
	var in clinic.VisitInput
	var note clinic.NoteInput
	var age string

	pid, err := c.prompt("Enter Patient ID: ")
	if err != nil {
		return err
	}
	fields := []struct {
		label string
		dst   *string
	}{
		{"Enter visit date (YYYY-MM-DD): ", &in.Date},
		{"Enter department: ", &in.Department},
		{"Enter gender: ", &in.Gender},
		{"Enter race: ", &in.Race},
		{"Enter age: ", &age},
		{"Enter ethnicity: ", &in.Ethnicity},
		{"Enter insurance: ", &in.Insurance},
		{"Enter zip code: ", &in.ZipCode},
		{"Enter chief complaint: ", &in.ChiefComplaint},
		{"Enter note type: ", &note.Type},
		{"Enter note text: ", &note.Text},
	}
	for _, f := range fields {
		if *f.dst, err = c.prompt(f.label); err != nil {
			return err
		}
	}
	if in.Age, err = strconv.Atoi(age); err != nil {
		c.println("Invalid age.")
		return nil
	}

	if _, err := c.svc.Add(ctx, c.user, pid, in, note); err != nil {
		c.report(err)
		return nil
	}
	c.println("Visit added.")
	return nil
}

func (c *Console) remove(ctx context.Context) error {
	pid, err := c.prompt("Enter Patient ID to remove: ")
	if err != nil {
		return err
	}
	if err := c.svc.Remove(ctx, c.user, pid); err != nil {
		c.report(err)
		return nil
	}
	c.println("Patient removed.")
	return nil
}

func (c *Console) retrieve(ctx context.Context) error {
	pid, err := c.prompt("Enter Patient ID to retrieve: ")
	if err != nil {
		return err
	}
	s, err := c.svc.Retrieve(ctx, c.user, pid)
	if err != nil {
		c.report(err)
		return nil
	}
	c.println(s.Info)
	return nil
}

func (c *Console) count(ctx context.Context) error {
	date, err := c.prompt("Enter date to count visits (YYYY-MM-DD): ")
	if err != nil {
		return err
	}
	n, err := c.svc.CountVisits(ctx, c.user, date)
	if err != nil {
		c.report(err)
		return nil
	}
	c.println(fmt.Sprintf("Total visits on %s: %d", date, n))
	return nil
}

func (c *Console) viewNote(ctx context.Context) error {
	pid, err := c.prompt("Enter Patient ID: ")
	if err != nil {
		return err
	}
	date, err := c.prompt("Enter date (YYYY-MM-DD): ")
	if err != nil {
		return err
	}
	notes, err := c.svc.NotesOn(ctx, c.user, pid, date)
	if err != nil {
		c.report(err)
		return nil
	}
	if len(notes) == 0 {
		c.println("No notes found on that date.")
		return nil
	}
	for _, n := range notes {
		c.println(n.String())
	}
	return nil
}

// adminCount asks for a date until one parses, then prints the count.
func (c *Console) adminCount(ctx context.Context) error {
	for {
		date, err := c.prompt("Enter date to count visits (YYYY-MM-DD): ")
		if err != nil {
			if errors.Is(err, errEOF) {
				return nil
			}
			return err
		}
		n, err := c.svc.CountVisits(ctx, c.user, date)
		if errors.Is(err, apperr.ErrInvalidDate) {
			c.println("Invalid format. Please enter date as YYYY-MM-DD (e.g., 2019-04-05)")
			continue
		}
		if err != nil {
			return err
		}
		c.println(fmt.Sprintf("Total visits on %s: %d", date, n))
		return nil
	}
}

func (c *Console) stats(ctx context.Context) error {
	rep, err := c.svc.Stats(ctx, c.user)
	if err != nil {
		return err
	}
	return WriteReport(c.out, rep)
}

// WriteReport renders a statistics report as YAML.
func WriteReport(w io.Writer, rep stats.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("console: render report: %w", err)
	}
	return enc.Close()
}

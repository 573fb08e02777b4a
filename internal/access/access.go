// Package access authenticates users against the credential store and
// derives their capabilities from a fixed role table.
package access

import (
	"errors"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/starford/medrec/internal/storage"
)

// Roles known to the capability table. Other roles authenticate but hold
// only the capabilities granted to every role.
const (
	RoleClinician  = "clinician"
	RoleNurse      = "nurse"
	RoleAdmin      = "admin"
	RoleManagement = "management"
)

// Capability is a permission derived from a role.
type Capability string

const (
	AccessPHI     Capability = "access_phi"
	AddRemove     Capability = "add_remove"
	ViewNotes     Capability = "view_notes"
	GenerateStats Capability = "generate_stats"
	CountVisits   Capability = "count_visits"
)

// everyRole lists capabilities held regardless of role.
var everyRole = []Capability{CountVisits}

// roleCapabilities is the whole permission model; adding a role or a
// capability is an edit to this table.
var roleCapabilities = map[string][]Capability{
	RoleClinician:  {AccessPHI, AddRemove, ViewNotes},
	RoleNurse:      {AccessPHI, AddRemove, ViewNotes},
	RoleManagement: {GenerateStats},
}

// User is an authenticated session principal.
type User struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Can reports whether the user's role grants c.
func (u User) Can(c Capability) bool {
	for _, have := range everyRole {
		if have == c {
			return true
		}
	}
	for _, have := range roleCapabilities[u.Role] {
		if have == c {
			return true
		}
	}
	return false
}

// Capabilities returns every capability the user holds, sorted.
func (u User) Capabilities() []Capability {
	set := make(map[Capability]struct{})
	for _, c := range everyRole {
		set[c] = struct{}{}
	}
	for _, c := range roleCapabilities[u.Role] {
		set[c] = struct{}{}
	}
	out := make([]Capability, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CanAccessPHI reports the access_phi capability.
func (u User) CanAccessPHI() bool { return u.Can(AccessPHI) }

// CanAddRemove reports the add_remove capability.
func (u User) CanAddRemove() bool { return u.Can(AddRemove) }

// CanViewNotes reports the view_notes capability.
func (u User) CanViewNotes() bool { return u.Can(ViewNotes) }

// CanGenerateStats reports the generate_stats capability.
func (u User) CanGenerateStats() bool { return u.Can(GenerateStats) }

// CanCountVisits reports the count_visits capability.
func (u User) CanCountVisits() bool { return u.Can(CountVisits) }

// Credential store columns.
const (
	colUsername = "username"
	colPassword = "password"
	colRole     = "role"
)

// Authenticate scans the named credential store for a row whose username
// and password both match exactly and returns a User with that row's
// role. Unknown user, wrong password and an unreadable store all return
// false; the log line does not say which.
func Authenticate(p storage.Provider, name, username, password string, logger *slog.Logger) (*User, bool) {
	t, err := storage.ReadTable(p, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("access: credentials file not found", slog.String("file", name))
		} else {
			logger.Warn("access: credentials unreadable", slog.String("file", name), slog.String("error", err.Error()))
		}
		logger.Info("access: authentication failed", slog.String("username", username))
		return nil, false
	}
	for _, row := range t.Rows {
		if t.Get(row, colUsername) == username && t.Get(row, colPassword) == password {
			u := &User{Username: username, Role: t.Get(row, colRole)}
			logger.Info("access: login", slog.String("username", u.Username), slog.String("role", u.Role))
			return u, true
		}
	}
	logger.Info("access: authentication failed", slog.String("username", username))
	return nil, false
}

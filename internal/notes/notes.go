// Package notes loads the note-id → note-text table from the notes store.
package notes

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/starford/medrec/internal/models"
	"github.com/starford/medrec/internal/storage"
)

// Column names of the notes store.
const (
	ColNoteID   = "Note_ID"
	ColNoteText = "Note_text"
)

// Header is the column order written when the notes store is created.
var Header = []string{ColNoteID, ColNoteText}

// Index maps a note id to its canonical note. Types are always
// models.UnknownNoteType because the notes store carries no type column.
type Index map[string]models.Note

// Text returns the indexed text for id and whether it was present.
func (ix Index) Text(id string) (string, bool) {
	n, ok := ix[id]
	return n.Text, ok
}

// Load reads every row of the named notes store. A missing or unreadable
// store is logged and yields an empty index; it never fails the caller.
func Load(p storage.Provider, name string, logger *slog.Logger) Index {
	out := make(Index)
	t, err := storage.ReadTable(p, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("notes: store not found", slog.String("file", name))
		} else {
			logger.Warn("notes: store unreadable", slog.String("file", name), slog.String("error", err.Error()))
		}
		return out
	}
	if err := t.Require(ColNoteID, ColNoteText); err != nil {
		logger.Warn("notes: store malformed", slog.String("file", name), slog.String("error", err.Error()))
		return out
	}
	for _, row := range t.Rows {
		id := t.Get(row, ColNoteID)
		out[id] = models.NewNote(id, models.UnknownNoteType, t.Get(row, ColNoteText))
	}
	logger.Debug("notes: loaded", slog.String("file", name), slog.Int("count", len(out)))
	return out
}

// Append writes one note row to the notes store and records it in ix.
func (ix Index) Append(p storage.Provider, name string, n models.Note) error {
	head, err := storage.EncodeRows(Header)
	if err != nil {
		return err
	}
	row, err := storage.EncodeRows([]string{n.ID, n.Text})
	if err != nil {
		return err
	}
	if err := p.Append(name, head, row); err != nil {
		return fmt.Errorf("notes: append: %w", err)
	}
	ix[n.ID] = models.NewNote(n.ID, models.UnknownNoteType, n.Text)
	return nil
}

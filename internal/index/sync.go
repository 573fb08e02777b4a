package index

import "log/slog"

// Sync brings the index up to date with src. The rebuild is skipped when
// the index was last built from stores with the same checksum.
func Sync(db NoteIndex, src Source, logger *slog.Logger) error {
	sum := src.Checksum()
	indexed, err := db.SourceChecksum()
	if err != nil {
		return err
	}
	if sum != "" && sum == indexed {
		logger.Debug("sync: index up to date")
		return nil
	}

	patients := src.Patients()
	if err := db.Rebuild(patients, sum); err != nil {
		return err
	}
	n, err := db.Count()
	if err != nil {
		return err
	}
	logger.Info("sync: index rebuilt", slog.Int("patients", len(patients)), slog.Int("notes", n))
	return nil
}

package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/medrec/internal/access"
	"github.com/starford/medrec/internal/apperr"
	"github.com/starford/medrec/internal/clinic"
	"github.com/starford/medrec/internal/console"
	"github.com/starford/medrec/internal/index"
	"github.com/starford/medrec/internal/mcpserver"
	"github.com/starford/medrec/internal/patientstore"
	"github.com/starford/medrec/internal/storage"
	"github.com/starford/medrec/internal/usagelog"
)

// session owns the stores and the service of one running front end.
type session struct {
	fs    *storage.FS
	store *patientstore.Store
	db    *index.DB
	svc   *clinic.Service
}

func newLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func openStorage(cfg *Config) (*storage.FS, error) {
	if err := os.MkdirAll(cfg.Store.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	fs, err := storage.NewFS(cfg.Store.Dir)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return fs, nil
}

// openSession loads the stores, brings the search index up to date and
// builds the session service.
func openSession(cfg *Config, fs *storage.FS, logger *slog.Logger, opts ...clinic.Option) (*session, error) {
	store := patientstore.New(fs, cfg.Store.Files(), logger, patientstore.WithAgePolicy(cfg.Store.AgePolicy))
	if _, err := store.Load(); err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	usage := usagelog.New(fs, cfg.Store.UsageLogFile, logger)
	opts = append([]clinic.Option{clinic.WithIndex(db)}, opts...)
	svc := clinic.NewService(store, fs, cfg.Store.CredentialsFile, usage, logger, opts...)
	return &session{fs: fs, store: store, db: db, svc: svc}, nil
}

func (s *session) Close() error {
	return s.db.Close()
}

// login authenticates before anything else is loaded, then opens the
// session for that user.
func login(cfg *Config, username, password string, logger *slog.Logger) (*session, *access.User, error) {
	fs, err := openStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	user, ok := access.Authenticate(fs, cfg.Store.CredentialsFile, username, password, logger)
	if !ok {
		return nil, nil, apperr.ErrUnauthorized
	}
	sess, err := openSession(cfg, fs, logger)
	if err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}

func interactive(opts []Option, username, password string, fn func(*application, *session, *access.User) error) error {
	app := newApplication(opts)
	if app.config == nil {
		return errors.New("config is required")
	}
	logger := newLogger(app.config.App.LogLevel, app.stderr)
	slog.SetDefault(logger)

	sess, user, err := login(app.config, username, password, logger)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(app, sess, user)
}

// RunConsole authenticates the user and runs the interactive menu on the
// configured stdin and stdout.
func RunConsole(ctx context.Context, username, password string, opts ...Option) error {
	return interactive(opts, username, password, func(app *application, sess *session, user *access.User) error {
		return console.New(sess.svc, user, app.stdin, app.stdout).Run(ctx)
	})
}

// RunStats authenticates the user and writes the statistics report to
// stdout. Only roles holding the generate_stats capability succeed.
func RunStats(ctx context.Context, username, password string, opts ...Option) error {
	return interactive(opts, username, password, func(app *application, sess *session, user *access.User) error {
		rep, err := sess.svc.Stats(ctx, user)
		if err != nil {
			return err
		}
		return console.WriteReport(app.stdout, rep)
	})
}

// RunMCP authenticates the user and serves the MCP tools on stdio as that
// user.
func RunMCP(_ context.Context, username, password, version string, opts ...Option) error {
	return interactive(opts, username, password, func(_ *application, sess *session, user *access.User) error {
		return mcpserver.New(sess.svc, user, version).ServeStdio()
	})
}

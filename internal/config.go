package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/medrec/internal/patientstore"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Store  StoreConfig       `yaml:"store"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Watch  WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig names the data directory and the flat files inside it.
//
// AgePolicy decides what happens to a primary store row whose Age is not a
// non-negative integer:
//   - "skip" (default): the row is left out with a warning.
//   - "abort": the whole load fails and names the row.
type StoreConfig struct {
	Dir             string `yaml:"dir"`
	PatientsFile    string `yaml:"patients_file"`
	NotesFile       string `yaml:"notes_file"`
	CredentialsFile string `yaml:"credentials_file"`
	UsageLogFile    string `yaml:"usage_log_file"`
	AgePolicy       string `yaml:"age_policy"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if c.AgePolicy == "" {
		c.AgePolicy = patientstore.AgePolicySkip
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.PatientsFile, validation.Required),
		validation.Field(&c.NotesFile, validation.Required),
		validation.Field(&c.CredentialsFile, validation.Required),
		validation.Field(&c.UsageLogFile, validation.Required),
		validation.Field(&c.AgePolicy, validation.In(patientstore.AgePolicySkip, patientstore.AgePolicyAbort)),
	)
}

// Files returns the store names the patient store reads and writes.
func (c *StoreConfig) Files() patientstore.Files {
	return patientstore.Files{Patients: c.PatientsFile, Notes: c.NotesFile}
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// WatchConfig controls reloading the stores when they change on disk.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Dir:             "./data",
			PatientsFile:    "Patient_data.csv",
			NotesFile:       "Notes.csv",
			CredentialsFile: "Credentials.csv",
			UsageLogFile:    "usage_log.csv",
			AgePolicy:       patientstore.AgePolicySkip,
		},
		SQLite: SQLiteConfig{
			Path: "./medrec.db",
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 200 * time.Millisecond,
		},
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("MEDREC_TEST_NAME", "clinic")
	path := writeFile(t, "name: ${MEDREC_TEST_NAME}\nport: ${MEDREC_TEST_PORT:-9090}\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "clinic" || s.Port != 9090 {
		t.Errorf("got %+v", s)
	}
}

func TestLoad_KeepsDefaults(t *testing.T) {
	path := writeFile(t, "name: x\n")
	s := sample{Port: 8080}
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", s.Port)
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeFile(t, "name: x\nport: 1\nbogus: true\n")
	var s sample
	if err := Load(path, &s); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_RunsValidator(t *testing.T) {
	path := writeFile(t, "name: x\nport: 0\n")
	var s sample
	err := Load(path, &s)
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpand(t *testing.T) {
	t.Setenv("MEDREC_SET", "a")
	t.Setenv("MEDREC_EMPTY", "")
	cases := map[string]string{
		"$MEDREC_SET":              "a",
		"${MEDREC_SET:-b}":         "a",
		"${MEDREC_EMPTY:-b}":       "b",
		"${MEDREC_UNSET_XYZ:-c/d}": "c/d",
		"${MEDREC_UNSET_XYZ}":      "",
		"plain":                    "plain",
	}
	for in, want := range cases {
		if got := Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}

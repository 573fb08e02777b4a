// Package storage defines the flat-file abstraction over the data directory.
package storage

// Provider is the interface for data directory file operations.
// All names are relative to the data directory.
type Provider interface {
	// Read returns the raw bytes of the named file.
	Read(name string) ([]byte, error)
	// Write atomically replaces the named file with content.
	Write(name string, content []byte) error
	// Append adds content to the end of the named file, writing header
	// first when the file is absent or empty.
	Append(name string, header, content []byte) error
	// Exists reports whether the named file is present.
	Exists(name string) (bool, error)
}

package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"

	"github.com/starford/medrec/internal/storage"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Files returns one digest over the named files, in order. A missing file
// hashes differently from an empty one.
func Files(p storage.Provider, names ...string) (string, error) {
	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		data, err := p.Read(name)
		if errors.Is(err, fs.ErrNotExist) {
			h.Write([]byte{0})
			continue
		}
		if err != nil {
			return "", err
		}
		h.Write([]byte{1})
		sum := sha256.Sum256(data)
		h.Write(sum[:])
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

package secure

import (
	"crypto/rand"
	"io"
)

// Reader is the CSPRNG used for entropy. Tests may swap it for a
// deterministic source; production code must never do so.
//
//nolint:gochecknoglobals // Package-level RNG is required for testability
var Reader io.Reader = rand.Reader

// RandomBytes returns n bytes read from Reader.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

package engine

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// newID creates a prefixed ID with 8 random hex chars.
func newID(prefix string) string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure is fatal
		panic("generate id: " + err.Error())
	}
	return fmt.Sprintf("%s%s", prefix, hex.EncodeToString(b))
}

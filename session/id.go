package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateID returns a typed session id of the form
// "browser-session_a1b2c3d4". The 32 bits of entropy are enough in
// practice; the registry insert is the collision backstop.
func GenerateID(t Type) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%s-session_%s", t, hex.EncodeToString(buf))
}

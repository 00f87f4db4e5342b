// Package session holds the identity of one client session.
package session

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"webterm/internal/ports"
)

const (
	idPrefix = "session_"
	idLength = 9
)

// idSpace is 36^idLength, the number of distinct ids.
const idSpace = 101559956668416

// NewID generates an opaque session identifier of the form
// "session_" followed by nine base36 characters. The randomness comes from
// a UUIDv4 drawn from r; uniqueness across clients is best-effort only.
func NewID(r ports.Random) (string, error) {
	u, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	n := binary.BigEndian.Uint64(u[:8]) % idSpace
	suffix := strconv.FormatUint(n, 36)
	if len(suffix) < idLength {
		suffix = strings.Repeat("0", idLength-len(suffix)) + suffix
	}
	return idPrefix + suffix, nil
}

// ValidID reports whether id has the shape produced by NewID.
func ValidID(id string) bool {
	suffix, ok := strings.CutPrefix(id, idPrefix)
	if !ok || len(suffix) != idLength {
		return false
	}
	for _, r := range suffix {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return true
}

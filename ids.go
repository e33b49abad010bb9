package datamodel

import (
	"github.com/google/uuid"
)

// IDLength is the fixed length of document ids.
const IDLength = 16

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// GenerateID returns a new 16-character alphanumeric document id. Entropy
// comes from a random UUID so ids remain collision-resistant across processes.
func GenerateID() string {
	u := uuid.New()
	buf := make([]byte, IDLength)
	for i := 0; i < IDLength; i++ {
		buf[i] = idAlphabet[int(u[i])%len(idAlphabet)]
	}
	return string(buf)
}

// IsValidID reports whether s is a well-formed document id.
func IsValidID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		default:
			return false
		}
	}
	return true
}

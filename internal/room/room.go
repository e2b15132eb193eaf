// Package room generates game room identifiers and passwords. Codes are
// short and human-typable; uniqueness is probabilistic, so callers that
// need dedup must check against existing codes themselves.
package room

import (
	"math/rand"
	"strings"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewCode returns a 6-character room code drawn uniformly from A-Z0-9.
func NewCode() string {
	var sb strings.Builder
	sb.Grow(6)
	for i := 0; i < 6; i++ {
		sb.WriteByte(codeAlphabet[rand.Intn(len(codeAlphabet))])
	}
	return sb.String()
}

// NewPassword returns a 4-digit room password.
func NewPassword() string {
	var sb strings.Builder
	sb.Grow(4)
	for i := 0; i < 4; i++ {
		sb.WriteByte(byte('0' + rand.Intn(10)))
	}
	return sb.String()
}

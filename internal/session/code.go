package session

import (
	"math/rand/v2"
	"strings"
)

const (
	codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeDigits  = "0123456789"
)

// NewCode generates a fresh human-typed session code of the form AAA-00000.
func NewCode() string {
	var b strings.Builder
	b.Grow(9)
	for i := 0; i < 3; i++ {
		b.WriteByte(codeLetters[rand.IntN(len(codeLetters))])
	}
	b.WriteByte('-')
	for i := 0; i < 5; i++ {
		b.WriteByte(codeDigits[rand.IntN(len(codeDigits))])
	}
	return b.String()
}

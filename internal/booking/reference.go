package booking

import (
	"math/rand"
	"strings"
)

// Ambiguous characters (I, L, O, 0, 1) are excluded so references survive
// being read over the phone.
const (
	refLetters = "ABCDEFGHJKMNPQRSTUVWXYZ"
	refDigits  = "23456789"
)

// NewReference returns a human-readable booking reference such as BK-A4T7K2:
// three letters and three digits interleaved under the BK- prefix. Uniqueness
// is enforced by the store; callers regenerate on collision.
func NewReference() string {
	var b strings.Builder
	b.Grow(9)
	b.WriteString("BK-")
	for i := 0; i < 3; i++ {
		b.WriteByte(refLetters[rand.Intn(len(refLetters))])
		b.WriteByte(refDigits[rand.Intn(len(refDigits))])
	}
	return b.String()
}

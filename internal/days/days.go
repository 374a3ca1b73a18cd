// Package days converts the persisted days-working mask to and from a
// fixed-size week of booleans. Index 0 is Sunday.
package days

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedMask is returned when a persisted mask does not hold exactly
// seven "0"/"1" tokens.
var ErrMalformedMask = errors.New("malformed days mask")

// Week holds one flag per weekday, Sunday first.
type Week [7]bool

// Decode parses a comma-separated mask such as "0,1,1,1,1,1,0".
func Decode(mask string) (Week, error) {
	var w Week
	tokens := strings.Split(mask, ",")
	if len(tokens) != len(w) {
		return Week{}, fmt.Errorf("%w: want %d tokens, got %d in %q", ErrMalformedMask, len(w), len(tokens), mask)
	}
	for i, tok := range tokens {
		switch strings.TrimSpace(tok) {
		case "1":
			w[i] = true
		case "0":
		default:
			return Week{}, fmt.Errorf("%w: token %d is %q", ErrMalformedMask, i, tok)
		}
	}
	return w, nil
}

// Encode is the inverse of Decode.
func Encode(w Week) string {
	var b strings.Builder
	b.Grow(2*len(w) - 1)
	for i, on := range w {
		if i > 0 {
			b.WriteByte(',')
		}
		if on {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// String returns the persisted form.
func (w Week) String() string { return Encode(w) }

// Count returns the number of working days.
func (w Week) Count() int {
	n := 0
	for _, on := range w {
		if on {
			n++
		}
	}
	return n
}

// Missing counts the days w works that other does not. Days only other
// works are ignored.
func (w Week) Missing(other Week) int {
	n := 0
	for i, on := range w {
		if on && !other[i] {
			n++
		}
	}
	return n
}

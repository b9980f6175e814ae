package order

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"time"
)

const numberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var numberPattern = regexp.MustCompile(`^ORD-\d{8}-[A-Z0-9]{8}$`)

// NumberGenerator produces the human-facing order number for an order
// created at the given instant.
type NumberGenerator func(at time.Time) (string, error)

// RandomNumbers returns a generator of ORD-YYYYMMDD-XXXXXXXX numbers drawing
// the suffix from r. A nil reader means crypto/rand.
func RandomNumbers(r io.Reader) NumberGenerator {
	if r == nil {
		r = rand.Reader
	}
	return func(at time.Time) (string, error) {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", fmt.Errorf("order number: %w", err)
		}
		for i, b := range buf {
			buf[i] = numberAlphabet[int(b)%len(numberAlphabet)]
		}
		return "ORD-" + at.UTC().Format("20060102") + "-" + string(buf[:]), nil
	}
}

// ValidNumber reports whether s has the order number shape.
func ValidNumber(s string) bool { return numberPattern.MatchString(s) }

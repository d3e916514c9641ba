package models

import (
	"strings"
	"time"
)

// CanonicalKey is the deterministic identity used to correlate records that
// describe the same real-world event across sources. Home and away are not
// interchangeable; the start time is truncated to a tolerance bucket so small
// cross-source clock skew still lands on the same key.
type CanonicalKey struct {
	Sport  string
	Home   string
	Away   string
	Bucket time.Time
}

// NewCanonicalKey builds a key from already-canonicalized names.
// Format of String(): "sport|home|away|bucket" (RFC3339, UTC).
func NewCanonicalKey(sport, home, away string, startTime time.Time, tolerance time.Duration) CanonicalKey {
	if tolerance <= 0 {
		tolerance = 30 * time.Minute
	}
	return CanonicalKey{
		Sport:  sanitizeKeyPart(sport),
		Home:   sanitizeKeyPart(home),
		Away:   sanitizeKeyPart(away),
		Bucket: startTime.UTC().Truncate(tolerance),
	}
}

func (k CanonicalKey) String() string {
	ts := "unknown-time"
	if !k.Bucket.IsZero() {
		ts = k.Bucket.Format(time.RFC3339)
	}
	return k.Sport + "|" + k.Home + "|" + k.Away + "|" + ts
}

// sanitizeKeyPart keeps key components free of the separator and odd whitespace.
func sanitizeKeyPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, "/", " ")
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "|", " ")
	return strings.Join(strings.Fields(s), " ")
}

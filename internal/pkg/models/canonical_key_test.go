package models

import (
	"testing"
	"time"
)

func TestNewCanonicalKey(t *testing.T) {
	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		sport     string
		home      string
		away      string
		start     time.Time
		tolerance time.Duration
		want      string
	}{
		{
			name:  "simple key",
			sport: "football", home: "arsenal", away: "chelsea",
			start: base, tolerance: 30 * time.Minute,
			want: "football|arsenal|chelsea|2026-03-14T18:00:00Z",
		},
		{
			name:  "skew within tolerance lands in same bucket",
			sport: "football", home: "arsenal", away: "chelsea",
			start: base.Add(7 * time.Minute), tolerance: 30 * time.Minute,
			want: "football|arsenal|chelsea|2026-03-14T18:00:00Z",
		},
		{
			name:  "skew beyond tolerance lands in next bucket",
			sport: "football", home: "arsenal", away: "chelsea",
			start: base.Add(31 * time.Minute), tolerance: 30 * time.Minute,
			want: "football|arsenal|chelsea|2026-03-14T18:30:00Z",
		},
		{
			name:  "non-utc time is normalized",
			sport: "football", home: "arsenal", away: "chelsea",
			start: base.In(time.FixedZone("MSK", 3*3600)), tolerance: 30 * time.Minute,
			want: "football|arsenal|chelsea|2026-03-14T18:00:00Z",
		},
		{
			name:  "separator characters are stripped from names",
			sport: "football", home: "ca river|plate", away: "boca/juniors",
			start: base, tolerance: 30 * time.Minute,
			want: "football|ca river plate|boca juniors|2026-03-14T18:00:00Z",
		},
		{
			name:  "zero tolerance falls back to default bucket",
			sport: "football", home: "arsenal", away: "chelsea",
			start: base.Add(10 * time.Minute), tolerance: 0,
			want: "football|arsenal|chelsea|2026-03-14T18:00:00Z",
		},
		{
			name:  "empty component becomes unknown",
			sport: "", home: "arsenal", away: "chelsea",
			start: base, tolerance: 30 * time.Minute,
			want: "unknown|arsenal|chelsea|2026-03-14T18:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewCanonicalKey(tt.sport, tt.home, tt.away, tt.start, tt.tolerance).String()
			if got != tt.want {
				t.Errorf("NewCanonicalKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalKeyHomeAwayNotInterchangeable(t *testing.T) {
	start := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	a := NewCanonicalKey("football", "arsenal", "chelsea", start, 30*time.Minute)
	b := NewCanonicalKey("football", "chelsea", "arsenal", start, 30*time.Minute)
	if a.String() == b.String() {
		t.Errorf("swapped home/away produced the same key %q", a.String())
	}
}

func TestRawRecordValid(t *testing.T) {
	start := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		record RawRecord
		want   bool
	}{
		{"complete", RawRecord{SourceID: "fonbet", HomeRaw: "a", AwayRaw: "b", StartTime: start}, true},
		{"missing source", RawRecord{HomeRaw: "a", AwayRaw: "b", StartTime: start}, false},
		{"missing home", RawRecord{SourceID: "fonbet", AwayRaw: "b", StartTime: start}, false},
		{"missing away", RawRecord{SourceID: "fonbet", HomeRaw: "a", StartTime: start}, false},
		{"zero start time", RawRecord{SourceID: "fonbet", HomeRaw: "a", AwayRaw: "b"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

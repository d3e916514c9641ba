package models

import (
	"time"
)

// EventStatus is the lifecycle state of a real-world event as reported by a source.
type EventStatus string

const (
	StatusUpcoming EventStatus = "upcoming"
	StatusLive     EventStatus = "live"
	StatusFinished EventStatus = "finished"
)

// MarketOdds maps market name -> selection -> price, keyed by source-native names.
type MarketOdds map[string]map[string]float64

// RawRecord is one event snapshot from one source. Immutable once read;
// superseded by the next snapshot from the same source.
type RawRecord struct {
	SourceID   string      `json:"source_id"`
	SportRaw   string      `json:"sport"`
	HomeRaw    string      `json:"home"`
	AwayRaw    string      `json:"away"`
	LeagueRaw  string      `json:"league"`
	StartTime  time.Time   `json:"start_time"`
	Status     EventStatus `json:"status"`
	MarketOdds MarketOdds  `json:"market_odds"`
	ObservedAt time.Time   `json:"observed_at"`
}

// Valid reports whether the record carries the minimum fields needed to build
// a canonical key. Records failing this are skipped for the pass.
func (r *RawRecord) Valid() bool {
	return r.SourceID != "" && r.HomeRaw != "" && r.AwayRaw != "" && !r.StartTime.IsZero()
}

// FeedDocument is the structured document one source adapter rewrites on every
// collection cycle. GeneratedAt must advance even when Records is unchanged so
// a silent source can be told apart from a hung one.
type FeedDocument struct {
	SourceID    string      `json:"source_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Records     []RawRecord `json:"records"`
}

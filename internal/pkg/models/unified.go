package models

import (
	"time"
)

// PricePoint is the best price for one selection together with the source
// that currently offers it.
type PricePoint struct {
	Price    float64 `json:"price"`
	SourceID string  `json:"source_id"`
}

// BestPrice maps market -> selection -> best price across sources.
type BestPrice map[string]map[string]PricePoint

// UnifiedRecord is the merged view of one event across all sources.
//
// PerSourceOdds is last-write-wins per source: a source missing from the
// current pass keeps its previous entry; removal happens only through the
// lifecycle manager or an explicit empty feed from that source. BestPrice is
// always derived from PerSourceOdds and never mutated independently.
type UnifiedRecord struct {
	// Key is the structured canonical identity; KeyString is the occurrence
	// key derived from it (the base form, or base#N for a re-run event).
	Key           CanonicalKey          `json:"-"`
	KeyString     string                `json:"key"`
	SportName     string                `json:"sport"`
	HomeName      string                `json:"home"`
	AwayName      string                `json:"away"`
	LeagueName    string                `json:"league"`
	StartTime     time.Time             `json:"start_time"`
	Status        EventStatus           `json:"status"`
	PerSourceOdds map[string]MarketOdds `json:"per_source_odds"`
	BestPrice     BestPrice             `json:"best_price"`
	FirstSeenAt   time.Time             `json:"first_seen_at"`
	LastMergedAt  time.Time             `json:"last_merged_at"`
	RetiredAt     time.Time             `json:"retired_at,omitempty"`
}

// Clone returns a deep copy so a published snapshot stays immutable while the
// next pass mutates its own working set.
func (u *UnifiedRecord) Clone() *UnifiedRecord {
	cp := *u
	cp.PerSourceOdds = make(map[string]MarketOdds, len(u.PerSourceOdds))
	for src, mo := range u.PerSourceOdds {
		cp.PerSourceOdds[src] = cloneMarketOdds(mo)
	}
	cp.BestPrice = make(BestPrice, len(u.BestPrice))
	for market, sels := range u.BestPrice {
		ms := make(map[string]PricePoint, len(sels))
		for sel, pp := range sels {
			ms[sel] = pp
		}
		cp.BestPrice[market] = ms
	}
	return &cp
}

func cloneMarketOdds(mo MarketOdds) MarketOdds {
	out := make(MarketOdds, len(mo))
	for market, sels := range mo {
		ms := make(map[string]float64, len(sels))
		for sel, price := range sels {
			ms[sel] = price
		}
		out[market] = ms
	}
	return out
}

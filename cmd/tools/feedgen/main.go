package main

import (
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/vkorchagin/oddsmesh/internal/feed"
	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// feedgen writes a synthetic feed document the way a source adapter would:
// atomically, with a fresh generated_at on every cycle even when the event
// list is unchanged. Useful for local runs of the engine without real
// adapters.
func main() {
	var (
		sourceID string
		path     string
		interval time.Duration
		once     bool
	)
	flag.StringVar(&sourceID, "source", "demo", "Source ID to emit")
	flag.StringVar(&path, "out", "", "Output path (default <source>.json)")
	flag.DurationVar(&interval, "interval", 15*time.Second, "Rewrite interval")
	flag.BoolVar(&once, "once", false, "Write a single document and exit")
	flag.Parse()

	if path == "" {
		path = sourceID + ".json"
	}

	for {
		doc := sampleDocument(sourceID)
		if err := feed.WriteDocument(path, doc); err != nil {
			log.Fatalf("Failed to write feed document: %v", err)
		}
		log.Printf("Wrote %s (%d records)", path, len(doc.Records))
		if once {
			return
		}
		time.Sleep(interval)
	}
}

func sampleDocument(sourceID string) *models.FeedDocument {
	now := time.Now().UTC()
	kickoff := now.Add(2 * time.Hour).Truncate(time.Minute)

	jitter := func(base float64) float64 {
		return base + rand.Float64()*0.1 - 0.05
	}

	return &models.FeedDocument{
		SourceID:    sourceID,
		GeneratedAt: now,
		Records: []models.RawRecord{
			{
				SourceID:  sourceID,
				SportRaw:  "Football",
				HomeRaw:   "Manchester City",
				AwayRaw:   "Liverpool FC",
				LeagueRaw: "Premier League",
				StartTime: kickoff,
				Status:    models.StatusUpcoming,
				MarketOdds: models.MarketOdds{
					"1x2": {
						"home": jitter(2.05),
						"draw": jitter(3.40),
						"away": jitter(3.10),
					},
					"total_2.5": {
						"over":  jitter(1.85),
						"under": jitter(1.95),
					},
				},
				ObservedAt: now,
			},
			{
				SourceID:  sourceID,
				SportRaw:  "Football",
				HomeRaw:   "Real Madrid",
				AwayRaw:   "FC Barcelona",
				LeagueRaw: "La Liga",
				StartTime: kickoff.Add(45 * time.Minute),
				Status:    models.StatusUpcoming,
				MarketOdds: models.MarketOdds{
					"1x2": {
						"home": jitter(2.30),
						"draw": jitter(3.50),
						"away": jitter(2.90),
					},
				},
				ObservedAt: now,
			},
		},
	}
}

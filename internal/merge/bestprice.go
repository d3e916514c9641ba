package merge

import (
	"math"
	"sort"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// ComputeBestPrice derives the best available price per market/selection
// across all current per-source snapshots, recording the source that offers
// it. Sources are visited in sorted order and only a strictly greater price
// replaces the current best, so ties go to the first source.
func ComputeBestPrice(perSource map[string]models.MarketOdds) models.BestPrice {
	sources := make([]string, 0, len(perSource))
	for src := range perSource {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	best := make(models.BestPrice)
	for _, src := range sources {
		for market, sels := range perSource[src] {
			for sel, price := range sels {
				if !isFinitePositiveOdd(price) {
					continue
				}
				if best[market] == nil {
					best[market] = make(map[string]models.PricePoint)
				}
				if cur, ok := best[market][sel]; !ok || price > cur.Price {
					best[market][sel] = models.PricePoint{Price: price, SourceID: src}
				}
			}
		}
	}
	return best
}

// isFinitePositiveOdd reports whether a value is a usable decimal price (> 1.0).
func isFinitePositiveOdd(v float64) bool {
	return v > 1.000001 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

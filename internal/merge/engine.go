package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vkorchagin/oddsmesh/internal/canon"
	"github.com/vkorchagin/oddsmesh/internal/catalog"
	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// Engine correlates raw records from all sources into unified records. One
// pass reads every feed document, canonicalizes names, groups by canonical
// key, and produces a new catalog snapshot. Passes are serialized by the
// scheduler; the engine itself holds no locks beyond what the cache provides.
type Engine struct {
	cache     *canon.Cache
	store     *catalog.Store
	tolerance time.Duration
	now       func() time.Time
}

func NewEngine(cache *canon.Cache, store *catalog.Store, startTimeTolerance time.Duration) *Engine {
	if startTimeTolerance <= 0 {
		startTimeTolerance = 30 * time.Minute
	}
	return &Engine{
		cache:     cache,
		store:     store,
		tolerance: startTimeTolerance,
		now:       time.Now,
	}
}

// Merge runs one aggregation pass over the given feed documents and returns
// the next snapshot. It starts from the current snapshot: a source absent
// from this pass keeps its previous entries. A document with an empty record
// list is that source's explicit "nothing offered" signal and clears its
// entries instead.
func (e *Engine) Merge(ctx context.Context, docs []models.FeedDocument) (*catalog.Snapshot, error) {
	passStart := e.now().UTC()
	working := e.store.Current().Clone()

	// Deterministic source order regardless of how documents arrived.
	sorted := make([]models.FeedDocument, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SourceID < sorted[j].SourceID })

	// Occurrence keys resolved once per pass so every record of a group lands
	// on the same occurrence.
	occurrences := make(map[string]string)

	touched := make(map[string]bool)
	skippedRecords := 0

	for _, doc := range sorted {
		if len(doc.Records) == 0 {
			e.clearSource(working, doc.SourceID, touched)
			continue
		}
		for i := range doc.Records {
			rec := &doc.Records[i]
			if !rec.Valid() {
				skippedRecords++
				continue
			}
			ck, key, err := e.recordKey(ctx, rec, occurrences)
			if err != nil {
				return nil, err
			}
			e.apply(working, ck, key, doc.SourceID, rec, passStart, touched)
		}
	}

	for key := range touched {
		if rec, ok := working.Active[key]; ok {
			rec.BestPrice = ComputeBestPrice(rec.PerSourceOdds)
		}
	}

	slog.Info("Merge pass complete",
		"pass_id", working.PassID,
		"sources", len(sorted),
		"active_records", len(working.Active),
		"touched", len(touched),
		"skipped_records", skippedRecords,
		"duration", time.Since(passStart))

	return working, nil
}

// recordKey canonicalizes the record's names and maps the canonical key to
// its current occurrence (a key retired to history is never reused). The
// structured key is returned alongside the occurrence key string.
func (e *Engine) recordKey(ctx context.Context, rec *models.RawRecord, occurrences map[string]string) (models.CanonicalKey, string, error) {
	sport := e.cache.Resolve(rec.SportRaw, canon.EntitySport, rec.SourceID)
	home := e.cache.Resolve(rec.HomeRaw, canon.EntityTeam, rec.SourceID)
	away := e.cache.Resolve(rec.AwayRaw, canon.EntityTeam, rec.SourceID)

	ck := models.NewCanonicalKey(sport, home, away, rec.StartTime, e.tolerance)
	base := ck.String()
	if key, ok := occurrences[base]; ok {
		return ck, key, nil
	}

	// If the base key is already active, stay on it even when an older
	// occurrence sits in history.
	if _, active := e.store.Current().Active[base]; active {
		occurrences[base] = base
		return ck, base, nil
	}

	key, err := e.store.OccurrenceKey(ctx, base)
	if err != nil {
		return models.CanonicalKey{}, "", fmt.Errorf("failed to resolve occurrence for %q: %w", base, err)
	}
	occurrences[base] = key
	return ck, key, nil
}

// apply overwrites one source's entry on the unified record (last-write-wins
// per source) and refreshes display metadata.
func (e *Engine) apply(working *catalog.Snapshot, ck models.CanonicalKey, key, sourceID string, rec *models.RawRecord, passStart time.Time, touched map[string]bool) {
	unified, ok := working.Active[key]
	if !ok {
		unified = &models.UnifiedRecord{
			Key:           ck,
			KeyString:     key,
			SportName:     e.cache.Resolve(rec.SportRaw, canon.EntitySport, sourceID),
			HomeName:      e.cache.Resolve(rec.HomeRaw, canon.EntityTeam, sourceID),
			AwayName:      e.cache.Resolve(rec.AwayRaw, canon.EntityTeam, sourceID),
			StartTime:     rec.StartTime.UTC(),
			Status:        rec.Status,
			PerSourceOdds: make(map[string]models.MarketOdds),
			FirstSeenAt:   passStart,
		}
		working.Active[key] = unified
	}

	if rec.LeagueRaw != "" {
		unified.LeagueName = e.cache.Resolve(rec.LeagueRaw, canon.EntityLeague, sourceID)
	}
	// Representative start time: the earliest any source reported.
	if st := rec.StartTime.UTC(); !st.IsZero() && (unified.StartTime.IsZero() || st.Before(unified.StartTime)) {
		unified.StartTime = st
	}
	if statusRank(rec.Status) > statusRank(unified.Status) {
		unified.Status = rec.Status
	}

	unified.PerSourceOdds[sourceID] = sanitizeOdds(rec.MarketOdds)
	unified.LastMergedAt = passStart
	touched[key] = true
}

// clearSource handles a source's explicit empty feed: its entries disappear
// from every record it contributed to.
func (e *Engine) clearSource(working *catalog.Snapshot, sourceID string, touched map[string]bool) {
	for key, rec := range working.Active {
		if _, ok := rec.PerSourceOdds[sourceID]; ok {
			delete(rec.PerSourceOdds, sourceID)
			touched[key] = true
		}
	}
}

// statusRank orders event statuses so a group's status only moves forward:
// once any source reports finished, the unified record is finished.
func statusRank(s models.EventStatus) int {
	switch s {
	case models.StatusLive:
		return 1
	case models.StatusFinished:
		return 2
	default:
		return 0
	}
}

// sanitizeOdds copies the source's odds, dropping prices that are not finite
// and above 1.0.
func sanitizeOdds(mo models.MarketOdds) models.MarketOdds {
	out := make(models.MarketOdds, len(mo))
	for market, sels := range mo {
		ms := make(map[string]float64, len(sels))
		for sel, price := range sels {
			if isFinitePositiveOdd(price) {
				ms[sel] = price
			}
		}
		if len(ms) > 0 {
			out[market] = ms
		}
	}
	return out
}

package feed

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

func sampleDoc(sourceID string, generatedAt time.Time) *models.FeedDocument {
	return &models.FeedDocument{
		SourceID:    sourceID,
		GeneratedAt: generatedAt,
		Records: []models.RawRecord{{
			SourceID:   sourceID,
			SportRaw:   "Football",
			HomeRaw:    "Arsenal",
			AwayRaw:    "Chelsea",
			StartTime:  generatedAt.Add(2 * time.Hour),
			Status:     models.StatusUpcoming,
			MarketOdds: models.MarketOdds{"1x2": {"home": 2.4}},
			ObservedAt: generatedAt,
		}},
	}
}

func TestWriteAndReadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fonbet.json")
	generated := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, WriteDocument(path, sampleDoc("fonbet", generated)))

	doc, revision, err := ReadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "fonbet", doc.SourceID)
	assert.True(t, doc.GeneratedAt.Equal(generated))
	assert.NotEmpty(t, revision)
	require.Len(t, doc.Records, 1)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRevisionChangesWithFreshnessTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fonbet.json")
	generated := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, WriteDocument(path, sampleDoc("fonbet", generated)))
	rev1, err := Revision(path)
	require.NoError(t, err)

	// Same records, newer freshness timestamp: revision must differ so the
	// supervisor can tell "no new data" from "adapter hung".
	require.NoError(t, WriteDocument(path, sampleDoc("fonbet", generated.Add(time.Minute))))
	rev2, err := Revision(path)
	require.NoError(t, err)
	assert.NotEqual(t, rev1, rev2)
}

func TestRevisionMissingFile(t *testing.T) {
	rev, err := Revision(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, rev)
}

func TestReadDocumentValidation(t *testing.T) {
	dir := t.TempDir()

	noSource := filepath.Join(dir, "nosource.json")
	require.NoError(t, os.WriteFile(noSource, []byte(`{"generated_at":"2026-03-14T12:00:00Z"}`), 0o644))
	_, _, err := ReadDocument(noSource)
	assert.ErrorContains(t, err, "source_id")

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o644))
	_, _, err = ReadDocument(garbage)
	assert.Error(t, err)
}

func TestWatcherDetectsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fonbet.json")
	generated := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	w := NewWatcher([]Source{{ID: "fonbet", Path: path}})

	// Nothing on disk yet: no change.
	assert.False(t, w.Poll())

	require.NoError(t, WriteDocument(path, sampleDoc("fonbet", generated)))
	assert.True(t, w.Poll())
	assert.False(t, w.Poll(), "unchanged document is not a change")

	require.NoError(t, WriteDocument(path, sampleDoc("fonbet", generated.Add(time.Minute))))
	assert.True(t, w.Poll())

	assert.False(t, w.LastChange("fonbet").IsZero())
}

func TestWatcherReadAllSkipsBrokenSources(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	generated := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, WriteDocument(good, sampleDoc("good", generated)))
	require.NoError(t, os.WriteFile(bad, []byte("{broken"), 0o644))

	w := NewWatcher([]Source{
		{ID: "good", Path: good},
		{ID: "bad", Path: bad},
		{ID: "missing", Path: filepath.Join(dir, "missing.json")},
	})

	docs := w.ReadAll()
	require.Len(t, docs, 1)
	assert.Equal(t, "good", docs[0].SourceID)

	// The broken source's error shows up in the shared freshness view.
	var found bool
	for _, f := range w.Freshness() {
		if f.SourceID == "bad" {
			found = true
			assert.NotEmpty(t, f.LastError)
		}
	}
	assert.True(t, found)
}

func TestWatcherReadAllRejectsMismatchedSourceID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fonbet.json")
	generated := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Document claims to be another source.
	require.NoError(t, WriteDocument(path, sampleDoc("zenit", generated)))

	w := NewWatcher([]Source{{ID: "fonbet", Path: path}})
	assert.Empty(t, w.ReadAll())
}

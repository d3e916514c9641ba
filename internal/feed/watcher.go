package feed

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

// Source is one watched feed document.
type Source struct {
	ID   string
	Path string
}

// Freshness is what the supervisor and scheduler share about one source: when
// its document last changed and whether the last read worked. A source whose
// document stops changing is a scheduler non-event and a supervisor symptom at
// the same time.
type Freshness struct {
	SourceID     string    `json:"source_id"`
	Revision     string    `json:"revision"`
	GeneratedAt  time.Time `json:"generated_at"`
	LastChangeAt time.Time `json:"last_change_at"`
	LastError    string    `json:"last_error,omitempty"`
}

type sourceState struct {
	revision     string
	generatedAt  time.Time
	lastChangeAt time.Time
	lastErr      error
}

// Watcher tracks revision markers for a fixed set of feed documents.
type Watcher struct {
	mu      sync.Mutex
	sources []Source
	states  map[string]*sourceState
	now     func() time.Time
}

func NewWatcher(sources []Source) *Watcher {
	w := &Watcher{
		sources: sources,
		states:  make(map[string]*sourceState, len(sources)),
		now:     time.Now,
	}
	for _, s := range sources {
		w.states[s.ID] = &sourceState{}
	}
	return w
}

// Poll recomputes every revision marker and reports whether any changed since
// the previous poll. Unreadable documents are recorded but do not fail the
// poll.
func (w *Watcher) Poll() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	changed := false
	for _, s := range w.sources {
		st := w.states[s.ID]
		rev, err := Revision(s.Path)
		if err != nil {
			st.lastErr = err
			slog.Warn("Feed watcher: failed to hash document", "source", s.ID, "error", err)
			continue
		}
		st.lastErr = nil
		if rev != "" && rev != st.revision {
			st.revision = rev
			st.lastChangeAt = w.now()
			changed = true
		}
	}
	return changed
}

// ReadAll parses every watched document. A document that is missing or fails
// to parse is skipped for this pass with a warning; the remaining sources
// still produce a result.
func (w *Watcher) ReadAll() []models.FeedDocument {
	w.mu.Lock()
	sources := make([]Source, len(w.sources))
	copy(sources, w.sources)
	w.mu.Unlock()

	docs := make([]models.FeedDocument, 0, len(sources))
	for _, s := range sources {
		doc, _, err := ReadDocument(s.Path)
		if err != nil {
			w.recordError(s.ID, err)
			slog.Warn("Feed watcher: skipping source for this pass", "source", s.ID, "error", err)
			continue
		}
		if doc.SourceID != s.ID {
			slog.Warn("Feed watcher: document source_id mismatch, skipping",
				"source", s.ID, "document_source_id", doc.SourceID)
			continue
		}
		w.recordGenerated(s.ID, doc.GeneratedAt)
		docs = append(docs, *doc)
	}
	return docs
}

func (w *Watcher) recordError(sourceID string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.states[sourceID]; ok {
		st.lastErr = err
	}
}

func (w *Watcher) recordGenerated(sourceID string, generatedAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.states[sourceID]; ok {
		st.generatedAt = generatedAt
	}
}

// Freshness returns the shared health view of every source, sorted by ID.
func (w *Watcher) Freshness() []Freshness {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Freshness, 0, len(w.sources))
	for _, s := range w.sources {
		st := w.states[s.ID]
		f := Freshness{
			SourceID:     s.ID,
			Revision:     st.revision,
			GeneratedAt:  st.generatedAt,
			LastChangeAt: st.lastChangeAt,
		}
		if st.lastErr != nil {
			f.LastError = st.lastErr.Error()
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// LastChange returns when one source's document last changed; zero time if it
// never has.
func (w *Watcher) LastChange(sourceID string) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if st, ok := w.states[sourceID]; ok {
		return st.lastChangeAt
	}
	return time.Time{}
}

package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkorchagin/oddsmesh/internal/pkg/models"
)

type recordingNotifier struct {
	mu        sync.Mutex
	delivered []models.AlertEvent
	fail      bool
}

func (r *recordingNotifier) Notify(ctx context.Context, alert models.AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("transport down")
	}
	r.delivered = append(r.delivered, alert)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delivered)
}

func TestSuppressorDeliversFirstAndDropsRepeat(t *testing.T) {
	sink := &recordingNotifier{}
	s := NewSuppressor(sink, time.Hour)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	alert := models.NewAlertEvent("adapter:fonbet:crash-loop", "crashed repeatedly")
	require.NoError(t, s.Notify(context.Background(), alert))
	require.NoError(t, s.Notify(context.Background(), alert))

	assert.Equal(t, 1, sink.count())
	assert.Equal(t, now.Add(time.Hour), sink.delivered[0].SuppressedUntil)
}

func TestSuppressorWindowRefreshesOnDelivery(t *testing.T) {
	sink := &recordingNotifier{}
	s := NewSuppressor(sink, time.Hour)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	alert := models.NewAlertEvent("adapter:zenit:stale", "feed stalled")
	require.NoError(t, s.Notify(context.Background(), alert))

	// Past the window: delivered again and the window restarts from now.
	now = now.Add(2 * time.Hour)
	require.NoError(t, s.Notify(context.Background(), alert))
	require.Equal(t, 2, sink.count())
	assert.Equal(t, now.Add(time.Hour), sink.delivered[1].SuppressedUntil)

	// Inside the refreshed window: dropped.
	now = now.Add(30 * time.Minute)
	require.NoError(t, s.Notify(context.Background(), alert))
	assert.Equal(t, 2, sink.count())
}

func TestSuppressorKeysAreIndependent(t *testing.T) {
	sink := &recordingNotifier{}
	s := NewSuppressor(sink, time.Hour)

	require.NoError(t, s.Notify(context.Background(), models.NewAlertEvent("adapter:a:stale", "a")))
	require.NoError(t, s.Notify(context.Background(), models.NewAlertEvent("adapter:b:stale", "b")))
	assert.Equal(t, 2, sink.count())
}

func TestSuppressorReopensWindowOnDeliveryFailure(t *testing.T) {
	sink := &recordingNotifier{fail: true}
	s := NewSuppressor(sink, time.Hour)

	alert := models.NewAlertEvent("adapter:a:failed", "down")
	require.Error(t, s.Notify(context.Background(), alert))

	// Transport recovers: the same fault goes through without waiting out the
	// cooldown.
	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()
	require.NoError(t, s.Notify(context.Background(), alert))
	assert.Equal(t, 1, sink.count())
}

func TestSuppressorConcurrentSameKey(t *testing.T) {
	sink := &recordingNotifier{}
	s := NewSuppressor(sink, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Notify(context.Background(), models.NewAlertEvent("adapter:x:crash-loop", "boom"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, sink.count())
}

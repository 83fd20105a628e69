package reminder

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learner-progress-service/internal/progress"
)

type fakeSource struct {
	mu   sync.Mutex
	item progress.ReviewItem
	ok   bool
}

func (f *fakeSource) set(item progress.ReviewItem, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.item, f.ok = item, ok
}

func (f *fakeSource) NextReview(context.Context) (progress.ReviewItem, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.item, f.ok, nil
}

type chanNotifier chan progress.ReviewItem

func (c chanNotifier) Notify(item progress.ReviewItem) error {
	c <- item
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckNotifiesOncePerBand(t *testing.T) {
	src := &fakeSource{}
	var buf bytes.Buffer
	r := New(src, WriterNotifier{W: &buf}, time.Hour, discard())
	ctx := context.Background()

	_, sent, err := r.Check(ctx)
	require.NoError(t, err)
	assert.False(t, sent)

	src.set(progress.ReviewItem{ModuleID: "module-1", DaysSince: 3, Reason: "3-day review"}, true)
	_, sent, err = r.Check(ctx)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "module-1 is due for a 3-day review (3 days since last visit)\n", buf.String())

	_, sent, _ = r.Check(ctx)
	assert.False(t, sent, "same band must not be repeated")

	src.set(progress.ReviewItem{ModuleID: "module-1", DaysSince: 7, Reason: "1-week review"}, true)
	_, sent, _ = r.Check(ctx)
	assert.True(t, sent, "a new band is a new reminder")
}

func TestStartRunsScheduledCheck(t *testing.T) {
	src := &fakeSource{}
	src.set(progress.ReviewItem{ModuleID: "module-2", DaysSince: 1, Reason: "24-hour review"}, true)
	notes := make(chanNotifier, 4)

	r := New(src, notes, 50*time.Millisecond, discard())
	require.NoError(t, r.Start())
	defer r.Stop()

	select {
	case item := <-notes:
		assert.Equal(t, "module-2", item.ModuleID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a reminder from the scheduled check")
	}
}

func TestStartRejectsInvalidInterval(t *testing.T) {
	r := New(&fakeSource{}, LogNotifier{Log: discard()}, 0, discard())
	assert.Error(t, r.Start())
}

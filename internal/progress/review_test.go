package progress

import (
	"testing"
	"time"

	"learner-progress-service/internal/domain"
)

func completedAt(t time.Time) domain.ModuleProgress {
	mp := domain.NewModuleProgress()
	mp.Completed = true
	mp.CompletionDate = &t
	return mp
}

func TestReviewBands(t *testing.T) {
	tests := []struct {
		days   int
		due    bool
		reason string
	}{
		{0, false, ""},
		{1, true, "24-hour review"},
		{2, true, "24-hour review"},
		{3, true, "3-day review"},
		{7, true, "1-week review"},
		{13, true, "1-week review"},
		{14, true, "2-week review"},
		{90, true, "2-week review"},
	}
	for _, tt := range tests {
		band, due := ReviewBandFor(tt.days)
		if due != tt.due || band.Reason != tt.reason {
			t.Fatalf("days=%d: expected (%v, %q), got (%v, %q)", tt.days, tt.due, tt.reason, due, band.Reason)
		}
	}
}

func TestDaysSinceFloors(t *testing.T) {
	anchor := now.Add(-47 * time.Hour)
	if got := DaysSince(now, anchor); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := DaysSince(now, now.Add(time.Hour)); got != -1 {
		t.Fatalf("expected future anchor to be negative, got %d", got)
	}
}

func TestDueReviewsOrdering(t *testing.T) {
	c := catalogOf(4)
	mastery := map[string]domain.ModuleProgress{
		"module-1": completedAt(now.Add(-2 * 24 * time.Hour)),
		"module-2": completedAt(now.Add(-15 * 24 * time.Hour)),
		"module-3": completedAt(now.Add(-12 * time.Hour)),
		"module-4": {Completed: false},
	}
	items := DueReviews(now, c, mastery)
	if len(items) != 2 {
		t.Fatalf("expected 2 due reviews, got %+v", items)
	}
	if items[0].ModuleID != "module-2" || items[0].Reason != "2-week review" {
		t.Fatalf("expected module-2 first, got %+v", items[0])
	}

	top, ok := MostUrgent(now, c, mastery)
	if !ok || top.ModuleID != "module-2" || top.DaysSince != 15 {
		t.Fatalf("unexpected most urgent %+v", top)
	}
}

func TestReviewAnchorFallsBackToPostTest(t *testing.T) {
	c := catalogOf(1)
	mp := domain.NewModuleProgress()
	mp.Completed = true
	at := now.Add(-3 * 24 * time.Hour)
	mp.PostTest.CompletedAt = &at

	items := DueReviews(now, c, map[string]domain.ModuleProgress{"module-1": mp})
	if len(items) != 1 || items[0].Reason != "3-day review" {
		t.Fatalf("expected 3-day review from post-test anchor, got %+v", items)
	}
}

func TestMarkReviewedPostponesOneCycle(t *testing.T) {
	c := catalogOf(1)
	mp := completedAt(now.Add(-8 * 24 * time.Hour))
	mastery := map[string]domain.ModuleProgress{"module-1": MarkReviewed(mp, now)}

	if _, ok := MostUrgent(now.Add(23*time.Hour), c, mastery); ok {
		t.Fatalf("expected nothing due right after review")
	}
	if item, ok := MostUrgent(now.Add(24*time.Hour), c, mastery); !ok || item.Reason != "24-hour review" {
		t.Fatalf("expected due again after one day, got %+v", item)
	}
}

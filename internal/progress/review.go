package progress

import (
	"sort"
	"time"

	"learner-progress-service/internal/domain"
)

const dayMillis = 24 * 60 * 60 * 1000

// ReviewBand is one spaced-repetition interval and the reason shown for it.
type ReviewBand struct {
	MinDays int
	Reason  string
}

// ReviewBands are ordered from the longest gap to the shortest.
var ReviewBands = []ReviewBand{
	{MinDays: 14, Reason: "2-week review"},
	{MinDays: 7, Reason: "1-week review"},
	{MinDays: 3, Reason: "3-day review"},
	{MinDays: 1, Reason: "24-hour review"},
}

// ReviewItem is a completed module that is due for review.
type ReviewItem struct {
	ModuleID  string    `json:"moduleId"`
	DaysSince int       `json:"daysSince"`
	Reason    string    `json:"reason"`
	Anchor    time.Time `json:"anchor"`
}

// DaysSince is floor((now-anchor)/1 day) in whole milliseconds.
func DaysSince(now, anchor time.Time) int {
	diff := now.UnixMilli() - anchor.UnixMilli()
	if diff < 0 {
		return -1
	}
	return int(diff / dayMillis)
}

// ReviewBandFor returns the band a gap of days falls in.
func ReviewBandFor(days int) (ReviewBand, bool) {
	for _, b := range ReviewBands {
		if days >= b.MinDays {
			return b, true
		}
	}
	return ReviewBand{}, false
}

// DueReviews lists completed modules due for review, most overdue first.
// Ties keep catalog order.
func DueReviews(now time.Time, catalog domain.Catalog, mastery map[string]domain.ModuleProgress) []ReviewItem {
	var items []ReviewItem
	for _, def := range catalog.Modules {
		mp, ok := mastery[def.ID]
		if !ok || !mp.Completed {
			continue
		}
		anchor, ok := mp.ReviewAnchor()
		if !ok {
			continue
		}
		days := DaysSince(now, anchor)
		band, due := ReviewBandFor(days)
		if !due {
			continue
		}
		items = append(items, ReviewItem{
			ModuleID:  def.ID,
			DaysSince: days,
			Reason:    band.Reason,
			Anchor:    anchor,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DaysSince > items[j].DaysSince
	})
	return items
}

// MostUrgent returns the single review to surface to the learner.
func MostUrgent(now time.Time, catalog domain.Catalog, mastery map[string]domain.ModuleProgress) (ReviewItem, bool) {
	items := DueReviews(now, catalog, mastery)
	if len(items) == 0 {
		return ReviewItem{}, false
	}
	return items[0], true
}

// MarkReviewed resets the review clock. Completing and dismissing a review
// both land here, so the two cannot be told apart afterwards.
func MarkReviewed(mp domain.ModuleProgress, now time.Time) domain.ModuleProgress {
	next := mp.Clone()
	at := now
	next.LastReviewDate = &at
	return next
}

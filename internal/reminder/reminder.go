package reminder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"learner-progress-service/internal/progress"
)

// Source yields the most urgent due review.
type Source interface {
	NextReview(ctx context.Context) (progress.ReviewItem, bool, error)
}

// Notifier delivers a reminder to the learner.
type Notifier interface {
	Notify(item progress.ReviewItem) error
}

// Reminder periodically checks for due reviews and notifies once per
// distinct (module, band) pair so the same reminder is not repeated every tick.
type Reminder struct {
	scheduler *gocron.Scheduler
	source    Source
	notifier  Notifier
	interval  time.Duration
	log       *slog.Logger

	mu   sync.Mutex
	last string
}

func New(source Source, notifier Notifier, interval time.Duration, logger *slog.Logger) *Reminder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reminder{
		scheduler: gocron.NewScheduler(time.UTC),
		source:    source,
		notifier:  notifier,
		interval:  interval,
		log:       logger,
	}
}

// Start schedules the check and runs it immediately.
func (r *Reminder) Start() error {
	if r.interval <= 0 {
		return errors.Errorf("invalid reminder interval %s", r.interval)
	}
	r.scheduler.SingletonModeAll()
	if _, err := r.scheduler.Every(r.interval).Do(r.tick); err != nil {
		return errors.Wrap(err, "schedule review check")
	}
	r.scheduler.StartAsync()
	r.log.Info("review reminders started", "interval", r.interval)
	return nil
}

// Stop terminates the scheduler.
func (r *Reminder) Stop() {
	r.scheduler.Stop()
}

func (r *Reminder) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, _, err := r.Check(ctx); err != nil {
		r.log.Warn("review check failed", "error", err)
	}
}

// Check runs one review check. It reports the item and whether a
// notification was sent.
func (r *Reminder) Check(ctx context.Context) (progress.ReviewItem, bool, error) {
	item, ok, err := r.source.NextReview(ctx)
	if err != nil {
		return progress.ReviewItem{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !ok {
		r.last = ""
		r.log.Debug("no reviews due")
		return progress.ReviewItem{}, false, nil
	}
	key := item.ModuleID + "|" + item.Reason
	if key == r.last {
		return item, false, nil
	}
	if err := r.notifier.Notify(item); err != nil {
		return item, false, errors.Wrapf(err, "notify review for %s", item.ModuleID)
	}
	r.last = key
	return item, true, nil
}

// LogNotifier writes reminders to a structured logger.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(item progress.ReviewItem) error {
	n.Log.Info("review due", "module", item.ModuleID, "reason", item.Reason, "days_since", item.DaysSince)
	return nil
}

// WriterNotifier prints reminders as plain lines.
type WriterNotifier struct {
	W io.Writer
}

func (n WriterNotifier) Notify(item progress.ReviewItem) error {
	_, err := fmt.Fprintf(n.W, "%s is due for a %s (%d days since last visit)\n", item.ModuleID, item.Reason, item.DaysSince)
	return err
}

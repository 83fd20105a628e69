package app_test

import (
	"context"
	"testing"
	"time"

	"learner-progress-service/internal/app"
	"learner-progress-service/internal/infra/memory"
)

func nextEvent(t *testing.T, ch <-chan app.Event) app.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("event channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return app.Event{}
}

func TestSubscribeReceivesCommittedChanges(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, memory.NewKVStore(0))

	events, cancel := service.Subscribe()
	defer cancel()

	if _, err := service.Advance(ctx, "module-1"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	ev := nextEvent(t, events)
	if ev.Type != app.EventModule || ev.ModuleID != "module-1" || ev.Module == nil || ev.Module.Progress.CurrentStep != 1 {
		t.Fatalf("unexpected module event %+v", ev)
	}

	if _, err := service.MarkRead(ctx, "article-1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if ev := nextEvent(t, events); ev.Type != app.EventUser {
		t.Fatalf("expected user event, got %+v", ev)
	}
}

func TestSubscribeSkipsRejectedChanges(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, memory.NewKVStore(0))

	events, cancel := service.Subscribe()
	defer cancel()

	if _, err := service.Advance(ctx, "module-2"); err == nil {
		t.Fatalf("expected locked module error")
	}
	select {
	case ev := <-events:
		t.Fatalf("no event expected for a rejected change, got %+v", ev)
	default:
	}
}

func TestSlowSubscriberKeepsLatestEvents(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, memory.NewKVStore(0))

	events, cancel := service.Subscribe()
	for i := 0; i < 20; i++ {
		if _, err := service.ToggleFavorite(ctx, "joke-1"); err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
	}

	var count int
	for len(events) > 0 {
		<-events
		count++
	}
	if count == 0 || count > 8 {
		t.Fatalf("expected a bounded backlog, got %d events", count)
	}

	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Fatalf("expected channel closed after cancel")
	}
}

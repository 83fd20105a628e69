package app_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"learner-progress-service/internal/app"
	"learner-progress-service/internal/domain"
	"learner-progress-service/internal/infra/memory"
)

func TestBackupRoundTripAcrossDevices(t *testing.T) {
	ctx := context.Background()
	source, _ := newTestService(t, memory.NewKVStore(0))
	completeModule1(t, source)
	_, _ = source.ToggleFavorite(ctx, "joke-3")

	payload, err := source.ExportBackup(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(payload) > source.MaxPayload() {
		t.Fatalf("payload %d bytes exceeds ceiling %d", len(payload), source.MaxPayload())
	}

	target, _ := newTestService(t, memory.NewKVStore(0))
	res, err := target.RestoreBackup(ctx, payload)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !res.MasteryRestored || !res.UserProgressRestored {
		t.Fatalf("expected both halves restored, got %+v", res)
	}

	want := source.Snapshot()
	got := target.Snapshot()
	for _, id := range []string{"module-1", "module-2"} {
		if !reflect.DeepEqual(want.Mastery[id], got.Mastery[id]) {
			t.Fatalf("module %s differs after restore:\nwant %+v\ngot  %+v", id, want.Mastery[id], got.Mastery[id])
		}
	}
	if !reflect.DeepEqual(want.UserProgress.Favorites, got.UserProgress.Favorites) {
		t.Fatalf("favorites differ: %v vs %v", want.UserProgress.Favorites, got.UserProgress.Favorites)
	}
}

func TestRestoreRejectsUnsupportedVersionWithoutChanges(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, memory.NewKVStore(0))
	_, _ = service.MarkRead(ctx, "article-1")
	before := service.Snapshot()

	payload := fmt.Sprintf(`{"v":2,"ts":%d,"progress":{"mastery":{},"userProgress":{}}}`, testNow.UnixMilli())
	_, err := service.RestoreBackup(ctx, payload)
	if !errors.Is(err, domain.ErrUnsupportedVersion) {
		t.Fatalf("expected unsupported version, got %v", err)
	}
	if !reflect.DeepEqual(before, service.Snapshot()) {
		t.Fatalf("store changed after rejected restore")
	}
}

func TestRestoreWithUnusableUserProgressKeepsStore(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore(0)
	service, _ := newTestService(t, kv)
	_, _ = service.MarkRead(ctx, "joke-7")
	_, _ = service.SetNote(ctx, "n1", "keep me")
	before := service.Snapshot()
	stored, _, _ := kv.Get(ctx, app.KeyUserProgress)

	payload := fmt.Sprintf(`{"v":1,"ts":%d,"progress":{"userProgress":{"legacyJunk":true}}}`, testNow.UnixMilli())
	_, err := service.RestoreBackup(ctx, payload)
	if !errors.Is(err, domain.ErrNoUsableProgress) {
		t.Fatalf("expected no usable progress, got %v", err)
	}
	if !reflect.DeepEqual(before, service.Snapshot()) {
		t.Fatalf("store changed after rejected restore")
	}
	after, _, _ := kv.Get(ctx, app.KeyUserProgress)
	if after != stored {
		t.Fatalf("persisted user progress changed:\nbefore %s\nafter  %s", stored, after)
	}
}

func TestRestorePartialPayload(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, memory.NewKVStore(0))
	completeModule1(t, service)

	payload := fmt.Sprintf(`{"v":1,"ts":%d,"progress":{"mastery":"broken","userProgress":{"favorites":["j9"]}}}`, testNow.UnixMilli())
	res, err := service.RestoreBackup(ctx, payload)
	if err != nil {
		t.Fatalf("partial restore should succeed: %v", err)
	}
	if res.MasteryRestored || !res.UserProgressRestored {
		t.Fatalf("expected only user progress restored, got %+v", res)
	}
	snap := service.Snapshot()
	if !snap.Mastery["module-1"].Completed {
		t.Fatalf("mastery must be untouched when its half is unusable")
	}
	if len(snap.UserProgress.Favorites) != 1 || snap.UserProgress.Favorites[0] != "j9" {
		t.Fatalf("expected favorites replaced, got %v", snap.UserProgress.Favorites)
	}
}

func TestRestoreReappliesUnlockRules(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, memory.NewKVStore(0))

	// module-2 claims to be unlocked and module-1 is missing entirely
	payload := fmt.Sprintf(`{"v":1,"ts":%d,"progress":{"mastery":{"module-2":{"unlocked":true}}}}`, testNow.UnixMilli())
	if _, err := service.RestoreBackup(ctx, payload); err != nil {
		t.Fatalf("restore: %v", err)
	}
	snap := service.Snapshot()
	if !snap.Mastery["module-1"].Unlocked {
		t.Fatalf("first module must always end up unlocked")
	}
	if !snap.Mastery["module-2"].Unlocked {
		t.Fatalf("restored unlock must be kept")
	}
}

func TestExportImportFile(t *testing.T) {
	ctx := context.Background()
	source, _ := newTestService(t, memory.NewKVStore(0))
	completeModule1(t, source)

	data, err := source.ExportFile(ctx)
	if err != nil {
		t.Fatalf("export file: %v", err)
	}

	target, _ := newTestService(t, memory.NewKVStore(0))
	res, err := target.ImportFile(ctx, data)
	if err != nil {
		t.Fatalf("import file: %v", err)
	}
	if !res.MasteryRestored {
		t.Fatalf("expected mastery restored, got %+v", res)
	}
	if !target.Snapshot().Mastery["module-1"].Completed {
		t.Fatalf("expected completed module after import")
	}

	if _, err := target.ImportFile(ctx, []byte(`{"version":"9"}`)); !errors.Is(err, domain.ErrUnsupportedFile) {
		t.Fatalf("expected unsupported file, got %v", err)
	}
}

func TestImportFileRejectsNonObjectUserProgress(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, memory.NewKVStore(0))
	_, _ = service.ToggleFavorite(ctx, "joke-1")
	before := service.Snapshot()

	for _, data := range []string{`{"version":"2.0","userProgress":null}`, `{"version":"2.0","userProgress":"oops"}`} {
		if _, err := service.ImportFile(ctx, []byte(data)); !errors.Is(err, domain.ErrUnsupportedFile) {
			t.Fatalf("%s: expected unsupported file, got %v", data, err)
		}
	}
	if !reflect.DeepEqual(before, service.Snapshot()) {
		t.Fatalf("store changed after rejected import")
	}
}

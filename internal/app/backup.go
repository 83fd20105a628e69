package app

import (
	"context"

	"learner-progress-service/internal/backup"
	"learner-progress-service/internal/domain"
)

// RestoreResult reports which halves of a backup were applied.
type RestoreResult struct {
	MasteryRestored      bool     `json:"masteryRestored"`
	UserProgressRestored bool     `json:"userProgressRestored"`
	Modules              int      `json:"modules"`
	Unlocked             []string `json:"unlocked,omitempty"`
	Warning              string   `json:"warning,omitempty"`
}

// ExportBackup encodes the current progress as a compact backup payload.
// It fails with *domain.CapacityError when the payload would not fit.
func (s *ProgressService) ExportBackup(_ context.Context) (string, error) {
	text, err := s.codec.Encode(s.Snapshot())
	if err != nil {
		s.log.Warn("backup export failed", "error", err)
		return "", err
	}
	return text, nil
}

// MaxPayload is the capacity ceiling enforced by ExportBackup.
func (s *ProgressService) MaxPayload() int {
	return s.codec.MaxPayload
}

// RestoreBackup decodes a payload and applies whichever halves validated.
// Malformed payloads are rejected before anything is touched.
func (s *ProgressService) RestoreBackup(ctx context.Context, text string) (RestoreResult, error) {
	restored, err := s.codec.Decode(text)
	if err != nil {
		s.log.Info("backup rejected", "error", err)
		return RestoreResult{}, err
	}
	return s.apply(ctx, restored, "backup")
}

// ExportFile renders the full, unslimmed export document.
func (s *ProgressService) ExportFile(_ context.Context) ([]byte, error) {
	return s.codec.ExportFile(s.Snapshot())
}

// ImportFile applies an export file produced by any supported version.
func (s *ProgressService) ImportFile(ctx context.Context, data []byte) (RestoreResult, error) {
	restored, err := s.codec.ImportFile(data)
	if err != nil {
		s.log.Info("import file rejected", "error", err)
		return RestoreResult{}, err
	}
	return s.apply(ctx, restored, "file")
}

func (s *ProgressService) apply(ctx context.Context, restored backup.Restored, source string) (RestoreResult, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return RestoreResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.store.Clone()
	out := RestoreResult{}
	if restored.HasMastery() {
		staged.Mastery = make(map[string]domain.ModuleProgress, len(restored.Mastery))
		for id, mp := range restored.Mastery {
			staged.Mastery[id] = mp.Clone()
		}
		out.MasteryRestored = true
	}
	if restored.UserProgress != nil {
		staged.UserProgress = restored.UserProgress.Clone()
		out.UserProgressRestored = true
	}
	out.Unlocked = s.reconcile(catalog, &staged)
	out.Modules = len(staged.Mastery)

	s.store = staged
	out.Warning = s.persistLocked(ctx)
	s.events.publish(Event{Type: EventRestored, Unlocked: out.Unlocked, Warning: out.Warning, At: s.now()})
	s.log.Info("progress restored",
		"source", source,
		"mastery", out.MasteryRestored,
		"user_progress", out.UserProgressRestored,
		"modules", out.Modules,
		"taken_at", restored.Timestamp,
	)
	return out, nil
}

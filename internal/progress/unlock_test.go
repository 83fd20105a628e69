package progress

import (
	"fmt"
	"testing"

	"learner-progress-service/internal/domain"
)

func catalogOf(n int) domain.Catalog {
	var c domain.Catalog
	for i := 1; i <= n; i++ {
		c.Modules = append(c.Modules, domain.ModuleDef{ID: fmt.Sprintf("module-%d", i)})
	}
	return c
}

func TestNextUnlockFirstModule(t *testing.T) {
	d := NextUnlock(catalogOf(3), map[string]domain.ModuleProgress{})
	if !d.Unlock || d.ModuleID != "module-1" {
		t.Fatalf("expected first module to unlock, got %+v", d)
	}
}

func TestNextUnlockRequiresAllEarlierModules(t *testing.T) {
	c := catalogOf(3)
	mastery := map[string]domain.ModuleProgress{
		"module-1": {Unlocked: true, Completed: false},
		"module-2": {Unlocked: true, Completed: true},
	}
	d := NextUnlock(c, mastery)
	if d.Unlock || d.ModuleID != "module-3" || d.BlockedBy != "module-1" {
		t.Fatalf("expected module-3 blocked by module-1, got %+v", d)
	}
	if ids := PendingUnlocks(c, mastery); len(ids) != 0 {
		t.Fatalf("expected no pending unlocks, got %v", ids)
	}
}

func TestNextUnlockRegressionKeepsLaterModuleLocked(t *testing.T) {
	c := catalogOf(6)
	mastery := map[string]domain.ModuleProgress{}
	for i := 1; i <= 5; i++ {
		mastery[fmt.Sprintf("module-%d", i)] = domain.ModuleProgress{Unlocked: true, Completed: true}
	}
	if d := NextUnlock(c, mastery); !d.Unlock || d.ModuleID != "module-6" {
		t.Fatalf("expected module-6 eligible, got %+v", d)
	}

	reset := mastery["module-3"]
	reset.Completed = false
	mastery["module-3"] = reset

	d := NextUnlock(c, mastery)
	if d.Unlock || d.BlockedBy != "module-3" {
		t.Fatalf("expected module-6 blocked by module-3, got %+v", d)
	}
}

func TestNextUnlockAllOpen(t *testing.T) {
	c := catalogOf(2)
	mastery := map[string]domain.ModuleProgress{
		"module-1": {Unlocked: true},
		"module-2": {Unlocked: true},
	}
	if d := NextUnlock(c, mastery); d.ModuleID != "" || d.Unlock {
		t.Fatalf("expected zero decision, got %+v", d)
	}
}

func TestPendingUnlocksLegacyCascade(t *testing.T) {
	c := catalogOf(4)
	mastery := map[string]domain.ModuleProgress{
		"module-1": {Unlocked: true, Completed: true},
		"module-2": {Completed: true},
		"module-3": {},
	}
	ids := PendingUnlocks(c, mastery)
	if len(ids) != 2 || ids[0] != "module-2" || ids[1] != "module-3" {
		t.Fatalf("expected module-2 and module-3, got %v", ids)
	}
}

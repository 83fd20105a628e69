package progress

import "learner-progress-service/internal/domain"

// UnlockDecision is the outcome of evaluating the next locked module.
type UnlockDecision struct {
	ModuleID  string
	Unlock    bool
	BlockedBy string
}

// NextUnlock finds the first locked module in catalog order and decides
// whether it may open. Module i+1 opens only when every module 0..i is
// completed, not just module i. The first module is always eligible.
// When every module is already unlocked the zero decision is returned.
func NextUnlock(catalog domain.Catalog, mastery map[string]domain.ModuleProgress) UnlockDecision {
	for i, def := range catalog.Modules {
		if mastery[def.ID].Unlocked {
			continue
		}
		decision := UnlockDecision{ModuleID: def.ID, Unlock: true}
		for _, prev := range catalog.Modules[:i] {
			if !mastery[prev.ID].Completed {
				decision.Unlock = false
				decision.BlockedBy = prev.ID
				break
			}
		}
		return decision
	}
	return UnlockDecision{}
}

// PendingUnlocks returns every locked module whose predecessors are all
// completed. Usually zero or one, more only for legacy data that recorded
// completions without unlocks.
func PendingUnlocks(catalog domain.Catalog, mastery map[string]domain.ModuleProgress) []string {
	var ids []string
	allPriorDone := true
	for _, def := range catalog.Modules {
		mp := mastery[def.ID]
		if !mp.Unlocked && allPriorDone {
			ids = append(ids, def.ID)
		}
		if !mp.Completed {
			allPriorDone = false
		}
	}
	return ids
}

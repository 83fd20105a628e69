package app

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"learner-progress-service/internal/domain"
	"learner-progress-service/internal/progress"
)

// UserResult is returned by mutations of the app-wide learner state.
type UserResult struct {
	UserProgress domain.UserProgress `json:"userProgress"`
	Changed      bool                `json:"changed"`
	Warning      string              `json:"warning,omitempty"`
}

// DueReviews lists completed modules due for spaced review, most overdue first.
func (s *ProgressService) DueReviews(ctx context.Context) ([]progress.ReviewItem, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return progress.DueReviews(s.now(), catalog, s.store.Mastery), nil
}

// NextReview returns the single most urgent review, if any.
func (s *ProgressService) NextReview(ctx context.Context) (progress.ReviewItem, bool, error) {
	items, err := s.DueReviews(ctx)
	if err != nil || len(items) == 0 {
		return progress.ReviewItem{}, false, err
	}
	return items[0], true, nil
}

// CompleteReview records that the learner reviewed a module.
func (s *ProgressService) CompleteReview(ctx context.Context, moduleID string) (Result, error) {
	return s.review(ctx, moduleID, "completed")
}

// DismissReview postpones a review. It has exactly the same effect on
// stored data as CompleteReview.
func (s *ProgressService) DismissReview(ctx context.Context, moduleID string) (Result, error) {
	return s.review(ctx, moduleID, "dismissed")
}

func (s *ProgressService) review(ctx context.Context, moduleID, action string) (Result, error) {
	return s.mutate(ctx, moduleID, func(_ domain.ModuleDef, mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, string, error) {
		if !mp.Completed {
			return mp, "", errors.Wrapf(domain.ErrInvalidInput, "module %q is not completed", moduleID)
		}
		s.log.Info("review recorded", "module", moduleID, "action", action)
		return progress.MarkReviewed(mp, now), "", nil
	})
}

// MarkRead adds an item to the read collection.
func (s *ProgressService) MarkRead(ctx context.Context, itemID string) (UserResult, error) {
	return s.mutateUser(ctx, func(up *domain.UserProgress) (bool, error) {
		if !s.validator.IsID(itemID) {
			return false, errors.Wrapf(domain.ErrInvalidInput, "item id %q", itemID)
		}
		if len(up.Read) >= s.validator.Limits().MaxArrayItems {
			return false, nil
		}
		var added bool
		up.Read, added = progress.AddItem(up.Read, itemID)
		return added, nil
	})
}

// ToggleFavorite adds or removes an item from favorites.
func (s *ProgressService) ToggleFavorite(ctx context.Context, itemID string) (UserResult, error) {
	return s.mutateUser(ctx, func(up *domain.UserProgress) (bool, error) {
		if !s.validator.IsID(itemID) {
			return false, errors.Wrapf(domain.ErrInvalidInput, "item id %q", itemID)
		}
		for i, id := range up.Favorites {
			if id == itemID {
				up.Favorites = append(up.Favorites[:i], up.Favorites[i+1:]...)
				return true, nil
			}
		}
		if len(up.Favorites) >= s.validator.Limits().MaxArrayItems {
			return false, nil
		}
		up.Favorites = append(up.Favorites, itemID)
		return true, nil
	})
}

// SetNote stores a note under key. Blank text removes it.
func (s *ProgressService) SetNote(ctx context.Context, key, text string) (UserResult, error) {
	return s.mutateUser(ctx, func(up *domain.UserProgress) (bool, error) {
		if !s.validator.IsID(key) {
			return false, errors.Wrapf(domain.ErrInvalidInput, "note key %q", key)
		}
		if strings.TrimSpace(text) == "" {
			_, had := up.Notes[key]
			delete(up.Notes, key)
			return had, nil
		}
		if _, exists := up.Notes[key]; !exists && len(up.Notes) >= s.validator.Limits().MaxNoteKeys {
			return false, errors.Wrap(domain.ErrInvalidInput, "too many notes")
		}
		up.Notes[key] = s.validator.Text(text, s.validator.Limits().MaxStringLen)
		return true, nil
	})
}

// SetPlacement records a placement test result and the module it recommends.
func (s *ProgressService) SetPlacement(ctx context.Context, score int, recommended string) (UserResult, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return UserResult{}, err
	}
	return s.mutateUser(ctx, func(up *domain.UserProgress) (bool, error) {
		if score < 0 || score > 100 {
			return false, errors.Wrapf(domain.ErrInvalidInput, "placement score %d", score)
		}
		up.Placement = domain.PlacementState{
			Completed: true,
			Score:     domain.Ptr(score),
			DateTaken: domain.Ptr(s.now().UTC()),
		}
		if recommended != "" {
			if _, ok := catalog.Module(recommended); !ok {
				return false, errors.Wrapf(domain.ErrModuleNotFound, "module %q", recommended)
			}
			up.Placement.RecommendedModule = domain.Ptr(recommended)
		}
		return true, nil
	})
}

func (s *ProgressService) mutateUser(ctx context.Context, fn func(*domain.UserProgress) (bool, error)) (UserResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.store.UserProgress.Clone()
	changed, err := fn(&staged)
	if err != nil {
		return UserResult{}, err
	}
	if !changed {
		return UserResult{UserProgress: s.store.UserProgress.Clone()}, nil
	}
	s.store.UserProgress = staged
	warning := s.persistLocked(ctx)
	s.events.publish(Event{Type: EventUser, Warning: warning, At: s.now()})
	return UserResult{
		UserProgress: staged.Clone(),
		Changed:      true,
		Warning:      warning,
	}, nil
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"learner-progress-service/internal/backup"
	"learner-progress-service/internal/domain"
	"learner-progress-service/internal/progress"
	"learner-progress-service/internal/validate"
)

// Storage keys. The legacy key held both halves in one document.
const (
	KeyModuleMastery = "moduleMastery"
	KeyUserProgress  = "userProgress"
	KeyLegacy        = "learnerProgress"
)

// KeyValueStore abstracts where progress JSON is kept (memory, sqlite, Redis).
// Set must return an error matching domain.ErrQuotaExceeded when the
// backing store is full.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// CatalogRepository loads the ordered module catalog (from cache/backing file).
type CatalogRepository interface {
	GetCatalog(ctx context.Context) (domain.Catalog, error)
}

// Deps wires a ProgressService. Logger and Clock are optional.
type Deps struct {
	Store     KeyValueStore
	Catalog   CatalogRepository
	Codec     *backup.Codec
	Validator *validate.Validator
	Logger    *slog.Logger
	Clock     func() time.Time
}

// ProgressService owns one learner's progress and runs every use case
// against it. Mutations are staged on a copy and only assigned once
// complete, then persisted; a failed save leaves memory authoritative.
type ProgressService struct {
	kv        KeyValueStore
	catalog   CatalogRepository
	codec     *backup.Codec
	validator *validate.Validator
	log       *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	store  domain.Store
	events *broadcaster
}

func NewProgressService(d Deps) *ProgressService {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Validator == nil {
		d.Validator = validate.NewWithClock(validate.DefaultLimits(), d.Clock)
	}
	if d.Codec == nil {
		d.Codec = backup.NewCodec(d.Validator, backup.DefaultMaxPayload, d.Clock)
	}
	return &ProgressService{
		kv:        d.Store,
		catalog:   d.Catalog,
		codec:     d.Codec,
		validator: d.Validator,
		log:       d.Logger,
		now:       d.Clock,
		store:     domain.NewStore(),
		events:    newBroadcaster(),
	}
}

// ModuleView is a module's stored progress plus its catalog position.
type ModuleView struct {
	ID       string                `json:"id"`
	Title    string                `json:"title"`
	Step     domain.StepID         `json:"step"`
	Steps    []domain.StepID       `json:"steps"`
	Progress domain.ModuleProgress `json:"progress"`
}

// Result is returned by every module mutation.
type Result struct {
	Module     ModuleView           `json:"module"`
	Transition *progress.Transition `json:"transition,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	Unlocked   []string             `json:"unlocked,omitempty"`
	Warning    string               `json:"warning,omitempty"`
}

// Overview lists every catalog module in order with the app-wide state.
type Overview struct {
	Modules      []ModuleView         `json:"modules"`
	UserProgress domain.UserProgress  `json:"userProgress"`
	NextReview   *progress.ReviewItem `json:"nextReview,omitempty"`
}

// Load reads persisted progress, migrating the legacy single-key layout
// when the canonical keys are absent. Unreadable storage is not fatal: the
// learner starts fresh in memory, nothing is written back, and a warning is
// returned.
func (s *ProgressService) Load(ctx context.Context) (string, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return "", err
	}

	next := domain.NewStore()
	migrated := false
	var warnings []string

	rawMastery, okMastery, errMastery := s.kv.Get(ctx, KeyModuleMastery)
	rawUser, okUser, errUser := s.kv.Get(ctx, KeyUserProgress)
	readErr := firstErr(errMastery, errUser)
	if readErr != nil {
		s.log.Warn("progress storage unreadable", "error", readErr)
		warnings = append(warnings, "saved progress could not be read; starting fresh")
	}
	if okMastery {
		next.Mastery = s.validator.Mastery(parseJSON(rawMastery))
	}
	if okUser {
		next.UserProgress = s.validator.UserProgress(parseJSON(rawUser))
	}

	if !okMastery && !okUser && readErr == nil {
		if legacy, ok, err := s.kv.Get(ctx, KeyLegacy); err != nil {
			s.log.Warn("legacy progress unreadable", "error", err)
		} else if ok {
			if root, isObj := parseJSON(legacy).(map[string]any); isObj {
				next.Mastery = s.validator.Mastery(validate.Pick(root, "moduleMastery", "mastery", "progress"))
				next.UserProgress = s.validator.UserProgress(validate.Pick(root, "userProgress", "state", "user"))
				migrated = true
			}
		}
	}

	unlocked := s.reconcile(catalog, &next)

	s.mu.Lock()
	s.store = next
	// a failed read must not let the fresh state overwrite what is stored
	if readErr == nil && (migrated || len(unlocked) > 0) {
		if w := s.persistLocked(ctx); w != "" {
			warnings = append(warnings, w)
		}
	}
	s.mu.Unlock()

	if migrated {
		if err := s.kv.Remove(ctx, KeyLegacy); err != nil {
			s.log.Warn("legacy progress not removed", "error", err)
		}
		s.log.Info("legacy progress migrated", "modules", len(next.Mastery))
	}
	return joinWarnings(warnings), nil
}

// Snapshot returns a deep copy of the current progress.
func (s *ProgressService) Snapshot() domain.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Clone()
}

// Catalog returns the module catalog in order.
func (s *ProgressService) Catalog(ctx context.Context) (domain.Catalog, error) {
	return s.catalog.GetCatalog(ctx)
}

// Overview returns every module with its progress and the most urgent review.
func (s *ProgressService) Overview(ctx context.Context) (Overview, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return Overview{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Overview{UserProgress: s.store.UserProgress.Clone()}
	for _, def := range catalog.Modules {
		out.Modules = append(out.Modules, viewOf(def, s.store.Module(def.ID)))
	}
	if item, ok := progress.MostUrgent(s.now(), catalog, s.store.Mastery); ok {
		out.NextReview = &item
	}
	return out, nil
}

// Module returns one module's view.
func (s *ProgressService) Module(ctx context.Context, moduleID string) (ModuleView, error) {
	def, _, err := s.moduleDef(ctx, moduleID)
	if err != nil {
		return ModuleView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return viewOf(def, s.store.Module(moduleID)), nil
}

// Advance moves an unlocked module to its next step if the current step's
// gate allows it. Moving past the last step completes the module and
// re-evaluates unlocks.
func (s *ProgressService) Advance(ctx context.Context, moduleID string) (Result, error) {
	return s.step(ctx, moduleID, func(m progress.StepMachine, mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, progress.Transition) {
		return m.Advance(mp, now)
	})
}

// Retreat moves back one step. Nothing is un-completed.
func (s *ProgressService) Retreat(ctx context.Context, moduleID string) (Result, error) {
	return s.step(ctx, moduleID, func(m progress.StepMachine, mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, progress.Transition) {
		return m.Retreat(mp, now)
	})
}

type stepFunc func(progress.StepMachine, domain.ModuleProgress, time.Time) (domain.ModuleProgress, progress.Transition)

func (s *ProgressService) step(ctx context.Context, moduleID string, fn stepFunc) (Result, error) {
	def, catalog, err := s.moduleDef(ctx, moduleID)
	if err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mp, err := s.unlockedModuleLocked(moduleID)
	if err != nil {
		return Result{}, err
	}
	next, tr := fn(progress.NewStepMachine(def), mp, s.now())
	if !tr.Moved && !tr.Completed {
		return Result{Module: viewOf(def, mp), Transition: &tr, Reason: tr.Reason}, nil
	}

	staged := s.store.Clone()
	staged.Mastery[moduleID] = next
	var unlocked []string
	if tr.Completed {
		unlocked = s.applyUnlocks(catalog, &staged)
		s.log.Info("module completed", "module", moduleID, "mastery_score", next.MasteryScore, "mastered", next.MasteryAchieved)
	}
	s.store = staged
	res := Result{
		Module:     viewOf(def, next),
		Transition: &tr,
		Unlocked:   unlocked,
		Warning:    s.persistLocked(ctx),
	}
	s.publishModule(res)
	return res, nil
}

// RecordPreTest grades and stores a diagnostic attempt.
func (s *ProgressService) RecordPreTest(ctx context.Context, moduleID string, answers []int) (Result, error) {
	return s.mutate(ctx, moduleID, func(def domain.ModuleDef, mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, string, error) {
		if len(answers) > s.validator.Limits().MaxArrayItems {
			return mp, "", errors.Wrap(domain.ErrInvalidInput, "too many answers")
		}
		for _, a := range answers {
			if a < domain.NoAnswer || a > s.validator.Limits().MaxAnswerIndex {
				return mp, "", errors.Wrapf(domain.ErrInvalidInput, "answer %d out of range", a)
			}
		}
		return progress.RecordPreTest(def, mp, answers, now), "", nil
	})
}

// AnswerPostTest records the answer index for one post-test question.
func (s *ProgressService) AnswerPostTest(ctx context.Context, moduleID string, question, answer int) (Result, error) {
	return s.mutate(ctx, moduleID, func(def domain.ModuleDef, mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, string, error) {
		if question < 0 || question >= def.PostTestQuestions() {
			return mp, "", errors.Wrapf(domain.ErrInvalidInput, "question %d out of range", question)
		}
		if answer < 0 || answer > s.validator.Limits().MaxAnswerIndex {
			return mp, "", errors.Wrapf(domain.ErrInvalidInput, "answer %d out of range", answer)
		}
		if mp.PostTest.Completed {
			return mp, "post-test already submitted", nil
		}
		return progress.RecordAnswer(mp, question, answer, now), "", nil
	})
}

// MarkSectionRead records a theory section as read.
func (s *ProgressService) MarkSectionRead(ctx context.Context, moduleID, sectionID string) (Result, error) {
	return s.addToModule(ctx, moduleID, sectionID, func(mp *domain.ModuleProgress) *[]string { return &mp.Theory.SectionsRead })
}

// AnalyzeJoke records an example as analyzed.
func (s *ProgressService) AnalyzeJoke(ctx context.Context, moduleID, jokeID string) (Result, error) {
	return s.addToModule(ctx, moduleID, jokeID, func(mp *domain.ModuleProgress) *[]string { return &mp.Jokes.Analyzed })
}

// CompleteActivity records a practice activity as done.
func (s *ProgressService) CompleteActivity(ctx context.Context, moduleID, activityID string) (Result, error) {
	return s.addToModule(ctx, moduleID, activityID, func(mp *domain.ModuleProgress) *[]string { return &mp.Activities.Completed })
}

func (s *ProgressService) addToModule(ctx context.Context, moduleID, itemID string, field func(*domain.ModuleProgress) *[]string) (Result, error) {
	if !s.validator.IsID(itemID) {
		return Result{}, errors.Wrapf(domain.ErrInvalidInput, "item id %q", itemID)
	}
	return s.mutate(ctx, moduleID, func(def domain.ModuleDef, mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, string, error) {
		next := mp.Clone()
		list := field(&next)
		if len(*list) >= s.validator.Limits().MaxArrayItems {
			return mp, "", nil
		}
		*list, _ = progress.AddItem(*list, itemID)
		next.Started = true
		next.LastAccessed = domain.Ptr(now)
		next.ProgressScore = progress.CompositeScore(def, next)
		return next, "", nil
	})
}

// SaveReflection is the explicit save that completes the reflection step.
func (s *ProgressService) SaveReflection(ctx context.Context, moduleID string, responses domain.ReflectionResponses) (Result, error) {
	return s.mutate(ctx, moduleID, func(def domain.ModuleDef, mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, string, error) {
		raw, err := json.Marshal(responses)
		if err != nil {
			return mp, "", errors.Wrap(err, "marshal reflection")
		}
		bounded := s.validator.Responses(parseJSON(string(raw)))
		next, reason := progress.SaveReflection(def, mp, bounded, now)
		return next, reason, nil
	})
}

// AddTime accumulates time spent in a module.
func (s *ProgressService) AddTime(ctx context.Context, moduleID string, seconds int) (Result, error) {
	return s.mutate(ctx, moduleID, func(_ domain.ModuleDef, mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, string, error) {
		if seconds < 0 {
			return mp, "", errors.Wrap(domain.ErrInvalidInput, "negative time")
		}
		next := mp.Clone()
		next.TimeSpent += seconds
		if max := s.validator.Limits().MaxTimeSpent; next.TimeSpent > max {
			next.TimeSpent = max
		}
		next.LastAccessed = domain.Ptr(now)
		return next, "", nil
	})
}

// ResetModule clears a module's progress while keeping it unlocked.
// Later modules stay unlocked but further unlocks wait until it is redone.
func (s *ProgressService) ResetModule(ctx context.Context, moduleID string) (Result, error) {
	return s.mutate(ctx, moduleID, func(def domain.ModuleDef, mp domain.ModuleProgress, _ time.Time) (domain.ModuleProgress, string, error) {
		s.log.Info("module reset", "module", moduleID)
		return progress.Reset(mp), "", nil
	})
}

type mutateFunc func(def domain.ModuleDef, mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, string, error)

// mutate runs fn on an unlocked module and commits its result. A non-empty
// reason means fn declined and nothing is written.
func (s *ProgressService) mutate(ctx context.Context, moduleID string, fn mutateFunc) (Result, error) {
	def, _, err := s.moduleDef(ctx, moduleID)
	if err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mp, err := s.unlockedModuleLocked(moduleID)
	if err != nil {
		return Result{}, err
	}
	next, reason, err := fn(def, mp, s.now())
	if err != nil {
		return Result{}, err
	}
	if reason != "" {
		return Result{Module: viewOf(def, mp), Reason: reason}, nil
	}

	staged := s.store.Clone()
	staged.Mastery[moduleID] = next
	s.store = staged
	res := Result{Module: viewOf(def, next), Warning: s.persistLocked(ctx)}
	s.publishModule(res)
	return res, nil
}

// CheckUnlocks evaluates the unlock rule and persists any newly opened modules.
func (s *ProgressService) CheckUnlocks(ctx context.Context) ([]string, string, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.store.Clone()
	unlocked := s.applyUnlocks(catalog, &staged)
	if len(unlocked) == 0 {
		return nil, "", nil
	}
	s.store = staged
	warning := s.persistLocked(ctx)
	s.events.publish(Event{Type: EventUnlocked, Unlocked: unlocked, Warning: warning, At: s.now()})
	return unlocked, warning, nil
}

func (s *ProgressService) moduleDef(ctx context.Context, moduleID string) (domain.ModuleDef, domain.Catalog, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return domain.ModuleDef{}, domain.Catalog{}, err
	}
	def, ok := catalog.Module(moduleID)
	if !ok {
		return domain.ModuleDef{}, domain.Catalog{}, errors.Wrapf(domain.ErrModuleNotFound, "module %q", moduleID)
	}
	return def, catalog, nil
}

func (s *ProgressService) unlockedModuleLocked(moduleID string) (domain.ModuleProgress, error) {
	mp := s.store.Module(moduleID)
	if !mp.Unlocked {
		return mp, errors.Wrapf(domain.ErrModuleLocked, "module %q", moduleID)
	}
	return mp, nil
}

// applyUnlocks opens every eligible module on store and logs what blocks the next one.
func (s *ProgressService) applyUnlocks(catalog domain.Catalog, store *domain.Store) []string {
	ids := progress.PendingUnlocks(catalog, store.Mastery)
	for _, id := range ids {
		mp := store.Module(id)
		mp.Unlocked = true
		store.Mastery[id] = mp
		s.log.Info("module unlocked", "module", id)
	}
	if d := progress.NextUnlock(catalog, store.Mastery); d.ModuleID != "" && !d.Unlock {
		s.log.Debug("unlock blocked", "module", d.ModuleID, "blocked_by", d.BlockedBy)
	}
	return ids
}

// reconcile repairs cross-field invariants against the catalog and opens
// whatever the unlock rule allows, including the first module.
func (s *ProgressService) reconcile(catalog domain.Catalog, store *domain.Store) []string {
	for _, def := range catalog.Modules {
		if mp, ok := store.Mastery[def.ID]; ok {
			store.Mastery[def.ID] = progress.Reconcile(def, mp)
		}
	}
	return s.applyUnlocks(catalog, store)
}

// persistLocked writes both halves. Failures become a user-facing warning.
func (s *ProgressService) persistLocked(ctx context.Context) string {
	mastery, err := json.Marshal(s.store.Mastery)
	if err != nil {
		s.log.Error("marshal progress", "error", err)
		return "progress could not be saved"
	}
	user, err := json.Marshal(s.store.UserProgress)
	if err != nil {
		s.log.Error("marshal user progress", "error", err)
		return "progress could not be saved"
	}

	err = s.kv.Set(ctx, KeyModuleMastery, string(mastery))
	if err == nil {
		err = s.kv.Set(ctx, KeyUserProgress, string(user))
	}
	if err == nil {
		return ""
	}
	s.log.Warn("progress not saved", "error", err)
	if errors.Is(err, domain.ErrQuotaExceeded) {
		return "storage is full; progress is kept for this session only"
	}
	return fmt.Sprintf("progress could not be saved: %v", err)
}

func (s *ProgressService) publishModule(res Result) {
	view := res.Module
	s.events.publish(Event{
		Type:     EventModule,
		ModuleID: view.ID,
		Module:   &view,
		Unlocked: res.Unlocked,
		Warning:  res.Warning,
		At:       s.now(),
	})
}

func viewOf(def domain.ModuleDef, mp domain.ModuleProgress) ModuleView {
	m := progress.NewStepMachine(def)
	return ModuleView{
		ID:       def.ID,
		Title:    def.Title,
		Step:     m.Current(mp),
		Steps:    m.Steps(),
		Progress: mp,
	}
}

func parseJSON(raw string) any {
	var out any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func joinWarnings(ws []string) string {
	return strings.Join(ws, "; ")
}

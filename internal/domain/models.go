package domain

import (
	"sort"
	"time"
)

// MasteryThreshold is the post-test percentage a module needs to count as mastered.
const MasteryThreshold = 80

// NoAnswer marks an unanswered question slot in an answers array.
const NoAnswer = -1

// StepID names one step of a module's lesson sequence.
type StepID string

const (
	StepTheory     StepID = "theory"
	StepJokes      StepID = "jokes"
	StepActivities StepID = "activities"
	StepPostTest   StepID = "postTest"
	StepReflection StepID = "reflection"
)

// CanonicalSteps is the only order steps may appear in. A module may omit
// steps but never reorder them.
var CanonicalSteps = []StepID{StepTheory, StepJokes, StepActivities, StepPostTest, StepReflection}

// PreTest captures the diagnostic quiz taken before a module.
type PreTest struct {
	Completed bool  `json:"completed"`
	Score     *int  `json:"score"`
	Answers   []int `json:"answers"`
}

// Theory tracks which reading sections were opened.
type Theory struct {
	Completed    bool     `json:"completed"`
	SectionsRead []string `json:"sectionsRead"`
}

// Jokes tracks the worked examples a learner analyzed.
type Jokes struct {
	Analyzed []string `json:"analyzed"`
}

// Activities tracks completed practice items.
type Activities struct {
	Completed     []string `json:"completed"`
	CompletedFlag bool     `json:"completedFlag"`
}

// PostTest captures the graded end-of-module quiz.
type PostTest struct {
	Completed   bool       `json:"completed"`
	Score       *int       `json:"score"`
	Answers     []int      `json:"answers"`
	CompletedAt *time.Time `json:"completedAt"`
}

// Reflection holds the learner's saved reflection.
type Reflection struct {
	Completed bool                `json:"completed"`
	Responses ReflectionResponses `json:"responses"`
}

// ModuleProgress is the complete progress record of one module.
//
// MasteryScore is the canonical pass/fail number (post-test percentage,
// written on completion). ProgressScore is the composite indicator used
// while the module is in flight. They answer different questions and are
// kept apart on purpose.
type ModuleProgress struct {
	Unlocked        bool       `json:"unlocked"`
	Started         bool       `json:"started"`
	Completed       bool       `json:"completed"`
	CurrentStep     int        `json:"currentStep"`
	PreTest         PreTest    `json:"preTest"`
	Theory          Theory     `json:"theory"`
	Jokes           Jokes      `json:"jokes"`
	Activities      Activities `json:"activities"`
	PostTest        PostTest   `json:"postTest"`
	Reflection      Reflection `json:"reflection"`
	MasteryScore    int        `json:"masteryScore"`
	ProgressScore   int        `json:"progressScore"`
	MasteryAchieved bool       `json:"masteryAchieved"`
	TimeSpent       int        `json:"timeSpent"`
	LastAccessed    *time.Time `json:"lastAccessed"`
	CompletionDate  *time.Time `json:"completionDate"`
	LastReviewDate  *time.Time `json:"lastReviewDate"`
}

// NewModuleProgress returns a structurally complete, empty record.
func NewModuleProgress() ModuleProgress {
	return ModuleProgress{
		PreTest:    PreTest{Answers: []int{}},
		Theory:     Theory{SectionsRead: []string{}},
		Jokes:      Jokes{Analyzed: []string{}},
		Activities: Activities{Completed: []string{}},
		PostTest:   PostTest{Answers: []int{}},
		Reflection: Reflection{Responses: TextResponses("")},
	}
}

// Clone returns a deep copy so callers can stage changes without aliasing.
func (m ModuleProgress) Clone() ModuleProgress {
	out := m
	out.PreTest.Score = cloneInt(m.PreTest.Score)
	out.PreTest.Answers = cloneInts(m.PreTest.Answers)
	out.Theory.SectionsRead = cloneStrings(m.Theory.SectionsRead)
	out.Jokes.Analyzed = cloneStrings(m.Jokes.Analyzed)
	out.Activities.Completed = cloneStrings(m.Activities.Completed)
	out.PostTest.Score = cloneInt(m.PostTest.Score)
	out.PostTest.Answers = cloneInts(m.PostTest.Answers)
	out.PostTest.CompletedAt = cloneTime(m.PostTest.CompletedAt)
	out.Reflection.Responses = m.Reflection.Responses.Clone()
	out.LastAccessed = cloneTime(m.LastAccessed)
	out.CompletionDate = cloneTime(m.CompletionDate)
	out.LastReviewDate = cloneTime(m.LastReviewDate)
	return out
}

// ReviewAnchor is the time the spaced-repetition clock counts from: the
// last review, else the completion date, else the post-test timestamp.
func (m ModuleProgress) ReviewAnchor() (time.Time, bool) {
	for _, t := range []*time.Time{m.LastReviewDate, m.CompletionDate, m.PostTest.CompletedAt} {
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}

// PlacementState records the optional placement test.
type PlacementState struct {
	Completed         bool       `json:"completed"`
	Score             *int       `json:"score"`
	RecommendedModule *string    `json:"recommendedModule"`
	DateTaken         *time.Time `json:"dateTaken"`
}

// UserProgress is app-wide learner state that does not belong to a module.
type UserProgress struct {
	Read      []string          `json:"read"`
	Favorites []string          `json:"favorites"`
	Notes     map[string]string `json:"notes"`
	Placement PlacementState    `json:"placement"`
}

// NewUserProgress returns an empty, structurally complete value.
func NewUserProgress() UserProgress {
	return UserProgress{
		Read:      []string{},
		Favorites: []string{},
		Notes:     map[string]string{},
	}
}

// Clone returns a deep copy.
func (u UserProgress) Clone() UserProgress {
	out := u
	out.Read = cloneStrings(u.Read)
	out.Favorites = cloneStrings(u.Favorites)
	out.Notes = make(map[string]string, len(u.Notes))
	for k, v := range u.Notes {
		out.Notes[k] = v
	}
	out.Placement.Score = cloneInt(u.Placement.Score)
	if u.Placement.RecommendedModule != nil {
		s := *u.Placement.RecommendedModule
		out.Placement.RecommendedModule = &s
	}
	out.Placement.DateTaken = cloneTime(u.Placement.DateTaken)
	return out
}

// Store is the single writable owner of a learner's progress.
type Store struct {
	Mastery      map[string]ModuleProgress `json:"moduleMastery"`
	UserProgress UserProgress              `json:"userProgress"`
}

// NewStore returns an empty store.
func NewStore() Store {
	return Store{
		Mastery:      map[string]ModuleProgress{},
		UserProgress: NewUserProgress(),
	}
}

// Clone returns a deep copy of the whole store.
func (s Store) Clone() Store {
	out := Store{
		Mastery:      make(map[string]ModuleProgress, len(s.Mastery)),
		UserProgress: s.UserProgress.Clone(),
	}
	for id, mp := range s.Mastery {
		out.Mastery[id] = mp.Clone()
	}
	return out
}

// Module returns the progress for id, or a fresh record when none exists.
func (s Store) Module(id string) ModuleProgress {
	if mp, ok := s.Mastery[id]; ok {
		return mp.Clone()
	}
	return NewModuleProgress()
}

// ModuleIDs returns the stored module ids in sorted order.
func (s Store) ModuleIDs() []string {
	ids := make([]string, 0, len(s.Mastery))
	for id := range s.Mastery {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInts(in []int) []int {
	out := make([]int, len(in))
	copy(out, in)
	return out
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

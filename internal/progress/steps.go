// Package progress holds the pure rules of a learner's journey: the step
// state machine, scoring, unlocking, and review scheduling. Nothing here
// does I/O; every function takes the current state and returns the next.
package progress

import (
	"time"

	"learner-progress-service/internal/domain"
)

// User-facing reasons a transition did not happen.
const (
	ReasonAnswerAllQuestions = "answer all post-test questions"
	ReasonSaveReflection     = "save your reflection first"
	ReasonAtFirstStep        = "already at the first step"
	ReasonAlreadyCompleted   = "module already completed"
	ReasonEmptyReflection    = "write a reflection before saving"
)

// Transition describes the outcome of Advance or Retreat. A rejected
// transition leaves the step index untouched and carries a Reason.
type Transition struct {
	From      domain.StepID `json:"from"`
	To        domain.StepID `json:"to"`
	Moved     bool          `json:"moved"`
	Completed bool          `json:"completed"`
	Reason    string        `json:"reason,omitempty"`
}

// StepMachine drives one module through its ordered steps.
type StepMachine struct {
	def   domain.ModuleDef
	steps []domain.StepID
}

func NewStepMachine(def domain.ModuleDef) StepMachine {
	return StepMachine{def: def, steps: def.StepList()}
}

// Steps returns the module's ordered steps.
func (m StepMachine) Steps() []domain.StepID {
	return m.steps
}

// Index clamps the stored step position to this module's step count.
func (m StepMachine) Index(mp domain.ModuleProgress) int {
	if mp.CurrentStep < 0 {
		return 0
	}
	if mp.CurrentStep >= len(m.steps) {
		return len(m.steps) - 1
	}
	return mp.CurrentStep
}

// Current returns the step the learner is on.
func (m StepMachine) Current(mp domain.ModuleProgress) domain.StepID {
	return m.steps[m.Index(mp)]
}

// CanAdvance evaluates the gating predicate of the current step.
func (m StepMachine) CanAdvance(mp domain.ModuleProgress) (bool, string) {
	switch m.Current(mp) {
	case domain.StepPostTest:
		if !AllAnswered(m.def.PostTestQuestions(), mp.PostTest.Answers) {
			return false, ReasonAnswerAllQuestions
		}
	case domain.StepReflection:
		if !mp.Reflection.Completed {
			return false, ReasonSaveReflection
		}
	}
	// theory, jokes and activities gate nothing.
	return true, ""
}

// Advance moves one step forward when the current predicate holds. Moving
// past the final step completes the module. The input is never modified.
func (m StepMachine) Advance(mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, Transition) {
	next := mp.Clone()
	idx := m.Index(next)
	from := m.steps[idx]
	tr := Transition{From: from, To: from}

	if ok, reason := m.CanAdvance(next); !ok {
		tr.Reason = reason
		return mp, tr
	}

	m.leaveStep(&next, from, now)
	touch(&next, now)

	if idx == len(m.steps)-1 {
		if next.Completed {
			tr.Reason = ReasonAlreadyCompleted
			next.CurrentStep = idx
			next.ProgressScore = CompositeScore(m.def, next)
			return next, tr
		}
		Complete(m.def, &next, now)
		next.CurrentStep = idx
		tr.Completed = true
		return next, tr
	}

	next.CurrentStep = idx + 1
	next.ProgressScore = CompositeScore(m.def, next)
	tr.To = m.steps[idx+1]
	tr.Moved = true
	return next, tr
}

// Retreat moves one step back. It never un-completes anything.
func (m StepMachine) Retreat(mp domain.ModuleProgress, now time.Time) (domain.ModuleProgress, Transition) {
	idx := m.Index(mp)
	tr := Transition{From: m.steps[idx], To: m.steps[idx]}
	if idx == 0 {
		tr.Reason = ReasonAtFirstStep
		return mp, tr
	}
	next := mp.Clone()
	next.CurrentStep = idx - 1
	touch(&next, now)
	tr.To = m.steps[idx-1]
	tr.Moved = true
	return next, tr
}

// leaveStep records what leaving a step implies.
func (m StepMachine) leaveStep(mp *domain.ModuleProgress, step domain.StepID, now time.Time) {
	switch step {
	case domain.StepTheory:
		mp.Theory.Completed = true
	case domain.StepActivities:
		mp.Activities.CompletedFlag = true
	case domain.StepPostTest:
		if !mp.PostTest.Completed {
			score := Grade(m.def.PostTestKey, mp.PostTest.Answers)
			mp.PostTest.Completed = true
			mp.PostTest.Score = &score
			at := now
			mp.PostTest.CompletedAt = &at
		}
	}
}

// Complete marks the module completed once. The canonical mastery score
// becomes the post-test percentage; the composite goes to ProgressScore.
func Complete(def domain.ModuleDef, mp *domain.ModuleProgress, now time.Time) {
	if mp.Completed {
		return
	}
	mp.Completed = true
	mp.Started = true
	at := now
	mp.CompletionDate = &at
	ApplyPostTestMastery(mp)
	mp.ProgressScore = CompositeScore(def, *mp)
}

// AllAnswered reports whether each of n questions has a recorded answer.
func AllAnswered(n int, answers []int) bool {
	if n == 0 {
		return true
	}
	if len(answers) < n {
		return false
	}
	for _, a := range answers[:n] {
		if a == domain.NoAnswer {
			return false
		}
	}
	return true
}

// RecordAnswer stores answer for question, growing the slice with NoAnswer
// slots as needed.
func RecordAnswer(mp domain.ModuleProgress, question, answer int, now time.Time) domain.ModuleProgress {
	next := mp.Clone()
	for len(next.PostTest.Answers) <= question {
		next.PostTest.Answers = append(next.PostTest.Answers, domain.NoAnswer)
	}
	next.PostTest.Answers[question] = answer
	touch(&next, now)
	return next
}

// RecordPreTest grades a diagnostic attempt against the module's key.
func RecordPreTest(def domain.ModuleDef, mp domain.ModuleProgress, answers []int, now time.Time) domain.ModuleProgress {
	next := mp.Clone()
	next.PreTest.Answers = append([]int{}, answers...)
	score := Grade(def.PreTestKey, answers)
	next.PreTest.Score = &score
	next.PreTest.Completed = true
	touch(&next, now)
	next.ProgressScore = CompositeScore(def, next)
	return next
}

// SaveReflection is the only way reflection.completed becomes true.
// Blank responses are rejected with a reason.
func SaveReflection(def domain.ModuleDef, mp domain.ModuleProgress, responses domain.ReflectionResponses, now time.Time) (domain.ModuleProgress, string) {
	if responses.IsEmpty() {
		return mp, ReasonEmptyReflection
	}
	next := mp.Clone()
	next.Reflection.Responses = responses.Clone()
	next.Reflection.Completed = true
	touch(&next, now)
	next.ProgressScore = CompositeScore(def, next)
	return next, ""
}

// AddItem appends id to list unless already present.
func AddItem(list []string, id string) ([]string, bool) {
	for _, existing := range list {
		if existing == id {
			return list, false
		}
	}
	return append(list, id), true
}

// Reset clears a module's progress. Unlocking is monotonic and survives.
func Reset(mp domain.ModuleProgress) domain.ModuleProgress {
	next := domain.NewModuleProgress()
	next.Unlocked = mp.Unlocked
	return next
}

// Reconcile repairs cross-field invariants on data that came from outside
// (storage, imports, backups), using the module definition.
func Reconcile(def domain.ModuleDef, mp domain.ModuleProgress) domain.ModuleProgress {
	next := mp.Clone()
	steps := def.StepList()
	if next.CurrentStep >= len(steps) {
		next.CurrentStep = len(steps) - 1
	}
	if next.Completed {
		if def.HasStep(domain.StepPostTest) && !next.PostTest.Completed {
			next.Completed = false
		}
		if def.HasStep(domain.StepReflection) && !next.Reflection.Completed {
			next.Completed = false
		}
	}
	if next.MasteryAchieved && next.MasteryScore < domain.MasteryThreshold {
		next.MasteryAchieved = false
	}
	next.ProgressScore = CompositeScore(def, next)
	return next
}

func touch(mp *domain.ModuleProgress, now time.Time) {
	mp.Started = true
	at := now
	mp.LastAccessed = &at
}

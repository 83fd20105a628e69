package progress

import (
	"testing"
	"time"

	"learner-progress-service/internal/domain"
)

var now = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func threeQuestionModule() domain.ModuleDef {
	return domain.ModuleDef{
		ID:                 "m1",
		RequiredJokes:      4,
		RequiredActivities: 2,
		PostTestKey:        []int{0, 1, 2},
	}
}

func atStep(def domain.ModuleDef, step domain.StepID) domain.ModuleProgress {
	mp := domain.NewModuleProgress()
	mp.Unlocked = true
	for i, s := range def.StepList() {
		if s == step {
			mp.CurrentStep = i
		}
	}
	return mp
}

func TestAdvanceUngatedSteps(t *testing.T) {
	def := threeQuestionModule()
	m := NewStepMachine(def)
	mp := atStep(def, domain.StepTheory)

	mp, tr := m.Advance(mp, now)
	if !tr.Moved || tr.To != domain.StepJokes {
		t.Fatalf("expected move to jokes, got %+v", tr)
	}
	if !mp.Theory.Completed || !mp.Started || mp.LastAccessed == nil {
		t.Fatalf("expected theory completed and module touched, got %+v", mp)
	}

	mp, tr = m.Advance(mp, now)
	if tr.To != domain.StepActivities {
		t.Fatalf("expected activities, got %+v", tr)
	}
	mp, tr = m.Advance(mp, now)
	if tr.To != domain.StepPostTest || !mp.Activities.CompletedFlag {
		t.Fatalf("expected postTest with activities flag, got %+v %+v", tr, mp.Activities)
	}
}

func TestPostTestGating(t *testing.T) {
	def := threeQuestionModule()
	m := NewStepMachine(def)
	mp := atStep(def, domain.StepPostTest)
	mp = RecordAnswer(mp, 0, 0, now)
	mp = RecordAnswer(mp, 1, 1, now)

	same, tr := m.Advance(mp, now)
	if tr.Moved || tr.Reason != ReasonAnswerAllQuestions {
		t.Fatalf("expected rejection with reason, got %+v", tr)
	}
	if same.CurrentStep != mp.CurrentStep {
		t.Fatalf("step index changed on rejected advance: %d -> %d", mp.CurrentStep, same.CurrentStep)
	}

	mp = RecordAnswer(mp, 2, 0, now)
	mp, tr = m.Advance(mp, now)
	if !tr.Moved || tr.To != domain.StepReflection {
		t.Fatalf("expected move to reflection, got %+v", tr)
	}
	if !mp.PostTest.Completed || mp.PostTest.Score == nil || *mp.PostTest.Score != 67 {
		t.Fatalf("expected graded post-test 67, got %+v", mp.PostTest)
	}
}

func TestPostTestWithHoleIsNotAnswered(t *testing.T) {
	def := threeQuestionModule()
	m := NewStepMachine(def)
	mp := atStep(def, domain.StepPostTest)
	mp = RecordAnswer(mp, 2, 1, now)

	if ok, _ := m.CanAdvance(mp); ok {
		t.Fatalf("expected gaps to block advance, answers=%v", mp.PostTest.Answers)
	}
}

func TestPostTestWithoutQuestionsIsTrivial(t *testing.T) {
	def := domain.ModuleDef{ID: "m", Steps: []domain.StepID{domain.StepTheory, domain.StepPostTest}}
	m := NewStepMachine(def)
	mp := atStep(def, domain.StepPostTest)
	if ok, reason := m.CanAdvance(mp); !ok {
		t.Fatalf("expected trivial post-test, got %q", reason)
	}
}

func TestReflectionGatingAndCompletion(t *testing.T) {
	def := threeQuestionModule()
	m := NewStepMachine(def)
	mp := atStep(def, domain.StepReflection)
	mp.PostTest.Completed = true
	mp.PostTest.Score = domain.Ptr(80)

	_, tr := m.Advance(mp, now)
	if tr.Completed || tr.Reason != ReasonSaveReflection {
		t.Fatalf("expected reflection gate, got %+v", tr)
	}

	if _, reason := SaveReflection(def, mp, domain.TextResponses("   "), now); reason != ReasonEmptyReflection {
		t.Fatalf("expected blank reflection rejected, got %q", reason)
	}
	mp, reason := SaveReflection(def, mp, domain.TextResponses("I learned a lot"), now)
	if reason != "" || !mp.Reflection.Completed {
		t.Fatalf("expected reflection saved, reason=%q", reason)
	}

	mp, tr = m.Advance(mp, now)
	if !tr.Completed || !mp.Completed {
		t.Fatalf("expected completion, got %+v", tr)
	}
	if mp.MasteryScore != 80 || !mp.MasteryAchieved {
		t.Fatalf("expected mastery from post-test 80, got score=%d achieved=%v", mp.MasteryScore, mp.MasteryAchieved)
	}
	if mp.CompletionDate == nil || !mp.CompletionDate.Equal(now) {
		t.Fatalf("expected completion date %v, got %v", now, mp.CompletionDate)
	}

	later := now.Add(time.Hour)
	again, tr := m.Advance(mp, later)
	if tr.Completed || tr.Reason != ReasonAlreadyCompleted {
		t.Fatalf("expected no double completion, got %+v", tr)
	}
	if !again.CompletionDate.Equal(now) {
		t.Fatalf("completion date rewritten to %v", again.CompletionDate)
	}
}

func TestRetreat(t *testing.T) {
	def := threeQuestionModule()
	m := NewStepMachine(def)

	first := atStep(def, domain.StepTheory)
	if _, tr := m.Retreat(first, now); tr.Moved || tr.Reason != ReasonAtFirstStep {
		t.Fatalf("expected retreat blocked at first step, got %+v", tr)
	}

	mp := atStep(def, domain.StepActivities)
	mp.Theory.Completed = true
	mp, tr := m.Retreat(mp, now)
	if !tr.Moved || tr.To != domain.StepJokes {
		t.Fatalf("expected move back to jokes, got %+v", tr)
	}
	if !mp.Theory.Completed {
		t.Fatalf("retreat must not un-complete theory")
	}
}

func TestStepIndexClampedToModule(t *testing.T) {
	def := domain.ModuleDef{ID: "m", Steps: []domain.StepID{domain.StepTheory, domain.StepJokes}}
	m := NewStepMachine(def)
	mp := domain.NewModuleProgress()
	mp.CurrentStep = 4
	if got := m.Current(mp); got != domain.StepJokes {
		t.Fatalf("expected clamp to last step, got %s", got)
	}
}

func TestModuleWithoutPostTestCompletesWithZeroMastery(t *testing.T) {
	def := domain.ModuleDef{ID: "m", Steps: []domain.StepID{domain.StepTheory}}
	m := NewStepMachine(def)
	mp, tr := m.Advance(atStep(def, domain.StepTheory), now)
	if !tr.Completed || !mp.Completed {
		t.Fatalf("expected completion, got %+v", tr)
	}
	if mp.MasteryScore != 0 || mp.MasteryAchieved {
		t.Fatalf("expected no mastery without post-test, got %d", mp.MasteryScore)
	}
}

func TestReconcile(t *testing.T) {
	def := threeQuestionModule()
	mp := domain.NewModuleProgress()
	mp.Completed = true
	mp.PostTest.Completed = true
	mp.MasteryAchieved = true
	mp.MasteryScore = 50

	got := Reconcile(def, mp)
	if got.Completed {
		t.Fatalf("completed without reflection must be repaired")
	}
	if got.MasteryAchieved {
		t.Fatalf("mastery achieved below threshold must be repaired")
	}
}

func TestResetKeepsUnlock(t *testing.T) {
	mp := domain.NewModuleProgress()
	mp.Unlocked = true
	mp.Completed = true
	mp.TimeSpent = 300

	got := Reset(mp)
	if !got.Unlocked || got.Completed || got.TimeSpent != 0 {
		t.Fatalf("unexpected reset result %+v", got)
	}
}
